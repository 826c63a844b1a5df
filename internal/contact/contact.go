// Package contact handles contact-form intake: messages are stored with a
// derived priority and category, and a confirmation is fire-and-forget (a
// log line stands in for mail delivery).
package contact

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akamquiz/akamquiz/internal/model"
	"github.com/akamquiz/akamquiz/internal/store"
)

var (
	urgentKeywords = []string{"shoshilinch", "urgent", "muhim", "xato", "ishlamayapti", "muammo"}
	highKeywords   = []string{"yordam", "help", "texnik", "technical"}

	categories = map[string]string{
		"technical":   "Texnik yordam",
		"account":     "Hisob masalalari",
		"payment":     "To'lov",
		"test":        "Test masalalari",
		"general":     "Umumiy savol",
		"feedback":    "Fikr-mulohaza",
		"partnership": "Hamkorlik",
	}
)

// Stats summarizes the contactMessages collection.
type Stats struct {
	Total      int            `json:"total"`
	Unread     int            `json:"unread"`
	ByPriority map[string]int `json:"by_priority"`
	ByCategory map[string]int `json:"by_category"`
}

type Service struct {
	store *store.Store
	now   func() time.Time
}

func NewService(s *store.Store) *Service {
	return &Service{store: s, now: time.Now}
}

// Submit records a contact message and logs the would-be confirmation.
func (s *Service) Submit(name, email, subject, body string) (*model.ContactMessage, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" || strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("name, email and message are required")
	}

	msg := model.ContactMessage{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Subject:   subject,
		Body:      body,
		CreatedAt: s.now(),
		Status:    model.MessageSent,
		Priority:  Priority(subject, body),
		Category:  Category(subject),
	}
	if err := s.store.AppendMessage(msg); err != nil {
		return nil, err
	}

	slog.Info("contact message received",
		"id", msg.ID,
		"from", msg.Email,
		"priority", msg.Priority,
		"category", msg.Category,
	)
	return &msg, nil
}

// Messages returns all stored messages, newest last.
func (s *Service) Messages() ([]model.ContactMessage, error) {
	return s.store.ListMessages()
}

// UnreadCount counts messages still in the sent state.
func (s *Service) UnreadCount() (int, error) {
	msgs, err := s.store.ListMessages()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range msgs {
		if m.Status == model.MessageSent {
			n++
		}
	}
	return n, nil
}

// MarkRead transitions a message to the read state.
func (s *Service) MarkRead(id string) error {
	msgs, err := s.store.ListMessages()
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if m.ID == id {
			m.Status = model.MessageRead
			return s.store.UpdateMessage(m)
		}
	}
	return fmt.Errorf("message %s not found", id)
}

// Delete removes a message.
func (s *Service) Delete(id string) error {
	return s.store.DeleteMessage(id)
}

// MessageStats aggregates totals by status, priority and category.
func (s *Service) MessageStats() (Stats, error) {
	msgs, err := s.store.ListMessages()
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		Total:      len(msgs),
		ByPriority: make(map[string]int),
		ByCategory: make(map[string]int),
	}
	for _, m := range msgs {
		if m.Status == model.MessageSent {
			st.Unread++
		}
		st.ByPriority[string(m.Priority)]++
		st.ByCategory[m.Category]++
	}
	return st, nil
}

// Priority derives a message priority from its subject tag and body.
func Priority(subject, body string) model.MessagePriority {
	text := strings.ToLower(subject + " " + body)
	for _, kw := range urgentKeywords {
		if strings.Contains(text, kw) {
			return model.PriorityUrgent
		}
	}
	for _, kw := range highKeywords {
		if strings.Contains(text, kw) {
			return model.PriorityHigh
		}
	}
	if subject == "technical" || subject == "account" {
		return model.PriorityMedium
	}
	return model.PriorityLow
}

// Category maps a subject tag to its display category.
func Category(subject string) string {
	if c, ok := categories[subject]; ok {
		return c
	}
	return "Umumiy"
}
