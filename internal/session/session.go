// Package session drives one in-progress test: question delivery, answer
// tracking, the countdown, and production of the final result record.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akamquiz/akamquiz/internal/bank"
	"github.com/akamquiz/akamquiz/internal/model"
	"github.com/akamquiz/akamquiz/internal/store"
)

// Session is the transient state of one test attempt. It is not persisted;
// a finished session leaves behind a TestResult and nothing else.
type Session struct {
	TestType      string             `json:"test_type"`
	Subjects      []string           `json:"subjects"`
	Questions     []model.Question   `json:"questions"`
	Current       int                `json:"current"`
	Answers       []model.Answer     `json:"answers"`
	TimeRemaining int                `json:"time_remaining"`
	TotalTime     int                `json:"total_time"`
	Active        bool               `json:"active"`
	Paused        bool               `json:"paused"`
	Difficulty    model.Difficulty   `json:"difficulty"`
	StartedAt     time.Time          `json:"started_at"`
}

// Manager owns at most one active session for one user. All methods are safe
// for concurrent use; the countdown goroutine and HTTP handlers share it.
type Manager struct {
	bank  *bank.Bank
	store *store.Store
	user  string

	// onFinish runs after every persisted result, on the explicit finish
	// path and the timer-driven one alike. Nil means no follow-up.
	onFinish func(userID string) error

	mu          sync.Mutex
	sess        *Session
	cancelTimer context.CancelFunc

	now  func() time.Time
	tick time.Duration
}

// NewManager creates a session manager for one user.
func NewManager(b *bank.Bank, s *store.Store, userID string, onFinish func(string) error) *Manager {
	return &Manager{
		bank:     b,
		store:    s,
		user:     userID,
		onFinish: onFinish,
		now:      time.Now,
		tick:     time.Second,
	}
}

// Start materializes a new session, replacing any session in progress.
// When the bank cannot supply the full count it starts with what is
// available and returns a *model.ShortfallError alongside the session.
func (m *Manager) Start(testType string, subjects []string, count int, difficulty model.Difficulty) (*Session, error) {
	if len(subjects) == 0 {
		return nil, fmt.Errorf("%w: no subjects selected", model.ErrInvalidSelection)
	}
	if !difficulty.Valid() {
		return nil, fmt.Errorf("%w: unknown difficulty %q", model.ErrInvalidSelection, difficulty)
	}
	available := m.bank.Available(subjects, difficulty)
	if count < bank.MinQuestions || count > available {
		return nil, fmt.Errorf("%w: question count %d outside [%d, %d]",
			model.ErrInvalidSelection, count, bank.MinQuestions, available)
	}

	questions := m.bank.Select(subjects, count, difficulty)
	totalTime := count * difficulty.MinutesPerQuestion() * 60

	m.mu.Lock()
	m.stopTimerLocked()
	m.sess = &Session{
		TestType:      testType,
		Subjects:      append([]string(nil), subjects...),
		Questions:     questions,
		TimeRemaining: totalTime,
		TotalTime:     totalTime,
		Active:        true,
		Difficulty:    difficulty,
		StartedAt:     m.now(),
	}
	m.startTimerLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	slog.Info("session started",
		"user", m.user,
		"test_type", testType,
		"subjects", subjects,
		"questions", len(questions),
		"difficulty", difficulty,
		"total_time", totalTime,
	)

	if len(questions) < count {
		return snap, &model.ShortfallError{Requested: count, Selected: len(questions)}
	}
	return snap, nil
}

// Answer upserts the answer for a question in the active session. Repeating
// an identical submission is a no-op; changing the choice overwrites.
func (m *Manager) Answer(questionID string, selected int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return model.ErrNoActiveSession
	}

	var q *model.Question
	for i := range m.sess.Questions {
		if m.sess.Questions[i].ID == questionID {
			q = &m.sess.Questions[i]
			break
		}
	}
	if q == nil {
		return fmt.Errorf("%w: question %s not part of this session", model.ErrInvalidSelection, questionID)
	}
	if selected < 0 || selected >= len(q.Options) {
		return fmt.Errorf("%w: option index %d out of range", model.ErrInvalidSelection, selected)
	}

	ans := model.Answer{
		QuestionID: questionID,
		Selected:   selected,
		Correct:    selected == q.CorrectAnswer,
		Question:   *q,
	}
	for i := range m.sess.Answers {
		if m.sess.Answers[i].QuestionID == questionID {
			m.sess.Answers[i] = ans
			return nil
		}
	}
	m.sess.Answers = append(m.sess.Answers, ans)
	return nil
}

// Advance moves to the next question, clamped at the last one.
func (m *Manager) Advance() error { return m.move(1) }

// Retreat moves to the previous question, clamped at the first one.
func (m *Manager) Retreat() error { return m.move(-1) }

func (m *Manager) move(delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return model.ErrNoActiveSession
	}
	next := m.sess.Current + delta
	if next < 0 || next >= len(m.sess.Questions) {
		return nil
	}
	m.sess.Current = next
	return nil
}

// Pause freezes the countdown. Idempotent while a session exists.
func (m *Manager) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return model.ErrNoActiveSession
	}
	m.sess.Paused = true
	return nil
}

// Resume continues the countdown from the frozen value.
func (m *Manager) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return model.ErrNoActiveSession
	}
	m.sess.Paused = false
	return nil
}

// Finish scores the session, persists the TestResult, and discards the
// session. A second Finish without a new Start is ErrNoActiveSession.
func (m *Manager) Finish() (*model.TestResult, error) {
	m.mu.Lock()
	if m.sess == nil {
		m.mu.Unlock()
		return nil, model.ErrNoActiveSession
	}
	m.stopTimerLocked()
	sess := m.sess
	m.sess = nil
	now := m.now()
	m.mu.Unlock()

	score := 0
	for _, a := range sess.Answers {
		if a.Correct {
			score++
		}
	}

	result := model.TestResult{
		ID:             uuid.NewString(),
		TestType:       sess.TestType,
		Subjects:       sess.Subjects,
		Score:          score,
		TotalQuestions: len(sess.Questions),
		Answers:        sess.Answers,
		CompletedAt:    now,
		UserID:         m.user,
		ElapsedSeconds: int(now.Sub(sess.StartedAt).Seconds()),
		TimeGiven:      sess.TotalTime,
		Difficulty:     sess.Difficulty,
	}

	if err := m.store.AppendResult(result); err != nil {
		return nil, fmt.Errorf("persist result: %w", err)
	}
	if m.onFinish != nil {
		if err := m.onFinish(m.user); err != nil {
			slog.Error("post-finish update failed", "user", m.user, "error", err)
		}
	}
	slog.Info("session finished",
		"user", m.user,
		"score", score,
		"total", result.TotalQuestions,
		"elapsed", result.ElapsedSeconds,
	)
	return &result, nil
}

// Reset abandons the session without persisting anything. Idempotent.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
	m.sess = nil
}

// State returns a snapshot of the current session, or nil when none is
// in progress.
func (m *Manager) State() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() *Session {
	if m.sess == nil {
		return nil
	}
	snap := *m.sess
	snap.Subjects = append([]string(nil), m.sess.Subjects...)
	snap.Questions = append([]model.Question(nil), m.sess.Questions...)
	snap.Answers = append([]model.Answer(nil), m.sess.Answers...)
	return &snap
}

// startTimerLocked launches the countdown goroutine. The previous timer must
// already be stopped; at most one runs per manager.
func (m *Manager) startTimerLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelTimer = cancel
	go m.runCountdown(ctx, m.sess)
}

func (m *Manager) stopTimerLocked() {
	if m.cancelTimer != nil {
		m.cancelTimer()
		m.cancelTimer = nil
	}
}

func (m *Manager) runCountdown(ctx context.Context, sess *Session) {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.decrement(sess) {
				// Time ran out: finish exactly once. The session is already
				// marked inactive so a racing explicit Finish cannot double-
				// persist; whichever call reaches Finish first wins.
				if _, err := m.Finish(); err != nil && err != model.ErrNoActiveSession {
					slog.Error("auto-finish failed", "user", m.user, "error", err)
				}
				return
			}
		}
	}
}

// decrement applies one countdown tick and reports whether the budget
// reached zero. The sess argument guards against a cancelled timer ticking
// a session it does not own.
func (m *Manager) decrement(sess *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != sess || m.sess == nil || !m.sess.Active || m.sess.Paused {
		return false
	}
	m.sess.TimeRemaining--
	if m.sess.TimeRemaining <= 0 {
		m.sess.TimeRemaining = 0
		m.sess.Active = false
		return true
	}
	return false
}
