package store

import (
	"log/slog"
	"strings"

	"github.com/akamquiz/akamquiz/internal/model"
)

// AddUser appends a new user to the users collection.
func (s *Store) AddUser(u model.User) error {
	if err := s.appendRecord(CollectionUsers, u.ID, u); err != nil {
		slog.Error("failed to add user", "username", u.Username, "error", err)
		return err
	}
	slog.Info("created user", "id", u.ID, "username", u.Username)
	return nil
}

// ListUsers returns all users in registration order.
func (s *Store) ListUsers() ([]model.User, error) {
	payloads, err := s.readCollection(CollectionUsers)
	if err != nil {
		return nil, err
	}
	return decodeAll[model.User](CollectionUsers, payloads)
}

// GetUserByID returns a user by id, or nil when absent.
func (s *Store) GetUserByID(id string) (*model.User, error) {
	users, err := s.ListUsers()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, nil
}

// FindUserByIdentifier looks a user up by username or email (case-insensitive),
// or returns nil.
func (s *Store) FindUserByIdentifier(identifier string) (*model.User, error) {
	users, err := s.ListUsers()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if strings.EqualFold(users[i].Username, identifier) ||
			strings.EqualFold(users[i].Email, identifier) {
			return &users[i], nil
		}
	}
	return nil, nil
}

// UpdateUser rewrites exactly one user record.
func (s *Store) UpdateUser(u model.User) error {
	return s.updateRecord(CollectionUsers, u.ID, u)
}

// UserCount returns the number of users without decoding them.
func (s *Store) UserCount() (int, error) {
	return s.count(CollectionUsers)
}

// AppendResult appends a finished test result. Results are immutable.
func (s *Store) AppendResult(r model.TestResult) error {
	return s.appendRecord(CollectionResults, r.ID, r)
}

// ListResults returns all test results in completion order.
func (s *Store) ListResults() ([]model.TestResult, error) {
	payloads, err := s.readCollection(CollectionResults)
	if err != nil {
		return nil, err
	}
	return decodeAll[model.TestResult](CollectionResults, payloads)
}

// ResultsForUser returns one user's results in completion order.
func (s *Store) ResultsForUser(userID string) ([]model.TestResult, error) {
	results, err := s.ListResults()
	if err != nil {
		return nil, err
	}
	var out []model.TestResult
	for _, r := range results {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

// AppendRating appends a star rating. Ratings are append-only.
func (s *Store) AppendRating(r model.UserRating) error {
	return s.appendRecord(CollectionRatings, r.ID, r)
}

// ListRatings returns all ratings in submission order.
func (s *Store) ListRatings() ([]model.UserRating, error) {
	payloads, err := s.readCollection(CollectionRatings)
	if err != nil {
		return nil, err
	}
	return decodeAll[model.UserRating](CollectionRatings, payloads)
}

// AppendMessage appends a contact message.
func (s *Store) AppendMessage(m model.ContactMessage) error {
	return s.appendRecord(CollectionMessages, m.ID, m)
}

// ListMessages returns all contact messages in submission order.
func (s *Store) ListMessages() ([]model.ContactMessage, error) {
	payloads, err := s.readCollection(CollectionMessages)
	if err != nil {
		return nil, err
	}
	return decodeAll[model.ContactMessage](CollectionMessages, payloads)
}

// UpdateMessage rewrites exactly one contact message record.
func (s *Store) UpdateMessage(m model.ContactMessage) error {
	return s.updateRecord(CollectionMessages, m.ID, m)
}

// DeleteMessage removes a contact message. Idempotent.
func (s *Store) DeleteMessage(id string) error {
	return s.deleteRecord(CollectionMessages, id)
}

// SetAuthToken stores the signed-in token in its singleton slot.
func (s *Store) SetAuthToken(t model.AuthToken) error {
	return s.SetSlot(SlotAuthToken, t)
}

// AuthToken returns the stored token, or nil when signed out.
func (s *Store) AuthToken() (*model.AuthToken, error) {
	var t model.AuthToken
	ok, err := s.GetSlot(SlotAuthToken, &t)
	if err != nil || !ok {
		return nil, err
	}
	return &t, nil
}

// ClearAuthToken removes the token slot. Idempotent.
func (s *Store) ClearAuthToken() error {
	return s.ClearSlot(SlotAuthToken)
}

// SetCurrentUser stores the signed-in user's id. Only the id is persisted;
// the full record is read through from the users collection so denormalized
// stats have a single home.
func (s *Store) SetCurrentUser(userID string) error {
	return s.SetSlot(SlotCurrentUser, userID)
}

// CurrentUser resolves the current-user slot against the users collection.
// Returns nil when signed out or when the referenced user no longer exists.
func (s *Store) CurrentUser() (*model.User, error) {
	var id string
	ok, err := s.GetSlot(SlotCurrentUser, &id)
	if err != nil || !ok {
		return nil, err
	}
	return s.GetUserByID(id)
}

// ClearCurrentUser removes the current-user slot. Idempotent.
func (s *Store) ClearCurrentUser() error {
	return s.ClearSlot(SlotCurrentUser)
}
