package store

import (
	"errors"
	"testing"
	"time"

	"github.com/akamquiz/akamquiz/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addTestUser(t *testing.T, s *Store, id, username, email string) model.User {
	t.Helper()
	u := model.User{
		ID:           id,
		Username:     username,
		Email:        email,
		DisplayName:  username,
		PasswordHash: "hash-" + username,
		RegisteredAt: time.Now(),
	}
	if err := s.AddUser(u); err != nil {
		t.Fatalf("addTestUser: %v", err)
	}
	return u
}

func TestUserRecords(t *testing.T) {
	s := newTestStore(t)

	// Empty collection.
	users, err := s.ListUsers()
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("expected no users, got %d", len(users))
	}

	addTestUser(t, s, "u1", "aziza", "aziza@test.uz")
	addTestUser(t, s, "u2", "bobur", "bobur@test.uz")

	count, err := s.UserCount()
	if err != nil {
		t.Fatalf("UserCount: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 users, got %d", count)
	}

	// Registration order is preserved.
	users, err = s.ListUsers()
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if users[0].Username != "aziza" || users[1].Username != "bobur" {
		t.Errorf("unexpected order: %q, %q", users[0].Username, users[1].Username)
	}

	u, err := s.GetUserByID("u2")
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if u == nil || u.Email != "bobur@test.uz" {
		t.Errorf("unexpected user: %+v", u)
	}

	// Missing id returns nil, not an error.
	u, err = s.GetUserByID("nope")
	if err != nil {
		t.Fatalf("GetUserByID missing: %v", err)
	}
	if u != nil {
		t.Errorf("expected nil, got %+v", u)
	}
}

func TestFindUserByIdentifier(t *testing.T) {
	s := newTestStore(t)
	addTestUser(t, s, "u1", "Aziza", "aziza@test.uz")

	tests := []struct {
		name       string
		identifier string
		found      bool
	}{
		{"exact username", "Aziza", true},
		{"username case folded", "aziza", true},
		{"email", "aziza@test.uz", true},
		{"email case folded", "AZIZA@TEST.UZ", true},
		{"unknown", "karim", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := s.FindUserByIdentifier(tt.identifier)
			if err != nil {
				t.Fatalf("FindUserByIdentifier: %v", err)
			}
			if (u != nil) != tt.found {
				t.Errorf("found = %v, want %v", u != nil, tt.found)
			}
		})
	}
}

func TestUpdateUser(t *testing.T) {
	s := newTestStore(t)
	u := addTestUser(t, s, "u1", "aziza", "aziza@test.uz")

	u.TestCount = 3
	u.AverageScore = 71.5
	if err := s.UpdateUser(u); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	got, err := s.GetUserByID("u1")
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if got.TestCount != 3 || got.AverageScore != 71.5 {
		t.Errorf("stats not persisted: %+v", got)
	}

	// Updating an absent record is an error, never an insert.
	if err := s.UpdateUser(model.User{ID: "ghost"}); err == nil {
		t.Error("expected error updating missing user")
	}
}

func TestResultsAndRatings(t *testing.T) {
	s := newTestStore(t)

	for i, score := range []int{8, 5} {
		err := s.AppendResult(model.TestResult{
			ID:             string(rune('a' + i)),
			UserID:         "u1",
			Score:          score,
			TotalQuestions: 10,
			CompletedAt:    time.Now(),
		})
		if err != nil {
			t.Fatalf("AppendResult: %v", err)
		}
	}
	if err := s.AppendResult(model.TestResult{ID: "c", UserID: "u2", Score: 4, TotalQuestions: 5}); err != nil {
		t.Fatalf("AppendResult: %v", err)
	}

	all, err := s.ListResults()
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 results, got %d", len(all))
	}

	mine, err := s.ResultsForUser("u1")
	if err != nil {
		t.Fatalf("ResultsForUser: %v", err)
	}
	if len(mine) != 2 || mine[0].Score != 8 || mine[1].Score != 5 {
		t.Errorf("unexpected results for u1: %+v", mine)
	}

	if err := s.AppendRating(model.UserRating{ID: "r1", UserID: "u1", Value: 4.5}); err != nil {
		t.Fatalf("AppendRating: %v", err)
	}
	ratings, err := s.ListRatings()
	if err != nil {
		t.Fatalf("ListRatings: %v", err)
	}
	if len(ratings) != 1 || ratings[0].Value != 4.5 {
		t.Errorf("unexpected ratings: %+v", ratings)
	}
}

func TestMessages(t *testing.T) {
	s := newTestStore(t)

	msg := model.ContactMessage{
		ID:      "m1",
		Name:    "Karim",
		Email:   "karim@test.uz",
		Subject: "general",
		Body:    "Salom",
		Status:  model.MessageSent,
	}
	if err := s.AppendMessage(msg); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	msg.Status = model.MessageRead
	if err := s.UpdateMessage(msg); err != nil {
		t.Fatalf("UpdateMessage: %v", err)
	}
	msgs, err := s.ListMessages()
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Status != model.MessageRead {
		t.Errorf("unexpected messages: %+v", msgs)
	}

	if err := s.DeleteMessage("m1"); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	// Deleting again is a no-op.
	if err := s.DeleteMessage("m1"); err != nil {
		t.Fatalf("DeleteMessage repeat: %v", err)
	}
	msgs, _ = s.ListMessages()
	if len(msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(msgs))
	}
}

func TestAuthTokenSlot(t *testing.T) {
	s := newTestStore(t)

	tok, err := s.AuthToken()
	if err != nil {
		t.Fatalf("AuthToken: %v", err)
	}
	if tok != nil {
		t.Errorf("expected nil token, got %+v", tok)
	}

	want := model.AuthToken{Token: "abc", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}
	if err := s.SetAuthToken(want); err != nil {
		t.Fatalf("SetAuthToken: %v", err)
	}
	tok, err = s.AuthToken()
	if err != nil {
		t.Fatalf("AuthToken: %v", err)
	}
	if tok == nil || tok.Token != "abc" || tok.UserID != "u1" {
		t.Errorf("unexpected token: %+v", tok)
	}

	if err := s.ClearAuthToken(); err != nil {
		t.Fatalf("ClearAuthToken: %v", err)
	}
	tok, _ = s.AuthToken()
	if tok != nil {
		t.Errorf("expected nil after clear, got %+v", tok)
	}
}

func TestCurrentUserReadsThrough(t *testing.T) {
	s := newTestStore(t)
	u := addTestUser(t, s, "u1", "aziza", "aziza@test.uz")

	if err := s.SetCurrentUser(u.ID); err != nil {
		t.Fatalf("SetCurrentUser: %v", err)
	}

	// Stats written to the users collection are visible through the slot
	// without rewriting it.
	u.TestCount = 7
	if err := s.UpdateUser(u); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	cur, err := s.CurrentUser()
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if cur == nil || cur.TestCount != 7 {
		t.Errorf("expected read-through TestCount 7, got %+v", cur)
	}

	if err := s.ClearCurrentUser(); err != nil {
		t.Fatalf("ClearCurrentUser: %v", err)
	}
	cur, err = s.CurrentUser()
	if err != nil {
		t.Fatalf("CurrentUser after clear: %v", err)
	}
	if cur != nil {
		t.Errorf("expected nil, got %+v", cur)
	}
}

func TestCorruptRecordSurfacesSentinel(t *testing.T) {
	s := newTestStore(t)
	addTestUser(t, s, "u1", "aziza", "aziza@test.uz")

	// Damage one stored payload directly.
	if _, err := s.db.Exec(
		`UPDATE records SET payload = 'not json' WHERE collection = ? AND key = ?`,
		CollectionUsers, "u1",
	); err != nil {
		t.Fatalf("damage payload: %v", err)
	}

	_, err := s.ListUsers()
	if !errors.Is(err, model.ErrStoreCorrupt) {
		t.Fatalf("expected ErrStoreCorrupt, got %v", err)
	}

	// The damaged row is left as-is; a fresh append still works and the
	// collection still reports the corrupt record on read.
	addTestUser(t, s, "u2", "bobur", "bobur@test.uz")
	if _, err := s.ListUsers(); !errors.Is(err, model.ErrStoreCorrupt) {
		t.Errorf("expected ErrStoreCorrupt after append, got %v", err)
	}
}

func TestCorruptSlot(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.db.Exec(
		`INSERT INTO slots (name, payload) VALUES (?, 'not json')`, SlotAuthToken,
	); err != nil {
		t.Fatalf("damage slot: %v", err)
	}
	_, err := s.AuthToken()
	if !errors.Is(err, model.ErrStoreCorrupt) {
		t.Fatalf("expected ErrStoreCorrupt, got %v", err)
	}
}

func TestSubscribe(t *testing.T) {
	s := newTestStore(t)

	sub := s.Subscribe(CollectionUsers)
	defer sub.Close()

	addTestUser(t, s, "u1", "aziza", "aziza@test.uz")

	select {
	case c := <-sub.C:
		if c != CollectionUsers {
			t.Errorf("notified for %q, want %q", c, CollectionUsers)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification received")
	}

	// Writes to other collections are filtered out.
	if err := s.AppendResult(model.TestResult{ID: "r1", UserID: "u1"}); err != nil {
		t.Fatalf("AppendResult: %v", err)
	}
	select {
	case c := <-sub.C:
		t.Errorf("unexpected notification for %q", c)
	default:
	}
}

func TestSubscribeDoesNotBlockWriters(t *testing.T) {
	s := newTestStore(t)

	sub := s.Subscribe()
	defer sub.Close()

	// Far more writes than the channel buffers; none may block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			s.AddUser(model.User{ID: string(rune(i)), Username: "u"})
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("writer blocked on a slow subscriber")
	}
}

func TestExportResults(t *testing.T) {
	s := newTestStore(t)
	u := addTestUser(t, s, "u1", "aziza", "aziza@test.uz")
	addTestUser(t, s, "u2", "bobur", "bobur@test.uz")

	u.TestCount = 1
	u.AverageScore = 80
	if err := s.UpdateUser(u); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if err := s.AppendResult(model.TestResult{ID: "r1", UserID: "u1", Score: 8, TotalQuestions: 10}); err != nil {
		t.Fatalf("AppendResult: %v", err)
	}

	export, err := s.ExportResults()
	if err != nil {
		t.Fatalf("ExportResults: %v", err)
	}
	if export.TotalUsers != 2 || export.TotalTests != 1 {
		t.Errorf("totals = %d users, %d tests", export.TotalUsers, export.TotalTests)
	}
	if len(export.Users) != 2 {
		t.Fatalf("expected 2 user groups, got %d", len(export.Users))
	}
	first := export.Users[0]
	if first.Username != "aziza" || first.TestCount != 1 || len(first.Results) != 1 {
		t.Errorf("unexpected first group: %+v", first)
	}
	if len(export.Users[1].Results) != 0 {
		t.Errorf("expected no results for bobur, got %d", len(export.Users[1].Results))
	}
}
