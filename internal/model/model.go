package model

import (
	"context"
	"time"
)

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known difficulty levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// MinutesPerQuestion returns the time budget per question at this difficulty.
func (d Difficulty) MinutesPerQuestion() int {
	switch d {
	case DifficultyMedium:
		return 3
	case DifficultyHard:
		return 5
	default:
		return 2
	}
}

// User is a registered account. TestCount and AverageScore are denormalized
// from the testResults collection; the users collection is their single
// source of truth.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"password_hash"`
	RegisteredAt time.Time `json:"registered_at"`
	LastLoginAt  time.Time `json:"last_login_at"`
	TestCount    int       `json:"test_count"`
	AverageScore float64   `json:"average_score"`
}

// AuthToken is an ephemeral credential for the signed-in user.
type AuthToken struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Question is one entry of the static question bank. Options order is
// meaningful (it encodes the displayed A/B/C/D labels), CorrectAnswer
// indexes into it.
type Question struct {
	ID            string     `json:"id"`
	Text          string     `json:"question"`
	Options       []string   `json:"options"`
	CorrectAnswer int        `json:"correct_answer"`
	Subject       string     `json:"subject"`
	Difficulty    Difficulty `json:"difficulty"`
	Explanation   string     `json:"explanation,omitempty"`
}

// Answer records one answered question, with a denormalized copy of the
// question so results can be reviewed without re-joining the bank.
type Answer struct {
	QuestionID string   `json:"question_id"`
	Selected   int      `json:"selected"`
	Correct    bool     `json:"correct"`
	Question   Question `json:"question"`
}

// TestResult is the persisted outcome of one finished session.
type TestResult struct {
	ID             string     `json:"id"`
	TestType       string     `json:"test_type"`
	Subjects       []string   `json:"subjects"`
	Score          int        `json:"score"`
	TotalQuestions int        `json:"total_questions"`
	Answers        []Answer   `json:"answers"`
	CompletedAt    time.Time  `json:"completed_at"`
	UserID         string     `json:"user_id"`
	ElapsedSeconds int        `json:"elapsed_seconds"`
	TimeGiven      int        `json:"time_given"`
	Difficulty     Difficulty `json:"difficulty"`
}

// UserRating is one star rating left after a test. Value may be fractional.
type UserRating struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Value     float64   `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	TestID    string    `json:"test_id"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageStatus is the delivery status of a contact message.
type MessageStatus string

const (
	MessageSent    MessageStatus = "sent"
	MessageRead    MessageStatus = "read"
	MessageReplied MessageStatus = "replied"
)

// MessagePriority is derived from a contact message's subject and body.
type MessagePriority string

const (
	PriorityLow    MessagePriority = "low"
	PriorityMedium MessagePriority = "medium"
	PriorityHigh   MessagePriority = "high"
	PriorityUrgent MessagePriority = "urgent"
)

// ContactMessage is one submitted contact-form message.
type ContactMessage struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Subject   string          `json:"subject"`
	Body      string          `json:"message"`
	CreatedAt time.Time       `json:"created_at"`
	Status    MessageStatus   `json:"status"`
	Priority  MessagePriority `json:"priority"`
	Category  string          `json:"category"`
}

// StatsSnapshot holds the dashboard metrics derived from the record store.
type StatsSnapshot struct {
	TotalUsers        int       `json:"total_users"`
	ActiveUsers       int       `json:"active_users"`
	TotalTests        int       `json:"total_tests"`
	TotalQuestions    int       `json:"total_questions"`
	SuccessRate       int       `json:"success_rate"`
	AverageUserRating float64   `json:"average_user_rating"`
	TotalRatings      int       `json:"total_ratings"`
	OnlineUsers       int       `json:"online_users"`
	NewUsersToday     int       `json:"new_users_today"`
	TestsToday        int       `json:"tests_today"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// UserStats are the per-user denormalized figures.
type UserStats struct {
	TestCount    int     `json:"test_count"`
	AverageScore float64 `json:"average_score"`
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}
