// Package auth validates credentials, issues expiring tokens, and enforces
// the inactivity timeout.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"

	"github.com/akamquiz/akamquiz/internal/model"
	"github.com/akamquiz/akamquiz/internal/stats"
	"github.com/akamquiz/akamquiz/internal/store"
)

const (
	// TokenTTL is the absolute lifetime of an issued token.
	TokenTTL = 24 * time.Hour
	// InactivityTimeout signs a user out after this much idle time.
	InactivityTimeout = 30 * time.Minute

	tokenSweepInterval    = 5 * time.Minute
	activitySweepInterval = time.Minute
)

// Manager owns the authentication lifecycle. Live tokens are held in two
// TTL caches whose janitors double as the background expiry and inactivity
// sweeps; the most recent sign-in is mirrored into the store's singleton
// slots.
type Manager struct {
	store *store.Store
	agg   *stats.Aggregator

	// tokens maps token -> model.AuthToken with the absolute 24h TTL.
	tokens *gocache.Cache
	// activity maps token -> last-seen time with a sliding 30-minute TTL;
	// a missing entry for a live token means the inactivity timeout fired.
	activity *gocache.Cache

	now func() time.Time
}

func NewManager(s *store.Store, agg *stats.Aggregator) *Manager {
	return &Manager{
		store:    s,
		agg:      agg,
		tokens:   gocache.New(TokenTTL, tokenSweepInterval),
		activity: gocache.New(InactivityTimeout, activitySweepInterval),
		now:      time.Now,
	}
}

// Register creates a new account and signs it in.
func (m *Manager) Register(username, email, displayName, password string) (*model.User, *model.AuthToken, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return nil, nil, fmt.Errorf("%w: username, email and password are required", model.ErrInvalidCredentials)
	}

	for _, identifier := range []string{username, email} {
		existing, err := m.store.FindUserByIdentifier(identifier)
		if err != nil {
			return nil, nil, err
		}
		if existing != nil {
			return nil, nil, model.ErrDuplicateIdentity
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	now := m.now()
	if displayName == "" {
		displayName = username
	}
	user := model.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		RegisteredAt: now,
		LastLoginAt:  now,
	}
	if err := m.store.AddUser(user); err != nil {
		return nil, nil, err
	}

	token, err := m.signIn(user.ID)
	if err != nil {
		return nil, nil, err
	}
	return &user, token, nil
}

// Login signs a user in by username-or-email and password.
func (m *Manager) Login(identifier, password string) (*model.User, *model.AuthToken, error) {
	user, err := m.store.FindUserByIdentifier(strings.TrimSpace(identifier))
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, model.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, model.ErrInvalidCredentials
	}

	user.LastLoginAt = m.now()
	if err := m.store.UpdateUser(*user); err != nil {
		return nil, nil, err
	}

	token, err := m.signIn(user.ID)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("user logged in", "user", user.Username)
	return user, token, nil
}

func (m *Manager) signIn(userID string) (*model.AuthToken, error) {
	raw, err := generateToken()
	if err != nil {
		return nil, err
	}
	token := model.AuthToken{
		Token:     raw,
		UserID:    userID,
		ExpiresAt: m.now().Add(TokenTTL),
	}
	m.tokens.Set(raw, token, gocache.DefaultExpiration)
	m.activity.Set(raw, m.now(), gocache.DefaultExpiration)

	if err := m.store.SetAuthToken(token); err != nil {
		return nil, err
	}
	if err := m.store.SetCurrentUser(userID); err != nil {
		return nil, err
	}
	return &token, nil
}

// Logout revokes a token and clears the signed-in slots. Idempotent.
func (m *Manager) Logout(token string) error {
	m.tokens.Delete(token)
	m.activity.Delete(token)

	stored, err := m.store.AuthToken()
	if err == nil && stored != nil && stored.Token == token {
		if err := m.store.ClearAuthToken(); err != nil {
			return err
		}
		if err := m.store.ClearCurrentUser(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a presented token and returns its user. An expired token
// or one idle past the inactivity timeout forces a logout and surfaces
// ErrSessionExpired; an unknown token is ErrInvalidCredentials. A valid
// check counts as activity.
func (m *Manager) Validate(token string) (*model.User, error) {
	at, ok := m.lookup(token)
	if !ok {
		return nil, model.ErrInvalidCredentials
	}
	if !at.ExpiresAt.After(m.now()) {
		_ = m.Logout(token)
		return nil, model.ErrSessionExpired
	}
	if _, alive := m.activity.Get(token); !alive {
		_ = m.Logout(token)
		return nil, model.ErrSessionExpired
	}
	m.Touch(token)

	user, err := m.store.GetUserByID(at.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		_ = m.Logout(token)
		return nil, model.ErrInvalidCredentials
	}
	return user, nil
}

// UserIDForToken resolves a token's owner without refreshing its inactivity
// window. Even an expired token still identifies whose session to abandon,
// so this only fails for tokens that were never issued or already revoked.
func (m *Manager) UserIDForToken(token string) (string, bool) {
	at, ok := m.lookup(token)
	if !ok {
		return "", false
	}
	return at.UserID, true
}

// Touch refreshes the inactivity window for a token.
func (m *Manager) Touch(token string) {
	m.activity.Set(token, m.now(), gocache.DefaultExpiration)
}

func (m *Manager) lookup(token string) (model.AuthToken, bool) {
	if v, ok := m.tokens.Get(token); ok {
		return v.(model.AuthToken), true
	}
	// Fall back to the persisted slot so a restart does not orphan the
	// stored sign-in.
	stored, err := m.store.AuthToken()
	if err != nil || stored == nil || stored.Token != token {
		return model.AuthToken{}, false
	}
	m.tokens.Set(token, *stored, stored.ExpiresAt.Sub(m.now()))
	m.activity.Set(token, m.now(), gocache.DefaultExpiration)
	return *stored, true
}

// CurrentUser resolves the signed-in user through the users collection.
func (m *Manager) CurrentUser() (*model.User, error) {
	return m.store.CurrentUser()
}

// UpdateStatsFor recomputes a user's denormalized test count and average
// score from the results collection and writes them back to the users
// collection only; currentUser reads through it.
func (m *Manager) UpdateStatsFor(userID string) error {
	us, err := m.agg.ForUser(userID)
	if err != nil {
		return err
	}
	user, err := m.store.GetUserByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("user %s not found", userID)
	}
	user.TestCount = us.TestCount
	user.AverageScore = us.AverageScore
	return m.store.UpdateUser(*user)
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
