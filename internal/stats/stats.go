// Package stats derives dashboard metrics from the record store. All numbers
// are recomputed from scratch on every pass; the collections are small enough
// that scanning beats bookkeeping.
package stats

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/akamquiz/akamquiz/internal/model"
	"github.com/akamquiz/akamquiz/internal/store"
)

// PassThreshold is the score fraction counted as a passed test.
const PassThreshold = 0.70

// Aggregator computes snapshots from the record store.
type Aggregator struct {
	store         *store.Store
	questionTotal int
	now           func() time.Time
}

func NewAggregator(s *store.Store, questionTotal int) *Aggregator {
	return &Aggregator{store: s, questionTotal: questionTotal, now: time.Now}
}

// Compute scans the users, testResults and userRatings collections and
// derives a snapshot. A corrupt collection counts as empty; every ratio has
// a fallback of 0 when its input collection is empty.
func (a *Aggregator) Compute() (model.StatsSnapshot, error) {
	now := a.now()

	users, err := a.store.ListUsers()
	if err != nil && !errors.Is(err, model.ErrStoreCorrupt) {
		return model.StatsSnapshot{}, err
	}
	results, err := a.store.ListResults()
	if err != nil && !errors.Is(err, model.ErrStoreCorrupt) {
		return model.StatsSnapshot{}, err
	}
	ratings, err := a.store.ListRatings()
	if err != nil && !errors.Is(err, model.ErrStoreCorrupt) {
		return model.StatsSnapshot{}, err
	}

	snap := model.StatsSnapshot{
		TotalUsers:     len(users),
		TotalTests:     len(results),
		TotalRatings:   len(ratings),
		TotalQuestions: a.questionTotal,
		OnlineUsers:    onlineEstimate(now),
		UpdatedAt:      now,
	}

	if len(results) > 0 {
		passed := 0
		for _, r := range results {
			if r.TotalQuestions > 0 &&
				float64(r.Score)/float64(r.TotalQuestions) >= PassThreshold {
				passed++
			}
		}
		snap.SuccessRate = int(math.Round(100 * float64(passed) / float64(len(results))))
	}

	if len(ratings) > 0 {
		sum := 0.0
		for _, r := range ratings {
			sum += r.Value
		}
		snap.AverageUserRating = math.Round(sum/float64(len(ratings))*10) / 10
	}

	y, m, d := now.Date()
	sameDay := func(t time.Time) bool {
		ty, tm, td := t.In(now.Location()).Date()
		return ty == y && tm == m && td == d
	}
	for _, u := range users {
		if sameDay(u.RegisteredAt) {
			snap.NewUsersToday++
		}
	}
	for _, r := range results {
		if sameDay(r.CompletedAt) {
			snap.TestsToday++
		}
	}

	cutoff := now.Add(-24 * time.Hour)
	active := make(map[string]bool)
	for _, u := range users {
		if u.LastLoginAt.After(cutoff) {
			active[u.ID] = true
		}
	}
	for _, r := range results {
		if r.CompletedAt.After(cutoff) {
			active[r.UserID] = true
		}
	}
	snap.ActiveUsers = len(active)

	return snap, nil
}

// ForUser recomputes one user's denormalized figures from the results
// collection. AverageScore is the mean percentage across finished tests.
func (a *Aggregator) ForUser(userID string) (model.UserStats, error) {
	results, err := a.store.ResultsForUser(userID)
	if err != nil {
		if errors.Is(err, model.ErrStoreCorrupt) {
			return model.UserStats{}, nil
		}
		return model.UserStats{}, err
	}
	us := model.UserStats{TestCount: len(results)}
	if len(results) == 0 {
		return us, nil
	}
	sum := 0.0
	for _, r := range results {
		if r.TotalQuestions > 0 {
			sum += 100 * float64(r.Score) / float64(r.TotalQuestions)
		}
	}
	us.AverageScore = math.Round(sum/float64(len(results))*10) / 10
	return us, nil
}

// onlineEstimate is a synthetic stand-in: the store records nothing that
// would let a single-process deployment count live visitors, so this returns
// a bounded 1..5 figure that drifts with wall time. Do not read meaning
// into it.
func onlineEstimate(now time.Time) int {
	variation := math.Sin(float64(now.UnixMilli())/60000*math.Pi) * 2
	n := int(math.Round(1 + variation + rand.Float64()))
	if n < 1 {
		return 1
	}
	if n > 5 {
		return 5
	}
	return n
}
