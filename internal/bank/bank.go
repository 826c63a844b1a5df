// Package bank holds the static question catalog, keyed by subject and
// difficulty. The catalog is loaded once at startup and read-only afterwards.
package bank

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sort"

	"github.com/akamquiz/akamquiz/internal/model"
)

// MinQuestions is the smallest question count a test may be started with.
const MinQuestions = 5

type key struct {
	subject    string
	difficulty model.Difficulty
}

type Bank struct {
	pools    map[key][]model.Question
	subjects []string
	total    int
}

// New builds a bank from an in-memory question list. Duplicate ids and
// malformed questions are rejected.
func New(questions []model.Question) (*Bank, error) {
	b := &Bank{pools: make(map[key][]model.Question)}
	seen := make(map[string]bool, len(questions))
	subjects := make(map[string]bool)

	for _, q := range questions {
		if q.ID == "" {
			return nil, fmt.Errorf("question %q: missing id", q.Text)
		}
		if seen[q.ID] {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		if !q.Difficulty.Valid() {
			return nil, fmt.Errorf("question %s: unknown difficulty %q", q.ID, q.Difficulty)
		}
		if len(q.Options) < 2 {
			return nil, fmt.Errorf("question %s: needs at least 2 options", q.ID)
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			return nil, fmt.Errorf("question %s: correct answer index %d out of range", q.ID, q.CorrectAnswer)
		}
		seen[q.ID] = true
		subjects[q.Subject] = true
		k := key{q.Subject, q.Difficulty}
		b.pools[k] = append(b.pools[k], q)
		b.total++
	}

	for s := range subjects {
		b.subjects = append(b.subjects, s)
	}
	sort.Strings(b.subjects)
	return b, nil
}

// Load reads question JSON files and builds the bank.
func Load(paths []string) (*Bank, error) {
	var questions []model.Question
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var qs []model.Question
		if err := json.Unmarshal(data, &qs); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		questions = append(questions, qs...)
		slog.Info("loaded questions", "path", path, "count", len(qs))
	}
	return New(questions)
}

// Count returns the total number of questions in the bank.
func (b *Bank) Count() int { return b.total }

// Subjects returns all subject tags, sorted.
func (b *Bank) Subjects() []string {
	out := make([]string, len(b.subjects))
	copy(out, b.subjects)
	return out
}

// Available returns how many questions exist for the given subjects at the
// given difficulty.
func (b *Bank) Available(subjects []string, difficulty model.Difficulty) int {
	n := 0
	for _, s := range subjects {
		n += len(b.pools[key{s, difficulty}])
	}
	return n
}

// Select materializes a question list for a session: each subject contributes
// up to ceil(count/len(subjects)) randomly chosen questions, never reusing an
// id, and the concatenation is shuffled and truncated to count. The result
// may be shorter than count when the pools run dry; the caller signals that
// shortfall to its own caller.
func (b *Bank) Select(subjects []string, count int, difficulty model.Difficulty) []model.Question {
	if len(subjects) == 0 || count <= 0 {
		return nil
	}
	quota := (count + len(subjects) - 1) / len(subjects)

	used := make(map[string]bool)
	var selected []model.Question
	for _, subject := range subjects {
		pool := b.pools[key{subject, difficulty}]
		shuffled := make([]model.Question, len(pool))
		copy(shuffled, pool)
		rand.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		taken := 0
		for _, q := range shuffled {
			if taken == quota {
				break
			}
			if used[q.ID] {
				continue
			}
			used[q.ID] = true
			selected = append(selected, q)
			taken++
		}
	}

	rand.Shuffle(len(selected), func(i, j int) {
		selected[i], selected[j] = selected[j], selected[i]
	})
	if len(selected) > count {
		selected = selected[:count]
	}
	return selected
}
