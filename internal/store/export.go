package store

import (
	"fmt"
	"time"

	"github.com/akamquiz/akamquiz/internal/model"
)

// ExportResults builds an export of every user's test results, grouped by
// user in registration order.
func (s *Store) ExportResults() (*model.ResultsExport, error) {
	users, err := s.ListUsers()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	results, err := s.ListResults()
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	byUser := make(map[string][]model.TestResult)
	for _, r := range results {
		byUser[r.UserID] = append(byUser[r.UserID], r)
	}

	export := &model.ResultsExport{
		ExportedAt: time.Now(),
		TotalUsers: len(users),
		TotalTests: len(results),
	}
	for _, u := range users {
		export.Users = append(export.Users, model.UserResultExport{
			UserID:       u.ID,
			Username:     u.Username,
			DisplayName:  u.DisplayName,
			TestCount:    u.TestCount,
			AverageScore: u.AverageScore,
			Results:      byUser[u.ID],
		})
	}
	return export, nil
}
