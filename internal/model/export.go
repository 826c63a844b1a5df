package model

import "time"

// ResultsExport is the top-level JSON structure for the export subcommand.
type ResultsExport struct {
	ExportedAt time.Time          `json:"exported_at"`
	TotalUsers int                `json:"total_users"`
	TotalTests int                `json:"total_tests"`
	Users      []UserResultExport `json:"users"`
}

// UserResultExport holds one user's results for export.
type UserResultExport struct {
	UserID       string       `json:"user_id"`
	Username     string       `json:"username"`
	DisplayName  string       `json:"display_name"`
	TestCount    int          `json:"test_count"`
	AverageScore float64      `json:"average_score"`
	Results      []TestResult `json:"results"`
}
