package store

import (
	"context"
	"fmt"

	"github.com/pavelanni/olympiad/internal/model"
)

// ExportResults builds export-ready results, oldest first. An empty slug
// exports every exam.
func (s *Store) ExportResults(ctx context.Context, examSlug string) ([]model.ExportedResult, error) {
	query := `SELECT ` + resultColumns + ` FROM exam_results`
	var args []any
	if examSlug != "" {
		query += ` WHERE exam_slug = ?`
		args = append(args, examSlug)
	}
	query += ` ORDER BY created_at, seq`

	results, err := s.queryResults(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	// Attempt numbers count per user and exam.
	type attemptKey struct {
		userID int64
		examID string
	}
	attempts := make(map[attemptKey]int)
	users := make(map[int64]*model.User)

	out := make([]model.ExportedResult, 0, len(results))
	for _, r := range results {
		u, ok := users[r.UserID]
		if !ok {
			u, err = s.GetUserByID(ctx, r.UserID)
			if err != nil {
				return nil, fmt.Errorf("get user %d: %w", r.UserID, err)
			}
			users[r.UserID] = u
		}

		k := attemptKey{r.UserID, r.ExamID}
		attempts[k]++

		er := model.ExportedResult{AttemptNumber: attempts[k], ExamResult: r}
		if u != nil {
			er.Username = u.Username
			er.DisplayName = u.DisplayName
		}
		out = append(out, er)
	}
	return out, nil
}
