package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/olympiad/internal/model"
)

const resultColumns = `id, user_id, exam_id, exam_title, exam_slug, score, total_questions,
	correct_count, incorrect_count, time_taken, answers, created_at`

func scanResult(row rowScanner) (*model.ExamResult, error) {
	var r model.ExamResult
	var answers string
	err := row.Scan(&r.ID, &r.UserID, &r.ExamID, &r.ExamTitle, &r.ExamSlug, &r.Score, &r.TotalQuestions,
		&r.CorrectAnswersCount, &r.IncorrectAnswersCount, &r.TimeTaken, &answers, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
		return nil, fmt.Errorf("decode answers of result %s: %w", r.ID, err)
	}
	return &r, nil
}

// CreateResult persists r in a single insert, assigning its ID and
// creation time, and returns the stored record.
func (s *Store) CreateResult(ctx context.Context, r model.ExamResult) (*model.ExamResult, error) {
	if r.Answers == nil {
		r.Answers = []model.AnswerRecord{}
	}
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}
	r.ID = uuid.NewString()
	r.CreatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO exam_results (`+resultColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.ExamID, r.ExamTitle, r.ExamSlug, r.Score, r.TotalQuestions,
		r.CorrectAnswersCount, r.IncorrectAnswersCount, r.TimeTaken, string(answers), r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetResult returns a result by ID.
func (s *Store) GetResult(ctx context.Context, id string) (*model.ExamResult, error) {
	r, err := scanResult(s.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM exam_results WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ListResultsByUser returns a user's results, newest first.
func (s *Store) ListResultsByUser(ctx context.Context, userID int64) ([]model.ExamResult, error) {
	return s.queryResults(ctx,
		`SELECT `+resultColumns+` FROM exam_results WHERE user_id = ? ORDER BY created_at DESC, seq DESC`, userID)
}

// ResultCount returns the number of stored results.
func (s *Store) ResultCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exam_results`).Scan(&count)
	return count, err
}

func (s *Store) queryResults(ctx context.Context, query string, args ...any) ([]model.ExamResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ExamResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
