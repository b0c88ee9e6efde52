package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/olympiad/internal/model"
)

const examColumns = `id, title, slug, duration_minutes, category, questions, published, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExam(row rowScanner) (*model.Exam, error) {
	var e model.Exam
	var questions string
	err := row.Scan(&e.ID, &e.Title, &e.Slug, &e.DurationMinutes, &e.Category, &questions, &e.Published, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(questions), &e.Questions); err != nil {
		return nil, fmt.Errorf("decode questions of exam %s: %w", e.ID, err)
	}
	return &e, nil
}

// SaveExam inserts e, or replaces the stored exam with the same ID. A new
// ID is generated when e.ID is empty. The saved exam is returned.
func (s *Store) SaveExam(ctx context.Context, e model.Exam) (*model.Exam, error) {
	return saveExam(ctx, s.db, e)
}

// ImportExams saves exams and records hash for the file name in a single
// transaction. An exam without an ID takes over the ID and creation time of
// the stored exam with the same slug. On error nothing is written.
func (s *Store) ImportExams(ctx context.Context, name, hash string, exams []model.Exam) ([]model.Exam, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	saved := make([]model.Exam, 0, len(exams))
	for _, e := range exams {
		if e.ID == "" {
			existing, err := scanExam(tx.QueryRowContext(ctx, `SELECT `+examColumns+` FROM exams WHERE slug = ?`, e.Slug))
			switch {
			case err == nil:
				e.ID = existing.ID
				e.CreatedAt = existing.CreatedAt
			case !errors.Is(err, sql.ErrNoRows):
				return nil, fmt.Errorf("look up exam %q: %w", e.Slug, err)
			}
		}
		out, err := saveExam(ctx, tx, e)
		if err != nil {
			return nil, err
		}
		saved = append(saved, *out)
	}
	if err := setImportedFileHash(ctx, tx, name, hash); err != nil {
		return nil, fmt.Errorf("record import for %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit import: %w", err)
	}
	return saved, nil
}

func saveExam(ctx context.Context, db execer, e model.Exam) (*model.Exam, error) {
	questions, err := json.Marshal(e.Questions)
	if err != nil {
		return nil, fmt.Errorf("encode questions: %w", err)
	}

	now := time.Now().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	_, err = db.ExecContext(ctx,
		`INSERT INTO exams (`+examColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			slug = excluded.slug,
			duration_minutes = excluded.duration_minutes,
			category = excluded.category,
			questions = excluded.questions,
			published = excluded.published,
			updated_at = excluded.updated_at`,
		e.ID, e.Title, e.Slug, e.DurationMinutes, e.Category, string(questions), e.Published, e.CreatedAt, e.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("exam slug %q: %w", e.Slug, ErrConflict)
	}
	if err != nil {
		slog.Error("failed to save exam", "id", e.ID, "slug", e.Slug, "error", err)
		return nil, err
	}
	slog.Info("saved exam", "id", e.ID, "slug", e.Slug, "questions", len(e.Questions))
	return &e, nil
}

// GetExam returns an exam by ID.
func (s *Store) GetExam(ctx context.Context, id string) (*model.Exam, error) {
	e, err := scanExam(s.db.QueryRowContext(ctx, `SELECT `+examColumns+` FROM exams WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// GetExamBySlug returns an exam by its URL slug.
func (s *Store) GetExamBySlug(ctx context.Context, slug string) (*model.Exam, error) {
	e, err := scanExam(s.db.QueryRowContext(ctx, `SELECT `+examColumns+` FROM exams WHERE slug = ?`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// ListExams returns exam summaries ordered by title. Unpublished exams are
// included only when includeDrafts is set.
func (s *Store) ListExams(ctx context.Context, includeDrafts bool) ([]model.ExamSummary, error) {
	query := `SELECT ` + examColumns + ` FROM exams`
	if !includeDrafts {
		query += ` WHERE published = 1`
	}
	query += ` ORDER BY title, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ExamSummary
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, model.ExamSummary{
			ID:              e.ID,
			Title:           e.Title,
			Slug:            e.Slug,
			DurationMinutes: e.DurationMinutes,
			Category:        e.Category,
			QuestionCount:   len(e.Questions),
			Published:       e.Published,
		})
	}
	return out, rows.Err()
}

// DeleteExam removes an exam definition. Results that reference it are kept.
func (s *Store) DeleteExam(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM exams WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	slog.Info("deleted exam", "id", id)
	return nil
}

// ExamCount returns the number of stored exams.
func (s *Store) ExamCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exams`).Scan(&count)
	return count, err
}
