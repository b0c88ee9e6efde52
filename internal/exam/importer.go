package exam

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavelanni/olympiad/internal/apperr"
	"github.com/pavelanni/olympiad/internal/model"
	"github.com/pavelanni/olympiad/internal/store"
)

// ImportStore is the persistence Import needs.
type ImportStore interface {
	GetImportedFileHash(ctx context.Context, path string) (string, error)
	ImportExams(ctx context.Context, name, hash string, exams []model.Exam) ([]model.Exam, error)
}

// ImportReport summarizes one imported file.
type ImportReport struct {
	Name      string   `json:"name"`
	Unchanged bool     `json:"unchanged"`
	Slugs     []string `json:"slugs"`
}

// Import loads exam definitions from data, which holds one exam object or
// an array of them. Files are keyed by name and skipped when their sha256
// matches the last import. An exam without an ID replaces the stored exam
// with the same slug. The file is written in one transaction: a conflict
// or invalid exam anywhere in it leaves the store unchanged.
func Import(ctx context.Context, s ImportStore, name string, data []byte) (*ImportReport, error) {
	report := &ImportReport{Name: name}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	stored, err := s.GetImportedFileHash(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("check import status for %s: %w", name, err)
	}
	if stored == hash {
		slog.Info("exam file unchanged, skipping", "name", name)
		report.Unchanged = true
		return report, nil
	}

	exams, err := decodeExams(data)
	if err != nil {
		return nil, apperr.Validation("ErrInvalidExam", "%s: %v", name, err)
	}
	for i := range exams {
		if err := PrepareDefinition(&exams[i]); err != nil {
			return nil, fmt.Errorf("%s: exam %d: %w", name, i, err)
		}
	}

	saved, err := s.ImportExams(ctx, name, hash, exams)
	if errors.Is(err, store.ErrConflict) {
		return nil, apperr.Conflict("ErrConflict", "%s: %v", name, err)
	}
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", name, err)
	}
	for _, e := range saved {
		report.Slugs = append(report.Slugs, e.Slug)
	}
	slog.Info("imported exams", "name", name, "count", len(report.Slugs))
	return report, nil
}

func decodeExams(data []byte) ([]model.Exam, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var e model.Exam
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return []model.Exam{e}, nil
	}
	var exams []model.Exam
	if err := json.Unmarshal(data, &exams); err != nil {
		return nil, err
	}
	if len(exams) == 0 {
		return nil, errors.New("no exams in file")
	}
	return exams, nil
}
