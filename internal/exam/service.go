// Package exam implements the server side of the exam lifecycle: serving
// exam definitions without answer keys, guarding and grading submissions,
// and reading back stored results.
package exam

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/pavelanni/olympiad/internal/apperr"
	"github.com/pavelanni/olympiad/internal/grading"
	"github.com/pavelanni/olympiad/internal/model"
	"github.com/pavelanni/olympiad/internal/store"
)

// Store is the persistence the service depends on.
type Store interface {
	GetExam(ctx context.Context, id string) (*model.Exam, error)
	GetExamBySlug(ctx context.Context, slug string) (*model.Exam, error)
	ListExams(ctx context.Context, includeDrafts bool) ([]model.ExamSummary, error)
	CreateResult(ctx context.Context, r model.ExamResult) (*model.ExamResult, error)
	GetResult(ctx context.Context, id string) (*model.ExamResult, error)
	ListResultsByUser(ctx context.Context, userID int64) ([]model.ExamResult, error)
}

// Service holds the exam lifecycle operations.
type Service struct {
	store Store
}

// NewService creates a Service backed by s.
func NewService(s Store) *Service {
	return &Service{store: s}
}

// ListExams returns the catalogue visible to user. Admins also see drafts.
func (s *Service) ListExams(ctx context.Context, user *model.User) ([]model.ExamSummary, error) {
	exams, err := s.store.ListExams(ctx, user.IsAdmin())
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if exams == nil {
		exams = []model.ExamSummary{}
	}
	return exams, nil
}

// PublicExam returns the exam with the given slug, stripped of answer keys.
func (s *Service) PublicExam(ctx context.Context, user *model.User, slug string) (*model.PublicExam, error) {
	e, err := s.store.GetExamBySlug(ctx, slug)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !e.Published && !user.IsAdmin()) {
		return nil, apperr.NotFound("ErrExamNotFound", "exam %q", slug)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	pe := e.Public()
	return &pe, nil
}

// Submit validates a submission, grades it against the stored exam and
// persists exactly one result. Checks run in order: exam reference,
// answers shape, timing. Repeated submissions each create a new result.
func (s *Service) Submit(ctx context.Context, user *model.User, sub Submission) (*model.ExamResult, error) {
	if user == nil {
		return nil, apperr.Unauthenticated()
	}

	examID := strings.TrimSpace(sub.ExamID)
	if examID == "" {
		return nil, apperr.Validation("ErrExamIDRequired", "examId is required")
	}
	e, err := s.store.GetExam(ctx, examID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !e.Published && !user.IsAdmin()) {
		return nil, apperr.NotFound("ErrExamNotFound", "exam %q", examID)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	answers, err := ParseAnswers(sub.UserAnswers)
	if err != nil {
		return nil, err
	}
	timeTaken, err := ParseTimeTaken(sub.TimeTaken)
	if err != nil {
		return nil, err
	}

	out, err := grading.Grade(*e, answers)
	if err != nil {
		var ie *grading.IntegrityError
		if errors.As(err, &ie) {
			slog.Error("stored exam failed integrity check",
				"kind", apperr.KindDataIntegrity.String(),
				"exam_id", e.ID,
				"question_id", ie.QuestionID,
				"reason", ie.Reason,
			)
			return nil, apperr.Integrity(err)
		}
		return nil, apperr.Internal(err)
	}

	result, err := s.store.CreateResult(ctx, Materialize(user.ID, *e, out, timeTaken))
	if err != nil {
		slog.Error("failed to store exam result", "exam_id", e.ID, "user_id", user.ID, "error", err)
		return nil, apperr.Internal(err)
	}

	slog.Info("graded submission",
		"result_id", result.ID,
		"exam_id", e.ID,
		"user_id", user.ID,
		"score", result.Score,
		"correct", result.CorrectAnswersCount,
		"total", result.TotalQuestions,
		"time_taken", result.TimeTaken,
	)
	return result, nil
}

// Result returns one result. Only its owner or an admin may read it.
func (s *Service) Result(ctx context.Context, user *model.User, id string) (*model.ExamResult, error) {
	if user == nil {
		return nil, apperr.Unauthenticated()
	}
	r, err := s.store.GetResult(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("ErrResultNotFound", "result %q", id)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if r.UserID != user.ID && !user.IsAdmin() {
		return nil, apperr.Forbidden()
	}
	return r, nil
}

// MyResults returns the caller's results, newest first.
func (s *Service) MyResults(ctx context.Context, user *model.User) ([]model.ExamResult, error) {
	if user == nil {
		return nil, apperr.Unauthenticated()
	}
	results, err := s.store.ListResultsByUser(ctx, user.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if results == nil {
		results = []model.ExamResult{}
	}
	return results, nil
}
