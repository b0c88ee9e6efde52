package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a regular learner.
	UserRoleStudent UserRole = "student"
	// UserRoleAdmin manages content and users and may read any result.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IsAdmin reports whether u has the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == UserRoleAdmin
}

// AuthSession represents an authentication session. ID is the sha256 of
// the bearer token, never the token itself.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Category groups exams by physics area.
type Category string

// Accepted exam categories.
const (
	CategoryMechanics        Category = "mechanics"
	CategoryThermodynamics   Category = "thermodynamics"
	CategoryElectromagnetism Category = "electromagnetism"
	CategoryOptics           Category = "optics"
	CategoryModernPhysics    Category = "modern_physics"
	CategoryMixed            Category = "mixed"
)

// Categories lists every accepted exam category.
var Categories = []Category{
	CategoryMechanics,
	CategoryThermodynamics,
	CategoryElectromagnetism,
	CategoryOptics,
	CategoryModernPhysics,
	CategoryMixed,
}

// Valid reports whether c is one of Categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// QuestionKind tells the grader how to compare a submitted answer.
type QuestionKind string

const (
	// KindSingleChoice is a multiple-choice question with one correct option.
	KindSingleChoice QuestionKind = "single_choice"
	// KindTrueFalse bundles four independent true/false statements.
	KindTrueFalse QuestionKind = "true_false"
	// KindShortAnswer expects a short free-text answer.
	KindShortAnswer QuestionKind = "short_answer"
)

// TrueFalseStatements is the number of statements in a true/false question.
const TrueFalseStatements = 4

// Statement is one sub-statement of a true/false question.
type Statement struct {
	Text   string `json:"text"`
	IsTrue bool   `json:"isTrue"`
}

// Question is an assessable item embedded in an exam.
type Question struct {
	ID            string       `json:"id" validate:"required"`
	Kind          QuestionKind `json:"kind" validate:"required"`
	Body          string       `json:"body" validate:"required"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correctAnswer,omitempty"`
	Statements    []Statement  `json:"statements,omitempty"`
	Explanation   string       `json:"explanation,omitempty"`
}

// Exam is a timed assessment with an ordered question list.
type Exam struct {
	ID              string     `json:"id"`
	Title           string     `json:"title" validate:"required"`
	Slug            string     `json:"slug"`
	DurationMinutes int        `json:"durationMinutes" validate:"gt=0"`
	Category        Category   `json:"category" validate:"required,category"`
	Questions       []Question `json:"questions" validate:"required,min=1,dive"`
	Published       bool       `json:"published"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// DurationSeconds returns the planned attempt length.
func (e Exam) DurationSeconds() int64 {
	return int64(e.DurationMinutes) * 60
}

// PublicQuestion is a question as shown before submission: no answer keys.
type PublicQuestion struct {
	ID         string       `json:"id"`
	Kind       QuestionKind `json:"kind"`
	Body       string       `json:"body"`
	Options    []string     `json:"options,omitempty"`
	Statements []string     `json:"statements,omitempty"`
}

// PublicExam is the exam definition served to test takers.
type PublicExam struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Slug            string           `json:"slug"`
	DurationMinutes int              `json:"durationMinutes"`
	Category        Category         `json:"category"`
	Questions       []PublicQuestion `json:"questions"`
}

// Public strips canonical answers, statement truth values and explanations.
func (e Exam) Public() PublicExam {
	pe := PublicExam{
		ID:              e.ID,
		Title:           e.Title,
		Slug:            e.Slug,
		DurationMinutes: e.DurationMinutes,
		Category:        e.Category,
		Questions:       make([]PublicQuestion, 0, len(e.Questions)),
	}
	for _, q := range e.Questions {
		pq := PublicQuestion{
			ID:      q.ID,
			Kind:    q.Kind,
			Body:    q.Body,
			Options: append([]string(nil), q.Options...),
		}
		for _, st := range q.Statements {
			pq.Statements = append(pq.Statements, st.Text)
		}
		pe.Questions = append(pe.Questions, pq)
	}
	return pe
}

// ExamSummary is a list entry for the exam catalogue.
type ExamSummary struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Slug            string   `json:"slug"`
	DurationMinutes int      `json:"durationMinutes"`
	Category        Category `json:"category"`
	QuestionCount   int      `json:"questionCount"`
	Published       bool     `json:"published"`
}

// AnswerRecord is the graded outcome for one question of an attempt.
// CorrectAnswer is empty for a question kind the grader does not know;
// such answers are always recorded as incorrect.
type AnswerRecord struct {
	QuestionID    string `json:"questionId"`
	UserAnswer    string `json:"userAnswer"`
	IsCorrect     bool   `json:"isCorrect"`
	CorrectAnswer string `json:"correctAnswer"`
	Explanation   string `json:"explanation,omitempty"`
}

// ExamResult is the persisted outcome of one submission. It is never
// updated after creation.
type ExamResult struct {
	ID                    string         `json:"id"`
	UserID                int64          `json:"userId"`
	ExamID                string         `json:"examId"`
	ExamTitle             string         `json:"examTitle"`
	ExamSlug              string         `json:"examSlug"`
	Score                 float64        `json:"score"`
	TotalQuestions        int            `json:"totalQuestions"`
	CorrectAnswersCount   int            `json:"correctAnswersCount"`
	IncorrectAnswersCount int            `json:"incorrectAnswersCount"`
	TimeTaken             int64          `json:"timeTaken"`
	Answers               []AnswerRecord `json:"userAnswers"`
	CreatedAt             time.Time      `json:"createdAt"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	Lang          string // default UI language for messages
	DevMode       bool   // expose internal error details in responses
	SecureCookies bool   // set Secure flag on the session cookie
	SessionTTL    time.Duration
}

// SubmittedAnswer is one answer in a submission payload.
type SubmittedAnswer struct {
	QuestionID string `json:"questionId"`
	UserAnswer string `json:"userAnswer"`
}

// SubmissionPayload is what a client sends to POST /exam-results.
type SubmissionPayload struct {
	ExamID      string            `json:"examId"`
	UserAnswers []SubmittedAnswer `json:"userAnswers"`
	TimeTaken   int64             `json:"timeTaken"`
}
