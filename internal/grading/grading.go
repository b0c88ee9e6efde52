// Package grading scores a submission against an exam definition. All
// functions are pure: no I/O and deterministic output for equal input.
package grading

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pavelanni/olympiad/internal/model"
)

// MaxScore is the score of a fully correct attempt.
const MaxScore = 10

// Outcome is the graded form of one submission.
type Outcome struct {
	Answers   []model.AnswerRecord
	Total     int
	Correct   int
	Incorrect int
	Score     float64
}

// Grade produces one AnswerRecord per exam question, in exam order, plus the
// aggregate counts and score. Missing, empty or malformed answers are graded
// incorrect. The only error is an *IntegrityError for a question whose
// stored definition is invalid.
func Grade(exam model.Exam, answers map[string]string) (Outcome, error) {
	keys, err := Keys(exam)
	if err != nil {
		return Outcome{}, err
	}

	records := make([]model.AnswerRecord, 0, len(exam.Questions))
	correct := 0
	for i, q := range exam.Questions {
		answer := answers[q.ID]
		ok := Verdict(keys[i], answer)
		if ok {
			correct++
		}
		records = append(records, model.AnswerRecord{
			QuestionID:    q.ID,
			UserAnswer:    answer,
			IsCorrect:     ok,
			CorrectAnswer: CanonicalAnswer(keys[i]),
			Explanation:   q.Explanation,
		})
	}

	total := len(exam.Questions)
	return Outcome{
		Answers:   records,
		Total:     total,
		Correct:   correct,
		Incorrect: total - correct,
		Score:     Score(correct, total),
	}, nil
}

// Keys extracts the answer key of every question, failing on the first
// invalid definition or duplicated question ID.
func Keys(exam model.Exam) ([]Key, error) {
	keys := make([]Key, 0, len(exam.Questions))
	seen := make(map[string]struct{}, len(exam.Questions))
	for _, q := range exam.Questions {
		if strings.TrimSpace(q.ID) == "" {
			return nil, &IntegrityError{QuestionID: q.ID, Reason: "missing question id"}
		}
		if _, dup := seen[q.ID]; dup {
			return nil, &IntegrityError{QuestionID: q.ID, Reason: "duplicate question id"}
		}
		seen[q.ID] = struct{}{}

		k, err := KeyOf(q)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Verdict grades a single raw answer against k.
func Verdict(k Key, answer string) bool {
	if strings.TrimSpace(answer) == "" {
		return false
	}
	switch k := k.(type) {
	case ChoiceKey:
		return Normalize(answer) == Normalize(k.Correct)
	case TextKey:
		return Normalize(answer) == Normalize(k.Correct)
	case StatementKey:
		got, ok := ParseStatements(answer)
		return ok && got == k.Flags
	case UnknownKey:
		return false
	}
	// Key is sealed; only a nil key reaches here.
	return false
}

// Score returns correct/total scaled to MaxScore and rounded to two
// decimals. A zero total scores 0.
func Score(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return decimal.NewFromInt(int64(correct)).
		Mul(decimal.NewFromInt(MaxScore)).
		Div(decimal.NewFromInt(int64(total))).
		Round(2).
		InexactFloat64()
}
