package grading

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/pavelanni/olympiad/internal/model"
)

// Key is the canonical answer of one question. The set of implementations
// is closed: ChoiceKey, TextKey, StatementKey and UnknownKey.
type Key interface {
	isKey()
}

// ChoiceKey is the correct option of a single-choice question.
type ChoiceKey struct{ Correct string }

// TextKey is the expected text of a short-answer question.
type TextKey struct{ Correct string }

// StatementKey holds the truth value of each true/false statement.
type StatementKey struct {
	Flags [model.TrueFalseStatements]bool
}

// UnknownKey stands in for a question kind the grader does not know.
type UnknownKey struct{ Kind model.QuestionKind }

func (ChoiceKey) isKey()    {}
func (TextKey) isKey()      {}
func (StatementKey) isKey() {}
func (UnknownKey) isKey()   {}

// IntegrityError reports a stored question that violates its invariants.
// It signals corrupted content, not a bad submission.
type IntegrityError struct {
	QuestionID string
	Reason     string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("question %q: %s", e.QuestionID, e.Reason)
}

// Normalize trims surrounding whitespace and applies NFC normalization and
// Unicode case folding.
func Normalize(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// KeyOf extracts the answer key of q, checking the invariants of its kind.
func KeyOf(q model.Question) (Key, error) {
	switch q.Kind {
	case model.KindSingleChoice:
		if len(q.Options) < 2 {
			return nil, &IntegrityError{QuestionID: q.ID, Reason: "single-choice question needs at least two options"}
		}
		if strings.TrimSpace(q.CorrectAnswer) == "" {
			return nil, &IntegrityError{QuestionID: q.ID, Reason: "missing correct answer"}
		}
		want := Normalize(q.CorrectAnswer)
		for _, opt := range q.Options {
			if Normalize(opt) == want {
				return ChoiceKey{Correct: q.CorrectAnswer}, nil
			}
		}
		return nil, &IntegrityError{QuestionID: q.ID, Reason: "correct answer is not one of the options"}
	case model.KindShortAnswer:
		if strings.TrimSpace(q.CorrectAnswer) == "" {
			return nil, &IntegrityError{QuestionID: q.ID, Reason: "missing correct answer"}
		}
		return TextKey{Correct: q.CorrectAnswer}, nil
	case model.KindTrueFalse:
		if len(q.Statements) != model.TrueFalseStatements {
			return nil, &IntegrityError{
				QuestionID: q.ID,
				Reason:     fmt.Sprintf("true/false question needs %d statements, has %d", model.TrueFalseStatements, len(q.Statements)),
			}
		}
		var k StatementKey
		for i, st := range q.Statements {
			k.Flags[i] = st.IsTrue
		}
		return k, nil
	default:
		return UnknownKey{Kind: q.Kind}, nil
	}
}

// CanonicalAnswer renders a key the way a correct submission would look.
// An UnknownKey has no correct answer, so its result records show an empty
// string next to a false verdict.
func CanonicalAnswer(k Key) string {
	switch k := k.(type) {
	case ChoiceKey:
		return k.Correct
	case TextKey:
		return k.Correct
	case StatementKey:
		return FormatStatements(k.Flags)
	case UnknownKey:
		return ""
	}
	return ""
}

// ParseStatements decodes a serialized array of exactly four booleans.
// Every element must be a literal true or false; null is rejected.
func ParseStatements(s string) ([model.TrueFalseStatements]bool, bool) {
	var out [model.TrueFalseStatements]bool
	var flags []*bool
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &flags); err != nil {
		return out, false
	}
	if len(flags) != model.TrueFalseStatements {
		return out, false
	}
	for i, f := range flags {
		if f == nil {
			return out, false
		}
		out[i] = *f
	}
	return out, true
}

// FormatStatements serializes statement flags as a JSON array.
func FormatStatements(flags [model.TrueFalseStatements]bool) string {
	b, _ := json.Marshal(flags[:])
	return string(b)
}
