package exam

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/pavelanni/olympiad/internal/apperr"
)

// Submission is the body of POST /exam-results. Answers and timing are
// kept raw so each field can be checked in order with its own error.
type Submission struct {
	ExamID      string          `json:"examId"`
	UserAnswers json.RawMessage `json:"userAnswers"`
	TimeTaken   json.RawMessage `json:"timeTaken"`
}

// AnswerEntry is one element of the array form of userAnswers.
type AnswerEntry struct {
	QuestionID string          `json:"questionId"`
	UserAnswer json.RawMessage `json:"userAnswer"`
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ParseAnswers decodes userAnswers given either as an array of
// {questionId, userAnswer} entries or as a {questionId: answer} object.
// Later entries for the same question replace earlier ones.
func ParseAnswers(raw json.RawMessage) (map[string]string, error) {
	if isAbsent(raw) {
		return nil, apperr.Validation("ErrAnswersRequired", "userAnswers is required")
	}

	trimmed := bytes.TrimSpace(raw)
	answers := make(map[string]string)
	switch trimmed[0] {
	case '[':
		var entries []json.RawMessage
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, apperr.Validation("ErrMalformedAnswers", "userAnswers: %v", err)
		}
		for i, rawEntry := range entries {
			if t := bytes.TrimSpace(rawEntry); len(t) == 0 || t[0] != '{' {
				return nil, apperr.Validation("ErrMalformedAnswers", "userAnswers[%d] is not an object", i)
			}
			var entry AnswerEntry
			if err := json.Unmarshal(rawEntry, &entry); err != nil {
				return nil, apperr.Validation("ErrMalformedAnswers", "userAnswers[%d]: %v", i, err)
			}
			if strings.TrimSpace(entry.QuestionID) == "" {
				return nil, apperr.Validation("ErrMalformedAnswers", "userAnswers[%d] has no questionId", i)
			}
			answers[entry.QuestionID] = answerText(entry.UserAnswer)
		}
	case '{':
		var byQuestion map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &byQuestion); err != nil {
			return nil, apperr.Validation("ErrMalformedAnswers", "userAnswers: %v", err)
		}
		for qid, v := range byQuestion {
			answers[qid] = answerText(v)
		}
	default:
		return nil, apperr.Validation("ErrMalformedAnswers", "userAnswers must be an array or an object")
	}
	return answers, nil
}

// answerText turns one raw answer value into the string the grader sees.
// Strings are unquoted, null becomes empty, anything else is kept as
// compact JSON so a boolean array reads like its serialized form.
func answerText(raw json.RawMessage) string {
	if isAbsent(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// ParseTimeTaken decodes the elapsed seconds of an attempt, rounded to a
// whole second.
func ParseTimeTaken(raw json.RawMessage) (int64, error) {
	if isAbsent(raw) {
		return 0, apperr.Validation("ErrTimeTakenRequired", "timeTaken is required")
	}
	var seconds float64
	if err := json.Unmarshal(raw, &seconds); err != nil {
		return 0, apperr.Validation("ErrInvalidTimeTaken", "timeTaken must be a number")
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0, apperr.Validation("ErrInvalidTimeTaken", "timeTaken must be non-negative")
	}
	if seconds > math.MaxInt32 {
		return 0, apperr.Validation("ErrInvalidTimeTaken", "timeTaken is out of range")
	}
	return int64(math.Round(seconds)), nil
}
