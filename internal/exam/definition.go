package exam

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/pavelanni/olympiad/internal/apperr"
	"github.com/pavelanni/olympiad/internal/grading"
	"github.com/pavelanni/olympiad/internal/model"
	"github.com/pavelanni/olympiad/internal/validation"
)

var (
	reNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)
	reHyphens  = regexp.MustCompile(`-+`)
)

const maxSlugLen = 100

// Slugify turns free text into a [a-z0-9-] slug, dropping diacritics.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	// đ has no decomposition.
	s = strings.ReplaceAll(b.String(), "đ", "d")

	s = reNonAlnum.ReplaceAllString(s, "-")
	s = reHyphens.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLen {
		s = strings.Trim(s[:maxSlugLen], "-")
	}
	if s == "" {
		s = "exam"
	}
	return s
}

// PrepareDefinition normalizes an administrator-supplied exam and checks
// it: struct constraints first, then every question's answer-key
// invariants. Problems are reported as validation errors because the
// definition has not been stored yet.
func PrepareDefinition(e *model.Exam) error {
	e.Title = strings.TrimSpace(e.Title)
	e.Slug = strings.TrimSpace(e.Slug)
	if e.Slug == "" {
		e.Slug = Slugify(e.Title)
	} else {
		e.Slug = Slugify(e.Slug)
	}
	for i := range e.Questions {
		e.Questions[i].ID = strings.TrimSpace(e.Questions[i].ID)
	}

	if err := validation.Struct(e); err != nil {
		return err
	}
	if _, err := grading.Keys(*e); err != nil {
		var ie *grading.IntegrityError
		if errors.As(err, &ie) {
			return apperr.Validation("ErrInvalidExam", "%s", ie.Error())
		}
		return err
	}
	for _, q := range e.Questions {
		switch q.Kind {
		case model.KindSingleChoice, model.KindTrueFalse, model.KindShortAnswer:
		default:
			return apperr.Validation("ErrInvalidExam", "question %q: unknown kind %q", q.ID, q.Kind)
		}
	}
	return nil
}
