// Package prompts renders the system prompts used to draft answer
// explanations.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/olympiad/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var questionTagRegex = regexp.MustCompile(`(?i)</?\s*(question|system-instructions)\b[^>]*>`)

const maxBodyRunes = 4000

// Style selects how long and how formal a drafted explanation is.
type Style string

const (
	// StyleConcise asks for a short justification of the key.
	StyleConcise Style = "concise"
	// StyleDetailed asks for a worked solution.
	StyleDetailed Style = "detailed"
)

var validStyles = map[Style]bool{
	StyleConcise:  true,
	StyleDetailed: true,
}

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Style]*template.Template
)

// IsValidStyle checks if a style name is known.
func IsValidStyle(s string) bool {
	return validStyles[Style(s)]
}

// ExplainData holds template data for explanation prompts.
type ExplainData struct {
	Category      model.Category
	Lang          string
	Kind          model.QuestionKind
	Body          string
	Options       []string
	Statements    []model.Statement
	CorrectAnswer string
}

// Load parses the embedded templates. It is safe to call more than once.
func Load() error {
	loadOnce.Do(func() {
		templates = make(map[Style]*template.Template)
		for s := range validStyles {
			name := "templates/explain_" + string(s) + ".txt"
			content, err := templateFS.ReadFile(name)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", name, err)
				return
			}
			tmpl, err := template.New(string(s)).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", name, err)
				return
			}
			templates[s] = tmpl
		}
	})
	return loadErr
}

// BuildExplainPrompt renders the prompt for one question.
func BuildExplainPrompt(style Style, category model.Category, lang string, q model.Question) (string, error) {
	if err := Load(); err != nil {
		return "", err
	}
	tmpl, ok := templates[style]
	if !ok {
		return "", errors.New("invalid prompt style: " + string(style))
	}
	if lang == "" {
		lang = "en"
	}

	data := ExplainData{
		Category:   category,
		Lang:       lang,
		Kind:       q.Kind,
		Body:       sanitize(q.Body),
		Options:    q.Options,
		Statements: q.Statements,
	}
	if q.Kind != model.KindTrueFalse {
		data.CorrectAnswer = strings.TrimSpace(q.CorrectAnswer)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitize strips tags that could close the question block and caps length.
func sanitize(body string) string {
	body = questionTagRegex.ReplaceAllString(body, "")
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) > maxBodyRunes {
		runes := []rune(body)
		body = string(runes[:maxBodyRunes]) + "\n[truncated]"
	}
	return body
}
