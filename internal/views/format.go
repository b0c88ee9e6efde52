// Package views holds the server-rendered HTML pages. The .templ sources
// are compiled with `templ generate`; the generated files are committed.
package views

import (
	"fmt"
	"strconv"

	"github.com/pavelanni/olympiad/internal/model"
)

func scoreData(res model.ExamResult) map[string]any {
	return map[string]any{
		"Score":   strconv.FormatFloat(res.Score, 'f', 2, 64),
		"Correct": res.CorrectAnswersCount,
		"Total":   res.TotalQuestions,
	}
}

// formatDuration renders whole seconds as m:ss, or h:mm:ss past an hour.
func formatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, seconds/60%60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
