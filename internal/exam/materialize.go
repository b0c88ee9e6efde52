package exam

import (
	"github.com/pavelanni/olympiad/internal/grading"
	"github.com/pavelanni/olympiad/internal/model"
)

// Materialize builds the result record for a graded attempt. Exam title and
// slug are copied so the record stays displayable after the exam changes
// or is deleted.
func Materialize(userID int64, exam model.Exam, out grading.Outcome, timeTaken int64) model.ExamResult {
	answers := make([]model.AnswerRecord, len(out.Answers))
	copy(answers, out.Answers)
	return model.ExamResult{
		UserID:                userID,
		ExamID:                exam.ID,
		ExamTitle:             exam.Title,
		ExamSlug:              exam.Slug,
		Score:                 out.Score,
		TotalQuestions:        out.Total,
		CorrectAnswersCount:   out.Correct,
		IncorrectAnswersCount: out.Incorrect,
		TimeTaken:             timeTaken,
		Answers:               answers,
	}
}
