package model

import "time"

// ResultsExport is the top-level JSON structure for result export.
type ResultsExport struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	ExamSlug    string           `json:"examSlug,omitempty"`
	Count       int              `json:"count"`
	Results     []ExportedResult `json:"results"`
}

// ExportedResult is one attempt with the owner's identity attached.
type ExportedResult struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	// AttemptNumber counts this user's attempts at the same exam, oldest first.
	AttemptNumber int `json:"attemptNumber"`
	ExamResult
}
