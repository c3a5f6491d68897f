package models

import (
	"gorm.io/datatypes"
)

// DefaultPassingScore applies when a quiz leaves PassingScore unset.
const DefaultPassingScore = 0.8

type QuizQuestion struct {
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
}

// Quiz backs QUIZ verification.
type Quiz struct {
	Identity
	Title        string                             `gorm:"not null" json:"title"`
	PassingScore *float64                           `json:"passing_score,omitempty"`
	Questions    datatypes.JSONType[[]QuizQuestion] `json:"questions"`
	Timestamps
}

// Threshold returns the passing score, defaulting to DefaultPassingScore.
func (q *Quiz) Threshold() float64 {
	if q.PassingScore == nil {
		return DefaultPassingScore
	}
	return *q.PassingScore
}
