package assignment

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// Assignment is a piece of work assigned to all students of a class.
type Assignment struct {
	ID          string    `json:"id"`
	ClassID     string    `json:"class_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Points      float64   `json:"points"`     // max score
	DueAt       time.Time `json:"due_at"`     // UTC
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// Grade is a teacher's mark on a Submission.
type Grade struct {
	Score    float64   `json:"score"`
	Comment  string    `json:"comment,omitempty"`
	GradedBy string    `json:"graded_by"`
	GradedAt time.Time `json:"graded_at"` // UTC
}

// Submission is a student's answer to an Assignment. Resubmitting replaces the
// content and clears any existing Grade.
type Submission struct {
	ID           string    `json:"id"`
	AssignmentID string    `json:"assignment_id"`
	StudentID    string    `json:"student_id"`
	Content      string    `json:"content"`
	Late         bool      `json:"late"`
	SubmittedAt  time.Time `json:"submitted_at"` // UTC
	Grade        *Grade    `json:"grade,omitempty"`
}

// NewAssignment contains information needed to create a new Assignment.
type NewAssignment struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	Points      float64   `json:"points" validate:"required,gt=0"`
	DueAt       time.Time `json:"due_at" validate:"required"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	return validate.Struct(na)
}

// UpdateAssignment defines what information may be provided to modify an existing Assignment.
type UpdateAssignment struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Points      float64   `json:"points" validate:"omitempty,gt=0"`
	DueAt       time.Time `json:"due_at"`
}

func (ua *UpdateAssignment) Validate(origAsg Assignment, validate *validator.Validate) error {
	title := core.CleanString(ua.Title)
	if title != "" {
		ua.Title = title
	} else {
		ua.Title = origAsg.Title
	}

	desc := core.CleanString(ua.Description)
	if desc != "" {
		ua.Description = desc
	} else {
		ua.Description = origAsg.Description
	}

	if ua.Points == 0 {
		ua.Points = origAsg.Points
	}
	if ua.DueAt.IsZero() {
		ua.DueAt = origAsg.DueAt
	}
	return validate.Struct(ua)
}

// NewSubmission is a student's (re)submission payload.
type NewSubmission struct {
	Content string `json:"content" validate:"required"`
}

func (ns *NewSubmission) Validate(validate *validator.Validate) error {
	ns.Content = core.CleanString(ns.Content)
	return validate.Struct(ns)
}

// NewGrade is a teacher's grading payload.
type NewGrade struct {
	Score   *float64 `json:"score" validate:"required,gte=0"`
	Comment string   `json:"comment"`
}

func (ng *NewGrade) Validate(validate *validator.Validate) error {
	ng.Comment = core.CleanString(ng.Comment)
	return validate.Struct(ng)
}

// SubmissionFilter narrows submission listings; fields AND together.
type SubmissionFilter struct {
	AssignmentID string
	StudentID    string
}

// StudentGrade is a row in a class grade report.
type StudentGrade struct {
	StudentID    string   `json:"student_id"`
	AssignmentID string   `json:"assignment_id"`
	Title        string   `json:"title"`
	Points       float64  `json:"points"`
	Late         bool     `json:"late"`
	Score        *float64 `json:"score"` // nil: submitted but not graded yet
}

// GradeSummary is a class grade report, optionally scoped to one student.
type GradeSummary struct {
	ClassID string         `json:"class_id"`
	Grades  []StudentGrade `json:"grades"`
	Average *float64       `json:"average"` // percentage over graded submissions
}
