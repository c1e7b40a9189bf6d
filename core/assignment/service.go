package assignment

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

var (
	// errors
	ErrNotFound           = errors.New("assignment not found")
	ErrSubmissionNotFound = errors.New("submission not found")
)

type (
	Repository interface {
		CreateAssignment(ctx context.Context, asg Assignment) (Assignment, error)
		QueryAssignments(ctx context.Context, classID string, ordering []core.DBOrdering) ([]Assignment, error)
		GetAssignment(ctx context.Context, id string) (Assignment, error)
		UpdateAssignment(ctx context.Context, asg Assignment) (Assignment, error)
		DeleteAssignmentsByID(ctx context.Context, ids []string) (int, error)
		// UpsertSubmission replaces an existing (assignment, student) submission
		// and clears its grade.
		UpsertSubmission(ctx context.Context, sub Submission) (Submission, error)
		GetSubmission(ctx context.Context, id string) (Submission, error)
		QuerySubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error)
		SaveGrade(ctx context.Context, submissionID string, g Grade) (Submission, error)
		// QueryClassGrades reports graded and pending submissions for a class,
		// optionally scoped to one student.
		QueryClassGrades(ctx context.Context, classID, studentID string) ([]StudentGrade, error)
	}

	Service interface {
		Create(ctx context.Context, classID string, na NewAssignment) (Assignment, error)
		QueryByClass(ctx context.Context, classID string, ordering []core.DBOrdering) ([]Assignment, error)
		GetByID(ctx context.Context, id string) (Assignment, error)
		Update(ctx context.Context, id string, ua UpdateAssignment) (Assignment, error)
		Delete(ctx context.Context, ids ...string) error
		Submit(ctx context.Context, assignmentID, studentID string, ns NewSubmission) (Submission, error)
		GetSubmission(ctx context.Context, id string) (Submission, error)
		Submissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error)
		GradeSubmission(ctx context.Context, submissionID, graderID string, ng NewGrade) (Submission, error)
		ClassGrades(ctx context.Context, classID, studentID string) (GradeSummary, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, classID string, na NewAssignment) (Assignment, error) {
	now := time.Now().UTC()
	asg := Assignment{
		ClassID:     classID,
		Title:       na.Title,
		Description: na.Description,
		Points:      na.Points,
		DueAt:       na.DueAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateAssignment(ctx, asg)
}

func (svc *service) QueryByClass(ctx context.Context, classID string, ordering []core.DBOrdering) ([]Assignment, error) {
	return svc.repo.QueryAssignments(ctx, classID, ordering)
}

func (svc *service) GetByID(ctx context.Context, id string) (Assignment, error) {
	return svc.repo.GetAssignment(ctx, id)
}

func (svc *service) Update(ctx context.Context, id string, ua UpdateAssignment) (Assignment, error) {
	asg := Assignment{
		ID:          id,
		Title:       ua.Title,
		Description: ua.Description,
		Points:      ua.Points,
		DueAt:       ua.DueAt.UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	return svc.repo.UpdateAssignment(ctx, asg)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteAssignmentsByID(ctx, ids)
	return err
}

func (svc *service) Submit(ctx context.Context, assignmentID, studentID string, ns NewSubmission) (Submission, error) {
	asg, err := svc.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return Submission{}, err
	}

	now := time.Now().UTC()
	sub := Submission{
		AssignmentID: assignmentID,
		StudentID:    studentID,
		Content:      ns.Content,
		Late:         now.After(asg.DueAt),
		SubmittedAt:  now,
	}
	return svc.repo.UpsertSubmission(ctx, sub)
}

func (svc *service) GetSubmission(ctx context.Context, id string) (Submission, error) {
	return svc.repo.GetSubmission(ctx, id)
}

func (svc *service) Submissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error) {
	return svc.repo.QuerySubmissions(ctx, filter)
}

func (svc *service) GradeSubmission(ctx context.Context, submissionID, graderID string, ng NewGrade) (Submission, error) {
	if ng.Score == nil {
		msg := "score is required"
		return Submission{}, core.NewValidationError(errors.New(msg), core.FieldError{Field: "score", Error: msg})
	}
	sub, err := svc.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return Submission{}, err
	}
	asg, err := svc.repo.GetAssignment(ctx, sub.AssignmentID)
	if err != nil {
		return Submission{}, err
	}
	if *ng.Score > asg.Points {
		msg := fmt.Sprintf("score cannot exceed the assignment's %v points", asg.Points)
		return Submission{}, core.NewValidationError(errors.New(msg), core.FieldError{Field: "score", Error: msg})
	}

	g := Grade{
		Score:    *ng.Score,
		Comment:  ng.Comment,
		GradedBy: graderID,
		GradedAt: time.Now().UTC(),
	}
	return svc.repo.SaveGrade(ctx, submissionID, g)
}

func (svc *service) ClassGrades(ctx context.Context, classID, studentID string) (GradeSummary, error) {
	grades, err := svc.repo.QueryClassGrades(ctx, classID, studentID)
	if err != nil {
		return GradeSummary{}, err
	}
	summary := GradeSummary{ClassID: classID, Grades: grades}

	// average percentage over graded submissions
	var sum float64
	var n int
	for _, g := range grades {
		if g.Score != nil && g.Points > 0 {
			sum += *g.Score / g.Points * 100
			n++
		}
	}
	if n > 0 {
		avg := sum / float64(n)
		summary.Average = &avg
	}
	return summary, nil
}
