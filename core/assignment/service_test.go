package assignment_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/assignment"
	"github.com/trezcool/shule/core/class"
	"github.com/trezcool/shule/core/user"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	testutil "github.com/trezcool/shule/tests"
)

func newTestService(t *testing.T) (assignment.Service, assignment.Repository, class.Repository, user.Repository) {
	t.Helper()
	db := inmemdb.NewDB()
	repo := inmemdb.NewAssignmentRepository(db)
	return assignment.NewService(repo), repo, inmemdb.NewClassRepository(db), inmemdb.NewUserRepository(db)
}

func float64Ptr(v float64) *float64 { return &v }

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	svc, repo, clsRepo, usrRepo := newTestService(t)

	teacher := testutil.CreateUser(t, usrRepo, "Jimmy Page", "jimmy", "jimmy@test.cd", "", user.TeacherRoles, true)
	jon := testutil.CreateUser(t, usrRepo, "Jon Doe", "jon", "jon@test.cd", "", user.StudentRoles, true)
	cls := testutil.CreateClass(t, clsRepo, "Guitar 101", "Music", teacher.ID)

	open := testutil.CreateAssignment(t, repo, cls.ID, "Scales", 20, time.Now().Add(24*time.Hour))
	closed := testutil.CreateAssignment(t, repo, cls.ID, "Chords", 20, time.Now().Add(-24*time.Hour))

	sub, err := svc.Submit(ctx, open.ID, jon.ID, assignment.NewSubmission{Content: "do re mi"})
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if sub.Late {
		t.Errorf("Submit() before DueAt flagged late")
	}
	if sub.Grade != nil {
		t.Errorf("fresh submission has a grade")
	}

	lateSub, err := svc.Submit(ctx, closed.ID, jon.ID, assignment.NewSubmission{Content: "A B C"})
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if !lateSub.Late {
		t.Errorf("Submit() after DueAt not flagged late")
	}

	if _, err = svc.Submit(ctx, "6cd9d0c4-0b6d-4ac0-b576-e63e69a6f787", jon.ID, assignment.NewSubmission{Content: "x"}); errors.Cause(err) != assignment.ErrNotFound {
		t.Errorf("Submit(unknown assignment) err = %v; want ErrNotFound", err)
	}
}

func TestResubmitClearsGrade(t *testing.T) {
	ctx := context.Background()
	svc, repo, clsRepo, usrRepo := newTestService(t)

	teacher := testutil.CreateUser(t, usrRepo, "Jimmy Page", "jimmy", "jimmy@test.cd", "", user.TeacherRoles, true)
	jon := testutil.CreateUser(t, usrRepo, "Jon Doe", "jon", "jon@test.cd", "", user.StudentRoles, true)
	cls := testutil.CreateClass(t, clsRepo, "Guitar 101", "Music", teacher.ID)
	asg := testutil.CreateAssignment(t, repo, cls.ID, "Scales", 20, time.Now().Add(24*time.Hour))

	sub, err := svc.Submit(ctx, asg.ID, jon.ID, assignment.NewSubmission{Content: "first try"})
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	graded, err := svc.GradeSubmission(ctx, sub.ID, teacher.ID, assignment.NewGrade{Score: float64Ptr(15), Comment: "decent"})
	if err != nil {
		t.Fatalf("GradeSubmission() failed: %v", err)
	}
	if graded.Grade == nil || graded.Grade.Score != 15 || graded.Grade.GradedBy != teacher.ID {
		t.Fatalf("Grade = %+v; want score 15 by teacher", graded.Grade)
	}

	resub, err := svc.Submit(ctx, asg.ID, jon.ID, assignment.NewSubmission{Content: "second try"})
	if err != nil {
		t.Fatalf("Submit() again failed: %v", err)
	}
	if resub.ID != sub.ID {
		t.Errorf("resubmission got a new ID %q; want %q", resub.ID, sub.ID)
	}
	if resub.Content != "second try" {
		t.Errorf("Content = %q; want second try", resub.Content)
	}
	if resub.Grade != nil {
		t.Errorf("resubmission kept grade %+v", resub.Grade)
	}

	// only one submission per (assignment, student)
	subs, err := svc.Submissions(ctx, assignment.SubmissionFilter{AssignmentID: asg.ID})
	if err != nil {
		t.Fatalf("Submissions() failed: %v", err)
	}
	if len(subs) != 1 {
		t.Errorf("Submissions() returned %d; want 1", len(subs))
	}
}

func TestGradeSubmission(t *testing.T) {
	ctx := context.Background()
	svc, repo, clsRepo, usrRepo := newTestService(t)

	teacher := testutil.CreateUser(t, usrRepo, "Jimmy Page", "jimmy", "jimmy@test.cd", "", user.TeacherRoles, true)
	jon := testutil.CreateUser(t, usrRepo, "Jon Doe", "jon", "jon@test.cd", "", user.StudentRoles, true)
	cls := testutil.CreateClass(t, clsRepo, "Guitar 101", "Music", teacher.ID)
	asg := testutil.CreateAssignment(t, repo, cls.ID, "Scales", 20, time.Now().Add(24*time.Hour))
	sub := testutil.CreateSubmission(t, repo, asg.ID, jon.ID, "do re mi", false)

	// grading without a score is a field error
	_, err := svc.GradeSubmission(ctx, sub.ID, teacher.ID, assignment.NewGrade{})
	var vErr *core.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("GradeSubmission(no score) err = %v; want *core.ValidationError", err)
	}
	if len(vErr.Fields) != 1 || vErr.Fields[0].Field != "score" {
		t.Errorf("Fields = %v; want one on score", vErr.Fields)
	}

	// the score is capped by the assignment's points
	_, err = svc.GradeSubmission(ctx, sub.ID, teacher.ID, assignment.NewGrade{Score: float64Ptr(25)})
	vErr = nil
	if !errors.As(err, &vErr) {
		t.Fatalf("GradeSubmission(25/20) err = %v; want *core.ValidationError", err)
	}
	if len(vErr.Fields) != 1 || vErr.Fields[0].Field != "score" {
		t.Errorf("Fields = %v; want one on score", vErr.Fields)
	}

	graded, err := svc.GradeSubmission(ctx, sub.ID, teacher.ID, assignment.NewGrade{Score: float64Ptr(18), Comment: "nice"})
	if err != nil {
		t.Fatalf("GradeSubmission() failed: %v", err)
	}
	if graded.Grade == nil {
		t.Fatalf("Grade is nil after grading")
	}
	if graded.Grade.Score != 18 || graded.Grade.Comment != "nice" || graded.Grade.GradedBy != teacher.ID {
		t.Errorf("Grade = %+v; want 18/nice by teacher", graded.Grade)
	}
	if graded.Grade.GradedAt.IsZero() {
		t.Errorf("GradedAt not set")
	}

	// regrading overwrites
	regraded, err := svc.GradeSubmission(ctx, sub.ID, teacher.ID, assignment.NewGrade{Score: float64Ptr(20)})
	if err != nil {
		t.Fatalf("GradeSubmission() again failed: %v", err)
	}
	if regraded.Grade.Score != 20 {
		t.Errorf("Score = %v; want 20", regraded.Grade.Score)
	}

	if _, err = svc.GradeSubmission(ctx, "6cd9d0c4-0b6d-4ac0-b576-e63e69a6f787", teacher.ID, assignment.NewGrade{Score: float64Ptr(1)}); errors.Cause(err) != assignment.ErrSubmissionNotFound {
		t.Errorf("GradeSubmission(unknown) err = %v; want ErrSubmissionNotFound", err)
	}
}

func TestClassGrades(t *testing.T) {
	ctx := context.Background()
	svc, repo, clsRepo, usrRepo := newTestService(t)

	teacher := testutil.CreateUser(t, usrRepo, "Jimmy Page", "jimmy", "jimmy@test.cd", "", user.TeacherRoles, true)
	jon := testutil.CreateUser(t, usrRepo, "Jon Doe", "jon", "jon@test.cd", "", user.StudentRoles, true)
	jane := testutil.CreateUser(t, usrRepo, "Jane Doe", "jane", "jane@test.cd", "", user.StudentRoles, true)
	cls := testutil.CreateClass(t, clsRepo, "Guitar 101", "Music", teacher.ID)

	scales := testutil.CreateAssignment(t, repo, cls.ID, "Scales", 20, time.Now().Add(24*time.Hour))
	chords := testutil.CreateAssignment(t, repo, cls.ID, "Chords", 10, time.Now().Add(48*time.Hour))

	jonScales := testutil.CreateSubmission(t, repo, scales.ID, jon.ID, "do re mi", false)
	jonChords := testutil.CreateSubmission(t, repo, chords.ID, jon.ID, "A B C", false)
	janeScales := testutil.CreateSubmission(t, repo, scales.ID, jane.ID, "fa sol la", false)

	grade := func(subID string, score float64) {
		if _, err := svc.GradeSubmission(ctx, subID, teacher.ID, assignment.NewGrade{Score: float64Ptr(score)}); err != nil {
			t.Fatalf("GradeSubmission() failed: %v", err)
		}
	}
	grade(jonScales.ID, 15)  // 75%
	grade(jonChords.ID, 10)  // 100%
	grade(janeScales.ID, 10) // 50%

	// whole class: three graded submissions averaging 75%
	summary, err := svc.ClassGrades(ctx, cls.ID, "")
	if err != nil {
		t.Fatalf("ClassGrades() failed: %v", err)
	}
	if len(summary.Grades) != 3 {
		t.Fatalf("Grades = %d rows; want 3", len(summary.Grades))
	}
	if summary.Average == nil || math.Abs(*summary.Average-75) > 1e-9 {
		t.Errorf("Average = %v; want 75", summary.Average)
	}

	// scoped to one student: 75% and 100% average to 87.5%
	summary, err = svc.ClassGrades(ctx, cls.ID, jon.ID)
	if err != nil {
		t.Fatalf("ClassGrades() failed: %v", err)
	}
	if len(summary.Grades) != 2 {
		t.Fatalf("Grades = %d rows; want 2", len(summary.Grades))
	}
	if summary.Average == nil || math.Abs(*summary.Average-87.5) > 1e-9 {
		t.Errorf("Average = %v; want 87.5", summary.Average)
	}

	// ungraded submissions appear with a nil score and are left out of the average
	late := testutil.CreateSubmission(t, repo, chords.ID, jane.ID, "late one", true)
	summary, err = svc.ClassGrades(ctx, cls.ID, jane.ID)
	if err != nil {
		t.Fatalf("ClassGrades() failed: %v", err)
	}
	if len(summary.Grades) != 2 {
		t.Fatalf("Grades = %d rows; want 2", len(summary.Grades))
	}
	for _, g := range summary.Grades {
		if g.AssignmentID == late.AssignmentID && g.StudentID == jane.ID && g.Title == "Chords" {
			if g.Score != nil {
				t.Errorf("ungraded row has score %v", *g.Score)
			}
			if !g.Late {
				t.Errorf("late submission not flagged in report")
			}
		}
	}
	if summary.Average == nil || math.Abs(*summary.Average-50) > 1e-9 {
		t.Errorf("Average = %v; want 50", summary.Average)
	}
}
