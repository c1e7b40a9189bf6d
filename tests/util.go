// Package testutil provides helpers to seed repositories in tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/shule/core/assignment"
	"github.com/trezcool/shule/core/class"
	"github.com/trezcool/shule/core/user"
)

// NopLogger discards everything. For tests that only need a core.Logger.
type NopLogger struct{}

func (NopLogger) Enable(bool)                  {}
func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateClass(t *testing.T, repo class.Repository, name, subject, teacherID string) class.Class {
	t.Helper()

	now := time.Now().UTC()
	cls := class.Class{
		Name:      name,
		Subject:   subject,
		TeacherID: teacherID,
		Code:      class.MakeJoinCode(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	cls, err := repo.CreateClass(context.Background(), cls)
	if err != nil {
		t.Fatalf("CreateClass() failed: %v", err)
	}
	return cls
}

func Enroll(t *testing.T, repo class.Repository, classID, studentID string) {
	t.Helper()

	enr := class.Enrollment{
		ClassID:   classID,
		StudentID: studentID,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.CreateEnrollment(context.Background(), enr); err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
}

func CreateAssignment(
	t *testing.T,
	repo assignment.Repository,
	classID, title string,
	points float64,
	dueAt time.Time,
) assignment.Assignment {
	t.Helper()

	now := time.Now().UTC()
	asg := assignment.Assignment{
		ClassID:   classID,
		Title:     title,
		Points:    points,
		DueAt:     dueAt.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	asg, err := repo.CreateAssignment(context.Background(), asg)
	if err != nil {
		t.Fatalf("CreateAssignment() failed: %v", err)
	}
	return asg
}

func CreateSubmission(
	t *testing.T,
	repo assignment.Repository,
	assignmentID, studentID, content string,
	late bool,
) assignment.Submission {
	t.Helper()

	sub := assignment.Submission{
		AssignmentID: assignmentID,
		StudentID:    studentID,
		Content:      content,
		Late:         late,
		SubmittedAt:  time.Now().UTC(),
	}
	sub, err := repo.UpsertSubmission(context.Background(), sub)
	if err != nil {
		t.Fatalf("CreateSubmission() failed: %v", err)
	}
	return sub
}
