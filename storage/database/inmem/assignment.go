package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/assignment"
)

type assignmentRepository struct {
	db *DB
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(db *DB) *assignmentRepository {
	return &assignmentRepository{db: db}
}

func (repo *assignmentRepository) CreateAssignment(ctx context.Context, asg assignment.Assignment) (assignment.Assignment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	asg.ID = uuid.New().String()
	repo.db.assignments[asg.ID] = &asg
	return asg, nil
}

func (repo *assignmentRepository) QueryAssignments(ctx context.Context, classID string, ordering []core.DBOrdering) ([]assignment.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var assignments []assignment.Assignment
	for _, asg := range repo.db.assignments {
		if asg.ClassID == classID {
			assignments = append(assignments, *asg)
		}
	}
	sortAssignments(assignments, ordering)
	return assignments, nil
}

func sortAssignments(assignments []assignment.Assignment, ordering []core.DBOrdering) {
	if len(ordering) == 0 {
		sort.Slice(assignments, func(i, j int) bool { return assignments[i].DueAt.Before(assignments[j].DueAt) })
		return
	}
	ord := ordering[0]
	sort.Slice(assignments, func(i, j int) bool {
		a, b := assignments[i], assignments[j]
		var less bool
		switch ord.Field {
		case "title":
			less = strings.ToLower(a.Title) < strings.ToLower(b.Title)
		case "points":
			less = a.Points < b.Points
		case "created_at":
			less = a.CreatedAt.Before(b.CreatedAt)
		case "updated_at":
			less = a.UpdatedAt.Before(b.UpdatedAt)
		default:
			less = a.DueAt.Before(b.DueAt)
		}
		if ord.Ascending {
			return less
		}
		return !less
	})
}

func (repo *assignmentRepository) GetAssignment(ctx context.Context, id string) (assignment.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if asg, ok := repo.db.assignments[id]; ok {
		return *asg, nil
	}
	return assignment.Assignment{}, assignment.ErrNotFound
}

func (repo *assignmentRepository) UpdateAssignment(ctx context.Context, asg assignment.Assignment) (assignment.Assignment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	// only save set fields
	origAsg, ok := repo.db.assignments[asg.ID]
	if !ok {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	if asg.Title != "" {
		origAsg.Title = asg.Title
	}
	if asg.Description != "" {
		origAsg.Description = asg.Description
	}
	if asg.Points != 0 {
		origAsg.Points = asg.Points
	}
	if !asg.DueAt.IsZero() {
		origAsg.DueAt = asg.DueAt
	}
	if !asg.UpdatedAt.IsZero() {
		origAsg.UpdatedAt = asg.UpdatedAt
	}
	return *origAsg, nil
}

func (repo *assignmentRepository) DeleteAssignmentsByID(ctx context.Context, ids []string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := repo.db.assignments[id]; ok {
			delete(repo.db.assignments, id)
			cnt++
			for subID, sub := range repo.db.submissions {
				if sub.AssignmentID == id {
					delete(repo.db.submissions, subID)
				}
			}
		}
	}
	return cnt, nil
}

func (repo *assignmentRepository) UpsertSubmission(ctx context.Context, sub assignment.Submission) (assignment.Submission, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	// resubmission replaces content and clears the grade
	for _, existing := range repo.db.submissions {
		if existing.AssignmentID == sub.AssignmentID && existing.StudentID == sub.StudentID {
			existing.Content = sub.Content
			existing.Late = sub.Late
			existing.SubmittedAt = sub.SubmittedAt
			existing.Grade = nil
			return *existing, nil
		}
	}
	sub.ID = uuid.New().String()
	repo.db.submissions[sub.ID] = &sub
	return sub, nil
}

func (repo *assignmentRepository) GetSubmission(ctx context.Context, id string) (assignment.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if sub, ok := repo.db.submissions[id]; ok {
		return *sub, nil
	}
	return assignment.Submission{}, assignment.ErrSubmissionNotFound
}

func (repo *assignmentRepository) QuerySubmissions(ctx context.Context, filter assignment.SubmissionFilter) ([]assignment.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var subs []assignment.Submission
	for _, sub := range repo.db.submissions {
		if filter.AssignmentID != "" && sub.AssignmentID != filter.AssignmentID {
			continue
		}
		if filter.StudentID != "" && sub.StudentID != filter.StudentID {
			continue
		}
		subs = append(subs, *sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].SubmittedAt.After(subs[j].SubmittedAt) })
	return subs, nil
}

func (repo *assignmentRepository) SaveGrade(ctx context.Context, submissionID string, g assignment.Grade) (assignment.Submission, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	sub, ok := repo.db.submissions[submissionID]
	if !ok {
		return assignment.Submission{}, assignment.ErrSubmissionNotFound
	}
	sub.Grade = &g
	return *sub, nil
}

func (repo *assignmentRepository) QueryClassGrades(ctx context.Context, classID, studentID string) ([]assignment.StudentGrade, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var grades []assignment.StudentGrade
	for _, sub := range repo.db.submissions {
		asg, ok := repo.db.assignments[sub.AssignmentID]
		if !ok || asg.ClassID != classID {
			continue
		}
		if studentID != "" && sub.StudentID != studentID {
			continue
		}
		sg := assignment.StudentGrade{
			StudentID:    sub.StudentID,
			AssignmentID: asg.ID,
			Title:        asg.Title,
			Points:       asg.Points,
			Late:         sub.Late,
		}
		if sub.Grade != nil {
			score := sub.Grade.Score
			sg.Score = &score
		}
		grades = append(grades, sg)
	}
	sort.Slice(grades, func(i, j int) bool {
		if grades[i].StudentID != grades[j].StudentID {
			return grades[i].StudentID < grades[j].StudentID
		}
		return grades[i].AssignmentID < grades[j].AssignmentID
	})
	return grades, nil
}
