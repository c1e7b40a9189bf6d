package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/assignment"
)

type assignmentRow struct {
	ID          string       `db:"id"`
	ClassID     string       `db:"class_id"`
	Title       null.String  `db:"title"`
	Description null.String  `db:"description"`
	Points      null.Float64 `db:"points"`
	DueAt       null.Time    `db:"due_at"`
	CreatedAt   null.Time    `db:"created_at"`
	UpdatedAt   null.Time    `db:"updated_at"`
}

type submissionRow struct {
	ID           string       `db:"id"`
	AssignmentID string       `db:"assignment_id"`
	StudentID    string       `db:"student_id"`
	Content      null.String  `db:"content"`
	Late         null.Bool    `db:"late"`
	SubmittedAt  null.Time    `db:"submitted_at"`
	Score        null.Float64 `db:"score"`
	Comment      null.String  `db:"comment"`
	GradedBy     null.String  `db:"graded_by"`
	GradedAt     null.Time    `db:"graded_at"`
}

type studentGradeRow struct {
	StudentID    string       `db:"student_id"`
	AssignmentID string       `db:"assignment_id"`
	Title        null.String  `db:"title"`
	Points       null.Float64 `db:"points"`
	Late         null.Bool    `db:"late"`
	Score        null.Float64 `db:"score"`
}

type assignmentRepository struct {
	db *sqlx.DB
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(db *sqlx.DB) *assignmentRepository {
	return &assignmentRepository{db: db}
}

func (repo assignmentRepository) toRow(asg assignment.Assignment) assignmentRow {
	return assignmentRow{
		ID:          asg.ID,
		ClassID:     asg.ClassID,
		Title:       null.NewString(asg.Title, asg.Title != ""),
		Description: null.NewString(asg.Description, asg.Description != ""),
		Points:      null.NewFloat64(asg.Points, asg.Points != 0),
		DueAt:       null.NewTime(asg.DueAt.UTC(), !asg.DueAt.IsZero()),
		CreatedAt:   null.NewTime(asg.CreatedAt.UTC(), !asg.CreatedAt.IsZero()),
		UpdatedAt:   null.NewTime(asg.UpdatedAt.UTC(), !asg.UpdatedAt.IsZero()),
	}
}

func (repo assignmentRepository) fromRow(row assignmentRow) assignment.Assignment {
	return assignment.Assignment{
		ID:          row.ID,
		ClassID:     row.ClassID,
		Title:       row.Title.String,
		Description: row.Description.String,
		Points:      row.Points.Float64,
		DueAt:       row.DueAt.Time,
		CreatedAt:   row.CreatedAt.Time,
		UpdatedAt:   row.UpdatedAt.Time,
	}
}

func (repo assignmentRepository) fromSubRow(row submissionRow) assignment.Submission {
	sub := assignment.Submission{
		ID:           row.ID,
		AssignmentID: row.AssignmentID,
		StudentID:    row.StudentID,
		Content:      row.Content.String,
		Late:         row.Late.Bool,
		SubmittedAt:  row.SubmittedAt.Time,
	}
	if row.Score.Valid {
		sub.Grade = &assignment.Grade{
			Score:    row.Score.Float64,
			Comment:  row.Comment.String,
			GradedBy: row.GradedBy.String,
			GradedAt: row.GradedAt.Time,
		}
	}
	return sub
}

func (repo assignmentRepository) trapNoRowsErr(err error, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo assignmentRepository) CreateAssignment(ctx context.Context, asg assignment.Assignment) (assignment.Assignment, error) {
	asg.ID = uuid.New().String()
	row := repo.toRow(asg)

	q := `INSERT INTO assignment (id, class_id, title, description, points, due_at, created_at, updated_at)
		VALUES (:id, :class_id, :title, :description, :points, :due_at, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return repo.fromRow(row), nil
}

func (repo assignmentRepository) QueryAssignments(ctx context.Context, classID string, ordering []core.DBOrdering) ([]assignment.Assignment, error) {
	q := `SELECT * FROM assignment WHERE class_id = $1`
	q += orderByClause(ordering, assignmentOrderFields, "due_at ASC")

	var rows []assignmentRow
	if err := repo.db.SelectContext(ctx, &rows, q, classID); err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	assignments := make([]assignment.Assignment, 0, len(rows))
	for _, row := range rows {
		assignments = append(assignments, repo.fromRow(row))
	}
	return assignments, nil
}

func (repo assignmentRepository) GetAssignment(ctx context.Context, id string) (assignment.Assignment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	var row assignmentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM assignment WHERE id = $1`, id); err != nil {
		return assignment.Assignment{}, repo.trapNoRowsErr(err, assignment.ErrNotFound, "finding assignment")
	}
	return repo.fromRow(row), nil
}

func (repo assignmentRepository) UpdateAssignment(ctx context.Context, asg assignment.Assignment) (assignment.Assignment, error) {
	row := repo.toRow(asg)

	// unset fields keep their stored value
	q := `UPDATE assignment SET
			title = COALESCE(NULLIF($2, ''), title),
			description = COALESCE(NULLIF($3, ''), description),
			points = COALESCE($4, points),
			due_at = COALESCE($5, due_at),
			updated_at = COALESCE($6, updated_at)
		WHERE id = $1
		RETURNING *`

	var updated assignmentRow
	err := repo.db.GetContext(ctx, &updated, q, row.ID, asg.Title, asg.Description, row.Points, row.DueAt, row.UpdatedAt)
	if err != nil {
		return assignment.Assignment{}, repo.trapNoRowsErr(err, assignment.ErrNotFound, "updating assignment")
	}
	return repo.fromRow(updated), nil
}

func (repo assignmentRepository) DeleteAssignmentsByID(ctx context.Context, ids []string) (int, error) {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM assignment WHERE id = ANY($1)`, pq.Array(validUUIDs(ids)))
	if err != nil {
		return 0, errors.Wrap(err, "deleting assignments")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting assignments")
	}
	return int(cnt), nil
}

func (repo assignmentRepository) UpsertSubmission(ctx context.Context, sub assignment.Submission) (assignment.Submission, error) {
	q := `INSERT INTO submission (id, assignment_id, student_id, content, late, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (assignment_id, student_id) DO UPDATE SET
			content = EXCLUDED.content,
			late = EXCLUDED.late,
			submitted_at = EXCLUDED.submitted_at,
			score = NULL,
			comment = '',
			graded_by = NULL,
			graded_at = NULL
		RETURNING *`

	var row submissionRow
	err := repo.db.GetContext(ctx, &row, q,
		uuid.New().String(), sub.AssignmentID, sub.StudentID, sub.Content, sub.Late, sub.SubmittedAt.UTC())
	if err != nil {
		return assignment.Submission{}, errors.Wrap(err, "upserting submission")
	}
	return repo.fromSubRow(row), nil
}

func (repo assignmentRepository) GetSubmission(ctx context.Context, id string) (assignment.Submission, error) {
	if _, err := uuid.Parse(id); err != nil {
		return assignment.Submission{}, assignment.ErrSubmissionNotFound
	}
	var row submissionRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM submission WHERE id = $1`, id); err != nil {
		return assignment.Submission{}, repo.trapNoRowsErr(err, assignment.ErrSubmissionNotFound, "finding submission")
	}
	return repo.fromSubRow(row), nil
}

func (repo assignmentRepository) QuerySubmissions(ctx context.Context, filter assignment.SubmissionFilter) ([]assignment.Submission, error) {
	var conds []string
	var args []interface{}

	if filter.AssignmentID != "" {
		args = append(args, filter.AssignmentID)
		conds = append(conds, "assignment_id = $1")
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		if len(args) == 1 {
			conds = append(conds, "student_id = $1")
		} else {
			conds = append(conds, "student_id = $2")
		}
	}

	q := `SELECT * FROM submission`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY submitted_at DESC"

	var rows []submissionRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	subs := make([]assignment.Submission, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, repo.fromSubRow(row))
	}
	return subs, nil
}

func (repo assignmentRepository) SaveGrade(ctx context.Context, submissionID string, g assignment.Grade) (assignment.Submission, error) {
	if _, err := uuid.Parse(submissionID); err != nil {
		return assignment.Submission{}, assignment.ErrSubmissionNotFound
	}
	q := `UPDATE submission SET score = $2, comment = $3, graded_by = $4, graded_at = $5
		WHERE id = $1
		RETURNING *`

	var row submissionRow
	err := repo.db.GetContext(ctx, &row, q, submissionID, g.Score, g.Comment, g.GradedBy, g.GradedAt.UTC())
	if err != nil {
		return assignment.Submission{}, repo.trapNoRowsErr(err, assignment.ErrSubmissionNotFound, "saving grade")
	}
	return repo.fromSubRow(row), nil
}

func (repo assignmentRepository) QueryClassGrades(ctx context.Context, classID, studentID string) ([]assignment.StudentGrade, error) {
	q := `SELECT s.student_id, a.id AS assignment_id, a.title, a.points, s.late, s.score
		FROM submission s
		INNER JOIN assignment a ON a.id = s.assignment_id
		WHERE a.class_id = $1`
	args := []interface{}{classID}
	if studentID != "" {
		q += " AND s.student_id = $2"
		args = append(args, studentID)
	}
	q += " ORDER BY s.student_id ASC, a.due_at ASC"

	var rows []studentGradeRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying class grades")
	}
	grades := make([]assignment.StudentGrade, 0, len(rows))
	for _, row := range rows {
		grades = append(grades, assignment.StudentGrade{
			StudentID:    row.StudentID,
			AssignmentID: row.AssignmentID,
			Title:        row.Title.String,
			Points:       row.Points.Float64,
			Late:         row.Late.Bool,
			Score:        row.Score.Ptr(),
		})
	}
	return grades, nil
}

var assignmentOrderFields = map[string]struct{}{
	"title": {}, "points": {}, "due_at": {}, "created_at": {}, "updated_at": {},
}
