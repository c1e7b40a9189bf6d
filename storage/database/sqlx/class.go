package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/class"
	"github.com/trezcool/shule/core/user"
)

type classRow struct {
	ID        string      `db:"id"`
	Name      null.String `db:"name"`
	Subject   null.String `db:"subject"`
	TeacherID null.String `db:"teacher_id"`
	Code      null.String `db:"code"`
	CreatedAt null.Time   `db:"created_at"`
	UpdatedAt null.Time   `db:"updated_at"`
}

type classRepository struct {
	db      *sqlx.DB
	usrRepo *userRepository
}

var _ class.Repository = (*classRepository)(nil) // interface compliance check

func NewClassRepository(db *sqlx.DB) *classRepository {
	return &classRepository{db: db, usrRepo: NewUserRepository(db)}
}

func (repo classRepository) toRow(cls class.Class) classRow {
	return classRow{
		ID:        cls.ID,
		Name:      null.NewString(cls.Name, cls.Name != ""),
		Subject:   null.NewString(cls.Subject, cls.Subject != ""),
		TeacherID: null.NewString(cls.TeacherID, cls.TeacherID != ""),
		Code:      null.NewString(cls.Code, cls.Code != ""),
		CreatedAt: null.NewTime(cls.CreatedAt.UTC(), !cls.CreatedAt.IsZero()),
		UpdatedAt: null.NewTime(cls.UpdatedAt.UTC(), !cls.UpdatedAt.IsZero()),
	}
}

func (repo classRepository) fromRow(row classRow) class.Class {
	return class.Class{
		ID:        row.ID,
		Name:      row.Name.String,
		Subject:   row.Subject.String,
		TeacherID: row.TeacherID.String,
		Code:      row.Code.String,
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}
}

func (repo classRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return class.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo classRepository) CreateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	cls.ID = uuid.New().String()
	row := repo.toRow(cls)

	q := `INSERT INTO class (id, name, subject, teacher_id, code, created_at, updated_at)
		VALUES (:id, :name, :subject, :teacher_id, :code, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return class.Class{}, errors.Wrap(err, "inserting class")
	}
	return repo.fromRow(row), nil
}

func (repo classRepository) QueryClasses(ctx context.Context, filter *class.QueryFilter, ordering []core.DBOrdering) ([]class.Class, error) {
	var conds []string
	var args []interface{}
	arg := func(val interface{}) string {
		args = append(args, val)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if filter.Search != "" {
			p := arg("%" + filter.Search + "%")
			conds = append(conds, fmt.Sprintf("(name ILIKE %[1]s OR subject ILIKE %[1]s)", p))
		}
		if filter.TeacherID != "" {
			conds = append(conds, "teacher_id = "+arg(filter.TeacherID))
		}
		if filter.StudentID != "" {
			p := arg(filter.StudentID)
			conds = append(conds, fmt.Sprintf("EXISTS (SELECT 1 FROM enrollment WHERE enrollment.class_id = class.id AND enrollment.student_id = %s)", p))
		}
	}

	q := `SELECT * FROM class`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += orderByClause(ordering, classOrderFields, "created_at DESC")

	var rows []classRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	classes := make([]class.Class, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, repo.fromRow(row))
	}
	return classes, nil
}

func (repo classRepository) GetClass(ctx context.Context, filter class.GetFilter) (class.Class, error) {
	var row classRow
	var err error

	if filter.ID != "" {
		if _, err = uuid.Parse(filter.ID); err != nil {
			return class.Class{}, class.ErrNotFound
		}
		err = repo.db.GetContext(ctx, &row, `SELECT * FROM class WHERE id = $1`, filter.ID)
	} else if filter.Code != "" {
		err = repo.db.GetContext(ctx, &row, `SELECT * FROM class WHERE code = $1`, filter.Code)
	} else {
		return class.Class{}, class.ErrNotFound
	}

	if err != nil {
		return class.Class{}, repo.trapNoRowsErr(err, "finding class")
	}
	return repo.fromRow(row), nil
}

func (repo classRepository) UpdateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	row := repo.toRow(cls)

	// unset fields keep their stored value; Code never changes after creation
	q := `UPDATE class SET
			name = COALESCE(NULLIF($2, ''), name),
			subject = COALESCE(NULLIF($3, ''), subject),
			teacher_id = COALESCE($4, teacher_id),
			updated_at = COALESCE($5, updated_at)
		WHERE id = $1
		RETURNING *`

	var updated classRow
	err := repo.db.GetContext(ctx, &updated, q, row.ID, cls.Name, cls.Subject, row.TeacherID, row.UpdatedAt)
	if err != nil {
		return class.Class{}, repo.trapNoRowsErr(err, "updating class")
	}
	return repo.fromRow(updated), nil
}

func (repo classRepository) DeleteClassesByID(ctx context.Context, ids []string) (int, error) {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM class WHERE id = ANY($1)`, pq.Array(validUUIDs(ids)))
	if err != nil {
		return 0, errors.Wrap(err, "deleting classes")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting classes")
	}
	return int(cnt), nil
}

func (repo classRepository) CreateEnrollment(ctx context.Context, enr class.Enrollment) error {
	q := `INSERT INTO enrollment (class_id, student_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (class_id, student_id) DO NOTHING`
	res, err := repo.db.ExecContext(ctx, q, enr.ClassID, enr.StudentID, enr.CreatedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "inserting enrollment")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "inserting enrollment")
	}
	if cnt == 0 {
		return class.ErrAlreadyEnrolled
	}
	return nil
}

func (repo classRepository) DeleteEnrollment(ctx context.Context, classID, studentID string) error {
	q := `DELETE FROM enrollment WHERE class_id = $1 AND student_id = $2`
	res, err := repo.db.ExecContext(ctx, q, classID, studentID)
	if err != nil {
		return errors.Wrap(err, "deleting enrollment")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "deleting enrollment")
	}
	if cnt == 0 {
		return class.ErrNotEnrolled
	}
	return nil
}

func (repo classRepository) IsEnrolled(ctx context.Context, classID, studentID string) (bool, error) {
	q := `SELECT EXISTS (SELECT 1 FROM enrollment WHERE class_id = $1 AND student_id = $2)`
	var enrolled bool
	if err := repo.db.GetContext(ctx, &enrolled, q, classID, studentID); err != nil {
		return false, errors.Wrap(err, "checking enrollment")
	}
	return enrolled, nil
}

func (repo classRepository) QueryStudents(ctx context.Context, classID string) ([]user.User, error) {
	q := `SELECT u.* FROM "user" u
		INNER JOIN enrollment e ON e.student_id = u.id
		WHERE e.class_id = $1
		ORDER BY u.name ASC`
	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, q, classID); err != nil {
		return nil, errors.Wrap(err, "querying class students")
	}
	return repo.usrRepo.fromRows(rows), nil
}

var classOrderFields = map[string]struct{}{
	"name": {}, "subject": {}, "created_at": {}, "updated_at": {},
}
