package class

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

var (
	// errors
	ErrNotFound        = errors.New("class not found")
	ErrAlreadyEnrolled = errors.New("student is already enrolled in this class")
	ErrNotEnrolled     = errors.New("student is not enrolled in this class")
)

type (
	Repository interface {
		CreateClass(ctx context.Context, cls Class) (Class, error)
		// QueryClasses applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Class.Name or Class.Subject.
		QueryClasses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Class, error)
		GetClass(ctx context.Context, filter GetFilter) (Class, error)
		UpdateClass(ctx context.Context, cls Class) (Class, error)
		DeleteClassesByID(ctx context.Context, ids []string) (int, error)
		CreateEnrollment(ctx context.Context, enr Enrollment) error
		DeleteEnrollment(ctx context.Context, classID, studentID string) error
		IsEnrolled(ctx context.Context, classID, studentID string) (bool, error)
		QueryStudents(ctx context.Context, classID string) ([]user.User, error)
	}

	Service interface {
		Create(ctx context.Context, nc NewClass) (Class, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Class, error)
		GetByID(ctx context.Context, id string) (Class, error)
		GetByCode(ctx context.Context, code string) (Class, error)
		Update(ctx context.Context, id string, uc UpdateClass) (Class, error)
		Delete(ctx context.Context, ids ...string) error
		Enroll(ctx context.Context, classID, studentID string) error
		Unenroll(ctx context.Context, classID, studentID string) error
		IsEnrolled(ctx context.Context, classID, studentID string) (bool, error)
		Students(ctx context.Context, classID string) ([]user.User, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, nc NewClass) (Class, error) {
	now := time.Now().UTC()
	cls := Class{
		Name:      nc.Name,
		Subject:   nc.Subject,
		TeacherID: nc.TeacherID,
		Code:      MakeJoinCode(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateClass(ctx, cls)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Class, error) {
	return svc.repo.QueryClasses(ctx, filter, ordering)
}

func (svc *service) GetByID(ctx context.Context, id string) (Class, error) {
	return svc.repo.GetClass(ctx, GetFilter{ID: id})
}

func (svc *service) GetByCode(ctx context.Context, code string) (Class, error) {
	return svc.repo.GetClass(ctx, GetFilter{Code: core.CleanString(code, true /* lower */)})
}

func (svc *service) Update(ctx context.Context, id string, uc UpdateClass) (Class, error) {
	cls := Class{
		ID:        id,
		Name:      uc.Name,
		Subject:   uc.Subject,
		TeacherID: uc.TeacherID,
		UpdatedAt: time.Now().UTC(),
	}
	return svc.repo.UpdateClass(ctx, cls)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteClassesByID(ctx, ids)
	return err
}

func (svc *service) Enroll(ctx context.Context, classID, studentID string) error {
	enr := Enrollment{
		ClassID:   classID,
		StudentID: studentID,
		CreatedAt: time.Now().UTC(),
	}
	return svc.repo.CreateEnrollment(ctx, enr)
}

func (svc *service) Unenroll(ctx context.Context, classID, studentID string) error {
	return svc.repo.DeleteEnrollment(ctx, classID, studentID)
}

func (svc *service) IsEnrolled(ctx context.Context, classID, studentID string) (bool, error) {
	return svc.repo.IsEnrolled(ctx, classID, studentID)
}

func (svc *service) Students(ctx context.Context, classID string) ([]user.User, error) {
	return svc.repo.QueryStudents(ctx, classID)
}
