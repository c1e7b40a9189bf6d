package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/class"
	"github.com/trezcool/shule/core/user"
)

type classRepository struct {
	db *DB
}

var _ class.Repository = (*classRepository)(nil) // interface compliance check

func NewClassRepository(db *DB) *classRepository {
	return &classRepository{db: db}
}

func (repo *classRepository) query() []class.Class {
	classes := make([]class.Class, 0, len(repo.db.classes))
	for _, cls := range repo.db.classes {
		classes = append(classes, *cls)
	}
	return classes
}

func (repo *classRepository) CreateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	cls.ID = uuid.New().String()
	repo.db.classes[cls.ID] = &cls
	return cls, nil
}

func (repo *classRepository) QueryClasses(ctx context.Context, filter *class.QueryFilter, ordering []core.DBOrdering) ([]class.Class, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var classes []class.Class
	for _, cls := range repo.query() {
		if repo.matchFilter(cls, filter) {
			classes = append(classes, cls)
		}
	}
	sortClasses(classes, ordering)
	return classes, nil
}

func (repo *classRepository) matchFilter(cls class.Class, filter *class.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Search != "" && !containsFold(cls.Name, filter.Search) && !containsFold(cls.Subject, filter.Search) {
		return false
	}
	if filter.TeacherID != "" && cls.TeacherID != filter.TeacherID {
		return false
	}
	if filter.StudentID != "" {
		if _, ok := repo.db.enrollments[enrollmentKey(cls.ID, filter.StudentID)]; !ok {
			return false
		}
	}
	return true
}

func sortClasses(classes []class.Class, ordering []core.DBOrdering) {
	if len(ordering) == 0 {
		sort.Slice(classes, func(i, j int) bool { return classes[i].CreatedAt.After(classes[j].CreatedAt) })
		return
	}
	ord := ordering[0]
	sort.Slice(classes, func(i, j int) bool {
		a, b := classes[i], classes[j]
		var less bool
		switch ord.Field {
		case "name":
			less = strings.ToLower(a.Name) < strings.ToLower(b.Name)
		case "subject":
			less = strings.ToLower(a.Subject) < strings.ToLower(b.Subject)
		case "updated_at":
			less = a.UpdatedAt.Before(b.UpdatedAt)
		default:
			less = a.CreatedAt.Before(b.CreatedAt)
		}
		if ord.Ascending {
			return less
		}
		return !less
	})
}

func (repo *classRepository) GetClass(ctx context.Context, filter class.GetFilter) (class.Class, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if cls, ok := repo.db.classes[filter.ID]; ok {
			return *cls, nil
		}
		return class.Class{}, class.ErrNotFound
	}
	if filter.Code != "" {
		for _, cls := range repo.query() {
			if cls.Code == filter.Code {
				return cls, nil
			}
		}
	}
	return class.Class{}, class.ErrNotFound
}

func (repo *classRepository) UpdateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	// only save set fields
	origCls, ok := repo.db.classes[cls.ID]
	if !ok {
		return class.Class{}, class.ErrNotFound
	}
	if cls.Name != "" {
		origCls.Name = cls.Name
	}
	if cls.Subject != "" {
		origCls.Subject = cls.Subject
	}
	if cls.TeacherID != "" {
		origCls.TeacherID = cls.TeacherID
	}
	if !cls.UpdatedAt.IsZero() {
		origCls.UpdatedAt = cls.UpdatedAt
	}
	return *origCls, nil
}

func (repo *classRepository) DeleteClassesByID(ctx context.Context, ids []string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := repo.db.classes[id]; ok {
			delete(repo.db.classes, id)
			cnt++
			for key := range repo.db.enrollments {
				if strings.HasPrefix(key, id+"|") {
					delete(repo.db.enrollments, key)
				}
			}
		}
	}
	return cnt, nil
}

func (repo *classRepository) CreateEnrollment(ctx context.Context, enr class.Enrollment) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := enrollmentKey(enr.ClassID, enr.StudentID)
	if _, ok := repo.db.enrollments[key]; ok {
		return class.ErrAlreadyEnrolled
	}
	repo.db.enrollments[key] = &enr
	return nil
}

func (repo *classRepository) DeleteEnrollment(ctx context.Context, classID, studentID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := enrollmentKey(classID, studentID)
	if _, ok := repo.db.enrollments[key]; !ok {
		return class.ErrNotEnrolled
	}
	delete(repo.db.enrollments, key)
	return nil
}

func (repo *classRepository) IsEnrolled(ctx context.Context, classID, studentID string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	_, ok := repo.db.enrollments[enrollmentKey(classID, studentID)]
	return ok, nil
}

func (repo *classRepository) QueryStudents(ctx context.Context, classID string) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var students []user.User
	for _, enr := range repo.db.enrollments {
		if enr.ClassID != classID {
			continue
		}
		if usr, ok := repo.db.users[enr.StudentID]; ok {
			students = append(students, *usr)
		}
	}
	sort.Slice(students, func(i, j int) bool {
		return strings.ToLower(students[i].Name) < strings.ToLower(students[j].Name)
	})
	return students, nil
}
