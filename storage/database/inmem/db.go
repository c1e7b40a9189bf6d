// Package inmemdb provides mutex-guarded in-memory repositories used in tests
// and local development.
package inmemdb

import (
	"strings"
	"sync"

	"github.com/trezcool/shule/core/assignment"
	"github.com/trezcool/shule/core/class"
	"github.com/trezcool/shule/core/user"
)

type DB struct {
	mutex       sync.RWMutex
	users       map[string]*user.User
	classes     map[string]*class.Class
	enrollments map[string]*class.Enrollment      // classID|studentID
	assignments map[string]*assignment.Assignment // keyed by ID
	submissions map[string]*assignment.Submission // keyed by ID
}

func NewDB() *DB {
	return &DB{
		users:       make(map[string]*user.User),
		classes:     make(map[string]*class.Class),
		enrollments: make(map[string]*class.Enrollment),
		assignments: make(map[string]*assignment.Assignment),
		submissions: make(map[string]*assignment.Submission),
	}
}

// Reset drops all data. Tests only.
func (db *DB) Reset() {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.users = make(map[string]*user.User)
	db.classes = make(map[string]*class.Class)
	db.enrollments = make(map[string]*class.Enrollment)
	db.assignments = make(map[string]*assignment.Assignment)
	db.submissions = make(map[string]*assignment.Submission)
}

func enrollmentKey(classID, studentID string) string {
	return classID + "|" + studentID
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
