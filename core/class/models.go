package class

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// Class is a course taught by one teacher and joined by students.
type Class struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	TeacherID string    `json:"teacher_id"`
	Code      string    `json:"code"`       // unique join code handed out to students
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Enrollment links a student to a Class.
type Enrollment struct {
	ClassID   string    `json:"class_id"`
	StudentID string    `json:"student_id"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// NewClass contains information needed to create a new Class.
type NewClass struct {
	Name      string `json:"name" validate:"required"`
	Subject   string `json:"subject" validate:"required"`
	TeacherID string `json:"teacher_id" validate:"omitempty,uuid4"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Subject = core.CleanString(nc.Subject)
	return validate.Struct(nc)
}

// UpdateClass defines what information may be provided to modify an existing Class.
type UpdateClass struct {
	Name      string `json:"name"`
	Subject   string `json:"subject"`
	TeacherID string `json:"teacher_id" validate:"omitempty,uuid4"`
}

func (uc *UpdateClass) Validate(origCls Class, validate *validator.Validate) error {
	name := core.CleanString(uc.Name)
	if name != "" {
		uc.Name = name
	} else {
		uc.Name = origCls.Name
	}

	subject := core.CleanString(uc.Subject)
	if subject != "" {
		uc.Subject = subject
	} else {
		uc.Subject = origCls.Subject
	}

	if uc.TeacherID == "" {
		uc.TeacherID = origCls.TeacherID
	}
	return validate.Struct(uc)
}

// JoinClass is a student's request to enroll by join code.
type JoinClass struct {
	Code string `json:"code" validate:"required"`
}

func (jc *JoinClass) Validate(validate *validator.Validate) error {
	jc.Code = core.CleanString(jc.Code, true /* lower */)
	return validate.Struct(jc)
}

type QueryFilter struct {
	Search    string `query:"search"`
	TeacherID string `query:"teacher"`
	StudentID string `query:"student"` // classes the student is enrolled in
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.TeacherID == "" && qf.StudentID == ""
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a single Class by one of its unique attributes.
type GetFilter struct {
	ID   string
	Code string
}

var codeAlphabet = []rune("abcdefghjkmnpqrstuvwxyz23456789") // no 0/o, 1/l/i

// MakeJoinCode generates a random 8-character class join code.
func MakeJoinCode() string {
	code := make([]rune, 8)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err) // crypto/rand is broken; nothing sane to do
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code)
}
