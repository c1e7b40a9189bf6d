package tests

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/trezcool/shule/core/assignment"
	testutil "github.com/trezcool/shule/tests"
)

func Test_assignmentApi_retrieve(t *testing.T) {
	f := setupClassFixtures(t)
	asg := testutil.CreateAssignment(t, asgRepo, f.cls.ID, "Scales", 20, time.Now().Add(24*time.Hour).UTC())
	path := "/v1/assignments/" + asg.ID

	tests := []httpTest{
		{name: "Auth required", path: path, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "class teacher", path: path, token: getToken(t, f.teacher), wantCode: http.StatusOK, wantData: marchallObj(t, asg)},
		{name: "enrolled student", path: path, token: getToken(t, f.student), wantCode: http.StatusOK, wantData: marchallObj(t, asg)},
		{name: "hidden from outsiders", path: path, token: getToken(t, f.outsider), wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{
			name: "unknown assignment", path: "/v1/assignments/6cd9d0c4-0b6d-4ac0-b576-e63e69a6f787", token: getToken(t, f.admin),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_assignmentApi_update(t *testing.T) {
	f := setupClassFixtures(t)
	asg := testutil.CreateAssignment(t, asgRepo, f.cls.ID, "Scales", 20, time.Now().Add(24*time.Hour).UTC())
	path := "/v1/assignments/" + asg.ID

	tests := []httpTest{
		{
			name: "Staff only", path: path, token: getToken(t, f.student),
			body: marchallObj(t, assignment.UpdateAssignment{Title: "Hacked"}), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name: "points must be positive", path: path, token: getToken(t, f.teacher),
			body: marchallObj(t, assignment.UpdateAssignment{Points: -2}), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"points": "points must be greater than 0"}),
		},
		{
			name: "teacher updates", path: path, token: getToken(t, f.teacher),
			body: marchallObj(t, assignment.UpdateAssignment{Title: "Scales & Arpeggios", Points: 30}), wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPut

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var got assignment.Assignment
				if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if got.Title != "Scales & Arpeggios" || got.Points != 30 || got.ClassID != f.cls.ID {
					t.Errorf("failed! unexpected assignment %+v", got)
				}
				if !got.DueAt.Equal(asg.DueAt) {
					t.Errorf("failed! due_at changed to %v", got.DueAt)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_assignmentApi_destroy(t *testing.T) {
	f := setupClassFixtures(t)
	asg := testutil.CreateAssignment(t, asgRepo, f.cls.ID, "Scales", 20, time.Now().Add(24*time.Hour).UTC())
	sub := testutil.CreateSubmission(t, asgRepo, asg.ID, f.student.ID, "do re mi", false)
	path := "/v1/assignments/" + asg.ID

	tests := []httpTest{
		{
			name: "Staff only", path: path, token: getToken(t, f.student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{name: "assignment deleted", path: path, token: getToken(t, f.teacher), wantCode: http.StatusNoContent},
		{
			name: "already gone", path: path, token: getToken(t, f.teacher),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound),
		},
		{
			name: "submissions went with it", method: http.MethodGet, path: "/v1/submissions/" + sub.ID,
			token: getToken(t, f.teacher), wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound),
		},
	}
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodDelete
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusNoContent {
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_assignmentApi_submit(t *testing.T) {
	f := setupClassFixtures(t)
	asg := testutil.CreateAssignment(t, asgRepo, f.cls.ID, "Scales", 20, time.Now().Add(24*time.Hour).UTC())
	path := "/v1/assignments/" + asg.ID + "/submissions"

	subBody := marchallObj(t, assignment.NewSubmission{Content: "do re mi"})

	tests := []httpTest{
		{name: "Auth required", token: "", body: subBody, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Students only", token: getToken(t, f.teacher), body: subBody,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "hidden from outsiders", token: getToken(t, f.outsider), body: subBody,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound),
		},
		{
			name: "required fields", token: getToken(t, f.student), body: marchallObj(t, assignment.NewSubmission{}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"content": "this field is required"}),
		},
		{name: "submitted", token: getToken(t, f.student), body: subBody, wantCode: http.StatusCreated},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = path

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var sub assignment.Submission
				if err := json.Unmarshal(rec.Body.Bytes(), &sub); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if sub.ID == "" || sub.StudentID != f.student.ID || sub.Late || sub.Grade != nil {
					t.Errorf("failed! unexpected submission %+v", sub)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_assignmentApi_querySubmissions(t *testing.T) {
	f := setupClassFixtures(t)

	testutil.Enroll(t, clsRepo, f.cls.ID, f.outsider.ID)
	asg := testutil.CreateAssignment(t, asgRepo, f.cls.ID, "Scales", 20, time.Now().Add(24*time.Hour).UTC())
	heroSub := testutil.CreateSubmission(t, asgRepo, asg.ID, f.student.ID, "do re mi", false)
	otherSub := testutil.CreateSubmission(t, asgRepo, asg.ID, f.outsider.ID, "fa sol la", false)
	path := "/v1/assignments/" + asg.ID + "/submissions"

	tests := []httpTest{
		{name: "a student sees only their own", path: path, token: getToken(t, f.student), wantCode: http.StatusOK, wantData: marchallList(t, heroSub)},
		{
			name: "staff sees all (newest first)", path: path, token: getToken(t, f.teacher),
			wantCode: http.StatusOK, wantData: marchallList(t, otherSub, heroSub),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_assignmentApi_retrieveSubmission(t *testing.T) {
	f := setupClassFixtures(t)

	asg := testutil.CreateAssignment(t, asgRepo, f.cls.ID, "Scales", 20, time.Now().Add(24*time.Hour).UTC())
	sub := testutil.CreateSubmission(t, asgRepo, asg.ID, f.student.ID, "do re mi", false)
	path := "/v1/submissions/" + sub.ID

	tests := []httpTest{
		{name: "owner", path: path, token: getToken(t, f.student), wantCode: http.StatusOK, wantData: marchallObj(t, sub)},
		{name: "class teacher", path: path, token: getToken(t, f.teacher), wantCode: http.StatusOK, wantData: marchallObj(t, sub)},
		{name: "admin", path: path, token: getToken(t, f.admin), wantCode: http.StatusOK, wantData: marchallObj(t, sub)},
		{name: "hidden from others", path: path, token: getToken(t, f.outsider), wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{
			name: "unknown submission", path: "/v1/submissions/6cd9d0c4-0b6d-4ac0-b576-e63e69a6f787", token: getToken(t, f.admin),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_assignmentApi_grade(t *testing.T) {
	f := setupClassFixtures(t)

	asg := testutil.CreateAssignment(t, asgRepo, f.cls.ID, "Scales", 20, time.Now().Add(24*time.Hour).UTC())
	sub := testutil.CreateSubmission(t, asgRepo, asg.ID, f.student.ID, "do re mi", false)
	path := "/v1/submissions/" + sub.ID + "/grade"

	gradeBody := func(score float64, comment string) []byte {
		return marchallObj(t, map[string]interface{}{"score": score, "comment": comment})
	}

	tests := []httpTest{
		{
			name: "Staff only", path: path, token: getToken(t, f.student), body: gradeBody(20, "cheeky"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "score is required", path: path, token: getToken(t, f.teacher), body: []byte(`{"comment":"?"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"score": "this field is required"}),
		},
		{
			name: "score cannot exceed points", path: path, token: getToken(t, f.teacher), body: gradeBody(25, ""),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"score": "score cannot exceed the assignment's 20 points"}),
		},
		{name: "graded", path: path, token: getToken(t, f.teacher), body: gradeBody(15, "decent"), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPut

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var got assignment.Submission
				if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if got.Grade == nil || got.Grade.Score != 15 || got.Grade.Comment != "decent" || got.Grade.GradedBy != f.teacher.ID {
					t.Errorf("failed! unexpected grade %+v", got.Grade)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}
