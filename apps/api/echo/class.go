package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/assignment"
	"github.com/trezcool/shule/core/class"
	"github.com/trezcool/shule/core/user"
)

var errClsNotFoundInCtx = errors.New("class object not found in echo.Context")

type classApi struct {
	svc      class.Service
	asgSvc   assignment.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerClassAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc class.Service,
	asgSvc assignment.Service,
	usrSvc user.Service,
	validate *validator.Validate,
) {
	api := classApi{
		svc:      svc,
		asgSvc:   asgSvc,
		usrSvc:   usrSvc,
		validate: validate,
	}

	cg := g.Group("/classes", jwt, accessOnlyMiddleware)

	cg.POST("", api.create, staffMiddleware())
	cg.GET("", api.query)
	cg.POST("/join", api.join, studentMiddleware())

	// detail endpoints; the class is stashed as "class" for handlers
	dg := cg.Group("/:id", api.classObjectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, adminMiddleware())
	dg.GET("/students", api.students)
	dg.POST("/students", api.enroll)
	dg.DELETE("/students/:studentID", api.unenroll)
	dg.GET("/assignments", api.queryAssignments)
	dg.POST("/assignments", api.createAssignment)
	dg.GET("/grades", api.grades)
}

// classObjectMiddleware loads the class and hides it from users with no stake
// in it: only admins, the class teacher and enrolled students get through.
func (api *classApi) classObjectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		ctxUsr, err := getContextUser(ctx, api.usrSvc)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}

		cls, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			if errors.Cause(err) == class.ErrNotFound {
				return errHttpNotFound
			}
			return errors.Wrap(err, "finding class by ID")
		}

		ok, err := api.isMember(ctx, cls, ctxUsr)
		if err != nil {
			return err
		}
		if !ok {
			return errHttpNotFound
		}

		ctx.Set("class", cls)
		return next(ctx)
	}
}

func (api *classApi) isMember(ctx echo.Context, cls class.Class, usr user.User) (bool, error) {
	if usr.IsAdmin() || cls.TeacherID == usr.ID {
		return true, nil
	}
	if usr.IsStudent() {
		enrolled, err := api.svc.IsEnrolled(ctx.Request().Context(), cls.ID, usr.ID)
		if err != nil {
			return false, errors.Wrap(err, "checking enrollment")
		}
		return enrolled, nil
	}
	return false, nil
}

// isClassStaff reports whether usr may manage the class.
func isClassStaff(cls class.Class, usr user.User) bool {
	return usr.IsAdmin() || cls.TeacherID == usr.ID
}

func getContextClass(ctx echo.Context) (class.Class, error) {
	cls, ok := ctx.Get("class").(class.Class)
	if !ok {
		return class.Class{}, errors.Wrap(errClsNotFoundInCtx, "retrieving object from context")
	}
	return cls, nil
}

// Handlers

func (api *classApi) create(ctx echo.Context) error {
	var data class.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !ctxUsr.IsAdmin() {
		// a teacher can only create their own classes
		data.TeacherID = ctxUsr.ID
	} else if data.TeacherID != "" {
		if err = api.checkTeacher(ctx, data.TeacherID); err != nil {
			return err
		}
	}

	cls, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, cls)
}

func (api *classApi) checkTeacher(ctx echo.Context, teacherID string) error {
	tchr, err := api.usrSvc.GetByID(ctx.Request().Context(), teacherID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(nil, core.FieldError{Field: "teacher_id", Error: user.ErrNotFound.Error()})
		}
		return errors.Wrap(err, "finding teacher by ID")
	}
	if !tchr.IsTeacher() {
		return core.NewValidationError(nil, core.FieldError{Field: "teacher_id", Error: "user is not a teacher"})
	}
	return nil
}

func (api *classApi) query(ctx echo.Context) error {
	filter := new(class.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []class.Class{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	// non-admins only see their own classes
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !ctxUsr.IsAdmin() {
		if ctxUsr.IsTeacher() {
			filter.TeacherID = ctxUsr.ID
		} else {
			filter.StudentID = ctxUsr.ID
		}
	}

	classes, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []class.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *classApi) join(ctx echo.Context) error {
	var data class.JoinClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to JoinClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cls, err := api.svc.GetByCode(ctx.Request().Context(), data.Code)
	if err != nil {
		if errors.Cause(err) == class.ErrNotFound {
			return core.NewValidationError(nil, core.FieldError{Field: "code", Error: "unknown join code"})
		}
		return errors.Wrap(err, "finding class by code")
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.svc.Enroll(ctx.Request().Context(), cls.ID, ctxUsr.ID); err != nil {
		if errors.Cause(err) == class.ErrAlreadyEnrolled {
			return core.NewValidationError(nil, core.FieldError{Field: "code", Error: err.Error()})
		}
		return errors.Wrap(err, "enrolling student")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *classApi) retrieve(ctx echo.Context) error {
	cls, err := getContextClass(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *classApi) update(ctx echo.Context) error {
	cls, err := getContextClass(ctx)
	if err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !isClassStaff(cls, ctxUsr) {
		return errHttpForbidden
	}

	var data class.UpdateClass
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClass")
	}

	// only admin may reassign the class to another teacher
	if !ctxUsr.IsAdmin() && data.TeacherID != "" && data.TeacherID != cls.TeacherID {
		return errHttpForbidden
	}
	if ctxUsr.IsAdmin() && data.TeacherID != "" && data.TeacherID != cls.TeacherID {
		if err = api.checkTeacher(ctx, data.TeacherID); err != nil {
			return err
		}
	}

	if err = data.Validate(cls, api.validate); err != nil {
		return err
	}

	cls, err = api.svc.Update(ctx.Request().Context(), cls.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *classApi) destroy(ctx echo.Context) error {
	cls, err := getContextClass(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), cls.ID); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *classApi) students(ctx echo.Context) error {
	cls, err := getContextClass(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !isClassStaff(cls, ctxUsr) {
		return errHttpForbidden
	}

	students, err := api.svc.Students(ctx.Request().Context(), cls.ID)
	if err != nil {
		return errors.Wrap(err, "querying class students")
	}
	if students == nil {
		students = []user.User{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *classApi) enroll(ctx echo.Context) error {
	cls, err := getContextClass(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !isClassStaff(cls, ctxUsr) {
		return errHttpForbidden
	}

	var data EnrollRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EnrollRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	stdnt, err := api.usrSvc.GetByID(ctx.Request().Context(), data.StudentID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(nil, core.FieldError{Field: "student_id", Error: user.ErrNotFound.Error()})
		}
		return errors.Wrap(err, "finding student by ID")
	}
	if !stdnt.IsStudent() {
		return core.NewValidationError(nil, core.FieldError{Field: "student_id", Error: "user is not a student"})
	}

	if err = api.svc.Enroll(ctx.Request().Context(), cls.ID, stdnt.ID); err != nil {
		if errors.Cause(err) == class.ErrAlreadyEnrolled {
			return core.NewValidationError(nil, core.FieldError{Field: "student_id", Error: err.Error()})
		}
		return errors.Wrap(err, "enrolling student")
	}
	return ctx.NoContent(http.StatusCreated)
}

func (api *classApi) unenroll(ctx echo.Context) error {
	cls, err := getContextClass(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	studentID := ctx.Param("studentID")
	// a student may leave a class themselves; otherwise class staff only
	if studentID != ctxUsr.ID && !isClassStaff(cls, ctxUsr) {
		return errHttpForbidden
	}

	if err = api.svc.Unenroll(ctx.Request().Context(), cls.ID, studentID); err != nil {
		if errors.Cause(err) == class.ErrNotEnrolled {
			return errHttpNotFound
		}
		return errors.Wrap(err, "unenrolling student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *classApi) queryAssignments(ctx echo.Context) error {
	cls, err := getContextClass(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	assignments, err := api.asgSvc.QueryByClass(ctx.Request().Context(), cls.ID, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	if assignments == nil {
		assignments = []assignment.Assignment{}
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *classApi) createAssignment(ctx echo.Context) error {
	cls, err := getContextClass(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !isClassStaff(cls, ctxUsr) {
		return errHttpForbidden
	}

	var data assignment.NewAssignment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	asg, err := api.asgSvc.Create(ctx.Request().Context(), cls.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, asg)
}

func (api *classApi) grades(ctx echo.Context) error {
	cls, err := getContextClass(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	// students only see their own grades
	var studentID string
	if !isClassStaff(cls, ctxUsr) {
		studentID = ctxUsr.ID
	} else {
		studentID = ctx.QueryParam("student")
	}

	summary, err := api.asgSvc.ClassGrades(ctx.Request().Context(), cls.ID, studentID)
	if err != nil {
		return errors.Wrap(err, "querying class grades")
	}
	if summary.Grades == nil {
		summary.Grades = []assignment.StudentGrade{}
	}
	return ctx.JSON(http.StatusOK, summary)
}

type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required,uuid4"`
}

func (er *EnrollRequest) Validate(validate *validator.Validate) error {
	er.StudentID = core.CleanString(er.StudentID, true /* lower */)
	return validate.Struct(er)
}
