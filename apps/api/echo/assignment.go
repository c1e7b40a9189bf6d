package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/assignment"
	"github.com/trezcool/shule/core/class"
	"github.com/trezcool/shule/core/user"
)

var errAsgNotFoundInCtx = errors.New("assignment object not found in echo.Context")

type assignmentApi struct {
	svc      assignment.Service
	clsSvc   class.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerAssignmentAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc assignment.Service,
	clsSvc class.Service,
	usrSvc user.Service,
	validate *validator.Validate,
) {
	api := assignmentApi{
		svc:      svc,
		clsSvc:   clsSvc,
		usrSvc:   usrSvc,
		validate: validate,
	}

	ag := g.Group("/assignments", jwt, accessOnlyMiddleware)

	// detail endpoints; the assignment and its class are stashed for handlers
	dg := ag.Group("/:id", api.assignmentObjectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/submissions", api.submit, studentMiddleware())
	dg.GET("/submissions", api.querySubmissions)

	sg := g.Group("/submissions", jwt, accessOnlyMiddleware)
	sg.GET("/:id", api.retrieveSubmission)
	sg.PUT("/:id/grade", api.grade)
}

// assignmentObjectMiddleware loads the assignment and its class, hiding both
// from users with no stake in the class.
func (api *assignmentApi) assignmentObjectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		ctxUsr, err := getContextUser(ctx, api.usrSvc)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}

		asg, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			if errors.Cause(err) == assignment.ErrNotFound {
				return errHttpNotFound
			}
			return errors.Wrap(err, "finding assignment by ID")
		}

		cls, err := api.clsSvc.GetByID(ctx.Request().Context(), asg.ClassID)
		if err != nil {
			return errors.Wrap(err, "finding class by ID")
		}

		ok, err := api.isMember(ctx, cls, ctxUsr)
		if err != nil {
			return err
		}
		if !ok {
			return errHttpNotFound
		}

		ctx.Set("assignment", asg)
		ctx.Set("class", cls)
		return next(ctx)
	}
}

func (api *assignmentApi) isMember(ctx echo.Context, cls class.Class, usr user.User) (bool, error) {
	if usr.IsAdmin() || cls.TeacherID == usr.ID {
		return true, nil
	}
	if usr.IsStudent() {
		enrolled, err := api.clsSvc.IsEnrolled(ctx.Request().Context(), cls.ID, usr.ID)
		if err != nil {
			return false, errors.Wrap(err, "checking enrollment")
		}
		return enrolled, nil
	}
	return false, nil
}

func getContextAssignment(ctx echo.Context) (assignment.Assignment, error) {
	asg, ok := ctx.Get("assignment").(assignment.Assignment)
	if !ok {
		return assignment.Assignment{}, errors.Wrap(errAsgNotFoundInCtx, "retrieving object from context")
	}
	return asg, nil
}

// Handlers

func (api *assignmentApi) retrieve(ctx echo.Context) error {
	asg, err := getContextAssignment(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, asg)
}

func (api *assignmentApi) update(ctx echo.Context) error {
	asg, err := getContextAssignment(ctx)
	if err != nil {
		return err
	}
	if err = api.checkClassStaff(ctx); err != nil {
		return err
	}

	var data assignment.UpdateAssignment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAssignment")
	}
	if err = data.Validate(asg, api.validate); err != nil {
		return err
	}

	asg, err = api.svc.Update(ctx.Request().Context(), asg.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating assignment")
	}
	return ctx.JSON(http.StatusOK, asg)
}

func (api *assignmentApi) destroy(ctx echo.Context) error {
	asg, err := getContextAssignment(ctx)
	if err != nil {
		return err
	}
	if err = api.checkClassStaff(ctx); err != nil {
		return err
	}

	if err = api.svc.Delete(ctx.Request().Context(), asg.ID); err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *assignmentApi) submit(ctx echo.Context) error {
	asg, err := getContextAssignment(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data assignment.NewSubmission
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	sub, err := api.svc.Submit(ctx.Request().Context(), asg.ID, ctxUsr.ID, data)
	if err != nil {
		return errors.Wrap(err, "submitting assignment")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *assignmentApi) querySubmissions(ctx echo.Context) error {
	asg, err := getContextAssignment(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	filter := assignment.SubmissionFilter{AssignmentID: asg.ID}

	// students only see their own submissions
	cls, _ := getContextClass(ctx)
	if !isClassStaff(cls, ctxUsr) {
		filter.StudentID = ctxUsr.ID
	}

	subs, err := api.svc.Submissions(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	if subs == nil {
		subs = []assignment.Submission{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *assignmentApi) retrieveSubmission(ctx echo.Context) error {
	sub, cls, err := api.getSubmissionAndClass(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if sub.StudentID != ctxUsr.ID && !isClassStaff(cls, ctxUsr) {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *assignmentApi) grade(ctx echo.Context) error {
	sub, cls, err := api.getSubmissionAndClass(ctx)
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

	var data assignment.NewGrade
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGrade")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	sub, err = api.svc.GradeSubmission(ctx.Request().Context(), sub.ID, ctxUsr.ID, data)
	if err != nil {
		return errors.Wrap(err, "grading submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *assignmentApi) getSubmissionAndClass(ctx echo.Context) (assignment.Submission, class.Class, error) {
	sub, err := api.svc.GetSubmission(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == assignment.ErrSubmissionNotFound {
			return assignment.Submission{}, class.Class{}, errHttpNotFound
		}
		return assignment.Submission{}, class.Class{}, errors.Wrap(err, "finding submission by ID")
	}
	asg, err := api.svc.GetByID(ctx.Request().Context(), sub.AssignmentID)
	if err != nil {
		return assignment.Submission{}, class.Class{}, errors.Wrap(err, "finding assignment by ID")
	}
	cls, err := api.clsSvc.GetByID(ctx.Request().Context(), asg.ClassID)
	if err != nil {
		return assignment.Submission{}, class.Class{}, errors.Wrap(err, "finding class by ID")
	}
	return sub, cls, nil
}

// checkClassStaff enforces class-staff rights on the stashed class.
func (api *assignmentApi) checkClassStaff(ctx echo.Context) error {
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
	return nil
}
