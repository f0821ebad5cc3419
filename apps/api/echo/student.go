package echoapi

import (
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/task"
	"github.com/trezcool/shule/core/user"
)

type studentApi struct {
	svc     user.Service
	taskSvc task.Service
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc user.Service, taskSvc task.Service) {
	api := studentApi{svc: svc, taskSvc: taskSvc}

	sg := g.Group("/students", jwt)
	sg.GET("", api.query, adminMiddleware())
	sg.GET("/dashboard", api.dashboard, studentMiddleware())
	sg.PATCH("/:id/status", api.setStatus, adminMiddleware())
	sg.GET("/:id/tasks", api.tasks, adminMiddleware())
}

func (api *studentApi) query(ctx echo.Context) error {
	students, err := api.svc.QueryStudents(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []user.User{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) setStatus(ctx echo.Context) error {
	var data StatusRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	usr, err := api.svc.SetStudentStatus(ctx.Request().Context(), ctx.Param("id"), *data.IsActive)
	if err != nil {
		return errors.Wrap(err, "setting student status")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *studentApi) tasks(ctx echo.Context) error {
	f := bindTaskFilter(ctx)
	tasks, total, err := api.taskSvc.StudentTasks(ctx.Request().Context(), ctx.Param("id"), f)
	if err != nil {
		return errors.Wrap(err, "querying student tasks")
	}
	return ctx.JSON(http.StatusOK, PaginatedTasks{Tasks: tasks, Total: total})
}

func (api *studentApi) dashboard(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	reqCtx := ctx.Request().Context()
	uid := ctxUsr.ID.Hex()

	tasks, _, err := api.taskSvc.StudentTasks(reqCtx, uid, task.Filter{})
	if err != nil {
		return errors.Wrap(err, "querying student tasks")
	}

	statusCounts := make(map[string]int)
	upcoming := make([]task.Task, 0)
	now := time.Now().UTC()
	for _, t := range tasks {
		statusCounts[t.Status]++
		if t.Status != task.StatusCompleted && t.Deadline.After(now) {
			upcoming = append(upcoming, t)
		}
	}
	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].Deadline.Before(upcoming[j].Deadline) })
	if len(upcoming) > maxDashboardItems {
		upcoming = upcoming[:maxDashboardItems]
	}

	perf, err := api.taskSvc.StudentPerformance(reqCtx, uid)
	if err != nil {
		return errors.Wrap(err, "computing performance")
	}

	return ctx.JSON(http.StatusOK, StudentDashboard{
		NextDeadlines: upcoming,
		StatusCounts:  statusCounts,
		Performance:   perf,
	})
}

const maxDashboardItems = 5

type (
	StatusRequest struct {
		IsActive *bool `json:"is_active" validate:"required"`
	}

	StudentDashboard struct {
		NextDeadlines []task.Task      `json:"next_deadlines"`
		StatusCounts  map[string]int   `json:"status_counts"`
		Performance   task.Performance `json:"performance"`
	}
)

func (sr *StatusRequest) Validate() error { return core.Validate.Struct(sr) }
