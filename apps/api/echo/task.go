package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/task"
	"github.com/trezcool/shule/core/user"
)

type taskApi struct {
	svc    task.Service
	usrSvc user.Service
}

func registerTaskAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc task.Service, usrSvc user.Service) {
	api := taskApi{svc: svc, usrSvc: usrSvc}

	tg := g.Group("/tasks", jwt)

	tg.POST("", api.create, adminMiddleware())
	tg.GET("", api.query, adminMiddleware())
	tg.GET("/stats", api.stats, adminMiddleware())
	tg.GET("/export", api.export, adminMiddleware())
	tg.GET("/notifications", api.notificationFeed, adminMiddleware())
	tg.GET("/mine", api.mine, studentMiddleware())

	dg := tg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PATCH("", api.update, adminMiddleware())
	dg.DELETE("", api.destroy, adminMiddleware())
	dg.PATCH("/start", api.start, studentMiddleware())
	dg.POST("/submit", api.submit, studentMiddleware())
	dg.POST("/complete", api.complete, studentMiddleware())
	dg.POST("/review", api.review, adminMiddleware())
	dg.POST("/notifications/read", api.markNotificationsRead, adminMiddleware())
}

// Handlers

func (api *taskApi) create(ctx echo.Context) error {
	var data task.NewTask
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTask")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	t, err := api.svc.Create(ctx.Request().Context(), data, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "creating task")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *taskApi) query(ctx echo.Context) error {
	f := bindTaskFilter(ctx)
	tasks, total, err := api.svc.Query(ctx.Request().Context(), f)
	if err != nil {
		return errors.Wrap(err, "querying tasks")
	}
	return ctx.JSON(http.StatusOK, PaginatedTasks{Tasks: tasks, Total: total})
}

func (api *taskApi) mine(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	f := bindTaskFilter(ctx)
	tasks, total, err := api.svc.StudentTasks(ctx.Request().Context(), ctxUsr.ID.Hex(), f)
	if err != nil {
		return errors.Wrap(err, "querying tasks")
	}
	return ctx.JSON(http.StatusOK, PaginatedTasks{Tasks: tasks, Total: total})
}

func (api *taskApi) retrieve(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	t, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), ctxUsr)
	if err != nil {
		return errors.Wrap(err, "getting task")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *taskApi) update(ctx echo.Context) error {
	var data UpdateTaskRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTaskRequest")
	}
	cmds := data.commands()
	if len(cmds) == 0 {
		return core.NewValidationError(errors.New("no fields to update"))
	}

	t, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), cmds...)
	if err != nil {
		return errors.Wrap(err, "updating task")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *taskApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting task")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *taskApi) start(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	t, err := api.svc.Start(ctx.Request().Context(), ctx.Param("id"), ctxUsr)
	if err != nil {
		return errors.Wrap(err, "starting task")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *taskApi) submit(ctx echo.Context) error {
	var data task.SubmitTask
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitTask")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	t, err := api.svc.Submit(ctx.Request().Context(), ctx.Param("id"), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "submitting task")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *taskApi) complete(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	t, err := api.svc.Complete(ctx.Request().Context(), ctx.Param("id"), ctxUsr)
	if err != nil {
		return errors.Wrap(err, "completing task")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *taskApi) review(ctx echo.Context) error {
	var data task.ReviewTask
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReviewTask")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	t, err := api.svc.Review(ctx.Request().Context(), ctx.Param("id"), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "reviewing task")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *taskApi) notificationFeed(ctx echo.Context) error {
	feed, err := api.svc.UnreadSubmissionFeed(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying notification feed")
	}
	if feed == nil {
		feed = []task.FeedItem{}
	}
	return ctx.JSON(http.StatusOK, feed)
}

func (api *taskApi) markNotificationsRead(ctx echo.Context) error {
	t, err := api.svc.MarkNotificationsRead(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "marking notifications read")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *taskApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "aggregating task stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *taskApi) export(ctx echo.Context) error {
	export, err := api.svc.ExportData(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "exporting data")
	}
	return ctx.JSON(http.StatusOK, export)
}

// Bindings

type (
	PaginatedTasks struct {
		Tasks []task.Task `json:"tasks"`
		Total int         `json:"total"`
	}

	// UpdateTaskRequest maps the set fields of a PATCH body onto typed
	// update commands; unknown fields are ignored.
	UpdateTaskRequest struct {
		Title        *string    `json:"title"`
		Description  *string    `json:"description"`
		Category     *string    `json:"category"`
		Deadline     *time.Time `json:"deadline"`
		Priority     *string    `json:"priority"`
		Requirements []string   `json:"requirements"`
		AssignedTo   []string   `json:"assigned_to"`
	}
)

func (r *UpdateTaskRequest) commands() []task.UpdateCommand {
	var cmds []task.UpdateCommand
	if r.Title != nil {
		cmds = append(cmds, &task.Rename{Title: *r.Title})
	}
	if r.Description != nil {
		cmds = append(cmds, &task.Redescribe{Description: *r.Description})
	}
	if r.Category != nil {
		cmds = append(cmds, &task.Recategorize{Category: *r.Category})
	}
	if r.Deadline != nil {
		cmds = append(cmds, &task.Reschedule{Deadline: *r.Deadline})
	}
	if r.Priority != nil {
		cmds = append(cmds, &task.Reprioritize{Priority: *r.Priority})
	}
	if r.Requirements != nil {
		cmds = append(cmds, &task.Respecify{Requirements: r.Requirements})
	}
	if r.AssignedTo != nil {
		cmds = append(cmds, &task.Reassign{AssignedTo: r.AssignedTo})
	}
	return cmds
}

func bindTaskFilter(ctx echo.Context) task.Filter {
	f := task.Filter{
		Status:   ctx.QueryParam("status"),
		Category: ctx.QueryParam("category"),
	}
	if page, err := strconv.Atoi(ctx.QueryParam("page")); err == nil && page > 0 {
		f.Page = page
	}
	if limit, err := strconv.Atoi(ctx.QueryParam("limit")); err == nil && limit > 0 {
		f.Limit = limit
	}
	return f
}
