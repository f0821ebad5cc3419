package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/blog"
	"github.com/trezcool/shule/core/task"
	"github.com/trezcool/shule/core/user"
)

type adminApi struct {
	deps *Deps
}

func registerAdminAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := adminApi{deps: deps}

	ag := g.Group("/admin", jwt, adminMiddleware())
	ag.GET("/dashboard", api.dashboard)
	ag.GET("/stats", api.stats)
}

func (api *adminApi) dashboard(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	roleStats, err := api.deps.UserSvc.RoleStats(reqCtx)
	if err != nil {
		return errors.Wrap(err, "aggregating role stats")
	}
	taskStats, err := api.deps.TaskSvc.Stats(reqCtx)
	if err != nil {
		return errors.Wrap(err, "aggregating task stats")
	}

	recentTasks, _, err := api.deps.TaskSvc.Query(reqCtx, task.Filter{Page: 1, Limit: maxDashboardItems})
	if err != nil {
		return errors.Wrap(err, "querying recent tasks")
	}
	posts, err := api.deps.BlogSvc.All(reqCtx)
	if err != nil {
		return errors.Wrap(err, "querying recent posts")
	}
	if len(posts) > maxDashboardItems {
		posts = posts[:maxDashboardItems]
	}

	students, err := api.deps.UserSvc.QueryStudents(reqCtx)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	performances := make([]StudentPerformance, 0, len(students))
	for _, s := range students {
		perf, err := api.deps.TaskSvc.StudentPerformance(reqCtx, s.ID.Hex())
		if err != nil {
			return errors.Wrap(err, "computing performance")
		}
		performances = append(performances, StudentPerformance{
			StudentID:   s.StudentID,
			Name:        s.Name,
			Category:    s.Category,
			IsActive:    s.IsActive,
			Performance: perf,
		})
	}

	return ctx.JSON(http.StatusOK, AdminDashboard{
		RoleStats:    roleStats,
		TaskStats:    taskStats,
		RecentTasks:  recentTasks,
		RecentPosts:  posts,
		Performances: performances,
	})
}

func (api *adminApi) stats(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	totalUsers, activeUsers, err := api.deps.UserSvc.CountUsers(reqCtx)
	if err != nil {
		return errors.Wrap(err, "counting users")
	}
	totalTasks, err := api.deps.TaskSvc.Count(reqCtx)
	if err != nil {
		return errors.Wrap(err, "counting tasks")
	}
	totalMessages, err := api.deps.MsgSvc.Count(reqCtx)
	if err != nil {
		return errors.Wrap(err, "counting messages")
	}
	totalPosts, err := api.deps.BlogSvc.Count(reqCtx)
	if err != nil {
		return errors.Wrap(err, "counting posts")
	}
	blogStats, err := api.deps.BlogSvc.Stats(reqCtx)
	if err != nil {
		return errors.Wrap(err, "aggregating blog stats")
	}

	return ctx.JSON(http.StatusOK, SystemStats{
		TotalUsers:    totalUsers,
		ActiveUsers:   activeUsers,
		TotalTasks:    totalTasks,
		TotalMessages: totalMessages,
		TotalPosts:    totalPosts,
		BlogStats:     blogStats,
	})
}

type (
	StudentPerformance struct {
		StudentID   string           `json:"student_id"`
		Name        string           `json:"name"`
		Category    string           `json:"category"`
		IsActive    bool             `json:"is_active"`
		Performance task.Performance `json:"performance"`
	}

	AdminDashboard struct {
		RoleStats    []user.RoleStat      `json:"role_stats"`
		TaskStats    task.Stats           `json:"task_stats"`
		RecentTasks  []task.Task          `json:"recent_tasks"`
		RecentPosts  []blog.Post          `json:"recent_posts"`
		Performances []StudentPerformance `json:"performances"`
	}

	SystemStats struct {
		TotalUsers    int        `json:"total_users"`
		ActiveUsers   int        `json:"active_users"`
		TotalTasks    int        `json:"total_tasks"`
		TotalMessages int        `json:"total_messages"`
		TotalPosts    int        `json:"total_posts"`
		BlogStats     blog.Stats `json:"blog_stats"`
	}
)
