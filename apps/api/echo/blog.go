package echoapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/blog"
	"github.com/trezcool/shule/core/user"
)

type blogApi struct {
	svc    blog.Service
	usrSvc user.Service
}

func registerBlogAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc blog.Service, usrSvc user.Service) {
	api := blogApi{svc: svc, usrSvc: usrSvc}

	bg := g.Group("/blog")

	// public endpoints
	bg.GET("", api.published)
	bg.GET("/:id", api.retrieve)

	// authed endpoints
	bg.POST("", api.create, jwt, adminMiddleware())
	bg.GET("/stats", api.stats, jwt, adminMiddleware())
	bg.PUT("/:id", api.update, jwt)
	bg.DELETE("/:id", api.destroy, jwt)
	bg.PATCH("/:id/publish", api.publish, jwt)
	bg.PATCH("/:id/archive", api.archive, jwt)
	bg.POST("/:id/comments", api.addComment, jwt)
}

// Handlers

func (api *blogApi) create(ctx echo.Context) error {
	var data blog.NewPost
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPost")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	p, err := api.svc.Create(ctx.Request().Context(), data, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "creating post")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *blogApi) published(ctx echo.Context) error {
	f := bindBlogFilter(ctx)
	posts, total, err := api.svc.Published(ctx.Request().Context(), f)
	if err != nil {
		return errors.Wrap(err, "querying published posts")
	}
	return ctx.JSON(http.StatusOK, PaginatedPosts{Posts: posts, Total: total})
}

func (api *blogApi) retrieve(ctx echo.Context) error {
	p, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting post")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *blogApi) update(ctx echo.Context) error {
	var data blog.UpdatePost
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePost")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	p, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "updating post")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *blogApi) destroy(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id"), ctxUsr); err != nil {
		return errors.Wrap(err, "deleting post")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *blogApi) publish(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	p, err := api.svc.Publish(ctx.Request().Context(), ctx.Param("id"), ctxUsr)
	if err != nil {
		return errors.Wrap(err, "publishing post")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *blogApi) archive(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	p, err := api.svc.Archive(ctx.Request().Context(), ctx.Param("id"), ctxUsr)
	if err != nil {
		return errors.Wrap(err, "archiving post")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *blogApi) addComment(ctx echo.Context) error {
	var data blog.NewComment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewComment")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	p, err := api.svc.AddComment(ctx.Request().Context(), ctx.Param("id"), data, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "adding comment")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *blogApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "aggregating blog stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

// Bindings

type PaginatedPosts struct {
	Posts []blog.Post `json:"posts"`
	Total int         `json:"total"`
}

func bindBlogFilter(ctx echo.Context) blog.Filter {
	f := blog.Filter{Category: ctx.QueryParam("category")}
	if tags := ctx.QueryParam("tags"); tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				f.Tags = append(f.Tags, tag)
			}
		}
	}
	if page, err := strconv.Atoi(ctx.QueryParam("page")); err == nil && page > 0 {
		f.Page = page
	}
	if limit, err := strconv.Atoi(ctx.QueryParam("limit")); err == nil && limit > 0 {
		f.Limit = limit
	}
	return f
}
