package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/message"
	"github.com/trezcool/shule/core/user"
)

type messageApi struct {
	svc    message.Service
	usrSvc user.Service
}

func registerMessageAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc message.Service, usrSvc user.Service) {
	api := messageApi{svc: svc, usrSvc: usrSvc}

	mg := g.Group("/messages", jwt)
	mg.GET("", api.query)
	mg.POST("", api.send)
	mg.GET("/unread", api.unreadCount)
	mg.POST("/read/:userID", api.markRead)
	mg.GET("/conversations", api.conversations)
	mg.GET("/conversations/:userID", api.conversation)
}

// Handlers

func (api *messageApi) send(ctx echo.Context) error {
	var data message.NewMessage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	msg, err := api.svc.Send(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "sending message")
	}
	return ctx.JSON(http.StatusCreated, msg)
}

func (api *messageApi) query(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	msgs, err := api.svc.All(ctx.Request().Context(), ctxUsr)
	if err != nil {
		return errors.Wrap(err, "querying messages")
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *messageApi) unreadCount(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	count, err := api.svc.UnreadCount(ctx.Request().Context(), ctxUsr)
	if err != nil {
		return errors.Wrap(err, "counting unread messages")
	}
	return ctx.JSON(http.StatusOK, UnreadCountResponse{Unread: count})
}

func (api *messageApi) markRead(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err := api.svc.MarkRead(ctx.Request().Context(), ctxUsr, ctx.Param("userID")); err != nil {
		return errors.Wrap(err, "marking conversation read")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *messageApi) conversations(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	convos, err := api.svc.RecentConversations(ctx.Request().Context(), ctxUsr)
	if err != nil {
		return errors.Wrap(err, "aggregating conversations")
	}
	return ctx.JSON(http.StatusOK, convos)
}

func (api *messageApi) conversation(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	msgs, err := api.svc.Conversation(ctx.Request().Context(), ctxUsr, ctx.Param("userID"))
	if err != nil {
		return errors.Wrap(err, "querying conversation")
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	return ctx.JSON(http.StatusOK, msgs)
}

type UnreadCountResponse struct {
	Unread int `json:"unread"`
}
