package echoapi

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/services/push"
)

var upgrader = websocket.Upgrader{
	// the API serves browser clients on a different origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsApi struct {
	registry *pushsvc.Registry
	logger   core.Logger
}

func registerWebsocketAPI(g *echo.Group, registry *pushsvc.Registry, logger core.Logger) {
	api := wsApi{registry: registry, logger: logger}
	g.GET("/ws", api.connect)
}

// joinFrame is the first frame a client sends after the upgrade.
type joinFrame struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

func (api *wsApi) connect(ctx echo.Context) error {
	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return errors.Wrap(err, "upgrading connection")
	}

	var join joinFrame
	if err = conn.ReadJSON(&join); err != nil || join.Type != "join" || join.UserID == "" {
		_ = conn.Close()
		return nil
	}

	api.registry.Connect(join.UserID, conn)
	defer api.registry.Disconnect(join.UserID, conn)

	// hold the session open; the peer closing the socket ends the loop
	for {
		if _, _, err = conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				api.logger.Debug("websocket session ended", err)
			}
			_ = conn.Close()
			return nil
		}
	}
}
