package handler

import (
	"Taleweave/internal/pkg/response"
	"Taleweave/internal/pkg/security"
	"Taleweave/internal/pkg/ws"
	"Taleweave/internal/service"
	log "log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WsHandler struct {
	hub     *ws.Hub
	handler ws.EventHandler
}

func NewWsHandler(hub *ws.Hub, eventHandler ws.EventHandler) *WsHandler {
	return &WsHandler{hub: hub, handler: eventHandler}
}

// Connect 建立 WebSocket 连接。浏览器的 WS 握手带不了自定义 Header，
// Token 走查询参数。
func (h *WsHandler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, service.UnauthorizedError)
		return
	}
	claims, err := security.ValidateToken(token)
	if err != nil {
		log.Warn("WS 鉴权失败", "err", err)
		response.Error(c, service.UnauthorizedError)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WS 协议升级失败", "err", err)
		return
	}

	client := ws.NewClient(h.hub, conn, h.handler, claims.UserID, "")
	h.hub.Register(client)
	log.Info("用户 WS 连接已建立", "userID", claims.UserID)

	go client.WritePump()
	client.ReadPump()
}
