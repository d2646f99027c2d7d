package ws

import (
	log "log/slog"

	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBufferSize = 64
)

// Client 单条 WebSocket 连接
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	handler EventHandler

	UserID   uint64
	Username string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, handler EventHandler, userID uint64, username string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		handler:  handler,
		UserID:   userID,
		Username: username,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}
}

// shutdown 通知写循环退出，可重复调用
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// enqueue 非阻塞投递，慢消费者直接丢弃而不是拖垮派发循环
func (c *Client) enqueue(payload []byte) {
	select {
	case <-c.done:
	case c.send <- payload:
	default:
		log.Warn("连接发送缓冲已满，丢弃消息", "userID", c.UserID)
	}
}

// SendEvent 只发给本连接，不经过总线
func (c *Client) SendEvent(evt Event) {
	data, err := evt.Encode()
	if err != nil {
		log.Error("事件编码失败", "event", evt.Event, "error", err)
		return
	}
	c.enqueue(data)
}

// SendError 把业务错误回送给发起连接
func (c *Client) SendError(message string) {
	c.SendEvent(Event{Event: EventError, Data: ErrorPayload{Message: message}})
}

// ReadPump 读循环，连接断开（含读超时）时负责注销
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("连接异常断开", "userID", c.UserID, "error", err)
			}
			return
		}
		c.handle(raw)
	}
}

// handle 解析入站事件并分发给业务处理方，业务错误只回给本连接
func (c *Client) handle(raw []byte) {
	var in inboundEvent
	if err := json.Unmarshal(raw, &in); err != nil {
		c.SendError("无法解析事件")
		return
	}

	var err error
	switch in.Event {
	case EventJoinChat:
		var p JoinChatPayload
		if err = json.Unmarshal(in.Data, &p); err == nil {
			err = c.handler.OnJoinChat(c, p.ChatID)
		}
	case EventLeaveChat:
		var p JoinChatPayload
		if err = json.Unmarshal(in.Data, &p); err == nil {
			err = c.handler.OnLeaveChat(c, p.ChatID)
		}
	case EventSendMessage:
		var p SendMessagePayload
		if err = json.Unmarshal(in.Data, &p); err == nil {
			err = c.handler.OnSendMessage(c, p)
		}
	case EventTypingStart:
		var p JoinChatPayload
		if err = json.Unmarshal(in.Data, &p); err == nil {
			err = c.handler.OnTyping(c, p.ChatID, false)
		}
	case EventTypingStop:
		var p JoinChatPayload
		if err = json.Unmarshal(in.Data, &p); err == nil {
			err = c.handler.OnTyping(c, p.ChatID, true)
		}
	case EventAddReaction:
		var p ReactionPayload
		if err = json.Unmarshal(in.Data, &p); err == nil {
			err = c.handler.OnReaction(c, p, false)
		}
	case EventRemoveReaction:
		var p ReactionPayload
		if err = json.Unmarshal(in.Data, &p); err == nil {
			err = c.handler.OnReaction(c, p, true)
		}
	case EventMarkMessagesRead:
		var p JoinChatPayload
		if err = json.Unmarshal(in.Data, &p); err == nil {
			err = c.handler.OnMarkRead(c, p.ChatID)
		}
	default:
		c.SendError("未知事件: " + in.Event)
		return
	}

	if err != nil {
		c.SendError(err.Error())
	}
}

// WritePump 写循环，负责心跳与出站投递
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Warn("消息推送失败", "userID", c.UserID, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
