package ws

import (
	log "log/slog"

	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"Taleweave/internal/pkg/consts"

	"github.com/goccy/go-json"
)

// Hub 连接与房间的调度中枢。
// 所有跨连接投递一律走总线：本进程发布，所有实例（含自身）订阅后再投给
// 本地 socket。房间频道上的事件在消息落库之后才发布，单订阅 goroutine
// 顺序派发，保证同一会话内客户端看到的顺序与落库顺序一致。
type Hub struct {
	bus      Bus
	presence *Presence
	status   StatusWriter

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func NewHub(bus Bus, status StatusWriter) *Hub {
	return &Hub{
		bus:      bus,
		presence: NewPresence(),
		status:   status,
		rooms:    make(map[string]map[*Client]struct{}),
	}
}

// Register 注册新连接，离线转在线时落库快照并广播状态变化
func (h *Hub) Register(c *Client) {
	if h.presence.Add(c) {
		h.emitStatusChange(c.UserID, true)
	}
	log.Info("连接注册", "userID", c.UserID)
}

// Unregister 注销连接，清理其全部房间订阅；在线转离线时广播状态变化。
// 可重复调用。
func (h *Hub) Unregister(c *Client) {
	c.shutdown()

	h.mu.Lock()
	for chatID, members := range h.rooms {
		if _, ok := members[c]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, chatID)
			}
		}
	}
	h.mu.Unlock()

	if h.presence.Remove(c) {
		h.emitStatusChange(c.UserID, false)
	}
	log.Info("连接注销", "userID", c.UserID)
}

func (h *Hub) emitStatusChange(userID uint64, isOnline bool) {
	now := time.Now()
	if h.status != nil {
		h.status.WriteStatus(userID, isOnline, now)
	}
	err := h.EmitToAll(context.Background(), Event{
		Event: EventUserStatusChange,
		Data: StatusChangePayload{
			UserID:   userID,
			IsOnline: isOnline,
			LastSeen: now.Format(time.RFC3339),
		},
	})
	if err != nil {
		log.Error("广播在线状态失败", "userID", userID, "error", err)
	}
}

// JoinRoom 把连接加入会话房间，只影响本进程的投递表
func (h *Hub) JoinRoom(c *Client, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[chatID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[chatID] = members
	}
	members[c] = struct{}{}
}

// LeaveRoom 把连接移出会话房间
func (h *Hub) LeaveRoom(c *Client, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[chatID]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, chatID)
	}
}

// InRoom 连接是否在会话房间内
func (h *Hub) InRoom(c *Client, chatID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[chatID][c]
	return ok
}

// IsOnline 用户当前是否有活跃连接
func (h *Hub) IsOnline(userID uint64) bool {
	return h.presence.IsOnline(userID)
}

// EmitToChat 向会话房间广播事件，exclude 为 0 时不排除任何人
func (h *Hub) EmitToChat(ctx context.Context, chatID string, exclude uint64, evt Event) error {
	return h.publish(ctx, consts.IMChatChannelKey+chatID, exclude, evt)
}

// EmitToUser 向用户个人频道推送事件，送达该用户的全部连接
func (h *Hub) EmitToUser(ctx context.Context, userID uint64, evt Event) error {
	return h.publish(ctx, consts.IMUserChannelKey+strconv.FormatUint(userID, 10), 0, evt)
}

// EmitToAll 向全部连接广播事件
func (h *Hub) EmitToAll(ctx context.Context, evt Event) error {
	return h.publish(ctx, consts.IMPresenceChannel, 0, evt)
}

func (h *Hub) publish(ctx context.Context, channel string, exclude uint64, evt Event) error {
	data, err := evt.Encode()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(envelope{Exclude: exclude, Data: data})
	if err != nil {
		return err
	}
	return h.bus.Publish(ctx, channel, payload)
}

// Run 订阅总线并持续派发，阻塞直到 ctx 取消
func (h *Hub) Run(ctx context.Context) error {
	ch, closeFn := h.bus.Subscribe(ctx,
		consts.IMChatChannelKey+"*",
		consts.IMUserChannelKey+"*",
		consts.IMPresenceChannel,
	)
	defer func() {
		_ = closeFn()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			h.dispatch(msg)
		}
	}
}

// dispatch 把总线消息派发给本进程的目标连接
func (h *Hub) dispatch(msg BusMessage) {
	var env envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		log.Error("总线消息解码失败", "channel", msg.Channel, "error", err)
		return
	}

	switch {
	case strings.HasPrefix(msg.Channel, consts.IMChatChannelKey):
		chatID := strings.TrimPrefix(msg.Channel, consts.IMChatChannelKey)
		for _, c := range h.roomMembers(chatID) {
			if env.Exclude != 0 && c.UserID == env.Exclude {
				continue
			}
			c.enqueue(env.Data)
		}
	case strings.HasPrefix(msg.Channel, consts.IMUserChannelKey):
		userID, err := strconv.ParseUint(strings.TrimPrefix(msg.Channel, consts.IMUserChannelKey), 10, 64)
		if err != nil {
			log.Error("个人频道解析失败", "channel", msg.Channel, "error", err)
			return
		}
		for _, c := range h.presence.ClientsOf(userID) {
			c.enqueue(env.Data)
		}
	case msg.Channel == consts.IMPresenceChannel:
		for _, c := range h.presence.All() {
			c.enqueue(env.Data)
		}
	}
}

func (h *Hub) roomMembers(chatID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := h.rooms[chatID]
	if len(members) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(members))
	for c := range members {
		out = append(out, c)
	}
	return out
}
