package ws

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

// memoryBus 进程内总线，保持与 Redis Pub/Sub 相同的单频道有序投递语义
type memoryBus struct {
	mu   sync.Mutex
	subs []chan BusMessage
}

func newMemoryBus() *memoryBus {
	return &memoryBus{}
}

func (b *memoryBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		ch <- BusMessage{Channel: channel, Payload: payload}
	}
	return nil
}

func (b *memoryBus) Subscribe(_ context.Context, _ ...string) (<-chan BusMessage, func() error) {
	ch := make(chan BusMessage, 256)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch, func() error { return nil }
}

// recordingStatusWriter 记录在线状态落库调用
type recordingStatusWriter struct {
	mu    sync.Mutex
	calls []bool
}

func (w *recordingStatusWriter) WriteStatus(_ uint64, isOnline bool, _ time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, isOnline)
}

func (w *recordingStatusWriter) snapshot() []bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]bool(nil), w.calls...)
}

func newTestHub(t *testing.T, status StatusWriter) *Hub {
	t.Helper()
	hub := NewHub(newMemoryBus(), status)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = hub.Run(ctx)
	}()
	return hub
}

func newTestClient(hub *Hub, userID uint64) *Client {
	return NewClient(hub, nil, nil, userID, "")
}

// expectEvent 等待指定事件送达，忽略途中的在线状态广播
func expectEvent(t *testing.T, c *Client, name string) json.RawMessage {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case raw := <-c.send:
			var evt struct {
				Event string          `json:"event"`
				Data  json.RawMessage `json:"data"`
			}
			require.NoError(t, json.Unmarshal(raw, &evt))
			if evt.Event == EventUserStatusChange && name != EventUserStatusChange {
				continue
			}
			require.Equal(t, name, evt.Event)
			return evt.Data
		case <-deadline:
			t.Fatalf("事件 %s 未在时限内送达", name)
			return nil
		}
	}
}

// expectSilence 确认时限内没有除状态广播外的任何事件
func expectSilence(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.After(150 * time.Millisecond)
	for {
		select {
		case raw := <-c.send:
			var evt struct {
				Event string `json:"event"`
			}
			require.NoError(t, json.Unmarshal(raw, &evt))
			if evt.Event == EventUserStatusChange {
				continue
			}
			t.Fatalf("收到了不该送达的事件: %s", evt.Event)
		case <-deadline:
			return
		}
	}
}

func TestHubRoomDeliveryPreservesOrder(t *testing.T) {
	hub := newTestHub(t, nil)

	c1 := newTestClient(hub, 1)
	c2 := newTestClient(hub, 2)
	hub.Register(c1)
	hub.Register(c2)
	hub.JoinRoom(c1, "abc")
	hub.JoinRoom(c2, "abc")

	ctx := context.Background()
	for _, content := range []string{"first", "second", "third"} {
		require.NoError(t, hub.EmitToChat(ctx, "abc", 0, Event{
			Event: EventNewMessage,
			Data:  map[string]string{"content": content},
		}))
	}

	// 两个客户端看到同一发布顺序
	for _, c := range []*Client{c1, c2} {
		for _, want := range []string{"first", "second", "third"} {
			data := expectEvent(t, c, EventNewMessage)
			var payload map[string]string
			require.NoError(t, json.Unmarshal(data, &payload))
			require.Equal(t, want, payload["content"])
		}
	}
}

func TestHubExcludeSkipsOriginator(t *testing.T) {
	hub := newTestHub(t, nil)

	c1 := newTestClient(hub, 1)
	c2 := newTestClient(hub, 2)
	hub.Register(c1)
	hub.Register(c2)
	hub.JoinRoom(c1, "room")
	hub.JoinRoom(c2, "room")

	require.NoError(t, hub.EmitToChat(context.Background(), "room", 1, Event{
		Event: EventUserTyping,
		Data:  map[string]any{"chatId": "room", "userId": 1},
	}))

	expectEvent(t, c2, EventUserTyping)
	expectSilence(t, c1)
}

func TestHubPersonalChannelReachesAllConnections(t *testing.T) {
	hub := newTestHub(t, nil)

	c1 := newTestClient(hub, 1)
	c2a := newTestClient(hub, 2)
	c2b := newTestClient(hub, 2)
	hub.Register(c1)
	hub.Register(c2a)
	hub.Register(c2b)

	require.NoError(t, hub.EmitToUser(context.Background(), 2, Event{
		Event: EventNewNotification,
		Data:  map[string]string{"id": "n1"},
	}))

	// 同一用户的多端都收到，其他用户收不到
	expectEvent(t, c2a, EventNewNotification)
	expectEvent(t, c2b, EventNewNotification)
	expectSilence(t, c1)
}

func TestHubRoomScopedDelivery(t *testing.T) {
	hub := newTestHub(t, nil)

	c1 := newTestClient(hub, 1)
	c2 := newTestClient(hub, 2)
	hub.Register(c1)
	hub.Register(c2)
	hub.JoinRoom(c1, "a")
	hub.JoinRoom(c2, "b")

	require.NoError(t, hub.EmitToChat(context.Background(), "a", 0, Event{
		Event: EventNewMessage,
		Data:  map[string]string{"content": "hi"},
	}))

	expectEvent(t, c1, EventNewMessage)
	expectSilence(t, c2)
}

func TestHubStatusWriterEdgeOnly(t *testing.T) {
	req := require.New(t)
	writer := &recordingStatusWriter{}
	hub := newTestHub(t, writer)

	c1 := newTestClient(hub, 1)
	c2 := newTestClient(hub, 1)

	hub.Register(c1)
	hub.Register(c2)
	// 第二条连接不再触发上线落库
	req.Equal([]bool{true}, writer.snapshot())

	hub.Unregister(c1)
	req.Equal([]bool{true}, writer.snapshot())

	hub.Unregister(c2)
	req.Equal([]bool{true, false}, writer.snapshot())

	// 重复注销不再产生边沿
	hub.Unregister(c2)
	req.Equal([]bool{true, false}, writer.snapshot())
}

func TestHubUnregisterLeavesRooms(t *testing.T) {
	hub := newTestHub(t, nil)

	c1 := newTestClient(hub, 1)
	c2 := newTestClient(hub, 2)
	hub.Register(c1)
	hub.Register(c2)
	hub.JoinRoom(c1, "room")
	hub.JoinRoom(c2, "room")

	hub.Unregister(c1)
	require.False(t, hub.InRoom(c1, "room"))
	require.True(t, hub.InRoom(c2, "room"))

	require.NoError(t, hub.EmitToChat(context.Background(), "room", 0, Event{
		Event: EventNewMessage,
		Data:  map[string]string{"content": "bye"},
	}))
	expectEvent(t, c2, EventNewMessage)
}

func TestHubStatusChangeBroadcast(t *testing.T) {
	hub := newTestHub(t, nil)

	c1 := newTestClient(hub, 1)
	hub.Register(c1)
	c2 := newTestClient(hub, 2)
	hub.Register(c2)

	// 每次上线边沿都广播给所有连接，含自己
	for _, want := range []uint64{1, 2} {
		data := expectEvent(t, c1, EventUserStatusChange)
		var payload StatusChangePayload
		require.NoError(t, json.Unmarshal(data, &payload))
		require.Equal(t, want, payload.UserID)
		require.True(t, payload.IsOnline)
	}

	hub.Unregister(c2)
	data := expectEvent(t, c1, EventUserStatusChange)
	var payload StatusChangePayload
	require.NoError(t, json.Unmarshal(data, &payload))
	require.Equal(t, uint64(2), payload.UserID)
	require.False(t, payload.IsOnline)
}
