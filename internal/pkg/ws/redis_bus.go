package ws

import (
	log "log/slog"

	"context"

	"Taleweave/internal/pkg/redis"
)

// redisBus 基于 Redis Pub/Sub 的广播总线，多实例水平扩展靠它打通
type redisBus struct{}

func NewRedisBus() Bus {
	return &redisBus{}
}

func (s *redisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return redis.Publish(ctx, channel, payload)
}

// Subscribe 用 PSubscribe 一次订阅全部模式。
// 单个接收 goroutine 顺序转发，保证同一频道内投递顺序与发布顺序一致。
func (s *redisBus) Subscribe(ctx context.Context, patterns ...string) (<-chan BusMessage, func() error) {
	sub := redis.PSubscribe(ctx, patterns...)
	out := make(chan BusMessage, 256)

	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- BusMessage{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				default:
					log.Warn("广播总线积压，丢弃消息", "channel", msg.Channel)
				}
			}
		}
	}()

	return out, sub.Close
}
