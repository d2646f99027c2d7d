package ws

import (
	"context"
)

// BusMessage 总线投递的单条消息
type BusMessage struct {
	Channel string
	Payload []byte
}

// Bus 跨连接广播总线。
// 多实例部署时所有跨连接投递都必须经过共享总线，而不是直接遍历本进程 socket；
// 单个频道内的投递顺序与发布顺序一致。
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe 按模式订阅，返回消息通道与关闭函数
	Subscribe(ctx context.Context, patterns ...string) (<-chan BusMessage, func() error)
}

// envelope 总线上的事件信封，Exclude 用于打字指示等排除发起者的广播
type envelope struct {
	Exclude uint64 `json:"exclude,omitempty"`
	Data    []byte `json:"data"`
}
