package dto

import "time"

// NotificationTargetDTO 通知指向的对象
type NotificationTargetDTO struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// NotificationDTO 通知视图
type NotificationDTO struct {
	ID              string                `json:"id"`
	Type            string                `json:"type"`
	Actor           SenderDTO             `json:"actor"`
	Target          NotificationTargetDTO `json:"target"`
	Message         string                `json:"message"`
	IsRead          bool                  `json:"isRead"`
	IsAggregated    bool                  `json:"isAggregated"`
	AggregatedCount int64                 `json:"aggregatedCount"`
	LastActors      []uint64              `json:"lastActors"`
	CreatedAt       time.Time             `json:"createdAt"`
}

// NotificationPushDTO new_notification 推送载荷，带最新未读总数
type NotificationPushDTO struct {
	Notification NotificationDTO `json:"notification"`
	UnreadCount  int64           `json:"unreadCount"`
}

// UnreadCountDTO 未读总数
type UnreadCountDTO struct {
	UnreadCount int64 `json:"unreadCount"`
}

// EngagementEvent 互动事件，从消息队列进入通知管道
type EngagementEvent struct {
	Type        string `json:"type"`
	ActorID     uint64 `json:"actorId"`
	RecipientID uint64 `json:"recipientId"`
	TargetKind  string `json:"targetKind"`
	TargetID    string `json:"targetId"`
}
