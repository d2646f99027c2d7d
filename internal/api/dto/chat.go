package dto

import "time"

// ParticipantDTO 会话成员视图
type ParticipantDTO struct {
	UserID    uint64 `json:"userId"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatarUrl"`
	Role      string `json:"role"`
	IsOnline  bool   `json:"isOnline"`
}

// MessagePreviewDTO 会话列表里的最后一条消息摘要
type MessagePreviewDTO struct {
	MessageID string    `json:"messageId"`
	SenderID  uint64    `json:"senderId"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	SentAt    time.Time `json:"sentAt"`
}

// ChatDTO 会话视图，UnreadCount 按 read_by 逐条统计
type ChatDTO struct {
	ID           string             `json:"id"`
	Type         string             `json:"type"`
	Name         string             `json:"name,omitempty"`
	Participants []ParticipantDTO   `json:"participants"`
	LastMessage  *MessagePreviewDTO `json:"lastMessage,omitempty"`
	LastActivity time.Time          `json:"lastActivity"`
	MessageCount int64              `json:"messageCount"`
	UnreadCount  int64              `json:"unreadCount"`
}

// CreatePrivateChatReq 获取或创建单聊
type CreatePrivateChatReq struct {
	PeerID uint64 `json:"peerId" binding:"required"`
}

// CreateGroupChatReq 创建群聊
type CreateGroupChatReq struct {
	Name           string   `json:"name" binding:"required,max=64"`
	ParticipantIDs []uint64 `json:"participantIds" binding:"required,min=1"`
}

// PageReq 通用分页参数
type PageReq struct {
	Limit  int64 `form:"limit"`
	Offset int64 `form:"offset"`
}

// Normalize 填充分页默认值并约束上限
func (r *PageReq) Normalize(defaultLimit, maxLimit int64) {
	if r.Limit <= 0 {
		r.Limit = defaultLimit
	}
	if r.Limit > maxLimit {
		r.Limit = maxLimit
	}
	if r.Offset < 0 {
		r.Offset = 0
	}
}
