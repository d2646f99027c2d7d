package dto

import "time"

// SenderDTO 消息发送者视图
type SenderDTO struct {
	ID        uint64 `json:"id"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatarUrl"`
}

// AttachmentDTO 消息附件
type AttachmentDTO struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ReplyPreviewDTO 被回复消息的摘要
type ReplyPreviewDTO struct {
	ID       string `json:"id"`
	SenderID uint64 `json:"senderId"`
	Type     string `json:"type"`
	Content  string `json:"content"`
}

// MessageDTO 消息视图，Reactions 为表情到计数的汇总
type MessageDTO struct {
	ID          string           `json:"id"`
	ChatID      string           `json:"chatId"`
	Seq         int64            `json:"seq"`
	Sender      SenderDTO        `json:"sender"`
	Type        string           `json:"type"`
	Content     string           `json:"content"`
	ReplyTo     *ReplyPreviewDTO `json:"replyTo,omitempty"`
	Attachments []AttachmentDTO  `json:"attachments,omitempty"`
	Reactions   map[string]int   `json:"reactions,omitempty"`
	IsRead      bool             `json:"isRead"`
	IsEdited    bool             `json:"isEdited"`
	EditedAt    *time.Time       `json:"editedAt,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// SendMessageReq HTTP 发消息入参
type SendMessageReq struct {
	Content     string          `json:"content"`
	Type        string          `json:"type"`
	ReplyTo     string          `json:"replyTo"`
	Attachments []AttachmentDTO `json:"attachments"`
}

// EditMessageReq 编辑消息入参
type EditMessageReq struct {
	Content string `json:"content" binding:"required"`
}

// ReactionEventDTO 表情增删的广播载荷
type ReactionEventDTO struct {
	MessageID string         `json:"messageId"`
	ChatID    string         `json:"chatId"`
	UserID    uint64         `json:"userId"`
	Emoji     string         `json:"emoji"`
	Reactions map[string]int `json:"reactions"`
}

// MessagesReadDTO messages_read 广播载荷
type MessagesReadDTO struct {
	ChatID   string    `json:"chatId"`
	UserID   uint64    `json:"userId"`
	UserName string    `json:"userName"`
	ReadAt   time.Time `json:"readAt"`
}

// TypingDTO 打字指示广播载荷
type TypingDTO struct {
	ChatID   string `json:"chatId"`
	UserID   uint64 `json:"userId"`
	Nickname string `json:"nickname"`
}

// MessageDeletedDTO 消息删除广播载荷
type MessageDeletedDTO struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
}

// NewMessageNotificationDTO 推给离线成员个人频道的新消息提醒
type NewMessageNotificationDTO struct {
	ChatID   string    `json:"chatId"`
	ChatType string    `json:"chatType"`
	ChatName string    `json:"chatName,omitempty"`
	Sender   SenderDTO `json:"sender"`
	Preview  string    `json:"preview"`
	SentAt   time.Time `json:"sentAt"`
}
