package ws

import (
	"github.com/goccy/go-json"
)

// 入站事件名
const (
	EventJoinChat         = "join_chat"
	EventLeaveChat        = "leave_chat"
	EventSendMessage      = "send_message"
	EventTypingStart      = "typing_start"
	EventTypingStop       = "typing_stop"
	EventAddReaction      = "add_reaction"
	EventRemoveReaction   = "remove_reaction"
	EventMarkMessagesRead = "mark_messages_read"
)

// 出站事件名
const (
	EventJoinedChat             = "joined_chat"
	EventLeftChat               = "left_chat"
	EventNewMessage             = "new_message"
	EventNewMessageNotification = "new_message_notification"
	EventUserTyping             = "user_typing"
	EventUserStopTyping         = "user_stop_typing"
	EventReactionAdded          = "message_reaction_added"
	EventReactionRemoved        = "message_reaction_removed"
	EventMessageEdited          = "message_edited"
	EventMessageDeleted         = "message_deleted"
	EventChatDeleted            = "chat_deleted"
	EventMessagesRead           = "messages_read"
	EventUserStatusChange       = "user_status_change"
	EventNewNotification        = "new_notification"
	EventError                  = "error"
)

// Event 出站事件封装
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// inboundEvent 入站事件信封，Data 延迟解析
type inboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinChatPayload join_chat / leave_chat / typing / mark_messages_read 载荷
type JoinChatPayload struct {
	ChatID string `json:"chatId"`
}

// AttachmentPayload 发消息附件载荷
type AttachmentPayload struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// SendMessagePayload send_message 载荷
type SendMessagePayload struct {
	ChatID      string              `json:"chatId"`
	Content     string              `json:"content"`
	Type        string              `json:"type"`
	ReplyTo     string              `json:"replyTo,omitempty"`
	Attachments []AttachmentPayload `json:"attachments,omitempty"`
}

// ReactionPayload add_reaction / remove_reaction 载荷
type ReactionPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// ErrorPayload error 事件载荷，只回给发起连接
type ErrorPayload struct {
	Message string `json:"message"`
}

// StatusChangePayload user_status_change 载荷
type StatusChangePayload struct {
	UserID   uint64 `json:"userId"`
	IsOnline bool   `json:"isOnline"`
	LastSeen string `json:"lastSeen"`
}

// EventHandler 入站事件的业务处理方。
// 返回的错误由连接层包装成 error 事件回送给发起连接，不广播。
type EventHandler interface {
	OnJoinChat(c *Client, chatID string) error
	OnLeaveChat(c *Client, chatID string) error
	OnSendMessage(c *Client, p SendMessagePayload) error
	OnTyping(c *Client, chatID string, stopped bool) error
	OnReaction(c *Client, p ReactionPayload, removed bool) error
	OnMarkRead(c *Client, chatID string) error
}
