package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeFile   = "file"
	MessageTypeAudio  = "audio"
	MessageTypeVideo  = "video"
	MessageTypeSystem = "system"
)

// Attachment 结构化附件
type Attachment struct {
	Type     string `bson:"type" json:"type"`
	URL      string `bson:"url" json:"url"`
	Filename string `bson:"filename" json:"filename"`
	Size     int64  `bson:"size" json:"size"`
	MimeType string `bson:"mime_type" json:"mimeType"`
}

// Reaction 单个 (用户, emoji) 表情回应。
// 同一用户可以用多个不同 emoji 回应同一条消息，重复添加同一 emoji 是替换而非追加。
type Reaction struct {
	UserID    uint64    `bson:"user_id" json:"userId"`
	Emoji     string    `bson:"emoji" json:"emoji"`
	ReactedAt time.Time `bson:"reacted_at" json:"reactedAt"`
}

// ReadReceipt 每用户至多一条的已读回执
type ReadReceipt struct {
	UserID uint64    `bson:"user_id" json:"userId"`
	ReadAt time.Time `bson:"read_at" json:"readAt"`
}

// Message 消息文档
type Message struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ChatID      primitive.ObjectID `bson:"chat_id" json:"chatId"`
	Seq         int64              `bson:"seq" json:"seq"` // 会话内序号，持久化顺序的权威
	SenderID    uint64             `bson:"sender_id" json:"senderId"`
	Type        string             `bson:"type" json:"type"` // text/image/file/audio/video/system
	Content     string             `bson:"content" json:"content"`
	ReplyTo     primitive.ObjectID `bson:"reply_to,omitempty" json:"replyTo,omitempty"`
	Attachments []Attachment       `bson:"attachments,omitempty" json:"attachments,omitempty"`
	Reactions   []Reaction         `bson:"reactions,omitempty" json:"reactions,omitempty"`
	ReadBy      []ReadReceipt      `bson:"read_by,omitempty" json:"readBy,omitempty"`
	IsEdited    bool               `bson:"is_edited" json:"isEdited"`
	EditedAt    *time.Time         `bson:"edited_at,omitempty" json:"editedAt,omitempty"`
	IsDeleted   bool               `bson:"is_deleted" json:"-"`
	DeletedAt   *time.Time         `bson:"deleted_at,omitempty" json:"-"`
	DeletedBy   uint64             `bson:"deleted_by,omitempty" json:"-"`
	CreatedAt   time.Time          `bson:"created_at" json:"createdAt"`
}

// ReactionCounts 按 emoji 汇总回应数
func ReactionCounts(reactions []Reaction) map[string]int {
	counts := make(map[string]int, len(reactions))
	for _, r := range reactions {
		counts[r.Emoji]++
	}
	return counts
}

// HasRead 判断用户是否已在回执列表中
func HasRead(readBy []ReadReceipt, userID uint64) bool {
	for _, r := range readBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
