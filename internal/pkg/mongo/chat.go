package mongo

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ChatTypePrivate = "private"
	ChatTypeGroup   = "group"
)

const (
	ParticipantRoleAdmin  = "admin"
	ParticipantRoleMember = "member"
)

// Participant 会话成员条目
type Participant struct {
	UserID     uint64     `bson:"user_id" json:"userId"`
	Role       string     `bson:"role" json:"role"` // admin / member
	IsActive   bool       `bson:"is_active" json:"isActive"`
	CanPost    bool       `bson:"can_post" json:"canPost"` // 预留：目前恒为 true
	JoinedAt   time.Time  `bson:"joined_at" json:"joinedAt"`
	LastReadAt *time.Time `bson:"last_read_at,omitempty" json:"lastReadAt,omitempty"` // 粗粒度已读水位，仅作 UI 提示
}

// MessagePreview 会话上冗余的最新消息快照
type MessagePreview struct {
	MessageID string    `bson:"message_id" json:"messageId"`
	SenderID  uint64    `bson:"sender_id" json:"senderId"`
	Type      string    `bson:"type" json:"type"`
	Content   string    `bson:"content" json:"content"`
	SentAt    time.Time `bson:"sent_at" json:"sentAt"`
}

// ChatMetadata 派生汇总字段，随消息变更原子维护，不独立承担权威性。
// MsgSeq 例外：它是会话内消息序号的发号器，单调递增，只增不回退。
type ChatMetadata struct {
	MessageCount       int64 `bson:"message_count" json:"messageCount"`
	ActiveParticipants int   `bson:"active_participants" json:"activeParticipants"`
	MsgSeq             int64 `bson:"msg_seq" json:"-"`
}

// Chat 会话文档
type Chat struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Type         string             `bson:"type" json:"type"` // private / group
	Name         string             `bson:"name,omitempty" json:"name,omitempty"`
	PeerKey      string             `bson:"peer_key,omitempty" json:"-"` // 单聊唯一标识 uid1_uid2
	Participants []Participant      `bson:"participants" json:"participants"`
	LastMessage  *MessagePreview    `bson:"last_message,omitempty" json:"lastMessage,omitempty"`
	LastActivity time.Time          `bson:"last_activity" json:"lastActivity"`
	IsDeleted    bool               `bson:"is_deleted" json:"-"`
	DeletedBy    uint64             `bson:"deleted_by,omitempty" json:"-"`
	Metadata     ChatMetadata       `bson:"metadata" json:"metadata"`
	CreatedAt    time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updatedAt"`
}

// PeerKeyFor 生成单聊唯一 PeerKey，与成员顺序无关
func PeerKeyFor(userID, targetUserID uint64) string {
	if userID < targetUserID {
		return fmt.Sprintf("%d_%d", userID, targetUserID)
	}
	return fmt.Sprintf("%d_%d", targetUserID, userID)
}

// ActiveParticipant 返回指定用户的活跃成员条目，不存在返回 nil
func (c *Chat) ActiveParticipant(userID uint64) *Participant {
	for i := range c.Participants {
		p := &c.Participants[i]
		if p.UserID == userID && p.IsActive {
			return p
		}
	}
	return nil
}

// ActiveParticipantCount 统计活跃成员数
func (c *Chat) ActiveParticipantCount() int {
	count := 0
	for i := range c.Participants {
		if c.Participants[i].IsActive {
			count++
		}
	}
	return count
}
