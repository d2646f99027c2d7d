package mongo

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	NotificationTypeFollow         = "follow"
	NotificationTypeLike           = "like"
	NotificationTypeComment        = "comment"
	NotificationTypeStoryPublished = "story_published"
)

const (
	TargetKindStory   = "story"
	TargetKindComment = "comment"
	TargetKindUser    = "user"
)

const (
	// NotificationTTL 通知整体存活时长，过期由 TTL 索引回收
	NotificationTTL = 30 * 24 * time.Hour
	// AggregationWindow 同键事件折叠进同一条通知的滚动窗口
	AggregationWindow = 24 * time.Hour
	// MaxLastActors 聚合通知保留的最近发起者数量
	MaxLastActors = 3
)

// NotificationTarget 多态目标引用，kind 受枚举约束
type NotificationTarget struct {
	Kind string `bson:"kind" json:"kind"`
	ID   string `bson:"id" json:"id"`
}

// Notification 通知文档，含聚合信封
type Notification struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RecipientID     uint64             `bson:"recipient_id" json:"recipientId"`
	ActorID         uint64             `bson:"actor_id" json:"actorId"` // 最近一次动作的发起者
	Type            string             `bson:"type" json:"type"`
	Target          NotificationTarget `bson:"target" json:"target"`
	Message         string             `bson:"message" json:"message"`
	IsRead          bool               `bson:"is_read" json:"isRead"`
	ReadAt          *time.Time         `bson:"read_at,omitempty" json:"readAt,omitempty"`
	IsAggregated    bool               `bson:"is_aggregated" json:"isAggregated"`
	AggregatedCount int64              `bson:"aggregated_count" json:"aggregatedCount"`
	LastActors      []uint64           `bson:"last_actors" json:"lastActors"` // 最近在前，去重，上限 MaxLastActors
	CreatedAt       time.Time          `bson:"created_at" json:"createdAt"`
	ExpiresAt       time.Time          `bson:"expires_at" json:"-"`
}

// IsAggregatable 只有点赞和评论参与窗口内折叠
func IsAggregatable(notificationType string) bool {
	return notificationType == NotificationTypeLike || notificationType == NotificationTypeComment
}

// NormalizeTargetKind 统一目标类型大小写并校验取值。
// 聚合键查询依赖一致的 kind 写法，大小写漂移会悄悄产生重复聚合行。
func NormalizeTargetKind(kind string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case TargetKindStory:
		return TargetKindStory, true
	case TargetKindComment:
		return TargetKindComment, true
	case TargetKindUser:
		return TargetKindUser, true
	default:
		return "", false
	}
}

// MergeActors 将 actor 去重前插到最近发起者列表头部，裁剪到上限。
// 与 notification_repo 聚合管道中的 $concatArrays/$filter/$slice 语义一致。
func MergeActors(lastActors []uint64, actor uint64) []uint64 {
	merged := make([]uint64, 0, len(lastActors)+1)
	merged = append(merged, actor)
	for _, a := range lastActors {
		if a != actor {
			merged = append(merged, a)
		}
	}
	if len(merged) > MaxLastActors {
		merged = merged[:MaxLastActors]
	}
	return merged
}
