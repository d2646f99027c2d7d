package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type NotificationRepo interface {
	CreateNotification(ctx context.Context, n *Notification) error
	MergeAggregate(ctx context.Context, recipientID uint64, notificationType string, target NotificationTarget, actorID uint64, since time.Time) (*Notification, error)
	SetMessage(ctx context.Context, id primitive.ObjectID, message string) error

	GetByID(ctx context.Context, id primitive.ObjectID) (*Notification, error)
	GetNotificationList(ctx context.Context, recipientID uint64, limit, offset int64) ([]*Notification, error)
	GetUnreadCount(ctx context.Context, recipientID uint64) (int64, error)
	MarkAsRead(ctx context.Context, recipientID uint64, id primitive.ObjectID) error
	MarkAllAsRead(ctx context.Context, recipientID uint64) error

	DeleteReadBefore(ctx context.Context, before time.Time) (int64, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)

	EnsureIndexes(ctx context.Context) error
}

type notificationRepoImpl struct {
	col *mongo.Collection
}

func NewNotificationRepo(db *mongo.Database) NotificationRepo {
	return &notificationRepoImpl{
		col: db.Collection("notifications"),
	}
}

// EnsureIndexes 初始化 Schema，expires_at 上的 TTL 索引负责 30 天兜底回收
func (s *notificationRepoImpl) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
		{
			Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{
				{Key: "recipient_id", Value: 1},
				{Key: "type", Value: 1},
				{Key: "target.kind", Value: 1},
				{Key: "target.id", Value: 1},
				{Key: "created_at", Value: -1},
			},
		},
	})
	return err
}

// CreateNotification 插入新通知
func (s *notificationRepoImpl) CreateNotification(ctx context.Context, n *Notification) error {
	now := time.Now()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.ExpiresAt.IsZero() {
		n.ExpiresAt = n.CreatedAt.Add(NotificationTTL)
	}
	if n.AggregatedCount == 0 {
		n.AggregatedCount = 1
	}
	if len(n.LastActors) == 0 {
		n.LastActors = []uint64{n.ActorID}
	}

	res, err := s.col.InsertOne(ctx, n)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		n.ID = oid
	}
	return nil
}

// MergeAggregate 在窗口内把同键事件折叠进既有聚合行。
// 整个合并是单次 FindOneAndUpdate 管道：计数自增、发起者去重前插并截断、
// 已读复位、createdAt 刷新把通知重新顶回列表头部。并发点赞不会互相覆盖。
// 窗口内不存在同键行时返回 (nil, nil)。
func (s *notificationRepoImpl) MergeAggregate(ctx context.Context, recipientID uint64, notificationType string, target NotificationTarget, actorID uint64, since time.Time) (*Notification, error) {
	now := time.Now()

	filter := bson.M{
		"recipient_id": recipientID,
		"type":         notificationType,
		"target.kind":  target.Kind,
		"target.id":    target.ID,
		"created_at":   bson.M{"$gte": since},
	}

	pipeline := bson.A{
		bson.M{"$set": bson.M{
			"actor_id":         actorID,
			"is_aggregated":    true,
			"aggregated_count": bson.M{"$add": bson.A{"$aggregated_count", 1}},
			"last_actors": bson.M{"$slice": bson.A{
				bson.M{"$concatArrays": bson.A{
					bson.A{actorID},
					bson.M{"$filter": bson.M{
						"input": bson.M{"$ifNull": bson.A{"$last_actors", bson.A{}}},
						"as":    "a",
						"cond":  bson.M{"$ne": bson.A{"$$a", actorID}},
					}},
				}},
				MaxLastActors,
			}},
			"is_read":    false,
			"read_at":    nil,
			"created_at": now,
			"expires_at": now.Add(NotificationTTL),
		}},
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{{Key: "created_at", Value: -1}})

	var merged Notification
	err := s.col.FindOneAndUpdate(ctx, filter, pipeline, opts).Decode(&merged)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &merged, nil
}

// SetMessage 刷新预生成文案，展示层数据，失败由调用方降级处理
func (s *notificationRepoImpl) SetMessage(ctx context.Context, id primitive.ObjectID, message string) error {
	_, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"message": message}})
	return err
}

// GetByID 根据 ID 获取通知
func (s *notificationRepoImpl) GetByID(ctx context.Context, id primitive.ObjectID) (*Notification, error) {
	var n Notification
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&n)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// GetNotificationList 分页获取用户的通知列表 (按时间倒序)
func (s *notificationRepoImpl) GetNotificationList(ctx context.Context, recipientID uint64, limit, offset int64) ([]*Notification, error) {
	filter := bson.M{"recipient_id": recipientID}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var list []*Notification
	if err = cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetUnreadCount 获取用户的未读通知总数
func (s *notificationRepoImpl) GetUnreadCount(ctx context.Context, recipientID uint64) (int64, error) {
	return s.col.CountDocuments(ctx, bson.M{"recipient_id": recipientID, "is_read": false})
}

// MarkAsRead 标记单条通知为已读
func (s *notificationRepoImpl) MarkAsRead(ctx context.Context, recipientID uint64, id primitive.ObjectID) error {
	filter := bson.M{"_id": id, "recipient_id": recipientID}
	update := bson.M{"$set": bson.M{"is_read": true, "read_at": time.Now()}}
	result, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// MarkAllAsRead 一键清除未读
func (s *notificationRepoImpl) MarkAllAsRead(ctx context.Context, recipientID uint64) error {
	filter := bson.M{"recipient_id": recipientID, "is_read": false}
	update := bson.M{"$set": bson.M{"is_read": true, "read_at": time.Now()}}
	_, err := s.col.UpdateMany(ctx, filter, update)
	return err
}

// DeleteReadBefore 清理早于阈值的已读通知
func (s *notificationRepoImpl) DeleteReadBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.col.DeleteMany(ctx, bson.M{
		"is_read":    true,
		"created_at": bson.M{"$lt": before},
	})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// DeleteBefore 无视已读状态的强制清理
func (s *notificationRepoImpl) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.col.DeleteMany(ctx, bson.M{
		"created_at": bson.M{"$lt": before},
	})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
