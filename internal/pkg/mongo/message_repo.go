package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MessageRepo interface {
	SaveMessage(ctx context.Context, msg *Message) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*Message, error)
	GetHistory(ctx context.Context, chatID primitive.ObjectID, limit, offset int64) ([]*Message, error)
	CountByChat(ctx context.Context, chatID primitive.ObjectID) (int64, error)
	SoftDelete(ctx context.Context, id primitive.ObjectID, deletedBy uint64) error
	SetContent(ctx context.Context, id primitive.ObjectID, content string, at time.Time) error

	UpsertReaction(ctx context.Context, id primitive.ObjectID, userID uint64, emoji string) error
	RemoveReaction(ctx context.Context, id primitive.ObjectID, userID uint64, emoji string) error

	CountUnread(ctx context.Context, chatID primitive.ObjectID, userID uint64) (int64, error)
	MarkAllRead(ctx context.Context, chatID primitive.ObjectID, userID uint64, at time.Time) (int64, error)

	EnsureIndexes(ctx context.Context) error
}

type messageRepoImpl struct {
	col *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) MessageRepo {
	return &messageRepoImpl{
		col: db.Collection("messages"),
	}
}

func (s *messageRepoImpl) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "seq", Value: -1}}},
		{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "read_by.user_id", Value: 1}}},
	})
	return err
}

// SaveMessage 将消息存入 MongoDB
func (s *messageRepoImpl) SaveMessage(ctx context.Context, msg *Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	res, err := s.col.InsertOne(ctx, msg)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		msg.ID = oid
	}
	return nil
}

// GetByID 精确查询未删除消息
func (s *messageRepoImpl) GetByID(ctx context.Context, id primitive.ObjectID) (*Message, error) {
	var msg Message
	err := s.col.FindOne(ctx, bson.M{"_id": id, "is_deleted": false}).Decode(&msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetHistory 历史消息查询，按会话内序号倒序分页 (最新的在前)。
// 序号在落库时取自会话发号器，历史顺序与实时广播顺序共享同一权威，
// 客户端翻转后得到老到新的展示顺序。
func (s *messageRepoImpl) GetHistory(ctx context.Context, chatID primitive.ObjectID, limit, offset int64) ([]*Message, error) {
	filter := bson.M{"chat_id": chatID, "is_deleted": false}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "seq", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := s.col.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var messages []*Message
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// CountByChat 统计会话内未删除消息数，校准任务使用
func (s *messageRepoImpl) CountByChat(ctx context.Context, chatID primitive.ObjectID) (int64, error) {
	return s.col.CountDocuments(ctx, bson.M{"chat_id": chatID, "is_deleted": false})
}

// SoftDelete 软删除消息
func (s *messageRepoImpl) SoftDelete(ctx context.Context, id primitive.ObjectID, deletedBy uint64) error {
	now := time.Now()
	update := bson.M{"$set": bson.M{
		"is_deleted": true,
		"deleted_at": now,
		"deleted_by": deletedBy,
	}}
	result, err := s.col.UpdateOne(ctx, bson.M{"_id": id, "is_deleted": false}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// SetContent 编辑消息内容
func (s *messageRepoImpl) SetContent(ctx context.Context, id primitive.ObjectID, content string, at time.Time) error {
	update := bson.M{"$set": bson.M{
		"content":   content,
		"is_edited": true,
		"edited_at": at,
	}}
	result, err := s.col.UpdateOne(ctx, bson.M{"_id": id, "is_deleted": false}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// UpsertReaction 添加表情回应。
// 先尝试刷新已存在的同 (用户, emoji) 条目，未命中再带排他条件追加，
// 重复添加是替换而非堆叠。
func (s *messageRepoImpl) UpsertReaction(ctx context.Context, id primitive.ObjectID, userID uint64, emoji string) error {
	now := time.Now()

	refreshFilter := bson.M{
		"_id":        id,
		"is_deleted": false,
		"reactions":  bson.M{"$elemMatch": bson.M{"user_id": userID, "emoji": emoji}},
	}
	refresh := bson.M{"$set": bson.M{"reactions.$.reacted_at": now}}

	result, err := s.col.UpdateOne(ctx, refreshFilter, refresh)
	if err != nil {
		return err
	}
	if result.MatchedCount > 0 {
		return nil
	}

	pushFilter := bson.M{
		"_id":        id,
		"is_deleted": false,
		"reactions":  bson.M{"$not": bson.M{"$elemMatch": bson.M{"user_id": userID, "emoji": emoji}}},
	}
	push := bson.M{"$push": bson.M{"reactions": Reaction{
		UserID:    userID,
		Emoji:     emoji,
		ReactedAt: now,
	}}}

	result, err = s.col.UpdateOne(ctx, pushFilter, push)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		// 并发下另一次 Upsert 抢先追加了同键条目，等价于替换成功
		exists, countErr := s.col.CountDocuments(ctx, bson.M{"_id": id, "is_deleted": false})
		if countErr != nil {
			return countErr
		}
		if exists == 0 {
			return mongo.ErrNoDocuments
		}
	}
	return nil
}

// RemoveReaction 移除指定 (用户, emoji) 回应
func (s *messageRepoImpl) RemoveReaction(ctx context.Context, id primitive.ObjectID, userID uint64, emoji string) error {
	update := bson.M{"$pull": bson.M{"reactions": bson.M{"user_id": userID, "emoji": emoji}}}
	result, err := s.col.UpdateOne(ctx, bson.M{"_id": id, "is_deleted": false}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// unreadFilter 未读判定：他人发送、未删除、回执列表里没有该用户
func unreadFilter(chatID primitive.ObjectID, userID uint64) bson.M {
	return bson.M{
		"chat_id":         chatID,
		"is_deleted":      false,
		"sender_id":       bson.M{"$ne": userID},
		"read_by.user_id": bson.M{"$ne": userID},
	}
}

// CountUnread 按每消息回执计数未读，readBy 是正确性权威
func (s *messageRepoImpl) CountUnread(ctx context.Context, chatID primitive.ObjectID, userID uint64) (int64, error) {
	return s.col.CountDocuments(ctx, unreadFilter(chatID, userID))
}

// MarkAllRead 全部标记已读。
// 过滤条件排除已含该用户回执的消息，重复调用收敛到同一终态。
func (s *messageRepoImpl) MarkAllRead(ctx context.Context, chatID primitive.ObjectID, userID uint64, at time.Time) (int64, error) {
	update := bson.M{"$push": bson.M{"read_by": ReadReceipt{
		UserID: userID,
		ReadAt: at,
	}}}
	result, err := s.col.UpdateMany(ctx, unreadFilter(chatID, userID), update)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}
