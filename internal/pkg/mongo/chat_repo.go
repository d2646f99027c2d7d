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

type ChatRepo interface {
	CreateChat(ctx context.Context, chat *Chat) error
	GetChatByID(ctx context.Context, id primitive.ObjectID) (*Chat, error)
	GetPrivateChatByPeerKey(ctx context.Context, peerKey string) (*Chat, error)
	FindActiveParticipant(ctx context.Context, chatID primitive.ObjectID, userID uint64) (*Participant, error)
	ListUserChats(ctx context.Context, userID uint64, limit, offset int64) ([]*Chat, error)

	NextMessageSeq(ctx context.Context, chatID primitive.ObjectID) (int64, error)
	ApplyMessageRollup(ctx context.Context, chatID primitive.ObjectID, preview *MessagePreview, countDelta int64) error
	UpdateLastReadAt(ctx context.Context, chatID primitive.ObjectID, userID uint64, at time.Time) error
	SetParticipantActive(ctx context.Context, chatID primitive.ObjectID, userID uint64, active bool) error
	SoftDeleteChat(ctx context.Context, chatID primitive.ObjectID, deletedBy uint64) error
	SetMetadata(ctx context.Context, chatID primitive.ObjectID, messageCount int64, activeParticipants int) error
	ListActiveSince(ctx context.Context, since time.Time, limit int64) ([]*Chat, error)

	EnsureIndexes(ctx context.Context) error
}

type chatRepoImpl struct {
	col *mongo.Collection
}

func NewChatRepo(db *mongo.Database) ChatRepo {
	return &chatRepoImpl{
		col: db.Collection("chats"),
	}
}

// EnsureIndexes 初始化 Schema。
// peer_key 的部分唯一索引保证任意一对用户同时至多存在一个未删除的单聊。
func (s *chatRepoImpl) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "peer_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
				"type":       ChatTypePrivate,
				"is_deleted": false,
			}),
		},
		{
			Keys: bson.D{{Key: "participants.user_id", Value: 1}, {Key: "last_activity", Value: -1}},
		},
	})
	return err
}

// CreateChat 插入新会话
func (s *chatRepoImpl) CreateChat(ctx context.Context, chat *Chat) error {
	now := time.Now()
	chat.CreatedAt = now
	chat.UpdatedAt = now
	if chat.LastActivity.IsZero() {
		chat.LastActivity = now
	}
	chat.Metadata.ActiveParticipants = chat.ActiveParticipantCount()

	res, err := s.col.InsertOne(ctx, chat)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		chat.ID = oid
	}
	return nil
}

// GetChatByID 根据会话 ID 获取会话
func (s *chatRepoImpl) GetChatByID(ctx context.Context, id primitive.ObjectID) (*Chat, error) {
	var chat Chat
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&chat)
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// GetPrivateChatByPeerKey 根据单聊标识获取未删除会话
func (s *chatRepoImpl) GetPrivateChatByPeerKey(ctx context.Context, peerKey string) (*Chat, error) {
	var chat Chat
	filter := bson.M{
		"type":       ChatTypePrivate,
		"peer_key":   peerKey,
		"is_deleted": false,
	}
	err := s.col.FindOne(ctx, filter).Decode(&chat)
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// FindActiveParticipant 读取活跃成员条目。
// 每次房间级操作都实时走这里，成员中途被移除立刻生效。
func (s *chatRepoImpl) FindActiveParticipant(ctx context.Context, chatID primitive.ObjectID, userID uint64) (*Participant, error) {
	filter := bson.M{
		"_id":        chatID,
		"is_deleted": false,
		"participants": bson.M{"$elemMatch": bson.M{
			"user_id":   userID,
			"is_active": true,
		}},
	}

	var chat Chat
	err := s.col.FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"participants": 1})).Decode(&chat)
	if err != nil {
		return nil, err
	}

	p := chat.ActiveParticipant(userID)
	if p == nil {
		return nil, mongo.ErrNoDocuments
	}
	return p, nil
}

// ListUserChats 按最近活跃倒序分页获取用户会话
func (s *chatRepoImpl) ListUserChats(ctx context.Context, userID uint64, limit, offset int64) ([]*Chat, error) {
	filter := bson.M{
		"is_deleted": false,
		"participants": bson.M{"$elemMatch": bson.M{
			"user_id":   userID,
			"is_active": true,
		}},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "last_activity", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var chats []*Chat
	if err = cursor.All(ctx, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// NextMessageSeq 发放会话内下一个消息序号。
// 单条 FindOneAndUpdate $inc，落库前取号，序号即提交顺序的权威，
// 并发发送各自拿到不同序号，不会互相覆盖。
func (s *chatRepoImpl) NextMessageSeq(ctx context.Context, chatID primitive.ObjectID) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"metadata.msg_seq": 1})

	var chat Chat
	err := s.col.FindOneAndUpdate(ctx,
		bson.M{"_id": chatID, "is_deleted": false},
		bson.M{"$inc": bson.M{"metadata.msg_seq": 1}},
		opts,
	).Decode(&chat)
	if err != nil {
		return 0, err
	}
	return chat.Metadata.MsgSeq, nil
}

// ApplyMessageRollup 原子维护会话汇总字段。
// 消息计数只走 $inc，避免并发发送互相覆盖。
func (s *chatRepoImpl) ApplyMessageRollup(ctx context.Context, chatID primitive.ObjectID, preview *MessagePreview, countDelta int64) error {
	set := bson.M{"updated_at": time.Now()}
	if preview != nil {
		set["last_message"] = preview
		set["last_activity"] = preview.SentAt
	}
	update := bson.M{
		"$set": set,
		"$inc": bson.M{"metadata.message_count": countDelta},
	}

	result, err := s.col.UpdateOne(ctx, bson.M{"_id": chatID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// UpdateLastReadAt 更新成员粗粒度已读水位
func (s *chatRepoImpl) UpdateLastReadAt(ctx context.Context, chatID primitive.ObjectID, userID uint64, at time.Time) error {
	filter := bson.M{"_id": chatID, "participants.user_id": userID}
	update := bson.M{"$set": bson.M{"participants.$.last_read_at": at}}
	_, err := s.col.UpdateOne(ctx, filter, update)
	return err
}

// SetParticipantActive 启停成员，同时原子修正活跃成员数
func (s *chatRepoImpl) SetParticipantActive(ctx context.Context, chatID primitive.ObjectID, userID uint64, active bool) error {
	delta := 1
	if !active {
		delta = -1
	}

	filter := bson.M{
		"_id": chatID,
		"participants": bson.M{"$elemMatch": bson.M{
			"user_id":   userID,
			"is_active": !active,
		}},
	}
	update := bson.M{
		"$set": bson.M{"participants.$.is_active": active, "updated_at": time.Now()},
		"$inc": bson.M{"metadata.active_participants": delta},
	}

	result, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// SoftDeleteChat 软删除，永不物理删除
func (s *chatRepoImpl) SoftDeleteChat(ctx context.Context, chatID primitive.ObjectID, deletedBy uint64) error {
	update := bson.M{"$set": bson.M{
		"is_deleted": true,
		"deleted_by": deletedBy,
		"updated_at": time.Now(),
	}}
	result, err := s.col.UpdateOne(ctx, bson.M{"_id": chatID, "is_deleted": false}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// SetMetadata 校准任务用：整体覆盖派生汇总
func (s *chatRepoImpl) SetMetadata(ctx context.Context, chatID primitive.ObjectID, messageCount int64, activeParticipants int) error {
	update := bson.M{"$set": bson.M{
		"metadata.message_count":       messageCount,
		"metadata.active_participants": activeParticipants,
	}}
	_, err := s.col.UpdateOne(ctx, bson.M{"_id": chatID}, update)
	return err
}

// ListActiveSince 拉取窗口内有活动的会话，供校准任务遍历
func (s *chatRepoImpl) ListActiveSince(ctx context.Context, since time.Time, limit int64) ([]*Chat, error) {
	filter := bson.M{
		"is_deleted":    false,
		"last_activity": bson.M{"$gte": since},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "last_activity", Value: -1}}).
		SetLimit(limit)

	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var chats []*Chat
	if err = cursor.All(ctx, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// IsNotFound 判断底层驱动的未命中错误
func IsNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// IsDuplicateKey 判断唯一索引冲突，单聊并发创建时用于转为幂等读
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
