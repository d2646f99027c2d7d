package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"Taleweave/internal/model"
	"Taleweave/internal/pkg/mongo"
	"Taleweave/internal/pkg/ws"

	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ---- 用户库 ----

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uint64]*model.User
}

func newFakeUserRepo(users ...*model.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[uint64]*model.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) GetUserByID(_ context.Context, userID uint64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetUsersByIDs(_ context.Context, userIDs []uint64) ([]*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.User
	for _, id := range userIDs {
		if u, ok := r.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) UpdateOnlineStatus(_ context.Context, userID uint64, isOnline bool, lastSeen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		u.IsOnline = isOnline
		u.LastSeen = lastSeen
	}
	return nil
}

// ---- 会话库 ----

type fakeChatRepo struct {
	mu    sync.Mutex
	chats map[primitive.ObjectID]*mongo.Chat

	// rollupGate 在 ApplyMessageRollup 入口处调用，用于在测试里撑大提交与广播之间的窗口
	rollupGate func()
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{chats: make(map[primitive.ObjectID]*mongo.Chat)}
}

func duplicateKeyErr() error {
	return mongodrv.WriteException{WriteErrors: []mongodrv.WriteError{{Code: 11000}}}
}

func (r *fakeChatRepo) CreateChat(_ context.Context, chat *mongo.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if chat.Type == mongo.ChatTypePrivate {
		for _, c := range r.chats {
			if c.Type == mongo.ChatTypePrivate && c.PeerKey == chat.PeerKey && !c.IsDeleted {
				return duplicateKeyErr()
			}
		}
	}
	now := time.Now()
	chat.ID = primitive.NewObjectID()
	chat.CreatedAt = now
	chat.UpdatedAt = now
	if chat.LastActivity.IsZero() {
		chat.LastActivity = now
	}
	chat.Metadata.ActiveParticipants = chat.ActiveParticipantCount()
	r.chats[chat.ID] = chat
	return nil
}

func (r *fakeChatRepo) GetChatByID(_ context.Context, id primitive.ObjectID) (*mongo.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[id]
	if !ok {
		return nil, mongodrv.ErrNoDocuments
	}
	return chat, nil
}

func (r *fakeChatRepo) GetPrivateChatByPeerKey(_ context.Context, peerKey string) (*mongo.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.chats {
		if c.Type == mongo.ChatTypePrivate && c.PeerKey == peerKey && !c.IsDeleted {
			return c, nil
		}
	}
	return nil, mongodrv.ErrNoDocuments
}

func (r *fakeChatRepo) FindActiveParticipant(_ context.Context, chatID primitive.ObjectID, userID uint64) (*mongo.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[chatID]
	if !ok || chat.IsDeleted {
		return nil, mongodrv.ErrNoDocuments
	}
	p := chat.ActiveParticipant(userID)
	if p == nil {
		return nil, mongodrv.ErrNoDocuments
	}
	return p, nil
}

func (r *fakeChatRepo) ListUserChats(_ context.Context, userID uint64, limit, offset int64) ([]*mongo.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*mongo.Chat
	for _, c := range r.chats {
		if !c.IsDeleted && c.ActiveParticipant(userID) != nil {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	if offset >= int64(len(out)) {
		return nil, nil
	}
	out = out[offset:]
	if limit < int64(len(out)) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeChatRepo) NextMessageSeq(_ context.Context, chatID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[chatID]
	if !ok || chat.IsDeleted {
		return 0, mongodrv.ErrNoDocuments
	}
	chat.Metadata.MsgSeq++
	return chat.Metadata.MsgSeq, nil
}

func (r *fakeChatRepo) ApplyMessageRollup(_ context.Context, chatID primitive.ObjectID, preview *mongo.MessagePreview, countDelta int64) error {
	if r.rollupGate != nil {
		r.rollupGate()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[chatID]
	if !ok {
		return mongodrv.ErrNoDocuments
	}
	if preview != nil {
		chat.LastMessage = preview
		chat.LastActivity = preview.SentAt
	}
	chat.Metadata.MessageCount += countDelta
	chat.UpdatedAt = time.Now()
	return nil
}

func (r *fakeChatRepo) UpdateLastReadAt(_ context.Context, chatID primitive.ObjectID, userID uint64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[chatID]
	if !ok {
		return mongodrv.ErrNoDocuments
	}
	for i := range chat.Participants {
		if chat.Participants[i].UserID == userID {
			chat.Participants[i].LastReadAt = &at
		}
	}
	return nil
}

func (r *fakeChatRepo) SetParticipantActive(_ context.Context, chatID primitive.ObjectID, userID uint64, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[chatID]
	if !ok {
		return mongodrv.ErrNoDocuments
	}
	for i := range chat.Participants {
		if chat.Participants[i].UserID == userID && chat.Participants[i].IsActive != active {
			chat.Participants[i].IsActive = active
			if active {
				chat.Metadata.ActiveParticipants++
			} else {
				chat.Metadata.ActiveParticipants--
			}
			return nil
		}
	}
	return mongodrv.ErrNoDocuments
}

func (r *fakeChatRepo) SoftDeleteChat(_ context.Context, chatID primitive.ObjectID, deletedBy uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[chatID]
	if !ok || chat.IsDeleted {
		return mongodrv.ErrNoDocuments
	}
	chat.IsDeleted = true
	chat.DeletedBy = deletedBy
	return nil
}

func (r *fakeChatRepo) SetMetadata(_ context.Context, chatID primitive.ObjectID, messageCount int64, activeParticipants int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[chatID]
	if !ok {
		return mongodrv.ErrNoDocuments
	}
	chat.Metadata.MessageCount = messageCount
	chat.Metadata.ActiveParticipants = activeParticipants
	return nil
}

func (r *fakeChatRepo) ListActiveSince(_ context.Context, since time.Time, limit int64) ([]*mongo.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*mongo.Chat
	for _, c := range r.chats {
		if !c.IsDeleted && c.LastActivity.After(since) {
			out = append(out, c)
		}
	}
	if limit < int64(len(out)) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeChatRepo) EnsureIndexes(context.Context) error { return nil }

// ---- 消息库 ----

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []*mongo.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{}
}

func (r *fakeMessageRepo) SaveMessage(_ context.Context, msg *mongo.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg.ID = primitive.NewObjectID()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	r.messages = append(r.messages, msg)
	return nil
}

func (r *fakeMessageRepo) GetByID(_ context.Context, id primitive.ObjectID) (*mongo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id && !m.IsDeleted {
			return m, nil
		}
	}
	return nil, mongodrv.ErrNoDocuments
}

func (r *fakeMessageRepo) GetHistory(_ context.Context, chatID primitive.ObjectID, limit, offset int64) ([]*mongo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*mongo.Message
	for _, m := range r.messages {
		if m.ChatID == chatID && !m.IsDeleted {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	if offset >= int64(len(out)) {
		return nil, nil
	}
	out = out[offset:]
	if limit < int64(len(out)) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeMessageRepo) CountByChat(_ context.Context, chatID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.messages {
		if m.ChatID == chatID && !m.IsDeleted {
			n++
		}
	}
	return n, nil
}

func (r *fakeMessageRepo) SoftDelete(_ context.Context, id primitive.ObjectID, deletedBy uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id && !m.IsDeleted {
			now := time.Now()
			m.IsDeleted = true
			m.DeletedAt = &now
			m.DeletedBy = deletedBy
			return nil
		}
	}
	return mongodrv.ErrNoDocuments
}

func (r *fakeMessageRepo) SetContent(_ context.Context, id primitive.ObjectID, content string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id && !m.IsDeleted {
			m.Content = content
			m.IsEdited = true
			m.EditedAt = &at
			return nil
		}
	}
	return mongodrv.ErrNoDocuments
}

func (r *fakeMessageRepo) UpsertReaction(_ context.Context, id primitive.ObjectID, userID uint64, emoji string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID != id || m.IsDeleted {
			continue
		}
		for i := range m.Reactions {
			if m.Reactions[i].UserID == userID && m.Reactions[i].Emoji == emoji {
				m.Reactions[i].ReactedAt = time.Now()
				return nil
			}
		}
		m.Reactions = append(m.Reactions, mongo.Reaction{UserID: userID, Emoji: emoji, ReactedAt: time.Now()})
		return nil
	}
	return mongodrv.ErrNoDocuments
}

func (r *fakeMessageRepo) RemoveReaction(_ context.Context, id primitive.ObjectID, userID uint64, emoji string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID != id || m.IsDeleted {
			continue
		}
		kept := m.Reactions[:0]
		for _, reaction := range m.Reactions {
			if reaction.UserID != userID || reaction.Emoji != emoji {
				kept = append(kept, reaction)
			}
		}
		m.Reactions = kept
		return nil
	}
	return mongodrv.ErrNoDocuments
}

func (r *fakeMessageRepo) CountUnread(_ context.Context, chatID primitive.ObjectID, userID uint64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.messages {
		if m.ChatID == chatID && !m.IsDeleted && m.SenderID != userID && !mongo.HasRead(m.ReadBy, userID) {
			n++
		}
	}
	return n, nil
}

func (r *fakeMessageRepo) MarkAllRead(_ context.Context, chatID primitive.ObjectID, userID uint64, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var modified int64
	for _, m := range r.messages {
		if m.ChatID == chatID && !m.IsDeleted && m.SenderID != userID && !mongo.HasRead(m.ReadBy, userID) {
			m.ReadBy = append(m.ReadBy, mongo.ReadReceipt{UserID: userID, ReadAt: at})
			modified++
		}
	}
	return modified, nil
}

func (r *fakeMessageRepo) EnsureIndexes(context.Context) error { return nil }

// ---- 通知库 ----

type fakeNotificationRepo struct {
	mu            sync.Mutex
	notifications []*mongo.Notification
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{}
}

func (r *fakeNotificationRepo) CreateNotification(_ context.Context, n *mongo.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.ID = primitive.NewObjectID()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.ExpiresAt.IsZero() {
		n.ExpiresAt = n.CreatedAt.Add(mongo.NotificationTTL)
	}
	if n.AggregatedCount == 0 {
		n.AggregatedCount = 1
	}
	if len(n.LastActors) == 0 {
		n.LastActors = []uint64{n.ActorID}
	}
	r.notifications = append(r.notifications, n)
	return nil
}

func (r *fakeNotificationRepo) MergeAggregate(_ context.Context, recipientID uint64, notificationType string, target mongo.NotificationTarget, actorID uint64, since time.Time) (*mongo.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifications {
		if n.RecipientID != recipientID || n.Type != notificationType ||
			n.Target != target || n.CreatedAt.Before(since) {
			continue
		}
		now := time.Now()
		n.ActorID = actorID
		n.IsAggregated = true
		n.AggregatedCount++
		n.LastActors = mongo.MergeActors(n.LastActors, actorID)
		n.IsRead = false
		n.ReadAt = nil
		n.CreatedAt = now
		n.ExpiresAt = now.Add(mongo.NotificationTTL)
		return n, nil
	}
	return nil, nil
}

func (r *fakeNotificationRepo) SetMessage(_ context.Context, id primitive.ObjectID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifications {
		if n.ID == id {
			n.Message = message
			return nil
		}
	}
	return mongodrv.ErrNoDocuments
}

func (r *fakeNotificationRepo) GetByID(_ context.Context, id primitive.ObjectID) (*mongo.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifications {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, mongodrv.ErrNoDocuments
}

func (r *fakeNotificationRepo) GetNotificationList(_ context.Context, recipientID uint64, limit, offset int64) ([]*mongo.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*mongo.Notification
	for _, n := range r.notifications {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= int64(len(out)) {
		return nil, nil
	}
	out = out[offset:]
	if limit < int64(len(out)) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeNotificationRepo) GetUnreadCount(_ context.Context, recipientID uint64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, item := range r.notifications {
		if item.RecipientID == recipientID && !item.IsRead {
			n++
		}
	}
	return n, nil
}

func (r *fakeNotificationRepo) MarkAsRead(_ context.Context, recipientID uint64, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifications {
		if n.ID == id && n.RecipientID == recipientID {
			now := time.Now()
			n.IsRead = true
			n.ReadAt = &now
			return nil
		}
	}
	return mongodrv.ErrNoDocuments
}

func (r *fakeNotificationRepo) MarkAllAsRead(_ context.Context, recipientID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, n := range r.notifications {
		if n.RecipientID == recipientID && !n.IsRead {
			n.IsRead = true
			n.ReadAt = &now
		}
	}
	return nil
}

func (r *fakeNotificationRepo) DeleteReadBefore(_ context.Context, before time.Time) (int64, error) {
	return r.deleteWhere(func(n *mongo.Notification) bool { return n.IsRead && n.CreatedAt.Before(before) })
}

func (r *fakeNotificationRepo) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	return r.deleteWhere(func(n *mongo.Notification) bool { return n.CreatedAt.Before(before) })
}

func (r *fakeNotificationRepo) deleteWhere(match func(*mongo.Notification) bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	kept := r.notifications[:0]
	for _, n := range r.notifications {
		if match(n) {
			deleted++
		} else {
			kept = append(kept, n)
		}
	}
	r.notifications = kept
	return deleted, nil
}

func (r *fakeNotificationRepo) EnsureIndexes(context.Context) error { return nil }

// ---- 投递出口 ----

type emittedEvent struct {
	ChatID  string
	UserID  uint64
	Exclude uint64
	Event   ws.Event
}

type fakeFanout struct {
	mu     sync.Mutex
	events []emittedEvent
	online map[uint64]bool
}

func newFakeFanout() *fakeFanout {
	return &fakeFanout{online: make(map[uint64]bool)}
}

func (f *fakeFanout) EmitToChat(_ context.Context, chatID string, exclude uint64, evt ws.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emittedEvent{ChatID: chatID, Exclude: exclude, Event: evt})
	return nil
}

func (f *fakeFanout) EmitToUser(_ context.Context, userID uint64, evt ws.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emittedEvent{UserID: userID, Event: evt})
	return nil
}

func (f *fakeFanout) IsOnline(userID uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[userID]
}

func (f *fakeFanout) byEvent(name string) []emittedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emittedEvent
	for _, e := range f.events {
		if e.Event.Event == name {
			out = append(out, e)
		}
	}
	return out
}
