package service

import (
	log "log/slog"

	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"Taleweave/internal/api/dto"
	"Taleweave/internal/pkg/consts"
	"Taleweave/internal/pkg/mongo"
	"Taleweave/internal/pkg/ws"
	"Taleweave/internal/repository"

	"github.com/jinzhu/copier"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/gorm"
)

// Fanout 实时投递出口，由连接中枢实现
type Fanout interface {
	EmitToChat(ctx context.Context, chatID string, exclude uint64, evt ws.Event) error
	EmitToUser(ctx context.Context, userID uint64, evt ws.Event) error
	IsOnline(userID uint64) bool
}

type ChatService interface {
	GetOrCreatePrivateChat(ctx context.Context, userID, peerID uint64) (*dto.ChatDTO, error)
	CreateGroupChat(ctx context.Context, userID uint64, req *dto.CreateGroupChatReq) (*dto.ChatDTO, error)
	GetChatList(ctx context.Context, userID uint64, limit, offset int64) ([]*dto.ChatDTO, error)
	GetChatHistory(ctx context.Context, userID uint64, chatID string, limit, offset int64) ([]*dto.MessageDTO, error)
	LeaveGroupChat(ctx context.Context, userID uint64, chatID string) error
	DeleteChat(ctx context.Context, userID uint64, chatID string) error

	CanJoin(ctx context.Context, userID uint64, chatID string) error
	SendMessage(ctx context.Context, userID uint64, chatID string, req *dto.SendMessageReq) (*dto.MessageDTO, error)
	EditMessage(ctx context.Context, userID uint64, messageID, content string) (*dto.MessageDTO, error)
	DeleteMessage(ctx context.Context, userID uint64, messageID string) error
	AddReaction(ctx context.Context, userID uint64, messageID, emoji string) error
	RemoveReaction(ctx context.Context, userID uint64, messageID, emoji string) error
	MarkMessagesRead(ctx context.Context, userID uint64, chatID string) error
	NotifyTyping(ctx context.Context, userID uint64, chatID string, stopped bool) error
}

type chatServiceImpl struct {
	chats    mongo.ChatRepo
	messages mongo.MessageRepo
	users    repository.UserRepo
	fanout   Fanout

	// 会话粒度的发送锁，chatID -> *sync.Mutex
	sendLocks sync.Map
}

func NewChatService(chats mongo.ChatRepo, messages mongo.MessageRepo, users repository.UserRepo, fanout Fanout) ChatService {
	return &chatServiceImpl{
		chats:    chats,
		messages: messages,
		users:    users,
		fanout:   fanout,
	}
}

// lockChat 锁住一个会话的 取号→落库→广播 临界区。
// 同一会话内广播发出的顺序必须等于提交顺序，乱序只能靠串行化杜绝：
// 先提交后发布的窗口一旦和其他发送者交错，订阅端就会忠实地派发反序。
func (s *chatServiceImpl) lockChat(chatID string) *sync.Mutex {
	mu, _ := s.sendLocks.LoadOrStore(chatID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// parseObjectID 把外部传入的十六进制 ID 转成 ObjectID
func parseObjectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrParamInvalid
	}
	return oid, nil
}

// requireParticipant 会话级操作的成员资格实时校验。
// 不缓存结果，成员中途被移除后下一次操作立即失效。
func (s *chatServiceImpl) requireParticipant(ctx context.Context, chatID primitive.ObjectID, userID uint64) (*mongo.Participant, error) {
	p, err := s.chats.FindActiveParticipant(ctx, chatID, userID)
	if err == nil {
		return p, nil
	}
	if !mongo.IsNotFound(err) {
		log.Error("成员校验失败", "chatID", chatID.Hex(), "userID", userID, "error", err)
		return nil, UnExpectedError
	}

	chat, getErr := s.chats.GetChatByID(ctx, chatID)
	if getErr != nil {
		if mongo.IsNotFound(getErr) {
			return nil, ErrChatNotFound
		}
		return nil, UnExpectedError
	}
	if chat.IsDeleted {
		return nil, ErrChatDeleted
	}
	return nil, ErrNotParticipant
}

// CanJoin 加入会话房间前的准入校验
func (s *chatServiceImpl) CanJoin(ctx context.Context, userID uint64, chatID string) error {
	oid, err := parseObjectID(chatID)
	if err != nil {
		return err
	}
	_, err = s.requireParticipant(ctx, oid, userID)
	return err
}

// GetOrCreatePrivateChat 获取或创建两人单聊。
// 并发创建撞唯一索引时退化为幂等读，任意一对用户至多一个活跃单聊。
func (s *chatServiceImpl) GetOrCreatePrivateChat(ctx context.Context, userID, peerID uint64) (*dto.ChatDTO, error) {
	if userID == peerID {
		return nil, ErrChatSelf
	}
	if _, err := s.users.GetUserByID(ctx, peerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, UnExpectedError
	}

	peerKey := mongo.PeerKeyFor(userID, peerID)
	chat, err := s.chats.GetPrivateChatByPeerKey(ctx, peerKey)
	if err == nil {
		return s.toChatDTO(ctx, chat, userID), nil
	}
	if !mongo.IsNotFound(err) {
		return nil, UnExpectedError
	}

	now := time.Now()
	chat = &mongo.Chat{
		Type:    mongo.ChatTypePrivate,
		PeerKey: peerKey,
		Participants: []mongo.Participant{
			{UserID: userID, Role: mongo.ParticipantRoleMember, IsActive: true, CanPost: true, JoinedAt: now},
			{UserID: peerID, Role: mongo.ParticipantRoleMember, IsActive: true, CanPost: true, JoinedAt: now},
		},
	}
	if err = s.chats.CreateChat(ctx, chat); err != nil {
		if mongo.IsDuplicateKey(err) {
			chat, err = s.chats.GetPrivateChatByPeerKey(ctx, peerKey)
			if err != nil {
				return nil, UnExpectedError
			}
			return s.toChatDTO(ctx, chat, userID), nil
		}
		log.Error("创建单聊失败", "peerKey", peerKey, "error", err)
		return nil, UnExpectedError
	}
	return s.toChatDTO(ctx, chat, userID), nil
}

// CreateGroupChat 创建群聊，创建者为管理员
func (s *chatServiceImpl) CreateGroupChat(ctx context.Context, userID uint64, req *dto.CreateGroupChatReq) (*dto.ChatDTO, error) {
	memberIDs := make([]uint64, 0, len(req.ParticipantIDs))
	seen := map[uint64]struct{}{userID: {}}
	for _, id := range req.ParticipantIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		memberIDs = append(memberIDs, id)
	}
	if len(memberIDs) == 0 {
		return nil, ErrParamInvalid
	}

	users, err := s.users.GetUsersByIDs(ctx, memberIDs)
	if err != nil {
		return nil, UnExpectedError
	}
	if len(users) != len(memberIDs) {
		return nil, ErrUserNotFound
	}

	now := time.Now()
	participants := make([]mongo.Participant, 0, len(memberIDs)+1)
	participants = append(participants, mongo.Participant{
		UserID: userID, Role: mongo.ParticipantRoleAdmin, IsActive: true, CanPost: true, JoinedAt: now,
	})
	for _, id := range memberIDs {
		participants = append(participants, mongo.Participant{
			UserID: id, Role: mongo.ParticipantRoleMember, IsActive: true, CanPost: true, JoinedAt: now,
		})
	}

	chat := &mongo.Chat{
		Type:         mongo.ChatTypeGroup,
		Name:         strings.TrimSpace(req.Name),
		Participants: participants,
	}
	if err = s.chats.CreateChat(ctx, chat); err != nil {
		log.Error("创建群聊失败", "userID", userID, "error", err)
		return nil, UnExpectedError
	}

	s.postSystemMessage(ctx, chat.ID, s.displayName(ctx, userID)+" 创建了群聊")
	return s.toChatDTO(ctx, chat, userID), nil
}

// LeaveGroupChat 退出群聊，成员条目停用而非删除，留系统消息
func (s *chatServiceImpl) LeaveGroupChat(ctx context.Context, userID uint64, chatID string) error {
	oid, err := parseObjectID(chatID)
	if err != nil {
		return err
	}
	if _, err = s.requireParticipant(ctx, oid, userID); err != nil {
		return err
	}

	chat, err := s.chats.GetChatByID(ctx, oid)
	if err != nil {
		return UnExpectedError
	}
	if chat.Type != mongo.ChatTypeGroup {
		return ErrParamInvalid
	}

	if err = s.chats.SetParticipantActive(ctx, oid, userID, false); err != nil {
		if mongo.IsNotFound(err) {
			return ErrNotParticipant
		}
		return UnExpectedError
	}

	s.postSystemMessage(ctx, oid, s.displayName(ctx, userID)+" 退出了群聊")
	return nil
}

// displayName 取用户展示名，查不到时兜底
func (s *chatServiceImpl) displayName(ctx context.Context, userID uint64) string {
	if user, err := s.users.GetUserByID(ctx, userID); err == nil && user.Nickname != "" {
		return user.Nickname
	}
	return "有人"
}

// postSystemMessage 写入并广播系统消息，失败只记日志
func (s *chatServiceImpl) postSystemMessage(ctx context.Context, chatID primitive.ObjectID, content string) {
	mu := s.lockChat(chatID.Hex())
	mu.Lock()
	defer mu.Unlock()

	msg := &mongo.Message{
		ChatID:  chatID,
		Type:    mongo.MessageTypeSystem,
		Content: content,
	}
	seq, err := s.chats.NextMessageSeq(ctx, chatID)
	if err != nil {
		log.Error("消息序号发放失败", "chatID", chatID.Hex(), "error", err)
		return
	}
	msg.Seq = seq

	if err := s.messages.SaveMessage(ctx, msg); err != nil {
		log.Error("系统消息落库失败", "chatID", chatID.Hex(), "error", err)
		return
	}

	preview := &mongo.MessagePreview{
		MessageID: msg.ID.Hex(),
		Type:      mongo.MessageTypeSystem,
		Content:   content,
		SentAt:    msg.CreatedAt,
	}
	if err := s.chats.ApplyMessageRollup(ctx, chatID, preview, 1); err != nil {
		log.Error("会话汇总更新失败", "chatID", chatID.Hex(), "error", err)
	}

	out := s.toMessageDTO(ctx, msg, 0)
	out.Sender.Nickname = "系统"
	if err := s.fanout.EmitToChat(ctx, chatID.Hex(), 0, ws.Event{Event: ws.EventNewMessage, Data: out}); err != nil {
		log.Error("广播系统消息失败", "chatID", chatID.Hex(), "error", err)
	}
}

// GetChatList 按最近活跃倒序返回会话列表，未读数逐会话按回执统计
func (s *chatServiceImpl) GetChatList(ctx context.Context, userID uint64, limit, offset int64) ([]*dto.ChatDTO, error) {
	chats, err := s.chats.ListUserChats(ctx, userID, limit, offset)
	if err != nil {
		return nil, UnExpectedError
	}

	list := make([]*dto.ChatDTO, 0, len(chats))
	for _, chat := range chats {
		item := s.toChatDTO(ctx, chat, userID)
		unread, countErr := s.messages.CountUnread(ctx, chat.ID, userID)
		if countErr != nil {
			log.Error("未读统计失败", "chatID", chat.ID.Hex(), "userID", userID, "error", countErr)
		} else {
			item.UnreadCount = unread
		}
		list = append(list, item)
	}
	return list, nil
}

// GetChatHistory 分页拉取历史消息，最新的在前
func (s *chatServiceImpl) GetChatHistory(ctx context.Context, userID uint64, chatID string, limit, offset int64) ([]*dto.MessageDTO, error) {
	oid, err := parseObjectID(chatID)
	if err != nil {
		return nil, err
	}
	if _, err = s.requireParticipant(ctx, oid, userID); err != nil {
		return nil, err
	}

	messages, err := s.messages.GetHistory(ctx, oid, limit, offset)
	if err != nil {
		return nil, UnExpectedError
	}

	list := make([]*dto.MessageDTO, 0, len(messages))
	for _, msg := range messages {
		list = append(list, s.toMessageDTO(ctx, msg, userID))
	}
	return list, nil
}

// DeleteChat 软删除会话。群聊仅管理员可删，单聊任一成员可删。
func (s *chatServiceImpl) DeleteChat(ctx context.Context, userID uint64, chatID string) error {
	oid, err := parseObjectID(chatID)
	if err != nil {
		return err
	}
	p, err := s.requireParticipant(ctx, oid, userID)
	if err != nil {
		return err
	}

	chat, err := s.chats.GetChatByID(ctx, oid)
	if err != nil {
		return UnExpectedError
	}
	if chat.Type == mongo.ChatTypeGroup && p.Role != mongo.ParticipantRoleAdmin {
		return ErrNotChatAdmin
	}

	if err = s.chats.SoftDeleteChat(ctx, oid, userID); err != nil {
		if mongo.IsNotFound(err) {
			return ErrChatNotFound
		}
		return UnExpectedError
	}

	if emitErr := s.fanout.EmitToChat(ctx, chatID, 0, ws.Event{
		Event: ws.EventChatDeleted,
		Data:  map[string]string{"chatId": chatID},
	}); emitErr != nil {
		log.Error("广播会话删除失败", "chatID", chatID, "error", emitErr)
	}
	return nil
}

// SendMessage 消息接入管道：校验、落库、原子维护会话汇总，然后才广播。
// 广播排在落库提交之后，客户端看不到存储里不存在的消息。
func (s *chatServiceImpl) SendMessage(ctx context.Context, userID uint64, chatID string, req *dto.SendMessageReq) (*dto.MessageDTO, error) {
	oid, err := parseObjectID(chatID)
	if err != nil {
		return nil, err
	}

	content := strings.TrimSpace(req.Content)
	if content == "" && len(req.Attachments) == 0 {
		return nil, ErrMessageEmpty
	}
	if utf8.RuneCountInString(content) > consts.MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	msgType := req.Type
	if msgType == "" {
		msgType = mongo.MessageTypeText
	}
	switch msgType {
	case mongo.MessageTypeText, mongo.MessageTypeImage, mongo.MessageTypeFile,
		mongo.MessageTypeAudio, mongo.MessageTypeVideo:
	default:
		return nil, ErrParamInvalid
	}

	p, err := s.requireParticipant(ctx, oid, userID)
	if err != nil {
		return nil, err
	}
	if !p.CanPost {
		return nil, UnauthorizedError
	}

	msg := &mongo.Message{
		ChatID:   oid,
		SenderID: userID,
		Type:     msgType,
		Content:  content,
	}

	// 跨会话或已失效的引用静默丢弃，消息本身照常接收
	if req.ReplyTo != "" {
		if replyOID, parseErr := parseObjectID(req.ReplyTo); parseErr == nil {
			if replied, getErr := s.messages.GetByID(ctx, replyOID); getErr == nil && replied.ChatID == oid {
				msg.ReplyTo = replyOID
			}
		}
	}

	if len(req.Attachments) > 0 {
		if copyErr := copier.Copy(&msg.Attachments, &req.Attachments); copyErr != nil {
			return nil, UnExpectedError
		}
	}

	// 取号→落库→广播在会话锁内完成，广播发出的顺序即提交顺序
	mu := s.lockChat(chatID)
	mu.Lock()

	seq, err := s.chats.NextMessageSeq(ctx, oid)
	if err != nil {
		mu.Unlock()
		log.Error("消息序号发放失败", "chatID", chatID, "senderID", userID, "error", err)
		return nil, UnExpectedError
	}
	msg.Seq = seq

	if err = s.messages.SaveMessage(ctx, msg); err != nil {
		mu.Unlock()
		log.Error("消息落库失败", "chatID", chatID, "senderID", userID, "error", err)
		return nil, UnExpectedError
	}

	preview := &mongo.MessagePreview{
		MessageID: msg.ID.Hex(),
		SenderID:  userID,
		Type:      msgType,
		Content:   previewContent(msgType, content),
		SentAt:    msg.CreatedAt,
	}
	if err = s.chats.ApplyMessageRollup(ctx, oid, preview, 1); err != nil {
		log.Error("会话汇总更新失败", "chatID", chatID, "messageID", msg.ID.Hex(), "error", err)
	}

	out := s.toMessageDTO(ctx, msg, userID)
	if emitErr := s.fanout.EmitToChat(ctx, chatID, 0, ws.Event{Event: ws.EventNewMessage, Data: out}); emitErr != nil {
		log.Error("广播新消息失败", "chatID", chatID, "messageID", msg.ID.Hex(), "error", emitErr)
	}
	mu.Unlock()

	s.notifyParticipants(ctx, oid, userID, out)
	return out, nil
}

// notifyParticipants 向其他成员个人频道推送新消息提醒，不在房间内也能感知。
// 本地在线表只覆盖本进程的连接，这里不按在线状态过滤；
// 提醒只在用户有连接的实例上落地，已在房间内的客户端自行去重。
func (s *chatServiceImpl) notifyParticipants(ctx context.Context, chatID primitive.ObjectID, senderID uint64, msg *dto.MessageDTO) {
	chat, err := s.chats.GetChatByID(ctx, chatID)
	if err != nil {
		log.Error("读取会话失败", "chatID", chatID.Hex(), "error", err)
		return
	}

	notice := dto.NewMessageNotificationDTO{
		ChatID:   chatID.Hex(),
		ChatType: chat.Type,
		ChatName: chat.Name,
		Sender:   msg.Sender,
		Preview:  previewContent(msg.Type, msg.Content),
		SentAt:   msg.CreatedAt,
	}
	for i := range chat.Participants {
		p := &chat.Participants[i]
		if !p.IsActive || p.UserID == senderID {
			continue
		}
		if err = s.fanout.EmitToUser(ctx, p.UserID, ws.Event{
			Event: ws.EventNewMessageNotification,
			Data:  notice,
		}); err != nil {
			log.Error("个人频道推送失败", "userID", p.UserID, "chatID", chatID.Hex(), "error", err)
		}
	}
}

// EditMessage 编辑消息，仅发送者可编辑文本消息
func (s *chatServiceImpl) EditMessage(ctx context.Context, userID uint64, messageID, content string) (*dto.MessageDTO, error) {
	oid, err := parseObjectID(messageID)
	if err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrMessageEmpty
	}
	if utf8.RuneCountInString(content) > consts.MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	msg, err := s.messages.GetByID(ctx, oid)
	if err != nil {
		if mongo.IsNotFound(err) {
			return nil, ErrMessageNotFound
		}
		return nil, UnExpectedError
	}
	if msg.SenderID != userID {
		return nil, ErrNotMessageSender
	}
	if msg.Type != mongo.MessageTypeText {
		return nil, ErrParamInvalid
	}

	now := time.Now()
	if err = s.messages.SetContent(ctx, oid, content, now); err != nil {
		if mongo.IsNotFound(err) {
			return nil, ErrMessageNotFound
		}
		return nil, UnExpectedError
	}

	msg.Content = content
	msg.IsEdited = true
	msg.EditedAt = &now
	out := s.toMessageDTO(ctx, msg, userID)
	if emitErr := s.fanout.EmitToChat(ctx, msg.ChatID.Hex(), 0, ws.Event{Event: ws.EventMessageEdited, Data: out}); emitErr != nil {
		log.Error("广播消息编辑失败", "messageID", messageID, "error", emitErr)
	}
	return out, nil
}

// DeleteMessage 软删除消息，发送者或群管理员可删
func (s *chatServiceImpl) DeleteMessage(ctx context.Context, userID uint64, messageID string) error {
	oid, err := parseObjectID(messageID)
	if err != nil {
		return err
	}
	msg, err := s.messages.GetByID(ctx, oid)
	if err != nil {
		if mongo.IsNotFound(err) {
			return ErrMessageNotFound
		}
		return UnExpectedError
	}

	p, err := s.requireParticipant(ctx, msg.ChatID, userID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID && p.Role != mongo.ParticipantRoleAdmin {
		return ErrNotMessageSender
	}

	if err = s.messages.SoftDelete(ctx, oid, userID); err != nil {
		if mongo.IsNotFound(err) {
			return ErrMessageNotFound
		}
		return UnExpectedError
	}
	// 计数回退；last_message 留给校准任务收敛
	if err = s.chats.ApplyMessageRollup(ctx, msg.ChatID, nil, -1); err != nil {
		log.Error("会话汇总更新失败", "chatID", msg.ChatID.Hex(), "error", err)
	}

	if emitErr := s.fanout.EmitToChat(ctx, msg.ChatID.Hex(), 0, ws.Event{
		Event: ws.EventMessageDeleted,
		Data:  dto.MessageDeletedDTO{MessageID: messageID, ChatID: msg.ChatID.Hex()},
	}); emitErr != nil {
		log.Error("广播消息删除失败", "messageID", messageID, "error", emitErr)
	}
	return nil
}

// AddReaction 添加表情回应并广播最新计数
func (s *chatServiceImpl) AddReaction(ctx context.Context, userID uint64, messageID, emoji string) error {
	return s.applyReaction(ctx, userID, messageID, emoji, false)
}

// RemoveReaction 移除表情回应并广播最新计数
func (s *chatServiceImpl) RemoveReaction(ctx context.Context, userID uint64, messageID, emoji string) error {
	return s.applyReaction(ctx, userID, messageID, emoji, true)
}

func (s *chatServiceImpl) applyReaction(ctx context.Context, userID uint64, messageID, emoji string, removed bool) error {
	if strings.TrimSpace(emoji) == "" {
		return ErrParamInvalid
	}
	oid, err := parseObjectID(messageID)
	if err != nil {
		return err
	}
	msg, err := s.messages.GetByID(ctx, oid)
	if err != nil {
		if mongo.IsNotFound(err) {
			return ErrMessageNotFound
		}
		return UnExpectedError
	}
	if _, err = s.requireParticipant(ctx, msg.ChatID, userID); err != nil {
		return err
	}

	if removed {
		err = s.messages.RemoveReaction(ctx, oid, userID, emoji)
	} else {
		err = s.messages.UpsertReaction(ctx, oid, userID, emoji)
	}
	if err != nil {
		if mongo.IsNotFound(err) {
			return ErrMessageNotFound
		}
		return UnExpectedError
	}

	updated, err := s.messages.GetByID(ctx, oid)
	if err != nil {
		return UnExpectedError
	}

	event := ws.EventReactionAdded
	if removed {
		event = ws.EventReactionRemoved
	}
	if emitErr := s.fanout.EmitToChat(ctx, msg.ChatID.Hex(), 0, ws.Event{
		Event: event,
		Data: dto.ReactionEventDTO{
			MessageID: messageID,
			ChatID:    msg.ChatID.Hex(),
			UserID:    userID,
			Emoji:     emoji,
			Reactions: mongo.ReactionCounts(updated.Reactions),
		},
	}); emitErr != nil {
		log.Error("广播表情回应失败", "messageID", messageID, "error", emitErr)
	}
	return nil
}

// MarkMessagesRead 全部标记已读。回执过滤天然幂等，重复调用不产生重复回执；
// 只有实际写入了新回执才广播 messages_read。
func (s *chatServiceImpl) MarkMessagesRead(ctx context.Context, userID uint64, chatID string) error {
	oid, err := parseObjectID(chatID)
	if err != nil {
		return err
	}
	if _, err = s.requireParticipant(ctx, oid, userID); err != nil {
		return err
	}

	now := time.Now()
	modified, err := s.messages.MarkAllRead(ctx, oid, userID, now)
	if err != nil {
		log.Error("标记已读失败", "chatID", chatID, "userID", userID, "error", err)
		return UnExpectedError
	}
	if err = s.chats.UpdateLastReadAt(ctx, oid, userID, now); err != nil {
		log.Error("已读水位更新失败", "chatID", chatID, "userID", userID, "error", err)
	}

	if modified > 0 {
		// 已读回执只通知其他成员，阅读者自己不需要
		if emitErr := s.fanout.EmitToChat(ctx, chatID, userID, ws.Event{
			Event: ws.EventMessagesRead,
			Data: dto.MessagesReadDTO{
				ChatID:   chatID,
				UserID:   userID,
				UserName: s.displayName(ctx, userID),
				ReadAt:   now,
			},
		}); emitErr != nil {
			log.Error("广播已读事件失败", "chatID", chatID, "error", emitErr)
		}
	}
	return nil
}

// NotifyTyping 打字指示，纯瞬态，不落库，排除发起者自身
func (s *chatServiceImpl) NotifyTyping(ctx context.Context, userID uint64, chatID string, stopped bool) error {
	oid, err := parseObjectID(chatID)
	if err != nil {
		return err
	}
	if _, err = s.requireParticipant(ctx, oid, userID); err != nil {
		return err
	}

	event := ws.EventUserTyping
	if stopped {
		event = ws.EventUserStopTyping
	}
	payload := dto.TypingDTO{ChatID: chatID, UserID: userID}
	if user, getErr := s.users.GetUserByID(ctx, userID); getErr == nil {
		payload.Nickname = user.Nickname
	}
	return s.fanout.EmitToChat(ctx, chatID, userID, ws.Event{Event: event, Data: payload})
}

// previewContent 生成会话列表与提醒里展示的消息摘要
func previewContent(msgType, content string) string {
	switch msgType {
	case mongo.MessageTypeImage:
		return "[图片]"
	case mongo.MessageTypeFile:
		return "[文件]"
	case mongo.MessageTypeAudio:
		return "[语音]"
	case mongo.MessageTypeVideo:
		return "[视频]"
	}
	if utf8.RuneCountInString(content) > 100 {
		runes := []rune(content)
		return string(runes[:100])
	}
	return content
}

// toChatDTO 组装会话视图，成员展示字段批量取自用户库
func (s *chatServiceImpl) toChatDTO(ctx context.Context, chat *mongo.Chat, viewerID uint64) *dto.ChatDTO {
	out := &dto.ChatDTO{
		ID:           chat.ID.Hex(),
		Type:         chat.Type,
		Name:         chat.Name,
		LastActivity: chat.LastActivity,
		MessageCount: chat.Metadata.MessageCount,
	}
	if chat.LastMessage != nil {
		preview := &dto.MessagePreviewDTO{}
		if err := copier.Copy(preview, chat.LastMessage); err == nil {
			out.LastMessage = preview
		}
	}

	ids := make([]uint64, 0, len(chat.Participants))
	for i := range chat.Participants {
		if chat.Participants[i].IsActive {
			ids = append(ids, chat.Participants[i].UserID)
		}
	}
	users, err := s.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		log.Error("批量读取用户失败", "chatID", chat.ID.Hex(), "error", err)
	}
	byID := make(map[uint64]int, len(users))
	for i, u := range users {
		byID[u.ID] = i
	}

	out.Participants = make([]dto.ParticipantDTO, 0, len(ids))
	for i := range chat.Participants {
		p := &chat.Participants[i]
		if !p.IsActive {
			continue
		}
		item := dto.ParticipantDTO{
			UserID:   p.UserID,
			Role:     p.Role,
			IsOnline: s.fanout.IsOnline(p.UserID),
		}
		if idx, ok := byID[p.UserID]; ok {
			item.Nickname = users[idx].Nickname
			item.AvatarURL = users[idx].AvatarURL
		}
		if item.AvatarURL == "" {
			item.AvatarURL = consts.DefaultAvatarURL
		}
		out.Participants = append(out.Participants, item)
	}

	// 单聊用对端昵称兜底会话名
	if chat.Type == mongo.ChatTypePrivate && out.Name == "" {
		for _, p := range out.Participants {
			if p.UserID != viewerID {
				out.Name = p.Nickname
				break
			}
		}
	}
	return out
}

// toMessageDTO 组装消息视图：发送者展示字段、被回复摘要、表情计数
func (s *chatServiceImpl) toMessageDTO(ctx context.Context, msg *mongo.Message, viewerID uint64) *dto.MessageDTO {
	out := &dto.MessageDTO{
		ID:        msg.ID.Hex(),
		ChatID:    msg.ChatID.Hex(),
		Seq:       msg.Seq,
		Type:      msg.Type,
		Content:   msg.Content,
		Reactions: mongo.ReactionCounts(msg.Reactions),
		IsRead:    msg.SenderID == viewerID || mongo.HasRead(msg.ReadBy, viewerID),
		IsEdited:  msg.IsEdited,
		EditedAt:  msg.EditedAt,
		CreatedAt: msg.CreatedAt,
	}

	out.Sender = dto.SenderDTO{ID: msg.SenderID}
	if user, err := s.users.GetUserByID(ctx, msg.SenderID); err == nil {
		out.Sender.Nickname = user.Nickname
		out.Sender.AvatarURL = user.AvatarURL
	}

	if len(msg.Attachments) > 0 {
		if err := copier.Copy(&out.Attachments, &msg.Attachments); err != nil {
			log.Error("附件转换失败", "messageID", out.ID, "error", err)
		}
	}

	if !msg.ReplyTo.IsZero() {
		if replied, err := s.messages.GetByID(ctx, msg.ReplyTo); err == nil {
			out.ReplyTo = &dto.ReplyPreviewDTO{
				ID:       replied.ID.Hex(),
				SenderID: replied.SenderID,
				Type:     replied.Type,
				Content:  previewContent(replied.Type, replied.Content),
			}
		}
	}
	return out
}
