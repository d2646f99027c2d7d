package service

import (
	log "log/slog"

	"context"
	"time"

	"Taleweave/internal/api/dto"
	"Taleweave/internal/pkg/ws"
	"Taleweave/internal/repository"

	"github.com/jinzhu/copier"
)

// IMEventAdapter 把连接层的入站事件接到会话服务上
type IMEventAdapter struct {
	chats ChatService
	hub   *ws.Hub
}

func NewIMEventAdapter(chats ChatService) *IMEventAdapter {
	return &IMEventAdapter{chats: chats}
}

// BindHub 连接中枢与事件适配器互相依赖，装配时后绑定
func (s *IMEventAdapter) BindHub(hub *ws.Hub) {
	s.hub = hub
}

func (s *IMEventAdapter) OnJoinChat(c *ws.Client, chatID string) error {
	ctx := context.Background()
	if err := s.chats.CanJoin(ctx, c.UserID, chatID); err != nil {
		return err
	}
	s.hub.JoinRoom(c, chatID)
	c.SendEvent(ws.Event{Event: ws.EventJoinedChat, Data: map[string]string{"chatId": chatID}})
	return nil
}

func (s *IMEventAdapter) OnLeaveChat(c *ws.Client, chatID string) error {
	s.hub.LeaveRoom(c, chatID)
	c.SendEvent(ws.Event{Event: ws.EventLeftChat, Data: map[string]string{"chatId": chatID}})
	return nil
}

func (s *IMEventAdapter) OnSendMessage(c *ws.Client, p ws.SendMessagePayload) error {
	req := &dto.SendMessageReq{
		Content: p.Content,
		Type:    p.Type,
		ReplyTo: p.ReplyTo,
	}
	if len(p.Attachments) > 0 {
		if err := copier.Copy(&req.Attachments, &p.Attachments); err != nil {
			return UnExpectedError
		}
	}
	_, err := s.chats.SendMessage(context.Background(), c.UserID, p.ChatID, req)
	return err
}

func (s *IMEventAdapter) OnTyping(c *ws.Client, chatID string, stopped bool) error {
	return s.chats.NotifyTyping(context.Background(), c.UserID, chatID, stopped)
}

func (s *IMEventAdapter) OnReaction(c *ws.Client, p ws.ReactionPayload, removed bool) error {
	if removed {
		return s.chats.RemoveReaction(context.Background(), c.UserID, p.MessageID, p.Emoji)
	}
	return s.chats.AddReaction(context.Background(), c.UserID, p.MessageID, p.Emoji)
}

func (s *IMEventAdapter) OnMarkRead(c *ws.Client, chatID string) error {
	return s.chats.MarkMessagesRead(context.Background(), c.UserID, chatID)
}

// userStatusWriter 把在线状态边沿落到用户库
type userStatusWriter struct {
	users repository.UserRepo
}

func NewUserStatusWriter(users repository.UserRepo) ws.StatusWriter {
	return &userStatusWriter{users: users}
}

// WriteStatus 落库快照，失败只记日志不阻断连接注册
func (s *userStatusWriter) WriteStatus(userID uint64, isOnline bool, lastSeen time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.users.UpdateOnlineStatus(ctx, userID, isOnline, lastSeen); err != nil {
		log.Error("在线状态落库失败", "userID", userID, "isOnline", isOnline, "error", err)
	}
}
