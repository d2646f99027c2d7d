package service

import (
	log "log/slog"

	"context"
	"fmt"
	"time"

	"Taleweave/internal/api/dto"
	"Taleweave/internal/pkg/mongo"
	"Taleweave/internal/pkg/ws"
	"Taleweave/internal/repository"
)

type NotificationService interface {
	// Notify 互动事件入口，完成抑制、聚合与推送
	Notify(ctx context.Context, event *dto.EngagementEvent) error

	GetNotificationList(ctx context.Context, userID uint64, limit, offset int64) ([]*dto.NotificationDTO, error)
	GetUnreadCount(ctx context.Context, userID uint64) (int64, error)
	MarkAsRead(ctx context.Context, userID uint64, notificationID string) error
	MarkAllAsRead(ctx context.Context, userID uint64) error
}

type notificationServiceImpl struct {
	notifications mongo.NotificationRepo
	users         repository.UserRepo
	fanout        Fanout
}

func NewNotificationService(notifications mongo.NotificationRepo, users repository.UserRepo, fanout Fanout) NotificationService {
	return &notificationServiceImpl{
		notifications: notifications,
		users:         users,
		fanout:        fanout,
	}
}

// Notify 处理一条互动事件。
// 自己触发的事件直接吞掉；点赞和评论在 24 小时窗口内折叠进既有通知，
// 关注和新故事永远各自成行。折叠与计数都在存储层单语句完成，
// 并发事件不会互相覆盖。
func (s *notificationServiceImpl) Notify(ctx context.Context, event *dto.EngagementEvent) error {
	if event.ActorID == event.RecipientID {
		log.Debug("跳过自身触发的通知", "userID", event.ActorID, "type", event.Type)
		return nil
	}

	switch event.Type {
	case mongo.NotificationTypeFollow, mongo.NotificationTypeLike,
		mongo.NotificationTypeComment, mongo.NotificationTypeStoryPublished:
	default:
		return ErrParamInvalid
	}

	kind, ok := mongo.NormalizeTargetKind(event.TargetKind)
	if !ok || event.TargetID == "" {
		return ErrTargetInvalid
	}
	target := mongo.NotificationTarget{Kind: kind, ID: event.TargetID}

	var n *mongo.Notification
	if mongo.IsAggregatable(event.Type) {
		since := time.Now().Add(-mongo.AggregationWindow)
		merged, err := s.notifications.MergeAggregate(ctx, event.RecipientID, event.Type, target, event.ActorID, since)
		if err != nil {
			log.Error("通知聚合失败", "recipientID", event.RecipientID, "type", event.Type, "error", err)
			return UnExpectedError
		}
		n = merged
	}

	if n == nil {
		n = &mongo.Notification{
			RecipientID: event.RecipientID,
			ActorID:     event.ActorID,
			Type:        event.Type,
			Target:      target,
			Message:     s.renderMessage(ctx, event.Type, kind, event.ActorID, 1),
		}
		if err := s.notifications.CreateNotification(ctx, n); err != nil {
			log.Error("通知落库失败", "recipientID", event.RecipientID, "type", event.Type, "error", err)
			return UnExpectedError
		}
	} else {
		// 聚合后文案随最新发起者与计数重新生成，失败只影响展示
		n.Message = s.renderMessage(ctx, n.Type, n.Target.Kind, n.ActorID, n.AggregatedCount)
		if err := s.notifications.SetMessage(ctx, n.ID, n.Message); err != nil {
			log.Warn("通知文案刷新失败", "notificationID", n.ID.Hex(), "error", err)
		}
	}

	s.push(ctx, n)
	return nil
}

// push 向接收者个人频道推送通知与最新未读总数
func (s *notificationServiceImpl) push(ctx context.Context, n *mongo.Notification) {
	unread, err := s.notifications.GetUnreadCount(ctx, n.RecipientID)
	if err != nil {
		log.Error("未读总数统计失败", "recipientID", n.RecipientID, "error", err)
	}

	payload := dto.NotificationPushDTO{
		Notification: *s.toNotificationDTO(ctx, n),
		UnreadCount:  unread,
	}
	if err = s.fanout.EmitToUser(ctx, n.RecipientID, ws.Event{
		Event: ws.EventNewNotification,
		Data:  payload,
	}); err != nil {
		log.Error("通知推送失败", "recipientID", n.RecipientID, "error", err)
	}
}

// renderMessage 生成通知文案
func (s *notificationServiceImpl) renderMessage(ctx context.Context, notificationType, targetKind string, actorID uint64, count int64) string {
	name := "有人"
	if user, err := s.users.GetUserByID(ctx, actorID); err == nil && user.Nickname != "" {
		name = user.Nickname
	}

	object := "你的故事"
	if targetKind == mongo.TargetKindComment {
		object = "你的评论"
	}

	switch notificationType {
	case mongo.NotificationTypeFollow:
		return fmt.Sprintf("%s 关注了你", name)
	case mongo.NotificationTypeLike:
		if count > 1 {
			return fmt.Sprintf("%s 等 %d 人赞了%s", name, count, object)
		}
		return fmt.Sprintf("%s 赞了%s", name, object)
	case mongo.NotificationTypeComment:
		if count > 1 {
			return fmt.Sprintf("%s 等 %d 人评论了%s", name, count, object)
		}
		return fmt.Sprintf("%s 评论了%s", name, object)
	case mongo.NotificationTypeStoryPublished:
		return fmt.Sprintf("%s 发布了新故事", name)
	}
	return ""
}

// GetNotificationList 分页获取通知列表
func (s *notificationServiceImpl) GetNotificationList(ctx context.Context, userID uint64, limit, offset int64) ([]*dto.NotificationDTO, error) {
	notifications, err := s.notifications.GetNotificationList(ctx, userID, limit, offset)
	if err != nil {
		return nil, UnExpectedError
	}

	list := make([]*dto.NotificationDTO, 0, len(notifications))
	for _, n := range notifications {
		list = append(list, s.toNotificationDTO(ctx, n))
	}
	return list, nil
}

// GetUnreadCount 获取未读通知总数
func (s *notificationServiceImpl) GetUnreadCount(ctx context.Context, userID uint64) (int64, error) {
	count, err := s.notifications.GetUnreadCount(ctx, userID)
	if err != nil {
		return 0, UnExpectedError
	}
	return count, nil
}

// MarkAsRead 标记单条通知已读，只能操作自己的通知
func (s *notificationServiceImpl) MarkAsRead(ctx context.Context, userID uint64, notificationID string) error {
	oid, err := parseObjectID(notificationID)
	if err != nil {
		return err
	}
	if err = s.notifications.MarkAsRead(ctx, userID, oid); err != nil {
		if mongo.IsNotFound(err) {
			return ErrNotificationNotFound
		}
		return UnExpectedError
	}
	return nil
}

// MarkAllAsRead 一键已读
func (s *notificationServiceImpl) MarkAllAsRead(ctx context.Context, userID uint64) error {
	if err := s.notifications.MarkAllAsRead(ctx, userID); err != nil {
		return UnExpectedError
	}
	return nil
}

// toNotificationDTO 组装通知视图，发起者展示字段来自用户库
func (s *notificationServiceImpl) toNotificationDTO(ctx context.Context, n *mongo.Notification) *dto.NotificationDTO {
	out := &dto.NotificationDTO{
		ID:              n.ID.Hex(),
		Type:            n.Type,
		Actor:           dto.SenderDTO{ID: n.ActorID},
		Target:          dto.NotificationTargetDTO{Kind: n.Target.Kind, ID: n.Target.ID},
		Message:         n.Message,
		IsRead:          n.IsRead,
		IsAggregated:    n.IsAggregated,
		AggregatedCount: n.AggregatedCount,
		LastActors:      n.LastActors,
		CreatedAt:       n.CreatedAt,
	}
	if user, err := s.users.GetUserByID(ctx, n.ActorID); err == nil {
		out.Actor.Nickname = user.Nickname
		out.Actor.AvatarURL = user.AvatarURL
	}
	return out
}
