package kafka

import (
	"Taleweave/internal/api/dto"
	"Taleweave/internal/service"
	"context"
	"errors"
	log "log/slog"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
)

// EngagementHandler 消费互动事件（关注/点赞/评论/新故事）并注入通知管道
type EngagementHandler struct {
	notifications service.NotificationService
}

func NewEngagementHandler(notifications service.NotificationService) *EngagementHandler {
	return &EngagementHandler{notifications: notifications}
}

func (s *EngagementHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("engagement consumer setup")
	return nil
}

func (s *EngagementHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("engagement consumer cleanup")
	return nil
}

func (s *EngagementHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	log.Info("topic-engagement consume claim")
	err := pullMessageBatch(session, claim, s.logic)
	if err != nil {
		log.Error("topic-engagement process batch error", "err", err)
		return err
	}
	return nil
}

// logic 单条事件处理。畸形消息直接跳过不阻塞位点，业务校验失败同样跳过，
// 只有存储类错误才重试。
func (s *EngagementHandler) logic(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event dto.EngagementEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.ErrorContext(ctx, "unmarshal engagement event error", "err", err, "offset", msg.Offset)
		return nil
	}

	err := s.notifications.Notify(ctx, &event)
	if err == nil {
		return nil
	}
	if errors.Is(err, service.ErrParamInvalid) || errors.Is(err, service.ErrTargetInvalid) {
		log.WarnContext(ctx, "skip invalid engagement event",
			"type", event.Type, "targetKind", event.TargetKind, "err", err)
		return nil
	}
	return err
}
