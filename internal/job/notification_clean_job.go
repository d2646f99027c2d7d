package job

import (
	"Taleweave/internal/pkg/mongo"
	"context"
	log "log/slog"
	"time"
)

const (
	// 已读通知保留 7 天，未读最长保留 180 天，TTL 索引之外的主动清理
	readRetention  = 7 * 24 * time.Hour
	forceRetention = 180 * 24 * time.Hour
)

type NotificationCleanJob struct {
	notifications mongo.NotificationRepo
}

func NewNotificationCleanJob(notifications mongo.NotificationRepo) *NotificationCleanJob {
	return &NotificationCleanJob{notifications: notifications}
}

func (s *NotificationCleanJob) Run() {
	ctx := context.Background()
	log.Info("start notification clean job")

	readDeleted, err := s.notifications.DeleteReadBefore(ctx, time.Now().Add(-readRetention))
	if err != nil {
		log.Error("failed to clean read notifications", "err", err)
	}

	forceDeleted, err := s.notifications.DeleteBefore(ctx, time.Now().Add(-forceRetention))
	if err != nil {
		log.Error("failed to force clean notifications", "err", err)
	}

	if readDeleted > 0 || forceDeleted > 0 {
		log.Info("notification clean job finished", "read_deleted", readDeleted, "force_deleted", forceDeleted)
	}
}
