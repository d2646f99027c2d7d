package cron

import (
	"Taleweave/internal/job"
	log "log/slog"

	"github.com/robfig/cron/v3"
)

type Manager struct {
	engine               *cron.Cron
	notificationCleanJob *job.NotificationCleanJob
	chatRollupJob        *job.ChatRollupJob
}

func NewCronManager(notificationCleanJob *job.NotificationCleanJob, chatRollupJob *job.ChatRollupJob) *Manager {
	return &Manager{
		engine:               cron.New(cron.WithSeconds()),
		notificationCleanJob: notificationCleanJob,
		chatRollupJob:        chatRollupJob,
	}
}

// RegisterJobs 注册定时任务
func (s *Manager) RegisterJobs() error {
	if _, err := s.engine.AddJob("@daily", s.notificationCleanJob); err != nil {
		return err
	}
	if _, err := s.engine.AddJob("@hourly", s.chatRollupJob); err != nil {
		return err
	}
	return nil
}

func (s *Manager) Start() {
	log.Info("Cron 定时任务引擎启动")
	s.engine.Start()
}

func (s *Manager) Stop() {
	log.Info("Cron 定时任务引擎停止")
	s.engine.Stop()
}
