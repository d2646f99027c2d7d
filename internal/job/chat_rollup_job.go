package job

import (
	"Taleweave/internal/pkg/mongo"
	"context"
	log "log/slog"
	"time"
)

const (
	rollupWindow    = 24 * time.Hour
	rollupBatchSize = 500
)

// ChatRollupJob 校准会话上的派生汇总。
// 消息计数平时靠 $inc 原子维护，删除路径上的偏差在这里对账收敛，
// 顺带修正被删消息残留的 last_message 快照。
type ChatRollupJob struct {
	chats    mongo.ChatRepo
	messages mongo.MessageRepo
}

func NewChatRollupJob(chats mongo.ChatRepo, messages mongo.MessageRepo) *ChatRollupJob {
	return &ChatRollupJob{chats: chats, messages: messages}
}

func (s *ChatRollupJob) Run() {
	ctx := context.Background()
	log.Info("start chat rollup job")

	chats, err := s.chats.ListActiveSince(ctx, time.Now().Add(-rollupWindow), rollupBatchSize)
	if err != nil {
		log.Error("failed to list active chats", "err", err)
		return
	}

	fixed := 0
	for _, chat := range chats {
		count, countErr := s.messages.CountByChat(ctx, chat.ID)
		if countErr != nil {
			log.Error("failed to count messages", "chatID", chat.ID.Hex(), "err", countErr)
			continue
		}
		active := chat.ActiveParticipantCount()

		if count == chat.Metadata.MessageCount && active == chat.Metadata.ActiveParticipants {
			continue
		}
		if err = s.chats.SetMetadata(ctx, chat.ID, count, active); err != nil {
			log.Error("failed to calibrate chat metadata", "chatID", chat.ID.Hex(), "err", err)
			continue
		}
		s.refreshLastMessage(ctx, chat)
		fixed++
	}

	if fixed > 0 {
		log.Info("chat rollup job finished", "calibrated", fixed)
	}
}

// refreshLastMessage 用存储里真实的最新消息覆盖快照
func (s *ChatRollupJob) refreshLastMessage(ctx context.Context, chat *mongo.Chat) {
	latest, err := s.messages.GetHistory(ctx, chat.ID, 1, 0)
	if err != nil || len(latest) == 0 {
		return
	}
	msg := latest[0]
	if chat.LastMessage != nil && chat.LastMessage.MessageID == msg.ID.Hex() {
		return
	}

	preview := &mongo.MessagePreview{
		MessageID: msg.ID.Hex(),
		SenderID:  msg.SenderID,
		Type:      msg.Type,
		Content:   msg.Content,
		SentAt:    msg.CreatedAt,
	}
	if err = s.chats.ApplyMessageRollup(ctx, chat.ID, preview, 0); err != nil {
		log.Error("failed to refresh last message", "chatID", chat.ID.Hex(), "err", err)
	}
}
