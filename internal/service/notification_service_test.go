package service

import (
	"context"
	"testing"
	"time"

	"Taleweave/internal/api/dto"
	"Taleweave/internal/model"
	"Taleweave/internal/pkg/mongo"
	"Taleweave/internal/pkg/ws"

	"github.com/stretchr/testify/require"
)

type notificationFixture struct {
	repo    *fakeNotificationRepo
	users   *fakeUserRepo
	fanout  *fakeFanout
	service NotificationService
}

func newNotificationFixture() *notificationFixture {
	f := &notificationFixture{
		repo: newFakeNotificationRepo(),
		users: newFakeUserRepo(
			&model.User{ID: 1, Nickname: "爱丽丝"},
			&model.User{ID: 2, Nickname: "鲍勃"},
			&model.User{ID: 3, Nickname: "卡罗尔"},
			&model.User{ID: 4, Nickname: "戴夫"},
			&model.User{ID: 5, Nickname: "伊芙"},
		),
		fanout: newFakeFanout(),
	}
	f.service = NewNotificationService(f.repo, f.users, f.fanout)
	return f
}

func likeEvent(actor, recipient uint64) *dto.EngagementEvent {
	return &dto.EngagementEvent{
		Type:        mongo.NotificationTypeLike,
		ActorID:     actor,
		RecipientID: recipient,
		TargetKind:  "story",
		TargetID:    "story-1",
	}
}

func TestNotifySelfSuppression(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture()

	req.NoError(f.service.Notify(context.Background(), likeEvent(1, 1)))

	list, err := f.service.GetNotificationList(context.Background(), 1, 20, 0)
	req.NoError(err)
	req.Empty(list)
	req.Empty(f.fanout.byEvent(ws.EventNewNotification))
}

func TestNotifyValidation(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture()
	ctx := context.Background()

	err := f.service.Notify(ctx, &dto.EngagementEvent{
		Type: "poke", ActorID: 1, RecipientID: 2, TargetKind: "story", TargetID: "s1",
	})
	req.ErrorIs(err, ErrParamInvalid)

	err = f.service.Notify(ctx, &dto.EngagementEvent{
		Type: mongo.NotificationTypeLike, ActorID: 1, RecipientID: 2, TargetKind: "planet", TargetID: "s1",
	})
	req.ErrorIs(err, ErrTargetInvalid)

	err = f.service.Notify(ctx, &dto.EngagementEvent{
		Type: mongo.NotificationTypeLike, ActorID: 1, RecipientID: 2, TargetKind: "story", TargetID: "",
	})
	req.ErrorIs(err, ErrTargetInvalid)
}

func TestNotifyAggregatesLikesInWindow(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture()
	ctx := context.Background()

	for _, actor := range []uint64{2, 3, 4, 5} {
		req.NoError(f.service.Notify(ctx, likeEvent(actor, 1)))
	}

	// 同目标点赞折叠成一条
	list, err := f.service.GetNotificationList(ctx, 1, 20, 0)
	req.NoError(err)
	req.Len(list, 1)

	n := list[0]
	req.True(n.IsAggregated)
	req.Equal(int64(4), n.AggregatedCount)
	// 最近发起者在前，去重并截断到 3 位
	req.Equal([]uint64{5, 4, 3}, n.LastActors)
	req.Equal("伊芙 等 4 人赞了你的故事", n.Message)
	req.False(n.IsRead)

	// 每次事件都推送一次，带最新未读数
	pushes := f.fanout.byEvent(ws.EventNewNotification)
	req.Len(pushes, 4)
	last, ok := pushes[3].Event.Data.(dto.NotificationPushDTO)
	req.True(ok)
	req.Equal(int64(1), last.UnreadCount)
	req.Equal(uint64(1), pushes[3].UserID)
}

func TestNotifyAggregationResetsRead(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture()
	ctx := context.Background()

	req.NoError(f.service.Notify(ctx, likeEvent(2, 1)))
	list, err := f.service.GetNotificationList(ctx, 1, 20, 0)
	req.NoError(err)
	req.NoError(f.service.MarkAsRead(ctx, 1, list[0].ID))

	// 已读的聚合行被新事件重新置为未读
	req.NoError(f.service.Notify(ctx, likeEvent(3, 1)))
	unread, err := f.service.GetUnreadCount(ctx, 1)
	req.NoError(err)
	req.Equal(int64(1), unread)
}

func TestNotifyDistinctTargetsStaySeparate(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture()
	ctx := context.Background()

	req.NoError(f.service.Notify(ctx, likeEvent(2, 1)))

	other := likeEvent(3, 1)
	other.TargetID = "story-2"
	req.NoError(f.service.Notify(ctx, other))

	comment := likeEvent(4, 1)
	comment.Type = mongo.NotificationTypeComment
	req.NoError(f.service.Notify(ctx, comment))

	list, err := f.service.GetNotificationList(ctx, 1, 20, 0)
	req.NoError(err)
	req.Len(list, 3)
}

func TestNotifyFollowNeverAggregates(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture()
	ctx := context.Background()

	for _, actor := range []uint64{2, 3} {
		req.NoError(f.service.Notify(ctx, &dto.EngagementEvent{
			Type:        mongo.NotificationTypeFollow,
			ActorID:     actor,
			RecipientID: 1,
			TargetKind:  "user",
			TargetID:    "1",
		}))
	}

	// 关注永远各自成行
	list, err := f.service.GetNotificationList(ctx, 1, 20, 0)
	req.NoError(err)
	req.Len(list, 2)
	req.False(list[0].IsAggregated)
	req.Equal("卡罗尔 关注了你", list[0].Message)
	req.Equal("鲍勃 关注了你", list[1].Message)
}

func TestNotifyTargetKindNormalized(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture()
	ctx := context.Background()

	evt := likeEvent(2, 1)
	evt.TargetKind = "Story"
	req.NoError(f.service.Notify(ctx, evt))

	// 大小写漂移的 kind 归一后仍折叠进同一行
	req.NoError(f.service.Notify(ctx, likeEvent(3, 1)))
	list, err := f.service.GetNotificationList(ctx, 1, 20, 0)
	req.NoError(err)
	req.Len(list, 1)
	req.Equal(int64(2), list[0].AggregatedCount)
	req.Equal("story", list[0].Target.Kind)
}

func TestMarkAllAsRead(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture()
	ctx := context.Background()

	req.NoError(f.service.Notify(ctx, likeEvent(2, 1)))
	req.NoError(f.service.Notify(ctx, &dto.EngagementEvent{
		Type:        mongo.NotificationTypeStoryPublished,
		ActorID:     3,
		RecipientID: 1,
		TargetKind:  "story",
		TargetID:    "story-9",
	}))

	unread, err := f.service.GetUnreadCount(ctx, 1)
	req.NoError(err)
	req.Equal(int64(2), unread)

	req.NoError(f.service.MarkAllAsRead(ctx, 1))
	unread, err = f.service.GetUnreadCount(ctx, 1)
	req.NoError(err)
	req.Equal(int64(0), unread)

	// 幂等
	req.NoError(f.service.MarkAllAsRead(ctx, 1))
}

func TestMarkAsReadScopedToRecipient(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture()
	ctx := context.Background()

	req.NoError(f.service.Notify(ctx, likeEvent(2, 1)))
	list, err := f.service.GetNotificationList(ctx, 1, 20, 0)
	req.NoError(err)

	// 别人的通知标不动
	req.ErrorIs(f.service.MarkAsRead(ctx, 2, list[0].ID), ErrNotificationNotFound)
	req.NoError(f.service.MarkAsRead(ctx, 1, list[0].ID))
}

func TestNotifyNewRowAfterWindowExpires(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture()
	ctx := context.Background()

	req.NoError(f.service.Notify(ctx, likeEvent(2, 1)))

	// 把已有的点赞通知推出 24 小时折叠窗口
	f.repo.mu.Lock()
	f.repo.notifications[0].CreatedAt = time.Now().Add(-25 * time.Hour)
	f.repo.mu.Unlock()

	req.NoError(f.service.Notify(ctx, likeEvent(3, 1)))

	// 窗口外不折叠，第二次点赞独立成行
	list, err := f.service.GetNotificationList(ctx, 1, 20, 0)
	req.NoError(err)
	req.Len(list, 2)
	req.False(list[0].IsAggregated)
	req.Equal(int64(1), list[0].AggregatedCount)
	req.Equal("卡罗尔 赞了你的故事", list[0].Message)
	req.Equal("鲍勃 赞了你的故事", list[1].Message)
}
