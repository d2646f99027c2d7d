package repository

import (
	"Taleweave/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
)

type UserRepo interface {
	GetUserByID(ctx context.Context, userID uint64) (*model.User, error)
	GetUsersByIDs(ctx context.Context, userIDs []uint64) ([]*model.User, error)
	UpdateOnlineStatus(ctx context.Context, userID uint64, isOnline bool, lastSeen time.Time) error
}

type userRepoImpl struct {
	db *gorm.DB
}

func NewUserRepo(db *gorm.DB) UserRepo {
	return &userRepoImpl{db: db}
}

// GetUserByID 获取用户展示字段
func (s *userRepoImpl) GetUserByID(ctx context.Context, userID uint64) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUsersByIDs 批量获取用户展示字段
func (s *userRepoImpl) GetUsersByIDs(ctx context.Context, userIDs []uint64) ([]*model.User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var users []*model.User
	err := s.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error
	return users, err
}

// UpdateOnlineStatus 回写在线状态与最后在线时间。
// 在线状态的权威在连接注册表，这里只是落库快照。
func (s *userRepoImpl) UpdateOnlineStatus(ctx context.Context, userID uint64, isOnline bool, lastSeen time.Time) error {
	return s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"is_online": isOnline,
			"last_seen": lastSeen,
		}).Error
}
