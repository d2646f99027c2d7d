package model

import "time"

// User 用户主表。
// 本服务只消费展示字段，并best-effort回写在线状态；账号体系由用户服务维护。
type User struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string    `gorm:"uniqueIndex;type:varchar(64)" json:"username"`
	Nickname  string    `gorm:"type:varchar(64)" json:"nickname"`
	AvatarURL string    `gorm:"type:varchar(255)" json:"avatarUrl"`
	Role      string    `gorm:"type:varchar(32);default:user" json:"role"`
	IsOnline  bool      `gorm:"not null;default:0" json:"isOnline"`
	LastSeen  time.Time `json:"lastSeen"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (User) TableName() string { return "users" }
