package models

import "time"

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"

	StatusActive   = "active"
	StatusInactive = "inactive"
)

type User struct {
	ID           uint      `gorm:"primaryKey"`
	Name         string    `gorm:"size:255;not null"`
	Email        string    `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"size:50;not null;default:user"`
	Status       string    `gorm:"size:50;not null;default:active"`
	CreatedAt    time.Time
}

// Session 记录登录/登出时间，是在线人数的持久化依据。
// logout_time 为空且 login_time 在 24 小时内即视为活跃；
// socket 断开不会关闭会话，它只是一条在线记录而非认证会话。
type Session struct {
	ID         uint      `gorm:"primaryKey"`
	UserID     uint      `gorm:"index;not null"`
	User       User      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	LoginTime  time.Time `gorm:"not null;autoCreateTime"`
	LogoutTime *time.Time
}

// ActivityLog 只追加的用户操作日志，随用户删除级联清理。
type ActivityLog struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	User      User      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Action    string    `gorm:"size:255;not null"`
	Timestamp time.Time `gorm:"index;not null;autoCreateTime"`
}
