package service

import (
	"time"

	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/models"
	"gorm.io/gorm"
)

// 超过这个时长的会话即使没有登出也不再计入在线人数。
const sessionMaxAge = 24 * time.Hour

// SessionService 封装在线会话记录的业务逻辑。
type SessionService struct {
	db *gorm.DB
}

func NewSessionService(db *gorm.DB) *SessionService {
	return &SessionService{db: db}
}

// Open 在用户登录时创建一条会话记录。
func (s *SessionService) Open(userID uint) (*models.Session, error) {
	sess := models.Session{UserID: userID, LoginTime: time.Now()}
	if err := s.db.Create(&sess).Error; err != nil {
		return nil, err
	}
	return &sess, nil
}

// Close 在用户登出时补上 logout_time，只允许本人关闭自己的会话。
func (s *SessionService) Close(sessionID, userID uint) error {
	now := time.Now()
	res := s.db.Model(&models.Session{}).
		Where("id = ? AND user_id = ? AND logout_time IS NULL", sessionID, userID).
		Update("logout_time", &now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ActiveUserIDs 返回当前在线的用户 ID 集合：
// 会话未登出且登录时间在 24 小时内，按用户去重。
// 用户的 status 字段与会话是否打开互相独立，这里只看会话。
func (s *SessionService) ActiveUserIDs() ([]uint, error) {
	var ids []uint
	err := s.db.Model(&models.Session{}).
		Distinct("user_id").
		Where("logout_time IS NULL AND login_time >= ?", time.Now().Add(-sessionMaxAge)).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ActiveCount 返回在线用户数，即 ActiveUserIDs 的大小。
func (s *SessionService) ActiveCount() (int, error) {
	ids, err := s.ActiveUserIDs()
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
