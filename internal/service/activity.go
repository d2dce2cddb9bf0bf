package service

import (
	"time"

	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/metrics"
	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/models"
	"gorm.io/gorm"
)

// ActivityService 封装操作日志相关的业务逻辑。
type ActivityService struct {
	db *gorm.DB
}

func NewActivityService(db *gorm.DB) *ActivityService {
	return &ActivityService{db: db}
}

// ActivityDTO 是对外输出的日志数据，冗余了操作者的姓名/邮箱/角色，
// 这样广播出去的事件不需要客户端再查一次用户表。
type ActivityDTO struct {
	ID        uint      `json:"id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	UserID    uint      `json:"user_id"`
	UserName  string    `json:"user_name"`
	UserEmail string    `json:"user_email"`
	UserRole  string    `json:"user_role"`
}

// Create 追加一条日志并返回带操作者信息的 DTO。
// 先落库、再从用户表补全操作者字段，保证广播事件的元数据最多过期、不会缺失。
func (s *ActivityService) Create(userID uint, action string) (*ActivityDTO, error) {
	entry := models.ActivityLog{UserID: userID, Action: action, Timestamp: time.Now()}
	if err := s.db.Create(&entry).Error; err != nil {
		return nil, err
	}
	metrics.ActivitiesTotal.Inc()

	var actor models.User
	if err := s.db.Select("id", "name", "email", "role").First(&actor, userID).Error; err != nil {
		return nil, err
	}
	return &ActivityDTO{
		ID:        entry.ID,
		Action:    entry.Action,
		Timestamp: entry.Timestamp,
		UserID:    actor.ID,
		UserName:  actor.Name,
		UserEmail: actor.Email,
		UserRole:  actor.Role,
	}, nil
}

// Recent 返回最近的日志，按时间倒序，关联操作者信息。
func (s *ActivityService) Recent(limit int) ([]ActivityDTO, error) {
	return s.query(s.db, limit)
}

// ByUser 返回指定用户的日志，按时间倒序。
func (s *ActivityService) ByUser(userID uint, limit int) ([]ActivityDTO, error) {
	return s.query(s.db.Where("activity_logs.user_id = ?", userID), limit)
}

func (s *ActivityService) query(q *gorm.DB, limit int) ([]ActivityDTO, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []ActivityDTO
	err := q.Model(&models.ActivityLog{}).
		Select("activity_logs.id, activity_logs.action, activity_logs.timestamp, users.id as user_id, users.name as user_name, users.email as user_email, users.role as user_role").
		Joins("JOIN users ON users.id = activity_logs.user_id").
		Order("activity_logs.timestamp desc").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DailyCount 图表用的按天聚合结果。
type DailyCount struct {
	Date  time.Time `json:"date"`
	Count int64     `json:"count"`
}

// Stats 返回最近 days 天内每天的日志条数，days 范围 [1, 730]，默认 7。
func (s *ActivityService) Stats(days int) ([]DailyCount, error) {
	days = clampDays(days)
	var out []DailyCount
	err := s.db.Model(&models.ActivityLog{}).
		Select("DATE(timestamp) as date, COUNT(*) as count").
		Where("timestamp >= ?", startOfDaysAgo(days)).
		Group("DATE(timestamp)").
		Order("date asc").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func clampDays(days int) int {
	if days <= 0 {
		return 7
	}
	if days > 730 {
		return 730
	}
	return days
}

func startOfDaysAgo(days int) time.Time {
	y, m, d := time.Now().AddDate(0, 0, -days).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}
