package service

import (
	"errors"
	"time"

	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/auth"
	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/config"
	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/models"
	"gorm.io/gorm"
)

// UserService 封装用户目录和认证相关的业务逻辑。
type UserService struct {
	db  *gorm.DB
	cfg config.Config
}

func NewUserService(db *gorm.DB, cfg config.Config) *UserService {
	return &UserService{db: db, cfg: cfg}
}

// UserDTO 是对外输出的用户数据，不包含密码散列。
type UserDTO struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toDTO(u models.User) UserDTO {
	return UserDTO{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, Status: u.Status, CreatedAt: u.CreatedAt}
}

func validRole(role string) bool {
	return role == models.RoleAdmin || role == models.RoleManager || role == models.RoleUser
}

// Register 创建新用户，邮箱重复时返回 ErrEmailTaken。
func (s *UserService) Register(name, email, password, role string) (*UserDTO, error) {
	if role == "" {
		role = models.RoleUser
	}
	if !validRole(role) {
		return nil, ErrInvalidRole
	}
	var count int64
	if err := s.db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := models.User{Name: name, Email: email, PasswordHash: hash, Role: role, Status: models.StatusActive}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}
	dto := toDTO(user)
	return &dto, nil
}

// LoginResult 登录成功后返回的数据。
type LoginResult struct {
	AccessToken string
	User        models.User
}

// Login 校验邮箱密码并签发访问 token，停用账号拒绝登录。
func (s *UserService) Login(email, password string) (*LoginResult, error) {
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if user.Status != models.StatusActive {
		return nil, ErrUserInactive
	}
	at, err := auth.GenerateAccessToken(user.ID, user.Role, s.cfg.JWTSecret, s.cfg.AccessTokenTTLMinutes)
	if err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: at, User: user}, nil
}

// List 按创建时间倒序返回全部用户。
func (s *UserService) List() ([]UserDTO, error) {
	var users []models.User
	if err := s.db.Order("created_at desc").Find(&users).Error; err != nil {
		return nil, err
	}
	out := make([]UserDTO, 0, len(users))
	for _, u := range users {
		out = append(out, toDTO(u))
	}
	return out, nil
}

// ByID 按 ID 查询单个用户。
func (s *UserService) ByID(id uint) (*UserDTO, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	dto := toDTO(user)
	return &dto, nil
}

// SetStatus 切换用户的启用/停用状态。
// 只更新 users.status，不关闭该用户已打开的会话，两者互相独立。
func (s *UserService) SetStatus(id uint, status string) (*UserDTO, error) {
	if status != models.StatusActive && status != models.StatusInactive {
		return nil, ErrInvalidStatus
	}
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if err := s.db.Model(&user).Update("status", status).Error; err != nil {
		return nil, err
	}
	user.Status = status
	dto := toDTO(user)
	return &dto, nil
}

// TotalCount 返回用户总数。
func (s *UserService) TotalCount() (int64, error) {
	var count int64
	err := s.db.Model(&models.User{}).Count(&count).Error
	return count, err
}

// ActiveCount 返回 status 为 active 的用户数。
func (s *UserService) ActiveCount() (int64, error) {
	var count int64
	err := s.db.Model(&models.User{}).Where("status = ?", models.StatusActive).Count(&count).Error
	return count, err
}

// Growth 返回最近 days 天内每天的注册人数，days 范围 [1, 730]，默认 7。
func (s *UserService) Growth(days int) ([]DailyCount, error) {
	days = clampDays(days)
	var out []DailyCount
	err := s.db.Model(&models.User{}).
		Select("DATE(created_at) as date, COUNT(*) as count").
		Where("created_at >= ?", startOfDaysAgo(days)).
		Group("DATE(created_at)").
		Order("date asc").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RoleCount 角色分布图表的一项。
type RoleCount struct {
	Role  string `json:"role"`
	Count int64  `json:"count"`
}

// RoleDistribution 返回各角色的用户数。
func (s *UserService) RoleDistribution() ([]RoleCount, error) {
	var out []RoleCount
	err := s.db.Model(&models.User{}).
		Select("role, COUNT(*) as count").
		Group("role").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
