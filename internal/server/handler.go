package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/auth"
	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/service"
	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层和 Hub。
type Handler struct {
	userSvc     *service.UserService
	sessionSvc  *service.SessionService
	activitySvc *service.ActivityService
	hub         *ws.Hub
}

func NewHandler(userSvc *service.UserService, sessionSvc *service.SessionService, activitySvc *service.ActivityService, hub *ws.Hub) *Handler {
	return &Handler{userSvc: userSvc, sessionSvc: sessionSvc, activitySvc: activitySvc, hub: hub}
}

// activityFrame 把日志 DTO 打包成广播帧。
func activityFrame(a *service.ActivityDTO) []byte {
	b, _ := json.Marshal(ws.ActivityEvent{
		Type:      "activity_created",
		ID:        a.ID,
		Action:    a.Action,
		Timestamp: a.Timestamp,
		UserID:    a.UserID,
		UserName:  a.UserName,
		UserEmail: a.UserEmail,
		UserRole:  a.UserRole,
	})
	return b
}

// Register 处理用户注册请求。
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Name == "" || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(req.Password) < 6 || len(req.Password) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid password"})
		return
	}
	user, err := h.userSvc.Register(req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "email taken"})
		case errors.Is(err, service.ErrInvalidRole):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		default:
			log.Error().Err(err).Str("email", req.Email).Msg("register")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// Login 处理登录：校验凭证、开一条会话记录并签发 token。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.Login(req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		case errors.Is(err, service.ErrUserInactive):
			c.JSON(http.StatusForbidden, gin.H{"error": "account inactive"})
		default:
			log.Error().Err(err).Str("email", req.Email).Msg("login")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		}
		return
	}
	sess, err := h.sessionSvc.Open(result.User.ID)
	if err != nil {
		log.Error().Err(err).Uint("user_id", result.User.ID).Msg("login open session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if _, err := h.activitySvc.Create(result.User.ID, "User logged in"); err != nil {
		log.Warn().Err(err).Uint("user_id", result.User.ID).Msg("login activity log")
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": result.AccessToken,
		"session_id":   sess.ID,
		"user": gin.H{
			"id":     result.User.ID,
			"name":   result.User.Name,
			"email":  result.User.Email,
			"role":   result.User.Role,
			"status": result.User.Status,
		},
	})
}

// Logout 关闭指定会话，会话归属校验在 service 层完成。
func (h *Handler) Logout(c *gin.Context) {
	var req struct {
		SessionID uint `json:"session_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	userID := auth.GetUserID(c)
	if err := h.sessionSvc.Close(req.SessionID, userID); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		log.Error().Err(err).Uint("user_id", userID).Msg("logout")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	if _, err := h.activitySvc.Create(userID, "User logged out"); err != nil {
		log.Warn().Err(err).Uint("user_id", userID).Msg("logout activity log")
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// ListUsers 处理用户列表请求。
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.userSvc.List()
	if err != nil {
		log.Error().Err(err).Msg("list users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// GetUser 按 ID 返回单个用户。
func (h *Handler) GetUser(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	user, err := h.userSvc.ByID(uint(id))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		log.Error().Err(err).Int("user_id", id).Msg("get user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdateUserStatus 切换启用/停用状态，记一条日志并广播给在线客户端。
// 只改 users.status，不会关闭目标用户已打开的会话。
func (h *Handler) UpdateUserStatus(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	user, err := h.userSvc.SetStatus(uint(id), req.Status)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status, must be active or inactive"})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			log.Error().Err(err).Int("user_id", id).Msg("update user status")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update status"})
		}
		return
	}
	// 日志记在操作者名下，广播帧里的 user_* 字段是操作者而非被改的用户。
	actorID := auth.GetUserID(c)
	activity, err := h.activitySvc.Create(actorID, "Updated user "+strconv.Itoa(id)+" status to "+req.Status)
	if err != nil {
		log.Warn().Err(err).Uint("actor_id", actorID).Msg("status change activity log")
	} else {
		h.hub.RelayActivity(nil, activityFrame(activity))
	}
	c.JSON(http.StatusOK, gin.H{"message": "User status updated successfully", "user": user})
}

// ListActivities 返回最近的日志，支持 limit 和 user_id 过滤。
func (h *Handler) ListActivities(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	var (
		activities []service.ActivityDTO
		err        error
	)
	if v := c.Query("user_id"); v != "" {
		uid, convErr := strconv.Atoi(v)
		if convErr != nil || uid <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		activities, err = h.activitySvc.ByUser(uint(uid), limit)
	} else {
		activities, err = h.activitySvc.Recent(limit)
	}
	if err != nil {
		log.Error().Err(err).Msg("list activities")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list activities"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": activities})
}

// CreateActivity 追加一条日志并把带操作者信息的事件广播给在线客户端。
// 先持久化再广播，广播的事件永远带着完整的操作者元数据。
func (h *Handler) CreateActivity(c *gin.Context) {
	var req struct {
		Action string `json:"action"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Action = strings.TrimSpace(req.Action)
	if req.Action == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action is required"})
		return
	}
	userID := auth.GetUserID(c)
	activity, err := h.activitySvc.Create(userID, req.Action)
	if err != nil {
		log.Error().Err(err).Uint("user_id", userID).Msg("create activity")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create activity"})
		return
	}
	h.hub.RelayActivity(nil, activityFrame(activity))
	c.JSON(http.StatusCreated, gin.H{"activity": activity})
}

// DashboardStats 返回仪表盘顶部的三个统计数字。
func (h *Handler) DashboardStats(c *gin.Context) {
	total, err := h.userSvc.TotalCount()
	if err != nil {
		log.Error().Err(err).Msg("dashboard stats total users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	active, err := h.userSvc.ActiveCount()
	if err != nil {
		log.Error().Err(err).Msg("dashboard stats active users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	sessions, err := h.sessionSvc.ActiveCount()
	if err != nil {
		log.Error().Err(err).Msg("dashboard stats active sessions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_users":           total,
		"active_users":          active,
		"active_sessions_count": sessions,
	})
}

// UserGrowth 返回注册增长曲线数据。
func (h *Handler) UserGrowth(c *gin.Context) {
	days := queryDays(c)
	data, err := h.userSvc.Growth(days)
	if err != nil {
		log.Error().Err(err).Msg("user growth")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load growth data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"growth_data": data})
}

// RoleDistribution 返回角色分布数据。
func (h *Handler) RoleDistribution(c *gin.Context) {
	data, err := h.userSvc.RoleDistribution()
	if err != nil {
		log.Error().Err(err).Msg("role distribution")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load distribution"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"distribution": data})
}

// ActivityStats 返回日志按天聚合的曲线数据。
func (h *Handler) ActivityStats(c *gin.Context) {
	days := queryDays(c)
	data, err := h.activitySvc.Stats(days)
	if err != nil {
		log.Error().Err(err).Msg("activity stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load activity stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": data})
}

func queryDays(c *gin.Context) int {
	days := 7
	if v := c.Query("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			days = n
		}
	}
	return days
}
