package auth

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"contacts-api/internal/shared/cache"
	"contacts-api/internal/shared/model"
	"contacts-api/internal/shared/storage"
)

// UserStore 用户目录接口，认证模块只依赖自己用到的操作
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	ConfirmUserEmail(ctx context.Context, email string) error
	UpdateUserPassword(ctx context.Context, email, passwordHash string) error
	UpdateUserRole(ctx context.Context, id int64, role model.UserRole) error
}

// Notifier 注册确认与密码重置邮件的发送端
type Notifier interface {
	SendConfirmation(to, username, token string) error
	SendPasswordReset(to, username, token string) error
}

var usersRegistered = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "contacts_api",
	Name:      "users_registered_total",
	Help:      "Total number of registered users",
})

// Handler 认证 HTTP 处理器
type Handler struct {
	store    UserStore
	sessions cache.UserSessionCache
	notifier Notifier
	cfg      Config
}

// NewHandler 创建认证处理器
func NewHandler(store UserStore, sessions cache.UserSessionCache, notifier Notifier, cfg Config) *Handler {
	return &Handler{store: store, sessions: sessions, notifier: notifier, cfg: cfg}
}

// RegisterRoutes 注册认证相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/register", h.Register)
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	mux.HandleFunc("GET /api/v1/auth/confirmed_email/{token}", h.ConfirmedEmail)
	mux.HandleFunc("POST /api/v1/auth/request_email", h.RequestEmail)
	mux.HandleFunc("POST /api/v1/auth/forgot-password", h.ForgotPassword)
	mux.HandleFunc("POST /api/v1/auth/reset-password/{token}", h.ResetPassword)
}

// ============================================================================
// 请求/响应类型
// ============================================================================

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// ============================================================================
// Handlers
// ============================================================================

// Register 用户注册，成功后发送确认邮件
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	if !isValidEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "invalid email format")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	// 先查邮箱再查用户名，冲突提示依此顺序
	existing, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		log.Printf("[auth.register] GetUserByEmail error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "user with this email already exists")
		return
	}
	existing, err = h.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		log.Printf("[auth.register] GetUserByUsername error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "user with this username already exists")
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		log.Printf("[auth.register] HashPassword error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user := &model.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Confirmed:    false,
		Avatar:       gravatarURL(req.Email),
		Role:         model.UserRoleUser,
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		// 预检查后仍可能撞上并发注册的唯一约束
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "user with this email or username already exists")
			return
		}
		log.Printf("[auth.register] CreateUser error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	usersRegistered.Inc()

	// 同名用户的旧会话快照可能残留
	if err := h.sessions.DeleteUser(r.Context(), user.Username); err != nil {
		log.Printf("[auth.register] invalidate session cache for %q: %v", user.Username, err)
	}

	if token, err := GenerateActionToken(h.cfg, user.Email, ActionConfirmEmail); err != nil {
		log.Printf("[auth.register] GenerateActionToken error: %v", err)
	} else {
		// 发送结果由通知客户端记录，失败不影响注册
		go func() { _ = h.notifier.SendConfirmation(user.Email, user.Username, token) }()
	}

	log.Printf("[auth] User registered: %s (%s)", user.Email, user.Username)
	writeJSON(w, http.StatusCreated, user)
}

// Login 校验凭证并签发访问令牌
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	// 登录需要密码哈希，绕过会话缓存直接查目录
	user, err := h.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		log.Printf("[auth.login] GetUserByUsername error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil || !CheckPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if !user.Confirmed {
		writeError(w, http.StatusUnauthorized, "email address not confirmed")
		return
	}

	token, err := GenerateAccessToken(h.cfg, user.Username, 0)
	if err != nil {
		log.Printf("[auth.login] GenerateAccessToken error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Printf("[auth] User logged in: %s", user.Username)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

// ConfirmedEmail 通过邮件中的令牌确认邮箱，重复确认幂等
func (h *Handler) ConfirmedEmail(w http.ResponseWriter, r *http.Request) {
	email, err := ParseActionToken(h.cfg, r.PathValue("token"), ActionConfirmEmail)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid token for email verification")
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), email)
	if err != nil {
		log.Printf("[auth.confirm] GetUserByEmail error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusBadRequest, "verification error")
		return
	}
	if user.Confirmed {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Your email is already confirmed"})
		return
	}

	if err := h.store.ConfirmUserEmail(r.Context(), email); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "verification error")
			return
		}
		log.Printf("[auth.confirm] ConfirmUserEmail error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.sessions.DeleteUser(r.Context(), user.Username); err != nil {
		log.Printf("[auth.confirm] invalidate session cache for %q: %v", user.Username, err)
	}

	log.Printf("[auth] Email confirmed: %s", email)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Email confirmed successfully"})
}

// RequestEmail 重发确认邮件，响应不泄露邮箱是否已注册
func (h *Handler) RequestEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if !isValidEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "invalid email format")
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		log.Printf("[auth.request_email] GetUserByEmail error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user != nil && user.Confirmed {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Your email is already confirmed"})
		return
	}
	if user != nil {
		if token, err := GenerateActionToken(h.cfg, user.Email, ActionConfirmEmail); err != nil {
			log.Printf("[auth.request_email] GenerateActionToken error: %v", err)
		} else {
			go func() { _ = h.notifier.SendConfirmation(user.Email, user.Username, token) }()
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Check your email for confirmation"})
}

// ForgotPassword 发送密码重置邮件，响应不泄露邮箱是否已注册
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if !isValidEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "invalid email format")
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		log.Printf("[auth.forgot_password] GetUserByEmail error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user != nil {
		if token, err := GenerateActionToken(h.cfg, user.Email, ActionResetPassword); err != nil {
			log.Printf("[auth.forgot_password] GenerateActionToken error: %v", err)
		} else {
			go func() { _ = h.notifier.SendPasswordReset(user.Email, user.Username, token) }()
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "If email exists, password reset link has been sent"})
}

// ResetPassword 通过邮件中的令牌设置新密码
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	email, err := ParseActionToken(h.cfg, r.PathValue("token"), ActionResetPassword)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid token for password reset")
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), email)
	if err != nil {
		log.Printf("[auth.reset_password] GetUserByEmail error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusBadRequest, "invalid token")
		return
	}

	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		log.Printf("[auth.reset_password] HashPassword error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.store.UpdateUserPassword(r.Context(), email, hash); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "invalid token")
			return
		}
		log.Printf("[auth.reset_password] UpdateUserPassword error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update password")
		return
	}
	if err := h.sessions.DeleteUser(r.Context(), user.Username); err != nil {
		log.Printf("[auth.reset_password] invalidate session cache for %q: %v", user.Username, err)
	}

	log.Printf("[auth] Password reset: %s", email)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset successfully"})
}

// ============================================================================
// Admin Bootstrap
// ============================================================================

// EnsureAdminUser 确保管理员用户存在（启动时调用）
// 如果配置了 adminEmail 且数据库中不存在该用户，则自动创建；
// 已存在但角色不是 admin 时提升角色
func EnsureAdminUser(store UserStore, sessions cache.UserSessionCache, adminEmail, adminPassword string) error {
	if adminEmail == "" || adminPassword == "" {
		return nil
	}

	ctx := context.Background()
	existing, err := store.GetUserByEmail(ctx, adminEmail)
	if err != nil {
		return fmt.Errorf("check admin user: %w", err)
	}
	if existing != nil {
		if existing.Role != model.UserRoleAdmin {
			log.Printf("[auth] Upgrading user %s to admin role", adminEmail)
			if err := store.UpdateUserRole(ctx, existing.ID, model.UserRoleAdmin); err != nil {
				return fmt.Errorf("upgrade admin role: %w", err)
			}
			if err := sessions.DeleteUser(ctx, existing.Username); err != nil {
				log.Printf("[auth] invalidate session cache for %q: %v", existing.Username, err)
			}
			return nil
		}
		log.Printf("[auth] Admin user already exists: %s (%d)", adminEmail, existing.ID)
		return nil
	}

	hash, err := HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	user := &model.User{
		Username:     "admin",
		Email:        adminEmail,
		PasswordHash: hash,
		Confirmed:    true,
		Avatar:       gravatarURL(adminEmail),
		Role:         model.UserRoleAdmin,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	log.Printf("[auth] Created admin user: %s (%d)", adminEmail, user.ID)
	return nil
}

// ============================================================================
// 工具函数
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func isValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// gravatarURL 生成默认头像地址，gravatar 协议要求对小写邮箱取 MD5
func gravatarURL(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%s?d=identicon", hex.EncodeToString(sum[:]))
}
