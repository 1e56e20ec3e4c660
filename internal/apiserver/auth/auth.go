// Package auth 用户认证：JWT 令牌管理、密码哈希、身份解析、HTTP 中间件
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/containerd/errdefs"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"contacts-api/internal/shared/model"
)

// contextKey context 键类型
type contextKey string

const ctxKeyAuthUser contextKey = "auth_user"

// 令牌用途
const (
	TokenTypeAccess = "access"

	ActionConfirmEmail  = "confirm_email"
	ActionResetPassword = "reset_password"
)

// 认证错误分类
//
// 包装 errdefs 哨兵，HTTP 层统一翻译为状态码（401/403/503）。
var (
	ErrInvalidToken = fmt.Errorf("invalid or expired token: %w", errdefs.ErrUnauthenticated)
	ErrUnauthorized = fmt.Errorf("authentication required: %w", errdefs.ErrUnauthenticated)
	ErrForbidden    = fmt.Errorf("admin access required: %w", errdefs.ErrPermissionDenied)
)

// Config 认证配置
// 注意：JWTSecret 只从 JWT_SECRET 环境变量读取，不存储在 YAML 中
type Config struct {
	JWTSecret      string
	AccessTokenTTL time.Duration
	ActionTokenTTL time.Duration // 邮件确认/重置链接有效期
}

// DefaultConfig 返回默认认证配置
func DefaultConfig() Config {
	return Config{
		JWTSecret:      "",
		AccessTokenTTL: time.Hour,
		ActionTokenTTL: 7 * 24 * time.Hour,
	}
}

// ============================================================================
// 密码哈希
// ============================================================================

// HashPassword 使用 bcrypt 哈希密码
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	return string(bytes), err
}

// CheckPassword 验证密码，摘要格式非法时返回 false 而不是 panic
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ============================================================================
// JWT Token
// ============================================================================

// AccessClaims 访问令牌声明，Subject 是用户名
type AccessClaims struct {
	jwt.RegisteredClaims
	Type string `json:"type,omitempty"`
}

// ActionClaims 动作令牌声明，Subject 是邮箱地址
//
// 动作令牌通过邮件送达，授权单一动作（确认邮箱 / 重置密码）。
type ActionClaims struct {
	jwt.RegisteredClaims
	Action string `json:"action,omitempty"`
}

// GenerateAccessToken 生成访问令牌，ttl <= 0 时使用 cfg.AccessTokenTTL
func GenerateAccessToken(cfg Config, username string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = cfg.AccessTokenTTL
	}
	now := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: TokenTypeAccess,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// GenerateActionToken 生成动作令牌，有效期 cfg.ActionTokenTTL
func GenerateActionToken(cfg Config, email, action string) (string, error) {
	now := time.Now()
	claims := ActionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.ActionTokenTTL)),
		},
		Action: action,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// ParseAccessToken 解析并验证访问令牌
//
// 签名无效、payload 损坏、已过期、type 声明不是 access，一律返回
// ErrInvalidToken。过期按解码时刻的墙钟判定，不留余量。
func ParseAccessToken(cfg Config, tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, keyFunc(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != TokenTypeAccess {
		return nil, fmt.Errorf("%w: not an access token", ErrInvalidToken)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// ParseActionToken 解析动作令牌并返回其中的邮箱地址
//
// 动作不匹配与解码失败折叠为同一个 ErrInvalidToken，调用方只观察到
// 「令牌无效」。错误文本保留具体原因，日志可以区分。
func ParseActionToken(cfg Config, tokenString, expectedAction string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ActionClaims{}, keyFunc(cfg))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*ActionClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Action != expectedAction {
		return "", fmt.Errorf("%w: token not issued for %s", ErrInvalidToken, expectedAction)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

func keyFunc(cfg Config) jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	}
}

// ============================================================================
// Context 辅助函数
// ============================================================================

// WithAuthUser 将认证用户注入 context
func WithAuthUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, ctxKeyAuthUser, user)
}

// GetAuthUser 从 context 获取认证用户，未认证时返回 nil
func GetAuthUser(ctx context.Context) *model.User {
	user, _ := ctx.Value(ctxKeyAuthUser).(*model.User)
	return user
}
