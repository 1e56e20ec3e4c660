// Package cache 缓存层类型定义
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"contacts-api/internal/shared/model"
)

// ============================================================================
// 缓存数据类型
// ============================================================================

// UserSnapshot 用户会话快照
//
// 这是认证中间件在请求路径上读到的用户视图。PasswordHash 和 RefreshToken
// 只在内存中出现，写入缓存前由 SetUser 统一清空。
type UserSnapshot struct {
	ID        int64          `json:"id"`
	Username  string         `json:"username"`
	Email     string         `json:"email"`
	Confirmed bool           `json:"confirmed"`
	Avatar    string         `json:"avatar,omitempty"`
	Role      model.UserRole `json:"role"`

	// 敏感字段，禁止落入缓存
	PasswordHash string `json:"hashed_password,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Sanitize 返回清空敏感字段后的副本
func (s *UserSnapshot) Sanitize() *UserSnapshot {
	out := *s
	out.PasswordHash = ""
	out.RefreshToken = ""
	return &out
}

// User 将快照还原为用户记录，不含密码散列
func (s *UserSnapshot) User() *model.User {
	return &model.User{
		ID:        s.ID,
		Username:  s.Username,
		Email:     s.Email,
		Confirmed: s.Confirmed,
		Avatar:    s.Avatar,
		Role:      s.Role,
	}
}

// SnapshotFromUser 由用户记录构造缓存快照，不携带密码散列
func SnapshotFromUser(u *model.User) *UserSnapshot {
	return &UserSnapshot{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Confirmed: u.Confirmed,
		Avatar:    u.Avatar,
		Role:      u.Role,
	}
}

// ============================================================================
// Key 派生和 TTL 常量
// ============================================================================

// UserCacheKey 派生用户快照的缓存键：user:<username>:<sha256 前 8 位十六进制>
//
// 短哈希后缀避免用户名中的特殊字符与 key 约定冲突，同时保持键可读。
func UserCacheKey(username string) string {
	sum := sha256.Sum256([]byte(username))
	return KeyUserSnapshot + username + ":" + hex.EncodeToString(sum[:4])
}

const (
	// Key 前缀
	KeyUserSnapshot = "user:"

	// TTL 常量
	TTLUserSnapshot = 15 * time.Minute
)
