// Package model 定义核心数据模型
package model

import "time"

// UserRole 用户角色
type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

// ValidUserRole 校验角色枚举值
func ValidUserRole(r UserRole) bool {
	return r == UserRoleAdmin || r == UserRoleUser
}

// User 用户
//
// Username 和 Email 均全局唯一（数据库唯一索引保证）。
// Confirmed 由邮箱确认流程置位，只会从 false 变为 true。
type User struct {
	ID           int64     `json:"id" db:"id" bson:"_id"`
	Username     string    `json:"username" db:"username" bson:"username"`
	Email        string    `json:"email" db:"email" bson:"email"`
	PasswordHash string    `json:"-" db:"password_hash" bson:"password_hash"` // never expose in JSON
	Confirmed    bool      `json:"confirmed" db:"confirmed" bson:"confirmed"`
	Avatar       string    `json:"avatar,omitempty" db:"avatar" bson:"avatar,omitempty"`
	Role         UserRole  `json:"role" db:"role" bson:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at" bson:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at" bson:"updated_at"`
}

// IsAdmin 是否管理员
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
