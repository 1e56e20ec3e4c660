// Package storage 定义持久化存储层抽象接口
//
// 设计原则：依赖倒置 (DIP)
//   - 调用方只依赖接口，不知道具体实现
//   - 具体实现在子包中：repository/（SQL）、mongostore/（MongoDB）
//   - 初始化时通过依赖注入传入实现
//
// 单条查询未命中统一返回 (nil, nil)，不返回 ErrNotFound；
// 定向更新（按 ID / email 更新具体字段）未匹配到行时返回 ErrNotFound。
package storage

import (
	"context"

	"contacts-api/internal/shared/model"
)

// ============================================================================
// 持久化存储接口
// ============================================================================

// UserStore 用户目录存储接口
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error // 成功后回填自增 ID
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	ListUsers(ctx context.Context, offset, limit int) ([]*model.User, error)
	ConfirmUserEmail(ctx context.Context, email string) error
	UpdateUserPassword(ctx context.Context, email, passwordHash string) error
	UpdateUserAvatar(ctx context.Context, id int64, avatarURL string) error
	UpdateUserRole(ctx context.Context, id int64, role model.UserRole) error
}

// ContactStore 联系人存储接口
//
// 所有操作都以 userID 为租户边界：属于其他用户的联系人
// 等同于不存在（GetContact 返回 (nil, nil)，更新/删除返回 ErrNotFound）。
type ContactStore interface {
	CreateContact(ctx context.Context, contact *model.Contact) error // 成功后回填自增 ID
	GetContact(ctx context.Context, userID, contactID int64) (*model.Contact, error)
	ListContacts(ctx context.Context, userID int64, offset, limit int) ([]*model.Contact, error)
	UpdateContact(ctx context.Context, contact *model.Contact) error
	DeleteContact(ctx context.Context, userID, contactID int64) error
	SearchContacts(ctx context.Context, userID int64, query string, offset, limit int) ([]*model.Contact, error)
	ListUpcomingBirthdays(ctx context.Context, userID int64, offset, limit int) ([]*model.Contact, error) // 未来 7 天窗口
}

// ============================================================================
// 组合接口
// ============================================================================

// PersistentStore 持久化存储组合接口
type PersistentStore interface {
	UserStore
	ContactStore
	Close() error
}
