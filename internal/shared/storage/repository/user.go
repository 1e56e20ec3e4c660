// Package repository 用户目录相关的存储操作
package repository

import (
	"context"
	"database/sql"
	"time"

	"contacts-api/internal/shared/model"
	"contacts-api/internal/shared/storage"
)

const userColumns = `id, username, email, password_hash, confirmed, avatar, role, created_at, updated_at`

// CreateUser 创建用户并回填自增 ID
//
// username/email 撞上唯一索引时返回 storage.ErrDuplicate，
// 处理注册接口预检查之后仍可能出现的并发写入。
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	query := s.rebind(`
		INSERT INTO users (username, email, password_hash, confirmed, avatar, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`)
	err := s.db.QueryRowContext(ctx, query,
		user.Username, user.Email, user.PasswordHash, user.Confirmed,
		user.Avatar, user.Role, user.CreatedAt, user.UpdatedAt,
	).Scan(&user.ID)
	if err != nil {
		if s.dialect.IsDuplicate(err) {
			return storage.ErrDuplicate
		}
		return err
	}
	return nil
}

// GetUserByID 通过 ID 查找用户
func (s *Store) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE id = $1`)
	return s.scanUserRow(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername 通过用户名查找用户
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE username = $1`)
	return s.scanUserRow(s.db.QueryRowContext(ctx, query, username))
}

// GetUserByEmail 通过邮箱查找用户
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE email = $1`)
	return s.scanUserRow(s.db.QueryRowContext(ctx, query, email))
}

// ListUsers 分页列出用户（新创建的在前）
func (s *Store) ListUsers(ctx context.Context, offset, limit int) ([]*model.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users
		ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`)
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// ConfirmUserEmail 将邮箱对应用户置为已确认
func (s *Store) ConfirmUserEmail(ctx context.Context, email string) error {
	query := s.rebind(`UPDATE users SET confirmed = ` + s.dialect.BooleanLiteral(true) + `,
		updated_at = ` + s.now() + ` WHERE email = $1`)
	return s.execAffectingOne(ctx, query, email)
}

// UpdateUserPassword 更新邮箱对应用户的密码哈希
func (s *Store) UpdateUserPassword(ctx context.Context, email, passwordHash string) error {
	query := s.rebind(`UPDATE users SET password_hash = $1, updated_at = ` + s.now() + ` WHERE email = $2`)
	return s.execAffectingOne(ctx, query, passwordHash, email)
}

// UpdateUserAvatar 更新用户头像 URL
func (s *Store) UpdateUserAvatar(ctx context.Context, id int64, avatarURL string) error {
	query := s.rebind(`UPDATE users SET avatar = $1, updated_at = ` + s.now() + ` WHERE id = $2`)
	return s.execAffectingOne(ctx, query, avatarURL, id)
}

// UpdateUserRole 更新用户角色
func (s *Store) UpdateUserRole(ctx context.Context, id int64, role model.UserRole) error {
	query := s.rebind(`UPDATE users SET role = $1, updated_at = ` + s.now() + ` WHERE id = $2`)
	return s.execAffectingOne(ctx, query, role, id)
}

// execAffectingOne 执行必须命中至少一行的更新，未命中返回 storage.ErrNotFound
func (s *Store) execAffectingOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanUserRow 扫描单行用户，未命中返回 (nil, nil)
func (s *Store) scanUserRow(row *sql.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&u.Confirmed, &u.Avatar, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func scanUsers(rows *sql.Rows) ([]*model.User, error) {
	var users []*model.User
	for rows.Next() {
		u := &model.User{}
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
			&u.Confirmed, &u.Avatar, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
