// Package cache 缓存层抽象接口
//
// 提供用户会话快照的读穿缓存能力，当前由 Redis 实现。
package cache

import (
	"context"
	"time"
)

// ============================================================================
// 缓存接口定义
// ============================================================================

// UserSessionCache 用户会话缓存接口
//
// GetUser 未命中返回 (nil, nil)。实现必须把传输故障吸收为未命中，
// 调用方不需要区分「缓存不可用」和「键不存在」。
type UserSessionCache interface {
	GetUser(ctx context.Context, username string) (*UserSnapshot, error)
	SetUser(ctx context.Context, username string, snap *UserSnapshot, ttl time.Duration) error
	DeleteUser(ctx context.Context, username string) error
}

// ============================================================================
// 组合接口
// ============================================================================

// Cache 缓存组合接口
type Cache interface {
	UserSessionCache
	Close() error
}
