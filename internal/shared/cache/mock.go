// Package cache 缓存层 mock 实现
package cache

import (
	"context"
	"time"
)

// ============================================================================
// NoOpCache - 空操作的 Cache 实现（用于测试和禁用缓存的部署）
// ============================================================================

// NoOpCache 是一个不做任何操作的 Cache 实现
//
// 所有读取都表现为未命中，因此上层每次都会回源用户目录。
type NoOpCache struct{}

// NewNoOpCache 创建 NoOpCache 实例
func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

// Close 关闭缓存
func (c *NoOpCache) Close() error {
	return nil
}

// UserSessionCache 方法

func (c *NoOpCache) GetUser(ctx context.Context, username string) (*UserSnapshot, error) {
	return nil, nil
}
func (c *NoOpCache) SetUser(ctx context.Context, username string, snap *UserSnapshot, ttl time.Duration) error {
	return nil
}
func (c *NoOpCache) DeleteUser(ctx context.Context, username string) error {
	return nil
}

// 确保 NoOpCache 实现了 Cache 接口
var _ Cache = (*NoOpCache)(nil)
