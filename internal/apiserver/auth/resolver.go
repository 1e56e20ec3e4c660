package auth

import (
	"context"
	"fmt"
	"log"

	"github.com/containerd/errdefs"

	"contacts-api/internal/shared/cache"
	"contacts-api/internal/shared/model"
)

// Resolver 把访问令牌解析成完整的用户身份
//
// 解析顺序：解码令牌 → 查会话缓存 → 未命中回源用户目录并回填。
// 缓存只是加速层，用户目录始终是事实来源。
type Resolver struct {
	store    UserStore
	sessions cache.UserSessionCache
	cfg      Config
}

// NewResolver 创建身份解析器
func NewResolver(store UserStore, sessions cache.UserSessionCache, cfg Config) *Resolver {
	return &Resolver{store: store, sessions: sessions, cfg: cfg}
}

// ResolveToken 解析访问令牌并装载用户
//
// 令牌无效返回 ErrInvalidToken；主体不存在返回 ErrUnauthorized；
// 用户目录故障返回 Unavailable 类错误，不降级、不重试。
func (r *Resolver) ResolveToken(ctx context.Context, token string) (*model.User, error) {
	claims, err := ParseAccessToken(r.cfg, token)
	if err != nil {
		return nil, err
	}
	username := claims.Subject

	// 缓存实现把故障吸收为未命中，这里只需要区分命中与否
	if snap, _ := r.sessions.GetUser(ctx, username); snap != nil {
		return snap.User(), nil
	}

	user, err := r.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("user directory lookup failed: %v: %w", err, errdefs.ErrUnavailable)
	}
	if user == nil {
		// 令牌合法但主体已不存在，比如用户被删除后令牌仍在有效期内
		return nil, fmt.Errorf("%w: unknown subject", ErrUnauthorized)
	}

	// 回填缓存，写失败不阻塞请求
	if err := r.sessions.SetUser(ctx, username, cache.SnapshotFromUser(user), cache.TTLUserSnapshot); err != nil {
		log.Printf("[auth] populate session cache for %q: %v", username, err)
	}

	return user, nil
}

// RequireAdmin 管理员角色门禁
//
// 非 admin 返回 ErrForbidden，admin 原样放行。
func RequireAdmin(user *model.User) (*model.User, error) {
	if user == nil {
		return nil, ErrUnauthorized
	}
	if !user.IsAdmin() {
		return nil, ErrForbidden
	}
	return user, nil
}
