// Package server 提供 HTTP API 的组装层
//
// 本包把各领域处理器组装成一个完整的 HTTP 服务，包括：
//   - 认证接口（auth 包）
//   - 用户管理接口（user 包）
//   - 联系人管理接口（contact 包）
//   - 健康检查与 Prometheus 指标
//
// 文件组织：
//   - common.go: Handler 定义和通用工具函数
//   - handler.go: 路由配置与中间件链
//   - metrics.go: Prometheus 指标
package server

import (
	"encoding/json"
	"net/http"

	"contacts-api/internal/apiserver/auth"
	"contacts-api/internal/apiserver/user"
	"contacts-api/internal/shared/cache"
	"contacts-api/internal/shared/storage"
)

// Handler API 处理器
//
// Handler 是所有 HTTP API 的入口，负责：
//   - 路由请求到各领域处理器
//   - 管理存储层连接
//   - 组装指标、认证与 CORS 中间件链
//
// 依赖接口说明（接口隔离原则）：
//   - sessions: 用户会话缓存（认证读穿透）
//   - avatars: 头像对象存储
//   - notifier: 确认邮件/密码重置邮件发送器
type Handler struct {
	store storage.PersistentStore // 持久化业务数据

	sessions cache.UserSessionCache // 会话快照缓存
	avatars  user.AvatarStore       // 头像对象存储
	notifier auth.Notifier          // 邮件通知

	authCfg auth.Config // JWT 与口令哈希配置
	metrics *Metrics    // Prometheus 指标
}

// NewHandler 创建 Handler 实例
//
// 参数：
//   - store: 持久化存储层实例
//   - sessions: 会话缓存（无 Redis 时传 NoOpCache）
//   - avatars: 头像对象存储客户端
//   - notifier: 邮件发送客户端
//   - authCfg: 认证配置
//
// 返回：
//   - 初始化完成的 Handler 实例
func NewHandler(store storage.PersistentStore, sessions cache.UserSessionCache, avatars user.AvatarStore, notifier auth.Notifier, authCfg auth.Config) *Handler {
	return &Handler{
		store:    store,
		sessions: sessions,
		avatars:  avatars,
		notifier: notifier,
		authCfg:  authCfg,
		metrics:  NewMetrics("contacts_api"),
	}
}

// writeJSON 将数据以 JSON 格式写入 HTTP 响应
//
// 参数：
//   - w: HTTP 响应写入器
//   - status: HTTP 状态码
//   - data: 要序列化为 JSON 的数据
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Health 健康检查接口
//
// 路由: GET /health
//
// 用于负载均衡器和监控系统检查服务状态。
// 返回 {"status": "ok"} 表示服务正常运行。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
