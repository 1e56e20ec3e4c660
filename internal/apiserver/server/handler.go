// 路由配置与中间件链
package server

import (
	"net/http"

	"contacts-api/internal/apiserver/auth"
	"contacts-api/internal/apiserver/contact"
	"contacts-api/internal/apiserver/user"
)

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 健康检查:
//   - GET /health  - 服务健康检查
//   - GET /metrics - Prometheus 指标
//
// 认证 (Auth):
//   - POST /api/v1/auth/register                - 注册用户
//   - POST /api/v1/auth/login                   - 登录换取访问令牌
//   - GET  /api/v1/auth/confirmed_email/{token} - 确认邮箱
//   - POST /api/v1/auth/request_email           - 重发确认邮件
//   - POST /api/v1/auth/forgot-password         - 请求密码重置邮件
//   - POST /api/v1/auth/reset-password/{token}  - 重置密码
//
// 用户管理 (User):
//   - GET   /api/v1/users/me        - 当前用户信息
//   - PATCH /api/v1/users/avatar    - 上传头像
//   - GET   /api/v1/users           - 列出用户（管理员）
//   - PATCH /api/v1/users/{id}/role - 修改用户角色（管理员）
//
// 联系人管理 (Contact):
//   - GET    /api/v1/contacts           - 列出联系人
//   - POST   /api/v1/contacts           - 创建联系人
//   - GET    /api/v1/contacts/search    - 按姓名或邮箱搜索
//   - GET    /api/v1/contacts/birthdays - 未来 7 天生日
//   - GET    /api/v1/contacts/{id}      - 获取联系人详情
//   - PUT    /api/v1/contacts/{id}      - 更新联系人
//   - DELETE /api/v1/contacts/{id}      - 删除联系人
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", h.Health)

	// Prometheus 指标端点
	mux.Handle("GET /metrics", MetricsHandler())

	// Auth 接口
	authHandler := auth.NewHandler(h.store, h.sessions, h.notifier, h.authCfg)
	authHandler.RegisterRoutes(mux)

	// User 接口
	userHandler := user.NewHandler(h.store, h.avatars, h.sessions)
	userHandler.RegisterRoutes(mux)

	// Contact 接口
	contactHandler := contact.NewHandler(h.store)
	contactHandler.RegisterRoutes(mux)

	// 应用指标中间件到 REST API
	apiHandler := h.metrics.MetricsMiddleware(mux)

	// 应用认证中间件，令牌解析经由会话缓存回源用户目录
	resolver := auth.NewResolver(h.store, h.sessions, h.authCfg)
	authedHandler := auth.Middleware(resolver)(apiHandler)

	// 应用 CORS 中间件
	return corsMiddleware(authedHandler)
}

// corsMiddleware 添加 CORS 头支持跨域请求
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
