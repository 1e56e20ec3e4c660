package auth

import (
	"log"
	"net/http"
	"strings"

	"github.com/containerd/errdefs/pkg/errhttp"
)

// 免认证路由白名单（前缀匹配）
//
// 注册、登录、邮箱确认和密码重置全部走 /api/v1/auth/，由各自的
// 动作令牌或凭据自证身份，不要求访问令牌。
var publicPrefixes = []string{
	"/api/v1/auth/",
	"/health",
	"/metrics",
}

func isPublicRoute(path string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Middleware 创建 JWT 认证中间件
//
// 其余路由一律要求 Bearer 访问令牌，解析出的用户注入 context。
func Middleware(resolver *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 公开路由：直接放行
			if isPublicRoute(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			// 提取 Bearer Token
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			user, err := resolver.ResolveToken(r.Context(), parts[1])
			if err != nil {
				log.Printf("[auth] resolve token: %v", err)
				status := errhttp.ToHTTP(err)
				msg := "invalid or expired token"
				if status == http.StatusServiceUnavailable {
					msg = "service temporarily unavailable"
				}
				writeError(w, status, msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuthUser(r.Context(), user)))
		})
	}
}

// AdminOnly 管理员专属路由中间件
func AdminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := GetAuthUser(r.Context())
		if user == nil {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		if _, err := RequireAdmin(user); err != nil {
			writeError(w, errhttp.ToHTTP(err), "admin access required")
			return
		}
		next(w, r)
	}
}
