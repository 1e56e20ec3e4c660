// Prometheus 指标导出
package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"contacts-api/pkg/logging"
)

// 访问日志与指标共用同一次状态码捕获
var accessLog = logging.Default("http")

// Metrics 包含所有 API Server 指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

// NewMetrics 创建指标实例
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
	}
}

// MetricsMiddleware 创建 HTTP 指标中间件，同时输出结构化访问日志
//
// 指标标签使用 normalizePath 归一化后的路径，访问日志保留原始路径。
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		// 包装 ResponseWriter 以捕获状态码
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		elapsed := time.Since(start)
		path := normalizePath(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(elapsed.Seconds())

		accessLog.HTTPRequestLog(r.Method, r.URL.Path, wrapped.statusCode, elapsed, r.RemoteAddr)
	})
}

// responseWriter 包装 http.ResponseWriter 以捕获状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath 规范化路径，将 ID 和令牌替换为占位符，避免标签高基数
//
// 例如 /api/v1/contacts/42 -> /api/v1/contacts/{id}。
// search 和 birthdays 是字面量子路由，保持原样。
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/contacts/"):
		rest := path[len("/api/v1/contacts/"):]
		if rest == "search" || rest == "birthdays" {
			return path
		}
		return "/api/v1/contacts/{id}"
	case strings.HasPrefix(path, "/api/v1/users/") && strings.HasSuffix(path, "/role"):
		return "/api/v1/users/{id}/role"
	case strings.HasPrefix(path, "/api/v1/auth/confirmed_email/"):
		return "/api/v1/auth/confirmed_email/{token}"
	case strings.HasPrefix(path, "/api/v1/auth/reset-password/"):
		return "/api/v1/auth/reset-password/{token}"
	default:
		return path
	}
}

// MetricsHandler 返回 Prometheus HTTP Handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
