package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	loggerpkg "OpenMCP-Forge/pkg/logger"
)

// Guard 使用静态 Bearer Token 保护 API 接口。
// Token 为空时认证被禁用，所有请求直接放行。
type Guard struct {
	token string
	audit *slog.Logger
}

// NewGuard 创建 Guard。
func NewGuard(token string) *Guard {
	return &Guard{
		token: strings.TrimSpace(token),
		audit: loggerpkg.Audit(),
	}
}

// Enabled 返回是否启用了认证。
func (g *Guard) Enabled() bool {
	return g != nil && g.token != ""
}

// Authenticate 校验 Authorization 请求头中的 Bearer Token。
func (g *Guard) Authenticate(header string) bool {
	if !g.Enabled() {
		return true
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	candidate := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(g.token)) == 1
}

// Middleware 返回处理认证与访问审计的 HTTP 中间件。
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Authenticate(r.Header.Get("Authorization")) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			g.audit.Warn("access_denied",
				"path", r.URL.Path,
				"method", r.Method,
				"status", http.StatusUnauthorized,
			)
			return
		}
		// 记录审计日志。
		start := time.Now()
		aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(aw, r)
		g.audit.Info("api_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", aw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// auditWriter 包装 http.ResponseWriter 以捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader 捕获响应状态码并调用底层的 WriteHeader 方法。
func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
