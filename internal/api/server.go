package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"OpenMCP-Forge/internal/auth"
	xerrors "OpenMCP-Forge/internal/errors"
	"OpenMCP-Forge/internal/invoke"
	"OpenMCP-Forge/internal/observability/metrics"
	"OpenMCP-Forge/internal/tools"
	"OpenMCP-Forge/pkg/logger"
)

// Server 负责暴露 REST 接口，供外部智能体调用工具链。
type Server struct {
	addr        string
	registry    *tools.Registry
	invocations *invoke.Service
	guard       *auth.Guard
	logger      *slog.Logger
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, registry *tools.Registry, invocations *invoke.Service, guard *auth.Guard) *Server {
	return &Server{
		addr:        addr,
		registry:    registry,
		invocations: invocations,
		guard:       guard,
		logger:      logger.Named("api"),
	}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/tools", s.handleListTools)
	mux.HandleFunc("/api/v1/tools/", s.handleInvokeTool)
	mux.HandleFunc("/api/v1/invocations", s.handleInvocations)
	mux.HandleFunc("/api/v1/invocations/", s.handleGetInvocation)
	mux.HandleFunc("/api/v1/anvil/status", s.handleAnvilStatus)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	handler := http.Handler(mux)
	if s.guard != nil {
		handler = s.guard.Middleware(handler)
	}

	// 配置 HTTP 服务器。
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, observed(handler)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 启动服务器并监听关闭信号。
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.Info("API 服务已启动", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// handleListTools 返回当前注册的工具名称列表。
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.registry == nil {
		http.Error(w, "工具注册表未初始化", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.registry.Names()})
}

// handleInvokeTool 同步执行指定工具并返回归一化结果。
// 工具层的失败同样以 Payload 表达，HTTP 状态码始终为 200，
// 未注册的工具除外。
func (s *Server) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.registry == nil {
		http.Error(w, "工具注册表未初始化", http.StatusServiceUnavailable)
		return
	}

	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/tools/"), "/")
	if name == "" {
		http.Error(w, "缺少工具名称", http.StatusBadRequest)
		return
	}

	params, err := decodeParams(r)
	if err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	payload := s.registry.Invoke(r.Context(), name, params)
	status := http.StatusOK
	if payload.ErrorCode == string(xerrors.CodeNotFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, payload)
}

func (s *Server) handleInvocations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitInvocation(w, r)
	case http.MethodGet:
		s.handleListInvocations(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

// handleSubmitInvocation 将调用写入存储并投递到队列。
func (s *Server) handleSubmitInvocation(w http.ResponseWriter, r *http.Request) {
	if s.invocations == nil {
		http.Error(w, "异步调用未启用", http.StatusServiceUnavailable)
		return
	}

	var req invoke.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	record, err := s.invocations.Submit(r.Context(), req)
	if err != nil {
		writeInvokeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, record)
}

func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	if s.invocations == nil {
		http.Error(w, "异步调用未启用", http.StatusServiceUnavailable)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := s.invocations.List(r.Context(), limit)
	if err != nil {
		writeInvokeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetInvocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.invocations == nil {
		http.Error(w, "异步调用未启用", http.StatusServiceUnavailable)
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/invocations/"), "/")
	if id == "" {
		http.Error(w, "缺少调用 ID", http.StatusBadRequest)
		return
	}

	record, err := s.invocations.Get(r.Context(), id)
	if err != nil {
		writeInvokeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleAnvilStatus 以 GET 快捷方式查询本地链模拟器状态，
// 底层复用 anvil_status 工具，返回的 Payload 结构与同步调用一致。
func (s *Server) handleAnvilStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.registry == nil {
		http.Error(w, "工具注册表未初始化", http.StatusServiceUnavailable)
		return
	}

	payload := s.registry.Invoke(r.Context(), "anvil_status", nil)
	status := http.StatusOK
	if payload.ErrorCode == string(xerrors.CodeNotFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, payload)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeParams(r *http.Request) (map[string]any, error) {
	if r.Body == nil || r.ContentLength == 0 {
		return nil, nil
	}
	var params map[string]any
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		return nil, err
	}
	return params, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeInvokeError 将调用层错误映射为 HTTP 状态码。
func writeInvokeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch xerrors.CodeOf(err) {
	case invoke.CodeInvocationNotFound:
		status = http.StatusNotFound
	case invoke.CodeInvocationValidation:
		status = http.StatusBadRequest
	case invoke.CodeInvocationConflict:
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  string(xerrors.CodeOf(err)),
	})
}

// observed 记录每个请求的指标。
func observed(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		handler.ServeHTTP(sw, r)
		metrics.ObserveHTTPRequest(metricHandlerName(r.URL.Path), r.Method, sw.status, time.Since(start))
	})
}

// metricHandlerName 把动态路径折叠为固定的指标标签。
func metricHandlerName(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/tools/"):
		return "/api/v1/tools/{tool}"
	case strings.HasPrefix(path, "/api/v1/invocations/"):
		return "/api/v1/invocations/{id}"
	default:
		return path
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
