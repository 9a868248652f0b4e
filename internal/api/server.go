package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"AgentPayroll/internal/api/ratelimit"
	"AgentPayroll/internal/observability/metrics"
	"AgentPayroll/internal/payroll"
	"AgentPayroll/pkg/logger"
)

// maxBodyBytes 限制 runPayroll 请求体大小。
const maxBodyBytes = 1 << 20

// Options 描述 Server 的依赖。
type Options struct {
	Addr string
	// Keys 为每次发薪创建 Agent 时使用的凭证。
	Keys    payroll.Keys
	Factory payroll.AgentFactory
	// PayrollOptions 传给每个请求创建的 Orchestrator。
	PayrollOptions  []payroll.Option
	BootstrapGrants bool

	Metrics        *metrics.Metrics
	Limiter        ratelimit.Limiter
	AllowedOrigins []string
	// TrustProxy 开启后用代理头改写 RemoteAddr，限流按改写后的地址计数。
	TrustProxy   bool
	StaticDir    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Server 负责暴露 REST 接口，每个发薪请求使用独立的 Orchestrator。
type Server struct {
	opts   Options
	log    *slog.Logger
	router chi.Router
}

// NewServer 构造 API 服务实例。
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logger.Named("api")
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	s := &Server{opts: opts, log: opts.Logger}
	s.router = s.routes()
	return s
}

// Handler 返回完整的路由。
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if s.opts.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(requestLogger(s.log))
	r.Use(chimw.Recoverer)
	r.Use(observe(s.opts.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/api/health", s.handleHealth)
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics.Handler())
	}
	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(s.opts.Limiter, s.log))
		r.Post("/api/runPayroll", s.handleRunPayroll)
	})

	if s.opts.StaticDir != "" {
		r.NotFound(spaHandler(s.opts.StaticDir))
	}
	return r
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           withContext(ctx, s.router),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
	}

	// 启动服务器并监听关闭信号。
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("API 服务已启动", slog.String("addr", s.opts.Addr))

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

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeError(w, http.StatusServiceUnavailable, "服务已关闭")
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
