// Package ratelimit throttles API clients, either per process with
// golang.org/x/time/rate or across replicas with a Redis fixed window.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"AgentPayroll/internal/config"
)

// Decision 是一次限流判断的结果。
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter 判断 key 对应的客户端能否继续请求。
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Close() error
}

// Open 根据配置创建限流器，Driver 为空时返回 nil。
func Open(ctx context.Context, cfg config.RateLimitConfig) (Limiter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "":
		return nil, nil
	case "memory":
		return NewMemory(cfg.RequestsPerMinute, cfg.Burst), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("连接限流 Redis 失败: %w", err)
		}
		l := NewRedis(client, cfg.Redis.Prefix, cfg.RequestsPerMinute, time.Minute)
		l.owned = true
		return l, nil
	default:
		return nil, fmt.Errorf("不支持的限流驱动: %s", cfg.Driver)
	}
}

// Middleware 对每个请求按客户端 IP 限流。限流器出错时放行并记录日志。
func Middleware(l Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			decision, err := l.Allow(r.Context(), ip)
			if err != nil {
				log.Warn("限流检查失败，放行请求", slog.String("ip", ip), slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				retry := int(math.Ceil(decision.RetryAfter.Seconds()))
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				log.Warn("请求被限流", slog.String("ip", ip), slog.String("path", r.URL.Path))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP 返回 RemoteAddr 中的 IP。代理头不在这里读取：部署在反向代理之后时
// 由路由上的 RealIP 中间件先改写 RemoteAddr。
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.Trim(r.RemoteAddr, "[]")
	}
	return ip
}
