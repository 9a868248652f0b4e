package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"AgentPayroll/internal/agent"
	"AgentPayroll/internal/api"
	"AgentPayroll/internal/api/ratelimit"
	"AgentPayroll/internal/backend"
	"AgentPayroll/internal/backend/provider"
	"AgentPayroll/internal/config"
	"AgentPayroll/internal/events"
	"AgentPayroll/internal/observability/metrics"
	"AgentPayroll/internal/payroll"
	"AgentPayroll/pkg/logger"
)

func runServe(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Named("payrolld")

	if addr := c.String("addr"); addr != "" {
		cfg.Server.Address = addr
	}

	// 链上后端不可用时 Registry 返回降级后端，服务仍可启动。
	chains, err := provider.NewRegistry(ctx, cfg.Web3, logger.Named("provider"))
	if err != nil {
		return err
	}
	defer chains.Close()
	if chains.Degraded("") {
		log.Warn("默认链不可用，所有操作将使用模拟结果")
	}

	publisher, err := events.Open(ctx, cfg.Events)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("关闭事件发布器失败", slog.Any("error", err))
		}
	}()

	limiter, err := ratelimit.Open(ctx, cfg.RateLimit)
	if err != nil {
		return err
	}
	if limiter != nil {
		defer limiter.Close()
	}

	m := metrics.New(prometheus.NewRegistry())
	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := m.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	server := api.NewServer(api.Options{
		Addr:            cfg.Server.Address,
		Keys:            keysFrom(cfg),
		Factory:         payroll.NewAgentFactory(chains.Default(), agentOptions(cfg, m)...),
		PayrollOptions:  payrollOptions(cfg, publisher, m),
		BootstrapGrants: cfg.Payroll.BootstrapGrants,
		Metrics:         m,
		Limiter:         limiter,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		TrustProxy:      cfg.Server.TrustProxy,
		StaticDir:       cfg.Server.StaticDir,
		ReadTimeout:     time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:    time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		Logger:          logger.Named("api"),
	})

	log.Info("payrolld 启动",
		slog.String("environment", cfg.Environment),
		slog.String("addr", cfg.Server.Address),
		slog.Any("chains", chains.Chains()),
		slog.String("events", cfg.Events.Driver))

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("payrolld 已停止")
	return nil
}

func keysFrom(cfg *config.Config) payroll.Keys {
	return payroll.Keys{
		HR:       cfg.Agents.HRKey,
		Payroll:  cfg.Agents.PayrollKey,
		Employee: cfg.Agents.EmployeeKey,
	}
}

func agentOptions(cfg *config.Config, m *metrics.Metrics) []agent.Option {
	opts := []agent.Option{agent.WithCallTimeout(cfg.Web3.CallTimeout())}
	if m != nil {
		opts = append(opts, agent.WithMetrics(m))
	}
	return opts
}

func payrollOptions(cfg *config.Config, publisher events.Publisher, m *metrics.Metrics) []payroll.Option {
	return []payroll.Option{
		payroll.WithConcurrency(cfg.Payroll.Concurrency),
		payroll.WithPublisher(publisher),
		payroll.WithRecorder(m),
		payroll.WithLimits(backend.Limits{
			PerTransaction: cfg.Payroll.Limits.PerTransaction,
			Daily:          cfg.Payroll.Limits.Daily,
			Monthly:        cfg.Payroll.Limits.Monthly,
			Currency:       cfg.Payroll.Limits.Currency,
		}),
	}
}
