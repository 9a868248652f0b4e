// Package payroll runs one payroll batch: it instantiates the HR, Payroll and
// Employee agents, pays every employee through the Payroll agent and returns
// one result per request in input order.
package payroll

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"AgentPayroll/internal/agent"
	"AgentPayroll/internal/backend"
	"AgentPayroll/internal/credential"
	xerrors "AgentPayroll/internal/errors"
	"AgentPayroll/internal/events"
	"AgentPayroll/pkg/logger"
)

// DefaultConcurrency 是单个批次内并行支付的默认上限。
const DefaultConcurrency = 8

// AgentFactory 为角色创建 Agent。
type AgentFactory func(role agent.Role, cred *credential.Credential) (*agent.Agent, error)

// NewAgentFactory 返回共享同一个后端的 AgentFactory。
func NewAgentFactory(capability backend.Capability, opts ...agent.Option) AgentFactory {
	return func(role agent.Role, cred *credential.Credential) (*agent.Agent, error) {
		return agent.New(role, cred, capability, opts...)
	}
}

// RunRecorder 接收批次统计。
type RunRecorder interface {
	ObserveRun(duration time.Duration)
}

// Orchestrator 执行一次发薪批次，实例只服务于一个请求。
type Orchestrator struct {
	runID       string
	hr          *agent.Agent
	payroll     *agent.Agent
	employee    *agent.Agent
	publisher   events.Publisher
	concurrency int
	limits      backend.Limits
	log         *slog.Logger
	recorder    RunRecorder
}

// Option 定义可选的 Orchestrator 配置。
type Option func(*Orchestrator)

// WithConcurrency 设置并行支付的上限。
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithPublisher 设置事件发布器。
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.publisher = p
		}
	}
}

// WithLogger 设置日志。
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithRecorder 设置批次统计接收方。
func WithRecorder(r RunRecorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithLimits 设置 Setup 时 HR 授予 Payroll Agent 的限额。
func WithLimits(limits backend.Limits) Option {
	return func(o *Orchestrator) {
		o.limits = limits
	}
}

// New 创建三个 Agent 并完成初始化，每个 Agent 独立解析自己的地址。
func New(ctx context.Context, keys Keys, factory AgentFactory, opts ...Option) (*Orchestrator, error) {
	if factory == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置 Agent 工厂")
	}
	o := &Orchestrator{
		runID:       uuid.Must(uuid.NewV7()).String(),
		publisher:   events.NopPublisher{},
		concurrency: DefaultConcurrency,
		log:         logger.Named("payroll"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	o.log = o.log.With(slog.String("run_id", o.runID))

	// 创建各角色的 Agent。
	var err error
	if o.hr, err = factory(agent.RoleHR, credential.New(keys.HR)); err != nil {
		return nil, err
	}
	if o.payroll, err = factory(agent.RolePayroll, credential.New(keys.Payroll)); err != nil {
		o.Close()
		return nil, err
	}
	if o.employee, err = factory(agent.RoleEmployee, credential.New(keys.Employee)); err != nil {
		o.Close()
		return nil, err
	}

	// 并行初始化，互不依赖。
	g, gctx := errgroup.WithContext(ctx)
	for _, ag := range o.agents() {
		g.Go(func() error { return ag.Init(gctx) })
	}
	if err := g.Wait(); err != nil {
		o.Close()
		return nil, err
	}
	return o, nil
}

// RunID 返回本次批次的标识。
func (o *Orchestrator) RunID() string { return o.runID }

// HR 返回 HR Agent。
func (o *Orchestrator) HR() *agent.Agent { return o.hr }

// Payroll 返回 Payroll Agent。
func (o *Orchestrator) Payroll() *agent.Agent { return o.payroll }

// Employee 返回 Employee Agent。
func (o *Orchestrator) Employee() *agent.Agent { return o.employee }

// Grant 描述 Setup 建立的授权关系。
type Grant struct {
	Grantor     string               `json:"grantor"`
	Grantee     string               `json:"grantee"`
	Permissions []backend.Permission `json:"permissions"`
	Limits      backend.Limits       `json:"limits"`
	Simulated   bool                 `json:"simulated"`
}

// Setup 执行 HR 到 Payroll 的委托流程：双方创建身份并注册，HR 授予 Payroll
// 付款权限并设置限额。授权状态以后端为准，本地不保存。
func (o *Orchestrator) Setup(ctx context.Context) (Grant, error) {
	simulatedAny := false
	track := func(simulated bool) {
		simulatedAny = simulatedAny || simulated
	}

	for _, ag := range []*agent.Agent{o.hr, o.payroll} {
		identity, err := ag.CreateIdentity(ctx)
		if err != nil {
			return Grant{}, err
		}
		track(identity.Simulated())
		reg, err := ag.Register(ctx)
		if err != nil {
			return Grant{}, err
		}
		track(reg.Simulated())
	}

	permissions := []backend.Permission{backend.PermissionSendPayment, backend.PermissionReadPayroll}
	auth, err := o.hr.Authorize(ctx, o.payroll.Address(), permissions)
	if err != nil {
		return Grant{}, err
	}
	track(auth.Simulated())

	grant := Grant{
		Grantor:     o.hr.Address(),
		Grantee:     o.payroll.Address(),
		Permissions: auth.Value.Permissions,
	}
	if o.limits != (backend.Limits{}) {
		limits, err := o.hr.SetLimits(ctx, o.limits)
		if err != nil {
			return Grant{}, err
		}
		track(limits.Simulated())
		grant.Limits = limits.Value.Limits
	}
	grant.Simulated = simulatedAny

	o.log.Info("委托授权完成",
		slog.String("grantor", grant.Grantor),
		slog.String("grantee", grant.Grantee),
		slog.Bool("simulated", grant.Simulated))
	return grant, nil
}

// Revoke 撤销 HR 对 Payroll Agent 的授权。
func (o *Orchestrator) Revoke(ctx context.Context) error {
	out, err := o.hr.Revoke(ctx, o.payroll.Address())
	if err != nil {
		return err
	}
	o.log.Info("委托授权已撤销", slog.String("grantee", out.Value.GranteeAddress), slog.Bool("simulated", out.Simulated()))
	return nil
}

// Run 为每个请求调用 Payroll Agent 的 SendPayment。单条失败不影响其他条目，
// 返回的结果与输入等长且顺序一致。只有调用方取消时才返回错误。
func (o *Orchestrator) Run(ctx context.Context, requests []EmployeeRequest) ([]Result, error) {
	start := time.Now()
	results := make([]Result, len(requests))

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, req := range requests {
		g.Go(func() error {
			results[i] = o.pay(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	summary := Summarize(o.runID, results)
	o.publish(ctx, events.Event{
		Type:      events.TypeRunCompleted,
		RunID:     o.runID,
		Total:     summary.Total,
		Failed:    summary.Failed,
		Simulated: summary.Simulated > 0,
	})
	if o.recorder != nil {
		o.recorder.ObserveRun(time.Since(start))
	}
	o.log.Info("发薪批次完成",
		slog.Int("total", summary.Total),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Int("simulated", summary.Simulated),
		slog.Duration("elapsed", time.Since(start)))

	if err := ctx.Err(); err != nil {
		return results, xerrors.Wrap(xerrors.CodeTimeout, err, "发薪批次被取消")
	}
	return results, nil
}

func (o *Orchestrator) pay(ctx context.Context, req EmployeeRequest) Result {
	result := Result{EmployeeID: req.EmployeeID}

	out, err := o.payroll.SendPayment(ctx, req.Intent())
	if err != nil {
		result.Status = StatusFailure
		result.Error = errorDetail(err)
		o.log.Warn("员工发薪失败", slog.String("employee_id", string(req.EmployeeID)), slog.Any("error", err))
		o.publish(ctx, events.Event{
			Type:       events.TypePaymentFailed,
			RunID:      o.runID,
			EmployeeID: string(req.EmployeeID),
			Status:     StatusFailure,
			Amount:     req.Amount.String(),
			Currency:   req.Currency,
			Error:      result.Error,
		})
		return result
	}

	result.Status = StatusSuccess
	result.PaymentID = out.Value.ID
	result.AmountSettled = out.Value.Amount
	result.Currency = out.Value.Currency
	result.To = out.Value.To
	result.Simulated = out.Simulated()
	o.publish(ctx, events.Event{
		Type:       events.TypePaymentCompleted,
		RunID:      o.runID,
		EmployeeID: string(req.EmployeeID),
		Status:     out.Value.Status,
		PaymentID:  out.Value.ID,
		Amount:     out.Value.Amount,
		Currency:   out.Value.Currency,
		Simulated:  out.Simulated(),
	})
	return result
}

// publish 投递事件，失败只记录日志。
func (o *Orchestrator) publish(ctx context.Context, event events.Event) {
	event.OccurredAt = time.Now().UTC()
	if err := o.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		o.log.Warn("发布发薪事件失败", slog.String("type", string(event.Type)), slog.Any("error", err))
	}
}

// Close 清除所有 Agent 的凭证。
func (o *Orchestrator) Close() {
	for _, ag := range o.agents() {
		ag.Close()
	}
}

func (o *Orchestrator) agents() []*agent.Agent {
	out := make([]*agent.Agent, 0, 3)
	for _, ag := range []*agent.Agent{o.hr, o.payroll, o.employee} {
		if ag != nil {
			out = append(out, ag)
		}
	}
	return out
}

func errorDetail(err error) string {
	if e, ok := xerrors.From(err); ok {
		return fmt.Sprintf("%s: %s", e.Code(), strings.TrimSpace(e.Message()))
	}
	return err.Error()
}
