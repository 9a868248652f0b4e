package agent

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"AgentPayroll/internal/backend"
	"AgentPayroll/internal/backend/simulated"
	"AgentPayroll/internal/credential"
	"AgentPayroll/internal/envelope"
	xerrors "AgentPayroll/internal/errors"
	"AgentPayroll/pkg/logger"
)

// Role 标识 Agent 的职责。
type Role string

const (
	RoleHR       Role = "hr"
	RolePayroll  Role = "payroll"
	RoleEmployee Role = "employee"
)

// ParseRole 将字符串解析为 Role。
func ParseRole(raw string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleHR, RolePayroll, RoleEmployee:
		return r, nil
	default:
		return "", xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的 Agent 角色: %s", raw))
	}
}

// State 是 Agent 的生命周期状态。
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	// StateDegradedReady 表示后端不可用，所有操作走模拟路径。
	StateDegradedReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDegradedReady:
		return "degraded_ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// DefaultCallTimeout 是单次后端调用的默认超时时间。
const DefaultCallTimeout = 10 * time.Second

// Recorder 接收降级与支付结果的统计。
type Recorder interface {
	BackendFallback(operation string)
	Payment(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) BackendFallback(string) {}
func (nopRecorder) Payment(string)         {}

// Agent 代表一个角色对链上账户的委托能力。
type Agent struct {
	role        Role
	cred        *credential.Credential
	backend     backend.Capability
	simulator   backend.Capability
	callTimeout time.Duration
	log         *slog.Logger
	audit       *slog.Logger
	metrics     Recorder

	initMu    sync.Mutex
	state     atomic.Int32
	initCause error

	addrMu  sync.Mutex
	address *Outcome[string]

	closed atomic.Bool
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// WithSimulator 替换默认的模拟后端。
func WithSimulator(sim backend.Capability) Option {
	return func(a *Agent) {
		if sim != nil {
			a.simulator = sim
		}
	}
}

// WithCallTimeout 设置单次后端调用的超时时间，非正值表示不限制。
func WithCallTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		a.callTimeout = timeout
	}
}

// WithLogger 设置应用日志。
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.log = l
		}
	}
}

// WithAuditLogger 设置审计日志，记录授权与支付。
func WithAuditLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.audit = l
		}
	}
}

// WithMetrics 设置统计接收方。
func WithMetrics(r Recorder) Option {
	return func(a *Agent) {
		if r != nil {
			a.metrics = r
		}
	}
}

// New 创建一个 Agent。capability 为 nil 时 Agent 只能以降级模式运行。
func New(role Role, cred *credential.Credential, capability backend.Capability, opts ...Option) (*Agent, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}
	if cred == nil {
		cred = credential.New("")
	}
	if capability == nil {
		capability = backend.Unavailable{Reason: "未配置链上后端"}
	}

	ag := &Agent{
		role:        role,
		cred:        cred,
		backend:     capability,
		simulator:   simulated.New(),
		callTimeout: DefaultCallTimeout,
		log:         logger.Named("agent"),
		audit:       logger.Audit(),
		metrics:     nopRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	ag.log = ag.log.With(slog.String("role", string(role)))
	return ag, nil
}

// Role 返回 Agent 角色。
func (a *Agent) Role() Role { return a.role }

// State 返回当前状态。
func (a *Agent) State() State { return State(a.state.Load()) }

// Init 与后端建立会话并解析地址。后端不可用时进入 DegradedReady，不返回错误；
// 只有 Agent 已关闭或调用方取消时才会失败。重复调用是安全的。
func (a *Agent) Init(ctx context.Context) error {
	if err := a.usable(ctx); err != nil {
		return err
	}

	a.initMu.Lock()
	if a.State() != StateUninitialized {
		a.initMu.Unlock()
		return nil
	}
	a.state.Store(int32(StateInitializing))

	// 验证 Agent 身份。
	_, err := callWithTimeout(ctx, a.callTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.backend.Authenticate(ctx, a.cred)
	})
	switch {
	case err == nil:
		a.state.Store(int32(StateReady))
		a.log.Info("Agent 初始化完成", slog.String("state", StateReady.String()))
	case ctx.Err() != nil:
		a.state.Store(int32(StateUninitialized))
		a.initMu.Unlock()
		return xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "Agent 初始化被取消")
	default:
		a.initCause = err
		a.state.Store(int32(StateDegradedReady))
		a.log.Warn("Agent 初始化失败，进入模拟模式",
			slog.String("state", StateDegradedReady.String()),
			slog.Any("error", err))
		a.metrics.BackendFallback("authenticate")
	}
	a.initMu.Unlock()

	// 获取 Agent 地址。
	addr := a.ResolveAddress(ctx)
	a.log.Info("Agent 地址已解析", slog.String("address", addr.Value), slog.String("source", string(addr.Source)))
	return nil
}

// Address 返回已解析的地址，尚未解析时为空。
func (a *Agent) Address() string {
	a.addrMu.Lock()
	defer a.addrMu.Unlock()
	if a.address == nil {
		return ""
	}
	return a.address.Value
}

// ResolveAddress 从凭证推导链上地址。首次成功解析后结果固定不变。
func (a *Agent) ResolveAddress(ctx context.Context) Outcome[string] {
	a.addrMu.Lock()
	defer a.addrMu.Unlock()
	if a.address != nil {
		return *a.address
	}

	out, err := invoke(ctx, a, "resolveAddress", func(ctx context.Context, c backend.Capability) (string, error) {
		return c.ResolveAddress(ctx, a.cred)
	})
	if err != nil {
		// 调用方取消时不缓存，返回本地推导的地址。
		addr, _ := credential.ToAddress(a.cred)
		return simulatedOutcome(addr.Hex(), err)
	}
	a.address = &out
	return out
}

// CreateIdentity 创建 Agent 的链上身份。
func (a *Agent) CreateIdentity(ctx context.Context) (Outcome[backend.IdentityResult], error) {
	if err := a.ready(ctx); err != nil {
		return Outcome[backend.IdentityResult]{}, err
	}
	return invoke(ctx, a, "createIdentity", func(ctx context.Context, c backend.Capability) (backend.IdentityResult, error) {
		return c.CreateIdentity(ctx, a.cred)
	})
}

// Register 在注册合约中登记 Agent。
func (a *Agent) Register(ctx context.Context) (Outcome[backend.RegistrationResult], error) {
	if err := a.ready(ctx); err != nil {
		return Outcome[backend.RegistrationResult]{}, err
	}
	out, err := invoke(ctx, a, "register", func(ctx context.Context, c backend.Capability) (backend.RegistrationResult, error) {
		return c.Register(ctx, a.cred)
	})
	if err == nil {
		a.audit.Info("agent.register",
			slog.String("role", string(a.role)),
			slog.String("address", out.Value.Address),
			slog.String("source", string(out.Source)))
	}
	return out, err
}

// Authorize 将 permissions 授权给 granteeAddress。
func (a *Agent) Authorize(ctx context.Context, granteeAddress string, permissions []backend.Permission) (Outcome[backend.AuthorizationResult], error) {
	if err := a.ready(ctx); err != nil {
		return Outcome[backend.AuthorizationResult]{}, err
	}
	grantee := strings.TrimSpace(granteeAddress)
	if grantee == "" {
		return Outcome[backend.AuthorizationResult]{}, xerrors.Validation("grantee address is required")
	}

	req := backend.AuthorizeRequest{
		Credential:     a.cred,
		GranteeAddress: grantee,
		Permissions:    append([]backend.Permission(nil), permissions...),
	}
	out, err := invoke(ctx, a, "authorize", func(ctx context.Context, c backend.Capability) (backend.AuthorizationResult, error) {
		return c.Authorize(ctx, req)
	})
	if err == nil {
		a.audit.Info("agent.authorize",
			slog.String("role", string(a.role)),
			slog.String("grantor", a.Address()),
			slog.String("grantee", grantee),
			slog.Any("permissions", req.Permissions),
			slog.String("source", string(out.Source)))
	}
	return out, err
}

// SetLimits 设置消费限额，空字段表示不限。
func (a *Agent) SetLimits(ctx context.Context, limits backend.Limits) (Outcome[backend.LimitsResult], error) {
	if err := a.ready(ctx); err != nil {
		return Outcome[backend.LimitsResult]{}, err
	}
	for field, value := range map[string]string{
		"perTransaction": limits.PerTransaction,
		"daily":          limits.Daily,
		"monthly":        limits.Monthly,
	} {
		if err := validateLimitAmount(field, value); err != nil {
			return Outcome[backend.LimitsResult]{}, err
		}
	}

	req := backend.LimitsRequest{Credential: a.cred, Limits: limits}
	out, err := invoke(ctx, a, "setLimits", func(ctx context.Context, c backend.Capability) (backend.LimitsResult, error) {
		return c.SetLimits(ctx, req)
	})
	if err == nil {
		a.audit.Info("agent.setLimits",
			slog.String("role", string(a.role)),
			slog.Any("limits", limits),
			slog.String("source", string(out.Source)))
	}
	return out, err
}

// Revoke 撤销对 granteeAddress 的授权。
func (a *Agent) Revoke(ctx context.Context, granteeAddress string) (Outcome[backend.RevocationResult], error) {
	if err := a.ready(ctx); err != nil {
		return Outcome[backend.RevocationResult]{}, err
	}
	grantee := strings.TrimSpace(granteeAddress)
	if grantee == "" {
		return Outcome[backend.RevocationResult]{}, xerrors.Validation("grantee address is required")
	}

	req := backend.RevokeRequest{Credential: a.cred, GranteeAddress: grantee}
	out, err := invoke(ctx, a, "revoke", func(ctx context.Context, c backend.Capability) (backend.RevocationResult, error) {
		return c.Revoke(ctx, req)
	})
	if err == nil {
		a.audit.Info("agent.revoke",
			slog.String("role", string(a.role)),
			slog.String("grantee", grantee),
			slog.String("source", string(out.Source)))
	}
	return out, err
}

// VerifySignature 校验签名。后端失败会直接返回错误，不会以模拟结果代替。
func (a *Agent) VerifySignature(ctx context.Context, message, signature, address string) (bool, error) {
	if err := a.ready(ctx); err != nil {
		return false, err
	}
	req := backend.SignatureRequest{Message: message, Signature: signature, Address: address}
	ok, err := callWithTimeout(ctx, a.callTimeout, func(ctx context.Context) (bool, error) {
		return a.backend.VerifySignature(ctx, req)
	})
	if err != nil {
		if xerrors.IsValidation(err) {
			return false, err
		}
		a.log.Error("签名校验失败", slog.String("address", address), slog.Any("error", err))
		return false, xerrors.Wrap(xerrors.CodeSignatureVerification, err, "签名校验无法完成")
	}
	return ok, nil
}

// GetBalance 查询 address 的余额，address 为空时查询自身地址。
func (a *Agent) GetBalance(ctx context.Context, address, currency string) (Outcome[string], error) {
	if err := a.ready(ctx); err != nil {
		return Outcome[string]{}, err
	}
	if strings.TrimSpace(address) == "" {
		address = a.ResolveAddress(ctx).Value
	}
	return invoke(ctx, a, "getBalance", func(ctx context.Context, c backend.Capability) (string, error) {
		return c.GetBalance(ctx, address, currency)
	})
}

// ValidatePaymentIntent 校验支付意图，失败时返回 ValidationError。
func (a *Agent) ValidatePaymentIntent(intent PaymentIntent) error {
	if err := ValidatePaymentIntent(intent); err != nil {
		a.log.Info("支付意图校验失败", slog.String("to", intent.To), slog.Any("error", err))
		return err
	}
	return nil
}

// SendPayment 校验支付意图后发起转账。校验错误直接返回；后端失败时返回
// 状态为 success 的模拟结果，来源通过 PaymentOutcome.Source 区分。
func (a *Agent) SendPayment(ctx context.Context, intent PaymentIntent) (PaymentOutcome, error) {
	if err := a.usable(ctx); err != nil {
		return PaymentOutcome{}, err
	}
	// 验证支付意图。
	if err := a.ValidatePaymentIntent(intent); err != nil {
		a.metrics.Payment("invalid")
		return PaymentOutcome{}, err
	}
	if err := a.ready(ctx); err != nil {
		return PaymentOutcome{}, err
	}

	// 发送支付。
	req := backend.PaymentRequest{
		Credential: a.cred,
		From:       a.ResolveAddress(ctx).Value,
		To:         strings.TrimSpace(intent.To),
		Amount:     intent.Amount.String(),
		Currency:   strings.TrimSpace(intent.Currency),
	}
	out, err := invoke(ctx, a, "sendPayment", func(ctx context.Context, c backend.Capability) (backend.PaymentResult, error) {
		return c.SendPayment(ctx, req)
	})
	if err != nil {
		if xerrors.IsValidation(err) {
			a.metrics.Payment("invalid")
		}
		return PaymentOutcome{}, err
	}

	a.metrics.Payment(string(out.Source))
	a.audit.Info("agent.sendPayment",
		slog.String("role", string(a.role)),
		slog.String("payment_id", out.Value.ID),
		slog.String("from", req.From),
		slog.String("to", req.To),
		slog.String("amount", req.Amount),
		slog.String("currency", req.Currency),
		slog.String("status", out.Value.Status),
		slog.String("source", string(out.Source)))
	return out, nil
}

// Encrypt 使用 key 派生的密钥加密 data，与后端无关。
func (a *Agent) Encrypt(data, key []byte) (envelope.Payload, error) {
	return envelope.Encrypt(data, key)
}

// Decrypt 解密 Encrypt 的结果，密钥或 IV 不匹配时返回 DecryptionError。
func (a *Agent) Decrypt(payload envelope.Payload, key []byte) ([]byte, error) {
	return envelope.Decrypt(payload, key)
}

// Close 清除内存中的凭证。之后的后端操作都会失败。
func (a *Agent) Close() {
	if a.closed.Swap(true) {
		return
	}
	a.cred.Zero()
	a.log.Debug("Agent 已关闭")
}

func (a *Agent) usable(ctx context.Context) error {
	if a.closed.Load() {
		return xerrors.New(xerrors.CodeInitializationFailure, "Agent 已关闭")
	}
	if err := ctx.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeTimeout, err, "调用已取消")
	}
	return nil
}

// ready 在首次操作时完成初始化。
func (a *Agent) ready(ctx context.Context) error {
	if err := a.usable(ctx); err != nil {
		return err
	}
	if a.State() == StateUninitialized {
		return a.Init(ctx)
	}
	return nil
}

// invoke 先调用真实后端，可模拟的失败由 simulator 接管。校验错误与调用方
// 取消会原样返回。DegradedReady 状态下直接走模拟路径。
func invoke[T any](ctx context.Context, a *Agent, op string, fn func(context.Context, backend.Capability) (T, error)) (Outcome[T], error) {
	var zero Outcome[T]
	if err := ctx.Err(); err != nil {
		return zero, xerrors.Wrap(xerrors.CodeTimeout, err, "调用已取消")
	}

	var cause error
	if a.State() == StateDegradedReady {
		cause = a.initCause
	} else {
		v, err := callWithTimeout(ctx, a.callTimeout, func(ctx context.Context) (T, error) {
			return fn(ctx, a.backend)
		})
		if err == nil {
			return realOutcome(v), nil
		}
		if !xerrors.Simulatable(err) {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "调用已取消")
		}
		cause = err
	}

	a.log.Warn("后端调用失败，返回模拟结果",
		slog.String("operation", op),
		slog.String("state", a.State().String()),
		slog.Any("error", cause))
	a.metrics.BackendFallback(op)

	v, err := fn(ctx, a.simulator)
	if err != nil {
		return zero, err
	}
	return simulatedOutcome(v, cause), nil
}

type callResult[T any] struct {
	value T
	err   error
}

// callWithTimeout 在独立的 goroutine 中执行 fn，超时后立即返回 TIMEOUT，
// 即使 fn 没有响应 ctx 的取消。
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan callResult[T], 1)
	go func() {
		v, err := fn(callCtx)
		done <- callResult[T]{value: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && stdErrors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return res.value, xerrors.Wrap(xerrors.CodeTimeout, res.err, fmt.Sprintf("后端调用超过 %s", timeout))
		}
		return res.value, res.err
	case <-callCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, xerrors.Wrap(xerrors.CodeTimeout, callCtx.Err(), fmt.Sprintf("后端调用超过 %s", timeout))
	}
}
