package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"AgentPayroll/internal/backend"
	"AgentPayroll/internal/backend/ethereum"
	"AgentPayroll/internal/config"
)

// DefaultChainName 是只配置了 RPC 地址、没有 chain.yaml 时使用的链名。
const DefaultChainName = "kite"

// Registry manages a set of chain backends keyed by human readable names.
// Chains that cannot be dialed are kept as backend.Unavailable so that agents
// built on them start degraded instead of failing.
type Registry struct {
	defaultChain string
	backends     map[string]backend.Capability
	closers      []func()
}

// NewRegistry loads chain definitions and instantiates concrete backends.
// Only configuration errors are returned; connectivity problems degrade.
func NewRegistry(ctx context.Context, cfg config.Web3Config, log *slog.Logger) (*Registry, error) {
	if log == nil {
		log = slog.Default()
	}
	defs, err := Load(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}

	if len(defs.Chains) == 0 && strings.TrimSpace(cfg.RPCURL) != "" {
		defs.Chains[DefaultChainName] = ChainDefinition{
			Type:         "evm",
			RPCURL:       cfg.RPCURL,
			BundlerURL:   cfg.BundlerURL,
			ChainID:      cfg.ChainID,
			Registry:     cfg.Registry,
			NativeSymbol: cfg.NativeSymbol,
		}
	}

	r := &Registry{backends: make(map[string]backend.Capability, len(defs.Chains))}
	for name, chain := range defs.Chains {
		switch strings.ToLower(strings.TrimSpace(chain.Type)) {
		case "", "evm":
		default:
			r.Close()
			return nil, fmt.Errorf("链 %s 使用了不支持的类型 %s", name, chain.Type)
		}

		b, err := ethereum.Dial(ctx, evmConfig(name, chain))
		if err != nil {
			log.Warn("链后端不可用，将以降级模式运行", slog.String("chain", name), slog.Any("error", err))
			r.backends[name] = backend.Unavailable{Reason: err.Error()}
			continue
		}
		log.Info("链后端已连接",
			slog.String("chain", name),
			slog.String("description", chain.Description),
			slog.String("bundler", chain.BundlerURL))
		r.backends[name] = b
		r.closers = append(r.closers, b.Close)
	}

	defaultChain := firstNonEmpty(cfg.DefaultChain, defs.Default)
	if defaultChain == "" && len(r.backends) > 0 {
		defaultChain = r.Chains()[0]
	}
	if defaultChain != "" {
		if _, ok := r.backends[defaultChain]; !ok {
			r.Close()
			return nil, fmt.Errorf("默认链 %s 未在配置中找到", defaultChain)
		}
	}
	r.defaultChain = defaultChain
	return r, nil
}

func evmConfig(name string, chain ChainDefinition) ethereum.Config {
	tokens := make(map[string]ethereum.Token, len(chain.Tokens))
	for symbol, token := range chain.Tokens {
		tokens[symbol] = ethereum.Token{Address: token.Address, Decimals: token.Decimals}
	}
	return ethereum.Config{
		Name:           name,
		RPCURL:         chain.RPCURL,
		ChainID:        chain.ChainID,
		Registry:       chain.Registry,
		NativeSymbol:   chain.NativeSymbol,
		NativeDecimals: chain.NativeDecimals,
		Tokens:         tokens,
	}
}

// Default returns the backend configured as default chain. With nothing
// configured it returns backend.Unavailable.
func (r *Registry) Default() backend.Capability {
	if r == nil || r.defaultChain == "" {
		return backend.Unavailable{Reason: "未配置任何链的 RPC 端点"}
	}
	return r.backends[r.defaultChain]
}

// Backend returns the backend identified by name.
func (r *Registry) Backend(name string) (backend.Capability, bool) {
	if r == nil {
		return nil, false
	}
	b, ok := r.backends[name]
	return b, ok
}

// Degraded reports whether the named chain is running without a backend.
// An empty name refers to the default chain.
func (r *Registry) Degraded(name string) bool {
	if strings.TrimSpace(name) == "" && r != nil {
		name = r.defaultChain
	}
	b, ok := r.Backend(name)
	if !ok {
		return true
	}
	_, unavailable := b.(backend.Unavailable)
	return unavailable
}

// Close releases all backends managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for _, closeFn := range r.closers {
		closeFn()
	}
	r.closers = nil
	for name := range r.backends {
		delete(r.backends, name)
	}
}

// Chains returns the list of registered chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ErrUnknownChain 表示请求的链未注册。
var ErrUnknownChain = errors.New("unknown chain")

// Lookup 按名称返回后端，名称为空时返回默认链。
func (r *Registry) Lookup(name string) (backend.Capability, error) {
	if strings.TrimSpace(name) == "" {
		return r.Default(), nil
	}
	b, ok := r.Backend(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, name)
	}
	return b, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
