package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"AgentPayroll/internal/backend"
	"AgentPayroll/internal/credential"
	xerrors "AgentPayroll/internal/errors"
)

// Config describes how to construct an EVM backend.
type Config struct {
	Name   string
	RPCURL string
	// ChainID, when non-zero, must match what the node reports.
	ChainID int64
	// Registry is the agent registry contract receiving register/authorize/
	// setLimits/revoke calls.
	Registry       string
	NativeSymbol   string
	NativeDecimals int
	Tokens         map[string]Token
}

// Token describes an ERC-20 asset usable as payroll currency.
type Token struct {
	Address  string
	Decimals int
}

// ChainClient mirrors the subset of go-ethereum client methods the backend
// relies on. Both *ethclient.Client and simulated.Client satisfy it.
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*coretypes.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call gethcore.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
	CallContract(ctx context.Context, call gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Backend implements backend.Capability for EVM compatible chains.
type Backend struct {
	name           string
	rpcClient      *gethrpc.Client
	client         ChainClient
	expectedChain  *big.Int
	registry       *common.Address
	nativeSymbol   string
	nativeDecimals int
	tokens         map[string]Token

	// mu 串行化同一进程内的签名发送，避免 nonce 冲突。
	mu      sync.Mutex
	chainID *big.Int
}

var (
	registryABI = mustParseABI(registryABIJSON)
	erc20ABI    = mustParseABI(erc20ABIJSON)

	errNoRegistry = errors.New("未配置 Agent 注册合约地址")
)

// Dial connects to the configured RPC endpoint and returns a ready backend.
func Dial(ctx context.Context, cfg Config) (*Backend, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}
	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}
	b, err := New(ethclient.NewClient(rpcClient), cfg)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	b.rpcClient = rpcClient
	return b, nil
}

// New wraps an existing chain client, typically a simulated chain in tests.
func New(client ChainClient, cfg Config) (*Backend, error) {
	if client == nil {
		return nil, errors.New("链客户端不能为空")
	}
	b := &Backend{
		name:           cfg.Name,
		client:         client,
		nativeSymbol:   strings.ToUpper(strings.TrimSpace(cfg.NativeSymbol)),
		nativeDecimals: cfg.NativeDecimals,
		tokens:         make(map[string]Token, len(cfg.Tokens)),
	}
	if b.nativeSymbol == "" {
		b.nativeSymbol = "ETH"
	}
	if b.nativeDecimals <= 0 {
		b.nativeDecimals = 18
	}
	if cfg.ChainID != 0 {
		b.expectedChain = big.NewInt(cfg.ChainID)
	}
	if registry := strings.TrimSpace(cfg.Registry); registry != "" {
		if !common.IsHexAddress(registry) {
			return nil, fmt.Errorf("注册合约地址无效: %s", registry)
		}
		addr := common.HexToAddress(registry)
		b.registry = &addr
	}
	for symbol, token := range cfg.Tokens {
		if !common.IsHexAddress(token.Address) {
			return nil, fmt.Errorf("代币 %s 的合约地址无效: %s", symbol, token.Address)
		}
		if token.Decimals < 0 {
			return nil, fmt.Errorf("代币 %s 的精度无效: %d", symbol, token.Decimals)
		}
		b.tokens[strings.ToUpper(strings.TrimSpace(symbol))] = token
	}
	return b, nil
}

// Name returns the chain name from the configuration.
func (b *Backend) Name() string { return b.name }

// Close releases network connections held by the backend.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rpcClient != nil {
		b.rpcClient.Close()
		b.rpcClient = nil
	}
}

// Authenticate checks that the credential is a usable key and that the node
// answers on the expected chain.
func (b *Backend) Authenticate(ctx context.Context, cred *credential.Credential) error {
	if _, err := signingKey(cred); err != nil {
		return err
	}
	_, err := b.chain(ctx)
	return err
}

// ResolveAddress returns the account address controlled by the credential.
func (b *Backend) ResolveAddress(_ context.Context, cred *credential.Credential) (string, error) {
	key, err := signingKey(cred)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

// CreateIdentity confirms the account is reachable on chain. Externally owned
// accounts exist implicitly, so identity creation is a liveness probe.
func (b *Backend) CreateIdentity(ctx context.Context, cred *credential.Credential) (backend.IdentityResult, error) {
	key, err := signingKey(cred)
	if err != nil {
		return backend.IdentityResult{}, err
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	if _, err := b.client.PendingNonceAt(ctx, addr); err != nil {
		return backend.IdentityResult{}, unavailable(err, "查询账户状态失败")
	}
	return backend.IdentityResult{Success: true, Address: addr.Hex(), Message: "identity ready"}, nil
}

// Register records the agent in the registry contract.
func (b *Backend) Register(ctx context.Context, cred *credential.Credential) (backend.RegistrationResult, error) {
	key, err := signingKey(cred)
	if err != nil {
		return backend.RegistrationResult{}, err
	}
	tx, err := b.callRegistry(ctx, key, "register")
	if err != nil {
		return backend.RegistrationResult{}, err
	}
	return backend.RegistrationResult{
		Success: true,
		Address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		TxHash:  tx.Hash().Hex(),
		Message: "registration submitted",
	}, nil
}

// Authorize grants permissions on the caller's account to another address.
func (b *Backend) Authorize(ctx context.Context, req backend.AuthorizeRequest) (backend.AuthorizationResult, error) {
	key, err := signingKey(req.Credential)
	if err != nil {
		return backend.AuthorizationResult{}, err
	}
	grantee, err := parseAddress(req.GranteeAddress)
	if err != nil {
		return backend.AuthorizationResult{}, err
	}
	perms := make([]string, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		perms = append(perms, string(p))
	}
	tx, err := b.callRegistry(ctx, key, "authorize", grantee, perms)
	if err != nil {
		return backend.AuthorizationResult{}, err
	}
	return backend.AuthorizationResult{
		Success:        true,
		GranteeAddress: grantee.Hex(),
		Permissions:    append([]backend.Permission(nil), req.Permissions...),
		TxHash:         tx.Hash().Hex(),
		Message:        "authorization submitted",
	}, nil
}

// SetLimits writes spending limits for the caller's account.
func (b *Backend) SetLimits(ctx context.Context, req backend.LimitsRequest) (backend.LimitsResult, error) {
	key, err := signingKey(req.Credential)
	if err != nil {
		return backend.LimitsResult{}, err
	}
	decimals := b.nativeDecimals
	if req.Limits.Currency != "" {
		asset, err := b.asset(req.Limits.Currency)
		if err != nil {
			return backend.LimitsResult{}, err
		}
		decimals = asset.decimals
	}
	values := make([]*big.Int, 0, 3)
	for _, raw := range []string{req.Limits.PerTransaction, req.Limits.Daily, req.Limits.Monthly} {
		if strings.TrimSpace(raw) == "" {
			values = append(values, new(big.Int))
			continue
		}
		v, err := ParseUnits(raw, decimals)
		if err != nil {
			return backend.LimitsResult{}, xerrors.Validation(fmt.Sprintf("限额格式无效: %v", err))
		}
		values = append(values, v)
	}
	tx, err := b.callRegistry(ctx, key, "setLimits", values[0], values[1], values[2])
	if err != nil {
		return backend.LimitsResult{}, err
	}
	return backend.LimitsResult{Success: true, Limits: req.Limits, TxHash: tx.Hash().Hex(), Message: "limits submitted"}, nil
}

// Revoke removes a previously granted authorization.
func (b *Backend) Revoke(ctx context.Context, req backend.RevokeRequest) (backend.RevocationResult, error) {
	key, err := signingKey(req.Credential)
	if err != nil {
		return backend.RevocationResult{}, err
	}
	grantee, err := parseAddress(req.GranteeAddress)
	if err != nil {
		return backend.RevocationResult{}, err
	}
	tx, err := b.callRegistry(ctx, key, "revoke", grantee)
	if err != nil {
		return backend.RevocationResult{}, err
	}
	return backend.RevocationResult{
		Success:        true,
		GranteeAddress: grantee.Hex(),
		TxHash:         tx.Hash().Hex(),
		Message:        "revocation submitted",
	}, nil
}

// VerifySignature checks an EIP-191 personal signature.
func (b *Backend) VerifySignature(_ context.Context, req backend.SignatureRequest) (bool, error) {
	return backend.VerifyPersonalSignature(req.Message, req.Signature, req.Address)
}

// GetBalance returns the balance of address in currency units. An empty
// currency means the native asset.
func (b *Backend) GetBalance(ctx context.Context, address, currency string) (string, error) {
	owner, err := parseAddress(address)
	if err != nil {
		return "", err
	}
	asset, err := b.asset(currency)
	if err != nil {
		return "", err
	}
	if asset.token == nil {
		balance, err := b.client.BalanceAt(ctx, owner, nil)
		if err != nil {
			return "", unavailable(err, "查询余额失败")
		}
		return FormatUnits(balance, asset.decimals), nil
	}

	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return "", fmt.Errorf("编码 balanceOf 失败: %w", err)
	}
	out, err := b.client.CallContract(ctx, gethcore.CallMsg{To: asset.token, Data: data}, nil)
	if err != nil {
		return "", unavailable(err, "查询代币余额失败")
	}
	values, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil || len(values) != 1 {
		return "", unavailable(err, "解析代币余额失败")
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return "", unavailable(nil, "代币余额类型异常")
	}
	return FormatUnits(balance, asset.decimals), nil
}

// SendPayment transfers amount of currency from the credential's account.
func (b *Backend) SendPayment(ctx context.Context, req backend.PaymentRequest) (backend.PaymentResult, error) {
	key, err := signingKey(req.Credential)
	if err != nil {
		return backend.PaymentResult{}, err
	}
	to, err := parseAddress(req.To)
	if err != nil {
		return backend.PaymentResult{}, err
	}
	asset, err := b.asset(req.Currency)
	if err != nil {
		return backend.PaymentResult{}, err
	}
	value, err := ParseUnits(req.Amount, asset.decimals)
	if err != nil {
		return backend.PaymentResult{}, xerrors.Validation(fmt.Sprintf("金额格式无效: %v", err))
	}

	var tx *coretypes.Transaction
	if asset.token == nil {
		tx, err = b.transact(ctx, key, to, value, nil)
	} else {
		data, packErr := erc20ABI.Pack("transfer", to, value)
		if packErr != nil {
			return backend.PaymentResult{}, fmt.Errorf("编码 transfer 失败: %w", packErr)
		}
		tx, err = b.transact(ctx, key, *asset.token, new(big.Int), data)
	}
	if err != nil {
		return backend.PaymentResult{}, err
	}

	return backend.PaymentResult{
		ID:       tx.Hash().Hex(),
		Status:   backend.PaymentSubmitted,
		To:       to.Hex(),
		Amount:   req.Amount,
		Currency: req.Currency,
		From:     crypto.PubkeyToAddress(key.PublicKey).Hex(),
		TxHash:   tx.Hash().Hex(),
	}, nil
}

func (b *Backend) callRegistry(ctx context.Context, key *ecdsa.PrivateKey, method string, args ...any) (*coretypes.Transaction, error) {
	if b.registry == nil {
		return nil, unavailable(errNoRegistry, "无法调用注册合约")
	}
	data, err := registryABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("编码 %s 调用失败: %w", method, err)
	}
	return b.transact(ctx, key, *b.registry, new(big.Int), data)
}

// transact signs and broadcasts an EIP-1559 transaction.
func (b *Backend) transact(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, value *big.Int, data []byte) (*coretypes.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	chainID, err := b.chainLocked(ctx)
	if err != nil {
		return nil, err
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	nonce, err := b.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, unavailable(err, "查询交易计数失败")
	}
	tip, err := b.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, unavailable(err, "获取小费建议失败")
	}
	head, err := b.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, unavailable(err, "获取最新区块失败")
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}
	gas, err := b.client.EstimateGas(ctx, gethcore.CallMsg{From: from, To: &to, Value: value, Data: data})
	if err != nil {
		return nil, unavailable(err, "估算 gas 失败")
	}

	tx := coretypes.NewTx(&coretypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signed, err := coretypes.SignTx(tx, coretypes.LatestSignerForChainID(chainID), key)
	if err != nil {
		return nil, fmt.Errorf("签名交易失败: %w", err)
	}
	if err := b.client.SendTransaction(ctx, signed); err != nil {
		return nil, unavailable(err, "发送交易失败")
	}
	return signed, nil
}

func (b *Backend) chain(ctx context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chainLocked(ctx)
}

func (b *Backend) chainLocked(ctx context.Context) (*big.Int, error) {
	if b.chainID != nil {
		return b.chainID, nil
	}
	id, err := b.client.ChainID(ctx)
	if err != nil {
		return nil, unavailable(err, "获取链 ID 失败")
	}
	if b.expectedChain != nil && id.Cmp(b.expectedChain) != 0 {
		return nil, unavailable(nil, fmt.Sprintf("节点链 ID %s 与配置 %s 不一致", id, b.expectedChain))
	}
	b.chainID = id
	return id, nil
}

type assetInfo struct {
	token    *common.Address
	decimals int
}

func (b *Backend) asset(currency string) (assetInfo, error) {
	symbol := strings.ToUpper(strings.TrimSpace(currency))
	if symbol == "" || symbol == b.nativeSymbol {
		return assetInfo{decimals: b.nativeDecimals}, nil
	}
	token, ok := b.tokens[symbol]
	if !ok {
		return assetInfo{}, unavailable(nil, fmt.Sprintf("链 %s 不支持币种 %s", b.name, currency))
	}
	addr := common.HexToAddress(token.Address)
	return assetInfo{token: &addr, decimals: token.Decimals}, nil
}

func signingKey(cred *credential.Credential) (*ecdsa.PrivateKey, error) {
	key, err := credential.PrivateKey(cred)
	if err != nil {
		return nil, unavailable(err, "凭证不是有效的 secp256k1 私钥")
	}
	return key, nil
}

func parseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, unavailable(nil, fmt.Sprintf("无效的链上地址: %s", raw))
	}
	return common.HexToAddress(raw), nil
}

func unavailable(err error, message string) error {
	return xerrors.BackendUnavailable(err, message)
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("解析内置 ABI 失败: %v", err))
	}
	return parsed
}

var _ backend.Capability = (*Backend)(nil)
