package ethereum

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AgentPayroll/internal/backend"
	"AgentPayroll/internal/credential"
	xerrors "AgentPayroll/internal/errors"
)

var (
	registryAddr = common.HexToAddress("0x00000000000000000000000000000000000a6e47")
	tokenAddr    = common.HexToAddress("0x0000000000000000000000000000000000007553")
)

type chainFixture struct {
	sim     *simulated.Backend
	backend *Backend
	key     *ecdsa.PrivateKey
	cred    *credential.Credential
}

func newChainFixture(t *testing.T, cfg Config) *chainFixture {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey)

	funds := new(big.Int).Mul(big.NewInt(10), big.NewInt(1_000_000_000_000_000_000))
	sim := simulated.NewBackend(coretypes.GenesisAlloc{owner: {Balance: funds}})
	t.Cleanup(func() { _ = sim.Close() })

	if cfg.Name == "" {
		cfg.Name = "simulated"
	}
	b, err := New(sim.Client(), cfg)
	require.NoError(t, err)

	return &chainFixture{
		sim:     sim,
		backend: b,
		key:     key,
		cred:    credential.New("0x" + hex.EncodeToString(crypto.FromECDSA(key))),
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNativePaymentMovesBalance(t *testing.T) {
	ctx := testContext(t)
	fx := newChainFixture(t, Config{NativeSymbol: "kite", NativeDecimals: 18})

	recipient := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	res, err := fx.backend.SendPayment(ctx, backend.PaymentRequest{
		Credential: fx.cred,
		To:         recipient.Hex(),
		Amount:     "1.5",
		Currency:   "KITE",
	})
	require.NoError(t, err)
	assert.Equal(t, backend.PaymentSubmitted, res.Status)
	assert.Equal(t, res.TxHash, res.ID)
	assert.Equal(t, crypto.PubkeyToAddress(fx.key.PublicKey).Hex(), res.From)

	fx.sim.Commit()

	balance, err := fx.backend.GetBalance(ctx, recipient.Hex(), "")
	require.NoError(t, err)
	assert.Equal(t, "1.5", balance)
}

func TestTokenPaymentTargetsTokenContract(t *testing.T) {
	ctx := testContext(t)
	fx := newChainFixture(t, Config{
		Tokens: map[string]Token{"usd": {Address: tokenAddr.Hex(), Decimals: 6}},
	})

	res, err := fx.backend.SendPayment(ctx, backend.PaymentRequest{
		Credential: fx.cred,
		To:         "0x00000000000000000000000000000000000000b1",
		Amount:     "100.25",
		Currency:   "USD",
	})
	require.NoError(t, err)
	fx.sim.Commit()

	tx, pending, err := fx.sim.Client().TransactionByHash(ctx, common.HexToHash(res.TxHash))
	require.NoError(t, err)
	assert.False(t, pending)
	require.NotNil(t, tx.To())
	assert.Equal(t, tokenAddr, *tx.To())
	assert.Zero(t, tx.Value().Sign())

	args, err := erc20ABI.Methods["transfer"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	amount, ok := args[1].(*big.Int)
	require.True(t, ok)
	assert.Equal(t, "100250000", amount.String())
}

func TestRegistryCallsAreMined(t *testing.T) {
	ctx := testContext(t)
	fx := newChainFixture(t, Config{Registry: registryAddr.Hex()})

	reg, err := fx.backend.Register(ctx, fx.cred)
	require.NoError(t, err)
	assert.True(t, reg.Success)

	auth, err := fx.backend.Authorize(ctx, backend.AuthorizeRequest{
		Credential:     fx.cred,
		GranteeAddress: "0x00000000000000000000000000000000000000c2",
		Permissions:    []backend.Permission{backend.PermissionSendPayment},
	})
	require.NoError(t, err)
	fx.sim.Commit()

	for _, hash := range []string{reg.TxHash, auth.TxHash} {
		receipt, err := fx.sim.Client().TransactionReceipt(ctx, common.HexToHash(hash))
		require.NoError(t, err)
		assert.Equal(t, coretypes.ReceiptStatusSuccessful, receipt.Status)
	}
}

func TestRegistryRequiredForRegistration(t *testing.T) {
	fx := newChainFixture(t, Config{})

	_, err := fx.backend.Register(testContext(t), fx.cred)
	require.Error(t, err)
	assert.True(t, xerrors.IsBackendUnavailable(err))
}

func TestAuthenticateRejectsChainMismatch(t *testing.T) {
	fx := newChainFixture(t, Config{ChainID: 2368})

	err := fx.backend.Authenticate(testContext(t), fx.cred)
	require.Error(t, err)
	assert.True(t, xerrors.IsBackendUnavailable(err))
}

func TestAuthenticateRejectsNonKeyCredential(t *testing.T) {
	fx := newChainFixture(t, Config{})

	err := fx.backend.Authenticate(testContext(t), credential.New("hr-demo-key"))
	require.Error(t, err)
	assert.True(t, xerrors.Simulatable(err))
}

func TestUnknownCurrencyIsUnavailable(t *testing.T) {
	fx := newChainFixture(t, Config{})

	_, err := fx.backend.GetBalance(testContext(t), crypto.PubkeyToAddress(fx.key.PublicKey).Hex(), "EUR")
	require.Error(t, err)
	assert.True(t, xerrors.IsBackendUnavailable(err))
}

func TestInvalidAmountIsValidationError(t *testing.T) {
	fx := newChainFixture(t, Config{})

	_, err := fx.backend.SendPayment(testContext(t), backend.PaymentRequest{
		Credential: fx.cred,
		To:         "0x00000000000000000000000000000000000000b0",
		Amount:     "0.0000000000000000001",
	})
	require.Error(t, err)
	assert.True(t, xerrors.IsValidation(err))
}

func TestNewRejectsBadTokenAddress(t *testing.T) {
	sim := simulated.NewBackend(coretypes.GenesisAlloc{})
	t.Cleanup(func() { _ = sim.Close() })

	_, err := New(sim.Client(), Config{Tokens: map[string]Token{"USD": {Address: "nope", Decimals: 6}}})
	assert.Error(t, err)
}
