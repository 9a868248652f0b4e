package provider

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AgentPayroll/internal/backend"
	"AgentPayroll/internal/backend/ethereum"
	"AgentPayroll/internal/config"
	xerrors "AgentPayroll/internal/errors"
)

const chainYAML = `
default: kite
chains:
  kite:
    description: local kite devnet
    rpc_url: http://127.0.0.1:8545
    bundler_url: http://127.0.0.1:4337
    chain_id: 2368
    registry: "0x00000000000000000000000000000000000a6e47"
    native_symbol: KITE
    tokens:
      USD:
        address: "0x0000000000000000000000000000000000007553"
        decimals: 6
  broken:
    type: evm
    rpc_url: "ftp://example.invalid"
`

func writeChainConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chain.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseChainDefinitions(t *testing.T) {
	defs, err := Parse([]byte(chainYAML))
	require.NoError(t, err)

	require.Contains(t, defs.Chains, "kite")
	kite := defs.Chains["kite"]
	assert.Equal(t, "evm", kite.Type)
	assert.EqualValues(t, 2368, kite.ChainID)
	assert.Equal(t, 6, kite.Tokens["USD"].Decimals)
	assert.Equal(t, "kite", defs.Default)
}

func TestParseRejectsTokenWithoutAddress(t *testing.T) {
	_, err := Parse([]byte("chains:\n  kite:\n    tokens:\n      USD:\n        decimals: 6\n"))
	assert.Error(t, err)
}

func TestRegistryLogsConnectedChainDetails(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	reg, err := NewRegistry(context.Background(), config.Web3Config{ChainConfig: writeChainConfig(t, chainYAML)}, log)
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	out := buf.String()
	assert.Contains(t, out, `"description":"local kite devnet"`)
	assert.Contains(t, out, `"bundler":"http://127.0.0.1:4337"`)
}

func TestRegistryDegradesUnreachableChains(t *testing.T) {
	reg, err := NewRegistry(context.Background(), config.Web3Config{ChainConfig: writeChainConfig(t, chainYAML)}, nil)
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	assert.Equal(t, []string{"broken", "kite"}, reg.Chains())
	assert.False(t, reg.Degraded("kite"))
	assert.False(t, reg.Degraded(""))
	assert.True(t, reg.Degraded("broken"))

	_, ok := reg.Default().(*ethereum.Backend)
	assert.True(t, ok)

	broken, err := reg.Lookup("broken")
	require.NoError(t, err)
	_, err = broken.GetBalance(context.Background(), "0x00000000000000000000000000000000000000b0", "")
	assert.True(t, xerrors.IsBackendUnavailable(err))

	_, err = reg.Lookup("solana")
	assert.ErrorIs(t, err, ErrUnknownChain)
}

func TestRegistryWithoutEndpointsIsUnavailable(t *testing.T) {
	reg, err := NewRegistry(context.Background(), config.Web3Config{}, nil)
	require.NoError(t, err)

	_, ok := reg.Default().(backend.Unavailable)
	assert.True(t, ok)
	assert.Empty(t, reg.Chains())
	assert.True(t, reg.Degraded(""))
}

func TestRegistryFallsBackToSingleRPC(t *testing.T) {
	reg, err := NewRegistry(context.Background(), config.Web3Config{
		RPCURL:  "http://127.0.0.1:8545",
		ChainID: 2368,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	assert.Equal(t, []string{DefaultChainName}, reg.Chains())
	assert.False(t, reg.Degraded(DefaultChainName))
}

func TestRegistryRejectsBadConfiguration(t *testing.T) {
	_, err := NewRegistry(context.Background(), config.Web3Config{
		ChainConfig: writeChainConfig(t, "chains:\n  sol:\n    type: solana\n    rpc_url: http://x\n"),
	}, nil)
	assert.Error(t, err)

	_, err = NewRegistry(context.Background(), config.Web3Config{
		ChainConfig:  writeChainConfig(t, chainYAML),
		DefaultChain: "missing",
	}, nil)
	assert.Error(t, err)
}
