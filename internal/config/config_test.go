package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HR_AGENT_KEY", "PAYROLL_AGENT_KEY", "EMPLOYEE_AGENT_KEY",
		"KITE_RPC_URL", "KITE_BUNDLER_RPC", "KITE_CHAIN_ID", "ENVIRONMENT", "PORT",
		"OPENROUTER_API_KEY", "OPENROUTER_BASE_URL", "LLM_MODEL",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultWithoutFile(t *testing.T) {
	clearEnv(t)

	cfg := Default()
	assert.Equal(t, ":3000", cfg.Server.Address)
	assert.Equal(t, DefaultRPCURL, cfg.Web3.RPCURL)
	assert.Equal(t, DefaultBundlerURL, cfg.Web3.BundlerURL)
	assert.Equal(t, DefaultChainID, cfg.Web3.ChainID)
	assert.Equal(t, 10*time.Second, cfg.Web3.CallTimeout())
	assert.Equal(t, DefaultConcurrency, cfg.Payroll.Concurrency)
	assert.Equal(t, "memory", cfg.Events.Driver)
	assert.False(t, cfg.IsProduction())
	require.NoError(t, cfg.Validate())
}

func TestEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HR_AGENT_KEY", " hr-key ")
	t.Setenv("PAYROLL_AGENT_KEY", "payroll-key")
	t.Setenv("KITE_RPC_URL", "http://127.0.0.1:8545")
	t.Setenv("KITE_CHAIN_ID", "1337")
	t.Setenv("PORT", "8081")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")
	t.Setenv("OPENROUTER_BASE_URL", "http://127.0.0.1:11434/v1")

	cfg := Default()
	assert.Equal(t, "sk-or-test", cfg.LLM.APIKey)
	assert.Equal(t, "http://127.0.0.1:11434/v1", cfg.LLM.BaseURL)
	assert.Equal(t, 60, cfg.LLM.TimeoutSeconds)
	assert.Equal(t, "hr-key", cfg.Agents.HRKey)
	assert.Equal(t, "payroll-key", cfg.Agents.PayrollKey)
	assert.Empty(t, cfg.Agents.EmployeeKey)
	assert.Equal(t, "http://127.0.0.1:8545", cfg.Web3.RPCURL)
	assert.EqualValues(t, 1337, cfg.Web3.ChainID)
	assert.Equal(t, ":8081", cfg.Server.Address)
	assert.True(t, cfg.IsProduction())
}

func TestLoadFileResolvesRelativePaths(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "payroll.json")
	content := `{
  "server": {"address": ":9000", "static_dir": "web"},
  "web3": {"chain_config": "chain.yaml", "call_timeout_seconds": 3},
  "payroll": {"concurrency": 2, "bootstrap_grants": true},
  "llm": {"salary_file": "salaries.json"},
  "log": {"audit": {"enabled": true, "path": "logs/audit.log"}}
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, filepath.Join(dir, "web"), cfg.Server.StaticDir)
	assert.Equal(t, filepath.Join(dir, "chain.yaml"), cfg.Web3.ChainConfig)
	assert.Equal(t, 3*time.Second, cfg.Web3.CallTimeout())
	assert.Equal(t, 2, cfg.Payroll.Concurrency)
	assert.True(t, cfg.Payroll.BootstrapGrants)
	assert.Equal(t, filepath.Join(dir, "logs/audit.log"), cfg.Log.Audit.Path)
	assert.Equal(t, filepath.Join(dir, "salaries.json"), cfg.LLM.SalaryFile)
}

func TestLoadRejectsIncompleteDrivers(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cases := map[string]string{
		"rabbitmq": `{"events": {"driver": "rabbitmq"}}`,
		"redis":    `{"rate_limit": {"driver": "redis"}}`,
		"unknown":  `{"events": {"driver": "kafka"}}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
