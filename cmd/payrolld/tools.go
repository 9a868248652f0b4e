package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/urfave/cli/v2"

	"AgentPayroll/internal/agent"
	"AgentPayroll/internal/backend/provider"
	"AgentPayroll/internal/config"
	"AgentPayroll/internal/credential"
	"AgentPayroll/pkg/logger"
	"AgentPayroll/sdk/go/payrollclient"
)

// runBalance 打印指定角色的余额，后端不可用时输出模拟值并注明来源。
func runBalance(c *cli.Context) error {
	ctx := c.Context
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	role, err := agent.ParseRole(c.String("role"))
	if err != nil {
		return err
	}

	chains, err := provider.NewRegistry(ctx, cfg.Web3, logger.Named("provider"))
	if err != nil {
		return err
	}
	defer chains.Close()
	capability, err := chains.Lookup(c.String("chain"))
	if err != nil {
		return err
	}

	ag, err := agent.New(role, credential.New(roleKey(cfg.Agents, role)), capability,
		agent.WithCallTimeout(cfg.Web3.CallTimeout()))
	if err != nil {
		return err
	}
	defer ag.Close()
	if err := ag.Init(ctx); err != nil {
		return err
	}

	out, err := ag.GetBalance(ctx, "", c.String("currency"))
	if err != nil {
		return err
	}
	currency := strings.ToUpper(c.String("currency"))
	if currency == "" {
		currency = cfg.Web3.NativeSymbol
	}
	fmt.Fprintf(c.App.Writer, "%s\t%s\t%s %s\t(%s)\n", role, ag.Address(), out.Value, currency, out.Source)
	return nil
}

// runKeygen 生成新的 secp256k1 私钥，输出可直接写入 .env 的格式。
func runKeygen(c *cli.Context) error {
	role, err := agent.ParseRole(c.String("role"))
	if err != nil {
		return err
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("生成密钥失败: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "# address %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
	fmt.Fprintf(c.App.Writer, "%s_AGENT_KEY=%s\n", strings.ToUpper(string(role)), hexutil.Encode(crypto.FromECDSA(key)))
	return nil
}

func roleKey(keys config.AgentsConfig, role agent.Role) string {
	switch role {
	case agent.RoleHR:
		return keys.HRKey
	case agent.RolePayroll:
		return keys.PayrollKey
	default:
		return keys.EmployeeKey
	}
}

// runSubmit 读取员工列表并提交给运行中的 payrolld。
func runSubmit(c *cli.Context) error {
	data, err := os.ReadFile(c.String("file"))
	if err != nil {
		return fmt.Errorf("读取员工列表失败: %w", err)
	}
	// UseNumber 保留数字工号与金额的原始精度。
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var employees []payrollclient.Employee
	if err := dec.Decode(&employees); err != nil {
		return fmt.Errorf("解析员工列表失败: %w", err)
	}

	client, err := payrollclient.NewClient(c.String("server"), nil)
	if err != nil {
		return err
	}
	run, err := client.RunPayroll(c.Context, employees)
	if err != nil {
		return err
	}

	failed := 0
	fmt.Fprintf(c.App.Writer, "run %s\n", run.RunID)
	for _, r := range run.Results {
		line := fmt.Sprintf("%s\t%s\t%s\t%s %s", r.ID(), r.Status, r.PaymentID, r.AmountSettled, r.Currency)
		if r.Simulated {
			line += "\t(simulated)"
		}
		if !r.Succeeded() {
			failed++
			line += "\t" + r.Error
		}
		fmt.Fprintln(c.App.Writer, line)
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d/%d 笔发薪失败", failed, len(run.Results)), 2)
	}
	return nil
}
