package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"AgentPayroll/internal/config"
	"AgentPayroll/pkg/logger"
)

// main 是 payrolld 的入口。
func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("payrolld 运行失败", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "payrolld",
		Usage: "Multi-agent payroll service with simulated fallback",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   filepath.Join("configs", "payroll.json"),
				Usage:   "Path to the JSON configuration file",
				EnvVars: []string{"PAYROLL_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Log level (debug, info, warn, error); overrides the config file",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the payroll HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "HTTP listen address, e.g. :3000",
					},
				},
				Action: runServe,
			},
			{
				Name:  "balance",
				Usage: "Print the balance of an agent account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "role", Value: "payroll", Usage: "Agent role (hr, payroll, employee)"},
					&cli.StringFlag{Name: "currency", Usage: "Token symbol; empty means the native coin"},
					&cli.StringFlag{Name: "chain", Usage: "Chain name from the chain config"},
				},
				Action: runBalance,
			},
			{
				Name:  "run",
				Usage: "Submit a payroll batch to a running payrolld",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "server", Value: "http://localhost:3000", Usage: "payrolld base URL", EnvVars: []string{"PAYROLL_SERVER"}},
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Required: true, Usage: "JSON file with an array of employees"},
				},
				Action: runSubmit,
			},
			{
				Name:      "ask",
				Usage:     "Ask the HR salary assistant a question",
				ArgsUsage: "<question>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "model", Usage: "Override the chat model", EnvVars: []string{"LLM_MODEL"}},
					&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Print the salary lookups made by the model"},
				},
				Action: runAsk,
			},
			{
				Name:  "keygen",
				Usage: "Generate a secp256k1 key for an agent role",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "role", Value: "payroll", Usage: "Agent role (hr, payroll, employee)"},
				},
				Action: runKeygen,
			},
		},
		Action: runServe,
	}
}

// loadConfig 读取配置并初始化日志。默认路径不存在时使用内置默认值。
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if !c.IsSet("config") {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level := c.String("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}
