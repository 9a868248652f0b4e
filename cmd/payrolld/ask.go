package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"AgentPayroll/internal/llm/openai"
	"AgentPayroll/internal/llm/salary"
	"AgentPayroll/pkg/logger"
)

// runAsk 把问题交给 HR 薪资助手，模型可以调用 get_salary_info 查询薪资表。
func runAsk(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return cli.Exit("请提供问题，例如: payrolld ask \"How much does Alice earn?\"", 2)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		return errors.New("未配置 OPENROUTER_API_KEY，薪资助手不可用")
	}

	model := cfg.LLM.Model
	if c.IsSet("model") {
		model = c.String("model")
	}
	client, err := openai.NewClient(openai.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   model,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	var dir salary.Directory = salary.SampleDirectory()
	if cfg.LLM.SalaryFile != "" {
		loaded, err := salary.LoadDirectory(cfg.LLM.SalaryFile)
		if err != nil {
			return err
		}
		dir = loaded
	}

	assistant, err := salary.NewAssistant(client, dir, logger.Named("salary"))
	if err != nil {
		return err
	}
	answer, err := assistant.Ask(c.Context, question)
	if err != nil {
		return err
	}

	if c.Bool("verbose") {
		for _, r := range answer.Lookups {
			if r.Error != "" {
				fmt.Fprintf(c.App.Writer, "# lookup %s: %s\n", r.Name, r.Error)
				continue
			}
			fmt.Fprintf(c.App.Writer, "# lookup %s: %s %s\n", r.Name, r.Salary, r.Currency)
		}
	}
	fmt.Fprintln(c.App.Writer, answer.Reply)
	return nil
}
