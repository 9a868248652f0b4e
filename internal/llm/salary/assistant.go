// Package salary lets the HR agent answer salary questions in natural
// language: the model may call get_salary_info, the result is looked up in a
// salary directory and sent back for a final answer.
package salary

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	xerrors "AgentPayroll/internal/errors"
	"AgentPayroll/internal/llm"
)

// ToolName 是暴露给模型的查询函数名。
const ToolName = "get_salary_info"

var toolParameters = json.RawMessage(`{
  "type": "object",
  "properties": {
    "employee_name": {"type": "string", "description": "The name of the employee"}
  },
  "required": ["employee_name"]
}`)

// Tool 返回 get_salary_info 的函数声明。
func Tool() llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.FunctionSpec{
			Name:        ToolName,
			Description: "Get salary information for a specific employee",
			Parameters:  toolParameters,
		},
	}
}

// Answer 是一次提问的结果，Lookups 按调用顺序记录工具查询。
type Answer struct {
	Reply   string   `json:"reply"`
	Lookups []Record `json:"lookups,omitempty"`
}

// Assistant 组合大模型与薪资表。
type Assistant struct {
	client llm.Client
	dir    Directory
	log    *slog.Logger
}

// NewAssistant 创建薪资助手，dir 为空时使用演示薪资表。
func NewAssistant(client llm.Client, dir Directory, log *slog.Logger) (*Assistant, error) {
	if client == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "大模型客户端不能为空")
	}
	if dir == nil {
		dir = SampleDirectory()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Assistant{client: client, dir: dir, log: log}, nil
}

// Ask 回答一个薪资问题。模型没有请求工具时直接返回它的回复；否则执行
// 所有工具调用，再请求一次最终回复。
func (a *Assistant) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, xerrors.Validation("question must not be empty")
	}

	messages := []llm.Message{{Role: llm.RoleUser, Content: question}}
	first, err := a.client.Chat(ctx, llm.ChatRequest{
		Messages:   messages,
		Tools:      []llm.Tool{Tool()},
		ToolChoice: "auto",
	})
	if err != nil {
		return Answer{}, xerrors.Wrap(xerrors.CodeBackendUnavailable, err, "salary assistant request failed")
	}
	if len(first.ToolCalls) == 0 {
		return Answer{Reply: first.Content}, nil
	}

	var answer Answer
	messages = append(messages, first)
	for _, call := range first.ToolCalls {
		record := a.execute(ctx, call)
		answer.Lookups = append(answer.Lookups, record)

		content, err := json.Marshal(record)
		if err != nil {
			return Answer{}, fmt.Errorf("编码工具结果失败: %w", err)
		}
		messages = append(messages, llm.Message{
			Role:       llm.RoleTool,
			Name:       call.Function.Name,
			ToolCallID: call.ID,
			Content:    string(content),
		})
	}

	final, err := a.client.Chat(ctx, llm.ChatRequest{Messages: messages})
	if err != nil {
		return Answer{}, xerrors.Wrap(xerrors.CodeBackendUnavailable, err, "salary assistant request failed")
	}
	answer.Reply = final.Content
	return answer, nil
}

// execute 运行一次工具调用。未知函数与错误参数作为工具结果返回给模型，
// 不中断对话。
func (a *Assistant) execute(ctx context.Context, call llm.ToolCall) Record {
	if call.Function.Name != ToolName {
		a.log.Warn("模型请求了未知工具", slog.String("tool", call.Function.Name))
		return Record{Error: "Unknown tool: " + call.Function.Name}
	}
	var args struct {
		EmployeeName string `json:"employee_name"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil || strings.TrimSpace(args.EmployeeName) == "" {
		return Record{Error: "employee_name is required"}
	}

	record, ok := a.dir.Lookup(ctx, args.EmployeeName)
	a.log.Info("薪资查询", slog.String("employee", args.EmployeeName), slog.Bool("found", ok))
	if !ok {
		return Record{Name: args.EmployeeName, Error: "Employee not found"}
	}
	return record
}
