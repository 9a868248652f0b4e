// Package llm defines the chat-completion contract used by the HR agent's
// salary assistant. Implementations speak the OpenAI-compatible wire format.
package llm

import (
	"context"
	"encoding/json"
)

// 消息角色。
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message 是对话中的一条消息。助手消息可能携带工具调用，工具消息通过
// ToolCallID 关联到对应的调用。
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall 是模型请求执行的一次函数调用，Arguments 为 JSON 文本。
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall 描述被调用的函数。
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool 声明一个可供模型调用的函数。
type Tool struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec 是函数的名称、说明与 JSON Schema 参数。
type FunctionSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ChatRequest 描述一次对话补全请求。ToolChoice 为空时由服务端决定。
type ChatRequest struct {
	Messages   []Message
	Tools      []Tool
	ToolChoice string
}

// Client 定义了调用大模型的统一接口，返回模型生成的那条助手消息。
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (Message, error)
}
