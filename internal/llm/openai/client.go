package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"AgentPayroll/internal/llm"
)

const (
	// DefaultBaseURL 指向 OpenRouter，它兼容 OpenAI Chat Completions 协议。
	DefaultBaseURL   = "https://openrouter.ai/api/v1"
	DefaultModelName = "google/gemini-2.0-flash-001"
	defaultTimeout   = 60 * time.Second
)

// Config 描述了调用 Chat Completions API 所需的信息。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client 通过 HTTP 调用 OpenAI 兼容的大模型服务。
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient 根据配置创建客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供大模型 API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Model 返回请求使用的模型名。
func (c *Client) Model() string { return c.model }

// Chat 发送对话并返回第一条候选的助手消息。
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (llm.Message, error) {
	payload, err := c.buildPayload(req)
	if err != nil {
		return llm.Message{}, err
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return llm.Message{}, fmt.Errorf("构建大模型请求失败: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return llm.Message{}, fmt.Errorf("请求大模型失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return llm.Message{}, fmt.Errorf("大模型返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Choices []struct {
			Message llm.Message `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return llm.Message{}, fmt.Errorf("解析大模型响应失败: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return llm.Message{}, errors.New("大模型响应中没有有效的 choices")
	}

	msg := decoded.Choices[0].Message
	msg.Content = strings.TrimSpace(msg.Content)
	if msg.Role == "" {
		msg.Role = llm.RoleAssistant
	}
	if msg.Content == "" && len(msg.ToolCalls) == 0 {
		return llm.Message{}, errors.New("大模型响应内容为空")
	}
	return msg, nil
}

func (c *Client) buildPayload(req llm.ChatRequest) ([]byte, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("对话消息不能为空")
	}
	body := map[string]any{
		"model":       c.model,
		"messages":    req.Messages,
		"temperature": 0.2,
	}
	if len(req.Tools) > 0 {
		body["tools"] = req.Tools
		if req.ToolChoice != "" {
			body["tool_choice"] = req.ToolChoice
		}
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化大模型请求失败: %w", err)
	}
	return encoded, nil
}
