package salary

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "AgentPayroll/internal/errors"
	"AgentPayroll/internal/llm"
	"AgentPayroll/internal/llm/openai"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// scriptedClient 依次返回预设的回复并记录每次请求。
type scriptedClient struct {
	replies  []llm.Message
	err      error
	requests []llm.ChatRequest
}

func (c *scriptedClient) Chat(_ context.Context, req llm.ChatRequest) (llm.Message, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return llm.Message{}, c.err
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply, nil
}

func toolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Type: "function", Function: llm.FunctionCall{Name: name, Arguments: args}}
}

func TestAskRunsToolThenAnswers(t *testing.T) {
	client := &scriptedClient{replies: []llm.Message{
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{toolCall("call_1", ToolName, `{"employee_name":"alice"}`)}},
		{Role: llm.RoleAssistant, Content: "Alice earns 120000 USD."},
	}}
	a, err := NewAssistant(client, nil, quietLogger())
	require.NoError(t, err)

	answer, err := a.Ask(context.Background(), "Can you check how much Alice earns?")
	require.NoError(t, err)
	assert.Equal(t, "Alice earns 120000 USD.", answer.Reply)
	require.Len(t, answer.Lookups, 1)
	assert.Equal(t, Record{Name: "Alice", Salary: "120000", Currency: "USD"}, answer.Lookups[0])

	require.Len(t, client.requests, 2)
	first := client.requests[0]
	require.Len(t, first.Tools, 1)
	assert.Equal(t, ToolName, first.Tools[0].Function.Name)
	assert.Equal(t, "auto", first.ToolChoice)

	second := client.requests[1]
	assert.Empty(t, second.Tools)
	require.Len(t, second.Messages, 3)
	assert.Equal(t, llm.RoleAssistant, second.Messages[1].Role)
	tool := second.Messages[2]
	assert.Equal(t, llm.RoleTool, tool.Role)
	assert.Equal(t, "call_1", tool.ToolCallID)
	assert.Equal(t, ToolName, tool.Name)
	assert.JSONEq(t, `{"name":"Alice","salary":"120000","currency":"USD"}`, tool.Content)
}

func TestAskWithoutToolCall(t *testing.T) {
	client := &scriptedClient{replies: []llm.Message{{Role: llm.RoleAssistant, Content: "I can only answer salary questions."}}}
	a, err := NewAssistant(client, nil, quietLogger())
	require.NoError(t, err)

	answer, err := a.Ask(context.Background(), "What's the weather?")
	require.NoError(t, err)
	assert.Equal(t, "I can only answer salary questions.", answer.Reply)
	assert.Empty(t, answer.Lookups)
	assert.Len(t, client.requests, 1)
}

func TestAskReportsUnknownEmployeesAndBadCalls(t *testing.T) {
	client := &scriptedClient{replies: []llm.Message{
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			toolCall("c1", ToolName, `{"employee_name":"Dave"}`),
			toolCall("c2", ToolName, `not json`),
			toolCall("c3", "delete_employee", `{}`),
		}},
		{Role: llm.RoleAssistant, Content: "Dave is not on payroll."},
	}}
	a, err := NewAssistant(client, nil, quietLogger())
	require.NoError(t, err)

	answer, err := a.Ask(context.Background(), "How much does Dave earn?")
	require.NoError(t, err)
	require.Len(t, answer.Lookups, 3)
	assert.Equal(t, Record{Name: "Dave", Error: "Employee not found"}, answer.Lookups[0])
	assert.Equal(t, "employee_name is required", answer.Lookups[1].Error)
	assert.Contains(t, answer.Lookups[2].Error, "delete_employee")
	assert.Len(t, client.requests[1].Messages, 5)
}

func TestAskValidationAndBackendErrors(t *testing.T) {
	a, err := NewAssistant(&scriptedClient{err: errors.New("connection refused")}, nil, quietLogger())
	require.NoError(t, err)

	_, err = a.Ask(context.Background(), "  ")
	assert.True(t, xerrors.IsValidation(err))

	_, err = a.Ask(context.Background(), "How much does Bob earn?")
	assert.True(t, xerrors.IsBackendUnavailable(err))

	_, err = NewAssistant(nil, nil, nil)
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "salaries.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"Erin","salary":"88000"},{"name":"Frank","salary":"91000","currency":"EUR"}]`), 0o600))

	d, err := LoadDirectory(path)
	require.NoError(t, err)
	r, ok := d.Lookup(context.Background(), " ERIN ")
	require.True(t, ok)
	assert.Equal(t, Record{Name: "Erin", Salary: "88000", Currency: "USD"}, r)
	r, ok = d.Lookup(context.Background(), "frank")
	require.True(t, ok)
	assert.Equal(t, "EUR", r.Currency)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"name":"Gina"}]`), 0o600))
	_, err = LoadDirectory(bad)
	assert.Error(t, err)

	_, err = LoadDirectory("")
	assert.Error(t, err)
}

// 通过 HTTP 走完整的两轮对话。
func TestAskOverChatCompletionsAPI(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		mu.Lock()
		bodies = append(bodies, body)
		round := len(bodies)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if round == 1 {
			_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":null,"tool_calls":[
				{"id":"call_9","type":"function","function":{"name":"get_salary_info","arguments":"{\"employee_name\":\"Charlie\"}"}}]}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Charlie earns 105000 USD."}}]}`))
	}))
	defer srv.Close()

	client, err := openai.NewClient(openai.Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)
	a, err := NewAssistant(client, nil, quietLogger())
	require.NoError(t, err)

	answer, err := a.Ask(context.Background(), "How much does Charlie earn?")
	require.NoError(t, err)
	assert.Equal(t, "Charlie earns 105000 USD.", answer.Reply)

	require.Len(t, bodies, 2)
	messages, ok := bodies[1]["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 3)
	toolMsg := messages[2].(map[string]any)
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call_9", toolMsg["tool_call_id"])
	assert.Contains(t, toolMsg["content"], "105000")
}
