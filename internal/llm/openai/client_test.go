package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"AgentPayroll/internal/llm"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error when api key is missing")
	}
	client, err := NewClient(Config{APIKey: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.baseURL != DefaultBaseURL || client.Model() != DefaultModelName {
		t.Fatalf("unexpected defaults: %s %s", client.baseURL, client.Model())
	}
}

func TestChatSendsToolsAndDecodesToolCalls(t *testing.T) {
	var captured struct {
		Authorization string
		Path          string
		Body          map[string]any
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Authorization = r.Header.Get("Authorization")
		captured.Path = r.URL.Path
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&captured.Body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":null,"tool_calls":[
			{"id":"call_1","type":"function","function":{"name":"get_salary_info","arguments":"{\"employee_name\":\"Alice\"}"}}
		]}}]}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL + "/", Model: "m-1", Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	msg, err := client.Chat(context.Background(), llm.ChatRequest{
		Messages:   []llm.Message{{Role: llm.RoleUser, Content: "How much does Alice earn?"}},
		Tools:      []llm.Tool{{Type: "function", Function: llm.FunctionSpec{Name: "get_salary_info", Parameters: json.RawMessage(`{"type":"object"}`)}}},
		ToolChoice: "auto",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Function.Name != "get_salary_info" || msg.ToolCalls[0].ID != "call_1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if !strings.Contains(msg.ToolCalls[0].Function.Arguments, "Alice") {
		t.Fatalf("arguments not decoded: %q", msg.ToolCalls[0].Function.Arguments)
	}
	if captured.Authorization != "Bearer test" {
		t.Fatalf("authorization header missing: %q", captured.Authorization)
	}
	if captured.Path != "/chat/completions" {
		t.Fatalf("unexpected path: %s", captured.Path)
	}
	if captured.Body["model"] != "m-1" || captured.Body["tool_choice"] != "auto" {
		t.Fatalf("unexpected body: %+v", captured.Body)
	}
	if tools, ok := captured.Body["tools"].([]any); !ok || len(tools) != 1 {
		t.Fatalf("tools missing in request: %+v", captured.Body["tools"])
	}
}

func TestChatWithoutToolsOmitsToolFields(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" Alice earns 120000 USD. "}}]}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	msg, err := client.Chat(context.Background(), llm.ChatRequest{ToolChoice: "auto", Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Content != "Alice earns 120000 USD." {
		t.Fatalf("unexpected content: %q", msg.Content)
	}
	if _, ok := body["tools"]; ok {
		t.Fatalf("tools should be omitted: %+v", body)
	}
	if _, ok := body["tool_choice"]; ok {
		t.Fatalf("tool_choice should be omitted: %+v", body)
	}
}

func TestChatHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	_, err = client.Chat(context.Background(), llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected http error, got %v", err)
	}
}

func TestChatEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	if _, err := client.Chat(context.Background(), llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}}); err == nil {
		t.Fatalf("expected error for empty choices")
	}
	if _, err := client.Chat(context.Background(), llm.ChatRequest{}); err == nil {
		t.Fatalf("expected error for empty messages")
	}
}
