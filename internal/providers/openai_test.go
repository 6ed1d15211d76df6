package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChat_ParsesContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		fmt.Fprint(w, `{
			"choices": [{"message": {"content": "hello"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test", "test-key", srv.URL, "test-model")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("content = %q, want %q", resp.Content, "hello")
	}
	if resp.FinishReason != "stop" {
		t.Errorf("finish reason = %q", resp.FinishReason)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestChat_ParsesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"choices": [{"message": {"content": "", "tool_calls": [
				{"id": "call_1", "type": "function",
				 "function": {"name": " shell_exec ", "arguments": "{\"command\": \"ls\"}"}}
			]}, "finish_reason": "tool_calls"}]
		}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test", "k", srv.URL, "m")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "list files"}},
	})
	if err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call_1" {
		t.Errorf("id = %q", tc.ID)
	}
	if tc.Name != "shell_exec" {
		t.Errorf("name = %q, want trimmed shell_exec", tc.Name)
	}
	if cmd, _ := tc.Arguments["command"].(string); cmd != "ls" {
		t.Errorf("arguments = %v", tc.Arguments)
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("finish reason = %q", resp.FinishReason)
	}
}

func TestChat_WireFormat(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"choices": [{"message": {"content": "ok"}, "finish_reason": "stop"}]}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test", "k", srv.URL, "default-model")
	_, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: "system", Content: "be helpful"},
			{Role: "assistant", ToolCalls: []ToolCall{
				{ID: "c1", Name: "shell_exec", Arguments: map[string]interface{}{"command": "pwd"}},
			}},
			{Role: "tool", Content: "/workspace", ToolCallID: "c1"},
		},
		Tools: []ToolDefinition{{
			Type:     "function",
			Function: ToolFunctionSchema{Name: "shell_exec", Parameters: map[string]interface{}{"type": "object"}},
		}},
		Options: map[string]interface{}{OptMaxTokens: 1024},
	})
	if err != nil {
		t.Fatalf("expected success, got: %v", err)
	}

	if captured["model"] != "default-model" {
		t.Errorf("model = %v, want provider default", captured["model"])
	}
	if captured["max_tokens"] != float64(1024) {
		t.Errorf("max_tokens = %v", captured["max_tokens"])
	}
	if captured["tool_choice"] != "auto" {
		t.Errorf("tool_choice = %v", captured["tool_choice"])
	}

	msgs, _ := captured["messages"].([]interface{})
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}

	// Assistant message with tool calls: arguments serialised as a JSON
	// string and empty content omitted.
	asst, _ := msgs[1].(map[string]interface{})
	if _, hasContent := asst["content"]; hasContent {
		t.Error("assistant tool-call message should omit empty content")
	}
	tcs, _ := asst["tool_calls"].([]interface{})
	if len(tcs) != 1 {
		t.Fatalf("assistant tool_calls = %d, want 1", len(tcs))
	}
	fn, _ := tcs[0].(map[string]interface{})["function"].(map[string]interface{})
	if args, ok := fn["arguments"].(string); !ok || args != `{"command":"pwd"}` {
		t.Errorf("arguments = %v, want JSON string", fn["arguments"])
	}

	toolMsg, _ := msgs[2].(map[string]interface{})
	if toolMsg["tool_call_id"] != "c1" {
		t.Errorf("tool_call_id = %v", toolMsg["tool_call_id"])
	}
}

func TestChat_HTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test", "k", srv.URL, "m")
	_, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error for 429")
	}
	var herr *HTTPError
	if !errors.As(err, &herr) {
		t.Fatalf("expected *HTTPError, got %T: %v", err, err)
	}
	if herr.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", herr.Status)
	}
}

func TestChat_NoRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test", "k", srv.URL, "m")
	_, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("provider called %d times, want exactly 1", calls)
	}
}
