package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/clawbox/internal/providers"
)

// fakeTool is a scriptable tool for registry tests.
type fakeTool struct {
	name   string
	params map[string]interface{}
	run    func(ctx context.Context, args map[string]interface{}) *Result
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake tool for tests" }
func (f *fakeTool) Parameters() map[string]interface{} {
	if f.params != nil {
		return f.params
	}
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (f *fakeTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if f.run != nil {
		return f.run(ctx, args)
	}
	return NewResult("ok")
}

func echoSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"text": map[string]interface{}{"type": "string"},
			"mode": map[string]interface{}{
				"type": "string",
				"enum": []string{"plain", "loud"},
			},
			"count": map[string]interface{}{"type": "number"},
		},
		"required": []string{"text"},
	}
}

func TestDispatch_Success(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeTool{
		name:   "echo",
		params: echoSchema(),
		run: func(_ context.Context, args map[string]interface{}) *Result {
			return NewResult(args["text"].(string))
		},
	})

	res := reg.Dispatch(context.Background(), providers.ToolCall{
		ID:        "call_42",
		Name:      "echo",
		Arguments: map[string]interface{}{"text": "hello"},
	})
	if res.IsError {
		t.Fatalf("expected success, got error: %s", res.ForLLM)
	}
	if res.ForLLM != "hello" {
		t.Errorf("payload = %q", res.ForLLM)
	}
	if res.ToolCallID != "call_42" {
		t.Errorf("tool call id = %q, want call_42", res.ToolCallID)
	}
}

func TestDispatch_UnknownTool(t *testing.T) {
	reg := NewRegistry()

	res := reg.Dispatch(context.Background(), providers.ToolCall{
		ID:        "c1",
		Name:      "launch_missiles",
		Arguments: map[string]interface{}{},
	})
	if !res.IsError {
		t.Fatal("expected error for unregistered tool")
	}
	if res.Kind != KindUnknownTool {
		t.Errorf("kind = %q, want %q", res.Kind, KindUnknownTool)
	}
	if res.ToolCallID != "c1" {
		t.Errorf("tool call id = %q", res.ToolCallID)
	}
}

func TestDispatch_BadArguments(t *testing.T) {
	reg := NewRegistry()
	executed := false
	reg.Register(&fakeTool{
		name:   "echo",
		params: echoSchema(),
		run: func(_ context.Context, _ map[string]interface{}) *Result {
			executed = true
			return NewResult("should not run")
		},
	})

	tests := []struct {
		name string
		args map[string]interface{}
		want string // substring of the message naming field and reason
	}{
		{"missing required", map[string]interface{}{}, "text: required field missing"},
		{"wrong type", map[string]interface{}{"text": 42}, "text: expected string"},
		{"bad enum", map[string]interface{}{"text": "x", "mode": "shout"}, "mode: must be one of"},
		{"unexpected field", map[string]interface{}{"text": "x", "volume": 11}, "volume: unexpected field"},
		{"wrong number type", map[string]interface{}{"text": "x", "count": "three"}, "count: expected number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := reg.Dispatch(context.Background(), providers.ToolCall{
				ID: "c1", Name: "echo", Arguments: tt.args,
			})
			if !res.IsError {
				t.Fatalf("expected error for args %v", tt.args)
			}
			if res.Kind != KindBadArguments {
				t.Errorf("kind = %q, want %q", res.Kind, KindBadArguments)
			}
			if !strings.Contains(res.ForLLM, tt.want) {
				t.Errorf("message %q does not contain %q", res.ForLLM, tt.want)
			}
		})
	}
	if executed {
		t.Error("tool ran despite failed validation")
	}
}

func TestProviderDefs_RegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeTool{name: "shell_exec"})
	reg.Register(&fakeTool{name: "web_fetch"})

	defs := reg.ProviderDefs()
	if len(defs) != 2 {
		t.Fatalf("defs = %d, want 2", len(defs))
	}
	if defs[0].Function.Name != "shell_exec" || defs[1].Function.Name != "web_fetch" {
		t.Errorf("order = [%s, %s]", defs[0].Function.Name, defs[1].Function.Name)
	}
	for _, d := range defs {
		if d.Type != "function" {
			t.Errorf("type = %q, want function", d.Type)
		}
	}
}

func TestValidateArgs_AllowsOptionalAbsent(t *testing.T) {
	field, reason := validateArgs(echoSchema(), map[string]interface{}{"text": "hi"})
	if reason != "" {
		t.Errorf("unexpected rejection: %s: %s", field, reason)
	}
}

func TestConversationIDRoundTrip(t *testing.T) {
	ctx := WithConversationID(context.Background(), "cli-9f2c41aa")
	if got := ConversationIDFromCtx(ctx); got != "cli-9f2c41aa" {
		t.Errorf("conversation id = %q", got)
	}
	if got := ConversationIDFromCtx(context.Background()); got != "" {
		t.Errorf("empty context should yield empty id, got %q", got)
	}
}
