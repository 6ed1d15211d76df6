package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/clawbox/internal/providers"
)

// Dispatch error kinds.
const (
	KindUnknownTool  = "unknown-tool"
	KindBadArguments = "bad-arguments"
)

// Tool is the interface all tools must implement.
// Parameters returns the JSON-schema parameter shape advertised to the LLM;
// the registry validates arguments against it before Execute runs, so tools
// can trust required fields are present with the declared types.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// Registry maps tool names to handlers and owns argument validation.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Re-registering a name replaces the handler but
// keeps its original position in the advertised order.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns registered tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// ProviderDefs converts registered tools to the schema list sent to the LLM.
func (r *Registry) ProviderDefs() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]providers.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Dispatch looks up the tool, validates the arguments against its declared
// schema, executes it, and stamps the originating call id onto the result.
// Every dispatch emits exactly one structured log record, success or failure.
func (r *Registry) Dispatch(ctx context.Context, call providers.ToolCall) *Result {
	start := time.Now()

	tool, ok := r.Get(call.Name)

	var result *Result
	switch {
	case !ok:
		result = KindedError(KindUnknownTool, fmt.Sprintf("unknown tool: %s", call.Name))
	default:
		if field, reason := validateArgs(tool.Parameters(), call.Arguments); reason != "" {
			result = KindedError(KindBadArguments, fmt.Sprintf("invalid arguments: %s: %s", field, reason))
		} else {
			result = tool.Execute(ctx, call.Arguments)
		}
	}
	result.ToolCallID = call.ID

	// Arguments are not logged wholesale: web_fetch args can carry request
	// headers and bodies. The shell argv is logged via result.Argv.
	attrs := []any{
		"conversation_id", ConversationIDFromCtx(ctx),
		"tool", call.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"is_error", result.IsError,
	}
	if result.ContainerID != "" {
		attrs = append(attrs, "container_id", result.ContainerID)
	}
	if len(result.Argv) > 0 {
		attrs = append(attrs, "argv", result.Argv)
	}
	if result.ExitCode != nil {
		attrs = append(attrs, "exit_code", *result.ExitCode)
	}
	if result.Truncated {
		attrs = append(attrs, "truncated", true)
	}
	if result.Kind != "" {
		attrs = append(attrs, "error_kind", result.Kind)
	}
	if result.IsError {
		slog.Warn("tool dispatch", attrs...)
	} else {
		slog.Info("tool dispatch", attrs...)
	}

	return result
}

// validateArgs checks an argument map against a JSON-schema-shaped parameter
// declaration. It covers what the advertised schemas actually use: top-level
// required, per-property type (string/number/boolean) and enum. Returns the
// offending field and a reason, or "" when the arguments pass.
func validateArgs(schema, args map[string]interface{}) (field, reason string) {
	props, _ := schema["properties"].(map[string]interface{})

	if required, ok := schema["required"].([]interface{}); ok {
		for _, rf := range required {
			name, _ := rf.(string)
			if _, present := args[name]; !present {
				return name, "required field missing"
			}
		}
	}
	if required, ok := schema["required"].([]string); ok {
		for _, name := range required {
			if _, present := args[name]; !present {
				return name, "required field missing"
			}
		}
	}

	// Deterministic order for error messages.
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		decl, ok := props[name].(map[string]interface{})
		if !ok {
			return name, "unexpected field"
		}
		value := args[name]
		if typ, _ := decl["type"].(string); typ != "" {
			if !typeMatches(typ, value) {
				return name, fmt.Sprintf("expected %s", typ)
			}
		}
		if enum, ok := decl["enum"].([]interface{}); ok {
			if !enumContains(enum, value) {
				return name, fmt.Sprintf("must be one of %s", enumList(enum))
			}
		}
		if enum, ok := decl["enum"].([]string); ok {
			s, isStr := value.(string)
			if !isStr || !stringInSlice(enum, s) {
				return name, fmt.Sprintf("must be one of %v", enum)
			}
		}
	}
	return "", ""
}

func typeMatches(typ string, value interface{}) bool {
	switch typ {
	case "string":
		_, ok := value.(string)
		return ok
	case "number", "integer":
		switch value.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	}
	return true
}

func enumContains(enum []interface{}, value interface{}) bool {
	for _, e := range enum {
		if e == value {
			return true
		}
	}
	return false
}

func enumList(enum []interface{}) string {
	parts := make([]string, 0, len(enum))
	for _, e := range enum {
		parts = append(parts, fmt.Sprintf("%v", e))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func stringInSlice(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
