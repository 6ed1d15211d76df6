package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/clawbox/internal/providers"
	"github.com/nextlevelbuilder/clawbox/internal/sandbox"
	"github.com/nextlevelbuilder/clawbox/internal/tools"
)

// Stop reasons for a completed run.
const (
	StopCompleted         = "completed"
	StopMaxTurns          = "max-turns"
	StopRepeatedCall      = "repeated-call"
	StopConsecutiveErrors = "consecutive-errors"
	StopLLMError          = "llm-error"
)

// Loop drives the Think → Act → Observe cycle for one request: send history
// to the LLM, dispatch any tool calls it asks for, feed the results back,
// repeat until the LLM answers in plain text or a circuit breaker trips.
type Loop struct {
	provider providers.Provider
	tools    *tools.Registry
	model    string
	tracer   trace.Tracer

	maxTurns             int
	maxRepeated          int
	maxConsecutiveErrors int
}

// LoopConfig configures a new Loop. Zero limits fall back to the defaults
// (10 turns, 2 repeated turns, 3 consecutive errors).
type LoopConfig struct {
	Provider providers.Provider
	Tools    *tools.Registry
	Model    string

	MaxTurns             int
	MaxRepeated          int
	MaxConsecutiveErrors int
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 10
	}
	if cfg.MaxRepeated <= 0 {
		cfg.MaxRepeated = 2
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = 3
	}
	return &Loop{
		provider:             cfg.Provider,
		tools:                cfg.Tools,
		model:                cfg.Model,
		tracer:               otel.Tracer("clawbox/agent"),
		maxTurns:             cfg.MaxTurns,
		maxRepeated:          cfg.MaxRepeated,
		maxConsecutiveErrors: cfg.MaxConsecutiveErrors,
	}
}

// RunRequest is the input for one pass through the loop. Messages is the
// complete list sent on the first turn: system prompt, prior history, and
// the new user message.
type RunRequest struct {
	ConversationID string
	Messages       []providers.Message
}

// RunResult is the terminal output of a run. NewMessages holds only the
// messages safe to persist: assistant turns whose tool calls were all
// answered. A turn cut short by a breaker is recorded in Trace but not in
// NewMessages, so the next request never sends dangling tool calls.
type RunResult struct {
	FinalText   string
	StopReason  string
	Turns       int
	Trace       []TurnTrace
	NewMessages []providers.Message
	Usage       providers.Usage

	// Err carries the underlying error when StopReason is llm-error:
	// the provider failure, or the sandbox fault that demoted the request.
	Err error
}

// Run executes the loop until termination. It always returns a result;
// failures are expressed as stop reasons so the caller gets the partial
// trace either way.
func (l *Loop) Run(ctx context.Context, req RunRequest) *RunResult {
	ctx = tools.WithConversationID(ctx, req.ConversationID)

	ctx, span := l.tracer.Start(ctx, "agent.run",
		trace.WithAttributes(attribute.String("conversation_id", req.ConversationID)))
	defer span.End()

	res := l.run(ctx, req)

	span.SetAttributes(
		attribute.String("stop_reason", res.StopReason),
		attribute.Int("turns", res.Turns),
	)
	if res.StopReason == StopLLMError {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "llm call failed")
	}
	return res
}

func (l *Loop) run(ctx context.Context, req RunRequest) *RunResult {
	messages := make([]providers.Message, len(req.Messages))
	copy(messages, req.Messages)

	res := &RunResult{}
	toolDefs := l.tools.ProviderDefs()

	// streak maps a call signature to the number of consecutive turns,
	// ending at the last completed turn, in which it appeared.
	streak := map[string]int{}
	consecutiveErrors := 0

	for res.Turns < l.maxTurns {
		res.Turns++

		slog.Debug("agent turn", "conversation_id", req.ConversationID, "turn", res.Turns, "messages", len(messages))

		resp, err := l.chat(ctx, messages, toolDefs, res.Turns)
		if err != nil {
			res.StopReason = StopLLMError
			res.Err = err
			return res
		}

		if resp.Usage != nil {
			res.Usage.PromptTokens += resp.Usage.PromptTokens
			res.Usage.CompletionTokens += resp.Usage.CompletionTokens
			res.Usage.TotalTokens += resp.Usage.TotalTokens
		}

		// No tool calls: the text is the final answer.
		if len(resp.ToolCalls) == 0 {
			text := SanitizeAssistantContent(resp.Content)
			res.FinalText = text
			res.StopReason = StopCompleted
			if text != "" {
				res.NewMessages = append(res.NewMessages, providers.Message{
					Role:    "assistant",
					Content: text,
				})
			}
			return res
		}

		assistantMsg := providers.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		messages = append(messages, assistantMsg)
		persisted := len(res.NewMessages)
		res.NewMessages = append(res.NewMessages, assistantMsg)

		tt := TurnTrace{Turn: res.Turns}
		turnSigs := map[string]bool{}

		for _, tc := range resp.ToolCalls {
			sig := CallSignature(tc.Name, tc.Arguments)

			// The duplicate itself is never dispatched.
			if streak[sig]+1 >= l.maxRepeated {
				res.StopReason = StopRepeatedCall
				res.Trace = append(res.Trace, tt)
				res.NewMessages = res.NewMessages[:persisted]
				slog.Info("repeated call breaker tripped",
					"conversation_id", req.ConversationID, "tool", tc.Name, "turn", res.Turns)
				return res
			}
			turnSigs[sig] = true

			result := l.dispatch(ctx, tc)

			toolMsg := providers.Message{
				Role:       "tool",
				Content:    result.ForLLM,
				ToolCallID: tc.ID,
			}
			messages = append(messages, toolMsg)
			res.NewMessages = append(res.NewMessages, toolMsg)

			tt.Calls = append(tt.Calls, CallTrace{
				Tool:       tc.Name,
				CallID:     tc.ID,
				Success:    !result.IsError,
				ErrorKind:  result.Kind,
				Excerpt:    excerpt(result.ForLLM),
				DurationMS: result.Duration.Milliseconds(),
			})

			// An unreachable container engine ends the request on the
			// spot; the error is not fed back to the model. The session
			// keeps its history and the next request may rebuild the
			// container.
			if result.Kind == string(sandbox.KindUnavailable) {
				res.StopReason = StopLLMError
				res.Err = result.Err
				if res.Err == nil {
					res.Err = fmt.Errorf("sandbox unavailable: %s", result.ForLLM)
				}
				res.Trace = append(res.Trace, tt)
				res.NewMessages = res.NewMessages[:persisted]
				slog.Warn("sandbox unavailable, request demoted",
					"conversation_id", req.ConversationID, "turn", res.Turns)
				return res
			}

			if result.IsError {
				consecutiveErrors++
				if consecutiveErrors >= l.maxConsecutiveErrors {
					res.StopReason = StopConsecutiveErrors
					res.Trace = append(res.Trace, tt)
					res.NewMessages = res.NewMessages[:persisted]
					slog.Info("consecutive errors breaker tripped",
						"conversation_id", req.ConversationID, "turn", res.Turns, "errors", consecutiveErrors)
					return res
				}
			} else {
				consecutiveErrors = 0
			}
		}

		res.Trace = append(res.Trace, tt)

		// Advance the streaks: signatures absent from this turn lose theirs.
		next := make(map[string]int, len(turnSigs))
		for sig := range turnSigs {
			next[sig] = streak[sig] + 1
		}
		streak = next
	}

	res.StopReason = StopMaxTurns
	return res
}

func (l *Loop) chat(ctx context.Context, messages []providers.Message, toolDefs []providers.ToolDefinition, turn int) (*providers.ChatResponse, error) {
	ctx, span := l.tracer.Start(ctx, "agent.think",
		trace.WithAttributes(attribute.Int("turn", turn)))
	defer span.End()

	resp, err := l.provider.Chat(ctx, providers.ChatRequest{
		Messages: messages,
		Tools:    toolDefs,
		Model:    l.model,
		Options: map[string]interface{}{
			providers.OptMaxTokens:   8192,
			providers.OptTemperature: 0.7,
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat failed")
		return nil, fmt.Errorf("llm call failed (turn %d): %w", turn, err)
	}
	return resp, nil
}

func (l *Loop) dispatch(ctx context.Context, tc providers.ToolCall) *tools.Result {
	argsJSON, _ := json.Marshal(tc.Arguments)
	slog.Info("tool call", "tool", tc.Name, "args_len", len(argsJSON))

	ctx, span := l.tracer.Start(ctx, "agent.tool",
		trace.WithAttributes(attribute.String("tool", tc.Name)))
	defer span.End()

	start := time.Now()
	result := l.tools.Dispatch(ctx, tc)
	if result.Duration == 0 {
		result.Duration = time.Since(start)
	}

	if result.ExitCode != nil {
		span.SetAttributes(attribute.Int("exit_code", *result.ExitCode))
	}
	if result.IsError {
		span.SetStatus(codes.Error, result.Kind)
		errMsg := result.ForLLM
		if len(errMsg) > 200 {
			errMsg = errMsg[:200] + "..."
		}
		slog.Warn("tool error", "tool", tc.Name, "error", errMsg)
	}
	return result
}
