package tools

import "time"

// Result is the unified return type from tool execution.
//
// ForLLM always holds the text fed back to the model, success or not.
// Kind carries the machine-readable error kind when IsError is set.
// The exec fields are metadata for the per-dispatch log record and the
// run trace; only shell_exec populates them.
type Result struct {
	ForLLM     string `json:"for_llm"`
	IsError    bool   `json:"is_error"`
	Kind       string `json:"kind,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	Err        error  `json:"-"`

	ExitCode    *int          `json:"exit_code,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Truncated   bool          `json:"truncated,omitempty"`
	TimedOut    bool          `json:"timed_out,omitempty"`
	Argv        []string      `json:"argv,omitempty"`
	ContainerID string        `json:"container_id,omitempty"`
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

// KindedError tags an error result with its kind so breakers and logs
// can tell validation failures, sandbox faults and fetch refusals apart.
func KindedError(kind, message string) *Result {
	return &Result{ForLLM: message, IsError: true, Kind: kind}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}
