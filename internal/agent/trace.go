package agent

// TurnTrace records what one loop turn did: the tool calls attempted and a
// bounded summary of each result. Returned with the run result and mirrored
// into the structured logs.
type TurnTrace struct {
	Turn  int         `json:"turn"`
	Calls []CallTrace `json:"calls,omitempty"`
}

// CallTrace summarises one dispatched tool call.
type CallTrace struct {
	Tool       string `json:"tool"`
	CallID     string `json:"call_id"`
	Success    bool   `json:"success"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Excerpt    string `json:"excerpt,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

const traceExcerptMaxChars = 200

// excerpt bounds a payload to the trace excerpt limit without splitting a
// multibyte rune.
func excerpt(s string) string {
	if len(s) <= traceExcerptMaxChars {
		return s
	}
	runes := []rune(s)
	if len(runes) <= traceExcerptMaxChars {
		return s
	}
	return string(runes[:traceExcerptMaxChars]) + "..."
}
