package agent

import (
	"strings"
	"testing"
)

func TestSanitize_CleanTextUnchanged(t *testing.T) {
	in := "The workspace holds two files.\n\nBoth are under 1 KB."
	if got := SanitizeAssistantContent(in); got != in {
		t.Errorf("clean text altered: %q", got)
	}
}

func TestSanitize_EmptyStaysEmpty(t *testing.T) {
	if got := SanitizeAssistantContent(""); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestSanitize_StripsThinkingTags(t *testing.T) {
	in := "<think>\nThe user wants a count, wc is enough.\n</think>\nThere are 42 lines."
	if got := SanitizeAssistantContent(in); got != "There are 42 lines." {
		t.Errorf("thinking tag survived: %q", got)
	}
}

func TestSanitize_StripsThinkingTagsCaseInsensitive(t *testing.T) {
	in := "<Thinking>plan</Thinking>Done. <thought>aside</thought>"
	got := SanitizeAssistantContent(in)
	if strings.Contains(got, "plan") || strings.Contains(got, "aside") {
		t.Errorf("reasoning leaked: %q", got)
	}
	if !strings.Contains(got, "Done.") {
		t.Errorf("answer lost: %q", got)
	}
}

func TestSanitize_DropsGarbledToolCall(t *testing.T) {
	cases := []string{
		`<tool_call>{"name": "shell_exec", "arguments": {"command": "ls"}}</tool_call>`,
		`<function=shell_exec>{"command": "ls -la"}</function>`,
		`Here: <function_call name="web_fetch">`,
		`<parameter name="url">https://example.com</parameter>`,
	}
	for _, in := range cases {
		if got := SanitizeAssistantContent(in); got != "" {
			t.Errorf("garbled tool call kept for %q: %q", in, got)
		}
	}
}

func TestSanitize_CollapsesDuplicateBlocks(t *testing.T) {
	in := "The file was created.\n\nThe file was created.\n\nAnything else?"
	want := "The file was created.\n\nAnything else?"
	if got := SanitizeAssistantContent(in); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSanitize_KeepsNonAdjacentRepeats(t *testing.T) {
	in := "Yes.\n\nChecking now.\n\nYes."
	if got := SanitizeAssistantContent(in); got != in {
		t.Errorf("non-adjacent repeat collapsed: %q", got)
	}
}

func TestSanitize_TrimsSurroundingWhitespace(t *testing.T) {
	in := "\n\n  \nThe answer is 4.\n\n"
	if got := SanitizeAssistantContent(in); got != "The answer is 4." {
		t.Errorf("got %q", got)
	}
}
