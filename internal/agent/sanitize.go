package agent

import (
	"log/slog"
	"regexp"
	"strings"
)

// SanitizeAssistantContent cleans a model's final text before it is saved
// to the session and shown to the user. Some models leak reasoning tags or
// serialize tool calls into the content field as literal XML; neither is
// part of the answer.
func SanitizeAssistantContent(content string) string {
	if content == "" {
		return content
	}
	original := content

	content = stripGarbledToolXML(content)
	content = stripThinkingTags(content)
	content = collapseDuplicateBlocks(content)
	content = strings.TrimSpace(content)

	if content != original {
		slog.Debug("sanitized assistant content",
			"original_len", len(original),
			"cleaned_len", len(content),
		)
	}
	return content
}

// toolXMLIndicators mark content that is a tool call rendered as text.
// What surrounds the markers is argument JSON, not prose, so the whole
// message is dropped rather than patched.
var toolXMLIndicators = []string{
	"<tool_call",
	"</tool_call",
	"<function=",
	"<function_call",
	"<parameter name=",
	"</invoke>",
}

func stripGarbledToolXML(content string) string {
	lower := strings.ToLower(content)
	for _, ind := range toolXMLIndicators {
		if strings.Contains(lower, ind) {
			slog.Warn("dropped assistant text resembling a mis-serialized tool call", "len", len(content))
			return ""
		}
	}
	return content
}

// Go regexp has no backreferences, so each tag gets its own pattern.
var thinkingTagPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>.*?</think>`),
	regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
	regexp.MustCompile(`(?is)<thought>.*?</thought>`),
}

func stripThinkingTags(content string) string {
	lower := strings.ToLower(content)
	if !strings.Contains(lower, "<think") && !strings.Contains(lower, "<thought") {
		return content
	}
	result := content
	for _, pat := range thinkingTagPatterns {
		result = pat.ReplaceAllString(result, "")
	}
	return strings.TrimSpace(result)
}

// collapseDuplicateBlocks removes paragraphs that repeat the immediately
// preceding paragraph, a common failure of smaller models near the end of
// a long run.
func collapseDuplicateBlocks(content string) string {
	blocks := strings.Split(content, "\n\n")
	if len(blocks) <= 1 {
		return content
	}
	var result []string
	for _, block := range blocks {
		trimmed := strings.TrimSpace(block)
		if trimmed == "" {
			continue
		}
		if len(result) > 0 && trimmed == strings.TrimSpace(result[len(result)-1]) {
			continue
		}
		result = append(result, block)
	}
	collapsed := strings.Join(result, "\n\n")
	if collapsed != content {
		slog.Debug("collapsed duplicate blocks", "before", len(blocks), "after", len(result))
	}
	return collapsed
}
