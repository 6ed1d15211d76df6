// Package command validates shell commands against a fixed allowlist before
// they reach the sandbox.
//
// Validation never invokes a shell. The raw string is screened for shell
// metacharacters first (so quoting cannot smuggle them past the tokeniser),
// then split with POSIX word rules without any expansion, and the head token
// is checked against the allowlist. The sh/bash escape hatch survives only in
// its strict three-token `sh -c <script>` form, with the script re-screened
// and its first word allowlisted.
package command

import (
	"fmt"
	"sort"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
)

// Kind classifies why a command was rejected.
type Kind string

const (
	KindForbiddenPattern Kind = "forbidden-pattern"
	KindEmptyCommand     Kind = "empty-command"
	KindNotAllowed       Kind = "not-allowed"
	KindBadShellForm     Kind = "bad-shell-form"
)

// Error is a validation rejection carrying a machine-readable kind.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// allowedCommands is the fixed set of head tokens the sandbox will run.
// File inspection, text processing, traversal, and workspace-local mutation.
// sh/bash are restricted to the three-token -c form by Validate.
var allowedCommands = map[string]bool{
	"ls": true, "cat": true, "head": true, "tail": true, "wc": true,
	"file": true, "stat": true,
	"grep": true, "sed": true, "awk": true, "sort": true, "uniq": true,
	"cut": true, "tr": true,
	"find": true, "pwd": true, "echo": true,
	"mkdir": true, "touch": true, "cp": true, "mv": true, "rm": true,
	"sh": true, "bash": true,
}

// forbiddenSubstrings are rejected anywhere in the raw command string,
// before tokenisation. Pipes, chaining, redirection, substitution, and
// line breaks all defeat the single-argv execution model.
var forbiddenSubstrings = []string{
	"|", "&", ";", ">", "<", "`", "$(", "${", "\n", "\r",
}

// Validate parses a command string and returns the argv to execute, or an
// *Error describing the rejection. It is a pure function: identical input
// yields identical output.
func Validate(raw string) ([]string, error) {
	if sub := findForbidden(raw); sub != "" {
		return nil, &Error{Kind: KindForbiddenPattern, Detail: fmt.Sprintf("command contains %q", sub)}
	}

	tokens, err := splitWords(raw)
	if err != nil {
		return nil, &Error{Kind: KindForbiddenPattern, Detail: "unparseable quoting: " + err.Error()}
	}
	if len(tokens) == 0 {
		return nil, &Error{Kind: KindEmptyCommand, Detail: "command is empty"}
	}

	head := tokens[0]
	if !allowedCommands[head] {
		return nil, &Error{Kind: KindNotAllowed, Detail: fmt.Sprintf("command %q is not allowed", head)}
	}

	if head == "sh" || head == "bash" {
		return validateShellForm(head, tokens)
	}

	// -c is reserved for the sh/bash form. Allowing it elsewhere reopens
	// subshell escapes like `find . -exec sh -c <script> +`.
	for _, tok := range tokens[1:] {
		if tok == "-c" {
			return nil, &Error{Kind: KindForbiddenPattern, Detail: fmt.Sprintf("argument -c is not permitted with %q", head)}
		}
	}

	return tokens, nil
}

// validateShellForm enforces the strict `sh -c <script>` calling convention:
// exactly three tokens, a metacharacter-free script, and an allowlisted first
// word inside the script. -c may not reappear inside the script.
func validateShellForm(head string, tokens []string) ([]string, error) {
	if len(tokens) != 3 || tokens[1] != "-c" {
		return nil, &Error{Kind: KindBadShellForm, Detail: fmt.Sprintf("%s is only permitted as: %s -c <script>", head, head)}
	}

	script := tokens[2]
	if sub := findForbidden(script); sub != "" {
		return nil, &Error{Kind: KindForbiddenPattern, Detail: fmt.Sprintf("script contains %q", sub)}
	}

	inner, err := splitWords(script)
	if err != nil {
		return nil, &Error{Kind: KindForbiddenPattern, Detail: "unparseable script quoting: " + err.Error()}
	}
	if len(inner) == 0 {
		return nil, &Error{Kind: KindBadShellForm, Detail: "script is empty"}
	}
	if !allowedCommands[inner[0]] {
		return nil, &Error{Kind: KindNotAllowed, Detail: fmt.Sprintf("command %q is not allowed", inner[0])}
	}
	for _, tok := range inner[1:] {
		if tok == "-c" {
			return nil, &Error{Kind: KindForbiddenPattern, Detail: "argument -c is not permitted inside a script"}
		}
	}

	return tokens, nil
}

func findForbidden(s string) string {
	for _, sub := range forbiddenSubstrings {
		if strings.Contains(s, sub) {
			return sub
		}
	}
	return ""
}

// splitWords tokenises with POSIX quoting rules and no expansion: single
// quotes are literal, double quotes honour backslash escapes, variables and
// backticks stay inert.
func splitWords(s string) ([]string, error) {
	p := shellwords.NewParser()
	p.ParseEnv = false
	p.ParseBacktick = false
	return p.Parse(s)
}

// Allowed returns the allowlisted command names, sorted, for display in
// prompts and diagnostics. The stable order keeps the system prompt
// identical across requests.
func Allowed() []string {
	names := make([]string, 0, len(allowedCommands))
	for name := range allowedCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
