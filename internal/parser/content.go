package parser

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/tidwall/gjson"
)

// truncate trims s to maxLen bytes, appending an ellipsis when
// anything was cut.
func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// ParseTimestamp parses the timestamp formats found in session
// logs: RFC3339 (with or without sub-second precision) and Unix
// epoch milliseconds. Returns the zero time on failure.
func ParseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}

// timestampFromResult accepts either a string timestamp or a
// numeric epoch-milliseconds value.
func timestampFromResult(v gjson.Result) time.Time {
	switch v.Type {
	case gjson.String:
		return ParseTimestamp(v.Str)
	case gjson.Number:
		ms := v.Int()
		if ms <= 0 {
			return time.Time{}
		}
		return time.UnixMilli(ms).UTC()
	default:
		return time.Time{}
	}
}

// canonicalToolNames maps provider-specific tool names to the
// canonical cross-provider vocabulary so the UI renders one tool
// shape regardless of which assistant produced the call.
var canonicalToolNames = map[string]string{
	"apply_patch":          "Edit",
	"edit_file":            "Edit",
	"str_replace_editor":   "Edit",
	"read_file":            "Read",
	"open_file":            "Read",
	"write_file":           "Write",
	"create_file":          "Write",
	"exec_command":         "Bash",
	"shell":                "Bash",
	"shell_command":        "Bash",
	"run_terminal_command": "Bash",
	"run_terminal_cmd":     "Bash",
	"grep_search":          "Grep",
	"codebase_search":      "Grep",
	"file_search":          "Glob",
	"list_dir":             "Glob",
	"web_search":           "WebSearch",
	"fetch_url":            "WebFetch",
}

// CanonicalToolName maps a provider-specific tool name to the
// canonical name, passing through names that are already canonical.
func CanonicalToolName(name string) string {
	if canonical, ok := canonicalToolNames[name]; ok {
		return canonical
	}
	return name
}

// bashLabel derives a short display label from a recorded shell
// command: the base name of the invoked program. Falls back to the
// first whitespace field when the command does not tokenize.
func bashLabel(command string) string {
	command = strings.TrimSpace(command)
	if command == "" {
		return ""
	}
	argv, err := shlex.Split(command)
	if err != nil || len(argv) == 0 {
		argv = strings.Fields(command)
	}
	if len(argv) == 0 {
		return ""
	}
	return filepath.Base(argv[0])
}

// formatToolHeader renders the compact "[Label: detail]" header
// used as display content for tool-call messages.
func formatToolHeader(label, detail string) string {
	label = sanitizeToolLabel(label)
	if label == "" {
		label = "Tool"
	}
	detail = sanitizeToolLabel(detail)
	if detail != "" {
		return fmt.Sprintf("[%s: %s]", label, detail)
	}
	return fmt.Sprintf("[%s]", label)
}

func sanitizeToolLabel(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "]", ")")
	return strings.Join(strings.Fields(s), " ")
}

// toolCallContent builds display content for a tool invocation from
// its canonical name and raw input JSON.
func toolCallContent(name, inputJSON string) string {
	input := gjson.Parse(inputJSON)
	switch name {
	case "Read", "Edit", "Write":
		path := input.Get("file_path").Str
		if path == "" {
			path = input.Get("path").Str
		}
		return formatToolHeader(name, path)
	case "Bash":
		cmd := input.Get("command").Str
		if cmd == "" {
			cmd = input.Get("cmd").Str
		}
		header := formatToolHeader(name, bashLabel(cmd))
		if cmd != "" {
			return header + "\n$ " + cmd
		}
		return header
	case "Grep":
		return formatToolHeader(name, input.Get("pattern").Str)
	case "Glob":
		pattern := input.Get("pattern").Str
		if path := input.Get("path").Str; pattern != "" && path != "" {
			return formatToolHeader(name,
				fmt.Sprintf("%s in %s", pattern, path))
		}
		return formatToolHeader(name, pattern)
	case "Task":
		desc := input.Get("description").Str
		agent := input.Get("subagent_type").Str
		if desc != "" && agent != "" {
			return formatToolHeader(name,
				fmt.Sprintf("%s (%s)", desc, agent))
		}
		return formatToolHeader(name, firstNonEmpty(desc, agent))
	default:
		return formatToolHeader(name, "")
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

// toolResultText flattens a tool_result content value (string or
// block array) into plain text.
func toolResultText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.Str
	}
	if content.IsArray() {
		var parts []string
		content.ForEach(func(_, block gjson.Result) bool {
			if t := block.Get("text").Str; t != "" {
				parts = append(parts, t)
			}
			return true
		})
		return strings.Join(parts, "\n")
	}
	return ""
}

// linkToolResult attaches result text to the most recent message
// carrying the matching tool-use ID. Returns false when no call
// with that ID exists.
func linkToolResult(messages []Message, toolUseID, result string) bool {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].ToolUseID == toolUseID && messages[i].ToolName != "" {
			messages[i].ToolResult = result
			return true
		}
	}
	return false
}
