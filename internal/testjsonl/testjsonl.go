// Package testjsonl provides shared JSONL fixture builders for
// Claude and Codex session test data. Used by parser and store
// test packages.
package testjsonl

import (
	"encoding/json"
	"strings"
)

// ClaudeUserJSON returns a Claude user message as a JSON string.
func ClaudeUserJSON(
	content, timestamp string, cwd ...string,
) string {
	m := map[string]any{
		"type":      "user",
		"timestamp": timestamp,
		"message": map[string]any{
			"content": content,
		},
	}
	if len(cwd) > 0 {
		m["cwd"] = cwd[0]
	}
	return mustMarshal(m)
}

// ClaudeUserEntryJSON returns a Claude user message with sessionId,
// uuid, and parentUuid fields. parentUuid may be nil to mark a
// conversation root.
func ClaudeUserEntryJSON(
	content, timestamp, sessionID, uuid string, parentUUID any,
) string {
	m := map[string]any{
		"type":       "user",
		"timestamp":  timestamp,
		"sessionId":  sessionID,
		"uuid":       uuid,
		"parentUuid": parentUUID,
		"message": map[string]any{
			"content": content,
		},
	}
	return mustMarshal(m)
}

// ClaudeMetaUserJSON returns a Claude user message with optional
// isMeta and isCompactSummary flags as a JSON string.
func ClaudeMetaUserJSON(
	content, timestamp string, meta, compact bool,
) string {
	m := map[string]any{
		"type":      "user",
		"timestamp": timestamp,
		"message": map[string]any{
			"content": content,
		},
	}
	if meta {
		m["isMeta"] = true
	}
	if compact {
		m["isCompactSummary"] = true
	}
	return mustMarshal(m)
}

// ClaudeAssistantJSON returns a Claude assistant message as a JSON
// string. content may be a plain string or a block array.
func ClaudeAssistantJSON(content any, timestamp string) string {
	m := map[string]any{
		"type":      "assistant",
		"timestamp": timestamp,
		"message": map[string]any{
			"content": content,
		},
	}
	return mustMarshal(m)
}

// ClaudeAssistantUsageJSON returns a Claude assistant message
// carrying cumulative token usage.
func ClaudeAssistantUsageJSON(
	text, timestamp string, usage map[string]any,
) string {
	m := map[string]any{
		"type":      "assistant",
		"timestamp": timestamp,
		"message": map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": text},
			},
			"usage": usage,
		},
	}
	return mustMarshal(m)
}

// ClaudeSummaryJSON returns a Claude summary record referencing a
// conversation leaf.
func ClaudeSummaryJSON(summary, leafUUID string) string {
	m := map[string]any{
		"type":    "summary",
		"summary": summary,
	}
	if leafUUID != "" {
		m["leafUuid"] = leafUUID
	}
	return mustMarshal(m)
}

// ClaudeToolUseJSON returns a Claude assistant message with one
// tool_use block.
func ClaudeToolUseJSON(
	timestamp, toolName, toolUseID string, input map[string]any,
) string {
	m := map[string]any{
		"type":      "assistant",
		"timestamp": timestamp,
		"message": map[string]any{
			"content": []map[string]any{{
				"type":  "tool_use",
				"id":    toolUseID,
				"name":  toolName,
				"input": input,
			}},
		},
	}
	return mustMarshal(m)
}

// ClaudeToolResultJSON returns a Claude user message with one
// tool_result block.
func ClaudeToolResultJSON(
	timestamp, toolUseID, result string,
) string {
	m := map[string]any{
		"type":      "user",
		"timestamp": timestamp,
		"message": map[string]any{
			"content": []map[string]any{{
				"type":        "tool_result",
				"tool_use_id": toolUseID,
				"content":     result,
			}},
		},
	}
	return mustMarshal(m)
}

// CodexSessionMetaJSON returns a Codex session_meta record as a
// JSON string.
func CodexSessionMetaJSON(id, cwd, timestamp string) string {
	m := map[string]any{
		"type":      "session_meta",
		"timestamp": timestamp,
		"payload": map[string]any{
			"id":  id,
			"cwd": cwd,
		},
	}
	return mustMarshal(m)
}

// CodexUserEventJSON returns a Codex event_msg user-message record.
func CodexUserEventJSON(message, timestamp string) string {
	m := map[string]any{
		"type":      "event_msg",
		"timestamp": timestamp,
		"payload": map[string]any{
			"type":    "user_message",
			"message": message,
		},
	}
	return mustMarshal(m)
}

// CodexMsgJSON returns a Codex message response_item as a JSON
// string.
func CodexMsgJSON(role, text, timestamp string) string {
	contentType := "output_text"
	if role == "user" {
		contentType = "input_text"
	}
	m := map[string]any{
		"type":      "response_item",
		"timestamp": timestamp,
		"payload": map[string]any{
			"type": "message",
			"role": role,
			"content": []map[string]string{
				{"type": contentType, "text": text},
			},
		},
	}
	return mustMarshal(m)
}

// CodexFunctionCallJSON returns a Codex function_call
// response_item with the given arguments payload.
func CodexFunctionCallJSON(
	name, callID string, arguments any, timestamp string,
) string {
	payload := map[string]any{
		"type":    "function_call",
		"name":    name,
		"call_id": callID,
	}
	if arguments != nil {
		payload["arguments"] = arguments
	}
	m := map[string]any{
		"type":      "response_item",
		"timestamp": timestamp,
		"payload":   payload,
	}
	return mustMarshal(m)
}

// CodexFunctionOutputJSON returns a Codex function_call_output
// response_item.
func CodexFunctionOutputJSON(
	callID, output, timestamp string,
) string {
	m := map[string]any{
		"type":      "response_item",
		"timestamp": timestamp,
		"payload": map[string]any{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  output,
		},
	}
	return mustMarshal(m)
}

// CodexTokenCountJSON returns a Codex event_msg carrying
// cumulative token usage.
func CodexTokenCountJSON(
	timestamp string, input, output, cached int64,
) string {
	m := map[string]any{
		"type":      "event_msg",
		"timestamp": timestamp,
		"payload": map[string]any{
			"type": "token_count",
			"info": map[string]any{
				"total_token_usage": map[string]any{
					"input_tokens":        input,
					"output_tokens":       output,
					"cached_input_tokens": cached,
				},
			},
		},
	}
	return mustMarshal(m)
}

// JoinJSONL joins JSON lines with newlines and appends a trailing
// newline.
func JoinJSONL(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
