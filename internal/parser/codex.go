package parser

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Codex JSONL record types.
const (
	codexTypeSessionMeta  = "session_meta"
	codexTypeEventMsg     = "event_msg"
	codexTypeResponseItem = "response_item"
)

// codexBuilder accumulates state while scanning a Codex rollout
// file line by line. Codex records are event-tagged: session
// metadata, user-message events, and assistant message / reasoning
// / tool-call / tool-call-result response items each carry their
// own tag.
type codexBuilder struct {
	messages  []Message
	sessionID string
	cwd       string
	model     string
	lastUser  string
	started   time.Time
	ended     time.Time

	// Rollouts re-emit earlier records after a resume; duplicate
	// (timestamp, role, content) triples are display noise.
	seen map[string]struct{}
}

func newCodexBuilder() *codexBuilder {
	return &codexBuilder{seen: make(map[string]struct{})}
}

func (b *codexBuilder) processLine(line string) {
	ts := ParseTimestamp(gjson.Get(line, "timestamp").Str)
	if !ts.IsZero() {
		if b.started.IsZero() {
			b.started = ts
		}
		b.ended = ts
	}

	payload := gjson.Get(line, "payload")

	switch gjson.Get(line, "type").Str {
	case codexTypeSessionMeta:
		b.handleSessionMeta(payload)
	case codexTypeEventMsg:
		b.handleEventMsg(payload, ts)
	case codexTypeResponseItem:
		b.handleResponseItem(payload, ts)
	}
}

func (b *codexBuilder) handleSessionMeta(payload gjson.Result) {
	if id := payload.Get("id").Str; id != "" {
		b.sessionID = id
	}
	if cwd := payload.Get("cwd").Str; cwd != "" {
		b.cwd = cwd
	}
	if model := payload.Get("model").Str; model != "" {
		b.model = model
	}
}

func (b *codexBuilder) handleEventMsg(
	payload gjson.Result, ts time.Time,
) {
	if payload.Get("type").Str != "user_message" {
		return
	}
	text := payload.Get("message").Str
	b.appendText(RoleUser, text, ts)
}

func (b *codexBuilder) handleResponseItem(
	payload gjson.Result, ts time.Time,
) {
	switch payload.Get("type").Str {
	case "message":
		role := payload.Get("role").Str
		if role != "user" && role != "assistant" {
			return
		}
		b.appendText(RoleType(role), codexContentText(payload), ts)
	case "reasoning":
		b.appendText(RoleReasoning, codexReasoningText(payload), ts)
	case "function_call":
		b.handleFunctionCall(payload, ts)
	case "function_call_output":
		callID := payload.Get("call_id").Str
		if callID == "" {
			return
		}
		output := payload.Get("output")
		result := output.Str
		if result == "" {
			result = output.Get("output").Str
		}
		linkToolResult(b.messages, callID, result)
	}
}

func (b *codexBuilder) handleFunctionCall(
	payload gjson.Result, ts time.Time,
) {
	rawName := payload.Get("name").Str
	if rawName == "" {
		return
	}
	callID := payload.Get("call_id").Str
	args := codexFunctionArgs(payload)

	if rawName == "apply_patch" {
		if b.appendPatchCalls(args, callID, ts) {
			return
		}
	}

	name := CanonicalToolName(rawName)
	input := args.Raw
	if input == "" {
		input = "{}"
	}
	b.messages = append(b.messages, Message{
		Role:      RoleAssistant,
		Content:   toolCallContent(name, input),
		Timestamp: ts,
		ToolName:  name,
		ToolInput: input,
		ToolUseID: callID,
	})
}

// appendPatchCalls translates a legacy apply_patch invocation into
// the canonical Edit tool shape (file_path plus add/remove line
// edits), one call per patched file, so patches render the same as
// native Edit calls. Returns false when no patch text was found.
func (b *codexBuilder) appendPatchCalls(
	args gjson.Result, callID string, ts time.Time,
) bool {
	patch := args.Get("patch").Str
	if patch == "" {
		patch = args.Get("input").Str
	}
	if !strings.Contains(patch, "*** ") {
		return false
	}

	edits := parsePatchEdits(patch)
	if len(edits) == 0 {
		return false
	}
	for _, e := range edits {
		input, err := json.Marshal(e)
		if err != nil {
			continue
		}
		b.messages = append(b.messages, Message{
			Role:      RoleAssistant,
			Content:   toolCallContent("Edit", string(input)),
			Timestamp: ts,
			ToolName:  "Edit",
			ToolInput: string(input),
			ToolUseID: callID,
		})
	}
	return true
}

// patchLine is one add/remove line of a translated patch.
type patchLine struct {
	Add    string `json:"add,omitempty"`
	Remove string `json:"remove,omitempty"`
}

// editToolInput is the canonical Edit tool input produced from a
// legacy patch.
type editToolInput struct {
	FilePath string      `json:"file_path"`
	Edits    []patchLine `json:"edits,omitempty"`
}

var patchFilePrefixes = []string{
	"*** Add File: ",
	"*** Update File: ",
	"*** Delete File: ",
}

// parsePatchEdits splits "*** Begin Patch" text into per-file
// add/remove line edits.
func parsePatchEdits(patch string) []editToolInput {
	var edits []editToolInput
	var current *editToolInput

	for line := range strings.SplitSeq(patch, "\n") {
		matched := false
		for _, prefix := range patchFilePrefixes {
			if !strings.HasPrefix(line, prefix) {
				continue
			}
			file := strings.TrimSpace(strings.TrimPrefix(line, prefix))
			if file != "" {
				edits = append(edits, editToolInput{FilePath: file})
				current = &edits[len(edits)-1]
			}
			matched = true
			break
		}
		if matched || current == nil || strings.HasPrefix(line, "*** ") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+"):
			current.Edits = append(current.Edits,
				patchLine{Add: line[1:]})
		case strings.HasPrefix(line, "-"):
			current.Edits = append(current.Edits,
				patchLine{Remove: line[1:]})
		}
	}
	return edits
}

// codexFunctionArgs returns the call arguments, which may arrive as
// an object or as a JSON-encoded string.
func codexFunctionArgs(payload gjson.Result) gjson.Result {
	for _, key := range []string{"arguments", "input"} {
		arg := payload.Get(key)
		if !arg.Exists() {
			continue
		}
		if arg.Type == gjson.String {
			s := strings.TrimSpace(arg.Str)
			if s != "" && gjson.Valid(s) {
				return gjson.Parse(s)
			}
			continue
		}
		if arg.IsObject() {
			return arg
		}
	}
	return gjson.Result{}
}

func (b *codexBuilder) appendText(
	role RoleType, text string, ts time.Time,
) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if role == RoleUser && isCodexSystemMessage(text) {
		return
	}

	key := fmt.Sprintf("%d|%s|%s", ts.UnixNano(), role, text)
	if _, dup := b.seen[key]; dup {
		return
	}
	b.seen[key] = struct{}{}

	if role == RoleUser {
		b.lastUser = text
	}
	b.messages = append(b.messages, Message{
		Role:      role,
		Content:   text,
		Timestamp: ts,
	})
}

// codexContentText joins the text blocks of a message response
// item's content array.
func codexContentText(payload gjson.Result) string {
	var parts []string
	payload.Get("content").ForEach(
		func(_, block gjson.Result) bool {
			switch block.Get("type").Str {
			case "input_text", "output_text", "text":
				if t := block.Get("text").Str; t != "" {
					parts = append(parts, t)
				}
			}
			return true
		},
	)
	return strings.Join(parts, "\n")
}

func codexReasoningText(payload gjson.Result) string {
	var parts []string
	collect := func(_, block gjson.Result) bool {
		if t := block.Get("text").Str; t != "" {
			parts = append(parts, t)
		}
		return true
	}
	payload.Get("summary").ForEach(collect)
	payload.Get("content").ForEach(collect)
	return strings.Join(parts, "\n")
}

func isCodexSystemMessage(content string) bool {
	return strings.HasPrefix(content, "# AGENTS.md") ||
		strings.HasPrefix(content, "<environment_context>") ||
		strings.HasPrefix(content, "<user_instructions>") ||
		strings.HasPrefix(content, "<INSTRUCTIONS>")
}

// ParseCodexSession parses a Codex rollout file into a session
// summary. Returns nil when the file holds no renderable messages.
func ParseCodexSession(
	path string, summaryMaxLen int,
) (*Session, error) {
	lines, info, err := ReadLogLines(path)
	if err != nil {
		return nil, err
	}

	b := newCodexBuilder()
	for _, line := range lines {
		if !gjson.Valid(line) {
			continue
		}
		b.processLine(line)
	}
	if len(b.messages) == 0 {
		return nil, nil
	}

	sessionID := b.sessionID
	if sessionID == "" {
		sessionID = strings.TrimSuffix(
			filepath.Base(path), ".jsonl",
		)
	}

	ended := b.ended
	if ended.IsZero() {
		ended = info.ModTime()
	}

	return &Session{
		ID:       sessionID,
		Provider: ProviderCodex,
		Summary: truncate(
			strings.ReplaceAll(b.lastUser, "\n", " "),
			summaryMaxLen,
		),
		MessageCount: len(b.messages),
		LastActivity: ended,
		CWD:          b.cwd,
		Usage:        codexUsageBackward(lines),
		FilePath:     path,
	}, nil
}

// ParseCodexMessages extracts the canonical message list from a
// Codex rollout file.
func ParseCodexMessages(path string) ([]Message, error) {
	lines, _, err := ReadLogLines(path)
	if err != nil {
		return nil, err
	}

	b := newCodexBuilder()
	for _, line := range lines {
		if !gjson.Valid(line) {
			continue
		}
		b.processLine(line)
	}
	for i := range b.messages {
		b.messages[i].Ordinal = i
	}
	return b.messages, nil
}

// codexUsageBackward scans lines from the end and returns the
// first cumulative token-usage record found.
func codexUsageBackward(lines []string) TokenUsage {
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if !gjson.Valid(line) {
			continue
		}
		usage := gjson.Get(line, "payload.info.total_token_usage")
		if !usage.Exists() {
			usage = gjson.Get(line, "payload.usage")
		}
		if !usage.Exists() {
			continue
		}
		return TokenUsage{
			InputTokens:     usage.Get("input_tokens").Int(),
			OutputTokens:    usage.Get("output_tokens").Int(),
			CacheReadTokens: usage.Get("cached_input_tokens").Int(),
		}
	}
	return TokenUsage{}
}
