package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// claudeSessionBuilder accumulates per-session state while scanning
// a Claude JSONL file. A file normally holds one session, but the
// sessionId field is authoritative and a file may carry several.
type claudeSessionBuilder struct {
	session  Session
	msgs     []Message
	lastUser string
	summary  string // from an explicit summary record
}

// ParseClaudeSessions extracts session summaries from a Claude
// Code JSONL file, keyed by the embedded sessionId field.
// summaryMaxLen bounds the fallback summary derived from the last
// real user message.
func ParseClaudeSessions(
	path string, summaryMaxLen int,
) ([]Session, error) {
	lines, info, err := ReadLogLines(path)
	if err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(filepath.Base(path), ".jsonl")

	builders := make(map[string]*claudeSessionBuilder)
	var order []string
	uuidToSID := make(map[string]string)
	// Summary records reference a conversation leaf by uuid; the
	// referenced entry may appear after the record.
	pendingSummaries := make(map[string]string)

	for _, line := range lines {
		if !gjson.Valid(line) {
			continue
		}

		entryType := gjson.Get(line, "type").Str
		if entryType == "summary" {
			text := gjson.Get(line, "summary").Str
			if text == "" {
				continue
			}
			if leaf := gjson.Get(line, "leafUuid").Str; leaf != "" {
				pendingSummaries[leaf] = text
			} else if len(order) > 0 {
				builders[order[len(order)-1]].summary = text
			}
			continue
		}
		if entryType != "user" && entryType != "assistant" {
			continue
		}

		sid := gjson.Get(line, "sessionId").Str
		if sid == "" {
			sid = stem
		}
		b := builders[sid]
		if b == nil {
			b = &claudeSessionBuilder{session: Session{
				ID:       sid,
				Provider: ProviderClaude,
				FilePath: path,
			}}
			builders[sid] = b
			order = append(order, sid)
		}

		ts := ParseTimestamp(gjson.Get(line, "timestamp").Str)
		if !ts.IsZero() && ts.After(b.session.LastActivity) {
			b.session.LastActivity = ts
		}
		if b.session.CWD == "" {
			b.session.CWD = gjson.Get(line, "cwd").Str
		}

		uuid := gjson.Get(line, "uuid").Str
		if uuid != "" {
			uuidToSID[uuid] = sid
		}
		// The conversation root is the first user entry whose
		// position marker has no parent. Resumed and forked
		// sessions replay it, which is what grouping keys on.
		if entryType == "user" && uuid != "" &&
			b.session.RootMarker == "" {
			parent := gjson.Get(line, "parentUuid")
			if !parent.Exists() || parent.Type == gjson.Null {
				b.session.RootMarker = uuid
			}
		}

		// Messages accumulate per session so tool results link to
		// calls from earlier entries instead of counting as
		// orphans.
		before := len(b.msgs)
		b.msgs = claudeEntryMessages(b.msgs, entryType, line, ts)

		if entryType == "user" {
			for _, m := range b.msgs[before:] {
				if m.Role == RoleUser && m.Content != "" {
					b.lastUser = m.Content
				}
			}
		}
	}

	sessions := make([]Session, 0, len(order))
	for _, sid := range order {
		b := builders[sid]
		b.session.MessageCount = len(b.msgs)
		if b.session.MessageCount == 0 {
			continue
		}
		for leaf, text := range pendingSummaries {
			if uuidToSID[leaf] == sid {
				b.summary = text
			}
		}
		if b.summary != "" {
			b.session.Summary = b.summary
		} else {
			b.session.Summary = truncate(
				strings.ReplaceAll(b.lastUser, "\n", " "),
				summaryMaxLen,
			)
		}
		if b.session.LastActivity.IsZero() {
			b.session.LastActivity = info.ModTime()
		}
		b.session.Usage = claudeUsageBackward(lines, sid, len(builders) == 1)
		sessions = append(sessions, b.session)
	}
	return sessions, nil
}

// ParseClaudeMessages extracts the canonical message list for one
// session from a Claude JSONL file. Lines carrying a different
// sessionId are skipped; lines without one belong to the session
// the file is named after, as in ParseClaudeSessions.
func ParseClaudeMessages(
	path, sessionID string,
) ([]Message, error) {
	lines, _, err := ReadLogLines(path)
	if err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(filepath.Base(path), ".jsonl")

	var messages []Message
	for _, line := range lines {
		if !gjson.Valid(line) {
			continue
		}
		entryType := gjson.Get(line, "type").Str
		if entryType != "user" && entryType != "assistant" {
			continue
		}
		sid := gjson.Get(line, "sessionId").Str
		if sid == "" {
			sid = stem
		}
		if sessionID != "" && sid != sessionID {
			continue
		}
		ts := ParseTimestamp(gjson.Get(line, "timestamp").Str)
		messages = claudeEntryMessages(messages, entryType, line, ts)
	}

	for i := range messages {
		messages[i].Ordinal = i
	}
	return messages, nil
}

// claudeEntryMessages appends the canonical messages derived from
// one user/assistant JSONL entry. Tool results link to their
// originating call in msgs rather than producing a new message.
func claudeEntryMessages(
	msgs []Message, entryType, line string, ts time.Time,
) []Message {
	if entryType == "user" {
		if gjson.Get(line, "isMeta").Bool() ||
			gjson.Get(line, "isCompactSummary").Bool() {
			return msgs
		}
	}

	role := RoleType(entryType)
	content := gjson.Get(line, "message.content")

	if content.Type == gjson.String {
		return appendTextMessage(msgs, role, content.Str, ts)
	}
	if !content.IsArray() {
		return msgs
	}

	var textParts []string
	flushText := func() {
		if len(textParts) == 0 {
			return
		}
		msgs = appendTextMessage(
			msgs, role, strings.Join(textParts, "\n"), ts,
		)
		textParts = textParts[:0]
	}

	content.ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").Str {
		case "text":
			if t := block.Get("text").Str; t != "" {
				textParts = append(textParts, t)
			}
		case "thinking":
			flushText()
			if t := block.Get("thinking").Str; t != "" {
				msgs = append(msgs, Message{
					Role:      RoleReasoning,
					Content:   t,
					Timestamp: ts,
				})
			}
		case "tool_use":
			flushText()
			name := CanonicalToolName(block.Get("name").Str)
			if name == "" {
				return true
			}
			input := block.Get("input").Raw
			msgs = append(msgs, Message{
				Role:      RoleAssistant,
				Content:   toolCallContent(name, input),
				Timestamp: ts,
				ToolName:  name,
				ToolInput: input,
				ToolUseID: block.Get("id").Str,
			})
		case "tool_result":
			flushText()
			tuid := block.Get("tool_use_id").Str
			result := toolResultText(block.Get("content"))
			if tuid == "" {
				return true
			}
			if !linkToolResult(msgs, tuid, result) {
				// Orphaned result: surface it rather than drop it.
				msgs = append(msgs, Message{
					Role:      RoleTool,
					Content:   result,
					Timestamp: ts,
					ToolUseID: tuid,
				})
			}
		}
		return true
	})
	flushText()
	return msgs
}

// appendTextMessage appends a plain text message, dropping
// system-injected user noise and flagging assistant API-error
// echoes.
func appendTextMessage(
	msgs []Message, role RoleType, text string, ts time.Time,
) []Message {
	if strings.TrimSpace(text) == "" {
		return msgs
	}
	if role == RoleUser && isClaudeSystemMessage(text) {
		return msgs
	}
	m := Message{Role: role, Content: text, Timestamp: ts}
	if role == RoleAssistant && isAPIErrorEcho(text) {
		m.IsError = true
	}
	return append(msgs, m)
}

// claudeUsageBackward scans lines from the end and returns the
// first usage-bearing record's totals. Usage fields are cumulative,
// so the most recent record is the session total; summing would
// overcount. onlySession skips the sessionId check for
// single-session files whose entries may omit the field.
func claudeUsageBackward(
	lines []string, sessionID string, onlySession bool,
) TokenUsage {
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if !gjson.Valid(line) {
			continue
		}
		if sid := gjson.Get(line, "sessionId").Str; sid != "" &&
			sid != sessionID && !onlySession {
			continue
		}
		usage := gjson.Get(line, "message.usage")
		if !usage.Exists() {
			continue
		}
		return TokenUsage{
			InputTokens:         usage.Get("input_tokens").Int(),
			OutputTokens:        usage.Get("output_tokens").Int(),
			CacheReadTokens:     usage.Get("cache_read_input_tokens").Int(),
			CacheCreationTokens: usage.Get("cache_creation_input_tokens").Int(),
		}
	}
	return TokenUsage{}
}

// isClaudeSystemMessage reports whether user-message content
// matches a known system-injected pattern (slash-command echoes,
// environment banners, continuation prompts).
func isClaudeSystemMessage(content string) bool {
	trimmed := strings.TrimSpace(content)
	prefixes := [...]string{
		"<command-name>",
		"<command-message>",
		"<command-args>",
		"<local-command-",
		"Caveat: The messages below",
		"This session is being continued",
		"[Request interrupted",
	}
	for _, p := range prefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return strings.Contains(trimmed, "<system-reminder>")
}

// isAPIErrorEcho reports whether assistant content is an API error
// echoed into the transcript.
func isAPIErrorEcho(content string) bool {
	return strings.HasPrefix(strings.TrimSpace(content), "API Error")
}

// ReadLogLines reads a JSONL file into memory, tolerating
// oversized lines, and returns the file info for mtime fallbacks.
func ReadLogLines(path string) ([]string, os.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("stat %s: %w", path, err)
	}

	var lines []string
	lr := newLineReader(f, maxLineSize)
	for {
		line, ok := lr.next()
		if !ok {
			break
		}
		lines = append(lines, line)
	}
	return lines, info, nil
}
