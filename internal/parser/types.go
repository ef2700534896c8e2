package parser

import (
	"time"
)

// Provider identifies the AI assistant family that produced a session.
type Provider string

const (
	ProviderClaude Provider = "claude"
	ProviderCodex  Provider = "codex"
	ProviderCursor Provider = "cursor"
)

// ProviderDef describes a supported assistant family's on-disk
// layout and configuration keys.
type ProviderDef struct {
	Type        Provider
	DisplayName string // "Claude Code", "Codex", "Cursor"
	EnvVar      string // env var for dir override
	DefaultDir  string // path relative to $HOME
	FileBased   bool   // false for store-backed providers
}

// Registry lists all supported providers. Order is stable and used
// for iteration in config and watcher setup.
var Registry = []ProviderDef{
	{
		Type:        ProviderClaude,
		DisplayName: "Claude Code",
		EnvVar:      "CLAUDE_PROJECTS_DIR",
		DefaultDir:  ".claude/projects",
		FileBased:   true,
	},
	{
		Type:        ProviderCodex,
		DisplayName: "Codex",
		EnvVar:      "CODEX_SESSIONS_DIR",
		DefaultDir:  ".codex/sessions",
		FileBased:   true,
	},
	{
		Type:        ProviderCursor,
		DisplayName: "Cursor",
		EnvVar:      "CURSOR_CHATS_DIR",
		DefaultDir:  ".cursor/chats",
		FileBased:   false,
	},
}

// ProviderByName returns the ProviderDef for the given name.
func ProviderByName(name string) (ProviderDef, bool) {
	for _, def := range Registry {
		if string(def.Type) == name {
			return def, true
		}
	}
	return ProviderDef{}, false
}

// RoleType identifies the role of a message sender.
type RoleType string

const (
	RoleUser      RoleType = "user"
	RoleAssistant RoleType = "assistant"
	RoleTool      RoleType = "tool"
	RoleReasoning RoleType = "reasoning"
)

// TokenUsage holds cumulative token counts for a session. Usage
// fields in the logs are running totals, so the most recent
// usage-bearing record wins; records are never summed.
type TokenUsage struct {
	InputTokens         int64 `json:"inputTokens"`
	OutputTokens        int64 `json:"outputTokens"`
	CacheReadTokens     int64 `json:"cacheReadTokens"`
	CacheCreationTokens int64 `json:"cacheCreationTokens"`
}

// IsZero reports whether no usage was recorded.
func (u TokenUsage) IsZero() bool {
	return u == TokenUsage{}
}

// Session holds session metadata extracted from one or more log
// files or an embedded store. IDs are provider-issued and unique
// only within one provider's namespace; callers must always pair
// the ID with the provider.
type Session struct {
	ID           string     `json:"id"`
	Provider     Provider   `json:"provider"`
	Summary      string     `json:"summary"`
	MessageCount int        `json:"messageCount"`
	LastActivity time.Time  `json:"lastActivity"`
	CWD          string     `json:"cwd,omitempty"`
	Usage        TokenUsage `json:"usage,omitzero"`

	// RootMarker is the position marker of the session's first
	// user message (the entry with no parent). Sessions sharing a
	// marker are continuations of one logical conversation.
	RootMarker string `json:"-"`

	// FilePath is the log file (or store directory) the session
	// was read from.
	FilePath string `json:"-"`

	// Grouping annotations, filled by the aggregator.
	GroupSize int      `json:"groupSize,omitempty"`
	GroupIDs  []string `json:"groupIds,omitempty"`
}

// Message is the canonical cross-provider message shape. Messages
// are derived from the underlying log on every read and carry no
// global identity; Ordinal is the position in file-scan order and
// breaks timestamp ties.
type Message struct {
	Ordinal   int       `json:"-"`
	Role      RoleType  `json:"role"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`

	// Tool invocation fields, set when the message carries a
	// structured tool call.
	ToolName  string `json:"toolName,omitempty"`
	ToolInput string `json:"toolInput,omitempty"` // raw JSON
	ToolUseID string `json:"toolUseId,omitempty"`

	// ToolResult holds the linked result for a tool invocation,
	// matched by the shared call identifier. Empty when the call
	// is unlinked.
	ToolResult string `json:"toolResult,omitempty"`

	// IsError marks API-error echoes so they are excluded from
	// "last assistant message" tracking.
	IsError bool `json:"isError,omitempty"`
}
