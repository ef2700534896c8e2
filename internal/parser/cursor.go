package parser

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tidwall/gjson"

	"github.com/sessionhub/sessionhub/internal/pathutil"
)

// CursorProjectHash returns the identifier Cursor derives from a
// project's working directory: the MD5 hex digest of the
// normalized absolute path. Session stores for the project live
// under <chatsDir>/<hash>/<sessionID>/store.db.
func CursorProjectHash(projectPath string) string {
	normalized := pathutil.Normalize(projectPath)
	if normalized == "" {
		return ""
	}
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// ParseCursorSessions reads every session store under the
// project's hash directory.
func ParseCursorSessions(
	chatsDir, projectPath string, summaryMaxLen int,
) ([]Session, error) {
	hash := CursorProjectHash(projectPath)
	if hash == "" {
		return nil, nil
	}
	hashDir := filepath.Join(chatsDir, hash)
	entries, err := os.ReadDir(hashDir)
	if err != nil {
		// A project with no Cursor history is not an error.
		return nil, nil
	}

	var sessions []Session
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		storePath := filepath.Join(hashDir, entry.Name(), "store.db")
		sess, err := parseCursorStore(
			storePath, entry.Name(), summaryMaxLen,
		)
		if err != nil {
			// One corrupt store must not hide the others.
			continue
		}
		if sess != nil {
			sess.CWD = projectPath
			sessions = append(sessions, *sess)
		}
	}
	return sessions, nil
}

// FindCursorSessionDir locates the session directory for a Cursor
// session ID by searching every project hash directory.
func FindCursorSessionDir(chatsDir, sessionID string) string {
	if sessionID == "" || !IsValidSessionID(sessionID) {
		return ""
	}
	hashDirs, err := os.ReadDir(chatsDir)
	if err != nil {
		return ""
	}
	for _, hd := range hashDirs {
		if !hd.IsDir() {
			continue
		}
		candidate := filepath.Join(chatsDir, hd.Name(), sessionID)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}
	return ""
}

// ParseCursorMessages extracts the canonical message list for a
// Cursor session.
func ParseCursorMessages(
	chatsDir, sessionID string,
) ([]Message, error) {
	dir := FindCursorSessionDir(chatsDir, sessionID)
	if dir == "" {
		return nil, nil
	}
	blobs, _, err := readCursorStore(filepath.Join(dir, "store.db"))
	if err != nil {
		return nil, err
	}
	messages := cursorBlobMessages(blobs)
	for i := range messages {
		messages[i].Ordinal = i
	}
	return messages, nil
}

// cursorBlob is one row of the blobs table with its decoded JSON.
type cursorBlob struct {
	rowid int64
	raw   string
}

// parseCursorStore reads one store.db into a session summary.
func parseCursorStore(
	storePath, sessionID string, summaryMaxLen int,
) (*Session, error) {
	blobs, meta, err := readCursorStore(storePath)
	if err != nil {
		return nil, err
	}

	messages := cursorBlobMessages(blobs)
	if len(messages) == 0 {
		return nil, nil
	}

	summary := meta["title"]
	if summary == "" {
		summary = meta["name"]
	}
	var lastUser string
	var lastActivity time.Time
	for _, m := range messages {
		if m.Role == RoleUser && m.Content != "" {
			lastUser = m.Content
		}
		if m.Timestamp.After(lastActivity) {
			lastActivity = m.Timestamp
		}
	}
	if summary == "" {
		summary = truncate(
			strings.ReplaceAll(lastUser, "\n", " "), summaryMaxLen,
		)
	}

	if lastActivity.IsZero() {
		lastActivity = cursorCreatedAt(meta, storePath)
	}

	return &Session{
		ID:           sessionID,
		Provider:     ProviderCursor,
		Summary:      summary,
		MessageCount: len(messages),
		LastActivity: lastActivity,
		FilePath:     filepath.Dir(storePath),
	}, nil
}

// cursorCreatedAt resolves a session's creation time: store
// metadata first, then the store file's mtime, then now.
func cursorCreatedAt(meta map[string]string, storePath string) time.Time {
	if ts := timestampFromResult(gjson.Parse(meta["createdAt"])); !ts.IsZero() {
		return ts
	}
	if info, err := os.Stat(storePath); err == nil {
		return info.ModTime()
	}
	return time.Now()
}

// readCursorStore opens a session store read-only and returns the
// ordered blob rows and the decoded metadata table. Metadata
// values are hex-encoded JSON documents.
func readCursorStore(
	storePath string,
) ([]cursorBlob, map[string]string, error) {
	db, err := sql.Open(
		"sqlite3", "file:"+storePath+"?mode=ro",
	)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", storePath, err)
	}
	defer db.Close()

	meta := make(map[string]string)
	rows, err := db.Query("SELECT key, value FROM meta")
	if err == nil {
		for rows.Next() {
			var key string
			var value []byte
			if err := rows.Scan(&key, &value); err != nil {
				continue
			}
			meta[key] = decodeMetaValue(value)
		}
		rows.Close()
	}

	var blobs []cursorBlob
	rows, err = db.Query("SELECT rowid, data FROM blobs ORDER BY rowid")
	if err != nil {
		return nil, nil, fmt.Errorf("query blobs in %s: %w", storePath, err)
	}
	defer rows.Close()

	for rows.Next() {
		var rowid int64
		var data []byte
		if err := rows.Scan(&rowid, &data); err != nil {
			continue
		}
		raw := string(data)
		if !gjson.Valid(raw) {
			continue
		}
		blobs = append(blobs, cursorBlob{rowid: rowid, raw: raw})
	}

	sortCursorBlobs(blobs)
	return blobs, meta, rows.Err()
}

// decodeMetaValue decodes a meta table value: hex-encoded JSON,
// falling back to the raw bytes for legacy plain-text values. A
// JSON string document decodes to its unquoted value.
func decodeMetaValue(value []byte) string {
	raw := strings.TrimSpace(string(value))
	if decoded, err := hex.DecodeString(raw); err == nil {
		raw = string(decoded)
	}
	parsed := gjson.Parse(raw)
	if parsed.Type == gjson.String {
		return parsed.Str
	}
	return raw
}

// sortCursorBlobs orders blobs by their embedded sequence number
// when both rows carry one, else by underlying row order; the sort
// is stable so equal keys keep scan order (timestamp order is the
// final tie-break applied by message assembly).
func sortCursorBlobs(blobs []cursorBlob) {
	seq := func(b cursorBlob) (int64, bool) {
		v := gjson.Get(b.raw, "sequence")
		if !v.Exists() {
			v = gjson.Get(b.raw, "seq")
		}
		if v.Type != gjson.Number {
			return 0, false
		}
		return v.Int(), true
	}
	sort.SliceStable(blobs, func(i, j int) bool {
		si, iok := seq(blobs[i])
		sj, jok := seq(blobs[j])
		if iok && jok {
			return si < sj
		}
		return blobs[i].rowid < blobs[j].rowid
	})
}

// cursorBlobMessages converts ordered blob records into canonical
// messages. Three historical shapes are handled: direct
// role/content records, nested message wrappers, and
// tool-call/tool-result pairs.
func cursorBlobMessages(blobs []cursorBlob) []Message {
	var messages []Message
	for _, blob := range blobs {
		j := gjson.Parse(blob.raw)
		if wrapped := j.Get("message"); wrapped.IsObject() {
			j = wrapped
		}

		ts := timestampFromResult(j.Get("timestamp"))

		switch j.Get("type").Str {
		case "tool_call":
			name := CanonicalToolName(j.Get("name").Str)
			if name == "" {
				continue
			}
			input := j.Get("args").Raw
			if input == "" {
				input = j.Get("input").Raw
			}
			if input == "" {
				input = "{}"
			}
			messages = append(messages, Message{
				Role:      RoleAssistant,
				Content:   toolCallContent(name, input),
				Timestamp: ts,
				ToolName:  name,
				ToolInput: input,
				ToolUseID: cursorCallID(j),
			})
			continue
		case "tool_result":
			callID := cursorCallID(j)
			result := j.Get("result").Str
			if result == "" {
				result = j.Get("output").Str
			}
			if callID != "" {
				linkToolResult(messages, callID, result)
			}
			continue
		}

		role := j.Get("role").Str
		if role != "user" && role != "assistant" {
			continue
		}
		content := j.Get("content")
		text := content.Str
		if content.IsArray() {
			var parts []string
			content.ForEach(func(_, block gjson.Result) bool {
				if t := block.Get("text").Str; t != "" {
					parts = append(parts, t)
				}
				return true
			})
			text = strings.Join(parts, "\n")
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		messages = append(messages, Message{
			Role:      RoleType(role),
			Content:   text,
			Timestamp: ts,
		})
	}
	return messages
}

func cursorCallID(j gjson.Result) string {
	if id := j.Get("callId").Str; id != "" {
		return id
	}
	return j.Get("call_id").Str
}
