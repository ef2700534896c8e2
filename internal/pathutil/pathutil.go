// Package pathutil canonicalizes filesystem paths recorded in
// assistant logs so they can be compared across platforms. Paths
// arrive as noisy historical evidence (Windows long-path prefixes,
// mixed separators, trailing slashes, stale case) and never come
// with a guarantee that they still exist on disk, so normalization
// is purely lexical.
package pathutil

import (
	"path"
	"runtime"
	"strings"
)

// caseInsensitive reports whether path comparison should fold
// case. Windows and macOS default filesystems are
// case-insensitive.
var caseInsensitive = runtime.GOOS == "windows" ||
	runtime.GOOS == "darwin"

const longPathPrefix = `\\?\`

// Normalize canonicalizes a path for comparison: strips the
// Windows long-path prefix, unifies separators, resolves "." and
// "..", drops trailing separators (except the root), and folds
// case on case-insensitive platforms. Empty or unparsable input
// normalizes to "", which never matches anything.
func Normalize(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = strings.TrimPrefix(p, longPathPrefix)
	p = strings.ReplaceAll(p, `\`, "/")

	// Split off a drive prefix so path.Clean treats the rest as
	// a plain slash path.
	vol := ""
	if len(p) >= 2 && p[1] == ':' && isDriveLetter(p[0]) {
		vol = p[:2]
		p = p[2:]
		if p == "" {
			p = "/"
		}
	}

	p = path.Clean(p)
	if p == "." {
		return ""
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}

	out := vol + p
	if caseInsensitive {
		out = strings.ToLower(out)
	}
	return out
}

// IsSameOrInside reports whether candidate equals parent or lives
// under it. Both paths must normalize onto the same drive/root;
// reaching candidate from parent must not require a ".." step.
func IsSameOrInside(parent, candidate string) bool {
	p := Normalize(parent)
	c := Normalize(candidate)
	if p == "" || c == "" {
		return false
	}
	if p == c {
		return true
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return strings.HasPrefix(c, p)
}

// BelongsToSameProject reports whether two paths refer to the same
// project tree: one contains the other. A session's recorded
// working directory may be a subdirectory of the tracked project
// root, or the root itself may have been recorded from deeper in.
func BelongsToSameProject(a, b string) bool {
	return IsSameOrInside(a, b) || IsSameOrInside(b, a)
}

func isDriveLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
