// Package fsname implements the filename and batch-directory
// sanitization rules from spec.md §6, ported from safe_filename,
// clean_directory_name, and generate_batch_directory in
// original_source/app.py. CJK and other non-ASCII characters are
// preserved; only control characters and the path-unsafe character set
// are stripped.
package fsname

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// sanitize strips control characters and the set <>:"/\|?*,
// trims leading/trailing dots and spaces, and truncates to maxLen
// runes, returning empty when the result would be empty.
func sanitize(name string, maxLen int, empty string) string {
	cleaned := unsafeChars.ReplaceAllString(name, "")
	cleaned = strings.Trim(cleaned, ". ")

	runes := []rune(cleaned)
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}
	cleaned = string(runes)

	if cleaned == "" {
		return empty
	}
	return cleaned
}

// SanitizeFilename applies spec.md §6's filename rule: truncate to 100
// runes, default "file".
func SanitizeFilename(name string) string {
	return sanitize(name, 100, "file")
}

// SanitizeDirectoryName applies spec.md §6's batch-directory rule:
// truncate to 50 runes, default "custom_batch".
func SanitizeDirectoryName(name string) string {
	return sanitize(name, 50, "custom_batch")
}

// GenerateBatchDirectory returns a sanitized custom directory name, or a
// batch_<unix_secs>_<8hex> fallback when customName is blank.
func GenerateBatchDirectory(customName string) string {
	if trimmed := strings.TrimSpace(customName); trimmed != "" {
		return SanitizeDirectoryName(trimmed)
	}
	return fmt.Sprintf("batch_%d_%s", time.Now().Unix(), shortHex())
}

func shortHex() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}

// IsPathComponentSafe rejects folder names that could escape the upload
// root (spec.md §6: reject "..", "/", "\").
func IsPathComponentSafe(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
