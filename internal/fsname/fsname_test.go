package fsname

import (
	"strings"
	"testing"
)

func TestSanitizeFilename_PreservesCJK(t *testing.T) {
	// Scenario F: CJK filenames must pass through untouched (only control
	// characters and the path-unsafe set are stripped, spec.md §6).
	got := SanitizeFilename("会議メモ.md")
	if got != "会議メモ.md" {
		t.Fatalf("SanitizeFilename(CJK) = %q, want unchanged", got)
	}
}

func TestSanitizeFilename_StripsUnsafeCharacters(t *testing.T) {
	got := SanitizeFilename(`a<b>c:d"e/f\g|h?i*j.md`)
	if strings.ContainsAny(got, `<>:"/\|?*`) {
		t.Fatalf("SanitizeFilename() = %q, still contains unsafe characters", got)
	}
}

func TestSanitizeFilename_TrimsDotsAndSpaces(t *testing.T) {
	got := SanitizeFilename("  . hello . ")
	if got != "hello" {
		t.Fatalf("SanitizeFilename() = %q, want trimmed to %q", got, "hello")
	}
}

func TestSanitizeFilename_EmptyResultDefaultsToFile(t *testing.T) {
	got := SanitizeFilename("...   ...")
	if got != "file" {
		t.Fatalf("SanitizeFilename() = %q, want default %q", got, "file")
	}
}

func TestSanitizeFilename_TruncatesTo100Runes(t *testing.T) {
	got := SanitizeFilename(strings.Repeat("a", 500))
	if len([]rune(got)) != 100 {
		t.Fatalf("len(SanitizeFilename()) = %d, want truncated to 100", len([]rune(got)))
	}
}

func TestSanitizeDirectoryName_EmptyResultDefaultsToCustomBatch(t *testing.T) {
	got := SanitizeDirectoryName("***")
	if got != "custom_batch" {
		t.Fatalf("SanitizeDirectoryName() = %q, want default %q", got, "custom_batch")
	}
}

func TestSanitizeDirectoryName_TruncatesTo50Runes(t *testing.T) {
	got := SanitizeDirectoryName(strings.Repeat("名", 200))
	if len([]rune(got)) != 50 {
		t.Fatalf("len(SanitizeDirectoryName()) = %d, want truncated to 50", len([]rune(got)))
	}
}

func TestGenerateBatchDirectory_UsesCustomNameWhenGiven(t *testing.T) {
	got := GenerateBatchDirectory("  My Batch  ")
	if got != "My Batch" {
		t.Fatalf("GenerateBatchDirectory() = %q, want sanitized custom name", got)
	}
}

func TestGenerateBatchDirectory_FallsBackToGeneratedName(t *testing.T) {
	got := GenerateBatchDirectory("")
	if !strings.HasPrefix(got, "batch_") {
		t.Fatalf("GenerateBatchDirectory(\"\") = %q, want a batch_<unix>_<hex> fallback", got)
	}
	parts := strings.Split(got, "_")
	if len(parts) != 3 || len(parts[2]) != 8 {
		t.Fatalf("GenerateBatchDirectory(\"\") = %q, want 3 underscore-separated parts with an 8-char hex suffix", got)
	}
}

func TestGenerateBatchDirectory_WhitespaceOnlyFallsBack(t *testing.T) {
	got := GenerateBatchDirectory("   ")
	if !strings.HasPrefix(got, "batch_") {
		t.Fatalf("GenerateBatchDirectory(whitespace) = %q, want the generated fallback, not a sanitized blank name", got)
	}
}

func TestIsPathComponentSafe(t *testing.T) {
	cases := map[string]bool{
		"batch_123":     true,
		"会議メモ":          true,
		"":              false,
		".":             false,
		"..":            false,
		"../escape":     false,
		"a/b":           false,
		`a\b`:           false,
	}
	for name, want := range cases {
		if got := IsPathComponentSafe(name); got != want {
			t.Errorf("IsPathComponentSafe(%q) = %v, want %v", name, got, want)
		}
	}
}
