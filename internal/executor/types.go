package executor

import (
	"math"
	"time"
)

// CleaningOptions mirrors model.CleaningOptions for the wire payload;
// kept as its own type here so the JSON field tags documented in
// spec.md §6 live next to the request builder that emits them.
type CleaningOptions struct {
	RemoveMarkdown        bool `json:"remove_markdown"`
	RemoveEmoji           bool `json:"remove_emoji"`
	RemoveURLs            bool `json:"remove_urls"`
	RemoveLineBreaks      bool `json:"remove_line_breaks"`
	RemoveCitationNumbers bool `json:"remove_citation_numbers"`
}

// speechRequest is the literal JSON body POSTed to /v1/audio/speech
// (spec.md §6).
type speechRequest struct {
	Model           string          `json:"model"`
	Input           string          `json:"input"`
	Voice           string          `json:"voice"`
	Speed           float64         `json:"speed"`
	Pitch           float64         `json:"pitch"`
	ResponseFormat  string          `json:"response_format"`
	CleaningOptions CleaningOptions `json:"cleaning_options"`
}

const (
	// MinAudioSizeBytesDefault is TTS_MIN_AUDIO_SIZE_BYTES's default.
	MinAudioSizeBytesDefault = 4096
	// MinAudioBytesPerCharDefault is TTS_MIN_AUDIO_BYTES_PER_CHAR's default.
	MinAudioBytesPerCharDefault = 3.0

	// requestTimeout is the fixed per-request timeout from spec.md §4.4.
	requestTimeout = 300 * time.Second
)

// SizeThresholds bundles the two environment-overridable constants used
// by the audio-too-small check.
type SizeThresholds struct {
	MinBytes     int
	BytesPerChar float64
}

// DefaultSizeThresholds returns the spec.md §6 defaults.
func DefaultSizeThresholds() SizeThresholds {
	return SizeThresholds{MinBytes: MinAudioSizeBytesDefault, BytesPerChar: MinAudioBytesPerCharDefault}
}

// MinAudioSize returns max(MinBytes, ceil(textLen * BytesPerChar)).
func (t SizeThresholds) MinAudioSize(textLen int) int {
	floor := int(math.Ceil(float64(textLen) * t.BytesPerChar))
	if floor < t.MinBytes {
		return t.MinBytes
	}
	return floor
}
