package model

import "time"

// OutcomeKind is the sum type over task execution results, replacing the
// source's dynamically-typed status strings (spec.md §9 design note).
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRateLimited
	OutcomeTimeout
	OutcomeNetwork
	OutcomeAudioTooSmall
	OutcomeOtherHTTP
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeNetwork:
		return "network"
	case OutcomeAudioTooSmall:
		return "audio_too_small"
	case OutcomeOtherHTTP:
		return "other_http"
	default:
		return "unknown"
	}
}

// FailureClass maps an outcome kind onto the retry-policy failure class
// it is billed against. OutcomeSuccess has no class.
func (k OutcomeKind) FailureClass() FailureClass {
	switch k {
	case OutcomeRateLimited:
		return FailureRateLimited
	case OutcomeTimeout:
		return FailureTimeout
	case OutcomeNetwork, OutcomeAudioTooSmall, OutcomeOtherHTTP:
		return FailureGeneral
	default:
		return FailureNone
	}
}

// Outcome is the single settlement event produced by exactly one task
// execution (spec.md §4.4).
type Outcome struct {
	Kind       OutcomeKind
	HTTPStatus int
	Reason     string
	Elapsed    time.Duration
}

// Success reports whether this outcome represents a completed task.
func (o Outcome) Success() bool {
	return o.Kind == OutcomeSuccess
}
