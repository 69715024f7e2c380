package executor

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/jpequegn/ttsdispatch/internal/model"
)

// normalizeSpeechURL implements the URL normalization rule from
// spec.md §6: if the configured base does not end in
// /v1/audio/speech, append it (stripping one trailing slash first).
func normalizeSpeechURL(base string) string {
	const suffix = "/v1/audio/speech"
	trimmed := strings.TrimSuffix(base, "/")
	if strings.HasSuffix(trimmed, suffix) {
		return trimmed
	}
	return trimmed + suffix
}

// classifyTransportError maps a transport-level error (no HTTP response
// at all) onto an outcome kind, per spec.md §4.4: request-timeout errors
// or an error detail mentioning "timeout" classify as OutcomeTimeout;
// everything else is OutcomeNetwork.
func classifyTransportError(err error) model.OutcomeKind {
	if err == nil {
		return model.OutcomeSuccess
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return model.OutcomeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.OutcomeTimeout
	}

	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return model.OutcomeTimeout
	}

	return model.OutcomeNetwork
}

// classifyHTTPResponse applies the status-code and body-substring rules
// from spec.md §4.4/§6 to a completed HTTP response.
func classifyHTTPResponse(status int, body []byte) model.OutcomeKind {
	if status == 200 {
		return model.OutcomeSuccess
	}

	lower := strings.ToLower(string(body))
	rateLimitedBody := strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "too many subrequests") ||
		strings.Contains(lower, "rate limit")

	switch {
	case status == 429 || status == 503:
		return model.OutcomeRateLimited
	case rateLimitedBody:
		return model.OutcomeRateLimited
	case status == 500 && strings.Contains(lower, "too many"):
		return model.OutcomeRateLimited
	default:
		return model.OutcomeOtherHTTP
	}
}

// isURLError reports whether err wraps a *url.Error, used only to
// enrich logging with the underlying transport cause.
func isURLError(err error) (*url.Error, bool) {
	var uerr *url.Error
	ok := errors.As(err, &uerr)
	return uerr, ok
}
