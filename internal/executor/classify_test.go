package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/jpequegn/ttsdispatch/internal/model"
)

func TestNormalizeSpeechURL(t *testing.T) {
	cases := map[string]string{
		"http://s1":                      "http://s1/v1/audio/speech",
		"http://s1/":                     "http://s1/v1/audio/speech",
		"http://s1/v1/audio/speech":      "http://s1/v1/audio/speech",
		"http://s1/v1/audio/speech/":     "http://s1/v1/audio/speech",
	}
	for in, want := range cases {
		if got := normalizeSpeechURL(in); got != want {
			t.Errorf("normalizeSpeechURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClassifyHTTPResponse(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   model.OutcomeKind
	}{
		{"success", 200, "", model.OutcomeSuccess},
		{"429", 429, "", model.OutcomeRateLimited},
		{"503", 503, "", model.OutcomeRateLimited},
		{"too many requests body", 400, "Too Many Requests", model.OutcomeRateLimited},
		{"too many subrequests body", 400, "too many subrequests", model.OutcomeRateLimited},
		{"rate limit body", 400, "Rate Limit exceeded", model.OutcomeRateLimited},
		{"500 too many", 500, "error: too many in flight", model.OutcomeRateLimited},
		{"500 plain", 500, "internal error", model.OutcomeOtherHTTP},
		{"404", 404, "not found", model.OutcomeOtherHTTP},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := classifyHTTPResponse(c.status, []byte(c.body))
			if got != c.want {
				t.Errorf("classifyHTTPResponse(%d, %q) = %v, want %v", c.status, c.body, got, c.want)
			}
		})
	}
}

func TestClassifyTransportError(t *testing.T) {
	if got := classifyTransportError(context.DeadlineExceeded); got != model.OutcomeTimeout {
		t.Errorf("DeadlineExceeded classified as %v, want timeout", got)
	}
	if got := classifyTransportError(errors.New("dial tcp: connection refused")); got != model.OutcomeNetwork {
		t.Errorf("connection refused classified as %v, want network", got)
	}
	if got := classifyTransportError(errors.New("context deadline: request timeout exceeded")); got != model.OutcomeTimeout {
		t.Errorf("error mentioning timeout classified as %v, want timeout", got)
	}
}
