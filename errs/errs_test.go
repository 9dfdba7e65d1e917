package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormattingIncludesSourceAndFields(t *testing.T) {
	err := New(
		"edgar",
		CodeRateLimited,
		WithHTTP(429),
		WithEntity("0000320193"),
		WithMessage("throttled by upstream"),
		WithCause(errors.New("edgar http 429")),
	)

	out := err.Error()
	if !strings.Contains(out, "source=edgar") {
		t.Fatalf("expected source marker in error string: %s", out)
	}
	if !strings.Contains(out, "code=rate_limited") {
		t.Fatalf("expected code marker in error string: %s", out)
	}
	if !strings.Contains(out, "http=429") {
		t.Fatalf("expected http status in error string: %s", out)
	}
	if !strings.Contains(out, "entity=\"0000320193\"") {
		t.Fatalf("expected entity marker in error string: %s", out)
	}
	if !strings.Contains(out, "cause=\"edgar http 429\"") {
		t.Fatalf("expected wrapped cause in error string: %s", out)
	}
}

func TestInvalidEventNamesField(t *testing.T) {
	err := InvalidEvent("severity", "must be between 0 and 100")
	if err.Code != CodeInvalidEvent {
		t.Fatalf("expected invalid_event code, got %q", err.Code)
	}
	if !strings.Contains(err.Error(), "field=severity") {
		t.Fatalf("expected field marker in error string: %s", err.Error())
	}
}

func TestCodeOfUnwrapsNestedEnvelope(t *testing.T) {
	inner := New("reddit", CodeNetwork, WithMessage("connection reset"))
	wrapped := fmt.Errorf("fetch subreddit: %w", inner)

	if got := CodeOf(wrapped); got != CodeNetwork {
		t.Fatalf("expected network code through wrapping, got %q", got)
	}
	if !IsCode(wrapped, CodeNetwork) {
		t.Fatalf("expected IsCode to match wrapped envelope")
	}
	if IsCode(errors.New("plain"), CodeNetwork) {
		t.Fatalf("plain errors must not match any code")
	}
}

func TestNilErrorString(t *testing.T) {
	var e *E
	if got := e.Error(); got != "<nil>" {
		t.Fatalf("expected <nil> string for nil error, got %q", got)
	}
}
