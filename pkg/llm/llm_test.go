package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindFromStatus(t *testing.T) {
	cases := []struct {
		status    int
		quotaHint bool
		want      ErrorKind
	}{
		{401, false, KindInvalidCredential},
		{403, false, KindInvalidCredential},
		{402, false, KindQuotaExceeded},
		{429, false, KindRateLimited},
		{429, true, KindQuotaExceeded},
		{400, true, KindQuotaExceeded},
		{500, false, KindOther},
		{200, false, KindOther},
	}
	for _, tc := range cases {
		if got := kindFromStatus(tc.status, tc.quotaHint); got != tc.want {
			t.Errorf("kindFromStatus(%d, %v): got %v, want %v",
				tc.status, tc.quotaHint, got, tc.want)
		}
	}
}

func TestClassify(t *testing.T) {
	quota := &Error{Kind: KindQuotaExceeded, Provider: "anthropic", Err: errors.New("credit balance too low")}
	if got := Classify(quota); got != KindQuotaExceeded {
		t.Errorf("direct: got %v", got)
	}
	// Wrapped errors still classify.
	wrapped := fmt.Errorf("handler ai: %w", quota)
	if got := Classify(wrapped); got != KindQuotaExceeded {
		t.Errorf("wrapped: got %v", got)
	}
	if got := Classify(errors.New("plain")); got != KindOther {
		t.Errorf("plain: got %v", got)
	}
	if got := Classify(nil); got != KindOther {
		t.Errorf("nil: got %v", got)
	}
}

func TestErrorFormatting(t *testing.T) {
	base := errors.New("boom")
	e := &Error{Kind: KindRateLimited, Provider: "openai", Err: base}
	if !errors.Is(e, base) {
		t.Error("Unwrap chain broken")
	}
	if e.Error() == "" {
		t.Error("empty error string")
	}
}
