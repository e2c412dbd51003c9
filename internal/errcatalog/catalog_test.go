package errcatalog

import (
	"strings"
	"testing"

	"github.com/sentrygate/gateway/internal/langdetect"
	apperr "github.com/sentrygate/gateway/pkg/errors"
)

func TestMessageFallsBackToEnglish(t *testing.T) {
	c := New()
	got := c.Message(apperr.KindPromptBlocked, langdetect.Korean, "injection")
	if !strings.Contains(got, "injection") {
		t.Fatalf("expected korean template with reason, got %q", got)
	}

	got = c.Message(apperr.KindScannerError, langdetect.Chinese, "timeout")
	want := "A content scanner failed: timeout"
	if got != want {
		t.Fatalf("expected English fallback %q, got %q", want, got)
	}
}

func TestMessageSubstitutesReason(t *testing.T) {
	c := New()
	got := c.Message(apperr.KindPromptBlocked, langdetect.Chinese, "PromptInjection: injection")
	if !strings.Contains(got, "PromptInjection: injection") {
		t.Fatalf("reason not substituted: %q", got)
	}
}

func TestMessagePanicsOnUnknownKind(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown kind")
		}
	}()
	c := New()
	c.Message(apperr.Kind("not_a_real_kind"), langdetect.English, "")
}
