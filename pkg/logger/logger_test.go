package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogger_LevelThreshold(t *testing.T) {
	var out, errOut bytes.Buffer
	l := New()
	l.SetOutput(&out, &errOut)
	l.SetLevel(LevelWarn)

	l.Debug("debug %d", 1)
	l.Info("info %d", 2)
	l.Warn("warn %d", 3)
	l.Error("error %d", 4)

	if out.Len() != 0 {
		t.Errorf("expected no info/debug output, got %q", out.String())
	}
	got := errOut.String()
	if !strings.Contains(got, "WARN: ") || !strings.Contains(got, "warn 3") {
		t.Errorf("missing warn line in %q", got)
	}
	if !strings.Contains(got, "ERROR: ") || !strings.Contains(got, "error 4") {
		t.Errorf("missing error line in %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %d, want %d", in, got, want)
		}
	}
}
