package logx

import (
	"strings"
	"testing"
)

func TestFormatOpsEntry(t *testing.T) {
	t.Parallel()

	got := formatOpsEntry([]byte(`{"level":"warn","time":"x","message":"lesson delivery failed","lesson_id":"4","comp":"dispatch"}` + "\n"))
	want := "[WARN] lesson delivery failed\n- comp=dispatch\n- lesson_id=4"
	if got != want {
		t.Fatalf("formatOpsEntry()=%q want %q", got, want)
	}
}

func TestFormatOpsEntryNotJSON(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", opsMessageLimit+100)
	got := formatOpsEntry([]byte(long))
	if len(got) != opsMessageLimit || !strings.HasSuffix(got, "...") {
		t.Fatalf("expected clipped raw line, got len=%d", len(got))
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]Level{"debug": LevelDebug, " WARNING ": LevelWarn, "error": LevelError, "bogus": LevelInfo}
	for in, want := range cases {
		if got := ParseLevel(in, LevelInfo); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Info("discarded", String("k", "v"))
	if l.OrNop().IsZero() {
		t.Fatal("OrNop should return a usable logger")
	}
	if l.Component("x").IsZero() {
		t.Fatal("derived logger carries fields")
	}
}
