package logsink

import (
	"path/filepath"
	"testing"
	"time"
)

func TestAppendAndTail(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "llama.log"))
	if err := s.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := s.Append("line", LevelInfo); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	lines, err := s.Tail(2)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2", len(lines))
	}
}

func TestTailMissingFileReturnsEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing.log"))
	lines, err := s.Tail(10)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("len(lines) = %d, want 0", len(lines))
	}
}

func TestTailBoundsToRequestedCount(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "diffusion.log"))
	s.Initialize()
	for i := 0; i < 100; i++ {
		s.Append("x", LevelInfo)
	}
	for _, n := range []int{0, 1, 50, 1000} {
		lines, err := s.Tail(n)
		if err != nil {
			t.Fatalf("tail(%d): %v", n, err)
		}
		if n > 0 && len(lines) > n {
			t.Fatalf("tail(%d) returned %d lines", n, len(lines))
		}
	}
}

func TestClearTruncates(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "log.txt"))
	s.Initialize()
	s.Append("one", LevelInfo)
	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	lines, err := s.Tail(10)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("len(lines) = %d, want 0 after clear", len(lines))
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	entries := []Entry{
		{Timestamp: mustParseRFC3339(t, "2026-07-31T10:00:00Z"), Level: LevelInfo, Message: "hello world"},
		{Timestamp: mustParseRFC3339(t, "2026-07-31T10:00:01Z"), Level: LevelError, Message: "boom: disk full"},
		{Timestamp: mustParseRFC3339(t, "2026-07-31T10:00:02Z"), Level: LevelDebug, Message: ""},
	}

	for _, e := range entries {
		line := Format(e)
		got, ok := Parse(line)
		if !ok {
			t.Fatalf("Parse(%q) failed to parse", line)
		}
		if !got.Timestamp.Equal(e.Timestamp) || got.Level != e.Level || got.Message != e.Message {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, e)
		}
	}
}

func TestParseRejectsMalformedLines(t *testing.T) {
	for _, line := range []string{
		"",
		"not a log line",
		"[2026-07-31T10:00:00Z] missing level bracket",
	} {
		if _, ok := Parse(line); ok {
			t.Fatalf("Parse(%q) should have failed", line)
		}
	}
}

func TestParseStripsTrailingCR(t *testing.T) {
	e := Entry{Timestamp: mustParseRFC3339(t, "2026-07-31T10:00:00Z"), Level: LevelWarn, Message: "careful"}
	line := Format(e)
	line = line[:len(line)-1] + "\r\n" // swap trailing \n for \r\n
	got, ok := Parse(line)
	if !ok {
		t.Fatalf("Parse with CRLF failed")
	}
	if got.Message != e.Message {
		t.Fatalf("Message = %q, want %q", got.Message, e.Message)
	}
}

func mustParseRFC3339(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return parsed
}
