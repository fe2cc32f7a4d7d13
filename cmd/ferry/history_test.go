package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/jamesainslie/ferry/pkg/ferry/journal"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		s        string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"a longer string", 10, "a longe..."},
		{"abcdef", 3, "abc"},
	}

	for _, tt := range tests {
		result := truncateString(tt.s, tt.maxLen)
		if result != tt.expected {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.s, tt.maxLen, result, tt.expected)
		}
	}
}

func TestWriteHistoryTable(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	entries := []*journal.Entry{
		{ID: "first", StartedAt: start, Status: journal.StatusDone, Files: 2, Bytes: 2048, Specs: []string{"a", "b"}},
		{ID: "second", StartedAt: start, Status: journal.StatusFailed, Specs: []string{"c"}},
	}

	var buf bytes.Buffer
	writeHistoryTable(&buf, entries)
	out := buf.String()

	for _, want := range []string{"first", "second", "done", "failed", "2.0 KiB", "a b", "2026-03-01 10:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestWriteHistoryEntry(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	entry := &journal.Entry{
		ID:          "abc",
		StartedAt:   start,
		FinishedAt:  start.Add(1500 * time.Millisecond),
		Specs:       []string{"~/notes"},
		Destination: "/tmp/out/",
		Mode:        "normal",
		Files:       1,
		Bytes:       10,
		Status:      journal.StatusCanceled,
		Error:       "interrupt requested",
	}

	var buf bytes.Buffer
	writeHistoryEntry(&buf, entry)
	out := buf.String()

	for _, want := range []string{"abc", "1.5s", "canceled", "/tmp/out/", "~/notes", "interrupt requested"} {
		if !strings.Contains(out, want) {
			t.Errorf("details missing %q:\n%s", want, out)
		}
	}
}
