package journal_test

import (
	"errors"
	"testing"
	"time"

	"github.com/jamesainslie/ferry/pkg/ferry/journal"
)

func entryAt(id string, started time.Time) *journal.Entry {
	return &journal.Entry{
		ID:         id,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Specs:      []string{"~/notes.txt"},
		Mode:       "normal",
		Files:      1,
		Bytes:      42,
		Status:     journal.StatusDone,
	}
}

func TestJournalRecordAndList(t *testing.T) {
	j, err := journal.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer j.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// Recorded out of order on purpose.
	for _, e := range []*journal.Entry{
		entryAt("b", base.Add(time.Minute)),
		entryAt("a", base),
		entryAt("c", base.Add(2*time.Minute)),
	} {
		if err := j.Record(e); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	got, err := j.List(0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(got))
	}
	for i, want := range []string{"c", "b", "a"} {
		if got[i].ID != want {
			t.Errorf("entry %d: expected %s, got %s", i, want, got[i].ID)
		}
	}
	if got[0].Duration() != 3*time.Second {
		t.Errorf("Expected duration 3s, got %v", got[0].Duration())
	}
	if got[0].Bytes != 42 || got[0].Specs[0] != "~/notes.txt" {
		t.Errorf("Entry fields not preserved: %+v", got[0])
	}

	limited, err := j.List(2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "c" {
		t.Errorf("Expected newest 2 entries, got %d", len(limited))
	}
}

func TestJournalEmpty(t *testing.T) {
	j, err := journal.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer j.Close()

	got, err := j.List(10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no entries, got %d", len(got))
	}
	if v := j.SchemaVersion(); v != journal.CurrentSchemaVersion {
		t.Errorf("Expected schema version %d, got %d", journal.CurrentSchemaVersion, v)
	}
}

func TestJournalGet(t *testing.T) {
	j, err := journal.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer j.Close()

	failed := entryAt("f1", time.Now())
	failed.Status = journal.StatusFailed
	failed.Error = "no matching files for: ~/missing"
	if err := j.Record(failed); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := j.Get("f1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != journal.StatusFailed || got.Error != failed.Error {
		t.Errorf("Unexpected entry: %+v", got)
	}

	if _, err := j.Get("nope"); !errors.Is(err, journal.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestJournalRecordRequiresID(t *testing.T) {
	j, err := journal.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer j.Close()

	if err := j.Record(&journal.Entry{StartedAt: time.Now()}); err == nil {
		t.Error("Expected error for entry without id")
	}
}

func TestJournalPrune(t *testing.T) {
	j, err := journal.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer j.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"s1", "s2", "s3", "s4"} {
		if err := j.Record(entryAt(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	removed, err := j.Prune(2)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}

	got, err := j.List(0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "s4" || got[1].ID != "s3" {
		t.Errorf("Expected s4, s3 to remain, got %d entries", len(got))
	}
}

func TestJournalReopen(t *testing.T) {
	dir := t.TempDir()

	j, err := journal.Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := j.Record(entryAt("persist", time.Now())); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	j, err = journal.Open(dir)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer j.Close()

	if _, err := j.Get("persist"); err != nil {
		t.Errorf("Entry lost across reopen: %v", err)
	}
}
