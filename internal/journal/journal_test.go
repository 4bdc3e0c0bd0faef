package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "sub", "journal.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := j.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	entries := []Entry{
		{SessionID: "s1", Key: "caps_lock", Type: "begin", At: base},
		{SessionID: "s1", Key: "caps_lock", Type: "finish", At: base.Add(2 * time.Second), ElapsedMS: 2000},
		{SessionID: "s2", Key: "x2", Type: "begin", At: base.Add(3 * time.Second)},
	}
	for _, e := range entries {
		id, err := j.Record(ctx, e)
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if id <= 0 {
			t.Fatalf("Record() id = %d", id)
		}
	}

	got, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent(2) returned %d entries", len(got))
	}
	if got[0].SessionID != "s2" || got[0].Type != "begin" {
		t.Errorf("Recent()[0] = %+v, want s2 begin", got[0])
	}
	if got[1].Type != "finish" || got[1].ElapsedMS != 2000 {
		t.Errorf("Recent()[1] = %+v, want s1 finish 2000ms", got[1])
	}
	if !got[1].At.Equal(base.Add(2 * time.Second)) {
		t.Errorf("Recent()[1].At = %v", got[1].At)
	}
}

func TestRecentDefaultLimit(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	for range DefaultRecent + 5 {
		if _, err := j.Record(ctx, Entry{SessionID: "s", Key: "f13", Type: "cancel"}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	got, err := j.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != DefaultRecent {
		t.Fatalf("Recent(0) returned %d entries, want %d", len(got), DefaultRecent)
	}
}

func TestRecordStampsZeroTime(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	before := time.Now()
	if _, err := j.Record(ctx, Entry{SessionID: "s", Key: "f13", Type: "begin"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	got, err := j.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if got[0].At.Before(before) {
		t.Fatalf("At = %v, want at or after %v", got[0].At, before)
	}
}

func TestPrune(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	now := time.Now()
	for _, at := range []time.Time{now.Add(-48 * time.Hour), now.Add(-25 * time.Hour), now} {
		if _, err := j.Record(ctx, Entry{SessionID: "s", Key: "f13", Type: "begin", At: at}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	n, err := j.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("Prune() = %d, want 2", n)
	}
	got, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Recent() after prune = %d entries, want 1", len(got))
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := j.Record(context.Background(), Entry{SessionID: "s", Key: "x2", Type: "finish"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	j, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer j.Close()
	got, err := j.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 1 || got[0].Key != "x2" {
		t.Fatalf("Recent() = %+v", got)
	}
}

func TestClosedJournal(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := j.Record(context.Background(), Entry{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Record() error = %v, want ErrClosed", err)
	}
	if _, err := j.Recent(context.Background(), 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Recent() error = %v, want ErrClosed", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("Open(\"\") expected error")
	}
}
