package submissionlog

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kailas-cloud/trackjudge/internal/domain"
)

func TestRecord_InsertionOrder(t *testing.T) {
	l := New()
	l.Record(30, "c")
	l.Record(10, "a")
	l.Record(20, "b")

	want := []Entry{{30, "c"}, {10, "a"}, {20, "b"}}
	if diff := cmp.Diff(want, l.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestRecord_CollisionLastWriteWins(t *testing.T) {
	l := New()
	l.Record(1, "first")
	l.Record(2, "other")
	l.Record(1, "second")

	if l.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", l.Len())
	}
	want := []Entry{{1, "second"}, {2, "other"}}
	if diff := cmp.Diff(want, l.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshot_IsolatedFromLaterWrites(t *testing.T) {
	l := New()
	l.Record(1, "a")

	snap := l.Snapshot()
	l.Record(2, "b")
	l.Record(1, "changed")

	if len(snap) != 1 || snap[0].Payload != "a" {
		t.Errorf("snapshot mutated by later writes: %+v", snap)
	}
}

func TestSnapshot_Idempotent(t *testing.T) {
	l := New()
	l.Record(1, "a")
	l.Record(2, "b")

	if diff := cmp.Diff(l.Snapshot(), l.Snapshot()); diff != "" {
		t.Errorf("consecutive snapshots differ:\n%s", diff)
	}
}

func TestSnapshot_Empty(t *testing.T) {
	snap := New().Snapshot()
	if snap == nil || len(snap) != 0 {
		t.Errorf("expected empty non-nil snapshot, got %#v", snap)
	}
}

func TestGet(t *testing.T) {
	l := New()
	l.Record(42, "payload")

	e, err := l.Get(42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Payload != "payload" || e.Timestamp != 42 {
		t.Errorf("unexpected entry %+v", e)
	}

	if _, err := l.Get(7); !errors.Is(err, domain.ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestObserver(t *testing.T) {
	var sizes []int
	l := New().WithObserver(func(n int) { sizes = append(sizes, n) })
	l.Record(1, "a")
	l.Record(1, "b")
	l.Record(2, "c")

	if diff := cmp.Diff([]int{1, 1, 2}, sizes); diff != "" {
		t.Errorf("observer sizes mismatch (-want +got):\n%s", diff)
	}
}

func TestRecord_Concurrent(t *testing.T) {
	l := New()
	const writers = 64

	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record(int64(i), fmt.Sprintf("payload-%d", i))
			_ = l.Snapshot()
		}()
	}
	wg.Wait()

	if l.Len() != writers {
		t.Fatalf("expected %d entries, got %d", writers, l.Len())
	}
	for i := range writers {
		e, err := l.Get(int64(i))
		if err != nil {
			t.Fatalf("missing entry %d: %v", i, err)
		}
		if e.Payload != fmt.Sprintf("payload-%d", i) {
			t.Errorf("entry %d payload = %q", i, e.Payload)
		}
	}
}
