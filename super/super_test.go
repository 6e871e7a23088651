package super

import (
	"context"
	"testing"

	"coldtree/extent"
)

type fakeRoot struct {
	laddr extent.Laddr
	level uint8
}

func (f fakeRoot) Laddr() extent.Laddr { return f.laddr }
func (f fakeRoot) Level() uint8        { return f.level }

func TestGetRootLaddrBeforeWriteIsNotOK(t *testing.T) {
	em := extent.NewInMemoryManager()
	defer em.Close()
	tr := NewTracker(em)

	_, _, ok, err := tr.GetRootLaddr(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetRootLaddr: %v", err)
	}
	if ok {
		t.Errorf("GetRootLaddr reported ok before any root was written")
	}
}

func TestWriteRootLaddrThenGetRootLaddr(t *testing.T) {
	ctx := context.Background()
	em := extent.NewInMemoryManager()
	defer em.Close()
	tr := NewTracker(em)

	if err := tr.WriteRootLaddr(ctx, 1, extent.Laddr(42), 3); err != nil {
		t.Fatalf("WriteRootLaddr: %v", err)
	}

	addr, level, ok, err := tr.GetRootLaddr(ctx, 1)
	if err != nil {
		t.Fatalf("GetRootLaddr: %v", err)
	}
	if !ok {
		t.Fatalf("GetRootLaddr reported not-ok after a write")
	}
	if addr != extent.Laddr(42) || level != 3 {
		t.Errorf("GetRootLaddr = (%d, %d), want (42, 3)", addr, level)
	}
}

func TestWriteRootLaddrVisibleToAnotherTransactionOnlyAfterCommit(t *testing.T) {
	ctx := context.Background()
	em := extent.NewInMemoryManager()
	defer em.Close()
	tr := NewTracker(em)

	if err := tr.WriteRootLaddr(ctx, 1, extent.Laddr(7), 0); err != nil {
		t.Fatalf("WriteRootLaddr: %v", err)
	}

	_, _, ok, err := tr.GetRootLaddr(ctx, 2)
	if err != nil {
		t.Fatalf("GetRootLaddr (uncommitted, other tx): %v", err)
	}
	if ok {
		t.Errorf("GetRootLaddr from another transaction saw an uncommitted root write")
	}

	if err := em.Commit(ctx, 1); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	addr, _, ok, err := tr.GetRootLaddr(ctx, 2)
	if err != nil {
		t.Fatalf("GetRootLaddr (committed): %v", err)
	}
	if !ok || addr != extent.Laddr(7) {
		t.Errorf("GetRootLaddr after commit = (%d, %v), want (7, true)", addr, ok)
	}
}

func TestDoTrackRootAndDoUntrackRoot(t *testing.T) {
	em := extent.NewInMemoryManager()
	defer em.Close()
	tr := NewTracker(em)

	if _, ok := tr.TrackedRoot(1); ok {
		t.Errorf("TrackedRoot reported ok before DoTrackRoot")
	}

	root := fakeRoot{laddr: 5, level: 1}
	tr.DoTrackRoot(1, root)

	got, ok := tr.TrackedRoot(1)
	if !ok || got.Laddr() != root.Laddr() {
		t.Fatalf("TrackedRoot = (%v, %v), want (%v, true)", got, ok, root)
	}

	tr.DoUntrackRoot(1)
	if _, ok := tr.TrackedRoot(1); ok {
		t.Errorf("TrackedRoot still reports ok after DoUntrackRoot")
	}
}
