package tree

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"testing"

	"coldtree/extent"
	"coldtree/nodelayout"
	"coldtree/objrecord"
	"coldtree/super"
)

func newTestTree(t *testing.T) (*Tree, context.Context, uint64) {
	t.Helper()
	em := extent.NewInMemoryManager()
	t.Cleanup(func() { em.Close() })
	tr := New(em, super.NewTracker(em))
	ctx := context.Background()
	if err := tr.Mkfs(ctx, 1); err != nil {
		t.Fatalf("Mkfs: %v", err)
	}
	return tr, ctx, 1
}

func key(i int) []byte { return []byte(fmt.Sprintf("key-%06d", i)) }
func val(i int) objrecord.Record {
	return objrecord.Record{Length: uint64(i), Checksum: uint64(i * 7)}
}

func TestInsertAndLowerBoundSingleKey(t *testing.T) {
	tr, ctx, txID := newTestTree(t)

	cur, inserted, err := tr.Insert(ctx, txID, key(1), val(1))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !inserted {
		t.Fatalf("Insert reported not-inserted for a brand new key")
	}
	got, err := cur.GetValue()
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if got != val(1) {
		t.Errorf("GetValue = %+v, want %+v", got, val(1))
	}

	res, err := tr.LowerBound(ctx, txID, key(1))
	if err != nil {
		t.Fatalf("LowerBound: %v", err)
	}
	if res.Match != nodelayout.MatchEQ {
		t.Errorf("LowerBound match = %v, want EQ", res.Match)
	}
}

func TestInsertDuplicateKeyReturnsExistingCursorUnchanged(t *testing.T) {
	tr, ctx, txID := newTestTree(t)

	if _, _, err := tr.Insert(ctx, txID, key(5), val(5)); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	cur, inserted, err := tr.Insert(ctx, txID, key(5), val(99))
	if err != nil {
		t.Fatalf("second Insert: %v", err)
	}
	if inserted {
		t.Errorf("Insert reported inserted=true for a duplicate key")
	}
	got, err := cur.GetValue()
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if got != val(5) {
		t.Errorf("duplicate Insert overwrote the existing value: got %+v, want %+v", got, val(5))
	}
}

func TestInsertManyKeysForcesSplitsAndEveryKeyStaysFindable(t *testing.T) {
	tr, ctx, txID := newTestTree(t)

	const n = 500
	order := rand.New(rand.NewSource(1)).Perm(n)
	for _, i := range order {
		if _, inserted, err := tr.Insert(ctx, txID, key(i), val(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		} else if !inserted {
			t.Fatalf("Insert(%d) reported not-inserted on first insertion", i)
		}
	}

	for i := 0; i < n; i++ {
		res, err := tr.LowerBound(ctx, txID, key(i))
		if err != nil {
			t.Fatalf("LowerBound(%d): %v", i, err)
		}
		got, err := res.Cursor.GetValue()
		if err != nil {
			t.Fatalf("GetValue(%d): %v", i, err)
		}
		if got != val(i) {
			t.Errorf("key %d: got %+v, want %+v", i, got, val(i))
		}
	}
}

func TestLookupSmallestAndLargest(t *testing.T) {
	tr, ctx, txID := newTestTree(t)

	const n = 300
	for i := n - 1; i >= 0; i-- {
		if _, _, err := tr.Insert(ctx, txID, key(i), val(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	smallest, err := tr.LookupSmallest(ctx, txID)
	if err != nil {
		t.Fatalf("LookupSmallest: %v", err)
	}
	got, err := smallest.GetValue()
	if err != nil {
		t.Fatalf("GetValue(smallest): %v", err)
	}
	if got != val(0) {
		t.Errorf("smallest = %+v, want %+v", got, val(0))
	}

	largest, err := tr.LookupLargest(ctx, txID)
	if err != nil {
		t.Fatalf("LookupLargest: %v", err)
	}
	got, err = largest.GetValue()
	if err != nil {
		t.Fatalf("GetValue(largest): %v", err)
	}
	if got != val(n-1) {
		t.Errorf("largest = %+v, want %+v", got, val(n-1))
	}
}

func TestLookupSmallestAndLargestOnEmptyTreeAreEndSentinels(t *testing.T) {
	tr, ctx, txID := newTestTree(t)

	smallest, err := tr.LookupSmallest(ctx, txID)
	if err != nil {
		t.Fatalf("LookupSmallest: %v", err)
	}
	if _, err := smallest.GetValue(); err == nil {
		t.Errorf("GetValue on an empty tree's smallest cursor did not error")
	}

	largest, err := tr.LookupLargest(ctx, txID)
	if err != nil {
		t.Fatalf("LookupLargest: %v", err)
	}
	if _, err := largest.GetValue(); err == nil {
		t.Errorf("GetValue on an empty tree's largest cursor did not error")
	}
}

func TestLowerBoundOfMissingKeyReportsLT(t *testing.T) {
	tr, ctx, txID := newTestTree(t)

	for _, i := range []int{10, 20, 30} {
		if _, _, err := tr.Insert(ctx, txID, key(i), val(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	res, err := tr.LowerBound(ctx, txID, key(15))
	if err != nil {
		t.Fatalf("LowerBound: %v", err)
	}
	if res.Match != nodelayout.MatchLT {
		t.Errorf("LowerBound(15) match = %v, want LT", res.Match)
	}
	got, err := res.Cursor.GetValue()
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if got != val(20) {
		t.Errorf("LowerBound(15) landed on %+v, want key 20's value %+v", got, val(20))
	}
}

func TestCursorSurvivesLaterSplitOfItsLeaf(t *testing.T) {
	tr, ctx, txID := newTestTree(t)

	cur, _, err := tr.Insert(ctx, txID, key(1), val(1))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	for i := 2; i < 400; i++ {
		if _, _, err := tr.Insert(ctx, txID, key(i), val(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	got, err := cur.GetValue()
	if err != nil {
		t.Fatalf("GetValue on a cursor held across many splits: %v", err)
	}
	if got != val(1) {
		t.Errorf("cursor drifted to the wrong value after splits: got %+v, want %+v", got, val(1))
	}
}

func TestCursorDetachIsIdempotent(t *testing.T) {
	tr, ctx, txID := newTestTree(t)
	cur, _, err := tr.Insert(ctx, txID, key(1), val(1))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	cur.Detach()
	cur.Detach()
}

func TestDumpProducesNonEmptyOutput(t *testing.T) {
	tr, ctx, txID := newTestTree(t)
	for i := 0; i < 50; i++ {
		if _, _, err := tr.Insert(ctx, txID, key(i), val(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	var buf bytes.Buffer
	if err := tr.Dump(ctx, txID, &buf); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if buf.Len() == 0 {
		t.Errorf("Dump produced no output")
	}

	var brief bytes.Buffer
	if err := tr.DumpBrief(ctx, txID, &brief); err != nil {
		t.Fatalf("DumpBrief: %v", err)
	}
	if brief.Len() == 0 {
		t.Errorf("DumpBrief produced no output")
	}
}

func TestLoadRootReusesTrackedInstanceWithinATransaction(t *testing.T) {
	tr, ctx, txID := newTestTree(t)
	first, err := tr.LoadRoot(ctx, txID)
	if err != nil {
		t.Fatalf("LoadRoot: %v", err)
	}
	second, err := tr.LoadRoot(ctx, txID)
	if err != nil {
		t.Fatalf("LoadRoot (second call): %v", err)
	}
	if first != second {
		t.Errorf("LoadRoot returned a different instance on a second call within the same transaction")
	}
}
