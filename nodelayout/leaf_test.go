package nodelayout

import (
	"context"
	"testing"

	"coldtree/extent"
	"coldtree/objrecord"
)

func newLeafHandle(t *testing.T) *extent.Handle {
	t.Helper()
	m := extent.NewInMemoryManager()
	t.Cleanup(func() { m.Close() })
	h, err := m.AllocateExtent(context.Background(), 1)
	if err != nil {
		t.Fatalf("AllocateExtent: %v", err)
	}
	return h
}

func rec(n uint64) objrecord.Record { return objrecord.Record{Length: n} }

func TestLeafInsertAndLowerBound(t *testing.T) {
	l := NewLeaf(newLeafHandle(t), true)

	keys := [][]byte{[]byte("b"), []byte("d"), []byte("f")}
	for i, k := range keys {
		pos, match := l.LowerBound(k)
		if match == MatchEQ {
			t.Fatalf("LowerBound(%q) unexpectedly matched before insert", k)
		}
		if err := l.Insert(pos, k, rec(uint64(i))); err != nil {
			t.Fatalf("Insert(%q): %v", k, err)
		}
	}

	if l.NumKeys() != 3 {
		t.Fatalf("NumKeys = %d, want 3", l.NumKeys())
	}

	for i, k := range keys {
		pos, match := l.LowerBound(k)
		if match != MatchEQ {
			t.Errorf("LowerBound(%q) match = %v, want MatchEQ", k, match)
		}
		val, ok := l.GetValue(pos)
		if !ok || val.Length != uint64(i) {
			t.Errorf("GetValue(%q) = (%+v, %v), want Length %d", k, val, ok, i)
		}
	}

	pos, match := l.LowerBound([]byte("z"))
	if match != MatchLT || !pos.IsEnd() {
		t.Errorf("LowerBound past every key = (%v, %v), want (EndPosition, MatchLT)", pos, match)
	}

	pos, match = l.LowerBound([]byte("a"))
	if match != MatchLT || !pos.Equal(AtLeft(0)) {
		t.Errorf("LowerBound before every key = (%v, %v), want (AtLeft(0), MatchLT)", pos, match)
	}
}

func TestLeafLargestKeyAndValue(t *testing.T) {
	l := NewLeaf(newLeafHandle(t), true)
	if _, ok := l.LargestKeyView(); ok {
		t.Errorf("LargestKeyView on an empty leaf reported ok")
	}

	if err := l.Insert(AtLeft(0), []byte("m"), rec(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := l.Insert(AtLeft(1), []byte("q"), rec(2)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	key, ok := l.LargestKeyView()
	if !ok || string(key) != "q" {
		t.Errorf("LargestKeyView = (%q, %v), want (\"q\", true)", key, ok)
	}
	val, ok := l.LargestValue()
	if !ok || val.Length != 2 {
		t.Errorf("LargestValue = (%+v, %v), want Length 2", val, ok)
	}
}

func TestLeafSplitInsertDistributesEntriesAndPreservesOrder(t *testing.T) {
	l := NewLeaf(newLeafHandle(t), true)
	for i, k := range [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")} {
		if err := l.Insert(AtLeft(i), k, rec(uint64(i))); err != nil {
			t.Fatalf("Insert(%q): %v", k, err)
		}
	}

	right := NewLeaf(newLeafHandle(t), true)
	pos, _ := l.LowerBound([]byte("e"))
	splitPos, insertLeft, err := l.SplitInsert(right, pos, []byte("e"), rec(4))
	if err != nil {
		t.Fatalf("SplitInsert: %v", err)
	}
	if insertLeft {
		t.Errorf("SplitInsert inserted the new largest key on the left")
	}
	if splitPos.IsEnd() {
		t.Errorf("SplitInsert reported an End split position on a 4-entry leaf")
	}

	if l.IsLevelTail() {
		t.Errorf("left half kept is_level_tail after split")
	}
	if !right.IsLevelTail() {
		t.Errorf("right half did not inherit is_level_tail")
	}

	if l.NumKeys()+right.NumKeys() != 5 {
		t.Errorf("total entries after split+insert = %d, want 5", l.NumKeys()+right.NumKeys())
	}

	leftKey, _ := l.LargestKeyView()
	rightFirst, _ := right.GetKeyView(AtLeft(0))
	if string(leftKey) >= string(rightFirst) {
		t.Errorf("left half's largest key %q is not less than right half's first key %q", leftKey, rightFirst)
	}
}

func TestLeafFreeSizeShrinksOnInsert(t *testing.T) {
	l := NewLeaf(newLeafHandle(t), true)
	before := l.FreeSize()
	if err := l.Insert(AtLeft(0), []byte("key"), rec(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	after := l.FreeSize()
	if after >= before {
		t.Errorf("FreeSize did not shrink after Insert: before=%d after=%d", before, after)
	}
}

func TestLoadLeafRoundTrips(t *testing.T) {
	h := newLeafHandle(t)
	l := NewLeaf(h, true)
	if err := l.Insert(AtLeft(0), []byte("x"), rec(42)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	loaded, err := LoadLeaf(h)
	if err != nil {
		t.Fatalf("LoadLeaf: %v", err)
	}
	if loaded.NumKeys() != 1 {
		t.Fatalf("loaded NumKeys = %d, want 1", loaded.NumKeys())
	}
	val, ok := loaded.GetValue(AtLeft(0))
	if !ok || val.Length != 42 {
		t.Errorf("loaded GetValue = (%+v, %v), want Length 42", val, ok)
	}
}
