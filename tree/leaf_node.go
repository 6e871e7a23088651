package tree

import (
	"fmt"

	"coldtree/extent"
	"coldtree/nodelayout"
	"coldtree/objrecord"
)

// LeafNode is the value-node component of the orchestration layer: it
// owns the cursor-tracking map and implements insert_value, the
// value-level mutation entry point.
type LeafNode struct {
	impl    *nodelayout.Leaf
	root    *rootLink
	parent  *parentLink
	cursors map[nodelayout.Position]*Cursor
}

func newLeafNode(impl *nodelayout.Leaf) *LeafNode {
	return &LeafNode{impl: impl, cursors: make(map[nodelayout.Position]*Cursor)}
}

func allocateLeaf(sess *Session, isLevelTail bool) (*LeafNode, error) {
	h, err := sess.EM.AllocateExtent(sess.Ctx, sess.TxID)
	if err != nil {
		return nil, fmt.Errorf("tree: allocate leaf extent: %w", err)
	}
	return newLeafNode(nodelayout.NewLeaf(h, isLevelTail)), nil
}

func (l *LeafNode) Laddr() extent.Laddr              { return l.impl.Laddr() }
func (l *LeafNode) Level() uint8                     { return 0 }
func (l *LeafNode) FieldType() nodelayout.FieldType  { return l.impl.FieldType() }
func (l *LeafNode) IsLevelTail() bool                { return l.impl.IsLevelTail() }
func (l *LeafNode) IsRoot() bool                     { return l.root != nil }
func (l *LeafNode) largestKeyView() ([]byte, bool)   { return l.impl.LargestKeyView() }

func (l *LeafNode) parentInfo() (*InternalNode, nodelayout.Position, bool) {
	if l.parent == nil {
		return nil, nodelayout.Position{}, false
	}
	return l.parent.parent, l.parent.pos, true
}

func (l *LeafNode) setParentLink(parent *InternalNode, pos nodelayout.Position) {
	l.parent = &parentLink{parent: parent, pos: pos}
}

func (l *LeafNode) asRoot(txID uint64) {
	if l.root != nil || l.parent != nil {
		panic("tree: contract violation: as_root on a node that already has a root or parent link")
	}
	if !l.impl.IsLevelTail() {
		panic("tree: contract violation: as_root precondition requires is_level_tail")
	}
	l.root = &rootLink{txID: txID}
}

func (l *LeafNode) clearLinks() {
	l.root = nil
	l.parent = nil
}

// NumKeys exposes the leaf's current key count for diagnostics/tests.
func (l *LeafNode) NumKeys() int { return l.impl.NumKeys() }

func (l *LeafNode) lowerBoundTracked(sess *Session, key []byte, hist *nodelayout.MatchHistory) (SearchResult, error) {
	pos, match := l.impl.LowerBound(key)
	hist.Set(nodelayout.StageLeft, match)

	val, hasVal := l.impl.GetValue(pos)
	cur := l.getOrTrackCursor(pos, val, hasVal)
	return SearchResult{Cursor: cur, Match: match}, nil
}

// getOrTrackCursor implements get_or_track_cursor: an end position (key
// greater than every entry, only legal against a level-tail leaf)
// yields a detached, untracked cursor; otherwise the
// existing tracked cursor at pos is reused (its cache refreshed if it
// had been invalidated) or a new one is created and tracked.
func (l *LeafNode) getOrTrackCursor(pos nodelayout.Position, val objrecord.Record, hasVal bool) *Cursor {
	if pos.IsEnd() {
		return &Cursor{leaf: l, pos: pos}
	}
	if cur, ok := l.cursors[pos]; ok {
		if cur.pValue == nil && hasVal {
			v := val
			cur.pValue = &v
		}
		return cur
	}
	var pv *objrecord.Record
	if hasVal {
		v := val
		pv = &v
	}
	cur := &Cursor{leaf: l, pos: pos, pValue: pv}
	l.cursors[pos] = cur
	return cur
}

func (l *LeafNode) lookupSmallest(sess *Session) (*Cursor, error) {
	if l.impl.NumKeys() == 0 {
		if !l.IsRoot() {
			return nil, fmt.Errorf("tree: contract violation: empty non-root leaf %d", l.Laddr())
		}
		return &Cursor{leaf: l, pos: nodelayout.EndPosition}, nil
	}
	pos := nodelayout.AtLeft(0)
	val, _ := l.impl.GetValue(pos)
	return l.getOrTrackCursor(pos, val, true), nil
}

func (l *LeafNode) lookupLargest(sess *Session) (*Cursor, error) {
	if l.impl.NumKeys() == 0 {
		if !l.IsRoot() {
			return nil, fmt.Errorf("tree: contract violation: empty non-root leaf %d", l.Laddr())
		}
		return &Cursor{leaf: l, pos: nodelayout.EndPosition}, nil
	}
	pos := nodelayout.AtLeft(l.impl.NumKeys() - 1)
	val, _ := l.impl.LargestValue()
	return l.getOrTrackCursor(pos, val, true), nil
}

// insertValue implements insert_value: the value-level mutation entry
// point. pos/hist come from the lower_bound_tracked call that located
// where key belongs.
func (l *LeafNode) insertValue(sess *Session, key []byte, val objrecord.Record, pos nodelayout.Position) (*Cursor, error) {
	if err := l.impl.PrepareMutate(sess.Ctx, sess.TxID, sess.EM); err != nil {
		return nil, err
	}

	_, size, insertPos := l.impl.EvaluateInsert(key, pos)
	insertIdx := int(insertPos.AtStage(nodelayout.StageLeft))
	if insertPos.IsEnd() {
		insertIdx = l.impl.NumKeys()
	}

	if l.impl.FreeSize() >= size {
		if err := l.impl.Insert(insertPos, key, val); err != nil {
			return nil, err
		}
		return l.trackInsert(insertIdx, val), nil
	}

	if l.IsRoot() {
		if err := sess.Tree.upgradeRoot(sess, l); err != nil {
			return nil, err
		}
	}

	right, err := allocateLeaf(sess, l.IsLevelTail())
	if err != nil {
		return nil, err
	}

	splitPos, insertLeft, err := l.impl.SplitInsert(right.impl, insertPos, key, val)
	if err != nil {
		return nil, err
	}
	splitIdx := int(splitPos.AtStage(nodelayout.StageLeft))

	l.trackSplitFixup(splitIdx, right)

	var cur *Cursor
	if insertLeft {
		cur = l.trackInsert(insertIdx, val)
	} else {
		cur = right.trackInsert(insertIdx-splitIdx, val)
	}

	if err := insertParent(sess, l, right); err != nil {
		return nil, err
	}
	return cur, nil
}

// trackInsert implements the leaf track_insert: cursors at or past
// insertIdx are invalidated and shifted one slot right, then a new
// cursor is created at insertIdx referencing val.
func (l *LeafNode) trackInsert(insertIdx int, val objrecord.Record) *Cursor {
	insertPos := nodelayout.AtLeft(insertIdx)
	shifted := make(map[nodelayout.Position]*Cursor, len(l.cursors)+1)
	for pos, cur := range l.cursors {
		if pos.Compare(insertPos) >= 0 {
			cur.invalidate()
			newPos := nodelayout.AtLeft(int(pos.AtStage(nodelayout.StageLeft)) + 1)
			cur.pos = newPos
			shifted[newPos] = cur
		} else {
			shifted[pos] = cur
		}
	}
	l.cursors = shifted

	v := val
	cur := &Cursor{leaf: l, pos: insertPos, pValue: &v}
	l.cursors[insertPos] = cur
	return cur
}

// trackSplitFixup implements the leaf track_split: cursors at or past
// splitIdx are invalidated, rebased onto right, and moved there.
func (l *LeafNode) trackSplitFixup(splitIdx int, right *LeafNode) {
	splitPos := nodelayout.AtLeft(splitIdx)
	for pos, cur := range l.cursors {
		if pos.Compare(splitPos) >= 0 {
			cur.invalidate()
			newPos := pos.Sub(splitPos)
			delete(l.cursors, pos)
			cur.leaf = right
			cur.pos = newPos
			right.cursors[newPos] = cur
		}
	}
}
