package tree

import (
	"fmt"

	"coldtree/nodelayout"
	"coldtree/objrecord"
)

// Cursor is an outstanding handle to a (leaf, position, cached value)
// triple — a Tree Cursor. It self-registers with its leaf at
// construction unless its position is the end sentinel, and its cached
// value is invalidated and its position shifted whenever the owning
// leaf is mutated underneath it.
//
// The source models registration/deregistration via constructor and
// destructor. Go has neither, so a Cursor stays registered in its leaf's map for as long as
// a caller holds it; Detach removes it explicitly when a caller is
// done, and leaves that are never revisited simply keep an unreachable
// entry until the leaf itself is dropped — no different in effect from
// a node cache that never shrinks.
type Cursor struct {
	leaf   *LeafNode
	pos    nodelayout.Position
	pValue *objrecord.Record
}

// Position is the cursor's current logical slot within its leaf. It
// may change across a leaf split; it never changes what key it names.
func (c *Cursor) Position() nodelayout.Position { return c.pos }

// Leaf is the cursor's current owning leaf; may change across a split.
func (c *Cursor) Leaf() *LeafNode { return c.leaf }

// GetValue returns the object-metadata record at the cursor's
// position, re-deriving it from the leaf if a prior mutation
// invalidated the cache. Forbidden at the end sentinel.
func (c *Cursor) GetValue() (objrecord.Record, error) {
	if c.pos.IsEnd() {
		return objrecord.Record{}, fmt.Errorf("tree: get_value on end-sentinel cursor")
	}
	if c.pValue == nil {
		v, ok := c.leaf.impl.GetValue(c.pos)
		if !ok {
			panic("tree: contract violation: cursor position not present in its leaf")
		}
		c.pValue = &v
	}
	return *c.pValue, nil
}

func (c *Cursor) invalidate() { c.pValue = nil }

// Detach unregisters the cursor from its leaf's cursor-tracking map.
// Safe to call more than once; a no-op for an end-sentinel cursor,
// which was never tracked.
func (c *Cursor) Detach() {
	if c.pos.IsEnd() || c.leaf == nil {
		return
	}
	if existing, ok := c.leaf.cursors[c.pos]; ok && existing == c {
		delete(c.leaf.cursors, c.pos)
	}
	c.leaf = nil
}
