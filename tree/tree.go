package tree

import (
	"context"
	"fmt"
	"io"
	"strings"

	"coldtree/extent"
	"coldtree/nodelayout"
	"coldtree/objrecord"
	"coldtree/super"
)

// Tree is the public entry point: an object-metadata index backed by
// an extent manager and a superblock root tracker. One Tree can serve
// many transactions; all per-call state lives in a Session.
type Tree struct {
	EM   extent.Manager
	Root *super.Tracker
}

func New(em extent.Manager, root *super.Tracker) *Tree {
	return &Tree{EM: em, Root: root}
}

// Mkfs implements mkfs: allocates a fresh empty leaf as root and
// installs it in the Root Tracker. Call once, before the first
// LoadRoot, on a fresh extent manager.
func (t *Tree) Mkfs(ctx context.Context, txID uint64) error {
	sess := t.session(ctx, txID)

	leaf, err := allocateLeaf(sess, true)
	if err != nil {
		return err
	}
	if err := t.Root.WriteRootLaddr(ctx, txID, leaf.Laddr(), leaf.Level()); err != nil {
		return err
	}
	leaf.asRoot(txID)
	t.Root.DoTrackRoot(txID, leaf)
	return nil
}

// LoadRoot implements load_root: reads the superblock via the Root
// Tracker and loads (or reuses the already-tracked instance of) the
// current root.
func (t *Tree) LoadRoot(ctx context.Context, txID uint64) (Node, error) {
	if n, ok := t.Root.TrackedRoot(txID); ok {
		return n.(Node), nil
	}

	addr, level, ok, err := t.Root.GetRootLaddr(ctx, txID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("tree: no root written for transaction %d — call Mkfs first", txID)
	}

	sess := t.session(ctx, txID)
	n, err := loadNode(sess, addr, true)
	if err != nil {
		return nil, err
	}
	if n.Level() != level {
		return nil, fmt.Errorf("tree: contract violation: superblock level %d does not match loaded root level %d", level, n.Level())
	}

	n.asRoot(txID)
	t.Root.DoTrackRoot(txID, n)
	return n, nil
}

// loadNode reads the extent at addr and constructs the node flavor its
// header declares, per the Node Implementation `load` contract.
func loadNode(sess *Session, addr extent.Laddr, expectLevelTail bool) (Node, error) {
	h, err := sess.EM.ReadExtent(sess.Ctx, sess.TxID, addr)
	if err != nil {
		return nil, err
	}

	nt, err := nodelayout.PeekType(h.Bytes())
	if err != nil {
		return nil, fmt.Errorf("tree: load %d: %w", addr, err)
	}

	switch nt {
	case nodelayout.TypeLeaf:
		impl, err := nodelayout.LoadLeaf(h)
		if err != nil {
			return nil, err
		}
		if impl.IsLevelTail() != expectLevelTail {
			return nil, fmt.Errorf("tree: contract violation: leaf %d is_level_tail=%v, expected %v", addr, impl.IsLevelTail(), expectLevelTail)
		}
		return newLeafNode(impl), nil
	case nodelayout.TypeInternal:
		impl, err := nodelayout.LoadInternal(h)
		if err != nil {
			return nil, err
		}
		if impl.IsLevelTail() != expectLevelTail {
			return nil, fmt.Errorf("tree: contract violation: internal %d is_level_tail=%v, expected %v", addr, impl.IsLevelTail(), expectLevelTail)
		}
		return newInternalNode(impl), nil
	default:
		return nil, fmt.Errorf("tree: load %d: unknown node type %d", addr, nt)
	}
}

// upgradeRoot implements upgrade_root, sequenced exactly as the design
// note prescribes: (1) detach old, (2) allocate new, (3) install new,
// (4) re-attach old as child.
func (t *Tree) upgradeRoot(sess *Session, old Node) error {
	if !old.IsRoot() {
		panic("tree: contract violation: upgrade_root precondition requires root")
	}
	if !old.IsLevelTail() {
		panic("tree: contract violation: upgrade_root precondition requires is_level_tail")
	}
	if old.FieldType() != nodelayout.FieldN0 {
		panic("tree: contract violation: upgrade_root precondition requires field-type N0")
	}

	oldAddr := old.Laddr()
	oldLevel := old.Level()
	oldKey, ok := old.largestKeyView()
	if !ok {
		panic("tree: contract violation: upgrade_root on a node with no largest key")
	}

	t.Root.DoUntrackRoot(sess.TxID)
	old.clearLinks()

	newRoot, err := allocateInternalRoot(sess, oldLevel+1, oldKey, oldAddr)
	if err != nil {
		return err
	}
	if err := t.Root.WriteRootLaddr(sess.Ctx, sess.TxID, newRoot.Laddr(), newRoot.Level()); err != nil {
		return err
	}
	newRoot.asRoot(sess.TxID)
	t.Root.DoTrackRoot(sess.TxID, newRoot)

	return newRoot.attachChild(nodelayout.EndPosition, old, true)
}

// insertParent is the recursive upward walk that follows a leaf or
// internal split: find splitLeft's parent (growing the root first if
// splitLeft was the root), then apply the split there.
func insertParent(sess *Session, splitLeft Node, right Node) error {
	if splitLeft.IsRoot() {
		if err := sess.Tree.upgradeRoot(sess, splitLeft); err != nil {
			return err
		}
	}
	parent, pos, ok := splitLeft.parentInfo()
	if !ok {
		return fmt.Errorf("tree: contract violation: split node %d has no parent after upgrade_root", splitLeft.Laddr())
	}
	return parent.applyChildSplit(sess, pos, splitLeft, right)
}

// LowerBound implements lower_bound: recursive descent from the
// current root carrying a fresh MatchHistory.
func (t *Tree) LowerBound(ctx context.Context, txID uint64, key []byte) (SearchResult, error) {
	sess := t.session(ctx, txID)
	root, err := t.LoadRoot(ctx, txID)
	if err != nil {
		return SearchResult{}, err
	}
	var hist nodelayout.MatchHistory
	return root.lowerBoundTracked(sess, key, &hist)
}

// Insert implements insert: issues lower_bound_tracked; an EQ match
// returns the existing cursor unchanged; otherwise insert_value runs
// on the resolved leaf and the new cursor is returned.
func (t *Tree) Insert(ctx context.Context, txID uint64, key []byte, val objrecord.Record) (*Cursor, bool, error) {
	sess := t.session(ctx, txID)
	root, err := t.LoadRoot(ctx, txID)
	if err != nil {
		return nil, false, err
	}

	var hist nodelayout.MatchHistory
	res, err := root.lowerBoundTracked(sess, key, &hist)
	if err != nil {
		return nil, false, err
	}
	if res.Match == nodelayout.MatchEQ {
		return res.Cursor, false, nil
	}

	leaf := res.Cursor.Leaf()
	if leaf == nil {
		return nil, false, fmt.Errorf("tree: contract violation: LT match produced a cursor with no leaf")
	}
	cur, err := leaf.insertValue(sess, key, val, res.Cursor.Position())
	if err != nil {
		return nil, false, err
	}
	return cur, true, nil
}

// LookupSmallest implements lookup_smallest: descend to the child at
// begin() at every level. On an empty tree, returns a detached
// end-sentinel cursor.
func (t *Tree) LookupSmallest(ctx context.Context, txID uint64) (*Cursor, error) {
	sess := t.session(ctx, txID)
	root, err := t.LoadRoot(ctx, txID)
	if err != nil {
		return nil, err
	}
	return root.lookupSmallest(sess)
}

// LookupLargest descends the tail chain at every level.
func (t *Tree) LookupLargest(ctx context.Context, txID uint64) (*Cursor, error) {
	sess := t.session(ctx, txID)
	root, err := t.LoadRoot(ctx, txID)
	if err != nil {
		return nil, err
	}
	return root.lookupLargest(sess)
}

// Dump writes a full recursive rendering of the tree to w, grounded on
// bplustree/inspect.go's BFS-over-pages dump.
func (t *Tree) Dump(ctx context.Context, txID uint64, w io.Writer) error {
	sess := t.session(ctx, txID)
	root, err := t.LoadRoot(ctx, txID)
	if err != nil {
		return err
	}
	return dumpNode(sess, w, root, 0)
}

func dumpNode(sess *Session, w io.Writer, n Node, depth int) error {
	indent := strings.Repeat("  ", depth)
	switch node := n.(type) {
	case *LeafNode:
		fmt.Fprintf(w, "%sleaf laddr=%d level_tail=%v keys=%d\n", indent, node.Laddr(), node.IsLevelTail(), node.impl.NumKeys())
		for i := 0; i < node.impl.NumKeys(); i++ {
			pos := nodelayout.AtLeft(i)
			key, _ := node.impl.GetKeyView(pos)
			val, _ := node.impl.GetValue(pos)
			fmt.Fprintf(w, "%s  %x -> %s\n", indent, key, val.String())
		}
		return nil
	case *InternalNode:
		fmt.Fprintf(w, "%sinternal laddr=%d level=%d level_tail=%v keys=%d\n", indent, node.Laddr(), node.Level(), node.IsLevelTail(), node.impl.NumKeys())
		for i := 0; i < node.impl.NumChildren(); i++ {
			addr, ok := node.impl.ChildAt(nodelayout.AtLeft(i))
			if !ok {
				continue
			}
			pos := node.treePos(i)
			child, err := node.getOrTrackChild(sess, pos, i, addr)
			if err != nil {
				return err
			}
			if err := dumpNode(sess, w, child, depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("tree: dump: unrecognized node type %T", n)
	}
}

// DumpBrief writes a one-line root summary plus per-level node and key
// counts, cheaper than Dump for large trees.
func (t *Tree) DumpBrief(ctx context.Context, txID uint64, w io.Writer) error {
	sess := t.session(ctx, txID)
	root, err := t.LoadRoot(ctx, txID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "root: laddr=%d level=%d level_tail=%v\n", root.Laddr(), root.Level(), root.IsLevelTail())
	return dumpBriefLevel(sess, w, []Node{root}, 0)
}

func dumpBriefLevel(sess *Session, w io.Writer, level []Node, depth int) error {
	if len(level) == 0 {
		return nil
	}
	totalKeys := 0
	var next []Node
	for _, n := range level {
		switch node := n.(type) {
		case *LeafNode:
			totalKeys += node.impl.NumKeys()
		case *InternalNode:
			totalKeys += node.impl.NumKeys()
			for i := 0; i < node.impl.NumChildren(); i++ {
				addr, ok := node.impl.ChildAt(nodelayout.AtLeft(i))
				if !ok {
					continue
				}
				pos := node.treePos(i)
				child, err := node.getOrTrackChild(sess, pos, i, addr)
				if err != nil {
					return err
				}
				next = append(next, child)
			}
		}
	}
	fmt.Fprintf(w, "  level %d: %d node(s), %d key(s)\n", depth, len(level), totalKeys)
	return dumpBriefLevel(sess, w, next, depth+1)
}
