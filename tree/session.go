// Package tree is the node orchestration layer. It loads and
// constructs Node objects atop extents, performs tracked top-down
// search, inserts values with free-space evaluation and split
// propagation, and keeps parent/child and leaf/cursor tracking maps
// consistent through every structural mutation.
//
// Grounded on the shape of bplustree/find_leaf.go, insertion.go,
// parent_insert.go, and split_internal.go — pin while descending,
// append-then-check-overflow, split-then-recurse-into-parent —
// generalized to copy-on-write (nothing mutates without PrepareMutate
// first) and to the parent/cursor tracking an in-place tree never
// needs, since it never keeps handles alive across a split.
package tree

import (
	"context"

	"coldtree/extent"
	"coldtree/super"
)

// Session bundles the dependencies every node operation within one
// transaction needs: ctx and a bare txnID threaded through every call
// rather than stored on long-lived objects. Built once per Tree method
// call, passed by pointer through the recursive descent.
type Session struct {
	Ctx  context.Context
	TxID uint64
	EM   extent.Manager
	Root *super.Tracker
	Tree *Tree
}

func (t *Tree) session(ctx context.Context, txID uint64) *Session {
	return &Session{Ctx: ctx, TxID: txID, EM: t.EM, Root: t.Root, Tree: t}
}
