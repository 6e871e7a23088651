package tree

import (
	"coldtree/extent"
	"coldtree/nodelayout"
)

// Node is the common contract Internal and Leaf nodes both satisfy: the
// abstract "Node" component of the orchestration layer. A Node is
// either the root (has a Super handle registered with the Root
// Tracker, no parent link) or a child (has a parent link, no Super
// handle) — never both, never neither, once attached.
type Node interface {
	Laddr() extent.Laddr
	Level() uint8
	FieldType() nodelayout.FieldType
	IsLevelTail() bool
	IsRoot() bool

	// largestKeyView is the key a parent's separator must equal for
	// this node's tracked position, the cross-child invariant. Leaves
	// and internal nodes both delegate to their impl.
	largestKeyView() ([]byte, bool)

	// parentInfo reports this node's parent link, if it has one.
	parentInfo() (*InternalNode, nodelayout.Position, bool)
	setParentLink(parent *InternalNode, pos nodelayout.Position)
	asRoot(txID uint64)
	clearLinks()

	lowerBoundTracked(sess *Session, key []byte, hist *nodelayout.MatchHistory) (SearchResult, error)
	lookupSmallest(sess *Session) (*Cursor, error)
	lookupLargest(sess *Session) (*Cursor, error)
}

// SearchResult is what lower_bound returns: the cursor at the
// resolved position and whether that position was an exact key match.
type SearchResult struct {
	Cursor *Cursor
	Match  nodelayout.MatchKind
}

// rootLink marks a Node as the current root of txID's view of the
// tree — the Go stand-in for a Super handle, which this Node alone
// holds among all nodes live in the transaction.
type rootLink struct {
	txID uint64
}

// parentLink marks a Node as a child: which InternalNode owns it, and
// at what position within that parent's child-tracking map.
type parentLink struct {
	parent *InternalNode
	pos    nodelayout.Position
}
