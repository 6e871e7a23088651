package tree

import (
	"bytes"
	"fmt"

	"coldtree/extent"
	"coldtree/nodelayout"
)

// InternalNode is the child-pointer node component of the orchestration
// layer: it owns the child-tracking map and implements apply_child_split,
// the structural-mutation engine.
type InternalNode struct {
	impl     *nodelayout.Internal
	root     *rootLink
	parent   *parentLink
	children map[nodelayout.Position]Node
}

func newInternalNode(impl *nodelayout.Internal) *InternalNode {
	return &InternalNode{impl: impl, children: make(map[nodelayout.Position]Node)}
}

// allocateInternalEmpty allocates a fresh internal node with no keys
// and no children — the shape SplitInsert expects for a freshly
// split-off right sibling, which fills it in immediately.
func allocateInternalEmpty(sess *Session, level uint8, isLevelTail bool) (*InternalNode, error) {
	h, err := sess.EM.AllocateExtent(sess.Ctx, sess.TxID)
	if err != nil {
		return nil, fmt.Errorf("tree: allocate internal extent: %w", err)
	}
	return newInternalNode(nodelayout.NewInternalEmpty(h, level, isLevelTail)), nil
}

// allocateInternalRoot implements allocate_root: a new tail internal
// node one level above old, whose sole child is old with separator key
// tailKey (old's own largest key).
func allocateInternalRoot(sess *Session, level uint8, tailKey []byte, tailChild extent.Laddr) (*InternalNode, error) {
	h, err := sess.EM.AllocateExtent(sess.Ctx, sess.TxID)
	if err != nil {
		return nil, fmt.Errorf("tree: allocate root extent: %w", err)
	}
	return newInternalNode(nodelayout.NewInternal(h, level, true, tailKey, tailChild)), nil
}

func (p *InternalNode) Laddr() extent.Laddr             { return p.impl.Laddr() }
func (p *InternalNode) Level() uint8                    { return p.impl.Level() }
func (p *InternalNode) FieldType() nodelayout.FieldType { return p.impl.FieldType() }
func (p *InternalNode) IsLevelTail() bool               { return p.impl.IsLevelTail() }
func (p *InternalNode) IsRoot() bool                    { return p.root != nil }
func (p *InternalNode) largestKeyView() ([]byte, bool)  { return p.impl.LargestKeyView() }
func (p *InternalNode) NumKeys() int                    { return p.impl.NumKeys() }
func (p *InternalNode) NumChildren() int                { return p.impl.NumChildren() }

func (p *InternalNode) parentInfo() (*InternalNode, nodelayout.Position, bool) {
	if p.parent == nil {
		return nil, nodelayout.Position{}, false
	}
	return p.parent.parent, p.parent.pos, true
}

func (p *InternalNode) setParentLink(parent *InternalNode, pos nodelayout.Position) {
	p.parent = &parentLink{parent: parent, pos: pos}
}

func (p *InternalNode) asRoot(txID uint64) {
	if p.root != nil || p.parent != nil {
		panic("tree: contract violation: as_root on a node that already has a root or parent link")
	}
	if !p.impl.IsLevelTail() {
		panic("tree: contract violation: as_root precondition requires is_level_tail")
	}
	p.root = &rootLink{txID: txID}
}

func (p *InternalNode) clearLinks() {
	p.root = nil
	p.parent = nil
}

// implIndex converts a tree-tracking position — which may be the End
// sentinel, identifying a level-tail node's tail slot — into the plain
// array index nodelayout.Internal's own accessors expect.
func (p *InternalNode) implIndex(pos nodelayout.Position) int {
	if pos.IsEnd() {
		return p.impl.NumChildren() - 1
	}
	return int(pos.AtStage(nodelayout.StageLeft))
}

// treePos converts a plain array index back into a tracking position,
// promoting the tail slot to the End sentinel when this node is itself
// level-tail — the GLOSSARY's "end sentinel identifies the tail slot of
// a level-tail node".
func (p *InternalNode) treePos(implIdx int) nodelayout.Position {
	if p.IsLevelTail() && implIdx == p.impl.NumChildren()-1 {
		return nodelayout.EndPosition
	}
	return nodelayout.AtLeft(implIdx)
}

func (p *InternalNode) lowerBoundTracked(sess *Session, key []byte, hist *nodelayout.MatchHistory) (SearchResult, error) {
	implPos, match := p.impl.LowerBound(key)
	hist.Set(nodelayout.StageLeft, match)

	implIdx := int(implPos.AtStage(nodelayout.StageLeft))
	childAddr, ok := p.impl.ChildAt(implPos)
	if !ok {
		return SearchResult{}, fmt.Errorf("tree: contract violation: internal node %d has no child at index %d", p.Laddr(), implIdx)
	}

	pos := p.treePos(implIdx)
	child, err := p.getOrTrackChild(sess, pos, implIdx, childAddr)
	if err != nil {
		return SearchResult{}, err
	}
	return child.lowerBoundTracked(sess, key, hist)
}

// getOrTrackChild implements get_or_track_child.
func (p *InternalNode) getOrTrackChild(sess *Session, pos nodelayout.Position, implIdx int, childAddr extent.Laddr) (Node, error) {
	if child, ok := p.children[pos]; ok {
		if child.Laddr() != childAddr {
			panic("tree: contract violation: tracked child address does not match impl")
		}
		return child, nil
	}
	child, err := loadNode(sess, childAddr, pos.IsEnd())
	if err != nil {
		return nil, err
	}
	if err := p.attachChild(pos, child, true); err != nil {
		return nil, err
	}
	return child, nil
}

func (p *InternalNode) attachChild(pos nodelayout.Position, child Node, validate bool) error {
	if validate {
		if err := p.validateChildLink(pos, child); err != nil {
			return err
		}
	}
	child.setParentLink(p, pos)
	p.children[pos] = child
	return nil
}

func (p *InternalNode) validateChildLink(pos nodelayout.Position, child Node) error {
	if p.Level() != child.Level()+1 {
		return fmt.Errorf("tree: contract violation: parent %d level %d != child %d level %d + 1", p.Laddr(), p.Level(), child.Laddr(), child.Level())
	}

	implIdx := p.implIndex(pos)
	addr, ok := p.impl.ChildAt(nodelayout.AtLeft(implIdx))
	if !ok || addr != child.Laddr() {
		return fmt.Errorf("tree: contract violation: parent %d does not address child %d at %v", p.Laddr(), child.Laddr(), pos)
	}
	if pos.IsEnd() != child.IsLevelTail() {
		return fmt.Errorf("tree: contract violation: end-position/level-tail mismatch for child %d", child.Laddr())
	}
	if pos.IsEnd() && child.IsLevelTail() != p.IsLevelTail() {
		return fmt.Errorf("tree: contract violation: level-tail chain broken at child %d", child.Laddr())
	}
	if !pos.IsEnd() {
		key, ok := p.impl.GetKeyView(nodelayout.AtLeft(implIdx))
		largest, lok := child.largestKeyView()
		if !ok || !lok || !bytes.Equal(key, largest) {
			return fmt.Errorf("tree: contract violation: separator key mismatch for child %d", child.Laddr())
		}
	}
	if p.FieldType() > child.FieldType() {
		return fmt.Errorf("tree: contract violation: parent %d field-type %v exceeds child %d field-type %v", p.Laddr(), p.FieldType(), child.Laddr(), child.FieldType())
	}
	return nil
}

// replaceTrack implements replace_track.
func (p *InternalNode) replaceTrack(pos nodelayout.Position, newChild, oldChild Node) {
	existing, ok := p.children[pos]
	if !ok || existing != oldChild {
		panic("tree: contract violation: replace_track target mismatch")
	}
	oldChild.clearLinks()
	newChild.setParentLink(p, pos)
	p.children[pos] = newChild
}

// trackInsert implements track_insert: children at or past insertIdx
// shift one slot right, then child is attached at insertIdx.
func (p *InternalNode) trackInsert(insertIdx int, child Node) {
	insertPos := nodelayout.AtLeft(insertIdx)
	shifted := make(map[nodelayout.Position]Node, len(p.children)+1)
	for pos, c := range p.children {
		if pos.IsEnd() {
			shifted[pos] = c
			continue
		}
		idx := int(pos.AtStage(nodelayout.StageLeft))
		if idx >= insertIdx {
			newPos := nodelayout.AtLeft(idx + 1)
			c.setParentLink(p, newPos)
			shifted[newPos] = c
		} else {
			shifted[pos] = c
		}
	}
	p.children = shifted

	child.setParentLink(p, insertPos)
	p.children[insertPos] = child
}

// trackSplit implements track_split: every tracked child at or past
// splitIdx (End always qualifies, since a split always moves
// level-tail status to right) is rebased and moved onto right.
func (p *InternalNode) trackSplit(splitIdx int, right *InternalNode) {
	splitPos := nodelayout.AtLeft(splitIdx)
	for pos, child := range p.children {
		if pos.Compare(splitPos) >= 0 {
			newPos := pos.Sub(splitPos)
			delete(p.children, pos)
			child.setParentLink(right, newPos)
			right.children[newPos] = child
		}
	}
}

// applyChildSplit implements apply_child_split, the structural mutation
// primitive: left just split into (left, right) one level down, and
// this node needs its key→child slot for left repointed at right, plus
// a new separator entry recording left.
func (p *InternalNode) applyChildSplit(sess *Session, pos nodelayout.Position, left, right Node) error {
	if err := p.impl.PrepareMutate(sess.Ctx, sess.TxID, sess.EM); err != nil {
		return err
	}

	implIdx := p.implIndex(pos)
	if err := p.impl.ReplaceChildAddr(implIdx, right.Laddr()); err != nil {
		return err
	}
	p.replaceTrack(pos, right, left)

	largest, ok := left.largestKeyView()
	if !ok {
		return fmt.Errorf("tree: contract violation: split child %d has no largest key", left.Laddr())
	}
	_, size, insertPos := p.impl.EvaluateInsert(largest, nodelayout.AtLeft(implIdx))
	insertIdx := int(insertPos.AtStage(nodelayout.StageLeft))

	if p.impl.FreeSize() >= size {
		if err := p.impl.Insert(insertPos, largest, left.Laddr()); err != nil {
			return err
		}
		p.trackInsert(insertIdx, left)
		return nil
	}

	if p.IsRoot() {
		if err := sess.Tree.upgradeRoot(sess, p); err != nil {
			return err
		}
	}

	rightSibling, err := allocateInternalEmpty(sess, p.Level(), p.IsLevelTail())
	if err != nil {
		return err
	}

	splitPos, insertLeft, err := p.impl.SplitInsert(rightSibling.impl, insertPos, largest, left.Laddr())
	if err != nil {
		return err
	}
	splitIdx := int(splitPos.AtStage(nodelayout.StageLeft))

	p.trackSplit(splitIdx, rightSibling)

	if insertLeft {
		p.trackInsert(insertIdx, left)
	} else {
		rightSibling.trackInsert(insertIdx-splitIdx, left)
	}

	return insertParent(sess, p, rightSibling)
}

func (p *InternalNode) lookupSmallest(sess *Session) (*Cursor, error) {
	implIdx := 0
	addr, ok := p.impl.ChildAt(nodelayout.AtLeft(implIdx))
	if !ok {
		return nil, fmt.Errorf("tree: contract violation: internal node %d has no children", p.Laddr())
	}
	pos := p.treePos(implIdx)
	child, err := p.getOrTrackChild(sess, pos, implIdx, addr)
	if err != nil {
		return nil, err
	}
	return child.lookupSmallest(sess)
}

func (p *InternalNode) lookupLargest(sess *Session) (*Cursor, error) {
	implIdx := p.impl.NumChildren() - 1
	addr := p.impl.TailChild()
	pos := p.treePos(implIdx)
	child, err := p.getOrTrackChild(sess, pos, implIdx, addr)
	if err != nil {
		return nil, err
	}
	return child.lookupLargest(sess)
}
