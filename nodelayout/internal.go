package nodelayout

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sort"

	"coldtree/extent"
)

// Internal is the on-extent layout and codec for a B+-tree internal
// node: every child has an explicit separator key equal to that
// child's own largest key, so NumKeys always equals NumChildren — no
// keyless "tail" slot. A node's own LargestKeyView is therefore always
// its last stored key, never requiring a descent into a child to
// compute. Grounded on bplustree/node_codec.go's internal encoding,
// generalized from int64 page IDs to extent.Laddr.
type Internal struct {
	hdr      Header
	keys     [][]byte
	children []extent.Laddr
	h        *extent.Handle
}

// NewInternal formats a freshly allocated extent as an internal node
// with a single (key, child) pair — the shape upgrade_root produces
// when growing the tree by one level over the old root.
func NewInternal(h *extent.Handle, level uint8, isLevelTail bool, tailKey []byte, tailChild extent.Laddr) *Internal {
	n := &Internal{
		hdr:      Header{NodeType: TypeInternal, FieldType: FieldN0, IsLevelTail: isLevelTail, Level: level},
		keys:     [][]byte{tailKey},
		children: []extent.Laddr{tailChild},
		h:        h,
	}
	n.flush()
	return n
}

// NewInternalEmpty formats a freshly allocated extent as an internal
// node with no keys and no children — the shape SplitInsert expects
// for a freshly split-off right sibling, which appends into it
// immediately. An internal node with zero entries is not otherwise
// valid; never read one back before SplitInsert fills it in.
func NewInternalEmpty(h *extent.Handle, level uint8, isLevelTail bool) *Internal {
	n := &Internal{
		hdr: Header{NodeType: TypeInternal, FieldType: FieldN0, IsLevelTail: isLevelTail, Level: level},
		h:   h,
	}
	n.flush()
	return n
}

func LoadInternal(h *extent.Handle) (*Internal, error) {
	hdr, err := decodeHeader(h.Bytes())
	if err != nil {
		return nil, err
	}
	if hdr.NodeType != TypeInternal {
		return nil, fmt.Errorf("nodelayout: extent %d is not an internal node", h.Laddr())
	}

	body := h.Bytes()[headerSize:]
	keys, off, err := decodeKeys(body, int(hdr.NumKeys))
	if err != nil {
		return nil, fmt.Errorf("nodelayout: internal %d: %w", h.Laddr(), err)
	}

	children := make([]extent.Laddr, hdr.NumKeys)
	childBytes := body[off:]
	for i := range children {
		start := i * 8
		children[i] = extent.Laddr(binary.LittleEndian.Uint64(childBytes[start : start+8]))
	}

	return &Internal{hdr: hdr, keys: keys, children: children, h: h}, nil
}

func (n *Internal) Laddr() extent.Laddr  { return n.h.Laddr() }
func (n *Internal) FieldType() FieldType { return n.hdr.FieldType }
func (n *Internal) IsLevelTail() bool    { return n.hdr.IsLevelTail }
func (n *Internal) Level() uint8         { return n.hdr.Level }
func (n *Internal) NumKeys() int         { return len(n.keys) }
func (n *Internal) NumChildren() int     { return len(n.children) }

func (n *Internal) SetLevelTail(tail bool) {
	n.hdr.IsLevelTail = tail
	n.flush()
}

func (n *Internal) FreeSize() int {
	used := headerSize + keysEncodedSize(n.keys) + len(n.children)*8
	return extent.NodeBlockSize - used
}

func internalEntrySize(key []byte) int { return keyLenPrefix + len(key) + 8 }

func (n *Internal) PrepareMutate(ctx context.Context, txID uint64, em extent.Manager) error {
	h, err := em.PrepareMutate(ctx, txID, n.h)
	if err != nil {
		return fmt.Errorf("nodelayout: prepare mutate internal %d: %w", n.h.Laddr(), err)
	}
	n.h = h
	return nil
}

// LowerBound finds the child position covering key: the smallest i
// such that key <= keys[i]. A key greater than every stored key clamps
// to the last child — correct precisely when this node is level-tail,
// the only case in which a key can legitimately exceed every entry.
func (n *Internal) LowerBound(key []byte) (Position, MatchKind) {
	i := sort.Search(len(n.keys), func(i int) bool {
		return bytes.Compare(n.keys[i], key) >= 0
	})
	if i == len(n.keys) {
		return AtLeft(len(n.keys) - 1), MatchLT
	}
	if bytes.Equal(n.keys[i], key) {
		return AtLeft(i), MatchEQ
	}
	return AtLeft(i), MatchLT
}

func (n *Internal) ChildAt(pos Position) (extent.Laddr, bool) {
	i := int(pos.AtStage(StageLeft))
	if i < 0 || i >= len(n.children) {
		return extent.InvalidLaddr, false
	}
	return n.children[i], true
}

func (n *Internal) TailChild() extent.Laddr {
	return n.children[len(n.children)-1]
}

// EvaluateInsert reports the cost of inserting a new (separatorKey,
// child) pair at pos — apply_child_split's way of recording that the
// node just to the left of pos was split off and needs a separator.
func (n *Internal) EvaluateInsert(separatorKey []byte, pos Position) (Stage, int, Position) {
	return StageLeft, internalEntrySize(separatorKey), pos
}

// Insert splices a new separator key and the child address it
// introduces at pos, shifting every key/child at or past pos right by
// one slot.
func (n *Internal) Insert(pos Position, separatorKey []byte, child extent.Laddr) error {
	i := int(pos.AtStage(StageLeft))
	if pos.IsEnd() || i >= len(n.keys) {
		i = len(n.keys)
	}

	n.keys = append(n.keys, nil)
	copy(n.keys[i+1:], n.keys[i:])
	n.keys[i] = separatorKey

	n.children = append(n.children, extent.InvalidLaddr)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = child

	n.hdr.NumKeys = uint16(len(n.keys))
	n.flush()
	return nil
}

// ReplaceChildAddr overwrites the child address at childIdx in place
// without touching its separator key — apply_child_split's step 2,
// which repoints an existing slot at the right half of a split child
// while leaving the (still-correct) separator key alone.
func (n *Internal) ReplaceChildAddr(childIdx int, addr extent.Laddr) error {
	if childIdx < 0 || childIdx >= len(n.children) {
		return fmt.Errorf("nodelayout: replace child addr: index %d out of range (have %d)", childIdx, len(n.children))
	}
	n.children[childIdx] = addr
	n.flush()
	return nil
}

// SplitInsert splits this node's upper half into right, then inserts
// the new separator/child pair into whichever side pos now falls in.
func (n *Internal) SplitInsert(right *Internal, pos Position, separatorKey []byte, child extent.Laddr) (Position, bool, error) {
	mid := len(n.keys) / 2
	splitPos := AtLeft(mid)

	right.keys = append(right.keys, n.keys[mid:]...)
	right.children = append(right.children, n.children[mid:]...)
	n.keys = n.keys[:mid]
	n.children = n.children[:mid]

	n.hdr.NumKeys = uint16(len(n.keys))
	right.hdr.NumKeys = uint16(len(right.keys))
	right.hdr.Level = n.hdr.Level
	right.hdr.IsLevelTail = n.hdr.IsLevelTail
	n.hdr.IsLevelTail = false

	insertLeft := pos.Less(splitPos) || pos.Equal(splitPos)
	if insertLeft {
		if err := n.Insert(pos, separatorKey, child); err != nil {
			return Position{}, false, err
		}
	} else {
		if err := right.Insert(pos.Sub(splitPos), separatorKey, child); err != nil {
			return Position{}, false, err
		}
	}

	n.flush()
	right.flush()
	return splitPos, insertLeft, nil
}

func (n *Internal) GetKeyView(pos Position) ([]byte, bool) {
	if pos.IsEnd() {
		return nil, false
	}
	i := int(pos.AtStage(StageLeft))
	if i < 0 || i >= len(n.keys) {
		return nil, false
	}
	return n.keys[i], true
}

func (n *Internal) LargestKeyView() ([]byte, bool) {
	if len(n.keys) == 0 {
		return nil, false
	}
	return n.keys[len(n.keys)-1], true
}

func (n *Internal) flush() {
	buf := n.h.MutableBytes()
	n.hdr.encode(buf)
	off := headerSize
	off += encodeKeys(buf[off:], n.keys)
	for _, c := range n.children {
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(c))
		off += 8
	}
	for ; off < len(buf); off++ {
		buf[off] = 0
	}
}
