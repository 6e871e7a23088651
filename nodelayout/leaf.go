package nodelayout

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"coldtree/extent"
	"coldtree/objrecord"
)

// Leaf is the on-extent layout and codec for a B+-tree leaf: sorted
// keys paired one-to-one with fixed-width objrecord.Record values.
// Grounded on bplustree/node_codec.go's leaf encoding and
// bplustree/binary_search.go's sorted lookup, narrowed to a single
// key/value shape per the FieldN0-only Open Question decision.
type Leaf struct {
	hdr  Header
	keys [][]byte
	vals []objrecord.Record
	h    *extent.Handle
}

// NewLeaf formats a freshly allocated extent as an empty leaf.
func NewLeaf(h *extent.Handle, isLevelTail bool) *Leaf {
	l := &Leaf{
		hdr: Header{NodeType: TypeLeaf, FieldType: FieldN0, IsLevelTail: isLevelTail, Level: 0},
		h:   h,
	}
	l.flush()
	return l
}

// LoadLeaf decodes an existing extent as a leaf.
func LoadLeaf(h *extent.Handle) (*Leaf, error) {
	hdr, err := decodeHeader(h.Bytes())
	if err != nil {
		return nil, err
	}
	if hdr.NodeType != TypeLeaf {
		return nil, fmt.Errorf("nodelayout: extent %d is not a leaf", h.Laddr())
	}

	body := h.Bytes()[headerSize:]
	keys, off, err := decodeKeys(body, int(hdr.NumKeys))
	if err != nil {
		return nil, fmt.Errorf("nodelayout: leaf %d: %w", h.Laddr(), err)
	}

	vals := make([]objrecord.Record, hdr.NumKeys)
	valBytes := body[off:]
	for i := range vals {
		start := i * objrecord.Size
		rec, err := objrecord.Decode(valBytes[start : start+objrecord.Size])
		if err != nil {
			return nil, fmt.Errorf("nodelayout: leaf %d value %d: %w", h.Laddr(), i, err)
		}
		vals[i] = rec
	}

	return &Leaf{hdr: hdr, keys: keys, vals: vals, h: h}, nil
}

func (l *Leaf) Laddr() extent.Laddr   { return l.h.Laddr() }
func (l *Leaf) FieldType() FieldType  { return l.hdr.FieldType }
func (l *Leaf) IsLevelTail() bool     { return l.hdr.IsLevelTail }
func (l *Leaf) NumKeys() int          { return len(l.keys) }
func (l *Leaf) SetLevelTail(tail bool) {
	l.hdr.IsLevelTail = tail
	l.flush()
}

// FreeSize is the number of unused bytes left in the extent, the
// free_size used by insert_value to decide whether a split is needed
// before inserting.
func (l *Leaf) FreeSize() int {
	used := headerSize + keysEncodedSize(l.keys) + len(l.vals)*objrecord.Size
	return extent.NodeBlockSize - used
}

func entrySize(key []byte) int { return keyLenPrefix + len(key) + objrecord.Size }

// PrepareMutate obtains a private, writable copy of this leaf's extent
// for txID, swapping it in so subsequent Insert/SplitInsert calls write
// through the transaction-local overlay rather than the shared handle.
func (l *Leaf) PrepareMutate(ctx context.Context, txID uint64, em extent.Manager) error {
	h, err := em.PrepareMutate(ctx, txID, l.h)
	if err != nil {
		return fmt.Errorf("nodelayout: prepare mutate leaf %d: %w", l.h.Laddr(), err)
	}
	l.h = h
	return nil
}

// LowerBound returns the smallest position whose key is >= key, and
// whether that position's key equals key exactly. A position equal to
// EndPosition means every key in the leaf is less than key.
func (l *Leaf) LowerBound(key []byte) (Position, MatchKind) {
	i := sort.Search(len(l.keys), func(i int) bool {
		return bytes.Compare(l.keys[i], key) >= 0
	})
	if i == len(l.keys) {
		return EndPosition, MatchLT
	}
	if bytes.Equal(l.keys[i], key) {
		return AtLeft(i), MatchEQ
	}
	return AtLeft(i), MatchLT
}

// EvaluateInsert reports the stage and byte cost of inserting key at
// pos, and the position insertion should actually occur at (identical
// to pos for this tree's single-stage layout).
func (l *Leaf) EvaluateInsert(key []byte, pos Position) (Stage, int, Position) {
	return StageLeft, entrySize(key), pos
}

// Insert splices key/val into this leaf at pos, which must have come
// from EvaluateInsert/LowerBound and must leave FreeSize() non-negative
// after the write — callers are expected to have split first otherwise.
func (l *Leaf) Insert(pos Position, key []byte, val objrecord.Record) error {
	if pos.IsEnd() {
		l.keys = append(l.keys, key)
		l.vals = append(l.vals, val)
	} else {
		i := int(pos.AtStage(StageLeft))
		l.keys = append(l.keys, nil)
		copy(l.keys[i+1:], l.keys[i:])
		l.keys[i] = key

		l.vals = append(l.vals, objrecord.Record{})
		copy(l.vals[i+1:], l.vals[i:])
		l.vals[i] = val
	}
	l.hdr.NumKeys = uint16(len(l.keys))
	l.flush()
	return nil
}

// SplitInsert splits this leaf's upper half into right (an empty leaf
// freshly allocated by the caller), then inserts key/val into whichever
// side pos now falls in. It returns the separator position within the
// pre-split leaf and whether the insert landed on the left (this) side.
func (l *Leaf) SplitInsert(right *Leaf, pos Position, key []byte, val objrecord.Record) (Position, bool, error) {
	mid := len(l.keys) / 2
	splitPos := AtLeft(mid)

	right.keys = append(right.keys, l.keys[mid:]...)
	right.vals = append(right.vals, l.vals[mid:]...)
	l.keys = l.keys[:mid]
	l.vals = l.vals[:mid]

	l.hdr.NumKeys = uint16(len(l.keys))
	right.hdr.NumKeys = uint16(len(right.keys))
	right.hdr.IsLevelTail = l.hdr.IsLevelTail
	l.hdr.IsLevelTail = false

	insertLeft := pos.Less(splitPos) || pos.Equal(splitPos)
	if insertLeft {
		if err := l.Insert(pos, key, val); err != nil {
			return Position{}, false, err
		}
	} else {
		if err := right.Insert(pos.Sub(splitPos), key, val); err != nil {
			return Position{}, false, err
		}
	}

	l.flush()
	right.flush()
	return splitPos, insertLeft, nil
}

func (l *Leaf) GetKeyView(pos Position) ([]byte, bool) {
	if pos.IsEnd() {
		return nil, false
	}
	i := int(pos.AtStage(StageLeft))
	if i < 0 || i >= len(l.keys) {
		return nil, false
	}
	return l.keys[i], true
}

func (l *Leaf) GetValue(pos Position) (objrecord.Record, bool) {
	if pos.IsEnd() {
		return objrecord.Record{}, false
	}
	i := int(pos.AtStage(StageLeft))
	if i < 0 || i >= len(l.vals) {
		return objrecord.Record{}, false
	}
	return l.vals[i], true
}

func (l *Leaf) LargestKeyView() ([]byte, bool) {
	if len(l.keys) == 0 {
		return nil, false
	}
	return l.keys[len(l.keys)-1], true
}

func (l *Leaf) LargestValue() (objrecord.Record, bool) {
	if len(l.vals) == 0 {
		return objrecord.Record{}, false
	}
	return l.vals[len(l.vals)-1], true
}

func (l *Leaf) flush() {
	buf := l.h.MutableBytes()
	l.hdr.encode(buf)
	off := headerSize
	off += encodeKeys(buf[off:], l.keys)
	for _, v := range l.vals {
		copy(buf[off:off+objrecord.Size], v.Encode())
		off += objrecord.Size
	}
	for ; off < len(buf); off++ {
		buf[off] = 0
	}
}
