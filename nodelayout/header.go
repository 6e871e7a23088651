// Package nodelayout is the on-extent node-implementation layer:
// per-node-flavor layout, key/value codec, lower_bound/evaluate_insert/
// insert/split_insert, and free-space accounting. It has no knowledge
// of parent/child tracking, cursors, or root management — that is the
// tree package's job.
//
// Grounded on bplustree/node_codec.go's length-prefixed key encoding and
// fixed header, and bplustree/binary_search.go's sorted-key search,
// generalized to a node_header_t (node_type + field_type) and the
// evaluate_insert/insert/split_insert contract.
package nodelayout

import (
	"encoding/binary"
	"errors"
	"fmt"
)

type NodeType uint8

const (
	TypeLeaf NodeType = iota
	TypeInternal
)

// FieldType is the layout family for a node's key/value encoding,
// ordered by generality; a parent's FieldType must never exceed its
// child's. Only FieldN0 is ever constructed by this tree — see
// DESIGN.md's Open Question decision — but the ordered enum and the
// invariant check against it are real.
type FieldType uint8

const (
	FieldN0 FieldType = iota
	FieldN1
	FieldN2
	FieldN3
)

func (f FieldType) Valid() bool { return f <= FieldN3 }

func (f FieldType) String() string {
	names := [...]string{"N0", "N1", "N2", "N3"}
	if int(f) < len(names) {
		return names[f]
	}
	return fmt.Sprintf("FieldType(%d)", f)
}

// ErrBadFieldType is a decode error: a header's field-type byte is not
// a recognized variant. Fatal, propagated.
var ErrBadFieldType = errors.New("nodelayout: header has unrecognized field type")

// headerSize is the fixed bit-exact prefix of every extent: node_type
// (1) field_type (1) is_level_tail (1) level (1) num_keys (2), padded
// to an 8-byte boundary.
const headerSize = 8

type Header struct {
	NodeType    NodeType
	FieldType   FieldType
	IsLevelTail bool
	Level       uint8
	NumKeys     uint16
}

// PeekType decodes just enough of an extent's header to tell the
// caller which node flavor to fully decode — the first step of the
// Node Implementation layer's load contract.
func PeekType(b []byte) (NodeType, error) {
	hdr, err := decodeHeader(b)
	if err != nil {
		return 0, err
	}
	return hdr.NodeType, nil
}

func decodeHeader(b []byte) (Header, error) {
	if len(b) < headerSize {
		return Header{}, fmt.Errorf("nodelayout: extent too short for header: %d bytes", len(b))
	}

	ft := FieldType(b[1])
	if !ft.Valid() {
		return Header{}, fmt.Errorf("nodelayout: field type byte %d: %w", b[1], ErrBadFieldType)
	}

	return Header{
		NodeType:    NodeType(b[0]),
		FieldType:   ft,
		IsLevelTail: b[2] != 0,
		Level:       b[3],
		NumKeys:     binary.LittleEndian.Uint16(b[4:6]),
	}, nil
}

func (h Header) encode(b []byte) {
	b[0] = byte(h.NodeType)
	b[1] = byte(h.FieldType)
	if h.IsLevelTail {
		b[2] = 1
	} else {
		b[2] = 0
	}
	b[3] = h.Level
	binary.LittleEndian.PutUint16(b[4:6], h.NumKeys)
	b[6], b[7] = 0, 0
}
