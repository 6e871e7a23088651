// Package objrecord defines the fixed-shape object-metadata record that
// this tree's leaves map keys to — an external "object-record binary
// format" collaborator, outside the node-orchestration core.
//
// Grounded on types/row.go's RowPointer (FileID/PageNumber/SlotIndex,
// 10 bytes, rendered by bplustree/inspect.go's formatRowPointer),
// generalized from a heap-row locator to an object-store metadata
// record: a locator into the log-structured store plus the bookkeeping
// an object index needs (size, checksum).
package objrecord

import (
	"encoding/binary"
	"fmt"
)

// Size is the fixed on-extent width of a Record: a fixed-shape object
// metadata record.
const Size = 24

// Pointer locates an object's bytes within the log-structured store:
// the extent/segment holding it and a byte offset within that segment.
type Pointer struct {
	SegmentID uint32
	Offset    uint32
}

// Record is the value a leaf stores per key: where the object lives,
// how big it is, and a checksum of its content for integrity checks on
// read. 24 bytes: SegmentID(4) Offset(4) Length(8) Checksum(8).
type Record struct {
	Loc      Pointer
	Length   uint64
	Checksum uint64
}

func (r Record) Encode() []byte {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint32(buf[0:4], r.Loc.SegmentID)
	binary.LittleEndian.PutUint32(buf[4:8], r.Loc.Offset)
	binary.LittleEndian.PutUint64(buf[8:16], r.Length)
	binary.LittleEndian.PutUint64(buf[16:24], r.Checksum)
	return buf
}

func Decode(b []byte) (Record, error) {
	if len(b) != Size {
		return Record{}, fmt.Errorf("objrecord: decode: expected %d bytes, got %d", Size, len(b))
	}
	return Record{
		Loc: Pointer{
			SegmentID: binary.LittleEndian.Uint32(b[0:4]),
			Offset:    binary.LittleEndian.Uint32(b[4:8]),
		},
		Length:   binary.LittleEndian.Uint64(b[8:16]),
		Checksum: binary.LittleEndian.Uint64(b[16:24]),
	}, nil
}

func (r Record) String() string {
	return fmt.Sprintf("(seg=%d off=%d len=%d crc=%08x)", r.Loc.SegmentID, r.Loc.Offset, r.Length, r.Checksum)
}
