package nodelayout

import (
	"encoding/binary"
	"fmt"
)

// Body layout after the 8-byte header: a length-prefixed keys array
// (2-byte length + key bytes, repeated NumKeys times) followed by a
// fixed-width values array — objrecord.Size per entry for a leaf,
// 8-byte extent.Laddr per entry for an internal node, one child per
// key (see nodelayout.Internal's doc comment on why there is no
// keyless tail slot). Grounded on bplustree/node_codec.go's own
// length-prefixed key coding.

const keyLenPrefix = 2

func encodeKeys(b []byte, keys [][]byte) int {
	off := 0
	for _, k := range keys {
		binary.LittleEndian.PutUint16(b[off:off+keyLenPrefix], uint16(len(k)))
		off += keyLenPrefix
		copy(b[off:off+len(k)], k)
		off += len(k)
	}
	return off
}

func decodeKeys(b []byte, numKeys int) (keys [][]byte, consumed int, err error) {
	off := 0
	keys = make([][]byte, numKeys)
	for i := 0; i < numKeys; i++ {
		if off+keyLenPrefix > len(b) {
			return nil, 0, fmt.Errorf("nodelayout: truncated key length at entry %d", i)
		}
		klen := int(binary.LittleEndian.Uint16(b[off : off+keyLenPrefix]))
		off += keyLenPrefix
		if off+klen > len(b) {
			return nil, 0, fmt.Errorf("nodelayout: truncated key bytes at entry %d", i)
		}
		keys[i] = append([]byte(nil), b[off:off+klen]...)
		off += klen
	}
	return keys, off, nil
}

func keysEncodedSize(keys [][]byte) int {
	n := 0
	for _, k := range keys {
		n += keyLenPrefix + len(k)
	}
	return n
}
