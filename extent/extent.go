// Package extent is the storage substrate the node orchestration layer
// builds on: fixed-size, copy-on-write logical blocks addressed by Laddr.
//
// An extent's committed bytes are never changed by an uncommitted
// transaction. A transaction that wants to mutate one calls PrepareMutate
// to get a private writable clone; the clone is only visible to that
// transaction until Commit writes it back over the committed copy at the
// same logical address. This gives every node a
// stable read view for the lifetime of a suspension point: extent
// buffers are shared (strong) between the Node and its impl, stable
// across suspensions until prepare_mutate.
package extent

import (
	"context"
	"fmt"
)

// Laddr is a logical block address within the store's address space.
// Laddr(0) is reserved for the superblock extent; AllocateExtent never
// hands it out.
type Laddr uint64

// InvalidLaddr is used only for debug assertions; real optionality (e.g.
// "no root yet") is modeled with (Laddr, bool), not this sentinel.
const InvalidLaddr Laddr = 0

// MetaLaddr is the reserved address of the superblock extent.
const MetaLaddr Laddr = 0

// NodeBlockSize is the fixed length of every extent, header included.
// Node length could in principle vary across node types or field
// types; this tree picks one fixed size for every node.
const NodeBlockSize = 4096

// Handle is a view onto one extent's bytes. A Handle returned by
// ReadExtent is an immutable read view: callers must not retain and
// mutate its Bytes(). A Handle returned by AllocateExtent or
// PrepareMutate is mutable and privately owned by the issuing
// transaction until that transaction commits.
type Handle struct {
	laddr   Laddr
	data    []byte
	mutable bool
}

func (h *Handle) Laddr() Laddr { return h.laddr }

// Bytes returns the extent's current content. Safe to read regardless of
// mutability; callers must go through MutableBytes to write.
func (h *Handle) Bytes() []byte { return h.data }

// MutableBytes returns the backing slice for in-place writes. Panics if
// the handle was not obtained via AllocateExtent/PrepareMutate — that is
// a programmer bug (writing to a shared read view), not a recoverable
// error: a contract violation.
func (h *Handle) MutableBytes() []byte {
	if !h.mutable {
		panic("extent: MutableBytes called on an immutable handle")
	}
	return h.data
}

// Manager is the contract the node orchestration layer consumes from
// the extent/transaction substrate. Every method is keyed by a
// transaction ID rather than a transaction object, the way a
// transaction_manager threads a bare txnID through WAL and commit calls.
type Manager interface {
	// ReadExtent returns an immutable view of the extent at laddr as it
	// stood at the later of (a) the last commit, or (b) this
	// transaction's own prior writes to it.
	ReadExtent(ctx context.Context, txID uint64, laddr Laddr) (*Handle, error)

	// AllocateExtent reserves a fresh logical address and returns a
	// mutable, zeroed handle private to txID until commit.
	AllocateExtent(ctx context.Context, txID uint64) (*Handle, error)

	// PrepareMutate signals copy-on-write: if h is already a private
	// mutable clone for txID, it is returned unchanged; otherwise a
	// private clone is made (same Laddr) and returned. Other
	// transactions' reads of the same Laddr are unaffected until commit.
	PrepareMutate(ctx context.Context, txID uint64, h *Handle) (*Handle, error)

	// Commit flushes every extent this transaction allocated or
	// prepared-for-mutation to stable storage at its logical address,
	// then forgets the transaction's private overlay.
	Commit(ctx context.Context, txID uint64) error

	// Abort discards the transaction's private overlay without
	// touching stable storage. Extents it allocated are leaked (no
	// freelist — matches a DeallocatePage no-op).
	Abort(ctx context.Context, txID uint64)

	Stats() Stats
	Close() error
}

// Stats summarizes cache behavior for diagnostics.
type Stats struct {
	Extents      int64
	CacheHits    uint64
	CacheMisses  uint64
	CacheBytes   uint64
	CacheEvicted uint64
}

var ErrNotFound = fmt.Errorf("extent: not found")
