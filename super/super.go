// Package super manages the tree's superblock — the single piece of
// state that survives between otherwise-independent tree operations:
// where the root currently lives. Grounded on the OpenBPlusTree/
// disk_manager pattern of a fixed meta page holding the root page ID,
// generalized to extent.MetaLaddr and a Root Tracker contract
// (get_root_laddr/write_root_laddr/do_track_root/do_untrack_root).
package super

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"coldtree/extent"
)

// RootNode is the minimal view the tracker needs of whatever node type
// currently sits at the root — defined here, rather than importing the
// tree package's concrete Node type, to keep super a leaf dependency of
// tree instead of the other way around.
type RootNode interface {
	Laddr() extent.Laddr
	Level() uint8
}

// superblock is the fixed layout of extent.MetaLaddr: a magic tag, the
// root's address, and the root's level (0 == root is a leaf).
type superblock struct {
	rootLaddr extent.Laddr
	rootLevel uint8
}

const superMagic uint32 = 0x436f6c64 // "Cold"

func decodeSuperblock(b []byte) (superblock, error) {
	if len(b) < 16 {
		return superblock{}, fmt.Errorf("super: superblock extent too short")
	}
	magic := binary.LittleEndian.Uint32(b[0:4])
	if magic == 0 {
		// freshly allocated, never written — an empty tree.
		return superblock{rootLaddr: extent.InvalidLaddr, rootLevel: 0}, nil
	}
	if magic != superMagic {
		return superblock{}, fmt.Errorf("super: bad superblock magic %08x", magic)
	}
	return superblock{
		rootLaddr: extent.Laddr(binary.LittleEndian.Uint64(b[4:12])),
		rootLevel: b[12],
	}, nil
}

func (s superblock) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], superMagic)
	binary.LittleEndian.PutUint64(b[4:12], uint64(s.rootLaddr))
	b[12] = s.rootLevel
	for i := 13; i < len(b); i++ {
		b[i] = 0
	}
}

// Tracker is the Root Tracker collaborator: it persists the root's
// address across commits and, within a single transaction's lifetime,
// remembers which in-memory node instance is currently playing the
// role of root so repeated lookups don't have to re-decode it.
type Tracker struct {
	em extent.Manager

	mu      sync.Mutex
	tracked map[uint64]RootNode // txID -> currently-tracked root instance
}

func NewTracker(em extent.Manager) *Tracker {
	return &Tracker{em: em, tracked: make(map[uint64]RootNode)}
}

// GetRootLaddr reads the superblock as txID currently sees it. A zero
// Laddr with ok=false means the tree has never had a root written —
// mkfs's job to fix, not this method's.
func (t *Tracker) GetRootLaddr(ctx context.Context, txID uint64) (extent.Laddr, uint8, bool, error) {
	h, err := t.em.ReadExtent(ctx, txID, extent.MetaLaddr)
	if err != nil {
		return extent.InvalidLaddr, 0, false, fmt.Errorf("super: read superblock: %w", err)
	}
	sb, err := decodeSuperblock(h.Bytes())
	if err != nil {
		return extent.InvalidLaddr, 0, false, err
	}
	if sb.rootLaddr == extent.InvalidLaddr {
		return extent.InvalidLaddr, 0, false, nil
	}
	return sb.rootLaddr, sb.rootLevel, true, nil
}

// WriteRootLaddr installs addr/level as the tree's root in txID's
// private overlay; it becomes durable when the caller commits txID.
func (t *Tracker) WriteRootLaddr(ctx context.Context, txID uint64, addr extent.Laddr, level uint8) error {
	h, err := t.em.ReadExtent(ctx, txID, extent.MetaLaddr)
	if err != nil {
		return fmt.Errorf("super: read superblock before write: %w", err)
	}
	h, err = t.em.PrepareMutate(ctx, txID, h)
	if err != nil {
		return fmt.Errorf("super: prepare mutate superblock: %w", err)
	}
	sb := superblock{rootLaddr: addr, rootLevel: level}
	sb.encode(h.MutableBytes())
	return nil
}

// DoTrackRoot records n as the root instance currently in play for
// txID, so a subsequent lower_bound in the same transaction reuses it
// instead of reloading from the extent it was just read from.
func (t *Tracker) DoTrackRoot(txID uint64, n RootNode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracked[txID] = n
}

// DoUntrackRoot forgets whatever root instance txID had tracked, the
// step upgrade_root takes when the old root is about to be re-attached
// one level down as an ordinary child instead of the root.
func (t *Tracker) DoUntrackRoot(txID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tracked, txID)
}

func (t *Tracker) TrackedRoot(txID uint64) (RootNode, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.tracked[txID]
	return n, ok
}
