package extent

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
)

// OnDiskManager stores extents as fixed NodeBlockSize slots in a single
// file, one file descriptor and allocation counter per tree — the same
// shape as storage_engine/disk_manager/main.go's FileDescriptor, minus
// the multi-file global-page-ID indirection that file needed for heap +
// index files sharing one DiskManager. Committed extents are served out
// of a ristretto read cache instead of a hand-rolled accessOrder LRU
// slice (storage_engine/bufferpool/bufferpool.go).
type OnDiskManager struct {
	mu   sync.Mutex
	file *os.File
	path string

	nextAddr Laddr
	cache    *ristretto.Cache[uint64, []byte]

	// pending is the per-transaction copy-on-write overlay: extents
	// allocated or PrepareMutate-cloned by txID, not yet committed.
	pending map[uint64]map[Laddr][]byte
}

// OpenOnDisk opens or creates the extent file at path. Extent 0 is
// reserved for the superblock the first time the file is created.
func OpenOnDisk(path string) (*OnDiskManager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("extent: open %s: %w", path, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("extent: stat %s: %w", path, err)
	}

	numExtents := stat.Size() / NodeBlockSize
	next := Laddr(numExtents)
	if next == 0 {
		if err := file.Truncate(NodeBlockSize); err != nil {
			file.Close()
			return nil, fmt.Errorf("extent: reserve superblock extent: %w", err)
		}
		next = 1
	}

	cache, err := ristretto.NewCache(&ristretto.Config[uint64, []byte]{
		NumCounters: 1e5,
		MaxCost:     64 << 20, // 64MB of cached committed extents
		BufferItems: 64,
	})
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("extent: new cache: %w", err)
	}

	return &OnDiskManager{
		file:     file,
		path:     path,
		nextAddr: next,
		cache:    cache,
		pending:  make(map[uint64]map[Laddr][]byte),
	}, nil
}

func (m *OnDiskManager) txOverlay(txID uint64) map[Laddr][]byte {
	ov := m.pending[txID]
	if ov == nil {
		ov = make(map[Laddr][]byte)
		m.pending[txID] = ov
	}
	return ov
}

func (m *OnDiskManager) ReadExtent(ctx context.Context, txID uint64, laddr Laddr) (*Handle, error) {
	m.mu.Lock()
	if ov, ok := m.pending[txID]; ok {
		if data, ok := ov[laddr]; ok {
			out := append([]byte(nil), data...)
			m.mu.Unlock()
			return &Handle{laddr: laddr, data: out}, nil
		}
	}
	m.mu.Unlock()

	if data, ok := m.cache.Get(uint64(laddr)); ok {
		return &Handle{laddr: laddr, data: append([]byte(nil), data...)}, nil
	}

	buf := make([]byte, NodeBlockSize)
	if _, err := m.file.ReadAt(buf, int64(laddr)*NodeBlockSize); err != nil {
		return nil, fmt.Errorf("extent: read %d: %w", laddr, err)
	}
	m.cache.Set(uint64(laddr), buf, int64(len(buf)))
	return &Handle{laddr: laddr, data: append([]byte(nil), buf...)}, nil
}

func (m *OnDiskManager) AllocateExtent(ctx context.Context, txID uint64) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	laddr := m.nextAddr
	m.nextAddr++

	data := make([]byte, NodeBlockSize)
	m.txOverlay(txID)[laddr] = data

	return &Handle{laddr: laddr, data: data, mutable: true}, nil
}

func (m *OnDiskManager) PrepareMutate(ctx context.Context, txID uint64, h *Handle) (*Handle, error) {
	if h.mutable {
		return h, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	clone := append([]byte(nil), h.data...)
	m.txOverlay(txID)[h.laddr] = clone

	return &Handle{laddr: h.laddr, data: clone, mutable: true}, nil
}

func (m *OnDiskManager) Commit(ctx context.Context, txID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ov := m.pending[txID]
	delete(m.pending, txID)

	for laddr, data := range ov {
		if _, err := m.file.WriteAt(data, int64(laddr)*NodeBlockSize); err != nil {
			return fmt.Errorf("extent: commit write %d: %w", laddr, err)
		}
		m.cache.Set(uint64(laddr), append([]byte(nil), data...), int64(len(data)))
	}

	if len(ov) == 0 {
		return nil
	}
	return m.file.Sync()
}

func (m *OnDiskManager) Abort(ctx context.Context, txID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, txID)
}

func (m *OnDiskManager) Stats() Stats {
	metrics := m.cache.Metrics
	m.mu.Lock()
	next := m.nextAddr
	m.mu.Unlock()

	s := Stats{Extents: int64(next)}
	if metrics != nil {
		s.CacheHits = metrics.Hits()
		s.CacheMisses = metrics.Misses()
		s.CacheBytes = metrics.CostAdded() - metrics.CostEvicted()
		s.CacheEvicted = metrics.CostEvicted()
	}
	return s
}

func (m *OnDiskManager) Close() error {
	m.cache.Close()
	if err := m.file.Sync(); err != nil {
		m.file.Close()
		return fmt.Errorf("extent: sync before close: %w", err)
	}
	return m.file.Close()
}
