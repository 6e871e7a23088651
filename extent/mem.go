package extent

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryManager is a pure in-memory Manager for tests, grounded on
// bplustree/inmemory_pager.go's map[int64][]byte pager. It implements
// the same copy-on-write overlay semantics as OnDiskManager so tests can
// exercise PrepareMutate/Commit/Abort without touching a filesystem.
type InMemoryManager struct {
	mu       sync.Mutex
	extents  map[Laddr][]byte
	nextAddr Laddr
	pending  map[uint64]map[Laddr][]byte
	closed   bool
}

func NewInMemoryManager() *InMemoryManager {
	return &InMemoryManager{
		extents:  map[Laddr][]byte{MetaLaddr: make([]byte, NodeBlockSize)},
		nextAddr: 1,
		pending:  make(map[uint64]map[Laddr][]byte),
	}
}

func (m *InMemoryManager) txOverlay(txID uint64) map[Laddr][]byte {
	ov := m.pending[txID]
	if ov == nil {
		ov = make(map[Laddr][]byte)
		m.pending[txID] = ov
	}
	return ov
}

func (m *InMemoryManager) ReadExtent(ctx context.Context, txID uint64, laddr Laddr) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("extent: manager is closed")
	}

	if ov, ok := m.pending[txID]; ok {
		if data, ok := ov[laddr]; ok {
			return &Handle{laddr: laddr, data: append([]byte(nil), data...)}, nil
		}
	}

	data, ok := m.extents[laddr]
	if !ok {
		return nil, fmt.Errorf("extent: %d: %w", laddr, ErrNotFound)
	}
	return &Handle{laddr: laddr, data: append([]byte(nil), data...)}, nil
}

func (m *InMemoryManager) AllocateExtent(ctx context.Context, txID uint64) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("extent: manager is closed")
	}

	laddr := m.nextAddr
	m.nextAddr++

	data := make([]byte, NodeBlockSize)
	m.txOverlay(txID)[laddr] = data
	return &Handle{laddr: laddr, data: data, mutable: true}, nil
}

func (m *InMemoryManager) PrepareMutate(ctx context.Context, txID uint64, h *Handle) (*Handle, error) {
	if h.mutable {
		return h, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := append([]byte(nil), h.data...)
	m.txOverlay(txID)[h.laddr] = clone
	return &Handle{laddr: h.laddr, data: clone, mutable: true}, nil
}

func (m *InMemoryManager) Commit(ctx context.Context, txID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ov := m.pending[txID]
	delete(m.pending, txID)
	for laddr, data := range ov {
		m.extents[laddr] = append([]byte(nil), data...)
	}
	return nil
}

func (m *InMemoryManager) Abort(ctx context.Context, txID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, txID)
}

func (m *InMemoryManager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Extents: int64(m.nextAddr)}
}

func (m *InMemoryManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extents = nil
	m.closed = true
	return nil
}
