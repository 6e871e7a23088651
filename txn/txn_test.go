package txn

import "testing"

func TestBeginAssignsDistinctIDs(t *testing.T) {
	m := NewManager()
	tx1 := m.Begin()
	tx2 := m.Begin()
	if tx1.ID == tx2.ID {
		t.Fatalf("Begin returned the same ID twice: %d", tx1.ID)
	}
	if tx1.State != Active || tx2.State != Active {
		t.Errorf("freshly begun transactions are not Active")
	}
	if !m.IsActive(tx1.ID) || !m.IsActive(tx2.ID) {
		t.Errorf("IsActive false for a freshly begun transaction")
	}
}

func TestCommitForgetsTransaction(t *testing.T) {
	m := NewManager()
	tx := m.Begin()
	if err := m.Commit(tx.ID); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if m.IsActive(tx.ID) {
		t.Errorf("transaction still active after Commit")
	}
	if _, ok := m.Get(tx.ID); ok {
		t.Errorf("Get found a committed transaction still tracked")
	}
}

func TestAbortForgetsTransaction(t *testing.T) {
	m := NewManager()
	tx := m.Begin()
	if err := m.Abort(tx.ID); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if m.IsActive(tx.ID) {
		t.Errorf("transaction still active after Abort")
	}
}

func TestCommitIsIdempotentForUnknownID(t *testing.T) {
	m := NewManager()
	if err := m.Commit(9999); err != nil {
		t.Errorf("Commit on an unknown ID returned an error: %v", err)
	}
}

func TestAbortIsIdempotentForUnknownID(t *testing.T) {
	m := NewManager()
	if err := m.Abort(9999); err != nil {
		t.Errorf("Abort on an unknown ID returned an error: %v", err)
	}
}
