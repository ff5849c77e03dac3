package testutil

import (
	"sync"

	"attach-go/internal/intake"
)

// MemoryHistory keeps intake records in memory.
type MemoryHistory struct {
	mu      sync.Mutex
	records []*intake.IntakeRecord

	// Err, when set, is returned from RecordIntake.
	Err error
}

var _ intake.History = (*MemoryHistory)(nil)

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

func (h *MemoryHistory) RecordIntake(rec *intake.IntakeRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return h.Err
	}
	cp := *rec
	h.records = append(h.records, &cp)
	return nil
}

// Records returns the stored records in insertion order.
func (h *MemoryHistory) Records() []*intake.IntakeRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*intake.IntakeRecord(nil), h.records...)
}
