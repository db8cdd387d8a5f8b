package testutil

import (
	"context"
	"sync"

	"github.com/poyrazK/keypanel/internal/core/domain"
)

// RecordingAudit implements ports.AuditSink and keeps every entry in memory.
type RecordingAudit struct {
	mu      sync.Mutex
	entries []domain.ActivityLog
}

func (r *RecordingAudit) Record(_ context.Context, entry *domain.ActivityLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
}

// Actions returns the recorded actions in order.
func (r *RecordingAudit) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Action
	}
	return out
}

// Entries returns a copy of the recorded entries.
func (r *RecordingAudit) Entries() []domain.ActivityLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ActivityLog(nil), r.entries...)
}
