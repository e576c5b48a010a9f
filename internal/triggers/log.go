package triggers

import (
	"context"
	"sync"
)

// ExecutionLog is the append-only record of trigger executions. Append must
// be atomic with respect to concurrent writers.
type ExecutionLog interface {
	Append(ctx context.Context, entry LogEntry) error
	Entries(ctx context.Context, triggerID string) ([]LogEntry, error)
}

// MemoryLog keeps entries in process memory.
type MemoryLog struct {
	mu      sync.Mutex
	entries []LogEntry
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(_ context.Context, entry LogEntry) error {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
	return nil
}

// Entries returns a snapshot of the trigger's entries in append order.
func (l *MemoryLog) Entries(_ context.Context, triggerID string) ([]LogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []LogEntry
	for _, e := range l.entries {
		if e.TriggerID == triggerID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Len returns the total number of entries across all triggers.
func (l *MemoryLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
