// Package ledger keeps a bounded, per-workflow history of completed runs.
package ledger

import (
	"sync"

	"github.com/dukex/flowline/pkg/models"
)

// DefaultCapacity is the number of runs kept per workflow when none is configured.
const DefaultCapacity = 50

// Ledger stores runs in one fixed-size ring buffer per workflow. Entries are never
// mutated after Append.
type Ledger struct {
	mu       sync.RWMutex
	capacity int
	rings    map[string]*ring
}

type ring struct {
	runs  []*models.Run
	next  int
	count int
	total int64
}

// New creates a ledger keeping up to capacity runs per workflow.
func New(capacity int) *Ledger {
	if capacity < 1 {
		capacity = DefaultCapacity
	}

	return &Ledger{
		capacity: capacity,
		rings:    make(map[string]*ring),
	}
}

// Capacity returns the per-workflow bound.
func (l *Ledger) Capacity() int {
	return l.capacity
}

// Append records a completed run, evicting the oldest entry when the buffer is full.
func (l *Ledger) Append(workflowID string, run *models.Run) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.rings[workflowID]
	if !ok {
		r = &ring{runs: make([]*models.Run, l.capacity)}
		l.rings[workflowID] = r
	}

	r.runs[r.next] = run
	r.next = (r.next + 1) % l.capacity
	r.total++

	if r.count < l.capacity {
		r.count++
	}
}

// Recent returns up to limit runs, most recent first. A limit below 1 returns everything kept.
func (l *Ledger) Recent(workflowID string, limit int) []*models.Run {
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, ok := l.rings[workflowID]
	if !ok {
		return []*models.Run{}
	}

	if limit < 1 || limit > r.count {
		limit = r.count
	}

	out := make([]*models.Run, 0, limit)
	for i := 1; i <= limit; i++ {
		out = append(out, r.runs[(r.next-i+l.capacity)%l.capacity])
	}

	return out
}

// Latest returns the most recent run of workflowID.
func (l *Ledger) Latest(workflowID string) (*models.Run, bool) {
	runs := l.Recent(workflowID, 1)
	if len(runs) == 0 {
		return nil, false
	}

	return runs[0], true
}

// Total returns how many runs were ever appended for workflowID, including evicted ones.
func (l *Ledger) Total(workflowID string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if r, ok := l.rings[workflowID]; ok {
		return r.total
	}

	return 0
}
