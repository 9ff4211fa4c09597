// Package workflow provides the workflow registry, the run executor and the
// manager that ties activation, trigger adapters and history together.
package workflow

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/dukex/flowline/pkg/graph"
	"github.com/dukex/flowline/pkg/models"
)

// Registered is a consistent snapshot of a registered workflow.
type Registered struct {
	Workflow    *models.Workflow
	Graph       *graph.Graph
	Credentials map[string]string
}

type registration struct {
	workflow        *models.Workflow
	graph           *graph.Graph
	credentials     map[string]string
	totalExecutions int64
	lastExecutionAt *time.Time
	lastError       string
	lastTrigger     any
	hasTrigger      bool
}

// Registry owns the registration state, graph and credentials of every workflow.
// Writers hold the lock for the whole mutation, readers receive copies.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]*registration
	validator *Validator
	now       func() time.Time
}

// NewRegistry creates an empty registry that validates graphs with validator.
func NewRegistry(validator *Validator) *Registry {
	return &Registry{
		entries:   make(map[string]*registration),
		validator: validator,
		now:       time.Now,
	}
}

// Validate checks wf without registering it.
func (r *Registry) Validate(wf *models.Workflow) (*graph.Graph, error) {
	return r.validator.Validate(wf)
}

// Register validates wf and stores it as active together with its credentials.
// On failure any previous registration of the same id is left untouched.
func (r *Registry) Register(wf *models.Workflow, credentials map[string]string) (*Registered, error) {
	stored := wf.Clone()

	g, err := r.validator.Validate(stored)
	if err != nil {
		return nil, err
	}

	stored.Status = models.WorkflowStatusActive
	stored.RegisteredAt = r.now()
	stored.Credentials = nil

	creds := maps.Clone(credentials)
	if creds == nil {
		creds = map[string]string{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[stored.ID]
	if !ok {
		entry = &registration{}
		r.entries[stored.ID] = entry
	}

	entry.workflow = stored
	entry.graph = g
	entry.credentials = creds

	return entry.snapshot(), nil
}

// Deactivate marks a workflow inactive. It returns false and ErrNotFound for unknown ids.
func (r *Registry) Deactivate(workflowID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[workflowID]
	if !ok {
		return false, fmt.Errorf("deactivate %s: %w", workflowID, ErrNotFound)
	}

	entry.workflow.Status = models.WorkflowStatusInactive

	return true, nil
}

// Get returns a snapshot of the registration of workflowID.
func (r *Registry) Get(workflowID string) (*Registered, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[workflowID]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", workflowID, ErrNotFound)
	}

	return entry.snapshot(), nil
}

// IsActive reports whether workflowID is registered and active.
func (r *Registry) IsActive(workflowID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[workflowID]

	return ok && entry.workflow.Status == models.WorkflowStatusActive
}

// Status reports the lifecycle and execution counters of workflowID.
// Unknown ids report IsRegistered=false.
func (r *Registry) Status(workflowID string) models.StatusReport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report := models.StatusReport{WorkflowID: workflowID}

	entry, ok := r.entries[workflowID]
	if !ok {
		return report
	}

	registeredAt := entry.workflow.RegisteredAt
	report.IsRegistered = true
	report.IsActive = entry.workflow.Status == models.WorkflowStatusActive
	report.RegisteredAt = &registeredAt
	report.TotalExecutions = entry.totalExecutions
	report.LastError = entry.lastError

	if entry.lastExecutionAt != nil {
		at := *entry.lastExecutionAt
		report.LastExecutionAt = &at
	}

	return report
}

// List returns the status of every registered workflow ordered by id.
func (r *Registry) List() []models.StatusReport {
	r.mu.RLock()
	ids := slices.Sorted(maps.Keys(r.entries))
	r.mu.RUnlock()

	reports := make([]models.StatusReport, 0, len(ids))
	for _, id := range ids {
		reports = append(reports, r.Status(id))
	}

	return reports
}

// RecordTrigger remembers the latest inbound payload of workflowID.
func (r *Registry) RecordTrigger(workflowID string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[workflowID]; ok {
		entry.lastTrigger = models.CopyValue(payload)
		entry.hasTrigger = true
	}
}

// LastTrigger returns the latest inbound payload of workflowID.
func (r *Registry) LastTrigger(workflowID string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[workflowID]
	if !ok || !entry.hasTrigger {
		return nil, false
	}

	return models.CopyValue(entry.lastTrigger), true
}

// RecordRun updates the execution counters of the run's workflow.
func (r *Registry) RecordRun(run *models.Run) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[run.WorkflowID]
	if !ok {
		return
	}

	finished := run.FinishedAt
	entry.totalExecutions++
	entry.lastExecutionAt = &finished
	entry.lastError = run.Error
}

func (e *registration) snapshot() *Registered {
	return &Registered{
		Workflow:    e.workflow.Clone(),
		Graph:       e.graph,
		Credentials: maps.Clone(e.credentials),
	}
}
