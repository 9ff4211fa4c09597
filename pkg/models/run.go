package models

import "time"

// RunMode records how a run was started.
type RunMode string

const (
	RunModeTrigger RunMode = "trigger"
	RunModeManual  RunMode = "manual"
)

// Run is one execution of a workflow graph started by a single event.
type Run struct {
	ID          string       `json:"id"`
	WorkflowID  string       `json:"workflow_id"`
	Mode        RunMode      `json:"mode"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Steps       []StepResult `json:"steps"`
	FinalOutput any          `json:"final_output,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Failed reports whether the run halted with an error.
func (r *Run) Failed() bool {
	return r.Error != ""
}

// Duration returns the wall time of the run.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// StepByNode returns the first step recorded for nodeID.
func (r *Run) StepByNode(nodeID string) (StepResult, bool) {
	for _, step := range r.Steps {
		if step.NodeID == nodeID {
			return step, true
		}
	}

	return StepResult{}, false
}

// StepResult records a single node execution.
type StepResult struct {
	NodeID     string     `json:"node_id"`
	Kind       NodeKind   `json:"kind"`
	Input      any        `json:"input,omitempty"`
	Output     NodeResult `json:"output,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Error      string     `json:"error,omitempty"`
}

// StatusReport summarises the registration and execution state of a workflow.
type StatusReport struct {
	WorkflowID      string     `json:"workflow_id"`
	IsRegistered    bool       `json:"is_registered"`
	IsActive        bool       `json:"is_active"`
	RegisteredAt    *time.Time `json:"registered_at,omitempty"`
	TotalExecutions int64      `json:"total_executions"`
	LastExecutionAt *time.Time `json:"last_execution_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}

// ExecutionContext carries per-node execution metadata through context.Context.
type ExecutionContext struct {
	RunID       string            `json:"run_id"`
	WorkflowID  string            `json:"workflow_id"`
	NodeID      string            `json:"node_id"`
	TriggerData any               `json:"trigger_data,omitempty"`
	Credentials map[string]string `json:"-"`
}
