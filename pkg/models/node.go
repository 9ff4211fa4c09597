package models

import "reflect"

// NodeKind identifies one of the closed set of built-in node behaviours.
type NodeKind string

const (
	NodeKindTrigger      NodeKind = "trigger"
	NodeKindAction       NodeKind = "action"
	NodeKindIf           NodeKind = "if"
	NodeKindSwitch       NodeKind = "switch"
	NodeKindLoop         NodeKind = "loop"
	NodeKindMerge        NodeKind = "merge"
	NodeKindWait         NodeKind = "wait"
	NodeKindStopAndError NodeKind = "stopAndError"
)

// NodeKinds lists every supported kind.
var NodeKinds = []NodeKind{
	NodeKindTrigger,
	NodeKindAction,
	NodeKindIf,
	NodeKindSwitch,
	NodeKindLoop,
	NodeKindMerge,
	NodeKindWait,
	NodeKindStopAndError,
}

// PortMain is the default output port.
const PortMain = "main"

// Ports of the loop node kind.
const (
	PortLoop = "Loop"
	PortDone = "Done"
)

// WorkflowNode represents a node instance in a workflow.
type WorkflowNode struct {
	ID     string         `json:"id"             validate:"required"`
	Name   string         `json:"name,omitempty"`
	Kind   NodeKind       `json:"kind"           validate:"required"`
	Config map[string]any `json:"config,omitempty"`
}

// IsTrigger reports whether the node originates runs.
func (n *WorkflowNode) IsTrigger() bool {
	return n.Kind == NodeKindTrigger
}

// Clone returns a deep copy of the node, including nested config values.
func (n *WorkflowNode) Clone() *WorkflowNode {
	if n == nil {
		return nil
	}

	clone := *n
	if n.Config != nil {
		clone.Config, _ = CopyValue(n.Config).(map[string]any)
	}

	return &clone
}

// NodeDescription is what a node kind reports about itself.
type NodeDescription struct {
	Kind        NodeKind `json:"kind"`
	DisplayName string   `json:"display_name"`
	OutputPorts []string `json:"output_ports"`
	// DynamicPorts marks kinds whose ports depend on configuration.
	DynamicPorts bool `json:"dynamic_ports,omitempty"`
	// FanIn nodes execute once with every payload delivered to them in the run.
	FanIn bool `json:"fan_in,omitempty"`
	// IterationPort emissions each drain their downstream subgraph before the next emission.
	IterationPort string         `json:"iteration_port,omitempty"`
	Schema        map[string]any `json:"schema,omitempty"`
}

// Emission is one payload emitted on one output port.
type Emission struct {
	Port    string `json:"port"`
	Payload any    `json:"payload"`
}

// NodeResult is the ordered list of emissions produced by a single execution.
type NodeResult []Emission

// Main emits payload on the default port.
func Main(payload any) NodeResult {
	return NodeResult{{Port: PortMain, Payload: payload}}
}

// On emits payload on the named port.
func On(port string, payload any) NodeResult {
	return NodeResult{{Port: port, Payload: payload}}
}

// Fired reports whether any emission used port.
func (r NodeResult) Fired(port string) bool {
	for _, e := range r {
		if e.Port == port {
			return true
		}
	}

	return false
}

// Last returns the payload of the final emission, or nil.
func (r NodeResult) Last() any {
	if len(r) == 0 {
		return nil
	}

	return r[len(r)-1].Payload
}

// CopyValue deep copies JSON-like values (maps, slices and scalars).
func CopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = CopyValue(val)
		}

		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = CopyValue(val)
		}

		return s
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// AsSlice returns v as a []any when v is a slice of any element type.
// Byte slices are treated as scalars.
func AsSlice(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}

	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}

	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}

	return items, true
}
