// Package nodes dispatches node kinds to their implementations.
package nodes

import (
	"fmt"
	"log/slog"

	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/nodes/action"
	"github.com/dukex/flowline/pkg/nodes/conditional"
	"github.com/dukex/flowline/pkg/nodes/loop"
	"github.com/dukex/flowline/pkg/nodes/merge"
	"github.com/dukex/flowline/pkg/nodes/stoperror"
	switchnode "github.com/dukex/flowline/pkg/nodes/switch"
	"github.com/dukex/flowline/pkg/nodes/trigger"
	"github.com/dukex/flowline/pkg/nodes/wait"
	"github.com/dukex/flowline/pkg/protocol"
)

// ForKind returns the implementation of kind.
func ForKind(kind models.NodeKind, actions action.Creator, logger *slog.Logger) (protocol.Node, error) {
	switch kind {
	case models.NodeKindTrigger:
		return trigger.New(), nil
	case models.NodeKindAction:
		return action.New(actions, logger), nil
	case models.NodeKindIf:
		return conditional.New(), nil
	case models.NodeKindSwitch:
		return switchnode.New(), nil
	case models.NodeKindLoop:
		return loop.New(), nil
	case models.NodeKindMerge:
		return merge.New(), nil
	case models.NodeKindWait:
		return wait.New(), nil
	case models.NodeKindStopAndError:
		return stoperror.New(), nil
	default:
		return nil, fmt.Errorf("unknown node kind '%s'", kind)
	}
}

// Set holds one instance of every node kind.
type Set struct {
	byKind map[models.NodeKind]protocol.Node
}

// NewSet builds the implementations of every kind in models.NodeKinds.
func NewSet(actions action.Creator, logger *slog.Logger) (*Set, error) {
	set := &Set{byKind: make(map[models.NodeKind]protocol.Node, len(models.NodeKinds))}

	for _, kind := range models.NodeKinds {
		node, err := ForKind(kind, actions, logger)
		if err != nil {
			return nil, err
		}

		set.byKind[kind] = node
	}

	return set, nil
}

// Get returns the implementation of kind.
func (s *Set) Get(kind models.NodeKind) (protocol.Node, bool) {
	node, ok := s.byKind[kind]

	return node, ok
}

// Describe returns the description of every kind, in models.NodeKinds order.
func (s *Set) Describe() []models.NodeDescription {
	out := make([]models.NodeDescription, 0, len(s.byKind))
	for _, kind := range models.NodeKinds {
		out = append(out, s.byKind[kind].Describe())
	}

	return out
}

// OutputPorts returns the ports a configured node can emit on.
func (s *Set) OutputPorts(node *models.WorkflowNode) ([]string, error) {
	impl, ok := s.Get(node.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown node kind '%s'", node.Kind)
	}

	if resolver, ok := impl.(protocol.PortResolver); ok {
		return resolver.OutputPorts(node.Config)
	}

	return impl.Describe().OutputPorts, nil
}

// Validate runs the kind-specific configuration checks of node.
func (s *Set) Validate(node *models.WorkflowNode) error {
	impl, ok := s.Get(node.Kind)
	if !ok {
		return fmt.Errorf("unknown node kind '%s'", node.Kind)
	}

	if validator, ok := impl.(protocol.ConfigValidator); ok {
		return validator.Validate(node.Config)
	}

	return nil
}
