// Package registry provides the catalog of action factories and trigger adapters.
package registry

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/flowline/pkg/protocol"
)

// Registry holds the action factories and trigger adapters available to workflows.
type Registry struct {
	logger          *slog.Logger
	mu              sync.RWMutex
	actionFactories map[string]protocol.ActionFactory
	triggerAdapters map[string]protocol.TriggerAdapter
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:          log.With("module", "registry"),
		actionFactories: make(map[string]protocol.ActionFactory),
		triggerAdapters: make(map[string]protocol.TriggerAdapter),
	}
}

// LoadActionPlugins loads action factories exported as the "Action" symbol
// from shared objects under pluginsPath/actions.
func (r *Registry) LoadActionPlugins(pluginsPath string) ([]protocol.ActionFactory, error) {
	return loadPlugin[protocol.ActionFactory](r.logger, pluginsPath, "Action")
}

// RegisterAction adds an action factory, replacing any factory with the same id.
func (r *Registry) RegisterAction(actionFactory protocol.ActionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.actionFactories[actionFactory.ID()] = actionFactory
}

// RegisterTrigger adds a trigger adapter, replacing any adapter with the same id.
func (r *Registry) RegisterTrigger(adapter protocol.TriggerAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.triggerAdapters[adapter.ID()] = adapter
}

// HasAction reports whether an action factory is registered under actionType.
func (r *Registry) HasAction(actionType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.actionFactories[actionType]

	return ok
}

// CreateAction validates config against the factory schema and creates the action.
func (r *Registry) CreateAction(actionType string, config map[string]any) (protocol.Action, error) {
	r.mu.RLock()
	factory, ok := r.actionFactories[actionType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("action type '%s' not registered", actionType)
	}

	if config == nil {
		config = map[string]any{}
	}

	if schema := factory.Schema(); schema != nil {
		if err := ValidateSchema(schema, config); err != nil {
			return nil, fmt.Errorf("action type '%s': %w", actionType, err)
		}
	}

	return factory.Create(config)
}

// TriggerAdapter returns the adapter registered under id.
func (r *Registry) TriggerAdapter(id string) (protocol.TriggerAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.triggerAdapters[id]

	return adapter, ok
}

// Actions returns every action factory ordered by id.
func (r *Registry) Actions() []protocol.ActionFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.ActionFactory, 0, len(r.actionFactories))
	for _, f := range r.actionFactories {
		out = append(out, f)
	}

	slices.SortFunc(out, func(a, b protocol.ActionFactory) int {
		return strings.Compare(a.ID(), b.ID())
	})

	return out
}

// Triggers returns every trigger adapter ordered by id.
func (r *Registry) Triggers() []protocol.TriggerAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.TriggerAdapter, 0, len(r.triggerAdapters))
	for _, a := range r.triggerAdapters {
		out = append(out, a)
	}

	slices.SortFunc(out, func(a, b protocol.TriggerAdapter) int {
		return strings.Compare(a.ID(), b.ID())
	})

	return out
}

// HealthCheck reports whether any action or trigger is registered.
func (r *Registry) HealthCheck() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.actionFactories) == 0 && len(r.triggerAdapters) == 0 {
		return "no actions or triggers registered", false
	}

	return fmt.Sprintf("%d actions, %d triggers registered", len(r.actionFactories), len(r.triggerAdapters)), true
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"
	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "*/*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s has no %s symbol: %w", p, symbolName, err)
		}

		castV, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("plugin %s: %s symbol has unexpected type %T", p, symbolName, v)
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
