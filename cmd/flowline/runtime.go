package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dukex/flowline/pkg/cmd"
	"github.com/dukex/flowline/pkg/eventbus"
	"github.com/dukex/flowline/pkg/ledger"
	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/nodes"
	"github.com/dukex/flowline/pkg/registry"
	"github.com/dukex/flowline/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/trace"
)

// runtime is the set of components every command works with.
type runtime struct {
	catalog *registry.Registry
	nodes   *nodes.Set
	manager *workflow.Manager
}

type runtimeConfig struct {
	pluginsPath string
	publicURL   string
	historySize int
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
}

func newRuntime(logger *slog.Logger, cfg runtimeConfig) (*runtime, error) {
	catalog, err := cmd.NewRegistry(logger, cfg.pluginsPath)
	if err != nil {
		return nil, err
	}

	set, err := nodes.NewSet(catalog, logger)
	if err != nil {
		return nil, err
	}

	manager := workflow.NewManager(
		workflow.NewRegistry(workflow.NewValidator(set)),
		workflow.NewExecutor(set, cfg.publisher, cfg.tracer, logger),
		ledger.New(cfg.historySize),
		catalog,
		cfg.publicURL,
		logger,
	)

	return &runtime{catalog: catalog, nodes: set, manager: manager}, nil
}

// loadWorkflow reads a workflow definition from a JSON file.
func loadWorkflow(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow: %w", err)
	}

	var wf models.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("decoding workflow %s: %w", path, err)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(wf); err != nil {
		return nil, fmt.Errorf("invalid workflow %s: %w", path, err)
	}

	return &wf, nil
}

// parseCredentials turns name=value pairs into a credential map.
func parseCredentials(pairs []string) (map[string]string, error) {
	credentials := make(map[string]string, len(pairs))

	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("credential %q must be name=value", pair)
		}

		credentials[name] = value
	}

	return credentials, nil
}
