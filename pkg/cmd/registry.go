// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dukex/flowline/pkg/actions/httprequest"
	logaction "github.com/dukex/flowline/pkg/actions/log"
	"github.com/dukex/flowline/pkg/actions/transform"
	"github.com/dukex/flowline/pkg/registry"
	"github.com/dukex/flowline/pkg/triggers/schedule"
	"github.com/dukex/flowline/pkg/triggers/webhook"
)

func registerActionPlugins(reg *registry.Registry, pluginsPath string) error {
	actionPlugins, err := reg.LoadActionPlugins(pluginsPath)
	if err != nil {
		return fmt.Errorf("loading action plugins: %w", err)
	}

	for _, plugin := range actionPlugins {
		reg.RegisterAction(plugin)
	}

	return nil
}

func registerNativeActions(reg *registry.Registry) {
	reg.RegisterAction(httprequest.NewActionFactory())
	reg.RegisterAction(transform.NewActionFactory())
	reg.RegisterAction(logaction.NewActionFactory())
}

func registerNativeTriggers(reg *registry.Registry, log *slog.Logger) {
	reg.RegisterTrigger(webhook.NewAdapter(log))
	reg.RegisterTrigger(schedule.NewAdapter(log))
}

// NewRegistry builds the catalog of native actions, plugin actions and trigger adapters.
// Native actions win over plugins with the same id. An empty pluginsPath skips plugins.
func NewRegistry(log *slog.Logger, pluginsPath string) (*registry.Registry, error) {
	reg := registry.NewRegistry(log)

	if pluginsPath != "" {
		if err := registerActionPlugins(reg, pluginsPath); err != nil {
			return nil, err
		}
	}

	registerNativeActions(reg)
	registerNativeTriggers(reg, log)

	return reg, nil
}
