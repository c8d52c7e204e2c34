// Package conditions implements the host condition controllers and the fixed
// registry that wires them into a condition.Manager.
package conditions

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mscrnt/homecards/internal/config"
	"github.com/mscrnt/homecards/pkg/card"
	"github.com/mscrnt/homecards/pkg/condition"
)

// Card ids. They are persisted with dismissals, so never renumber them.
const (
	IDOffline        card.ID = 1001
	IDBatterySaver   card.ID = 1002
	IDLowStorage     card.ID = 1003
	IDMemoryPressure card.ID = 1004
	IDHighLoad       card.ID = 1005
	IDOverheating    card.ID = 1006
)

// Names maps every card id to its config section name
var Names = map[card.ID]string{
	IDOffline:        "offline",
	IDBatterySaver:   "battery_saver",
	IDLowStorage:     "low_storage",
	IDMemoryPressure: "memory_pressure",
	IDHighLoad:       "high_load",
	IDOverheating:    "overheating",
}

// Registry returns the enabled controllers in display order
func Registry(cfg *config.CardsConfig, logger *zap.Logger) []condition.Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 10 * time.Second
	}
	c := cfg.Conditions

	var controllers []condition.Controller
	if c.Offline.Enabled {
		controllers = append(controllers, NewOffline(existing(c.Offline.WatchFiles, logger), poll))
	}
	if c.BatterySaver.Enabled {
		controllers = append(controllers, NewBatterySaver(c.BatterySaver.PowerSupplyDir, c.BatterySaver.ThresholdPercent, poll))
	}
	if c.LowStorage.Enabled {
		controllers = append(controllers, NewLowStorage(c.LowStorage.Mount, c.LowStorage.FreePercent, poll))
	}
	if c.MemoryPressure.Enabled {
		controllers = append(controllers, NewMemoryPressure(c.MemoryPressure.UsedPercent, poll))
	}
	if c.HighLoad.Enabled {
		controllers = append(controllers, NewHighLoad(c.HighLoad.PerCPU, poll))
	}
	if c.Overheating.Enabled {
		controllers = append(controllers, NewOverheating(c.Overheating.Celsius, poll))
	}

	logger.Debug("Built condition registry", zap.Int("controllers", len(controllers)))
	return controllers
}

// existing drops files that are not present on this host
func existing(paths []string, logger *zap.Logger) []string {
	var out []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			logger.Debug("Skipping watch file", zap.String("path", p), zap.Error(err))
			continue
		}
		out = append(out, p)
	}
	return out
}

// flag renders a boolean as a poll fingerprint
func flag(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
