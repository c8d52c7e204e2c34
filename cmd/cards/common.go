package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mscrnt/homecards/internal/config"
	"github.com/mscrnt/homecards/internal/printer"
	"github.com/mscrnt/homecards/pkg/broadcast"
	"github.com/mscrnt/homecards/pkg/card"
	"github.com/mscrnt/homecards/pkg/condition"
	"github.com/mscrnt/homecards/pkg/conditions"
	"github.com/mscrnt/homecards/pkg/db"
)

// loadConfig reads --config, ./cards.yml or the defaults
func loadConfig() (*config.CardsConfig, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, printer.Error("Invalid configuration", err.Error(), []string{
			"Fix the reported field in the file",
			"Remove the file to run with built-in defaults",
		})
	}
	return cfg, nil
}

// openDB opens the database named by --db, falling back to the config
func openDB(cfg *config.CardsConfig) (*db.DB, error) {
	path := dbPath
	if path == "" {
		path = cfg.DatabasePath()
	}

	store, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("Opened database", zap.String("path", path))
	return store, nil
}

// newManager builds the manager over the configured registry. A configured
// refresh schedule is attached as a manager-wide source.
func newManager(cfg *config.CardsConfig, opts ...condition.Option) (*condition.Manager, error) {
	controllers := conditions.Registry(cfg, logger.Named("conditions"))

	base := []condition.Option{
		condition.WithTimeout(cfg.CheckerTimeout),
		condition.WithLogger(logger.Named("condition")),
	}
	if cfg.Refresh != "" {
		base = append(base, condition.WithSource(broadcast.Cron("refresh", cfg.Refresh)))
	}

	m, err := condition.New(controllers, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to build card registry: %w", err)
	}
	return m, nil
}

// parseCardArg turns a command argument into a registered card id
func parseCardArg(m *condition.Manager, arg string) (card.ID, error) {
	id, err := card.ParseID(arg)
	if err != nil {
		return 0, printer.Error("Invalid card id", err.Error(), []string{
			"Card ids are numbers, run 'cards list --ids' to see them",
		})
	}
	if !m.Has(id) {
		return 0, printer.Error(
			fmt.Sprintf("Unknown card %s", id),
			"No enabled condition produces this card.",
			[]string{
				"Run 'cards list --ids' to see registered ids",
				"Enable the condition in cards.yml",
			})
	}
	return id, nil
}

// cardName returns the config section name of id
func cardName(id card.ID) string {
	if name, ok := conditions.Names[id]; ok {
		return name
	}
	return id.String()
}

// recordHistory returns an observer that stores every refresh
func recordHistory(store *db.DB) condition.Observer {
	return func(r condition.Refresh) {
		err := store.RecordRefresh(&db.Refresh{
			SessionID: r.SessionID,
			Trigger:   r.Trigger,
			StartedAt: r.Started,
			Duration:  r.Duration,
			Shown:     db.IDsOf(r.Cards),
		})
		if err != nil {
			logger.Warn("Failed to record refresh", zap.Error(err))
		}
	}
}
