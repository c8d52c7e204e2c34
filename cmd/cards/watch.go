package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mscrnt/homecards/internal/printer"
	"github.com/mscrnt/homecards/pkg/condition"
	"github.com/mscrnt/homecards/pkg/db"
)

var watchNoHistory bool

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow condition changes and print every refreshed list",
		Long: `Start monitoring: subscribe to every condition's change notifications and
print the card list each time one fires, plus once at start. Each refresh is
recorded in the history unless --no-history is given. Stop with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}

	cmd.Flags().BoolVar(&watchNoHistory, "no-history", false, "Do not record refreshes")

	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	out := cmd.OutOrStdout()

	// Listener and observer run on the refreshing goroutine, and several
	// sources may refresh at once.
	var mu sync.Mutex
	observer := func(r condition.Refresh) {
		dismissed, err := store.Dismissed()
		if err != nil {
			logger.Warn("Failed to read dismissals", zap.Error(err))
		}
		cards := db.FilterDismissed(r.Cards, dismissed)

		mu.Lock()
		printer.RefreshHeader(out, r.Trigger, r.Started, len(cards))
		printer.Cards(out, cards)
		mu.Unlock()

		if !watchNoHistory {
			recordHistory(store)(r)
		}
	}

	manager, err := newManager(cfg, condition.WithObserver(observer))
	if err != nil {
		return err
	}

	manager.StartMonitoring(ctx)
	<-ctx.Done()
	manager.StopMonitoring()

	printer.Success(cmd.ErrOrStderr(), "Stopped watching\n")
	return nil
}
