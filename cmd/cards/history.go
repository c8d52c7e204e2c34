package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mscrnt/homecards/pkg/db"
)

var (
	historyFormat  string
	historySession string
	historyTrigger string
	historySince   time.Duration
	historyLimit   int
	historyOutput  string
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded monitoring refreshes",
		Long: `Show the refreshes recorded by watch and serve, newest first.

Examples:
  # Last 20 refreshes
  cards history

  # Everything from the last day as CSV
  cards history --since 24h --limit 0 --format csv --out refreshes.csv

  # Refreshes caused by the battery condition
  cards history --trigger battery_saver --format json`,
		Args: cobra.NoArgs,
		RunE: runHistory,
	}

	cmd.Flags().StringVarP(&historyFormat, "format", "f", "table", "Output format: table, csv or json")
	cmd.Flags().StringVar(&historySession, "session", "", "Only this monitoring session")
	cmd.Flags().StringVar(&historyTrigger, "trigger", "", "Only refreshes with this trigger")
	cmd.Flags().DurationVar(&historySince, "since", 0, "Only refreshes newer than this")
	cmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of refreshes (0 for all)")
	cmd.Flags().StringVarP(&historyOutput, "out", "o", "", "Output file (default: stdout)")

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	filter := db.RefreshFilter{
		SessionID: historySession,
		Trigger:   historyTrigger,
		Limit:     historyLimit,
	}
	if historySince > 0 {
		since := time.Now().Add(-historySince)
		filter.Since = &since
	}

	var w io.Writer = cmd.OutOrStdout()
	if historyOutput != "" {
		file, err := os.Create(historyOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = file.Close() }()
		w = file
	}

	switch historyFormat {
	case "table":
		refreshes, err := store.ListRefreshes(filter)
		if err != nil {
			return err
		}
		return printHistoryTable(w, refreshes, time.Now())
	case string(db.ExportFormatCSV), string(db.ExportFormatJSON):
		return store.Export(w, db.ExportFormat(historyFormat), filter)
	default:
		return fmt.Errorf("unsupported format %q (use table, csv or json)", historyFormat)
	}
}

func printHistoryTable(w io.Writer, refreshes []*db.Refresh, now time.Time) error {
	if len(refreshes) == 0 {
		_, err := fmt.Fprintln(w, "No refreshes recorded")
		return err
	}

	fmt.Fprintf(w, "%-6s %-16s %-16s %-10s %-9s %s\n", "ID", "When", "Trigger", "Took", "Session", "Cards")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, r := range refreshes {
		names := make([]string, len(r.Shown))
		for i, id := range r.Shown {
			names[i] = cardName(id)
		}
		shown := strings.Join(names, ",")
		if shown == "" {
			shown = "-"
		}
		fmt.Fprintf(w, "%-6d %-16s %-16s %-10s %-9s %s\n",
			r.ID,
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			r.Trigger,
			r.Duration.Round(time.Microsecond),
			shortSession(r.SessionID),
			shown,
		)
	}
	return nil
}

func shortSession(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
