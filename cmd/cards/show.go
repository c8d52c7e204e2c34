package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mscrnt/homecards/internal/printer"
	"github.com/mscrnt/homecards/pkg/agent"
	"github.com/mscrnt/homecards/pkg/card"
)

var (
	showWait   time.Duration
	showRemote remoteFlags
)

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <card-id>",
		Short: "Check one condition and explain the result",
		Long: `Check a single condition and report whether its card is displayable,
dismissed, or why the check failed. Unlike list, show waits up to --wait
for a slow condition.

Examples:
  cards show 1003
  cards show 1006 --wait 5s

  # Ask an agent to check the card on its host
  cards show 1003 --remote 10.0.0.5:2223`,
		Args: cobra.ExactArgs(1),
		RunE: runShow,
	}

	cmd.Flags().DurationVar(&showWait, "wait", 2*time.Second, "How long to wait for the condition")
	showRemote.register(cmd)

	return cmd
}

func runShow(cmd *cobra.Command, args []string) error {
	if showRemote.enabled() {
		return showFromAgent(cmd, args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	manager, err := newManager(cfg)
	if err != nil {
		return err
	}
	id, err := parseCardArg(manager, args[0])
	if err != nil {
		return err
	}

	store, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	dismissed, err := store.Dismissed()
	if err != nil {
		return err
	}

	st := manager.Inspect(cmd.Context(), id, showWait)
	result := agent.CardStatus{ID: id, Displayable: st.Displayable}
	if st.Err != nil {
		result.Error = st.Err.Error()
	}
	if st.Displayable {
		result.Card = &st.Card
	}
	var dismissedAt time.Time
	if at, ok := dismissed[id]; ok {
		result.Dismissed = true
		dismissedAt = at
	}

	printStatus(cmd.OutOrStdout(), &result, dismissedAt)
	return nil
}

// showFromAgent asks a remote agent to check the card
func showFromAgent(cmd *cobra.Command, arg string) error {
	id, err := card.ParseID(arg)
	if err != nil {
		return printer.Error("Invalid card id", err.Error(), nil)
	}
	client, err := showRemote.client()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	st, err := client.Card(ctx, id)
	if err != nil {
		return err
	}
	printStatus(cmd.OutOrStdout(), st, time.Time{})
	return nil
}

// printStatus renders a check result. dismissedAt may be zero when only the
// dismissed flag is known.
func printStatus(out io.Writer, st *agent.CardStatus, dismissedAt time.Time) {
	fmt.Fprintf(out, "Card:        %s (%s)\n", st.ID, cardName(st.ID))

	switch {
	case st.Error != "":
		fmt.Fprintf(out, "Status:      check failed\n")
		fmt.Fprintf(out, "Error:       %s\n", st.Error)
	case st.Displayable:
		fmt.Fprintf(out, "Status:      displayable\n")
	default:
		fmt.Fprintf(out, "Status:      not displayable\n")
	}

	switch {
	case !dismissedAt.IsZero():
		fmt.Fprintf(out, "Dismissed:   %s\n", dismissedAt.Local().Format(time.RFC3339))
	case st.Dismissed:
		fmt.Fprintf(out, "Dismissed:   yes\n")
	}

	if st.Displayable && st.Card != nil {
		fmt.Fprintln(out)
		printer.Card(out, *st.Card)
	}
}
