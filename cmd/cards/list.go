package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mscrnt/homecards/internal/printer"
	"github.com/mscrnt/homecards/pkg/card"
	"github.com/mscrnt/homecards/pkg/db"
)

var (
	listAll    bool
	listJSON   bool
	listIDs    bool
	listRemote remoteFlags
)

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the cards that apply right now",
		Long: `Run one aggregation pass over every enabled condition and print the
cards that are displayable, in registry order. Dismissed cards are hidden
unless --all is given.

Examples:
  # Cards for this host
  cards list

  # Cards from a remote agent
  cards list --remote 10.0.0.5:2223

  # Cards from an mTLS agent
  cards list --remote 10.0.0.5:2223 --ca ca.pem --cert client.pem --key client-key.pem

  # Registered card ids
  cards list --ids`,
		Args: cobra.NoArgs,
		RunE: runList,
	}

	cmd.Flags().BoolVar(&listAll, "all", false, "Include dismissed cards")
	cmd.Flags().BoolVar(&listJSON, "json", false, "Print JSON instead of text")
	cmd.Flags().BoolVar(&listIDs, "ids", false, "Print the registered card ids and exit")
	listRemote.register(cmd)

	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	if listRemote.enabled() {
		return listFromAgent(cmd.Context(), cmd)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	manager, err := newManager(cfg)
	if err != nil {
		return err
	}

	if listIDs {
		for _, id := range manager.IDs() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, cardName(id))
		}
		return nil
	}

	cards := manager.DisplayableCards(cmd.Context())

	if !listAll {
		store, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		dismissed, err := store.Dismissed()
		if err != nil {
			return err
		}
		cards = db.FilterDismissed(cards, dismissed)
	}

	return printCards(cmd, cards)
}

func listFromAgent(ctx context.Context, cmd *cobra.Command) error {
	client, err := listRemote.client()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := client.CheckHealth(ctx); err != nil {
		return printer.Error("Agent is not reachable", err.Error(), []string{
			"Start it with 'cards serve' on the remote host",
		})
	}

	resp, err := client.Cards(ctx)
	if err != nil {
		return err
	}
	return printCards(cmd, resp.Cards)
}

func printCards(cmd *cobra.Command, cards []card.Card) error {
	if listJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		if cards == nil {
			cards = []card.Card{}
		}
		return encoder.Encode(cards)
	}
	printer.Cards(cmd.OutOrStdout(), cards)
	return nil
}
