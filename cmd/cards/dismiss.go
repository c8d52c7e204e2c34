package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mscrnt/homecards/internal/printer"
	"github.com/mscrnt/homecards/pkg/agent"
	"github.com/mscrnt/homecards/pkg/card"
	"github.com/mscrnt/homecards/pkg/db"
)

func dismissCmd() *cobra.Command {
	var remote remoteFlags

	cmd := &cobra.Command{
		Use:   "dismiss <card-id>",
		Short: "Hide a card until it is restored",
		Long: `Hide a card from list, watch and the agent. The condition is still
checked, and 'cards show' reports it as dismissed.

Examples:
  cards dismiss 1003
  cards dismiss 1003 --remote 10.0.0.5:2223`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote.enabled() {
				return withAgent(cmd.Context(), &remote, args[0], func(ctx context.Context, client *agent.Client, id card.ID) error {
					if err := client.Dismiss(ctx, id); err != nil {
						return err
					}
					printer.Success(cmd.OutOrStdout(), "Dismissed %s on %s\n", cardName(id), remote.addr)
					return nil
				})
			}

			return withStore(args[0], func(store *db.DB, id card.ID) error {
				if err := store.Dismiss(id); err != nil {
					return err
				}
				printer.Success(cmd.OutOrStdout(), "Dismissed %s\n", cardName(id))
				return nil
			})
		},
	}

	remote.register(cmd)
	return cmd
}

func restoreCmd() *cobra.Command {
	var remote remoteFlags

	cmd := &cobra.Command{
		Use:   "restore <card-id>",
		Short: "Show a dismissed card again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote.enabled() {
				return withAgent(cmd.Context(), &remote, args[0], func(ctx context.Context, client *agent.Client, id card.ID) error {
					err := client.Restore(ctx, id)
					var apiErr *agent.APIError
					if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound && strings.Contains(apiErr.Message, "not dismissed") {
						printer.Warning(cmd.OutOrStdout(), "%s was not dismissed\n", cardName(id))
						return nil
					}
					if err != nil {
						return err
					}
					printer.Success(cmd.OutOrStdout(), "Restored %s on %s\n", cardName(id), remote.addr)
					return nil
				})
			}

			return withStore(args[0], func(store *db.DB, id card.ID) error {
				err := store.Restore(id)
				if errors.Is(err, db.ErrNotDismissed) {
					printer.Warning(cmd.OutOrStdout(), "%s was not dismissed\n", cardName(id))
					return nil
				}
				if err != nil {
					return err
				}
				printer.Success(cmd.OutOrStdout(), "Restored %s\n", cardName(id))
				return nil
			})
		},
	}

	remote.register(cmd)
	return cmd
}

// withAgent runs fn against the agent named by remote. The agent checks the
// id against its own registry.
func withAgent(ctx context.Context, remote *remoteFlags, arg string, fn func(ctx context.Context, client *agent.Client, id card.ID) error) error {
	id, err := card.ParseID(arg)
	if err != nil {
		return printer.Error("Invalid card id", err.Error(), nil)
	}
	client, err := remote.client()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	return fn(ctx, client, id)
}

// withStore validates arg against the registry and runs fn with an open database
func withStore(arg string, fn func(store *db.DB, id card.ID) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	manager, err := newManager(cfg)
	if err != nil {
		return err
	}
	id, err := parseCardArg(manager, arg)
	if err != nil {
		return err
	}

	store, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return fn(store, id)
}
