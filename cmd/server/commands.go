package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhruvsoni1802/browser-bridge/internal/cdp"
	"github.com/dhruvsoni1802/browser-bridge/internal/config"
	"github.com/dhruvsoni1802/browser-bridge/internal/storage"
)

const commandTimeout = 10 * time.Second

func newTargetsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List the browser's page targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			discovery := cdp.NewDiscovery(cfg.ChromeHost, cfg.ChromePort)
			info, err := discovery.Version(ctx)
			if err != nil {
				return fmt.Errorf("browser not reachable at %s: %w", discovery.BaseURL(), err)
			}
			pages, err := discovery.ListPages(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s (protocol %s)\n\n", info.Browser, info.ProtocolVersion)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tURL")
			for _, p := range pages {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Title, p.URL)
			}
			return w.Flush()
		},
	}
}

func newSessionsCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List persisted sessions (needs --redis-addr)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, cfg, func(ctx context.Context, repo *storage.SessionRepository) error {
				states, err := repo.ListSessions(ctx)
				if err != nil {
					return err
				}
				current, _ := repo.CurrentSession(ctx)

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SESSION\tTARGET\tSTATUS\tLAST ACTIVITY\tURL")
				for _, s := range states {
					id := s.SessionID
					if current != nil && current.SessionID == id {
						id += "*"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", id, s.TargetID, s.Status, s.LastActivity.Format(time.DateTime), s.URL)
				}
				return w.Flush()
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <session-id>",
		Short: "Forget a persisted session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, cfg, func(ctx context.Context, repo *storage.SessionRepository) error {
				return repo.DeleteSession(ctx, args[0])
			})
		},
	})

	return cmd
}

func withRepository(cmd *cobra.Command, cfg *config.Config, fn func(ctx context.Context, repo *storage.SessionRepository) error) error {
	if cfg.RedisAddr == "" {
		return fmt.Errorf("no redis configured: set --redis-addr or REDIS_ADDR")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	client, err := storage.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer client.Close()

	return fn(ctx, storage.NewSessionRepository(client, cfg.SessionTTL))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "browser-bridge %s\n", version)
		},
	}
}
