package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/beautyops/backend/internal/application/ordersync"
	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/infrastructure/config"
	"github.com/beautyops/backend/internal/infrastructure/logger"
)

// errSyncFailed is returned when a run finishes with success=false
var errSyncFailed = errors.New("sync failed")

// syncService is the part of the orchestrator the CLI drives
type syncService interface {
	Start(ctx context.Context, req *integration.SyncRequest) (*ordersync.Run, error)
	TestConnection(ctx context.Context, channel integration.ChannelCode, cred integration.Credential) error
	Mode() integration.SyncMode
	Location() *time.Location
}

var _ syncService = (*ordersync.Orchestrator)(nil)

// serviceOpener wires a sync service. The returned func releases it.
type serviceOpener func(ctx context.Context, cfg *config.Config, log *zap.Logger) (syncService, func(), error)

// cli carries the state shared by the commands of one invocation
type cli struct {
	cfg      *config.Config
	open     serviceOpener
	log      *zap.Logger
	logLevel string
}

func newRootCmd(cfg *config.Config, open serviceOpener) *cobra.Command {
	c := &cli{cfg: cfg, open: open, log: zap.NewNop()}

	root := &cobra.Command{
		Use:   "ordersync",
		Short: "Synchronise marketplace orders",
		Long: `Runs marketplace order synchronisation from the command line.
Credentials default to the configured ones and can be overridden per run.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logger.New(&logger.Config{
				Level:  c.logLevel,
				Format: "console",
				Output: "stderr",
			})
			if err != nil {
				return err
			}
			c.log = log
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(c.newRunCmd(), c.newTestCmd())
	return root
}

func (c *cli) newRunCmd() *cobra.Command {
	var (
		channel, from, to      string
		clientID, clientSecret string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Synchronise one channel over a date range",
		Long: `Fetches every order changed between --from and --to (inclusive, YYYY-MM-DD
in the channel time zone) and upserts it. Both dates default to today.
Exits with status 1 when the run does not succeed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			code, err := integration.ParseChannelCode(channel)
			if err != nil {
				return err
			}
			service, release, err := c.open(ctx, c.cfg, c.log)
			if err != nil {
				return fmt.Errorf("initialize order sync: %w", err)
			}
			defer release()

			loc := service.Location()
			today := time.Now().In(loc).Format(time.DateOnly)
			if from == "" {
				from = today
			}
			if to == "" {
				to = today
			}
			window, err := integration.ParseSyncWindow(from, to, loc)
			if err != nil {
				return err
			}

			run, err := service.Start(ctx, &integration.SyncRequest{
				Channel:    code,
				StartDate:  window.From,
				EndDate:    window.To.AddDate(0, 0, -1),
				Credential: c.credential(clientID, clientSecret),
				Trigger:    integration.SyncTriggerCLI,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Synchronising %s from %s to %s (%s mode)\n",
				code.DisplayName(), window.StartDate(), window.EndDate(), service.Mode())
			for p := range run.Progress() {
				printProgress(out, p)
			}
			result := run.Wait()
			printResult(out, result)
			if !result.Success {
				return errSyncFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&channel, "channel", integration.ChannelNaver.String(), "Channel code")
	cmd.Flags().StringVar(&from, "from", "", "First date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Last date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&clientID, "client-id", "", "Client id (defaults to configuration)")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "Client secret (defaults to configuration)")
	return cmd
}

func (c *cli) newTestCmd() *cobra.Command {
	var channel, clientID, clientSecret string
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Check that the credentials can obtain an access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			code, err := integration.ParseChannelCode(channel)
			if err != nil {
				return err
			}
			service, release, err := c.open(cmd.Context(), c.cfg, c.log)
			if err != nil {
				return fmt.Errorf("initialize order sync: %w", err)
			}
			defer release()

			if err := service.TestConnection(cmd.Context(), code, c.credential(clientID, clientSecret)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s connection ok (%s mode)\n", code.DisplayName(), service.Mode())
			return nil
		},
	}
	cmd.Flags().StringVar(&channel, "channel", integration.ChannelNaver.String(), "Channel code")
	cmd.Flags().StringVar(&clientID, "client-id", "", "Client id (defaults to configuration)")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "Client secret (defaults to configuration)")
	return cmd
}

// credential prefers flags over the configured credential
func (c *cli) credential(clientID, clientSecret string) integration.Credential {
	cred := integration.Credential{ClientID: c.cfg.Naver.ClientID, ClientSecret: c.cfg.Naver.ClientSecret}
	if clientID != "" {
		cred.ClientID = clientID
	}
	if clientSecret != "" {
		cred.ClientSecret = clientSecret
	}
	return cred
}

func printProgress(w io.Writer, p integration.SyncProgress) {
	switch {
	case p.Batches > 0:
		fmt.Fprintf(w, "  %-14s batch %d/%d  synced %d\n", p.Phase, p.Batch, p.Batches, p.SyncedSoFar)
	case p.Total > 0:
		fmt.Fprintf(w, "  %-14s %d/%d  synced %d\n", p.Phase, p.Current, p.Total, p.SyncedSoFar)
	default:
		fmt.Fprintf(w, "  %-14s synced %d\n", p.Phase, p.SyncedSoFar)
	}
}

func printResult(w io.Writer, r *integration.SyncResult) {
	fmt.Fprintln(w, r.Summary())
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
	if r.HiddenErrors > 0 {
		fmt.Fprintf(w, "  ... and %d more errors\n", r.HiddenErrors)
	}
}
