package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/mqfetch/internal/errors"
	"github.com/Iron-Ham/mqfetch/internal/protocol"
	"github.com/Iron-Ham/mqfetch/internal/server"
)

// stopPollInterval is how often --wait checks the server lock.
const stopPollInterval = 100 * time.Millisecond

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask the running server to shut down",
	Long: `Send a stop request on the server channel. The server stops accepting
connections, lets live sessions finish within server.shutdown_grace_ms,
cancels the rest and destroys the mailbox.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: runStop,
}

var stopWait time.Duration

func init() {
	stopCmd.Flags().DurationVarP(&stopWait, "wait", "w", 0, "wait up to this long for the server to exit")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig("stop")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ctx := cmd.Context()
	ep, err := openEndpoint(ctx, cfg, false, logger)
	if err != nil {
		return noServer(err)
	}
	defer func() { _ = ep.Close() }()

	if err := ep.Transport.Send(ctx, protocol.NewStopServer()); err != nil {
		return errors.Wrap(err, "failed to send stop request")
	}
	logger.Info("stop requested")
	fmt.Fprintln(cmd.OutOrStdout(), "stop requested")

	if stopWait <= 0 {
		return nil
	}
	return waitForExit(ctx, cfg.Mailbox.Dir, stopWait)
}

// waitForExit polls the server lock in dir until it is released.
func waitForExit(ctx context.Context, dir string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(stopPollInterval)
	defer ticker.Stop()
	for {
		if _, locked := server.IsLocked(dir); !locked {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("server still running after %s", timeout)
		case <-ticker.C:
		}
	}
}
