package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/mqfetch/internal/client"
	"github.com/Iron-Ham/mqfetch/internal/errors"
)

// errIncomplete is returned when the server ended the session without
// delivering the whole resource, e.g. after rejecting the request.
var errIncomplete error = errors.NewSessionError("session ended before the resource was delivered", nil)

var fetchCmd = &cobra.Command{
	Use:   "fetch <priority> <path>",
	Short: "Fetch a file from the running server",
	Long: `Ask the running server for the file at <path> and write its contents to
standard output. <priority> is the scheduling priority of the session worker
and must lie within the server's session.min_priority..session.max_priority.

Relative paths are resolved against the current directory before they are
sent. Press Ctrl-C, or type q and Enter on a terminal, to cancel the transfer.`,
	Args: usageArgs(cobra.ExactArgs(2)),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	prio, err := strconv.Atoi(args[0])
	if err != nil {
		return errors.Join(errors.ErrUsage, fmt.Errorf("priority must be an integer, got %q", args[0]))
	}
	path, err := filepath.Abs(args[1])
	if err != nil {
		return errors.Wrap(err, "failed to resolve path")
	}

	cfg, logger, err := loadConfig("client")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := client.WatchInterrupt(cmd.Context(), os.Stdin, cfg.Client.CancelOnInput, logger)
	defer stop()

	ep, err := openEndpoint(ctx, cfg, false, logger)
	if err != nil {
		return noServer(err)
	}
	defer func() { _ = ep.Close() }()

	agent := client.New(client.Config{
		Transport:     ep.Transport,
		Canceller:     ep.Signal,
		Stdout:        cmd.OutOrStdout(),
		Stderr:        cmd.ErrOrStderr(),
		SignalTimeout: cfg.Client.SignalTimeout(),
		Logger:        logger,
	})
	if err := agent.Run(ctx, prio, path); err != nil {
		return err
	}
	if !agent.Complete() {
		return errIncomplete
	}
	return nil
}
