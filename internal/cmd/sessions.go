package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/mqfetch/internal/errors"
	"github.com/Iron-Ham/mqfetch/internal/server"
	"github.com/Iron-Ham/mqfetch/internal/util"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List the live sessions of the running server",
	Long: `List the sessions the running server is serving, as recorded in the
sessions snapshot next to the mailbox:
- Session ID and reply channel
- Requesting process, priority and resource path
- How long the session has been running`,
	Args: usageArgs(cobra.NoArgs),
	RunE: runSessionsList,
}

var sessionsCancelCmd = &cobra.Command{
	Use:   "cancel <session-id>",
	Short: "Cancel a live session out of band",
	Long: `Raise the out-of-band cancel for a session, exactly as an interrupted
client would. The worker discards whatever it queued for its client and exits.
Cancelling a session that already ended has no effect.`,
	Args: usageArgs(cobra.ExactArgs(1)),
	RunE: runSessionsCancel,
}

var sessionsYAML bool

// maxPathWidth bounds the PATH column of the session listing, in terminal
// columns.
const maxPathWidth = 60

func init() {
	sessionsCmd.Flags().BoolVar(&sessionsYAML, "yaml", false, "print the raw snapshot as YAML")
	sessionsCmd.AddCommand(sessionsCancelCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig("sessions")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	out := cmd.OutOrStdout()
	lock, running := server.IsLocked(cfg.Mailbox.Dir)
	if !running {
		fmt.Fprintln(out, "No server running.")
		return nil
	}

	snap, err := server.ReadSnapshot(cfg.Mailbox.Dir)
	if err != nil {
		var nf *errors.NotFoundError
		if errors.As(err, &nf) {
			fmt.Fprintf(out, "Server pid %d has not published any sessions yet.\n", lock.PID)
			return nil
		}
		return err
	}

	if sessionsYAML {
		data, err := yaml.Marshal(snap)
		if err != nil {
			return fmt.Errorf("failed to marshal snapshot: %w", err)
		}
		_, err = out.Write(data)
		return err
	}
	printSnapshot(out, lock, snap, time.Now())
	return nil
}

// printSnapshot writes a human readable session listing.
func printSnapshot(out io.Writer, lock *server.Lock, snap *server.Snapshot, now time.Time) {
	fmt.Fprintf(out, "Server pid %d on %s (%s mailbox), %d sessions accepted since %s\n",
		lock.PID, lock.Hostname, snap.Backend, snap.Accepted, lock.StartedAt.Format(time.RFC3339))

	if len(snap.Sessions) == 0 {
		fmt.Fprintln(out, "No live sessions.")
		return
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%-28s %8s %8s %8s %10s  %s\n", "ID", "CHANNEL", "PID", "PRIORITY", "AGE", "PATH")
	for _, s := range snap.Sessions {
		id := s.ID
		if s.Cancelled {
			id += "*"
		}
		age := now.Sub(s.StartedAt).Truncate(time.Second)
		fmt.Fprintf(out, "%-28s %8d %8d %8d %10s  %s\n", id, s.Channel, s.RequesterID, s.Priority, age,
			util.TruncateMiddle(s.ResourcePath, maxPathWidth))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "* cancel requested")
}

func runSessionsCancel(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig("sessions")
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

	if err := ep.Signal.Cancel(ctx, args[0]); err != nil {
		return errors.Wrapf(err, "failed to cancel session %s", args[0])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cancel sent to %s\n", args[0])
	return nil
}
