package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/mqfetch/internal/event"
	"github.com/Iron-Ham/mqfetch/internal/mailbox"
	"github.com/Iron-Ham/mqfetch/internal/priority"
	"github.com/Iron-Ham/mqfetch/internal/server"
	"github.com/Iron-Ham/mqfetch/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatcher",
	Long: `Create the shared mailbox and serve connect requests until 'mqfetch stop'
is run or the process is interrupted.

Every request is handled by its own session worker. After a stop request live
sessions get server.shutdown_grace_ms to finish; an interrupt cancels them
immediately. The mailbox is destroyed on exit either way.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig("server")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	lock, err := server.AcquireLock(cfg.Mailbox.Dir, cfg.Mailbox.Backend, logger)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ep, err := openEndpoint(ctx, cfg, true, logger)
	if err != nil {
		return err
	}
	defer func() { _ = ep.Close() }()

	policy, err := session.NewPolicy(
		cfg.Session.MinPriority,
		cfg.Session.MaxPriority,
		cfg.Session.ChunkSize,
		cfg.Session.AllowedPaths,
	)
	if err != nil {
		return err
	}

	bus := event.NewBus(event.WithLogger(logger))
	bus.Subscribe(event.TypeSessionAccepted, func(e event.Event) {
		acc := e.(event.SessionAcceptedEvent)
		fmt.Fprintf(cmd.ErrOrStderr(), "session %s: pid %d, priority %d, %s\n",
			acc.SessionID, acc.RequesterID, acc.Priority, acc.ResourcePath)
	})
	bus.Subscribe(event.TypeSessionEnded, func(e event.Event) {
		ended := e.(event.SessionEndedEvent)
		fmt.Fprintf(cmd.ErrOrStderr(), "session %s %s (%d bytes)\n", ended.SessionID, ended.Outcome, ended.BytesSent)
	})

	mb := mailbox.New(ep.Transport, mailbox.WithBus(bus), mailbox.WithLogger(logger))
	d := server.New(server.Config{
		Transport: mb,
		Listener:  ep.Signal,
		Worker: session.WorkerConfig{
			Fs:       afero.NewReadOnlyFs(afero.NewOsFs()),
			Priority: priority.New(cfg.Session.ApplyPriority),
			Policy:   policy,
		},
		ShutdownGrace: cfg.Server.ShutdownGrace(),
		Dir:           cfg.Mailbox.Dir,
		Backend:       ep.Backend,
		Bus:           bus,
		Logger:        logger,
	})

	fmt.Fprintf(cmd.ErrOrStderr(), "serving on %s (%s mailbox, pid %d)\n", cfg.Mailbox.Dir, ep.Backend, os.Getpid())
	if err := d.Run(ctx); err != nil {
		return err
	}

	stats := mb.Stats()
	fmt.Fprintf(cmd.ErrOrStderr(), "server stopped: %d sessions, %d envelopes sent, %d drained\n",
		d.Registry().Accepted(), stats.Sent, stats.Drained)
	return nil
}
