package client

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/muesli/cancelreader"
	"golang.org/x/term"

	"github.com/Iron-Ham/mqfetch/internal/logging"
)

// WatchInterrupt returns a context that is cancelled on SIGINT or SIGTERM.
// When watchInput is true and stdin is a terminal, entering a line that
// starts with 'q' cancels it too. The returned stop function releases the
// signal handler and the stdin reader; call it once the session is over.
func WatchInterrupt(parent context.Context, stdin *os.File, watchInput bool, logger *logging.Logger) (context.Context, context.CancelFunc) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	ctx, stopSignals := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if !watchInput || stdin == nil || !term.IsTerminal(int(stdin.Fd())) {
		return ctx, stopSignals
	}

	cr, err := cancelreader.NewReader(stdin)
	if err != nil {
		logger.Debug("input cancel unavailable", "error", err.Error())
		return ctx, stopSignals
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if watchQuit(cr) {
			logger.Debug("quit requested from input")
			cancel()
		}
	}()

	return ctx, func() {
		cancel()
		cr.Cancel()
		<-done
		_ = cr.Close()
		stopSignals()
	}
}

// watchQuit reads lines from r until one starts with 'q' or 'Q', and
// reports whether it found one. It returns false when r ends or is cancelled.
func watchQuit(r io.Reader) bool {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(strings.ToLower(line), "q") {
			return true
		}
	}
	return false
}
