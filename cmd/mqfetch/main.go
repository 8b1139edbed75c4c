package main

import (
	"os"

	"github.com/Iron-Ham/mqfetch/internal/client"
	"github.com/Iron-Ham/mqfetch/internal/cmd"
	"github.com/Iron-Ham/mqfetch/internal/errors"
)

func main() {
	err := cmd.Execute()
	// The client has already reported an interrupt.
	if err != nil && !errors.Is(err, errors.ErrInterrupted) {
		client.NewRenderer(os.Stderr).Failure(err)
	}
	os.Exit(errors.ExitCode(err))
}
