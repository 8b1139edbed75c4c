package client

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/mqfetch/internal/errors"
)

// Status colors.
var (
	warnColor  = lipgloss.Color("11")
	errorColor = lipgloss.Color("9")
	mutedColor = lipgloss.Color("8")
)

// Renderer writes session status lines. Colors are dropped automatically
// when the destination is not a terminal.
type Renderer struct {
	w     io.Writer
	warn  lipgloss.Style
	err   lipgloss.Style
	muted lipgloss.Style
}

// NewRenderer creates a Renderer for w.
func NewRenderer(w io.Writer) *Renderer {
	r := lipgloss.NewRenderer(w)
	return &Renderer{
		w:     w,
		warn:  r.NewStyle().Foreground(warnColor).Bold(true),
		err:   r.NewStyle().Foreground(errorColor).Bold(true),
		muted: r.NewStyle().Foreground(mutedColor),
	}
}

// Cancelled reports a locally interrupted session.
func (r *Renderer) Cancelled(sessionID string) {
	if sessionID == "" {
		fmt.Fprintln(r.w, r.warn.Render("cancelled"))
		return
	}
	fmt.Fprintln(r.w, r.warn.Render("cancelled")+" "+r.muted.Render(sessionID))
}

// Violation reports an envelope the client cannot handle.
func (r *Renderer) Violation(detail string) {
	fmt.Fprintln(r.w, r.err.Render("unknown message type")+" "+r.muted.Render(detail))
}

// Failure reports an error that ended the command. Errors not meant for end
// users are labelled as unexpected, with a hint when a retry may help.
func (r *Renderer) Failure(err error) {
	if errors.IsUserFacing(err) {
		fmt.Fprintln(r.w, r.err.Render("error:")+" "+err.Error())
		return
	}
	fmt.Fprintln(r.w, r.err.Render("unexpected error:")+" "+err.Error())
	if errors.IsRetryable(err) {
		fmt.Fprintln(r.w, r.muted.Render("the mailbox backend may be temporarily unavailable; try again"))
	}
}
