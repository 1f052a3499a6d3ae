// Package notify is the fire-and-forget notification collaborator. The
// orchestrator never awaits a notification for control flow.
package notify

import (
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

// Kind classifies a notification.
type Kind string

const (
	Pending Kind = "pending"
	Success Kind = "success"
	Error   Kind = "error"
	Info    Kind = "info"
)

// Dismiss removes a previously shown notification. Safe to call more than
// once.
type Dismiss func()

// Notifier shows a message and hands back its dismissal.
type Notifier interface {
	Notify(message string, kind Kind) Dismiss
}

// Nop discards all notifications. Used in tests and headless runs.
type Nop struct{}

func (Nop) Notify(string, Kind) Dismiss { return func() {} }

// CLI renders notifications on the terminal: pending messages get a
// spinner, terminal ones a colored line.
type CLI struct{}

func (CLI) Notify(message string, kind Kind) Dismiss {
	switch kind {
	case Pending:
		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = " " + message
		s.Start()
		return func() { s.Stop() }
	case Success:
		color.Green("%s", message)
	case Error:
		color.Red("%s", message)
	default:
		color.Cyan("%s", message)
	}
	return func() {}
}
