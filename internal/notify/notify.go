// Package notify tells the user the assistant is now listening for a query:
// a short chime on the speakers and/or a desktop notification.
package notify

import (
	"context"
	"os/exec"

	log "log/slog"
)

// Player plays a sound file to completion.
type Player interface {
	Play(ctx context.Context, path string) error
}

type Notifier struct {
	player  Player
	chime   string // sound file, empty disables the chime
	desktop bool
	send    func(ctx context.Context, summary string) error
}

func New(player Player, chime string, desktop bool) *Notifier {
	return &Notifier{player: player, chime: chime, desktop: desktop, send: notifySend}
}

// Enabled reports whether Listening does anything.
func (n *Notifier) Enabled() bool {
	return n != nil && (n.chime != "" || n.desktop)
}

// Listening fires the configured notifications. Failures are logged only.
func (n *Notifier) Listening(ctx context.Context) {
	if !n.Enabled() {
		return
	}

	if n.desktop {
		if err := n.send(ctx, "Listening..."); err != nil {
			log.Warn("Failed to send desktop notification", "err", err)
		}
	}

	if n.chime != "" && n.player != nil {
		if err := n.player.Play(ctx, n.chime); err != nil {
			log.Warn("Failed to play chime", "file", n.chime, "err", err)
		}
	}
}

func notifySend(ctx context.Context, summary string) error {
	return exec.CommandContext(ctx, "notify-send", "-a", "llamavox", "-t", "3000", summary).Run()
}
