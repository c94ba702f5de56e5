//go:build linux

package notify

import (
	"context"
	"os/exec"
)

type linuxNotifier struct{}

func newPlatformNotifier() Notifier {
	return &linuxNotifier{}
}

// Notify is a no-op when notify-send is not installed.
func (l *linuxNotifier) Notify(ctx context.Context, a Alert) error {
	path, err := exec.LookPath("notify-send")
	if err != nil {
		return nil
	}
	urgency := "normal"
	if a.Kind == KindInvariant {
		urgency = "critical"
	}
	return exec.CommandContext(ctx, path, "--urgency="+urgency, a.Title(), a.Message).Run()
}

func (l *linuxNotifier) Name() string { return "linux" }
