//go:build darwin

package notify

import (
	"context"
	"fmt"
	"os/exec"
)

type darwinNotifier struct{}

func newPlatformNotifier() Notifier {
	return &darwinNotifier{}
}

func (d *darwinNotifier) Notify(ctx context.Context, a Alert) error {
	script := fmt.Sprintf(`display notification %q with title %q`, a.Message, a.Title())
	return exec.CommandContext(ctx, "osascript", "-e", script).Run()
}

func (d *darwinNotifier) Name() string { return "darwin" }
