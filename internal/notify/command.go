package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// commandTimeout bounds one command run.
const commandTimeout = 30 * time.Second

// CommandNotifier runs a command with the JSON-encoded alert on stdin.
type CommandNotifier struct {
	Path string
}

// NewCommandNotifier returns a notifier running path.
func NewCommandNotifier(path string) *CommandNotifier {
	return &CommandNotifier{Path: path}
}

// Notify runs the command, bounded by ctx and a 30-second timeout.
func (c *CommandNotifier) Notify(ctx context.Context, a Alert) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("notify: marshal alert: %w", err)
	}
	cmd := exec.CommandContext(ctx, c.Path)
	cmd.Stdin = bytes.NewReader(data)

	output, err := cmd.CombinedOutput()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("notify: command timed out: %s", c.Path)
	}
	if err != nil {
		return fmt.Errorf("notify: command %s failed: %w (output: %s)", c.Path, err, output)
	}
	return nil
}

func (c *CommandNotifier) Name() string { return "command" }
