//go:build !darwin && !linux && !windows

package notify

import "context"

// noopNotifier is a no-op for unsupported platforms.
type noopNotifier struct{}

func newPlatformNotifier() Notifier {
	return &noopNotifier{}
}

func (n *noopNotifier) Notify(context.Context, Alert) error { return nil }
func (n *noopNotifier) Name() string                        { return "noop" }
