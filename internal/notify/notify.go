// Package notify raises alerts about conditions that need a human: span
// invariant violations repaired by the hook, and sessions closed by the
// idle sweep. Alerts go to the desktop, a local command or a webhook.
package notify

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Alert kinds.
const (
	KindInvariant = "invariant_violation"
	KindSweep     = "sessions_swept"
)

// Alert is one notification, also the JSON document given to commands and
// generic webhooks.
type Alert struct {
	Kind      string   `json:"kind"`
	Session   string   `json:"session,omitempty"`
	Workflow  string   `json:"workflow,omitempty"`
	SpanIDs   []string `json:"spanIds,omitempty"`
	Message   string   `json:"message"`
	Timestamp string   `json:"timestamp"`
}

// NewAlert stamps an alert with the current time.
func NewAlert(kind, message string) Alert {
	return Alert{Kind: kind, Message: message, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

// Title is the one-line heading used by desktop and chat notifiers.
func (a Alert) Title() string {
	return "skillspan: " + strings.ReplaceAll(a.Kind, "_", " ")
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
	Name() string
}

// NewDesktopNotifier returns a platform-specific desktop notification sender.
func NewDesktopNotifier() Notifier {
	return newPlatformNotifier()
}

// Multi delivers to every notifier in turn.
type Multi []Notifier

// Notify attempts every notifier and joins their errors.
func (m Multi) Notify(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Name lists the member names.
func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, n := range m {
		names[i] = n.Name()
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

// Options select the configured notifiers.
type Options struct {
	Desktop       bool
	Command       string
	WebhookURL    string
	WebhookFormat string
}

// New builds the notifier described by o. It returns nil when nothing is
// configured.
func New(o Options) Notifier {
	var m Multi
	if o.Desktop {
		m = append(m, NewDesktopNotifier())
	}
	if o.Command != "" {
		m = append(m, NewCommandNotifier(o.Command))
	}
	if o.WebhookURL != "" {
		m = append(m, NewWebhookNotifier(o.WebhookURL, o.WebhookFormat))
	}
	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0]
	}
	return m
}
