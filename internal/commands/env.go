package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benegessarit/skill-composer/internal/closer"
	"github.com/benegessarit/skill-composer/internal/config"
	"github.com/benegessarit/skill-composer/internal/gate"
	"github.com/benegessarit/skill-composer/internal/logging"
	"github.com/benegessarit/skill-composer/internal/notify"
	"github.com/benegessarit/skill-composer/internal/steps"
	"github.com/benegessarit/skill-composer/internal/store"
	"github.com/benegessarit/skill-composer/internal/tracker"
)

// env wires the components one command invocation needs. Every process
// builds its own; nothing is shared between invocations except the store.
type env struct {
	cfg      *config.Config
	logger   *logging.Logger
	store    *store.Store
	loader   *steps.Loader
	tracker  *tracker.Tracker
	gate     *gate.Gate
	closer   *closer.Closer
	notifier notify.Notifier // nil when no alert channel is configured
	closed   bool
}

// openEnv loads the configuration, applies the persistent --db and
// --verbose flags, and opens the store.
func openEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.DBPath = db
	}
	verbose, _ := cmd.Flags().GetBool("verbose")

	// a broken log destination must not stop the command
	logger, _ := logging.New(cfg.LogFile, cfg.LogLevel, verbose)

	st, err := store.Open(commandContext(cmd), cfg.DBPath, store.WithLockTimeout(cfg.LockTimeout()))
	if err != nil {
		logger.Error("open store failed", "path", cfg.DBPath, "err", err)
		_ = logger.Close()
		return nil, err
	}

	loader := steps.NewLoader(logger.Logger, cfg.SkillsDirs...)
	notifier := notify.New(notify.Options{
		Desktop:       cfg.AlertDesktop,
		Command:       cfg.AlertCommand,
		WebhookURL:    cfg.AlertWebhook,
		WebhookFormat: cfg.AlertWebhookFormat,
	})
	return &env{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		loader:   loader,
		tracker:  tracker.New(st, logger.Logger),
		gate:     gate.New(st, loader, cfg.RootInputs, logger.Logger),
		closer:   closer.New(st, logger.Logger),
		notifier: notifier,
	}, nil
}

// alert delivers a to the configured notifier, if any. Failures are logged.
func (e *env) alert(ctx context.Context, a notify.Alert) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, a); err != nil {
		e.logger.Warn("alert failed", "notifier", e.notifier.Name(), "err", err)
	}
}

// Close may be called more than once; commands call it before os.Exit.
func (e *env) Close() {
	if e.closed {
		return
	}
	e.closed = true
	_ = e.store.Close()
	_ = e.logger.Close()
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
