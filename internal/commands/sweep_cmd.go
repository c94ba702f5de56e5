package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/benegessarit/skill-composer/internal/closer"
	"github.com/benegessarit/skill-composer/internal/notify"
	"github.com/benegessarit/skill-composer/internal/output"
	"github.com/benegessarit/skill-composer/internal/scheduler"
	"github.com/benegessarit/skill-composer/internal/ui"
)

// SweepCmd closes sessions whose end hook never ran.
var SweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Close sessions that have been idle too long",
	Long: `Complete the open spans of every session whose spans have all been idle for
at least --idle. With --every, keep running and sweep on that schedule
("@hourly", "@every 30m" or a cron expression) until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		idle, _ := cmd.Flags().GetDuration("idle")
		every, _ := cmd.Flags().GetString("every")
		RunSweep(cmd, idle, every)
	},
}

func init() {
	SweepCmd.Flags().Duration("idle", 24*time.Hour, "Minimum idle time before a session is closed")
	SweepCmd.Flags().String("every", "", "Sweep on this schedule instead of once")
}

func RunSweep(cmd *cobra.Command, idle time.Duration, every string) {
	e := mustEnv(cmd)
	defer e.Close()

	if every == "" {
		ctx := commandContext(cmd)
		res, err := e.closer.Sweep(ctx, idle)
		if err != nil {
			e.Close()
			output.PrintError(err)
			return
		}
		if a, ok := sweepAlert(res, idle); ok {
			e.alert(ctx, a)
		}
		output.Print(res, func() {
			showSweep(res)
		})
		return
	}

	sched := scheduler.New(e.logger.Logger)
	err := sched.Add("sweep", every, func(ctx context.Context) error {
		res, err := e.closer.Sweep(ctx, idle)
		if a, ok := sweepAlert(res, idle); ok {
			e.alert(ctx, a)
		}
		return err
	})
	if err != nil {
		e.Close()
		output.PrintError(err)
		return
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ui.ShowInfo("Sweeping sessions idle for %s on schedule %q; Ctrl+C to stop", idle, every)
	sched.Run(ctx)
}

// sweepAlert describes a sweep that closed or failed to close anything.
func sweepAlert(res closer.SweepResult, idle time.Duration) (notify.Alert, bool) {
	if res.SpansClosed() == 0 && len(res.Failed) == 0 {
		return notify.Alert{}, false
	}
	msg := fmt.Sprintf("closed %d span(s) in %d session(s) idle for %s", res.SpansClosed(), len(res.Sessions), idle)
	if len(res.Failed) > 0 {
		msg += fmt.Sprintf(", %d session(s) failed", len(res.Failed))
	}
	a := notify.NewAlert(notify.KindSweep, msg)
	for _, r := range res.Sessions {
		a.SpanIDs = append(a.SpanIDs, r.SpanIDs...)
	}
	sort.Strings(a.SpanIDs)
	return a, true
}

func showSweep(res closer.SweepResult) {
	if len(res.Sessions) == 0 && len(res.Failed) == 0 {
		ui.ShowInfo("No idle sessions")
		return
	}
	sessions := make([]string, 0, len(res.Sessions))
	for s := range res.Sessions {
		sessions = append(sessions, s)
	}
	sort.Strings(sessions)
	for _, s := range sessions {
		ui.ShowSuccess("%s: closed %d span(s)", s, res.Sessions[s].SpansClosed)
	}
	for s, msg := range res.Failed {
		ui.ShowWarning("%s: %s", s, msg)
	}
}
