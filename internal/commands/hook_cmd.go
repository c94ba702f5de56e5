package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/benegessarit/skill-composer/internal/hook"
)

// HookCmd is the entry point registered in the agent's hook settings.
var HookCmd = &cobra.Command{
	Use:   "hook [event]",
	Short: "Handle an agent lifecycle hook",
	Long: `Read one hook payload as JSON on stdin and answer on stdout.

Events: ` + strings.Join(hook.Events, ", ") + `. When the event is omitted it is
taken from the payload's hook_event_name. Internal errors are logged and the
hook answers nothing, so a broken tracker never blocks the agent.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: hook.Events,
	RunE: func(cmd *cobra.Command, args []string) error {
		event := ""
		if len(args) == 1 {
			event = args[0]
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")
		return RunHook(cmd, event, timeout, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	HookCmd.Flags().Duration("timeout", 10*time.Second, "Upper bound for handling one event")
}

// RunHook handles one hook invocation.
func RunHook(cmd *cobra.Command, event string, timeout time.Duration, in io.Reader, out io.Writer) error {
	e, err := openEnv(cmd)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "skillspan: hook skipped: %v\n", err)
		return nil
	}
	defer e.Close()

	ctx := commandContext(cmd)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	h := &hook.Handler{
		Gate:               e.gate,
		Tracker:            e.tracker,
		Closer:             e.closer,
		Logger:             e.logger.Logger,
		Notifier:           e.notifier,
		VisitWarnThreshold: e.cfg.VisitWarnThreshold,
	}
	return h.Run(ctx, event, in, out)
}
