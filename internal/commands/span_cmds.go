package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benegessarit/skill-composer/internal/closer"
	"github.com/benegessarit/skill-composer/internal/gate"
	"github.com/benegessarit/skill-composer/internal/output"
	"github.com/benegessarit/skill-composer/internal/span"
	"github.com/benegessarit/skill-composer/internal/tracker"
	"github.com/benegessarit/skill-composer/internal/ui"
)

// CheckCmd asks the gate whether a step may be read.
var CheckCmd = &cobra.Command{
	Use:   "check <workflow> <step>",
	Short: "Ask the dependency gate whether a step may be read",
	Long:  "Print the gate decision for a step. Exits with status 2 when the step is blocked.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		session, _ := cmd.Flags().GetString("session")
		RunCheck(cmd, args[0], args[1], session)
	},
}

// RecordCmd records a step read as the post-tool hook would.
var RecordCmd = &cobra.Command{
	Use:   "record <workflow> <step>",
	Short: "Record that a step was read",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		session, _ := cmd.Flags().GetString("session")
		RunRecord(cmd, args[0], args[1], session)
	},
}

// CloseCmd completes the open spans of a session.
var CloseCmd = &cobra.Command{
	Use:   "close <session>",
	Short: "Complete every open span of a session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		RunClose(cmd, args[0])
	},
}

// StatusCmd shows spans.
var StatusCmd = &cobra.Command{
	Use:   "status [session]",
	Short: "Show the spans of a session, or the latest spans overall",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")
		limit, _ := cmd.Flags().GetInt("limit")
		if len(args) == 0 {
			RunRecent(cmd, limit)
			return
		}
		RunStatus(cmd, args[0], all)
	},
}

// EventsCmd lists ledger events.
var EventsCmd = &cobra.Command{
	Use:   "events [session]",
	Short: "List ledger events of a session or of one day",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		date, _ := cmd.Flags().GetString("date")
		workflow, _ := cmd.Flags().GetString("workflow")
		session := ""
		if len(args) == 1 {
			session = args[0]
		}
		RunEvents(cmd, session, date, workflow)
	},
}

// RepairCmd restores the one-open-span-per-workflow invariant.
var RepairCmd = &cobra.Command{
	Use:   "repair <session>",
	Short: "Force-complete duplicate open spans of a session",
	Long: `Keep the most recently touched open span per workflow and complete the
others. Only needed after the tracker reported an invariant violation.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		RunRepair(cmd, args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{CheckCmd, RecordCmd} {
		c.Flags().StringP("session", "s", "", "Session id")
		_ = c.MarkFlagRequired("session")
	}
	StatusCmd.Flags().BoolP("all", "a", false, "Include completed spans")
	StatusCmd.Flags().IntP("limit", "n", 20, "Number of spans when no session is given")
	EventsCmd.Flags().String("date", "", "Day to list (YYYY-MM-DD, UTC) instead of a session")
	EventsCmd.Flags().StringP("workflow", "w", "", "Restrict --date to one workflow")
}

func mustEnv(cmd *cobra.Command) *env {
	e, err := openEnv(cmd)
	if err != nil {
		output.PrintError(err)
	}
	return e
}

func RunCheck(cmd *cobra.Command, workflow, step, session string) {
	e := mustEnv(cmd)
	defer e.Close()

	d := e.gate.Check(commandContext(cmd), workflow, step, session)
	type result struct {
		gate.Decision
		Error string `json:"error,omitempty"`
	}
	res := result{Decision: d}
	if d.Err != nil {
		res.Error = d.Err.Error()
	}
	output.Print(res, func() {
		ui.ShowDecision(workflow, step, d)
	})
	if !d.Allow {
		e.Close()
		os.Exit(2)
	}
}

func RunRecord(cmd *cobra.Command, workflow, step, session string) {
	e := mustEnv(cmd)
	defer e.Close()

	res, err := e.tracker.RecordStep(commandContext(cmd), workflow, step, session)
	if err != nil {
		e.Close()
		output.PrintError(err)
		return
	}
	output.Print(res, func() {
		ui.ShowRecord(res)
	})
}

func RunClose(cmd *cobra.Command, session string) {
	e := mustEnv(cmd)
	defer e.Close()

	res, err := e.closer.Close(commandContext(cmd), session)
	if err != nil {
		e.Close()
		output.PrintError(err)
		return
	}
	output.Print(res, func() {
		showClosed(session, res)
	})
}

func showClosed(session string, res closer.Result) {
	if res.SpansClosed == 0 {
		ui.ShowInfo("No open spans in session %q", session)
		return
	}
	ui.ShowSuccess("Closed %d span(s) in session %s", res.SpansClosed, session)
}

func RunStatus(cmd *cobra.Command, session string, all bool) {
	e := mustEnv(cmd)
	defer e.Close()

	views, err := e.tracker.Status(commandContext(cmd), session, !all)
	if err != nil {
		e.Close()
		output.PrintError(err)
		return
	}
	output.Print(views, func() {
		if len(views) == 0 {
			ui.ShowInfo("No spans in session %q", session)
			return
		}
		ui.ShowHeader("Session " + session)
		for _, v := range views {
			ui.ShowSpan(v)
		}
	})
}

func RunRecent(cmd *cobra.Command, limit int) {
	e := mustEnv(cmd)
	defer e.Close()

	spans, err := e.tracker.Recent(commandContext(cmd), limit)
	if err != nil {
		e.Close()
		output.PrintError(err)
		return
	}
	output.Print(spans, func() {
		if len(spans) == 0 {
			ui.ShowInfo("No spans recorded yet")
			return
		}
		ui.ShowHeader("Recent spans")
		for _, s := range spans {
			ui.ShowSpan(tracker.SpanView{Span: s})
			fmt.Fprintf(ui.Out, "     session: %s\n", s.SessionID)
		}
	})
}

func RunEvents(cmd *cobra.Command, session, date, workflow string) {
	if session == "" && date == "" {
		output.PrintError(fmt.Errorf("give a session or --date"))
		return
	}
	e := mustEnv(cmd)
	defer e.Close()

	var (
		events []span.Event
		err    error
	)
	if date != "" {
		events, err = e.tracker.EventsOn(commandContext(cmd), date, workflow)
	} else {
		events, err = e.tracker.Events(commandContext(cmd), session)
	}
	if err != nil {
		e.Close()
		output.PrintError(err)
		return
	}
	output.Print(events, func() {
		if len(events) == 0 {
			ui.ShowInfo("No events")
			return
		}
		ui.ShowEvents(events)
	})
}

func RunRepair(cmd *cobra.Command, session string) {
	e := mustEnv(cmd)
	defer e.Close()

	report, err := e.tracker.Repair(commandContext(cmd), session)
	if err != nil {
		e.Close()
		output.PrintError(err)
		return
	}
	output.Print(report, func() {
		if report.Repaired() == 0 {
			ui.ShowSuccess("Session %s is consistent", session)
			return
		}
		for wf, ids := range report.Complete {
			ui.ShowWarning("%s: kept %s, completed %d duplicate(s)", wf, report.Kept[wf], len(ids))
		}
	})
}
