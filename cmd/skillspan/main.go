package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/benegessarit/skill-composer/internal/commands"
	"github.com/benegessarit/skill-composer/internal/output"
)

var jsonFlag bool

var rootCmd = &cobra.Command{
	Use:   "skillspan",
	Short: "Track and gate multi-step skill workflows for coding agents",
	Long: `skillspan records which workflow steps an agent has read, groups them into
spans per session, and blocks a step until the artifacts it consumes have been
produced by earlier steps. It is driven by agent hooks; the other commands
inspect and maintain the span store.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().String("db", "", "Span database path (overrides config and SKILLSPAN_DB)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Also write logs to stderr")

	rootCmd.AddCommand(commands.HookCmd)
	rootCmd.AddCommand(commands.CheckCmd)
	rootCmd.AddCommand(commands.RecordCmd)
	rootCmd.AddCommand(commands.CloseCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.EventsCmd)
	rootCmd.AddCommand(commands.RepairCmd)
	rootCmd.AddCommand(commands.SweepCmd)
	rootCmd.AddCommand(commands.StepsCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.McpCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.BrowseCmd)
	rootCmd.AddCommand(commands.VersionCmd)

	// Without a subcommand: browse on a terminal, recent spans otherwise.
	rootCmd.Run = func(cmd *cobra.Command, args []string) {
		if !jsonFlag && term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())) {
			commands.RunBrowse(cmd)
			return
		}
		commands.RunRecent(cmd, 20)
	}
}

func main() {
	// Propagate --json flag before execution
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		output.JSONMode = jsonFlag
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
