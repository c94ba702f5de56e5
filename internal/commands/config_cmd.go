package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benegessarit/skill-composer/internal/config"
	"github.com/benegessarit/skill-composer/internal/output"
	"github.com/benegessarit/skill-composer/internal/ui"
)

// ConfigCmd groups the configuration commands.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration, environment overrides applied",
	Run: func(cmd *cobra.Command, args []string) {
		RunConfigShow()
	},
}

var configSetCmd = &cobra.Command{
	Use:       "set <key> <value>",
	Short:     "Set a configuration value",
	Long:      "Set a value in the config file. List values are comma separated.\n\nKeys: " + strings.Join(config.Keys(), ", "),
	Args:      cobra.ExactArgs(2),
	ValidArgs: config.Keys(),
	Run: func(cmd *cobra.Command, args []string) {
		RunConfigSet(args[0], args[1])
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Run: func(cmd *cobra.Command, args []string) {
		output.Print(map[string]string{"path": config.ConfigPath}, func() {
			fmt.Fprintln(ui.Out, config.ConfigPath)
		})
	},
}

func init() {
	ConfigCmd.AddCommand(configShowCmd, configSetCmd, configPathCmd)
}

func RunConfigShow() {
	cfg, err := config.Load()
	if err != nil {
		output.PrintError(err)
		return
	}
	output.Print(cfg, func() {
		fmt.Fprintln(ui.Out, "Current configuration:")
		fmt.Fprintf(ui.Out, "  dbPath: %s\n", cfg.DBPath)
		fmt.Fprintf(ui.Out, "  skillsDirs: %s\n", strings.Join(cfg.SkillsDirs, ", "))
		fmt.Fprintf(ui.Out, "  rootInputs: %s\n", strings.Join(cfg.RootInputs, ", "))
		fmt.Fprintf(ui.Out, "  lockTimeoutMs: %d\n", cfg.LockTimeoutMs)
		fmt.Fprintf(ui.Out, "  logLevel: %s\n", cfg.LogLevel)
		logFile := cfg.LogFile
		if logFile == "" {
			logFile = "(stderr)"
		}
		fmt.Fprintf(ui.Out, "  logFile: %s\n", logFile)
		fmt.Fprintf(ui.Out, "  visitWarnThreshold: %d\n", cfg.VisitWarnThreshold)
	})
}

func RunConfigSet(key, value string) {
	if err := config.SetValue(key, value); err != nil {
		output.PrintError(err)
		return
	}
	output.Print(map[string]string{"key": key, "value": value}, func() {
		ui.ShowSuccess("%s set to: %s", key, value)
	})
}
