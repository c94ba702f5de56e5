package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/benegessarit/skill-composer/internal/config"
	"github.com/benegessarit/skill-composer/internal/output"
	"github.com/benegessarit/skill-composer/internal/steps"
	"github.com/benegessarit/skill-composer/internal/ui"
)

// StepsCmd groups the step file commands.
var StepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "Inspect workflow step declarations",
}

var stepsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflows that have a steps directory",
	Run: func(cmd *cobra.Command, args []string) {
		RunStepsList()
	},
}

var stepsShowCmd = &cobra.Command{
	Use:   "show <workflow>",
	Short: "Print the consumes/produces declarations of a workflow as YAML",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		RunStepsLint(args[0], true)
	},
}

var stepsLintCmd = &cobra.Command{
	Use:   "lint <workflow>",
	Short: "Check step declarations for collisions and dangling inputs",
	Long: `Report step files that cannot be parsed, artifacts declared as produced
by more than one step, and consumed artifacts that no step produces.
Exits with status 1 when anything is found.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		RunStepsLint(args[0], false)
	},
}

func init() {
	StepsCmd.AddCommand(stepsListCmd, stepsShowCmd, stepsLintCmd)
}

func stepsLoader() (*config.Config, *steps.Loader) {
	cfg, err := config.Load()
	if err != nil {
		output.PrintError(err)
	}
	return cfg, steps.NewLoader(nil, cfg.SkillsDirs...)
}

func RunStepsList() {
	_, loader := stepsLoader()
	names := loader.Workflows()
	output.Print(names, func() {
		if len(names) == 0 {
			ui.ShowInfo("No workflows with steps under %v", loader.Dirs())
			return
		}
		for _, n := range names {
			fmt.Fprintf(ui.Out, "  %s\n", n)
		}
	})
}

// RunStepsLint lints a workflow. With show set it prints the declarations
// instead of the findings and never fails.
func RunStepsLint(workflow string, show bool) {
	cfg, loader := stepsLoader()
	dir, ok := loader.StepsDir(workflow)
	if !ok {
		output.PrintError(fmt.Errorf("workflow %q not found under %v", workflow, loader.Dirs()))
		return
	}
	rep, err := steps.Lint(workflow, dir, cfg.RootInputs)
	if err != nil {
		output.PrintError(err)
		return
	}

	if show {
		output.Print(rep, func() {
			data, err := yaml.Marshal(rep)
			if err != nil {
				ui.ShowError("Failed to render steps", err)
				return
			}
			fmt.Fprint(ui.Out, string(data))
		})
		return
	}

	output.Print(rep, func() {
		if rep.OK() {
			ui.ShowSuccess("%s: %d step(s), no findings", workflow, len(rep.Steps))
			return
		}
		ui.ShowHeader("Lint " + workflow)
		for _, f := range rep.Findings {
			subject := f.Step
			if f.Artifact != "" {
				subject = f.Artifact
			}
			ui.ShowWarning("%s %s: %s %v", f.Kind, subject, f.Message, f.Steps)
		}
	})
	if !rep.OK() {
		os.Exit(1)
	}
}
