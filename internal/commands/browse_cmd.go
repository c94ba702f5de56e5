package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/benegessarit/skill-composer/internal/output"
	"github.com/benegessarit/skill-composer/internal/tui"
)

// BrowseCmd opens the interactive span browser.
var BrowseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse spans interactively",
	Run: func(cmd *cobra.Command, args []string) {
		RunBrowse(cmd)
	},
}

func RunBrowse(cmd *cobra.Command) {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		output.PrintError(fmt.Errorf("browse needs an interactive terminal; use 'skillspan status' instead"))
		return
	}
	e := mustEnv(cmd)
	defer e.Close()

	if err := tui.Run(e.tracker); err != nil {
		e.Close()
		output.PrintError(err)
	}
}
