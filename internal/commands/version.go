package commands

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/benegessarit/skill-composer/internal/output"
	"github.com/benegessarit/skill-composer/internal/store"
)

// Version information, set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// VersionCmd prints build information.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		RunVersion()
	},
}

type versionInfo struct {
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	Date          string `json:"date"`
	SchemaVersion int    `json:"schemaVersion"`
	GoVersion     string `json:"goVersion,omitempty"`
}

func RunVersion() {
	info := versionInfo{Version: Version, Commit: Commit, Date: Date, SchemaVersion: store.SchemaVersion}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = bi.GoVersion
	}
	output.Print(info, func() {
		fmt.Printf("skillspan version %s (commit %s, built %s, schema v%d)\n", Version, Commit, Date, store.SchemaVersion)
	})
}
