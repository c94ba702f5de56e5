package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JSONMode controls whether output is JSON or human-readable
var JSONMode bool

// Out receives command output; tests replace it.
var Out io.Writer = os.Stdout

// exit terminates after a reported error; tests replace it.
var exit = os.Exit

// Result represents a generic result for JSON output
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Print outputs data. In JSON mode, marshals to JSON. Otherwise calls the textFn.
func Print(data any, textFn func()) {
	if JSONMode {
		out, err := json.MarshalIndent(Result{Success: true, Data: data}, "", "  ")
		if err != nil {
			PrintError(err)
			return
		}
		fmt.Fprintln(Out, string(out))
		return
	}
	textFn()
}

// PrintError reports err and exits with status 1. In JSON mode the error is
// written as a Result on Out, otherwise as text on stderr.
func PrintError(err error) {
	if JSONMode {
		out, _ := json.MarshalIndent(Result{Success: false, Error: err.Error()}, "", "  ")
		fmt.Fprintln(Out, string(out))
		exit(1)
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	exit(1)
}
