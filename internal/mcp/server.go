// Package mcpserver exposes span status, gate decisions and the event ledger
// as MCP tools, so an agent can ask where it is in a workflow without
// reading the database.
package mcpserver

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/benegessarit/skill-composer/internal/gate"
	"github.com/benegessarit/skill-composer/internal/steps"
	"github.com/benegessarit/skill-composer/internal/tracker"
)

// Deps are the components the tools read from.
type Deps struct {
	Tracker    *tracker.Tracker
	Gate       *gate.Gate
	Loader     *steps.Loader
	RootInputs []string
	Version    string
}

// NewServer returns a server with every tool registered.
func NewServer(d Deps) *mcpsdk.Server {
	version := d.Version
	if version == "" {
		version = "dev"
	}
	server := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "skillspan",
			Version: version,
		},
		nil,
	)
	t := &tools{deps: d}

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "span_status",
		Description: "List the workflow spans of a session, most recently touched first. Without a session, list the latest spans overall.",
	}, t.spanStatus)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "check_step",
		Description: "Ask whether a workflow step may be read now, and which artifacts are still missing",
	}, t.checkStep)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "list_events",
		Description: "List ledger events for a session, or for one UTC day (YYYY-MM-DD) optionally restricted to a workflow",
	}, t.listEvents)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "lint_steps",
		Description: "Check a workflow's step declarations for producer collisions, unreadable files and artifacts nobody produces",
	}, t.lintSteps)

	return server
}

// Run serves the tools over stdio until ctx is done or the client leaves.
func Run(ctx context.Context, d Deps) error {
	return NewServer(d).Run(ctx, &mcpsdk.StdioTransport{})
}
