// Package gate decides whether a workflow step may be read, based on the
// artifacts produced by the steps already visited in the workflow's open
// span. The gate only reads the store and fails open on any internal error.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/benegessarit/skill-composer/internal/span"
	"github.com/benegessarit/skill-composer/internal/steps"
	"github.com/benegessarit/skill-composer/internal/store"
)

// IndexSource yields the step index of a workflow.
type IndexSource interface {
	Load(workflow string) (*steps.Index, error)
}

// Missing is one unsatisfied artifact and the step that would produce it.
// Producer is empty when no step of the workflow declares the artifact.
type Missing struct {
	Artifact string `json:"artifact"`
	Producer string `json:"producer,omitempty"`
}

// Reason values reported with a Decision.
const (
	ReasonNoSpan    = "no open span"
	ReasonSatisfied = "satisfied"
	ReasonMissing   = "missing artifacts"
	ReasonFailOpen  = "internal error"
)

// Decision is the answer to Check.
type Decision struct {
	Allow   bool      `json:"allow"`
	Missing []Missing `json:"missing,omitempty"`
	SpanID  string    `json:"spanId,omitempty"`
	Reason  string    `json:"reason"`
	Err     error     `json:"-"`
}

// MissingArtifacts returns the names of the unsatisfied artifacts.
func (d Decision) MissingArtifacts() []string {
	names := make([]string, 0, len(d.Missing))
	for _, m := range d.Missing {
		names = append(names, m.Artifact)
	}
	return names
}

// Explain renders a denial as text naming each missing artifact and its
// producer.
func (d Decision) Explain(workflow, step string) string {
	if d.Allow {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Step %q of workflow %q is blocked: required artifacts have not been produced yet.\n", step, workflow)
	for _, m := range d.Missing {
		if m.Producer != "" {
			fmt.Fprintf(&b, "  - %s (produced by step %q)\n", m.Artifact, m.Producer)
		} else {
			fmt.Fprintf(&b, "  - %s (no step declares it)\n", m.Artifact)
		}
	}
	b.WriteString("Read the producing steps first.")
	return b.String()
}

// Gate answers allow/deny for step reads.
type Gate struct {
	store  *store.Store
	index  IndexSource
	roots  map[string]bool
	logger *slog.Logger
}

// New returns a gate. roots are the artifact names that are always
// satisfied; steps.RootInput is used when none are given.
func New(st *store.Store, index IndexSource, roots []string, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if len(roots) == 0 {
		roots = []string{steps.RootInput}
	}
	g := &Gate{store: st, index: index, roots: make(map[string]bool, len(roots)), logger: logger}
	for _, r := range roots {
		g.roots[r] = true
	}
	return g
}

// Check decides whether step of workflow may be read in session.
func (g *Gate) Check(ctx context.Context, workflow, step, session string) Decision {
	open, err := g.openSpan(ctx, workflow, session)
	if err != nil {
		return g.failOpen(workflow, step, session, err)
	}
	if open == nil {
		return Decision{Allow: true, Reason: ReasonNoSpan}
	}

	ix, err := g.index.Load(workflow)
	if err != nil {
		return g.failOpen(workflow, step, session, err)
	}
	if err := ix.Incomplete(); err != nil {
		return g.failOpen(workflow, step, session, err)
	}

	missing := Evaluate(ix, g.roots, open.Steps.Steps(), step)
	if len(missing) > 0 {
		g.logger.Info("step blocked",
			"workflow", workflow, "step", step, "session", session,
			"span", open.ID, "missing", len(missing))
		return Decision{Missing: missing, SpanID: open.ID, Reason: ReasonMissing}
	}
	return Decision{Allow: true, SpanID: open.ID, Reason: ReasonSatisfied}
}

// Evaluate returns the artifacts consumed by step that are neither roots nor
// produced by a step in visited. Whether a step is optional plays no part.
func Evaluate(ix *steps.Index, roots map[string]bool, visited []string, step string) []Missing {
	produced := make(map[string]bool)
	for _, artifact := range ix.ProducedBy(visited) {
		produced[artifact] = true
	}
	var missing []Missing
	for _, artifact := range ix.Consumes(step) {
		if roots[artifact] || produced[artifact] {
			continue
		}
		producer, _ := ix.Producer(artifact)
		missing = append(missing, Missing{Artifact: artifact, Producer: producer})
	}
	return missing
}

// openSpan returns the active span for the scope, else the most recently
// touched suspended one, else nil.
func (g *Gate) openSpan(ctx context.Context, workflow, session string) (*span.Span, error) {
	var open *span.Span
	err := g.store.Read(ctx, func(tx *store.Tx) error {
		spans, err := tx.FindSpans(workflow, session, span.StatusActive, span.StatusSuspended)
		if err != nil {
			return err
		}
		if len(spans) > 1 {
			ids := make([]string, 0, len(spans))
			for _, s := range spans {
				ids = append(ids, s.ID)
			}
			g.logger.Error("span invariant violated",
				"workflow", workflow, "session", session,
				"open", len(spans), "spans", strings.Join(ids, ", "))
		}
		for _, s := range spans {
			if s.Status == span.StatusActive {
				open = s
				return nil
			}
			if open == nil {
				open = s
			}
		}
		return nil
	})
	return open, err
}

func (g *Gate) failOpen(workflow, step, session string, err error) Decision {
	g.logger.Warn("gate failed open",
		"workflow", workflow, "step", step, "session", session, "err", err)
	return Decision{Allow: true, Reason: ReasonFailOpen, Err: err}
}
