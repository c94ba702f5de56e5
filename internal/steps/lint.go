package steps

import (
	"errors"
	"sort"
)

// Finding is one lint result for a workflow's step files.
type Finding struct {
	Kind     string   `json:"kind" yaml:"kind"`
	Step     string   `json:"step,omitempty" yaml:"step,omitempty"`
	Artifact string   `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	Steps    []string `json:"steps,omitempty" yaml:"steps,omitempty"`
	Message  string   `json:"message" yaml:"message"`
}

// Finding kinds.
const (
	FindingUnreadable = "unreadable"
	FindingCollision  = "collision"
	FindingUnproduced = "unproduced"
)

// Report is the lint result of one workflow.
type Report struct {
	Workflow string    `json:"workflow" yaml:"workflow"`
	Dir      string    `json:"dir" yaml:"dir"`
	Steps    []Meta    `json:"steps" yaml:"steps"`
	Findings []Finding `json:"findings,omitempty" yaml:"findings,omitempty"`
}

// OK reports whether nothing was found.
func (r *Report) OK() bool { return len(r.Findings) == 0 }

// Lint checks the step files in dir. Collisions, unparseable files and
// consumed artifacts nobody produces are reported as findings; only an
// unreadable directory is an error.
func Lint(workflow, dir string, roots []string) (*Report, error) {
	if len(roots) == 0 {
		roots = []string{RootInput}
	}
	rep := &Report{Workflow: workflow, Dir: dir}

	ix, err := LoadDir(workflow, dir)
	var ce *CollisionError
	switch {
	case errors.As(err, &ce):
		for _, c := range ce.Collisions {
			rep.Findings = append(rep.Findings, Finding{
				Kind:     FindingCollision,
				Artifact: c.Artifact,
				Steps:    c.Producers,
				Message:  "artifact produced by more than one step",
			})
		}
		return rep, nil
	case err != nil:
		return nil, err
	}

	for _, name := range ix.Steps() {
		m, _ := ix.Step(name)
		rep.Steps = append(rep.Steps, m)
	}
	for _, p := range ix.Problems {
		rep.Findings = append(rep.Findings, Finding{Kind: FindingUnreadable, Step: p.Step, Message: p.Err.Error()})
	}

	unproduced := ix.Unproduced(roots)
	artifacts := make([]string, 0, len(unproduced))
	for a := range unproduced {
		artifacts = append(artifacts, a)
	}
	sort.Strings(artifacts)
	for _, a := range artifacts {
		rep.Findings = append(rep.Findings, Finding{
			Kind:     FindingUnproduced,
			Artifact: a,
			Steps:    unproduced[a],
			Message:  "consumed but never produced; these steps can never be gated open",
		})
	}
	return rep, nil
}
