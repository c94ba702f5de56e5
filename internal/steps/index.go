package steps

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrProducerCollision indicates two steps of one workflow declare the same
// produced artifact.
var ErrProducerCollision = errors.New("steps: artifact produced by more than one step")

// Collision describes one ambiguous artifact.
type Collision struct {
	Artifact  string
	Producers []string
}

// CollisionError lists every ambiguous artifact found while indexing.
type CollisionError struct {
	Workflow   string
	Collisions []Collision
}

func (e *CollisionError) Error() string {
	parts := make([]string, 0, len(e.Collisions))
	for _, c := range e.Collisions {
		parts = append(parts, fmt.Sprintf("%q by %s", c.Artifact, strings.Join(c.Producers, ", ")))
	}
	return fmt.Sprintf("steps: workflow %s: artifacts produced by more than one step: %s",
		e.Workflow, strings.Join(parts, "; "))
}

func (e *CollisionError) Unwrap() error { return ErrProducerCollision }

// Problem is a step file that could not be read or parsed. Such steps are
// left out of the index.
type Problem struct {
	Step string
	Err  error
}

// Index is the immutable dependency view of one workflow.
type Index struct {
	Workflow string
	Problems []Problem

	produces map[string]string
	steps    map[string]Meta
}

// Build indexes metas. It fails only when two steps claim the same artifact.
func Build(workflow string, metas []Meta) (*Index, error) {
	ix := &Index{
		Workflow: workflow,
		produces: make(map[string]string),
		steps:    make(map[string]Meta, len(metas)),
	}
	producers := make(map[string][]string)
	for _, m := range metas {
		ix.steps[m.Name] = m
		for _, artifact := range m.Produces {
			producers[artifact] = append(producers[artifact], m.Name)
		}
	}

	var collisions []Collision
	for artifact, names := range producers {
		if len(names) > 1 {
			sort.Strings(names)
			collisions = append(collisions, Collision{Artifact: artifact, Producers: names})
			continue
		}
		ix.produces[artifact] = names[0]
	}
	if len(collisions) > 0 {
		sort.Slice(collisions, func(i, j int) bool { return collisions[i].Artifact < collisions[j].Artifact })
		return nil, &CollisionError{Workflow: workflow, Collisions: collisions}
	}
	return ix, nil
}

// Step returns the declared contract of name.
func (ix *Index) Step(name string) (Meta, bool) {
	m, ok := ix.steps[name]
	return m, ok
}

// Steps returns the indexed step names, sorted.
func (ix *Index) Steps() []string {
	names := make([]string, 0, len(ix.steps))
	for name := range ix.steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Consumes returns the artifacts step requires. Unknown steps require nothing.
func (ix *Index) Consumes(step string) []string {
	return append([]string(nil), ix.steps[step].Consumes...)
}

// Produces returns the artifacts step declares.
func (ix *Index) Produces(step string) []string {
	return append([]string(nil), ix.steps[step].Produces...)
}

// Optional reports whether step is marked skippable.
func (ix *Index) Optional(step string) bool {
	return ix.steps[step].Optional
}

// Producer returns the step that produces artifact.
func (ix *Index) Producer(artifact string) (string, bool) {
	step, ok := ix.produces[artifact]
	return step, ok
}

// ProducedBy returns the union of artifacts produced by visited, in first
// production order.
func (ix *Index) ProducedBy(visited []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, step := range visited {
		for _, artifact := range ix.steps[step].Produces {
			if !seen[artifact] {
				seen[artifact] = true
				out = append(out, artifact)
			}
		}
	}
	return out
}

// Unproduced lists consumed artifacts that no step produces and that are
// not root inputs, keyed by artifact with the consuming steps as values.
func (ix *Index) Unproduced(roots []string) map[string][]string {
	isRoot := make(map[string]bool, len(roots))
	for _, r := range roots {
		isRoot[r] = true
	}
	out := make(map[string][]string)
	for _, name := range ix.Steps() {
		for _, artifact := range ix.steps[name].Consumes {
			if isRoot[artifact] {
				continue
			}
			if _, ok := ix.produces[artifact]; !ok {
				out[artifact] = append(out[artifact], name)
			}
		}
	}
	return out
}

// ErrIncomplete indicates some step files were left out of the index.
var ErrIncomplete = errors.New("steps: index incomplete")

// Incomplete returns an error wrapping ErrIncomplete when step files had to
// be skipped, nil otherwise. Gating against a partial index could block on an
// artifact whose producer failed to parse.
func (ix *Index) Incomplete() error {
	if len(ix.Problems) == 0 {
		return nil
	}
	names := make([]string, 0, len(ix.Problems))
	for _, p := range ix.Problems {
		names = append(names, p.Step)
	}
	return fmt.Errorf("%w: workflow %s: unreadable steps %s", ErrIncomplete, ix.Workflow, strings.Join(names, ", "))
}
