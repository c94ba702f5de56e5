package hook

import (
	"regexp"
	"strings"

	"github.com/benegessarit/skill-composer/internal/span"
	"github.com/benegessarit/skill-composer/internal/tracker"
)

var (
	stepPathRE  = regexp.MustCompile(`/skills/([^/]+)/steps/([^/]+)\.md$`)
	skillPathRE = regexp.MustCompile(`/skills/([^/]+)/SKILL\.md$`)
	stepRefRE   = regexp.MustCompile(`/skills/([^/\s]+)/steps/([^/\s]+)\.md`)
)

// Target is the workflow step addressed by a file path.
type Target struct {
	Workflow string
	Step     string
	// Skill is set when the path is the workflow's SKILL.md rather than a
	// step file.
	Skill bool
}

// ParseTarget matches .../skills/<workflow>/steps/<step>.md and
// .../skills/<workflow>/SKILL.md. Workflows whose directory starts with an
// underscore are internal and never match.
func ParseTarget(path string) (Target, bool) {
	path = strings.ReplaceAll(path, `\`, "/")
	if m := stepPathRE.FindStringSubmatch(path); m != nil {
		if internal(m[1]) {
			return Target{}, false
		}
		return Target{Workflow: m[1], Step: m[2]}, true
	}
	if m := skillPathRE.FindStringSubmatch(path); m != nil {
		if internal(m[1]) {
			return Target{}, false
		}
		return Target{Workflow: m[1], Step: span.SkillStep, Skill: true}, true
	}
	return Target{}, false
}

// StepRefs extracts step file references from free text such as a
// sub-agent prompt, in order of appearance, without duplicates.
func StepRefs(text string) []tracker.StepRef {
	var refs []tracker.StepRef
	seen := make(map[tracker.StepRef]bool)
	for _, m := range stepRefRE.FindAllStringSubmatch(text, -1) {
		ref := tracker.StepRef{Workflow: m[1], Step: m[2]}
		if internal(ref.Workflow) || seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs
}

func internal(workflow string) bool {
	return strings.HasPrefix(workflow, "_")
}
