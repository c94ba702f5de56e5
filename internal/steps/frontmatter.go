// Package steps reads the consumes/produces declarations of workflow step
// files and indexes them per workflow. A step file is markdown that starts
// with a YAML frontmatter block:
//
//	---
//	consumes: [user-request]
//	produces: [problem-statement]
//	optional: false
//	---
package steps

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// RootInput is the sentinel artifact that is satisfied before any step runs.
const RootInput = "user-request"

var (
	// ErrMissingFrontMatter indicates the document did not start with a YAML fence.
	ErrMissingFrontMatter = errors.New("steps: missing frontmatter")
	// ErrMalformedFrontMatter indicates the YAML block could not be parsed.
	ErrMalformedFrontMatter = errors.New("steps: malformed frontmatter")
)

// Meta is the declared contract of one step.
type Meta struct {
	Name     string   `json:"name" yaml:"name"`
	Consumes []string `json:"consumes" yaml:"consumes"`
	Produces []string `json:"produces" yaml:"produces"`
	Optional bool     `json:"optional,omitempty" yaml:"optional,omitempty"`
}

type frontMatter struct {
	Consumes stringList `yaml:"consumes"`
	Produces stringList `yaml:"produces"`
	Optional bool       `yaml:"optional"`
}

// stringList accepts either a YAML sequence or a single scalar.
type stringList []string

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*l = nil
			return nil
		}
		*l = stringList{node.Value}
		return nil
	case yaml.SequenceNode:
		out := make(stringList, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: artifact names must be strings", item.Line)
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	}
	return fmt.Errorf("line %d: expected a list of artifact names", node.Line)
}

// Parse extracts the step contract from a step document. It never panics:
// a document without frontmatter yields ErrMissingFrontMatter and a broken
// YAML block yields an error wrapping ErrMalformedFrontMatter. In both cases
// the returned Meta carries only the name.
func Parse(name string, content []byte) (Meta, error) {
	meta := Meta{Name: name}
	block, err := frontMatterBlock(content)
	if err != nil {
		return meta, err
	}
	var fm frontMatter
	if err := yaml.Unmarshal(block, &fm); err != nil {
		return meta, fmt.Errorf("%w: %s: %v", ErrMalformedFrontMatter, name, err)
	}
	meta.Consumes = normalize(fm.Consumes)
	meta.Produces = normalize(fm.Produces)
	meta.Optional = fm.Optional
	return meta, nil
}

func frontMatterBlock(content []byte) ([]byte, error) {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return nil, ErrMissingFrontMatter
	}
	rest := normalized[4:]
	if bytes.HasPrefix(rest, []byte("---\n")) || bytes.Equal(rest, []byte("---")) {
		return nil, nil
	}
	if idx := bytes.Index(rest, []byte("\n---\n")); idx >= 0 {
		return rest[:idx], nil
	}
	if bytes.HasSuffix(rest, []byte("\n---")) {
		return rest[:len(rest)-4], nil
	}
	return nil, fmt.Errorf("%w: unterminated block", ErrMalformedFrontMatter)
}

// normalize trims names, drops blanks and removes duplicates keeping order.
func normalize(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
