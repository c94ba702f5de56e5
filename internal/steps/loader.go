package steps

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DefaultDirs returns the skill roots searched when none are configured.
func DefaultDirs() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".claude", "skills"),
		filepath.Join(home, "claude-code", "skills"),
	}
}

// Loader builds and caches one Index per workflow for the lifetime of the
// process. Step files are assumed not to change while a session runs, so a
// build result (including a failure) is never recomputed.
type Loader struct {
	dirs   []string
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]result
}

type result struct {
	index *Index
	err   error
}

// NewLoader returns a loader searching dirs in order.
func NewLoader(logger *slog.Logger, dirs ...string) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if len(dirs) == 0 {
		dirs = DefaultDirs()
	}
	return &Loader{
		dirs:   dirs,
		logger: logger,
		cache:  make(map[string]result),
	}
}

// Dirs returns the searched skill roots.
func (l *Loader) Dirs() []string {
	return append([]string(nil), l.dirs...)
}

// StepsDir returns <root>/<workflow>/steps for the first root that has a
// directory for workflow.
func (l *Loader) StepsDir(workflow string) (string, bool) {
	for _, root := range l.dirs {
		if info, err := os.Stat(filepath.Join(root, workflow)); err == nil && info.IsDir() {
			return filepath.Join(root, workflow, "steps"), true
		}
	}
	return "", false
}

// Load returns the index of workflow, building it on first use.
func (l *Loader) Load(workflow string) (*Index, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r, ok := l.cache[workflow]; ok {
		return r.index, r.err
	}

	var (
		ix  *Index
		err error
	)
	if dir, ok := l.StepsDir(workflow); ok {
		ix, err = LoadDir(workflow, dir)
	} else {
		ix, err = Build(workflow, nil)
	}
	if err != nil {
		l.logger.Error("step index build failed", "workflow", workflow, "err", err)
	} else {
		for _, p := range ix.Problems {
			l.logger.Warn("step file skipped", "workflow", workflow, "step", p.Step, "err", p.Err)
		}
	}
	l.cache[workflow] = result{index: ix, err: err}
	return ix, err
}

// LoadDir parses every *.md file of dir as a step of workflow. A missing
// directory yields an empty index. Files without frontmatter are indexed with
// no declarations; unreadable or malformed files are recorded as problems.
func LoadDir(workflow, dir string) (*Index, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Build(workflow, nil)
		}
		return nil, fmt.Errorf("steps: read %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var (
		metas    []Meta
		problems []Problem
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".md")
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			problems = append(problems, Problem{Step: name, Err: err})
			continue
		}
		meta, err := Parse(name, data)
		switch {
		case err == nil, errors.Is(err, ErrMissingFrontMatter):
			metas = append(metas, meta)
		default:
			problems = append(problems, Problem{Step: name, Err: err})
		}
	}

	ix, err := Build(workflow, metas)
	if err != nil {
		return nil, err
	}
	ix.Problems = problems
	return ix, nil
}

// Workflows lists the workflows that have a steps directory under any root.
// A name found under several roots is reported once, for the first root.
func (l *Loader) Workflows() []string {
	seen := make(map[string]bool)
	var names []string
	for _, root := range l.dirs {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() || seen[e.Name()] {
				continue
			}
			if info, err := os.Stat(filepath.Join(root, e.Name(), "steps")); err == nil && info.IsDir() {
				seen[e.Name()] = true
				names = append(names, e.Name())
			}
		}
	}
	sort.Strings(names)
	return names
}
