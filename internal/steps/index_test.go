package steps

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestBuild(t *testing.T) {
	ix, err := Build("plan", []Meta{
		{Name: "frame", Consumes: []string{RootInput}, Produces: []string{"problem"}},
		{Name: "explore", Consumes: []string{"problem"}, Produces: []string{"options"}, Optional: true},
		{Name: "decide", Consumes: []string{"problem", "options", "budget"}},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if p, ok := ix.Producer("options"); !ok || p != "explore" {
		t.Errorf("Producer(options) = %q, %v", p, ok)
	}
	if _, ok := ix.Producer("budget"); ok {
		t.Error("Producer(budget) should be unknown")
	}
	if !ix.Optional("explore") || ix.Optional("frame") {
		t.Error("Optional flags not indexed")
	}
	if got := ix.Consumes("unknown"); len(got) != 0 {
		t.Errorf("Consumes(unknown) = %v, want none", got)
	}
	if want := []string{"decide", "explore", "frame"}; !reflect.DeepEqual(ix.Steps(), want) {
		t.Errorf("Steps() = %v, want %v", ix.Steps(), want)
	}
	if want := []string{"problem", "options"}; !reflect.DeepEqual(ix.ProducedBy([]string{"frame", "explore", "frame"}), want) {
		t.Errorf("ProducedBy() = %v, want %v", ix.ProducedBy([]string{"frame", "explore", "frame"}), want)
	}
	if want := map[string][]string{"budget": {"decide"}}; !reflect.DeepEqual(ix.Unproduced([]string{RootInput}), want) {
		t.Errorf("Unproduced() = %v, want %v", ix.Unproduced([]string{RootInput}), want)
	}
	if err := ix.Incomplete(); err != nil {
		t.Errorf("Incomplete() = %v, want nil", err)
	}
}

func TestBuild_Collision(t *testing.T) {
	_, err := Build("plan", []Meta{
		{Name: "b", Produces: []string{"x", "y"}},
		{Name: "a", Produces: []string{"x"}},
		{Name: "c", Produces: []string{"y"}},
	})
	if !errors.Is(err, ErrProducerCollision) {
		t.Fatalf("Build() error = %v, want ErrProducerCollision", err)
	}
	var ce *CollisionError
	if !errors.As(err, &ce) {
		t.Fatalf("error %T is not *CollisionError", err)
	}
	want := []Collision{
		{Artifact: "x", Producers: []string{"a", "b"}},
		{Artifact: "y", Producers: []string{"b", "c"}},
	}
	if !reflect.DeepEqual(ce.Collisions, want) {
		t.Errorf("Collisions = %+v, want %+v", ce.Collisions, want)
	}
}

func writeSteps(t *testing.T, root, workflow string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(root, workflow, "steps")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestLoadDir(t *testing.T) {
	root := t.TempDir()
	dir := writeSteps(t, root, "plan", map[string]string{
		"frame.md":  "---\nproduces: [problem]\n---\n",
		"notes.md":  "no frontmatter here",
		"broken.md": "---\nconsumes: [x\n---\n",
		"README":    "ignored",
	})

	ix, err := LoadDir("plan", dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if want := []string{"frame", "notes"}; !reflect.DeepEqual(ix.Steps(), want) {
		t.Errorf("Steps() = %v, want %v", ix.Steps(), want)
	}
	if len(ix.Problems) != 1 || ix.Problems[0].Step != "broken" {
		t.Fatalf("Problems = %+v, want one for broken", ix.Problems)
	}
	if !errors.Is(ix.Incomplete(), ErrIncomplete) {
		t.Errorf("Incomplete() = %v, want ErrIncomplete", ix.Incomplete())
	}
}

func TestLoadDir_Missing(t *testing.T) {
	ix, err := LoadDir("plan", filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if len(ix.Steps()) != 0 {
		t.Errorf("Steps() = %v, want empty", ix.Steps())
	}
}

func TestLoader_CachesResult(t *testing.T) {
	root := t.TempDir()
	dir := writeSteps(t, root, "plan", map[string]string{
		"frame.md": "---\nproduces: [problem]\n---\n",
	})
	l := NewLoader(slog.New(slog.NewTextHandler(io.Discard, nil)), filepath.Join(t.TempDir(), "empty"), root)

	first, err := l.Load("plan")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "later.md"), []byte("---\nproduces: [x]\n---\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	second, err := l.Load("plan")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if first != second {
		t.Error("Load() rebuilt the index instead of serving the cache")
	}
	if _, ok := second.Step("later"); ok {
		t.Error("cached index picked up a new file")
	}

	if _, ok := l.StepsDir("unknown"); ok {
		t.Error("StepsDir(unknown) should not resolve")
	}
	ix, err := l.Load("unknown")
	if err != nil || len(ix.Steps()) != 0 {
		t.Errorf("Load(unknown) = %v, %v; want empty index", ix, err)
	}
}

func TestLoader_CachesCollision(t *testing.T) {
	root := t.TempDir()
	writeSteps(t, root, "plan", map[string]string{
		"a.md": "---\nproduces: [x]\n---\n",
		"b.md": "---\nproduces: [x]\n---\n",
	})
	l := NewLoader(nil, root)
	for i := 0; i < 2; i++ {
		if _, err := l.Load("plan"); !errors.Is(err, ErrProducerCollision) {
			t.Fatalf("Load() #%d error = %v, want ErrProducerCollision", i+1, err)
		}
	}
}

func TestLoader_Workflows(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	writeSteps(t, first, "plan", nil)
	writeSteps(t, second, "plan", nil)
	writeSteps(t, second, "debug", nil)
	if err := os.MkdirAll(filepath.Join(second, "no-steps"), 0o755); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(nil, first, second, filepath.Join(t.TempDir(), "missing"))
	if want := []string{"debug", "plan"}; !reflect.DeepEqual(l.Workflows(), want) {
		t.Errorf("Workflows() = %v, want %v", l.Workflows(), want)
	}
}
