package plugins

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const rockYAML = `id: stadium
genres: [rock]
body: |
  We shout {{.InputText}} to the back row
`

const anyYAML = `id: anything
body: "{{.Genre}} about {{.InputText}}"
`

func TestLoadTemplatesSelectsByGenre(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a-stadium.yaml"), rockYAML)
	writeFile(t, filepath.Join(dir, "b-anything.yml"), anyYAML)
	catalog, err := LoadTemplates(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if catalog.Len() != 2 {
		t.Fatalf("expected 2 templates, got %d", catalog.Len())
	}
	def, ok := catalog.ForGenre("rock")
	if !ok || def.ID != "stadium" {
		t.Fatalf("expected stadium for rock, got %+v", def)
	}
	def, ok = catalog.ForGenre("jazz")
	if !ok || def.ID != "anything" {
		t.Fatalf("expected catch-all for jazz, got %+v", def)
	}
}

func TestLoadTemplatesRejectsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "one.yaml"), rockYAML)
	writeFile(t, filepath.Join(dir, "two.yaml"), rockYAML)
	if _, err := LoadTemplates(dir); err == nil || !strings.Contains(err.Error(), "duplicate template id") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestLoadTemplatesMissingDir(t *testing.T) {
	catalog, err := LoadTemplates(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if catalog.Len() != 0 {
		t.Fatalf("expected empty catalog")
	}
	if _, ok := catalog.ForGenre("pop"); ok {
		t.Fatalf("empty catalog should not match")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
