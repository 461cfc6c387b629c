package plugins

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleDefinition = `id: road-trip
name: Road Trip
genres: [folk, indie]
body: |
  [Verse 1]
  Miles of {{.InputText}} behind us
`

func TestParseDefinitionYAML(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte(sampleDefinition))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.ID != "road-trip" || len(def.Genres) != 2 || def.Body != "[Verse 1]\nMiles of {{.InputText}} behind us" {
		t.Fatalf("unexpected definition: %+v", def)
	}
}

func TestParseDefinitionYAMLErrors(t *testing.T) {
	if _, err := ParseDefinitionYAML([]byte("")); err == nil {
		t.Fatalf("expected empty payload to fail validation")
	}
	if _, err := ParseDefinitionYAML([]byte("id: x\ngenres: [polka]\nbody: hi\n")); err == nil {
		t.Fatalf("expected unknown genre to fail validation")
	}
}

func TestLoadDefinitionDir(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "plugin.yaml")
	if err := os.WriteFile(path, []byte(sampleDefinition), 0644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	defs, err := LoadDefinitionDir(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}
	if defs[0].Path != path {
		t.Fatalf("expected path %s, got %s", path, defs[0].Path)
	}
	if defs[0].Definition.ID != "road-trip" {
		t.Fatalf("unexpected id: %+v", defs[0].Definition)
	}
}

func TestLoadDefinitionDirMissing(t *testing.T) {
	defs, err := LoadDefinitionDir(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if defs != nil {
		t.Fatalf("expected nil slice for missing dir, got %v", defs)
	}
}

func TestParseDefinitionYAMLCanonicalGenres(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte("id: beats\ngenres: [HipHop, rap, rnb]\nbody: hi\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(def.Genres) != 2 || def.Genres[0] != "hip-hop" || def.Genres[1] != "r&b" {
		t.Fatalf("unexpected genres: %v", def.Genres)
	}

	def, err = ParseDefinitionYAML([]byte("id: any\ngenres: [rock, \"*\"]\nbody: hi\n"))
	if err != nil {
		t.Fatalf("parse wildcard: %v", err)
	}
	if len(def.Genres) != 0 || !def.Matches("jazz") {
		t.Fatalf("wildcard should match every genre, got %v", def.Genres)
	}
}

func TestParseDefinitionYAMLRejectsUnknownKeys(t *testing.T) {
	if _, err := ParseDefinitionYAML([]byte("id: x\nbody: hi\nmood: sad\n")); err == nil {
		t.Fatalf("expected unknown key to fail")
	}
	if _, err := ParseDefinitionYAML([]byte("id: x\nbody_file: verse.txt\n")); err == nil {
		t.Fatalf("expected body_file without a directory to fail")
	}
}

func TestLoadDefinitionFileMultipleDocuments(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "blues.txt"), []byte("Woke up this morning, {{.InputText}}\n"), 0o644); err != nil {
		t.Fatalf("write body: %v", err)
	}
	payload := "id: blues\ngenres: [jazz]\nbody_file: blues.txt\n---\nid: country\ngenres: [folk]\nbody: Dusty {{.InputText}}\n"
	path := filepath.Join(root, "pack.yml")
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write pack: %v", err)
	}
	files, err := LoadDefinitionFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 templates, got %d", len(files))
	}
	if files[0].Path != path+"#1" || files[1].Definition.ID != "country" {
		t.Fatalf("unexpected files: %+v", files)
	}
	out, err := files[0].Definition.Render(TemplateData{InputText: "rain", Genre: "jazz"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Woke up this morning, rain" {
		t.Fatalf("unexpected render %q", out)
	}
}
