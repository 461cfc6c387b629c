package plugins

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/auralynx/internal/wizard"
)

// DefinitionFile pairs a parsed template definition with its on-disk source.
type DefinitionFile struct {
	Definition TemplateDefinition
	Path       string
}

// templateDocument is one YAML document. A body can live next to the YAML
// file and be referenced with body_file.
type templateDocument struct {
	TemplateDefinition `yaml:",inline"`
	BodyFile           string `yaml:"body_file,omitempty"`
}

// allGenres in a genres list makes a template apply to every genre.
var allGenres = map[string]bool{"*": true, "all": true, "any": true}

// ParseDefinitionYAML decodes and validates a payload holding exactly one
// template.
func ParseDefinitionYAML(data []byte) (TemplateDefinition, error) {
	defs, err := ParseTemplatesYAML(data, "")
	if err != nil {
		return TemplateDefinition{}, err
	}
	if len(defs) != 1 {
		return TemplateDefinition{}, fmt.Errorf("plugin: expected one template, found %d", len(defs))
	}
	return defs[0], nil
}

// ParseTemplatesYAML decodes every document in data. body_file paths resolve
// against baseDir; they are rejected when baseDir is empty.
func ParseTemplatesYAML(data []byte, baseDir string) ([]TemplateDefinition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("plugin: definition payload is empty")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var defs []TemplateDefinition
	for idx := 0; ; idx++ {
		var doc templateDocument
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("plugin: decode template %d: %w", idx+1, err)
		}
		def, err := doc.resolve(baseDir)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("plugin: definition payload is empty")
	}
	return defs, nil
}

func (doc templateDocument) resolve(baseDir string) (TemplateDefinition, error) {
	def := doc.TemplateDefinition
	if ref := strings.TrimSpace(doc.BodyFile); ref != "" {
		if strings.TrimSpace(def.Body) != "" {
			return TemplateDefinition{}, fmt.Errorf("plugin %s: body and body_file are exclusive", def.ID)
		}
		if baseDir == "" {
			return TemplateDefinition{}, fmt.Errorf("plugin %s: body_file needs a template directory", def.ID)
		}
		if filepath.IsAbs(ref) {
			return TemplateDefinition{}, fmt.Errorf("plugin %s: body_file must be relative", def.ID)
		}
		body, err := os.ReadFile(filepath.Join(baseDir, ref))
		if err != nil {
			return TemplateDefinition{}, fmt.Errorf("plugin %s: body_file: %w", def.ID, err)
		}
		def.Body = string(body)
	}
	genres, err := canonicalGenres(def.ID, def.Genres)
	if err != nil {
		return TemplateDefinition{}, err
	}
	def.Genres = genres
	if err := def.Validate(); err != nil {
		return TemplateDefinition{}, err
	}
	return def.Normalized(), nil
}

// canonicalGenres maps aliases and near misses ("hiphop", "Electronica")
// onto the genre set and drops repeats. A wildcard clears the list.
func canonicalGenres(id string, raw []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool, len(raw))
	for idx, g := range raw {
		g = strings.ToLower(strings.TrimSpace(g))
		if g == "" {
			continue
		}
		if allGenres[g] {
			return nil, nil
		}
		genre, err := wizard.NormalizeGenre(g)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: genres[%d]: %w", id, idx, err)
		}
		if seen[genre] {
			continue
		}
		seen[genre] = true
		out = append(out, genre)
	}
	return out, nil
}

// LoadDefinitionFile reads every template in a YAML file. Files holding
// several documents get a #n suffix per template.
func LoadDefinitionFile(path string) ([]DefinitionFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("plugin: %s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	clean := filepath.Clean(path)
	defs, err := ParseTemplatesYAML(data, filepath.Dir(clean))
	if err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, err)
	}
	files := make([]DefinitionFile, len(defs))
	for i, def := range defs {
		files[i] = DefinitionFile{Definition: def, Path: clean}
		if len(defs) > 1 {
			files[i].Path = fmt.Sprintf("%s#%d", clean, i+1)
		}
	}
	return files, nil
}

// LoadDefinitionDir scans a directory for *.yaml templates. A missing
// directory means no plugins.
func LoadDefinitionDir(dir string) ([]DefinitionFile, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("plugin: read %s: %w", trimmed, err)
	}
	var defs []DefinitionFile
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		files, err := LoadDefinitionFile(filepath.Join(trimmed, entry.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, files...)
	}
	if len(defs) == 0 {
		return nil, nil
	}
	sort.SliceStable(defs, func(i, j int) bool { return defs[i].Path < defs[j].Path })
	return defs, nil
}

func isYAMLFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
