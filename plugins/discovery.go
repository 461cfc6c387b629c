package plugins

import "fmt"

// Catalog is the ordered set of templates found in a directory.
type Catalog struct {
	files []DefinitionFile
}

// LoadTemplates discovers YAML and Go template definitions under dir. Ids
// must be unique across both kinds.
func LoadTemplates(dir string) (*Catalog, error) {
	defs, err := loadAllDefinitionFiles(dir)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]string, len(defs))
	for _, file := range defs {
		id := file.Definition.ID
		if existing, ok := seen[id]; ok {
			return nil, fmt.Errorf("plugin: duplicate template id %s (%s and %s)", id, existing, file.Path)
		}
		seen[id] = file.Path
	}
	return &Catalog{files: defs}, nil
}

// Len reports how many templates were loaded.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.files)
}

// Templates returns the loaded definitions in load order.
func (c *Catalog) Templates() []TemplateDefinition {
	if c == nil {
		return nil
	}
	out := make([]TemplateDefinition, len(c.files))
	for i, file := range c.files {
		out[i] = file.Definition
	}
	return out
}

// ForGenre returns the first template whose genres include genre.
func (c *Catalog) ForGenre(genre string) (TemplateDefinition, bool) {
	if c == nil {
		return TemplateDefinition{}, false
	}
	for _, file := range c.files {
		if file.Definition.Matches(genre) {
			return file.Definition, true
		}
	}
	return TemplateDefinition{}, false
}

func loadAllDefinitionFiles(dir string) ([]DefinitionFile, error) {
	yamlDefs, err := LoadDefinitionDir(dir)
	if err != nil {
		return nil, err
	}
	goDefs, err := LoadGoDefinitionDir(dir)
	if err != nil {
		return nil, err
	}
	return append(yamlDefs, goDefs...), nil
}
