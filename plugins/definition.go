package plugins

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/kingrea/auralynx/internal/api"
)

// TemplateDefinition describes a fallback lyrics template loaded from disk.
//
// The struct mirrors the on-disk schema under ~/.auralynx/templates/*.yaml.
// Body is a text/template rendered with TemplateData.
type TemplateDefinition struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name,omitempty" yaml:"name,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Genres      []string `json:"genres,omitempty" yaml:"genres,omitempty"`
	Body        string   `json:"body" yaml:"body"`
}

// TemplateData is what a template body can reference.
type TemplateData struct {
	InputText string
	Genre     string
}

// Normalized returns a trimmed, copy-on-write variant of the definition.
func (def TemplateDefinition) Normalized() TemplateDefinition {
	clone := TemplateDefinition{
		ID:          strings.TrimSpace(def.ID),
		Name:        strings.TrimSpace(def.Name),
		Description: strings.TrimSpace(def.Description),
		Body:        strings.Trim(def.Body, "\n"),
	}
	if len(def.Genres) > 0 {
		clone.Genres = make([]string, 0, len(def.Genres))
		for _, g := range def.Genres {
			trimmed := strings.ToLower(strings.TrimSpace(g))
			if trimmed == "" {
				continue
			}
			clone.Genres = append(clone.Genres, trimmed)
		}
	}
	return clone
}

// Validate ensures the definition has an id, a parseable body and only
// known genres.
func (def TemplateDefinition) Validate() error {
	normalized := def.Normalized()
	if normalized.ID == "" {
		return fmt.Errorf("plugin: id is required")
	}
	if strings.TrimSpace(normalized.Body) == "" {
		return fmt.Errorf("plugin %s: body is required", normalized.ID)
	}
	seen := make(map[string]struct{}, len(normalized.Genres))
	for idx, g := range normalized.Genres {
		if !api.IsGenre(g) {
			return fmt.Errorf("plugin %s: genres[%d]: unknown genre %s", normalized.ID, idx, g)
		}
		if _, exists := seen[g]; exists {
			return fmt.Errorf("plugin %s: genres[%d]: duplicate genre %s", normalized.ID, idx, g)
		}
		seen[g] = struct{}{}
	}
	if _, err := normalized.Compile(); err != nil {
		return err
	}
	return nil
}

// Matches reports whether the template applies to genre. A template without
// genres applies to every genre.
func (def TemplateDefinition) Matches(genre string) bool {
	if len(def.Genres) == 0 {
		return true
	}
	for _, g := range def.Genres {
		if g == genre {
			return true
		}
	}
	return false
}

// Compile parses the body.
func (def TemplateDefinition) Compile() (*template.Template, error) {
	tmpl, err := template.New(def.ID).Option("missingkey=error").Parse(def.Body)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: body: %w", def.ID, err)
	}
	return tmpl, nil
}

// Render executes the body with data.
func (def TemplateDefinition) Render(data TemplateData) (string, error) {
	tmpl, err := def.Compile()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("plugin %s: render: %w", def.ID, err)
	}
	return b.String(), nil
}
