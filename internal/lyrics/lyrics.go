// Package lyrics fetches lyrics from the backend and falls back to a local
// template when the backend cannot deliver.
package lyrics

import (
	"context"
	"fmt"
	"strings"

	"github.com/kingrea/auralynx/internal/api"
	"github.com/kingrea/auralynx/plugins"
)

// DefaultTemplateID names the built-in fallback template.
const DefaultTemplateID = "default"

// defaultTemplate is used when no plugin template matches the genre.
var defaultTemplate = plugins.TemplateDefinition{
	ID:   DefaultTemplateID,
	Name: "Classic",
	Body: `Verse 1:
{{.InputText}} is calling me
Through the night, I can see
Dreams are dancing in my mind
Leaving all my fears behind

Chorus:
This is my story, this is my song
About {{.InputText}}, where I belong
Every beat, every rhyme
Captures this moment in time

Verse 2:
In the world of {{.InputText}}
I find my way, I find my truth
Music guides me through the day
In this {{.Genre}} way

Chorus:
This is my story, this is my song
About {{.InputText}}, where I belong
Every beat, every rhyme
Captures this moment in time

Bridge:
When the music fades away
These words will always stay

Outro:
This is my song about {{.InputText}}...`,
}

// Backend generates lyrics remotely.
type Backend interface {
	GenerateLyrics(ctx context.Context, req api.LyricsRequest) (string, error)
}

// Result is the outcome of Generate. Lyrics is always populated; Fallback
// marks lyrics rendered locally after Err.
type Result struct {
	Lyrics     string
	Genre      string
	Fallback   bool
	TemplateID string
	Err        error
}

// Service generates lyrics.
type Service struct {
	backend Backend
	catalog *plugins.Catalog
}

// NewService builds a service. catalog may be nil.
func NewService(backend Backend, catalog *plugins.Catalog) *Service {
	return &Service{backend: backend, catalog: catalog}
}

// Generate asks the backend for lyrics. Any failure yields the fallback
// template so the wizard can always continue.
func (s *Service) Generate(ctx context.Context, inputText, genre string) Result {
	if genre == "" {
		genre = api.DefaultGenre
	}
	res := Result{Genre: genre}
	if s.backend == nil {
		res.Err = fmt.Errorf("lyrics: no backend configured")
	} else {
		text, err := s.backend.GenerateLyrics(ctx, api.LyricsRequest{InputText: strings.TrimSpace(inputText), Genre: genre})
		if err == nil {
			res.Lyrics = text
			return res
		}
		res.Err = err
	}
	res.Fallback = true
	res.Lyrics, res.TemplateID = s.Fallback(inputText, genre)
	return res
}

// Fallback renders the local template for genre and returns it with the id
// of the template used.
func (s *Service) Fallback(inputText, genre string) (string, string) {
	data := plugins.TemplateData{InputText: strings.TrimSpace(inputText), Genre: genre}
	if def, ok := s.catalog.ForGenre(genre); ok {
		if out, err := def.Render(data); err == nil {
			return out, def.ID
		}
	}
	out, err := defaultTemplate.Render(data)
	if err != nil {
		// The built-in body is static and always parses.
		panic(err)
	}
	return out, defaultTemplate.ID
}
