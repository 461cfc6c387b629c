package wizard

import (
	"fmt"
	"strings"

	"github.com/kingrea/auralynx/internal/api"
)

// Event is emitted by a stage view when the user finishes that stage.
type Event interface {
	// Stage is the stage the event completes.
	Stage() Stage
	apply(*Session) error
}

// LandingCompleted selects the input mode.
type LandingCompleted struct {
	Mode InputMode
}

func (LandingCompleted) Stage() Stage { return StageLanding }

func (e LandingCompleted) apply(s *Session) error {
	if !e.Mode.Valid() {
		return fmt.Errorf("wizard: unknown input mode %q", e.Mode)
	}
	s.InputMode = e.Mode
	return nil
}

// InputCompleted carries the typed or transcribed song idea.
type InputCompleted struct {
	Text string
}

func (InputCompleted) Stage() Stage { return StageInput }

func (e InputCompleted) apply(s *Session) error {
	text := strings.TrimSpace(e.Text)
	if text == "" {
		return fmt.Errorf("wizard: input text is required")
	}
	s.InputText = text
	s.TranscribedText = text
	return nil
}

// LyricsCompleted carries the approved lyrics and genre.
type LyricsCompleted struct {
	Lyrics string
	Genre  string
}

func (LyricsCompleted) Stage() Stage { return StageLyrics }

func (e LyricsCompleted) apply(s *Session) error {
	if strings.TrimSpace(e.Lyrics) == "" {
		return fmt.Errorf("wizard: lyrics are required")
	}
	genre := e.Genre
	if genre == "" {
		genre = api.DefaultGenre
	}
	if !api.IsGenre(genre) {
		return fmt.Errorf("wizard: unknown genre %q", genre)
	}
	s.Lyrics = e.Lyrics
	s.Genre = genre
	return nil
}

// GenerationCompleted carries the three asset URLs of a finished run.
type GenerationCompleted struct {
	InstrumentalURL string
	VocalsURL       string
	FinalMixURL     string
}

func (GenerationCompleted) Stage() Stage { return StageGeneration }

func (e GenerationCompleted) apply(s *Session) error {
	s.InstrumentalURL = e.InstrumentalURL
	s.VocalsURL = e.VocalsURL
	s.FinalMixURL = e.FinalMixURL
	if !s.HasResult() {
		return fmt.Errorf("wizard: generation result is incomplete")
	}
	return nil
}
