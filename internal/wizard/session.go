package wizard

import "github.com/kingrea/auralynx/internal/api"

// Stage enumerates the wizard steps in order.
type Stage string

const (
	StageLanding    Stage = "landing"
	StageInput      Stage = "input"
	StageLyrics     Stage = "lyrics"
	StageGeneration Stage = "generation"
	StagePreview    Stage = "preview"
)

var stageOrder = []Stage{StageLanding, StageInput, StageLyrics, StageGeneration, StagePreview}

// Stages returns the stages in wizard order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// Index reports the zero-based position of s, or -1 for an unknown stage.
func (s Stage) Index() int {
	for i, candidate := range stageOrder {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Title is the human label for s.
func (s Stage) Title() string {
	switch s {
	case StageLanding:
		return "Welcome"
	case StageInput:
		return "Your idea"
	case StageLyrics:
		return "Lyrics"
	case StageGeneration:
		return "Making your song"
	case StagePreview:
		return "Preview"
	default:
		return string(s)
	}
}

func (s Stage) previous() (Stage, bool) {
	idx := s.Index()
	if idx <= 0 {
		return "", false
	}
	return stageOrder[idx-1], true
}

func (s Stage) next() (Stage, bool) {
	idx := s.Index()
	if idx < 0 || idx >= len(stageOrder)-1 {
		return "", false
	}
	return stageOrder[idx+1], true
}

// InputMode selects how the song idea is captured.
type InputMode string

const (
	InputText  InputMode = "text"
	InputVoice InputMode = "voice"
)

// Valid reports whether m is a known mode.
func (m InputMode) Valid() bool {
	return m == InputText || m == InputVoice
}

// Session is everything collected while walking the wizard.
type Session struct {
	Stage           Stage
	InputText       string
	InputMode       InputMode
	TranscribedText string
	Lyrics          string
	Genre           string
	InstrumentalURL string
	VocalsURL       string
	FinalMixURL     string
}

// NewSession returns a session at Landing with default values.
func NewSession() Session {
	return Session{
		Stage:     StageLanding,
		InputMode: InputText,
		Genre:     api.DefaultGenre,
	}
}

// HasResult reports whether the three generated URLs are populated.
func (s Session) HasResult() bool {
	return s.InstrumentalURL != "" && s.VocalsURL != "" && s.FinalMixURL != ""
}
