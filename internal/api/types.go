package api

import "time"

// Genres is the closed set of styles the backend accepts.
var Genres = []string{"pop", "rock", "hip-hop", "indie", "electronic", "folk", "jazz", "r&b"}

// DefaultGenre is preselected on the lyrics stage.
const DefaultGenre = "pop"

// Credentials is the body of POST /auth/token/.
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Registration is the body of POST /auth/register/.
type Registration struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// User is returned by GET /auth/me/.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// LyricsRequest is the body of POST /generate-lyrics/.
type LyricsRequest struct {
	InputText string `json:"input_text" validate:"required"`
	Genre     string `json:"genre" validate:"required,genre"`
}

// LyricsResponse reports success in the body as well as in the status code.
type LyricsResponse struct {
	Success bool   `json:"success"`
	Lyrics  string `json:"lyrics"`
	Genre   string `json:"genre,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TrackRequest is the body of the instrumental and vocals endpoints.
type TrackRequest struct {
	Lyrics string `json:"lyrics" validate:"required"`
	Genre  string `json:"genre" validate:"required,genre"`
}

// MixRequest is the body of POST /mix-audio/.
type MixRequest struct {
	InstrumentalURL string `json:"instrumental_url" validate:"required"`
	VocalsURL       string `json:"vocals_url" validate:"required"`
	Genre           string `json:"genre" validate:"required,genre"`
}

// Asset is the response of every generation step.
type Asset struct {
	URL      string  `json:"url"`
	Duration float64 `json:"duration,omitempty"`
	Format   string  `json:"format,omitempty"`
}

// Transcript is the response of POST /transcribe/.
type Transcript struct {
	Success bool   `json:"success"`
	Text    string `json:"transcribed_text"`
}

// Song is a saved song owned by the backend.
type Song struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Genre           string    `json:"genre"`
	Lyrics          string    `json:"lyrics"`
	InstrumentalURL string    `json:"instrumental_url"`
	VocalsURL       string    `json:"vocals_url"`
	MixURL          string    `json:"mix_url"`
	DurationSeconds *int      `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

// NewSong is the body of POST /songs/.
type NewSong struct {
	Title           string `json:"title" validate:"required,max=255"`
	Genre           string `json:"genre" validate:"required,genre"`
	Lyrics          string `json:"lyrics" validate:"required"`
	InstrumentalURL string `json:"instrumental_url"`
	VocalsURL       string `json:"vocals_url"`
	MixURL          string `json:"mix_url" validate:"required"`
	DurationSeconds *int   `json:"duration_seconds,omitempty"`
}

// Health is the response of GET /health/.
type Health struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Version string `json:"version,omitempty"`
}
