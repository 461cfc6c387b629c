package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestBuildURLCollapsesSlashes(t *testing.T) {
	for _, base := range []string{"http://x/api", "http://x/api/", "http://x/api//", "http://x/api///"} {
		if got := BuildURL(base, "/songs/"); got != "http://x/api/songs/" {
			t.Fatalf("BuildURL(%q) = %q, want http://x/api/songs/", base, got)
		}
	}
	if got := BuildURL("http://x/api", "songs/"); got != "http://x/api/songs/" {
		t.Fatalf("missing leading slash not normalized: %q", got)
	}
	if got := BuildURL("http://x/api", "//songs/"); got != "http://x/api/songs/" {
		t.Fatalf("duplicate leading slash not normalized: %q", got)
	}
}

func TestBaseURLFromEnv(t *testing.T) {
	t.Setenv(BaseURLEnv, "")
	if got := BaseURLFromEnv(); got != DefaultBaseURL {
		t.Fatalf("default base = %q", got)
	}
	t.Setenv(BaseURLEnv, "https://music.example.com/api//")
	if got := BaseURLFromEnv(); got != "https://music.example.com/api" {
		t.Fatalf("env base = %q", got)
	}
}

func TestErrorDetailFromBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/register/":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"username":["A user with that username already exists."]}`)
		case "/api/generate-instrumental/":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"error":"model offline"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `not json`)
		}
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL + "/api/"})

	err := c.Register(context.Background(), Registration{Username: "ana", Password: "longenough"})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Detail != "username: A user with that username already exists." {
		t.Fatalf("unexpected detail %q", apiErr.Detail)
	}

	_, err = c.GenerateInstrumental(context.Background(), TrackRequest{Lyrics: "la", Genre: "pop"})
	if StatusCode(err) != http.StatusInternalServerError || Detail(err, "") != "model offline" {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = c.Health(context.Background())
	if StatusCode(err) != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
	if got := Detail(err, "fallback"); got != "fallback" {
		t.Fatalf("generic detail should defer to fallback, got %q", got)
	}
}

func TestValidationSkipsNetwork(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL})

	_, err := c.GenerateVocals(context.Background(), TrackRequest{Lyrics: "la", Genre: "polka"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := verr.Fields["genre"]; !ok {
		t.Fatalf("expected genre field error, got %v", verr.Fields)
	}
	if err := c.Register(context.Background(), Registration{Username: "ana", Password: "short"}); !errors.As(err, &verr) {
		t.Fatalf("expected password validation error, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Fatalf("validation failures must not hit the network, got %d calls", n)
	}
}

func TestAuthenticatedCallsUseTokenSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"Authentication credentials were not provided."}`)
			return
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("missing request id")
		}
		_ = json.NewEncoder(w).Encode([]Song{{ID: 1, Title: "First", Genre: "pop", MixURL: "http://x/m.wav"}})
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL})
	if _, err := c.ListSongs(context.Background()); StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %v", err)
	}
	c.SetTokenSource(staticToken("tok-1"))
	songs, err := c.ListSongs(context.Background())
	if err != nil {
		t.Fatalf("list songs: %v", err)
	}
	if len(songs) != 1 || songs[0].Title != "First" {
		t.Fatalf("unexpected songs %+v", songs)
	}
}

func TestCreateSongFailureIsSaveError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"detail":"mix_url invalid"}`)
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL})
	_, err := c.CreateSong(context.Background(), NewSong{Title: "t", Genre: "rock", Lyrics: "l", MixURL: "m"})
	var saveErr *SaveError
	if !errors.As(err, &saveErr) {
		t.Fatalf("expected *SaveError, got %v", err)
	}
	if saveErr.Detail != "mix_url invalid" {
		t.Fatalf("unexpected detail %q", saveErr.Detail)
	}
}

func TestLyricsSuccessFalseIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"error":"quota exceeded"}`)
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL})
	_, err := c.GenerateLyrics(context.Background(), LyricsRequest{InputText: "summer", Genre: "pop"})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestIdempotentRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"url":"http://x/inst.wav"}`)
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL, Retries: 2, Backoff: []time.Duration{time.Millisecond}})
	asset, err := c.GenerateInstrumental(context.Background(), TrackRequest{Lyrics: "la", Genre: "pop"})
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if asset.URL != "http://x/inst.wav" || atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("unexpected result %+v after %d calls", asset, calls)
	}

	atomic.StoreInt32(&calls, 0)
	noRetry := New(Config{BaseURL: srv.URL, Backoff: []time.Duration{time.Millisecond}})
	if _, err := noRetry.GenerateInstrumental(context.Background(), TrackRequest{Lyrics: "la", Genre: "pop"}); StatusCode(err) != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without retries, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected a single call without retries, got %d", n)
	}
}

func TestLoginIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL, Retries: 3, Backoff: []time.Duration{time.Millisecond}})
	if _, err := c.Login(context.Background(), Credentials{Username: "ana", Password: "secret"}); StatusCode(err) != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from login, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("login must not be retried, got %d calls", n)
	}
}

func TestTranscribeUploadsMultipart(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "take.wav")
	if err := os.WriteFile(audio, []byte("RIFFfake"), 0o644); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("audio_file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"No audio file provided"}`)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "take.wav" || !bytes.Equal(data, []byte("RIFFfake")) {
			t.Errorf("unexpected upload %s %q", header.Filename, data)
		}
		_, _ = io.WriteString(w, `{"success":true,"transcribed_text":"a song about rain"}`)
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL})
	text, err := c.Transcribe(context.Background(), audio)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "a song about rain" {
		t.Fatalf("unexpected transcript %q", text)
	}
}

func TestAssetURLResolvesRelativePaths(t *testing.T) {
	c := New(Config{BaseURL: "http://host:8000/api/"})
	if got := c.AssetURL("/temp-audio/mix.wav"); got != "http://host:8000/temp-audio/mix.wav" {
		t.Fatalf("relative asset = %q", got)
	}
	if got := c.AssetURL("https://cdn.example.com/a.wav"); got != "https://cdn.example.com/a.wav" {
		t.Fatalf("absolute asset = %q", got)
	}
}

type staticToken string

func (s staticToken) Token() string { return string(s) }
