package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, error) {
	if err := Validate(creds); err != nil {
		return "", err
	}
	var resp tokenResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/token/", in: creds, out: &resp}); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Access) == "" {
		return "", fmt.Errorf("api: token response missing access token")
	}
	return resp.Access, nil
}

// Register creates an account. It does not return a session.
func (c *Client) Register(ctx context.Context, reg Registration) error {
	if err := Validate(reg); err != nil {
		return err
	}
	return c.do(ctx, request{method: http.MethodPost, path: "/auth/register/", in: reg})
}

// Me returns the user that owns token.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("api: me: token is required")
	}
	var u User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/auth/me/", token: token, out: &u, idempotent: true}); err != nil {
		return nil, err
	}
	return &u, nil
}

// GenerateLyrics asks the backend for lyrics. A 2xx response with
// success=false is reported as an error carrying the backend message.
func (c *Client) GenerateLyrics(ctx context.Context, req LyricsRequest) (string, error) {
	if err := Validate(req); err != nil {
		return "", err
	}
	var resp LyricsResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/generate-lyrics/", in: req, out: &resp}); err != nil {
		return "", err
	}
	if !resp.Success || strings.TrimSpace(resp.Lyrics) == "" {
		msg := strings.TrimSpace(resp.Error)
		if msg == "" {
			msg = "failed to generate lyrics"
		}
		return "", errors.New("api: generate lyrics: " + msg)
	}
	return resp.Lyrics, nil
}

// GenerateInstrumental renders the backing track.
func (c *Client) GenerateInstrumental(ctx context.Context, req TrackRequest) (*Asset, error) {
	return c.asset(ctx, "/generate-instrumental/", req)
}

// GenerateVocals renders the sung vocals.
func (c *Client) GenerateVocals(ctx context.Context, req TrackRequest) (*Asset, error) {
	return c.asset(ctx, "/generate-vocals/", req)
}

// MixAudio combines instrumental and vocals into the final mix.
func (c *Client) MixAudio(ctx context.Context, req MixRequest) (*Asset, error) {
	return c.asset(ctx, "/mix-audio/", req)
}

func (c *Client) asset(ctx context.Context, path string, in any) (*Asset, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	var a Asset
	if err := c.do(ctx, request{method: http.MethodPost, path: path, in: in, out: &a, idempotent: true}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.URL) == "" {
		return nil, fmt.Errorf("api: %s response missing url", path)
	}
	return &a, nil
}

// Transcribe uploads an audio file and returns the recognised text.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("api: couldn't open audio %s: %w", audioPath, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio_file", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("api: couldn't create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("api: couldn't read audio %s: %w", audioPath, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("api: couldn't close multipart body: %w", err)
	}

	var resp Transcript
	if err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/transcribe/",
		body:     &buf,
		bodyType: mw.FormDataContentType(),
		out:      &resp,
	}); err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("api: transcription returned no text")
	}
	return text, nil
}

// ListSongs returns the songs of the authenticated user.
func (c *Client) ListSongs(ctx context.Context) ([]Song, error) {
	var songs []Song
	if err := c.do(ctx, request{method: http.MethodGet, path: "/songs/", out: &songs, authed: true, idempotent: true}); err != nil {
		return nil, err
	}
	return songs, nil
}

// CreateSong saves a finished song to the authenticated user's account.
// Backend failures are reported as *SaveError.
func (c *Client) CreateSong(ctx context.Context, song NewSong) (*Song, error) {
	if err := Validate(song); err != nil {
		return nil, err
	}
	var created Song
	if err := c.do(ctx, request{method: http.MethodPost, path: "/songs/", in: song, out: &created, authed: true}); err != nil {
		return nil, &SaveError{Detail: Detail(err, "could not save song"), Err: err}
	}
	return &created, nil
}

// Health pings the backend.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, request{method: http.MethodGet, path: "/health/", out: &h, idempotent: true}); err != nil {
		return nil, err
	}
	return &h, nil
}

// Download streams an asset URL into w. Relative asset URLs resolve against
// the backend origin.
func (c *Client) Download(ctx context.Context, assetURL string, w io.Writer) (int64, error) {
	u := c.AssetURL(assetURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("api: couldn't create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("api: couldn't download %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, decodeError(http.MethodGet, u, resp.StatusCode, body)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("api: couldn't write download: %w", err)
	}
	return n, nil
}

// AssetURL turns a backend-returned asset reference into an absolute URL.
func (c *Client) AssetURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	origin := c.base
	if idx := strings.Index(origin, "://"); idx >= 0 {
		if slash := strings.Index(origin[idx+3:], "/"); slash >= 0 {
			origin = origin[:idx+3+slash]
		}
	}
	return BuildURL(origin, ref)
}
