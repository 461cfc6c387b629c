package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kingrea/auralynx/internal/api"
	"github.com/kingrea/auralynx/internal/generation"
	"github.com/kingrea/auralynx/internal/store"
)

type backend struct {
	mu             sync.Mutex
	calls          map[string]int
	vocalsFailures int
	saved          api.NewSong
}

func (b *backend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls[r.URL.Path]++
	b.mu.Unlock()
	body, _ := io.ReadAll(r.Body)

	switch r.URL.Path {
	case "/api/health/":
		_, _ = io.WriteString(w, `{"status":"ok","version":"1.4"}`)
	case "/api/auth/token/":
		if !strings.Contains(string(body), `"password":"correct-horse"`) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"No active account found with the given credentials"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access":"good-token"}`)
	case "/api/auth/me/":
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"id":7,"username":"ana","email":"ana@example.com"}`)
	case "/api/generate-lyrics/":
		var req api.LyricsRequest
		_ = json.Unmarshal(body, &req)
		_ = json.NewEncoder(w).Encode(api.LyricsResponse{Success: true, Lyrics: "A " + req.Genre + " song about " + req.InputText})
	case "/api/generate-instrumental/":
		_, _ = io.WriteString(w, `{"url":"/temp-audio/inst.wav"}`)
	case "/api/generate-vocals/":
		b.mu.Lock()
		fail := b.vocalsFailures > 0
		if fail {
			b.vocalsFailures--
		}
		b.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"error":"vocal model crashed"}`)
			return
		}
		_, _ = io.WriteString(w, `{"url":"/temp-audio/vocals.wav"}`)
	case "/api/mix-audio/":
		_, _ = io.WriteString(w, `{"url":"/temp-audio/mix.wav","duration":61.6}`)
	case "/temp-audio/mix.wav":
		_, _ = io.WriteString(w, "RIFF-not-really-audio")
	case "/api/songs/":
		if r.Method == http.MethodPost {
			b.mu.Lock()
			_ = json.Unmarshal(body, &b.saved)
			b.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"id":3,"title":"Storm","genre":"rock","mix_url":"/temp-audio/mix.wav"}`)
			return
		}
		_, _ = io.WriteString(w, `[{"id":1,"title":"Rain","genre":"folk","mix_url":"/temp-audio/a.wav","created_at":"2026-01-02T03:04:05Z"}]`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newRuntime(t *testing.T, b *backend) *runtime {
	t.Helper()
	if b.calls == nil {
		b.calls = map[string]int{}
	}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	for _, key := range []string{"AURALYNX_API_URL", "AURALYNX_S3_BUCKET", "AURALYNX_S3_REGION", "AURALYNX_S3_KEY", "AURALYNX_S3_SECRET", "AURALYNX_S3_ENDPOINT"} {
		t.Setenv(key, "")
	}
	common := &commonFlags{home: t.TempDir(), apiURL: srv.URL + "/api"}
	var warn bytes.Buffer
	rt, err := bootstrap(context.Background(), common, &warn)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(rt.Close)
	return rt
}

func TestBootstrapCreatesHome(t *testing.T) {
	rt := newRuntime(t, &backend{})
	for _, dir := range []string{rt.cfg.LogsDir(), rt.cfg.RecordingsDir(), rt.cfg.TemplatesDir()} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
	if !strings.HasSuffix(rt.client.BaseURL(), "/api") {
		t.Fatalf("api-url flag not applied: %s", rt.client.BaseURL())
	}
	if rt.auth.SignedIn() {
		t.Fatalf("fresh home should not be signed in")
	}
}

func TestGenerateDownloadsAndRecordsHistory(t *testing.T) {
	b := &backend{}
	rt := newRuntime(t, b)
	outDir := t.TempDir()
	var out bytes.Buffer
	opts := &generateOptions{text: "a storm at sea", genre: "Rock", out: outDir, attempts: 1, download: true}
	if err := runGenerate(context.Background(), rt, opts, &out); err != nil {
		t.Fatalf("generate: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "A rock song about a storm at sea") {
		t.Fatalf("lyrics missing from output:\n%s", out.String())
	}
	data, err := os.ReadFile(filepath.Join(outDir, "mix.wav"))
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if string(data) != "RIFF-not-really-audio" {
		t.Fatalf("unexpected download contents %q", data)
	}
	runs, err := rt.store.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != store.RunComplete || runs[0].Genre != "rock" {
		t.Fatalf("unexpected history: %+v", runs)
	}
	if runs[0].DurationSeconds != 62 {
		t.Fatalf("expected rounded duration 62, got %d", runs[0].DurationSeconds)
	}
}

func TestGenerateResumesFailedStep(t *testing.T) {
	b := &backend{vocalsFailures: 1}
	rt := newRuntime(t, b)
	var out bytes.Buffer
	opts := &generateOptions{text: "night drive", attempts: 2}
	if err := runGenerate(context.Background(), rt, opts, &out); err != nil {
		t.Fatalf("generate: %v\n%s", err, out.String())
	}
	if got := b.count("/api/generate-instrumental/"); got != 1 {
		t.Fatalf("instrumental should not rerun on resume, got %d calls", got)
	}
	if got := b.count("/api/generate-vocals/"); got != 2 {
		t.Fatalf("expected 2 vocals calls, got %d", got)
	}
	runs, err := rt.store.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[1].Status != store.RunFailed || runs[1].FailedStep == "" {
		t.Fatalf("expected a failed row then a complete row, got %+v", runs)
	}
}

func TestGenerateGivesUpAfterAttempts(t *testing.T) {
	b := &backend{vocalsFailures: 5}
	rt := newRuntime(t, b)
	var out bytes.Buffer
	err := runGenerate(context.Background(), rt, &generateOptions{text: "night drive", attempts: 1}, &out)
	if err == nil {
		t.Fatalf("expected failure")
	}
	if b.count("/api/mix-audio/") != 0 {
		t.Fatalf("mixing must not run after vocals fail")
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	rt := newRuntime(t, &backend{})
	cases := []*generateOptions{
		{},
		{text: "x", genre: "zydeco"},
		{text: "x", save: true, title: "T"},
		{text: "x", save: true},
		{text: "x", upload: true},
	}
	for _, opts := range cases {
		if err := runGenerate(context.Background(), rt, opts, io.Discard); err == nil {
			t.Fatalf("expected error for %+v", opts)
		}
	}
}

func TestLoginSaveAndListSongs(t *testing.T) {
	b := &backend{}
	rt := newRuntime(t, b)
	ctx := context.Background()
	var out bytes.Buffer

	if err := runLogin(ctx, rt, &credentialFlags{username: "ana", password: "wrong"}, &out); err == nil {
		t.Fatalf("expected bad credentials to fail")
	}
	if err := runLogin(ctx, rt, &credentialFlags{username: "ana", password: "correct-horse"}, &out); err != nil {
		t.Fatalf("login: %v", err)
	}
	out.Reset()
	if err := runWhoami(rt, &out); err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "ana <ana@example.com>" {
		t.Fatalf("unexpected whoami %q", got)
	}

	opts := &generateOptions{text: "storm", genre: "rock", save: true, title: " Storm "}
	if err := runGenerate(ctx, rt, opts, io.Discard); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if b.saved.Title != "Storm" || b.saved.MixURL != "/temp-audio/mix.wav" {
		t.Fatalf("unexpected saved song %+v", b.saved)
	}
	if b.saved.DurationSeconds == nil || *b.saved.DurationSeconds != 62 {
		t.Fatalf("expected duration to be sent, got %v", b.saved.DurationSeconds)
	}

	out.Reset()
	if err := runSongs(ctx, rt, "", &out); err != nil {
		t.Fatalf("songs: %v", err)
	}
	if !strings.Contains(out.String(), "Rain") || !strings.Contains(out.String(), "/temp-audio/a.wav") {
		t.Fatalf("unexpected songs listing:\n%s", out.String())
	}

	csvPath := filepath.Join(t.TempDir(), "export", "songs.csv")
	if err := runSongs(ctx, rt, csvPath, io.Discard); err != nil {
		t.Fatalf("songs csv: %v", err)
	}
	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if !strings.Contains(string(data), "Rain") {
		t.Fatalf("csv missing song:\n%s", data)
	}
}

func TestSongsRequiresSignIn(t *testing.T) {
	rt := newRuntime(t, &backend{})
	if err := runSongs(context.Background(), rt, "", io.Discard); err == nil {
		t.Fatalf("expected error when signed out")
	}
}

func TestHistoryAndHealth(t *testing.T) {
	rt := newRuntime(t, &backend{})
	ctx := context.Background()
	var out bytes.Buffer
	if err := runHistory(ctx, rt, 5, &out); err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out.String(), "No runs yet") {
		t.Fatalf("unexpected empty history output %q", out.String())
	}
	if err := runGenerate(ctx, rt, &generateOptions{text: "fields of gold", genre: "folk"}, io.Discard); err != nil {
		t.Fatalf("generate: %v", err)
	}
	out.Reset()
	if err := runHistory(ctx, rt, 5, &out); err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out.String(), "fields of gold") || !strings.Contains(out.String(), "complete") {
		t.Fatalf("unexpected history output:\n%s", out.String())
	}

	out.Reset()
	if err := runHealth(ctx, rt, &out); err != nil {
		t.Fatalf("health: %v", err)
	}
	if !strings.Contains(out.String(), "ok (v1.4)") {
		t.Fatalf("unexpected health output %q", out.String())
	}
}

func TestHistoryDetailShowsTiming(t *testing.T) {
	rt := newRuntime(t, &backend{})
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ticks := 0
	rt.genOptions = []generation.Option{generation.WithClock(func() time.Time {
		ticks++
		return start.Add(time.Duration(ticks-1) * 7 * time.Second)
	})}
	var out bytes.Buffer
	if err := runGenerate(ctx, rt, &generateOptions{text: "paper boats", genre: "indie"}, &out); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(out.String(), "Done in 7s") {
		t.Fatalf("missing elapsed time:\n%s", out.String())
	}
	runs, err := rt.store.ListRuns(ctx, 1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("list runs: %v %d", err, len(runs))
	}

	out.Reset()
	if err := runHistoryDetail(ctx, rt, strings.ToLower(runs[0].ID), &out); err != nil {
		t.Fatalf("history detail: %v", err)
	}
	for _, want := range []string{runs[0].ID, "7s", "A indie song about paper boats", "/temp-audio/mix.wav", "1m2s"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("detail missing %q:\n%s", want, out.String())
		}
	}
	if err := runHistoryDetail(ctx, rt, "01HNOSUCHRUN0000000000000", io.Discard); err == nil {
		t.Fatalf("expected unknown run to fail")
	}
}

func TestShorten(t *testing.T) {
	if got := shorten("hello", 10); got != "hello" {
		t.Fatalf("unexpected %q", got)
	}
	if got := shorten("hello world", 6); got != "hello…" {
		t.Fatalf("unexpected %q", got)
	}
}
