package tui

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/auralynx/internal/api"
	"github.com/kingrea/auralynx/internal/auth"
	"github.com/kingrea/auralynx/internal/config"
	"github.com/kingrea/auralynx/internal/generation"
	"github.com/kingrea/auralynx/internal/logbook"
	"github.com/kingrea/auralynx/internal/store"
	"github.com/kingrea/auralynx/internal/wizard"
)

// fakeBackend serves every endpoint the wizard touches.
type fakeBackend struct {
	mu             sync.Mutex
	calls          map[string]int
	lyricsStatus   int
	vocalsFailures int
	savedTitle     string
	savedAuth      string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{calls: map[string]int{}}
}

func (f *fakeBackend) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api")
	f.mu.Lock()
	f.calls[path]++
	f.mu.Unlock()
	body, _ := io.ReadAll(r.Body)

	switch path {
	case "/health/":
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	case "/auth/token/":
		if !strings.Contains(string(body), `"password":"correct-horse"`) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"No active account found with the given credentials"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access":"good-token"}`)
	case "/auth/me/":
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"id":7,"username":"ana"}`)
	case "/transcribe/":
		_, _ = io.WriteString(w, `{"success":true,"transcribed_text":"humming about rain"}`)
	case "/generate-lyrics/":
		f.mu.Lock()
		status := f.lyricsStatus
		f.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"error":"model offline"}`)
			return
		}
		var req api.LyricsRequest
		_ = json.Unmarshal(body, &req)
		_ = json.NewEncoder(w).Encode(api.LyricsResponse{Success: true, Lyrics: "A " + req.Genre + " song about " + req.InputText})
	case "/generate-instrumental/":
		_, _ = io.WriteString(w, `{"url":"/temp-audio/inst.wav"}`)
	case "/generate-vocals/":
		f.mu.Lock()
		fail := f.vocalsFailures > 0
		if fail {
			f.vocalsFailures--
		}
		f.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, `{"error":"vocal model timed out"}`)
			return
		}
		_, _ = io.WriteString(w, `{"url":"/temp-audio/vocals.wav"}`)
	case "/mix-audio/":
		_, _ = io.WriteString(w, `{"url":"/temp-audio/mix.wav","duration":61.6}`)
	case "/songs/":
		if r.Method == http.MethodPost {
			var song api.NewSong
			_ = json.Unmarshal(body, &song)
			f.mu.Lock()
			f.savedTitle = song.Title
			f.savedAuth = r.Header.Get("Authorization")
			f.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(api.Song{ID: 3, Title: song.Title, Genre: song.Genre, MixURL: song.MixURL})
			return
		}
		_, _ = io.WriteString(w, `[{"id":1,"title":"Rain","genre":"folk","mix_url":"/temp-audio/a.wav","created_at":"2026-01-02T03:04:05Z"}]`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type testApp struct {
	*App
	opened []string
}

func newTestApp(t *testing.T, fb *fakeBackend) *testApp {
	t.Helper()
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)
	t.Setenv("AURALYNX_API_URL", "")
	home := t.TempDir()
	cfg, err := config.NewConfig(home)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	client := api.New(api.Config{BaseURL: srv.URL + "/api"})
	mgr, err := auth.NewManager(client, nil)
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	client.SetTokenSource(mgr)
	st, err := store.Open(context.Background(), filepath.Join(home, "auralynx.db"), false)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	lb, err := logbook.New(filepath.Join(home, "logs", logbook.FileName))
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	ta := &testApp{}
	app, err := NewApp(Deps{Config: cfg, Client: client, Auth: mgr, Store: st, Logbook: lb},
		WithOpener(func(target string) error {
			ta.opened = append(ta.opened, target)
			return nil
		}))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	ta.App = app
	return ta
}

// runCommands feeds every message produced by cmd back into the app until
// nothing is left. Spinner ticks are dropped so the loop settles.
func runCommands(t *testing.T, model tea.Model, cmd tea.Cmd) *App {
	t.Helper()
	app, ok := model.(*App)
	if !ok {
		t.Fatalf("unexpected model type: %T", model)
	}
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 500 {
			t.Fatalf("commands did not settle")
		}
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		switch msg := next().(type) {
		case nil:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case spinner.TickMsg:
		default:
			nextModel, nextCmd := app.Update(msg)
			app, ok = nextModel.(*App)
			if !ok {
				t.Fatalf("unexpected model type: %T", nextModel)
			}
			queue = append(queue, nextCmd)
		}
	}
	return app
}

func press(t *testing.T, app *App, key tea.KeyMsg) *App {
	t.Helper()
	model, cmd := app.Update(key)
	return runCommands(t, model, cmd)
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func driveToLyrics(t *testing.T, app *App, idea string) *App {
	t.Helper()
	model, cmd := app.chooseLanding("text")
	app = runCommands(t, model, cmd)
	if app.state != stateInput {
		t.Fatalf("expected input stage, got %d", app.state)
	}
	app.input.idea.SetValue(idea)
	app = press(t, app, tea.KeyMsg{Type: tea.KeyCtrlS})
	if app.state != stateLyrics {
		t.Fatalf("expected lyrics stage, got %d (%s)", app.state, app.statusMsg)
	}
	return app
}

func driveToPreview(t *testing.T, app *App) *App {
	t.Helper()
	app = driveToLyrics(t, app, "late night drive")
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	if app.state != statePreview {
		t.Fatalf("expected preview stage, got %d (err=%v)", app.state, app.gen.err)
	}
	return app
}

func TestTextIdeaReachesPreview(t *testing.T) {
	fb := newFakeBackend()
	ta := newTestApp(t, fb)
	app := driveToLyrics(t, ta.App, "late night drive")
	if got := app.lyricsV.editor.Value(); got != "A pop song about late night drive" {
		t.Fatalf("unexpected lyrics %q", got)
	}
	if app.lyricsV.notice != "" {
		t.Fatalf("unexpected fallback notice")
	}

	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	if app.state != statePreview {
		t.Fatalf("expected preview, got %d (err=%v)", app.state, app.gen.err)
	}
	sess := app.wizard.Session()
	if sess.FinalMixURL != "/temp-audio/mix.wav" || sess.VocalsURL != "/temp-audio/vocals.wav" {
		t.Fatalf("unexpected session urls %+v", sess)
	}
	if app.preview.duration != 62 {
		t.Fatalf("expected rounded duration 62, got %d", app.preview.duration)
	}
	if app.gen.progress != 100 || app.wizard.Running() {
		t.Fatalf("run not finished: progress=%d running=%v", app.gen.progress, app.wizard.Running())
	}
	runs, err := app.store.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != store.RunComplete || runs[0].InputText != "late night drive" {
		t.Fatalf("unexpected history %+v", runs)
	}

	app = press(t, app, keyRune('o'))
	if len(ta.opened) != 1 || !strings.HasSuffix(ta.opened[0], "/temp-audio/mix.wav") {
		t.Fatalf("expected mix url opened, got %v", ta.opened)
	}
}

func TestGenreSwitchRegeneratesLyrics(t *testing.T) {
	fb := newFakeBackend()
	ta := newTestApp(t, fb)
	app := driveToLyrics(t, ta.App, "rain")
	app = press(t, app, tea.KeyMsg{Type: tea.KeyRight})
	if app.lyricsV.genre != "rock" {
		t.Fatalf("expected rock after pop, got %s", app.lyricsV.genre)
	}
	if got := app.lyricsV.editor.Value(); got != "A rock song about rain" {
		t.Fatalf("lyrics not regenerated: %q", got)
	}
	if fb.count("/generate-lyrics/") != 2 {
		t.Fatalf("expected 2 lyrics calls, got %d", fb.count("/generate-lyrics/"))
	}
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	if got := app.wizard.Session().Genre; got != "rock" {
		t.Fatalf("genre not carried into session: %s", got)
	}
}

func TestLyricsFallbackOnBackendError(t *testing.T) {
	fb := newFakeBackend()
	fb.lyricsStatus = http.StatusInternalServerError
	ta := newTestApp(t, fb)
	app := driveToLyrics(t, ta.App, "summer on the coast")
	if app.lyricsV.notice == "" {
		t.Fatalf("expected fallback notice")
	}
	if got := app.lyricsV.editor.Value(); !strings.Contains(got, "summer on the coast") || !strings.Contains(got, "Chorus") {
		t.Fatalf("fallback lyrics missing idea: %q", got)
	}
	lines, _ := app.logbook.Tail(20)
	if !strings.Contains(strings.Join(lines, "\n"), "WARN  Lyrics fallback") {
		t.Fatalf("fallback not logged: %v", lines)
	}
}

func TestGenerationFailureCanResume(t *testing.T) {
	fb := newFakeBackend()
	fb.vocalsFailures = 1
	ta := newTestApp(t, fb)
	app := driveToLyrics(t, ta.App, "late night drive")
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	if app.state != stateGeneration {
		t.Fatalf("expected to stay on generation, got %d", app.state)
	}
	if step, ok := generation.FailedStep(app.gen.err); !ok || step != generation.StepVocals {
		t.Fatalf("expected vocals failure, got %v", app.gen.err)
	}
	if app.wizard.Running() {
		t.Fatalf("failed run still holds the run slot")
	}
	if fb.count("/mix-audio/") != 0 {
		t.Fatalf("mix must not run after a failure")
	}

	app = press(t, app, keyRune('r'))
	if app.state != statePreview {
		t.Fatalf("resume did not reach preview: %v", app.gen.err)
	}
	if fb.count("/generate-instrumental/") != 1 || fb.count("/generate-vocals/") != 2 || fb.count("/mix-audio/") != 1 {
		t.Fatalf("unexpected call counts: %v", fb.calls)
	}
	runs, err := app.store.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].Status != store.RunComplete || runs[1].Status != store.RunFailed || runs[1].FailedStep != "vocals" {
		t.Fatalf("unexpected history %+v", runs)
	}
}

func TestBackBlockedWhileRunInFlight(t *testing.T) {
	ta := newTestApp(t, newFakeBackend())
	app := ta.App
	for _, ev := range []wizard.Event{
		wizard.LandingCompleted{Mode: wizard.InputText},
		wizard.InputCompleted{Text: "idea"},
		wizard.LyricsCompleted{Lyrics: "la la", Genre: "jazz"},
	} {
		if err := app.wizard.Apply(ev); err != nil {
			t.Fatalf("apply %T: %v", ev, err)
		}
	}
	app.syncState()
	token, err := app.wizard.BeginRun()
	if err != nil {
		t.Fatalf("begin run: %v", err)
	}
	app.gen.token = token

	app = press(t, app, tea.KeyMsg{Type: tea.KeyEsc})
	if app.state != stateGeneration || !strings.Contains(app.statusMsg, "running") {
		t.Fatalf("back should be blocked, state=%d status=%q", app.state, app.statusMsg)
	}

	model, _ := app.Update(generationFinishedMsg{token: token + 1, err: errors.New("late")})
	app = model.(*App)
	if app.gen.err != nil || !app.wizard.Running() {
		t.Fatalf("stale result must be ignored")
	}

	app = press(t, app, keyRune('n'))
	if app.state != stateLanding || app.wizard.Running() {
		t.Fatalf("restart did not reset: state=%d running=%v", app.state, app.wizard.Running())
	}
	if got := app.wizard.Session(); got.Lyrics != "" || got.InputText != "" {
		t.Fatalf("restart kept session data: %+v", got)
	}
}

func TestVoiceTranscriptFillsIdea(t *testing.T) {
	fb := newFakeBackend()
	ta := newTestApp(t, fb)
	model, cmd := ta.chooseLanding("voice")
	app := runCommands(t, model, cmd)
	take := filepath.Join(t.TempDir(), "take.wav")
	if err := os.WriteFile(take, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	app.input.audio.SetValue(take)
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	if !app.input.transcribed || app.input.idea.Value() != "humming about rain" {
		t.Fatalf("transcript not applied: %q (%s)", app.input.idea.Value(), app.statusMsg)
	}
	app = press(t, app, tea.KeyMsg{Type: tea.KeyCtrlS})
	sess := app.wizard.Session()
	if app.state != stateLyrics || sess.InputMode != wizard.InputVoice || sess.TranscribedText != "humming about rain" {
		t.Fatalf("unexpected state %d session %+v", app.state, sess)
	}
}

func TestAbandonedTranscriptDoesNotOverwriteTypedIdea(t *testing.T) {
	fb := newFakeBackend()
	ta := newTestApp(t, fb)
	model, cmd := ta.chooseLanding("voice")
	app := runCommands(t, model, cmd)
	take := filepath.Join(t.TempDir(), "take.wav")
	if err := os.WriteFile(take, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	app.input.audio.SetValue(take)
	model, pending := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	app = model.(*App)
	if !app.input.transcribing {
		t.Fatalf("expected transcription in flight")
	}

	app = press(t, app, tea.KeyMsg{Type: tea.KeyEsc})
	if app.state != stateLanding || app.input.transcribing {
		t.Fatalf("expected landing with no transcription, got state=%d transcribing=%v", app.state, app.input.transcribing)
	}
	model, cmd = app.chooseLanding("text")
	app = runCommands(t, model, cmd)
	app.input.idea.SetValue("my own words")

	app = runCommands(t, app, pending)
	if got := app.input.idea.Value(); got != "my own words" || app.input.transcribed {
		t.Fatalf("late transcript applied: %q transcribed=%v", got, app.input.transcribed)
	}
	app = press(t, app, tea.KeyMsg{Type: tea.KeyCtrlS})
	if sess := app.wizard.Session(); sess.InputText != "my own words" || sess.InputMode != wizard.InputText {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestSaveSongSignsInFirst(t *testing.T) {
	fb := newFakeBackend()
	ta := newTestApp(t, fb)
	app := driveToPreview(t, ta.App)

	app = press(t, app, keyRune('s'))
	if app.state != stateAuth {
		t.Fatalf("expected sign-in overlay, got %d", app.state)
	}
	app.account.fields[fieldUsername].SetValue("ana")
	app.account.fields[fieldPassword].SetValue("wrong-password")
	app.account.setFocus(fieldPassword)
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	if app.state != stateAuth || app.account.err != "Invalid username or password" {
		t.Fatalf("expected inline error, got state=%d err=%q", app.state, app.account.err)
	}

	app.account.fields[fieldPassword].SetValue("correct-horse")
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	if app.state != statePreview || !app.auth.SignedIn() {
		t.Fatalf("expected to return to preview signed in, state=%d", app.state)
	}

	app = press(t, app, keyRune('s'))
	if !app.preview.naming {
		t.Fatalf("expected title prompt")
	}
	app.preview.title.SetValue("Night Drive")
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	if app.preview.saved == nil || app.preview.saved.ID != 3 {
		t.Fatalf("song not saved: %s", app.statusMsg)
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.savedTitle != "Night Drive" || fb.savedAuth != "Bearer good-token" {
		t.Fatalf("unexpected save request title=%q auth=%q", fb.savedTitle, fb.savedAuth)
	}
}

func TestSongsOverlayListsAndExports(t *testing.T) {
	fb := newFakeBackend()
	ta := newTestApp(t, fb)
	if _, err := ta.auth.Login(context.Background(), "ana", "correct-horse"); err != nil {
		t.Fatalf("login: %v", err)
	}
	ta.refreshLandingMenu()
	model, cmd := ta.chooseLanding("songs")
	app := runCommands(t, model, cmd)
	if app.state != stateSongs || len(app.songs.songs) != 1 {
		t.Fatalf("songs not listed: state=%d err=%q", app.state, app.songs.err)
	}
	app = press(t, app, keyRune('x'))
	data, err := os.ReadFile(filepath.Join(app.config.ExportDir(), "songs.csv"))
	if err != nil {
		t.Fatalf("csv not written: %v (%s)", err, app.statusMsg)
	}
	if !strings.Contains(string(data), "1,Rain,folk") {
		t.Fatalf("unexpected csv %q", data)
	}
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	if len(ta.opened) != 1 || !strings.HasSuffix(ta.opened[0], "/temp-audio/a.wav") {
		t.Fatalf("expected song opened, got %v", ta.opened)
	}
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEsc})
	if app.state != stateLanding {
		t.Fatalf("expected landing after closing overlay, got %d", app.state)
	}
}

func TestViewRendersLanding(t *testing.T) {
	ta := newTestApp(t, newFakeBackend())
	app := runCommands(t, ta.App, ta.Init())
	if app.health != "ok" {
		t.Fatalf("health not recorded: %q", app.health)
	}
	out := app.View()
	for _, want := range []string{"AURALYNX", "Write your idea", "guest"} {
		if !strings.Contains(out, want) {
			t.Fatalf("view missing %q:\n%s", want, out)
		}
	}
}
