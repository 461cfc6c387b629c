// internal/tui/app.go
//
// This is the main TUI (Terminal User Interface) for AuraLynx.
// It uses bubbletea, which follows The Elm Architecture:
//
// 1. Model: Your application state
// 2. Update: A function that updates state based on messages
// 3. View: A function that renders state to a string
//
// The flow is: User Input -> Message -> Update -> New Model -> View -> Screen
//
// Wizard rules live in internal/wizard. This package only turns key presses
// into stage completion events and renders whatever stage the controller is on.

package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/auralynx/internal/api"
	"github.com/kingrea/auralynx/internal/auth"
	"github.com/kingrea/auralynx/internal/capture"
	"github.com/kingrea/auralynx/internal/config"
	"github.com/kingrea/auralynx/internal/export"
	"github.com/kingrea/auralynx/internal/generation"
	"github.com/kingrea/auralynx/internal/logbook"
	"github.com/kingrea/auralynx/internal/lyrics"
	"github.com/kingrea/auralynx/internal/store"
	"github.com/kingrea/auralynx/internal/wizard"
	"github.com/kingrea/auralynx/plugins"
)

// appState represents which "screen" we're on
type appState int

const (
	stateLanding    appState = iota // Mode picker and account entry points
	stateInput                      // Text idea or voice take
	stateLyrics                     // Review, edit, pick genre
	stateGeneration                 // Instrumental -> vocals -> mix
	statePreview                    // Listen, download, save
	stateAuth                       // Sign in / register overlay
	stateSongs                      // Saved songs overlay
)

var stageStates = map[wizard.Stage]appState{
	wizard.StageLanding:    stateLanding,
	wizard.StageInput:      stateInput,
	wizard.StageLyrics:     stateLyrics,
	wizard.StageGeneration: stateGeneration,
	wizard.StagePreview:    statePreview,
}

// Deps are the collaborators the app drives. Client, Auth and Config are
// required.
type Deps struct {
	Config    *config.Config
	Client    *api.Client
	Auth      *auth.Manager
	Store     *store.Store
	Logbook   *logbook.Logbook
	Templates *plugins.Catalog
	Uploader  *export.S3Uploader
	Recorder  *capture.Recorder
}

// AppOption customizes App construction.
type AppOption func(*App)

// WithOpener replaces the function used to open mixes in the system player.
func WithOpener(open func(string) error) AppOption {
	return func(a *App) {
		if open != nil {
			a.open = open
		}
	}
}

type healthMsg struct {
	health *api.Health
	err    error
}

// App is the root bubbletea model.
type App struct {
	state       appState
	returnState appState

	ctx  context.Context
	stop context.CancelFunc

	config       *config.Config
	client       *api.Client
	auth         *auth.Manager
	store        *store.Store
	logbook      *logbook.Logbook
	wizard       *wizard.Controller
	lyrics       *lyrics.Service
	orchestrator *generation.Orchestrator
	recorder     *capture.Recorder
	uploader     *export.S3Uploader
	open         func(string) error

	// UI components
	landingMenu list.Model
	spinner     spinner.Model
	statusMsg   string
	health      string

	input   inputView
	lyricsV lyricsView
	gen     generationView
	preview previewView
	account accountView
	songs   songsView

	lastLogStatus string

	// Window size (we get this from bubbletea)
	width  int
	height int
}

// menuItem implements list.Item interface for our menu items
type menuItem struct {
	id    string
	title string
	desc  string
}

func (i menuItem) Title() string       { return i.title }
func (i menuItem) Description() string { return i.desc }
func (i menuItem) FilterValue() string { return i.title }

// NewApp creates a new App instance
func NewApp(deps Deps, opts ...AppOption) (*App, error) {
	if deps.Config == nil || deps.Client == nil || deps.Auth == nil {
		return nil, fmt.Errorf("tui: config, client and auth are required")
	}
	orch, err := generation.New(deps.Client)
	if err != nil {
		return nil, err
	}
	recorder := deps.Recorder
	if recorder == nil {
		capCfg := deps.Config.Settings.Capture
		recorder = &capture.Recorder{Bin: capCfg.Bin, Format: capCfg.Format, Device: capCfg.Device}
	}

	landingMenu := list.New(buildLandingMenu(deps.Auth.SignedIn()), list.NewDefaultDelegate(), 60, 14)
	landingMenu.Title = "◉ AURALYNX"
	landingMenu.SetShowStatusBar(false)
	landingMenu.SetFilteringEnabled(false)

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	ctx, stop := context.WithCancel(context.Background())
	app := &App{
		state:        stateLanding,
		ctx:          ctx,
		stop:         stop,
		config:       deps.Config,
		client:       deps.Client,
		auth:         deps.Auth,
		store:        deps.Store,
		logbook:      deps.Logbook,
		lyrics:       lyrics.NewService(deps.Client, deps.Templates),
		orchestrator: orch,
		recorder:     recorder,
		uploader:     deps.Uploader,
		open:         export.Open,
		landingMenu:  landingMenu,
		spinner:      spin,
		input:        newInputView(),
		lyricsV:      newLyricsView(),
		gen:          generationView{bar: progress.New(progress.WithDefaultGradient())},
		preview:      newPreviewView(),
		account:      newAccountView(),
		songs:        newSongsView(),
	}
	app.wizard = wizard.NewController(
		wizard.WithDefaultGenre(deps.Config.DefaultGenre()),
		wizard.WithObserver(func(from, to wizard.Stage) {
			app.logInfo("Stage %s -> %s", from.Title(), to.Title())
		}),
	)
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	if user := deps.Auth.CurrentUser(); user != nil {
		app.logInfo("Session opened · signed in as %s", user.Username)
	} else {
		app.logInfo("Session opened · guest")
	}
	return app, nil
}

// buildLandingMenu creates the landing menu items based on auth state
func buildLandingMenu(signedIn bool) []list.Item {
	items := []list.Item{
		menuItem{id: "text", title: "Write your idea", desc: "Describe the song in your own words"},
		menuItem{id: "voice", title: "Record your idea", desc: "Hum, sing or talk it through; we transcribe it"},
	}
	if signedIn {
		items = append(items,
			menuItem{id: "songs", title: "My Songs", desc: "Songs saved to your account"},
			menuItem{id: "account", title: "Sign out", desc: "Forget this device's session"},
		)
	} else {
		items = append(items, menuItem{id: "account", title: "Sign in", desc: "Sign in or create an account to save songs"})
	}
	return append(items, menuItem{id: "quit", title: "Exit", desc: "Leave AuraLynx"})
}

func (a *App) refreshLandingMenu() {
	a.landingMenu.SetItems(buildLandingMenu(a.auth.SignedIn()))
}

func (a *App) logInfo(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Info(format, args...)
}

func (a *App) logWarn(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Warn(format, args...)
}

func (a *App) logError(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Error(format, args...)
}

func (a *App) logProgress(status string) {
	status = strings.TrimSpace(status)
	if status == "" || status == a.lastLogStatus {
		return
	}
	a.lastLogStatus = status
	a.logInfo("%s", status)
}

// syncState moves the screen to whatever stage the controller is on.
func (a *App) syncState() {
	if state, ok := stageStates[a.wizard.Stage()]; ok {
		a.state = state
	}
}

// openOverlay shows an overlay and remembers where to return.
func (a *App) openOverlay(state appState) {
	if a.state != stateAuth && a.state != stateSongs {
		a.returnState = a.state
	}
	a.state = state
}

func (a *App) closeOverlay() {
	a.state = a.returnState
	a.syncState()
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return a.checkHealth()
}

func (a *App) checkHealth() tea.Cmd {
	client, ctx := a.client, a.ctx
	return func() tea.Msg {
		h, err := client.Health(ctx)
		return healthMsg{health: h, err: err}
	}
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resize()
		return a, nil

	case healthMsg:
		if msg.err != nil {
			a.health = "unreachable"
			a.logWarn("Backend health check failed: %v", msg.err)
		} else {
			a.health = msg.health.Status
		}
		return a, nil

	case spinner.TickMsg:
		if !a.busy() {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case lyricsMsg:
		return a.handleLyrics(msg)
	case recordingStoppedMsg:
		return a.handleRecordingStopped(msg)
	case transcribedMsg:
		return a.handleTranscribed(msg)
	case generationStepMsg:
		return a.handleGenerationStep(msg)
	case generationProgressMsg:
		return a.handleGenerationProgress(msg)
	case generationFinishedMsg:
		return a.handleGenerationFinished(msg)
	case downloadedMsg:
		return a.handleDownloaded(msg)
	case uploadedMsg:
		return a.handleUploaded(msg)
	case savedMsg:
		return a.handleSaved(msg)
	case authResultMsg:
		return a.handleAuthResult(msg)
	case songsMsg:
		return a.handleSongs(msg)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a.quit()
		}
		switch a.state {
		case stateLanding:
			return a.updateLanding(msg)
		case stateInput:
			return a.updateInput(msg)
		case stateLyrics:
			return a.updateLyrics(msg)
		case stateGeneration:
			return a.updateGeneration(msg)
		case statePreview:
			return a.updatePreview(msg)
		case stateAuth:
			return a.updateAccount(msg)
		case stateSongs:
			return a.updateSongs(msg)
		}
	}
	return a, nil
}

func (a *App) busy() bool {
	return a.lyricsV.busy || a.input.transcribing || a.gen.running() || a.preview.working || a.account.busy || a.songs.loading
}

// quit cancels in-flight work and releases the microphone before exiting.
func (a *App) quit() (tea.Model, tea.Cmd) {
	a.cancelGeneration()
	if a.recorder != nil && a.recorder.Status() == capture.StatusRecording {
		if _, err := a.recorder.Stop(); err != nil {
			a.logWarn("Stopping recorder on exit: %v", err)
		}
	}
	a.stop()
	a.logInfo("Session closed")
	return a, tea.Quit
}

// back moves the wizard one stage back, keeping what was collected.
func (a *App) back() (tea.Model, tea.Cmd) {
	if err := a.wizard.Back(); err != nil {
		switch {
		case errors.Is(err, wizard.ErrRunInFlight):
			a.statusMsg = "Generation is running; wait for it to finish or press n to start over"
		case errors.Is(err, wizard.ErrNoPreviousStage):
			a.statusMsg = ""
		default:
			a.statusMsg = err.Error()
		}
		return a, nil
	}
	a.statusMsg = ""
	a.syncState()
	return a, a.focusStage()
}

// restart discards the session and detaches any run.
func (a *App) restart() (tea.Model, tea.Cmd) {
	a.cancelGeneration()
	a.wizard.Restart()
	a.gen = generationView{bar: a.gen.bar}
	// Keep the request counters moving so replies to the old session drop.
	inputReq, lyricsReq := a.input.req, a.lyricsV.req
	a.input = newInputView()
	a.input.req = inputReq + 1
	a.lyricsV = newLyricsView()
	a.lyricsV.req = lyricsReq + 1
	a.preview = newPreviewView()
	a.statusMsg = "Started a new song"
	a.syncState()
	a.resize()
	return a, nil
}

// focusStage focuses the main input of the current stage.
func (a *App) focusStage() tea.Cmd {
	switch a.state {
	case stateInput:
		return a.input.focus(a.wizard.Session().InputMode)
	case stateLyrics:
		a.lyricsV.editor.Blur()
		a.lyricsV.editing = false
	}
	return nil
}

func (a *App) updateLanding(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return a.quit()
	case "enter":
		item, ok := a.landingMenu.SelectedItem().(menuItem)
		if !ok {
			return a, nil
		}
		return a.chooseLanding(item.id)
	}
	var cmd tea.Cmd
	a.landingMenu, cmd = a.landingMenu.Update(msg)
	return a, cmd
}

// chooseLanding handles a landing menu choice.
func (a *App) chooseLanding(id string) (tea.Model, tea.Cmd) {
	switch id {
	case "text", "voice":
		mode := wizard.InputText
		if id == "voice" {
			mode = wizard.InputVoice
		}
		if err := a.wizard.Apply(wizard.LandingCompleted{Mode: mode}); err != nil {
			a.statusMsg = err.Error()
			return a, nil
		}
		a.statusMsg = ""
		a.syncState()
		return a, a.focusStage()
	case "songs":
		return a.openSongs()
	case "account":
		if a.auth.SignedIn() {
			if err := a.auth.Logout(); err != nil {
				a.statusMsg = err.Error()
				return a, nil
			}
			a.logInfo("Signed out")
			a.statusMsg = "Signed out"
			a.refreshLandingMenu()
			return a, nil
		}
		return a, a.openAccount(authSignIn)
	case "quit":
		return a.quit()
	}
	return a, nil
}

func (a *App) resize() {
	width, height := a.width, a.height
	if width <= 0 {
		width = 100
	}
	if height <= 0 {
		height = 30
	}
	inner := max(20, width-rightPanelWidth(width)-10)
	a.landingMenu.SetSize(inner, max(10, height-14))
	a.input.resize(inner, max(5, height-18))
	a.lyricsV.resize(inner, max(5, height-18))
	a.gen.bar.Width = max(10, inner-4)
	a.preview.resize(inner, max(4, height-22))
	a.songs.list.SetSize(inner, max(8, height-14))
}

func rightPanelWidth(width int) int {
	right := max(32, width/3)
	if width-right-4 < 40 {
		return 0
	}
	return right
}

func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	rightWidth := rightPanelWidth(width)
	leftWidth := width - rightWidth - 4
	if rightWidth == 0 {
		leftWidth = width - 4
	}
	var content string
	switch a.state {
	case stateLanding:
		content = a.landingMenu.View()
	case stateInput:
		content = a.renderInput()
	case stateLyrics:
		content = a.renderLyrics()
	case stateGeneration:
		content = a.renderGeneration()
	case statePreview:
		content = a.renderPreview()
	case stateAuth:
		content = a.renderAccount()
	case stateSongs:
		content = a.renderSongs()
	}
	return a.renderBoard(content, leftWidth, rightWidth)
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, total := a.logbook.Tail(6)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("LOG · %s (%d)", fileName, total))
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
	return box
}

func (a *App) renderBoard(mainContent string, leftWidth, rightWidth int) string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("◉ AURALYNX")
	left := lipgloss.JoinVertical(lipgloss.Left,
		a.renderStagePanel(),
		"",
		mainContent,
	)
	leftBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(max(20, leftWidth)).
		Render(left)
	var body string
	if rightWidth > 0 {
		rightBox := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1).
			Width(max(20, rightWidth)).
			Render(a.renderSessionPanel())
		body = lipgloss.JoinHorizontal(lipgloss.Top, leftBox, rightBox)
	} else {
		body = leftBox
	}
	sections := []string{header, body}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(a.statusMsg)
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) renderStagePanel() string {
	stage := a.wizard.Stage()
	stages := wizard.Stages()
	var crumbs []string
	for _, s := range stages {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
		switch {
		case s == stage:
			style = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFD166"))
		case s.Index() < stage.Index():
			style = lipgloss.NewStyle().Foreground(lipgloss.Color("#06D6A0"))
		}
		crumbs = append(crumbs, style.Render(s.Title()))
	}
	title := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%s (%d/%d)", stage.Title(), stage.Index()+1, len(stages)))
	return lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(crumbs, " › "))
}

func (a *App) renderSessionPanel() string {
	label := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	var lines []string
	lines = append(lines, lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")).Render("SESSION"))
	if user := a.auth.CurrentUser(); user != nil {
		lines = append(lines, label.Render("account ")+user.Username)
	} else {
		lines = append(lines, label.Render("account ")+"guest")
	}
	backend := a.health
	if backend == "" {
		backend = "checking..."
	}
	lines = append(lines, label.Render("backend ")+backend)
	sess := a.wizard.Session()
	lines = append(lines, label.Render("mode    ")+string(sess.InputMode))
	lines = append(lines, label.Render("genre   ")+sess.Genre)
	if a.gen.running() {
		lines = append(lines, label.Render("run     ")+fmt.Sprintf("%s %d%%", a.gen.step.Title(), a.gen.progress))
	}
	return strings.Join(lines, "\n")
}

func titleCase(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	lower := strings.ToLower(value)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

func hint(text string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Render(text)
}

func errorText(text string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Render(text)
}
