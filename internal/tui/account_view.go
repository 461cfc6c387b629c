package tui

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/auralynx/internal/api"
	"github.com/kingrea/auralynx/internal/auth"
	"github.com/kingrea/auralynx/internal/export"
)

type authMode int

const (
	authSignIn authMode = iota
	authRegister
)

const (
	fieldUsername = iota
	fieldEmail
	fieldPassword
)

type authResultMsg struct {
	user     *api.User
	register bool
	err      error
}

type songsMsg struct {
	songs []api.Song
	err   error
}

// accountView is the sign in / register overlay.
type accountView struct {
	mode   authMode
	fields []textinput.Model
	focus  int
	busy   bool
	err    string
}

func newAccountView() accountView {
	username := textinput.New()
	username.Placeholder = "username"
	username.Prompt = "user  "
	email := textinput.New()
	email.Placeholder = "email (optional)"
	email.Prompt = "email "
	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = "pass  "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	return accountView{fields: []textinput.Model{username, email, password}}
}

// visible lists the field indexes shown in the current mode.
func (v *accountView) visible() []int {
	if v.mode == authRegister {
		return []int{fieldUsername, fieldEmail, fieldPassword}
	}
	return []int{fieldUsername, fieldPassword}
}

func (v *accountView) setFocus(field int) tea.Cmd {
	v.focus = field
	var cmd tea.Cmd
	for i := range v.fields {
		if i == field {
			cmd = v.fields[i].Focus()
		} else {
			v.fields[i].Blur()
		}
	}
	return cmd
}

func (v *accountView) move(step int) tea.Cmd {
	order := v.visible()
	pos := 0
	for i, f := range order {
		if f == v.focus {
			pos = i
		}
	}
	pos = (pos + step + len(order)) % len(order)
	return v.setFocus(order[pos])
}

func (a *App) openAccount(mode authMode) tea.Cmd {
	a.account = newAccountView()
	a.account.mode = mode
	a.openOverlay(stateAuth)
	return a.account.setFocus(fieldUsername)
}

func (a *App) updateAccount(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.account.busy {
		return a, nil
	}
	switch msg.String() {
	case "esc":
		a.closeOverlay()
		return a, a.focusStage()
	case "ctrl+r":
		if a.account.mode == authSignIn {
			a.account.mode = authRegister
		} else {
			a.account.mode = authSignIn
		}
		a.account.err = ""
		return a, a.account.setFocus(fieldUsername)
	case "tab", "down":
		return a, a.account.move(1)
	case "shift+tab", "up":
		return a, a.account.move(-1)
	case "enter":
		order := a.account.visible()
		if a.account.focus != order[len(order)-1] {
			return a, a.account.move(1)
		}
		return a.submitAccount()
	}
	var cmd tea.Cmd
	a.account.fields[a.account.focus], cmd = a.account.fields[a.account.focus].Update(msg)
	return a, cmd
}

func (a *App) submitAccount() (tea.Model, tea.Cmd) {
	username := strings.TrimSpace(a.account.fields[fieldUsername].Value())
	email := strings.TrimSpace(a.account.fields[fieldEmail].Value())
	password := a.account.fields[fieldPassword].Value()
	if username == "" || password == "" {
		a.account.err = "Username and password are required"
		return a, nil
	}
	a.account.busy = true
	a.account.err = ""
	mgr, ctx, register := a.auth, a.ctx, a.account.mode == authRegister
	return a, tea.Batch(a.spinner.Tick, func() tea.Msg {
		var (
			user *api.User
			err  error
		)
		if register {
			user, err = mgr.Register(ctx, username, email, password)
		} else {
			user, err = mgr.Login(ctx, username, password)
		}
		return authResultMsg{user: user, register: register, err: err}
	})
}

func (a *App) handleAuthResult(msg authResultMsg) (tea.Model, tea.Cmd) {
	a.account.busy = false
	if msg.err != nil {
		a.account.err = authErrorText(msg.err)
		a.logWarn("Authentication failed: %v", msg.err)
		return a, nil
	}
	verb := "Signed in"
	if msg.register {
		verb = "Account created; signed in"
	}
	a.logInfo("%s as %s", verb, msg.user.Username)
	a.statusMsg = fmt.Sprintf("%s as %s", verb, msg.user.Username)
	a.refreshLandingMenu()
	a.closeOverlay()
	return a, a.focusStage()
}

// authErrorText turns auth failures into the inline message.
func authErrorText(err error) string {
	var regErr *auth.RegistrationError
	var verr *api.ValidationError
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Invalid username or password"
	case errors.As(err, &regErr):
		return regErr.Detail
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, auth.ErrSessionInvalid):
		return "Signed in, but the session could not be verified. Try again."
	default:
		return err.Error()
	}
}

func (a *App) renderAccount() string {
	var b strings.Builder
	if a.account.mode == authRegister {
		b.WriteString("Create an account\n\n")
	} else {
		b.WriteString("Sign in\n\n")
	}
	for _, f := range a.account.visible() {
		b.WriteString(a.account.fields[f].View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if a.account.busy {
		b.WriteString(a.spinner.View() + " contacting server...\n")
	}
	if a.account.err != "" {
		b.WriteString(errorText(a.account.err))
		b.WriteString("\n")
	}
	other := "ctrl+r create an account instead"
	if a.account.mode == authRegister {
		other = "ctrl+r sign in instead"
	}
	b.WriteString(hint("tab next field · enter submit · " + other + " · esc cancel"))
	return b.String()
}

// songItem implements list.Item for a saved song.
type songItem struct {
	song api.Song
}

func (i songItem) Title() string { return i.song.Title }
func (i songItem) Description() string {
	desc := i.song.Genre
	if !i.song.CreatedAt.IsZero() {
		desc += " · " + i.song.CreatedAt.Local().Format("2006-01-02 15:04")
	}
	return desc
}
func (i songItem) FilterValue() string { return i.song.Title }

// songsView is the My Songs overlay.
type songsView struct {
	list    list.Model
	songs   []api.Song
	loading bool
	err     string
}

func newSongsView() songsView {
	l := list.New(nil, list.NewDefaultDelegate(), 60, 14)
	l.Title = "My Songs"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	return songsView{list: l}
}

func (a *App) openSongs() (tea.Model, tea.Cmd) {
	if !a.auth.SignedIn() {
		a.statusMsg = "Sign in to see your songs"
		return a, a.openAccount(authSignIn)
	}
	a.openOverlay(stateSongs)
	a.songs.loading = true
	a.songs.err = ""
	client, ctx := a.client, a.ctx
	return a, tea.Batch(a.spinner.Tick, func() tea.Msg {
		songs, err := client.ListSongs(ctx)
		return songsMsg{songs: songs, err: err}
	})
}

func (a *App) handleSongs(msg songsMsg) (tea.Model, tea.Cmd) {
	a.songs.loading = false
	if msg.err != nil {
		a.songs.err = api.Detail(msg.err, msg.err.Error())
		a.logError("Listing songs failed: %v", msg.err)
		return a, nil
	}
	a.songs.songs = msg.songs
	items := make([]list.Item, len(msg.songs))
	for i, s := range msg.songs {
		items[i] = songItem{song: s}
	}
	return a, a.songs.list.SetItems(items)
}

func (a *App) updateSongs(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		a.closeOverlay()
		return a, a.focusStage()
	case "enter":
		item, ok := a.songs.list.SelectedItem().(songItem)
		if !ok {
			return a, nil
		}
		target := a.client.AssetURL(item.song.MixURL)
		if err := a.open(target); err != nil {
			a.statusMsg = fmt.Sprintf("Could not open player: %v", err)
			return a, nil
		}
		a.statusMsg = fmt.Sprintf("Opened %s", item.song.Title)
		return a, nil
	case "x":
		return a.exportSongs()
	}
	var cmd tea.Cmd
	a.songs.list, cmd = a.songs.list.Update(msg)
	return a, cmd
}

// exportSongs writes the listed songs to songs.csv in the export directory.
func (a *App) exportSongs() (tea.Model, tea.Cmd) {
	if len(a.songs.songs) == 0 {
		a.statusMsg = "No songs to export"
		return a, nil
	}
	dir := a.config.ExportDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		a.statusMsg = err.Error()
		return a, nil
	}
	path := filepath.Join(dir, "songs.csv")
	f, err := os.Create(path)
	if err != nil {
		a.statusMsg = err.Error()
		return a, nil
	}
	defer f.Close()
	if err := export.WriteSongsCSV(f, a.songs.songs); err != nil {
		a.statusMsg = err.Error()
		return a, nil
	}
	a.statusMsg = fmt.Sprintf("Exported %d songs to %s", len(a.songs.songs), path)
	a.logInfo("Exported song list · %s", path)
	return a, nil
}

func (a *App) renderSongs() string {
	switch {
	case a.songs.loading:
		return a.spinner.View() + " Loading your songs..."
	case a.songs.err != "":
		return errorText(a.songs.err) + "\n\n" + hint("esc back")
	case len(a.songs.songs) == 0:
		return "No saved songs yet.\n\n" + hint("esc back")
	}
	return a.songs.list.View() + "\n" + hint("enter open · x export csv · esc back")
}
