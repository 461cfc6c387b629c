package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/auralynx/internal/lyrics"
	"github.com/kingrea/auralynx/internal/wizard"
)

type lyricsMsg struct {
	req    int
	result lyrics.Result
}

// lyricsView shows generated lyrics and lets the user edit them or switch
// genre.
type lyricsView struct {
	editor  textarea.Model
	view    viewport.Model
	editing bool
	busy    bool
	genre   string
	notice  string
	// req drops responses from superseded requests.
	req int
}

func newLyricsView() lyricsView {
	editor := textarea.New()
	editor.CharLimit = 0
	editor.ShowLineNumbers = false
	return lyricsView{editor: editor, view: viewport.New(60, 12)}
}

func (v *lyricsView) resize(width, height int) {
	v.editor.SetWidth(width)
	v.editor.SetHeight(height)
	v.view.Width = width
	v.view.Height = height
}

func (v *lyricsView) setLyrics(text string) {
	v.editor.SetValue(text)
	v.view.SetContent(text)
	v.view.GotoTop()
}

// startLyrics requests lyrics for the session's idea in the picked genre.
func (a *App) startLyrics() tea.Cmd {
	sess := a.wizard.Session()
	if a.lyricsV.genre == "" {
		a.lyricsV.genre = sess.Genre
	}
	a.lyricsV.req++
	a.lyricsV.busy = true
	a.lyricsV.notice = ""
	a.lyricsV.editing = false
	a.lyricsV.editor.Blur()
	req, genre, text := a.lyricsV.req, a.lyricsV.genre, sess.InputText
	svc, ctx := a.lyrics, a.ctx
	a.logInfo("Requesting %s lyrics", genre)
	return tea.Batch(a.spinner.Tick, func() tea.Msg {
		return lyricsMsg{req: req, result: svc.Generate(ctx, text, genre)}
	})
}

func (a *App) handleLyrics(msg lyricsMsg) (tea.Model, tea.Cmd) {
	if msg.req != a.lyricsV.req {
		return a, nil
	}
	a.lyricsV.busy = false
	a.lyricsV.setLyrics(msg.result.Lyrics)
	if msg.result.Fallback {
		a.lyricsV.notice = "The lyrics service is unavailable, so these come from a local template. Edit them freely."
		a.logWarn("Lyrics fallback (%s template): %v", msg.result.TemplateID, msg.result.Err)
	} else {
		a.logProgress(fmt.Sprintf("Lyrics ready · %s", msg.result.Genre))
	}
	return a, nil
}

func (a *App) updateLyrics(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.lyricsV.editing {
		switch msg.String() {
		case "esc", "ctrl+s":
			a.lyricsV.editing = false
			a.lyricsV.editor.Blur()
			a.lyricsV.view.SetContent(a.lyricsV.editor.Value())
			return a, nil
		}
		var cmd tea.Cmd
		a.lyricsV.editor, cmd = a.lyricsV.editor.Update(msg)
		return a, cmd
	}
	switch msg.String() {
	case "esc":
		return a.back()
	}
	if a.lyricsV.busy {
		return a, nil
	}
	switch msg.String() {
	case "e":
		a.lyricsV.editing = true
		return a, a.lyricsV.editor.Focus()
	case "tab", "right", "l":
		a.lyricsV.genre = wizard.NextGenre(a.lyricsV.genre, 1)
		return a, a.startLyrics()
	case "shift+tab", "left", "h":
		a.lyricsV.genre = wizard.NextGenre(a.lyricsV.genre, -1)
		return a, a.startLyrics()
	case "r":
		return a, a.startLyrics()
	case "D":
		if err := a.config.SetDefaultGenre(a.lyricsV.genre); err != nil {
			a.statusMsg = err.Error()
			return a, nil
		}
		a.statusMsg = fmt.Sprintf("%s is now the default genre", a.lyricsV.genre)
		return a, nil
	case "enter":
		return a.submitLyrics()
	}
	var cmd tea.Cmd
	a.lyricsV.view, cmd = a.lyricsV.view.Update(msg)
	return a, cmd
}

// submitLyrics completes the Lyrics stage and starts generation.
func (a *App) submitLyrics() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(a.lyricsV.editor.Value())
	if text == "" {
		a.statusMsg = "Lyrics are empty"
		return a, nil
	}
	if err := a.wizard.Apply(wizard.LyricsCompleted{Lyrics: text, Genre: a.lyricsV.genre}); err != nil {
		a.statusMsg = err.Error()
		return a, nil
	}
	a.statusMsg = ""
	a.syncState()
	return a, a.startGeneration(false)
}

func (a *App) renderLyrics() string {
	var b strings.Builder
	genre := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFD166")).Render(a.lyricsV.genre)
	b.WriteString(fmt.Sprintf("Genre: ‹ %s ›\n\n", genre))
	switch {
	case a.lyricsV.busy:
		b.WriteString(a.spinner.View() + " Writing lyrics...\n")
	case a.lyricsV.editing:
		b.WriteString(a.lyricsV.editor.View())
		b.WriteString("\n")
		b.WriteString(hint("esc done editing"))
		return b.String()
	default:
		if a.lyricsV.notice != "" {
			b.WriteString(errorText(a.lyricsV.notice))
			b.WriteString("\n\n")
		}
		b.WriteString(a.lyricsV.view.View())
		b.WriteString("\n")
	}
	b.WriteString(hint("enter generate song · e edit · ←/→ genre · r regenerate · D make genre default · esc back"))
	return b.String()
}
