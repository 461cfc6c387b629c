package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/auralynx/internal/api"
	"github.com/kingrea/auralynx/internal/export"
)

type downloadedMsg struct {
	path     string
	duration time.Duration
	// upload continues into an S3 upload once the file is on disk.
	upload bool
	err    error
}

type uploadedMsg struct {
	link string
	err  error
}

type savedMsg struct {
	song *api.Song
	err  error
}

// previewView is the last stage: listen, download, upload, save.
type previewView struct {
	lyrics   viewport.Model
	title    textinput.Model
	naming   bool
	working  bool
	duration int
	file     string
	link     string
	saved    *api.Song
}

func newPreviewView() previewView {
	title := textinput.New()
	title.Placeholder = "Song title"
	title.CharLimit = 255
	return previewView{lyrics: viewport.New(60, 8), title: title}
}

func (v *previewView) resize(width, height int) {
	v.lyrics.Width = width
	v.lyrics.Height = height
	v.title.Width = max(10, width-4)
}

func (v *previewView) enter(durationSeconds int, lyrics string) {
	v.duration = durationSeconds
	v.file = ""
	v.link = ""
	v.saved = nil
	v.naming = false
	v.lyrics.SetContent(lyrics)
	v.lyrics.GotoTop()
}

func (a *App) updatePreview(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.preview.naming {
		switch msg.String() {
		case "esc":
			a.preview.naming = false
			a.preview.title.Blur()
			return a, nil
		case "enter":
			return a.saveSong()
		}
		var cmd tea.Cmd
		a.preview.title, cmd = a.preview.title.Update(msg)
		return a, cmd
	}
	switch msg.String() {
	case "n":
		return a.restart()
	case "q":
		return a.quit()
	}
	if a.preview.working {
		return a, nil
	}
	switch msg.String() {
	case "o", "enter":
		return a.openMix()
	case "d":
		return a, a.download(false)
	case "u":
		if a.uploader == nil {
			a.statusMsg = "S3 export is not configured (export.s3 in config.yaml)"
			return a, nil
		}
		if a.preview.file != "" {
			return a, a.upload(a.preview.file)
		}
		return a, a.download(true)
	case "s":
		if !a.auth.SignedIn() {
			a.statusMsg = "Sign in to save songs to your account"
			return a, a.openAccount(authSignIn)
		}
		if a.preview.saved != nil {
			a.statusMsg = "Already saved"
			return a, nil
		}
		a.preview.naming = true
		return a, a.preview.title.Focus()
	}
	var cmd tea.Cmd
	a.preview.lyrics, cmd = a.preview.lyrics.Update(msg)
	return a, cmd
}

// openMix opens the downloaded file if there is one, else the mix URL.
func (a *App) openMix() (tea.Model, tea.Cmd) {
	target := a.preview.file
	if target == "" {
		target = a.client.AssetURL(a.wizard.Session().FinalMixURL)
	}
	if err := a.open(target); err != nil {
		a.statusMsg = fmt.Sprintf("Could not open player: %v", err)
		a.logWarn("Open %s failed: %v", target, err)
		return a, nil
	}
	a.statusMsg = "Opened in your player"
	return a, nil
}

func (a *App) download(thenUpload bool) tea.Cmd {
	a.preview.working = true
	a.statusMsg = "Downloading..."
	client, ctx := a.client, a.ctx
	url, dir := a.wizard.Session().FinalMixURL, a.config.ExportDir()
	return tea.Batch(a.spinner.Tick, func() tea.Msg {
		path, err := export.Download(ctx, client, url, dir)
		if err != nil {
			return downloadedMsg{err: err}
		}
		msg := downloadedMsg{path: path, upload: thenUpload}
		if d, err := export.Duration(path); err == nil {
			msg.duration = d
		}
		return msg
	})
}

func (a *App) handleDownloaded(msg downloadedMsg) (tea.Model, tea.Cmd) {
	a.preview.working = false
	if msg.err != nil {
		a.statusMsg = fmt.Sprintf("Download failed: %v", msg.err)
		a.logError("Download failed: %v", msg.err)
		return a, nil
	}
	a.preview.file = msg.path
	if a.preview.duration == 0 && msg.duration > 0 {
		a.preview.duration = int(msg.duration.Round(time.Second) / time.Second)
	}
	a.statusMsg = fmt.Sprintf("Saved to %s", msg.path)
	a.logInfo("Downloaded mix · %s", msg.path)
	if msg.upload {
		return a, a.upload(msg.path)
	}
	return a, nil
}

func (a *App) upload(path string) tea.Cmd {
	a.preview.working = true
	a.statusMsg = "Uploading..."
	uploader, ctx := a.uploader, a.ctx
	return tea.Batch(a.spinner.Tick, func() tea.Msg {
		link, err := uploader.Upload(ctx, path)
		return uploadedMsg{link: link, err: err}
	})
}

func (a *App) handleUploaded(msg uploadedMsg) (tea.Model, tea.Cmd) {
	a.preview.working = false
	if msg.err != nil {
		a.statusMsg = fmt.Sprintf("Upload failed: %v", msg.err)
		a.logError("Upload failed: %v", msg.err)
		return a, nil
	}
	a.preview.link = msg.link
	a.statusMsg = "Uploaded; the share link is valid for 24 hours"
	a.logInfo("Uploaded mix to S3")
	return a, nil
}

func (a *App) saveSong() (tea.Model, tea.Cmd) {
	title := strings.TrimSpace(a.preview.title.Value())
	if title == "" {
		a.statusMsg = "Give your song a title"
		return a, nil
	}
	sess := a.wizard.Session()
	song := api.NewSong{
		Title:           title,
		Genre:           sess.Genre,
		Lyrics:          sess.Lyrics,
		InstrumentalURL: sess.InstrumentalURL,
		VocalsURL:       sess.VocalsURL,
		MixURL:          sess.FinalMixURL,
	}
	if a.preview.duration > 0 {
		d := a.preview.duration
		song.DurationSeconds = &d
	}
	a.preview.naming = false
	a.preview.title.Blur()
	a.preview.working = true
	a.statusMsg = "Saving..."
	client, ctx := a.client, a.ctx
	return a, tea.Batch(a.spinner.Tick, func() tea.Msg {
		created, err := client.CreateSong(ctx, song)
		return savedMsg{song: created, err: err}
	})
}

func (a *App) handleSaved(msg savedMsg) (tea.Model, tea.Cmd) {
	a.preview.working = false
	if msg.err != nil {
		var saveErr *api.SaveError
		if errors.As(msg.err, &saveErr) {
			a.statusMsg = fmt.Sprintf("Save failed: %s", saveErr.Detail)
		} else {
			a.statusMsg = fmt.Sprintf("Save failed: %v", msg.err)
		}
		a.logError("Save song failed: %v", msg.err)
		return a, nil
	}
	a.preview.saved = msg.song
	a.statusMsg = fmt.Sprintf("Saved %q to your account", msg.song.Title)
	a.logInfo("Saved song %d · %s", msg.song.ID, msg.song.Title)
	return a, nil
}

func (a *App) renderPreview() string {
	sess := a.wizard.Session()
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Your %s song is ready", titleCase(sess.Genre)))
	if a.preview.duration > 0 {
		b.WriteString(fmt.Sprintf(" · %s", time.Duration(a.preview.duration)*time.Second))
	}
	b.WriteString("\n\n")
	b.WriteString(a.preview.lyrics.View())
	b.WriteString("\n\n")
	b.WriteString(hint("mix          ") + a.client.AssetURL(sess.FinalMixURL) + "\n")
	b.WriteString(hint("instrumental ") + a.client.AssetURL(sess.InstrumentalURL) + "\n")
	b.WriteString(hint("vocals       ") + a.client.AssetURL(sess.VocalsURL) + "\n")
	if a.preview.file != "" {
		b.WriteString(hint("file         ") + a.preview.file + "\n")
	}
	if a.preview.link != "" {
		b.WriteString(hint("share        ") + a.preview.link + "\n")
	}
	if a.preview.saved != nil {
		b.WriteString(hint("saved as     ") + a.preview.saved.Title + "\n")
	}
	b.WriteString("\n")
	if a.preview.naming {
		b.WriteString(a.preview.title.View())
		b.WriteString("\n")
		b.WriteString(hint("enter save · esc cancel"))
		return b.String()
	}
	if a.preview.working {
		b.WriteString(a.spinner.View() + " working...\n")
	}
	b.WriteString(hint("o open · d download · u upload · s save to account · n new song · q quit"))
	return b.String()
}
