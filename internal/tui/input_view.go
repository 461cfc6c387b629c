package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/auralynx/internal/capture"
	"github.com/kingrea/auralynx/internal/wizard"
)

type recordingStoppedMsg struct {
	path string
	err  error
}

type transcribedMsg struct {
	req  int
	text string
	err  error
}

// inputView holds the idea textarea and, in voice mode, the audio path.
type inputView struct {
	idea         textarea.Model
	audio        textinput.Model
	transcribing bool
	transcribed  bool
	// req drops transcripts the user walked away from.
	req int
}

func newInputView() inputView {
	idea := textarea.New()
	idea.Placeholder = "A road trip with old friends, windows down, summer ending..."
	idea.CharLimit = 2000
	idea.ShowLineNumbers = false
	audio := textinput.New()
	audio.Placeholder = "path to an audio file, or ctrl+r to record"
	audio.Prompt = "🎙 "
	return inputView{idea: idea, audio: audio}
}

func (v *inputView) resize(width, height int) {
	v.idea.SetWidth(width)
	v.idea.SetHeight(min(height, 10))
	v.audio.Width = max(10, width-4)
}

// focus picks the field the user types into for mode. Voice mode edits the
// transcript once one exists.
func (v *inputView) focus(mode wizard.InputMode) tea.Cmd {
	if mode == wizard.InputVoice && !v.transcribed {
		v.idea.Blur()
		return v.audio.Focus()
	}
	v.audio.Blur()
	return v.idea.Focus()
}

func (a *App) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	mode := a.wizard.Session().InputMode
	switch msg.String() {
	case "esc":
		if a.recorder.Status() == capture.StatusRecording {
			return a, a.stopRecording()
		}
		if a.input.transcribing {
			a.input.req++
			a.input.transcribing = false
			a.logInfo("Transcription abandoned")
		}
		return a.back()
	case "ctrl+s":
		return a.submitIdea()
	case "ctrl+r":
		if mode != wizard.InputVoice {
			return a, nil
		}
		if a.recorder.Status() == capture.StatusRecording {
			return a, a.stopRecording()
		}
		return a.startRecording()
	case "enter":
		if mode == wizard.InputVoice && a.input.audio.Focused() {
			return a.transcribe(a.input.audio.Value())
		}
	}
	var cmd tea.Cmd
	if a.input.audio.Focused() {
		a.input.audio, cmd = a.input.audio.Update(msg)
	} else {
		a.input.idea, cmd = a.input.idea.Update(msg)
	}
	return a, cmd
}

// submitIdea completes the Input stage with the typed or transcribed text.
func (a *App) submitIdea() (tea.Model, tea.Cmd) {
	if a.input.transcribing || a.recorder.Status() == capture.StatusRecording {
		a.statusMsg = "Finish recording first"
		return a, nil
	}
	text := strings.TrimSpace(a.input.idea.Value())
	if text == "" {
		a.statusMsg = "Describe your idea first"
		return a, nil
	}
	if err := a.wizard.Apply(wizard.InputCompleted{Text: text}); err != nil {
		a.statusMsg = err.Error()
		return a, nil
	}
	a.statusMsg = ""
	a.syncState()
	return a, a.startLyrics()
}

func (a *App) startRecording() (tea.Model, tea.Cmd) {
	name := fmt.Sprintf("take-%s.wav", time.Now().Format("20060102-150405"))
	out := filepath.Join(a.config.RecordingsDir(), name)
	if err := a.recorder.Start(a.ctx, out); err != nil {
		a.statusMsg = fmt.Sprintf("Could not start recording: %v", err)
		a.logError("Recorder start failed: %v", err)
		return a, nil
	}
	a.logInfo("Recording started · %s", name)
	a.statusMsg = "Recording... press ctrl+r to stop"
	return a, nil
}

func (a *App) stopRecording() tea.Cmd {
	recorder := a.recorder
	return func() tea.Msg {
		path, err := recorder.Stop()
		return recordingStoppedMsg{path: path, err: err}
	}
}

func (a *App) handleRecordingStopped(msg recordingStoppedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		a.statusMsg = fmt.Sprintf("Recording failed: %v", msg.err)
		a.logError("Recorder stop failed: %v", msg.err)
		return a, nil
	}
	a.input.audio.SetValue(msg.path)
	a.logInfo("Recording saved · %s", filepath.Base(msg.path))
	if a.state != stateInput {
		return a, nil
	}
	return a.transcribe(msg.path)
}

// transcribe sends an audio file to the backend.
func (a *App) transcribe(path string) (tea.Model, tea.Cmd) {
	path = strings.TrimSpace(path)
	if path == "" {
		a.statusMsg = "Record a take or enter the path of an audio file"
		return a, nil
	}
	if a.input.transcribing {
		return a, nil
	}
	a.input.transcribing = true
	a.input.req++
	a.statusMsg = "Transcribing..."
	client, ctx, req := a.client, a.ctx, a.input.req
	return a, tea.Batch(a.spinner.Tick, func() tea.Msg {
		text, err := client.Transcribe(ctx, path)
		return transcribedMsg{req: req, text: text, err: err}
	})
}

func (a *App) handleTranscribed(msg transcribedMsg) (tea.Model, tea.Cmd) {
	if msg.req != a.input.req {
		return a, nil
	}
	a.input.transcribing = false
	if msg.err != nil {
		a.statusMsg = fmt.Sprintf("Transcription failed: %v", msg.err)
		a.logError("Transcription failed: %v", msg.err)
		return a, nil
	}
	a.input.transcribed = true
	a.input.idea.SetValue(msg.text)
	a.statusMsg = "Check the transcript, then press ctrl+s"
	a.logInfo("Transcribed %d characters", len(msg.text))
	if a.state != stateInput {
		return a, nil
	}
	return a, a.input.focus(wizard.InputVoice)
}

func (a *App) renderInput() string {
	mode := a.wizard.Session().InputMode
	var b strings.Builder
	if mode == wizard.InputVoice {
		b.WriteString("Record your idea, or point at an audio file.\n\n")
		status := "standby"
		if a.recorder.Status() == capture.StatusRecording {
			status = fmt.Sprintf("recording %s", a.recorder.Elapsed().Round(time.Second))
		}
		b.WriteString(fmt.Sprintf("Microphone: %s\n", status))
		b.WriteString(a.input.audio.View())
		b.WriteString("\n\n")
		if a.input.transcribing {
			b.WriteString(a.spinner.View() + " Transcribing...\n\n")
		}
		if a.input.transcribed {
			b.WriteString("Transcript:\n")
			b.WriteString(a.input.idea.View())
			b.WriteString("\n")
		}
		b.WriteString(hint("ctrl+r record/stop · enter transcribe · ctrl+s continue · esc back"))
		return b.String()
	}
	b.WriteString("What should your song be about?\n\n")
	b.WriteString(a.input.idea.View())
	b.WriteString("\n")
	b.WriteString(hint("ctrl+s continue · esc back"))
	return b.String()
}
