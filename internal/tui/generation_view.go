package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/auralynx/internal/generation"
	"github.com/kingrea/auralynx/internal/store"
	"github.com/kingrea/auralynx/internal/wizard"
)

type generationStepMsg struct {
	token wizard.RunToken
	step  generation.Step
	ch    <-chan tea.Msg
}

type generationProgressMsg struct {
	token    wizard.RunToken
	progress int
	ch       <-chan tea.Msg
}

type generationFinishedMsg struct {
	token  wizard.RunToken
	run    *generation.Run
	result generation.Result
	err    error
}

// generationView mirrors the run for rendering. The run itself is only
// touched by the worker goroutine until it finishes.
type generationView struct {
	bar      progress.Model
	run      *generation.Run
	token    wizard.RunToken
	cancel   context.CancelFunc
	step     generation.Step
	progress int
	err      error
}

func (v generationView) running() bool {
	return v.token != 0
}

// startGeneration admits a run and executes it in the background. A failed
// run with unchanged lyrics resumes unless fresh is set.
func (a *App) startGeneration(fresh bool) tea.Cmd {
	token, err := a.wizard.BeginRun()
	if err != nil {
		a.statusMsg = err.Error()
		return nil
	}
	sess := a.wizard.Session()
	switch {
	case a.gen.run == nil || a.gen.run.Lyrics != sess.Lyrics || a.gen.run.Genre != sess.Genre:
		a.gen.run = a.orchestrator.NewRun(sess.Lyrics, sess.Genre)
	case fresh:
		a.orchestrator.Reset(a.gen.run)
	}
	run, orch := a.gen.run, a.orchestrator
	ctx, cancel := context.WithCancel(a.ctx)
	a.gen.token = token
	a.gen.cancel = cancel
	a.gen.step = run.Step
	a.gen.progress = run.Progress
	a.gen.err = nil
	if run.Failed() {
		a.logInfo("Resuming generation %s", run.ID)
	} else {
		a.logInfo("Generation %s started · %s", run.ID, run.Genre)
	}

	ch := make(chan tea.Msg, 8)
	go func() {
		defer close(ch)
		result, err := orch.Execute(ctx, run, generation.Hooks{
			Step: func(s generation.Step) {
				ch <- generationStepMsg{token: token, step: s, ch: ch}
			},
			Progress: func(p int) {
				ch <- generationProgressMsg{token: token, progress: p, ch: ch}
			},
		})
		ch <- generationFinishedMsg{token: token, run: run, result: result, err: err}
	}()
	return tea.Batch(a.spinner.Tick, waitForGeneration(ch))
}

// waitForGeneration delivers the next update from a run.
func waitForGeneration(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

// cancelGeneration detaches the current run. Its remaining updates are
// drained and ignored.
func (a *App) cancelGeneration() {
	if a.gen.cancel != nil {
		a.gen.cancel()
	}
	a.gen.cancel = nil
	a.gen.token = 0
}

func (a *App) handleGenerationStep(msg generationStepMsg) (tea.Model, tea.Cmd) {
	if msg.token == a.gen.token {
		a.gen.step = msg.step
		a.logProgress(fmt.Sprintf("Generation · %s", msg.step.Title()))
	}
	return a, waitForGeneration(msg.ch)
}

func (a *App) handleGenerationProgress(msg generationProgressMsg) (tea.Model, tea.Cmd) {
	if msg.token == a.gen.token {
		a.gen.progress = msg.progress
	}
	return a, waitForGeneration(msg.ch)
}

func (a *App) handleGenerationFinished(msg generationFinishedMsg) (tea.Model, tea.Cmd) {
	if msg.token != a.gen.token {
		// Detached by restart or quit.
		a.wizard.EndRun(msg.token)
		return a, nil
	}
	if a.gen.cancel != nil {
		a.gen.cancel()
	}
	a.gen.cancel = nil
	a.gen.token = 0

	if msg.err != nil {
		a.wizard.EndRun(msg.token)
		a.gen.err = msg.err
		a.gen.step = msg.run.Step
		a.gen.progress = msg.run.Progress
		step, _ := generation.FailedStep(msg.err)
		a.logError("Generation %s failed at %s: %v", msg.run.ID, step, msg.err)
		a.recordRun(msg.run, msg.err)
		a.statusMsg = ""
		return a, nil
	}

	res := msg.result
	err := a.wizard.Complete(msg.token, wizard.GenerationCompleted{
		InstrumentalURL: res.InstrumentalURL,
		VocalsURL:       res.VocalsURL,
		FinalMixURL:     res.FinalMixURL,
	})
	if err != nil {
		a.wizard.EndRun(msg.token)
		a.gen.err = err
		a.logError("Generation %s finished but could not be applied: %v", msg.run.ID, err)
		return a, nil
	}
	a.gen.step = generation.StepComplete
	a.gen.progress = 100
	a.logInfo("Generation %s complete", msg.run.ID)
	a.recordRun(msg.run, nil)
	a.preview.enter(res.DurationSeconds, a.wizard.Session().Lyrics)
	a.syncState()
	return a, nil
}

// recordRun writes a history row for a terminated run.
func (a *App) recordRun(run *generation.Run, runErr error) {
	if a.store == nil || run == nil {
		return
	}
	sess := a.wizard.Session()
	row := &store.Run{
		InputText:       sess.InputText,
		Genre:           run.Genre,
		Lyrics:          run.Lyrics,
		InstrumentalURL: run.Result.InstrumentalURL,
		VocalsURL:       run.Result.VocalsURL,
		MixURL:          run.Result.FinalMixURL,
		DurationSeconds: run.Result.DurationSeconds,
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
		Status:          store.RunComplete,
	}
	if runErr != nil {
		row.Status = store.RunFailed
		row.Error = runErr.Error()
		if step, ok := generation.FailedStep(runErr); ok {
			row.FailedStep = string(step)
		}
	}
	if err := a.store.AddRun(a.ctx, row); err != nil {
		a.logWarn("Could not record run history: %v", err)
	}
}

func (a *App) updateGeneration(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return a.back()
	case "n":
		return a.restart()
	}
	if a.gen.running() || a.gen.err == nil {
		return a, nil
	}
	switch msg.String() {
	case "r", "enter":
		return a, a.startGeneration(false)
	case "f":
		return a, a.startGeneration(true)
	}
	return a, nil
}

func (a *App) renderGeneration() string {
	var b strings.Builder
	step := a.gen.step
	if step == "" || step == generation.StepPending {
		step = generation.StepInstrumental
	}
	if a.gen.err != nil {
		failed, ok := generation.FailedStep(a.gen.err)
		if !ok {
			failed = step
		}
		b.WriteString(errorText(fmt.Sprintf("%s failed", failed.Title())))
		b.WriteString("\n")
		b.WriteString(a.gen.err.Error())
		b.WriteString("\n\n")
		b.WriteString(a.gen.bar.ViewAs(float64(a.gen.progress) / 100))
		b.WriteString("\n\n")
		resume := "r retry"
		var genErr *generation.Error
		if errors.As(a.gen.err, &genErr) && a.gen.progress > 0 {
			resume = fmt.Sprintf("r resume from %s", failed.Title())
		}
		b.WriteString(hint(resume + " · f start over · esc back to lyrics · n new song"))
		return b.String()
	}
	b.WriteString(fmt.Sprintf("%s %s\n", a.spinner.View(), step.Title()))
	b.WriteString(hint(step.Description()))
	b.WriteString("\n\n")
	b.WriteString(a.gen.bar.ViewAs(float64(a.gen.progress) / 100))
	b.WriteString(fmt.Sprintf("  %d%%\n\n", a.gen.progress))
	b.WriteString(hint("n start over"))
	return b.String()
}
