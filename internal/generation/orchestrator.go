// Package generation drives the three backend calls that turn approved
// lyrics into a finished song: instrumental, vocals, then the final mix.
package generation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kingrea/auralynx/internal/api"
)

// Step names the pipeline phase a run is in.
type Step string

const (
	StepPending      Step = "pending"
	StepInstrumental Step = "instrumental"
	StepVocals       Step = "vocals"
	StepMixing       Step = "mixing"
	StepComplete     Step = "complete"
)

// Title is the short label shown while the step runs.
func (s Step) Title() string {
	switch s {
	case StepInstrumental:
		return "Creating instrumental"
	case StepVocals:
		return "Generating vocals"
	case StepMixing:
		return "Mixing audio"
	case StepComplete:
		return "Complete"
	default:
		return "Waiting"
	}
}

// Description expands on Title.
func (s Step) Description() string {
	switch s {
	case StepInstrumental:
		return "Composing the backing track for your genre"
	case StepVocals:
		return "Singing your lyrics"
	case StepMixing:
		return "Balancing vocals and instrumental into the final song"
	case StepComplete:
		return "Your song is ready"
	default:
		return ""
	}
}

// startProgress is the percent shown while a step runs; doneProgress once it
// succeeds.
var (
	startProgress = map[Step]int{StepInstrumental: 20, StepVocals: 50, StepMixing: 80}
	doneProgress  = map[Step]int{StepInstrumental: 50, StepVocals: 80, StepMixing: 100}
)

// Backend is the subset of the API client the pipeline calls.
type Backend interface {
	GenerateInstrumental(ctx context.Context, req api.TrackRequest) (*api.Asset, error)
	GenerateVocals(ctx context.Context, req api.TrackRequest) (*api.Asset, error)
	MixAudio(ctx context.Context, req api.MixRequest) (*api.Asset, error)
}

// Result holds the asset URLs of a run.
type Result struct {
	InstrumentalURL string
	VocalsURL       string
	FinalMixURL     string
	DurationSeconds int
}

// Run is one pass of the pipeline. Partial results survive a failure so the
// run can resume from the step that failed.
type Run struct {
	ID         string
	Lyrics     string
	Genre      string
	Step       Step
	Progress   int
	Result     Result
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Failed reports whether the last execution stopped on an error.
func (r *Run) Failed() bool {
	return r.Err != nil
}

// Done reports whether all three steps succeeded.
func (r *Run) Done() bool {
	return r.Step == StepComplete
}

// Error reports which step failed and why.
type Error struct {
	Step       Step
	HTTPStatus int
	Err        error
}

func (e *Error) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("generation: %s failed (status %d): %v", e.Step, e.HTTPStatus, e.Err)
	}
	return fmt.Sprintf("generation: %s failed: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Hooks observe a run. Either field may be nil.
type Hooks struct {
	Step     func(Step)
	Progress func(int)
}

// Orchestrator executes runs against a Backend.
type Orchestrator struct {
	backend Backend
	clock   func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock injects a deterministic clock.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// New returns an orchestrator bound to backend.
func New(backend Backend, opts ...Option) (*Orchestrator, error) {
	if backend == nil {
		return nil, fmt.Errorf("generation: backend is required")
	}
	o := &Orchestrator{backend: backend, clock: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// NewRun prepares a run for lyrics in genre.
func (o *Orchestrator) NewRun(lyrics, genre string) *Run {
	return &Run{
		ID:     ulid.Make().String(),
		Lyrics: lyrics,
		Genre:  genre,
		Step:   StepPending,
	}
}

// Reset discards partial results so the next Execute starts from the first
// step.
func (o *Orchestrator) Reset(run *Run) {
	run.Step = StepPending
	run.Progress = 0
	run.Result = Result{}
	run.Err = nil
	run.FinishedAt = time.Time{}
}

// Execute runs the remaining steps of run in order. Steps that already hold a
// result are skipped, so calling Execute on a failed run resumes it. No later
// step is started after a failure.
func (o *Orchestrator) Execute(ctx context.Context, run *Run, hooks Hooks) (Result, error) {
	if run == nil {
		return Result{}, fmt.Errorf("generation: run is required")
	}
	if run.Done() {
		return run.Result, nil
	}
	if strings.TrimSpace(run.Lyrics) == "" || strings.TrimSpace(run.Genre) == "" {
		return Result{}, fmt.Errorf("generation: lyrics and genre are required")
	}
	run.Err = nil
	run.FinishedAt = time.Time{}
	if run.StartedAt.IsZero() {
		run.StartedAt = o.clock()
	}

	reported := -1
	setProgress := func(p int) {
		run.Progress = p
		if p != reported {
			reported = p
			if hooks.Progress != nil {
				hooks.Progress(p)
			}
		}
	}
	enter := func(step Step) {
		run.Step = step
		if hooks.Step != nil {
			hooks.Step(step)
		}
		setProgress(startProgress[step])
	}

	track := api.TrackRequest{Lyrics: run.Lyrics, Genre: run.Genre}
	steps := []struct {
		step Step
		done func() bool
		call func() error
	}{
		{
			step: StepInstrumental,
			done: func() bool { return run.Result.InstrumentalURL != "" },
			call: func() error {
				asset, err := o.backend.GenerateInstrumental(ctx, track)
				if err != nil {
					return err
				}
				run.Result.InstrumentalURL = asset.URL
				return nil
			},
		},
		{
			step: StepVocals,
			done: func() bool { return run.Result.VocalsURL != "" },
			call: func() error {
				asset, err := o.backend.GenerateVocals(ctx, track)
				if err != nil {
					return err
				}
				run.Result.VocalsURL = asset.URL
				return nil
			},
		},
		{
			step: StepMixing,
			done: func() bool { return run.Result.FinalMixURL != "" },
			call: func() error {
				asset, err := o.backend.MixAudio(ctx, api.MixRequest{
					InstrumentalURL: run.Result.InstrumentalURL,
					VocalsURL:       run.Result.VocalsURL,
					Genre:           run.Genre,
				})
				if err != nil {
					return err
				}
				run.Result.FinalMixURL = asset.URL
				if asset.Duration > 0 {
					run.Result.DurationSeconds = int(math.Round(asset.Duration))
				}
				return nil
			},
		},
	}

	for _, s := range steps {
		if s.done() {
			continue
		}
		enter(s.step)
		err := ctx.Err()
		if err == nil {
			err = s.call()
		}
		if err != nil {
			return run.Result, o.fail(run, s.step, err)
		}
		setProgress(doneProgress[s.step])
	}

	run.Step = StepComplete
	if hooks.Step != nil {
		hooks.Step(StepComplete)
	}
	setProgress(100)
	run.FinishedAt = o.clock()
	return run.Result, nil
}

func (o *Orchestrator) fail(run *Run, step Step, err error) error {
	gerr := &Error{Step: step, HTTPStatus: api.StatusCode(err), Err: err}
	run.Err = gerr
	run.FinishedAt = o.clock()
	return gerr
}

// FailedStep extracts the failed step from err, if it is a *Error.
func FailedStep(err error) (Step, bool) {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Step, true
	}
	return "", false
}
