package wizard

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kingrea/auralynx/internal/api"
)

var (
	// ErrOutOfOrder is returned when an event does not belong to the current stage.
	ErrOutOfOrder = errors.New("wizard: event does not match current stage")
	// ErrNoPreviousStage is returned by Back at Landing.
	ErrNoPreviousStage = errors.New("wizard: no previous stage")
	// ErrRunInFlight is returned while a generation run is executing.
	ErrRunInFlight = errors.New("wizard: generation run in flight")
	// ErrStaleRun rejects results from a run this session no longer owns.
	ErrStaleRun = errors.New("wizard: stale generation run")
	// ErrWrongStage is returned when a run is requested outside Generation.
	ErrWrongStage = errors.New("wizard: not at generation stage")
)

// RunToken identifies a run admitted by BeginRun.
type RunToken uint64

// Option customizes a Controller.
type Option func(*Controller)

// WithDefaultGenre overrides the genre a fresh session starts with.
func WithDefaultGenre(genre string) Option {
	return func(c *Controller) {
		if api.IsGenre(genre) {
			c.defaultGenre = genre
		}
	}
}

// WithObserver registers a callback invoked after every stage change.
func WithObserver(fn func(from, to Stage)) Option {
	return func(c *Controller) {
		if fn != nil {
			c.observers = append(c.observers, fn)
		}
	}
}

// Controller owns the wizard session and enforces stage ordering.
type Controller struct {
	mu           sync.Mutex
	session      Session
	defaultGenre string
	observers    []func(from, to Stage)

	nextToken RunToken
	run       RunToken
	inFlight  bool
}

// NewController returns a controller with a fresh session at Landing.
func NewController(opts ...Option) *Controller {
	c := &Controller{defaultGenre: api.DefaultGenre}
	for _, opt := range opts {
		opt(c)
	}
	c.session = c.freshSession()
	return c
}

func (c *Controller) freshSession() Session {
	s := NewSession()
	s.Genre = c.defaultGenre
	return s
}

// Session returns a copy of the current session.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Stage returns the current stage.
func (c *Controller) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Stage
}

// Apply reduces a stage completion event into the session and advances to
// the next stage. Generation results must go through Complete.
func (c *Controller) Apply(ev Event) error {
	if ev == nil {
		return fmt.Errorf("wizard: nil event")
	}
	if _, ok := ev.(GenerationCompleted); ok {
		return fmt.Errorf("wizard: generation results require a run token: %w", ErrStaleRun)
	}
	c.mu.Lock()
	from, to, err := c.applyLocked(ev)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.notify(from, to)
	return nil
}

func (c *Controller) applyLocked(ev Event) (Stage, Stage, error) {
	from := c.session.Stage
	if ev.Stage() != from {
		return "", "", fmt.Errorf("%w: got %s event at %s", ErrOutOfOrder, ev.Stage(), from)
	}
	to, ok := from.next()
	if !ok {
		return "", "", fmt.Errorf("%w: %s is the last stage", ErrOutOfOrder, from)
	}
	next := c.session
	if err := ev.apply(&next); err != nil {
		return "", "", err
	}
	next.Stage = to
	c.session = next
	return from, to, nil
}

// Back returns to the previous stage without clearing collected fields.
func (c *Controller) Back() error {
	c.mu.Lock()
	from := c.session.Stage
	if c.inFlight {
		c.mu.Unlock()
		return ErrRunInFlight
	}
	to, ok := from.previous()
	if !ok {
		c.mu.Unlock()
		return ErrNoPreviousStage
	}
	if from == StageGeneration {
		c.run = 0
	}
	c.session.Stage = to
	c.mu.Unlock()
	c.notify(from, to)
	return nil
}

// Restart discards the session and returns to Landing. A run in flight is
// detached and its results will be rejected.
func (c *Controller) Restart() {
	c.mu.Lock()
	from := c.session.Stage
	c.session = c.freshSession()
	c.run = 0
	c.inFlight = false
	c.mu.Unlock()
	c.notify(from, StageLanding)
}

// BeginRun admits a generation run. Only one run may be in flight.
func (c *Controller) BeginRun() (RunToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Stage != StageGeneration {
		return 0, fmt.Errorf("%w (at %s)", ErrWrongStage, c.session.Stage)
	}
	if c.inFlight {
		return 0, ErrRunInFlight
	}
	c.nextToken++
	c.run = c.nextToken
	c.inFlight = true
	return c.run, nil
}

// EndRun releases the in-flight slot held by token. Stale tokens are ignored.
func (c *Controller) EndRun(token RunToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token != 0 && token == c.run {
		c.inFlight = false
	}
}

// Running reports whether a generation run is in flight.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Complete applies a finished run's results and moves to Preview. It is the
// only way to reach Preview.
func (c *Controller) Complete(token RunToken, ev GenerationCompleted) error {
	c.mu.Lock()
	if token == 0 || token != c.run {
		c.mu.Unlock()
		return ErrStaleRun
	}
	from, to, err := c.applyLocked(ev)
	if err == nil {
		c.inFlight = false
		c.run = 0
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.notify(from, to)
	return nil
}

func (c *Controller) notify(from, to Stage) {
	for _, fn := range c.observers {
		fn(from, to)
	}
}
