// Package wizard holds the session collected across the five song-making
// stages and the controller that moves a user between them. Every stage
// reports completion as a typed event; the controller only accepts the event
// that belongs to the current stage, so stages cannot be skipped.
package wizard
