// Package common provides shared utilities including stage timing.
package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer measures one named interval against a clock.
type Timer struct {
	clock    clockwork.Clock
	start    time.Time
	name     string
	duration time.Duration
}

// NewTimer starts an unnamed timer on the real clock.
func NewTimer() *Timer {
	return NewNamedTimer(nil, "")
}

// NewNamedTimer starts a timer with the given name. A nil clock means the
// real clock.
func NewNamedTimer(clock clockwork.Clock, name string) *Timer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Timer{clock: clock, name: name, start: clock.Now()}
}

// Stop stops the timer and returns the elapsed duration.
func (t *Timer) Stop() time.Duration {
	t.duration = t.clock.Since(t.start)
	return t.duration
}

// Duration returns the recorded duration (only valid after Stop()).
func (t *Timer) Duration() time.Duration {
	return t.duration
}

// Name returns the timer name (empty string if unnamed).
func (t *Timer) Name() string {
	return t.name
}

// String returns a formatted string representation of the timer.
func (t *Timer) String() string {
	if t.name != "" {
		return fmt.Sprintf("%s: %v", t.name, t.duration)
	}
	return fmt.Sprintf("%v", t.duration)
}

// Stages records consecutive stage durations of a single scene run.
type Stages struct {
	clock   clockwork.Clock
	started time.Time
	current *Timer
	done    []*Timer
}

// NewStages starts a stage recorder. A nil clock means the real clock.
func NewStages(clock clockwork.Clock) *Stages {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Stages{clock: clock, started: clock.Now()}
}

// Begin closes the running stage, if any, and opens a new one.
func (s *Stages) Begin(name string) {
	s.End()
	s.current = NewNamedTimer(s.clock, name)
}

// End closes the running stage.
func (s *Stages) End() {
	if s.current == nil {
		return
	}
	s.current.Stop()
	s.done = append(s.done, s.current)
	s.current = nil
}

// Durations returns the closed stages by name.
func (s *Stages) Durations() map[string]time.Duration {
	out := make(map[string]time.Duration, len(s.done))
	for _, t := range s.done {
		out[t.Name()] += t.Duration()
	}
	return out
}

// Total is the time since the recorder was created.
func (s *Stages) Total() time.Duration {
	return s.clock.Since(s.started)
}

// String lists the closed stages in order.
func (s *Stages) String() string {
	parts := make([]string, len(s.done))
	for i, t := range s.done {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}
