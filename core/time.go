// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"time"
)

// NewTime creates a new time service
func NewTime(cfg TimeConfiguration) *Time {
	interval := time.Nanosecond
	if cfg.FramesPerSecond > 0 {
		interval = time.Second / time.Duration(cfg.FramesPerSecond)
	}
	poll := time.Duration(cfg.EventPollDelay) * time.Millisecond
	if poll <= 0 {
		poll = time.Millisecond
	}

	return &Time{
		fps:            cfg.FramesPerSecond,
		fpsTicker:      time.NewTicker(interval),
		eventPollDelay: poll,
		eventTicker:    time.NewTicker(poll),
		started:        time.Now(),
	}
}

// Time contains all the time services and tickers
type Time struct {
	fps       int
	fpsTicker *time.Ticker

	eventPollDelay time.Duration
	eventTicker    *time.Ticker

	started time.Time
	frames  uint64
}

// Fps gets the set frames per second
func (t *Time) Fps() int {
	return t.fps
}

// FpsTicker gets the initialized fps ticker
func (t *Time) FpsTicker() *time.Ticker {
	return t.fpsTicker
}

// EventTicker gets the initialized event ticker for the event loop
func (t *Time) EventTicker() *time.Ticker {
	return t.eventTicker
}

// Frame counts a presented frame
func (t *Time) Frame() {
	t.frames++
}

// Frames returns the number of frames counted
func (t *Time) Frames() uint64 {
	return t.frames
}

// MeasuredFps returns the average frames per second since start
func (t *Time) MeasuredFps() float64 {
	elapsed := time.Since(t.started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(t.frames) / elapsed
}

// Stop stops the tickers
func (t *Time) Stop() {
	t.fpsTicker.Stop()
	t.eventTicker.Stop()
}
