// Package playback implements the Playback Scheduler (C6): a monotonic
// project clock driving per-tick render dispatch and audio start/stop
// coordination against a Timeline. The engine is single-threaded
// cooperative (spec §5): Tick must be called from one goroutine, and edits
// are expected to land between ticks, never during one.
package playback

import (
	"time"

	"github.com/mantonx/videoforge/internal/audioengine"
	"github.com/mantonx/videoforge/internal/logger"
	"github.com/mantonx/videoforge/internal/medialayer"
	"github.com/mantonx/videoforge/internal/surface"
	"github.com/mantonx/videoforge/internal/timeline"
)

// Clock abstracts wall-clock time so tests can drive ticks deterministically
// without sleeping.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Scheduler owns the project clock and drives one Timeline's playback.
type Scheduler struct {
	tl      *timeline.Timeline
	out     *surface.Surface
	clock   Clock
	started map[string]bool // layer IDs with an audio source live this session

	wallStart time.Time
	tAtStart  float64
}

func New(tl *timeline.Timeline, out *surface.Surface) *Scheduler {
	return &Scheduler{tl: tl, out: out, clock: realClock{}, started: make(map[string]bool)}
}

// WithClock overrides the wall clock, used by tests.
func (s *Scheduler) WithClock(c Clock) *Scheduler {
	s.clock = c
	return s
}

// Play starts the project clock from the timeline's current t_ms.
func (s *Scheduler) Play() {
	s.tl.Playing = true
	s.wallStart = s.clock.Now()
	s.tAtStart = s.tl.TimeMS
}

// Pause freezes t_ms at its current value.
func (s *Scheduler) Pause() {
	if s.tl.Playing {
		s.tl.TimeMS = s.projectTime()
	}
	s.tl.Playing = false
}

// Seek jumps the project clock to tMS and re-renders without dispatching
// audio. It clears the record of audio sources started this session, so the
// next Tick while playing starts them again from the new offset; sources
// already started are not stopped by Seek itself (spec §4.6 seek semantics).
func (s *Scheduler) Seek(tMS float64) {
	total := s.tl.TotalProjectTimeMS()
	if tMS < 0 {
		tMS = 0
	}
	if tMS > total {
		tMS = total
	}
	s.tl.TimeMS = tMS
	s.wallStart = s.clock.Now()
	s.tAtStart = tMS
	s.started = make(map[string]bool)

	s.out.Clear()
	for _, l := range s.tl.Layers {
		if l.IsVisible(tMS) {
			l.Render(s.out, tMS, s.tl.Playing)
		}
	}
}

// projectTime computes t_ms from the recorded clock anchor, clamped to the
// project's extent, without mutating state (spec §4.6).
func (s *Scheduler) projectTime() float64 {
	if !s.tl.Playing {
		return s.tl.TimeMS
	}
	elapsed := s.clock.Now().Sub(s.wallStart).Seconds() * 1000
	t := s.tAtStart + elapsed
	total := s.tl.TotalProjectTimeMS()
	if t < 0 {
		t = 0
	}
	if t > total {
		t = total
	}
	return t
}

// Tick performs one render+dispatch pass: clear the output surface, render
// every visible layer front-to-back, start due audio sources, and stop
// playback once the project end is reached (spec §4.6).
func (s *Scheduler) Tick() {
	t := s.projectTime()
	s.tl.TimeMS = t

	s.out.Clear()
	for _, l := range s.tl.Layers {
		if !l.IsVisible(t) {
			continue
		}
		l.Render(s.out, t, s.tl.Playing)
	}

	if s.tl.Playing {
		s.dispatchAudio(t)
	}

	if s.tl.Playing && t >= s.tl.TotalProjectTimeMS() {
		s.tl.Playing = false
		logger.Info("playback reached project end", []logger.Field{logger.Float("t_ms", t)})
	}
}

// dispatchAudio starts each visible, not-yet-started audio layer's source
// at the offset implied by the current project time (spec §4.6 step 3).
func (s *Scheduler) dispatchAudio(t float64) {
	for _, l := range s.tl.Layers {
		if l.Kind != medialayer.KindAudio || !l.IsVisible(t) {
			continue
		}
		if s.started[l.ID] {
			continue
		}
		if l.Audio == nil || l.Audio.Buffer == nil {
			continue
		}
		offsetSec := (t - l.StartTimeMS) / 1000
		src, err := s.audioEngine().Connect(l.Audio.Buffer, audioDestination{}, 1)
		if err != nil {
			logger.Warn("failed to connect audio layer for playback", []logger.Field{logger.String("layer_id", l.ID), logger.Err("error", err)})
			continue
		}
		src.Start(0, offsetSec)
		s.started[l.ID] = true
	}
}

func (s *Scheduler) audioEngine() *audioengine.Engine {
	return s.tl.Audio()
}

// audioDestination is a no-op audioengine.Destination: the real-time audio
// graph output is a browser collaborator outside this engine's scope
// (spec §1); the scheduler only needs Connect/Start bookkeeping.
type audioDestination struct{}

func (audioDestination) Mix(samples []float32, channel int, startSample int) {}
