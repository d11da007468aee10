// Package audioengine owns decoded audio buffers and the interval, split,
// speed, and mixing operations the Timeline Composer and Export Muxer drive
// against them (C4). It has no dependency on the Media Layer or Timeline
// packages — they depend on it, not the reverse — matching the ownership
// rule in spec §3 that an AudioBuffer's lifetime is independent of any one
// layer.
package audioengine

import (
	"fmt"
	"math"
	"sync"

	engineerrors "github.com/mantonx/videoforge/internal/errors"
)

// Buffer is decoded multi-channel PCM, one []float32 per channel at
// SampleRate. Buffers are shared read-only by reference count (spec §5);
// any operation that would mutate samples instead allocates a new Buffer.
type Buffer struct {
	ID         string
	SampleRate int
	Channels   [][]float32
	refCount   int32
	mu         sync.Mutex
}

func (b *Buffer) frameCount() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// DurationMS returns the buffer's playable length.
func (b *Buffer) DurationMS() float64 {
	if b.SampleRate == 0 {
		return 0
	}
	return float64(b.frameCount()) * 1000 / float64(b.SampleRate)
}

// Retain/Release implement the reference-count sharing spec §5 requires of
// AudioBuffers. A Buffer is only eligible for GC once its count reaches 0;
// callers that need deterministic cleanup can check RefCount() == 0.
func (b *Buffer) Retain() {
	b.mu.Lock()
	b.refCount++
	b.mu.Unlock()
}

func (b *Buffer) Release() {
	b.mu.Lock()
	if b.refCount > 0 {
		b.refCount--
	}
	b.mu.Unlock()
}

func (b *Buffer) RefCount() int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refCount
}

// Decoder is the injected dependency that turns raw bytes into a Buffer —
// in production, the codec backend registry's Probe+Decode of an
// audio-only container; in tests, a fake.
type Decoder interface {
	DecodeAudio(data []byte) (*Buffer, error)
}

// Engine owns every loaded Buffer and the pitch-preserving resample cache
// keyed by (buffer ID, speed).
type Engine struct {
	decoder Decoder

	mu        sync.Mutex
	resampled map[string]*Buffer // key: fmt.Sprintf("%s@%v", bufferID, speed)
	nextID    int
}

func New(decoder Decoder) *Engine {
	return &Engine{decoder: decoder, resampled: make(map[string]*Buffer)}
}

func (e *Engine) newID() string {
	e.mu.Lock()
	e.nextID++
	id := fmt.Sprintf("audiobuf-%d", e.nextID)
	e.mu.Unlock()
	return id
}

// Load decodes raw bytes into an owned Buffer.
func (e *Engine) Load(data []byte) (*Buffer, error) {
	buf, err := e.decoder.DecodeAudio(data)
	if err != nil {
		return nil, engineerrors.NewAudioError("DecodeFailed", "audio decode failed", err)
	}
	if buf.ID == "" {
		buf.ID = e.newID()
	}
	return buf, nil
}

// RemoveInterval returns a new Buffer with samples in [t0Sec, t1Sec)
// removed from every channel, preserving sample order outside the range
// (spec §4.5, I4).
func (e *Engine) RemoveInterval(buf *Buffer, t0Sec, t1Sec float64) (*Buffer, error) {
	durSec := buf.DurationMS() / 1000
	if !(t0Sec >= 0 && t0Sec < t1Sec && t1Sec <= durSec) {
		return nil, engineerrors.NewAudioError("InvalidTimeRange", "interval out of buffer range", nil)
	}

	start := int(t0Sec * float64(buf.SampleRate))
	end := int(t1Sec * float64(buf.SampleRate))

	out := &Buffer{ID: e.newID(), SampleRate: buf.SampleRate, Channels: make([][]float32, len(buf.Channels))}
	for ci, ch := range buf.Channels {
		merged := make([]float32, 0, len(ch)-(end-start))
		merged = append(merged, ch[:start]...)
		merged = append(merged, ch[end:]...)
		out.Channels[ci] = merged
	}
	e.invalidateCache(buf.ID)
	return out, nil
}

// Split divides buf at tSec into two new buffers.
func (e *Engine) Split(buf *Buffer, tSec float64) (left, right *Buffer, err error) {
	durSec := buf.DurationMS() / 1000
	if !(tSec > 0 && tSec < durSec) {
		return nil, nil, engineerrors.NewAudioError("InvalidTimeRange", "split point out of range", nil)
	}
	cut := int(tSec * float64(buf.SampleRate))

	left = &Buffer{ID: e.newID(), SampleRate: buf.SampleRate, Channels: make([][]float32, len(buf.Channels))}
	right = &Buffer{ID: e.newID(), SampleRate: buf.SampleRate, Channels: make([][]float32, len(buf.Channels))}
	for ci, ch := range buf.Channels {
		l := make([]float32, cut)
		copy(l, ch[:cut])
		r := make([]float32, len(ch)-cut)
		copy(r, ch[cut:])
		left.Channels[ci] = l
		right.Channels[ci] = r
	}
	return left, right, nil
}

func (e *Engine) cacheKey(bufferID string, speed float64) string {
	return fmt.Sprintf("%s@%.6f", bufferID, speed)
}

// SetSpeed returns a resampled, pitch-preserved variant of buf, caching it
// per (buffer ID, speed) so repeated calls at the same speed are free.
func (e *Engine) SetSpeed(buf *Buffer, speed float64) (*Buffer, error) {
	if speed <= 0 {
		return nil, engineerrors.NewAudioError("InvalidTimeRange", "speed must be positive", nil)
	}
	key := e.cacheKey(buf.ID, speed)

	e.mu.Lock()
	if cached, ok := e.resampled[key]; ok {
		e.mu.Unlock()
		return cached, nil
	}
	e.mu.Unlock()

	out := timeStretch(buf, speed, e.newID())

	e.mu.Lock()
	e.resampled[key] = out
	e.mu.Unlock()
	return out, nil
}

// invalidateCache drops every cached resample derived from bufferID,
// required whenever the source buffer is mutated (spec §4.5).
func (e *Engine) invalidateCache(bufferID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prefix := bufferID + "@"
	for k := range e.resampled {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(e.resampled, k)
		}
	}
}

// timeStretch resamples buf to play at speed while preserving pitch, using
// a WSOLA-style overlap-add on fixed analysis windows — adequate fidelity
// for a non-linear editor preview/export, not a mastering-grade stretch.
func timeStretch(buf *Buffer, speed float64, newID string) *Buffer {
	const windowSize = 1024
	const hop = windowSize / 2
	outHop := int(float64(hop) / speed)
	if outHop < 1 {
		outHop = 1
	}

	out := &Buffer{ID: newID, SampleRate: buf.SampleRate, Channels: make([][]float32, len(buf.Channels))}
	for ci, ch := range buf.Channels {
		outLen := int(float64(len(ch)) / speed)
		result := make([]float32, outLen+windowSize)
		window := hannWindow(windowSize)

		for readPos, writePos := 0, 0; readPos+windowSize <= len(ch) && writePos+windowSize <= len(result); readPos, writePos = readPos+hop, writePos+outHop {
			for i := 0; i < windowSize; i++ {
				result[writePos+i] += ch[readPos+i] * window[i]
			}
		}
		if outLen < len(result) {
			result = result[:outLen]
		}
		out.Channels[ci] = result
	}
	return out
}

func hannWindow(n int) []float32 {
	w := make([]float32, n)
	for i := range w {
		w[i] = float32(0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1))))
	}
	return w
}
