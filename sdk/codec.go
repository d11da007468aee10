package codecsdk

import (
	"context"
	"errors"
	"time"
)

// ErrStopDecode is returned by a FrameSink to stop Decode early without
// signalling a failure — used by the RPC chunking adapter to end a chunk at
// its requested size rather than decoding the whole source in one call.
var ErrStopDecode = errors.New("codecsdk: stop decode")

// Rational is a numerator/denominator pair, used for frame rates and
// timestamps to avoid floating-point drift across long decodes.
type Rational struct {
	Num int64
	Den int64
}

// Float returns the rational as a float64, or 0 if the denominator is 0.
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// ContainerFormat describes one container/codec combination a backend can
// read or write.
type ContainerFormat struct {
	Container   string   `json:"container"`   // "mp4", "webm", "mov"
	VideoCodecs []string `json:"video_codecs"` // "h264", "vp9", "av1"
	AudioCodecs []string `json:"audio_codecs"` // "aac", "opus"
	Extensions  []string `json:"extensions"`
}

// BackendInfo identifies a codec backend and its priority when several
// backends claim to support the same container.
type BackendInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Version  string `json:"version"`
	Priority int    `json:"priority"` // higher wins when multiple backends match
	Hardware string `json:"hardware"` // "none", "nvenc", "vaapi", "qsv", ...
}

// ProbeResult is the metadata a backend reports after opening a source,
// matching the demux pipeline's on_metadata callback (spec §4.4).
type ProbeResult struct {
	DurationMS int64
	Width      int
	Height     int
	SourceFPS  Rational
	HasVideo   bool
	HasAudio   bool
	Container  string
}

// DecodedFrame is one decoded visual still plus its position in the source.
type DecodedFrame struct {
	Index     int
	Timestamp time.Duration
	Width     int
	Height    int
	// Pix holds packed RGBA8888 rows, Width*Height*4 bytes.
	Pix []byte
}

// DecodeOptions configures a backend's frame extraction pass.
type DecodeOptions struct {
	TargetFPS      float64 // the rate frames should be emitted at
	MaxWidth       int     // 0 = source resolution
	MaxHeight      int
	StartOffsetMS  int64
}

// FrameSink receives frames from a CodecBackend.Decode call. Implementations
// must not block longer than necessary; Decode applies backpressure by not
// calling Emit again until the previous call returns.
type FrameSink interface {
	Emit(frame DecodedFrame) error
}

// EncodeOptions configures the Export Muxer's offline re-render pass.
type EncodeOptions struct {
	Container   string
	VideoCodec  string
	AudioCodec  string
	Width       int
	Height      int
	FPS         Rational
	BitrateV    int
	BitrateA    int
	SampleRate  int
	Channels    int
}

// VideoFrame is one fully composed output-canvas frame handed to an encoder.
type VideoFrame struct {
	Timestamp time.Duration
	Duration  time.Duration
	Width     int
	Height    int
	Pix       []byte // packed RGBA8888
}

// AudioChunk is one block of interleaved PCM samples handed to an encoder.
type AudioChunk struct {
	Timestamp  time.Duration
	SampleRate int
	Channels   int
	Samples    []float32 // interleaved
}

// Encoder is a handle to one open export job. AddVideoFrame/AddAudioChunk
// may be called in any interleaving; Finalize blocks until the container
// is fully written and returns the encoded byte stream's location.
type Encoder interface {
	AddVideoFrame(frame VideoFrame) error
	AddAudioChunk(chunk AudioChunk) error
	Finalize() (outputPath string, err error)
	Cancel() error
}

// CodecBackend is the contract spec §4.4 and §4.7 require of anything that
// decodes a source container into frames or encodes the composition into
// one. The host engine's internal/codec.Registry selects among backends by
// BackendInfo.Priority, falling back to the next when Probe/Decode fails.
type CodecBackend interface {
	Info() BackendInfo
	SupportedFormats() []ContainerFormat

	// Probe inspects a source without fully decoding it.
	Probe(sourcePath string) (ProbeResult, error)

	// Decode drives incremental frame decode, calling sink.Emit for each
	// frame in increasing index order. It returns once the source is
	// exhausted or ctx is cancelled.
	Decode(ctx context.Context, sourcePath string, opts DecodeOptions, sink FrameSink) error

	// NewEncoder opens an output file for the Export Muxer.
	NewEncoder(outputPath string, opts EncodeOptions) (Encoder, error)

	Health() (HealthStatus, error)
}
