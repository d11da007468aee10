// Command ffmpeg_software is a codec backend plugin that shells out to the
// system ffmpeg/ffprobe binaries for decode and encode. It is launched as a
// subprocess by internal/codec.Registry and speaks the codecsdk.CodecBackend
// contract over go-plugin's net/rpc transport.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	codecsdk "github.com/mantonx/videoforge/sdk"
)

// Backend implements codecsdk.CodecBackend by driving ffmpeg/ffprobe.
type Backend struct {
	health *codecsdk.BaseHealthService
}

func NewBackend() *Backend {
	return &Backend{health: codecsdk.NewBaseHealthService("ffmpeg_software")}
}

func (b *Backend) Info() codecsdk.BackendInfo {
	return codecsdk.BackendInfo{
		ID:       "ffmpeg_software",
		Name:     "FFmpeg Software Codec Backend",
		Version:  "1.0.0",
		Priority: 10, // lower than any hardware-accelerated backend
		Hardware: "none",
	}
}

func (b *Backend) SupportedFormats() []codecsdk.ContainerFormat {
	return []codecsdk.ContainerFormat{
		{Container: "mp4", VideoCodecs: []string{"h264", "h265"}, AudioCodecs: []string{"aac"}, Extensions: []string{".mp4", ".mov"}},
		{Container: "webm", VideoCodecs: []string{"vp9", "av1"}, AudioCodecs: []string{"opus"}, Extensions: []string{".webm"}},
	}
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	FormatName string `json:"format_name"`
}

type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

// Probe shells out to ffprobe for container metadata (spec §4.4 on_metadata).
func (b *Backend) Probe(sourcePath string) (codecsdk.ProbeResult, error) {
	start := time.Now()
	cmd := exec.Command("ffprobe", "-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", sourcePath)
	out, err := cmd.Output()
	b.health.RecordRequest(err == nil, time.Since(start), err)
	if err != nil {
		return codecsdk.ProbeResult{}, fmt.Errorf("ffprobe: %w", err)
	}

	var probed ffprobeOutput
	if err := json.Unmarshal(out, &probed); err != nil {
		return codecsdk.ProbeResult{}, fmt.Errorf("ffprobe output: %w", err)
	}

	res := codecsdk.ProbeResult{Container: probed.Format.FormatName}
	if d, err := strconv.ParseFloat(probed.Format.Duration, 64); err == nil {
		res.DurationMS = int64(d * 1000)
	}
	for _, s := range probed.Streams {
		switch s.CodecType {
		case "video":
			res.HasVideo = true
			res.Width, res.Height = s.Width, s.Height
			res.SourceFPS = parseRational(s.RFrameRate)
		case "audio":
			res.HasAudio = true
		}
	}
	if !res.HasVideo {
		return res, fmt.Errorf("%w: no video stream in %s", errNoVideoTrack, sourcePath)
	}
	return res, nil
}

var errNoVideoTrack = fmt.Errorf("no video track")

func parseRational(s string) codecsdk.Rational {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return codecsdk.Rational{Num: 24, Den: 1}
	}
	num, _ := strconv.ParseInt(parts[0], 10, 64)
	den, _ := strconv.ParseInt(parts[1], 10, 64)
	if den == 0 {
		den = 1
	}
	return codecsdk.Rational{Num: num, Den: den}
}

// Decode streams rgba frames from ffmpeg's rawvideo muxer at opts.TargetFPS.
func (b *Backend) Decode(ctx context.Context, sourcePath string, opts codecsdk.DecodeOptions, sink codecsdk.FrameSink) error {
	probe, err := b.Probe(sourcePath)
	if err != nil {
		return err
	}
	width, height := probe.Width, probe.Height
	if opts.MaxWidth > 0 && width > opts.MaxWidth {
		height = height * opts.MaxWidth / width
		width = opts.MaxWidth
	}

	args := []string{
		"-v", "quiet",
		"-ss", fmt.Sprintf("%.3f", float64(opts.StartOffsetMS)/1000),
		"-i", sourcePath,
		"-vf", fmt.Sprintf("fps=%f,scale=%d:%d", opts.TargetFPS, width, height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start: %w", err)
	}
	defer cmd.Wait()

	frameSize := width * height * 4
	reader := bufio.NewReaderSize(stdout, frameSize)
	frameDur := time.Duration(float64(time.Second) / opts.TargetFPS)

	for index := 0; ; index++ {
		buf := make([]byte, frameSize)
		if _, err := io.ReadFull(reader, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return err
		}
		frame := codecsdk.DecodedFrame{
			Index:     index,
			Timestamp: time.Duration(opts.StartOffsetMS)*time.Millisecond + time.Duration(index)*frameDur,
			Width:     width,
			Height:    height,
			Pix:       buf,
		}
		if err := sink.Emit(frame); err != nil {
			cmd.Process.Kill()
			return err
		}
	}
}

// ffmpegEncoder pipes rawvideo frames into an ffmpeg encode process.
type ffmpegEncoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	output string
}

func (b *Backend) NewEncoder(outputPath string, opts codecsdk.EncodeOptions) (codecsdk.Encoder, error) {
	fps := opts.FPS.Float()
	if fps == 0 {
		fps = 24
	}
	args := []string{
		"-v", "quiet", "-y",
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-r", fmt.Sprintf("%f", fps),
		"-i", "-",
		"-c:v", videoEncoderFor(opts.VideoCodec),
		"-b:v", fmt.Sprintf("%d", opts.BitrateV),
		"-pix_fmt", "yuv420p",
		outputPath,
	}
	cmd := exec.Command("ffmpeg", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start: %w", err)
	}
	return &ffmpegEncoder{cmd: cmd, stdin: stdin, output: outputPath}, nil
}

func videoEncoderFor(codec string) string {
	switch codec {
	case "h265":
		return "libx265"
	case "vp9":
		return "libvpx-vp9"
	case "av1":
		return "libaom-av1"
	default:
		return "libx264"
	}
}

func (e *ffmpegEncoder) AddVideoFrame(frame codecsdk.VideoFrame) error {
	_, err := e.stdin.Write(frame.Pix)
	return err
}

// AddAudioChunk is a no-op on this backend: the ffmpeg process started by
// NewEncoder reads only rawvideo on stdin, so its output has no audio track.
func (e *ffmpegEncoder) AddAudioChunk(chunk codecsdk.AudioChunk) error {
	return nil
}

func (e *ffmpegEncoder) Finalize() (string, error) {
	e.stdin.Close()
	if err := e.cmd.Wait(); err != nil {
		return "", fmt.Errorf("ffmpeg encode: %w", err)
	}
	return e.output, nil
}

func (e *ffmpegEncoder) Cancel() error {
	e.stdin.Close()
	return e.cmd.Process.Kill()
}

func (b *Backend) Health() (codecsdk.HealthStatus, error) {
	status, err := b.health.GetHealthStatus(context.Background())
	if status == nil {
		return codecsdk.HealthStatus{}, err
	}
	return *status, err
}

func main() {
	codecsdk.Serve(NewBackend())
}
