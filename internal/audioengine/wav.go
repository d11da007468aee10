package audioengine

import (
	"encoding/binary"
	"fmt"

	engineerrors "github.com/mantonx/videoforge/internal/errors"
)

// DecodeWAV parses a PCM WAV container directly, without a codec backend
// round-trip. It is the one audio container the engine decodes itself:
// compressed formats (mp3, ogg, aac) are delegated to an out-of-process
// codec backend's Decode path in the general case, but that path currently
// only emits visual frames (see DESIGN.md) — WAV support here covers the
// uncompressed case used by recording/export round-trips until that gap is
// closed.
func DecodeWAV(data []byte) (*Buffer, error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, engineerrors.NewAudioError("DecodeFailed", "not a RIFF/WAVE container", nil)
	}

	var (
		numChannels   int
		sampleRate    int
		bitsPerSample int
		dataOffset    = -1
		dataSize      int
	)

	pos := 12
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		switch chunkID {
		case "fmt ":
			if body+16 > len(data) {
				return nil, engineerrors.NewAudioError("DecodeFailed", "truncated fmt chunk", nil)
			}
			numChannels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			dataOffset = body
			dataSize = chunkSize
		}

		pos = body + chunkSize
		if chunkSize%2 == 1 {
			pos++ // chunks are word-aligned
		}
	}

	if numChannels == 0 || sampleRate == 0 || dataOffset < 0 {
		return nil, engineerrors.NewAudioError("DecodeFailed", "missing fmt or data chunk", nil)
	}
	if bitsPerSample != 16 {
		return nil, engineerrors.NewAudioError("DecodeFailed", fmt.Sprintf("unsupported bit depth %d", bitsPerSample), nil)
	}
	if dataOffset+dataSize > len(data) {
		dataSize = len(data) - dataOffset
	}

	bytesPerFrame := numChannels * 2
	frameCount := dataSize / bytesPerFrame
	channels := make([][]float32, numChannels)
	for c := range channels {
		channels[c] = make([]float32, frameCount)
	}

	for i := 0; i < frameCount; i++ {
		base := dataOffset + i*bytesPerFrame
		for c := 0; c < numChannels; c++ {
			sample := int16(binary.LittleEndian.Uint16(data[base+c*2 : base+c*2+2]))
			channels[c][i] = float32(sample) / 32768.0
		}
	}

	return &Buffer{SampleRate: sampleRate, Channels: channels}, nil
}
