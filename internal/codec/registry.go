// Package codec hosts the codec-backend registry: the demux pipeline (C3)
// and export muxer (C7) both select a CodecBackend from here rather than
// hard-coding a decoder/encoder, which is what lets spec §4.7's "enumerate
// the backend's supported codecs, pick the first encodable" selection work.
package codec

import (
	"fmt"
	"os/exec"
	"sort"
	"sync"

	goplugin "github.com/hashicorp/go-plugin"
	"github.com/mantonx/videoforge/internal/logger"
	codecsdk "github.com/mantonx/videoforge/sdk"
)

// Registry holds every codec backend the host knows about, in-process or
// launched as a subprocess plugin.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]codecsdk.CodecBackend
	clients  map[string]*goplugin.Client // only set for subprocess-backed entries
}

func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]codecsdk.CodecBackend),
		clients:  make(map[string]*goplugin.Client),
	}
}

// RegisterInProcess adds a backend that runs in the host process, e.g. the
// HTML-video-fallback-equivalent reference backend used in tests.
func (r *Registry) RegisterInProcess(backend codecsdk.CodecBackend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[backend.Info().ID] = backend
}

// LaunchPlugin starts a codec backend plugin binary and registers the
// backend it dispenses. Errors here are non-fatal to the registry: a
// backend that fails to launch is simply absent from Backends().
func (r *Registry) LaunchPlugin(id, binaryPath string) error {
	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: codecsdk.Handshake,
		Plugins: map[string]goplugin.Plugin{
			codecsdk.PluginKey: &codecsdk.CodecBackendPlugin{},
		},
		Cmd:    exec.Command(binaryPath),
		Logger: codecsdk.NewPluginLogger("codec-plugin." + id),
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return fmt.Errorf("codec plugin %q handshake: %w", id, err)
	}

	raw, err := rpcClient.Dispense(codecsdk.PluginKey)
	if err != nil {
		client.Kill()
		return fmt.Errorf("codec plugin %q dispense: %w", id, err)
	}

	backend, ok := raw.(codecsdk.CodecBackend)
	if !ok {
		client.Kill()
		return fmt.Errorf("codec plugin %q did not return a CodecBackend", id)
	}

	r.mu.Lock()
	r.backends[id] = backend
	r.clients[id] = client
	r.mu.Unlock()
	logger.Info("codec backend plugin registered: %s", id)
	return nil
}

// Shutdown terminates every subprocess-backed backend.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, client := range r.clients {
		client.Kill()
		logger.Info("codec backend plugin stopped: %s", id)
	}
}

// Backends returns all registered backends ordered by descending priority,
// matching the preference-list selection spec.md §4.7 describes.
func (r *Registry) Backends() []codecsdk.CodecBackend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]codecsdk.CodecBackend, 0, len(r.backends))
	for _, b := range r.backends {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Info().Priority > out[j].Info().Priority
	})
	return out
}

// SelectForContainer returns the highest-priority backend that claims
// support for the given container/video codec pair, or
// ErrNoEncodableBackend if none does.
func (r *Registry) SelectForContainer(container, videoCodec string) (codecsdk.CodecBackend, error) {
	for _, b := range r.Backends() {
		for _, f := range b.SupportedFormats() {
			if f.Container != container {
				continue
			}
			for _, vc := range f.VideoCodecs {
				if vc == videoCodec {
					return b, nil
				}
			}
		}
	}
	return nil, ErrNoEncodableBackend
}

// ErrNoEncodableBackend is returned when no registered backend supports a
// requested container/codec pair — the terminal export error spec §4.7
// requires ("Unavailability of any encodable video codec is a terminal
// export error").
var ErrNoEncodableBackend = fmt.Errorf("no registered codec backend supports the requested container/codec")

// SelectAnyForContainer returns the highest-priority backend that claims
// support for the given container, regardless of codec. Ingest uses this
// to pick a backend for Probe before the source's actual codec is known.
func (r *Registry) SelectAnyForContainer(container string) (codecsdk.CodecBackend, error) {
	for _, b := range r.Backends() {
		for _, f := range b.SupportedFormats() {
			if f.Container == container {
				return b, nil
			}
		}
	}
	return nil, ErrNoEncodableBackend
}
