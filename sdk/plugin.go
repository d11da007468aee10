package codecsdk

import (
	"net/rpc"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"
)

// Handshake is the magic-cookie handshake both the host and codec backend
// plugins must agree on before a connection is trusted.
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "VIDEOFORGE_CODEC_PLUGIN",
	MagicCookieValue: "videoforge_codec_v1",
}

// PluginKey is the name CodecBackendPlugin is registered under in both the
// host's and the plugin's PluginMap.
const PluginKey = "codec"

// CodecBackendPlugin implements goplugin.Plugin for CodecBackend over
// net/rpc: there is no streaming codec-generated protobuf in this
// contract, so the simpler net/rpc transport (gob-encoded Go structs) is
// used instead of go-plugin's gRPC mode.
type CodecBackendPlugin struct {
	Impl CodecBackend
}

func (p *CodecBackendPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return NewCodecBackendRPCServer(p.Impl), nil
}

func (p *CodecBackendPlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return NewCodecBackendRPCClient(c), nil
}

// Serve is called from a codec backend plugin's main(); it blocks until the
// host disconnects.
func Serve(impl CodecBackend) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			PluginKey: &CodecBackendPlugin{Impl: impl},
		},
	})
}

// NewPluginLogger builds the hclog.Logger go-plugin's client config requires
// to capture a codec backend subprocess's stderr.
func NewPluginLogger(name string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:  name,
		Level: hclog.Info,
	})
}
