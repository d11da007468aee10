package codecsdk

import (
	"context"
	"errors"
	"fmt"
	"net/rpc"
)

// The CodecBackend interface streams frames and keeps open Encoder handles,
// neither of which map onto net/rpc's single request/response calls
// directly. CodecBackendRPCServer/Client bridge the two: Decode becomes a
// client-driven poll loop over fixed-size chunks (the same chunking spec
// §4.4 already requires of the demux pipeline), and Encoder becomes a
// session handle keyed by a string ID the server holds open between calls.

// DecodeChunkArgs requests up to MaxFrames frames starting at StartIndex.
type DecodeChunkArgs struct {
	SourcePath string
	Opts       DecodeOptions
	StartIndex int
	MaxFrames  int
}

// DecodeChunkReply carries the decoded chunk and whether the source is
// exhausted.
type DecodeChunkReply struct {
	Frames []DecodedFrame
	Done   bool
}

// ProbeArgs/ProbeReply, EncoderArgs/Reply, etc. follow the same pattern:
// one request struct, one reply struct, gob-serializable.
type ProbeArgs struct {
	SourcePath string
}

type EncoderBeginArgs struct {
	OutputPath string
	Opts       EncodeOptions
}

type EncoderBeginReply struct {
	SessionID string
}

type EncoderFrameArgs struct {
	SessionID string
	Frame     VideoFrame
}

type EncoderAudioArgs struct {
	SessionID string
	Chunk     AudioChunk
}

type EncoderFinalizeArgs struct {
	SessionID string
}

type EncoderFinalizeReply struct {
	OutputPath string
}

type EncoderSessionArgs struct {
	SessionID string
}

// CodecBackendRPCServer adapts a local CodecBackend to net/rpc method
// signatures (exported methods of the form func(args T1, reply *T2) error).
type CodecBackendRPCServer struct {
	Impl     CodecBackend
	encoders map[string]Encoder
	nextID   int
}

func NewCodecBackendRPCServer(impl CodecBackend) *CodecBackendRPCServer {
	return &CodecBackendRPCServer{Impl: impl, encoders: make(map[string]Encoder)}
}

func (s *CodecBackendRPCServer) Info(args struct{}, reply *BackendInfo) error {
	*reply = s.Impl.Info()
	return nil
}

func (s *CodecBackendRPCServer) SupportedFormats(args struct{}, reply *[]ContainerFormat) error {
	*reply = s.Impl.SupportedFormats()
	return nil
}

func (s *CodecBackendRPCServer) Probe(args ProbeArgs, reply *ProbeResult) error {
	res, err := s.Impl.Probe(args.SourcePath)
	if err != nil {
		return err
	}
	*reply = res
	return nil
}

func (s *CodecBackendRPCServer) Health(args struct{}, reply *HealthStatus) error {
	res, err := s.Impl.Health()
	if err != nil {
		return err
	}
	*reply = res
	return nil
}

// chunkSink buffers frames emitted by a single DecodeChunk call.
type chunkSink struct {
	frames []DecodedFrame
	max    int
}

func (c *chunkSink) Emit(f DecodedFrame) error {
	c.frames = append(c.frames, f)
	if len(c.frames) >= c.max {
		return ErrStopDecode
	}
	return nil
}

// DecodeChunk decodes starting at StartIndex and returns at most MaxFrames.
// The backend re-opens the source per chunk; real backends should cache an
// open decode cursor keyed by SourcePath+Opts between calls.
func (s *CodecBackendRPCServer) DecodeChunk(args DecodeChunkArgs, reply *DecodeChunkReply) error {
	sink := &chunkSink{max: args.MaxFrames}
	opts := args.Opts
	opts.StartOffsetMS = int64(args.StartIndex) * int64(1000/opts.TargetFPS)
	err := s.Impl.Decode(context.Background(), args.SourcePath, opts, sink)
	reply.Frames = sink.frames
	reply.Done = len(sink.frames) < args.MaxFrames
	if errors.Is(err, ErrStopDecode) {
		return nil
	}
	return err
}

func (s *CodecBackendRPCServer) EncoderBegin(args EncoderBeginArgs, reply *EncoderBeginReply) error {
	enc, err := s.Impl.NewEncoder(args.OutputPath, args.Opts)
	if err != nil {
		return err
	}
	s.nextID++
	id := fmt.Sprintf("enc-%d", s.nextID)
	s.encoders[id] = enc
	reply.SessionID = id
	return nil
}

func (s *CodecBackendRPCServer) EncoderAddVideoFrame(args EncoderFrameArgs, reply *struct{}) error {
	enc, ok := s.encoders[args.SessionID]
	if !ok {
		return fmt.Errorf("unknown encoder session %q", args.SessionID)
	}
	return enc.AddVideoFrame(args.Frame)
}

func (s *CodecBackendRPCServer) EncoderAddAudioChunk(args EncoderAudioArgs, reply *struct{}) error {
	enc, ok := s.encoders[args.SessionID]
	if !ok {
		return fmt.Errorf("unknown encoder session %q", args.SessionID)
	}
	return enc.AddAudioChunk(args.Chunk)
}

func (s *CodecBackendRPCServer) EncoderFinalize(args EncoderFinalizeArgs, reply *EncoderFinalizeReply) error {
	enc, ok := s.encoders[args.SessionID]
	if !ok {
		return fmt.Errorf("unknown encoder session %q", args.SessionID)
	}
	out, err := enc.Finalize()
	delete(s.encoders, args.SessionID)
	reply.OutputPath = out
	return err
}

func (s *CodecBackendRPCServer) EncoderCancel(args EncoderSessionArgs, reply *struct{}) error {
	enc, ok := s.encoders[args.SessionID]
	if !ok {
		return nil
	}
	delete(s.encoders, args.SessionID)
	return enc.Cancel()
}

// CodecBackendRPCClient implements CodecBackend over an *rpc.Client,
// translating the streaming Decode call into DecodeChunk polling and
// Encoder handles into session-scoped calls.
type CodecBackendRPCClient struct {
	client *rpc.Client
}

func NewCodecBackendRPCClient(client *rpc.Client) *CodecBackendRPCClient {
	return &CodecBackendRPCClient{client: client}
}

func (c *CodecBackendRPCClient) Info() BackendInfo {
	var reply BackendInfo
	_ = c.client.Call("Plugin.Info", struct{}{}, &reply)
	return reply
}

func (c *CodecBackendRPCClient) SupportedFormats() []ContainerFormat {
	var reply []ContainerFormat
	_ = c.client.Call("Plugin.SupportedFormats", struct{}{}, &reply)
	return reply
}

func (c *CodecBackendRPCClient) Probe(sourcePath string) (ProbeResult, error) {
	var reply ProbeResult
	err := c.client.Call("Plugin.Probe", ProbeArgs{SourcePath: sourcePath}, &reply)
	return reply, err
}

func (c *CodecBackendRPCClient) Health() (HealthStatus, error) {
	var reply HealthStatus
	err := c.client.Call("Plugin.Health", struct{}{}, &reply)
	return reply, err
}

// chunkSize is the number of frames requested per DecodeChunk round trip,
// matching the demux pipeline's own chunking constant (spec §4.4).
const chunkSize = 30

func (c *CodecBackendRPCClient) Decode(ctx context.Context, sourcePath string, opts DecodeOptions, sink FrameSink) error {
	index := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		var reply DecodeChunkReply
		args := DecodeChunkArgs{SourcePath: sourcePath, Opts: opts, StartIndex: index, MaxFrames: chunkSize}
		if err := c.client.Call("Plugin.DecodeChunk", args, &reply); err != nil {
			return err
		}
		for _, f := range reply.Frames {
			if err := sink.Emit(f); err != nil {
				return err
			}
		}
		index += len(reply.Frames)
		if reply.Done {
			return nil
		}
	}
}

// rpcEncoder implements Encoder against an open session on the server side.
type rpcEncoder struct {
	client    *rpc.Client
	sessionID string
}

func (e *rpcEncoder) AddVideoFrame(frame VideoFrame) error {
	return e.client.Call("Plugin.EncoderAddVideoFrame", EncoderFrameArgs{SessionID: e.sessionID, Frame: frame}, &struct{}{})
}

func (e *rpcEncoder) AddAudioChunk(chunk AudioChunk) error {
	return e.client.Call("Plugin.EncoderAddAudioChunk", EncoderAudioArgs{SessionID: e.sessionID, Chunk: chunk}, &struct{}{})
}

func (e *rpcEncoder) Finalize() (string, error) {
	var reply EncoderFinalizeReply
	err := e.client.Call("Plugin.EncoderFinalize", EncoderFinalizeArgs{SessionID: e.sessionID}, &reply)
	return reply.OutputPath, err
}

func (e *rpcEncoder) Cancel() error {
	return e.client.Call("Plugin.EncoderCancel", EncoderSessionArgs{SessionID: e.sessionID}, &struct{}{})
}

func (c *CodecBackendRPCClient) NewEncoder(outputPath string, opts EncodeOptions) (Encoder, error) {
	var reply EncoderBeginReply
	args := EncoderBeginArgs{OutputPath: outputPath, Opts: opts}
	if err := c.client.Call("Plugin.EncoderBegin", args, &reply); err != nil {
		return nil, err
	}
	return &rpcEncoder{client: c.client, sessionID: reply.SessionID}, nil
}

var _ CodecBackend = (*CodecBackendRPCClient)(nil)
