package recognize

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rbright/parla/internal/audio"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// RecognizeMethod is the full gRPC method name served by a remote recognizer.
// Requests and replies are google.protobuf.Struct messages:
//
//	request: {sample_rate, channels, language, model, audio: base64 s16le}
//	reply:   {text, language, confidence}
const RecognizeMethod = "/parla.v1.Recognizer/Recognize"

// RemoteConfig points at a gRPC recognizer.
type RemoteConfig struct {
	Address     string
	Model       string
	Language    string
	DialTimeout time.Duration
	CallTimeout time.Duration
	DialOptions []grpc.DialOption
}

// Remote sends each utterance to a gRPC recognizer service.
type Remote struct {
	cfg  RemoteConfig
	conn *grpc.ClientConn

	closeOnce sync.Once
	closeErr  error
}

// DialRemote connects and waits until the channel is ready.
func DialRemote(ctx context.Context, cfg RemoteConfig) (*Remote, error) {
	address := strings.TrimSpace(cfg.Address)
	if address == "" {
		return nil, errors.New("recognizer address is empty")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}

	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, cfg.DialOptions...)
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial recognizer grpc %q: %w", address, err)
	}

	readyCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	conn.Connect()
	if err := waitForReady(readyCtx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wait for recognizer grpc readiness: %w", err)
	}

	return &Remote{cfg: cfg, conn: conn}, nil
}

func (r *Remote) Recognize(ctx context.Context, frames []audio.Frame) (Result, error) {
	if len(frames) == 0 {
		return Result{}, nil
	}
	started := time.Now()

	req, err := structpb.NewStruct(map[string]any{
		"sample_rate": frames[0].SampleRate,
		"channels":    frames[0].Channels,
		"language":    r.cfg.Language,
		"model":       r.cfg.Model,
		"audio":       base64.StdEncoding.EncodeToString(encodePCM16(audio.Concat(frames))),
	})
	if err != nil {
		return Result{}, Fatal("remote", fmt.Errorf("build request: %w", err))
	}

	callCtx := ctx
	if r.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()
	}

	reply := &structpb.Struct{}
	if err := r.conn.Invoke(callCtx, RecognizeMethod, req, reply); err != nil {
		return Result{}, classifyRPCError(err)
	}

	fields := reply.GetFields()
	language := fields["language"].GetStringValue()
	if language == "" {
		language = r.cfg.Language
	}
	return Result{
		Text:       fields["text"].GetStringValue(),
		Language:   language,
		Confidence: clampConfidence(fields["confidence"].GetNumberValue()),
		Duration:   time.Since(started),
	}, nil
}

// Close tears down the connection once.
func (r *Remote) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.conn.Close()
	})
	return r.closeErr
}

// classifyRPCError maps transport failures that a retry could fix to
// retryable errors and configuration/protocol failures to fatal ones.
func classifyRPCError(err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted,
		codes.Aborted, codes.Canceled, codes.Internal, codes.Unknown:
		return Retryable("remote", err)
	default:
		return Fatal("remote", err)
	}
}

func encodePCM16(samples []float32) []byte {
	ints := audio.Float32ToPCM16(samples)
	out := make([]byte, len(ints)*2)
	for i, v := range ints {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// waitForReady blocks until gRPC connection enters Ready or fails.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection entered shutdown state")
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("grpc readiness wait timed out in state %s", state.String())
		}
	}
}

// RecognizerServer is implemented by services that answer RecognizeMethod.
type RecognizerServer interface {
	Recognize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RecognizerServiceDesc registers a RecognizerServer on a *grpc.Server.
var RecognizerServiceDesc = grpc.ServiceDesc{
	ServiceName: "parla.v1.Recognizer",
	HandlerType: (*RecognizerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Recognize",
			Handler:    recognizeHandler,
		},
	},
	Metadata: "parla/v1/recognizer.proto",
}

func recognizeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecognizerServer).Recognize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RecognizeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RecognizerServer).Recognize(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// DecodeRequestAudio extracts samples from a Recognize request.
func DecodeRequestAudio(req *structpb.Struct) ([]float32, int, error) {
	fields := req.GetFields()
	raw, err := base64.StdEncoding.DecodeString(fields["audio"].GetStringValue())
	if err != nil {
		return nil, 0, fmt.Errorf("decode audio: %w", err)
	}
	return audio.PCM16ToFloat32(raw), int(fields["sample_rate"].GetNumberValue()), nil
}
