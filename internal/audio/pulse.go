package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// PulseSource records fixed-size s16 frames from one Pulse input source.
type PulseSource struct {
	format   Format
	input    string
	fallback string

	device  Device
	warning string

	client *pulse.Client
	stream *pulse.RecordStream

	chunks chan pcmChunk
	stopCh chan struct{}

	mu      sync.Mutex
	pending []byte
	stopped bool

	inflight sync.WaitGroup
	bytes    atomic.Int64
}

type pcmChunk struct {
	pcm []byte
	at  time.Time
}

// NewPulseSource prepares a Pulse recorder. input and fallback are device
// search terms ("" or "default" selects the server default).
func NewPulseSource(format Format, input string, fallback string) *PulseSource {
	return &PulseSource{
		format:   format,
		input:    input,
		fallback: fallback,
		chunks:   make(chan pcmChunk, 64),
		stopCh:   make(chan struct{}),
	}
}

// ProbePulse checks that a Pulse server is reachable.
func ProbePulse(_ context.Context) error {
	client, err := newPulseClient()
	if err != nil {
		return err
	}
	client.Close()
	return nil
}

// Open resolves the input device and starts the record stream.
func (p *PulseSource) Open(ctx context.Context) error {
	if err := p.format.Validate(); err != nil {
		return permanent("pulse", err)
	}
	if p.format.Channels != 1 {
		return permanent("pulse", fmt.Errorf("pulse capture records mono only, got %d channels", p.format.Channels))
	}

	selection, err := SelectDevice(ctx, p.input, p.fallback)
	if err != nil {
		return permanent("pulse", err)
	}
	p.device = selection.Device
	p.warning = selection.Warning

	client, err := newPulseClient()
	if err != nil {
		return permanent("pulse", err)
	}
	p.client = client

	source, err := client.SourceByID(selection.Device.ID)
	if err != nil {
		p.shutdown()
		return permanent("pulse", fmt.Errorf("resolve source %q: %w", selection.Device.ID, err))
	}

	writer := pulse.NewWriter(writerFunc(p.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(p.format.SampleRate),
		pulse.RecordBufferFragmentSize(uint32(p.format.BytesPerFrame())),
		pulse.RecordMediaName("parla dictation"),
	)
	if err != nil {
		p.shutdown()
		return permanent("pulse", fmt.Errorf("create pulse record stream: %w", err))
	}

	p.stream = stream
	stream.Start()
	return nil
}

// Device returns the selected input after Open.
func (p *PulseSource) Device() Device {
	return p.device
}

// Warning returns the device fallback warning, if any.
func (p *PulseSource) Warning() string {
	return p.warning
}

// BytesCaptured reports total bytes accepted from Pulse.
func (p *PulseSource) BytesCaptured() int64 {
	return p.bytes.Load()
}

// Next blocks until one full frame is available.
func (p *PulseSource) Next(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case chunk, ok := <-p.chunks:
		if !ok {
			return Frame{}, io.EOF
		}
		return FrameFromPCM16(chunk.pcm, p.format, chunk.at), nil
	}
}

// Close halts the stream and closes the chunk channel exactly once.
// A trailing partial frame is discarded so every frame keeps the session format.
func (p *PulseSource) Close() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	p.mu.Unlock()

	p.shutdown()
	p.inflight.Wait()

	p.mu.Lock()
	p.pending = nil
	p.mu.Unlock()

	close(p.chunks)
	return nil
}

func (p *PulseSource) shutdown() {
	if p.stream != nil {
		p.stream.Stop()
		p.stream.Close()
		p.stream = nil
	}
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
}

// onPCM receives raw Pulse buffers and emits frame-sized slices.
func (p *PulseSource) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-p.stopCh:
		return 0, io.EOF
	default:
	}

	size := p.format.BytesPerFrame()
	if size <= 0 {
		return 0, errors.New("invalid frame size")
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return 0, io.EOF
	}
	// Guard Add under the same mutex as p.stopped to avoid Add/Wait races.
	p.inflight.Add(1)

	now := time.Now()
	p.pending = append(p.pending, buffer...)
	chunks := make([]pcmChunk, 0, len(p.pending)/size)
	for len(p.pending) >= size {
		pcm := make([]byte, size)
		copy(pcm, p.pending[:size])
		p.pending = p.pending[size:]
		chunks = append(chunks, pcmChunk{pcm: pcm, at: now})
	}
	p.mu.Unlock()
	defer p.inflight.Done()

	p.bytes.Add(int64(len(buffer)))

	for _, chunk := range chunks {
		select {
		case <-p.stopCh:
			return 0, io.EOF
		case p.chunks <- chunk:
		}
	}

	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
