package audio

import (
	"context"
	"io"
	"reflect"
	"testing"
	"time"

	pulseproto "github.com/jfreymuth/pulse/proto"
	"github.com/stretchr/testify/require"
)

func TestSelectDeviceFromListPrimaryDefault(t *testing.T) {
	devices := []Device{
		{ID: "rode", Description: "RODE NT-USB Mini", Available: true, Default: true},
		{ID: "jabra", Description: "Jabra Evolve2 65", Available: true},
	}

	selection, err := selectDeviceFromList(devices, "default", "")
	require.NoError(t, err)
	require.Equal(t, "rode", selection.Device.ID)
	require.Empty(t, selection.Warning)
}

func TestSelectDeviceFromListMutedPrimaryUsesFallback(t *testing.T) {
	devices := []Device{
		{ID: "rode", Description: "RODE NT-USB Mini", Available: true, Muted: true, Default: true},
		{ID: "jabra", Description: "Jabra Evolve2 65", Available: true},
	}

	selection, err := selectDeviceFromList(devices, "rode", "jabra")
	require.NoError(t, err)
	require.Equal(t, "jabra", selection.Device.ID)
	require.Contains(t, selection.Warning, "muted")
	require.True(t, selection.Fallback)
}

func TestSelectDeviceFromListUnavailableInputFallsBackToDefault(t *testing.T) {
	devices := []Device{
		{ID: "builtin", Description: "Built-in", Available: true, Default: true},
		{ID: "usb-mic", Description: "USB Mic", Available: false},
	}

	selection, err := selectDeviceFromList(devices, "usb", "")
	require.NoError(t, err)
	require.Equal(t, "builtin", selection.Device.ID)
	require.Contains(t, selection.Warning, "unavailable")
}

func TestSelectDeviceFromListFailsWhenSelectedAndFallbackMuted(t *testing.T) {
	devices := []Device{
		{ID: "rode", Description: "RODE NT-USB Mini", Available: true, Muted: true, Default: true},
	}

	_, err := selectDeviceFromList(devices, "default", "default")
	require.Error(t, err)
	require.Contains(t, err.Error(), "muted")
}

func TestSelectDeviceFromListUnknownInput(t *testing.T) {
	devices := []Device{{ID: "rode", Description: "RODE NT-USB Mini", Available: true, Default: true}}

	_, err := selectDeviceFromList(devices, "missing", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "did not match")
}

func TestSelectDeviceFromListEmpty(t *testing.T) {
	_, err := selectDeviceFromList(nil, "", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no audio input devices")
}

func TestDeviceMatchesByIDAndDescription(t *testing.T) {
	dev := Device{ID: "alsa_input.usb-rode", Description: "RODE NT-USB Mini"}
	require.True(t, deviceMatches(dev, "rode"))
	require.True(t, deviceMatches(dev, "nt-usb"))
	require.False(t, deviceMatches(dev, "missing"))
	require.False(t, deviceMatches(dev, ""))
}

func TestListDevicesFailsWhenPulseUnavailable(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	_, err := ListDevices(context.Background())
	require.Error(t, err)
}

func TestPulseSourceOpenFailsPermanentlyWhenPulseUnavailable(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	err := NewPulseSource(DefaultFormat(), "", "").Open(context.Background())
	require.Error(t, err)
	require.True(t, IsPermanent(err))
	require.Error(t, ProbePulse(context.Background()))
}

func TestPulseSourceOpenRejectsStereo(t *testing.T) {
	format := DefaultFormat()
	format.Channels = 2
	err := NewPulseSource(format, "", "").Open(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "mono")
}

func TestSourceStateString(t *testing.T) {
	require.Equal(t, "running", sourceStateString(0))
	require.Equal(t, "idle", sourceStateString(1))
	require.Equal(t, "suspended", sourceStateString(2))
	require.Equal(t, "unknown(99)", sourceStateString(99))
}

func TestSourceAvailable(t *testing.T) {
	require.False(t, sourceAvailable(nil))
	require.True(t, sourceAvailable(&pulseproto.GetSourceInfoReply{})) // no ports => available

	available := &pulseproto.GetSourceInfoReply{ActivePortName: "mic"}
	setSourcePorts(t, available, []sourcePort{{name: "mic", available: 2}})
	require.True(t, sourceAvailable(available))

	notAvailable := &pulseproto.GetSourceInfoReply{ActivePortName: "mic"}
	setSourcePorts(t, notAvailable, []sourcePort{{name: "mic", available: 1}})
	require.False(t, sourceAvailable(notAvailable))
}

func TestPulseSourceOnPCMEmitsWholeFrames(t *testing.T) {
	source := NewPulseSource(DefaultFormat(), "", "")
	size := DefaultFormat().BytesPerFrame()

	input := make([]byte, size+111)
	for i := range input {
		input[i] = byte(i % 255)
	}

	n, err := source.onPCM(input)
	require.NoError(t, err)
	require.Equal(t, len(input), n)
	require.Equal(t, int64(len(input)), source.BytesCaptured())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	frame, err := source.Next(ctx)
	require.NoError(t, err)
	require.Len(t, frame.Samples, DefaultFormat().SamplesPerFrame())
	require.Equal(t, DefaultFrameDuration, frame.Duration)

	require.NoError(t, source.Close())

	_, err = source.Next(ctx)
	require.ErrorIs(t, err, io.EOF)
	require.NoError(t, source.Close())
}

func TestPulseSourceOnPCMReturnsEOFWhenStopped(t *testing.T) {
	source := NewPulseSource(DefaultFormat(), "", "")
	require.NoError(t, source.Close())

	n, err := source.onPCM([]byte{1, 2, 3})
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, int64(0), source.BytesCaptured())
}

func TestPulseSourceNextHonorsContext(t *testing.T) {
	source := NewPulseSource(DefaultFormat(), "", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := source.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWriterFuncDelegatesWrite(t *testing.T) {
	called := false
	writer := writerFunc(func(b []byte) (int, error) {
		called = true
		require.Equal(t, []byte{1, 2, 3}, b)
		return len(b), nil
	})

	n, err := writer.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.True(t, called)
}

type sourcePort struct {
	name      string
	available uint32
}

func setSourcePorts(t *testing.T, reply *pulseproto.GetSourceInfoReply, ports []sourcePort) {
	t.Helper()

	sliceType := reflect.TypeOf(reply.Ports)
	sliceValue := reflect.MakeSlice(sliceType, len(ports), len(ports))

	for i, port := range ports {
		item := sliceValue.Index(i)
		item.FieldByName("Name").SetString(port.name)
		item.FieldByName("Available").SetUint(uint64(port.available))
	}

	replyValue := reflect.ValueOf(reply).Elem().FieldByName("Ports")
	replyValue.Set(sliceValue)
}
