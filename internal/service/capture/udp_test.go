package capture

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lawinko/vision-detector/internal/config"
	"github.com/lawinko/vision-detector/internal/dto"
	"github.com/lawinko/vision-detector/internal/logger"
)

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.SetRGBA(0, 0, color.RGBA{A: 255})
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestReassembler_JoinsPackets(t *testing.T) {
	r := NewReassembler()
	data := encodeJPEG(t, 32, 24)
	mid := len(data) / 2

	_, done := r.Feed("front", data[:mid])
	assert.False(t, done)
	frame, done := r.Feed("front", data[mid:])
	require.True(t, done)
	assert.Equal(t, data, frame)
}

func TestReassembler_RestartsOnNewHeader(t *testing.T) {
	r := NewReassembler()
	data := encodeJPEG(t, 16, 16)

	r.Feed("front", data[:10])
	frame, done := r.Feed("front", data)
	require.True(t, done)
	assert.Equal(t, data, frame, "partial frame should be discarded")
}

func TestReassembler_IgnoresOrphanPackets(t *testing.T) {
	r := NewReassembler()
	data := encodeJPEG(t, 16, 16)

	_, done := r.Feed("front", data[10:])
	assert.False(t, done, "packet without a start marker")
}

func TestReassembler_CamerasAreIndependent(t *testing.T) {
	r := NewReassembler()
	a := encodeJPEG(t, 16, 16)
	b := encodeJPEG(t, 8, 8)

	r.Feed("a", a[:20])
	r.Feed("b", b[:20])
	frame, done := r.Feed("a", a[20:])
	require.True(t, done)
	assert.Equal(t, a, frame)
	frame, done = r.Feed("b", b[20:])
	require.True(t, done)
	assert.Equal(t, b, frame)
}

type frameRecorder struct {
	mu     sync.Mutex
	frames []dto.Frame
}

func (f *frameRecorder) HandleFrame(frame dto.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
}

func (f *frameRecorder) Frames() []dto.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dto.Frame(nil), f.frames...)
}

func TestUDPSource_DeliversDecodedFrames(t *testing.T) {
	cfg := &config.Config{
		LogDirectory: t.TempDir(),
		CameraNames:  map[string]string{"127.0.0.1": "garden"},
	}
	log := logger.NewLogger(cfg)
	defer log.Close()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	recorder := &frameRecorder{}
	source := NewUDPSource(cfg, log, recorder, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- source.Serve(ctx, conn) }()

	client, err := net.Dial("udp", conn.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	data := encodeJPEG(t, 40, 30)
	for start := 0; start < len(data); start += 512 {
		end := min(start+512, len(data))
		_, err := client.Write(data[start:end])
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return len(recorder.Frames()) == 1 }, 2*time.Second, 10*time.Millisecond)
	frame := recorder.Frames()[0]
	assert.Equal(t, "garden", frame.Camera)
	assert.Equal(t, image.Rect(0, 0, 40, 30), frame.Image.Bounds())
	assert.False(t, frame.CapturedAt.IsZero())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestDecodeJPEG_RejectsGarbage(t *testing.T) {
	_, err := DecodeJPEG([]byte{0xFF, 0xD8, 0x00, 0xFF, 0xD9})
	assert.Error(t, err)
}
