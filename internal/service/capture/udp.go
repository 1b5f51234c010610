package capture

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/benbjohnson/clock"

	"github.com/lawinko/vision-detector/internal/config"
	"github.com/lawinko/vision-detector/internal/logger"
)

var (
	jpegHeader = []byte{0xFF, 0xD8}
	jpegFooter = []byte{0xFF, 0xD9}
)

// maxFrameSize bounds a camera buffer that never sees an end-of-image marker.
const maxFrameSize = 4 << 20

// Reassembler rebuilds JPEG frames split across datagrams, one buffer per camera.
// It is not safe for concurrent use.
type Reassembler struct {
	buffers map[string]*bytes.Buffer
}

func NewReassembler() *Reassembler {
	return &Reassembler{buffers: make(map[string]*bytes.Buffer)}
}

// Feed appends one datagram and returns the completed frame when data ends it.
// A start-of-image marker discards any partial frame.
func (r *Reassembler) Feed(camera string, data []byte) ([]byte, bool) {
	buf, ok := r.buffers[camera]
	if !ok {
		buf = new(bytes.Buffer)
		r.buffers[camera] = buf
	}

	if bytes.HasPrefix(data, jpegHeader) {
		buf.Reset()
	} else if buf.Len() == 0 {
		// mid-frame packet with no start seen
		return nil, false
	}
	buf.Write(data)

	if buf.Len() > maxFrameSize {
		buf.Reset()
		return nil, false
	}

	if !bytes.HasSuffix(data, jpegFooter) {
		return nil, false
	}
	frame := make([]byte, buf.Len())
	copy(frame, buf.Bytes())
	buf.Reset()
	return frame, true
}

// UDPSource listens for JPEG frames streamed by network cameras.
type UDPSource struct {
	config  *config.Config
	logger  *logger.Logger
	handler FrameHandler
	clock   clock.Clock
}

func NewUDPSource(config *config.Config, logger *logger.Logger, handler FrameHandler, clk clock.Clock) *UDPSource {
	if clk == nil {
		clk = clock.New()
	}
	return &UDPSource{config: config, logger: logger, handler: handler, clock: clk}
}

// CameraName maps a sender address to its configured name.
func (s *UDPSource) CameraName(addr *net.UDPAddr) string {
	ip := addr.IP.String()
	if name, ok := s.config.CameraNames[ip]; ok {
		return name
	}
	return "unknown_" + ip
}

// Run receives datagrams until ctx is cancelled.
func (s *UDPSource) Run(ctx context.Context) error {
	port := strconv.Itoa(s.config.CamerasPort)

	addr, err := net.ResolveUDPAddr("udp", ":"+port)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, conn)
}

// Serve reads from an already bound connection and closes it when ctx is done.
func (s *UDPSource) Serve(ctx context.Context, conn net.PacketConn) error {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	s.logger.Info("UDP Camera handler started on %s", conn.LocalAddr())
	buffer := make([]byte, 65535)
	frames := NewReassembler()

	for {
		n, remote, err := conn.ReadFrom(buffer)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("Error reading UDP packet: %v", err)
			continue
		}

		udpAddr, ok := remote.(*net.UDPAddr)
		if !ok {
			continue
		}
		camera := s.CameraName(udpAddr)

		data, complete := frames.Feed(camera, buffer[:n])
		if !complete {
			continue
		}

		frame, err := DecodeJPEG(data)
		if err != nil {
			s.logger.Warning("Camera %s: %v", camera, err)
			continue
		}
		frame.Camera = camera
		frame.CapturedAt = s.clock.Now()
		s.handler.HandleFrame(frame)
	}
}
