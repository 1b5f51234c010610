package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"github.com/lawinko/vision-detector/internal/config"
	"github.com/lawinko/vision-detector/internal/detection"
	"github.com/lawinko/vision-detector/internal/dto"
	"github.com/lawinko/vision-detector/internal/logger"
	"github.com/lawinko/vision-detector/internal/service/preprocess"
)

// Model runs the detector on a fixed-size RGB buffer and returns its raw output tensors.
type Model interface {
	Infer(pixels []byte) ([][]float32, error)
	InputSize() int
}

// Broadcaster delivers encoded results to viewers. For each kind only the latest
// message matters.
type Broadcaster interface {
	Broadcast(kind string, message []byte)
	GetClientCount() int
}

type Manager struct {
	model     Model
	modelErr  error
	decoder   *detection.Decoder
	tracker   *detection.RateTracker
	threshold *Threshold
	results   *ResultCell
	hub       Broadcaster
	logger    *logger.Logger
	clock     clock.Clock
	limiter   *rate.Limiter
	target    detection.Resolution

	pending chan dto.Frame // single slot, newest frame wins
	pixels  []byte         // preprocessing buffer, owned by the processing worker

	sequence        atomic.Uint64
	framesReceived  atomic.Uint64
	framesThrottled atomic.Uint64
	framesReplaced  atomic.Uint64
	framesProcessed atomic.Uint64
	inferenceErrors atomic.Uint64
	lastDetections  atomic.Int64

	timingsMu sync.Mutex
	timings   dto.ProcessingTimings

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewManager creates the frame pipeline and starts its processing worker.
// A nil model leaves the pipeline idle: frames are dropped without ticking the rate tracker.
func NewManager(model Model, decoder *detection.Decoder, hub Broadcaster, config *config.Config, logger *logger.Logger, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.New()
	}

	limit := rate.Inf
	if config.FrameProcessorFPS > 0 {
		limit = rate.Limit(config.FrameProcessorFPS)
	}

	ctx, cancel := context.WithCancel(context.Background())
	manager := &Manager{
		model:     model,
		decoder:   decoder,
		tracker:   detection.NewRateTracker(),
		threshold: NewThreshold(config.ConfidenceThreshold, config.ThresholdMin, config.ThresholdMax),
		results:   &ResultCell{},
		hub:       hub,
		logger:    logger,
		clock:     clk,
		limiter:   rate.NewLimiter(limit, 1),
		target:    config.Target(),
		pending:   make(chan dto.Frame, 1),
		cancel:    cancel,
	}

	manager.wg.Add(1)
	go manager.processingWorker(ctx)

	manager.logger.Info("🎬 Manager started - processing at most %.1f frame(s) per second", config.FrameProcessorFPS)
	return manager
}

// SetModelError records why no model is available; it is reported by ModelState.
func (m *Manager) SetModelError(err error) {
	m.modelErr = err
}

// HandleFrame accepts a frame from any capture source. Frames over the rate cap are
// dropped, and a frame still waiting for the worker is replaced by the newer one.
func (m *Manager) HandleFrame(frame dto.Frame) {
	m.framesReceived.Inc()

	if m.model == nil || frame.Image == nil {
		return
	}

	if !m.limiter.AllowN(m.clock.Now(), 1) {
		m.framesThrottled.Inc()
		return
	}

	select {
	case m.pending <- frame:
		return
	default:
	}

	// Mailbox full: discard the stale frame and retry once.
	select {
	case <-m.pending:
		m.framesReplaced.Inc()
	default:
	}
	select {
	case m.pending <- frame:
	default:
		m.framesReplaced.Inc()
		m.logger.Warning("⚠️  Camera %s: frame dropped, processor busy", frame.Camera)
	}
}

// processingWorker handles frames strictly one at a time in arrival order.
func (m *Manager) processingWorker(ctx context.Context) {
	defer m.wg.Done()

	m.logger.Info("🔧 Processing worker started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("🔧 Processing worker stopped")
			return
		case frame := <-m.pending:
			m.processFrame(frame)
		}
	}
}

// processFrame ticks the rate tracker, runs inference and decodes the result.
func (m *Manager) processFrame(frame dto.Frame) {
	sequence := m.sequence.Inc()
	start := m.clock.Now()

	if fps, ok := m.tracker.Tick(start); ok {
		m.publish(dto.MessageFPS, dto.NewRateMessage(frame.Camera, sequence, fps))
	}

	m.pixels = preprocess.RGBInto(m.pixels, frame.Image, m.model.InputSize())
	preprocessed := m.clock.Now()

	tensors, err := m.model.Infer(m.pixels)
	if err != nil {
		m.inferenceErrors.Inc()
		m.logger.Error("Inference failed for camera %s: %v", frame.Camera, err)
		return
	}
	inferred := m.clock.Now()

	threshold := m.threshold.Load()
	target := m.targetFor(frame)
	detections := m.decoder.Decode(tensors, target, threshold)
	decoded := m.clock.Now()

	timestamp := frame.CapturedAt
	if timestamp.IsZero() {
		timestamp = start
	}

	result := dto.FrameResult{
		Sequence:   sequence,
		Camera:     frame.Camera,
		Timestamp:  timestamp,
		Target:     target,
		Threshold:  threshold,
		Detections: detections,
	}

	m.framesProcessed.Inc()
	m.lastDetections.Store(int64(len(detections)))
	m.recordTimings(dto.ProcessingTimings{
		Preprocess: preprocessed.Sub(start),
		Inference:  inferred.Sub(preprocessed),
		Decode:     decoded.Sub(inferred),
		Total:      decoded.Sub(start),
	})

	if m.results.Store(Snapshot{Result: result, Frame: frame.Image}) {
		m.publish(dto.MessageDetections, result)
	}
}

// targetFor returns the configured render resolution, falling back to the frame size.
func (m *Manager) targetFor(frame dto.Frame) detection.Resolution {
	if m.target.Width > 0 && m.target.Height > 0 {
		return m.target
	}
	bounds := frame.Image.Bounds()
	return detection.Resolution{Width: bounds.Dx(), Height: bounds.Dy()}
}

func (m *Manager) publish(kind string, message interface{}) {
	if m.hub == nil {
		return
	}
	data, err := json.Marshal(message)
	if err != nil {
		m.logger.Error("Failed to encode %s message: %v", kind, err)
		return
	}
	m.hub.Broadcast(kind, data)
}

func (m *Manager) recordTimings(t dto.ProcessingTimings) {
	m.timingsMu.Lock()
	m.timings = t
	m.timingsMu.Unlock()
}

// Latest returns the newest decoded frame and its result.
func (m *Manager) Latest() (Snapshot, bool) {
	return m.results.Load()
}

// Threshold returns the live confidence threshold.
func (m *Manager) Threshold() *Threshold {
	return m.threshold
}

// ModelState describes whether inference is available.
func (m *Manager) ModelState() string {
	switch {
	case m.model != nil:
		return "loaded"
	case m.modelErr != nil:
		return "error: " + m.modelErr.Error()
	default:
		return "unavailable"
	}
}

// Stats returns pipeline counters.
func (m *Manager) Stats() dto.Stats {
	fps, hasFPS := m.tracker.Last()

	m.timingsMu.Lock()
	timings := m.timings
	m.timingsMu.Unlock()

	stats := dto.Stats{
		ModelState:      m.ModelState(),
		FramesReceived:  m.framesReceived.Load(),
		FramesThrottled: m.framesThrottled.Load(),
		FramesReplaced:  m.framesReplaced.Load(),
		FramesProcessed: m.framesProcessed.Load(),
		InferenceErrors: m.inferenceErrors.Load(),
		FPS:             fps,
		HasFPS:          hasFPS,
		LastDetections:  int(m.lastDetections.Load()),
		Threshold:       m.threshold.Load(),
		Timings:         timings,
	}
	if m.hub != nil {
		stats.Viewers = m.hub.GetClientCount()
	}
	return stats
}

// Stop stops the processing worker. A frame already being decoded completes first.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
		m.wg.Wait()
		m.logger.Info("🛑 Processing worker stopped, %d frame(s) processed", m.framesProcessed.Load())
	})
}

// FrameAge reports how long ago the latest result was captured.
func (m *Manager) FrameAge() (time.Duration, bool) {
	snap, ok := m.results.Load()
	if !ok {
		return 0, false
	}
	return m.clock.Since(snap.Result.Timestamp), true
}
