package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/lawinko/vision-detector/internal/config"
	"github.com/lawinko/vision-detector/internal/detection"
	"github.com/lawinko/vision-detector/internal/logger"
	"github.com/lawinko/vision-detector/internal/route"
	"github.com/lawinko/vision-detector/internal/service"
	"github.com/lawinko/vision-detector/internal/service/capture"
	"github.com/lawinko/vision-detector/internal/service/inference"
	"github.com/lawinko/vision-detector/internal/service/overlay"
	"github.com/lawinko/vision-detector/internal/service/webcam"
	"github.com/lawinko/vision-detector/internal/service/websocket"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config     *config.Config
	logger     *logger.Logger
	model      inference.Model
	hubService *websocket.HubService
	manager    *service.Manager
	clock      clock.Clock
}

func NewApp() *App {
	cfg := config.Load()
	log := logger.NewLogger(cfg)
	clk := clock.New()

	labels, err := detection.LoadLabels(cfg.LabelsPath)
	if err != nil {
		log.Warning("Could not load labels from %s, using class numbers: %v", cfg.LabelsPath, err)
		labels = detection.NewLabelTable(nil)
	}

	hub := websocket.NewHubService(log)

	// Without a model the server still runs; frames are accepted and ignored.
	model, modelErr := inference.New(cfg, log)
	var detector service.Model
	if modelErr != nil {
		log.Error("Could not initialize detection model: %v", modelErr)
	} else {
		detector = model
	}

	mng := service.NewManager(detector, detection.NewDecoder(labels), hub, cfg, log, clk)
	if modelErr != nil {
		mng.SetModelError(modelErr)
	}

	return &App{
		config:     cfg,
		logger:     log,
		model:      model,
		hubService: hub,
		manager:    mng,
		clock:      clk,
	}
}

// Run serves HTTP and the configured frame sources until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				a.logger.Error("%s stopped: %v", name, err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.hubService.Run(ctx)
	}()

	if a.config.CamerasPort > 0 {
		run("UDP camera source", capture.NewUDPSource(a.config, a.logger, a.manager, a.clock).Run)
	}
	if a.config.CameraDevice != "" {
		run("Local camera", webcam.NewSource(a.config, a.logger, a.manager).Run)
	}

	router := route.SetupRoutes(a.manager, a.hubService, overlay.Render, a.config, a.logger, a.clock)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Port),
		Handler: router,
	}

	fmt.Printf("🚀 Vision Detector\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("🔑 Password: %s\n", a.config.Password)
	fmt.Printf("🤖 Model: %s (%s) - %s\n", a.config.ModelPath, a.config.ModelBackend, a.manager.ModelState())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	var err error
	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		err = server.Shutdown(shutdownCtx)
		stop()
	}

	cancel()
	wg.Wait()
	return err
}

// Close stops the pipeline and releases the model and log files.
func (a *App) Close() error {
	a.manager.Stop()

	var err error
	if a.model != nil {
		err = multierr.Append(err, a.model.Close())
	}
	return multierr.Append(err, a.logger.Close())
}
