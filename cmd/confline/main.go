package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"confline/internal/core/domain"
	"confline/internal/core/ports"
	"confline/internal/core/services"
	httphandlers "confline/internal/handlers/http"
	"confline/internal/infrastructure/media"
	"confline/internal/infrastructure/monitoring"
	repositories "confline/internal/infrastructure/repositories"
	"confline/internal/infrastructure/signal"
	"confline/internal/infrastructure/telemetry"
	"confline/pkg/circuitbreaker"
	"confline/pkg/config"
	"confline/pkg/logger"
	"confline/pkg/retry"
	"confline/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// capture drivers register themselves with mediadevices
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
)

func loadConfig(explicit string) (*config.Config, error) {
	if explicit != "" {
		return config.Load(explicit)
	}

	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			return cfg, nil
		}
	}
	return nil, err
}

type breakerReporter interface {
	BreakerState() circuitbreaker.State
}

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()
	if err != nil {
		log.Warnw("config not loaded, using defaults", "error", err)
	}

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "confline",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: "local",
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialise tracing", "error", err)
	}

	identity := domain.Identity{
		UserID:      domain.UserID(cfg.Identity.UserID),
		DisplayName: cfg.Identity.DisplayName,
	}
	tokens := services.NewTokenService(cfg.Identity.TokenSecret, cfg.Identity.TokenTTL)

	var metrics ports.MetricsRecorder
	var metricsHandler http.Handler
	if cfg.Monitoring.PrometheusEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = monitoring.NewPrometheusCollector(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		log.Info("Prometheus metrics enabled")
	}

	repoFactory := repositories.NewRepositoryFactory(cfg, log)
	history := repoFactory.CreateHistoryStore()
	directory, err := repoFactory.CreateDirectoryStore(identity, tokens, metrics)
	if err != nil {
		log.Fatalw("failed to create directory store", "error", err)
	}

	health := monitoring.NewHealthChecker()
	health.AddCheck("history", repoFactory.HealthCheck, 2*time.Second)
	if br, ok := directory.(breakerReporter); ok {
		health.AddBreakerCheck("directory", br.BreakerState)
	}

	var provider ports.ConnectionInfoProvider = telemetry.Unavailable{}
	if cfg.Network.ProbeURL != "" {
		provider = telemetry.NewDownloadProbe(cfg.Network.ProbeURL, cfg.Network.ProbeBytes, cfg.Network.ProbeTimeout, log)
	}

	var hub *signal.Hub
	surfaceURL := cfg.Surface.URL
	if surfaceURL == "" {
		hub = signal.NewHub(cfg.Surface.PingInterval, cfg.Surface.PongTimeout, log)
		surfaceURL = "ws://" + cfg.Control.Address + "/surface"
		log.Infow("no surface url configured, serving embedded room hub", "url", surfaceURL)
	}
	surfaceRetry := retry.DefaultConfig()
	surfaceRetry.MaxAttempts = cfg.Surface.DialAttempts
	surface, err := signal.NewSurface(signal.SurfaceConfig{
		URL:          surfaceURL,
		PingInterval: cfg.Surface.PingInterval,
		PongTimeout:  cfg.Surface.PongTimeout,
		Retry:        surfaceRetry,
	}, log)
	if err != nil {
		log.Fatalw("invalid surface configuration", "error", err)
	}

	capturer := media.NewCapturer(media.SystemDriver(), log)

	conferences := services.NewConferenceManager(directory, history, identity, metrics, log)
	controller := services.NewSessionController(
		services.NewDeviceCatalog(capturer, log),
		services.NewAudioLevelMeter(cfg.Calibration.FFTSize, cfg.Calibration.FrameInterval, metrics, log),
		services.NewNetworkQualityMonitor(provider, cfg.Network.SampleInterval, metrics, log),
		services.NewStreamQualityAdapter(metrics, log),
		conferences,
		capturer,
		surface,
		identity,
		log,
	)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httphandlers.NewRouter(httphandlers.RouterDeps{
		Config:      cfg,
		Identity:    identity,
		Tokens:      tokens,
		Conferences: conferences,
		Session:     controller,
		Health:      health,
		Metrics:     metricsHandler,
		Hub:         hub,
		Logger:      log,
	})

	srv := &http.Server{
		Addr:         cfg.Control.Address,
		Handler:      router,
		ReadTimeout:  cfg.Control.ReadTimeout,
		WriteTimeout: cfg.Control.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting confline control API", "address", cfg.Control.Address, "user_id", identity.UserID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Control.ShutdownTimeout)
	defer shutdownCancel()

	// leave the call first so the creator's end still reaches the directory
	controller.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}

	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repository factory", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error flushing traces", "error", err)
	}

	log.Info("confline stopped")
}
