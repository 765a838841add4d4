// Package runtime assembles the translation runtime: embedded bus,
// history store, device registry, session orchestrator, speech output
// and the HTTP control surface.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lingo-labs/lingo-core/internal/bus"
	"github.com/lingo-labs/lingo-core/internal/capture"
	"github.com/lingo-labs/lingo-core/internal/config"
	"github.com/lingo-labs/lingo-core/internal/devices"
	"github.com/lingo-labs/lingo-core/internal/history"
	"github.com/lingo-labs/lingo-core/internal/natsserver"
	"github.com/lingo-labs/lingo-core/internal/protocol"
	"github.com/lingo-labs/lingo-core/internal/session"
	"github.com/lingo-labs/lingo-core/internal/speech"
	"github.com/lingo-labs/lingo-core/internal/translate"
)

type Runtime struct {
	cfg           config.Config
	logger        *slog.Logger
	httpServer    *http.Server
	metricsServer *http.Server
	tracerClose   func(context.Context) error
	ready         atomic.Bool
	wg            sync.WaitGroup

	natsServer *natsserver.EmbeddedServer
	bus        *bus.Client
	store      *history.Store
	registry   *devices.Registry
	sessions   *session.Service
	speech     *speech.Service
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if r.cfg.Bus.Embedded {
		server, err := natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
		r.natsServer = server
	}

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.bus = busClient

	store, err := history.Open(ctx, r.cfg.History, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	r.store = store

	registry, err := devices.NewRegistry(ctx, r.cfg.Node, busClient, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start device registry: %w", err)
	}
	r.registry = registry

	synth, err := buildSynthesizer(r.cfg.Speech)
	if err != nil {
		return fmt.Errorf("failed to build synthesizer: %w", err)
	}
	speechService := speech.NewService(ctx, r.cfg.Speech, busClient, synth, r.logger)
	if err := speechService.Start(); err != nil {
		return fmt.Errorf("failed to start speech service: %w", err)
	}
	r.speech = speechService

	translator, err := r.buildTranslator(ctx)
	if err != nil {
		return fmt.Errorf("failed to build translator: %w", err)
	}

	source, err := buildCaptureSource(r.cfg.Capture)
	if err != nil {
		return fmt.Errorf("failed to build capture source: %w", err)
	}

	controller := session.NewController(ctx, r.cfg.Session, r.cfg.Capture, source, translator,
		&busSpeaker{bus: busClient, logger: r.logger},
		&credentialFlag{store: store, logger: r.logger},
		r.logger)
	sessionService := session.NewService(ctx, controller, busClient, store, r.logger)
	if err := sessionService.Start(); err != nil {
		return fmt.Errorf("failed to start session service: %w", err)
	}
	r.sessions = sessionService

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	r.registerAPI(mux)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	if metricsHandler != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricsHandler)
		r.metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("translate_mode", r.cfg.Translate.Mode),
		slog.String("capture_mode", r.cfg.Capture.Mode))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if r.metricsServer != nil {
		if err := r.metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	r.sessions.Close()
	r.speech.Close()
	r.registry.Close()
	r.bus.Close()
	if r.natsServer != nil {
		r.natsServer.Shutdown()
	}
	if err := r.store.Close(); err != nil {
		r.logger.Error("history close error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// buildTranslator resolves the credential and constructs the configured
// backend. Credential resolution prefers the config (which already
// folded in the LINGO_TRANSLATE_API_KEY environment override) and falls
// back to the value persisted in the settings table. When nothing is
// configured the runtime still starts; recording then surfaces a
// missing-credential error instead of failing at boot.
func (r *Runtime) buildTranslator(ctx context.Context) (translate.Translator, error) {
	cfg := r.cfg.Translate
	if cfg.Mode == "mock" {
		return translate.NewMockTranslator(""), nil
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		stored, err := r.store.GetSetting(ctx, history.SettingAPIKey)
		if err != nil {
			r.logger.Warn("failed to read stored credential", slog.String("error", err.Error()))
		}
		apiKey = strings.TrimSpace(stored)
	}
	if apiKey == "" {
		r.logger.Warn("no translation credential configured", slog.String("mode", cfg.Mode))
		return translate.NewUnconfiguredTranslator(), nil
	}

	switch cfg.Mode {
	case "gemini":
		return translate.NewGeminiTranslator(ctx, apiKey, cfg.Model)
	case "relay":
		return translate.NewRelayTranslator(cfg.BaseURL, apiKey, cfg.Model, cfg.ChatModel,
			time.Duration(cfg.TimeoutMS)*time.Millisecond)
	default:
		return nil, fmt.Errorf("unknown translate mode %q", cfg.Mode)
	}
}

func buildCaptureSource(cfg config.CaptureConfig) (capture.Source, error) {
	switch cfg.Mode {
	case "exec":
		return capture.NewExecSource(cfg.Command, cfg.ProcessingChain, cfg.SampleRate)
	default:
		return capture.NewMockSource(cfg.ProcessingChain, cfg.SampleRate), nil
	}
}

func buildSynthesizer(cfg config.SpeechConfig) (speech.Synthesizer, error) {
	if !cfg.Enabled {
		return speech.NewMockSynth(cfg.SampleRate, cfg.Channels), nil
	}
	switch cfg.Mode {
	case "exec":
		return speech.NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
	default:
		return speech.NewMockSynth(cfg.SampleRate, cfg.Channels), nil
	}
}

// busSpeaker hands translated text to the speech service over the bus.
type busSpeaker struct {
	bus    *bus.Client
	logger *slog.Logger
}

func (s *busSpeaker) Speak(ctx context.Context, req protocol.SpeakRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return s.bus.Conn().Publish(protocol.SubjectSpeakRequest, data)
}

// credentialFlag persists the credential-valid marker so the next boot
// and the configuration surface both see that the stored key was
// rejected.
type credentialFlag struct {
	store  *history.Store
	logger *slog.Logger
}

func (c *credentialFlag) Invalidate(ctx context.Context) {
	if err := c.store.PutSetting(ctx, history.SettingCredentialValid, "false"); err != nil {
		c.logger.Warn("failed to persist credential flag", slog.String("error", err.Error()))
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady gates readiness on the device registry: the local node
// must be heartbeating and some healthy node must advertise a capture
// device, or a session start would fail immediately.
func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.registry.Healthy() && r.registry.HasDevice(devices.KindCapture) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
