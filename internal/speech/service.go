package speech

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/lingo-labs/lingo-core/internal/bus"
	"github.com/lingo-labs/lingo-core/internal/config"
	"github.com/lingo-labs/lingo-core/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Service reads translated text aloud. At most one utterance is active
// per process: a new request cancels whatever is currently playing.
type Service struct {
	cfg    config.SpeechConfig
	bus    *bus.Client
	synth  Synthesizer
	voices []Voice
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger

	mu        sync.Mutex
	utterance context.CancelFunc
}

func NewService(parent context.Context, cfg config.SpeechConfig, busClient *bus.Client, synth Synthesizer, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:    cfg,
		bus:    busClient,
		synth:  synth,
		voices: InventoryFromConfig(cfg.Voices),
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(slog.String("component", "speech-service")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectSpeakRequest, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.SpeakRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode speak request", slogError(err))
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, 45*time.Second)
	s.interrupt(cancel)

	voice := req.Voice
	if voice == "" {
		voice = SelectVoice(s.voices, req.Language).Name
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		chunks, errs := s.synth.Synthesize(ctx, SynthRequest{SessionID: req.SessionID, Text: req.Text, Voice: voice})
		sequence := 0
		for {
			select {
			case chunk, ok := <-chunks:
				if !ok {
					chunks = nil
					continue
				}
				chunk.Sequence = sequence
				sequence++
				s.publishChunk(req, chunk)
			case err, ok := <-errs:
				if ok && err != nil {
					s.logger.Warn("speech synthesis error", slogError(err))
				}
				errs = nil
			case <-ctx.Done():
				s.publishStatus(req, false, true)
				return
			}
			if chunks == nil && errs == nil {
				return
			}
		}
	}()
}

// interrupt cancels the active utterance and records the new one.
func (s *Service) interrupt(next context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.utterance != nil {
		s.utterance()
	}
	s.utterance = next
}

func (s *Service) publishChunk(req protocol.SpeakRequest, chunk SynthChunk) {
	packet := protocol.AudioChunk{
		SessionID:  req.SessionID,
		Target:     req.Target,
		SampleRate: chunk.SampleRate,
		Channels:   chunk.Channels,
		Sequence:   chunk.Sequence,
		PCM:        chunk.PCM,
		Final:      chunk.Final,
	}
	data, err := json.Marshal(packet)
	if err != nil {
		s.logger.Warn("failed to marshal speech chunk", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectSpeakAudio, data); err != nil {
		s.logger.Warn("failed to publish speech chunk", slogError(err))
	}
	if chunk.Final {
		s.publishStatus(req, true, false)
	}
}

func (s *Service) publishStatus(req protocol.SpeakRequest, completed, cancelled bool) {
	status := protocol.SpeakStatus{
		SessionID: req.SessionID,
		Completed: completed,
		Cancelled: cancelled,
		Timestamp: time.Now().UTC(),
	}
	if data, err := json.Marshal(status); err == nil {
		_ = s.bus.Conn().Publish(protocol.SubjectSpeakDone, data)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
