package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/lingo-labs/lingo-core/internal/bus"
	"github.com/lingo-labs/lingo-core/internal/history"
	"github.com/lingo-labs/lingo-core/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Service is the bus-facing facade around the Controller: it accepts
// session commands and audio frames from edge devices, broadcasts state
// transitions and records the session timeline.
type Service struct {
	controller *Controller
	bus        *bus.Client
	store      *history.Store
	subCmd     *nats.Subscription
	subFrames  *nats.Subscription
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *slog.Logger
}

func NewService(parent context.Context, controller *Controller, busClient *bus.Client, store *history.Store, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		controller: controller,
		bus:        busClient,
		store:      store,
		ctx:        ctx,
		cancel:     cancel,
		logger:     log.With(slog.String("component", "session-service")),
	}
	controller.OnTransition = s.handleTransition
	controller.OnEvent = s.handleEvent
	return s
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectSessionCommand, s.handleCommand)
	if err != nil {
		return err
	}
	s.subCmd = sub

	frames, err := s.bus.Conn().Subscribe(protocol.SubjectAudioFramePrefix+".>", s.handleFrame)
	if err != nil {
		sub.Drain()
		return err
	}
	s.subFrames = frames
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.subCmd != nil {
		_ = s.subCmd.Drain()
	}
	if s.subFrames != nil {
		_ = s.subFrames.Drain()
	}
	s.wg.Wait()
	s.controller.Close()
}

func (s *Service) Healthy() bool {
	return s.subCmd != nil && s.subFrames != nil
}

// Controller exposes the state machine to the HTTP surface.
func (s *Service) Controller() *Controller {
	return s.controller
}

func (s *Service) handleCommand(msg *nats.Msg) {
	var cmd protocol.SessionCommand
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		s.logger.Warn("failed to decode session command", slogError(err))
		return
	}
	switch cmd.Action {
	case "start":
		s.controller.Start(s.ctx)
	case "stop":
		s.controller.Stop(s.ctx)
	case "dismiss":
		s.controller.Dismiss()
	default:
		s.logger.Warn("unknown session command", slog.String("action", cmd.Action))
	}
}

func (s *Service) handleFrame(msg *nats.Msg) {
	var frame protocol.AudioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.logger.Warn("failed to decode audio frame", slogError(err))
		return
	}
	s.controller.Ingest(frame.PCM)
	if frame.Final {
		s.controller.Stop(s.ctx)
	}
}

func (s *Service) handleTransition(snap Snapshot) {
	state := protocol.SessionState{
		SessionID:      snap.SessionID,
		State:          string(snap.State),
		TranslatedText: snap.TranslatedText,
		Timestamp:      time.Now().UTC(),
	}
	if snap.Err != nil {
		state.ErrorKind = string(snap.Err.Kind)
		state.ErrorMessage = snap.Err.Message
	}
	if data, err := json.Marshal(state); err == nil {
		if err := s.bus.Conn().Publish(protocol.SubjectSessionState, data); err != nil {
			s.logger.Warn("failed to publish session state", slogError(err))
		}
	}

	if snap.State == StateSpeaking && snap.TranslatedText != "" {
		s.publishTranslation(snap)
	}
	s.record(snap)
}

func (s *Service) publishTranslation(snap Snapshot) {
	msg := protocol.Translation{
		SessionID: snap.SessionID,
		Text:      snap.TranslatedText,
		Language:  snap.Language,
		Timestamp: time.Now().UTC(),
	}
	if data, err := json.Marshal(msg); err == nil {
		if err := s.bus.Conn().Publish(protocol.SubjectTranslationDone, data); err != nil {
			s.logger.Warn("failed to publish translation", slogError(err))
		}
	}
}

func (s *Service) record(snap Snapshot) {
	if s.store == nil || snap.SessionID == "" {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		defer cancel()

		if err := s.store.AppendSession(ctx, snap.SessionID); err != nil {
			s.logger.Warn("failed to record session", slogError(err))
			return
		}
		payload := snap.State
		evt := history.Event{SessionID: snap.SessionID, Type: "state", Payload: []byte(payload)}
		if snap.Err != nil {
			evt.Type = "error"
			evt.Payload = []byte(snap.Err.Error())
		}
		if err := s.store.AppendEvent(ctx, evt); err != nil {
			s.logger.Warn("failed to record session event", slogError(err))
		}
		if snap.State == StateSpeaking && snap.TranslatedText != "" {
			if err := s.store.SetTranslation(ctx, snap.SessionID, snap.TranslatedText); err != nil {
				s.logger.Warn("failed to record translation", slogError(err))
			}
		}
	}()
}

func (s *Service) handleEvent(sessionID, kind, detail string) {
	if s.store == nil || sessionID == "" {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		defer cancel()
		if err := s.store.AppendSession(ctx, sessionID); err != nil {
			s.logger.Warn("failed to record session", slogError(err))
			return
		}
		if err := s.store.AppendEvent(ctx, history.Event{SessionID: sessionID, Type: kind, Payload: []byte(detail)}); err != nil {
			s.logger.Warn("failed to record session event", slogError(err))
		}
	}()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
