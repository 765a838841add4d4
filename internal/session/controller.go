package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lingo-labs/lingo-core/internal/audio"
	"github.com/lingo-labs/lingo-core/internal/capture"
	"github.com/lingo-labs/lingo-core/internal/config"
	"github.com/lingo-labs/lingo-core/internal/language"
	"github.com/lingo-labs/lingo-core/internal/protocol"
	"github.com/lingo-labs/lingo-core/internal/translate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

// Speaker forwards translated text to voice output. Speaking is
// fire-and-forget from the session's point of view.
type Speaker interface {
	Speak(ctx context.Context, req protocol.SpeakRequest) error
}

// CredentialGate flips the persisted "credential valid" flag so the UI
// diverts to a configuration view after a credential-class failure.
type CredentialGate interface {
	Invalidate(ctx context.Context)
}

// Controller is the session state machine. All transitions run under
// one mutex; the translation round trip and the post-playback reset
// are the only asynchronous continuations.
type Controller struct {
	cfg        config.SessionConfig
	captureCfg config.CaptureConfig
	source     capture.Source
	translator translate.Translator
	speaker    Speaker
	gate       CredentialGate
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc

	// OnTransition fires after every state change, outside the lock.
	OnTransition func(Snapshot)
	// OnEvent fires for non-transition timeline entries, such as a
	// short recording being discarded.
	OnEvent func(sessionID, kind, detail string)

	clock func() time.Time

	mu         sync.Mutex
	state      State
	sessionID  string
	startedAt  time.Time
	frames     [][]byte
	handle     *capture.Handle
	translated string
	lang       language.Lang
	errInfo    *SessionError
	resetTimer *time.Timer
	generation uint64
	wg         sync.WaitGroup
}

func NewController(parent context.Context, cfg config.SessionConfig, captureCfg config.CaptureConfig, source capture.Source, translator translate.Translator, speaker Speaker, gate CredentialGate, log *slog.Logger) *Controller {
	ctx, cancel := context.WithCancel(parent)
	return &Controller{
		cfg:        cfg,
		captureCfg: captureCfg,
		source:     source,
		translator: translator,
		speaker:    speaker,
		gate:       gate,
		logger:     log.With(slog.String("component", "session")),
		ctx:        ctx,
		cancel:     cancel,
		clock:      time.Now,
		state:      StateIdle,
	}
}

// Close stops timers and waits for in-flight work. The capture handle
// is released outside the lock: the delivery goroutine may be blocked
// in appendFrame waiting for c.mu, and End waits for that goroutine.
func (c *Controller) Close() {
	c.cancel()
	c.mu.Lock()
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	handle := c.handle
	c.handle = nil
	c.mu.Unlock()
	handle.End()
	c.wg.Wait()
}

// Snapshot returns the current session view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID:      c.sessionID,
		State:          c.state,
		TranslatedText: c.translated,
		Language:       string(c.lang),
		Err:            c.errInfo,
	}
}

// Start begins a new recording. Calling Start while a session is in
// flight is a no-op; the UI is expected to disable the trigger.
func (c *Controller) Start(ctx context.Context) Snapshot {
	c.mu.Lock()
	if c.state != StateIdle {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap
	}
	c.generation++
	gen := c.generation
	c.sessionID = uuid.NewString()
	c.frames = nil
	c.translated = ""
	c.lang = ""
	c.errInfo = nil
	c.mu.Unlock()

	constraints := capture.Constraints{
		SampleRate:       c.captureCfg.SampleRate,
		Channels:         c.captureCfg.Channels,
		FrameDuration:    time.Duration(c.captureCfg.FrameDurationMS) * time.Millisecond,
		NoiseSuppression: c.captureCfg.NoiseSuppression,
	}
	handle, err := c.source.Begin(c.ctx, constraints, func(pcm []byte) {
		c.appendFrame(gen, pcm)
	})

	c.mu.Lock()
	if err != nil {
		c.errInfo = &SessionError{Kind: ErrorCaptureUnavailable, Message: fmt.Sprintf("microphone unavailable: %v", err)}
		return c.transitionLocked(StateError)
	}
	if c.generation != gen {
		c.mu.Unlock()
		handle.End()
		return c.Snapshot()
	}
	c.handle = handle
	c.startedAt = c.clock()
	return c.transitionLocked(StateRecording)
}

func (c *Controller) appendFrame(gen uint64, pcm []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen || c.state != StateRecording {
		return
	}
	c.frames = append(c.frames, pcm)
}

// Ingest appends a frame delivered from an edge device over the bus.
// Frames arriving outside StateRecording are dropped.
func (c *Controller) Ingest(pcm []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording {
		return
	}
	c.frames = append(c.frames, pcm)
}

// Stop ends the recording. Recordings shorter than the minimum
// duration are treated as accidental triggers and discarded silently.
// The capture handle is released on every path out of StateRecording.
func (c *Controller) Stop(ctx context.Context) Snapshot {
	c.mu.Lock()
	if c.state != StateRecording {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap
	}
	gen := c.generation
	handle := c.handle
	c.handle = nil
	elapsed := c.clock().Sub(c.startedAt)
	frames := c.frames
	c.frames = nil
	c.mu.Unlock()

	handle.End()

	minDuration := time.Duration(c.cfg.MinDurationMS) * time.Millisecond
	if elapsed < minDuration {
		c.emitEvent(c.sessionID, "recording_discarded", fmt.Sprintf("duration %s below minimum", elapsed))
		c.mu.Lock()
		return c.transitionLocked(StateIdle)
	}

	c.mu.Lock()
	snap := c.transitionLocked(StateProcessing)

	c.wg.Add(1)
	go c.process(gen, frames)
	return snap
}

// Dismiss acknowledges a terminal error and returns to idle.
func (c *Controller) Dismiss() Snapshot {
	c.mu.Lock()
	if c.state != StateError {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap
	}
	c.errInfo = nil
	return c.transitionLocked(StateIdle)
}

// process runs the encode, translate, speak continuation for one
// stopped recording.
func (c *Controller) process(gen uint64, frames [][]byte) {
	defer c.wg.Done()

	tracer := otel.Tracer("github.com/lingo-labs/lingo-core/session")
	ctx, span := tracer.Start(c.ctx, "session.process")
	defer span.End()

	payload, err := audio.EncodePayload(frames, c.captureCfg.SampleRate, c.captureCfg.Channels, c.cfg.MinPayloadBytes)
	if err != nil {
		// Degenerate recordings are a silent no-op, not an error banner.
		c.emitEvent(c.sessionID, "payload_empty", err.Error())
		c.finish(gen, func(c *Controller) State {
			return StateIdle
		})
		return
	}

	result, err := c.translator.Translate(ctx, translate.Request{
		SessionID:   c.sessionID,
		AudioBase64: payload.Base64,
		MIMEType:    payload.MIMEType,
		Source:      c.cfg.SourceLanguage,
		Target:      c.cfg.TargetLanguage,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "translate failed")
		sessErr := errorFromTranslate(err)
		if sessErr.IsCredential() && c.gate != nil {
			c.gate.Invalidate(ctx)
		}
		c.finish(gen, func(c *Controller) State {
			c.errInfo = sessErr
			return StateError
		})
		return
	}

	lang := language.Classify(result.Text)
	c.finish(gen, func(c *Controller) State {
		c.translated = result.Text
		c.lang = lang
		return StateSpeaking
	})

	c.mu.Lock()
	stale := c.generation != gen || c.state != StateSpeaking
	sessionID := c.sessionID
	c.mu.Unlock()
	if stale {
		return
	}

	if err := c.speaker.Speak(ctx, protocol.SpeakRequest{
		SessionID: sessionID,
		Text:      result.Text,
		Language:  language.Tag(lang),
	}); err != nil {
		c.logger.Warn("voice output request failed", slog.String("error", err.Error()))
	}

	// Reset after a fixed delay rather than awaiting playback
	// completion.
	delay := time.Duration(c.cfg.ResetDelayMS) * time.Millisecond
	c.mu.Lock()
	if c.resetTimer != nil {
		c.resetTimer.Stop()
	}
	c.resetTimer = time.AfterFunc(delay, func() {
		c.finish(gen, func(c *Controller) State {
			c.translated = ""
			c.lang = ""
			return StateIdle
		})
	})
	c.mu.Unlock()
}

// finish applies a state mutation only if the session generation is
// still current, discarding stale async completions.
func (c *Controller) finish(gen uint64, mutate func(*Controller) State) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	next := mutate(c)
	c.transitionLocked(next)
}

// transitionLocked commits a state change and notifies outside the
// lock. Callers must hold c.mu; the lock is released here.
func (c *Controller) transitionLocked(next State) Snapshot {
	c.state = next
	snap := c.snapshotLocked()
	notify := c.OnTransition
	c.mu.Unlock()

	c.logger.Info("session state changed",
		slog.String("session_id", snap.SessionID),
		slog.String("state", string(snap.State)))
	if notify != nil {
		notify(snap)
	}
	return snap
}

func (c *Controller) emitEvent(sessionID, kind, detail string) {
	if c.OnEvent != nil {
		c.OnEvent(sessionID, kind, detail)
	}
}
