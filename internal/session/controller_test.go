package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lingo-labs/lingo-core/internal/capture"
	"github.com/lingo-labs/lingo-core/internal/config"
	"github.com/lingo-labs/lingo-core/internal/protocol"
	"github.com/lingo-labs/lingo-core/internal/translate"
)

type stubSource struct {
	mu       sync.Mutex
	beginErr error
	deliver  capture.FrameFunc
	releases int
}

func (s *stubSource) Begin(_ context.Context, _ capture.Constraints, deliver capture.FrameFunc) (*capture.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	s.deliver = deliver
	return capture.NewHandle(func() {
		s.mu.Lock()
		s.releases++
		s.mu.Unlock()
	}), nil
}

func (s *stubSource) push(pcm []byte) {
	s.mu.Lock()
	deliver := s.deliver
	s.mu.Unlock()
	if deliver != nil {
		deliver(pcm)
	}
}

func (s *stubSource) released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases
}

type stubTranslator struct {
	mu     sync.Mutex
	result translate.Result
	err    error
	calls  int
}

func (s *stubTranslator) Translate(_ context.Context, _ translate.Request) (translate.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.result, s.err
}

func (s *stubTranslator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubSpeaker struct {
	mu       sync.Mutex
	requests []protocol.SpeakRequest
}

func (s *stubSpeaker) Speak(_ context.Context, req protocol.SpeakRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return nil
}

func (s *stubSpeaker) last() (protocol.SpeakRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return protocol.SpeakRequest{}, false
	}
	return s.requests[len(s.requests)-1], true
}

type stubGate struct {
	mu          sync.Mutex
	invalidated int
}

func (s *stubGate) Invalidate(context.Context) {
	s.mu.Lock()
	s.invalidated++
	s.mu.Unlock()
}

func (s *stubGate) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalidated
}

type fixture struct {
	ctrl       *Controller
	source     *stubSource
	translator *stubTranslator
	speaker    *stubSpeaker
	gate       *stubGate
	now        time.Time
	clockMu    sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		source:     &stubSource{},
		translator: &stubTranslator{result: translate.Result{Text: "translated"}},
		speaker:    &stubSpeaker{},
		gate:       &stubGate{},
		now:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	cfg := config.SessionConfig{
		MinDurationMS:   1000,
		ResetDelayMS:    40,
		MinPayloadBytes: 100,
		SourceLanguage:  "zh",
		TargetLanguage:  "en",
	}
	captureCfg := config.CaptureConfig{SampleRate: 16000, Channels: 1, FrameDurationMS: 100}
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	f.ctrl = NewController(context.Background(), cfg, captureCfg, f.source, f.translator, f.speaker, f.gate, logger)
	f.ctrl.clock = func() time.Time {
		f.clockMu.Lock()
		defer f.clockMu.Unlock()
		return f.now
	}
	t.Cleanup(f.ctrl.Close)
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clockMu.Lock()
	f.now = f.now.Add(d)
	f.clockMu.Unlock()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func frame(n int) []byte { return make([]byte, n) }

func TestShortRecordingReturnsToIdleWithoutTranslation(t *testing.T) {
	f := newFixture(t)

	snap := f.ctrl.Start(context.Background())
	if snap.State != StateRecording {
		t.Fatalf("expected recording, got %s", snap.State)
	}
	f.source.push(frame(3200))
	f.advance(400 * time.Millisecond)

	snap = f.ctrl.Stop(context.Background())
	if snap.State != StateIdle {
		t.Fatalf("expected idle after short recording, got %s", snap.State)
	}
	if snap.Err != nil {
		t.Fatalf("short recording must not surface an error, got %v", snap.Err)
	}
	if f.translator.callCount() != 0 {
		t.Fatal("short recording must not reach the translation service")
	}
	if f.source.released() != 1 {
		t.Fatalf("capture handle must be released, releases=%d", f.source.released())
	}
}

func TestStopWhenNotRecordingIsNoOp(t *testing.T) {
	f := newFixture(t)
	snap := f.ctrl.Stop(context.Background())
	if snap.State != StateIdle {
		t.Fatalf("expected idle, got %s", snap.State)
	}
	if f.translator.callCount() != 0 {
		t.Fatal("no-op stop must not translate")
	}
}

func TestStartWhileActiveIsNoOp(t *testing.T) {
	f := newFixture(t)
	first := f.ctrl.Start(context.Background())
	second := f.ctrl.Start(context.Background())
	if second.SessionID != first.SessionID {
		t.Fatalf("second start must not create a session: %s vs %s", second.SessionID, first.SessionID)
	}
	if second.State != StateRecording {
		t.Fatalf("expected recording, got %s", second.State)
	}
}

func TestHappyPathSpeaksThenResets(t *testing.T) {
	f := newFixture(t)
	f.translator.result = translate.Result{Text: "你好"}

	f.ctrl.Start(context.Background())
	f.source.push(frame(3200))
	f.source.push(frame(3200))
	f.advance(2 * time.Second)
	f.ctrl.Stop(context.Background())

	waitFor(t, "speaking state", func() bool {
		return f.ctrl.Snapshot().State == StateSpeaking
	})
	snap := f.ctrl.Snapshot()
	if snap.TranslatedText != "你好" {
		t.Fatalf("expected translated text stored, got %q", snap.TranslatedText)
	}
	if snap.Err != nil {
		t.Fatalf("speaking state must not carry an error, got %v", snap.Err)
	}
	if snap.Language != "zh" {
		t.Fatalf("expected Chinese classification, got %q", snap.Language)
	}

	waitFor(t, "speak request", func() bool {
		_, ok := f.speaker.last()
		return ok
	})
	req, _ := f.speaker.last()
	if req.Language != "zh-CN" {
		t.Fatalf("expected zh-CN voice tag, got %q", req.Language)
	}
	if req.Text != "你好" {
		t.Fatalf("unexpected speak text %q", req.Text)
	}

	waitFor(t, "reset to idle", func() bool {
		return f.ctrl.Snapshot().State == StateIdle
	})
	snap = f.ctrl.Snapshot()
	if snap.TranslatedText != "" {
		t.Fatalf("translated text must be cleared on reset, got %q", snap.TranslatedText)
	}
	if f.source.released() != 1 {
		t.Fatalf("capture handle must be released exactly once, releases=%d", f.source.released())
	}
}

func TestEnglishResultSelectsEnglishVoice(t *testing.T) {
	f := newFixture(t)
	f.translator.result = translate.Result{Text: "hello there"}

	f.ctrl.Start(context.Background())
	f.source.push(frame(3200))
	f.advance(2 * time.Second)
	f.ctrl.Stop(context.Background())

	waitFor(t, "speak request", func() bool {
		_, ok := f.speaker.last()
		return ok
	})
	req, _ := f.speaker.last()
	if req.Language != "en-US" {
		t.Fatalf("expected en-US voice tag, got %q", req.Language)
	}
}

func TestEmptyPayloadResetsSilently(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	var events []string
	f.ctrl.OnEvent = func(_, kind, _ string) {
		mu.Lock()
		events = append(events, kind)
		mu.Unlock()
	}

	f.ctrl.Start(context.Background())
	f.source.push(frame(10)) // below the 100 byte payload floor
	f.advance(2 * time.Second)
	f.ctrl.Stop(context.Background())

	waitFor(t, "idle after empty payload", func() bool {
		return f.ctrl.Snapshot().State == StateIdle
	})
	if f.translator.callCount() != 0 {
		t.Fatal("empty payload must not reach the translation service")
	}
	if f.ctrl.Snapshot().Err != nil {
		t.Fatal("empty payload is a silent reset, not an error")
	}
	mu.Lock()
	defer mu.Unlock()
	found := false
	for _, e := range events {
		if e == "payload_empty" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected payload_empty timeline event, got %v", events)
	}
}

func TestCaptureFailureSurfacesError(t *testing.T) {
	f := newFixture(t)
	f.source.beginErr = fmt.Errorf("%w: no device", capture.ErrDeviceUnavailable)

	snap := f.ctrl.Start(context.Background())
	if snap.State != StateError {
		t.Fatalf("expected error state, got %s", snap.State)
	}
	if snap.Err == nil || snap.Err.Kind != ErrorCaptureUnavailable {
		t.Fatalf("expected capture_unavailable, got %v", snap.Err)
	}
	if snap.TranslatedText != "" {
		t.Fatal("error state must not carry translated text")
	}

	snap = f.ctrl.Dismiss()
	if snap.State != StateIdle || snap.Err != nil {
		t.Fatalf("dismiss must return to idle, got %s err=%v", snap.State, snap.Err)
	}
}

func TestInvalidCredentialClearsFlagAndRoutesToError(t *testing.T) {
	f := newFixture(t)
	f.translator.result = translate.Result{}
	f.translator.err = fmt.Errorf("%w: Incorrect API key provided", translate.ErrInvalidCredential)

	f.ctrl.Start(context.Background())
	f.source.push(frame(3200))
	f.advance(2 * time.Second)
	f.ctrl.Stop(context.Background())

	waitFor(t, "error state", func() bool {
		return f.ctrl.Snapshot().State == StateError
	})
	snap := f.ctrl.Snapshot()
	if snap.Err == nil || snap.Err.Kind != ErrorInvalidCredential {
		t.Fatalf("expected invalid_credential, got %v", snap.Err)
	}
	if !strings.Contains(snap.Err.Message, "rejected") {
		t.Fatalf("expected credential message, got %q", snap.Err.Message)
	}
	if snap.TranslatedText != "" {
		t.Fatal("exactly one of translated text and error may be set")
	}
	if f.gate.count() != 1 {
		t.Fatalf("credential gate must be invalidated once, got %d", f.gate.count())
	}
	if f.source.released() != 1 {
		t.Fatalf("capture handle must be released before the error surfaces, releases=%d", f.source.released())
	}
}

func TestNetworkFailureMessageSuggestsConnectivity(t *testing.T) {
	f := newFixture(t)
	f.translator.err = fmt.Errorf("%w: dial tcp: connection refused", translate.ErrNetwork)

	f.ctrl.Start(context.Background())
	f.source.push(frame(3200))
	f.advance(2 * time.Second)
	f.ctrl.Stop(context.Background())

	waitFor(t, "error state", func() bool {
		return f.ctrl.Snapshot().State == StateError
	})
	snap := f.ctrl.Snapshot()
	if snap.Err == nil || snap.Err.Kind != ErrorNetwork {
		t.Fatalf("expected network_failure, got %v", snap.Err)
	}
	if !strings.Contains(snap.Err.Message, "connectivity") {
		t.Fatalf("expected connectivity hint, got %q", snap.Err.Message)
	}
	if f.gate.count() != 0 {
		t.Fatal("network failures must not touch the credential gate")
	}
}

// floodSource delivers frames back-to-back with no pacing, the way an
// exec backend drains buffered stdout data.
type floodSource struct{}

func (floodSource) Begin(ctx context.Context, _ capture.Constraints, deliver capture.FrameFunc) (*capture.Handle, error) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			deliver(make([]byte, 3200))
		}
	}()
	return capture.NewHandle(func() {
		cancel()
		<-done
	}), nil
}

func TestCloseReturnsWhileFramesInFlight(t *testing.T) {
	cfg := config.SessionConfig{
		MinDurationMS:   1000,
		ResetDelayMS:    40,
		MinPayloadBytes: 100,
		SourceLanguage:  "zh",
		TargetLanguage:  "en",
	}
	captureCfg := config.CaptureConfig{SampleRate: 16000, Channels: 1, FrameDurationMS: 100}
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	ctrl := NewController(context.Background(), cfg, captureCfg, floodSource{},
		&stubTranslator{}, &stubSpeaker{}, &stubGate{}, logger)

	if snap := ctrl.Start(context.Background()); snap.State != StateRecording {
		t.Fatalf("expected recording, got %s", snap.State)
	}

	closed := make(chan struct{})
	go func() {
		ctrl.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return while frames were being delivered")
	}
}

func TestFramesIgnoredOutsideRecording(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Ingest(frame(3200))
	f.ctrl.Start(context.Background())
	f.ctrl.Ingest(frame(3200))
	f.advance(2 * time.Second)
	f.ctrl.Stop(context.Background())
	f.ctrl.Ingest(frame(3200))

	waitFor(t, "terminal state", func() bool {
		s := f.ctrl.Snapshot().State
		return s == StateSpeaking || s == StateIdle || s == StateError
	})
	// One 3200-byte frame was accepted: enough for a payload, so the
	// translator must have been called exactly once.
	waitFor(t, "translator call", func() bool {
		return f.translator.callCount() == 1
	})
}
