// Package capture wraps microphone acquisition behind a push-based
// frame delivery contract. Backends hand PCM frames to a callback in
// capture order roughly every frame interval; the caller accumulates
// them and releases the handle when recording stops.
package capture

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrPermissionDenied indicates the platform refused microphone access.
	ErrPermissionDenied = errors.New("capture: permission denied")
	// ErrDeviceUnavailable indicates no usable capture device exists.
	ErrDeviceUnavailable = errors.New("capture: device unavailable")
)

// Constraints parameterize stream acquisition.
type Constraints struct {
	SampleRate       int
	Channels         int
	FrameDuration    time.Duration
	NoiseSuppression bool
}

// FrameFunc receives one PCM frame. Frames are delivered in capture
// order from a single goroutine.
type FrameFunc func(pcm []byte)

// Source abstracts a microphone backend.
type Source interface {
	Begin(ctx context.Context, c Constraints, deliver FrameFunc) (*Handle, error)
}

// Handle owns the acquired stream and any processing graph attached to
// it. End is safe to call multiple times.
type Handle struct {
	release func()
	once    sync.Once
}

// NewHandle wraps a release function. Custom sources use it to honor
// the idempotent-release contract.
func NewHandle(release func()) *Handle {
	return &Handle{release: release}
}

// End stops delivery and releases all underlying resources.
func (h *Handle) End() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		if h.release != nil {
			h.release()
		}
	})
}

func frameBytes(c Constraints) int {
	if c.FrameDuration <= 0 {
		c.FrameDuration = 100 * time.Millisecond
	}
	samples := int(float64(c.SampleRate) * c.FrameDuration.Seconds())
	n := samples * c.Channels * 2
	if n%2 != 0 {
		n++
	}
	return n
}
