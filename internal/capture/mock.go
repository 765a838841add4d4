package capture

import (
	"context"
	"encoding/binary"
	"math"
	"time"
)

// mockSource synthesizes a low-amplitude tone so the pipeline can run
// without hardware.
type mockSource struct {
	withChain  bool
	sampleRate int
}

// NewMockSource returns a source producing synthetic frames. When
// withChain is set, frames pass through the processing graph like real
// capture.
func NewMockSource(withChain bool, sampleRate int) Source {
	return &mockSource{withChain: withChain, sampleRate: sampleRate}
}

func (m *mockSource) Begin(ctx context.Context, c Constraints, deliver FrameFunc) (*Handle, error) {
	if c.FrameDuration <= 0 {
		c.FrameDuration = 100 * time.Millisecond
	}
	// Filter and compressor state must start fresh for each recording.
	var chain *Chain
	if m.withChain {
		chain = NewChain(m.sampleRate)
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.FrameDuration)
		defer ticker.Stop()
		phase := 0.0
		step := 2 * math.Pi * 440 / float64(c.SampleRate)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				frame := make([]byte, frameBytes(c))
				for i := 0; i+1 < len(frame); i += 2 {
					sample := int16(math.Sin(phase) * 8192)
					binary.LittleEndian.PutUint16(frame[i:], uint16(sample))
					phase += step
				}
				if chain != nil {
					frame = chain.Process(frame)
				}
				deliver(frame)
			}
		}
	}()

	return NewHandle(func() {
		cancel()
		<-done
	}), nil
}
