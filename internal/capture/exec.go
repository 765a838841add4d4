package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
)

// execSource shells out to an external capture command (arecord, sox,
// ffmpeg) that writes raw little-endian 16-bit PCM to stdout.
type execSource struct {
	cmd        []string
	withChain  bool
	sampleRate int
	mu         sync.Mutex
}

// NewExecSource parses the capture command line. When withChain is
// set, frames pass through the fixed processing graph before delivery.
func NewExecSource(command string, withChain bool, sampleRate int) (Source, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse capture command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("capture command empty")
	}
	return &execSource{cmd: args, withChain: withChain, sampleRate: sampleRate}, nil
}

func (s *execSource) Begin(ctx context.Context, c Constraints, deliver FrameFunc) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.FrameDuration <= 0 {
		c.FrameDuration = 100 * time.Millisecond
	}

	// Filter and compressor state must start fresh for each recording.
	var chain *Chain
	if s.withChain {
		chain = NewChain(s.sampleRate)
	}

	ctx, cancel := context.WithCancel(ctx)

	base := s.cmd[0]
	args := append([]string{}, s.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, classifyStartError(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		size := frameBytes(c)
		frame := make([]byte, size)
		for {
			n, err := io.ReadFull(stdout, frame)
			if n > 0 {
				out := make([]byte, n-n%2)
				copy(out, frame[:len(out)])
				if chain != nil {
					out = chain.Process(out)
				}
				deliver(out)
			}
			if err != nil {
				return
			}
		}
	}()

	return NewHandle(func() {
		cancel()
		<-done
		_ = cmd.Wait()
	}), nil
}

func classifyStartError(err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}
