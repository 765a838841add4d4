package translate

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"
)

type mockTranslator struct {
	text string
}

// NewMockTranslator returns a backend producing a canned translation.
// An empty text yields a descriptive placeholder.
func NewMockTranslator(text string) Translator {
	return &mockTranslator{text: text}
}

func (m *mockTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	if m.text != "" {
		return Result{Text: m.text}, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		return Result{}, fmt.Errorf("decode audio payload: %w", err)
	}
	return Result{Text: fmt.Sprintf("[mock translation of %d audio bytes]", len(decoded))}, nil
}
