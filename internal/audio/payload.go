// Package audio turns accumulated capture frames into the transport
// payload submitted to the translation backend.
package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// MinPayloadBytes guards against zero-length or near-empty recordings
// reaching the remote API.
const MinPayloadBytes = 100

// ErrEmptyPayload is returned when the concatenated recording is below
// the minimum viable size.
var ErrEmptyPayload = errors.New("audio payload below minimum size")

// Payload is the encoded audio representation sent to the translation
// service.
type Payload struct {
	Base64   string
	MIMEType string
	RawBytes int
}

// EncodePayload concatenates capture frames preserving order, wraps
// them in a WAV container and base64-encodes the result. The minimum
// size check applies to the raw PCM bytes, before container overhead.
func EncodePayload(frames [][]byte, sampleRate, channels, minBytes int) (Payload, error) {
	if minBytes <= 0 {
		minBytes = MinPayloadBytes
	}
	total := 0
	for _, f := range frames {
		total += len(f)
	}
	if total < minBytes {
		return Payload{}, fmt.Errorf("%w: %d bytes", ErrEmptyPayload, total)
	}

	pcm := make([]byte, 0, total)
	for _, f := range frames {
		pcm = append(pcm, f...)
	}

	wavBytes, err := EncodeWAV(pcm, sampleRate, channels)
	if err != nil {
		return Payload{}, err
	}

	return Payload{
		Base64:   base64.StdEncoding.EncodeToString(wavBytes),
		MIMEType: "audio/wav",
		RawBytes: total,
	}, nil
}

// StripDataURI removes a "data:...;base64," prefix from payloads that
// arrive from edge surfaces as data URIs.
func StripDataURI(encoded string) string {
	if !strings.HasPrefix(encoded, "data:") {
		return encoded
	}
	if idx := strings.Index(encoded, ";base64,"); idx >= 0 {
		return encoded[idx+len(";base64,"):]
	}
	if idx := strings.Index(encoded, ","); idx >= 0 {
		return encoded[idx+1:]
	}
	return encoded
}
