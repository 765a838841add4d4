package audio

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

func TestEncodePayloadRejectsShortRecording(t *testing.T) {
	frames := [][]byte{make([]byte, 40), make([]byte, 40)}
	_, err := EncodePayload(frames, 16000, 1, 100)
	if !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
}

func TestEncodePayloadEmptyFrames(t *testing.T) {
	_, err := EncodePayload(nil, 16000, 1, 100)
	if !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload for no frames, got %v", err)
	}
}

func TestEncodePayloadPreservesOrder(t *testing.T) {
	first := bytes.Repeat([]byte{0x01, 0x00}, 100)
	second := bytes.Repeat([]byte{0x02, 0x00}, 100)
	payload, err := EncodePayload([][]byte{first, second}, 16000, 1, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.MIMEType != "audio/wav" {
		t.Fatalf("unexpected mime type %s", payload.MIMEType)
	}
	if payload.RawBytes != len(first)+len(second) {
		t.Fatalf("unexpected raw byte count %d", payload.RawBytes)
	}

	wavBytes, err := base64.StdEncoding.DecodeString(payload.Base64)
	if err != nil {
		t.Fatalf("payload is not valid base64: %v", err)
	}
	if !bytes.HasPrefix(wavBytes, []byte("RIFF")) {
		t.Fatal("expected RIFF header")
	}
	// PCM data must appear in capture order inside the container.
	idxFirst := bytes.Index(wavBytes, first)
	idxSecond := bytes.Index(wavBytes, second)
	if idxFirst < 0 || idxSecond < 0 || idxFirst > idxSecond {
		t.Fatalf("frames out of order: first=%d second=%d", idxFirst, idxSecond)
	}
}

func TestEncodeWAVRejectsUnalignedPCM(t *testing.T) {
	if _, err := EncodeWAV([]byte{0x01}, 16000, 1); err == nil {
		t.Fatal("expected error for unaligned pcm")
	}
}

func TestStripDataURI(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"data:audio/wav;base64,AAAA", "AAAA"},
		{"data:audio/webm;codecs=opus;base64,BBBB", "BBBB"},
		{"data:,CCCC", "CCCC"},
		{"DDDD", "DDDD"},
	}
	for _, tc := range cases {
		if got := StripDataURI(tc.in); got != tc.want {
			t.Fatalf("StripDataURI(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
