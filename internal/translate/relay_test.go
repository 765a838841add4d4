package translate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testPayload() string {
	return base64.StdEncoding.EncodeToString([]byte("RIFF fake wav bytes for the test server"))
}

func newRelay(t *testing.T, baseURL string) Translator {
	t.Helper()
	tr, err := NewRelayTranslator(baseURL, "sk-test", "whisper-1", "gpt-4o-mini", 5*time.Second)
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	return tr
}

func TestRelayTranslateHappyPath(t *testing.T) {
	var gotTranscript string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		switch r.URL.Path {
		case "/audio/transcriptions":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			if r.FormValue("model") != "whisper-1" {
				t.Errorf("unexpected stt model %q", r.FormValue("model"))
			}
			json.NewEncoder(w).Encode(map[string]string{"text": "hello there"})
		case "/chat/completions":
			var req chatRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode chat request: %v", err)
			}
			if len(req.Messages) != 2 {
				t.Errorf("expected system+user messages, got %d", len(req.Messages))
			} else {
				gotTranscript = req.Messages[1].Content
			}
			json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{
					{"message": map[string]string{"role": "assistant", "content": "你好"}},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	result, err := newRelay(t, server.URL).Translate(context.Background(), Request{
		AudioBase64: testPayload(),
		MIMEType:    "audio/wav",
		Source:      "en",
		Target:      "zh",
	})
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if result.Text != "你好" {
		t.Fatalf("unexpected translation %q", result.Text)
	}
	if result.SourceText != "hello there" {
		t.Fatalf("unexpected transcript %q", result.SourceText)
	}
	if gotTranscript != "hello there" {
		t.Fatalf("chat call did not receive transcript, got %q", gotTranscript)
	}
}

func TestRelayTranslateAcceptsDataURIPayload(t *testing.T) {
	raw := []byte("RIFF fake wav bytes for the test server")
	var gotUpload []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/audio/transcriptions":
			file, _, err := r.FormFile("file")
			if err != nil {
				t.Errorf("form file: %v", err)
			} else {
				gotUpload, _ = io.ReadAll(file)
				file.Close()
			}
			json.NewEncoder(w).Encode(map[string]string{"text": "hello"})
		case "/chat/completions":
			json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{
					{"message": map[string]string{"role": "assistant", "content": "你好"}},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	encoded := "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(raw)
	result, err := newRelay(t, server.URL).Translate(context.Background(), Request{AudioBase64: encoded})
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if result.Text != "你好" {
		t.Fatalf("unexpected translation %q", result.Text)
	}
	if string(gotUpload) != string(raw) {
		t.Fatalf("data-URI prefix not stripped before decode, uploaded %q", gotUpload)
	}
}

func TestRelayTranslateUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "Incorrect API key provided"},
		})
	}))
	defer server.Close()

	_, err := newRelay(t, server.URL).Translate(context.Background(), Request{AudioBase64: testPayload()})
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
	if !strings.Contains(err.Error(), "Incorrect API key") {
		t.Fatalf("expected service message passed through, got %v", err)
	}
	if Classify(err) != KindInvalidCredential {
		t.Fatalf("expected invalid credential kind, got %s", Classify(err))
	}
}

func TestRelayTranslateServiceFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	_, err := newRelay(t, server.URL).Translate(context.Background(), Request{AudioBase64: testPayload()})
	if !errors.Is(err, ErrService) {
		t.Fatalf("expected ErrService, got %v", err)
	}
	if Classify(err) != KindService {
		t.Fatalf("expected service kind, got %s", Classify(err))
	}
}

func TestRelayTranslateNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // refuse connections

	_, err := newRelay(t, server.URL).Translate(context.Background(), Request{AudioBase64: testPayload()})
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if Classify(err) != KindNetwork {
		t.Fatalf("expected network kind, got %s", Classify(err))
	}
}

func TestNewRelayTranslatorRequiresCredential(t *testing.T) {
	_, err := NewRelayTranslator("https://api.example.com/v1", "", "", "", 0)
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if Classify(err) != KindMissingCredential {
		t.Fatalf("expected missing credential kind, got %s", Classify(err))
	}
}

func TestKindIsCredential(t *testing.T) {
	if !KindMissingCredential.IsCredential() || !KindInvalidCredential.IsCredential() {
		t.Fatal("credential kinds must report IsCredential")
	}
	if KindNetwork.IsCredential() || KindService.IsCredential() || KindNone.IsCredential() {
		t.Fatal("non-credential kinds must not report IsCredential")
	}
}
