package translate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/lingo-labs/lingo-core/internal/audio"
)

// relayTranslator chains two calls against an OpenAI-compatible base
// URL: audio transcription first, then a chat completion that performs
// the translation. The split is invisible to callers.
type relayTranslator struct {
	baseURL    string
	apiKey     string
	sttModel   string
	chatModel  string
	httpClient *http.Client
}

// NewRelayTranslator builds the chained backend. The base URL points
// at the service root, e.g. https://api.openai.com/v1.
func NewRelayTranslator(baseURL, apiKey, sttModel, chatModel string, timeout time.Duration) (Translator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingCredential
	}
	if baseURL == "" {
		return nil, fmt.Errorf("relay base url empty")
	}
	if sttModel == "" {
		sttModel = "whisper-1"
	}
	if chatModel == "" {
		chatModel = "gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &relayTranslator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		sttModel:   sttModel,
		chatModel:  chatModel,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (r *relayTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	transcript, err := r.transcribe(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if transcript == "" {
		return Result{}, fmt.Errorf("%w: empty transcript", ErrService)
	}

	translated, err := r.complete(ctx, req, transcript)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: translated, SourceText: transcript}, nil
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

func (r *relayTranslator) transcribe(ctx context.Context, req Request) (string, error) {
	recording, err := base64.StdEncoding.DecodeString(audio.StripDataURI(req.AudioBase64))
	if err != nil {
		return "", fmt.Errorf("decode audio payload: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "recording.wav")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(recording); err != nil {
		return "", err
	}
	if err := writer.WriteField("model", r.sttModel); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)

	var resp transcriptionResponse
	if err := r.do(httpReq, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (r *relayTranslator) complete(ctx context.Context, req Request, transcript string) (string, error) {
	payload := chatRequest{
		Model: r.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: Instruction(req.Source, req.Target)},
			{Role: "user", Content: transcript},
		},
		Temperature: 0.2,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)

	var resp chatResponse
	if err := r.do(httpReq, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no completion choices", ErrService)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (r *relayTranslator) do(req *http.Request, out any) error {
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return transportError(err)
	}
	if resp.StatusCode >= 300 {
		var envelope errorEnvelope
		message := ""
		if json.Unmarshal(data, &envelope) == nil {
			message = envelope.Error.Message
		}
		return statusError(resp.StatusCode, message)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrService, err)
	}
	return nil
}
