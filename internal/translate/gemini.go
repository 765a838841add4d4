package translate

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/lingo-labs/lingo-core/internal/audio"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// geminiTranslator runs one multimodal generation call directly on the
// recorded audio.
type geminiTranslator struct {
	client *genai.Client
	model  string
}

// NewGeminiTranslator dials the hosted generation API. The credential
// must already be resolved; construction fails fast when it is absent.
func NewGeminiTranslator(ctx context.Context, apiKey, model string) (Translator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingCredential
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &geminiTranslator{client: client, model: model}, nil
}

func (g *geminiTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	data, err := base64.StdEncoding.DecodeString(audio.StripDataURI(req.AudioBase64))
	if err != nil {
		return Result{}, fmt.Errorf("decode audio payload: %w", err)
	}

	model := g.client.GenerativeModel(g.model)
	model.GenerationConfig.SetTemperature(0.2)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(Instruction(req.Source, req.Target))},
	}

	resp, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: req.MIMEType, Data: data},
		genai.Text("Translate this recording."),
	)
	if err != nil {
		return Result{}, classifyGenAIError(err)
	}

	text := collectText(resp)
	if text == "" {
		return Result{}, fmt.Errorf("%w: empty completion", ErrService)
	}
	return Result{Text: text}, nil
}

func (g *geminiTranslator) Close() error {
	return g.client.Close()
}

func collectText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func classifyGenAIError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrInvalidCredential, apiErr.Message)
		default:
			return statusError(apiErr.Code, apiErr.Message)
		}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return transportError(err)
	}
	return fmt.Errorf("%w: %v", ErrService, err)
}
