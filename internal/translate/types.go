// Package translate defines the contract to the hosted speech
// translation service and its concrete backends. The backend may run
// one multimodal call or two chained calls internally; callers see a
// single asynchronous round trip either way.
package translate

import (
	"context"
	"fmt"
)

// Request carries the encoded recording and the language pair.
type Request struct {
	SessionID   string
	AudioBase64 string
	MIMEType    string
	Source      string
	Target      string
}

// Result is the translated text, plus the intermediate transcript when
// the backend produced one.
type Result struct {
	Text       string
	SourceText string
}

// Translator is the single contract exposed to the session
// orchestrator. Implementations do not retry; a failure surfaces once
// per attempt.
type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

type unconfiguredTranslator struct{}

// NewUnconfiguredTranslator is the backend used when no credential is
// available at startup. Every attempt fails with ErrMissingCredential,
// which lets the runtime come up and the session surface the
// configuration problem when the user actually records.
func NewUnconfiguredTranslator() Translator {
	return unconfiguredTranslator{}
}

func (unconfiguredTranslator) Translate(context.Context, Request) (Result, error) {
	return Result{}, fmt.Errorf("%w: no translation credential configured", ErrMissingCredential)
}

// Instruction builds the translation prompt shared by all backends.
func Instruction(source, target string) string {
	return fmt.Sprintf(
		"You are a translator. If the speech is in %s, translate it to %s; otherwise translate it to %s. "+
			"Reply with the translation only, no commentary.",
		languageName(source), languageName(target), languageName(source))
}

func languageName(tag string) string {
	switch tag {
	case "zh", "zh-CN":
		return "Chinese"
	case "en", "en-US":
		return "English"
	default:
		return tag
	}
}
