package speech

import (
	"strings"

	"github.com/lingo-labs/lingo-core/internal/config"
)

// Voice pairs a synthesizer voice handle with its language tag.
type Voice struct {
	Name     string
	Language string
	Default  bool
}

// InventoryFromConfig converts the configured voice list.
func InventoryFromConfig(voices []config.SpeechVoice) []Voice {
	out := make([]Voice, 0, len(voices))
	for _, v := range voices {
		out = append(out, Voice{Name: v.Name, Language: v.Language, Default: v.Default})
	}
	return out
}

// SelectVoice picks the best available voice for a language tag:
// exact tag match, then primary-subtag match, then the configured
// default, then the first voice. A zero Voice means the synthesizer
// default should be used.
func SelectVoice(voices []Voice, lang string) Voice {
	lang = strings.ToLower(lang)
	primary := lang
	if idx := strings.Index(primary, "-"); idx > 0 {
		primary = primary[:idx]
	}

	for _, v := range voices {
		if strings.EqualFold(v.Language, lang) {
			return v
		}
	}
	for _, v := range voices {
		tag := strings.ToLower(v.Language)
		if tag == primary || strings.HasPrefix(tag, primary+"-") {
			return v
		}
	}
	for _, v := range voices {
		if v.Default {
			return v
		}
	}
	if len(voices) > 0 {
		return voices[0]
	}
	return Voice{}
}
