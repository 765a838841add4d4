package speech

import "testing"

func inventory() []Voice {
	return []Voice{
		{Name: "cn-lily", Language: "zh-CN"},
		{Name: "en-ava", Language: "en-US", Default: true},
		{Name: "en-gb-oliver", Language: "en-GB"},
	}
}

func TestSelectVoiceExactMatch(t *testing.T) {
	v := SelectVoice(inventory(), "en-GB")
	if v.Name != "en-gb-oliver" {
		t.Fatalf("expected exact tag match, got %s", v.Name)
	}
}

func TestSelectVoicePrimarySubtag(t *testing.T) {
	v := SelectVoice(inventory(), "zh")
	if v.Name != "cn-lily" {
		t.Fatalf("expected zh voice, got %s", v.Name)
	}
	v = SelectVoice(inventory(), "en")
	if v.Name != "en-ava" {
		t.Fatalf("expected first en voice, got %s", v.Name)
	}
}

func TestSelectVoiceFallbackToDefault(t *testing.T) {
	v := SelectVoice(inventory(), "fr-FR")
	if v.Name != "en-ava" {
		t.Fatalf("expected default voice fallback, got %s", v.Name)
	}
}

func TestSelectVoiceEmptyInventory(t *testing.T) {
	v := SelectVoice(nil, "zh-CN")
	if v.Name != "" {
		t.Fatalf("expected zero voice, got %s", v.Name)
	}
}

func TestSelectVoiceNoDefaultFallsBackToFirst(t *testing.T) {
	voices := []Voice{{Name: "de-hans", Language: "de-DE"}}
	v := SelectVoice(voices, "ja-JP")
	if v.Name != "de-hans" {
		t.Fatalf("expected first voice fallback, got %s", v.Name)
	}
}
