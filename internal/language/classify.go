// Package language implements the binary language heuristic used to
// pick a synthesis voice for translated text.
package language

// Lang identifies a classification result.
type Lang string

const (
	Chinese Lang = "zh"
	English Lang = "en"
)

// CJK Unified Ideographs block boundaries.
const (
	cjkFirst = 0x4E00
	cjkLast  = 0x9FA5
)

// Classify returns Chinese if text contains at least one CJK Unified
// Ideograph, else English. The empty string classifies as English.
func Classify(text string) Lang {
	for _, r := range text {
		if r >= cjkFirst && r <= cjkLast {
			return Chinese
		}
	}
	return English
}

// Tag returns the BCP 47 language tag used for voice selection.
func Tag(lang Lang) string {
	if lang == Chinese {
		return "zh-CN"
	}
	return "en-US"
}
