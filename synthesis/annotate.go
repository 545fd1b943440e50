package synthesis

import (
	"strings"
)

// Paralinguistic markers understood by the dialogue TTS model.
const (
	PauseMarker = "(thoughtful pause)"
	SighMarker  = "(gentle sigh)"
	WarmMarker  = "(warm tone)"
)

var (
	acknowledgmentWords = []string{"understand", "i see", "that makes sense"}
	difficultyWords     = []string{"difficult", "challenging", "hard"}
	positiveWords       = []string{"good", "excellent", "progress"}
)

// Annotate adds paralinguistic markers chosen by case-insensitive keyword
// matches on text, then prefixes the speaker tag, e.g. "[S1] ...". It is pure.
func Annotate(text, speakerTag string) string {
	lower := strings.ToLower(text)
	out := text

	if containsAny(lower, acknowledgmentWords) {
		if strings.Contains(out, ".") {
			out = strings.ReplaceAll(out, ".", ". "+PauseMarker)
		} else {
			out += " " + PauseMarker
		}
	}
	if containsAny(lower, difficultyWords) {
		out += " " + SighMarker
	}
	if containsAny(lower, positiveWords) {
		out += " " + WarmMarker
	}

	return "[" + speakerTag + "] " + out
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
