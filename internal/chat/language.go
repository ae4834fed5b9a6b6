package chat

import "strings"

// Language is the detected input language reported in the metadata event.
type Language string

const (
	LanguageEnglish  Language = "en"
	LanguageFilipino Language = "fil"
	LanguageTaglish  Language = "taglish"
)

// Common Tagalog function words. Function words are a better signal than
// content words because they appear in nearly every sentence.
var tagalogMarkers = []string{
	"ako", "ko", "mo", "siya", "sya", "niya", "kami", "tayo", "kayo",
	"sila", "ang", "ng", "mga", "sa", "na", "pa", "ba", "po", "hindi",
	"oo", "ito", "iyan", "yung", "kasi", "pero", "para", "kung", "may",
	"wala", "meron", "paano", "bakit", "saan", "kailan", "sino", "ano",
	"dapat", "gusto", "ayaw", "pwede", "puwede", "lang", "din", "rin",
	"naman", "talaga",
}

var englishMarkers = []string{
	"the", "a", "an", "is", "are", "was", "were", "do", "does", "did",
	"i", "you", "he", "she", "it", "we", "they", "my", "your", "what",
	"how", "why", "when", "where", "who", "can", "could", "should",
	"would", "will", "have", "has", "to", "of", "in", "on", "for",
	"and", "or", "not", "if",
}

// DetectLanguage classifies the input as English, Filipino, or mixed
// Taglish by counting function-word hits. It is intentionally cheap; the
// result only drives the response language hint and the metadata event.
func DetectLanguage(text string) Language {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return LanguageEnglish
	}

	tl, en := 0, 0
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'()")
		if w == "" {
			continue
		}
		if wordInSet(w, tagalogMarkers) {
			tl++
		}
		if wordInSet(w, englishMarkers) {
			en++
		}
	}

	switch {
	case tl == 0:
		return LanguageEnglish
	case en == 0:
		return LanguageFilipino
	case tl >= 2 && en >= 2:
		return LanguageTaglish
	case tl > en:
		return LanguageFilipino
	default:
		return LanguageEnglish
	}
}

func wordInSet(w string, set []string) bool {
	for _, s := range set {
		if w == s {
			return true
		}
	}
	return false
}
