// Package feature derives flat, statically shaped feature records from raw
// transactions. Extraction is a pure function of its input: no state, no
// randomness, no I/O.
package feature

import (
	"regexp"
	"strings"
)

// merchantNoisePatterns strip dates, locations, reference numbers, and
// other bank-statement noise from merchant text before matching.
var merchantNoisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\d{4}\.\d{2}\.\d{2}.*`),                                          // dates
	regexp.MustCompile(`(?i)//.*`),                                                           // location info after //
	regexp.MustCompile(`(?i)\b(DE|Berlin|München|Hamburg|Köln|Frankfurt|Stuttgart)\b.*`),     // cities/countries
	regexp.MustCompile(`(?i)Folgenr\.\d+.*`),                                                 // transaction numbers
	regexp.MustCompile(`(?i)\bNR\.\d+.*`),                                                    // reference numbers
	regexp.MustCompile(`(?i)\d{2}:\d{2}:\d{2}.*`),                                            // times
	regexp.MustCompile(`\*+.*`),                                                              // everything after asterisks
}

var whitespaceRun = regexp.MustCompile(`\s+`)

var merchantPrefixes = []string{"EC ", "KARTE NR", "FOLGENR"}

// CleanMerchant normalizes a raw merchant string: noise patterns stripped,
// whitespace collapsed, uppercased. Empty input yields an empty string.
func CleanMerchant(merchantName string) string {
	if merchantName == "" {
		return ""
	}

	cleaned := strings.TrimSpace(merchantName)
	for _, re := range merchantNoisePatterns {
		cleaned = re.ReplaceAllString(cleaned, "")
	}

	cleaned = whitespaceRun.ReplaceAllString(cleaned, " ")
	cleaned = strings.ToUpper(strings.TrimSpace(cleaned))

	for _, prefix := range merchantPrefixes {
		if strings.HasPrefix(cleaned, prefix) {
			cleaned = strings.TrimSpace(cleaned[len(prefix):])
		}
	}

	return cleaned
}

// stopwords are common German filler words that carry no category signal.
var stopwords = map[string]struct{}{
	"und": {}, "oder": {}, "der": {}, "die": {}, "das": {},
	"ein": {}, "eine": {}, "einen": {}, "vom": {}, "zum": {},
	"zur": {}, "am": {}, "im": {}, "an": {}, "auf": {},
	"bei": {}, "mit": {},
}

var nonWordRun = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)

// PreprocessText lowercases, strips punctuation, collapses whitespace, and
// drops stopwords and tokens of two characters or fewer. Empty input yields
// an empty string; the function never fails.
func PreprocessText(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ToLower(text)
	text = nonWordRun.ReplaceAllString(text, " ")
	text = whitespaceRun.ReplaceAllString(text, " ")

	words := strings.Fields(text)
	kept := words[:0]
	for _, word := range words {
		if _, stop := stopwords[word]; stop {
			continue
		}
		if len([]rune(word)) <= 2 {
			continue
		}
		kept = append(kept, word)
	}

	return strings.Join(kept, " ")
}
