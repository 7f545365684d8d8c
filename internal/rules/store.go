// Package rules implements the high-confidence merchant-to-category rule
// store. It is a cache over reviewed history: it can always be rebuilt from
// the transactions it was refreshed from and holds no other information.
package rules

import (
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/the-mentat-must-flow/internal/feature"
	"github.com/Veraticus/the-mentat-must-flow/internal/model"
)

const (
	// DefaultMinOccurrences is how many reviewed sightings of a merchant
	// are required before a rule may be created.
	DefaultMinOccurrences = 3

	// minRuleConfidence is the consistency threshold below which no rule
	// is stored.
	minRuleConfidence = 0.8

	// maxRuleConfidence caps rule confidence so a rule alone never clears
	// the ensemble's shortcut threshold without genuinely unanimous history.
	maxRuleConfidence = 0.95

	// partialMatchPenalty scales confidence for non-exact pattern matches.
	partialMatchPenalty = 0.9
)

// Match is a successful rule lookup.
type Match struct {
	Pattern    string
	Category   string
	Confidence float64
}

// Suggestion is a category hint derived from similar known merchants.
type Suggestion struct {
	Category   string
	Similarity float64
	Confidence float64
}

// Store holds merchant rules keyed by cleaned pattern.
type Store struct {
	rules map[string]model.MerchantRule
}

// NewStore creates an empty rule store.
func NewStore() *Store {
	return &Store{rules: make(map[string]model.MerchantRule)}
}

// Lookup resolves a raw merchant string to a category. A pattern equal to
// the cleaned merchant, or covering its leading tokens, is an exact match
// at full confidence; otherwise the first partial match in sorted pattern
// order is returned with its confidence scaled down. Returns nil when
// nothing matches.
func (s *Store) Lookup(merchantText string) *Match {
	clean := feature.CleanMerchant(merchantText)
	if clean == "" {
		return nil
	}

	if rule, ok := s.rules[clean]; ok {
		return &Match{Pattern: rule.Pattern, Category: rule.Category, Confidence: rule.Confidence}
	}

	// "EDEKA" is an exact match for "EDEKA MARKT 1234": branch suffixes
	// vary per sighting but the merchant is the same. Longest covering
	// pattern wins.
	var prefixRule *model.MerchantRule
	for _, pattern := range s.sortedPatterns() {
		if strings.HasPrefix(clean, pattern+" ") {
			rule := s.rules[pattern]
			if prefixRule == nil || len(rule.Pattern) > len(prefixRule.Pattern) {
				prefixRule = &rule
			}
		}
	}
	if prefixRule != nil {
		return &Match{Pattern: prefixRule.Pattern, Category: prefixRule.Category, Confidence: prefixRule.Confidence}
	}

	// Sorted iteration keeps partial matching deterministic.
	for _, pattern := range s.sortedPatterns() {
		if isPartialMatch(clean, pattern) {
			rule := s.rules[pattern]
			return &Match{
				Pattern:    rule.Pattern,
				Category:   rule.Category,
				Confidence: rule.Confidence * partialMatchPenalty,
			}
		}
	}

	return nil
}

// isPartialMatch implements the partial-match heuristic: short patterns
// require exact matches; single-token patterns match by 4-character prefix;
// multi-token patterns match by token-set overlap.
func isPartialMatch(merchant, pattern string) bool {
	if len(pattern) < 5 {
		return false
	}

	merchantWords := strings.Fields(merchant)
	patternWords := strings.Fields(pattern)

	if len(patternWords) == 1 {
		prefix := patternWords[0]
		if len(prefix) > 4 {
			prefix = prefix[:4]
		}
		for _, word := range merchantWords {
			if strings.HasPrefix(word, prefix) {
				return true
			}
		}
		return false
	}

	patternSet := make(map[string]struct{}, len(patternWords))
	for _, w := range patternWords {
		patternSet[w] = struct{}{}
	}

	overlap := 0
	seen := make(map[string]struct{}, len(merchantWords))
	for _, w := range merchantWords {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if _, ok := patternSet[w]; ok {
			overlap++
		}
	}

	required := len(patternWords)
	if required > 2 {
		required = 2
	}
	return overlap >= required
}

// Refresh rebuilds the store from labeled history. Only transactions that
// are human-reviewed count. A rule is created for a merchant whose reviewed
// occurrences agree on one category at least minOccurrences times, with
// confidence = agreeing / total for that merchant, kept only at 0.8 or
// above. Existing rules for merchants no longer meeting the bar are
// dropped: the store mirrors history, nothing more.
func (s *Store) Refresh(history []model.Transaction, minOccurrences int) int {
	if minOccurrences <= 0 {
		minOccurrences = DefaultMinOccurrences
	}

	type tally struct {
		byCategory map[string]int
		lastSeen   map[string]time.Time
		total      int
	}

	tallies := make(map[string]*tally)
	for _, txn := range history {
		if !txn.IsReviewed || txn.Category == "" {
			continue
		}
		clean := feature.CleanMerchant(txn.Name)
		if clean == "" {
			continue
		}

		tl, ok := tallies[clean]
		if !ok {
			tl = &tally{byCategory: make(map[string]int), lastSeen: make(map[string]time.Time)}
			tallies[clean] = tl
		}
		tl.total++
		tl.byCategory[txn.Category]++
		if txn.Date.After(tl.lastSeen[txn.Category]) {
			tl.lastSeen[txn.Category] = txn.Date
		}
	}

	rebuilt := make(map[string]model.MerchantRule, len(tallies))
	for pattern, tl := range tallies {
		category, count := dominantCategory(tl.byCategory)
		if count < minOccurrences {
			continue
		}

		confidence := float64(count) / float64(tl.total)
		if confidence > maxRuleConfidence {
			confidence = maxRuleConfidence
		}
		if confidence < minRuleConfidence {
			continue
		}

		rebuilt[pattern] = model.MerchantRule{
			Pattern:     pattern,
			Category:    category,
			Confidence:  confidence,
			Occurrences: count,
			LastSeen:    tl.lastSeen[category],
		}
	}

	s.rules = rebuilt
	return len(rebuilt)
}

// dominantCategory returns the most frequent category and its count, with
// ties broken by name for determinism.
func dominantCategory(counts map[string]int) (string, int) {
	best := ""
	bestCount := 0
	for category, count := range counts {
		if count > bestCount || (count == bestCount && category < best) {
			best = category
			bestCount = count
		}
	}
	return best, bestCount
}

// Upsert adds or replaces a single rule, cleaning its pattern first.
// Used when restoring a snapshot and by manual rule management.
func (s *Store) Upsert(rule model.MerchantRule) {
	clean := feature.CleanMerchant(rule.Pattern)
	if clean == "" {
		return
	}
	rule.Pattern = clean
	s.rules[clean] = rule
}

// Delete removes a rule by pattern. Returns true if it existed.
func (s *Store) Delete(pattern string) bool {
	clean := feature.CleanMerchant(pattern)
	if _, ok := s.rules[clean]; !ok {
		return false
	}
	delete(s.rules, clean)
	return true
}

// Suggestions returns up to three category hints for a merchant based on
// Jaccard token similarity against known patterns.
func (s *Store) Suggestions(merchantText string) []Suggestion {
	clean := feature.CleanMerchant(merchantText)
	if clean == "" {
		return nil
	}

	var suggestions []Suggestion
	for _, pattern := range s.sortedPatterns() {
		similarity := jaccardSimilarity(clean, pattern)
		if similarity <= 0.7 {
			continue
		}
		rule := s.rules[pattern]
		suggestions = append(suggestions, Suggestion{
			Category:   rule.Category,
			Similarity: similarity,
			Confidence: rule.Confidence * similarity,
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}
		return suggestions[i].Category < suggestions[j].Category
	})

	if len(suggestions) > 3 {
		suggestions = suggestions[:3]
	}
	return suggestions
}

func jaccardSimilarity(a, b string) float64 {
	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(wordsA))
	for _, w := range wordsA {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{}, len(wordsB))
	for _, w := range wordsB {
		setB[w] = struct{}{}
	}

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection

	return float64(intersection) / float64(union)
}

// Len reports how many rules the store holds.
func (s *Store) Len() int {
	return len(s.rules)
}

// Snapshot returns all rules sorted by pattern, for serialization.
func (s *Store) Snapshot() []model.MerchantRule {
	snapshot := make([]model.MerchantRule, 0, len(s.rules))
	for _, pattern := range s.sortedPatterns() {
		snapshot = append(snapshot, s.rules[pattern])
	}
	return snapshot
}

// FromSnapshot rebuilds a store from a serialized snapshot.
func FromSnapshot(snapshot []model.MerchantRule) *Store {
	s := NewStore()
	for _, rule := range snapshot {
		s.Upsert(rule)
	}
	return s
}

func (s *Store) sortedPatterns() []string {
	patterns := make([]string, 0, len(s.rules))
	for pattern := range s.rules {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)
	return patterns
}
