// Package canonicaltext implements the optional pipeline-time text
// normalization: a scene's text-embedding input becomes a composition of
// its transcript, top-scoring vision tags, and the sorted names of people
// detected in it, trimmed to a token budget at sentence boundaries.
package canonicaltext

import (
	"sort"
	"strings"
)

const separator = " | "

// Build composes the canonical text for one scene. visionTags maps tag name
// to a confidence score; topN of them (by score, ties broken
// alphabetically) are kept. personNames need not be pre-sorted or
// deduplicated; Build does both.
func Build(transcript string, visionTags map[string]float64, personNames []string, topN, tokenBudget int) string {
	parts := make([]string, 0, 3)

	transcript = strings.TrimSpace(transcript)
	if transcript != "" {
		parts = append(parts, transcript)
	}

	if tags := topTags(visionTags, topN); len(tags) > 0 {
		parts = append(parts, strings.Join(tags, ", "))
	}

	if names := dedupSorted(personNames); len(names) > 0 {
		parts = append(parts, strings.Join(names, ", "))
	}

	composed := strings.Join(parts, separator)
	return trimToTokenBudget(composed, tokenBudget)
}

func topTags(tags map[string]float64, topN int) []string {
	type scored struct {
		name  string
		score float64
	}
	all := make([]scored, 0, len(tags))
	for name, score := range tags {
		all = append(all, scored{name, score})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].name < all[j].name
	})
	if topN > len(all) {
		topN = len(all)
	}
	out := make([]string, topN)
	for i := 0; i < topN; i++ {
		out[i] = all[i].name
	}
	return out
}

func dedupSorted(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// trimToTokenBudget keeps whole whitespace-delimited tokens up to budget,
// backing off to the last sentence boundary (., !, ?) found within the
// truncated text when one exists, so the result reads as a complete
// thought rather than a hard word cut.
func trimToTokenBudget(text string, budget int) string {
	tokens := strings.Fields(text)
	if budget <= 0 || len(tokens) <= budget {
		return text
	}

	truncated := strings.Join(tokens[:budget], " ")
	if idx := lastSentenceBoundary(truncated); idx > 0 {
		return truncated[:idx+1]
	}
	return truncated
}

func lastSentenceBoundary(s string) int {
	last := -1
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			last = i
		}
	}
	return last
}
