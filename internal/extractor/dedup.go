package extractor

import (
	"sort"
	"strings"
)

// textCandidate is one raw (text, confidence) pair surfaced by OCR or
// transcription before aggregation.
type textCandidate struct {
	Text       string
	Confidence float64
}

// aggregateOCR filters candidates to confidence >= 0.5 and a trimmed length
// of at least 2, deduplicates case-insensitively/whitespace-trimmed across
// the whole post keeping the highest-confidence surface form, and returns
// the survivors' text sorted by confidence descending (spec §4.6 step 2).
// Confidence only ranks dedup survivors here; it is never persisted.
func aggregateOCR(candidates []textCandidate) []string {
	best := make(map[string]textCandidate)
	order := make([]string, 0, len(candidates))
	for _, c := range candidates {
		trimmed := strings.TrimSpace(c.Text)
		if len(trimmed) < 2 || c.Confidence < 0.5 {
			continue
		}
		key := strings.ToLower(trimmed)
		existing, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = textCandidate{Text: trimmed, Confidence: c.Confidence}
			continue
		}
		if c.Confidence > existing.Confidence {
			best[key] = textCandidate{Text: trimmed, Confidence: c.Confidence}
		}
	}

	survivors := make([]textCandidate, 0, len(order))
	for _, key := range order {
		survivors = append(survivors, best[key])
	}
	sort.SliceStable(survivors, func(i, j int) bool { return survivors[i].Confidence > survivors[j].Confidence })

	out := make([]string, len(survivors))
	for i, c := range survivors {
		out[i] = c.Text
	}
	return out
}
