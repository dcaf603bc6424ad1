package usecase

import "sort"

// TopK keeps the k highest-scoring labels. Equal scores are broken
// lexicographically by label so the selection is deterministic across runs.
func TopK(scores map[string]float64, k int) map[string]float64 {
	if len(scores) == 0 {
		return nil
	}

	type entry struct {
		label string
		score float64
	}
	entries := make([]entry, 0, len(scores))
	for label, score := range scores {
		entries = append(entries, entry{label: label, score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].label < entries[j].label
	})

	if k > len(entries) {
		k = len(entries)
	}
	out := make(map[string]float64, k)
	for _, e := range entries[:k] {
		out[e.label] = e.score
	}
	return out
}
