package normalize

import "github.com/cembakir/veriflow/internal/domain"

// DuplicateEntry reports how many times one canonical item appeared in the
// input.
type DuplicateEntry struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

// Analysis is the cost/duplicate preview for a candidate batch. Nothing is
// persisted to produce it.
type Analysis struct {
	TotalOriginal      int              `json:"totalOriginal"`
	UniqueCount        int              `json:"uniqueCount"`
	DuplicateCount     int              `json:"duplicateCount"`
	InvalidCount       int              `json:"invalidCount"`
	ValidItems         []Item           `json:"validItems"`
	InvalidItems       []Item           `json:"invalidItems"`
	Duplicates         []DuplicateEntry `json:"duplicates"`
	EstimatedCostSaved float64          `json:"estimatedCostSaved"`
}

// AnalyzeBatch partitions raw input into valid, invalid and duplicate items.
// Duplicate means the same normalized form seen more than once, independent of
// validity; only the first occurrence of a canonical form is kept. The saving
// estimate counts every skipped item (invalid or duplicate occurrence) at the
// given unit cost.
func AnalyzeBatch(category domain.Category, raw []string, unitCost float64) Analysis {
	analysis := Analysis{TotalOriginal: len(raw)}

	seen := make(map[string]int, len(raw))
	order := make([]string, 0, len(raw))

	for _, r := range raw {
		item := ForCategory(category, r)

		key := item.Normalized
		if key == "" {
			// Unnormalizable input cannot collide; dedup on the raw form.
			key = item.Original
		}

		if _, ok := seen[key]; ok {
			seen[key]++
			analysis.DuplicateCount++
			continue
		}
		seen[key] = 1
		order = append(order, key)

		if item.Valid {
			analysis.ValidItems = append(analysis.ValidItems, item)
		} else {
			analysis.InvalidItems = append(analysis.InvalidItems, item)
			analysis.InvalidCount++
		}
	}

	analysis.UniqueCount = len(order)
	for _, key := range order {
		if seen[key] > 1 {
			analysis.Duplicates = append(analysis.Duplicates, DuplicateEntry{Item: key, Count: seen[key]})
		}
	}

	analysis.EstimatedCostSaved = float64(analysis.InvalidCount+analysis.DuplicateCount) * unitCost
	return analysis
}
