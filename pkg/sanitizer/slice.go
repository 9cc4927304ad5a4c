package sanitizer

import "slices"

func NormalizeStringSlice(items []string, normalizer func(string) string) []string {
	if len(items) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	result := make([]string, 0, len(items))

	for _, item := range items {
		normalized := normalizer(item)

		if normalized == "" {
			continue
		}

		if seen[normalized] {
			continue
		}

		seen[normalized] = true
		result = append(result, normalized)
	}

	return result
}

// NormalizeDates trims, deduplicates and sorts YYYY-MM-DD dates. Sorting is
// lexicographic, which is chronological for that layout.
func NormalizeDates(dates []string) []string {
	result := NormalizeStringSlice(dates, TrimAndNormalize)
	slices.Sort(result)
	return result
}
