package factor

import "sort"

// TopN returns the codes of the n highest-scoring instruments. Ties resolve
// in favor of the instrument appearing earlier in universe order, which is
// fixed at simulator construction; the result is therefore fully
// deterministic for identical inputs. Instruments without a score are
// skipped, and fewer than n codes are returned when fewer are available.
func TopN(universe []string, scores map[string]float64, n int) []string {
	candidates := make([]string, 0, len(scores))
	for _, code := range universe {
		if _, ok := scores[code]; ok {
			candidates = append(candidates, code)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return scores[candidates[i]] > scores[candidates[j]]
	})

	if n > len(candidates) {
		n = len(candidates)
	}
	return candidates[:n]
}
