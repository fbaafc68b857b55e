package content

// Quality tiers, best first. The enricher snaps anything else to TierC.
const (
	TierS = "S"
	TierA = "A"
	TierB = "B"
	TierC = "C"
	TierD = "D"
)

var tierRank = map[string]int{
	TierS: 0,
	TierA: 1,
	TierB: 2,
	TierC: 3,
	TierD: 4,
}

func ValidTier(t string) bool {
	_, ok := tierRank[t]
	return ok
}

// TiersAtOrAbove returns the tiers at least as good as min, e.g. "A" yields
// {S, A}. Unknown min returns nil, meaning no tier filter.
func TiersAtOrAbove(min string) []string {
	rank, ok := tierRank[min]
	if !ok {
		return nil
	}
	out := make([]string, 0, rank+1)
	for _, t := range []string{TierS, TierA, TierB, TierC, TierD} {
		if tierRank[t] <= rank {
			out = append(out, t)
		}
	}
	return out
}
