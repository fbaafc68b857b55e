package normalization

// Levenshtein returns the edit distance between a and b (unit costs).
func Levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// WithinDistance short-circuits when the length gap alone exceeds max.
func WithinDistance(a, b string, max int) bool {
	if max < 0 {
		return false
	}
	la, lb := len([]rune(a)), len([]rune(b))
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	if diff > max {
		return false
	}
	return Levenshtein(a, b) <= max
}

// NearDuplicateGroups clusters items whose normalized keys sit within max
// edit distance of the group seed. Groups of size 1 are omitted.
func NearDuplicateGroups[T any](items []T, key func(T) string, maxDistance int) [][]T {
	if maxDistance < 0 || len(items) < 2 {
		return nil
	}
	used := make([]bool, len(items))
	var groups [][]T
	for i := range items {
		if used[i] {
			continue
		}
		seed := Name(key(items[i]))
		group := []T{items[i]}
		for j := i + 1; j < len(items); j++ {
			if used[j] {
				continue
			}
			if WithinDistance(seed, Name(key(items[j])), maxDistance) {
				group = append(group, items[j])
				used[j] = true
			}
		}
		if len(group) > 1 {
			used[i] = true
			groups = append(groups, group)
		}
	}
	return groups
}
