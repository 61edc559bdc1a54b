package billing

// Child id set helpers. All of them preserve first-seen order so metadata and
// API responses stay stable across reads.

func dedupIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func unionIDs(a, b []string) []string {
	return dedupIDs(append(append([]string{}, a...), b...))
}

func subtractIDs(a, b []string) []string {
	drop := make(map[string]struct{}, len(b))
	for _, id := range b {
		drop[id] = struct{}{}
	}
	out := make([]string, 0, len(a))
	for _, id := range a {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func intersectIDs(a, b []string) []string {
	keep := make(map[string]struct{}, len(b))
	for _, id := range b {
		keep[id] = struct{}{}
	}
	out := make([]string, 0, len(a))
	for _, id := range a {
		if _, ok := keep[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
