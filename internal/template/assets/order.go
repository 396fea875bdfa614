package assets

import "template-ingest/internal/template/stylesheet"

// orderByImports returns sheets with every referenced sheet ahead of the
// sheet referencing it. Unrelated sheets keep archive order, and a cycle is
// broken at the sheet that appears first in the archive.
func orderByImports(sheets []pending) []pending {
	index := make(map[string]int, len(sheets))
	for i, s := range sheets {
		index[s.rel] = i
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(sheets))
	ordered := make([]pending, 0, len(sheets))

	var visit func(i int)
	visit = func(i int) {
		if state[i] != unvisited {
			return
		}
		state[i] = visiting
		for _, ref := range stylesheet.References(sheets[i].text, sheets[i].rel) {
			if j, ok := index[ref]; ok {
				visit(j)
			}
		}
		state[i] = done
		ordered = append(ordered, sheets[i])
	}

	for i := range sheets {
		visit(i)
	}
	return ordered
}
