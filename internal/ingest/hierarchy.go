package ingest

import (
	"sort"

	"codegraph/internal/storage"
)

// ContainmentLinks assigns parent symbols by structural containment: a
// child-kind symbol whose line range sits fully inside a parent-kind symbol
// in the same file links to that parent. With multiple candidates the first
// discovered containing parent wins; this is a structural heuristic, not
// semantic resolution.
func ContainmentLinks(symbols []storage.Symbol) map[int64]int64 {
	var parents []*storage.Symbol
	for i := range symbols {
		if isParentKind(symbols[i].Kind) {
			parents = append(parents, &symbols[i])
		}
	}
	if len(parents) == 0 {
		return nil
	}

	sort.Slice(parents, func(i, j int) bool {
		return parents[i].StartLine < parents[j].StartLine
	})

	links := make(map[int64]int64)
	for i := range symbols {
		child := &symbols[i]
		if !isChildKind(child.Kind) {
			continue
		}

		for _, parent := range parents {
			if parent.ID == child.ID {
				continue
			}
			if parent.StartLine <= child.StartLine && child.EndLine <= parent.EndLine {
				links[child.ID] = parent.ID
				break
			}
		}
	}
	return links
}

func isParentKind(kind string) bool {
	for _, k := range storage.ParentKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func isChildKind(kind string) bool {
	for _, k := range storage.ChildKinds {
		if k == kind {
			return true
		}
	}
	return false
}
