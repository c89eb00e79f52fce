package analytics

import (
	"strings"

	"RiskPulse/internal/domain/models"
)

// Group is one partition of a collection: the shared key tuple and its loans.
type Group struct {
	Key   []models.Value
	Loans []models.JoinedLoan
}

// Partition splits loans by the tuple of key values. A missing key value is a
// group of its own. Groups come out in order of first appearance.
// With no keys the whole collection is a single group, even when it is empty.
func Partition(loans []models.JoinedLoan, keys []KeyDef) []Group {
	if len(keys) == 0 {
		return []Group{{Key: nil, Loans: loans}}
	}
	pos := make(map[string]int)
	var groups []Group
	var sb strings.Builder
	tuple := make([]models.Value, len(keys))
	for i := range loans {
		sb.Reset()
		for k, key := range keys {
			v := key.Extract(&loans[i])
			tuple[k] = v
			sb.WriteString(v.GroupKey())
			sb.WriteByte('\x1f')
		}
		id := sb.String()
		g, ok := pos[id]
		if !ok {
			g = len(groups)
			pos[id] = g
			groups = append(groups, Group{Key: append([]models.Value(nil), tuple...)})
		}
		groups[g].Loans = append(groups[g].Loans, loans[i])
	}
	return groups
}

// Suppress drops groups with fewer than min loans and returns how many were
// dropped. min <= 0 keeps everything.
func Suppress(groups []Group, min int) ([]Group, int) {
	if min <= 0 {
		return groups, 0
	}
	kept := groups[:0:0]
	for _, g := range groups {
		if len(g.Loans) >= min {
			kept = append(kept, g)
		}
	}
	return kept, len(groups) - len(kept)
}
