// Package rank orders channel group names by editorial priority.
package rank

import "strings"

// Rule places every not-yet-placed group whose lowercased name contains Match
// and none of Exclude.
type Rule struct {
	Match   string
	Exclude []string
}

// Rules is the priority table, highest first. Persian-language groups come
// before sports groups; all other groups follow in input order.
var Rules = []Rule{
	{Match: "iran"},
	{Match: "persian"},
	{Match: "ir", Exclude: []string{"iraq", "ireland"}},
	{Match: "bein"},
	{Match: "sport"},
	{Match: "spor"},
	{Match: "canal+"},
	{Match: "dazn"},
	{Match: "paramount"},
}

func (r Rule) matches(lower string) bool {
	if !strings.Contains(lower, r.Match) {
		return false
	}
	for _, ex := range r.Exclude {
		if strings.Contains(lower, ex) {
			return false
		}
	}
	return true
}

// Groups returns names reordered by Rules. Duplicates collapse to their first
// occurrence, and groups matching no rule keep their relative input order.
// The result is a permutation of the distinct input names.
func Groups(names []string) []string {
	return By(names, Rules)
}

// By is Groups with a caller-supplied rule table.
func By(names []string, rules []Rule) []string {
	distinct := make([]string, 0, len(names))
	lower := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		distinct = append(distinct, n)
		lower = append(lower, strings.ToLower(n))
	}

	out := make([]string, 0, len(distinct))
	placed := make([]bool, len(distinct))
	for _, r := range rules {
		for i, n := range distinct {
			if !placed[i] && r.matches(lower[i]) {
				placed[i] = true
				out = append(out, n)
			}
		}
	}
	for i, n := range distinct {
		if !placed[i] {
			out = append(out, n)
		}
	}
	return out
}
