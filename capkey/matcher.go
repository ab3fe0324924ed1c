package capkey

import "sort"

// Matcher ranks a set of candidate keys against a request by specificity.
type Matcher struct{}

// FindBestMatch returns the single most specific candidate that can
// handle request, or nil if none can. Ties are broken the same way
// FindAllMatches orders them — the head of that order is the best match.
func (Matcher) FindBestMatch(candidates []*Key, request *Key) *Key {
	all := Matcher{}.FindAllMatches(candidates, request)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// FindAllMatches returns every candidate that can handle request, sorted
// by: specificity descending, then canonical string ascending
// (deterministic tie-break). The result is stable under any permutation
// of candidates.
func (Matcher) FindAllMatches(candidates []*Key, request *Key) []*Key {
	var matches []*Key
	for _, c := range candidates {
		if c.CanHandle(request) {
			matches = append(matches, c)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Specificity() != b.Specificity() {
			return a.Specificity() > b.Specificity()
		}
		return a.ToString() < b.ToString()
	})

	return matches
}

// AreCompatible reports whether any key in a is compatible with any key
// in b.
func (Matcher) AreCompatible(a, b []*Key) bool {
	for _, ka := range a {
		for _, kb := range b {
			if ka.IsCompatibleWith(kb) {
				return true
			}
		}
	}
	return false
}
