package antpath

import "strings"

// Specificity is an ordering key over patterns: among patterns that both
// match a path, the one with the longer literal prefix sorts first, then
// the one with fewer wildcard segments, then the one from the
// earlier-registered source, then declaration order. Equal keys preserve
// declaration order under a stable sort.
type Specificity struct {
	// LiteralPrefix is the length of the pattern's literal prefix, up to
	// the first wildcard character.
	LiteralPrefix int
	// WildcardSegments counts segments containing '*', '?', or '**'.
	WildcardSegments int
	// SourceRank orders rule origins (annotation < interceptmap < requestmap).
	SourceRank int
	// DeclOrder is the rule's position in the concatenated source output.
	DeclOrder int
}

// Of computes the pattern-derived parts of the specificity key. SourceRank
// and DeclOrder are assigned by the rule compiler.
func Of(pattern string) Specificity {
	s := Specificity{LiteralPrefix: len(pattern)}
	if i := strings.IndexAny(pattern, "*?"); i >= 0 {
		s.LiteralPrefix = i
	}
	for _, seg := range splitPath(pattern) {
		if strings.ContainsAny(seg, "*?") {
			s.WildcardSegments++
		}
	}
	return s
}

// Compare returns a negative value when a sorts before b (a is more
// specific), positive when after, and zero when the keys are equal.
func (a Specificity) Compare(b Specificity) int {
	if a.LiteralPrefix != b.LiteralPrefix {
		return b.LiteralPrefix - a.LiteralPrefix
	}
	if a.WildcardSegments != b.WildcardSegments {
		return a.WildcardSegments - b.WildcardSegments
	}
	if a.SourceRank != b.SourceRank {
		return a.SourceRank - b.SourceRank
	}
	return a.DeclOrder - b.DeclOrder
}
