package schema

import (
	"strings"
)

// Similarity scores how well an incoming field name matches a declared
// contract key, in [0, 1]. The ladder is fixed:
//
//	exact match            = 1.0
//	substring containment  = 0.8
//	token Jaccard          (underscore-delimited tokens)
//	character-set Jaccard  (last resort)
//
// Token Jaccard only applies when both names tokenize; single-token names
// fall through to the character-set comparison.
func Similarity(incoming, declared string) float64 {
	a := strings.ToLower(strings.TrimSpace(incoming))
	b := strings.ToLower(strings.TrimSpace(declared))

	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.8
	}

	if score, ok := tokenJaccard(a, b); ok {
		return score
	}
	return charJaccard(a, b)
}

// tokenJaccard computes Jaccard similarity over underscore-delimited tokens.
// Reports ok=false when either side has fewer than two tokens, in which
// case token overlap carries no signal.
func tokenJaccard(a, b string) (float64, bool) {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) < 2 && len(tb) < 2 {
		return 0, false
	}

	inter := 0
	for t := range ta {
		if tb[t] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	if union == 0 {
		return 0, false
	}
	return float64(inter) / float64(union), true
}

func tokenSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, t := range strings.Split(s, "_") {
		if t != "" {
			set[t] = true
		}
	}
	return set
}

// charJaccard computes Jaccard similarity over the character sets of the
// two names. Coarse, but catches transposed or lightly misspelled keys.
func charJaccard(a, b string) float64 {
	ca := map[rune]bool{}
	for _, r := range a {
		ca[r] = true
	}
	cb := map[rune]bool{}
	for _, r := range b {
		cb[r] = true
	}

	inter := 0
	for r := range ca {
		if cb[r] {
			inter++
		}
	}
	union := len(ca) + len(cb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
