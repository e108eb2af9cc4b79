package mapper

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/regdelta/regdelta/internal/embeddings"
)

// TokenSetRatio computes a word-order-insensitive fuzzy similarity in
// [0,1] between two texts. Both are tokenized with the same normalizer the
// embedder uses, split into shared and unique token sets, and the best
// pairwise edit ratio over the recombined strings is returned. When one
// text's vocabulary is a subset of the other's the ratio is 1.0.
func TokenSetRatio(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var common, onlyA, onlyB []string
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			common = append(common, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range tb {
		if _, ok := ta[tok]; !ok {
			onlyB = append(onlyB, tok)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(common, " ")
	withA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	withB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	r := editRatio(base, withA)
	if v := editRatio(base, withB); v > r {
		r = v
	}
	if v := editRatio(withA, withB); v > r {
		r = v
	}
	return r
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range embeddings.Tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}

func editRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 0
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}
