package kb

import (
	"sort"
	"strings"
	"unicode"

	"github.com/hbollon/go-edlib"
)

// Scaling factors of the weighted ratio.
const (
	// tokenWeight scales token-based ratios so that an in-order match is
	// always preferred over a reordered one.
	tokenWeight = 0.95
	// partialWeight scales substring matches when one string is at least
	// partialMinLen times longer than the other, and longPartialWeight
	// when it is at least longPartialLen times longer.
	partialWeight     = 0.9
	longPartialWeight = 0.6
	partialMinLen     = 1.5
	longPartialLen    = 8
)

// Scorer compares two normalized strings on a 0..100 scale.
type Scorer func(a, b string) float64

var (
	// WRatio is the weighted ratio used for entity resolution: the best of
	// the plain, token and (for strings of very different length) partial
	// ratios, each discounted by how loose the match is.
	WRatio Scorer = wratio

	// StrictRatio is the larger of the plain ratio and the weighted
	// token-sort ratio. It never matches a string against part of another,
	// so a lone "The" does not score against "The Wall Street Journal".
	StrictRatio Scorer = strictRatio
)

// Normalize lower-cases s, turns punctuation into spaces and collapses runs
// of whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Similarity is WRatio over the normalized strings.
func Similarity(a, b string) float64 {
	return WRatio(Normalize(a), Normalize(b))
}

func strictRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}
	return max(ratio(a, b), ratio(sortTokens(a), sortTokens(b))*tokenWeight)
}

func wratio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}
	la, lb := runeLen(a), runeLen(b)
	lenRatio := float64(max(la, lb)) / float64(min(la, lb))

	best := ratio(a, b)
	if lenRatio < partialMinLen {
		token := max(ratio(sortTokens(a), sortTokens(b)), tokenSetRatio(a, b))
		return max(best, token*tokenWeight)
	}

	scale := partialWeight
	if lenRatio >= longPartialLen {
		scale = longPartialWeight
	}
	best = max(best, partialRatio(a, b)*scale)
	return max(best, partialTokenRatio(a, b)*tokenWeight*scale)
}

// ratio is 2*LCS/(len(a)+len(b)) scaled to 100, measured in runes.
func ratio(a, b string) float64 {
	total := runeLen(a) + runeLen(b)
	if total == 0 {
		return 0
	}
	return 200 * float64(edlib.LCS(a, b)) / float64(total)
}

// partialRatio is the best ratio of the shorter string against every
// same-length window of the longer one, including windows cut off by
// either end.
func partialRatio(a, b string) float64 {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return 0
	}
	needle := string(short)
	m, n := len(short), len(long)

	best := 0.0
	try := func(window []rune) bool {
		if s := ratio(needle, string(window)); s > best {
			best = s
		}
		return best == 100
	}
	for i := 1; i < m && i <= n; i++ {
		if try(long[:i]) {
			return 100
		}
	}
	for i := 0; i+m <= n; i++ {
		if try(long[i : i+m]) {
			return 100
		}
	}
	for i := max(n-m+1, 1); i < n; i++ {
		if try(long[i:]) {
			return 100
		}
	}
	return best
}

// tokenSetRatio compares the shared tokens with each side's full token set.
// One set containing the other scores 100.
func tokenSetRatio(a, b string) float64 {
	sect, onlyA, onlyB := splitTokenSets(a, b)
	if len(sect) > 0 && (len(onlyA) == 0 || len(onlyB) == 0) {
		return 100
	}
	s := strings.Join(sect, " ")
	withA := strings.TrimSpace(s + " " + strings.Join(onlyA, " "))
	withB := strings.TrimSpace(s + " " + strings.Join(onlyB, " "))
	return max(ratio(s, withA), ratio(s, withB), ratio(withA, withB))
}

// partialTokenRatio is 100 when the strings share a token, otherwise the
// partial ratio of their sorted tokens.
func partialTokenRatio(a, b string) float64 {
	sect, _, _ := splitTokenSets(a, b)
	if len(sect) > 0 {
		return 100
	}
	return partialRatio(sortTokens(a), sortTokens(b))
}

// splitTokenSets returns the sorted shared tokens and the sorted tokens
// unique to each side.
func splitTokenSets(a, b string) (sect, onlyA, onlyB []string) {
	ta, tb := tokenSet(a), tokenSet(b)
	for t := range ta {
		if tb[t] {
			sect = append(sect, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range tb {
		if !ta[t] {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(sect)
	sort.Strings(onlyA)
	sort.Strings(onlyB)
	return sect, onlyA, onlyB
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.Fields(s) {
		set[t] = true
	}
	return set
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func runeLen(s string) int { return len([]rune(s)) }
