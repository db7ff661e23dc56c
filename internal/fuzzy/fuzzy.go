// Package fuzzy normalizes free text and scores how closely two names match.
//
// Scores are indel-based Levenshtein ratios in [0, 1]: 2*LCS/(len(a)+len(b))
// computed over normalized strings, taking the better of the in-order and the
// token-sorted forms so that "Orly Paris" matches "Paris Orly" exactly.
package fuzzy

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Separator joins normalized tokens.
const Separator = "+"

// NoiseWords are dropped by Clean. They appear in station labels without
// helping to tell two places apart.
var NoiseWords = map[string]bool{
	"sncf": true,
	"gare": true,
}

// Clean lowercases s, strips diacritics and punctuation, and returns its
// tokens. Digit-only tokens and NoiseWords are dropped.
func Clean(s string) []string {
	s = stripMarks(strings.ToLower(s))
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if NoiseWords[f] || isDigits(f) {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// Key returns the canonical form of s: its cleaned tokens joined by Separator.
// Inputs with the same Key are the same query.
func Key(s string) string {
	return strings.Join(Clean(s), Separator)
}

// Ratio scores the similarity of two raw strings in [0, 1]. Identical
// normalized forms score 1.
func Ratio(a, b string) float64 {
	return ratioTokens(Clean(a), Clean(b))
}

// Scorer scores many candidates against one query, normalizing the query once.
type Scorer struct {
	query  []string
	joined string
	sorted string
}

// NewScorer prepares query for repeated scoring.
func NewScorer(query string) *Scorer {
	tokens := Clean(query)
	return &Scorer{
		query:  tokens,
		joined: strings.Join(tokens, Separator),
		sorted: sortedKey(tokens),
	}
}

// Query returns the normalized query.
func (s *Scorer) Query() string { return s.joined }

// Score rates candidate against the query.
func (s *Scorer) Score(candidate string) float64 {
	tokens := Clean(candidate)
	best := indelRatio(s.joined, strings.Join(tokens, Separator))
	if best < 1 && (len(s.query) > 1 || len(tokens) > 1) {
		if r := indelRatio(s.sorted, sortedKey(tokens)); r > best {
			best = r
		}
	}
	return best
}

// Distance is EditDistance between the normalized query and candidate.
func (s *Scorer) Distance(candidate string) int {
	return levenshtein.ComputeDistance(s.joined, Key(candidate))
}

// EditDistance is the unit-cost Levenshtein distance between the normalized
// forms of a and b. It breaks ties between equal ratios: with equal LCS
// coverage the candidate needing fewer substitutions ranks first.
func EditDistance(a, b string) int {
	return levenshtein.ComputeDistance(Key(a), Key(b))
}

func ratioTokens(a, b []string) float64 {
	best := indelRatio(strings.Join(a, Separator), strings.Join(b, Separator))
	if best < 1 && (len(a) > 1 || len(b) > 1) {
		if r := indelRatio(sortedKey(a), sortedKey(b)); r > best {
			best = r
		}
	}
	return best
}

func sortedKey(tokens []string) string {
	s := append([]string(nil), tokens...)
	sort.Strings(s)
	return strings.Join(s, Separator)
}

// indelRatio is 1 - indel/(len(a)+len(b)) where indel counts insertions and
// deletions only, which equals 2*LCS/(len(a)+len(b)).
func indelRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	return float64(2*lcs(ra, rb)) / float64(total)
}

// lcs returns the length of the longest common subsequence with two rows.
func lcs(a, b []rune) int {
	if len(b) > len(a) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// stripMarks removes combining marks after canonical decomposition, turning
// "é" into "e". Characters without a decomposition are kept as is.
func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
