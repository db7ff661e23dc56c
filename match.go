package geobases

import (
	"slices"

	"github.com/andreiashu/geobases/internal/cache"
	"github.com/andreiashu/geobases/internal/fuzzy"
	"github.com/andreiashu/geobases/internal/rank"
)

// DefaultMinMatch is the usual similarity threshold for fuzzy queries.
const DefaultMinMatch = 0.75

// Match is a fuzzy match of a key with its similarity in [0, 1].
type Match struct {
	Score float64
	Key   string
}

// FuzzyOptions configures fuzzy queries.
type FuzzyOptions struct {
	Limit    int      // Number of results; 0 returns the single best match
	MinMatch float64  // Drop matches scoring below this
	Keys     []string // Candidate keys; nil means all, empty means none
}

func fuzzyOptions(opts []FuzzyOptions) FuzzyOptions {
	if len(opts) > 0 {
		return opts[0]
	}
	return FuzzyOptions{}
}

// scored carries the tie-breaks of a match.
type scored struct {
	Match
	dist int
}

// better ranks higher scores first, then closer edit distances, then keys.
func better(a, b scored) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.Key < b.Key
}

// FuzzyMatch scores field of every candidate against text and returns the
// best matches, highest score first. Records lacking the field are skipped.
// A text with no significant token, such as "gare" or "12", matches nothing.
func (b *Base) FuzzyMatch(text, field string, opts ...FuzzyOptions) ([]Match, error) {
	options := fuzzyOptions(opts)

	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fuzzyMatch(text, field, options)
}

func (b *Base) fuzzyMatch(text, field string, options FuzzyOptions) ([]Match, error) {
	if !b.fieldSet[field] {
		return nil, &FieldNotFoundError{Field: field, Fields: slices.Clone(b.fields)}
	}

	limit := options.Limit
	if limit <= 0 {
		limit = 1
	}
	keys := options.Keys
	if keys == nil {
		keys = b.sortedKeys()
	}

	scorer := fuzzy.NewScorer(text)
	if scorer.Query() == "" {
		b.log.Debug().Str("text", text).Str("field", field).Msg("Fuzzy query has no significant token")
		return []Match{}, nil
	}
	top := rank.NewTopK(limit, better)
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		rec, ok := b.records[k]
		if !ok || seen[k] {
			continue
		}
		seen[k] = true
		v, ok := rec[field]
		if !ok {
			continue
		}
		score := scorer.Score(v)
		if score < options.MinMatch {
			continue
		}
		top.Push(scored{Match: Match{Score: score, Key: k}, dist: scorer.Distance(v)})
	}

	ranked := top.Sorted()
	out := make([]Match, len(ranked))
	for i, s := range ranked {
		out[i] = s.Match
	}
	if len(out) > 0 {
		b.log.Debug().
			Str("query", scorer.Query()).
			Str("field", field).
			Str("best", out[0].Key).
			Float64("score", out[0].Score).
			Int("matches", len(out)).
			Msg("Fuzzy match computed")
	}
	return out, nil
}

// FuzzyMatchAround is FuzzyMatch restricted to the records within radius km
// of p. options.Keys further restricts the candidates.
func (b *Base) FuzzyMatchAround(p Point, radius float64, text, field string, opts ...FuzzyOptions) ([]Match, error) {
	if !p.Valid() {
		return nil, &BadGeocodeError{Input: p.String()}
	}
	options := fuzzyOptions(opts)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.hasGeoSupport() {
		return nil, ErrNoGeoSupport
	}
	near := b.near(p, radius, SearchOptions{Keys: options.Keys})
	options.Keys = make([]string, len(near))
	for i, n := range near {
		options.Keys[i] = n.Key
	}
	return b.fuzzyMatch(text, field, options)
}

// FuzzyQuery identifies a cached fuzzy query. Texts that normalize to the
// same tokens share results.
type FuzzyQuery struct {
	Text     string
	Field    string
	Limit    int
	MinMatch float64
}

func (q FuzzyQuery) key() cache.Key {
	return cache.NewKey(q.Text, q.Field, q.Limit, q.MinMatch)
}

// FuzzyMatchCached is FuzzyMatch over every record behind the bias store and
// the result cache. A bias entry is returned as is, without touching the
// cache or scoring.
func (b *Base) FuzzyMatchCached(q FuzzyQuery) ([]Match, error) {
	k := q.key()
	res, origin, err := b.cache.Lookup(k, func() ([]Match, error) {
		return b.FuzzyMatch(q.Text, q.Field, FuzzyOptions{Limit: q.Limit, MinMatch: q.MinMatch})
	})
	if err != nil {
		return nil, err
	}
	if origin == cache.Biased {
		b.log.Debug().Str("query", k.Text).Str("field", k.Field).Msg("Using bias")
	}
	return cloneMatches(res), nil
}

// SetBias forces result for q in FuzzyMatchCached, including after
// ClearCache.
func (b *Base) SetBias(q FuzzyQuery, result []Match) {
	b.cache.SetBias(q.key(), cloneMatches(result))
}

// ClearCache empties the fuzzy result cache. Bias entries are kept.
func (b *Base) ClearCache() { b.cache.Clear() }

// ClearBias empties the bias store. Cached results are kept.
func (b *Base) ClearBias() { b.cache.ClearBias() }

// CacheStats is a snapshot of the fuzzy cache counters.
type CacheStats = cache.Stats

// CacheStats returns the fuzzy cache counters.
func (b *Base) CacheStats() CacheStats { return b.cache.Stats() }

func cloneMatches(m []Match) []Match {
	if m == nil {
		return nil
	}
	out := make([]Match, len(m))
	copy(out, m)
	return out
}
