package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"paris de gaulle", []string{"paris", "de", "gaulle"}},
		{"  Paris   de  GAULLE ", []string{"paris", "de", "gaulle"}},
		{"Antibes SNCF 2", []string{"antibes"}},
		{"Saint-Étienne", []string{"saint", "etienne"}},
		{"Nice Cote d'Azur", []string{"nice", "cote", "d", "azur"}},
		{"Zürich (Gare)", []string{"zurich"}},
		{"Terminal 2E", []string{"terminal", "2e"}},
		{"", []string{}},
		{"---", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "paris+de+gaulle", Key("paris de gaulle"))
	assert.Equal(t, "antibes", Key("Antibes SNCF 2"))
	// Textually different inputs sharing a normal form are the same query.
	assert.Equal(t, Key("Paris, de Gaulle!"), Key("PARIS de gaulle"))
}

func TestRatioPinned(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		// "paris+de+gaulle" is a subsequence of "paris+charles+de+gaulle".
		{"paris de gaulle", "Paris Charles de Gaulle", 30.0 / 38.0},
		// LCS("brussels", "brest") = "bres".
		{"Brussels", "Brest", 8.0 / 13.0},
		{"Brussels", "Bruxelles National", 0.4615},
		{"Marseille", "Marseille Provence", 0.6667},
		{"Paris Orly", "Orly, Paris", 1},
		{"Zurich", "Zürich", 1},
		{"", "", 1},
		{"Paris", "", 0},
		{"abc", "xyz", 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.InDelta(t, tt.want, Ratio(tt.a, tt.b), 1e-4)
		})
	}
}

func TestRatioBounds(t *testing.T) {
	names := []string{"Paris Orly", "Nice Cote d'Azur", "Brest", "Bahias de Huatulco", "Tokyo Narita", ""}
	for _, a := range names {
		for _, b := range names {
			r := Ratio(a, b)
			assert.GreaterOrEqual(t, r, 0.0)
			assert.LessOrEqual(t, r, 1.0)
			assert.InDelta(t, r, Ratio(b, a), 1e-12)
		}
		assert.Equal(t, 1.0, Ratio(a, a))
	}
}

func TestScorerMatchesRatio(t *testing.T) {
	s := NewScorer("Paris de Gaulle")
	assert.Equal(t, "paris+de+gaulle", s.Query())
	for _, c := range []string{"Paris Charles de Gaulle", "Paris Le Bourget", "Brest", "Gaulle Paris"} {
		assert.Equal(t, Ratio("Paris de Gaulle", c), s.Score(c), c)
	}
}

func TestEditDistance(t *testing.T) {
	assert.Equal(t, 0, EditDistance("Orly", "ORLY"))
	assert.Equal(t, 1, EditDistance("Londn", "London"))
	assert.Equal(t, 3, EditDistance("kitten", "sitting"))
}

func TestScorerDistance(t *testing.T) {
	s := NewScorer("Paris, Orly!")
	assert.Equal(t, 0, s.Distance("paris orly"))
	assert.Equal(t, EditDistance("paris orly", "Paris Orly Sud"), s.Distance("Paris Orly Sud"))
}
