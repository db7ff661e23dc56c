package rank

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func less(a, b int) bool { return a < b }

func TestSelectSmallest(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3}, Select([]int{5, 3, 9, 1, 2, 8}, 3, less))
	assert.Equal(t, []int{1, 2, 3}, Select([]int{3, 2, 1}, 10, less))
	assert.Empty(t, Select([]int{3, 2, 1}, 0, less))
	assert.Empty(t, Select([]int{3, 2, 1}, -1, less))
	assert.Empty(t, Select(nil, 2, less))
}

func TestSelectLargest(t *testing.T) {
	greater := func(a, b int) bool { return a > b }
	assert.Equal(t, []int{9, 8}, Select([]int{5, 3, 9, 1, 2, 8}, 2, greater))
}

func TestTopKMatchesSort(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	items := make([]int, 500)
	for i := range items {
		items[i] = r.Intn(1000)
	}
	sorted := append([]int(nil), items...)
	sort.Ints(sorted)

	for _, k := range []int{1, 2, 17, 499, 500, 600} {
		want := sorted
		if k < len(sorted) {
			want = sorted[:k]
		}
		assert.Equal(t, want, Select(items, k, less), "k=%d", k)
	}
}

func TestTopKIncremental(t *testing.T) {
	top := NewTopK(2, less)
	top.Push(4)
	top.Push(7)
	assert.Equal(t, []int{4, 7}, top.Sorted())
	top.Push(1)
	assert.Equal(t, 2, top.Len())
	assert.Equal(t, []int{1, 4}, top.Sorted())
}
