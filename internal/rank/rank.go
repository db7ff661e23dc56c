// Package rank selects the best k items of a stream with a size-bounded heap,
// in O(M log k) for M pushed items.
package rank

import (
	"container/heap"
	"sort"
)

// TopK keeps the k items that sort first under better.
//
// Internally the heap is ordered worst-first so the root is the item evicted
// when a better one arrives.
type TopK[T any] struct {
	k      int
	better func(a, b T) bool
	items  []T
}

// NewTopK returns a selector for the k best items. better(a, b) reports
// whether a ranks strictly ahead of b. k <= 0 keeps nothing.
func NewTopK[T any](k int, better func(a, b T) bool) *TopK[T] {
	if k < 0 {
		k = 0
	}
	capHint := k
	if capHint > 1024 {
		capHint = 1024
	}
	return &TopK[T]{k: k, better: better, items: make([]T, 0, capHint)}
}

// Push offers x to the selection.
func (t *TopK[T]) Push(x T) {
	if t.k == 0 {
		return
	}
	if len(t.items) < t.k {
		heap.Push((*worstFirst[T])(t), x)
		return
	}
	if t.better(x, t.items[0]) {
		t.items[0] = x
		heap.Fix((*worstFirst[T])(t), 0)
	}
}

// Len returns the number of items currently kept.
func (t *TopK[T]) Len() int { return len(t.items) }

// Sorted returns the kept items best first. The selector can keep receiving
// items afterwards.
func (t *TopK[T]) Sorted() []T {
	out := make([]T, len(t.items))
	copy(out, t.items)
	sort.SliceStable(out, func(i, j int) bool { return t.better(out[i], out[j]) })
	return out
}

// Select is a convenience wrapper returning the k best of items.
func Select[T any](items []T, k int, better func(a, b T) bool) []T {
	t := NewTopK(k, better)
	for _, x := range items {
		t.Push(x)
	}
	return t.Sorted()
}

// worstFirst adapts TopK to heap.Interface with the worst kept item at the root.
type worstFirst[T any] TopK[T]

func (h *worstFirst[T]) Len() int           { return len(h.items) }
func (h *worstFirst[T]) Less(i, j int) bool { return h.better(h.items[j], h.items[i]) }
func (h *worstFirst[T]) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *worstFirst[T]) Push(x any) { h.items = append(h.items, x.(T)) }

func (h *worstFirst[T]) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}
