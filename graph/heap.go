// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package graph

import "container/heap"

// indexHeap is a min-heap of arena indices.
type indexHeap struct {
	items []int
}

func newIndexHeap(capacity int) *indexHeap {
	return &indexHeap{items: make([]int, 0, capacity)}
}

func (h *indexHeap) Len() int           { return len(h.items) }
func (h *indexHeap) Less(i, j int) bool { return h.items[i] < h.items[j] }
func (h *indexHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *indexHeap) Push(x interface{}) {
	h.items = append(h.items, x.(int))
}

func (h *indexHeap) Pop() interface{} {
	last := h.items[len(h.items)-1]
	h.items = h.items[:len(h.items)-1]
	return last
}

func (h *indexHeap) len() int   { return len(h.items) }
func (h *indexHeap) push(i int) { heap.Push(h, i) }
func (h *indexHeap) pop() int   { return heap.Pop(h).(int) }
