package reactor

import "time"

// timerEntry is one scheduled deadline. canceled entries are left in the
// heap and skipped when popped rather than removed in place, avoiding an
// O(n) search on cancellation (keep-alive timers are rearmed constantly).
type timerEntry struct {
	deadline time.Time
	fire     func()
	canceled bool
	index    int
}

// timerHeap is a container/heap.Interface min-heap ordered by deadline.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timerEntry)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
