package hnsw

import "container/heap"

// Compile time check to ensure priorityQueue satisfies the heap interface.
var _ heap.Interface = (*priorityQueue)(nil)

// queueItem represents an item in the priority queue.
type queueItem struct {
	node     uint32  // internal node id
	distance float32 // priority of the item in the queue
	index    int     // maintained by the heap.Interface methods
}

// priorityQueue implements heap.Interface and holds queueItems.
// With maxHeap unset it pops the closest candidate first; set, it pops the
// farthest first, which is what the result bounding needs.
type priorityQueue struct {
	maxHeap bool
	items   []*queueItem
}

func (pq *priorityQueue) Len() int { return len(pq.items) }

func (pq *priorityQueue) Less(i, j int) bool {
	if pq.maxHeap {
		return pq.items[i].distance > pq.items[j].distance
	}
	return pq.items[i].distance < pq.items[j].distance
}

func (pq *priorityQueue) Swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
	pq.items[i].index, pq.items[j].index = i, j
}

func (pq *priorityQueue) Push(x any) {
	item, _ := x.(*queueItem)
	item.index = len(pq.items)
	pq.items = append(pq.items, item)
}

func (pq *priorityQueue) Pop() any {
	old := pq.items
	n := len(old)
	if n == 0 {
		return nil
	}
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	pq.items = old[:n-1]
	return item
}

// Top returns the root of the heap without removing it.
func (pq *priorityQueue) Top() *queueItem {
	return pq.items[0]
}
