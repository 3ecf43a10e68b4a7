package autodiff

import "container/heap"

// readyQueue is a max-heap of functions whose outputs are fully contributed.
// Higher rank pops first; equal ranks pop most recently connected first.
type readyQueue []*Function

func (q readyQueue) Len() int { return len(q) }

func (q readyQueue) Less(i, j int) bool {
	if q[i].rank != q[j].rank {
		return q[i].rank > q[j].rank
	}
	return q[i].seq > q[j].seq
}

func (q readyQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *readyQueue) Push(x any) { *q = append(*q, x.(*Function)) }

func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	f := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return f
}

func (q *readyQueue) push(f *Function) { heap.Push(q, f) }

func (q *readyQueue) pop() *Function { return heap.Pop(q).(*Function) }
