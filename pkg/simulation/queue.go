package simulation

import (
	"container/heap"
)

// timerQueue holds macrotasks ordered by fire time, then by sequence number
type timerQueue struct {
	tasks taskHeap
}

func newTimerQueue() *timerQueue {
	q := new(timerQueue)
	q.tasks = make(taskHeap, 0)
	heap.Init(&q.tasks)
	return q
}

func (q *timerQueue) Push(t *task) {
	heap.Push(&q.tasks, t)
}

// Pop returns the next due macrotask
func (q *timerQueue) Pop() *task {
	return heap.Pop(&q.tasks).(*task)
}

// Peek returns the next due macrotask without removing it
func (q *timerQueue) Peek() *task {
	return q.tasks[0]
}

// Remove takes a pending task out of the queue. It reports false when the
// task is no longer queued.
func (q *timerQueue) Remove(t *task) bool {
	if t.index < 0 || t.index >= len(q.tasks) || q.tasks[t.index] != t {
		return false
	}

	heap.Remove(&q.tasks, t.index)

	return true
}

func (q *timerQueue) Len() int {
	return q.tasks.Len()
}

type taskHeap []*task

func (h taskHeap) Len() int {
	return len(h)
}

// Less returns true if the i-th task fires before the j-th task. Equal fire
// times keep insertion order.
func (h taskHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}

	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[0 : n-1]
	return t
}

// microtaskQueue is a FIFO. Entries appended while draining are visited in the
// same drain.
type microtaskQueue struct {
	tasks []*task
	head  int
}

func (q *microtaskQueue) Push(t *task) {
	q.tasks = append(q.tasks, t)
}

func (q *microtaskQueue) Pop() *task {
	t := q.tasks[q.head]
	q.tasks[q.head] = nil
	q.head++

	if q.head == len(q.tasks) {
		q.tasks = q.tasks[:0]
		q.head = 0
	}

	return t
}

func (q *microtaskQueue) Len() int {
	return len(q.tasks) - q.head
}
