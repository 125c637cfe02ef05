package coordinator

import (
	"container/heap"
	"time"

	"github.com/milk9111/stagesync/phase"
)

// Scheduled is a request with its resolved execution time.
type Scheduled struct {
	Request   phase.ChangeRequest
	ExecuteAt time.Duration
	seq       uint64
}

type scheduledItem struct {
	Scheduled
	index int
}

// scheduledQueue is a min-heap on (ExecuteAt, seq).
type scheduledQueue []*scheduledItem

func (q scheduledQueue) Len() int { return len(q) }
func (q scheduledQueue) Less(i, j int) bool {
	if q[i].ExecuteAt != q[j].ExecuteAt {
		return q[i].ExecuteAt < q[j].ExecuteAt
	}
	return q[i].seq < q[j].seq
}
func (q scheduledQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *scheduledQueue) Push(x any) {
	item := x.(*scheduledItem)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *scheduledQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

func (q *scheduledQueue) push(s Scheduled) {
	heap.Push(q, &scheduledItem{Scheduled: s})
}

// popDue removes every item due at or before now, earliest first.
func (q *scheduledQueue) popDue(now time.Duration) []Scheduled {
	var out []Scheduled
	for q.Len() > 0 && (*q)[0].ExecuteAt <= now {
		out = append(out, heap.Pop(q).(*scheduledItem).Scheduled)
	}
	return out
}

// removeEntity drops pending items for entityID and returns how many went.
func (q *scheduledQueue) removeEntity(entityID string) int {
	kept := (*q)[:0]
	removed := 0
	for _, it := range *q {
		if it.Request.EntityID == entityID {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	for i := len(kept); i < len(*q); i++ {
		(*q)[i] = nil
	}
	*q = kept
	if removed > 0 {
		q.rebuild()
	}
	return removed
}

func (q *scheduledQueue) rebuild() {
	for i, it := range *q {
		it.index = i
	}
	heap.Init(q)
}

// snapshot lists pending items in execution order without disturbing the heap.
func (q scheduledQueue) snapshot() []Scheduled {
	cp := make(scheduledQueue, len(q))
	for i, it := range q {
		c := *it
		cp[i] = &c
	}
	out := make([]Scheduled, 0, len(cp))
	for cp.Len() > 0 {
		out = append(out, heap.Pop(&cp).(*scheduledItem).Scheduled)
	}
	return out
}
