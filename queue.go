package threadshell

import (
	"container/heap"
	"fmt"
	"strings"
)

// Policy selects the queue's ordering.
type Policy int

const (
	// PolicyPriority orders strictly by priority enum value, higher
	// first, FIFO by id among equals. This is the default and the only
	// policy with a fully specified algorithm.
	PolicyPriority = Policy(iota)

	// PolicyShortestFirst orders by estimated runtime, shorter first,
	// id as tie-break.
	PolicyShortestFirst

	// PolicyRoundRobin and PolicyFairShare are extension points wired
	// through the same comparator seam. They currently order like
	// PolicyPriority.
	PolicyRoundRobin
	PolicyFairShare
)

// String represents Policy as string.
func (p Policy) String() string {
	return map[Policy]string{
		PolicyPriority:      "priority",
		PolicyShortestFirst: "shortest-first",
		PolicyRoundRobin:    "round-robin",
		PolicyFairShare:     "fair-share",
	}[p]
}

// ParsePolicy parses a policy name as used in config files.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "priority", "":
		return PolicyPriority, nil
	case "shortest-first", "shortest_first", "sjf":
		return PolicyShortestFirst, nil
	case "round-robin", "round_robin":
		return PolicyRoundRobin, nil
	case "fair-share", "fair_share":
		return PolicyFairShare, nil
	}
	return PolicyPriority, fmt.Errorf("unknown scheduling policy: %v", s)
}

// less is the comparator for the policy. Every policy ends in the
// lower-id tie-break, so pop order is deterministic: ids are monotonic,
// which makes the tie-break FIFO by submission.
func (p Policy) less(a, b *Job) bool {
	switch p {
	case PolicyShortestFirst:
		ea, eb := a.EstimatedRuntime(), b.EstimatedRuntime()
		if ea != eb {
			return ea < eb
		}
	default:
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
	}
	return a.ID < b.ID
}

// jobQueue is the scheduling queue: a heap of PENDING jobs ordered by
// the current policy. Jobs killed or otherwise mutated away from
// PENDING while queued stay in the heap and are skipped on pop.
type jobQueue struct {
	heap   []*Job
	policy Policy
}

func newJobQueue(policy Policy) *jobQueue {
	return &jobQueue{
		heap:   make([]*Job, 0),
		policy: policy,
	}
}

func (q jobQueue) Len() int {
	return len(q.heap)
}

func (q jobQueue) Less(i, j int) bool {
	return q.policy.less(q.heap[i], q.heap[j])
}

func (q jobQueue) Swap(i, j int) {
	q.heap[i], q.heap[j] = q.heap[j], q.heap[i]
}

func (q *jobQueue) Push(el interface{}) {
	q.heap = append(q.heap, el.(*Job))
}

func (q *jobQueue) Pop() interface{} {
	old := q.heap
	n := len(old)
	el := old[n-1]
	old[n-1] = nil // avoid memory leak
	q.heap = old[:n-1]
	return el
}

func (q *jobQueue) push(j *Job) {
	heap.Push(q, j)
}

// pop yields the best PENDING job, dropping stale entries on the way.
func (q *jobQueue) pop() *Job {
	for q.Len() > 0 {
		j := heap.Pop(q).(*Job)
		if j.Status != StatusPending {
			// killed while queued
			continue
		}
		return j
	}
	return nil
}

// pendingLen counts only jobs that would actually be dispatched.
func (q *jobQueue) pendingLen() int {
	n := 0
	for _, j := range q.heap {
		if j.Status == StatusPending {
			n++
		}
	}
	return n
}

// reheap restores heap order after an in-place priority change.
func (q *jobQueue) reheap() {
	heap.Init(q)
}

func (q *jobQueue) setPolicy(p Policy) {
	q.policy = p
	heap.Init(q)
}
