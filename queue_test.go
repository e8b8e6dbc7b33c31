package threadshell

import (
	"reflect"
	"testing"
)

func popAll(q *jobQueue) []int {
	ids := []int{}
	for {
		j := q.pop()
		if j == nil {
			break
		}
		ids = append(ids, j.ID)
	}
	return ids
}

func TestJobQueuePriorityOrder(t *testing.T) {
	q := newJobQueue(PolicyPriority)
	q.push(newJob(1, "echo a", PriorityLow))
	q.push(newJob(2, "echo b", PriorityCritical))
	q.push(newJob(3, "echo c", PriorityMedium))
	q.push(newJob(4, "echo d", PriorityCritical))

	got := popAll(q)
	want := []int{2, 4, 3, 1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestJobQueueEqualPriorityFIFO(t *testing.T) {
	q := newJobQueue(PolicyPriority)
	// push order should not matter, ids decide
	q.push(newJob(3, "echo c", PriorityMedium))
	q.push(newJob(1, "echo a", PriorityMedium))
	q.push(newJob(2, "echo b", PriorityMedium))

	got := popAll(q)
	want := []int{1, 2, 3}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestJobQueueShortestFirst(t *testing.T) {
	q := newJobQueue(PolicyShortestFirst)
	q.push(newJob(1, "sleep 5", PriorityLow))
	q.push(newJob(2, "sleep 1", PriorityLow))
	q.push(newJob(3, "sleep 30", PriorityCritical))

	got := popAll(q)
	want := []int{2, 1, 3}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestJobQueueSkipsNonPending(t *testing.T) {
	q := newJobQueue(PolicyPriority)
	killed := newJob(1, "echo a", PriorityCritical)
	q.push(killed)
	q.push(newJob(2, "echo b", PriorityLow))
	killed.Status = StatusKilled

	if n := q.pendingLen(); n != 1 {
		t.Fatalf("pendingLen: got %v, want 1", n)
	}
	j := q.pop()
	if j == nil || j.ID != 2 {
		t.Fatalf("pop: got %v, want job 2", j)
	}
	if j = q.pop(); j != nil {
		t.Fatalf("pop on drained queue: got job %v, want nil", j.ID)
	}
}

func TestJobQueueReheapAfterPriorityChange(t *testing.T) {
	q := newJobQueue(PolicyPriority)
	promoted := newJob(1, "echo a", PriorityLow)
	q.push(promoted)
	q.push(newJob(2, "echo b", PriorityMedium))

	promoted.Priority = PriorityCritical
	q.reheap()

	got := popAll(q)
	want := []int{1, 2}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestJobQueueSetPolicyReorders(t *testing.T) {
	q := newJobQueue(PolicyPriority)
	q.push(newJob(1, "sleep 30", PriorityCritical))
	q.push(newJob(2, "sleep 1", PriorityLow))

	q.setPolicy(PolicyShortestFirst)

	got := popAll(q)
	want := []int{2, 1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParsePolicy(t *testing.T) {
	cases := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{in: "", want: PolicyPriority},
		{in: "priority", want: PolicyPriority},
		{in: "shortest-first", want: PolicyShortestFirst},
		{in: "sjf", want: PolicyShortestFirst},
		{in: "round_robin", want: PolicyRoundRobin},
		{in: "fair-share", want: PolicyFairShare},
		{in: "lottery", want: PolicyPriority, wantErr: true},
	}
	for _, c := range cases {
		got, err := ParsePolicy(c.in)
		if (err != nil) != c.wantErr {
			t.Fatalf("%q: err = %v, wantErr %v", c.in, err, c.wantErr)
		}
		if got != c.want {
			t.Fatalf("%q: got %v, want %v", c.in, got, c.want)
		}
	}
}
