package threadshell

import (
	"fmt"
	"time"
)

// coreAllocator tracks a fixed pool of abstract execution cores for
// utilization reporting. Assignment is best-effort; a full pool never
// blocks job execution, the job just runs unattributed.
//
// All methods must be called under the scheduler's lock.
type coreAllocator struct {
	available []bool
	lastUsed  []time.Time
}

func newCoreAllocator(n int) (*coreAllocator, error) {
	if n <= 0 {
		return nil, fmt.Errorf("core pool size must be positive: %v", n)
	}
	a := &coreAllocator{
		available: make([]bool, n),
		lastUsed:  make([]time.Time, n),
	}
	for i := range a.available {
		a.available[i] = true
	}
	return a, nil
}

func (a *coreAllocator) size() int {
	return len(a.available)
}

// acquire marks the first free slot occupied and returns its index,
// or -1 when the pool is exhausted.
func (a *coreAllocator) acquire() int {
	for i, free := range a.available {
		if free {
			a.available[i] = false
			a.lastUsed[i] = time.Now()
			return i
		}
	}
	return -1
}

// acquireN reserves n slots all-or-nothing. It returns nil when the
// pool cannot cover the request, leaving the pool untouched.
func (a *coreAllocator) acquireN(n int) []int {
	if n <= 0 {
		return nil
	}
	ids := make([]int, 0, n)
	for i, free := range a.available {
		if free {
			ids = append(ids, i)
			if len(ids) == n {
				break
			}
		}
	}
	if len(ids) < n {
		return nil
	}
	now := time.Now()
	for _, i := range ids {
		a.available[i] = false
		a.lastUsed[i] = now
	}
	return ids
}

// release frees a slot. Releasing an already-free or out-of-range id
// is a no-op, never an error.
func (a *coreAllocator) release(id int) {
	if id < 0 || id >= len(a.available) {
		return
	}
	a.available[id] = true
}

func (a *coreAllocator) releaseAll(ids []int) {
	for _, id := range ids {
		a.release(id)
	}
}

func (a *coreAllocator) inUse() int {
	n := 0
	for _, free := range a.available {
		if !free {
			n++
		}
	}
	return n
}
