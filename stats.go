package threadshell

import "time"

// SystemStats aggregates scheduler counters and derived rates. The
// counters are lifetime monotonic; the derived means come from the
// bounded completed-history window only.
type SystemStats struct {
	Submitted int
	Completed int
	Failed    int
	Killed    int

	// AverageTurnaround is mean(end - submit) over the history window.
	AverageTurnaround time.Duration

	// AverageWait is mean(start - submit) over the history window,
	// counting only jobs that actually started.
	AverageWait time.Duration

	// Throughput is completed jobs per minute of scheduler uptime.
	Throughput float64

	// CurrentMemoryMB sums the simulated memory usage of active jobs.
	CurrentMemoryMB int

	StartTime time.Time
}

// Stats computes a point-in-time statistics snapshot. All rates are
// zero when the history is empty or no time has elapsed.
func (s *Scheduler) Stats() SystemStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SystemStats{
		Submitted: s.submitted,
		Completed: s.ncompleted,
		Failed:    s.nfailed,
		Killed:    s.nkilled,
		StartTime: s.startTime,
	}

	if len(s.completed) > 0 {
		var turnaround, wait time.Duration
		started := 0
		for _, j := range s.completed {
			turnaround += j.EndTime.Sub(j.SubmitTime)
			if !j.StartTime.IsZero() {
				wait += j.StartTime.Sub(j.SubmitTime)
				started++
			}
		}
		st.AverageTurnaround = turnaround / time.Duration(len(s.completed))
		if started > 0 {
			st.AverageWait = wait / time.Duration(started)
		}
	}

	if minutes := time.Since(s.startTime).Minutes(); minutes > 0 {
		st.Throughput = float64(s.ncompleted) / minutes
	}

	for _, j := range s.active {
		st.CurrentMemoryMB += j.MemoryUsageMB
	}
	return st
}
