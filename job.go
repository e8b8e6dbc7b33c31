package threadshell

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// JobPriority is a job's scheduling priority.
// Higher values take precedence over lower values.
type JobPriority int

const (
	PriorityLow = JobPriority(iota)
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String represents JobPriority as string.
func (p JobPriority) String() string {
	return map[JobPriority]string{
		PriorityLow:      "LOW",
		PriorityMedium:   "MEDIUM",
		PriorityHigh:     "HIGH",
		PriorityCritical: "CRITICAL",
	}[p]
}

// ParsePriority parses a priority name as it appears in job scripts
// and API requests.
func ParsePriority(s string) (JobPriority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return PriorityLow, nil
	case "MEDIUM":
		return PriorityMedium, nil
	case "HIGH":
		return PriorityHigh, nil
	case "CRITICAL":
		return PriorityCritical, nil
	}
	return PriorityMedium, fmt.Errorf("unknown priority: %v", s)
}

// JobStatus is a job's lifecycle state.
type JobStatus int

const (
	StatusPending = JobStatus(iota)
	StatusWaitingDeps
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusKilled
	StatusSuspended
)

// String represents JobStatus as string.
func (s JobStatus) String() string {
	return map[JobStatus]string{
		StatusPending:     "PENDING",
		StatusWaitingDeps: "WAITING_DEPS",
		StatusRunning:     "RUNNING",
		StatusCompleted:   "COMPLETED",
		StatusFailed:      "FAILED",
		StatusKilled:      "KILLED",
		StatusSuspended:   "SUSPENDED",
	}[s]
}

// Terminal reports whether the status is a final state.
// A terminal job never transitions again.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusKilled
}

// JobType tells how a job entered the system.
type JobType int

const (
	TypeInteractive = JobType(iota)
	TypeBatch
	TypeArrayJob
)

// String represents JobType as string.
func (t JobType) String() string {
	return map[JobType]string{
		TypeInteractive: "INTERACTIVE",
		TypeBatch:       "BATCH",
		TypeArrayJob:    "ARRAY_JOB",
	}[t]
}

// ResourceLimits are advisory per-job resource bounds.
// Memory and core limits shape the simulated usage metrics only;
// MaxRuntime is enforced by the dispatcher.
type ResourceLimits struct {
	MaxMemoryMB int
	MaxRuntime  time.Duration
	MaxCores    int
}

func defaultLimits() ResourceLimits {
	return ResourceLimits{
		MaxMemoryMB: 1024,
		MaxRuntime:  time.Hour,
		MaxCores:    1,
	}
}

// Job is one schedulable unit wrapping a shell command and its metadata.
//
// The scheduler exclusively owns the canonical record. Everything handed
// out through query methods is a Clone; mutations go through the
// scheduler's locked state only.
type Job struct {
	// ID is the order number of the job. It is assigned once at
	// submission and never reused.
	ID int

	// Name is an optional human readable name, usually set from a
	// job script's JOB_NAME directive.
	Name string

	// Command is the shell command text. It may itself be a
	// &&-chained sequence; it runs through the system shell as one
	// process.
	Command string

	Priority JobPriority
	Type     JobType
	Status   JobStatus
	Limits   ResourceLimits

	// AssignedCore is the core slot held while running, -1 when the
	// pool was exhausted or the job hasn't started.
	AssignedCore int

	// AssignedCores holds a multi-slot reservation when core affinity
	// is enabled and the job requested more than one core.
	AssignedCores []int

	// Simulated usage metrics, derived from the command text at
	// dispatch time. Monitoring only, nothing is enforced.
	MemoryUsageMB   int
	CPUUtilization  float64
	ContextSwitches int

	// Worker is the identity of the worker that executed the job.
	Worker string

	// PID is the OS process id of the spawned shell.
	PID int

	SubmitTime    time.Time
	StartTime     time.Time
	EndTime       time.Time
	ActualRuntime time.Duration

	ExitCode int

	// Deps holds ids this job depends on; Dependents holds the
	// inverse edges. The graph must be acyclic by submission-time
	// contract; a cyclic submission waits forever.
	Deps       map[int]bool
	Dependents map[int]bool

	// ArrayID is the shared group id for array jobs, ArrayTask the
	// zero-based index within the array. Both are -1 otherwise.
	ArrayID   int
	ArrayTask int
}

func newJob(id int, command string, priority JobPriority) *Job {
	return &Job{
		ID:           id,
		Command:      command,
		Priority:     priority,
		Type:         TypeInteractive,
		Status:       StatusPending,
		Limits:       defaultLimits(),
		AssignedCore: -1,
		ExitCode:     0,
		SubmitTime:   time.Now(),
		Deps:         make(map[int]bool),
		Dependents:   make(map[int]bool),
		ArrayID:      -1,
		ArrayTask:    -1,
	}
}

var sleepDurationRe = regexp.MustCompile(`sleep\s+(\d+)`)

// EstimatedRuntime guesses how long the command will take from its
// text. A sleep with a parsable duration is taken literally; a bare
// sleep counts as 10s. Otherwise a 5s base is scaled per matching
// command category, each category compounding independently, plus one
// second per 20 characters of command text.
func (j *Job) EstimatedRuntime() time.Duration {
	cmd := strings.ToLower(j.Command)

	if strings.Contains(cmd, "sleep") {
		if m := sleepDurationRe.FindStringSubmatch(cmd); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil {
				return time.Duration(n) * time.Second
			}
		}
		return 10 * time.Second
	}

	base := 5
	if strings.Contains(cmd, "for") || strings.Contains(cmd, "while") {
		base *= 3 // loops take longer
	}
	if strings.Contains(cmd, "find") || strings.Contains(cmd, "grep") {
		base *= 2 // I/O intensive
	}
	if strings.Contains(cmd, "make") || strings.Contains(cmd, "compile") {
		base *= 5 // compilation takes time
	}
	if strings.Contains(cmd, "download") || strings.Contains(cmd, "wget") || strings.Contains(cmd, "curl") {
		base *= 4 // network operations
	}
	base += len(j.Command) / 20

	return time.Duration(base) * time.Second
}

// PriorityScore computes the job's dynamic priority. Higher means more
// urgent. It is a pure function of the clock and the job's fields;
// recompute it on demand, never cache it.
func (j *Job) PriorityScore() float64 {
	score := float64(j.Priority)

	// Favor shorter estimated jobs, normalized by minutes.
	est := j.EstimatedRuntime().Seconds()
	score += 0.1 * (1.0 / (1.0 + est/60.0))

	// Small boost for aging, in whole minutes since submission.
	score += 0.01 * float64(int(time.Since(j.SubmitTime).Minutes()))

	if j.Status == StatusWaitingDeps {
		score -= 1.0
	}
	if j.Type == TypeInteractive {
		score += 0.2
	}
	if j.Priority == PriorityCritical {
		score += 2.0
	}
	return score
}

// DependenciesSatisfied reports whether every dependency resolves to an
// existing job that has COMPLETED. A FAILED or KILLED dependency never
// satisfies; dependents of such jobs stay in WAITING_DEPS forever.
func (j *Job) DependenciesSatisfied(get func(int) *Job) bool {
	for id := range j.Deps {
		dep := get(id)
		if dep == nil || dep.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// Clone returns a deep snapshot copy of the job, safe to hand to
// callers outside the scheduler's lock.
func (j *Job) Clone() Job {
	c := *j
	c.AssignedCores = append([]int(nil), j.AssignedCores...)
	c.Deps = make(map[int]bool, len(j.Deps))
	for id := range j.Deps {
		c.Deps[id] = true
	}
	c.Dependents = make(map[int]bool, len(j.Dependents))
	for id := range j.Dependents {
		c.Dependents[id] = true
	}
	return c
}

// DepIDs returns the dependency ids in ascending order.
func (j *Job) DepIDs() []int {
	ids := make([]int, 0, len(j.Deps))
	for id := range j.Deps {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// MarshalJSON implements json.Marshaler interface.
func (j Job) MarshalJSON() ([]byte, error) {
	m := struct {
		ID              int
		Name            string
		Command         string
		Priority        string
		Type            string
		Status          string
		Core            int
		Cores           []int
		Worker          string
		PID             int
		MemoryUsageMB   int
		CPUUtilization  float64
		SubmitTime      time.Time
		StartTime       time.Time
		EndTime         time.Time
		RuntimeMS       int64
		ExitCode        int
		Deps            []int
		ArrayID         int
		ArrayTask       int
	}{
		ID:             j.ID,
		Name:           j.Name,
		Command:        j.Command,
		Priority:       j.Priority.String(),
		Type:           j.Type.String(),
		Status:         j.Status.String(),
		Core:           j.AssignedCore,
		Cores:          j.AssignedCores,
		Worker:         j.Worker,
		PID:            j.PID,
		MemoryUsageMB:  j.MemoryUsageMB,
		CPUUtilization: j.CPUUtilization,
		SubmitTime:     j.SubmitTime,
		StartTime:      j.StartTime,
		EndTime:        j.EndTime,
		RuntimeMS:      j.ActualRuntime.Milliseconds(),
		ExitCode:       j.ExitCode,
		Deps:           j.DepIDs(),
		ArrayID:        j.ArrayID,
		ArrayTask:      j.ArrayTask,
	}
	return json.Marshal(m)
}
