package threadshell

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/xid"
)

const (
	defaultHistoryLimit = 1000
	eventBufferSize     = 256
)

// arrayPlaceholder is replaced by the zero-based task index in array
// job command templates.
const arrayPlaceholder = "$ARRAY_ID"

// Scheduler accepts shell commands as jobs, queues them by priority,
// dispatches them to a bounded pool of workers and tracks resource
// usage, dependencies and aggregate statistics.
//
// All mutable state lives behind one mutex; a condition variable wakes
// workers on enqueue, slot release and shutdown. Query methods return
// snapshot copies, never references into live state.
type Scheduler struct {
	mu   sync.Mutex
	cond *sync.Cond

	// jobs is the registry of every job ever submitted. Entries are
	// never deleted while a dependent's edge set may reference them.
	jobs    map[int]*Job
	queue   *jobQueue
	active  map[int]*Job
	waiting map[int]*Job

	// completed is the bounded history window, oldest first.
	completed    []*Job
	historyLimit int

	cores         *coreAllocator
	numWorkers    int
	maxConcurrent int
	affinity      bool

	// procs holds the live process of each running job so control
	// operations can deliver real signals.
	procs map[int]*os.Process

	nextID  int
	running bool
	stopped bool

	submitted  int
	ncompleted int
	nfailed    int
	nkilled    int
	startTime  time.Time

	service EventService
	events  chan Event
	evQuit  chan struct{}
	evDone  chan struct{}

	wg sync.WaitGroup
}

// New creates a scheduler with the given core pool size and worker
// count. Both must be positive. service may be nil, in which case
// events are discarded. maxConcurrentJobs defaults to twice the core
// pool size: intentional oversubscription, bounded independently of
// core availability.
func New(numCores, numWorkers int, service EventService) (*Scheduler, error) {
	cores, err := newCoreAllocator(numCores)
	if err != nil {
		return nil, err
	}
	if numWorkers <= 0 {
		return nil, fmt.Errorf("worker count must be positive: %v", numWorkers)
	}
	if service == nil {
		service = NopEventService{}
	}
	s := &Scheduler{
		jobs:          make(map[int]*Job),
		queue:         newJobQueue(PolicyPriority),
		active:        make(map[int]*Job),
		waiting:       make(map[int]*Job),
		historyLimit:  defaultHistoryLimit,
		cores:         cores,
		numWorkers:    numWorkers,
		maxConcurrent: numCores * 2,
		procs:         make(map[int]*os.Process),
		nextID:        1,
		startTime:     time.Now(),
		service:       service,
		events:        make(chan Event, eventBufferSize),
		evQuit:        make(chan struct{}),
		evDone:        make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Start launches the worker pool. Jobs submitted before Start stay
// queued until workers exist. Starting twice or after Stop is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running || s.stopped {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.drainEvents()
	for i := 0; i < s.numWorkers; i++ {
		name := fmt.Sprintf("worker-%d-%s", i, xid.New().String())
		s.wg.Add(1)
		go s.worker(name)
	}
}

// Stop shuts the pool down: wakes all workers, kills any still-running
// processes, waits for the workers to drain and flushes the event feed.
// The scheduler cannot be restarted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	wasRunning := s.running
	s.running = false
	for _, p := range s.procs {
		p.Kill()
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	s.wg.Wait()
	if wasRunning {
		close(s.evQuit)
		<-s.evDone
	}
}

// get resolves a job id inside the registry. Callers hold the lock.
func (s *Scheduler) get(id int) *Job {
	return s.jobs[id]
}

// Submit creates a job from a command and enqueues it.
func (s *Scheduler) Submit(command string, priority JobPriority) (Job, error) {
	return s.SubmitWithDeps(command, priority, nil)
}

// SubmitWithDeps creates a job that runs only after every listed
// dependency has COMPLETED. Unknown ids and failed dependencies never
// satisfy, so such a job waits forever; the dependency graph is
// acyclic by the caller's contract and cycles are not detected.
func (s *Scheduler) SubmitWithDeps(command string, priority JobPriority, deps []int) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.submitLocked(command, priority, deps)
	if err != nil {
		return Job{}, err
	}
	return j.Clone(), nil
}

func (s *Scheduler) submitLocked(command string, priority JobPriority, deps []int) (*Job, error) {
	if s.stopped {
		return nil, fmt.Errorf("scheduler has stopped")
	}
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("empty command")
	}

	j := newJob(s.nextID, command, priority)
	s.nextID++
	for _, d := range deps {
		j.Deps[d] = true
		if dep := s.jobs[d]; dep != nil {
			dep.Dependents[j.ID] = true
		}
	}

	s.jobs[j.ID] = j
	s.submitted++

	if len(j.Deps) > 0 && !j.DependenciesSatisfied(s.get) {
		j.Status = StatusWaitingDeps
		s.waiting[j.ID] = j
	} else {
		j.Status = StatusPending
		s.queue.push(j)
	}

	s.emit(EventSubmitted, j)
	s.cond.Broadcast()
	return j, nil
}

// SubmitArray expands a command template into count jobs, replacing
// the $ARRAY_ID placeholder with each job's zero-based task index.
// All jobs share the first job's id as their array group id.
func (s *Scheduler) SubmitArray(template string, count int, priority JobPriority) ([]Job, error) {
	if count <= 0 {
		return nil, fmt.Errorf("array size must be positive: %v", count)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	arrayID := s.nextID
	out := make([]Job, 0, count)
	for i := 0; i < count; i++ {
		command := strings.Replace(template, arrayPlaceholder, strconv.Itoa(i), 1)
		j, err := s.submitLocked(command, priority, nil)
		if err != nil {
			return nil, err
		}
		j.Type = TypeArrayJob
		j.ArrayID = arrayID
		j.ArrayTask = i
		out = append(out, j.Clone())
	}
	return out, nil
}

// worker is one dispatch loop. It blocks until a PENDING job is
// popable and the active set has room, runs the job to completion
// outside the lock, then finalizes. A single job's failure never
// escapes an iteration.
func (s *Scheduler) worker(name string) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		var j *Job
		for {
			if !s.running {
				s.mu.Unlock()
				return
			}
			if len(s.active) < s.maxConcurrent {
				if j = s.queue.pop(); j != nil {
					break
				}
			}
			s.cond.Wait()
		}
		j.Status = StatusRunning
		s.active[j.ID] = j
		s.mu.Unlock()

		s.execute(j, name)

		s.mu.Lock()
		delete(s.active, j.ID)
		s.finalizeLocked(j)
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// execute runs the job's command through the system shell and blocks
// until it exits. The worker is parked for the whole process lifetime;
// that is intentional, pool size bounds true parallelism.
func (s *Scheduler) execute(j *Job, worker string) {
	s.mu.Lock()
	j.Worker = worker
	j.StartTime = time.Now()
	if s.affinity && j.Limits.MaxCores > 1 {
		j.AssignedCores = s.cores.acquireN(j.Limits.MaxCores)
	}
	if len(j.AssignedCores) > 0 {
		j.AssignedCore = j.AssignedCores[0]
	} else {
		j.AssignedCore = s.cores.acquire()
	}
	s.simulateUsage(j)
	s.emit(EventStarted, j)
	s.mu.Unlock()

	cmd := exec.Command("/bin/sh", "-c", j.Command)
	if err := cmd.Start(); err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		j.EndTime = time.Now()
		j.ActualRuntime = j.EndTime.Sub(j.StartTime)
		j.Status = StatusFailed
		j.ExitCode = -1
		s.releaseCoresLocked(j)
		s.emit(EventFailed, j)
		return
	}

	s.mu.Lock()
	j.PID = cmd.Process.Pid
	s.procs[j.ID] = cmd.Process
	if j.Status == StatusKilled {
		// An operator kill raced with process creation; deliver it now.
		cmd.Process.Kill()
	}
	s.mu.Unlock()

	var timer *time.Timer
	if j.Limits.MaxRuntime > 0 {
		id := j.ID
		timer = time.AfterFunc(j.Limits.MaxRuntime, func() {
			s.mu.Lock()
			p := s.procs[id]
			s.mu.Unlock()
			if p != nil {
				log.Printf("job %d exceeded max runtime, killing", id)
				p.Kill()
			}
		})
	}
	werr := cmd.Wait()
	if timer != nil {
		timer.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.procs, j.ID)
	j.EndTime = time.Now()
	j.ActualRuntime = j.EndTime.Sub(j.StartTime)
	s.releaseCoresLocked(j)

	if j.Status == StatusKilled {
		// Operator kill already counted and logged; keep its verdict.
		j.ExitCode = -1
		return
	}
	if werr == nil {
		j.ExitCode = 0
		j.Status = StatusCompleted
		s.emit(EventCompleted, j)
		return
	}
	j.Status = StatusFailed
	if ee, ok := werr.(*exec.ExitError); ok {
		j.ExitCode = ee.ExitCode()
	} else {
		j.ExitCode = -1
	}
	s.emit(EventFailed, j)
}

func (s *Scheduler) releaseCoresLocked(j *Job) {
	if len(j.AssignedCores) > 0 {
		s.cores.releaseAll(j.AssignedCores)
		return
	}
	s.cores.release(j.AssignedCore)
}

// finalizeLocked moves a terminal job into the bounded history, bumps
// the matching counter and re-evaluates dependents. Killed jobs were
// already counted at kill time.
func (s *Scheduler) finalizeLocked(j *Job) {
	switch j.Status {
	case StatusCompleted:
		s.ncompleted++
	case StatusFailed:
		s.nfailed++
	}
	s.appendHistoryLocked(j)
	s.resolveDependentsLocked(j)
}

func (s *Scheduler) appendHistoryLocked(j *Job) {
	s.completed = append(s.completed, j)
	if n := len(s.completed) - s.historyLimit; n > 0 {
		s.completed = append([]*Job(nil), s.completed[n:]...)
	}
}

// resolveDependentsLocked promotes waiting jobs whose dependency set
// includes the just-finished id and is now fully satisfied. Reactive,
// O(waiting jobs) per completion.
func (s *Scheduler) resolveDependentsLocked(finished *Job) {
	for id, w := range s.waiting {
		if !w.Deps[finished.ID] {
			continue
		}
		if !w.DependenciesSatisfied(s.get) {
			continue
		}
		delete(s.waiting, id)
		w.Status = StatusPending
		s.queue.push(w)
	}
	s.cond.Broadcast()
}

// simulateUsage derives the monitoring-only cpu/memory figures from
// the command text. Memory is capped at the job's advisory limit.
func (s *Scheduler) simulateUsage(j *Job) {
	cmd := strings.ToLower(j.Command)
	switch {
	case strings.Contains(cmd, "sleep"):
		j.CPUUtilization = 5.0 + float64(rand.Intn(15))
	case strings.Contains(cmd, "find"), strings.Contains(cmd, "grep"):
		j.CPUUtilization = 30.0 + float64(rand.Intn(40))
	case strings.Contains(cmd, "make"), strings.Contains(cmd, "compile"):
		j.CPUUtilization = 70.0 + float64(rand.Intn(30))
	default:
		j.CPUUtilization = 25.0 + float64(rand.Intn(50))
	}
	j.ContextSwitches = 100 + rand.Intn(500)

	mem := 10 + len(j.Command)/10
	if strings.Contains(cmd, "make") {
		mem *= 5
	}
	if mem > j.Limits.MaxMemoryMB {
		mem = j.Limits.MaxMemoryMB
	}
	j.MemoryUsageMB = mem
}

// Kill terminates a job. RUNNING jobs get a real SIGKILL through the
// tracked process; PENDING and WAITING_DEPS jobs become terminal
// immediately and the queue drops them lazily. Any other state refuses
// with no mutation.
func (s *Scheduler) Kill(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[id]
	if j == nil {
		return false
	}
	switch j.Status {
	case StatusRunning:
		j.Status = StatusKilled
		s.nkilled++
		if p := s.procs[id]; p != nil {
			p.Kill()
		}
		// The worker finalizes once the process reaps.
		s.emit(EventKilled, j)
		return true
	case StatusPending, StatusWaitingDeps:
		delete(s.waiting, id)
		j.Status = StatusKilled
		s.nkilled++
		j.EndTime = time.Now()
		s.appendHistoryLocked(j)
		s.resolveDependentsLocked(j)
		s.emit(EventKilled, j)
		return true
	}
	return false
}

// Suspend pauses a RUNNING job with SIGSTOP.
func (s *Scheduler) Suspend(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[id]
	if j == nil || j.Status != StatusRunning {
		return false
	}
	p := s.procs[id]
	if p == nil {
		return false
	}
	if err := p.Signal(syscall.SIGSTOP); err != nil {
		log.Printf("suspend job %d: %v", id, err)
		return false
	}
	j.Status = StatusSuspended
	s.emit(EventSuspended, j)
	return true
}

// Resume continues a SUSPENDED job with SIGCONT.
func (s *Scheduler) Resume(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[id]
	if j == nil || j.Status != StatusSuspended {
		return false
	}
	p := s.procs[id]
	if p == nil {
		return false
	}
	if err := p.Signal(syscall.SIGCONT); err != nil {
		log.Printf("resume job %d: %v", id, err)
		return false
	}
	j.Status = StatusRunning
	s.emit(EventResumed, j)
	return true
}

// SetPriority changes a job's priority. Permitted only while PENDING.
func (s *Scheduler) SetPriority(id int, p JobPriority) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[id]
	if j == nil || j.Status != StatusPending {
		return false
	}
	j.Priority = p
	s.queue.reheap()
	return true
}

// SetPolicy switches the queue ordering policy.
func (s *Scheduler) SetPolicy(p Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.setPolicy(p)
}

// SetMaxConcurrent changes the active-job throttle. Values below one
// are ignored.
func (s *Scheduler) SetMaxConcurrent(n int) {
	if n < 1 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxConcurrent = n
	s.cond.Broadcast()
}

// EnableCoreAffinity toggles all-or-nothing multi-slot reservations
// for jobs that request more than one core.
func (s *Scheduler) EnableCoreAffinity(enable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.affinity = enable
}

// SetHistoryLimit bounds the completed-job retention window.
func (s *Scheduler) SetHistoryLimit(n int) {
	if n < 1 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyLimit = n
	if cut := len(s.completed) - n; cut > 0 {
		s.completed = append([]*Job(nil), s.completed[cut:]...)
	}
}

// Job returns a snapshot of one job.
func (s *Scheduler) Job(id int) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[id]
	if j == nil {
		return Job{}, false
	}
	return j.Clone(), true
}

// Jobs returns snapshots of every job ever submitted, ordered by id.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// ActiveJobs returns snapshots of currently running jobs, ordered by id.
func (s *Scheduler) ActiveJobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.active))
	for _, j := range s.active {
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// CompletedJobs returns the bounded history window, oldest first.
func (s *Scheduler) CompletedJobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.completed))
	for _, j := range s.completed {
		out = append(out, j.Clone())
	}
	return out
}

// QueueLen reports how many jobs are queued and dispatchable.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.pendingLen()
}

// CoreUtilization reports the simulated utilization percentage per
// core slot, zero for unoccupied slots.
func (s *Scheduler) CoreUtilization() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	util := make([]int, s.cores.size())
	for _, j := range s.active {
		for _, c := range j.AssignedCores {
			if c >= 0 && c < len(util) {
				util[c] = int(j.CPUUtilization)
			}
		}
		if len(j.AssignedCores) == 0 && j.AssignedCore >= 0 && j.AssignedCore < len(util) {
			util[j.AssignedCore] = int(j.CPUUtilization)
		}
	}
	return util
}

// emit queues an event for the logging goroutine. Never blocks; a full
// buffer drops the event with a diagnostic.
func (s *Scheduler) emit(t EventType, j *Job) {
	ev := newEvent(t, j)
	select {
	case s.events <- ev:
	default:
		log.Printf("event buffer full, dropping %v for job %d", ev.Type, ev.JobID)
	}
}

// drainEvents feeds the configured EventService from the buffer. Sink
// errors are logged and ignored so logging can never fail scheduling.
func (s *Scheduler) drainEvents() {
	logOne := func(ev Event) {
		if err := s.service.Log(ev); err != nil {
			log.Printf("event log: %v", err)
		}
	}
	for {
		select {
		case ev := <-s.events:
			logOne(ev)
		case <-s.evQuit:
			for {
				select {
				case ev := <-s.events:
					logOne(ev)
				default:
					close(s.evDone)
					return
				}
			}
		}
	}
}
