package threadshell

import "time"

// EventType is a job lifecycle transition kind.
type EventType int

const (
	EventSubmitted = EventType(iota)
	EventStarted
	EventCompleted
	EventFailed
	EventKilled
	EventSuspended
	EventResumed
)

// String represents EventType as string.
func (t EventType) String() string {
	return map[EventType]string{
		EventSubmitted: "SUBMITTED",
		EventStarted:   "STARTED",
		EventCompleted: "COMPLETED",
		EventFailed:    "FAILED",
		EventKilled:    "KILLED",
		EventSuspended: "SUSPENDED",
		EventResumed:   "RESUMED",
	}[t]
}

// Event is one record of the job lifecycle feed consumed by external
// loggers. Time is UTC with millisecond precision.
type Event struct {
	Time     time.Time
	Type     EventType
	JobID    int
	Name     string
	Command  string
	Priority JobPriority
	Status   JobStatus
	Worker   string
	Core     int
	Elapsed  time.Duration
}

func newEvent(t EventType, j *Job) Event {
	var elapsed time.Duration
	if !j.StartTime.IsZero() {
		end := j.EndTime
		if end.IsZero() {
			end = time.Now()
		}
		elapsed = end.Sub(j.StartTime)
	}
	return Event{
		Time:     time.Now().UTC().Truncate(time.Millisecond),
		Type:     t,
		JobID:    j.ID,
		Name:     j.Name,
		Command:  j.Command,
		Priority: j.Priority,
		Status:   j.Status,
		Worker:   j.Worker,
		Core:     j.AssignedCore,
		Elapsed:  elapsed,
	}
}

// EventService consumes the lifecycle event feed. Implementations live
// in service subpackages; a failing or slow service never affects
// scheduling.
type EventService interface {
	Log(Event) error
}

// NopEventService discards all events. It is the default service and
// the one tests use when they don't care about the feed.
type NopEventService struct{}

// Log implements EventService.
func (NopEventService) Log(Event) error { return nil }
