package simulation

import (
	"fmt"
	"math"
)

// VTime is a point on the virtual clock, in milliseconds
type VTime int64

// MaxVTime is the last instant of the virtual clock
const MaxVTime VTime = math.MaxInt64

// Func is the body of a task, a microtask or the synchronous entry function
type Func func()

// Kind defines what kind of work produced a record
type Kind string

const (
	KindSync      Kind = "sync"
	KindMicrotask Kind = "microtask"
	KindMacrotask Kind = "macrotask"
)

// TaskHandle identifies a scheduled macrotask or recurring timer
type TaskHandle uint64

// Record is a single entry of the execution trace
type Record struct {
	Seq     int
	Time    VTime
	Kind    Kind
	Task    string
	Message string
	Failure bool
}

// String formats the record the way the trace tables print it
func (r Record) String() string {
	return fmt.Sprintf("%d@%dms [%s] %s: %s", r.Seq, r.Time, r.Kind, r.Task, r.Message)
}

// ExecutionLog is the ordered list of messages produced by a run
type ExecutionLog []string

// TaskInfo describes a unit of work handed to hooks
type TaskInfo struct {
	Handle TaskHandle
	Seq    uint64
	Name   string
	Kind   Kind
	At     VTime
}

// task is a queued unit of work. Macrotasks live in the timer heap, microtasks
// in the FIFO; neither is touched after it has been popped.
type task struct {
	seq    uint64
	handle TaskHandle
	name   string
	kind   Kind
	at     VTime
	fn     Func

	// heap position, -1 once removed
	index int

	timer *recurring
}

func (t *task) info() TaskInfo {
	return TaskInfo{
		Handle: t.handle,
		Seq:    t.seq,
		Name:   t.name,
		Kind:   t.kind,
		At:     t.at,
	}
}
