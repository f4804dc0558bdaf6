package simulation

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Simulator runs a deterministic model of a single-threaded event loop. Work
// is split between the synchronous entry function, a FIFO microtask queue and
// a macrotask queue ordered by virtual fire time.
//
// A Simulator is owned by one goroutine: task bodies run on the goroutine that
// called Run and may schedule further work through the same Simulator.
type Simulator struct {
	HookableBase

	logger         logrus.FieldLogger
	microtaskLimit int
	timeLimit      VTime

	now VTime
	seq uint64

	microtasks microtaskQueue
	timers     *timerQueue
	pending    map[TaskHandle]*task
	recurring  map[TaskHandle]*recurring

	records    []Record
	current    *task
	running    bool
	rejections []*Promise
}

// NewSimulator creates a simulator with an empty queue and the clock at 0
func NewSimulator(opts ...Option) *Simulator {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s := &Simulator{
		logger:         logger,
		microtaskLimit: DefaultMicrotaskLimit,
		timers:         newTimerQueue(),
		pending:        make(map[TaskHandle]*task),
		recurring:      make(map[TaskHandle]*recurring),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Now returns the current virtual time
func (s *Simulator) Now() VTime {
	return s.now
}

// Pending returns the number of queued microtasks and macrotasks
func (s *Simulator) Pending() (microtasks, macrotasks int) {
	return s.microtasks.Len(), s.timers.Len()
}

func (s *Simulator) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// ScheduleMacrotask queues fn to run once the virtual clock reaches
// Now()+delay. A zero delay still runs after the current task and every
// microtask queued before the timer becomes eligible.
func (s *Simulator) ScheduleMacrotask(fn Func, delay VTime, opts ...TaskOption) (TaskHandle, error) {
	if fn == nil {
		return 0, &SchedulingError{Op: "schedule macrotask", Err: ErrNilFunc}
	}
	if delay < 0 {
		return 0, &SchedulingError{Op: "schedule macrotask", Err: fmt.Errorf("%w: %d", ErrNegativeDelay, delay)}
	}

	o := resolveTaskOptions(opts)
	seq := s.nextSeq()
	if o.name == "" {
		o.name = fmt.Sprintf("macrotask#%d", seq)
	}

	// delays past the end of the clock saturate at MaxVTime
	at := MaxVTime
	if delay <= MaxVTime-s.now {
		at = s.now + delay
	}

	t := &task{
		seq:    seq,
		handle: TaskHandle(seq),
		name:   o.name,
		kind:   KindMacrotask,
		at:     at,
		fn:     fn,
	}
	s.timers.Push(t)
	s.pending[t.handle] = t

	s.logger.WithFields(logrus.Fields{
		"task": t.name,
		"seq":  t.seq,
		"at":   t.at,
	}).Debug("macrotask scheduled")

	return t.handle, nil
}

// ScheduleMicrotask queues fn behind every microtask queued before it
func (s *Simulator) ScheduleMicrotask(fn Func, opts ...TaskOption) error {
	if fn == nil {
		return &SchedulingError{Op: "schedule microtask", Err: ErrNilFunc}
	}

	o := resolveTaskOptions(opts)
	s.enqueueMicrotask(fn, o.name)

	return nil
}

func (s *Simulator) enqueueMicrotask(fn Func, name string) {
	seq := s.nextSeq()
	if name == "" {
		name = fmt.Sprintf("microtask#%d", seq)
	}

	s.microtasks.Push(&task{
		seq:   seq,
		name:  name,
		kind:  KindMicrotask,
		at:    s.now,
		fn:    fn,
		index: -1,
	})

	s.logger.WithFields(logrus.Fields{
		"task": name,
		"seq":  seq,
	}).Debug("microtask queued")
}

// Cancel removes a pending macrotask, or stops a recurring timer. It returns
// false if the handle already ran, was already cancelled or is unknown.
func (s *Simulator) Cancel(h TaskHandle) bool {
	if t, ok := s.pending[h]; ok {
		delete(s.pending, h)
		s.timers.Remove(t)
		s.logger.WithField("task", t.name).Debug("macrotask cancelled")
		return true
	}

	if r, ok := s.recurring[h]; ok {
		delete(s.recurring, h)
		r.cancelled = true
		if r.next != nil {
			s.timers.Remove(r.next)
			r.next = nil
		}
		s.logger.WithField("task", r.name).Debug("timer cancelled")
		return true
	}

	return false
}

// Run executes entry synchronously and then processes queued work until both
// queues are empty. Microtasks are drained exhaustively before every
// macrotask and before the clock moves.
//
// The returned log holds every message recorded by the simulator so far,
// including earlier runs.
func (s *Simulator) Run(ctx context.Context, entry Func) (ExecutionLog, error) {
	if s.running {
		return nil, ErrRunning
	}
	if entry == nil {
		return nil, &SchedulingError{Op: "run", Err: ErrNilFunc}
	}

	s.running = true
	defer func() { s.running = false }()

	s.execute(&task{
		seq:   s.nextSeq(),
		name:  "main",
		kind:  KindSync,
		at:    s.now,
		fn:    entry,
		index: -1,
	})

	for {
		if err := s.drainMicrotasks(ctx); err != nil {
			return s.ExecutionLog(), err
		}

		if s.timers.Len() == 0 {
			break
		}

		if err := ctx.Err(); err != nil {
			return s.ExecutionLog(), err
		}

		next := s.timers.Peek()
		if s.timeLimit > 0 && next.at > s.timeLimit {
			return s.ExecutionLog(), fmt.Errorf("%w: %s due at %dms, limit %dms",
				ErrTimeLimit, next.name, next.at, s.timeLimit)
		}

		s.timers.Pop()
		if next.timer == nil {
			delete(s.pending, next.handle)
		}

		s.advanceClock(next.at)
		s.execute(next)

		if next.timer != nil {
			s.rearm(next.timer)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"time":    s.now,
		"records": len(s.records),
	}).Debug("simulation halted")

	return s.ExecutionLog(), nil
}

func (s *Simulator) drainMicrotasks(ctx context.Context) error {
	executed := 0
	for s.microtasks.Len() > 0 {
		if s.microtaskLimit > 0 && executed >= s.microtaskLimit {
			return fmt.Errorf("%w: %d microtasks in one drain", ErrMicrotaskLimit, executed)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		s.execute(s.microtasks.Pop())
		executed++
	}

	s.reportUnhandledRejections()

	return nil
}

func (s *Simulator) advanceClock(t VTime) {
	if t < s.now {
		s.logger.Panicf("cannot move the clock back from %dms to %dms", s.now, t)
	}
	if t == s.now {
		return
	}

	s.now = t
	s.logger.WithField("time", t).Debug("clock advanced")
	s.InvokeHook(HookCtx{
		Domain: s,
		Pos:    HookPosClockAdvance,
		Item:   t,
	})
}

func (s *Simulator) execute(t *task) {
	s.current = t
	defer func() { s.current = nil }()

	hookCtx := HookCtx{
		Domain: s,
		Pos:    HookPosBeforeTask,
		Item:   t.info(),
	}
	s.InvokeHook(hookCtx)

	if taskErr := s.invoke(t); taskErr != nil {
		s.logger.WithFields(logrus.Fields{
			"task": t.name,
			"kind": t.kind,
			"time": s.now,
		}).WithError(taskErr).Warn("uncaught exception")
		s.appendRecord(t.kind, t.name, taskErr.Error(), true)
		hookCtx.Detail = taskErr
	}

	hookCtx.Pos = HookPosAfterTask
	s.InvokeHook(hookCtx)
}

func (s *Simulator) invoke(t *task) (taskErr *TaskError) {
	defer func() {
		if r := recover(); r != nil {
			taskErr = &TaskError{Task: t.name, Kind: t.kind, Value: r}
		}
	}()

	t.fn()

	return nil
}

// Log appends msg to the trace, attributed to the running task
func (s *Simulator) Log(msg string) {
	kind, name := KindSync, "main"
	if s.current != nil {
		kind, name = s.current.kind, s.current.name
	}
	s.appendRecord(kind, name, msg, false)
}

// Logf formats and appends a message to the trace
func (s *Simulator) Logf(format string, args ...interface{}) {
	s.Log(fmt.Sprintf(format, args...))
}

func (s *Simulator) appendRecord(kind Kind, name, msg string, failure bool) {
	r := Record{
		Seq:     len(s.records),
		Time:    s.now,
		Kind:    kind,
		Task:    name,
		Message: msg,
		Failure: failure,
	}
	s.records = append(s.records, r)

	s.InvokeHook(HookCtx{
		Domain: s,
		Pos:    HookPosRecord,
		Item:   r,
	})
}

// Records returns a copy of the detailed trace
func (s *Simulator) Records() []Record {
	records := make([]Record, len(s.records))
	copy(records, s.records)
	return records
}

// ExecutionLog returns the recorded messages in order
func (s *Simulator) ExecutionLog() ExecutionLog {
	log := make(ExecutionLog, len(s.records))
	for i, r := range s.records {
		log[i] = r.Message
	}
	return log
}

// Failures returns the records produced by uncaught exceptions and unhandled
// rejections
func (s *Simulator) Failures() []Record {
	failures := []Record{}
	for _, r := range s.records {
		if r.Failure {
			failures = append(failures, r)
		}
	}
	return failures
}
