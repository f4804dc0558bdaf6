package simulation

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// epoch anchors virtual time on the wall clock for cron schedules.
var epoch = time.Unix(0, 0).UTC()

// maxWallTime is the last virtual time that still fits in a time.Duration
// from the epoch. Recurring timers never fire after it.
const maxWallTime = VTime(math.MaxInt64 / int64(time.Millisecond))

func toWall(t VTime) time.Time {
	return epoch.Add(time.Duration(t) * time.Millisecond)
}

func fromWall(t time.Time) VTime {
	return VTime(t.Sub(epoch) / time.Millisecond)
}

// intervalSchedule fires every period, at millisecond resolution. cron's own
// constant delay schedule rounds to whole seconds.
type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.every)
}

// recurring is a timer that re-queues itself after every occurrence
type recurring struct {
	handle    TaskHandle
	name      string
	fn        Func
	schedule  cron.Schedule
	times     int
	fired     int
	cancelled bool
	next      *task
}

// ScheduleInterval runs fn every `every` milliseconds, starting one period from
// now. A zero times keeps the timer running until it is cancelled.
func (s *Simulator) ScheduleInterval(fn Func, every VTime, times int, opts ...TaskOption) (TaskHandle, error) {
	if every <= 0 || every > maxWallTime {
		return 0, &SchedulingError{Op: "schedule interval", Err: fmt.Errorf("%w: %d", ErrInvalidInterval, every)}
	}

	schedule := intervalSchedule{every: time.Duration(every) * time.Millisecond}

	return s.startRecurring("schedule interval", fn, schedule, times, opts)
}

// ScheduleCron runs fn on a standard cron schedule, reading virtual time as
// milliseconds since the Unix epoch. Specs without a CRON_TZ= or TZ= prefix
// are evaluated in UTC.
func (s *Simulator) ScheduleCron(fn Func, spec string, times int, opts ...TaskOption) (TaskHandle, error) {
	zoned := spec
	if !strings.HasPrefix(spec, "CRON_TZ=") && !strings.HasPrefix(spec, "TZ=") {
		zoned = "CRON_TZ=UTC " + spec
	}

	schedule, err := cron.ParseStandard(zoned)
	if err != nil {
		return 0, &SchedulingError{Op: "schedule cron", Err: fmt.Errorf("invalid schedule %q: %w", spec, err)}
	}

	return s.startRecurring("schedule cron", fn, schedule, times, opts)
}

func (s *Simulator) startRecurring(
	op string,
	fn Func,
	schedule cron.Schedule,
	times int,
	opts []TaskOption,
) (TaskHandle, error) {
	if fn == nil {
		return 0, &SchedulingError{Op: op, Err: ErrNilFunc}
	}
	if times < 0 {
		return 0, &SchedulingError{Op: op, Err: fmt.Errorf("times must not be negative, got %d", times)}
	}

	o := resolveTaskOptions(opts)
	seq := s.nextSeq()
	if o.name == "" {
		o.name = fmt.Sprintf("macrotask#%d", seq)
	}

	r := &recurring{
		handle:   TaskHandle(seq),
		name:     o.name,
		fn:       fn,
		schedule: schedule,
		times:    times,
	}

	if !s.arm(r) {
		return 0, &SchedulingError{Op: op, Err: errors.New("schedule never fires")}
	}
	s.recurring[r.handle] = r

	return r.handle, nil
}

// arm queues the next occurrence of r
func (s *Simulator) arm(r *recurring) bool {
	if s.now > maxWallTime {
		return false
	}

	wall := r.schedule.Next(toWall(s.now))
	if wall.IsZero() || wall.After(toWall(maxWallTime)) {
		return false
	}

	at := fromWall(wall)
	if at < s.now {
		return false
	}

	t := &task{
		seq:    s.nextSeq(),
		handle: r.handle,
		name:   r.name,
		kind:   KindMacrotask,
		at:     at,
		fn:     r.fn,
		timer:  r,
	}
	r.next = t
	s.timers.Push(t)

	s.logger.WithFields(logrus.Fields{
		"task":  r.name,
		"at":    at,
		"fired": r.fired,
	}).Debug("timer armed")

	return true
}

// rearm is called after an occurrence of r ran
func (s *Simulator) rearm(r *recurring) {
	r.next = nil
	r.fired++

	if r.cancelled {
		return
	}

	if r.times > 0 && r.fired >= r.times {
		delete(s.recurring, r.handle)
		return
	}

	if !s.arm(r) {
		delete(s.recurring, r.handle)
	}
}
