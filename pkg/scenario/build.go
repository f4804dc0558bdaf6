package scenario

import (
	"errors"

	"github.com/sherine-k/eventloop-sim/pkg/simulation"
)

// builder turns scenario steps into task bodies bound to one simulator
type builder struct {
	sim     *simulation.Simulator
	handles map[string]simulation.TaskHandle
}

// Build compiles steps into an entry function for sim. Timers are named per
// Build call, so cancel steps only see timers scheduled by the same program.
func Build(sim *simulation.Simulator, steps []Step) simulation.Func {
	b := &builder{
		sim:     sim,
		handles: make(map[string]simulation.TaskHandle),
	}
	return b.block(steps)
}

func (b *builder) block(steps []Step) simulation.Func {
	return func() {
		for _, step := range steps {
			b.exec(step)
		}
	}
}

func (b *builder) blocks(blocks [][]Step) []simulation.Func {
	funcs := make([]simulation.Func, len(blocks))
	for i, steps := range blocks {
		funcs[i] = b.block(steps)
	}
	return funcs
}

// must surfaces a scheduling error as an exception of the running task
func must(err error) {
	if err != nil {
		panic(err)
	}
}

func (b *builder) exec(step Step) {
	switch {
	case step.Log != nil:
		b.sim.Log(*step.Log)

	case step.Microtask != nil:
		must(b.sim.ScheduleMicrotask(b.block(step.Microtask)))

	case step.Timeout != nil:
		t := step.Timeout
		h, err := b.sim.ScheduleMacrotask(b.block(t.Steps), simulation.VTime(t.Delay), simulation.WithName(t.Name))
		must(err)
		b.remember(t.Name, h)

	case step.Interval != nil:
		t := step.Interval
		h, err := b.sim.ScheduleInterval(b.block(t.Steps), simulation.VTime(t.Every), t.Times, simulation.WithName(t.Name))
		must(err)
		b.remember(t.Name, h)

	case step.Cron != nil:
		t := step.Cron
		h, err := b.sim.ScheduleCron(b.block(t.Steps), t.Schedule, t.Times, simulation.WithName(t.Name))
		must(err)
		b.remember(t.Name, h)

	case step.Chain != nil:
		b.sim.Chain(b.blocks(step.Chain)...)

	case step.Async != nil:
		b.sim.AsyncFunc(b.segments(step.Async)...)

	case step.Throw != nil:
		panic(*step.Throw)

	case step.Reject != nil:
		p := b.sim.Rejected(step.Reject.Reason)
		if step.Reject.Catch != nil {
			catch := b.block(step.Reject.Catch)
			p.Catch(func(any) any {
				catch()
				return nil
			})
		}

	case step.Cancel != nil:
		if h, ok := b.handles[*step.Cancel]; ok {
			b.sim.Cancel(h)
		}

	case step.All != nil:
		b.all(step.All)

	case step.Await != nil:
		panic(errors.New("await outside an async block"))
	}
}

// segments splits async blocks into the segments of an async function. A
// block ending with an await waits on that promise; any other block awaits
// an already fulfilled one.
func (b *builder) segments(blocks [][]Step) []simulation.Segment {
	segments := make([]simulation.Segment, len(blocks))
	for i, steps := range blocks {
		n := len(steps)
		if n == 0 || steps[n-1].Await == nil {
			segments[i] = simulation.Segment{Run: b.block(steps)}
			continue
		}
		segments[i] = b.awaitSegment(steps[:n-1], steps[n-1].Await)
	}
	return segments
}

func (b *builder) awaitSegment(steps []Step, await *Await) simulation.Segment {
	seg := simulation.Segment{Run: b.block(steps)}

	switch {
	case await.Reject != nil:
		reason := *await.Reject
		seg.Await = func() *simulation.Promise {
			return b.sim.Rejected(reason)
		}
	case await.Delay != nil:
		delay := simulation.VTime(*await.Delay)
		seg.Await = func() *simulation.Promise {
			p, err := b.sim.Delay(delay, nil)
			must(err)
			return p
		}
	}

	if await.Catch != nil {
		catch := b.block(await.Catch)
		seg.Catch = func(any) { catch() }
	}

	return seg
}

func (b *builder) remember(name string, h simulation.TaskHandle) {
	if name != "" {
		b.handles[name] = h
	}
}

func (b *builder) all(all *AllOf) {
	promises := make([]*simulation.Promise, len(all.Tasks))
	for i, t := range all.Tasks {
		p := b.sim.NewPromise()
		body := b.block(t.Steps)
		h, err := b.sim.ScheduleMacrotask(func() {
			body()
			p.Resolve(nil)
		}, simulation.VTime(t.Delay), simulation.WithName(t.Name))
		must(err)
		b.remember(t.Name, h)
		promises[i] = p
	}

	then := b.block(all.Then)
	b.sim.All(promises...).Then(func(v any) any {
		then()
		return v
	})
}
