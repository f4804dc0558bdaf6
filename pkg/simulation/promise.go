package simulation

import (
	"errors"
	"fmt"
)

// PromiseState is the settlement state of a Promise
type PromiseState int

const (
	PromisePending PromiseState = iota
	PromiseFulfilled
	PromiseRejected
)

func (s PromiseState) String() string {
	switch s {
	case PromisePending:
		return "pending"
	case PromiseFulfilled:
		return "fulfilled"
	case PromiseRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ErrSelfResolution rejects a promise that was resolved with itself.
var ErrSelfResolution = errors.New("promise resolved with itself")

// Promise is a continuation source bound to one Simulator. Reactions always
// run as microtasks, in the order they were registered.
type Promise struct {
	sim       *Simulator
	state     PromiseState
	value     any
	reactions []reaction
	handled   bool
	reported  bool
}

type reaction struct {
	onFulfilled func(any) any
	onRejected  func(any) any
	derived     *Promise
}

// NewPromise creates a pending promise
func (s *Simulator) NewPromise() *Promise {
	return &Promise{sim: s}
}

// Resolved returns a promise already fulfilled with v
func (s *Simulator) Resolved(v any) *Promise {
	p := s.NewPromise()
	p.Resolve(v)
	return p
}

// Rejected returns a promise already rejected with reason
func (s *Simulator) Rejected(reason any) *Promise {
	p := s.NewPromise()
	p.Reject(reason)
	return p
}

// State returns the settlement state
func (p *Promise) State() PromiseState {
	return p.state
}

// Value returns the fulfilment value or rejection reason
func (p *Promise) Value() any {
	return p.value
}

// Resolve fulfils the promise. Resolving with another promise makes this one
// follow it. Only the first settlement counts.
func (p *Promise) Resolve(v any) {
	if p.state != PromisePending {
		return
	}

	if other, ok := v.(*Promise); ok {
		if other == p {
			p.settle(PromiseRejected, ErrSelfResolution)
			return
		}

		other.subscribe(reaction{
			onFulfilled: func(v any) any { p.Resolve(v); return nil },
			onRejected:  func(r any) any { p.Reject(r); return nil },
		})
		return
	}

	p.settle(PromiseFulfilled, v)
}

// Reject rejects the promise with reason. Only the first settlement counts.
func (p *Promise) Reject(reason any) {
	if p.state != PromisePending {
		return
	}
	p.settle(PromiseRejected, reason)
}

func (p *Promise) settle(state PromiseState, value any) {
	p.state = state
	p.value = value

	reactions := p.reactions
	p.reactions = nil
	for _, r := range reactions {
		p.schedule(r)
	}

	if state == PromiseRejected && !p.handled {
		p.sim.rejections = append(p.sim.rejections, p)
	}
}

// Then registers onFulfilled and returns the promise for its result.
// Rejections pass through untouched.
func (p *Promise) Then(onFulfilled func(any) any) *Promise {
	return p.then(onFulfilled, nil)
}

// Catch registers onRejected and returns the promise for its result.
// Fulfilment values pass through untouched.
func (p *Promise) Catch(onRejected func(any) any) *Promise {
	return p.then(nil, onRejected)
}

func (p *Promise) then(onFulfilled, onRejected func(any) any) *Promise {
	derived := p.sim.NewPromise()
	p.subscribe(reaction{
		onFulfilled: onFulfilled,
		onRejected:  onRejected,
		derived:     derived,
	})
	return derived
}

func (p *Promise) subscribe(r reaction) {
	p.handled = true

	if p.state == PromisePending {
		p.reactions = append(p.reactions, r)
		return
	}

	p.schedule(r)
}

func (p *Promise) schedule(r reaction) {
	p.sim.enqueueMicrotask(func() { p.react(r) }, "")
}

func (p *Promise) react(r reaction) {
	handler := r.onFulfilled
	if p.state == PromiseRejected {
		handler = r.onRejected
	}

	if handler == nil {
		if r.derived == nil {
			return
		}
		if p.state == PromiseFulfilled {
			r.derived.Resolve(p.value)
		} else {
			r.derived.Reject(p.value)
		}
		return
	}

	result, panicked := callHandler(handler, p.value)
	if r.derived == nil {
		return
	}

	if panicked {
		r.derived.Reject(result)
		return
	}
	r.derived.Resolve(result)
}

func callHandler(handler func(any) any, v any) (result any, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			result, panicked = r, true
		}
	}()

	return handler(v), false
}

// reportUnhandledRejections records every promise rejected since the last
// checkpoint that still has no handler.
func (s *Simulator) reportUnhandledRejections() {
	rejections := s.rejections
	s.rejections = nil

	for _, p := range rejections {
		if p.handled || p.reported {
			continue
		}
		p.reported = true

		s.logger.WithField("reason", p.value).Warn("unhandled rejection")
		s.appendRecord(KindMicrotask, "promise", fmt.Sprintf("unhandled rejection: %v", p.value), true)
	}
}

// All fulfils with the values of ps, in order, once every promise fulfilled,
// and rejects with the first rejection.
func (s *Simulator) All(ps ...*Promise) *Promise {
	result := s.NewPromise()
	if len(ps) == 0 {
		result.Resolve([]any{})
		return result
	}

	values := make([]any, len(ps))
	remaining := len(ps)
	for i, p := range ps {
		i := i
		p.subscribe(reaction{
			onFulfilled: func(v any) any {
				values[i] = v
				remaining--
				if remaining == 0 {
					result.Resolve(values)
				}
				return nil
			},
			onRejected: func(r any) any {
				result.Reject(r)
				return nil
			},
		})
	}

	return result
}

// Delay returns a promise fulfilled with v by a macrotask ms from now, the
// way a promise wrapped around a timer is.
func (s *Simulator) Delay(ms VTime, v any, opts ...TaskOption) (*Promise, error) {
	p := s.NewPromise()
	if _, err := s.ScheduleMacrotask(func() { p.Resolve(v) }, ms, opts...); err != nil {
		return nil, err
	}
	return p, nil
}

// Chain runs steps one after another as promise reactions, like
// Promise.resolve().then(s1).then(s2)... Each step is a separate microtask
// queued when the previous one finished. A panicking step rejects the chain
// and skips the remaining steps.
func (s *Simulator) Chain(steps ...Func) *Promise {
	p := s.Resolved(nil)
	for _, step := range steps {
		p = p.Then(stepHandler(step))
	}
	return p
}

// Async models an async function whose segments are separated by awaits on
// settled promises. The first segment runs immediately in the caller and each
// later segment resumes as a new microtask.
func (s *Simulator) Async(steps ...Func) *Promise {
	segments := make([]Segment, len(steps))
	for i, step := range steps {
		segments[i] = Segment{Run: step}
	}
	return s.AsyncFunc(segments...)
}

// Segment is the code of an async function up to and including one await.
type Segment struct {
	Run Func

	// Await returns the promise awaited after Run. Nil awaits an already
	// fulfilled promise.
	Await func() *Promise

	// Catch handles a rejection of the awaited promise, like a try/catch
	// around the await; the function then continues with the next segment.
	// Without it the rejection rejects the function's promise.
	Catch func(reason any)
}

// AsyncFunc runs segments as the body of an async function and returns the
// function's promise. The first segment runs in the caller; every await
// resumes one microtask after the awaited promise settled.
func (s *Simulator) AsyncFunc(segments ...Segment) *Promise {
	result := s.NewPromise()
	s.runSegments(result, segments)
	return result
}

func (s *Simulator) runSegments(result *Promise, segments []Segment) {
	if len(segments) == 0 {
		result.Resolve(nil)
		return
	}

	seg, rest := segments[0], segments[1:]

	if reason, panicked := callHandler(stepHandler(seg.Run), nil); panicked {
		result.Reject(reason)
		return
	}

	if seg.Await == nil && len(rest) == 0 {
		result.Resolve(nil)
		return
	}

	awaited := s.Resolved(nil)
	if seg.Await != nil {
		v, panicked := callHandler(func(any) any { return seg.Await() }, nil)
		if panicked {
			result.Reject(v)
			return
		}
		if p, ok := v.(*Promise); ok && p != nil {
			awaited = p
		}
	}

	awaited.subscribe(reaction{
		onFulfilled: func(any) any {
			s.runSegments(result, rest)
			return nil
		},
		onRejected: func(reason any) any {
			if seg.Catch == nil {
				result.Reject(reason)
				return nil
			}

			caught := func(r any) any { seg.Catch(r); return nil }
			if v, panicked := callHandler(caught, reason); panicked {
				result.Reject(v)
				return nil
			}

			s.runSegments(result, rest)
			return nil
		},
	})
}

func stepHandler(step Func) func(any) any {
	return func(v any) any {
		if step != nil {
			step()
		}
		return v
	}
}
