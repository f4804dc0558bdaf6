package simulation

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Promise", func() {
	var (
		sim *Simulator
		ctx context.Context
	)

	BeforeEach(func() {
		sim = NewSimulator()
		ctx = context.Background()
	})

	logFn := func(msg string) Func {
		return func() { sim.Log(msg) }
	}

	It("should interleave chains one reaction at a time", func() {
		log, err := sim.Run(ctx, func() {
			sim.Log("Start")
			_, _ = sim.ScheduleMacrotask(logFn("Timeout 1"), 0)
			sim.Chain(logFn("Promise 1"), logFn("Promise 2"))
			_, _ = sim.ScheduleMacrotask(logFn("Timeout 2"), 0)
			sim.Chain(logFn("Promise 3"))
			sim.Log("End")
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(log).To(Equal(ExecutionLog{
			"Start", "End",
			"Promise 1", "Promise 3", "Promise 2",
			"Timeout 1", "Timeout 2",
		}))
	})

	It("should resume async segments as microtasks", func() {
		log, err := sim.Run(ctx, func() {
			sim.Log("1: Start")
			sim.Async(logFn("2: sync part"), logFn("4: after await"), logFn("5: after second await"))
			sim.Log("3: after call")
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(log).To(Equal(ExecutionLog{
			"1: Start", "2: sync part", "3: after call",
			"4: after await", "5: after second await",
		}))
	})

	It("should pass values along the chain", func() {
		var got []any
		_, err := sim.Run(ctx, func() {
			sim.Resolved(1).
				Then(func(v any) any { got = append(got, v); return v.(int) + 1 }).
				Then(func(v any) any { got = append(got, v); return nil })
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal([]any{1, 2}))
	})

	It("should settle only once", func() {
		p := sim.NewPromise()
		p.Resolve("first")
		p.Reject("second")
		p.Resolve("third")

		Expect(p.State()).To(Equal(PromiseFulfilled))
		Expect(p.Value()).To(Equal("first"))
	})

	It("should reject a promise resolved with itself", func() {
		p := sim.NewPromise()
		p.Catch(func(any) any { return nil })
		p.Resolve(p)

		Expect(p.State()).To(Equal(PromiseRejected))
		Expect(p.Value()).To(MatchError(ErrSelfResolution))
	})

	It("should run reactions of a pending promise when it settles", func() {
		log, err := sim.Run(ctx, func() {
			p := sim.NewPromise()
			p.Then(func(v any) any { sim.Logf("got %v", v); return nil })
			_, _ = sim.ScheduleMacrotask(func() {
				sim.Log("resolving")
				p.Resolve("value")
			}, 10)
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(log).To(Equal(ExecutionLog{"resolving", "got value"}))
	})

	It("should follow a promise returned by a handler", func() {
		var got any
		_, err := sim.Run(ctx, func() {
			delayed, _ := sim.Delay(20, "late")
			sim.Resolved(nil).
				Then(func(any) any { return delayed }).
				Then(func(v any) any { got = v; return nil })
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal("late"))
		Expect(sim.Now()).To(Equal(VTime(20)))
	})

	It("should turn a panicking handler into a rejection", func() {
		var caught any
		log, err := sim.Run(ctx, func() {
			sim.Chain(func() { panic("step failed") }, logFn("skipped")).
				Catch(func(r any) any { caught = r; return nil })
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(log).To(BeEmpty())
		Expect(caught).To(Equal("step failed"))
	})

	It("should report unhandled rejections once", func() {
		log, err := sim.Run(ctx, func() {
			sim.Rejected("nobody listens")
			sim.Rejected("handled").Catch(func(r any) any {
				sim.Logf("caught %v", r)
				return nil
			})
			_, _ = sim.ScheduleMacrotask(logFn("timer"), 0)
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(log).To(Equal(ExecutionLog{
			"caught handled",
			"unhandled rejection: nobody listens",
			"timer",
		}))

		failures := sim.Failures()
		Expect(failures).To(HaveLen(1))
		Expect(failures[0].Task).To(Equal("promise"))
	})

	It("should report a rejection at the end of a chain", func() {
		log, err := sim.Run(ctx, func() {
			sim.Chain(logFn("one"), func() { panic("two failed") }, logFn("three"))
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(log).To(Equal(ExecutionLog{"one", "unhandled rejection: two failed"}))
	})

	Context("AsyncFunc", func() {
		It("should resume in the catch block after awaiting a rejection", func() {
			var caught any
			log, err := sim.Run(ctx, func() {
				sim.AsyncFunc(
					Segment{
						Run:   logFn("1: Start"),
						Await: func() *Promise { return sim.Rejected("Error in promise") },
						Catch: func(r any) {
							caught = r
							sim.Logf("2: Caught error: %v", r)
						},
					},
					Segment{Run: logFn("3: After error handling")},
				)
				sim.Chain(logFn("queued after the await"))
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(caught).To(Equal("Error in promise"))
			Expect(log).To(Equal(ExecutionLog{
				"1: Start",
				"2: Caught error: Error in promise",
				"3: After error handling",
				"queued after the await",
			}))
			Expect(sim.Failures()).To(BeEmpty())
		})

		It("should reject the function when a rejection is not caught", func() {
			var reason any
			log, err := sim.Run(ctx, func() {
				sim.AsyncFunc(
					Segment{
						Run:   logFn("before"),
						Await: func() *Promise { return sim.Rejected("boom") },
					},
					Segment{Run: logFn("never")},
				).Catch(func(r any) any { reason = r; return nil })
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(log).To(Equal(ExecutionLog{"before"}))
			Expect(reason).To(Equal("boom"))
		})

		It("should report an uncaught rejection of the function", func() {
			log, err := sim.Run(ctx, func() {
				sim.AsyncFunc(Segment{
					Await: func() *Promise { return sim.Rejected("lost") },
				})
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(log).To(Equal(ExecutionLog{"unhandled rejection: lost"}))
		})

		It("should wait for a pending promise", func() {
			log, err := sim.Run(ctx, func() {
				sim.AsyncFunc(
					Segment{
						Run: logFn("start"),
						Await: func() *Promise {
							p, _ := sim.Delay(100, nil)
							return p
						},
					},
					Segment{Run: func() { sim.Logf("resumed at %d", sim.Now()) }},
				)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(log).To(Equal(ExecutionLog{"start", "resumed at 100"}))
		})

		It("should reject the function when the catch block panics", func() {
			var reason any
			_, err := sim.Run(ctx, func() {
				sim.AsyncFunc(Segment{
					Await: func() *Promise { return sim.Rejected("first") },
					Catch: func(any) { panic("second") },
				}).Catch(func(r any) any { reason = r; return nil })
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(reason).To(Equal("second"))
		})
	})

	Context("All", func() {
		It("should collect values in order", func() {
			var got any
			log, err := sim.Run(ctx, func() {
				a, _ := sim.Delay(30, "a")
				b, _ := sim.Delay(10, "b")
				sim.All(a, b, sim.Resolved("c")).Then(func(v any) any {
					got = v
					sim.Log("all done")
					return nil
				})
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(log).To(Equal(ExecutionLog{"all done"}))
			Expect(got).To(Equal([]any{"a", "b", "c"}))
			Expect(sim.Now()).To(Equal(VTime(30)))
		})

		It("should reject with the first rejection", func() {
			var reason any
			_, err := sim.Run(ctx, func() {
				a, _ := sim.Delay(30, "a")
				sim.All(a, sim.Rejected("bad")).Catch(func(r any) any {
					reason = r
					return nil
				})
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(reason).To(Equal("bad"))
		})

		It("should fulfil immediately without promises", func() {
			p := sim.All()
			Expect(p.State()).To(Equal(PromiseFulfilled))
			Expect(p.Value()).To(BeEmpty())
		})
	})

	It("should reject invalid delays", func() {
		p, err := sim.Delay(-5, nil)
		Expect(p).To(BeNil())
		Expect(err).To(MatchError(ErrNegativeDelay))
	})
})
