package simulation

import (
	"context"
	"errors"
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Recurring timers", func() {
	var (
		sim     *Simulator
		ctx     context.Context
		firedAt []VTime
	)

	BeforeEach(func() {
		sim = NewSimulator()
		ctx = context.Background()
		firedAt = nil
	})

	record := func() { firedAt = append(firedAt, sim.Now()) }

	It("should fire an interval the requested number of times", func() {
		_, err := sim.Run(ctx, func() {
			_, err := sim.ScheduleInterval(record, 10, 3)
			Expect(err).NotTo(HaveOccurred())
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(firedAt).To(Equal([]VTime{10, 20, 30}))
	})

	It("should interleave with one-shot timers", func() {
		log, err := sim.Run(ctx, func() {
			_, _ = sim.ScheduleInterval(func() { sim.Logf("tick %d", sim.Now()) }, 10, 2)
			_, _ = sim.ScheduleMacrotask(func() { sim.Log("timeout 15") }, 15)
			_, _ = sim.ScheduleMacrotask(func() { sim.Log("timeout 10") }, 10)
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(log).To(Equal(ExecutionLog{"tick 10", "timeout 10", "timeout 15", "tick 20"}))
	})

	It("should stop after being cancelled from its own callback", func() {
		var h TaskHandle
		count := 0
		cancelled := false

		_, err := sim.Run(ctx, func() {
			h, _ = sim.ScheduleInterval(func() {
				count++
				if count == 2 {
					cancelled = sim.Cancel(h)
				}
			}, 5, 0)
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(2))
		Expect(cancelled).To(BeTrue())
		Expect(sim.Cancel(h)).To(BeFalse())
	})

	It("should remove the pending occurrence when cancelled", func() {
		_, err := sim.Run(ctx, func() {
			h, _ := sim.ScheduleInterval(record, 5, 0)
			_, _ = sim.ScheduleMacrotask(func() { sim.Cancel(h) }, 12)
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(firedAt).To(Equal([]VTime{5, 10}))
		micro, macro := sim.Pending()
		Expect(micro).To(BeZero())
		Expect(macro).To(BeZero())
	})

	It("should be bounded by the time limit when unbounded", func() {
		sim = NewSimulator(WithTimeLimit(25))

		_, err := sim.Run(ctx, func() {
			_, _ = sim.ScheduleInterval(record, 10, 0)
		})

		Expect(err).To(MatchError(ErrTimeLimit))
		Expect(firedAt).To(Equal([]VTime{10, 20}))
	})

	It("should follow a cron schedule on the virtual clock", func() {
		_, err := sim.Run(ctx, func() {
			_, err := sim.ScheduleCron(record, "*/5 * * * *", 3)
			Expect(err).NotTo(HaveOccurred())
		})

		minute := VTime(time.Minute / time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		Expect(firedAt).To(Equal([]VTime{5 * minute, 10 * minute, 15 * minute}))
	})

	It("should accept cron descriptors", func() {
		_, err := sim.Run(ctx, func() {
			_, err := sim.ScheduleCron(record, "@every 90s", 2, WithName("poll"))
			Expect(err).NotTo(HaveOccurred())
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(firedAt).To(Equal([]VTime{90_000, 180_000}))
	})

	It("should not arm a timer past the end of the wall clock", func() {
		var armErr error
		_, err := sim.Run(ctx, func() {
			_, _ = sim.ScheduleMacrotask(func() {
				_, armErr = sim.ScheduleInterval(record, 10, 0)
			}, maxWallTime-5)
		})

		Expect(err).NotTo(HaveOccurred())
		var schedErr *SchedulingError
		Expect(errors.As(armErr, &schedErr)).To(BeTrue())
		Expect(firedAt).To(BeEmpty())
	})

	It("should stop re-arming at the end of the wall clock", func() {
		_, err := sim.Run(ctx, func() {
			_, _ = sim.ScheduleMacrotask(func() {
				_, _ = sim.ScheduleInterval(record, 10, 0)
			}, maxWallTime-25)
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(firedAt).To(Equal([]VTime{maxWallTime - 15, maxWallTime - 5}))
	})

	DescribeTable("invalid recurring timers",
		func(schedule func() error, target error) {
			err := schedule()

			var schedErr *SchedulingError
			Expect(errors.As(err, &schedErr)).To(BeTrue())
			if target != nil {
				Expect(errors.Is(err, target)).To(BeTrue())
			}

			_, macro := sim.Pending()
			Expect(macro).To(BeZero())
		},
		Entry("zero interval", func() error {
			_, err := sim.ScheduleInterval(func() {}, 0, 1)
			return err
		}, ErrInvalidInterval),
		Entry("interval longer than the wall clock", func() error {
			_, err := sim.ScheduleInterval(func() {}, math.MaxInt64, 1)
			return err
		}, ErrInvalidInterval),
		Entry("nil interval body", func() error {
			_, err := sim.ScheduleInterval(nil, 10, 1)
			return err
		}, ErrNilFunc),
		Entry("negative times", func() error {
			_, err := sim.ScheduleInterval(func() {}, 10, -1)
			return err
		}, nil),
		Entry("bad cron spec", func() error {
			_, err := sim.ScheduleCron(func() {}, "not a schedule", 1)
			return err
		}, nil),
	)
})
