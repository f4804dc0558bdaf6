package simulation

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("timerQueue", func() {
	var queue *timerQueue

	BeforeEach(func() {
		queue = newTimerQueue()
	})

	It("should pop in time then sequence order", func() {
		numTasks := 200
		for i := 0; i < numTasks; i++ {
			queue.Push(&task{seq: uint64(i + 1), at: VTime(rand.Intn(20))})
		}

		prev := queue.Pop()
		for i := 1; i < numTasks; i++ {
			t := queue.Pop()
			if t.at == prev.at {
				Expect(t.seq).To(BeNumerically(">", prev.seq))
			} else {
				Expect(t.at).To(BeNumerically(">", prev.at))
			}
			prev = t
		}
		Expect(queue.Len()).To(BeZero())
	})

	It("should remove a queued task only once", func() {
		a := &task{seq: 1, at: 5}
		b := &task{seq: 2, at: 1}
		c := &task{seq: 3, at: 3}
		queue.Push(a)
		queue.Push(b)
		queue.Push(c)

		Expect(queue.Remove(c)).To(BeTrue())
		Expect(queue.Remove(c)).To(BeFalse())
		Expect(queue.Pop()).To(BeIdenticalTo(b))
		Expect(queue.Remove(b)).To(BeFalse())
		Expect(queue.Peek()).To(BeIdenticalTo(a))
		Expect(queue.Len()).To(Equal(1))
	})
})

var _ = Describe("microtaskQueue", func() {
	It("should be FIFO across growth and reuse", func() {
		var queue microtaskQueue
		for i := 0; i < 3; i++ {
			queue.Push(&task{seq: uint64(i)})
		}
		Expect(queue.Pop().seq).To(Equal(uint64(0)))

		queue.Push(&task{seq: 3})
		var order []uint64
		for queue.Len() > 0 {
			order = append(order, queue.Pop().seq)
		}

		Expect(order).To(Equal([]uint64{1, 2, 3}))

		queue.Push(&task{seq: 4})
		Expect(queue.Len()).To(Equal(1))
		Expect(queue.Pop().seq).To(Equal(uint64(4)))
	})
})
