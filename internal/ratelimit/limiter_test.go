package ratelimit_test

import (
	"fmt"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/launchkit/edge-middleware/internal/ratelimit"
)

func TestRateLimit(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "RateLimit Suite")
}

var _ = Describe("Limiter", func() {
	var (
		limiter *ratelimit.Limiter
		current time.Time
	)

	clock := func() time.Time { return current }

	BeforeEach(func() {
		current = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		limiter = ratelimit.NewLimiterWithClock(10*time.Minute, 8, 500, clock)
	})

	Describe("Admit", func() {
		It("should allow the first request from a key", func() {
			d := limiter.Admit("203.0.113.7")
			Expect(d.Allowed).To(BeTrue())
		})

		It("should allow exactly maxRequests within a window", func() {
			for i := 0; i < 8; i++ {
				Expect(limiter.Admit("203.0.113.7").Allowed).To(BeTrue())
			}
			Expect(limiter.Admit("203.0.113.7").Allowed).To(BeFalse())
		})

		It("should deny with a positive retry-after hint", func() {
			for i := 0; i < 8; i++ {
				limiter.Admit("203.0.113.7")
			}
			current = current.Add(4 * time.Minute)

			d := limiter.Admit("203.0.113.7")
			Expect(d.Allowed).To(BeFalse())
			Expect(d.RetryAfterSeconds).To(Equal(360))
		})

		It("should round the retry-after hint up to whole seconds", func() {
			for i := 0; i < 8; i++ {
				limiter.Admit("203.0.113.7")
			}
			current = current.Add(10*time.Minute - 500*time.Millisecond)

			d := limiter.Admit("203.0.113.7")
			Expect(d.Allowed).To(BeFalse())
			Expect(d.RetryAfterSeconds).To(Equal(1))
		})

		It("should start a fresh window once the old one elapses", func() {
			for i := 0; i < 9; i++ {
				limiter.Admit("203.0.113.7")
			}
			current = current.Add(10*time.Minute + time.Second)

			Expect(limiter.Admit("203.0.113.7").Allowed).To(BeTrue())
		})

		It("should track keys independently", func() {
			for i := 0; i < 8; i++ {
				limiter.Admit("203.0.113.7")
			}
			Expect(limiter.Admit("203.0.113.7").Allowed).To(BeFalse())
			Expect(limiter.Admit("198.51.100.23").Allowed).To(BeTrue())
		})
	})

	Describe("sweeping", func() {
		It("should drop expired records once past the key cap", func() {
			limiter = ratelimit.NewLimiterWithClock(10*time.Minute, 8, 5, clock)

			for i := 0; i < 6; i++ {
				limiter.Admit(fmt.Sprintf("10.0.0.%d", i))
			}
			Expect(limiter.Keys()).To(Equal(6))

			current = current.Add(11 * time.Minute)
			limiter.Admit("10.0.1.1")

			// The six expired records are gone; the new one remains
			Expect(limiter.Keys()).To(Equal(1))
		})

		It("should keep unexpired records during a sweep", func() {
			limiter = ratelimit.NewLimiterWithClock(10*time.Minute, 8, 5, clock)

			for i := 0; i < 6; i++ {
				limiter.Admit(fmt.Sprintf("10.0.0.%d", i))
			}
			current = current.Add(time.Minute)
			limiter.Admit("10.0.1.1")

			Expect(limiter.Keys()).To(Equal(7))
		})
	})
})
