package circuitbreaker_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/launchkit/edge-middleware/internal/circuitbreaker"
)

var _ = Describe("Registry", func() {
	var registry *circuitbreaker.Registry

	BeforeEach(func() {
		registry = circuitbreaker.NewRegistry(3, 30*time.Second)
	})

	Describe("GetBreaker", func() {
		It("should create a breaker on first use", func() {
			cb := registry.GetBreaker("mailerlite")
			Expect(cb).NotTo(BeNil())
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should return the same breaker for the same name", func() {
			cb1 := registry.GetBreaker("stripe")
			cb2 := registry.GetBreaker("stripe")
			Expect(cb1).To(BeIdenticalTo(cb2))
		})

		It("should isolate breakers per upstream", func() {
			crm := registry.GetBreaker("crm")
			stripe := registry.GetBreaker("stripe")

			for i := 0; i < 3; i++ {
				crm.Do(func() error { return errors.New("down") })
			}

			Expect(crm.State()).To(Equal(circuitbreaker.StateOpen))
			Expect(stripe.State()).To(Equal(circuitbreaker.StateClosed))
		})
	})

	Describe("Stats", func() {
		It("should snapshot every registered breaker", func() {
			registry.GetBreaker("crm").Do(func() error { return nil })
			registry.GetBreaker("stripe")

			stats := registry.Stats()
			Expect(stats).To(HaveLen(2))
			Expect(stats["crm"].TotalCalls).To(Equal(int64(1)))
			Expect(stats["stripe"].TotalCalls).To(Equal(int64(0)))
		})
	})

	Describe("Reset", func() {
		It("should discard all breakers", func() {
			registry.GetBreaker("crm")
			registry.Reset()
			Expect(registry.Stats()).To(BeEmpty())
		})
	})
})
