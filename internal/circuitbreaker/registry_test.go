package circuitbreaker_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/aifusion/gateway/internal/circuitbreaker"
)

var _ = Describe("Registry", func() {
	var registry *circuitbreaker.Registry

	policy := circuitbreaker.Policy{
		FailureThreshold: 2,
		Window:           time.Second,
		Cooldown:         50 * time.Millisecond,
	}

	BeforeEach(func() {
		registry = circuitbreaker.NewRegistry([]string{"ai-kernel", "identity", "cv-engine"}, policy)
	})

	Describe("NewRegistry", func() {
		It("should create a closed breaker per service", func() {
			for _, name := range []string{"ai-kernel", "identity", "cv-engine"} {
				cb, ok := registry.Get(name)
				Expect(ok).To(BeTrue())
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			}
		})
	})

	Describe("Get", func() {
		It("should return the same breaker for the same service", func() {
			cb1, _ := registry.Get("identity")
			cb2, _ := registry.Get("identity")
			Expect(cb1).To(BeIdenticalTo(cb2))
		})

		It("should return different breakers for different services", func() {
			cb1, _ := registry.Get("identity")
			cb2, _ := registry.Get("cv-engine")
			Expect(cb1).NotTo(BeIdenticalTo(cb2))
		})

		It("should report unknown services", func() {
			_, ok := registry.Get("plugin")
			Expect(ok).To(BeFalse())
		})

		It("should apply the registry policy to every breaker", func() {
			cb, _ := registry.Get("identity")

			cb.RecordFailure()
			cb.RecordFailure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))

			time.Sleep(60 * time.Millisecond)
			Expect(cb.MayCall()).To(Succeed())
			Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
		})
	})

	Describe("Snapshots", func() {
		It("should return the state of every breaker keyed by service", func() {
			cb, _ := registry.Get("cv-engine")
			cb.RecordFailure()
			cb.RecordFailure()

			snaps := registry.Snapshots()
			Expect(snaps).To(HaveLen(3))
			Expect(snaps["ai-kernel"].Phase).To(Equal("closed"))
			Expect(snaps["identity"].Phase).To(Equal("closed"))
			Expect(snaps["cv-engine"].Phase).To(Equal("open"))
		})

		It("should not disturb breaker state", func() {
			cb, _ := registry.Get("identity")
			cb.RecordFailure()

			_ = registry.Snapshots()

			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			snap := cb.Snapshot()
			Expect(snap.FailureCount).To(Equal(1))
		})
	})

	Describe("Isolation", func() {
		It("should keep failures on one service from affecting another", func() {
			bad, _ := registry.Get("ai-kernel")
			good, _ := registry.Get("identity")

			bad.RecordFailure()
			bad.RecordFailure()

			Expect(bad.State()).To(Equal(circuitbreaker.StateOpen))
			Expect(good.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(good.MayCall()).To(Succeed())
		})
	})
})
