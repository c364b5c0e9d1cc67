package metrics_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/aifusion/gateway/internal/metrics"
)

var _ = Describe("Metrics", func() {
	var m *metrics.Metrics

	BeforeEach(func() {
		m = metrics.NewMetrics()
	})

	Describe("NewMetrics", func() {
		It("should create a new metrics instance", func() {
			Expect(m).NotTo(BeNil())
		})
	})

	Describe("IncrementRequests", func() {
		It("should increment request count for a service", func() {
			m.IncrementRequests("identity")
			m.IncrementRequests("identity")

			snap := m.Snapshot()
			Expect(snap.TotalRequests).To(Equal(int64(2)))
			Expect(snap.Services["identity"].Requests).To(Equal(int64(2)))
		})

		It("should track multiple services separately", func() {
			m.IncrementRequests("identity")
			m.IncrementRequests("ai-kernel")
			m.IncrementRequests("identity")

			snap := m.Snapshot()
			Expect(snap.TotalRequests).To(Equal(int64(3)))
			Expect(snap.Services["identity"].Requests).To(Equal(int64(2)))
			Expect(snap.Services["ai-kernel"].Requests).To(Equal(int64(1)))
		})
	})

	Describe("RecordResolution", func() {
		It("should track route resolutions", func() {
			m.RecordResolution("identity")
			m.RecordResolution("identity")
			m.RecordResolution("ai-kernel")

			snap := m.Snapshot()
			Expect(snap.Services["identity"].Resolutions).To(Equal(int64(2)))
			Expect(snap.Services["ai-kernel"].Resolutions).To(Equal(int64(1)))
		})
	})

	Describe("RecordResponse", func() {
		It("should record response time and status code", func() {
			m.RecordResponse("identity", 100*time.Millisecond, 200)
			m.RecordResponse("identity", 200*time.Millisecond, 200)

			snap := m.Snapshot()
			service := snap.Services["identity"]

			Expect(service.AvgResponse).To(Equal(150 * time.Millisecond))
			Expect(service.StatusCodes[200]).To(Equal(int64(2)))
		})

		It("should track different status codes", func() {
			m.RecordResponse("identity", 100*time.Millisecond, 200)
			m.RecordResponse("identity", 150*time.Millisecond, 201)
			m.RecordResponse("identity", 200*time.Millisecond, 500)

			snap := m.Snapshot()
			service := snap.Services["identity"]

			Expect(service.StatusCodes[200]).To(Equal(int64(1)))
			Expect(service.StatusCodes[201]).To(Equal(int64(1)))
			Expect(service.StatusCodes[500]).To(Equal(int64(1)))
		})

		It("should calculate percentiles correctly", func() {
			for i := 1; i <= 100; i++ {
				m.RecordResponse("identity", time.Duration(i)*time.Millisecond, 200)
			}

			snap := m.Snapshot()
			service := snap.Services["identity"]

			Expect(service.P50Response).To(BeNumerically("~", 50*time.Millisecond, 1*time.Millisecond))
			Expect(service.P95Response).To(BeNumerically("~", 95*time.Millisecond, 1*time.Millisecond))
			Expect(service.P99Response).To(BeNumerically("~", 99*time.Millisecond, 1*time.Millisecond))
		})

		It("should limit stored response times to 1000", func() {
			for i := 1; i <= 1500; i++ {
				m.RecordResponse("identity", time.Duration(i)*time.Millisecond, 200)
			}

			snap := m.Snapshot()
			service := snap.Services["identity"]

			Expect(service.AvgResponse).To(BeNumerically(">", 500*time.Millisecond))
		})
	})

	Describe("UpdateHealthPhase", func() {
		It("should record the health phase for a service", func() {
			m.UpdateHealthPhase("identity", "healthy")

			snap := m.Snapshot()
			Expect(snap.Services["identity"].HealthPhase).To(Equal("healthy"))
		})

		It("should track health phase changes", func() {
			m.UpdateHealthPhase("identity", "healthy")
			snap1 := m.Snapshot()
			Expect(snap1.Services["identity"].HealthPhase).To(Equal("healthy"))

			m.UpdateHealthPhase("identity", "unhealthy")
			snap2 := m.Snapshot()
			Expect(snap2.Services["identity"].HealthPhase).To(Equal("unhealthy"))
		})
	})

	Describe("UpdateCircuitPhase", func() {
		It("should record the circuit phase for a service", func() {
			m.UpdateCircuitPhase("cv-engine", "open")

			snap := m.Snapshot()
			Expect(snap.Services["cv-engine"].CircuitPhase).To(Equal("open"))
		})
	})

	Describe("Snapshot", func() {
		It("should include uptime", func() {
			time.Sleep(10 * time.Millisecond)

			snap := m.Snapshot()
			Expect(snap.Uptime).To(BeNumerically(">", 0))
		})

		It("should handle empty metrics", func() {
			snap := m.Snapshot()

			Expect(snap.TotalRequests).To(Equal(int64(0)))
			Expect(snap.Services).To(BeEmpty())
		})

		It("should return independent snapshots", func() {
			m.IncrementRequests("identity")

			snap1 := m.Snapshot()
			m.IncrementRequests("identity")
			snap2 := m.Snapshot()

			Expect(snap1.TotalRequests).To(Equal(int64(1)))
			Expect(snap2.TotalRequests).To(Equal(int64(2)))
		})
	})
})
