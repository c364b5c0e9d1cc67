package health_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/aifusion/gateway/internal/health"
	"github.com/aifusion/gateway/internal/registry"
)

// stubProber returns a scripted result per service and counts probes.
type stubProber struct {
	mutex sync.Mutex
	fail  map[string]error
	calls map[string]int
}

func newStubProber() *stubProber {
	return &stubProber{
		fail:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (s *stubProber) Probe(_ context.Context, d *registry.Descriptor) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.calls[d.Name]++
	return s.fail[d.Name]
}

func (s *stubProber) setFailing(service string, failing bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if failing {
		s.fail[service] = errors.New("probe failed")
	} else {
		delete(s.fail, service)
	}
}

func (s *stubProber) probes(service string) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.calls[service]
}

var _ = Describe("Monitor", func() {
	var (
		log     *slog.Logger
		prober  *stubProber
		monitor *health.Monitor
		alpha   *registry.Descriptor
		beta    *registry.Descriptor
	)

	cfg := health.Config{
		Interval:           10 * time.Millisecond,
		ProbeTimeout:       50 * time.Millisecond,
		DegradedThreshold:  2,
		UnhealthyThreshold: 5,
	}

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, nil))
		prober = newStubProber()

		alpha = &registry.Descriptor{Name: "alpha", Host: "localhost", Port: 8001, Required: true}
		beta = &registry.Descriptor{Name: "beta", Host: "localhost", Port: 8002}

		monitor = health.NewMonitor([]*registry.Descriptor{alpha, beta}, prober, cfg, nil, log)
	})

	Describe("state machine", func() {
		It("should start every service in the unknown state", func() {
			rec, err := monitor.Snapshot("alpha")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.State).To(Equal(health.StateUnknown))
			Expect(rec.LastChecked.IsZero()).To(BeTrue())
		})

		It("should become healthy on the first success", func() {
			monitor.ReportOutcome("alpha", true, 5*time.Millisecond)

			rec, _ := monitor.Snapshot("alpha")
			Expect(rec.State).To(Equal(health.StateHealthy))
			Expect(rec.ConsecutiveSuccesses).To(Equal(1))
			Expect(rec.ConsecutiveFailures).To(BeZero())
			Expect(rec.LastLatency).To(Equal(5 * time.Millisecond))
		})

		It("should stay unknown below the degraded threshold", func() {
			monitor.ReportOutcome("alpha", false, 0)

			rec, _ := monitor.Snapshot("alpha")
			Expect(rec.State).To(Equal(health.StateUnknown))
			Expect(rec.ConsecutiveFailures).To(Equal(1))
		})

		It("should tolerate a single blip while healthy", func() {
			monitor.ReportOutcome("alpha", true, 0)
			monitor.ReportOutcome("alpha", false, 0)

			rec, _ := monitor.Snapshot("alpha")
			Expect(rec.State).To(Equal(health.StateHealthy))
			Expect(rec.ConsecutiveFailures).To(Equal(1))
			Expect(rec.ConsecutiveSuccesses).To(BeZero())
		})

		It("should degrade after the threshold of consecutive failures", func() {
			monitor.ReportOutcome("alpha", true, 0)
			monitor.ReportOutcome("alpha", false, 0)
			monitor.ReportOutcome("alpha", false, 0)

			rec, _ := monitor.Snapshot("alpha")
			Expect(rec.State).To(Equal(health.StateDegraded))
			Expect(rec.ConsecutiveFailures).To(Equal(2))
		})

		It("should turn unhealthy once failures keep accumulating", func() {
			monitor.ReportOutcome("alpha", true, 0)
			for i := 0; i < 5; i++ {
				monitor.ReportOutcome("alpha", false, 0)
			}

			rec, _ := monitor.Snapshot("alpha")
			Expect(rec.State).To(Equal(health.StateUnhealthy))
			Expect(rec.ConsecutiveFailures).To(Equal(5))
		})

		It("should recover straight to healthy on any success", func() {
			for i := 0; i < 5; i++ {
				monitor.ReportOutcome("alpha", false, 0)
			}
			rec, _ := monitor.Snapshot("alpha")
			Expect(rec.State).To(Equal(health.StateUnhealthy))

			monitor.ReportOutcome("alpha", true, 0)

			rec, _ = monitor.Snapshot("alpha")
			Expect(rec.State).To(Equal(health.StateHealthy))
			Expect(rec.ConsecutiveFailures).To(BeZero())
			Expect(rec.ConsecutiveSuccesses).To(Equal(1))
		})

		It("should never decrease the failure streak without a success", func() {
			last := 0
			for i := 0; i < 8; i++ {
				monitor.ReportOutcome("alpha", false, 0)
				rec, _ := monitor.Snapshot("alpha")
				Expect(rec.ConsecutiveFailures).To(Equal(last + 1))
				last = rec.ConsecutiveFailures
			}
		})

		It("should keep per-service records independent", func() {
			for i := 0; i < 5; i++ {
				monitor.ReportOutcome("beta", false, 0)
			}

			alphaRec, _ := monitor.Snapshot("alpha")
			betaRec, _ := monitor.Snapshot("beta")
			Expect(alphaRec.State).To(Equal(health.StateUnknown))
			Expect(betaRec.State).To(Equal(health.StateUnhealthy))
		})

		It("should ignore outcomes for services outside the catalog", func() {
			monitor.ReportOutcome("ghost", false, 0)

			_, err := monitor.Snapshot("ghost")
			Expect(err).To(MatchError(registry.ErrUnknownService))
		})
	})

	Describe("active probing", func() {
		It("should drive records from scheduled probes", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			monitor.Start(ctx)

			Eventually(func() health.State {
				rec, _ := monitor.Snapshot("alpha")
				return rec.State
			}, time.Second, 5*time.Millisecond).Should(Equal(health.StateHealthy))
		})

		It("should mark a failing service degraded, then unhealthy", func() {
			prober.setFailing("beta", true)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			monitor.Start(ctx)

			Eventually(func() health.State {
				rec, _ := monitor.Snapshot("beta")
				return rec.State
			}, time.Second, 5*time.Millisecond).Should(Equal(health.StateUnhealthy))
		})

		It("should stop probing when the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			monitor.Start(ctx)

			Eventually(func() int {
				return prober.probes("alpha")
			}, time.Second, 5*time.Millisecond).Should(BeNumerically(">", 0))

			cancel()
			time.Sleep(30 * time.Millisecond)
			settled := prober.probes("alpha")
			time.Sleep(50 * time.Millisecond)
			Expect(prober.probes("alpha")).To(Equal(settled))
		})
	})

	Describe("ForceCheck", func() {
		It("should run one immediate probe and return the record", func() {
			rec, err := monitor.ForceCheck(context.Background(), "alpha")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.State).To(Equal(health.StateHealthy))
			Expect(prober.probes("alpha")).To(Equal(1))
		})

		It("should fold a failed probe into the record", func() {
			prober.setFailing("alpha", true)

			rec, err := monitor.ForceCheck(context.Background(), "alpha")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.ConsecutiveFailures).To(Equal(1))
		})

		It("should reject unknown services", func() {
			_, err := monitor.ForceCheck(context.Background(), "ghost")
			Expect(err).To(MatchError(registry.ErrUnknownService))
		})
	})

	Describe("Ready", func() {
		It("should not be ready while a required service is still unknown", func() {
			Expect(monitor.Ready()).To(BeFalse())
		})

		It("should be ready when required services are healthy", func() {
			monitor.ReportOutcome("alpha", true, 0)
			Expect(monitor.Ready()).To(BeTrue())
		})

		It("should stay ready while a required service is merely degraded", func() {
			monitor.ReportOutcome("alpha", true, 0)
			monitor.ReportOutcome("alpha", false, 0)
			monitor.ReportOutcome("alpha", false, 0)

			rec, _ := monitor.Snapshot("alpha")
			Expect(rec.State).To(Equal(health.StateDegraded))
			Expect(monitor.Ready()).To(BeTrue())
		})

		It("should ignore optional services entirely", func() {
			monitor.ReportOutcome("alpha", true, 0)
			for i := 0; i < 5; i++ {
				monitor.ReportOutcome("beta", false, 0)
			}

			rec, _ := monitor.Snapshot("beta")
			Expect(rec.State).To(Equal(health.StateUnhealthy))
			Expect(monitor.Ready()).To(BeTrue())
		})

		It("should fail once the same state belongs to a required service", func() {
			betaRequired := &registry.Descriptor{Name: "beta", Host: "localhost", Port: 8002, Required: true}
			strict := health.NewMonitor([]*registry.Descriptor{alpha, betaRequired}, prober, cfg, nil, log)

			strict.ReportOutcome("alpha", true, 0)
			strict.ReportOutcome("beta", true, 0)
			for i := 0; i < 5; i++ {
				strict.ReportOutcome("beta", false, 0)
			}

			Expect(strict.Ready()).To(BeFalse())
		})
	})

	Describe("Snapshots", func() {
		It("should return an independent copy per service", func() {
			monitor.ReportOutcome("alpha", true, 0)

			snaps := monitor.Snapshots()
			Expect(snaps).To(HaveLen(2))
			Expect(snaps["alpha"].State).To(Equal(health.StateHealthy))
			Expect(snaps["beta"].State).To(Equal(health.StateUnknown))
		})
	})
})
