package health_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/aifusion/gateway/internal/health"
	"github.com/aifusion/gateway/internal/registry"
)

// descriptorFor points a descriptor at an httptest server.
func descriptorFor(name string, server *httptest.Server) *registry.Descriptor {
	u, err := url.Parse(server.URL)
	Expect(err).NotTo(HaveOccurred())

	port, err := strconv.Atoi(u.Port())
	Expect(err).NotTo(HaveOccurred())

	return &registry.Descriptor{
		Name:     name,
		Host:     u.Hostname(),
		Port:     port,
		Protocol: registry.ProtocolHTTP,
	}
}

var _ = Describe("ServiceProber", func() {
	var prober *health.ServiceProber

	BeforeEach(func() {
		prober = health.NewServiceProber(time.Second)
	})

	AfterEach(func() {
		prober.Close()
	})

	Context("HTTP probes", func() {
		It("should succeed when the health endpoint returns 200", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/health"))
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			err := prober.Probe(context.Background(), descriptorFor("alpha", server))
			Expect(err).NotTo(HaveOccurred())
		})

		It("should fail on a non-2xx status", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer server.Close()

			err := prober.Probe(context.Background(), descriptorFor("alpha", server))
			Expect(err).To(HaveOccurred())
		})

		It("should fail when the service is unreachable", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			d := descriptorFor("alpha", server)
			server.Close()

			err := prober.Probe(context.Background(), d)
			Expect(err).To(HaveOccurred())
		})

		It("should respect the probe context deadline", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
			}))
			defer server.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()

			err := prober.Probe(ctx, descriptorFor("alpha", server))
			Expect(err).To(HaveOccurred())
		})
	})

	Context("RPC probes", func() {
		It("should fail for a descriptor without an rpc endpoint", func() {
			d := &registry.Descriptor{Name: "alpha", Host: "localhost", Port: 8001, Protocol: registry.ProtocolRPC}

			err := prober.Probe(context.Background(), d)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("no rpc endpoint"))
		})

		It("should fail against an address that refuses connections", func() {
			d := &registry.Descriptor{Name: "alpha", Host: "localhost", Port: 8001, RPCPort: 1, Protocol: registry.ProtocolRPC}

			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			err := prober.Probe(ctx, d)
			Expect(err).To(HaveOccurred())
		})
	})
})
