// Upstream is a mock backend service used for exercising the gateway
// locally. It answers the gateway's health probe, echoes any other request
// back as JSON, and can be made flaky or slow to trip the circuit breaker.
//
// Usage:
//
//	go run upstream.go -port 8001 -name ai-kernel
//	go run upstream.go -port 8005 -name analytics -fail-rate 0.5
//	go run upstream.go -port 8003 -name cv-engine -latency 2s
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"
)

func main() {
	port := flag.Int("port", 8001, "port to listen on")
	name := flag.String("name", "upstream", "service name reported in responses")
	failRate := flag.Float64("fail-rate", 0, "fraction of requests answered with 500 (0..1)")
	latency := flag.Duration("latency", 0, "artificial delay before answering")
	flag.Parse()

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if *failRate > 0 && rand.Float64() < *failRate {
			http.Error(w, "unhealthy", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","service":%q}`, *name)
	})

	// echo everything else so the gateway's forwarding can be inspected
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if *latency > 0 {
			time.Sleep(*latency)
		}

		if *failRate > 0 && rand.Float64() < *failRate {
			http.Error(w, "simulated failure", http.StatusInternalServerError)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		log.Printf("request: method=%s path=%s from=%s", r.Method, r.URL.Path, r.RemoteAddr)

		headers := make(map[string]string, len(r.Header))
		for k := range r.Header {
			headers[k] = r.Header.Get(k)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service": *name,
			"method":  r.Method,
			"path":    r.URL.Path,
			"query":   r.URL.RawQuery,
			"headers": headers,
			"body":    string(body),
		})
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("starting %s on %s (fail-rate=%.2f latency=%s)", *name, addr, *failRate, *latency)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
