// Package telemetry provides observability for the generation service using
// only standard library constructs: counters, gauges, histograms, an HTTP
// metrics middleware, and a Prometheus text exposition endpoint. No
// OpenTelemetry SDK or prometheus client import.
package telemetry

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Histogram
// ---------------------------------------------------------------------------

// histogram is a thread-safe histogram with configurable bucket boundaries.
// Bucket counts are non-cumulative in storage; cumulative counts are
// computed at export time.
type histogram struct {
	boundaries   []float64
	bucketCounts []int64
	count        int64
	sum          uint64 // math.Float64bits for atomic add
	mu           sync.Mutex
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{
		boundaries:   boundaries,
		bucketCounts: make([]int64, len(boundaries)),
	}
}

// Observe records a single value.
func (h *histogram) Observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	atomicAddFloat64(&h.sum, v)

	h.mu.Lock()
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			h.mu.Unlock()
			return
		}
	}
	// Value exceeds all boundaries, counted in +Inf at export.
	h.mu.Unlock()
}

// Count returns the total number of observations.
func (h *histogram) Count() int64 {
	return atomic.LoadInt64(&h.count)
}

// Sum returns the total sum of all observations.
func (h *histogram) Sum() float64 {
	return math.Float64frombits(atomic.LoadUint64(&h.sum))
}

// cumulativeBuckets returns cumulative bucket counts for Prometheus export.
func (h *histogram) cumulativeBuckets() []int64 {
	h.mu.Lock()
	raw := make([]int64, len(h.bucketCounts))
	copy(raw, h.bucketCounts)
	h.mu.Unlock()

	cum := make([]int64, len(raw))
	var running int64
	for i, c := range raw {
		running += c
		cum[i] = running
	}
	return cum
}

// atomicAddFloat64 performs an atomic add on a uint64 that stores a float64
// using CAS.
func atomicAddFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		newVal := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(addr, old, math.Float64bits(newVal)) {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Labeled counters
// ---------------------------------------------------------------------------

type counterStore struct {
	mu    sync.RWMutex
	items map[string]*int64
}

func newCounterStore() *counterStore {
	return &counterStore{items: make(map[string]*int64)}
}

func (s *counterStore) add(key string, delta int64) {
	s.mu.RLock()
	c, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		s.mu.Lock()
		c, ok = s.items[key]
		if !ok {
			c = new(int64)
			s.items[key] = c
		}
		s.mu.Unlock()
	}
	atomic.AddInt64(c, delta)
}

func (s *counterStore) snapshot() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.items))
	for k, c := range s.items {
		out[k] = atomic.LoadInt64(c)
	}
	return out
}

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

// Provider collects HTTP and generation metrics and renders them in
// Prometheus text exposition format. It implements generation.Metrics.
type Provider struct {
	serviceName string

	httpRequests *counterStore // key: method|route|status
	httpLatency  *histogram

	runsTotal      int64
	runDuration    *histogram
	documentsTotal *counterStore // key: outcome
	scores         *histogram
}

// NewProvider returns a metrics provider for the named service.
func NewProvider(serviceName string) *Provider {
	return &Provider{
		serviceName:  serviceName,
		httpRequests: newCounterStore(),
		httpLatency:  newHistogram([]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}),
		runDuration:  newHistogram([]float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}),
		documentsTotal: newCounterStore(),
		scores:       newHistogram([]float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 95, 100}),
	}
}

// ObserveRun implements generation.Metrics.
func (p *Provider) ObserveRun(d time.Duration, documents int) {
	atomic.AddInt64(&p.runsTotal, 1)
	p.runDuration.Observe(d.Seconds())
}

// ObserveDocument implements generation.Metrics.
func (p *Provider) ObserveDocument(outcome string, score int) {
	p.documentsTotal.add(outcome, 1)
	p.scores.Observe(float64(score))
}

// Middleware records request counts and latency per method/route/status.
func (p *Provider) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			key := c.Request().Method + "|" + c.Path() + "|" + strconv.Itoa(status)
			p.httpRequests.add(key, 1)
			p.httpLatency.Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the Prometheus text exposition endpoint.
func (p *Provider) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, "text/plain; version=0.0.4")
		c.Response().WriteHeader(http.StatusOK)
		w := c.Response()

		fmt.Fprintf(w, "# HELP http_requests_total Total HTTP requests.\n")
		fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
		for _, kv := range sortedCounters(p.httpRequests) {
			method, route, status := splitKey3(kv.key)
			fmt.Fprintf(w, "http_requests_total{service=%q,method=%q,route=%q,status=%q} %d\n",
				p.serviceName, method, route, status, kv.val)
		}
		writeHistogram(w, "http_request_duration_seconds", p.serviceName, nil, p.httpLatency)

		fmt.Fprintf(w, "# HELP generation_runs_total Total generation runs.\n")
		fmt.Fprintf(w, "# TYPE generation_runs_total counter\n")
		fmt.Fprintf(w, "generation_runs_total{service=%q} %d\n", p.serviceName, atomic.LoadInt64(&p.runsTotal))

		fmt.Fprintf(w, "# HELP generation_documents_total Generated documents by validation outcome.\n")
		fmt.Fprintf(w, "# TYPE generation_documents_total counter\n")
		for _, kv := range sortedCounters(p.documentsTotal) {
			fmt.Fprintf(w, "generation_documents_total{service=%q,outcome=%q} %d\n",
				p.serviceName, kv.key, kv.val)
		}

		writeHistogram(w, "generation_run_duration_seconds", p.serviceName, nil, p.runDuration)
		writeHistogram(w, "generation_validation_score", p.serviceName, nil, p.scores)
		return nil
	}
}

type counterKV struct {
	key string
	val int64
}

func sortedCounters(s *counterStore) []counterKV {
	snap := s.snapshot()
	out := make([]counterKV, 0, len(snap))
	for k, v := range snap {
		out = append(out, counterKV{k, v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

func splitKey3(key string) (a, b, c string) {
	first, rest := cut(key, '|')
	second, third := cut(rest, '|')
	return first, second, third
}

func cut(s string, sep byte) (string, string) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}

func writeHistogram(w http.ResponseWriter, name, service string, _ map[string]string, h *histogram) {
	fmt.Fprintf(w, "# TYPE %s histogram\n", name)
	cum := h.cumulativeBuckets()
	for i, b := range h.boundaries {
		fmt.Fprintf(w, "%s_bucket{service=%q,le=%q} %d\n", name, service, formatBound(b), cum[i])
	}
	fmt.Fprintf(w, "%s_bucket{service=%q,le=\"+Inf\"} %d\n", name, service, h.Count())
	fmt.Fprintf(w, "%s_sum{service=%q} %g\n", name, service, h.Sum())
	fmt.Fprintf(w, "%s_count{service=%q} %d\n", name, service, h.Count())
}

func formatBound(b float64) string {
	return strconv.FormatFloat(b, 'g', -1, 64)
}
