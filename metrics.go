package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/VictoriaMetrics/metrics"
	"github.com/gorilla/mux"
)

// StatsdSink pushes counters and rates to a statsd agent.
type StatsdSink struct {
	client *statsd.Client
	tags   []string
}

func NewStatsdSink(addr, target string) (*StatsdSink, error) {
	client, err := statsd.New(addr, statsd.WithNamespace("dnsblast."))
	if err != nil {
		return nil, fmt.Errorf("creating statsd client for %s: %w", addr, err)
	}
	return &StatsdSink{client: client, tags: []string{"target:" + target}}, nil
}

func (s *StatsdSink) Update(st Stats) {
	_ = s.client.Gauge("sent", float64(st.Sent), s.tags, 1)
	_ = s.client.Gauge("received", float64(st.Received), s.tags, 1)
	_ = s.client.Gauge("reply_rate", float64(st.ReplyRate()), s.tags, 1)
	_ = s.client.Gauge("ratio", st.Ratio(), s.tags, 1)
}

func (s *StatsdSink) Final(st Stats) {
	s.Update(st)
	_ = s.client.Close()
}

// MetricsSink mirrors the session counters into a VictoriaMetrics set that
// is served in Prometheus text format.
type MetricsSink struct {
	set       *metrics.Set
	sent      *metrics.Counter
	received  *metrics.Counter
	replyRate *metrics.Gauge
	ratio     *metrics.Gauge

	mu   sync.Mutex
	last Stats
}

// NewMetricsSink registers the run's metrics. sending is sampled on scrape.
func NewMetricsSink(target string, sending func() bool) *MetricsSink {
	set := metrics.NewSet()
	label := fmt.Sprintf(`{target=%q}`, target)

	m := &MetricsSink{
		set:      set,
		sent:     set.NewCounter("dnsblast_queries_sent_total" + label),
		received: set.NewCounter("dnsblast_replies_received_total" + label),
	}
	m.replyRate = set.NewGauge("dnsblast_reply_rate_pps"+label, func() float64 {
		return float64(m.snapshot().ReplyRate())
	})
	m.ratio = set.NewGauge("dnsblast_reply_ratio_percent"+label, func() float64 {
		return m.snapshot().Ratio()
	})
	set.NewGauge("dnsblast_sending"+label, func() float64 {
		if sending != nil && sending() {
			return 1
		}
		return 0
	})
	return m
}

func (m *MetricsSink) Update(st Stats) {
	m.sent.Set(st.Sent)
	m.received.Set(st.Received)
	m.mu.Lock()
	m.last = st
	m.mu.Unlock()
}

func (m *MetricsSink) snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *MetricsSink) Final(st Stats) {
	m.Update(st)
}

// Handler returns a router exposing /metrics.
func (m *MetricsSink) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m.set.WritePrometheus(w)
	}).Methods(http.MethodGet)
	return r
}

// Serve listens on addr until ctx is done.
func (m *MetricsSink) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapErrorWithContext("metrics listen", err, addr)
	}
	srv := &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	appLogger.Info("Serving metrics on http://%s/metrics", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving metrics: %w", err)
	}
	return nil
}
