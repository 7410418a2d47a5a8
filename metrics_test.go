package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSinkHandler(t *testing.T) {
	t.Parallel()

	var sending atomic.Bool
	sending.Store(true)
	m := NewMetricsSink("192.0.2.1:53", sending.Load)
	m.Update(Stats{Sent: 400, Received: 100, Elapsed: 2 * time.Second, PPS: 1000})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	body := scrape(t, srv.URL+"/metrics")
	assert.Contains(t, body, `dnsblast_queries_sent_total{target="192.0.2.1:53"} 400`)
	assert.Contains(t, body, `dnsblast_replies_received_total{target="192.0.2.1:53"} 100`)
	assert.Contains(t, body, `dnsblast_reply_rate_pps{target="192.0.2.1:53"} 50`)
	assert.Contains(t, body, `dnsblast_reply_ratio_percent{target="192.0.2.1:53"} 25`)
	assert.Contains(t, body, `dnsblast_sending{target="192.0.2.1:53"} 1`)

	sending.Store(false)
	m.Final(Stats{Sent: 500, Received: 500, Elapsed: 2 * time.Second})
	body = scrape(t, srv.URL+"/metrics")
	assert.Contains(t, body, `dnsblast_queries_sent_total{target="192.0.2.1:53"} 500`)
	assert.Contains(t, body, `dnsblast_reply_ratio_percent{target="192.0.2.1:53"} 100`)
	assert.Contains(t, body, `dnsblast_sending{target="192.0.2.1:53"} 0`)

	resp, err := http.Post(srv.URL+"/metrics", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func scrape(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestMetricsSinkServe(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	m := NewMetricsSink("t", nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}

func TestStatsdSink(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	sink, err := NewStatsdSink(pc.LocalAddr().String(), "192.0.2.1:53")
	require.NoError(t, err)
	sink.Final(Stats{Sent: 10, Received: 5, Elapsed: time.Second})

	require.NoError(t, pc.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got strings.Builder
	buf := make([]byte, 65535)
	for !strings.Contains(got.String(), "dnsblast.ratio") {
		n, _, err := pc.ReadFrom(buf)
		require.NoError(t, err)
		got.Write(buf[:n])
		got.WriteByte('\n')
	}
	out := got.String()
	assert.Contains(t, out, "dnsblast.sent:10|g|#target:192.0.2.1:53")
	assert.Contains(t, out, "dnsblast.received:5|g|#target:192.0.2.1:53")
	assert.Contains(t, out, "dnsblast.ratio:50|g|#target:192.0.2.1:53")
}
