package main

import (
	"context"
	"encoding/binary"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestBlaster(t *testing.T, s *Session, names NameSource, sink StatsSink) *Blaster {
	t.Helper()
	types, err := NewTypeSelector(DefaultTypeWeights, DefaultTypeScale, newTestRand(9))
	require.NoError(t, err)
	var reporter *Reporter
	if sink != nil {
		reporter = NewReporter(sink)
		s.reporter = reporter
	}
	return NewBlaster(s, names, types, reporter)
}

func TestBlasterRunCount(t *testing.T) {
	t.Parallel()

	s, conn, _ := newTestSession(t, SessionOptions{PPS: 1000})
	conn.repliesPerQuery = 1
	sink := &recordingSink{}
	b := newTestBlaster(t, s, fixedName("count.test"), sink)
	b.Count = 25

	require.NoError(t, b.Run(context.Background()))
	assert.Len(t, conn.sent, 25)
	assert.False(t, s.Sending())
	require.NotNil(t, sink.final)
	assert.Equal(t, uint64(25), sink.final.Sent)
	assert.Equal(t, uint64(25), sink.final.Received)
	assert.InDelta(t, 100.0, sink.final.Ratio(), 0.001)
}

func TestBlasterSkipsUnencodableNames(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("q", 300) + ".test"
	names := &listNames{rng: &scriptedRand{ints: []int{0, 1, 0, 1, 0, 1}}, names: []string{"ok.test", long}}
	s, conn, _ := newTestSession(t, SessionOptions{})
	conn.repliesPerQuery = 1
	b := newTestBlaster(t, s, names, nil)
	b.Count = 6

	require.NoError(t, b.Run(context.Background()))
	// Skipped names still count as attempts.
	assert.Len(t, conn.sent, 3)
	assert.Equal(t, int64(3), b.Errors().Total())
	assert.Contains(t, b.Errors().GetSummary(), "Label Too Long")

	for i, sp := range conn.sent {
		assert.Equal(t, uint16(i), binary.BigEndian.Uint16(sp.payload))
	}
}

func TestBlasterDrainTimeout(t *testing.T) {
	t.Parallel()

	s, conn, clock := newTestSession(t, SessionOptions{PPS: 1000, ReportInterval: 100 * time.Millisecond})
	b := newTestBlaster(t, s, fixedName("silent.test"), nil)
	b.Count = 3
	b.DrainTimeout = time.Second

	require.NoError(t, b.Run(context.Background()))
	assert.Len(t, conn.sent, 3)
	assert.Zero(t, s.Received())
	// Three sends take 3ms, the drain gives up after a second of silence.
	assert.Equal(t, 3*time.Millisecond+time.Second, clock.now)
}

func TestBlasterDrainEndsWhenRepliesExceedSent(t *testing.T) {
	t.Parallel()

	s, conn, _ := newTestSession(t, SessionOptions{PPS: 1000})
	conn.repliesPerQuery = 2
	sink := &recordingSink{}
	b := newTestBlaster(t, s, fixedName("dup.test"), sink)
	b.Count = 4

	require.NoError(t, b.Run(context.Background()))
	assert.Equal(t, uint64(8), s.Received())
	require.NotNil(t, sink.final)
	assert.InDelta(t, 200.0, sink.final.Ratio(), 0.001)
}

func TestBlasterStopsOnCancel(t *testing.T) {
	t.Parallel()

	s, conn, _ := newTestSession(t, SessionOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := newTestBlaster(t, s, fixedName("cancel.test"), nil)

	require.NoError(t, b.Run(ctx))
	assert.Empty(t, conn.sent)
	assert.False(t, s.Sending())
}

func TestBlasterReturnsFatalErrors(t *testing.T) {
	t.Parallel()

	s, conn, _ := newTestSession(t, SessionOptions{})
	conn.sendErrs = []error{unix.EAGAIN, unix.EPERM}
	sink := &recordingSink{}
	b := newTestBlaster(t, s, fixedName("denied.test"), sink)
	b.Count = 10

	err := b.Run(context.Background())
	assert.ErrorIs(t, err, unix.EPERM)
	assert.Empty(t, conn.sent)
	assert.NotNil(t, sink.final)
}

// echoServer answers every datagram with a copy of itself and keeps what
// it received.
type echoServer struct {
	conn *net.UDPConn

	mu       sync.Mutex
	received [][]byte
}

func startEchoServer(t *testing.T) *echoServer {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	srv := &echoServer{conn: conn}
	t.Cleanup(func() { _ = conn.Close() })

	go func() {
		buf := make([]byte, maxUDPPayload)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			srv.mu.Lock()
			srv.received = append(srv.received, append([]byte(nil), buf[:n]...))
			srv.mu.Unlock()
			_, _ = conn.WriteToUDP(buf[:n], from)
		}
	}()
	return srv
}

func (e *echoServer) packets() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]byte(nil), e.received...)
}

func TestBlasterLoopback(t *testing.T) {
	srv := startEchoServer(t)
	dst := srv.conn.LocalAddr().(*net.UDPAddr)

	conn, to, err := openSocket(dst, SocketOptions{BufferSize: 1 << 20})
	require.NoError(t, err)
	defer conn.Close()

	sink := &recordingSink{}
	s := NewSession(conn, to, newTestRand(5), SessionOptions{
		PPS:            1000,
		ReportInterval: 50 * time.Millisecond,
	})
	names := newRandomNames(newTestRand(6), "com", defaultRepeatChance)
	b := newTestBlaster(t, s, names, sink)
	b.Count = 5
	b.DrainTimeout = 5 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, b.Run(ctx))

	assert.Equal(t, uint64(5), s.Sent())
	assert.Equal(t, uint64(5), s.Received())
	require.NotNil(t, sink.final)
	assert.Equal(t, uint64(5), sink.final.Received)

	pkts := srv.packets()
	require.Len(t, pkts, 5)
	for i, p := range pkts {
		var msg dns.Msg
		require.NoError(t, msg.Unpack(p), "packet %d", i)
		assert.Equal(t, uint16(i), msg.Id)
		require.Len(t, msg.Question, 1)
		assert.True(t, strings.HasSuffix(msg.Question[0].Name, ".com."))
		assert.Len(t, msg.Question[0].Name, len("abcd.com."))

		// The question name ends in the root label.
		nameEnd := len(p) - 4
		assert.Equal(t, byte(0), p[nameEnd-1])
	}
}
