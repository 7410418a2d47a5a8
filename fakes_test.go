package main

import (
	"time"

	"golang.org/x/exp/rand"
	"golang.org/x/sys/unix"
)

type fakeClock struct {
	now time.Duration
}

func (c *fakeClock) Now() time.Duration { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now += d }

type sentPacket struct {
	at      time.Duration
	payload []byte
}

// fakeConn is an in-memory Conn whose Wait advances a fakeClock instead of
// sleeping.
type fakeConn struct {
	clock *fakeClock

	sent    []sentPacket
	pending int
	// repliesPerQuery replies are queued for every accepted send.
	repliesPerQuery int

	sendErrs []error
	recvErrs []error
	waitErrs []error
	waits    []time.Duration
	closed   bool

	// waitErrDelay passes on the clock before each scripted wait error.
	waitErrDelay time.Duration
}

func newFakeConn(clock *fakeClock) *fakeConn {
	return &fakeConn{clock: clock}
}

func (c *fakeConn) SendTo(p []byte, _ unix.Sockaddr) error {
	if len(c.sendErrs) > 0 {
		err := c.sendErrs[0]
		c.sendErrs = c.sendErrs[1:]
		return err
	}
	c.sent = append(c.sent, sentPacket{at: c.clock.Now(), payload: append([]byte(nil), p...)})
	c.pending += c.repliesPerQuery
	return nil
}

func (c *fakeConn) Recv(p []byte) (int, error) {
	if len(c.recvErrs) > 0 {
		err := c.recvErrs[0]
		c.recvErrs = c.recvErrs[1:]
		return 0, err
	}
	if c.pending == 0 {
		return 0, unix.EAGAIN
	}
	c.pending--
	return 12, nil
}

func (c *fakeConn) Wait(timeout time.Duration) (bool, error) {
	c.waits = append(c.waits, timeout)
	if len(c.waitErrs) > 0 {
		err := c.waitErrs[0]
		c.waitErrs = c.waitErrs[1:]
		c.clock.Advance(c.waitErrDelay)
		return false, err
	}
	if c.pending > 0 {
		return true, nil
	}
	if timeout < 0 {
		panic("unbounded wait on an idle fake conn")
	}
	c.clock.Advance(timeout)
	return false, nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

var testDst = &unix.SockaddrInet4{Port: 53, Addr: [4]byte{127, 0, 0, 1}}

func newTestRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// scriptedRand returns queued values; it panics when a queue runs dry so a
// test notices unexpected draws.
type scriptedRand struct {
	uints  []uint64
	ints   []int
	floats []float64
}

func (r *scriptedRand) Uint64n(n uint64) uint64 {
	v := r.uints[0]
	r.uints = r.uints[1:]
	return v % n
}

func (r *scriptedRand) Intn(n int) int {
	v := r.ints[0]
	r.ints = r.ints[1:]
	return v % n
}

func (r *scriptedRand) Float64() float64 {
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

// recordingSink keeps every update it receives.
type recordingSink struct {
	updates []Stats
	final   *Stats
}

func (r *recordingSink) Update(st Stats) { r.updates = append(r.updates, st) }

func (r *recordingSink) Final(st Stats) { r.final = &st }
