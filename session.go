package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/miekg/dns"
	"github.com/tevino/abool"
	"golang.org/x/sys/unix"
)

const (
	headerLen = 12

	// maxUDPPayload is the largest UDP payload over IPv4.
	maxUDPPayload = 0xffff - 20 - 8

	flagsOpcodeQuery       = 0x0000
	flagsRecursionDesired  = 0x0100
	defaultRefuzzChance    = 0.005
	defaultReportInterval  = 500 * time.Millisecond
	defaultSocketBufferLen = 16 * 1024 * 1024
)

// Conn is a non-blocking datagram socket owned by a single Session.
type Conn interface {
	// SendTo hands p to the kernel. It may fail with EAGAIN or EINTR.
	SendTo(p []byte, to unix.Sockaddr) error
	// Recv reads one datagram, failing with EAGAIN when none is queued.
	Recv(p []byte) (int, error)
	// Wait blocks until a datagram is readable or timeout passes. A
	// negative timeout waits without bound.
	Wait(timeout time.Duration) (bool, error)
	Close() error
}

// queryBuffer is the reusable query template. Every write goes through a
// capacity check against buf.
type queryBuffer struct {
	buf []byte
	n   int
}

func newQueryBuffer(capacity int) *queryBuffer {
	qb := &queryBuffer{buf: make([]byte, capacity)}
	binary.BigEndian.PutUint16(qb.buf[2:], flagsOpcodeQuery|flagsRecursionDesired)
	binary.BigEndian.PutUint16(qb.buf[4:], 1) // qdcount
	// ancount, nscount, arcount stay zero.
	qb.n = headerLen
	return qb
}

func (qb *queryBuffer) setID(id uint16) {
	binary.BigEndian.PutUint16(qb.buf[0:], id)
}

// setQuestion rewrites the question section and returns the full payload.
func (qb *queryBuffer) setQuestion(name string, qtype uint16) ([]byte, error) {
	// Reserve room for qtype and qclass before the name is written.
	avail := len(qb.buf) - headerLen - 4
	if avail <= 0 {
		return nil, ErrBufferExhausted
	}
	n, err := EncodeName(qb.buf[headerLen:headerLen+avail], name)
	if err != nil {
		return nil, err
	}
	off := headerLen + n
	binary.BigEndian.PutUint16(qb.buf[off:], qtype)
	binary.BigEndian.PutUint16(qb.buf[off+2:], dns.ClassINET)
	qb.n = off + 4
	return qb.buf[:qb.n], nil
}

// Session is the state of one blasting run.
type Session struct {
	dst   unix.Sockaddr
	conn  Conn
	clock Clock
	rng   Rand

	query  *queryBuffer
	fuzzed []byte
	recv   []byte
	id     uint16

	sent     uint64
	received uint64

	start      time.Duration
	lastReport time.Duration

	pps            uint64
	fuzz           bool
	refuzzChance   float64
	reportInterval time.Duration
	sending        *abool.AtomicBool

	reporter *Reporter
}

// SessionOptions configures a Session. Zero values select defaults, except
// RefuzzChance where zero means exactly one mutation per fuzzed query.
type SessionOptions struct {
	PPS            uint64
	Fuzz           bool
	RefuzzChance   float64
	ReportInterval time.Duration
	BufferSize     int
	Clock          Clock
	Reporter       *Reporter
}

// NewSession prepares a session sending to dst over conn.
func NewSession(conn Conn, dst unix.Sockaddr, rng Rand, opts SessionOptions) *Session {
	if opts.Clock == nil {
		opts.Clock = newMonoClock()
	}
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = defaultReportInterval
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = maxUDPPayload
	}
	if opts.BufferSize < headerLen {
		opts.BufferSize = headerLen
	}

	now := opts.Clock.Now()
	return &Session{
		dst:            dst,
		conn:           conn,
		clock:          opts.Clock,
		rng:            rng,
		query:          newQueryBuffer(opts.BufferSize),
		fuzzed:         make([]byte, opts.BufferSize),
		recv:           make([]byte, maxUDPPayload),
		start:          now,
		lastReport:     now,
		pps:            opts.PPS,
		fuzz:           opts.Fuzz,
		refuzzChance:   opts.RefuzzChance,
		reportInterval: opts.ReportInterval,
		sending:        abool.NewBool(true),
		reporter:       opts.Reporter,
	}
}

// Blast builds one query for name and qtype and sends it. Encoding errors
// leave the session untouched and nothing is sent.
func (s *Session) Blast(name string, qtype uint16) error {
	payload, err := s.query.setQuestion(name, qtype)
	if err != nil {
		return fmt.Errorf("query %s %s: %w", name, dns.TypeToString[qtype], err)
	}
	s.query.setID(s.id)
	s.id++

	if s.fuzz {
		// Mutate a copy so the template header stays canonical.
		payload = s.fuzzed[:copy(s.fuzzed, payload)]
		fuzzPayload(payload, s.rng, s.refuzzChance)
	}

	if err := s.send(payload); err != nil {
		return err
	}
	s.sent++
	return nil
}

// fuzzPayload overwrites a random byte with a random value, then repeats
// with a chance that starts at refuzz and halves after every repetition.
func fuzzPayload(p []byte, rng Rand, refuzz float64) {
	if len(p) == 0 {
		return
	}
	for {
		p[rng.Intn(len(p))] = byte(rng.Intn(256))
		if rng.Float64() >= refuzz {
			return
		}
		refuzz /= 2
	}
}

func (s *Session) send(p []byte) error {
	for {
		err := s.conn.SendTo(p, s.dst)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return WrapErrorWithContext("sendto", err, sockaddrString(s.dst))
		}
	}
}

// isTransient reports whether err is a would-block or interrupted-call
// condition that should simply be retried.
func isTransient(err error) bool {
	return isWouldBlock(err) || errors.Is(err, unix.EINTR)
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// Sent returns the number of queries sent so far.
func (s *Session) Sent() uint64 { return s.sent }

// Received returns the number of replies drained so far.
func (s *Session) Received() uint64 { return s.received }

// Sending reports whether the session still emits new queries.
func (s *Session) Sending() bool { return s.sending.IsSet() }

// StopSending switches the session to drain-only mode.
func (s *Session) StopSending() { s.sending.UnSet() }

// Elapsed returns the time since the session started.
func (s *Session) Elapsed() time.Duration { return s.clock.Now() - s.start }

// Snapshot returns the current counters for reporting.
func (s *Session) Snapshot() Stats {
	return Stats{
		Sent:     s.sent,
		Received: s.received,
		Elapsed:  s.Elapsed(),
		PPS:      s.pps,
	}
}
