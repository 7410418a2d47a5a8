package main

import (
	"math"
	"math/bits"
	"time"
)

// budget returns how many queries should have been sent after elapsed at
// the session's target rate.
func (s *Session) budget(elapsed time.Duration) uint64 {
	if s.pps == 0 {
		return math.MaxUint64
	}
	if elapsed <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(s.pps, uint64(elapsed))
	if hi >= uint64(time.Second) {
		return math.MaxUint64
	}
	n, _ := bits.Div64(hi, lo, uint64(time.Second))
	return n
}

// slotWait returns how long to wait until the current send count is due,
// rounded up to the nanosecond. It is zero when the sender is on or behind
// schedule.
func (s *Session) slotWait(elapsed time.Duration) time.Duration {
	if s.pps == 0 {
		return 0
	}
	hi, lo := bits.Mul64(s.sent, uint64(time.Second))
	if hi >= s.pps {
		return math.MaxInt64
	}
	due, rem := bits.Div64(hi, lo, s.pps)
	if rem != 0 {
		due++
	}
	if due > math.MaxInt64 {
		return math.MaxInt64
	}
	if time.Duration(due) <= elapsed {
		return 0
	}
	return time.Duration(due) - elapsed
}

// Throttle paces the sender and drains replies. It is called after every
// send while sending, and in a loop while draining.
//
// While the sender is within its budget the receive queue is drained
// without blocking. Otherwise the call waits for readability until the next
// send slot, draining whatever arrives meanwhile. When draining, waits are
// capped at the report interval so the status line keeps moving.
func (s *Session) Throttle() error {
	now := s.clock.Now()
	elapsed := now - s.start
	sending := s.Sending()

	if sending && s.sent <= s.budget(elapsed) {
		if err := s.drain(); err != nil {
			return err
		}
		if s.pps == 0 {
			return nil
		}
	}

	wait := s.reportInterval
	if sending {
		wait = s.slotWait(elapsed)
	}

	for {
		ready, err := s.conn.Wait(wait)
		switch {
		case err != nil && !isTransient(err):
			return WrapErrorWithContext("poll", err, sockaddrString(s.dst))
		case err == nil && !ready:
			s.maybeReport()
			return nil
		case err == nil:
			if err := s.drain(); err != nil {
				return err
			}
			if !sending {
				return nil
			}
		}

		// Interrupted or woken by replies: only the rest of the wait is left.
		later := s.clock.Now()
		wait -= later - now
		now = later
		if wait <= 0 {
			s.maybeReport()
			return nil
		}
	}
}

// drain reads every queued datagram and counts it as a reply.
func (s *Session) drain() error {
	for {
		_, err := s.conn.Recv(s.recv)
		if err == nil {
			s.received++
			continue
		}
		if isWouldBlock(err) {
			break
		}
		if isTransient(err) {
			continue
		}
		return WrapErrorWithContext("recv", err, sockaddrString(s.dst))
	}
	s.maybeReport()
	return nil
}

// maybeReport emits a status update if the report interval has passed.
func (s *Session) maybeReport() {
	now := s.clock.Now()
	if now-s.lastReport < s.reportInterval {
		return
	}
	s.lastReport = now
	if s.reporter != nil {
		s.reporter.Report(s.Snapshot())
	}
}
