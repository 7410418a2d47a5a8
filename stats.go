package main

import (
	"fmt"
	"time"
)

// Stats is a point-in-time view of a session's counters.
type Stats struct {
	Sent     uint64
	Received uint64
	Elapsed  time.Duration
	// PPS is the target rate; zero means unlimited.
	PPS uint64
}

// ReplyRate returns replies per second over the whole run, capped at the
// target rate. It is zero before any time has elapsed.
func (st Stats) ReplyRate() uint64 {
	if st.Elapsed <= 0 {
		return 0
	}
	rate := uint64(float64(st.Received) / st.Elapsed.Seconds())
	if st.PPS != 0 && rate > st.PPS {
		rate = st.PPS
	}
	return rate
}

// SendRate returns queries sent per second over the whole run.
func (st Stats) SendRate() float64 {
	if st.Elapsed <= 0 {
		return 0
	}
	return float64(st.Sent) / st.Elapsed.Seconds()
}

// Ratio returns received/sent as a percentage, zero when nothing was sent.
// It can exceed 100 when a target answers more than once.
func (st Stats) Ratio() float64 {
	if st.Sent == 0 {
		return 0
	}
	return float64(st.Received) * 100 / float64(st.Sent)
}

// String renders the status line without colour or carriage return.
func (st Stats) String() string {
	return fmt.Sprintf("Sent: [%d] - Received: [%d] - Reply rate: [%d pps] - Ratio: [%.2f%%]",
		st.Sent, st.Received, st.ReplyRate(), st.Ratio())
}

// StatsSink consumes status updates.
type StatsSink interface {
	Update(st Stats)
	Final(st Stats)
}

// Reporter fans status updates out to every configured sink.
type Reporter struct {
	sinks []StatsSink
}

func NewReporter(sinks ...StatsSink) *Reporter {
	r := &Reporter{}
	for _, s := range sinks {
		if s != nil {
			r.sinks = append(r.sinks, s)
		}
	}
	return r
}

// Report sends a periodic update.
func (r *Reporter) Report(st Stats) {
	for _, s := range r.sinks {
		s.Update(st)
	}
}

// Final sends the closing totals.
func (r *Reporter) Final(st Stats) {
	for _, s := range r.sinks {
		s.Final(st)
	}
}
