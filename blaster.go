package main

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// Blaster drives a Session: it draws a name and a type, sends the query,
// and lets the session pace and drain before the next one.
type Blaster struct {
	session  *Session
	names    NameSource
	types    *TypeSelector
	reporter *Reporter
	errs     *ErrorGrouper

	// Count is the number of queries to attempt; zero means no limit.
	Count uint64
	// DrainTimeout bounds the wait for outstanding replies; zero waits
	// until every query is answered or ctx is done.
	DrainTimeout time.Duration

	warn rate.Sometimes
}

func NewBlaster(session *Session, names NameSource, types *TypeSelector, reporter *Reporter) *Blaster {
	if reporter == nil {
		reporter = NewReporter()
	}
	return &Blaster{
		session:  session,
		names:    names,
		types:    types,
		reporter: reporter,
		errs:     NewErrorGrouper(),
		warn:     rate.Sometimes{First: 3, Interval: time.Second},
	}
}

// Errors returns the skipped-query record.
func (b *Blaster) Errors() *ErrorGrouper {
	return b.errs
}

// Run sends until Count queries have been attempted or ctx is done, then
// drains replies. Queries whose name cannot be encoded are skipped and
// counted towards Count. Any other error ends the run.
func (b *Blaster) Run(ctx context.Context) error {
	s := b.session
	defer func() {
		b.reporter.Final(s.Snapshot())
	}()

	for attempt := uint64(0); b.Count == 0 || attempt < b.Count; attempt++ {
		if ctx.Err() != nil {
			break
		}

		name := b.names.Next()
		qtype := b.types.Next()
		if err := s.Blast(name, qtype); err != nil {
			if !errors.Is(err, ErrEncoding) {
				return err
			}
			b.errs.RecordError(err, name)
			b.warn.Do(func() {
				appLogger.Warn("Skipping query: %v", err)
			})
		}

		if err := s.Throttle(); err != nil {
			return err
		}
	}
	b.reporter.Report(s.Snapshot())

	s.StopSending()
	appLogger.Debug("Sending done, waiting for %d outstanding replies", s.Sent()-min(s.Sent(), s.Received()))

	drainStart := s.Elapsed()
	for s.Received() < s.Sent() {
		if ctx.Err() != nil {
			appLogger.Debug("Drain interrupted")
			break
		}
		if b.DrainTimeout > 0 && s.Elapsed()-drainStart >= b.DrainTimeout {
			appLogger.Debug("Drain timeout after %s", b.DrainTimeout)
			break
		}
		if err := s.Throttle(); err != nil {
			return err
		}
	}
	return nil
}
