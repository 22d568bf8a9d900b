package reader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"attensync/internal/attendance"
	"attensync/internal/ble"
	"attensync/internal/metrics"
	"attensync/internal/queue"
)

// ErrRetriesExhausted is returned in foreground mode when consecutive
// locate/connect cycles keep failing. Service mode never returns it.
var ErrRetriesExhausted = errors.New("reader: maximum connection retries reached")

// DeviceLocator finds the reader peripheral.
type DeviceLocator interface {
	Locate(ctx context.Context) (ble.Peripheral, error)
}

// SessionRunner drives one connection lifecycle and blocks until it ends.
type SessionRunner interface {
	Run(ctx context.Context, p ble.Peripheral) error
}

// Config controls the supervisor's retry behavior.
type Config struct {
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	ServiceMode   bool
}

// Supervisor is the top-level control loop: locate the device, run a
// session until it ends, back off, repeat. Decoded tag events flow through
// a single dispatch goroutine so attendance writes stay serialized in
// notification order.
type Supervisor struct {
	locator DeviceLocator
	session SessionRunner
	events  <-chan ble.TagEvent
	proc    *attendance.Processor
	queue   queue.Queue
	cfg     Config
	backoff Backoff
	log     zerolog.Logger
	scans   atomic.Uint64
}

// NewSupervisor wires the pipeline. q may be nil when event publication is
// disabled.
func NewSupervisor(locator DeviceLocator, session SessionRunner, events <-chan ble.TagEvent,
	proc *attendance.Processor, q queue.Queue, cfg Config, log zerolog.Logger) *Supervisor {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	return &Supervisor{
		locator: locator,
		session: session,
		events:  events,
		proc:    proc,
		queue:   q,
		cfg:     cfg,
		backoff: Backoff{Base: cfg.RetryDelay, Max: cfg.MaxRetryDelay, Exponential: cfg.ServiceMode},
		log:     log,
	}
}

// Run blocks until ctx is cancelled (returns nil) or, in foreground mode,
// until the retry budget is exhausted (returns ErrRetriesExhausted).
func (s *Supervisor) Run(ctx context.Context) error {
	go s.dispatch(ctx)

	failures := 0
	cycles := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		if cycles > 0 {
			metrics.ReconnectsTotal.Inc()
		}
		cycles++

		p, err := s.locator.Locate(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			s.log.Warn().Err(err).Int("failures", failures).Msg("device discovery failed")
			if s.exhausted(failures) {
				return fmt.Errorf("%w: %d consecutive failures", ErrRetriesExhausted, failures)
			}
			if s.backoff.Wait(ctx, failures) != nil {
				return nil
			}
			continue
		}

		metrics.DeviceConnected.Set(1)
		err = s.session.Run(ctx, p)
		metrics.DeviceConnected.Set(0)
		if ctx.Err() != nil {
			return nil
		}

		switch {
		case err == nil, errors.Is(err, ble.ErrDisconnected):
			// The session reached listening, so the reader is alive.
			// Reset the failure budget before reconnecting.
			failures = 0
			s.log.Info().Uint64("scans", s.scans.Load()).Msg("connection closed, reconnecting")
		default:
			failures++
			s.log.Warn().Err(err).Int("failures", failures).Msg("session failed")
			if s.exhausted(failures) {
				return fmt.Errorf("%w: %d consecutive failures", ErrRetriesExhausted, failures)
			}
		}

		if s.backoff.Wait(ctx, max(failures, 1)) != nil {
			return nil
		}
	}
}

func (s *Supervisor) exhausted(failures int) bool {
	return !s.cfg.ServiceMode && failures >= s.cfg.MaxRetries
}

// Scans reports how many notifications have been processed.
func (s *Supervisor) Scans() uint64 {
	return s.scans.Load()
}

func (s *Supervisor) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.handleEvent(ctx, ev)
		}
	}
}

// handleEvent processes one notification. Failures are logged and never
// escape; the listener keeps waiting for the next scan.
func (s *Supervisor) handleEvent(ctx context.Context, ev ble.TagEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("scan dispatch recovered")
		}
	}()

	if ev.Err != nil {
		entry := s.proc.LogDecodeFailure(ctx, ev.Raw, ev.At, ev.Err)
		metrics.ScansTotal.WithLabelValues(string(entry.Status)).Inc()
		s.log.Warn().Err(ev.Err).Int("bytes", len(ev.Raw)).Msg("notification payload not decodable")
		s.publish(ctx, entry.Tag, entry)
		s.count()
		return
	}

	res := s.proc.Process(ctx, ev.Tag, ev.At)
	metrics.ScansTotal.WithLabelValues(string(res.Status)).Inc()

	switch res.Status {
	case attendance.ScanSuccess:
		s.log.Info().Str("tag", ev.Tag).Str("student", res.Student.FullName).Msg("attendance marked")
	case attendance.ScanAlreadyMarked:
		s.log.Info().Str("tag", ev.Tag).Str("student", res.Student.FullName).Msg("attendance already marked today")
	case attendance.ScanInvalidTag:
		s.log.Warn().Str("tag", ev.Tag).Msg("no student registered for tag")
	default:
		s.log.Error().Err(res.Err).Str("tag", ev.Tag).Msg("scan processing failed")
	}

	s.publish(ctx, ev.Tag, res.Log)
	s.count()
}

func (s *Supervisor) count() {
	if n := s.scans.Add(1); n%10 == 0 {
		s.log.Info().Uint64("scans", n).Msg("scans processed")
	}
}

// scanEvent is the published shape consumed by the web layer.
type scanEvent struct {
	ID           string    `json:"id"`
	Tag          string    `json:"tag"`
	StudentID    *int64    `json:"student_id,omitempty"`
	AttendanceID *int64    `json:"attendance_id,omitempty"`
	Status       string    `json:"status"`
	At           time.Time `json:"at"`
}

func (s *Supervisor) publish(ctx context.Context, tag string, entry attendance.ScanLog) {
	if s.queue == nil {
		return
	}
	evt := scanEvent{
		ID:           entry.ID,
		Tag:          tag,
		StudentID:    entry.StudentID,
		AttendanceID: entry.AttendanceID,
		Status:       string(entry.Status),
		At:           entry.ScanTime,
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		s.log.Error().Err(err).Msg("scan event marshal failed")
		return
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.queue.Publish(pctx, queue.Message{Type: "scan", Body: body}); err != nil {
		s.log.Warn().Err(err).Msg("scan event publish failed")
	}
}
