// Package reconcile drives pending delivery records toward a terminal
// state. Once per tick it scans the store for every non-sent record of
// each ACK kind and attempts a signed POST to the kind's peer URL,
// recording the outcome back on the record. Ticks are independent: no
// cross-tick state, no backoff schedule, every non-sent record is
// eligible on every tick.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/concurhq/consent-exchange/internal/domain"
	"github.com/concurhq/consent-exchange/internal/store"
	"github.com/concurhq/consent-exchange/internal/transport"
)

// Store is the slice of the event store the reconciler needs.
type Store interface {
	ForEachDue(ctx context.Context, kind domain.AckKind, fn func(domain.DeliveryRecord) error) error
	RecordAttempt(ctx context.Context, recordID string, outcome domain.AttemptOutcome) (*domain.DeliveryRecord, error)
	GetEvent(ctx context.Context, eventID string) (*domain.Event, error)
}

// Sender performs exactly one signed wire attempt per call.
type Sender interface {
	SendAck(ctx context.Context, url string, payload map[string]any) (transport.Outcome, error)
}

// HealthRecorder receives per-peer outcome notifications. Observability
// only; it never influences which records are attempted.
type HealthRecorder interface {
	RecordSuccess(ctx context.Context, peerURL string)
	RecordFailure(ctx context.Context, peerURL, errMsg string)
}

// Reconciler owns the periodic scan loop.
type Reconciler struct {
	store    Store
	sender   Sender
	health   HealthRecorder
	targets  map[domain.AckKind]string
	logger   *slog.Logger
	interval time.Duration
	fanout   int
}

// New creates a reconciler. targets maps each ACK kind to its peer URL;
// fanout bounds the concurrent in-flight sends per kind. health may be
// nil.
func New(s Store, sender Sender, targets map[domain.AckKind]string, logger *slog.Logger, interval time.Duration, fanout int) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if fanout < 1 {
		fanout = 1
	}
	return &Reconciler{
		store:    s,
		sender:   sender,
		targets:  targets,
		logger:   logger,
		interval: interval,
		fanout:   fanout,
	}
}

// WithHealth attaches a peer health recorder.
func (r *Reconciler) WithHealth(h HealthRecorder) *Reconciler {
	r.health = h
	return r
}

// Run ticks until the context is cancelled. On cancellation it stops
// scheduling new ticks; records not yet picked up simply wait for the
// next process.
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Info("reconciler started", "interval", r.interval, "fanout", r.fanout)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopping")
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs one logical scan: the three kind passes in parallel, each
// draining its set of due records.
func (r *Reconciler) Tick(ctx context.Context) {
	var wg sync.WaitGroup
	for _, kind := range domain.AllKinds {
		wg.Add(1)
		go func(kind domain.AckKind) {
			defer wg.Done()
			r.pass(ctx, kind)
		}(kind)
	}
	wg.Wait()
}

// pass scans one kind and fans records out to a bounded set of sender
// workers over a channel.
func (r *Reconciler) pass(ctx context.Context, kind domain.AckKind) {
	records := make(chan domain.DeliveryRecord, r.fanout*2)

	var wg sync.WaitGroup
	for i := 0; i < r.fanout; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range records {
				r.process(ctx, kind, rec)
			}
		}()
	}

	err := r.store.ForEachDue(ctx, kind, func(rec domain.DeliveryRecord) error {
		select {
		case records <- rec:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	close(records)
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("scan failed", "kind", kind, "error", err)
	}
}

// process attempts one record. Failures here never abort the pass; the
// record stays eligible for the next tick.
func (r *Reconciler) process(ctx context.Context, kind domain.AckKind, rec domain.DeliveryRecord) {
	event, err := r.store.GetEvent(ctx, rec.EventID)
	if err != nil {
		r.logger.Error("event lookup failed",
			"record_id", rec.RecordID,
			"event_id", rec.EventID,
			"kind", kind,
			"error", err,
		)
		return
	}

	url := r.targets[kind]
	payload := BuildAckPayload(kind, event, time.Now().UTC())

	outcome, err := r.sender.SendAck(ctx, url, payload)
	if err != nil {
		// Signing or request construction failed before any wire
		// attempt. Surfaced loudly, not counted against the record.
		r.logger.Error("ack send unattemptable",
			"record_id", rec.RecordID,
			"kind", kind,
			"error", err,
		)
		return
	}

	r.notifyHealth(ctx, url, outcome)

	updated, err := r.store.RecordAttempt(ctx, rec.RecordID, domain.AttemptOutcome{
		Success: outcome.Success,
		Error:   outcome.Error,
	})
	if err != nil {
		r.logger.Error("recording attempt failed",
			"record_id", rec.RecordID,
			"kind", kind,
			"error", err,
		)
		return
	}

	if outcome.Success {
		r.logger.Info("ack delivered",
			"record_id", rec.RecordID,
			"event_id", rec.EventID,
			"kind", kind,
			"attempts", updated.Attempts,
		)
	} else {
		r.logger.Warn("ack attempt failed",
			"record_id", rec.RecordID,
			"event_id", rec.EventID,
			"kind", kind,
			"attempts", updated.Attempts,
			"error", outcome.Error,
		)
	}
}

func (r *Reconciler) notifyHealth(ctx context.Context, url string, outcome transport.Outcome) {
	if r.health == nil {
		return
	}
	if outcome.Success {
		r.health.RecordSuccess(ctx, url)
	} else {
		r.health.RecordFailure(ctx, url, outcome.Error)
	}
}

var _ Store = (*store.MongoStore)(nil)
