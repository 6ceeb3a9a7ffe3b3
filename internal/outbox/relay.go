package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Relay polls the store and hands pending events to the dispatcher.
type Relay struct {
	store     Store
	dispatch  *Dispatcher
	relayID   string
	batchSize int
	interval  time.Duration
	lease     time.Duration
}

func NewRelay(store Store, dispatch *Dispatcher, relayID string, batchSize int, interval time.Duration) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Relay{
		store:     store,
		dispatch:  dispatch,
		relayID:   relayID,
		batchSize: batchSize,
		interval:  interval,
		lease:     5 * time.Second,
	}
}

// Run blocks until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	log.Info().Str("relay_id", r.relayID).Dur("interval", r.interval).Msg("Outbox relay started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("relay_id", r.relayID).Msg("Outbox relay stopped")
			return nil
		case <-t.C:
			if _, err := r.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("relay_id", r.relayID).Msg("outbox relay tick failed")
			}
		}
	}
}

// Tick processes one batch and reports how many events were delivered.
// Once an event fails, later events of the same aggregate wait for the next
// tick so consumers never see them out of order.
func (r *Relay) Tick(ctx context.Context) (int, error) {
	events, err := r.store.LockBatch(ctx, r.relayID, r.batchSize, r.lease)
	if err != nil {
		return 0, err
	}

	sent := make([]int64, 0, len(events))
	var held []int64
	blocked := make(map[string]bool)
	for _, e := range events {
		key := e.AggregateType + "/" + e.AggregateID
		if blocked[key] {
			held = append(held, e.ID)
			continue
		}
		if err := r.dispatch.Dispatch(ctx, e); err != nil {
			blocked[key] = true
			if markErr := r.store.MarkFailed(ctx, e.ID, err.Error()); markErr != nil {
				log.Error().Err(markErr).Int64("event_id", e.ID).Msg("failed to record outbox failure")
			}
			continue
		}
		sent = append(sent, e.ID)
	}

	if len(held) > 0 {
		if err := r.store.Release(ctx, held); err != nil {
			log.Error().Err(err).Int("count", len(held)).Msg("failed to release held outbox events")
		}
	}

	if err := r.store.MarkSent(ctx, sent); err != nil {
		return 0, err
	}
	return len(sent), nil
}
