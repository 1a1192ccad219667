package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/segments/internal/infrastructure/buffer"
)

// EventSender delivers an encoded event to the broker.
type EventSender interface {
	SendRaw(ctx context.Context, payload []byte) error
}

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// RelayConfig controls how frequently the outbox is drained.
type RelayConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	Retention  time.Duration
}

// EventRelay forwards committed events to the broker and parks them in the
// outbox while the broker is unreachable.
type EventRelay struct {
	store   *buffer.Store
	sender  EventSender
	monitor ConnectionHealth
	logger  *zap.Logger
	cron    *cron.Cron
	cfg     RelayConfig
}

func NewEventRelay(
	store *buffer.Store,
	sender EventSender,
	monitor ConnectionHealth,
	logger *zap.Logger,
	cfg RelayConfig,
) *EventRelay {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &EventRelay{
		store:   store,
		sender:  sender,
		monitor: monitor,
		logger:  logger,
		cfg:     cfg,
		cron:    cron.New(cron.WithSeconds()),
	}

	schedule := fmt.Sprintf("@every %ds", int(cfg.Interval.Seconds()))
	_, _ = r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := r.Drain(ctx); err != nil {
			r.logger.Error("outbox drain failed", zap.Error(err))
		}
		if removed, err := r.store.Cleanup(time.Now().Add(-cfg.Retention)); err != nil {
			r.logger.Warn("outbox cleanup failed", zap.Error(err))
		} else if removed > 0 {
			r.logger.Warn("expired outbox events dropped", zap.Int("count", removed))
		}
	})

	return r
}

// Start launches the cron scheduler.
func (r *EventRelay) Start() {
	if r == nil || r.cron == nil {
		return
	}
	r.cron.Start()
	r.logger.Info("event relay started")
}

// Stop gracefully stops the scheduler.
func (r *EventRelay) Stop(ctx context.Context) {
	if r == nil || r.cron == nil {
		return
	}
	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	r.logger.Info("event relay stopped")
}

// Relay sends the item right away when possible and buffers it otherwise.
// While older items are still waiting, new ones queue behind them so the
// broker sees events in commit order.
func (r *EventRelay) Relay(ctx context.Context, item buffer.Item) error {
	if r == nil || r.store == nil {
		return fmt.Errorf("event relay not configured")
	}

	if r.Size() == 0 && (r.monitor == nil || r.monitor.IsOnline()) {
		err := r.sender.SendRaw(ctx, item.Data)
		if err == nil {
			return nil
		}
		r.logger.Warn("event relay failed, buffering", zap.String("event_id", item.ID), zap.Error(err))
	}
	return r.store.Enqueue(item)
}

// Drain sends buffered items in order. It stops at the first failure so a
// later event never overtakes an earlier one.
func (r *EventRelay) Drain(ctx context.Context) error {
	if r == nil || r.store == nil {
		return nil
	}
	if r.monitor != nil && !r.monitor.IsOnline() {
		r.logger.Debug("skipping outbox drain (offline)")
		return nil
	}

	items, err := r.store.Peek(r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := r.sender.SendRaw(ctx, item.Data); err != nil {
			r.logger.Error("failed to relay buffered event",
				zap.String("event_id", item.ID),
				zap.String("event", item.EventName),
				zap.Error(err))

			item.Retries++
			if item.Retries >= r.cfg.MaxRetries {
				r.logger.Warn("dropping buffered event (max retries reached)", zap.String("event_id", item.ID))
				if err := r.store.Remove(item); err != nil {
					r.logger.Warn("failed to remove buffered event", zap.Error(err))
				}
				continue
			}
			if err := r.store.Retry(item); err != nil {
				r.logger.Error("failed to update buffered event", zap.Error(err))
			}
			return nil
		}

		if err := r.store.Remove(item); err != nil {
			r.logger.Warn("failed to purge relayed event", zap.Error(err))
		}
	}
	return nil
}

// Size returns the number of buffered items.
func (r *EventRelay) Size() int {
	if r == nil || r.store == nil {
		return 0
	}
	size, err := r.store.Size()
	if err != nil {
		return 0
	}
	return size
}
