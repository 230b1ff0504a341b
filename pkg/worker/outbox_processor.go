package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/alert-engine/internal/model"
	"github.com/jwalitptl/alert-engine/internal/repository"
	"github.com/jwalitptl/alert-engine/pkg/logger"
	"github.com/jwalitptl/alert-engine/pkg/messaging"
	"github.com/jwalitptl/alert-engine/pkg/metrics"
)

type OutboxProcessorConfig struct {
	// Channel every alert event is published on.
	Channel       string
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// DeliveryTracker records that an alert's notification left the service.
type DeliveryTracker interface {
	MarkDispatched(ctx context.Context, alertID uuid.UUID) (int64, error)
}

// OutboxProcessor relays pending outbox events to the broker. Delivery is
// at-least-once: an event whose status update fails is published again.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	tracker DeliveryTracker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	tracker DeliveryTracker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *OutboxProcessor {
	// Config validation instead of defaults
	if config.Channel == "" {
		panic("Channel must not be empty")
	}
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		tracker: tracker,
		config:  config,
		logger:  logger.WithComponent("outbox"),
		metrics: metrics,
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor", "channel", p.config.Channel)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch publishes one batch and returns how many events were delivered.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.GetPendingEvents(ctx, p.config.BatchSize)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "error").Inc()
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "success").Inc()

	delivered := 0
	for _, event := range events {
		if ctx.Err() != nil {
			break
		}
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error(err, "Failed to process event",
				"event_id", event.ID.String(),
				"event_type", event.EventType,
				"retry_count", event.RetryCount)
			continue
		}
		delivered++
	}

	return delivered, nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	msg := messaging.Message{
		ID:          event.ID.String(),
		Type:        event.EventType,
		AggregateID: event.AggregateID.String(),
		Payload:     event.Payload,
	}
	err := retry(ctx, p.config.RetryAttempts, p.config.RetryDelay, func() error {
		return p.broker.Publish(ctx, p.config.Channel, msg)
	})

	if err != nil {
		p.metrics.OutboxEventsFailed.Inc()
		if updateErr := p.repo.MarkFailed(ctx, event.ID, err.Error()); updateErr != nil {
			p.logger.Error(updateErr, "Failed to update event status", "event_id", event.ID.String())
		}
		return err
	}

	p.metrics.OutboxEventsProcessed.Inc()
	if err := p.repo.MarkProcessed(ctx, event.ID); err != nil {
		p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
		return err
	}

	if event.EventType == model.EventAlertCreated {
		p.markDispatched(ctx, event.AggregateID)
	}
	return nil
}

// markDispatched is best-effort: the event is already relayed, so a failure
// here only leaves recipients pending.
func (p *OutboxProcessor) markDispatched(ctx context.Context, alertID uuid.UUID) {
	if p.tracker == nil {
		return
	}
	n, err := p.tracker.MarkDispatched(ctx, alertID)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("mark_dispatched", "error").Inc()
		p.logger.Error(err, "Failed to mark recipients dispatched", "alert_id", alertID.String())
		return
	}
	p.metrics.DatabaseOperations.WithLabelValues("mark_dispatched", "success").Inc()
	p.logger.Debug("Recipients dispatched", "alert_id", alertID.String(), "recipients", n)
}

// Helper retry function
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(delay):
			}
		}
	}
	return err
}
