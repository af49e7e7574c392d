package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopflow-backend/pkg/config"
	"github.com/angelmondragon/shopflow-backend/pkg/db/models"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
	"github.com/angelmondragon/shopflow-backend/pkg/metrics"
	"github.com/angelmondragon/shopflow-backend/pkg/outbox"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

var errNonRetryable = errors.New("event cannot be published")

// outcome is what happened to a single outbox row during a batch.
type outcome string

const (
	outcomePublished outcome = "published"
	outcomeRetry     outcome = "retry"
	outcomeParked    outcome = "parked"
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	OrdersTopic() string
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublished(ctx context.Context, tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminal(ctx context.Context, tx *gorm.DB, id uuid.UUID, err error, attempts int) error
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	PubSub     pubSubClient
	Repository outboxRepository
	Metrics    *metrics.RelayMetrics
	// Publisher overrides the topic publisher; tests use it.
	Publisher publisher
}

// Service relays committed order events from outbox_events to Pub/Sub.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	pubsub       pubSubClient
	publisher    publisher
	metrics      *metrics.RelayMetrics
	topic        string
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	}

	topic := params.PubSub.OrdersTopic()
	pub := params.Publisher
	if pub == nil {
		raw := params.PubSub.Publisher(topic)
		if raw == nil {
			return nil, fmt.Errorf("publisher not configured for topic %q", topic)
		}
		pub = topicPublisher{raw}
	}

	cfg := params.Config.Outbox
	s := &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		pubsub:       params.PubSub,
		publisher:    pub,
		metrics:      params.Metrics,
		topic:        topic,
		batchSize:    positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		pollInterval: defaultPollInterval,
	}
	if cfg.PollIntervalMS > 0 {
		s.pollInterval = time.Duration(cfg.PollIntervalMS) * time.Millisecond
	}
	return s, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx is canceled. A non-empty batch is followed immediately
// by the next one; failed batches back off exponentially.
func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping failed: %w", err)
	}

	backoff := s.backoff()
	for ctx.Err() == nil {
		busy, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox.batch_failed", err)
			wait, _ = backoff.Next()
		case busy:
			backoff = s.backoff()
			continue
		default:
			backoff = s.backoff()
			wait = s.pollInterval
		}
		if err := sleep(ctx, wait); err != nil {
			break
		}
	}
	s.logg.Info(ctx, "outbox.publisher_stopped")
	return ctx.Err()
}

func (s *Service) backoff() retry.Backoff {
	b := retry.NewExponential(s.pollInterval)
	b = retry.WithCappedDuration(maxBackoff, b)
	return retry.WithJitter(jitterWindow, b)
}

// processBatch relays one locked batch inside a transaction and reports
// whether there was anything to do.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var busy bool
	started := time.Now()
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublished(ctx, tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		busy = len(events) > 0
		for _, event := range events {
			result, err := s.relay(ctx, tx, event)
			if err != nil {
				return err
			}
			s.metrics.ObserveEvent(string(event.EventType), string(result))
		}
		return nil
	})
	if busy {
		s.metrics.ObserveBatch(time.Since(started))
	}
	return busy, err
}

// relay publishes one row and records the result on it. The returned error
// is reserved for bookkeeping failures that must abort the batch.
func (s *Service) relay(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome, error) {
	logCtx := s.logg.WithFields(ctx, s.eventFields(event))

	envelope, err := checkEvent(event)
	if err != nil {
		return outcomeParked, s.park(logCtx, tx, event, fmt.Errorf("%w: %v", errNonRetryable, err))
	}
	logCtx = s.logg.WithField(logCtx, "event_id", envelope.EventID)

	pubErr := s.publish(ctx, event, envelope)
	if pubErr == nil {
		if err := s.repo.MarkPublished(ctx, tx, event.ID); err != nil {
			return outcomePublished, fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(logCtx, "outbox.event_published")
		return outcomePublished, nil
	}

	attempt := event.AttemptCount + 1
	logCtx = s.logg.WithField(logCtx, "attempt_count", attempt)
	if errors.Is(pubErr, errNonRetryable) || attempt >= s.maxAttempts {
		return outcomeParked, s.park(logCtx, tx, event, pubErr)
	}
	s.logg.Warn(s.logg.WithField(logCtx, "publish_error", pubErr.Error()), "outbox.publish_failed")
	if err := s.repo.MarkFailed(ctx, tx, event.ID, pubErr); err != nil {
		return outcomeRetry, fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return outcomeRetry, nil
}

// checkEvent rejects rows no subscriber could make sense of.
func checkEvent(event models.OutboxEvent) (outbox.PayloadEnvelope, error) {
	if !event.EventType.IsValid() {
		return outbox.PayloadEnvelope{}, fmt.Errorf("unknown event type %q", event.EventType)
	}
	return outbox.DecodeEnvelope(event.Payload)
}

// park stops retrying an event. The row keeps its last error for operators.
func (s *Service) park(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, cause error) error {
	s.logg.Error(ctx, "outbox.event_parked", cause)
	if err := s.repo.MarkTerminal(ctx, tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, envelope outbox.PayloadEnvelope) error {
	aggregateID := event.AggregateID.String()
	msg := &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: aggregateID,
		Attributes: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   aggregateID,
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := s.publisher.Publish(publishCtx, msg)
	if result == nil {
		return fmt.Errorf("%w: publisher returned no result for topic %s", errNonRetryable, s.topic)
	}
	_, err := result.Get(publishCtx)
	return err
}

func (s *Service) eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
		"topic":          s.topic,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// topicPublisher narrows *gcppubsub.Publisher to the publisher interface.
type topicPublisher struct {
	p *gcppubsub.Publisher
}

func (t topicPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return t.p.Publish(ctx, msg)
}
