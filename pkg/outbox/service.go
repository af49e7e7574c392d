package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopflow-backend/pkg/db/models"
	"github.com/angelmondragon/shopflow-backend/pkg/enums"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
)

const currentEnvelopeVersion = 1

var (
	errNoTransaction = errors.New("outbox: transaction required")
	errUnknownEvent  = errors.New("outbox: unknown event or aggregate type")
)

// DomainEvent is appended to the outbox inside the caller's transaction.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	// Version defaults to the current envelope version.
	Version int
	// OccurredAt defaults to the emit time.
	OccurredAt time.Time
}

func (e DomainEvent) validate() error {
	if !e.EventType.IsValid() || !e.AggregateType.IsValid() {
		return fmt.Errorf("%w: %q/%q", errUnknownEvent, e.EventType, e.AggregateType)
	}
	return nil
}

// row renders the event as an outbox_events row with a fresh event id.
func (e DomainEvent) row(now time.Time) (models.OutboxEvent, PayloadEnvelope, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("encode event data: %w", err)
	}
	env := PayloadEnvelope{
		Version:    e.Version,
		EventID:    uuid.NewString(),
		OccurredAt: e.OccurredAt,
		Actor:      e.Actor,
		Data:       data,
	}
	if env.Version == 0 {
		env.Version = currentEnvelopeVersion
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = now
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("encode envelope: %w", err)
	}
	return models.OutboxEvent{
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Payload:       payload,
	}, env, nil
}

// Service is the write side of the transactional outbox.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{
		repo: repo,
		logg: logg,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Emit writes the event with tx so it commits or rolls back with the change it describes.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errNoTransaction
	}
	if err := event.validate(); err != nil {
		return err
	}
	row, env, err := event.row(s.now())
	if err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, tx, row); err != nil {
		return err
	}

	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":       env.EventID,
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
		}), "outbox.event_queued")
	}
	return nil
}
