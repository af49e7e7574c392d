package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Actor roles recorded on events.
const (
	RoleCustomer   = "customer"
	RoleAdmin      = "admin"
	RoleReconciler = "reconciler"
	RoleProvider   = "provider"
	RoleSystem     = "system"
)

var errMissingEventID = errors.New("envelope has no event id")

// ActorRef names whoever caused an event. Reconciler, provider and system
// actors carry no user.
type ActorRef struct {
	UserID *uuid.UUID `json:"userId,omitempty"`
	Role   string     `json:"role"`
}

// PayloadEnvelope wraps every outbox payload. Subscribers dedupe on EventID
// and switch on Version before reading Data.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Bind decodes the event data into dst.
func (p PayloadEnvelope) Bind(dst any) error {
	if len(p.Data) == 0 {
		return fmt.Errorf("event %s carries no data", p.EventID)
	}
	return json.Unmarshal(p.Data, dst)
}

// DecodeEnvelope parses a stored payload and rejects envelopes without an
// event id or with a version newer than this build understands.
func DecodeEnvelope(raw json.RawMessage) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	switch {
	case env.EventID == "":
		return env, errMissingEventID
	case env.Version > currentEnvelopeVersion:
		return env, fmt.Errorf("envelope version %d not supported", env.Version)
	}
	return env, nil
}
