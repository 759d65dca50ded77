package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Broker topology shared by every service.
const (
	ExchangeEvents     = "clinical.events" // topic, durable
	ExchangeAudit      = "clinical.audit"  // direct, durable
	ExchangeDeadLetter = "clinical.dlx"    // direct, durable
)

// Routing keys follow <entity>.<verb>.
const (
	EventUserCreated     = "user.created"
	EventUserUpdated     = "user.updated"
	EventUserRoleChanged = "user.role.changed"
	EventAuditLog        = "audit.log"
	EventAuditDataAccess = "audit.data-access"
)

// EnvelopeVersion is the schema version stamped on every envelope.
const EnvelopeVersion = "1.0"

// Envelope is the unit of cross-service communication. Build it with
// NewEnvelope; the payload is frozen as raw JSON at construction time.
type Envelope struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlationId"`
	Source        string          `json:"source"`
	Version       string          `json:"version"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps payload for eventType. An empty correlationID gets a fresh one.
func NewEnvelope(eventType, source, correlationID string, payload any) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Source:        source,
		Version:       EnvelopeVersion,
		Payload:       body,
	}, nil
}

// DecodeEnvelope parses a message body and checks the fields consumers rely on.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.EventID == "" || env.EventType == "" {
		return Envelope{}, fmt.Errorf("%w: missing eventId or eventType", ErrMalformedEvent)
	}
	if len(env.Payload) == 0 {
		return Envelope{}, fmt.Errorf("%w: missing payload", ErrMalformedEvent)
	}
	return env, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: decode %s payload: %v", ErrMalformedEvent, e.EventType, err)
	}
	return nil
}

// PartitionKey returns the user id carried by the payload, falling back to
// the event id. Consumers use it to keep per-user ordering.
func (e Envelope) PartitionKey() string {
	var keyed struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(e.Payload, &keyed); err == nil && keyed.UserID != "" {
		return keyed.UserID
	}
	return e.EventID
}

// UserCreatedPayload is published after a user record is stored.
type UserCreatedPayload struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      Role   `json:"role"`
	IsActive  bool   `json:"isActive"`
}

// UserUpdatedPayload carries a field-level update; nil fields are untouched.
type UserUpdatedPayload struct {
	UserID    string  `json:"userId"`
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	IsActive  *bool   `json:"isActive,omitempty"`
}

// UserRoleChangedPayload is published after a role change is persisted.
type UserRoleChangedPayload struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	OldRole   Role   `json:"oldRole"`
	NewRole   Role   `json:"newRole"`
	ChangedBy string `json:"changedBy"`
}
