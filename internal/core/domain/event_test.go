package domain

import (
	"context"
	"errors"
	"testing"
)

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope(EventUserCreated, "auth-service", "", UserCreatedPayload{UserID: "u1", Email: "a@b.com"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if env.EventID == "" || env.CorrelationID == "" || env.EventID == env.CorrelationID {
		t.Fatalf("expected distinct generated ids, got %+v", env)
	}
	if env.Version != EnvelopeVersion || env.Source != "auth-service" || env.Timestamp.Location().String() != "UTC" {
		t.Fatalf("unexpected metadata: %+v", env)
	}

	other, _ := NewEnvelope(EventUserCreated, "auth-service", "corr", struct{}{})
	if other.EventID == env.EventID || other.CorrelationID != "corr" {
		t.Fatalf("expected fresh event id and given correlation id, got %+v", other)
	}
}

func TestEnvelope_PayloadIsFrozen(t *testing.T) {
	p := UserCreatedPayload{UserID: "u1", Email: "before@example.com"}
	env, _ := NewEnvelope(EventUserCreated, "auth-service", "", p)
	p.Email = "after@example.com"

	var got UserCreatedPayload
	if err := env.Decode(&got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Email != "before@example.com" {
		t.Fatalf("payload changed after construction: %s", got.Email)
	}
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{"eventType":"user.created","payload":{}}`,
		`{"eventId":"e1","payload":{}}`,
		`{"eventId":"e1","eventType":"user.created"}`,
	} {
		if _, err := DecodeEnvelope([]byte(body)); !errors.Is(err, ErrMalformedEvent) {
			t.Errorf("%s: expected ErrMalformedEvent, got %v", body, err)
		}
	}
}

func TestEnvelope_PartitionKey(t *testing.T) {
	withUser, _ := NewEnvelope(EventUserRoleChanged, "auth-service", "", UserRoleChangedPayload{UserID: "u9"})
	if withUser.PartitionKey() != "u9" {
		t.Fatalf("expected user id key, got %s", withUser.PartitionKey())
	}
	noUser, _ := NewEnvelope(EventAuditLog, "auth-service", "", AuditPayload{Action: ActionLogin})
	if noUser.PartitionKey() != noUser.EventID {
		t.Fatalf("expected event id fallback, got %s", noUser.PartitionKey())
	}
}

func TestCorrelationIDContext(t *testing.T) {
	ctx := context.Background()
	if CorrelationID(ctx) != "" {
		t.Fatalf("expected empty id")
	}
	if CorrelationID(WithCorrelationID(ctx, "")) != "" {
		t.Fatalf("empty id must not be stored")
	}
	if CorrelationID(WithCorrelationID(ctx, "c1")) != "c1" {
		t.Fatalf("expected c1")
	}
}
