package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
)

const collectionAuditLogs = "audit_logs"

// AuditLogRepository implements ports.AuditLogRepository as an append-only
// collection keyed by event id.
type AuditLogRepository struct {
	col *mongo.Collection
}

func NewAuditLogRepository(db *mongo.Database) *AuditLogRepository {
	return &AuditLogRepository{col: db.Collection(collectionAuditLogs)}
}

type auditLogDocument struct {
	EventID       string    `bson:"_id"`
	EventType     string    `bson:"event_type"`
	CorrelationID string    `bson:"correlation_id"`
	Source        string    `bson:"source"`
	OccurredAt    time.Time `bson:"occurred_at"`
	ReceivedAt    time.Time `bson:"received_at"`

	ActorUserID  string `bson:"actor_user_id,omitempty"`
	ActorEmail   string `bson:"actor_email,omitempty"`
	ActorRole    string `bson:"actor_role,omitempty"`
	Action       string `bson:"action"`
	Resource     string `bson:"resource"`
	ResourceID   string `bson:"resource_id,omitempty"`
	Outcome      string `bson:"outcome"`
	IPAddress    string `bson:"ip_address,omitempty"`
	UserAgent    string `bson:"user_agent,omitempty"`
	Before       any    `bson:"before,omitempty"`
	After        any    `bson:"after,omitempty"`
	ErrorMessage string `bson:"error_message,omitempty"`

	PatientID     string `bson:"patient_id,omitempty"`
	Sensitivity   string `bson:"sensitivity,omitempty"`
	BreakGlass    bool   `bson:"break_glass,omitempty"`
	Justification string `bson:"justification,omitempty"`
}

func (r *AuditLogRepository) Append(ctx context.Context, rec *domain.AuditRecord) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	p := rec.Payload
	doc := auditLogDocument{
		EventID:       rec.EventID,
		EventType:     rec.EventType,
		CorrelationID: rec.CorrelationID,
		Source:        rec.Source,
		OccurredAt:    rec.OccurredAt.UTC(),
		ReceivedAt:    rec.ReceivedAt.UTC(),
		Action:        p.Action,
		Resource:      p.Resource,
		ResourceID:    p.ResourceID,
		Outcome:       string(p.Outcome),
		IPAddress:     p.Network.IPAddress,
		UserAgent:     p.Network.UserAgent,
		Before:        p.Before,
		After:         p.After,
		ErrorMessage:  p.ErrorMessage,
		PatientID:     p.PatientID,
		Sensitivity:   string(p.Sensitivity),
		BreakGlass:    p.BreakGlass,
		Justification: p.Justification,
	}
	if p.Actor != nil {
		doc.ActorUserID = p.Actor.UserID
		doc.ActorEmail = p.Actor.Email
		doc.ActorRole = string(p.Actor.Role)
	}

	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyApplied
		}
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// EnsureIndexes creates the lookup indexes used by compliance queries.
func (r *AuditLogRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "actor_user_id", Value: 1}, {Key: "occurred_at", Value: -1}}},
		{Keys: bson.D{{Key: "patient_id", Value: 1}, {Key: "occurred_at", Value: -1}}},
		{Keys: bson.D{{Key: "correlation_id", Value: 1}}},
	}
	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
