package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
)

const collectionUserProjections = "user_projections"

// ProjectionRepository implements ports.UserProjectionRepository. The user id
// is the document id and email carries a unique index; together they stop a
// redelivered user.created from producing a second row.
type ProjectionRepository struct {
	col *mongo.Collection
}

func NewProjectionRepository(db *mongo.Database) *ProjectionRepository {
	return &ProjectionRepository{col: db.Collection(collectionUserProjections)}
}

type projectionDocument struct {
	UserID        string    `bson:"_id"`
	Email         string    `bson:"email"`
	FirstName     string    `bson:"first_name"`
	LastName      string    `bson:"last_name"`
	Role          string    `bson:"role"`
	IsActive      bool      `bson:"is_active"`
	SourceEventID string    `bson:"source_event_id"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func (r *ProjectionRepository) FindByEmail(ctx context.Context, email string) (*domain.UserProjection, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *ProjectionRepository) FindByID(ctx context.Context, userID string) (*domain.UserProjection, error) {
	return r.findOne(ctx, bson.M{"_id": userID})
}

func (r *ProjectionRepository) findOne(ctx context.Context, filter bson.M) (*domain.UserProjection, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc projectionDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrProjectionStale
		}
		return nil, fmt.Errorf("find projection: %w", err)
	}
	return &domain.UserProjection{
		UserID:        doc.UserID,
		Email:         doc.Email,
		FirstName:     doc.FirstName,
		LastName:      doc.LastName,
		Role:          domain.Role(doc.Role),
		IsActive:      doc.IsActive,
		SourceEventID: doc.SourceEventID,
		CreatedAt:     doc.CreatedAt.UTC(),
		UpdatedAt:     doc.UpdatedAt.UTC(),
	}, nil
}

func (r *ProjectionRepository) Insert(ctx context.Context, p *domain.UserProjection) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.col.InsertOne(ctx, projectionDocument{
		UserID:        p.UserID,
		Email:         p.Email,
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		Role:          string(p.Role),
		IsActive:      p.IsActive,
		SourceEventID: p.SourceEventID,
		CreatedAt:     p.CreatedAt.UTC(),
		UpdatedAt:     p.UpdatedAt.UTC(),
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyApplied
		}
		return fmt.Errorf("insert projection: %w", err)
	}
	return nil
}

// Apply sets only the fields present in upd.
func (r *ProjectionRepository) Apply(ctx context.Context, upd domain.UserUpdatedPayload, eventID string) error {
	set := bson.M{"source_event_id": eventID, "updated_at": time.Now().UTC()}
	if upd.Email != nil {
		set["email"] = *upd.Email
	}
	if upd.FirstName != nil {
		set["first_name"] = *upd.FirstName
	}
	if upd.LastName != nil {
		set["last_name"] = *upd.LastName
	}
	if upd.IsActive != nil {
		set["is_active"] = *upd.IsActive
	}
	return r.update(ctx, upd.UserID, set)
}

func (r *ProjectionRepository) SetRole(ctx context.Context, userID string, role domain.Role, eventID string) error {
	return r.update(ctx, userID, bson.M{
		"role":            string(role),
		"source_event_id": eventID,
		"updated_at":      time.Now().UTC(),
	})
}

func (r *ProjectionRepository) update(ctx context.Context, userID string, set bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update projection: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrProjectionStale
	}
	return nil
}

// EnsureIndexes creates the unique natural-key index.
func (r *ProjectionRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
