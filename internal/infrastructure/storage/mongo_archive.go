package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/beautyops/backend/internal/domain/integration"
	infraconfig "github.com/beautyops/backend/internal/infrastructure/config"
)

// Ensure MongoPayloadArchive implements PayloadArchive
var _ integration.PayloadArchive = (*MongoPayloadArchive)(nil)

// MongoPayloadArchive stores one document per archived order.
// Re-archiving the same order in the same run replaces the document.
type MongoPayloadArchive struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewMongoPayloadArchive connects to MongoDB and prepares the archive collection
func NewMongoPayloadArchive(ctx context.Context, cfg *infraconfig.ArchiveConfig, logger *zap.Logger) (*MongoPayloadArchive, error) {
	if cfg == nil || cfg.MongoURI == "" {
		return nil, errors.New("archive mongo uri is required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	a := NewMongoPayloadArchiveWithCollection(client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection), logger)
	a.client = client

	if err := a.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return a, nil
}

// NewMongoPayloadArchiveWithCollection creates an archive over an existing collection
func NewMongoPayloadArchiveWithCollection(collection *mongo.Collection, logger *zap.Logger) *MongoPayloadArchive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoPayloadArchive{
		collection: collection,
		logger:     logger,
	}
}

// EnsureIndexes creates the lookup indexes used by operators
func (a *MongoPayloadArchive) EnsureIndexes(ctx context.Context) error {
	_, err := a.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "run_id", Value: 1}, {Key: "channel", Value: 1}, {Key: "order_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "channel", Value: 1}, {Key: "order_id", Value: 1}, {Key: "captured_at", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create archive indexes: %w", err)
	}
	return nil
}

// Archive upserts one document per record
func (a *MongoPayloadArchive) Archive(ctx context.Context, batch integration.PayloadBatch) error {
	payloads := payloadsOf(batch)
	if len(payloads) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(payloads))
	for _, p := range payloads {
		filter := bson.D{
			{Key: "run_id", Value: p.RunID},
			{Key: "channel", Value: p.Channel},
			{Key: "order_id", Value: p.OrderID},
		}
		doc := bson.M{
			"run_id":      p.RunID,
			"channel":     p.Channel,
			"order_id":    p.OrderID,
			"order_date":  p.OrderDate,
			"sequence":    p.Sequence,
			"captured_at": p.CapturedAt,
			"payload":     payloadDocument(p),
		}
		models = append(models, mongo.NewReplaceOneModel().SetFilter(filter).SetReplacement(doc).SetUpsert(true))
	}

	res, err := a.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("failed to archive payloads: %w", err)
	}

	a.logger.Debug("Archived raw payloads",
		zap.String("run_id", batch.RunID),
		zap.Int("records", len(payloads)),
		zap.Int64("upserted", res.UpsertedCount),
		zap.Int64("modified", res.ModifiedCount))
	return nil
}

// payloadDocument converts a JSON object payload to BSON; anything else is stored as null
func payloadDocument(p ArchivedPayload) any {
	var doc bson.D
	if err := bson.UnmarshalExtJSON(p.Payload, false, &doc); err != nil {
		return nil
	}
	return doc
}

// Close disconnects the client owned by the archive
func (a *MongoPayloadArchive) Close(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	return a.client.Disconnect(ctx)
}
