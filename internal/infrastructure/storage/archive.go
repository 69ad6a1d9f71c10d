// Package storage keeps verbatim upstream order payloads for audit.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/beautyops/backend/internal/domain/integration"
	infraconfig "github.com/beautyops/backend/internal/infrastructure/config"
)

// ArchivedPayload is one archived order: a JSON line in S3, a document in MongoDB
type ArchivedPayload struct {
	RunID      string                  `json:"runId" bson:"run_id"`
	Channel    integration.ChannelCode `json:"channel" bson:"channel"`
	OrderID    string                  `json:"orderId" bson:"order_id"`
	OrderDate  string                  `json:"orderDate,omitempty" bson:"order_date,omitempty"`
	Sequence   int                     `json:"sequence" bson:"sequence"`
	CapturedAt time.Time               `json:"capturedAt" bson:"captured_at"`
	Payload    json.RawMessage         `json:"payload" bson:"-"`
}

// payloadsOf flattens a batch. Records without a raw payload are kept with a null payload.
func payloadsOf(batch integration.PayloadBatch) []ArchivedPayload {
	out := make([]ArchivedPayload, 0, len(batch.Records))
	for _, r := range batch.Records {
		if r == nil {
			continue
		}
		p := ArchivedPayload{
			RunID:      batch.RunID,
			Channel:    batch.Channel,
			OrderID:    r.ExternalOrderID,
			Sequence:   batch.Sequence,
			CapturedAt: batch.CapturedAt.UTC(),
			Payload:    r.RawPayload,
		}
		if !r.OrderDate.IsZero() {
			p.OrderDate = r.OrderDate.Format(time.DateOnly)
		}
		if len(p.Payload) == 0 || !json.Valid(p.Payload) {
			p.Payload = json.RawMessage("null")
		}
		out = append(out, p)
	}
	return out
}

// ArchiveKey returns the object key of one archived page:
// {prefix}/{channel}/{yyyy-mm-dd}/{run_id}/{sequence}.jsonl
func ArchiveKey(prefix string, batch integration.PayloadBatch) string {
	key := fmt.Sprintf("%s/%s/%s/%05d.jsonl",
		batch.Channel,
		batch.CapturedAt.Format(time.DateOnly),
		batch.RunID,
		batch.Sequence)
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

// NoopPayloadArchive is used when archiving is disabled
type NoopPayloadArchive struct{}

// NewNoopPayloadArchive creates a disabled archive
func NewNoopPayloadArchive() *NoopPayloadArchive {
	return &NoopPayloadArchive{}
}

// Archive always returns integration.ErrArchiveDisabled
func (NoopPayloadArchive) Archive(context.Context, integration.PayloadBatch) error {
	return integration.ErrArchiveDisabled
}

var _ integration.PayloadArchive = (*NoopPayloadArchive)(nil)

// NewPayloadArchive builds the archive selected by cfg.Driver
func NewPayloadArchive(ctx context.Context, cfg *infraconfig.ArchiveConfig, logger *zap.Logger) (integration.PayloadArchive, error) {
	switch cfg.Driver {
	case "", infraconfig.ArchiveDriverNone:
		return NewNoopPayloadArchive(), nil
	case infraconfig.ArchiveDriverS3:
		a, err := NewS3PayloadArchive(ctx, cfg, WithLogger(logger))
		if err != nil {
			return nil, err
		}
		if err := a.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return a, nil
	case infraconfig.ArchiveDriverMongo:
		return NewMongoPayloadArchive(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
}
