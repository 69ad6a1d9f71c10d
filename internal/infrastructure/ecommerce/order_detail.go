package ecommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/beautyops/backend/internal/domain/integration"
)

// ChunkIdentifiers splits ids into consecutive chunks of at most size ids.
// size is capped at MaxDetailChunkSize.
func ChunkIdentifiers(ids []integration.OrderIdentifier, size int) [][]integration.OrderIdentifier {
	if size <= 0 || size > MaxDetailChunkSize {
		size = MaxDetailChunkSize
	}
	if len(ids) == 0 {
		return nil
	}

	chunks := make([][]integration.OrderIdentifier, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// DetailResolver fetches product order details in bounded chunks.
// A failed chunk is logged and skipped; it never fails the caller.
type DetailResolver struct {
	client  *NaverClient
	channel integration.ChannelCode
	logger  *zap.Logger
}

// NewDetailResolver creates a resolver for channel
func NewDetailResolver(client *NaverClient, channel integration.ChannelCode) *DetailResolver {
	return &DetailResolver{
		client:  client,
		channel: channel,
		logger:  client.logger,
	}
}

// chunkResult is the outcome of one chunk, kept in chunk order
type chunkResult struct {
	records  []*integration.OrderRecord
	failures []error
	skipped  int
}

// Resolve maps every returned detail into an OrderRecord. Records keep the
// order of the chunks; onBatch is called once per chunk, serialized.
func (r *DetailResolver) Resolve(ctx context.Context, token *integration.AccessToken, ids []integration.OrderIdentifier, onBatch func(integration.DetailBatchOutcome)) *integration.DetailResolution {
	cfg := r.client.config
	chunks := ChunkIdentifiers(ids, cfg.DetailChunkSize)
	results := make([]chunkResult, len(chunks))

	var mu sync.Mutex
	report := func(outcome integration.DetailBatchOutcome) {
		if onBatch == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		onBatch(outcome)
	}

	var g errgroup.Group
	g.SetLimit(cfg.DetailWorkers)

	for i, chunk := range chunks {
		g.Go(func() error {
			results[i] = r.resolveChunk(ctx, token, chunk, i+1, len(chunks))

			var batchErr error
			if len(results[i].failures) > 0 {
				if _, ok := results[i].failures[0].(*integration.DetailBatchError); ok {
					batchErr = results[i].failures[0]
				}
			}
			report(integration.DetailBatchOutcome{
				Batch:     i + 1,
				Batches:   len(chunks),
				Requested: len(chunk),
				Resolved:  len(results[i].records),
				Err:       batchErr,
			})
			return nil
		})
	}
	_ = g.Wait()

	resolution := &integration.DetailResolution{}
	for _, res := range results {
		resolution.Records = append(resolution.Records, res.records...)
		resolution.Failures = append(resolution.Failures, res.failures...)
		resolution.Skipped += res.skipped
	}
	return resolution
}

func (r *DetailResolver) resolveChunk(ctx context.Context, token *integration.AccessToken, chunk []integration.OrderIdentifier, batch, batches int) chunkResult {
	raw, err := r.fetchChunk(ctx, token, chunk, batch, batches)
	if err != nil {
		r.logger.Warn("order detail batch skipped",
			zap.String("channel", r.channel.String()),
			zap.Int("batch", batch),
			zap.Int("batches", batches),
			zap.Int("size", len(chunk)),
			zap.Error(err))
		return chunkResult{failures: []error{err}, skipped: len(chunk)}
	}

	res := chunkResult{records: make([]*integration.OrderRecord, 0, len(raw))}
	for _, item := range raw {
		record, err := MapProductOrder(item, r.channel, r.client.config.Location)
		if err != nil {
			res.failures = append(res.failures, err)
			continue
		}
		res.records = append(res.records, record)
	}
	// Ids upstream did not return are skipped as well.
	res.skipped = max(0, len(chunk)-len(res.records))
	return res
}

func (r *DetailResolver) fetchChunk(ctx context.Context, token *integration.AccessToken, chunk []integration.OrderIdentifier, batch, batches int) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, &integration.DetailBatchError{Batch: batch, Batches: batches, Size: len(chunk), Err: err}
	}

	start := time.Now()
	resp, err := r.client.queryProductOrders(ctx, token, chunk)
	if err != nil {
		return nil, &integration.DetailBatchError{Batch: batch, Batches: batches, Size: len(chunk), Err: err}
	}
	if !resp.OK() {
		return nil, &integration.DetailBatchError{
			Batch:      batch,
			Batches:    batches,
			Size:       len(chunk),
			StatusCode: resp.StatusCode,
			Message:    resp.Message(),
		}
	}

	var body productOrderQueryResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, &integration.DetailBatchError{
			Batch:      batch,
			Batches:    batches,
			Size:       len(chunk),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode details: %w", err),
		}
	}

	r.logger.Debug("order detail batch resolved",
		zap.String("channel", r.channel.String()),
		zap.Int("batch", batch),
		zap.Int("batches", batches),
		zap.Int("returned", len(body.Data)),
		zap.Duration("duration", time.Since(start)))

	return body.Data, nil
}
