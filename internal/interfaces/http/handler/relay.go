package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/infrastructure/ecommerce"
	"github.com/beautyops/backend/internal/infrastructure/relay"
	"github.com/beautyops/backend/internal/interfaces/http/middleware"
)

// RawOrderFeed runs the Naver pipeline without mapping the detail objects
type RawOrderFeed interface {
	Authenticate(ctx context.Context, cred integration.Credential) (*integration.AccessToken, error)
	FetchRaw(ctx context.Context, cred integration.Credential, window integration.SyncWindow) (*ecommerce.RawOrders, error)
}

var _ RawOrderFeed = (*ecommerce.NaverFeed)(nil)

// RelayHandler serves the relay endpoints. Every response uses the relay
// envelope so relay.Client can decode failures as well as successes.
type RelayHandler struct {
	feed   RawOrderFeed
	loc    *time.Location
	logger *zap.Logger
}

// NewRelayHandler creates a new RelayHandler. Request dates are read in loc.
func NewRelayHandler(feed RawOrderFeed, loc *time.Location, logger *zap.Logger) *RelayHandler {
	if loc == nil {
		loc = integration.DefaultChannelLocation()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelayHandler{feed: feed, loc: loc, logger: logger}
}

// Test exchanges a token for the posted credential and discards it
func (h *RelayHandler) Test(c *gin.Context) {
	var req relay.TestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "clientId and clientSecret are required")
		return
	}

	cred := integration.Credential{ClientID: req.ClientID, ClientSecret: req.ClientSecret}
	if _, err := h.feed.Authenticate(c.Request.Context(), cred); err != nil {
		h.logger.Warn("Relay connection test failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err))
		h.failErr(c, err)
		return
	}

	c.JSON(http.StatusOK, relay.Response{Success: true, Message: "connection ok"})
}

// Sync runs the whole pipeline and returns the raw detail objects
func (h *RelayHandler) Sync(c *gin.Context) {
	var req relay.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "clientId, clientSecret, startDate and endDate (YYYY-MM-DD) are required")
		return
	}
	window, err := integration.ParseSyncWindow(req.StartDate, req.EndDate, h.loc)
	if err != nil {
		h.failErr(c, err)
		return
	}

	logger := h.logger.With(
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.String("start_date", window.StartDate()),
		zap.String("end_date", window.EndDate()))
	started := time.Now()

	cred := integration.Credential{ClientID: req.ClientID, ClientSecret: req.ClientSecret}
	raw, err := h.feed.FetchRaw(c.Request.Context(), cred, window)
	if err != nil {
		logger.Warn("Relay sync failed", zap.Error(err))
		h.failErr(c, err)
		return
	}

	data := &relay.SyncData{Orders: raw.Orders, Pages: raw.Pages}
	if data.Orders == nil {
		data.Orders = []json.RawMessage{}
	}
	for _, f := range raw.Failures {
		data.Failures = append(data.Failures, batchFailure(f))
	}

	logger.Info("Relay sync served",
		zap.Int("pages", raw.Pages),
		zap.Int("orders", len(raw.Orders)),
		zap.Int("failed_batches", len(raw.Failures)),
		zap.Duration("elapsed", time.Since(started)))

	c.JSON(http.StatusOK, relay.Response{Success: true, Data: data})
}

// batchFailure converts a skipped chunk into its wire form
func batchFailure(err error) relay.BatchFailure {
	var batchErr *integration.DetailBatchError
	if errors.As(err, &batchErr) {
		msg := batchErr.Message
		if msg == "" && batchErr.Err != nil {
			msg = batchErr.Err.Error()
		}
		return relay.BatchFailure{
			Batch:      batchErr.Batch,
			Batches:    batchErr.Batches,
			Size:       batchErr.Size,
			StatusCode: batchErr.StatusCode,
			Message:    msg,
		}
	}
	return relay.BatchFailure{Message: err.Error()}
}

func (h *RelayHandler) failErr(c *gin.Context, err error) {
	var authErr *integration.AuthenticationError
	switch {
	case errors.As(err, &authErr):
		msg := authErr.Message
		if msg == "" {
			msg = err.Error()
		}
		h.fail(c, http.StatusUnauthorized, msg)
	case errors.Is(err, integration.ErrInvalidDateRange),
		errors.Is(err, integration.ErrMissingCredential),
		errors.Is(err, integration.ErrSigning):
		h.fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.fail(c, http.StatusGatewayTimeout, err.Error())
	default:
		h.fail(c, http.StatusBadGateway, err.Error())
	}
}

func (h *RelayHandler) fail(c *gin.Context, status int, message string) {
	c.JSON(status, relay.Response{Success: false, Error: message})
}
