package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/beautyops/backend/internal/application/ordersync"
	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/interfaces/http/dto"
	"github.com/beautyops/backend/internal/interfaces/http/middleware"
)

// SSE event names of the run stream
const (
	EventProgress = "progress"
	EventResult   = "result"
)

// defaultRunsLimit is used when GET /order-sync/runs has no limit
const defaultRunsLimit = 20

// OrderSyncService is the part of the orchestrator the handler drives
type OrderSyncService interface {
	Start(ctx context.Context, req *integration.SyncRequest) (*ordersync.Run, error)
	Sync(ctx context.Context, req *integration.SyncRequest) (*integration.SyncResult, error)
	TestConnection(ctx context.Context, channel integration.ChannelCode, cred integration.Credential) error
	Mode() integration.SyncMode
	Location() *time.Location
	Channels() []integration.ChannelCode
	RecentRuns(ctx context.Context, channel integration.ChannelCode, limit int) ([]integration.SyncRun, error)
}

var _ OrderSyncService = (*ordersync.Orchestrator)(nil)

// OrderSyncHandler serves interactive sync runs
type OrderSyncHandler struct {
	BaseHandler
	service   OrderSyncService
	logger    *zap.Logger
	heartbeat time.Duration
}

// OrderSyncHandlerOption configures an OrderSyncHandler
type OrderSyncHandlerOption func(*OrderSyncHandler)

// WithOrderSyncLogger sets the logger
func WithOrderSyncLogger(logger *zap.Logger) OrderSyncHandlerOption {
	return func(h *OrderSyncHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithStreamHeartbeat sets the keep-alive interval of the run stream
func WithStreamHeartbeat(interval time.Duration) OrderSyncHandlerOption {
	return func(h *OrderSyncHandler) {
		if interval > 0 {
			h.heartbeat = interval
		}
	}
}

// NewOrderSyncHandler creates a new OrderSyncHandler
func NewOrderSyncHandler(service OrderSyncService, opts ...OrderSyncHandlerOption) *OrderSyncHandler {
	h := &OrderSyncHandler{
		service:   service,
		logger:    zap.NewNop(),
		heartbeat: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Sync godoc
// @ID           runOrderSync
// @Summary      Run an order sync
// @Description  Synchronizes one channel over a date range and returns the terminal result
// @Tags         order-sync
// @Accept       json
// @Produce      json
// @Param        request body dto.SyncRunRequest true "Sync request"
// @Success      200 {object} APIResponse[integration.SyncResult]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Router       /order-sync/runs [post]
func (h *OrderSyncHandler) Sync(c *gin.Context) {
	req, ok := h.bindSyncRequest(c)
	if !ok {
		return
	}

	result, err := h.service.Sync(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondResult(c, result)
}

// Stream godoc
// @ID           streamOrderSync
// @Summary      Run an order sync with progress
// @Description  Starts a sync and streams "progress" events followed by one "result" event
// @Tags         order-sync
// @Accept       json
// @Produce      text/event-stream
// @Param        request body dto.SyncRunRequest true "Sync request"
// @Success      200 {string} string "SSE stream"
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /order-sync/runs/stream [post]
func (h *OrderSyncHandler) Stream(c *gin.Context) {
	req, ok := h.bindSyncRequest(c)
	if !ok {
		return
	}

	run, err := h.service.Start(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.Header().Set("X-Sync-Run-ID", run.ID())
	c.Status(http.StatusOK)
	c.Writer.Flush()

	h.logger.Info("Sync stream opened",
		zap.String("run_id", run.ID()),
		zap.String("channel", run.Channel().String()),
		zap.String("request_id", middleware.GetRequestID(c)))

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	reqCtx := c.Request.Context()
	progress := run.Progress()
	seq := 0
	for progress != nil {
		select {
		case <-reqCtx.Done():
			// the run context derives from the request, so the run stops too
			run.Cancel()
			h.logger.Info("Sync stream client disconnected", zap.String("run_id", run.ID()))
			return
		case <-ticker.C:
			fmt.Fprint(c.Writer, ": keep-alive\n\n")
			c.Writer.Flush()
		case p, open := <-progress:
			if !open {
				progress = nil
				continue
			}
			seq++
			h.sendEvent(c.Writer, EventProgress, seq, p)
			c.Writer.Flush()
		}
	}

	seq++
	h.sendEvent(c.Writer, EventResult, seq, run.Wait())
	c.Writer.Flush()
}

// sendEvent writes one SSE event with a JSON payload
func (h *OrderSyncHandler) sendEvent(w io.Writer, event string, id int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal SSE event", zap.String("event", event), zap.Error(err))
		return
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "id: %d\n", id)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// Test godoc
// @ID           testOrderSyncConnection
// @Summary      Test marketplace credentials
// @Description  Signs the credential and exchanges it for a token, which is discarded
// @Tags         order-sync
// @Accept       json
// @Produce      json
// @Param        request body dto.TestConnectionRequest true "Credential"
// @Success      200 {object} APIResponse[dto.TestConnectionResponse]
// @Failure      401 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Router       /order-sync/test [post]
func (h *OrderSyncHandler) Test(c *gin.Context) {
	var req dto.TestConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	channel, err := integration.ParseChannelCode(req.Channel)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	middleware.SetSpanChannel(c, channel.String())

	cred := integration.Credential{ClientID: req.ClientID, ClientSecret: req.ClientSecret}
	if err := h.service.TestConnection(c.Request.Context(), channel, cred); err != nil {
		h.logger.Warn("Connection test failed",
			zap.String("channel", channel.String()),
			zap.Error(err))
		h.HandleError(c, err)
		return
	}

	h.Success(c, dto.TestConnectionResponse{
		Channel: channel,
		Mode:    h.service.Mode(),
		Message: fmt.Sprintf("%s connection ok", channel.DisplayName()),
	})
}

// ListRuns godoc
// @ID           listOrderSyncRuns
// @Summary      List recent sync runs
// @Tags         order-sync
// @Produce      json
// @Param        channel query string false "Channel code"
// @Param        limit   query int    false "Max entries (1-100)"
// @Success      200 {object} APIResponse[[]dto.SyncRunResponse]
// @Router       /order-sync/runs [get]
func (h *OrderSyncHandler) ListRuns(c *gin.Context) {
	var req dto.ListRunsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	var channel integration.ChannelCode
	if req.Channel != "" {
		parsed, err := integration.ParseChannelCode(req.Channel)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		channel = parsed
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultRunsLimit
	}

	runs, err := h.service.RecentRuns(c.Request.Context(), channel, limit)
	if err != nil {
		h.logger.Error("Failed to list sync runs", zap.Error(err))
		h.HandleError(c, err)
		return
	}

	out := make([]dto.SyncRunResponse, len(runs))
	for i := range runs {
		out[i] = dto.NewSyncRunResponse(runs[i])
	}
	h.Success(c, out)
}

// Channels godoc
// @ID           listOrderSyncChannels
// @Summary      List marketplace channels
// @Tags         order-sync
// @Produce      json
// @Success      200 {object} APIResponse[dto.ChannelsResponse]
// @Router       /order-sync/channels [get]
func (h *OrderSyncHandler) Channels(c *gin.Context) {
	configured := make(map[integration.ChannelCode]bool)
	for _, ch := range h.service.Channels() {
		configured[ch] = true
	}

	resp := dto.ChannelsResponse{Mode: h.service.Mode()}
	for _, ch := range integration.AllChannels() {
		resp.Channels = append(resp.Channels, dto.ChannelResponse{
			Code:        ch,
			DisplayName: ch.DisplayName(),
			Configured:  configured[ch],
		})
	}
	h.Success(c, resp)
}

// bindSyncRequest binds and converts the run body, writing the error response itself
func (h *OrderSyncHandler) bindSyncRequest(c *gin.Context) (*integration.SyncRequest, bool) {
	var body dto.SyncRunRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		middleware.HandleValidationError(c, err)
		return nil, false
	}
	req, err := body.ToDomain(h.service.Location())
	if err != nil {
		h.HandleError(c, err)
		return nil, false
	}
	middleware.SetSpanChannel(c, req.Channel.String())
	return req, true
}

// respondResult writes a terminal result. Failed runs carry the result as
// data next to the error so partial counts stay visible.
func (h *OrderSyncHandler) respondResult(c *gin.Context, result *integration.SyncResult) {
	if result.Success {
		h.Success(c, result)
		return
	}

	code, _ := errorCode(result.Err)
	c.JSON(dto.GetHTTPStatus(code), dto.Response{
		Success: false,
		Data:    result,
		Error: &dto.ErrorInfo{
			Code:      code,
			Message:   result.Message,
			RequestID: middleware.GetRequestID(c),
		},
	})
}
