package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/infrastructure/scheduler"
	"github.com/beautyops/backend/internal/interfaces/http/dto"
	"github.com/beautyops/backend/internal/interfaces/http/middleware"
)

// JobScheduler is the part of the order sync scheduler the handler drives
type JobScheduler interface {
	ScheduleSync(channel integration.ChannelCode, window integration.SyncWindow, trigger integration.SyncTrigger) (*scheduler.OrderSyncJob, error)
	ScheduleLookback(channel integration.ChannelCode, trigger integration.SyncTrigger) (*scheduler.OrderSyncJob, error)
	GetJob(id uuid.UUID) (scheduler.OrderSyncJobView, error)
	GetRecentJobs(channel integration.ChannelCode, limit int) []scheduler.OrderSyncJobView
	Location() *time.Location
}

var _ JobScheduler = (*scheduler.OrderSyncScheduler)(nil)

// SchedulerHandler queues background sync jobs and reports their state
type SchedulerHandler struct {
	BaseHandler
	scheduler JobScheduler
	logger    *zap.Logger
}

// NewSchedulerHandler creates a new SchedulerHandler
func NewSchedulerHandler(s JobScheduler, logger *zap.Logger) *SchedulerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchedulerHandler{scheduler: s, logger: logger}
}

// ScheduleJob godoc
// @ID           scheduleOrderSyncJob
// @Summary      Queue a background sync
// @Description  Queues a sync job; without dates the scheduler lookback window is used
// @Tags         order-sync
// @Accept       json
// @Produce      json
// @Param        request body dto.ScheduleJobRequest true "Job request"
// @Success      202 {object} APIResponse[scheduler.OrderSyncJobView]
// @Failure      400 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /order-sync/jobs [post]
func (h *SchedulerHandler) ScheduleJob(c *gin.Context) {
	var req dto.ScheduleJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	channel, err := integration.ParseChannelCode(req.Channel)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	var job *scheduler.OrderSyncJob
	if req.StartDate == "" {
		job, err = h.scheduler.ScheduleLookback(channel, integration.SyncTriggerAPI)
	} else {
		var window integration.SyncWindow
		window, err = integration.ParseSyncWindow(req.StartDate, req.EndDate, h.scheduler.Location())
		if err == nil {
			job, err = h.scheduler.ScheduleSync(channel, window, integration.SyncTriggerAPI)
		}
	}
	if err != nil {
		h.logger.Warn("Failed to schedule sync job",
			zap.String("channel", channel.String()),
			zap.Error(err))
		h.HandleError(c, err)
		return
	}

	h.Accepted(c, job.Snapshot())
}

// ListJobs godoc
// @ID           listOrderSyncJobs
// @Summary      List background sync jobs
// @Tags         order-sync
// @Produce      json
// @Param        channel query string false "Channel code"
// @Param        limit   query int    false "Max entries (1-100)"
// @Success      200 {object} APIResponse[[]scheduler.OrderSyncJobView]
// @Router       /order-sync/jobs [get]
func (h *SchedulerHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
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
	h.Success(c, h.scheduler.GetRecentJobs(channel, req.Limit))
}

// GetJob godoc
// @ID           getOrderSyncJob
// @Summary      Get a background sync job
// @Tags         order-sync
// @Produce      json
// @Param        id path string true "Job ID" format(uuid)
// @Success      200 {object} APIResponse[scheduler.OrderSyncJobView]
// @Failure      404 {object} ErrorResponse
// @Router       /order-sync/jobs/{id} [get]
func (h *SchedulerHandler) GetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid job ID format")
		return
	}
	job, err := h.scheduler.GetJob(id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, job)
}
