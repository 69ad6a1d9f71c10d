package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/interfaces/http/dto"
	"github.com/beautyops/backend/internal/interfaces/http/middleware"
)

// OrderHandler lists synchronized orders
type OrderHandler struct {
	BaseHandler
	orders integration.OrderRepository
	loc    *time.Location
	logger *zap.Logger
}

// NewOrderHandler creates a new OrderHandler. Date filters are read in loc.
func NewOrderHandler(orders integration.OrderRepository, loc *time.Location, logger *zap.Logger) *OrderHandler {
	if loc == nil {
		loc = integration.DefaultChannelLocation()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderHandler{orders: orders, loc: loc, logger: logger}
}

// ListOrders godoc
// @ID           listOrders
// @Summary      List synchronized orders
// @Description  Lists persisted orders, newest first, filtered by channel and order date
// @Tags         orders
// @Produce      json
// @Param        channel     query string false "Channel code"
// @Param        start_date  query string false "First order date (YYYY-MM-DD)"
// @Param        end_date    query string false "Last order date (YYYY-MM-DD)"
// @Param        page        query int    false "Page number" default(1)
// @Param        page_size   query int    false "Page size" default(20)
// @Param        sort_by     query string false "Sort field" default(order_datetime)
// @Param        sort_order  query string false "asc or desc" default(desc)
// @Param        include_raw query bool   false "Include upstream payloads"
// @Success      200 {object} APIResponse[[]dto.OrderResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /orders [get]
func (h *OrderHandler) ListOrders(c *gin.Context) {
	var req dto.ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	filter := integration.OrderFilter{
		Page:      req.Page,
		PageSize:  req.PageSize,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	}
	if req.Channel != "" {
		channel, err := integration.ParseChannelCode(req.Channel)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		filter.Channel = channel
	}
	if req.StartDate != "" {
		filter.From, _ = time.ParseInLocation(time.DateOnly, req.StartDate, h.loc)
	}
	if req.EndDate != "" {
		filter.To, _ = time.ParseInLocation(time.DateOnly, req.EndDate, h.loc)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		h.ErrorWithCode(c, dto.ErrCodeInvalidRange, "start_date must not be after end_date")
		return
	}
	filter.Normalize()

	records, total, err := h.orders.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list orders", zap.Error(err))
		h.HandleError(c, err)
		return
	}

	out := make([]dto.OrderResponse, len(records))
	for i := range records {
		out[i] = dto.NewOrderResponse(records[i], req.IncludeRaw)
	}
	h.SuccessWithMeta(c, out, total, filter.Page, filter.PageSize)
}
