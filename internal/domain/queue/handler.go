package queue

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/telecare/telecare/internal/domain/intake"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/pkg/pagination"
)

type Handler struct {
	svc  *Service
	bulk *Coordinator
}

func NewHandler(svc *Service, bulk *Coordinator) *Handler {
	return &Handler{svc: svc, bulk: bulk}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/queue", auth.RequireCapability(auth.CapReviewIntake))

	g.GET("", h.ListQueue)
	g.GET("/summary", h.GetSummary)

	bulk := g.Group("", auth.RequireCapability(auth.CapBulkReview))
	bulk.POST("/bulk-approve", h.BulkApprove)
	bulk.POST("/bulk-decline", h.BulkDecline)
}

func (h *Handler) ListQueue(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := FilterFromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), actor(c), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetSummary(c echo.Context) error {
	sum, err := h.svc.Summary(c.Request().Context(), actor(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

type bulkRequest struct {
	IDs    []uuid.UUID `json:"ids"`
	Reason string      `json:"reason"`
}

func (h *Handler) BulkApprove(c echo.Context) error {
	var req bulkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.bulk.BulkApprove(c.Request().Context(), actor(c), req.IDs)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) BulkDecline(c echo.Context) error {
	var req bulkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.bulk.BulkDecline(c.Request().Context(), actor(c), req.IDs, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func actor(c echo.Context) auth.Actor {
	return auth.ActorFromContext(c.Request().Context())
}

func httpError(err error) error {
	switch {
	case errors.Is(err, intake.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "not allowed")
	case intake.IsPrecondition(err):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
