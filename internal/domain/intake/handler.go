package intake

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/intakes")

	g.POST("", h.CreateIntake)
	g.GET("", h.ListMyIntakes)
	g.GET("/:id", h.GetIntake)

	g.POST("/:id/submit", h.SubmitIntake)
	g.POST("/:id/confirm-payment", h.ConfirmPayment)
	g.POST("/:id/provide-info", h.ProvideInfo)
	g.POST("/:id/cancel", h.CancelIntake)

	review := g.Group("", auth.RequireCapability(auth.CapReviewIntake))
	review.POST("/:id/start-review", h.StartReview)
	review.POST("/:id/request-info", h.RequestInfo)
	review.POST("/:id/approve", h.ApproveIntake)
	review.POST("/:id/decline", h.DeclineIntake)
	review.POST("/:id/mark-sent", h.MarkScriptSent)
	review.POST("/:id/undo-sent", h.UndoScriptSent)

	g.POST("/:id/priority", h.MarkPriority, auth.RequireCapability(auth.CapEscalate))
}

func (h *Handler) CreateIntake(c echo.Context) error {
	var input CreateInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in, err := h.svc.Create(c.Request().Context(), actor(c), input)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, in)
}

func (h *Handler) ListMyIntakes(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMine(c.Request().Context(), actor(c), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetIntake(c echo.Context) error {
	id, err := intakeID(c)
	if err != nil {
		return err
	}
	in, err := h.svc.Get(c.Request().Context(), actor(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, in)
}

func (h *Handler) SubmitIntake(c echo.Context) error {
	return h.transition(c, h.svc.Submit)
}

func (h *Handler) ConfirmPayment(c echo.Context) error {
	id, err := intakeID(c)
	if err != nil {
		return err
	}
	var body struct {
		History PatientHistory `json:"patient_history"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in, err := h.svc.ConfirmPayment(c.Request().Context(), actor(c), id, body.History)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, in)
}

func (h *Handler) StartReview(c echo.Context) error {
	return h.transition(c, h.svc.StartReview)
}

func (h *Handler) RequestInfo(c echo.Context) error {
	id, err := intakeID(c)
	if err != nil {
		return err
	}
	var body struct {
		Questions []string `json:"questions"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in, err := h.svc.RequestInfo(c.Request().Context(), actor(c), id, body.Questions)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, in)
}

func (h *Handler) ProvideInfo(c echo.Context) error {
	id, err := intakeID(c)
	if err != nil {
		return err
	}
	var body struct {
		Answers map[string]any `json:"answers"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in, err := h.svc.ProvideInfo(c.Request().Context(), actor(c), id, body.Answers)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, in)
}

func (h *Handler) ApproveIntake(c echo.Context) error {
	return h.transition(c, h.svc.Approve)
}

func (h *Handler) DeclineIntake(c echo.Context) error {
	id, err := intakeID(c)
	if err != nil {
		return err
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in, err := h.svc.Decline(c.Request().Context(), actor(c), id, body.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, in)
}

func (h *Handler) CancelIntake(c echo.Context) error {
	return h.transition(c, h.svc.Cancel)
}

func (h *Handler) MarkScriptSent(c echo.Context) error {
	id, err := intakeID(c)
	if err != nil {
		return err
	}
	var body struct {
		Channel string `json:"channel"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in, err := h.svc.MarkScriptSent(c.Request().Context(), actor(c), id, body.Channel)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, in)
}

func (h *Handler) UndoScriptSent(c echo.Context) error {
	return h.transition(c, h.svc.UndoScriptSent)
}

func (h *Handler) MarkPriority(c echo.Context) error {
	id, err := intakeID(c)
	if err != nil {
		return err
	}
	var body struct {
		Priority bool `json:"priority"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in, err := h.svc.MarkPriority(c.Request().Context(), actor(c), id, body.Priority)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, in)
}

// transition handles the operations that take no request body.
func (h *Handler) transition(c echo.Context, op func(ctx context.Context, a auth.Actor, id uuid.UUID) (*Intake, error)) error {
	id, err := intakeID(c)
	if err != nil {
		return err
	}
	in, err := op(c.Request().Context(), actor(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, in)
}

func intakeID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid intake id")
	}
	return id, nil
}

func actor(c echo.Context) auth.Actor {
	return auth.ActorFromContext(c.Request().Context())
}

// httpError maps domain errors onto HTTP status codes.
func httpError(err error) error {
	var pre *PreconditionError
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "intake not found")
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "not allowed")
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "intake was modified concurrently")
	case errors.As(err, &pre):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, pre.Message)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
