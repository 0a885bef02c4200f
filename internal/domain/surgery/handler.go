package surgery

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/renandw/anesthesiaReports-sub000/internal/platform/auth"
	"github.com/renandw/anesthesiaReports-sub000/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/surgeries", auth.RequireRole(auth.ClinicalRoles...))
	g.GET("", h.List)
	g.POST("", h.Create)
	g.POST("/precheck", h.Precheck)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.POST("/:id/claim", h.Claim)
}

func (h *Handler) Precheck(c echo.Context) error {
	userID, err := caller(c)
	if err != nil {
		return err
	}
	var f Fields
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cands, err := h.svc.Precheck(c.Request().Context(), userID, f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, PrecheckResponse{Candidates: cands})
}

func (h *Handler) Create(c echo.Context) error {
	userID, err := caller(c)
	if err != nil {
		return err
	}
	var f Fields
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sg, err := h.svc.Create(c.Request().Context(), userID, f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sg)
}

func (h *Handler) Get(c echo.Context) error {
	userID, err := caller(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sg, err := h.svc.Get(c.Request().Context(), userID, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sg)
}

func (h *Handler) Update(c echo.Context) error {
	userID, err := caller(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var f Fields
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sg, err := h.svc.Update(c.Request().Context(), userID, id, f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sg)
}

func (h *Handler) Claim(c echo.Context) error {
	userID, err := caller(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Claim(c.Request().Context(), userID, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) List(c echo.Context) error {
	userID, err := caller(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), userID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func caller(c echo.Context) (string, error) {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing caller identity")
	}
	return userID, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "surgery not found")
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "no access to surgery")
	case errors.Is(err, ErrAlreadyClaimed):
		return echo.NewHTTPError(http.StatusConflict, "surgery already shared with caller")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}
