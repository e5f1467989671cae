package deid

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/deid/internal/platform/auth"
	"github.com/ehr/deid/internal/platform/fhir"
	"github.com/ehr/deid/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Transform endpoints – admin, anonymizer
	write := api.Group("", auth.RequireRole(auth.RoleAnonymizer))
	write.POST("/anonymize", h.Anonymize)
	write.POST("/anonymize/batch", h.AnonymizeBatch)
	write.POST("/anonymize/bundle", h.AnonymizeBundle)
	write.POST("/anonymize/patient/:id", h.AnonymizeStoredPatient)
	write.POST("/anonymize/all", h.AnonymizeAll)

	// Read endpoints – admin, anonymizer, reader
	read := api.Group("", auth.RequireRole(auth.RoleAnonymizer, auth.RoleReader))
	read.GET("/stats", h.Stats)
	read.GET("/cache/stats", h.CacheStats)
	read.GET("/anonymized/:type", h.ListAnonymized)
	read.GET("/anonymized/:type/:id", h.GetAnonymized)
}

type anonymizeRequest struct {
	Resource            json.RawMessage   `json:"resource"`
	CrossReferenceHints map[string]string `json:"crossReferenceHints"`
}

type batchRequest struct {
	Resources []json.RawMessage `json:"resources"`
}

func (h *Handler) Anonymize(c echo.Context) error {
	var req anonymizeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("request body must be a JSON object"))
	}
	if len(req.Resource) == 0 {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("resource is required"))
	}
	res, err := h.svc.AnonymizeDocument(c.Request().Context(), req.Resource, req.CrossReferenceHints)
	if err != nil {
		return h.errorOutcome(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) AnonymizeBatch(c echo.Context) error {
	var req batchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("request body must be a JSON object"))
	}
	if len(req.Resources) == 0 {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("resources must not be empty"))
	}
	return c.JSON(http.StatusOK, h.svc.AnonymizeDocuments(c.Request().Context(), req.Resources))
}

// AnonymizeBundle accepts a FHIR Bundle (for example a Synthea patient
// bundle) and answers with an anonymized collection Bundle.
func (h *Handler) AnonymizeBundle(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("could not read request body"))
	}
	bundle, _, err := h.svc.AnonymizeBundle(c.Request().Context(), body)
	if err != nil {
		return h.errorOutcome(c, err)
	}
	return c.JSON(http.StatusOK, bundle)
}

func (h *Handler) AnonymizeStoredPatient(c echo.Context) error {
	id := c.Param("id")
	res, err := h.svc.AnonymizeStoredPatient(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("Patient", id))
	}
	if err != nil {
		return h.errorOutcome(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) AnonymizeAll(c echo.Context) error {
	summary, err := h.svc.AnonymizeAll(c.Request().Context())
	if err != nil {
		return h.errorOutcome(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return h.errorOutcome(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) CacheStats(c echo.Context) error {
	stats := h.svc.CacheStats()
	return c.JSON(http.StatusOK, map[string]any{"classes": stats, "total": stats.Total()})
}

func (h *Handler) ListAnonymized(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAnonymized(c.Request().Context(), c.Param("type"), pg.Limit, pg.Offset)
	if err != nil {
		return h.errorOutcome(c, err)
	}
	if items == nil {
		items = []*AnonymizedResource{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetAnonymized(c echo.Context) error {
	rt, id := c.Param("type"), c.Param("id")
	a, err := h.svc.GetAnonymized(c.Request().Context(), rt, id)
	if errors.Is(err, ErrNotFound) {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome(rt, id))
	}
	if err != nil {
		return h.errorOutcome(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// errorOutcome maps invalid input to 400 and everything else to 500, both
// as an OperationOutcome.
func (h *Handler) errorOutcome(c echo.Context, err error) error {
	if IsInvalidInput(err) {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}
	h.svc.logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome("internal error"))
}
