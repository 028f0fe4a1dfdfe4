package generation

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/synthrec/synthrec/internal/platform/auth"
	"github.com/synthrec/synthrec/pkg/pagination"
)

type Handler struct {
	svc  *Service
	repo Repository
}

// NewHandler wires the generation endpoints. repo may be nil, in which case
// the history endpoints answer 404s.
func NewHandler(svc *Service, repo Repository) *Handler {
	return &Handler{svc: svc, repo: repo}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/generate", h.Generate, auth.RequireRole("researcher"))
	api.GET("/runs", h.ListRuns)
	api.GET("/runs/:id", h.GetRun)
	api.GET("/runs/:id/documents", h.ListDocuments)
	api.GET("/runs/:id/export/ndjson", h.ExportNDJSON)
	api.GET("/runs/:id/export/csv", h.ExportCSV)
}

func (h *Handler) Generate(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Run(c.Request().Context(), &req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ListRuns(c echo.Context) error {
	if h.repo == nil {
		return echo.NewHTTPError(http.StatusNotFound, "run history is not enabled")
	}
	p := pagination.FromContext(c)
	runs, total, err := h.repo.ListRuns(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if runs == nil {
		runs = []*StoredRun{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(runs, total, p.Limit, p.Offset).WithLinks(c.Request().URL.Path))
}

func (h *Handler) runID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}
	return id, nil
}

func (h *Handler) GetRun(c echo.Context) error {
	if h.repo == nil {
		return echo.NewHTTPError(http.StatusNotFound, "run history is not enabled")
	}
	id, err := h.runID(c)
	if err != nil {
		return err
	}
	run, err := h.repo.GetRun(c.Request().Context(), id)
	if errors.Is(err, ErrRunNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, run)
}

func (h *Handler) ListDocuments(c echo.Context) error {
	if h.repo == nil {
		return echo.NewHTTPError(http.StatusNotFound, "run history is not enabled")
	}
	id, err := h.runID(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	docs, total, err := h.repo.ListDocuments(c.Request().Context(), id, p.Limit, p.Offset)
	if errors.Is(err, ErrRunNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if docs == nil {
		docs = []*StoredDocument{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(docs, total, p.Limit, p.Offset).WithLinks(c.Request().URL.Path))
}

// exportDocs loads every document of a run for the export endpoints.
func (h *Handler) exportDocs(c echo.Context) ([]*StoredDocument, error) {
	if h.repo == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "run history is not enabled")
	}
	id, err := h.runID(c)
	if err != nil {
		return nil, err
	}

	var out []*StoredDocument
	const page = 500
	for offset := 0; ; offset += page {
		docs, total, err := h.repo.ListDocuments(c.Request().Context(), id, page, offset)
		if errors.Is(err, ErrRunNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		out = append(out, docs...)
		if offset+page >= total {
			return out, nil
		}
	}
}

func (h *Handler) ExportNDJSON(c echo.Context) error {
	docs, err := h.exportDocs(c)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/x-ndjson")
	c.Response().WriteHeader(http.StatusOK)
	return WriteStoredNDJSON(c.Response(), docs)
}

func (h *Handler) ExportCSV(c echo.Context) error {
	docs, err := h.exportDocs(c)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().WriteHeader(http.StatusOK)
	return WriteStoredCSV(c.Response(), docs)
}
