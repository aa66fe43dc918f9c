package reports

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mirador-hq/mirador/internal/platform/httpx"
	"github.com/mirador-hq/mirador/internal/shared"
)

// Handler exposes period reports and statements over HTTP.
type Handler struct {
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// MountRoutes attaches reporting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{period}", h.getReport)
	r.Post("/{period}/generate", h.generate)
	r.Post("/{period}/close", h.closeReport)
	r.Get("/{period}/statements/{apartmentID}", h.statement)
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	period, ok := pathPeriod(w, r)
	if !ok {
		return
	}
	report, err := h.service.Get(r.Context(), period)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	period, ok := pathPeriod(w, r)
	if !ok {
		return
	}
	report, err := h.service.Generate(r.Context(), period)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) closeReport(w http.ResponseWriter, r *http.Request) {
	period, ok := pathPeriod(w, r)
	if !ok {
		return
	}
	actorID, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	if err := h.service.Close(r.Context(), period, actorID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request) {
	period, ok := pathPeriod(w, r)
	if !ok {
		return
	}
	apartmentID, err := strconv.ParseInt(chi.URLParam(r, "apartmentID"), 10, 64)
	if err != nil || apartmentID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "apartmentID must be a positive integer")
		return
	}
	stmt, err := h.service.Statement(r.Context(), apartmentID, period)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stmt)
}

func pathPeriod(w http.ResponseWriter, r *http.Request) (shared.Period, bool) {
	period, err := shared.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "period must be YYYY-MM")
		return "", false
	}
	return period, true
}
