package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/zapagenda/zapagenda/libs/auth"
	"github.com/zapagenda/zapagenda/libs/httpx"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/catalog"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/model"
)

type CatalogHandler struct {
	catalog Catalog
	logger  *slog.Logger
}

func NewCatalogHandler(cat Catalog, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: cat, logger: logger.With("component", "catalog")}
}

type serviceRequest struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	DurationMinutes int             `json:"duration_minutes"`
	Price           decimal.Decimal `json:"price"`
	Active          *bool           `json:"active"`
}

func (req serviceRequest) input() catalog.ServiceInput {
	return catalog.ServiceInput{
		Name:            req.Name,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		Price:           req.Price,
		Active:          req.Active,
	}
}

type profileRequest struct {
	Name                string `json:"name"`
	Timezone            string `json:"timezone"`
	OpensAt             string `json:"opens_at"`
	ClosesAt            string `json:"closes_at"`
	SlotIntervalMinutes int    `json:"slot_interval_minutes"`
}

func (h *CatalogHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive"))
	services, err := h.catalog.ListServices(r.Context(), auth.OwnerFromContext(r.Context()), includeInactive)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]serviceResponse, 0, len(services))
	for _, s := range services {
		out = append(out, toService(s))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *CatalogHandler) GetService(w http.ResponseWriter, r *http.Request) {
	svc, err := h.catalog.GetService(r.Context(), auth.OwnerFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toService(svc))
}

func (h *CatalogHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	svc, err := h.catalog.CreateService(r.Context(), auth.OwnerFromContext(r.Context()), req.input())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toService(svc))
}

func (h *CatalogHandler) UpdateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	svc, err := h.catalog.UpdateService(r.Context(), auth.OwnerFromContext(r.Context()), r.PathValue("id"), req.input())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toService(svc))
}

func (h *CatalogHandler) DeactivateService(w http.ResponseWriter, r *http.Request) {
	svc, err := h.catalog.DeactivateService(r.Context(), auth.OwnerFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toService(svc))
}

func (h *CatalogHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Profile(r.Context(), auth.OwnerFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toProfile(p))
}

func (h *CatalogHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	p, err := h.catalog.UpdateProfile(r.Context(), model.BusinessProfile{
		OwnerID:             auth.OwnerFromContext(r.Context()),
		Name:                req.Name,
		Timezone:            req.Timezone,
		OpensAt:             req.OpensAt,
		ClosesAt:            req.ClosesAt,
		SlotIntervalMinutes: req.SlotIntervalMinutes,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toProfile(p))
}
