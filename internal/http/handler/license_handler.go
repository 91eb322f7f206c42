package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/licensebot/licensebot/internal/domain"
	"github.com/licensebot/licensebot/internal/http/response"
	"github.com/licensebot/licensebot/internal/observability"
	"github.com/licensebot/licensebot/internal/repository"
	"github.com/licensebot/licensebot/internal/service"
)

const defaultRevoker = "web-admin"

type LicenseHandler struct {
	licenses service.LicenseServiceInterface
}

func NewLicenseHandler(licenses service.LicenseServiceInterface) *LicenseHandler {
	return &LicenseHandler{licenses: licenses}
}

type licenseListResponse struct {
	Licenses   []domain.License `json:"licenses"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	TotalPages int              `json:"totalPages"`
}

// List serves ?page&limit&search. Missing or non-positive numbers fall back
// to page 1 and 50 per page.
func (h *LicenseHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := repository.LicenseQuery{
		PageRequest: repository.PageRequest{
			Page:     atoiOrZero(q.Get("page")),
			PageSize: atoiOrZero(q.Get("limit")),
		},
		Search: q.Get("search"),
	}
	res, err := h.licenses.Search(r.Context(), query)
	if err != nil {
		slog.ErrorContext(r.Context(), "fetch licenses", "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "Failed to fetch licenses")
		return
	}
	response.JSON(w, r, http.StatusOK, licenseListResponse{
		Licenses:   res.Items,
		Total:      res.Total,
		Page:       res.Page,
		TotalPages: res.TotalPages,
	})
}

func (h *LicenseHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.licenses.Stats(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "fetch stats", "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "Failed to fetch statistics")
		return
	}
	response.JSON(w, r, http.StatusOK, stats)
}

type revokeRequest struct {
	AdminID string `json:"adminId"`
}

type revokeResponse struct {
	Success bool            `json:"success"`
	License *domain.License `json:"license"`
}

func (h *LicenseHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}
	revokedBy := strings.TrimSpace(req.AdminID)
	if revokedBy == "" {
		revokedBy = defaultRevoker
	}

	ctx := service.WithRevocationSource(r.Context(), "api")
	lic, err := h.licenses.Revoke(ctx, userID, revokedBy)
	var already *service.AlreadyRevokedError
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrLicenseNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "License not found")
		return
	case errors.As(err, &already):
		response.Error(w, r, http.StatusBadRequest, "ALREADY_REVOKED", "License already revoked")
		return
	default:
		slog.ErrorContext(r.Context(), "revoke license", "user_id", userID, "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "Failed to revoke license")
		return
	}
	observability.Audit(r, "license.revoked", "target_user_id", userID, "revoked_by", revokedBy)
	response.JSON(w, r, http.StatusOK, revokeResponse{Success: true, License: lic})
}

func atoiOrZero(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}
