package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/thakurlabs/thakur/internal/store"
	"github.com/thakurlabs/thakur/internal/validation"
)

// DomainHandler answers subdomain availability checks.
type DomainHandler struct {
	store      store.Store
	baseDomain string
	logger     *slog.Logger
}

// NewDomainHandler creates a new domain handler.
func NewDomainHandler(st store.Store, baseDomain string, logger *slog.Logger) *DomainHandler {
	return &DomainHandler{
		store:      st,
		baseDomain: baseDomain,
		logger:     logger,
	}
}

// checkResponse is the availability answer for a subdomain.
type checkResponse struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// Check handles GET /domains/check?subdomain=…
func (h *DomainHandler) Check(w http.ResponseWriter, r *http.Request) {
	sub := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("subdomain")))
	if sub == "" {
		WriteValidationError(w, "subdomain query parameter is required")
		return
	}

	if err := validation.ValidateSubdomain(sub); err != nil {
		WriteJSON(w, http.StatusOK, checkResponse{Available: false, Reason: err.Error()})
		return
	}

	domain := sub
	if h.baseDomain != "" {
		domain = sub + "." + h.baseDomain
	}

	taken, err := h.store.Projects().DomainExists(r.Context(), domain)
	if err != nil {
		h.logger.Error("failed to check domain", "domain", domain, "error", err)
		WriteInternalError(w, "Failed to check domain availability")
		return
	}
	if taken {
		WriteJSON(w, http.StatusOK, checkResponse{Available: false, Reason: "This subdomain is already in use"})
		return
	}

	WriteJSON(w, http.StatusOK, checkResponse{Available: true})
}
