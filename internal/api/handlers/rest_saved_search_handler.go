package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kaanagar1/equimarket-sub000/internal/models"
	"github.com/kaanagar1/equimarket-sub000/internal/services"
)

// RestSavedSearchHandler manages the caller's saved searches.
type RestSavedSearchHandler struct {
	Responder
	savedSearchService services.ISavedSearchService
}

// NewRestSavedSearchHandler creates a new RestSavedSearchHandler.
func NewRestSavedSearchHandler(r Responder, savedSearchService services.ISavedSearchService) *RestSavedSearchHandler {
	return &RestSavedSearchHandler{Responder: r, savedSearchService: savedSearchService}
}

// CreateSavedSearch handles POST /v1/saved-searches
func (h *RestSavedSearchHandler) CreateSavedSearch(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	var in services.SavedSearchInput
	if !h.bind(c, &in) {
		return
	}
	search, err := h.savedSearchService.Create(c.Request.Context(), actor.ID, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, search)
}

// ListSavedSearches handles GET /v1/saved-searches
func (h *RestSavedSearchHandler) ListSavedSearches(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	searches, err := h.savedSearchService.List(c.Request.Context(), actor.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if searches == nil {
		searches = []models.SavedSearch{}
	}
	h.ok(c, http.StatusOK, searches)
}

// UpdateSavedSearch handles PUT /v1/saved-searches/:id
func (h *RestSavedSearchHandler) UpdateSavedSearch(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var in services.SavedSearchInput
	if !h.bind(c, &in) {
		return
	}
	search, err := h.savedSearchService.Update(c.Request.Context(), actor.ID, id, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, search)
}

// DeleteSavedSearch handles DELETE /v1/saved-searches/:id
func (h *RestSavedSearchHandler) DeleteSavedSearch(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.savedSearchService.Delete(c.Request.Context(), actor.ID, id); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, gin.H{"deleted": id})
}
