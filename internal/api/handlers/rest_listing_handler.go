package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kaanagar1/equimarket-sub000/internal/api/middleware"
	"github.com/kaanagar1/equimarket-sub000/internal/models"
	"github.com/kaanagar1/equimarket-sub000/internal/services"
	"github.com/kaanagar1/equimarket-sub000/internal/storage"
	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

// ImageStore is the part of the object storage the listing handler uses.
type ImageStore interface {
	PresignImageUpload(ctx context.Context, sellerID, listingID, filename, contentType string) (string, string, error)
	DeleteObject(ctx context.Context, key string) error
	OwnsKey(listingID, key string) bool
}

// ImageEnqueuer schedules normalisation of an uploaded image.
type ImageEnqueuer interface {
	EnqueueImage(ctx context.Context, listingID utils.SixID, key string) error
}

// RestListingHandler handles REST requests for horse listings.
type RestListingHandler struct {
	Responder
	listingService services.IListingService
	images         ImageStore
	enqueuer       ImageEnqueuer
}

// NewRestListingHandler creates a new RestListingHandler.
func NewRestListingHandler(r Responder, listingService services.IListingService, images ImageStore, enqueuer ImageEnqueuer) *RestListingHandler {
	return &RestListingHandler{Responder: r, listingService: listingService, images: images, enqueuer: enqueuer}
}

// UploadURLRequest is the body of POST /v1/horses/:id/images/upload-url.
type UploadURLRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"contentType" binding:"required"`
}

// AttachImageRequest is the body of POST /v1/horses/:id/images.
type AttachImageRequest struct {
	Key string `json:"key" binding:"required"`
}

// RejectRequest is the body of POST /v1/admin/horses/:id/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// CreateListing handles POST /v1/horses
func (h *RestListingHandler) CreateListing(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	var in services.ListingInput
	if !h.bind(c, &in) {
		return
	}
	listing, err := h.listingService.Create(c.Request.Context(), actor.ID, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, listing)
}

// SearchListings handles GET /v1/horses
func (h *RestListingHandler) SearchListings(c *gin.Context) {
	var filter models.ListingFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.badRequest(c, "Invalid search parameters: "+err.Error())
		return
	}
	// Only admins may browse listings outside the active state.
	if actor, ok := middleware.Actor(c); !ok || !actor.IsAdmin {
		filter.Status = ""
	}
	filter.Seller = nil
	h.search(c, filter)
}

// SearchUserListings handles GET /v1/users/:id/horses
func (h *RestListingHandler) SearchUserListings(c *gin.Context) {
	sellerID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var filter models.ListingFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.badRequest(c, "Invalid search parameters: "+err.Error())
		return
	}
	filter.Seller = &sellerID
	actor, ok := middleware.Actor(c)
	if !ok || (!actor.IsAdmin && actor.ID != sellerID) {
		filter.Status = models.ListingActive
	}
	h.search(c, filter)
}

func (h *RestListingHandler) search(c *gin.Context, filter models.ListingFilter) {
	page, limit := pagination(c)
	result, err := h.listingService.Search(c.Request.Context(), filter, c.Query("sort"), page, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if result.Items == nil {
		result.Items = []models.Listing{}
	}
	h.ok(c, http.StatusOK, result)
}

// GetListingByID handles GET /v1/horses/:id
func (h *RestListingHandler) GetListingByID(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var viewer *services.Actor
	if actor, ok := middleware.Actor(c); ok {
		viewer = &actor
	}
	listing, err := h.listingService.View(c.Request.Context(), id, viewer)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, listing)
}

// UpdateListing handles PUT /v1/horses/:id
func (h *RestListingHandler) UpdateListing(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var in services.ListingUpdate
	if !h.bind(c, &in) {
		return
	}
	listing, err := h.listingService.Update(c.Request.Context(), id, actor, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, listing)
}

// DeleteListing handles DELETE /v1/horses/:id
func (h *RestListingHandler) DeleteListing(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	listing, err := h.listingService.Delete(c.Request.Context(), id, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	for _, key := range listing.Images {
		if err := h.images.DeleteObject(c.Request.Context(), key); err != nil {
			h.logger.Warn("failed to delete listing image", zap.Stringer("listing", id), zap.String("key", key), zap.Error(err))
		}
	}
	h.ok(c, http.StatusOK, gin.H{"deleted": id})
}

// RenewListing handles POST /v1/horses/:id/renew
func (h *RestListingHandler) RenewListing(c *gin.Context) {
	h.transition(c, h.listingService.Renew)
}

// MarkSold handles POST /v1/horses/:id/sold
func (h *RestListingHandler) MarkSold(c *gin.Context) {
	h.transition(c, h.listingService.MarkSold)
}

func (h *RestListingHandler) transition(c *gin.Context, apply func(context.Context, utils.SixID, services.Actor) (*models.Listing, error)) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	listing, err := apply(c.Request.Context(), id, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, listing)
}

// CreateUploadURL handles POST /v1/horses/:id/images/upload-url
func (h *RestListingHandler) CreateUploadURL(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var in UploadURLRequest
	if !h.bind(c, &in) {
		return
	}
	listing, err := h.listingService.AuthorizeMutation(c.Request.Context(), id, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	url, key, err := h.images.PresignImageUpload(c.Request.Context(), listing.Seller.String(), id.String(), in.Filename, in.ContentType)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedType) {
			h.fail(c, services.ErrValidation("unsupported image type %q", in.ContentType))
			return
		}
		h.fail(c, services.ErrInternal("failed to create upload url", err))
		return
	}
	h.ok(c, http.StatusOK, gin.H{"uploadUrl": url, "key": key})
}

// AttachImage handles POST /v1/horses/:id/images
func (h *RestListingHandler) AttachImage(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var in AttachImageRequest
	if !h.bind(c, &in) {
		return
	}
	if _, err := h.listingService.AuthorizeMutation(c.Request.Context(), id, actor); err != nil {
		h.fail(c, err)
		return
	}
	if !h.images.OwnsKey(id.String(), in.Key) {
		h.fail(c, services.ErrValidation("image key does not belong to this listing"))
		return
	}
	if err := h.enqueuer.EnqueueImage(c.Request.Context(), id, in.Key); err != nil {
		h.fail(c, services.ErrInternal("failed to schedule image processing", err))
		return
	}
	h.ok(c, http.StatusAccepted, gin.H{"key": in.Key, "status": "processing"})
}

// ListPending handles GET /v1/admin/horses/pending
func (h *RestListingHandler) ListPending(c *gin.Context) {
	page, limit := pagination(c)
	result, err := h.listingService.ListPending(c.Request.Context(), page, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if result.Items == nil {
		result.Items = []models.Listing{}
	}
	h.ok(c, http.StatusOK, result)
}

// ApproveListing handles POST /v1/admin/horses/:id/approve
func (h *RestListingHandler) ApproveListing(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	listing, err := h.listingService.Approve(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, listing)
}

// RejectListing handles POST /v1/admin/horses/:id/reject
func (h *RestListingHandler) RejectListing(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var in RejectRequest
	if !h.bind(c, &in) {
		return
	}
	listing, err := h.listingService.Reject(c.Request.Context(), id, in.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, listing)
}
