package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kaanagar1/equimarket-sub000/internal/services"
)

// RestReviewHandler handles seller reviews.
type RestReviewHandler struct {
	Responder
	reviewService services.IReviewService
}

// NewRestReviewHandler creates a new RestReviewHandler.
func NewRestReviewHandler(r Responder, reviewService services.IReviewService) *RestReviewHandler {
	return &RestReviewHandler{Responder: r, reviewService: reviewService}
}

// CreateReview handles POST /v1/users/:id/reviews
func (h *RestReviewHandler) CreateReview(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	sellerID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var in services.ReviewInput
	if !h.bind(c, &in) {
		return
	}
	review, err := h.reviewService.Create(c.Request.Context(), actor.ID, sellerID, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, review)
}

// ListReviews handles GET /v1/users/:id/reviews
func (h *RestReviewHandler) ListReviews(c *gin.Context) {
	sellerID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	reviews, err := h.reviewService.ListForSeller(c.Request.Context(), sellerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, reviews)
}
