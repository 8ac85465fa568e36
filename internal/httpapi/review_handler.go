package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-storefront/internal/store"
)

type createReviewRequest struct {
	ProductID    int64  `json:"product_id" binding:"required"`
	CustomerName string `json:"customer_name" binding:"required"`
	Rating       int    `json:"rating" binding:"required,min=1,max=5"`
	Title        string `json:"title"`
	Comment      string `json:"comment" binding:"required"`
}

func (h *Handler) CreateReview(c *gin.Context) {
	var req createReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body: rating must be 1-5 and product, name and comment are required")
		return
	}

	review, err := store.CreateReview(c.Request.Context(), h.db,
		req.ProductID, req.CustomerName, req.Rating, req.Title, req.Comment)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, review)
}

func (h *Handler) ListReviews(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Query("product_id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "product_id query parameter is required")
		return
	}

	page, pageSize := pageParams(c)

	result, err := store.ListProductReviews(c.Request.Context(), h.db, productID, page, pageSize)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
