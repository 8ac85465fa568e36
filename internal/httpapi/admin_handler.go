package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-storefront/internal/inventory"
	"github.com/safar/go-storefront/internal/store"
	"github.com/shopspring/decimal"
)

type createPromoRequest struct {
	Code          string           `json:"code" binding:"required"`
	DiscountType  string           `json:"discount_type" binding:"required,oneof=percentage fixed"`
	DiscountValue decimal.Decimal  `json:"discount_value" binding:"required"`
	MinAmount     decimal.Decimal  `json:"min_amount"`
	MaxDiscount   *decimal.Decimal `json:"max_discount"`
	ValidFrom     time.Time        `json:"valid_from" binding:"required"`
	ValidUntil    time.Time        `json:"valid_until" binding:"required"`
	UsageLimit    int              `json:"usage_limit"`
}

func (h *Handler) CreatePromo(c *gin.Context) {
	var req createPromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.DiscountValue.LessThanOrEqual(decimal.Zero) {
		respondError(c, http.StatusBadRequest, "discount_value must be positive")
		return
	}
	if !req.ValidUntil.After(req.ValidFrom) {
		respondError(c, http.StatusBadRequest, "valid_until must be after valid_from")
		return
	}

	var maxDiscount decimal.NullDecimal
	if req.MaxDiscount != nil {
		maxDiscount = decimal.NewNullDecimal(*req.MaxDiscount)
	}

	promoCode, err := store.CreatePromoCode(c.Request.Context(), h.db, store.CreatePromoParams{
		Code:          req.Code,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		MinAmount:     req.MinAmount,
		MaxDiscount:   maxDiscount,
		ValidFrom:     req.ValidFrom,
		ValidUntil:    req.ValidUntil,
		UsageLimit:    req.UsageLimit,
	})
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, promoCode)
}

type adjustStockRequest struct {
	VariantID   int64  `json:"variant_id" binding:"required"`
	NewQuantity int    `json:"new_quantity" binding:"min=0"`
	Reason      string `json:"reason" binding:"required"`
}

func (h *Handler) AdjustStock(c *gin.Context) {
	var req adjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	movement, err := inventory.Adjust(c.Request.Context(), h.db, req.VariantID, req.NewQuantity, req.Reason)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	if movement == nil {
		c.JSON(http.StatusOK, gin.H{"changed": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": true, "movement": movement})
}

// CheckInventory reports variants whose stock has drifted from the
// movement ledger.
func (h *Handler) CheckInventory(c *gin.Context) {
	discrepancies, err := inventory.CheckLedger(c.Request.Context(), h.db)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"consistent":    len(discrepancies) == 0,
		"discrepancies": discrepancies,
	})
}

func (h *Handler) FulfilOrder(c *gin.Context) {
	order, transitioned, err := store.MarkOrderFulfilled(c.Request.Context(), h.db, c.Param("number"))
	if err != nil {
		h.respondDomainError(c, err)
		return
	}
	if !transitioned {
		respondError(c, http.StatusConflict, "Order is not in a fulfillable state")
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) ApproveReview(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid review ID")
		return
	}

	if err := store.ApproveReview(c.Request.Context(), h.db, id); err != nil {
		h.respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"approved": true})
}
