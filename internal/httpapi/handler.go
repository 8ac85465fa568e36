// Package httpapi exposes the storefront over HTTP.
package httpapi

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-storefront/internal/checkout"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/logging"
	"github.com/safar/go-storefront/internal/payment"
)

type Handler struct {
	db            *sql.DB
	orchestrator  *checkout.Orchestrator
	webhookSecret string
}

func NewHandler(db *sql.DB, orchestrator *checkout.Orchestrator, webhookSecret string) *Handler {
	return &Handler{
		db:            db,
		orchestrator:  orchestrator,
		webhookSecret: webhookSecret,
	}
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// respondDomainError maps the error taxonomy to HTTP: validation and
// business-rule failures are 400 with their reason, missing records 404,
// provider rejections pass through as 400 or 502, anything else is a 500
// with the message suppressed.
func (h *Handler) respondDomainError(c *gin.Context, err error) {
	var validationErr checkout.ValidationError
	var stockErr *checkout.InsufficientStockError
	var promoErr *checkout.PromoRejectedError
	var providerErr *payment.ProviderError

	switch {
	case errors.As(err, &validationErr),
		errors.As(err, &stockErr),
		errors.As(err, &promoErr):
		respondError(c, http.StatusBadRequest, err.Error())

	case errors.Is(err, checkout.ErrDuplicateCheckout):
		respondError(c, http.StatusConflict, err.Error())

	case errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrVariantNotFound),
		errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrCustomerNotFound),
		errors.Is(err, database.ErrReviewNotFound):
		respondError(c, http.StatusNotFound, err.Error())

	case errors.As(err, &providerErr):
		status := http.StatusBadRequest
		if providerErr.StatusCode >= http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		respondError(c, status, providerErr.Message)

	default:
		logging.FromCtx(c.Request.Context()).Error("internal error",
			"path", c.Request.URL.Path, "error", err)
		respondError(c, http.StatusInternalServerError, "Something went wrong, please try again")
	}
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
