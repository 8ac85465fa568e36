package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-storefront/internal/store"
)

type updateUserRequest struct {
	Email     string `json:"email" binding:"required,email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Marketing bool   `json:"marketing_opt_in"`
	Address   *struct {
		Line1    string `json:"line1" binding:"required"`
		Line2    string `json:"line2"`
		City     string `json:"city" binding:"required"`
		Postcode string `json:"postcode" binding:"required"`
		Country  string `json:"country"`
	} `json:"address"`
}

// UpdateUser upserts the customer profile and, when given, replaces the
// default shipping address.
func (h *Handler) UpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	customer, err := store.UpsertCustomer(c.Request.Context(), h.db,
		req.Email, req.FirstName, req.LastName, req.Marketing)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	response := gin.H{"customer": customer}

	if req.Address != nil {
		country := req.Address.Country
		if country == "" {
			country = "GB"
		}

		address, err := store.SetDefaultAddress(c.Request.Context(), h.db, customer.ID, store.AddressParams{
			Line1:    req.Address.Line1,
			Line2:    req.Address.Line2,
			City:     req.Address.City,
			Postcode: req.Address.Postcode,
			Country:  country,
		})
		if err != nil {
			h.respondDomainError(c, err)
			return
		}
		response["address"] = address
	}

	c.JSON(http.StatusOK, response)
}
