package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-storefront/internal/store"
)

func (h *Handler) ListProducts(c *gin.Context) {
	page, pageSize := pageParams(c)

	result, err := store.ListProducts(c.Request.Context(), h.db,
		c.Query("category"), c.Query("search"), page, pageSize)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid product ID")
		return
	}

	product, err := store.GetProduct(c.Request.Context(), h.db, id)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, product)
}

func (h *Handler) GetOrder(c *gin.Context) {
	order, err := store.GetOrder(c.Request.Context(), h.db, c.Param("number"))
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}
