package httpserver

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"shopfront/internal/domain"
	productrepo "shopfront/internal/repository/product"
	checkoutsvc "shopfront/internal/service/checkout"
	productsvc "shopfront/internal/service/product"
)

// Listing presets: "new" is the last month, "popular" is bought at least
// popularMinBought times.
const (
	popularMinBought = 3
	newWindow        = 30 * 24 * time.Hour
)

type restockRequest struct {
	Quantity int `json:"quantity"`
}

type checkoutResponse struct {
	InvoiceID string `json:"invoiceId"`
}

func (h *handlers) listProducts(c *gin.Context) {
	f, err := parseProductFilter(c, time.Now())
	if err != nil {
		abortWithError(c, err)
		return
	}
	list, err := h.deps.ProductSvc.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handlers) getProduct(c *gin.Context) {
	p, err := h.deps.ProductSvc.Get(c.Request.Context(), c.Param("productId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handlers) createProduct(c *gin.Context) {
	var req productsvc.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	p, err := h.deps.ProductSvc.Create(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *handlers) updateProduct(c *gin.Context) {
	var req productsvc.UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	p, err := h.deps.ProductSvc.Update(c.Request.Context(), c.Param("productId"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handlers) deleteProduct(c *gin.Context) {
	if err := h.deps.ProductSvc.Delete(c.Request.Context(), c.Param("productId")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) restockProduct(c *gin.Context) {
	var req restockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	p, err := h.deps.ProductSvc.Restock(c.Request.Context(), c.Param("productId"), req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// buyProduct is the direct checkout path: one product, one option, no basket.
func (h *handlers) buyProduct(c *gin.Context) {
	var opt domain.Option
	if err := c.ShouldBindJSON(&opt); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	p, _ := principalFrom(c)
	inv, err := h.deps.CheckoutSvc.CheckoutItems(c.Request.Context(), p.UserID, []checkoutsvc.Item{
		{ProductID: c.Param("productId"), Option: opt},
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, checkoutResponse{InvoiceID: inv.ID})
}

func parseProductFilter(c *gin.Context, now time.Time) (productrepo.Filter, error) {
	f := productrepo.Filter{
		CategoryID: c.Query("category"),
		Colors:     splitList(c.Query("colors")),
		Sizes:      splitList(c.Query("sizes")),
	}

	switch c.Query("type") {
	case "":
	case "new":
		after := now.Add(-newWindow)
		f.CreatedAfter = &after
	case "popular":
		f.MinBought = popularMinBought
	default:
		return f, domain.Validation("unknown listing type").With("type", c.Query("type"))
	}

	var err error
	if f.MinPrice, err = decimalParam(c, "minPrice"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = decimalParam(c, "maxPrice"); err != nil {
		return f, err
	}
	if v := c.Query("createdAfter"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, domain.Validation("createdAfter must be RFC3339")
		}
		f.CreatedAfter = &t
	}
	if v := c.Query("minBought"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, domain.Validation("minBought must be a non-negative integer")
		}
		f.MinBought = n
	}
	if f.Sort, err = parseSort(c.Query("sort")); err != nil {
		return f, err
	}
	return f, nil
}

// parseSort accepts both names and the legacy numeric codes 1..3.
func parseSort(v string) (productrepo.Sort, error) {
	switch strings.ToLower(v) {
	case "":
		return productrepo.SortNone, nil
	case "1", "price_desc":
		return productrepo.SortPriceDesc, nil
	case "2", "price_asc":
		return productrepo.SortPriceAsc, nil
	case "3", "newest":
		return productrepo.SortNewest, nil
	}
	return productrepo.SortNone, domain.Validation("unknown sort").With("sort", v)
}

func decimalParam(c *gin.Context, key string) (*decimal.Decimal, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, domain.Validation("%s must be a number", key)
	}
	return &d, nil
}

func splitList(v string) []string {
	return lo.FilterMap(strings.Split(v, ","), func(s string, _ int) (string, bool) {
		s = strings.TrimSpace(s)
		return s, s != ""
	})
}
