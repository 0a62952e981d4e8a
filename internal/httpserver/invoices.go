package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *handlers) listInvoices(c *gin.Context) {
	p, _ := principalFrom(c)
	list, err := h.deps.InvoiceSvc.ListMine(c.Request.Context(), p.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handlers) getInvoice(c *gin.Context) {
	p, _ := principalFrom(c)
	inv, err := h.deps.InvoiceSvc.Get(c.Request.Context(), p.UserID, p.IsAdmin(), c.Param("invoiceId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// payInvoice is the payment callback. It carries no credentials.
func (h *handlers) payInvoice(c *gin.Context) {
	if err := h.deps.InvoiceSvc.Pay(c.Request.Context(), c.Param("invoiceId")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paid": true})
}

func (h *handlers) fulfillInvoice(c *gin.Context) {
	p, _ := principalFrom(c)
	inv, err := h.deps.InvoiceSvc.Fulfill(c.Request.Context(), p.IsAdmin(), c.Param("invoiceId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}
