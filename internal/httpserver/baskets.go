package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shopfront/internal/domain"
)

func (h *handlers) listBaskets(c *gin.Context) {
	p, _ := principalFrom(c)
	list, err := h.deps.BasketSvc.ListBaskets(c.Request.Context(), p.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handlers) addBasket(c *gin.Context) {
	p, _ := principalFrom(c)
	list, err := h.deps.BasketSvc.AddBasket(c.Request.Context(), p.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, list)
}

func (h *handlers) removeBasket(c *gin.Context) {
	p, _ := principalFrom(c)
	list, err := h.deps.BasketSvc.RemoveBasket(c.Request.Context(), p.UserID, c.Param("basketId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handlers) getBasket(c *gin.Context) {
	p, _ := principalFrom(c)
	b, err := h.deps.BasketSvc.Get(c.Request.Context(), p.UserID, c.Param("basketId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *handlers) addBasketLine(c *gin.Context) {
	var opt domain.Option
	if err := c.ShouldBindJSON(&opt); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	p, _ := principalFrom(c)
	b, err := h.deps.BasketSvc.AddLine(c.Request.Context(), p.UserID, c.Param("basketId"), c.Param("productId"), opt)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *handlers) removeBasketLine(c *gin.Context) {
	p, _ := principalFrom(c)
	b, err := h.deps.BasketSvc.RemoveLine(c.Request.Context(), p.UserID, c.Param("basketId"), c.Param("productId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *handlers) buyBasket(c *gin.Context) {
	p, _ := principalFrom(c)
	inv, err := h.deps.BasketSvc.Checkout(c.Request.Context(), p.UserID, c.Param("basketId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, checkoutResponse{InvoiceID: inv.ID})
}

func (h *handlers) inviteMember(c *gin.Context) {
	p, _ := principalFrom(c)
	if err := h.deps.BasketSvc.Invite(c.Request.Context(), p.UserID, c.Param("basketId"), c.Param("userId")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) kickMember(c *gin.Context) {
	p, _ := principalFrom(c)
	if err := h.deps.BasketSvc.Kick(c.Request.Context(), p.UserID, c.Param("basketId"), c.Param("userId")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) acceptInvite(c *gin.Context) {
	p, _ := principalFrom(c)
	list, err := h.deps.BasketSvc.AcceptInvite(c.Request.Context(), p.UserID, c.Param("basketId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
