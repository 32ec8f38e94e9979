package httpserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
	cartsvc "storefront/internal/service/cart"
)

type cartAPI interface {
	Cart() domain.Cart
	Subscribe() (<-chan domain.Cart, func())
	AddProduct(ctx context.Context, productID string, quantity int) (domain.Cart, error)
	UpdateQuantity(ctx context.Context, productID string, quantity int) (domain.Cart, error)
	RemoveFromCart(ctx context.Context, productID string) (domain.Cart, error)
	ClearCart(ctx context.Context) domain.Cart
	SaveForLater(ctx context.Context, productID string) (domain.Cart, error)
	MoveToCart(ctx context.Context, productID string) (domain.Cart, error)
	RemoveSaved(ctx context.Context, productID string) (domain.Cart, error)
	ApplyDiscountCode(ctx context.Context, code string) (cartsvc.DiscountResult, error)
	SetDiscountAmount(ctx context.Context, cents int64) (domain.Cart, error)
	RemoveDiscount(ctx context.Context) domain.Cart
	ShippingEstimate() domain.ShippingEstimate
	TaxEstimate() int64
	Checkout(ctx context.Context) (string, error)
	SaveCartForLater(ctx context.Context) error
	LoadSavedCart(ctx context.Context) (domain.Cart, error)
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

type discountRequest struct {
	Code        string `json:"code"`
	AmountCents *int64 `json:"amountCents"`
}

func (h *handlers) getCart(c *gin.Context) {
	c.JSON(http.StatusOK, h.cart.Cart())
}

func (h *handlers) clearCart(c *gin.Context) {
	c.JSON(http.StatusOK, h.cart.ClearCart(c.Request.Context()))
}

func (h *handlers) addCartItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ProductID == "" {
		badRequest(c, "productId required")
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	h.respondCart(c)(h.cart.AddProduct(c.Request.Context(), req.ProductID, qty))
}

func (h *handlers) updateCartItem(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Quantity == nil {
		badRequest(c, "quantity required")
		return
	}
	h.respondCart(c)(h.cart.UpdateQuantity(c.Request.Context(), c.Param("productId"), *req.Quantity))
}

func (h *handlers) removeCartItem(c *gin.Context) {
	h.respondCart(c)(h.cart.RemoveFromCart(c.Request.Context(), c.Param("productId")))
}

func (h *handlers) saveForLater(c *gin.Context) {
	h.respondCart(c)(h.cart.SaveForLater(c.Request.Context(), c.Param("productId")))
}

func (h *handlers) moveToCart(c *gin.Context) {
	h.respondCart(c)(h.cart.MoveToCart(c.Request.Context(), c.Param("productId")))
}

func (h *handlers) removeSaved(c *gin.Context) {
	h.respondCart(c)(h.cart.RemoveSaved(c.Request.Context(), c.Param("productId")))
}

// applyDiscount accepts either a discount code or a fixed amount in cents.
func (h *handlers) applyDiscount(c *gin.Context) {
	var req discountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	ctx := c.Request.Context()
	switch {
	case req.Code != "":
		res, err := h.cart.ApplyDiscountCode(ctx, req.Code)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"result": res, "cart": h.cart.Cart()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"result": res, "cart": h.cart.Cart()})
	case req.AmountCents != nil:
		h.respondCart(c)(h.cart.SetDiscountAmount(ctx, *req.AmountCents))
	default:
		badRequest(c, "code or amountCents required")
	}
}

func (h *handlers) removeDiscount(c *gin.Context) {
	c.JSON(http.StatusOK, h.cart.RemoveDiscount(c.Request.Context()))
}

func (h *handlers) cartEstimates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"shipping": h.cart.ShippingEstimate(),
		"taxCents": h.cart.TaxEstimate(),
		"delivery": h.cart.Cart().Delivery,
	})
}

func (h *handlers) checkout(c *gin.Context) {
	id, err := h.cart.Checkout(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "orderId": id})
}

func (h *handlers) saveSnapshot(c *gin.Context) {
	if err := h.cart.SaveCartForLater(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) restoreSnapshot(c *gin.Context) {
	h.respondCart(c)(h.cart.LoadSavedCart(c.Request.Context()))
}

// cartEvents streams cart snapshots as server-sent events until the client
// goes away or the server shuts down.
func (h *handlers) cartEvents(c *gin.Context) {
	updates, cancel := h.cart.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.shutdown:
			return
		case cart, ok := <-updates:
			if !ok {
				return
			}
			c.SSEvent("cart", cart)
			c.Writer.Flush()
		}
	}
}

func (h *handlers) respondCart(c *gin.Context) func(domain.Cart, error) {
	return func(cart domain.Cart, err error) {
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, cart)
	}
}
