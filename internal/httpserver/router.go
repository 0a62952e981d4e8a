package httpserver

import (
	"context"
	"errors"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"shopfront/internal/domain"
	productrepo "shopfront/internal/repository/product"
	checkoutsvc "shopfront/internal/service/checkout"
	productsvc "shopfront/internal/service/product"
	usersvc "shopfront/internal/service/user"
)

type userService interface {
	Register(ctx context.Context, in usersvc.RegisterInput) (*domain.User, usersvc.TokenPair, error)
	Login(ctx context.Context, email, password string) (usersvc.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (usersvc.TokenPair, error)
	Authenticate(accessToken string) (usersvc.Principal, error)
	Get(ctx context.Context, id string) (*domain.User, error)
}

type productService interface {
	Create(ctx context.Context, in productsvc.CreateInput) (*domain.Product, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
	List(ctx context.Context, f productrepo.Filter) ([]domain.Product, error)
	Update(ctx context.Context, id string, in productsvc.UpdateInput) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
	Restock(ctx context.Context, id string, quantity int) (*domain.Product, error)
}

type basketService interface {
	Get(ctx context.Context, userID, basketID string) (*domain.Basket, error)
	AddLine(ctx context.Context, userID, basketID, productID string, opt domain.Option) (*domain.Basket, error)
	RemoveLine(ctx context.Context, userID, basketID, productID string) (*domain.Basket, error)
	Checkout(ctx context.Context, userID, basketID string) (*domain.Invoice, error)
	ListBaskets(ctx context.Context, userID string) ([]domain.Membership, error)
	AddBasket(ctx context.Context, userID string) ([]domain.Membership, error)
	RemoveBasket(ctx context.Context, userID, basketID string) ([]domain.Membership, error)
	Invite(ctx context.Context, requesterID, basketID, targetID string) error
	Kick(ctx context.Context, requesterID, basketID, targetID string) error
	AcceptInvite(ctx context.Context, userID, basketID string) ([]domain.Membership, error)
}

type checkoutService interface {
	CheckoutItems(ctx context.Context, purchaserID string, items []checkoutsvc.Item) (*domain.Invoice, error)
}

type invoiceService interface {
	Get(ctx context.Context, requesterID string, admin bool, invoiceID string) (*domain.Invoice, error)
	ListMine(ctx context.Context, userID string) ([]domain.Invoice, error)
	Pay(ctx context.Context, invoiceID string) error
	Fulfill(ctx context.Context, admin bool, invoiceID string) (*domain.Invoice, error)
}

// Deps carries the services the router dispatches to.
type Deps struct {
	UserSvc     userService
	ProductSvc  productService
	BasketSvc   basketService
	CheckoutSvc checkoutService
	InvoiceSvc  invoiceService

	// Gatherer backs /metrics. Defaults to the global registry.
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
}

func (d Deps) validate() error {
	switch {
	case d.UserSvc == nil:
		return errors.New("httpserver: user service is required")
	case d.ProductSvc == nil:
		return errors.New("httpserver: product service is required")
	case d.BasketSvc == nil:
		return errors.New("httpserver: basket service is required")
	case d.CheckoutSvc == nil:
		return errors.New("httpserver: checkout service is required")
	case d.InvoiceSvc == nil:
		return errors.New("httpserver: invoice service is required")
	}
	return nil
}

// buildRouter wires routes for the API.
func buildRouter(logger *zap.Logger, db Pinger, deps Deps) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery())
	if len(deps.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: deps.CORSOrigins,
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Authorization", "Content-Type"},
		}))
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	h := &handlers{deps: deps, logger: logger}
	auth := requireAuth(deps.UserSvc)
	admin := requireAdmin()

	users := router.Group("/users")
	users.POST("/register", h.register)
	users.POST("/login", h.login)
	users.POST("/refresh", h.refresh)
	users.GET("/me", auth, h.me)

	products := router.Group("/products")
	products.GET("", h.listProducts)
	products.GET("/:productId", h.getProduct)
	products.POST("", auth, admin, h.createProduct)
	products.PUT("/:productId", auth, admin, h.updateProduct)
	products.DELETE("/:productId", auth, admin, h.deleteProduct)
	products.POST("/:productId/stock", auth, admin, h.restockProduct)
	products.POST("/:productId/buy", auth, h.buyProduct)

	baskets := router.Group("/baskets", auth)
	baskets.GET("", h.listBaskets)
	baskets.POST("", h.addBasket)
	baskets.GET("/:basketId", h.getBasket)
	baskets.DELETE("/:basketId", h.removeBasket)
	baskets.POST("/:basketId/products/:productId", h.addBasketLine)
	baskets.DELETE("/:basketId/products/:productId", h.removeBasketLine)
	baskets.POST("/:basketId/buy", h.buyBasket)
	baskets.POST("/:basketId/users/:userId", h.inviteMember)
	baskets.DELETE("/:basketId/users/:userId", h.kickMember)
	baskets.POST("/:basketId/accept", h.acceptInvite)

	invoices := router.Group("/invoices")
	invoices.GET("", auth, h.listInvoices)
	invoices.GET("/:invoiceId", auth, h.getInvoice)
	invoices.POST("/:invoiceId/pay", h.payInvoice)
	invoices.POST("/:invoiceId/fulfill", auth, admin, h.fulfillInvoice)

	return router, nil
}

type handlers struct {
	deps   Deps
	logger *zap.Logger
}
