package httpserver

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Deps are the services the routes delegate to.
type Deps struct {
	Store      storeAPI
	Products   productAPI
	Categories categoryAPI
	Cart       cartAPI
}

// Options tune the cross-cutting middleware.
type Options struct {
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// buildRouter wires routes for the API. Closing shutdown ends open event
// streams.
func buildRouter(logger logrus.FieldLogger, deps Deps, opts Options, shutdown <-chan struct{}) (*gin.Engine, error) {
	if deps.Store == nil || deps.Products == nil || deps.Cart == nil {
		return nil, errors.New("httpserver: store, products and cart are required")
	}
	cors, err := corsMiddleware(opts.CORSAllowedOrigins)
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logWriter(logger)), gin.Recovery(), cors)
	if opts.RateLimitRPS > 0 {
		router.Use(rateLimit(newIPLimiter(opts.RateLimitRPS, opts.RateLimitBurst)))
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(deps.Store))

	h := &handlers{
		store:      deps.Store,
		products:   deps.Products,
		categories: deps.Categories,
		cart:       deps.Cart,
		logger:     logger,
		shutdown:   shutdown,
	}

	st := router.Group("/storage")
	st.GET("/keys", h.storageKeys)
	st.GET("/items", h.storageItems)
	st.GET("/items/:key", h.storageGet)
	st.PUT("/items/:key", h.storagePut)
	st.DELETE("/items/:key", h.storageRemove)
	st.GET("/items/:key/expiry", h.storageExpiry)
	st.GET("/stats", h.storageStats)
	st.POST("/clear-expired", h.storageClearExpired)
	st.DELETE("", h.storageClear)
	st.GET("/backup", h.storageBackup)
	st.POST("/restore", h.storageRestore)
	st.GET("/export", h.storageExport)
	st.POST("/import", h.storageImport)

	router.GET("/products", h.listProducts)
	router.GET("/products/:id", h.getProduct)
	if deps.Categories != nil {
		router.GET("/categories", h.listCategories)
	}

	ct := router.Group("/cart")
	ct.GET("", h.getCart)
	ct.DELETE("", h.clearCart)
	ct.POST("/items", h.addCartItem)
	ct.PATCH("/items/:productId", h.updateCartItem)
	ct.DELETE("/items/:productId", h.removeCartItem)
	ct.POST("/items/:productId/save-for-later", h.saveForLater)
	ct.POST("/saved/:productId/move-to-cart", h.moveToCart)
	ct.DELETE("/saved/:productId", h.removeSaved)
	ct.POST("/discount", h.applyDiscount)
	ct.DELETE("/discount", h.removeDiscount)
	ct.GET("/estimates", h.cartEstimates)
	ct.POST("/checkout", h.checkout)
	ct.POST("/snapshot", h.saveSnapshot)
	ct.POST("/snapshot/restore", h.restoreSnapshot)
	ct.GET("/events", h.cartEvents)

	return router, nil
}

type handlers struct {
	store      storeAPI
	products   productAPI
	categories categoryAPI
	cart       cartAPI
	logger     logrus.FieldLogger
	shutdown   <-chan struct{}
}

func logWriter(logger logrus.FieldLogger) io.Writer {
	if l, ok := logger.(*logrus.Logger); ok {
		return l.WriterLevel(logrus.InfoLevel)
	}
	if e, ok := logger.(*logrus.Entry); ok {
		return e.WriterLevel(logrus.InfoLevel)
	}
	return io.Discard
}
