package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/httpserver"
	"storefront/internal/logging"
	productrepo "storefront/internal/repository/product"
	cartsvc "storefront/internal/service/cart"
	categorysvc "storefront/internal/service/category"
	productsvc "storefront/internal/service/product"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		logging.New("info", "json").WithError(err).Fatal("load config")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	log := logger.WithField("service", "api")
	if err := run(cfg, logger, log); err != nil {
		log.WithError(err).Fatal("api stopped")
	}
}

// run owns the process resources; they are released before it returns.
func run(cfg config.Config, logger *logrus.Logger, log logrus.FieldLogger) error {
	ctx := context.Background()
	store, closeStore, err := db.OpenStorage(ctx, cfg.Store, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	catalogNS, err := store.Namespace("catalog")
	if err != nil {
		return fmt.Errorf("register catalog namespace: %w", err)
	}
	cartNS, err := store.Namespace("cart")
	if err != nil {
		return fmt.Errorf("register cart namespace: %w", err)
	}

	productService := productsvc.New(productrepo.NewStore(catalogNS, log))
	cartService := cartsvc.New(ctx, cartNS, log,
		cartsvc.WithProducts(productService),
		cartsvc.WithCheckoutDelay(cfg.Cart.CheckoutDelay),
		cartsvc.WithPricing(cartsvc.Pricing{
			TaxRate:                    cfg.Cart.TaxRate,
			FreeShippingThresholdCents: cfg.Cart.FreeShippingThresholdCents,
			ShippingFeeCents:           cfg.Cart.ShippingFeeCents,
			ExpressThresholdCents:      cartsvc.DefaultPricing().ExpressThresholdCents,
			ExpressFeeCents:            cartsvc.DefaultPricing().ExpressFeeCents,
		}),
	)

	srv, err := httpserver.New(cfg.HTTPAddr, logger, httpserver.Deps{
		Store:      store,
		Products:   productService,
		Categories: categorysvc.New(productService),
		Cart:       cartService,
	}, httpserver.Options{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("starting http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-stopCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case runErr = <-serverErr:
		log.WithError(runErr).Error("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	} else {
		log.Info("server stopped")
	}
	return runErr
}
