package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/sondv/storefront/internal/cache"
	delivery "github.com/sondv/storefront/internal/delivery/http"
	"github.com/sondv/storefront/internal/entity"
	"github.com/sondv/storefront/internal/messaging"
	"github.com/sondv/storefront/internal/messaging/kafka"
	"github.com/sondv/storefront/internal/metrics"
	"github.com/sondv/storefront/internal/repository"
	"github.com/sondv/storefront/internal/repository/memory"
	"github.com/sondv/storefront/internal/repository/postgres"
	"github.com/sondv/storefront/internal/service"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		productRepo   repository.ProductRepository
		inventoryRepo repository.InventoryRepository
		orderRepo     repository.OrderRepository
		unitOfWork    repository.UnitOfWork
	)

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		db, err := postgres.InitDB(dsn)
		if err != nil {
			slog.Error("Failed to init database", "err", err)
			os.Exit(1)
		}
		defer db.Close()

		productRepo = postgres.NewProductRepository(db)
		inventoryRepo = postgres.NewInventoryRepository(db)
		orderRepo = postgres.NewOrderRepository(db)
		unitOfWork = postgres.NewUnitOfWork(db)
	} else {
		slog.Info("DATABASE_URL not set, using in-memory store")
		store := memory.NewStore()
		productRepo = store.Products()
		inventoryRepo = store.Inventory()
		orderRepo = store.Orders()
		unitOfWork = store
	}

	if err := productRepo.Seed(ctx, seedProducts()); err != nil {
		slog.Error("Failed to seed products", "err", err)
		os.Exit(1)
	}

	var publisher messaging.Publisher
	var subscriber messaging.Subscriber
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		publisher, subscriber = kafka.NewKafkaBroker([]string{brokers})
	} else {
		slog.Info("KAFKA_BROKERS not set, events disabled")
	}

	var idem cache.Cache
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		idem = cache.NewRedisCache(addr, "storefront")
	} else {
		slog.Info("REDIS_ADDR not set, idempotency cache disabled")
	}

	placementMetrics := metrics.NewPlacementMetrics(prometheus.DefaultRegisterer)

	ledger := service.NewInventoryLedger(inventoryRepo, publisher)
	pricingSvc := service.NewPricingService(productRepo)
	orderSvc := service.NewOrderService(orderRepo, productRepo, unitOfWork, ledger, publisher, placementMetrics)

	handler := delivery.NewHandler(orderSvc, pricingSvc, ledger, idem)

	mux := http.NewServeMux()
	mux.Handle("/api/", delivery.NewRouter(handler))
	mux.Handle("/metrics", metrics.Handler())

	httpServer := &http.Server{
		Addr:    getEnv("HTTP_ADDR", ":8080"),
		Handler: delivery.EnableCORS(mux),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	// Consumer: orders.placed → sold-count projection.
	if subscriber != nil {
		g.Go(func() error {
			subscriber.Consume(ctx, "orders.placed", "storefront-projections", func(ctx context.Context, payload []byte) error {
				var event entity.OrderPlaced
				if err := json.Unmarshal(payload, &event); err != nil {
					return err
				}
				return orderSvc.HandleOrderPlaced(ctx, &event)
			})
			return nil
		})
	}

	// Periodic sweep: drop discounts whose window has ended.
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := pricingSvc.ClearExpiredDiscounts(ctx, time.Now()); err != nil {
					slog.Error("Discount sweep failed", "err", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		slog.Error("Shutting down with error", "err", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}

func seedProducts() []entity.Product {
	return []entity.Product{
		{ID: "prod-phone-14", Name: "Phone 14", Description: "6.1-inch, 128GB", SellingPrice: decimal.NewFromInt(799), Stock: 25},
		{ID: "prod-phone-14-pro", Name: "Phone 14 Pro", Description: "6.7-inch, 256GB", SellingPrice: decimal.NewFromInt(1099), Stock: 12},
		{ID: "prod-case-clear", Name: "Clear Case", Description: "Shockproof clear case", SellingPrice: decimal.NewFromInt(29), Stock: 200},
		{ID: "prod-charger-30w", Name: "30W Charger", Description: "USB-C fast charger", SellingPrice: decimal.NewFromInt(39), Stock: 80},
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
