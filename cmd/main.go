package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"restaurant-pos/internal/config"
	"restaurant-pos/internal/database"
	"restaurant-pos/internal/events"
	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/messaging"
	"restaurant-pos/internal/services/kitchen"
	"restaurant-pos/internal/services/order"
	"restaurant-pos/internal/services/payment"
)

func main() {
	var (
		mode       = flag.String("mode", "", "Service mode (order-service, kitchen-service, payment-service, standalone)")
		port       = flag.Int("port", 0, "HTTP port (overrides config)")
		storage    = flag.String("storage", "postgres", "Storage backend (postgres, memory)")
		configPath = flag.String("config", "config.yaml", "Path to config file")
	)
	flag.Parse()

	if *mode == "" {
		fmt.Fprintf(os.Stderr, "Error: --mode flag is required\n")
		flag.Usage()
		os.Exit(1)
	}
	if *storage != "postgres" && *storage != "memory" {
		fmt.Fprintf(os.Stderr, "Error: unknown storage backend %q\n", *storage)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port == 0 {
		*port = cfg.HTTP.Port
	}

	log := logger.New(*mode)
	requestID := logger.GenerateRequestID()

	log.Info("service_started", fmt.Sprintf("Starting %s", *mode), requestID, map[string]interface{}{
		"mode":    *mode,
		"port":    *port,
		"storage": *storage,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
		cancel()
	}()

	switch *mode {
	case "order-service":
		err = runOrderService(ctx, cfg, log, *port, *storage)
	case "kitchen-service":
		err = runKitchenService(ctx, cfg, log, *port, *storage)
	case "payment-service":
		err = runPaymentService(ctx, cfg, log, *port, *storage)
	case "standalone":
		err = runStandalone(ctx, cfg, log, *port, *storage)
	default:
		log.Error("validation_failed", fmt.Sprintf("Unknown mode: %s", *mode), requestID, nil, nil)
		os.Exit(1)
	}
	if err != nil {
		log.Error("service_failed", fmt.Sprintf("%s failed", *mode), requestID, err, nil)
		os.Exit(1)
	}

	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

// infra bundles the storage and messaging backends selected by the
// --storage flag. Memory storage pairs with the in-process bus; it is
// a single-process setup with no external dependencies.
type infra struct {
	db     *database.DB
	conn   *messaging.Connection
	broker *messaging.Bus
	inproc *events.InProcessBus
	bus    events.Bus
}

func newInfra(ctx context.Context, cfg *config.Config, log *logger.Logger, storage string) (*infra, error) {
	if storage == "memory" {
		bus := events.NewInProcessBus(log)
		return &infra{inproc: bus, bus: bus}, nil
	}

	db, err := database.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.RunMigrations(ctx, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("db_connected", "Connected to PostgreSQL database", "startup", nil)

	conn, err := messaging.New(cfg, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize messaging: %w", err)
	}
	log.Info("rabbitmq_connected", "Connected to RabbitMQ", "startup", nil)

	broker := messaging.NewBus(conn, log)
	return &infra{db: db, conn: conn, broker: broker, bus: broker}, nil
}

func (i *infra) Close() {
	if i.inproc != nil {
		i.inproc.Close()
	}
	if i.conn != nil {
		i.conn.Close()
	}
	if i.db != nil {
		i.db.Close()
	}
}

// consume runs the broker consumers when there is a broker; with the
// in-process bus delivery happens on publish and there is nothing to
// drive.
func (i *infra) consume(ctx context.Context) error {
	if i.broker == nil {
		<-ctx.Done()
		return nil
	}
	if err := i.broker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runOrderService(ctx context.Context, cfg *config.Config, log *logger.Logger, port int, storage string) error {
	inf, err := newInfra(ctx, cfg, log, storage)
	if err != nil {
		return err
	}
	defer inf.Close()

	var repo order.Repository
	if storage == "memory" {
		repo = order.NewMemoryRepository()
	} else {
		repo = order.NewPostgresRepository(inf.db)
	}

	svc := order.NewService(repo, inf.bus, log)
	handler := order.NewHandler(svc, log)

	return serveHTTP(ctx, cfg, log, "Order service", port, handler.SetupRoutes())
}

func runKitchenService(ctx context.Context, cfg *config.Config, log *logger.Logger, port int, storage string) error {
	inf, err := newInfra(ctx, cfg, log, storage)
	if err != nil {
		return err
	}
	defer inf.Close()

	var repo kitchen.Repository
	if storage == "memory" {
		repo = kitchen.NewMemoryRepository()
	} else {
		repo = kitchen.NewPostgresRepository(inf.db)
	}

	svc := kitchen.NewService(repo, inf.bus, log)
	svc.Register(inf.bus)
	handler := kitchen.NewHandler(svc, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return inf.consume(ctx)
	})
	g.Go(func() error {
		return serveHTTP(ctx, cfg, log, "Kitchen service", port, handler.SetupRoutes())
	})
	return g.Wait()
}

func runPaymentService(ctx context.Context, cfg *config.Config, log *logger.Logger, port int, storage string) error {
	inf, err := newInfra(ctx, cfg, log, storage)
	if err != nil {
		return err
	}
	defer inf.Close()

	var payments payment.PaymentRepository
	var queue payment.QueueRepository
	if storage == "memory" {
		payments = payment.NewMemoryPaymentRepository()
		queue = payment.NewMemoryQueueRepository()
	} else {
		payments = payment.NewPostgresPaymentRepository(inf.db)
		queue = payment.NewPostgresQueueRepository(inf.db)
	}

	svc := payment.NewService(payments, queue, payment.NewMockGateway(), inf.bus, cfg.Gateway.Timeout, log)
	handler := payment.NewHandler(svc, log)
	scheduler := payment.NewScheduler(svc, cfg.Scheduler.Interval, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(ctx)
	})
	g.Go(func() error {
		return serveHTTP(ctx, cfg, log, "Payment service", port, handler.SetupRoutes())
	})
	return g.Wait()
}

// runStandalone wires all three contexts into one process over the
// in-process bus. Postgres storage still works here; memory storage
// makes it a zero-dependency demo.
func runStandalone(ctx context.Context, cfg *config.Config, log *logger.Logger, port int, storage string) error {
	bus := events.NewInProcessBus(log)
	defer bus.Close()

	var db *database.DB
	if storage == "postgres" {
		var err error
		db, err = database.New(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()
		if err := db.RunMigrations(ctx, "migrations"); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	var (
		orderRepo   order.Repository
		kitchenRepo kitchen.Repository
		payRepo     payment.PaymentRepository
		queueRepo   payment.QueueRepository
	)
	if storage == "memory" {
		orderRepo = order.NewMemoryRepository()
		kitchenRepo = kitchen.NewMemoryRepository()
		payRepo = payment.NewMemoryPaymentRepository()
		queueRepo = payment.NewMemoryQueueRepository()
	} else {
		orderRepo = order.NewPostgresRepository(db)
		kitchenRepo = kitchen.NewPostgresRepository(db)
		payRepo = payment.NewPostgresPaymentRepository(db)
		queueRepo = payment.NewPostgresQueueRepository(db)
	}

	orderSvc := order.NewService(orderRepo, bus, log)
	kitchenSvc := kitchen.NewService(kitchenRepo, bus, log)
	kitchenSvc.Register(bus)
	paySvc := payment.NewService(payRepo, queueRepo, payment.NewMockGateway(), bus, cfg.Gateway.Timeout, log)
	scheduler := payment.NewScheduler(paySvc, cfg.Scheduler.Interval, log)

	orderMux := order.NewHandler(orderSvc, log).SetupRoutes()
	kitchenMux := kitchen.NewHandler(kitchenSvc, log).SetupRoutes()
	paymentMux := payment.NewHandler(paySvc, log).SetupRoutes()

	mux := http.NewServeMux()
	mux.Handle("/orders", orderMux)
	mux.Handle("/orders/", orderMux)
	mux.Handle("/tickets/", kitchenMux)
	mux.Handle("/payments", paymentMux)
	mux.Handle("/payments/", paymentMux)
	mux.Handle("/health", paymentMux)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(ctx)
	})
	g.Go(func() error {
		return serveHTTP(ctx, cfg, log, "Standalone POS", port, mux)
	})
	return g.Wait()
}

func serveHTTP(ctx context.Context, cfg *config.Config, log *logger.Logger, name string, port int, mux *http.ServeMux) error {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http_listening", fmt.Sprintf("%s listening on port %d", name, port), "startup", map[string]interface{}{
			"port": port,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
