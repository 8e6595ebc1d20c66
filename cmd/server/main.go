package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pizzeria-be/internal/auth"
	"pizzeria-be/internal/config"
	"pizzeria-be/internal/db"
	"pizzeria-be/internal/logger"
	"pizzeria-be/internal/middleware"
	"pizzeria-be/internal/order"
	"pizzeria-be/internal/product"
	"pizzeria-be/internal/realtime"
	"pizzeria-be/internal/stats"
	"pizzeria-be/internal/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	tokenTTL        = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

var (
	initDBFunc      = db.NewDatabase
	startServerFunc = func(srv *http.Server) error { return srv.ListenAndServe() }
)

func main() {
	if err := run(); err != nil {
		logger.L().Error("server stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

// stores bundles the persistence backends picked by STORE_DRIVER.
type stores struct {
	orders   order.Repository
	products product.Repository
	stats    stats.Repository
	close    func() error
}

func openStores(cfg *config.Config) (*stores, error) {
	if cfg.StoreDriver == config.StoreDriverFile {
		fs, err := order.OpenFileStore(cfg.StoreFile)
		if err != nil {
			return nil, err
		}
		return &stores{
			orders:   fs,
			products: product.NewMemoryRepository(product.DefaultMenu()),
			stats:    stats.NewOrderSummarizer(fs),
			close:    fs.Close,
		}, nil
	}

	conn, err := initDBFunc(cfg)
	if err != nil {
		return nil, err
	}
	return &stores{
		orders:   order.NewRepository(conn),
		products: product.NewRepository(conn),
		stats:    stats.NewRepository(conn),
		close:    conn.Close,
	}, nil
}

type server struct {
	handler http.Handler
	hub     *realtime.Hub
	limiter *middleware.Limiter
}

type handlers struct {
	orders   *order.Handler
	products *product.Handler
	stats    *stats.Handler
	auth     *auth.Handler
}

func newServer(cfg *config.Config, st *stores) (*server, error) {
	policy, err := order.ParsePolicy(cfg.OrderTransitions)
	if err != nil {
		return nil, err
	}
	creds, err := auth.NewCredentials(cfg.AdminUsername, cfg.AdminPassword, cfg.AdminPasswordHash)
	if err != nil {
		return nil, err
	}
	tokens := auth.NewManager(cfg.JWTSecret, tokenTTL)

	hub := realtime.NewHub(tokens, realtime.WithAllowedOrigin(cfg.CORSOrigin))
	hub.Handle(realtime.InboundUpdateMenu, true, hub.Relay(realtime.EventMenuUpdated))

	orderHandler := order.NewHandler(order.NewService(st.orders, order.NewEngine(policy), hub))
	orderHandler.RegisterRealtime(hub)

	h := handlers{
		orders:   orderHandler,
		products: product.NewHandler(product.NewService(st.products, hub)),
		stats:    stats.NewHandler(stats.NewService(st.stats)),
		auth:     auth.NewHandler(creds, tokens),
	}

	limiter := middleware.NewLimiter()
	mux := setupRouter(h, hub, tokens, limiter)

	return &server{
		handler: middleware.Chain(mux,
			middleware.CORS(cfg.CORSOrigin),
			logger.RequestIDMiddleware,
			middleware.LoggingMiddleware,
		),
		hub:     hub,
		limiter: limiter,
	}, nil
}

func setupRouter(h handlers, hub *realtime.Hub, tokens middleware.TokenParser, limiter *middleware.Limiter) *http.ServeMux {
	strict := limiter.Middleware(middleware.TierStrict)
	general := limiter.Middleware(middleware.TierGeneral)
	frontend := limiter.Middleware(middleware.TierFrontend)
	admin := middleware.RequireAdmin(tokens)

	mux := http.NewServeMux()

	mux.Handle("POST /orders", general(http.HandlerFunc(h.orders.Create)))
	mux.Handle("POST /webhook-n8n", general(http.HandlerFunc(h.orders.LegacyWebhook)))
	mux.Handle("GET /orders", frontend(http.HandlerFunc(h.orders.List)))
	mux.Handle("PATCH /orders/{token}/status", general(http.HandlerFunc(h.orders.UpdateStatus)))

	mux.Handle("GET /products", frontend(http.HandlerFunc(h.products.List)))
	// Admin writes are limited per account, so the guard runs first.
	mux.Handle("POST /products", admin(general(http.HandlerFunc(h.products.Create))))
	mux.Handle("PATCH /products/{id}", admin(general(http.HandlerFunc(h.products.Update))))

	mux.Handle("POST /auth/login", strict(http.HandlerFunc(h.auth.Login)))
	mux.Handle("GET /admin/stats", admin(frontend(http.HandlerFunc(h.stats.Get))))

	mux.Handle("GET /ws", hub)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		s := hub.Stats()
		utils.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "OK",
			"connected": s.Connected,
			"delivered": s.Delivered,
			"dropped":   s.Dropped,
		})
	})

	return mux
}

func run() error {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.IsProduction() && cfg.CORSOrigin == "*" {
		logger.L().Warn("CORS_ORIGIN is * in production; browsers from any origin can call the API")
	}

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			logger.L().Warn("failed to close store", zap.Error(err))
		}
	}()

	srv, err := newServer(cfg, st)
	if err != nil {
		return err
	}
	defer srv.limiter.Stop()

	httpSrv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		logger.L().Info("server running",
			zap.String("addr", httpSrv.Addr),
			zap.String("store", cfg.StoreDriver),
			zap.String("transitions", cfg.OrderTransitions),
		)
		if err := startServerFunc(httpSrv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.L().Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(httpSrv.Shutdown(shutdownCtx), srv.hub.Shutdown(shutdownCtx))
	})

	return g.Wait()
}
