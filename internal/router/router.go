package router

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rasapos/api/internal/config"
	"github.com/rasapos/api/internal/database"
	"github.com/rasapos/api/internal/handler"
	"github.com/rasapos/api/internal/service"
	"github.com/rasapos/api/internal/ws"
	"go.uber.org/zap"
)

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub, loc *time.Location, log *zap.Logger) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// WebSocket feed for kitchen and cashier displays
	r.Get("/ws/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, w, r)
	})

	// Menu catalog (read-only)
	menuHandler := handler.NewMenuHandler(queries, log)
	r.Route("/menu", menuHandler.RegisterRoutes)

	// Orders
	newOrderStore := func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}
	orderService := service.NewOrderService(pool, newOrderStore)
	orderHandler := handler.NewOrderHandler(orderService, queries, hub, log)
	r.Route("/orders", orderHandler.RegisterRoutes)

	// Payments
	newPaymentStore := func(db database.DBTX) service.PaymentStore {
		return database.New(db)
	}
	paymentService := service.NewPaymentService(queries, pool, newPaymentStore)
	paymentHandler := handler.NewPaymentHandler(paymentService, log)
	r.Route("/payments", paymentHandler.RegisterRoutes)

	// Inventory ledger
	newInventoryStore := func(db database.DBTX) service.InventoryStore {
		return database.New(db)
	}
	inventoryService := service.NewInventoryService(queries, pool, newInventoryStore)
	inventoryHandler := handler.NewInventoryHandler(inventoryService, hub, log)
	r.Route("/inventory", inventoryHandler.RegisterRoutes)

	// Analytics
	analyticsService := service.NewAnalyticsService(queries, loc)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsService, loc, log)
	r.Route("/analytics", analyticsHandler.RegisterRoutes)

	log.Info("router initialized")
	return r
}

// requestLogger logs each request with method, path, status and latency.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
