package controller

import (
	"time"

	"github.com/cassiomorais/orderpay/internal/infrastructure/config"
	"github.com/cassiomorais/orderpay/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/orderpay/internal/middleware"
	"github.com/cassiomorais/orderpay/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	DB             Pinger
	Redis          Pinger // optional
	PaymentService *service.PaymentService
	Metrics        *observability.Metrics
	CORSConfig     config.CORSConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	if deps.Metrics != nil {
		r.Use(customMW.Metrics(deps.Metrics))
	}

	healthH := NewHealthController(deps.DB, deps.Redis)
	paymentH := NewPaymentController(deps.PaymentService)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/payments", paymentH.CreatePayment)
		r.Post("/payments/confirm/{transactionId}", paymentH.ConfirmPayment)
		r.Post("/payments/{id}/refund", paymentH.RefundPayment)
		r.Get("/payments/{id}/status", paymentH.GetPaymentStatus)

		r.Get("/users/{userId}/payments", paymentH.ListUserPayments)
		r.Get("/sellers/{sellerId}/payments", paymentH.ListSellerPayments)
	})

	return r
}
