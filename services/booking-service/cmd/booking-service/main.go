package main

import (
	"context"
	"net/http"
	"time"

	"github.com/salud-online/sos/libs/config"
	"github.com/salud-online/sos/libs/db"
	"github.com/salud-online/sos/libs/httpx"
	"github.com/salud-online/sos/libs/kafkax"
	otelx "github.com/salud-online/sos/libs/otel"
	"github.com/salud-online/sos/libs/runtime"
	"github.com/salud-online/sos/services/booking-service/internal/handlers"
	"github.com/salud-online/sos/services/booking-service/internal/outbox"
	"github.com/salud-online/sos/services/booking-service/internal/scheduling"
	"github.com/salud-online/sos/services/booking-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	repo := storage.NewAppointmentRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	schedules, err := scheduling.NewGRPCProvider(config.String("CLINIC_GRPC_ADDR", ""))
	if err != nil {
		logger.Error("clinic grpc provider init failed; falling back to http", "err", err)
		schedules = nil
	}
	if schedules == nil {
		schedules = scheduling.NewHTTPProvider(
			config.String("CLINIC_BASE_URL", "http://clinic-service:8082"),
			time.Duration(config.Int("SCHEDULE_CACHE_TTL_SECONDS", 30))*time.Second,
		)
	}

	appointmentHandler := handlers.NewAppointmentHandler(repo, outboxRepo, logger, schedules, config.Int("DEFAULT_APPOINTMENT_MINUTES", 30))

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("GET /api/v1/appointments", appointmentHandler.List)
	mux.HandleFunc("POST /api/v1/appointments", appointmentHandler.Create)
	mux.HandleFunc("GET /api/v1/appointments/{id}", appointmentHandler.Get)
	mux.HandleFunc("DELETE /api/v1/appointments/{id}", appointmentHandler.Delete)
	mux.HandleFunc("PATCH /api/v1/appointments/{id}/status", appointmentHandler.UpdateStatus)
	mux.HandleFunc("GET /api/v1/appointments/patient/{patientID}", appointmentHandler.ListByPatient)
	mux.HandleFunc("GET /api/v1/appointments/provider/{providerID}", appointmentHandler.ListByProvider)
	mux.HandleFunc("GET /api/v1/appointments/slots/{providerID}", appointmentHandler.OccupiedSlots)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
