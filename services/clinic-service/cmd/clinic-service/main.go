package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/salud-online/sos/libs/config"
	"github.com/salud-online/sos/libs/db"
	"github.com/salud-online/sos/libs/httpx"
	"github.com/salud-online/sos/libs/kafkax"
	otelx "github.com/salud-online/sos/libs/otel"
	"github.com/salud-online/sos/libs/runtime"
	"github.com/salud-online/sos/services/clinic-service/internal/consumer"
	"github.com/salud-online/sos/services/clinic-service/internal/handlers"
	"github.com/salud-online/sos/services/clinic-service/internal/inbox"
	"github.com/salud-online/sos/services/clinic-service/internal/outbox"
	"github.com/salud-online/sos/services/clinic-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "clinic-service")
	port, err := config.Port("PORT", "8082")
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

	repo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	inboxRepo := inbox.NewRepository(pool)
	startConsumer := func(topic string, handler consumer.Handler) {
		if strings.TrimSpace(topic) == "" {
			return
		}
		eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "clinic-service"),
			Topic:   topic,
		}, handler)
		go eventConsumer.Run(ctx)
	}

	// Appointment lifecycle events feed the local log behind the stats
	// dashboard.
	appointmentLogHandler := func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			AppointmentID string `json:"appointment_id"`
			PatientID     string `json:"patient_id"`
			ProviderID    string `json:"provider_id"`
			Date          string `json:"date"`
			NewStatus     string `json:"new_status"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.AppointmentID == "" {
			logger.Error("missing appointment_id", "topic", msg.Topic)
			return nil
		}
		date, err := time.ParseInLocation("2006-01-02", payload.Date, time.UTC)
		if err != nil {
			logger.Error("invalid date in event", "err", err, "topic", msg.Topic)
			return nil
		}
		status := payload.NewStatus
		if status == "" {
			status = "espera"
		}
		return repo.RecordAppointmentEvent(ctx, payload.AppointmentID, payload.PatientID, payload.ProviderID, date, status)
	}
	startConsumer(config.String("KAFKA_TOPIC_BOOKED", "booking.appointment.booked.v1"), appointmentLogHandler)
	startConsumer(config.String("KAFKA_TOPIC_STATUS_CHANGED", "booking.appointment.status_changed.v1"), appointmentLogHandler)

	// Self-registered users get their clinical profile rows here.
	startConsumer(config.String("KAFKA_TOPIC_USER_CREATED", "auth.user.created.v1"), func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			UserID string `json:"user_id"`
			Name   string `json:"name"`
			Email  string `json:"email"`
			Role   string `json:"role"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.UserID == "" || payload.Email == "" {
			logger.Error("missing user fields", "topic", msg.Topic)
			return nil
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		switch payload.Role {
		case "patient":
			_, err = repo.CreatePatient(ctx, tx, &storage.Patient{
				ID:    payload.UserID,
				Name:  payload.Name,
				Email: payload.Email,
			})
		case "provider":
			_, err = repo.CreateProvider(ctx, tx, &storage.Provider{
				ID:     payload.UserID,
				Name:   payload.Name,
				Email:  payload.Email,
				Shifts: handlers.EmptyWeek,
			})
		default:
			return nil
		}
		if err != nil {
			if storage.IsDuplicate(err) {
				return nil
			}
			return err
		}
		return tx.Commit(ctx)
	})

	// Account deletions in auth cascade to the matching profile rows.
	startConsumer(config.String("KAFKA_TOPIC_USER_DELETED", "auth.user.deleted.v1"), func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			UserID string `json:"user_id"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.UserID == "" {
			return nil
		}
		if err := repo.DeletePatient(ctx, payload.UserID); err != nil && !storage.IsNotFound(err) {
			return err
		}
		if err := repo.DeleteProvider(ctx, payload.UserID); err != nil && !storage.IsNotFound(err) {
			return err
		}
		if err := repo.DeleteAdmin(ctx, payload.UserID); err != nil && !storage.IsNotFound(err) {
			return err
		}
		return nil
	})

	handler := handlers.New(repo, outboxRepo, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("GET /api/v1/patients", handler.ListPatients)
	mux.HandleFunc("POST /api/v1/patients", handler.CreatePatient)
	mux.HandleFunc("GET /api/v1/patients/{id}", handler.GetPatient)
	mux.HandleFunc("PUT /api/v1/patients/{id}", handler.UpdatePatient)
	mux.HandleFunc("DELETE /api/v1/patients/{id}", handler.DeletePatient)
	mux.HandleFunc("GET /api/v1/patients/{id}/emr", handler.GetEMR)
	mux.HandleFunc("PATCH /api/v1/patients/{id}/emr", handler.UpdateEMR)
	mux.HandleFunc("GET /api/v1/providers", handler.ListProviders)
	mux.HandleFunc("POST /api/v1/providers", handler.CreateProvider)
	mux.HandleFunc("GET /api/v1/providers/{id}", handler.GetProvider)
	mux.HandleFunc("PUT /api/v1/providers/{id}", handler.UpdateProvider)
	mux.HandleFunc("DELETE /api/v1/providers/{id}", handler.DeleteProvider)
	mux.HandleFunc("GET /api/v1/providers/{id}/schedule", handler.GetSchedule)
	mux.HandleFunc("GET /api/v1/admins", handler.ListAdmins)
	mux.HandleFunc("POST /api/v1/admins", handler.CreateAdmin)
	mux.HandleFunc("GET /api/v1/admins/{id}", handler.GetAdmin)
	mux.HandleFunc("DELETE /api/v1/admins/{id}", handler.DeleteAdmin)
	mux.HandleFunc("GET /api/v1/stats", handler.Stats)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "clinic")
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

	if err := startGrpcServer(ctx, logger, repo); err != nil {
		logger.Error("grpc server failed to start", "err", err)
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
