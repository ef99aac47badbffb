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
	"github.com/salud-online/sos/services/notification-service/internal/consumer"
	"github.com/salud-online/sos/services/notification-service/internal/email"
	"github.com/salud-online/sos/services/notification-service/internal/inbox"
	"github.com/salud-online/sos/services/notification-service/internal/outbox"
	"github.com/salud-online/sos/services/notification-service/internal/storage"
	"github.com/salud-online/sos/services/notification-service/internal/templates"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type appointmentEvent struct {
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id"`
	ProviderID    string `json:"provider_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
}

// mailer renders a template, sends it, logs the notification row and
// mirrors the outcome onto the event bus.
type mailer struct {
	pool   *db.Pool
	repo   *storage.Repository
	outbox *outbox.Repository
	sender email.Sender
}

func (m *mailer) deliver(ctx context.Context, appointmentID, recipient, template, subject string, data map[string]string) error {
	body, err := templates.Render(template, data)
	if err != nil {
		return err
	}

	status := "sent"
	reason := ""
	if err := m.sender.Send(recipient, subject, body); err != nil {
		status = "failed"
		reason = err.Error()
	}

	if err := m.repo.Insert(ctx, storage.Notification{
		AppointmentID: appointmentID,
		Recipient:     recipient,
		Template:      template,
		Subject:       subject,
		Payload:       data,
		Status:        status,
	}); err != nil {
		return err
	}

	return m.writeOutcome(ctx, appointmentID, recipient, template, status, reason)
}

func (m *mailer) writeOutcome(ctx context.Context, appointmentID, recipient, template, status, reason string) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	eventType := "notification.sent.v1"
	fields := map[string]any{
		"appointment_id": appointmentID,
		"recipient":      recipient,
		"template":       template,
		"sent_at":        time.Now().UTC().Format(time.RFC3339),
	}
	if status == "failed" {
		eventType = "notification.failed.v1"
		delete(fields, "sent_at")
		fields["error_reason"] = reason
		fields["failed_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	aggregateID := appointmentID
	if aggregateID == "" {
		aggregateID = recipient
	}
	if err := m.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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
	inboxRepo := inbox.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	sender := email.NewSMTPSender(
		config.String("SMTP_HOST", "mailpit"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "no-reply@saludonlinesolidaria.com"),
		config.String("SMTP_USERNAME", ""),
		config.String("SMTP_PASSWORD", ""),
	)
	mail := &mailer{pool: pool, repo: repo, outbox: outboxRepo, sender: sender}

	startConsumer := func(topic string, handler consumer.Handler) {
		if strings.TrimSpace(topic) == "" {
			return
		}
		eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
			Topic:   topic,
		}, handler)
		go eventConsumer.Run(ctx)
	}

	// Account and profile creations feed the recipient cache; new accounts
	// get a welcome mail.
	recipientHandler := func(idKey, role string, welcome bool) consumer.Handler {
		return func(ctx context.Context, msg kafka.Message) error {
			var payload map[string]json.RawMessage
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			var id, name, emailAddr, eventRole string
			_ = json.Unmarshal(payload[idKey], &id)
			_ = json.Unmarshal(payload["name"], &name)
			_ = json.Unmarshal(payload["email"], &emailAddr)
			_ = json.Unmarshal(payload["role"], &eventRole)
			if role == "" {
				role = eventRole
			}
			if id == "" || emailAddr == "" {
				logger.Error("missing recipient fields", "topic", msg.Topic)
				return nil
			}
			if err := repo.UpsertRecipient(ctx, storage.Recipient{ID: id, Name: name, Email: emailAddr, Role: role}); err != nil {
				return err
			}
			if !welcome {
				return nil
			}
			return mail.deliver(ctx, "", emailAddr, "welcome", "Bienvenido a Salud Online Solidaria", map[string]string{
				"nombre": name,
				"email":  emailAddr,
			})
		}
	}
	startConsumer(config.String("KAFKA_TOPIC_USER_CREATED", "auth.user.created.v1"), recipientHandler("user_id", "", true))
	startConsumer(config.String("KAFKA_TOPIC_PATIENT_CREATED", "clinic.patient.created.v1"), recipientHandler("patient_id", "patient", true))
	startConsumer(config.String("KAFKA_TOPIC_PROVIDER_CREATED", "clinic.provider.created.v1"), recipientHandler("provider_id", "provider", false))
	startConsumer(config.String("KAFKA_TOPIC_ADMIN_CREATED", "clinic.admin.created.v1"), recipientHandler("admin_id", "admin", false))

	startConsumer(config.String("KAFKA_TOPIC_USER_DELETED", "auth.user.deleted.v1"), func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			UserID string `json:"user_id"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil || payload.UserID == "" {
			return nil
		}
		return repo.DeleteRecipient(ctx, payload.UserID)
	})

	// Booking lifecycle mails to the patient.
	appointmentHandler := func(template, subject string) consumer.Handler {
		return func(ctx context.Context, msg kafka.Message) error {
			var evt appointmentEvent
			if err := json.Unmarshal(msg.Value, &evt); err != nil {
				logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			if evt.AppointmentID == "" || evt.PatientID == "" {
				logger.Error("missing appointment fields", "topic", msg.Topic)
				return nil
			}

			patient, err := repo.GetRecipient(ctx, evt.PatientID)
			if err != nil {
				if storage.IsNotFound(err) {
					logger.Error("patient not in recipient cache", "patient_id", evt.PatientID)
					return nil
				}
				return err
			}
			providerName := "Desconocido"
			if provider, err := repo.GetRecipient(ctx, evt.ProviderID); err == nil && provider.Name != "" {
				providerName = provider.Name
			}

			return mail.deliver(ctx, evt.AppointmentID, patient.Email, template, subject, map[string]string{
				"nombre":         patient.Name,
				"medico":         providerName,
				"fecha":          evt.Date,
				"hora":           evt.Time,
				"appointment_id": evt.AppointmentID,
			})
		}
	}
	startConsumer(config.String("KAFKA_TOPIC_BOOKED", "booking.appointment.booked.v1"), appointmentHandler("appointment_created", "Appointment created"))
	startConsumer(config.String("KAFKA_TOPIC_CANCELLED", "booking.appointment.cancelled.v1"), appointmentHandler("appointment_cancelled", "Turno cancelado"))

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
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
