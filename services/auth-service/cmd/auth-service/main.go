package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/salud-online/sos/libs/config"
	"github.com/salud-online/sos/libs/db"
	"github.com/salud-online/sos/libs/httpx"
	"github.com/salud-online/sos/libs/kafkax"
	otelx "github.com/salud-online/sos/libs/otel"
	"github.com/salud-online/sos/libs/runtime"
	"github.com/salud-online/sos/services/auth-service/internal/audit"
	"github.com/salud-online/sos/services/auth-service/internal/consumer"
	"github.com/salud-online/sos/services/auth-service/internal/handlers"
	"github.com/salud-online/sos/services/auth-service/internal/inbox"
	"github.com/salud-online/sos/services/auth-service/internal/outbox"
	"github.com/salud-online/sos/services/auth-service/internal/sessions"
	"github.com/salud-online/sos/services/auth-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/crypto/bcrypt"
)

// Accounts created from the clinic back office start with this password
// until the user changes it on first login.
const defaultPassword = "saludonlinesolidaria"

func main() {
	service := config.String("SERVICE_NAME", "auth-service")
	port, err := config.Port("PORT", "8081")
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

	userRepo := storage.NewUserRepository(pool)
	auditRepo := audit.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	refreshRepo := sessions.NewRefreshRepository(pool)
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
			GroupID: config.String("KAFKA_GROUP_ID", "auth-service"),
			Topic:   topic,
		}, handler)
		go eventConsumer.Run(ctx)
	}

	// Profiles created from the clinic back office get a login here, with
	// the shared default password until the user changes it.
	profileCreatedHandler := func(idKey, role string) consumer.Handler {
		return func(ctx context.Context, msg kafka.Message) error {
			var payload map[string]json.RawMessage
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			var id, name, email string
			_ = json.Unmarshal(payload[idKey], &id)
			_ = json.Unmarshal(payload["name"], &name)
			_ = json.Unmarshal(payload["email"], &email)
			if id == "" || email == "" {
				logger.Error("missing profile fields", "topic", msg.Topic)
				return nil
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(defaultPassword), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			err = userRepo.Create(ctx, storage.User{
				ID:           id,
				Name:         name,
				Email:        email,
				PasswordHash: string(hash),
				Role:         role,
			})
			if err != nil {
				if storage.IsDuplicate(err) {
					return nil
				}
				return err
			}
			return nil
		}
	}
	startConsumer(config.String("KAFKA_TOPIC_PATIENT_CREATED", "clinic.patient.created.v1"), profileCreatedHandler("patient_id", handlers.RolePatient))
	startConsumer(config.String("KAFKA_TOPIC_PROVIDER_CREATED", "clinic.provider.created.v1"), profileCreatedHandler("provider_id", handlers.RoleProvider))
	startConsumer(config.String("KAFKA_TOPIC_ADMIN_CREATED", "clinic.admin.created.v1"), profileCreatedHandler("admin_id", handlers.RoleAdmin))

	signer, err := buildSigner()
	if err != nil {
		logger.Error("failed to init jwt signer", "err", err)
		panic(err)
	}

	accessTTLHours, err := strconv.Atoi(config.String("JWT_EXPIRATION_HOURS", "3"))
	if err != nil || accessTTLHours <= 0 {
		logger.Error("invalid jwt expiration hours", "value", accessTTLHours, "err", err)
		panic("invalid JWT_EXPIRATION_HOURS")
	}
	refreshTTLHours, err := strconv.Atoi(config.String("REFRESH_TTL_HOURS", "720"))
	if err != nil || refreshTTLHours <= 0 {
		logger.Error("invalid refresh ttl hours", "value", refreshTTLHours, "err", err)
		panic("invalid REFRESH_TTL_HOURS")
	}

	authHandler := handlers.NewAuthHandler(signer, pool, userRepo, auditRepo, outboxRepo, refreshRepo, logger, handlers.Config{
		AccessTTL:  time.Duration(accessTTLHours) * time.Hour,
		RefreshTTL: time.Duration(refreshTTLHours) * time.Hour,
		Audience:   config.String("JWT_AUDIENCE", "saludonlinesolidaria.com"),
		Issuer:     config.String("JWT_ISSUER", "saludonlinesolidaria.com"),
	})

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", authHandler.Refresh)
	mux.HandleFunc("POST /api/v1/auth/logout", authHandler.Logout)
	mux.HandleFunc("GET /api/v1/auth/me", authHandler.Me)
	mux.HandleFunc("GET /.well-known/jwks.json", authHandler.JWKS)
	mux.HandleFunc("POST /api/v1/auth/rotate", authHandler.Rotate)
	mux.HandleFunc("GET /api/v1/auth/audit", authHandler.Audit)
	mux.HandleFunc("GET /api/v1/users", authHandler.ListUsers)
	mux.HandleFunc("GET /api/v1/users/{id}", authHandler.GetUser)
	mux.HandleFunc("PUT /api/v1/users/{id}", authHandler.UpdateUser)
	mux.HandleFunc("DELETE /api/v1/users/{id}", authHandler.DeleteUser)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "auth")
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

func buildSigner() (handlers.TokenSigner, error) {
	privatePEM := config.String("JWT_PRIVATE_KEY_PEM", "")
	privatePEMS := config.String("JWT_PRIVATE_KEYS_PEM", "")
	activeKID := config.String("JWT_ACTIVE_KID", "")

	if privatePEMS != "" {
		keySet, err := handlers.ParseRS256KeySet(privatePEMS)
		if err != nil {
			return nil, err
		}
		signer, err := handlers.NewRotatingRS256Signer(keySet, activeKID)
		if err != nil {
			return nil, err
		}
		if rk := config.String("JWT_ROTATE_KEY", ""); rk != "" {
			if rotator, ok := signer.(*handlers.RotatingSigner); ok {
				rotator.SetRotateKey(rk)
			}
		}
		return signer, nil
	}
	if privatePEM != "" {
		return handlers.NewRS256Signer([]byte(privatePEM), config.String("JWT_KID", ""))
	}
	return handlers.NewHS512Signer(config.String("JWT_SECRET", "secret")), nil
}
