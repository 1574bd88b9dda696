package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/lessonbook/libs/auth"
	"github.com/md-rashed-zaman/lessonbook/libs/config"
	"github.com/md-rashed-zaman/lessonbook/libs/db"
	"github.com/md-rashed-zaman/lessonbook/libs/grpcx"
	"github.com/md-rashed-zaman/lessonbook/libs/httpx"
	"github.com/md-rashed-zaman/lessonbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/lessonbook/libs/otel"
	"github.com/md-rashed-zaman/lessonbook/libs/runtime"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/email"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/i18n"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/meeting"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/storage/memory"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/migrations"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))

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

	teacherLoc, err := time.LoadLocation(config.String("TEACHER_TIMEZONE", "Asia/Tokyo"))
	if err != nil {
		logger.Error("invalid TEACHER_TIMEZONE", "err", err)
		os.Exit(1)
	}
	clk := clock.System{}
	var checks []runtime.ReadyCheck

	slots, bookings, storeChecks, closeStore := openStores(ctx, logger)
	defer closeStore()
	checks = append(checks, storeChecks...)

	catalog, err := i18n.Load()
	if err != nil {
		logger.Error("locale catalog load failed", "err", err)
		os.Exit(1)
	}
	logger.Info("locales loaded", "tags", catalog.Tags())

	provider, err := meeting.NewProvider(
		config.String("MEETING_PROVIDER", "static"),
		config.String("GOOGLE_MEET_LINK", ""),
		config.String("MEETING_ROOM_BASE_URL", ""),
	)
	if err != nil {
		logger.Error("meeting provider init failed", "err", err)
		os.Exit(1)
	}

	publicBaseURL := config.String("PUBLIC_BASE_URL", "http://localhost:"+port)
	teacherName := config.String("TEACHER_NAME", "")
	teacherEmail := config.String("TEACHER_EMAIL", "")

	sinks := []notify.Sink{{
		Name: "email",
		Notifier: notify.NewEmailNotifier(newSender(logger), catalog, notify.EmailConfig{
			TeacherEmail:    teacherEmail,
			TeacherName:     teacherName,
			TeacherLocation: teacherLoc,
			PublicBaseURL:   publicBaseURL,
		}, clk),
	}}
	if token := config.String("TELEGRAM_TOKEN", ""); token != "" {
		tg, err := notify.NewTelegramNotifier(token, config.String("TELEGRAM_CHAT_ID", ""), teacherLoc)
		if err != nil {
			logger.Error("telegram notifier disabled", "err", err)
		} else {
			sinks = append(sinks, notify.Sink{Name: "telegram", Notifier: tg})
		}
	}
	if brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", "")); len(brokers) > 0 {
		writer := kafkax.NewWriter(brokers)
		defer func() { _ = writer.Close() }()
		sinks = append(sinks, notify.Sink{
			Name:     "kafka",
			Notifier: notify.NewEventPublisher(writer, config.String("KAFKA_TOPIC_PREFIX", "")),
		})
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	notifier := notify.NewAsync(
		notify.NewMulti(logger, config.Duration("NOTIFY_TIMEOUT", 15*time.Second), sinks...),
		logger,
	)

	bookingSvc := booking.NewService(bookings, provider, notifier, clk, logger, booking.Config{
		TeacherLocation: teacherLoc,
		Supported:       catalog.Supported,
		DefaultLanguage: i18n.DefaultLocale,
	})
	resolver := availability.NewResolver(slots, bookings, clk)
	manager := availability.NewManager(slots, teacherLoc)

	issuer, err := auth.NewIssuer(
		config.String("ADMIN_TOKEN_SECRET", ""),
		service,
		config.Duration("ADMIN_TOKEN_TTL", 12*time.Hour),
	)
	if err != nil {
		logger.Error("admin token issuer init failed", "err", err)
		os.Exit(1)
	}
	passwordHash := config.String("ADMIN_PASSWORD_HASH", "")
	if passwordHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH not set; admin login disabled")
	}

	writeLimit, rdb := newWriteLimiter(logger)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.Register(mux,
		handlers.NewPublicHandler(resolver, bookingSvc, catalog, clk, logger, handlers.PublicConfig{
			TeacherName:   teacherName,
			TeacherEmail:  teacherEmail,
			PublicBaseURL: publicBaseURL,
		}),
		handlers.NewAdminHandler(resolver, manager, bookingSvc, issuer, passwordHash, clk, logger),
		writeLimit,
	)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Accept-Language", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(int64(config.Int("MAX_BODY_BYTES", 64<<10))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 30*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var health *grpcx.HealthServer
	if grpcPort := config.String("GRPC_PORT", ""); grpcPort != "" {
		health, err = grpcx.NewHealthServer(":"+grpcPort, service, logger)
		if err != nil {
			logger.Error("grpc health server init failed", "err", err)
		} else {
			go health.Serve()
		}
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "teacher_timezone", teacherLoc.String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if health != nil {
		health.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), config.Duration("NOTIFY_DRAIN_TIMEOUT", 30*time.Second))
	defer drainCancel()
	if err := notifier.Drain(drainCtx); err != nil {
		logger.Error("pending notifications abandoned", "err", err)
	}
}

// openStores picks the store driver. "memory" keeps everything in process;
// "postgres" (the default) needs DATABASE_URL.
func openStores(ctx context.Context, logger *slog.Logger) (storage.SlotEditor, storage.BookingStore, []runtime.ReadyCheck, func()) {
	if config.String("STORE_DRIVER", "postgres") == "memory" {
		logger.Warn("using in-memory store; data is lost on restart")
		s := memory.New()
		return s, s, nil, func() {}
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	if config.Bool("DB_MIGRATE", true) {
		if err := db.Migrate(ctx, pool, migrations.FS, ".", logger); err != nil {
			logger.Error("db migration failed", "err", err)
			pool.Close()
			panic(err)
		}
	}
	return storage.NewAvailabilityRepository(pool),
		storage.NewBookingRepository(pool),
		[]runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}},
		pool.Close
}

func newSender(logger *slog.Logger) email.Sender {
	host := config.String("SMTP_HOST", "")
	if host == "" {
		logger.Warn("SMTP not configured; emails are logged instead of sent")
		return email.LogSender{Logger: logger}
	}
	return email.NewSMTPSender(email.SMTPConfig{
		Host:     host,
		Port:     config.String("SMTP_PORT", "587"),
		Username: config.String("SMTP_USERNAME", ""),
		Password: config.String("SMTP_PASSWORD", ""),
		From:     config.String("SMTP_FROM", ""),
		FromName: config.String("SMTP_FROM_NAME", "Lesson Booking"),
	})
}

// newWriteLimiter prefers a shared Redis window when REDIS_ADDR is set and
// falls back to a per-process token bucket.
func newWriteLimiter(logger *slog.Logger) (httpx.Middleware, *redis.Client) {
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 30)
	if limit <= 0 {
		return nil, nil
	}
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		rl := httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "lessonbook:rl")
		return rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)), rdb
	}
	return httpx.NewRateLimiter(limit, time.Minute).Middleware(), nil
}
