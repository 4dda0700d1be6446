package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chainlesschain/chainlesschain-sub001/internal/handlers"
	"github.com/chainlesschain/chainlesschain-sub001/internal/metrics"
	appmiddleware "github.com/chainlesschain/chainlesschain-sub001/internal/middleware"
	"github.com/chainlesschain/chainlesschain-sub001/internal/repository"
	"github.com/chainlesschain/chainlesschain-sub001/internal/services"
	"github.com/chainlesschain/chainlesschain-sub001/internal/storage"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 15 * time.Second
	startupTimeout         = 30 * time.Second
)

// newPostgresDB подменяется в тестах.
var newPostgresDB = repository.NewPostgresDB

// Структура для хранения инициализированных зависимостей.
type dependencies struct {
	db              *sqlx.DB
	registry        *prometheus.Registry
	metrics         *metrics.Metrics
	authHandler     *handlers.AuthHandler
	deviceHandler   *handlers.DeviceHandler
	backupHandler   *handlers.BackupHandler
	recoveryHandler *handlers.RecoveryHandler
}

// main - точка входа. Вызывает run и обрабатывает ошибку.
func main() {
	if err := run(); err != nil {
		log.Printf("Ошибка выполнения сервера: %v", err)
		os.Exit(1)
	}
}

// run содержит основную логику запуска сервера и возвращает ошибку.
func run() error {
	log.Println("Запуск сервера жизненного цикла U-Key/SIM-Key...")

	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		return fmt.Errorf("ошибка конфигурации: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := setupDependencies(ctx, cfg)
	if err != nil {
		return fmt.Errorf("ошибка инициализации зависимостей: %w", err)
	}
	defer func() {
		if closeErr := deps.db.Close(); closeErr != nil {
			log.Printf("Ошибка закрытия соединения с БД: %v", closeErr)
		}
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      setupRouter(deps, cfg),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Запуск HTTPS-сервера на порту %s (сертификат: %s)", cfg.Port, cfg.CertFile)
		if err := server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err = <-serverErr:
		if err != nil {
			return fmt.Errorf("ошибка запуска HTTPS-сервера: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Println("Получен сигнал остановки, завершаем обработку запросов...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка остановки сервера: %w", err)
	}
	log.Println("Сервер остановлен")
	return nil
}

// newRegistry создает реестр Prometheus со стандартными коллекторами процесса.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// setupDependencies инициализирует и возвращает все необходимые зависимости сервера.
func setupDependencies(ctx context.Context, cfg *config) (*dependencies, error) {
	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	deps := &dependencies{registry: newRegistry()}
	deps.metrics = metrics.New(deps.registry)

	// 1. Подключение к БД и схема
	db, err := newPostgresDB(startCtx, cfg.database())
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации БД: %w", err)
	}
	if err = repository.ApplySchema(startCtx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ошибка применения схемы БД: %w", err)
	}
	deps.db = db
	log.Println("Соединение с БД установлено, схема применена.")

	// 2. Объектное хранилище резервных копий
	blobs, err := storage.NewMinioClient(startCtx, cfg.minio())
	if err != nil {
		if dbCloseErr := db.Close(); dbCloseErr != nil {
			log.Printf("Ошибка закрытия соединения с БД при ошибке MinIO: %v", dbCloseErr)
		}
		return nil, fmt.Errorf("ошибка инициализации клиента MinIO: %w", err)
	}

	// 3. Репозитории
	userRepo := repository.NewPostgresUserRepository(db)
	deviceRepo := repository.NewPostgresDeviceRepository(db)
	backupRepo := repository.NewPostgresBackupRepository(db)
	recoveryRepo := repository.NewPostgresRecoveryRepository()

	// 4. Сервисы
	policy := cfg.policy()
	opts := []services.Option{services.WithMetrics(deps.metrics)}
	authService := services.NewAuthService(userRepo, []byte(cfg.JWTSecret), services.DefaultTokenTTL, opts...)
	deviceService := services.NewDeviceService(deviceRepo, opts...)
	activation := services.NewActivationService(db, deviceRepo, policy, opts...)
	backupService := services.NewBackupService(deviceRepo, backupRepo, blobs, policy, opts...)
	recoveryService := services.NewRecoveryService(db, recoveryRepo, deviceRepo, userRepo,
		activation, cfg.challengeSender(), policy, opts...)

	// 5. Обработчики
	deps.authHandler = handlers.NewAuthHandler(authService)
	deps.deviceHandler = handlers.NewDeviceHandler(deviceService, activation)
	deps.backupHandler = handlers.NewBackupHandler(backupService)
	deps.recoveryHandler = handlers.NewRecoveryHandler(recoveryService)

	return deps, nil
}

// setupRouter настраивает и возвращает роутер chi.
func setupRouter(deps *dependencies, cfg *config) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	// Без доверенного прокси адрес клиента берется из сокета: иначе X-Forwarded-For
	// позволил бы обходить ограничение частоты восстановления.
	if cfg.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appmiddleware.Metrics(deps.metrics))

	// --- Маршруты --- //
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong\n"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{}))

	recoveryLimiter := appmiddleware.NewRateLimiter(cfg.RecoveryRateLimit, cfg.RecoveryRateBurst)

	r.Route("/api", func(r chi.Router) {
		// Публичные маршруты (регистрация, вход)
		r.Post("/register", deps.authHandler.Register)
		r.Post("/login", deps.authHandler.Login)

		// Восстановление доступа: без аутентификации, с ограничением частоты
		r.Route("/recovery", func(r chi.Router) {
			r.Use(recoveryLimiter.Handler)
			r.Post("/initiate", deps.recoveryHandler.Initiate)
			r.Post("/verify", deps.recoveryHandler.Verify)
			r.Post("/reset-password", deps.recoveryHandler.Reset)
		})

		// Административные маршруты
		r.Route("/admin", func(r chi.Router) {
			r.Use(appmiddleware.AdminOnly(cfg.AdminToken))
			r.Route("/devices", func(r chi.Router) {
				r.Post("/", deps.deviceHandler.Register)
				r.Get("/", deps.deviceHandler.List)
				r.Get("/{id}", deps.deviceHandler.Get)
				r.Post("/{id}/activation-code", deps.deviceHandler.IssueCode)
				r.Post("/{id}/lock", deps.deviceHandler.Lock)
				r.Post("/{id}/unlock", deps.deviceHandler.Unlock)
				r.Post("/{id}/deactivate", deps.deviceHandler.Deactivate)
			})
			r.Get("/backups", deps.backupHandler.ListAll)
			r.Delete("/backups/{id}", deps.backupHandler.DeleteAny)
		})

		// Маршруты владельца (требуют аутентификации)
		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Authenticator([]byte(cfg.JWTSecret)))

			r.Put("/account/recovery-key", deps.authHandler.SetRecoveryKey)
			r.Post("/devices/activate", deps.deviceHandler.Activate)
			r.Get("/devices/{id}", deps.deviceHandler.GetOwned)
			r.Post("/devices/{id}/backups", deps.backupHandler.Create)
			r.Get("/devices/{id}/backups/restore", deps.backupHandler.Restore)
			r.Get("/backups", deps.backupHandler.ListOwn)
			r.Delete("/backups/{id}", deps.backupHandler.DeleteOwn)
		})
	})
	return r
}
