package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/edgelink/shortener/internal/cache"
	"github.com/edgelink/shortener/internal/clicks"
	"github.com/edgelink/shortener/internal/config"
	"github.com/edgelink/shortener/internal/database"
	"github.com/edgelink/shortener/internal/events"
	"github.com/edgelink/shortener/internal/handler"
	"github.com/edgelink/shortener/internal/logger"
	"github.com/edgelink/shortener/internal/metrics"
	"github.com/edgelink/shortener/internal/ratelimit"
	"github.com/edgelink/shortener/internal/repository"
	"github.com/edgelink/shortener/internal/routing"
	"github.com/edgelink/shortener/internal/service"
	"github.com/edgelink/shortener/internal/slug"
	"github.com/edgelink/shortener/internal/webhook"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("Server stopped with error", logger.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logger.Logger) error {
	m := metrics.New()

	// Хранилище ссылок
	var (
		db       *sql.DB
		store    repository.LinkRepository
		webhooks repository.WebhookRepository
	)
	switch cfg.Storage.Driver {
	case "postgres":
		var err error
		db, err = database.Connect(cfg.Database.DSN())
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()
		log.Info("Successfully connected to database", logger.String("host", cfg.Database.Host))

		if cfg.Database.AutoMigrate {
			if err := database.Migrate(db, database.Up, log); err != nil {
				return err
			}
		}
		store = repository.NewPostgresLinkRepository(db)
		webhooks = repository.NewPostgresWebhookRepository(db)
	default:
		log.Warn("Using in-memory storage, data is lost on restart")
		store = repository.NewMemoryLinkRepository()
		webhooks = repository.NewMemoryWebhookRepository()
	}

	// Подключаемся к Redis
	var redisClient *cache.RedisClient
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(cache.RedisConfig{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			CacheTTL:     cfg.Redis.CacheTTL,
			Namespace:    cfg.Redis.Namespace,
		})
		if err != nil {
			// Продолжаем без кэша
			log.Warn("Failed to connect to Redis, running without cache", logger.Error(err))
		} else {
			redisClient = client
			defer redisClient.Close()
			log.Info("Successfully connected to Redis", logger.String("addr", cfg.RedisAddr()))
		}
	}

	links := store
	var (
		rateStore ratelimit.Store = ratelimit.NewMemoryStore()
		limitOpts                 = []ratelimit.Option{ratelimit.WithMetrics(m)}
		accOpts                   = []clicks.Option{clicks.WithMetrics(m)}
		svcOpts                   = []service.Option{
			service.WithWebhooks(webhooks),
			service.WithStoreTimeout(cfg.Storage.Timeout),
			service.WithMetrics(m),
			service.WithLogger(log),
			service.WithValidator(routing.NewValidator(cfg.GetBaseURL())),
		}
	)
	if redisClient != nil {
		links = repository.NewCachedLinkRepository(store, redisClient, log)
		rateStore = redisClient
		limitOpts = append(limitOpts, ratelimit.WithKeyFunc(redisClient.Keys().RateLimit))
		accOpts = append(accOpts, clicks.WithVariantCounter(redisClient))
		svcOpts = append(svcOpts, service.WithVariantCounter(redisClient))
	}

	// Получатели событий кликов
	if cfg.AMQP.Enabled {
		publisher, err := events.Connect(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			log.Warn("Failed to connect to RabbitMQ, click events will not be published", logger.Error(err))
		} else {
			defer publisher.Close()
			accOpts = append(accOpts, clicks.WithSinks(publisher))
			log.Info("Publishing click events", logger.String("queue", cfg.AMQP.Queue))
		}
	}
	if cfg.Webhook.Enabled {
		dispatcher := webhook.NewDispatcher(webhooks, cfg.Webhook.Timeout, log.With(logger.String("component", "webhook")))
		accOpts = append(accOpts, clicks.WithSinks(dispatcher))
	}

	accountant := clicks.NewAccountant(links, clicks.Config{
		QueueSize:    cfg.Clicks.QueueSize,
		Workers:      cfg.Clicks.Workers,
		StoreTimeout: cfg.Storage.Timeout,
		EmitTimeout:  cfg.Clicks.EmitTimeout,
	}, log.With(logger.String("component", "clicks")), accOpts...)
	accountant.Start()

	allocator := slug.NewAllocator(links,
		slug.WithMaxAttempts(cfg.Slug.MaxAttempts),
		slug.WithReserved(cfg.Slug.Reserved),
		slug.WithMetrics(m),
		slug.WithLogger(log),
	)
	linkService := service.NewLinkService(links, allocator, accountant, cfg.GetBaseURL(), svcOpts...)

	limiter := ratelimit.New(rateStore, log, limitOpts...)
	linkHandler := handler.NewLinkHandler(linkService,
		routing.NewContextBuilder(cfg.Redirect.GeoHeaders, cfg.Redirect.VisitorCookie),
		handler.Options{
			RedirectStatus: cfg.Redirect.StatusCode,
			VisitorCookie:  cfg.Redirect.VisitorCookie,
			SecureCookie:   cfg.IsProduction(),
			Limiter:        limiter,
			UnlockRule:     limitRule(cfg.RateLimit.Unlock),
		},
		log,
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Middleware
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.GetAllowedOrigins(),
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", handler.OwnerHeader, handler.PasswordHeader},
		ExposeHeaders:    []string{"Content-Length", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// Health checks
	router.GET("/health", func(c *gin.Context) {
		response := gin.H{"status": "healthy"}
		services := gin.H{"database": "disabled", "cache": "disabled"}
		statusCode := http.StatusOK

		// Проверяем БД
		if db != nil {
			services["database"] = "healthy"
			if err := database.HealthCheck(c.Request.Context(), db); err != nil {
				services["database"] = "unhealthy"
				response["status"] = "degraded"
				statusCode = http.StatusServiceUnavailable
			}
		}

		// Проверяем Redis
		if redisClient != nil {
			services["cache"] = "healthy"
			if err := redisClient.HealthCheck(c.Request.Context()); err != nil {
				// Без кэша сервис работает, просто медленнее
				services["cache"] = "unhealthy"
				response["status"] = "degraded"
			}
		}

		response["services"] = services
		c.JSON(statusCode, response)
	})

	router.GET("/info", func(c *gin.Context) {
		info := gin.H{
			"service":        "EdgeLink",
			"version":        version,
			"storage_driver": cfg.Storage.Driver,
			"cache_enabled":  redisClient != nil,
			"redirect_code":  cfg.Redirect.StatusCode,
		}
		if db != nil {
			v, _ := database.GetVersion(c.Request.Context(), db)
			info["database_driver"] = "pgx"
			info["database_version"] = v
		}
		if redisClient != nil {
			info["cache_driver"] = "redis"
		}
		c.JSON(http.StatusOK, info)
	})

	router.GET("/metrics", gin.WrapH(m.Handler()))

	linkHandler.Register(router, handler.Middlewares{
		Create: limiter.Middleware("create", limitRule(cfg.RateLimit.Create), ratelimit.OwnerOrIP),
		API:    limiter.Middleware("api", limitRule(cfg.RateLimit.API), ratelimit.ClientIP),
	})

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// Запускаем сервер
	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting",
			logger.String("addr", cfg.GetServerAddress()),
			logger.String("base_url", cfg.GetBaseURL()),
			logger.Bool("cache", redisClient != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		accountant.Stop()
		return fmt.Errorf("listen: %w", err)
	case <-quit:
	}

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Останавливаем HTTP сервер, затем дописываем очередь кликов
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
	accountant.Stop()

	log.Info("Server gracefully stopped")
	return nil
}

func limitRule(r config.LimitRule) ratelimit.Rule {
	return ratelimit.Rule{Limit: r.Limit, Window: r.Window}
}
