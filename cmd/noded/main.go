package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redisv9 "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"peermarket/internal/config"
	"peermarket/internal/database"
	"peermarket/internal/dedup"
	"peermarket/internal/engine"
	"peermarket/internal/handler"
	"peermarket/internal/middleware"
	"peermarket/internal/monitor"
	"peermarket/internal/repository"
	"peermarket/internal/service/auth"
	"peermarket/internal/service/command"
	"peermarket/internal/service/ingest"
	"peermarket/internal/service/message"
	"peermarket/internal/service/order"
	"peermarket/internal/transport"
	"peermarket/internal/utils"
	"peermarket/pkg/limiter"
	"peermarket/pkg/log"
	"peermarket/pkg/queue"
	"peermarket/pkg/snowflake"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to load config")
	}
	config.GlobalConfig = cfg

	logConfig := log.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxAge:     cfg.Log.MaxAge,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
	}
	log.Init(logConfig)

	// database
	if err := database.Init(cfg); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize database")
	}
	defer database.Close()

	db := database.GetDB()
	if err := database.AutoMigrate(db); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to run migrations")
	}
	if err := database.CreateIndexes(db); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to create indexes")
	}

	// redis
	redisClient := redisv9.NewClient(&redisv9.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	defer redisClient.Close()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// observability
	metrics := monitor.NewMetricsCollector(cfg.Metrics.Namespace)
	tracer, err := monitor.NewTracer(cfg.Tracing)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize tracer")
	}

	// repositories
	messageRepo := repository.NewMessageRepository(db)
	listingRepo := repository.NewListingRepository(db)
	bidRepo := repository.NewBidRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	templateRepo := repository.NewTemplateRepository(db)

	// ID generator
	idGenerator, err := snowflake.NewIDGenerator(cfg.Node.ID)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to create ID generator")
	}

	// dedup cache
	deduper := dedup.NewCache(redisClient, dedup.Config{KeyPrefix: "dedup:msg"})

	// engine
	resolver := engine.NewResolver(listingRepo, bidRepo, orderRepo)
	handlers := engine.NewHandlers(listingRepo, bidRepo, orderRepo, templateRepo, idGenerator)
	processor := engine.NewProcessor(
		messageRepo,
		resolver,
		handlers,
		deduper,
		engine.RetryPolicy{
			InitialInterval: cfg.Engine.Retry.InitialInterval,
			MaxInterval:     cfg.Engine.Retry.MaxInterval,
			Multiplier:      cfg.Engine.Retry.Multiplier,
			MaxAttempts:     cfg.Engine.Retry.MaxAttempts,
		},
		cfg.Engine.ConflictRetries,
		metrics,
		tracer,
	)

	messageQueue := queue.NewMemoryQueue(nil)
	scheduler := engine.NewScheduler(messageQueue, processor, messageRepo, cfg.Engine, metrics)
	if err := scheduler.Start(context.Background()); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to start scheduler")
	}

	// services
	ingestService := ingest.NewService(scheduler, cfg.Node)
	submitter := transport.NewBreakerSubmitter(
		transport.NewLoopbackSubmitter(ingestService, cfg.Node.Address, idGenerator),
		metrics,
	)
	commandService := command.NewService(submitter, templateRepo, cfg.Node)
	messageService := message.NewService(messageRepo, orderRepo, listingRepo, deduper, scheduler)
	orderService := order.NewService(orderRepo, listingRepo, bidRepo)

	jwtManager := utils.NewJWTManager(cfg.Auth.JWTSecret, "peermarket", cfg.Auth.AccessExpire)
	authService := auth.NewService(cfg.Auth, jwtManager)

	router := setupRouter(cfg, authService, ingestService, commandService, messageService, orderService, redisClient)

	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	go func() {
		log.WithFields(map[string]interface{}{
			"addr": server.Addr,
			"mode": cfg.Server.Mode,
			"node": cfg.Node.Address,
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithFields(map[string]interface{}{
				"error": err.Error(),
			}).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Error("Server forced to shutdown")
	}

	scheduler.Stop()
	messageQueue.Close()
	if err := tracer.Shutdown(ctx); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Warn("Tracer shutdown failed")
	}

	log.Info("Node exited")
}

func setupRouter(
	cfg *config.Config,
	authService *auth.Service,
	ingestService *ingest.Service,
	commandService *command.Service,
	messageService *message.Service,
	orderService *order.Service,
	redisClient *redisv9.Client,
) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())

	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(limiter.NewTokenBucketLimiter(
			rate.Limit(cfg.RateLimit.Rate),
			cfg.RateLimit.Burst,
		)))
	}

	router.GET("/health", healthCheck(redisClient))
	router.GET("/ping", ping)

	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(promhttp.Handler()))
	}

	authHandler := handler.NewAuthHandler(authService)
	messageHandler := handler.NewMessageHandler(messageService, ingestService)
	orderHandler := handler.NewOrderHandler(orderService, commandService)

	tokenValidator := func(token string) (*middleware.OperatorInfo, error) {
		claims, err := authService.Validate(token)
		if err != nil {
			return nil, err
		}
		return &middleware.OperatorInfo{
			Username: claims.Username,
			Role:     claims.Role,
		}, nil
	}

	api := router.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.POST("/auth/login", authHandler.Login)

			protected := v1.Group("")
			protected.Use(middleware.Auth(tokenValidator))
			{
				protected.GET("/messages", messageHandler.List)
				protected.GET("/messages/:id", messageHandler.Get)
				protected.POST("/messages/:id/requeue", messageHandler.Requeue)
				protected.GET("/stats", messageHandler.Stats)
				protected.POST("/ingest", messageHandler.Ingest)

				protected.GET("/orders/:id", orderHandler.Get)
				protected.GET("/orders/hash/:hash", orderHandler.GetByHash)
				protected.GET("/listings/:hash", orderHandler.GetListing)
				protected.GET("/listings/:hash/bids", orderHandler.BidChain)

				protected.POST("/actions", orderHandler.Submit)
			}
		}
	}

	return router
}

func healthCheck(redisClient *redisv9.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbHealthy := database.Health() == nil

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		redisHealthy := redisClient.Ping(ctx).Err() == nil

		health := gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
			"services": gin.H{
				"database": dbHealthy,
				"redis":    redisHealthy,
			},
		}

		if !dbHealthy || !redisHealthy {
			health["status"] = "error"
			c.JSON(http.StatusServiceUnavailable, health)
			return
		}

		c.JSON(http.StatusOK, health)
	}
}

func ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "pong",
		"timestamp": time.Now().Unix(),
	})
}
