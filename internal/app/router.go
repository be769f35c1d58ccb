package app

import (
	"log"
	"net/http"
	"time"

	"engagehub/internal/config"
	"engagehub/internal/middleware"
	"engagehub/internal/repository"
	"engagehub/internal/service"
	"engagehub/internal/store"
	"engagehub/internal/util"

	"github.com/gin-gonic/gin"
)

func NewRouter(cfg *config.Config) *gin.Engine {
	// Set Gin mode
	if cfg.ServerPort == "5000" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	// CORS middleware
	r.Use(corsMiddleware(cfg.ClientURL))

	// Rate limiting middleware (if enabled)
	if cfg.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		r.Use(rateLimiter.Middleware())
		log.Printf("Rate limiting enabled: %d req/sec, burst: %d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	// Initialize document store
	docStore, err := store.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		panic("Failed to connect to document store: " + err.Error())
	}

	// Initialize Redis with retry logic
	redisClient := initRedisWithRetry(cfg)

	// Initialize RabbitMQ with retry logic
	rabbitMQ := initRabbitMQWithRetry(cfg)

	// Initialize event publisher if RabbitMQ is available
	var events service.EventPublisher
	if rabbitMQ != nil {
		events, err = service.NewEventPublisher(rabbitMQ)
		if err != nil {
			log.Printf("Warning: Failed to declare engagement exchange: %v. Events will not be published.", err)
			events = nil
		} else {
			log.Println("Engagement event publisher started successfully")
		}
	} else {
		log.Println("Event publisher not started - RabbitMQ connection failed. Engagement events disabled.")
	}

	// Initialize repositories
	threadRepo := repository.NewThreadRepository(docStore, redisClient, cfg.StoreTimeout)
	likeRepo := repository.NewLikeRepository(docStore, redisClient, cfg.StoreTimeout)

	// Initialize services
	threadService := service.NewThreadService(threadRepo, likeRepo, events)
	engagementService := service.NewEngagementService(likeRepo, threadRepo, events, redisClient, cfg.ViewDedupeWindow)

	// Initialize handlers
	threadHandler := NewThreadHandler(threadService)
	engagementHandler := NewEngagementHandler(engagementService)

	auth := middleware.Auth(cfg.JWTSecret)
	optionalAuth := middleware.OptionalAuth(cfg.JWTSecret)

	// API routes
	api := r.Group("/api/v1")
	{
		targets := api.Group("/targets/:kind/:targetId")
		{
			targets.POST("/threads", auth, threadHandler.CreateThreadItem)
			targets.GET("/threads", optionalAuth, threadHandler.ListThreadItems)
			targets.POST("/like", auth, engagementHandler.ToggleContentLike)
			targets.POST("/view", optionalAuth, engagementHandler.TrackView)
		}

		threads := api.Group("/threads/:kind/:id")
		{
			threads.GET("", optionalAuth, threadHandler.GetThreadItem)
			threads.PUT("", auth, threadHandler.UpdateThreadItem)
			threads.DELETE("", auth, threadHandler.SoftDeleteThreadItem)
			threads.POST("/like", auth, engagementHandler.ToggleThreadLike)
			threads.GET("/like", optionalAuth, engagementHandler.GetThreadLike)
		}
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

// initRabbitMQWithRetry attempts to connect to RabbitMQ with exponential backoff retry
func initRabbitMQWithRetry(cfg *config.Config) *util.RabbitMQClient {
	maxRetries := 10
	initialDelay := 2 * time.Second
	maxDelay := 30 * time.Second

	for attempt := 1; attempt <= maxRetries; attempt++ {
		rabbitMQ, err := util.NewRabbitMQClient(cfg)
		if err == nil {
			log.Printf("RabbitMQ connected successfully on attempt %d", attempt)
			return rabbitMQ
		}

		if attempt < maxRetries {
			// Calculate delay with exponential backoff
			delay := initialDelay * time.Duration(1<<uint(attempt-1))
			if delay > maxDelay {
				delay = maxDelay
			}

			log.Printf("Failed to connect to RabbitMQ (attempt %d/%d): %v. Retrying in %v...", attempt, maxRetries, err, delay)
			time.Sleep(delay)
		} else {
			log.Printf("Warning: Failed to connect to RabbitMQ after %d attempts: %v. Engagement events will be disabled.", maxRetries, err)
		}
	}

	return nil
}

// initRedisWithRetry attempts to connect to Redis with exponential backoff retry
func initRedisWithRetry(cfg *config.Config) *util.RedisClient {
	maxRetries := 10
	initialDelay := 2 * time.Second
	maxDelay := 30 * time.Second

	for attempt := 1; attempt <= maxRetries; attempt++ {
		redisClient, err := util.NewRedisClient(cfg)
		if err == nil {
			log.Printf("Redis connected successfully on attempt %d", attempt)
			return redisClient
		}

		if attempt < maxRetries {
			// Calculate delay with exponential backoff
			delay := initialDelay * time.Duration(1<<uint(attempt-1))
			if delay > maxDelay {
				delay = maxDelay
			}

			log.Printf("Failed to connect to Redis (attempt %d/%d): %v. Retrying in %v...", attempt, maxRetries, err, delay)
			time.Sleep(delay)
		} else {
			log.Printf("Warning: Failed to connect to Redis after %d attempts: %v. Caching will be disabled.", maxRetries, err)
			log.Println("Note: Application will continue without Redis caching")
		}
	}

	return nil
}

func corsMiddleware(clientURL string) gin.HandlerFunc {
	// Allowed origins (whitelist)
	allowedOrigins := []string{
		clientURL, // Default from config
		"http://localhost:3000",
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is in whitelist
		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
