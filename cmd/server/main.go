package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/reviewpilot/api/internal/analyzer"
	"github.com/reviewpilot/api/internal/client"
	"github.com/reviewpilot/api/internal/config"
	"github.com/reviewpilot/api/internal/handler"
	"github.com/reviewpilot/api/internal/middleware"
	"github.com/reviewpilot/api/internal/service"
	"github.com/reviewpilot/api/internal/worker"
	ws "github.com/reviewpilot/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize external clients
	githubClient := client.NewGitHubClient(&cfg.GitHub)
	llmClient := client.NewLLMClient(&cfg.LLM)

	// Initialize report archive client (optional - continues if not configured)
	var archiveClient *client.ArchiveClient
	if cfg.Archive.AccessKeyID != "" && cfg.Archive.SecretAccessKey != "" {
		var err error
		archiveClient, err = client.NewArchiveClient(&cfg.Archive)
		if err != nil {
			log.Printf("Warning: archive client not initialized: %v", err)
		}
	} else {
		log.Println("Info: report archive not configured, completed reports are kept in Redis only")
	}

	// Initialize services
	reviewService := service.NewReviewService(redisClient, asynqClient)

	// Initialize handlers
	reviewHandler := handler.NewReviewHandler(reviewService, validate)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Dashboard UI
	app.Get("/", handler.Dashboard)

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "ok",
			"environment": cfg.Server.Env,
			"services": fiber.Map{
				"github":  githubClient.IsConfigured(),
				"llm":     llmClient.IsConfigured(),
				"archive": archiveClient != nil,
				"redis":   redisClient.Ping(c.Context()).Err() == nil,
			},
		})
	})

	// API routes
	api := app.Group("/api")

	review := api.Group("/review")
	review.Post("/submit", rateLimiter.SubmitLimit(cfg.RateLimit.SubmitPerHour), reviewHandler.Submit)
	review.Get("/status/:jobId", reviewHandler.Status)
	review.Get("/result/:jobId", reviewHandler.Result)
	review.Get("/jobs", reviewHandler.List)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, reviewService, githubClient, llmClient, archiveClient, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	reviewService *service.ReviewService,
	githubClient *client.GitHubClient,
	llmClient *client.LLMClient,
	archiveClient *client.ArchiveClient,
	hub *ws.Hub,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"review": 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	orchestrator := analyzer.NewOrchestrator(analyzer.DefaultAnalyzers(llmClient))

	// the nil *ArchiveClient must not become a non-nil StorageClient
	var archive client.StorageClient
	if archiveClient != nil {
		archive = archiveClient
	}

	reviewWorker := worker.NewReviewWorker(
		reviewService,
		githubClient,
		orchestrator,
		llmClient,
		archive,
		hub,
		worker.DefaultRetryPolicy(),
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeReview, reviewWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
