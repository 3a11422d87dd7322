package main

import (
	"context"
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
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/InfinityFocus/Deebop-sub002/internal/client"
	"github.com/InfinityFocus/Deebop-sub002/internal/config"
	"github.com/InfinityFocus/Deebop-sub002/internal/ffmpeg"
	"github.com/InfinityFocus/Deebop-sub002/internal/handler"
	"github.com/InfinityFocus/Deebop-sub002/internal/middleware"
	"github.com/InfinityFocus/Deebop-sub002/internal/service"
	"github.com/InfinityFocus/Deebop-sub002/internal/store"
	"github.com/InfinityFocus/Deebop-sub002/internal/worker"
	ws "github.com/InfinityFocus/Deebop-sub002/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogging(cfg)

	ctx := context.Background()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis not available")
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize Postgres store
	st, err := store.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer st.Close()

	// Initialize R2 storage client
	r2Client, err := client.NewR2Client(&cfg.R2)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage client")
	}

	// Initialize ffmpeg engine
	engine := ffmpeg.NewEngine(&cfg.FFmpeg)
	if !engine.Available(ctx) {
		log.Warn().Msg("ffmpeg not available; jobs will complete with raw uploads")
	}

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize services
	jobService := service.NewJobService(st.Jobs, st.Posts, asynqClient)
	projectService := service.NewProjectService(st.Projects, asynqClient)

	// Initialize handlers and middleware
	mediaHandler := handler.NewMediaHandler(jobService, projectService, validate)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    50 * 1024 * 1024, // 50MB
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"ffmpeg":  engine.Available(c.Context()),
				"redis":   redisClient.Ping(c.Context()).Err() == nil,
				"storage": r2Client.IsConfigured(),
			},
		})
	})

	// API routes
	api := app.Group("/api")

	media := api.Group("/media")
	media.Post("/jobs", rateLimiter.JobLimit(60), mediaHandler.CreateJob)
	media.Get("/jobs/:jobId", rateLimiter.StatusLimit(300), mediaHandler.GetJobStatus)
	media.Post("/jobs/:jobId/process", rateLimiter.JobLimit(60), mediaHandler.TriggerJob)
	media.Get("/projects/:projectId", rateLimiter.StatusLimit(300), mediaHandler.GetProjectStatus)
	media.Post("/projects/:projectId/process", rateLimiter.ProjectLimit(10), mediaHandler.TriggerProject)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("jobId"))
	}))
	app.Get("/ws/projects/:projectId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("projectId"))
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, jobService, projectService, r2Client, engine, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Info().Str("addr", addr).Msg("server starting")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func startWorkerServer(
	cfg *config.Config,
	jobService *service.JobService,
	projectService *service.ProjectService,
	storage client.StorageClient,
	engine *ffmpeg.Engine,
	hub *ws.Hub,
) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				service.QueueMedia: 10,
			},
			LogLevel: asynqLogLevel(cfg.Server.LogLevel),
		},
	)

	jobWorker := worker.NewJobWorker(jobService, storage, engine, hub, cfg.FFmpeg.TempDir)
	projectWorker := worker.NewProjectWorker(projectService, storage, engine, hub, cfg.FFmpeg.TempDir)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeMediaJob, jobWorker.ProcessTask)
	mux.HandleFunc(service.TaskTypeMediaProject, projectWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Error().Err(err).Msg("asynq worker error")
	}
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Server.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Server.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func asynqLogLevel(level string) asynq.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return asynq.DebugLevel
	case "warn":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
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
