package main

import (
	"context"
	"os"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/InfinityFocus/Deebop-sub002/internal/client"
	"github.com/InfinityFocus/Deebop-sub002/internal/config"
	"github.com/InfinityFocus/Deebop-sub002/internal/ffmpeg"
	"github.com/InfinityFocus/Deebop-sub002/internal/processor"
	"github.com/InfinityFocus/Deebop-sub002/internal/service"
	"github.com/InfinityFocus/Deebop-sub002/internal/store"
)

// The standalone worker consumes upload-processing tasks only. It keeps no
// job rows; failed tasks are retried by the queue itself.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	level, levelErr := zerolog.ParseLevel(strings.ToLower(cfg.Server.LogLevel))
	if levelErr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Server.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx := context.Background()

	st, err := store.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer st.Close()

	r2Client, err := client.NewR2Client(&cfg.R2)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage client")
	}

	engine := ffmpeg.NewEngine(&cfg.FFmpeg)
	if !engine.Available(ctx) {
		log.Warn().Msg("ffmpeg not available; video tasks will fail")
	}

	videoProcessor := processor.NewVideoProcessor(r2Client, engine, cfg.FFmpeg.TempDir)
	proc := processor.New(r2Client, videoProcessor, st.Posts)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				service.QueueUploads: 10,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeMediaUpload, proc.ProcessTask)

	log.Info().Int("concurrency", cfg.Worker.Concurrency).Msg("upload worker starting")
	if err := srv.Run(mux); err != nil {
		log.Fatal().Err(err).Msg("worker error")
	}
}
