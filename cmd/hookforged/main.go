package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"hookforge/internal/config"
	"hookforge/internal/events"
	"hookforge/internal/http/handlers"
	"hookforge/internal/http/httpapi"
	"hookforge/internal/infra"
	"hookforge/internal/pipeline"
	"hookforge/internal/providers/asr"
	"hookforge/internal/providers/llm"
	"hookforge/internal/providers/media"
	"hookforge/internal/providers/videogen"
	"hookforge/internal/registry"
	"hookforge/internal/retention"
	"hookforge/internal/storage"
	"hookforge/internal/worker"
)

func main() {
	// Load .env (optional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	db, err := infra.OpenSQLite(cfg.DatabasePath())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open job database")
	}
	defer db.Close()

	reg := registry.New(infra.NewSQLRunner(db, logger), logger)
	if err := reg.Init(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize schema")
	}

	store, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open file store")
	}
	cfgStore := config.NewStore(cfg.ConfigPath(), cfg.PresetsPath())
	appCfg, err := cfgStore.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load pipeline config")
	}

	broadcaster := events.NewBroadcaster(reg, logger)
	defer broadcaster.Close()
	reg.SetEventHook(broadcaster.Publish)

	ffmpeg := media.New(media.Options{})
	runner := pipeline.NewRunner(pipeline.RunnerOptions{
		Registry: reg,
		Store:    store,
		ASR:      asr.New(asr.Options{}),
		LLM:      llm.New(llm.Options{}),
		Video:    videogen.New(videogen.Options{}),
		Media:    ffmpeg,
		Logger:   logger,
	})

	pool, err := worker.NewPool(runner, appCfg.Pipeline.MaxParallelJobs, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create worker pool")
	}
	if _, err := pool.Recover(ctx, reg); err != nil {
		logger.Error().Err(err).Msg("failed to recover unfinished jobs")
	}

	app := &handlers.App{
		Registry:    reg,
		Store:       store,
		ConfigStore: cfgStore,
		Pool:        pool,
		Rerun:       pipeline.NewRerun(reg, store),
		Sweeper:     retention.NewSweeper(reg, store, pool, logger),
		Broadcaster: broadcaster,
		Media:       ffmpeg,
		Logger:      logger,
	}

	router := httpapi.NewRouter(app, logger, cfg.CORSAllowedOrigins)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	// Stop workers after the listener: interrupted jobs keep their status
	// and resume on the next start.
	pool.Close()
	logger.Info().Msg("server stopped")
}
