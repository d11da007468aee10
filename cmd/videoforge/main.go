package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mantonx/videoforge/internal/codec"
	"github.com/mantonx/videoforge/internal/config"
	"github.com/mantonx/videoforge/internal/database"
	"github.com/mantonx/videoforge/internal/events"
	"github.com/mantonx/videoforge/internal/ingest"
	"github.com/mantonx/videoforge/internal/logger"
	"github.com/mantonx/videoforge/internal/server"
)

func main() {
	fmt.Println("=======================================")
	fmt.Println("  Videoforge Editor Engine              ")
	fmt.Println("=======================================")

	configPath := os.Getenv("VIDEOFORGE_CONFIG_PATH")
	if configPath == "" {
		if _, err := os.Stat("./videoforge.yaml"); err == nil {
			configPath = "./videoforge.yaml"
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("failed to load configuration from %q: %v; using defaults", configPath, err)
		cfg = config.Default()
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	sqlDB, _ := db.DB()
	defer sqlDB.Close()

	registry := codec.NewRegistry()
	registry.RegisterInProcess(codec.NewGIFBackend())
	if ffmpegPath := os.Getenv("VIDEOFORGE_FFMPEG_PLUGIN"); ffmpegPath != "" {
		if err := registry.LaunchPlugin("ffmpeg_software", ffmpegPath); err != nil {
			logger.Warn("ffmpeg codec plugin failed to launch", []logger.Field{logger.Err("error", err)})
		}
	}
	defer registry.Shutdown()

	bus := events.NewBus()
	store := database.NewStore(db)

	eng := server.NewEngine(registry, bus, store, 1920, 1080)
	r := server.SetupRouter(eng)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// g bounds the lifecycle of every background watcher to ctx: once any
	// one of them is asked to stop, the others unwind with it instead of
	// leaking past shutdown.
	g, gctx := errgroup.WithContext(ctx)

	if cfg.HotFolder.Enabled && cfg.HotFolder.Path != "" {
		unbridge := eng.Loader.BridgeToTimeline(gctx, eng.Timeline)
		defer unbridge()
		g.Go(func() error {
			if err := ingest.WatchHotFolder(gctx, cfg.HotFolder.Path, bus); err != nil {
				logger.Warn("hot folder watcher stopped", []logger.Field{logger.Err("error", err)})
			}
			return nil
		})
	}

	watcher := config.NewWatcher(configPath, cfg)
	watcher.OnReload(func(next *config.Config) {
		logger.Info("configuration reloaded", []logger.Field{logger.String("path", configPath)})
	})
	if configPath != "" {
		g.Go(func() error {
			stop := make(chan struct{})
			go func() {
				<-gctx.Done()
				close(stop)
			}()
			if err := watcher.Watch(stop); err != nil {
				logger.Warn("config watcher stopped", []logger.Field{logger.Err("error", err)})
			}
			return nil
		})
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: r,
	}

	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigChan:
		case <-gctx.Done():
			return nil
		}

		log.Println("shutting down gracefully...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("http server shutdown error: %v", err)
		}
		cancel()
		return nil
	})

	log.Printf("videoforge engine listening on %s", cfg.Server.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("failed to start server: %v", err)
	}

	cancel()
	if err := g.Wait(); err != nil {
		log.Printf("background watcher error: %v", err)
	}
	log.Println("server shutdown complete")
}
