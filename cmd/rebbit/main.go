package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rebbit-player/rebbit/internal/app"
	"github.com/rebbit-player/rebbit/internal/audio"
	"github.com/rebbit-player/rebbit/internal/config"
	"github.com/rebbit-player/rebbit/internal/events"
	"github.com/rebbit-player/rebbit/internal/fetch"
	"github.com/rebbit-player/rebbit/internal/library"
	"github.com/rebbit-player/rebbit/internal/metadata"
	"github.com/rebbit-player/rebbit/internal/player"
	"github.com/rebbit-player/rebbit/internal/search"
	"github.com/rebbit-player/rebbit/internal/storage"
	"github.com/rebbit-player/rebbit/internal/update"
)

var (
	configPath = flag.String("config", "", "Path to configuration file")
	debug      = flag.Bool("debug", false, "Enable debug mode - shows detailed logging for all components")
)

func main() {
	flag.Parse()

	if *debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		log.Println("[MAIN] Debug mode enabled - all components will log detailed information")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[MAIN] Failed to load config: %v", err)
	}

	if *debug {
		cfg.Debug = true
		log.Printf("[MAIN] Configuration loaded successfully")
		log.Printf("[MAIN] - Database Path: %s", cfg.Storage.DatabasePath)
		log.Printf("[MAIN] - Music Directory: %s", cfg.Library.MusicDir)
		log.Printf("[MAIN] - Cover Cache: %s", cfg.Storage.CoverCacheDir)
		log.Printf("[MAIN] - Sample Rate: %d", cfg.Audio.SampleRate)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.NewDatabase(cfg)
	if err != nil {
		log.Fatalf("[MAIN] Failed to open database: %v", err)
	}

	output, err := audio.NewOutput(cfg)
	if err != nil {
		log.Fatalf("[MAIN] Failed to initialize audio output: %v", err)
	}

	reader := metadata.NewReader(cfg)

	session := app.NewSession(cfg, app.Deps{
		Storage: db,
		Bus:     events.NewBus(),
		Player:  player.NewPlayer(output, cfg.Debug),
		Scanner: library.NewScanner(cfg, db, reader),
		Fetcher: fetch.NewManager(cfg, fetch.NewYTDownloader()),
		Remote:  fetch.NewSearcher(cfg),
		Local:   search.NewEngine(db),
		Reader:  reader,
		Writer:  metadata.NewWriter(),
		Updates: update.NewChecker(cfg),
	})

	setupGracefulShutdown(cancel, session)
	session.Run(ctx)
}

func setupGracefulShutdown(cancel context.CancelFunc, session *app.Session) {
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)

		sig := <-c
		log.Printf("[MAIN] Received signal: %v", sig)

		cancel()
		if err := session.Close(); err != nil {
			log.Printf("[MAIN] Shutdown error: %v", err)
		}

		log.Printf("[MAIN] Graceful shutdown completed")
		os.Exit(0)
	}()
}
