package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/autolink/internal/app"
	"github.com/ignite/autolink/internal/config"
	"github.com/ignite/autolink/internal/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	once := flag.Bool("once", false, "Run a single rescan pass and exit")
	flag.Parse()

	log.Println("Starting autolink rescan worker...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer a.Close()
	log.Println("Connected to database")

	rescan := worker.NewRescanWorker(a.Contents, a.Suggestions, worker.RescanConfig{
		PollInterval: cfg.Worker.PollInterval(),
		Concurrency:  cfg.Worker.Concurrency,
		BatchSize:    cfg.Worker.BatchSize,
		Lookback:     cfg.Worker.Lookback(),
		MaxAttempts:  cfg.Worker.MaxAttempts,
	})

	if len(cfg.Worker.Feeds) > 0 {
		feeds := make([]worker.FeedConfig, 0, len(cfg.Worker.Feeds))
		for _, f := range cfg.Worker.Feeds {
			feeds = append(feeds, worker.FeedConfig{URL: f.URL, OwnerID: f.OwnerID})
		}
		rescan.SetFeedWatcher(worker.NewFeedWatcher(feeds, a.Suggestions, cfg.Worker.Concurrency))
		log.Printf("Feed watcher enabled for %d feeds", len(feeds))
	}

	if *once {
		n, err := rescan.RunOnce(ctx)
		if err != nil {
			log.Fatalf("Rescan failed: %v", err)
		}
		log.Printf("Rescan complete: %d content items scanned", n)
		return
	}

	if err := rescan.Start(); err != nil {
		log.Fatalf("Failed to start rescan worker: %v", err)
	}
	log.Printf("Rescan worker running (every %s, concurrency %d)", cfg.Worker.PollInterval(), cfg.Worker.Concurrency)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()
	rescan.Stop()

	log.Printf("Worker stopped: %v", rescan.Stats())
}
