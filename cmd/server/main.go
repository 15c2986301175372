package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/raglab/docuchat/internal/api"
	"github.com/raglab/docuchat/internal/chat"
	"github.com/raglab/docuchat/internal/config"
	"github.com/raglab/docuchat/internal/enrich"
	"github.com/raglab/docuchat/internal/genai"
	"github.com/raglab/docuchat/internal/imagestore"
	"github.com/raglab/docuchat/internal/keypool"
	"github.com/raglab/docuchat/internal/parser"
	"github.com/raglab/docuchat/internal/pipeline"
	"github.com/raglab/docuchat/internal/vectorstore"
)

func main() {
	// A missing .env is fine; the environment may carry everything.
	godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	pool, err := keypool.FromEnv("GOOGLE_API_KEY")
	if err != nil {
		log.Error("no API keys configured", "error", err)
		os.Exit(1)
	}
	log.Info("key pool loaded", "keys", pool.Size())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients.
	gen := genai.NewClient(cfg.GenerationModel, cfg.EmbeddingModel, cfg.Temperature)
	chroma := vectorstore.NewClient(cfg.ChromaURL)

	var remote *parser.Remote
	if cfg.PartitionURL != "" {
		remote = parser.NewRemote(cfg.PartitionURL, cfg.PartitionAPIKey)
	}

	images, err := imagestore.New(cfg.ImageDir)
	if err != nil {
		log.Error("image store init failed", "error", err)
		os.Exit(1)
	}

	embed := embedWithRotation(gen, pool)
	store := vectorstore.NewStore(chroma, embed, log)

	enricher := enrich.New(gen, pool, images, log, enrich.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		MaxConcurrent:  cfg.MaxConcurrentEnrich,
	})

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, remote, enricher, store, images, log)
	orch.Start(ctx)

	// Initialize chat.
	sessions := chat.NewRegistry(store)
	answerer := chat.NewAnswerer(store, gen, pool, images, log, chat.Options{
		SearchK:    cfg.SearchK,
		PieceSize:  cfg.StreamPieceSize,
		PieceDelay: cfg.StreamPieceDelay,
	})

	// Initialize HTTP server.
	srv := api.NewServer(orch, store, sessions, answerer, pool, images, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams outlive any fixed write deadline
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		gen.Close()
		chroma.Close()
		if remote != nil {
			remote.Close()
		}
	}()

	log.Info("starting docuchat", "port", cfg.Port, "model", cfg.GenerationModel)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

// embedWithRotation wraps the embedding call with key rotation: a
// rate-limited or invalid key rotates and the call retries with the
// next key, once per key in the pool.
func embedWithRotation(gen *genai.Client, pool *keypool.Pool) vectorstore.EmbedFunc {
	return func(ctx context.Context, text string) ([]float64, error) {
		key := pool.Current()
		var lastErr error
		for attempt := 0; attempt < pool.Size(); attempt++ {
			vec, err := gen.Embed(ctx, key, text)
			if err == nil {
				pool.MarkWorking()
				return vec, nil
			}
			lastErr = err
			switch genai.KindOf(err) {
			case genai.KindRateLimited:
				key = pool.Rotate(keypool.ReasonRateLimit)
			case genai.KindInvalidKey:
				key = pool.Rotate(keypool.ReasonExpired)
			default:
				return nil, err
			}
		}
		return nil, lastErr
	}
}
