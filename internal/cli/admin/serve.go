package admin

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ckr-digital/ridgeline/internal/api/handlers"
	"github.com/ckr-digital/ridgeline/internal/config"
	"github.com/ckr-digital/ridgeline/internal/database"
	"github.com/ckr-digital/ridgeline/internal/jobs"
	"github.com/ckr-digital/ridgeline/internal/openai"
	"github.com/ckr-digital/ridgeline/internal/repository"
	"github.com/ckr-digital/ridgeline/internal/server"
	"github.com/ckr-digital/ridgeline/internal/service"
	"github.com/ckr-digital/ridgeline/internal/storage"
	"github.com/ckr-digital/ridgeline/internal/telemetry"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the ridgeline API server and embedding worker on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-worker", false, "Do not start the background embedding worker")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := database.Migrate(cfg.DatabaseURL, "migrations"); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	fileRepo := repository.NewKnowledgeFileRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	jobRepo := repository.NewEmbeddingJobRepository(pool)
	assignmentRepo := repository.NewAssignmentRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	var archive service.ArchiveStore
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		archive = s3Client
	}

	tracker := service.NewJobTracker(jobRepo)
	chunker := service.NewChunker(service.DefaultChunkConfig())

	var ingestSvc *service.IngestService
	if archive != nil {
		ingestSvc = service.NewIngestServiceWithArchive(txRunner, fileRepo, chunker, tracker, archive)
	} else {
		ingestSvc = service.NewIngestService(txRunner, fileRepo, chunker, tracker)
	}

	contextSvc := service.NewContextService(assignmentRepo, fileRepo)
	statsSvc := service.NewStatsService(chunkRepo, fileRepo)

	var worker *jobs.Worker
	knowledgeHandler := handlers.NewKnowledgeHandler(ingestSvc)
	jobHandler := handlers.NewJobHandler(tracker)
	contextHandler := handlers.NewContextHandler(contextSvc)
	statsHandler := handlers.NewStatsHandler(statsSvc)

	var searchHandler *handlers.SearchHandler
	if cfg.HasOpenAI() {
		embedder := openai.NewClient(cfg.OpenAIAPIKey)
		searchHandler = handlers.NewSearchHandler(service.NewSearchService(chunkRepo, embedder))

		noWorker, _ := cmd.Flags().GetBool("no-worker")
		if !noWorker {
			runner := service.NewEmbedRunner(chunkRepo, tracker, embedder, service.EmbedRunnerConfig{
				BatchSize:   cfg.EmbedBatchSize,
				Concurrency: cfg.EmbedConcurrency,
			})
			processor := jobs.NewEmbeddingWorker(tracker, runner, cfg.WorkerClaimLimit)
			worker = jobs.NewWorker(processor, cfg.WorkerPollInterval)
			go worker.Start(ctx)
			log.Println("embedding worker started")
		}
	} else {
		searchHandler = handlers.NewSearchHandler(&NoOpSearchService{})
		log.Println("OPENAI_API_KEY not set: search disabled, embedding jobs will stay pending")
	}

	routerCfg := server.RouterConfig{
		KnowledgeHandler: knowledgeHandler,
		JobHandler:       jobHandler,
		SearchHandler:    searchHandler,
		ContextHandler:   contextHandler,
		StatsHandler:     statsHandler,
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if worker != nil {
		worker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

type NoOpSearchService struct{}

func (s *NoOpSearchService) Search(ctx context.Context, input service.SearchInput) (*service.SearchOutput, error) {
	return nil, fmt.Errorf("search not configured: OPENAI_API_KEY required")
}
