//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/ckr-digital/ridgeline/internal/api/handlers"
	"github.com/ckr-digital/ridgeline/internal/jobs"
	"github.com/ckr-digital/ridgeline/internal/repository"
	"github.com/ckr-digital/ridgeline/internal/server"
	"github.com/ckr-digital/ridgeline/internal/service"
	"github.com/ckr-digital/ridgeline/internal/storage"
	"github.com/ckr-digital/ridgeline/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	S3Client     *storage.S3Client
	Worker       *jobs.Worker
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment: containers, server, and a
// background embedding worker backed by a deterministic embedder.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)

	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "test-archive",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}

	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	serverURL, serverCloser, worker := startServer(t, pool, s3Client, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		S3Client:     s3Client,
		Worker:       worker,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.Worker != nil {
		e.Worker.Stop()
	}
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// WaitForJob polls until the job reaches a terminal status or the timeout
// elapses, and returns the final status.
func (e *E2ETestEnv) WaitForJob(jobID string, timeout time.Duration) string {
	deadline := time.Now().Add(timeout)
	var status string
	for time.Now().Before(deadline) {
		resp, err := e.Get("/jobs/" + jobID)
		if err != nil {
			e.T.Fatalf("failed to poll job %s: %v", jobID, err)
		}
		var job struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(resp.Data, &job); err != nil {
			e.T.Fatalf("failed to parse job response: %v", err)
		}
		status = job.Status
		if status == "completed" || status == "failed" {
			return status
		}
		time.Sleep(100 * time.Millisecond)
	}
	e.T.Fatalf("job %s did not finish within %v (last status %s)", jobID, timeout, status)
	return status
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}) (*APIResponse, error) {
	return e.doRequest("POST", path, body)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path string) (*APIResponse, error) {
	return e.doRequest("DELETE", path, nil)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}) (*APIResponse, error) {
	url := e.ServerURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}

// startServer wires the full stack against the test containers and starts
// the HTTP server plus the embedding worker.
func startServer(t *testing.T, pool *pgxpool.Pool, s3Client *storage.S3Client, port int) (string, func(), *jobs.Worker) {
	fileRepo := repository.NewKnowledgeFileRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	jobRepo := repository.NewEmbeddingJobRepository(pool)
	assignmentRepo := repository.NewAssignmentRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	embedder := testutil.NewFakeEmbedder(1536)

	tracker := service.NewJobTracker(jobRepo)
	chunker := service.NewChunker(service.DefaultChunkConfig())
	ingestSvc := service.NewIngestServiceWithArchive(txRunner, fileRepo, chunker, tracker, s3Client)
	searchSvc := service.NewSearchService(chunkRepo, embedder)
	contextSvc := service.NewContextService(assignmentRepo, fileRepo)
	statsSvc := service.NewStatsService(chunkRepo, fileRepo)

	runner := service.NewEmbedRunner(chunkRepo, tracker, embedder, service.DefaultEmbedRunnerConfig())
	processor := jobs.NewEmbeddingWorker(tracker, runner, 5)
	worker := jobs.NewWorker(processor, 200*time.Millisecond)
	go worker.Start(context.Background())

	cfg := server.RouterConfig{
		KnowledgeHandler: handlers.NewKnowledgeHandler(ingestSvc),
		JobHandler:       handlers.NewJobHandler(tracker),
		SearchHandler:    handlers.NewSearchHandler(searchSvc),
		ContextHandler:   handlers.NewContextHandler(contextSvc),
		StatsHandler:     handlers.NewStatsHandler(statsSvc),
	}

	router := server.NewRouter(cfg)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, worker
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
