// Package main implements the filings QA API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/catalog"
	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/corpus"
	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/domain"
	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/embed"
	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/index"
	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/qa"
	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/retrieval"
	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/semantic"
	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/synthesis"
	"github.com/sohailshk/SEC-Filings-QA-Agent/pkg/metrics"
	"github.com/sohailshk/SEC-Filings-QA-Agent/pkg/mid"
	"github.com/sohailshk/SEC-Filings-QA-Agent/pkg/ollama"
	"github.com/sohailshk/SEC-Filings-QA-Agent/pkg/resilience"
)

// Config holds all environment-based configuration. Neo4j, Qdrant, and NATS
// are optional; leaving their URLs empty runs the server local-only.
type Config struct {
	Port          string
	OllamaURL     string
	EmbedModel    string
	EmbedDim      int
	GenerateModel string
	Neo4jURL      string
	Neo4jUser     string
	Neo4jPass     string
	QdrantURL     string
	Collection    string
	NATSURL       string
	IndexPath     string
	ChunkSize     int
	ChunkOverlap  int
	CORSOrigin    string
}

func loadConfig() Config {
	return Config{
		Port:          envOr("PORT", "8080"),
		OllamaURL:     envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel:    envOr("EMBED_MODEL", "nomic-embed-text"),
		EmbedDim:      envInt("EMBED_DIM", 768),
		GenerateModel: envOr("GENERATE_MODEL", "llama3.1"),
		Neo4jURL:      os.Getenv("NEO4J_URL"),
		Neo4jUser:     envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:     envOr("NEO4J_PASS", "password"),
		QdrantURL:     os.Getenv("QDRANT_URL"),
		Collection:    envOr("QDRANT_COLLECTION", "filings"),
		NATSURL:       os.Getenv("NATS_URL"),
		IndexPath:     envOr("INDEX_PATH", "data/filings.idx"),
		ChunkSize:     envInt("CHUNK_SIZE", 1000),
		ChunkOverlap:  envInt("CHUNK_OVERLAP", 200),
		CORSOrigin:    envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Model backends (Ollama) ---
	var embedder embed.Embedder = ollama.NewEmbedClient(cfg.OllamaURL, cfg.EmbedModel, cfg.EmbedDim, 10)
	embedder = embed.NewCache(embedder, embed.DefaultCacheSize)
	generator := ollama.NewGenerateClient(cfg.OllamaURL, cfg.GenerateModel, 5)

	// --- Catalog (Neo4j, optional) ---
	var filingCatalog *catalog.Store
	if cfg.Neo4jURL != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
		if err != nil {
			return fmt.Errorf("neo4j driver: %w", err)
		}
		defer driver.Close(ctx)
		filingCatalog = catalog.New(driver)
	} else {
		logger.Warn("NEO4J_URL not set, running without catalog (no dedup)")
	}

	// --- Remote vector mirror (Qdrant, optional) ---
	var vectors *semantic.VectorStore
	if cfg.QdrantURL != "" {
		vs, err := semantic.New(cfg.QdrantURL, cfg.Collection)
		if err != nil {
			return fmt.Errorf("qdrant connect: %w", err)
		}
		defer vs.Close()
		if err := vs.EnsureCollection(ctx, cfg.EmbedDim, index.MetricSquaredL2); err != nil {
			logger.Warn("qdrant collection setup failed, continuing without mirror", "err", err)
		} else {
			vectors = vs
		}
	}

	// --- Corpus manager ---
	manager, err := corpus.New(corpus.Deps{
		Embedder: embedder,
		Catalog:  filingCatalog,
		Vectors:  vectors,
		Logger:   logger,
	}, corpus.Options{
		ChunkSize:          cfg.ChunkSize,
		ChunkOverlap:       cfg.ChunkOverlap,
		TolerateEmptyIndex: true,
	})
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.IndexPath); err == nil {
		if err := manager.LoadIndex(cfg.IndexPath); err != nil {
			return fmt.Errorf("load index: %w", err)
		}
	}

	// --- QA service ---
	retriever := retrieval.New(embedder, manager, retrieval.DefaultOptions, logger)
	breaker := resilience.NewBreaker(resilience.DefaultBreakerOpts)
	synthesizer := synthesis.New(generator, breaker, synthesis.DefaultOptions, logger)
	qaSvc := qa.New(retriever, synthesizer, logger)

	// --- NATS consumer (optional) ---
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
		sub, err := manager.StartConsumer(ctx, nc)
		if err != nil {
			return fmt.Errorf("nats subscribe: %w", err)
		}
		defer sub.Unsubscribe()
		logger.Info("ingestion consumer started", "subject", corpus.IngestSubject)
	}

	// --- HTTP server ---
	reg := metrics.New()
	srv := newServer(qaSvc, manager, reg, logger)

	handler := mid.Chain(srv.routes(),
		mid.Recover(logger),
		mid.RequestID(),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("filings-qa-api"),
	)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "index_vectors", manager.Size())
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		return err
	}

	if err := manager.SaveIndex(cfg.IndexPath); err != nil {
		logger.Error("index save failed", "path", cfg.IndexPath, "err", err)
		return err
	}
	logger.Info("index saved", "path", cfg.IndexPath, "vectors", manager.Size())
	return nil
}

// --- Server ---

type server struct {
	qa      *qa.Service
	corpus  *corpus.Manager
	metrics *metrics.Registry
	log     *slog.Logger

	askLatency *metrics.Histogram
	indexSize  *metrics.Gauge
}

func newServer(qaSvc *qa.Service, manager *corpus.Manager, reg *metrics.Registry, logger *slog.Logger) *server {
	s := &server{
		qa:         qaSvc,
		corpus:     manager,
		metrics:    reg,
		log:        logger,
		askLatency: reg.Histogram("ask_seconds", "Latency of answered questions.", nil),
		indexSize:  reg.Gauge("index_vectors", "Vectors in the active index."),
	}
	s.indexSize.Set(int64(manager.Size()))
	return s
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/ask", s.handleAsk)
	mux.Handle("POST /api/ingest", mid.MaxBody(32<<20)(http.HandlerFunc(s.handleIngest)))
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

func (s *server) count(name, status string) {
	s.metrics.Counter(metrics.WithLabels(name, "status", status), "Requests by status.").Inc()
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AskRequest is the JSON body for POST /api/ask.
type AskRequest struct {
	Question   string `json:"question"`
	Ticker     string `json:"ticker,omitempty"`
	FilingType string `json:"filing_type,omitempty"`
	DateFrom   string `json:"date_from,omitempty"`
	DateTo     string `json:"date_to,omitempty"`
	K          int    `json:"k,omitempty"`
}

// AskResponse is the JSON response for POST /api/ask.
type AskResponse struct {
	Answer     string       `json:"answer"`
	Sources    []SourceRef  `json:"sources"`
	Model      string       `json:"model"`
	Confidence float32      `json:"confidence"`
	ElapsedMS  int64        `json:"elapsed_ms"`
}

// SourceRef is one cited source in an answer.
type SourceRef struct {
	Reference  string  `json:"reference"`
	DocID      string  `json:"doc_id"`
	Section    string  `json:"section,omitempty"`
	Confidence float32 `json:"confidence"`
}

// PartialAskResponse is returned when retrieval succeeded but generation
// failed; the caller still gets the sources that were found.
type PartialAskResponse struct {
	Error   string      `json:"error"`
	Sources []SourceRef `json:"sources"`
}

func partialAskResponse(e *domain.SynthesisError) PartialAskResponse {
	resp := PartialAskResponse{Error: "search succeeded, synthesis failed"}
	for _, h := range e.Retrieved.Hits {
		resp.Sources = append(resp.Sources, SourceRef{
			Reference:  h.SourceRef(),
			DocID:      h.Chunk.DocID,
			Section:    h.Chunk.Meta.Section,
			Confidence: h.Confidence,
		})
	}
	return resp
}

func (s *server) handleAsk(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.count("ask_total", "400")
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	query := domain.Query{
		Text:       req.Question,
		Ticker:     req.Ticker,
		FilingType: req.FilingType,
		K:          req.K,
	}
	var err error
	if query.Dates, err = parseDateRange(req.DateFrom, req.DateTo); err != nil {
		s.count("ask_total", "400")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	answer, err := s.qa.AnswerQuestion(r.Context(), callerKey(r), query)
	if err != nil {
		status := statusFor(err)
		s.count("ask_total", strconv.Itoa(status))
		var synErr *domain.SynthesisError
		switch {
		case errors.Is(err, domain.ErrEmptyIndex):
			writeError(w, status, "no data available: no filings have been ingested yet")
		case errors.As(err, &synErr):
			// Retrieval succeeded; return the sources so the caller is not
			// left empty-handed when only generation failed.
			s.log.Error("synthesis failed", "retrieved", len(synErr.Retrieved.Hits), "err", err)
			writeJSON(w, status, partialAskResponse(synErr))
		case status == http.StatusInternalServerError:
			s.log.Error("answer failed", "err", err)
			writeError(w, status, "internal server error")
		default:
			writeError(w, status, err.Error())
		}
		return
	}

	s.count("ask_total", "200")
	s.askLatency.Since(started)

	resp := AskResponse{
		Answer:    answer.Text,
		Sources:   make([]SourceRef, len(answer.Sources)),
		Model:     answer.Model,
		ElapsedMS: answer.Elapsed.Milliseconds(),
	}
	for i, src := range answer.Sources {
		resp.Sources[i] = SourceRef{
			Reference:  src.SourceRef(),
			DocID:      src.Chunk.DocID,
			Section:    src.Chunk.Meta.Section,
			Confidence: src.Confidence,
		}
		if src.Confidence > resp.Confidence {
			resp.Confidence = src.Confidence
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var doc domain.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		s.count("ingest_total", "400")
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	report, err := s.corpus.Ingest(r.Context(), doc)
	if err != nil {
		status := statusFor(err)
		s.count("ingest_total", strconv.Itoa(status))
		if status == http.StatusInternalServerError {
			s.log.Error("ingest failed", "doc_id", doc.ID(), "err", err)
			writeError(w, status, "internal server error")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	s.count("ingest_total", "200")
	s.indexSize.Set(int64(s.corpus.Size()))
	writeJSON(w, http.StatusOK, report)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.corpus.Stats(r.Context()))
}

// --- Helpers ---

// callerKey identifies the client for supersession: an explicit client ID
// header when present, the remote address otherwise.
func callerKey(r *http.Request) string {
	if id := r.Header.Get("X-Client-ID"); id != "" {
		return id
	}
	return r.RemoteAddr
}

func parseDateRange(from, to string) (domain.DateRange, error) {
	const layout = "2006-01-02"
	var dr domain.DateRange
	var err error
	if from != "" {
		if dr.From, err = time.Parse(layout, from); err != nil {
			return dr, fmt.Errorf("invalid date_from %q", from)
		}
	}
	if to != "" {
		if dr.To, err = time.Parse(layout, to); err != nil {
			return dr, fmt.Errorf("invalid date_to %q", to)
		}
	}
	return dr, nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidQuery), errors.Is(err, domain.ErrInvalidFiling):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEmptyIndex):
		return http.StatusServiceUnavailable
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, domain.ErrTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrSynthesis):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
