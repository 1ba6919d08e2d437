package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/notebook-backend/internal/data/repos"
	httpx "github.com/yungbote/notebook-backend/internal/http"
	httpH "github.com/yungbote/notebook-backend/internal/http/handlers"
	"github.com/yungbote/notebook-backend/internal/ingest"
	"github.com/yungbote/notebook-backend/internal/jobs/worker"
	"github.com/yungbote/notebook-backend/internal/modules/chat/steps"
	"github.com/yungbote/notebook-backend/internal/observability"
	"github.com/yungbote/notebook-backend/internal/platform/breaker"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
	"github.com/yungbote/notebook-backend/internal/realtime"
	"github.com/yungbote/notebook-backend/internal/search"
	"github.com/yungbote/notebook-backend/internal/services"
)

// App owns every long-lived component and their startup/shutdown order.
type App struct {
	Log    *logger.Logger
	Cfg    Config
	Router *gin.Engine

	clients  Clients
	hub      *realtime.SSEHub
	pool     *worker.Pool
	executor *ingest.Executor
	indices  []interface {
		Init(ctx context.Context) error
	}

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	cfg := LoadConfig()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	clients, err := wireClients(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	indexBreaker := breaker.New("elasticsearch", 30*time.Second)
	llmBreaker := breaker.New("openai", 60*time.Second)

	backend := newGuardedBackend(clients.Elastic, indexBreaker)
	model := newGuardedModel(clients.OpenAI, llmBreaker)
	encoder := newGuardedEncoder(clients.Elastic, indexBreaker)

	searchCfg := search.Config{
		Prefix:         cfg.SearchPrefix,
		Dims:           clients.OpenAI.Dims(),
		Analyzer:       cfg.SearchAnalyzer,
		SearchAnalyzer: cfg.SearchSearchAnalyzer,
	}
	chunkIndex := search.NewChunkIndex(log, backend, searchCfg)
	messageIndex := search.NewMessageIndex(log, backend, searchCfg)
	memoryIndex := search.NewMemoryIndex(log, backend, searchCfg)

	reposet := repos.New(clients.DB, log)
	hub := realtime.NewSSEHub(log)

	rerank := steps.NewRerankStack(log, encoder, cfg.Rerank)
	retriever := steps.NewRetriever(log, model, chunkIndex, rerank, cfg.Retrieval)
	reformulator := steps.NewReformulator(log, model, reposet.Messages, messageIndex, cfg.Reformulation)
	memories := steps.NewMemories(log, model, reposet.Memories, memoryIndex, cfg.Memory)
	compactor := steps.NewCompactor(log, clients.DB, model, reposet.Messages, reposet.Summaries, cfg.Compaction)
	verifier := steps.NewVerifier(log, model, cfg.Verification)

	router := ingest.NewRouter(cfg.Chunk)
	pipeline := ingest.NewPipeline(log, reposet.Documents,
		&ingestEmbedder{model: model, dims: clients.OpenAI.Dims()},
		chunkIndex, router, documentNotifier(log, clients.SSEBus))
	executor := ingest.NewExecutor(log, pipeline, cfg.IngestWorkers, cfg.IngestQueueSize, cfg.IngestTimeout)

	pool := worker.NewPool(log, "chat-maintenance", worker.DefaultWorkers(), 128)

	chatSvc := services.NewChatService(log,
		reposet.Sessions, reposet.Messages, reposet.Summaries,
		model, reformulator, retriever, memories, compactor, verifier,
		messageIndex, pool, cfg.Chat, cfg.Verification)
	sessionSvc := services.NewSessionService(log, clients.DB, &reposet,
		chunkIndex, messageIndex, memoryIndex)
	documentSvc := services.NewDocumentService(log,
		reposet.Sessions, reposet.Documents, executor, cfg.MaxUploadBytes)

	engine := httpx.NewRouter(httpx.RouterConfig{
		Log:             log,
		CORSOrigins:     cfg.CORSOrigins,
		SessionHandler:  httpH.NewSessionHandler(sessionSvc),
		DocumentHandler: httpH.NewDocumentHandler(documentSvc),
		ChatHandler:     httpH.NewChatHandler(chatSvc),
		RealtimeHandler: httpH.NewRealtimeHandler(hub),
		HealthHandler:   httpH.NewHealthHandler(),
	})

	return &App{
		Log:      log,
		Cfg:      cfg,
		Router:   engine,
		clients:  clients,
		hub:      hub,
		pool:     pool,
		executor: executor,
		indices: []interface {
			Init(ctx context.Context) error
		}{chunkIndex, messageIndex, memoryIndex},
	}, nil
}

// Start brings up background machinery: search indices, the SSE
// forwarder, the maintenance pool and the ingestion executor.
func (a *App) Start() error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	defer initCancel()
	for _, ix := range a.indices {
		if err := ix.Init(initCtx); err != nil {
			return fmt.Errorf("init search index: %w", err)
		}
	}

	if a.Cfg.OTelEnabled {
		shutdown, err := observability.InitOTel(ctx, a.Log, a.Cfg.OTelServiceName)
		if err != nil {
			a.Log.Warn("otel init failed, tracing disabled", "error", err)
		} else {
			a.otelShutdown = shutdown
		}
	}

	if err := a.clients.SSEBus.StartForwarder(ctx, a.hub.Broadcast); err != nil {
		return fmt.Errorf("start SSE forwarder: %w", err)
	}
	a.pool.Start(ctx)
	a.executor.Start(ctx)
	return nil
}

func (a *App) Run() error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("listening", "addr", a.Cfg.HTTPAddr)
	return a.Router.Run(a.Cfg.HTTPAddr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.executor != nil {
		a.executor.Stop()
	}
	if a.pool != nil {
		a.pool.Stop()
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	a.clients.Close()
	if a.Log != nil {
		a.Log.Sync()
	}
}
