package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"askcorpus/internal/ai"
	"askcorpus/internal/app"
	"askcorpus/internal/cache"
	"askcorpus/internal/chunker"
	"askcorpus/internal/config"
	"askcorpus/internal/model"
	"askcorpus/internal/parser"
	mysqlClient "askcorpus/internal/platform/mysql"
	rabbitmqClient "askcorpus/internal/platform/rabbitmq"
	redisClient "askcorpus/internal/platform/redis"
	"askcorpus/internal/repository"
	"askcorpus/internal/vectorindex"
	"askcorpus/internal/worker"
)

type App struct {
	Config      *config.Config
	MySQL       *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	VectorIndex *vectorindex.Index

	AuthService   *app.AuthService
	Conversations *app.ConversationService
	Ingest        *app.IngestService
	Queries       *app.QueryService

	IngestWorker *worker.IngestWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(
		&model.User{},
		&model.Session{},
		&model.Turn{},
		&model.Document{},
		&model.Chunk{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	index, err := vectorindex.New(cfg.LLM.EmbeddingDimensions)
	if err != nil {
		return nil, fmt.Errorf("create vector index failed: %w", err)
	}

	tokenizer, err := chunker.NewTiktokenTokenizer()
	if err != nil {
		return nil, fmt.Errorf("load tokenizer failed: %w", err)
	}

	aiClient := ai.NewClient()
	embedder := app.NewAIEmbedder(aiClient, ai.EmbeddingConfig{
		BaseURL:    cfg.LLM.BaseURL,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.EmbeddingModel,
		Dimensions: cfg.LLM.EmbeddingDimensions,
	})
	generator := app.NewAIGenerator(aiClient, ai.GenerationConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	})

	userRepo := repository.NewUserRepository(mysqlDB)
	sessionRepo := repository.NewSessionRepository(mysqlDB)
	turnRepo := repository.NewTurnRepository(mysqlDB)
	documentRepo := repository.NewDocumentRepository(mysqlDB)
	chunkRepo := repository.NewChunkRepository(mysqlDB)

	historyCache := cache.NewHistoryCache(
		redisCli,
		time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)

	authService := app.NewAuthService(
		userRepo,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	conversations := app.NewConversationService(sessionRepo, turnRepo, historyCache)

	publisher := rabbitmqClient.NewIngestJobPublisher(mqConn, cfg.RabbitMQ.IngestQueue)
	ingest := app.NewIngestService(
		documentRepo,
		chunkRepo,
		parser.New(),
		chunker.New(tokenizer),
		embedder,
		index,
		publisher,
		app.IngestConfig{
			MaxChunkTokens: cfg.Chunking.MaxTokens,
			OverlapTokens:  cfg.Chunking.OverlapTokens,
			EmbeddingModel: cfg.LLM.EmbeddingModel,
		},
	)

	loaded, err := ingest.WarmLoad()
	if err != nil {
		return nil, fmt.Errorf("reload vector index failed: %w", err)
	}
	log.Printf("vector index loaded with %d chunks", loaded)

	retriever := app.NewRetriever(embedder, index, chunkRepo, cfg.LLM.TopK)
	assembler := app.NewContextAssembler(tokenizer)
	queries := app.NewQueryService(
		conversations,
		retriever,
		assembler,
		generator,
		app.NewTaskRegistry(),
		time.Duration(cfg.LLM.GenerationTimeoutS)*time.Second,
		cfg.LLM.MaxHistoryTurns,
		cfg.LLM.MaxContextTokens,
	)

	ingestWorker := worker.NewIngestWorker(mqConn, ingest, cfg.RabbitMQ.IngestQueue)
	if err := ingestWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start ingest worker failed: %w", err)
	}

	return &App{
		Config:        cfg,
		MySQL:         mysqlDB,
		Redis:         redisCli,
		MQConn:        mqConn,
		VectorIndex:   index,
		AuthService:   authService,
		Conversations: conversations,
		Ingest:        ingest,
		Queries:       queries,
		IngestWorker:  ingestWorker,
		StartedAt:     time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
