package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"docqa-service/internal/ai"
	"docqa-service/internal/app"
	"docqa-service/internal/cache"
	"docqa-service/internal/config"
	"docqa-service/internal/converter"
	"docqa-service/internal/embedding"
	"docqa-service/internal/extract"
	"docqa-service/internal/fetch"
	"docqa-service/internal/model"
	"docqa-service/internal/pkg/pdfsplit"
	chromaClient "docqa-service/internal/platform/chroma"
	mysqlClient "docqa-service/internal/platform/mysql"
	rabbitmqClient "docqa-service/internal/platform/rabbitmq"
	redisClient "docqa-service/internal/platform/redis"
	"docqa-service/internal/repository"
	"docqa-service/internal/store"
	"docqa-service/internal/worker"
)

type Options struct {
	// StartWorkers starts the purge consumer. The CLI leaves it off.
	StartWorkers bool
}

type App struct {
	Config *config.Config
	QA     *app.QAService

	Cache  cache.TextCache
	Store  store.Store
	MySQL  *gorm.DB
	Redis  *redis.Client
	Chroma chromago.Client
	MQConn *amqp.Connection

	PurgeWorker *worker.PurgeWorker

	StartedAt time.Time

	stopWatch context.CancelFunc
}

func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(ctx, cfg, opts)
}

func NewWithConfig(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{Config: cfg, StartedAt: time.Now()}
	if err := a.init(ctx, opts); err != nil {
		if closeErr := a.Close(); closeErr != nil {
			log.Printf("bootstrap: close after failed start: %v", closeErr)
		}
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, opts Options) error {
	cfg := a.Config

	textCache, err := a.newCache(ctx)
	if err != nil {
		return err
	}
	a.Cache = textCache
	a.Store = a.newStore(ctx)

	answerer, err := newAnswerer(ctx, cfg)
	if err != nil {
		return err
	}

	var publisher app.PurgePublisher
	if cfg.RabbitMQ.Enabled {
		conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.PurgeQueue)
		if err != nil {
			return err
		}
		a.MQConn = conn
		publisher = rabbitmqClient.NewPurgePublisher(conn, cfg.RabbitMQ.PurgeQueue)
	}

	client := ai.NewOpenAICompatibleClient()
	embedder := embedding.New(
		ai.NewEmbedder(client, ai.EmbeddingConfig{
			BaseURL: cfg.Embedding.BaseURL,
			APIKey:  cfg.Embedding.APIKey,
			Model:   cfg.Embedding.Model,
		}),
		cfg.Embedding.BatchSize,
		cfg.EmbeddingBatchDelay(),
	)

	a.QA = app.NewQAService(
		fetch.New(cfg.FetchTimeout(), cfg.Fetch.MaxBytes),
		a.newExtractor(ctx),
		a.Cache,
		embedder,
		a.Store,
		answerer,
		publisher,
		app.QAOptions{
			TopK:              cfg.Retrieval.TopK,
			ContextCharBudget: cfg.Retrieval.ContextCharBudget,
			MaxChunks:         cfg.Retrieval.MaxChunks,
		},
	)

	if opts.StartWorkers && a.MQConn != nil {
		a.PurgeWorker = worker.NewPurgeWorker(a.MQConn, a.QA, cfg.RabbitMQ.PurgeQueue)
		if err := a.PurgeWorker.Start(ctx); err != nil {
			return fmt.Errorf("start purge worker failed: %w", err)
		}
	}
	return nil
}

func (a *App) newCache(ctx context.Context) (cache.TextCache, error) {
	cfg := a.Config
	if cfg.Cache.Backend != "redis" {
		return cache.NewMemoryCache(time.Now), nil
	}
	client, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	a.Redis = client
	return cache.NewRedisCache(client, cfg.Cache.KeyPrefix), nil
}

// newStore connects the configured index. A store that cannot be reached is
// disabled rather than failing startup; requests then use in-memory retrieval.
func (a *App) newStore(ctx context.Context) store.Store {
	cfg := a.Config
	switch cfg.Store.Backend {
	case "chroma":
		client, collection, err := chromaClient.New(ctx, cfg.Chroma.URL, cfg.Chroma.Collection)
		if err != nil {
			log.Printf("bootstrap: chroma unavailable, persisted index disabled: %v", err)
			return nil
		}
		a.Chroma = client
		return store.NewChromaStore(collection, cfg.Store.BatchSize)
	case "mysql":
		db, err := mysqlClient.New(ctx, cfg.MySQLDSN(), &model.StoredDocument{}, &model.StoredChunk{})
		if err != nil {
			log.Printf("bootstrap: mysql unavailable, persisted index disabled: %v", err)
			return nil
		}
		a.MySQL = db
		return store.NewSQLStore(
			repository.NewDocumentRepository(db),
			repository.NewChunkRepository(db),
			cfg.Store.BatchSize,
		)
	case "memory":
		return store.NewMemoryStore()
	default:
		log.Printf("bootstrap: persisted index disabled")
		return nil
	}
}

func (a *App) newExtractor(ctx context.Context) *extract.Extractor {
	cfg := a.Config
	ex := cfg.Extraction
	seconds := func(n int) time.Duration { return time.Duration(n) * time.Second }

	var conv extract.Converter
	if cfg.Converter.Enabled {
		creds := converter.NewCredentialSource(cfg.Converter.ClientID, cfg.Converter.ClientSecret, cfg.Converter.CredentialsFile)
		client := converter.NewClient(cfg.Converter.BaseURL, creds, cfg.ConverterPollInterval())
		if !client.Available() {
			log.Printf("bootstrap: converter credentials missing, conversion and ocr tiers skipped until they appear")
		}
		if cfg.Converter.CredentialsFile != "" {
			watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			a.stopWatch = cancel
			if err := creds.Watch(watchCtx); err != nil {
				log.Printf("bootstrap: credentials file changes will not be picked up: %v", err)
			}
		}
		conv = client
	}

	return extract.New(extract.Options{
		StructuralTimeout:  seconds(ex.StructuralTimeoutSec),
		ConversionTimeout:  seconds(ex.ConversionTimeoutSec),
		OCRTimeout:         seconds(ex.OCRTimeoutSec),
		MinTextChars:       ex.MinTextChars,
		HeuristicScanBytes: ex.HeuristicScanBytes,
		Split: extract.SplitOptions{
			ThresholdBytes:       ex.SplitThresholdBytes,
			PageCountTimeout:     seconds(ex.PageCountTimeoutSec),
			TextPagesPerPart:     ex.TextPagesPerPart,
			ScannedPagesPerPart:  ex.ScannedPagesPerPart,
			ScannedPageCeiling:   ex.ScannedPageCeiling,
			MaxPartsFirstPass:    ex.MaxPartsFirstPass,
			MaxPartsRetryPass:    ex.MaxPartsRetryPass,
			PartConcurrency:      ex.PartConcurrency,
			RetryPartConcurrency: ex.RetryPartConcurrency,
			PartCreateTimeout:    seconds(ex.PartCreateTimeoutSec),
			PartTimeout:          seconds(ex.PartTimeoutSec),
		},
	}, conv, newSplitter(ex.UnidocLicenseKey))
}

// newSplitter returns nil when no splitter can be built, so large documents
// go straight to whole-document extraction.
func newSplitter(licenseKey string) extract.PageSplitter {
	splitter, err := pdfsplit.New(licenseKey)
	if err != nil {
		log.Printf("bootstrap: large-document splitting disabled: %v", err)
		return nil
	}
	return splitter
}

func newAnswerer(ctx context.Context, cfg *config.Config) (ai.Answerer, error) {
	if cfg.LLM.Provider == "gemini" {
		answerer, err := ai.NewGeminiAnswerer(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.LLM.Temperature)
		if err != nil {
			return nil, err
		}
		return answerer, nil
	}
	return ai.NewChatAnswerer(ai.NewOpenAICompatibleClient(), ai.ChatConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
	}), nil
}

func (a *App) Close() error {
	var closeErr error
	if a.stopWatch != nil {
		a.stopWatch()
	}
	if a.PurgeWorker != nil {
		a.PurgeWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Chroma != nil {
		if err := a.Chroma.Close(); err != nil {
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
