package app

import (
	"context"
	"fmt"
	"io"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/angple/kb-engine/internal/config"
	"github.com/angple/kb-engine/internal/repository"
	"github.com/angple/kb-engine/internal/search"
	"github.com/angple/kb-engine/internal/service"
	pkgcache "github.com/angple/kb-engine/pkg/cache"
	pkges "github.com/angple/kb-engine/pkg/elasticsearch"
	pkglogger "github.com/angple/kb-engine/pkg/logger"
	pkgredis "github.com/angple/kb-engine/pkg/redis"
	pkgstorage "github.com/angple/kb-engine/pkg/storage"
)

// App holds the wired engine. Call Start before serving writes and Close on shutdown.
type App struct {
	DB    *gorm.DB
	Redis *goredis.Client
	Cache pkgcache.Service
	Index search.Index

	Indexer    *service.Indexer
	Dispatcher *service.Dispatcher

	Tenants      *service.TenantService
	Articles     *service.ArticleService
	Categories   *service.CategoryService
	Search       *service.SearchService
	Translations *service.TranslationService

	tenantRepo repository.TenantRepository
}

// Build connects the optional backends and wires repositories and services.
// Redis and storage degrade to no-op when unreachable; Elasticsearch does not.
func Build(ctx context.Context, cfg *config.Config, db *gorm.DB) (*App, error) {
	log := pkglogger.GetLogger()
	a := &App{DB: db}

	// Redis 연결
	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(ctx, pkgredis.Options{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			log.Warn().Err(err).Msg("continuing without Redis")
		} else {
			a.Redis = client
			log.Info().Msg("connected to Redis")
		}
	}
	a.Cache = pkgcache.NewService(a.Redis)

	// 검색 인덱스
	if cfg.Elasticsearch.Enabled {
		client, err := pkges.NewClient(cfg.Elasticsearch.Addresses, cfg.Elasticsearch.Username, cfg.Elasticsearch.Password)
		if err != nil {
			return nil, err
		}
		index, err := search.NewESIndex(ctx, client, cfg.Elasticsearch.Index)
		if err != nil {
			return nil, err
		}
		a.Index = index
	} else {
		log.Warn().Msg("elasticsearch disabled, using in-memory bleve index")
		index, err := search.NewMemoryIndex()
		if err != nil {
			return nil, err
		}
		a.Index = index
	}

	var attachments service.AttachmentStore
	if cfg.Storage.Enabled {
		s3Client, err := pkgstorage.NewS3Client(pkgstorage.S3Config{
			Endpoint:        cfg.Storage.Endpoint,
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Bucket:          cfg.Storage.Bucket,
			BasePath:        cfg.Storage.BasePath,
			ForcePathStyle:  cfg.Storage.ForcePathStyle,
		})
		if err != nil {
			log.Warn().Err(err).Msg("continuing without attachment storage")
		} else {
			attachments = s3Client
		}
	}

	tx := repository.NewTxManager(db)
	tenantRepo := repository.NewTenantRepository(db)
	localeRepo := repository.NewLocaleRepository(db)
	articleRepo := repository.NewArticleRepository(db)
	versionRepo := repository.NewVersionRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	tagRepo := repository.NewTagRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	userRepo := repository.NewUserRepository(db)

	a.Translations = service.NewTranslationService(versionRepo, a.Cache)
	a.Search = service.NewSearchService(tenantRepo, articleRepo, tagRepo, userRepo, a.Translations, a.Index)
	a.Indexer = service.NewIndexer(a.Search, service.IndexerConfig{
		Workers:      cfg.Indexer.Workers,
		QueueSize:    cfg.Indexer.QueueSize,
		MaxRetries:   cfg.Indexer.MaxRetries,
		RetryBackoff: cfg.Indexer.RetryBackoff,
	})

	var sender service.Sender = service.LogSender{}
	if cfg.Mail.Enabled {
		sender = service.NewMailSender(service.MailConfig{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		}, userRepo)
	}
	a.Dispatcher = service.NewDispatcher(sender, cfg.Mail.QueueSize)

	a.Categories = service.NewCategoryService(tx, categoryRepo)
	a.Tenants = service.NewTenantService(tx, tenantRepo, localeRepo, categoryRepo, articleRepo, a.Index, attachments)
	a.Articles = service.NewArticleService(
		tx, tenantRepo, articleRepo, versionRepo, localeRepo, tagRepo, feedbackRepo,
		a.Categories, a.Translations, a.Search, a.Indexer, a.Dispatcher,
		service.ReferenceConfig{MaxRetries: cfg.Reference.MaxRetries, RetryBackoff: cfg.Reference.RetryBackoff},
	)
	a.tenantRepo = tenantRepo
	return a, nil
}

// Start launches the background workers
func (a *App) Start() {
	a.Indexer.Start()
	a.Dispatcher.Start()
}

// ReindexAll rebuilds the index entries of every tenant
func (a *App) ReindexAll(ctx context.Context) (int, error) {
	ids, err := a.tenantRepo.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list tenants: %w", err)
	}
	total := 0
	for _, id := range ids {
		n, err := a.Search.ReindexTenant(ctx, id)
		if err != nil {
			return total, fmt.Errorf("reindex tenant %d: %w", id, err)
		}
		total += n
	}
	return total, nil
}

// Close drains the workers and releases connections
func (a *App) Close() {
	a.Indexer.Stop()
	a.Dispatcher.Stop()
	if closer, ok := a.Index.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			pkglogger.GetLogger().Warn().Err(err).Msg("search index close failed")
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			pkglogger.GetLogger().Warn().Err(err).Msg("redis close failed")
		}
	}
}
