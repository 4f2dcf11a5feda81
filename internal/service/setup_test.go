package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/angple/kb-engine/internal/domain"
	"github.com/angple/kb-engine/internal/migration"
	"github.com/angple/kb-engine/internal/repository"
	"github.com/angple/kb-engine/internal/search"
	"github.com/angple/kb-engine/pkg/cache"
)

// recordingNotifier collects notices synchronously
type recordingNotifier struct {
	mu      sync.Mutex
	notices []AssignmentNotice
}

func (r *recordingNotifier) Notify(n AssignmentNotice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) all() []AssignmentNotice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AssignmentNotice(nil), r.notices...)
}

type testEnv struct {
	db         *gorm.DB
	index      *search.MemoryIndex
	indexer    *Indexer
	notifier   *recordingNotifier
	tenants    *TenantService
	articles   *ArticleService
	categories *CategoryService
	search     *SearchService
	locales    repository.LocaleRepository
	versions   repository.VersionRepository
	nodes      repository.CategoryRepository
}

var (
	approver    = domain.Actor{UserID: 1, IsContributor: true, IsApprover: true}
	contributor = domain.Actor{UserID: 2, IsContributor: true}
	reader      = domain.Actor{UserID: 3}
)

var dbSeq int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:kb_test_%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the shared in-memory database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.Run(db))
	return db
}

// newMySQLTestDB connects to KB_TEST_MYSQL_DSN and skips the test when it is unset.
// Row locks (SELECT ... FOR UPDATE) are only enforced there; sqlite drops the clause.
func newMySQLTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("KB_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("KB_TEST_MYSQL_DSN not set")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(16)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.Run(db))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithDB(t, newTestDB(t))
}

func newTestEnvWithDB(t *testing.T, db *gorm.DB) *testEnv {
	t.Helper()

	tx := repository.NewTxManager(db)
	tenantRepo := repository.NewTenantRepository(db)
	localeRepo := repository.NewLocaleRepository(db)
	articleRepo := repository.NewArticleRepository(db)
	versionRepo := repository.NewVersionRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	tagRepo := repository.NewTagRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	userRepo := repository.NewUserRepository(db)

	index, err := search.NewMemoryIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	translations := NewTranslationService(versionRepo, cache.NewService(nil))
	searchSvc := NewSearchService(tenantRepo, articleRepo, tagRepo, userRepo, translations, index)
	indexer := NewIndexer(searchSvc, IndexerConfig{Workers: 2, QueueSize: 16, MaxRetries: 1, RetryBackoff: time.Millisecond})
	indexer.Start()
	t.Cleanup(indexer.Stop)

	notifier := &recordingNotifier{}
	categories := NewCategoryService(tx, categoryRepo)

	env := &testEnv{
		db:         db,
		index:      index,
		indexer:    indexer,
		notifier:   notifier,
		categories: categories,
		search:     searchSvc,
		locales:    localeRepo,
		versions:   versionRepo,
		nodes:      categoryRepo,
		tenants:    NewTenantService(tx, tenantRepo, localeRepo, categoryRepo, articleRepo, index, nil),
		articles: NewArticleService(
			tx, tenantRepo, articleRepo, versionRepo, localeRepo, tagRepo, feedbackRepo,
			categories, translations, searchSvc, indexer, notifier,
			ReferenceConfig{MaxRetries: 3, RetryBackoff: time.Millisecond},
		),
	}
	return env
}

// newTenant creates an active tenant with the given reference format
func (e *testEnv) newTenant(t *testing.T, subdomain, prefix string, size int) *domain.Tenant {
	t.Helper()
	tenant, err := e.tenants.CreateTenant(context.Background(), &domain.CreateTenantRequest{
		Subdomain:       subdomain,
		Company:         strings.ToUpper(subdomain),
		ReferencePrefix: prefix,
		ReferenceSize:   size,
	})
	require.NoError(t, err)
	return tenant
}

func (e *testEnv) createArticle(t *testing.T, tenant *domain.Tenant, actor domain.Actor, title string, mutate ...func(*domain.CreateArticleRequest)) *domain.Article {
	t.Helper()
	req := &domain.CreateArticleRequest{
		Translations: []domain.TranslationInput{{LocaleID: *tenant.DefaultLocaleID, Title: title, Content: "Body of " + title}},
	}
	for _, m := range mutate {
		m(req)
	}
	article, err := e.articles.Create(context.Background(), tenant.ID, actor, req)
	require.NoError(t, err)
	e.await(t, article.ID)
	return article
}

func (e *testEnv) await(t *testing.T, articleID uint64) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.indexer.AwaitArticle(ctx, articleID))
}

func published(r *domain.CreateArticleRequest) { r.State = domain.StatePublished }

func statePtr(s domain.ArticleState) *domain.ArticleState { return &s }

func boolPtr(b bool) *bool { return &b }
