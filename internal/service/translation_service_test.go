package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angple/kb-engine/internal/domain"
	"github.com/angple/kb-engine/internal/repository"
	"github.com/angple/kb-engine/pkg/cache"
)

// countingVersions counts FindByID round trips
type countingVersions struct {
	repository.VersionRepository
	mu    sync.Mutex
	loads int
}

func (c *countingVersions) FindByID(ctx context.Context, id uint64) (*domain.ArticleVersion, error) {
	c.mu.Lock()
	c.loads++
	c.mu.Unlock()
	return c.VersionRepository.FindByID(ctx, id)
}

func TestTranslation_DraftAndPublishedAreSeparate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := env.newTenant(t, "acme", "KB-", 4)
	localeID := *tenant.DefaultLocaleID

	article := env.createArticle(t, tenant, approver, "Original", published)
	_, err := env.articles.Update(ctx, tenant.ID, article.ID, approver, domain.ArticlePatch{
		State:          statePtr(domain.StateUnapproved),
		Translations:   []domain.TranslationInput{{LocaleID: localeID, Title: "Rewritten", Content: "New body"}},
	})
	require.NoError(t, err)

	reloaded, err := env.articles.Get(ctx, tenant.ID, article.ID)
	require.NoError(t, err)

	counting := &countingVersions{VersionRepository: env.versions}
	svc := NewTranslationService(counting, cache.NewService(nil))
	scope := NewScope(0, localeID)

	draft, err := svc.Draft(ctx, scope, reloaded, 0)
	require.NoError(t, err)
	assert.Equal(t, "Rewritten", draft.Title)

	pub, err := svc.Published(ctx, scope, reloaded, 0)
	require.NoError(t, err)
	assert.Equal(t, "Original", pub.Title)
	assert.Equal(t, "Body of Original", pub.Content)

	for i := 0; i < 3; i++ {
		_, err = svc.Draft(ctx, scope, reloaded, localeID)
		require.NoError(t, err)
		_, err = svc.Published(ctx, scope, reloaded, localeID)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, counting.loads)

	// a fresh scope goes back to storage since the cache is disabled
	_, err = svc.Draft(ctx, NewScope(0, localeID), reloaded, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, counting.loads)
}

func TestTranslation_UnpublishedAndFallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := env.newTenant(t, "acme", "", 1)
	fr, err := env.tenants.AddLocale(ctx, tenant.ID, "fr")
	require.NoError(t, err)

	article := env.createArticle(t, tenant, contributor, "Draft only")
	svc := NewTranslationService(env.versions, cache.NewService(nil))
	scope := NewScope(fr.ID, *tenant.DefaultLocaleID)

	pub, err := svc.Published(ctx, scope, article, 0)
	require.NoError(t, err)
	assert.True(t, pub.IsBlank())
	assert.Equal(t, fr.ID, pub.LocaleID)

	// no French translation, falls back to the tenant default
	draft, err := svc.Draft(ctx, scope, article, 0)
	require.NoError(t, err)
	assert.Equal(t, "Draft only", draft.Title)
	assert.Equal(t, *tenant.DefaultLocaleID, draft.LocaleID)
}
