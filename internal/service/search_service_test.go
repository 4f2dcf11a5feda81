package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angple/kb-engine/internal/domain"
	"github.com/angple/kb-engine/internal/search"
)

func TestPublicSearch_HardFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acme := env.newTenant(t, "acme", "", 1)
	other := env.newTenant(t, "other", "", 1)

	public := env.createArticle(t, acme, approver, "Billing guide", published)
	env.createArticle(t, acme, approver, "Billing internal notes", published, func(r *domain.CreateArticleRequest) {
		r.Internal = true
	})
	env.createArticle(t, acme, approver, "Billing hidden", published, func(r *domain.CreateArticleRequest) {
		r.ExcludeFromSearch = true
	})
	env.createArticle(t, acme, approver, "Billing draft")
	env.createArticle(t, other, approver, "Billing elsewhere", published)

	res, err := env.search.PublicSearch(ctx, acme.ID, "billing", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{public.ID}, res.IDs())

	res, err = env.search.InternalSearch(ctx, acme.ID, "billing", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Total)
}

func TestPublicSearch_UnpublishedAfterArchive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acme := env.newTenant(t, "acme", "", 1)
	article := env.createArticle(t, acme, approver, "Shipping times", published)

	res, err := env.search.PublicSearch(ctx, acme.ID, "shipping", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)

	_, err = env.articles.Update(ctx, acme.ID, article.ID, approver, domain.ArticlePatch{
		State:          statePtr(domain.StateArchive),
		ClearPublished: true,
	})
	require.NoError(t, err)
	env.await(t, article.ID)

	res, err = env.search.PublicSearch(ctx, acme.ID, "shipping", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
}

func TestSearch_TagFilterAndFacets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acme := env.newTenant(t, "acme", "", 1)

	tagged := env.createArticle(t, acme, approver, "Account setup", published, func(r *domain.CreateArticleRequest) {
		r.Tags = []string{"onboarding", "account"}
	})
	env.createArticle(t, acme, approver, "Account deletion", published, func(r *domain.CreateArticleRequest) {
		r.Tags = []string{"account"}
	})

	res, err := env.search.PublicSearch(ctx, acme.ID, "account", SearchOptions{Tag: "onboarding"})
	require.NoError(t, err)
	assert.Equal(t, []uint64{tagged.ID}, res.IDs())

	res, err = env.search.PublicSearch(ctx, acme.ID, "", SearchOptions{})
	require.NoError(t, err)
	assert.Contains(t, res.Facets[search.FieldTags], search.FacetCount{Value: "account", Count: 2})
}

func TestInternalSearch_DraftsAndDeleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acme := env.newTenant(t, "acme", "", 1)

	draft := env.createArticle(t, acme, contributor, "Printer troubleshooting")
	removed := env.createArticle(t, acme, contributor, "Printer drivers")
	_, err := env.articles.SoftDelete(ctx, acme.ID, removed.ID)
	require.NoError(t, err)
	env.await(t, removed.ID)

	res, err := env.search.InternalSearch(ctx, acme.ID, "printer", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{draft.ID}, res.IDs())

	doc, ok := env.index.Get(draft.ID)
	require.True(t, ok)
	assert.Equal(t, "Body of Printer troubleshooting", doc.RawContent)
	assert.Empty(t, doc.Content)
	assert.Equal(t, UnassignedApprover, doc.Approver)
}

func TestValidateTitle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acme := env.newTenant(t, "acme", "", 1)
	existing := env.createArticle(t, acme, approver, "Reset your password")

	check, err := env.articles.ValidateTitle(ctx, acme.ID, "reset YOUR password", 0)
	require.NoError(t, err)
	assert.True(t, check.Duplicate)
	assert.Equal(t, "reset-your-password", check.Permalink)

	check, err = env.articles.ValidateTitle(ctx, acme.ID, "Reset your password", existing.ID)
	require.NoError(t, err)
	assert.False(t, check.Duplicate)

	check, err = env.articles.ValidateTitle(ctx, acme.ID, "Café crème", 0)
	require.NoError(t, err)
	assert.False(t, check.Duplicate)
	assert.Equal(t, "cafe-creme", check.Permalink)
}

func TestSearch_DraftTitleAfterPublishedEdit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acme := env.newTenant(t, "acme", "", 1)
	article := env.createArticle(t, acme, approver, "Printer setup", published)

	_, err := env.articles.Update(ctx, acme.ID, article.ID, contributor, domain.ArticlePatch{
		Translations: []domain.TranslationInput{{LocaleID: *acme.DefaultLocaleID, Title: "Scanner calibration", Content: "Calibrate the scanner"}},
	})
	require.NoError(t, err)
	env.await(t, article.ID)

	res, err := env.search.InternalSearch(ctx, acme.ID, "scanner", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{article.ID}, res.IDs())

	res, err = env.search.InternalSearch(ctx, acme.ID, "printer", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.IDs())

	check, err := env.articles.ValidateTitle(ctx, acme.ID, "Scanner calibration", 0)
	require.NoError(t, err)
	assert.True(t, check.Duplicate)

	check, err = env.articles.ValidateTitle(ctx, acme.ID, "Printer setup", 0)
	require.NoError(t, err)
	assert.False(t, check.Duplicate)
}

func TestRelatedArticles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acme := env.newTenant(t, "acme", "", 1)
	withTags := func(tags ...string) func(*domain.CreateArticleRequest) {
		return func(r *domain.CreateArticleRequest) { r.Tags = tags }
	}

	subject := env.createArticle(t, acme, approver, "Configure email forwarding", published, withTags("email"))
	sibling := env.createArticle(t, acme, approver, "Email forwarding limits", published, withTags("email"))
	env.createArticle(t, acme, approver, "Email forwarding internals", published, withTags("email"), func(r *domain.CreateArticleRequest) {
		r.Internal = true
	})
	env.createArticle(t, acme, approver, "Email forwarding draft", withTags("email"))

	res, err := env.articles.RelatedArticles(ctx, acme.ID, subject.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{sibling.ID}, res.IDs())
	assert.LessOrEqual(t, len(res.Hits), RelatedLimit)
}

func TestReindexTenant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acme := env.newTenant(t, "acme", "", 1)
	for _, title := range []string{"One", "Two", "Three"} {
		env.createArticle(t, acme, approver, title, published)
	}

	require.NoError(t, env.index.DeleteTenant(ctx, acme.ID))
	assert.Zero(t, env.index.Len())

	n, err := env.search.ReindexTenant(ctx, acme.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, env.index.Len())
}

func TestReindex_MissingArticleRemovesDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acme := env.newTenant(t, "acme", "", 1)
	article := env.createArticle(t, acme, approver, "Ephemeral")

	_, ok := env.index.Get(article.ID)
	require.True(t, ok)

	require.NoError(t, env.db.Delete(&domain.Article{}, article.ID).Error)
	require.NoError(t, env.search.Reindex(ctx, acme.ID, article.ID))
	_, ok = env.index.Get(article.ID)
	assert.False(t, ok)
}
