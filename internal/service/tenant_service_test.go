package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/angple/kb-engine/internal/common"
	"github.com/angple/kb-engine/internal/domain"
	"github.com/angple/kb-engine/internal/repository"
)

type mockAttachmentStore struct {
	mock.Mock
}

func (m *mockAttachmentStore) DeleteArticleFiles(ctx context.Context, articleUUID string) error {
	args := m.Called(ctx, articleUUID)
	return args.Error(0)
}

func TestCreateTenant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant := env.newTenant(t, "Acme", "KB-", 4)
	assert.Equal(t, "acme", tenant.Subdomain)
	assert.Equal(t, domain.TenantActive, tenant.State)
	assert.Equal(t, 1, tenant.NextReferenceID)
	assert.Equal(t, "KB-0001", tenant.NextArticleReference())
	require.NotNil(t, tenant.DefaultLocaleID)

	locales, err := env.tenants.ListLocales(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, locales, 1)
	assert.Equal(t, domain.DefaultLocaleCode, locales[0].Code)
	assert.Equal(t, "English", locales[0].Language)

	root, err := env.tenants.Root(ctx, tenant.ID)
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.Equal(t, RootSubjectName, root.Name)
	assert.Nil(t, root.ParentID)
}

func TestCreateTenant_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newTenant(t, "acme", "", 1)

	tests := []struct {
		name      string
		subdomain string
	}{
		{"reserved", "support"},
		{"reserved mixed case", "WWW"},
		{"taken case-insensitive", "ACME"},
		{"bad charset", "acme_corp"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.tenants.CreateTenant(ctx, &domain.CreateTenantRequest{Subdomain: tt.subdomain, Company: "X"})
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrValidation)
			var verr *common.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, "subdomain")
		})
	}
}

func TestEnsureDefaults_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := env.newTenant(t, "acme", "", 1)
	root, err := env.tenants.Root(ctx, tenant.ID)
	require.NoError(t, err)

	require.NoError(t, env.tenants.EnsureDefaults(ctx, tenant.ID))
	require.NoError(t, env.tenants.EnsureDefaults(ctx, tenant.ID))

	locales, err := env.tenants.ListLocales(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Len(t, locales, 1)

	subjects, err := env.categories.Subjects(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, root.ID, subjects[0].ID)

	reloaded, err := env.tenants.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, *tenant.DefaultLocaleID, *reloaded.DefaultLocaleID)
}

func TestEnsureDefaults_RepairsMissingRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := env.newTenant(t, "acme", "", 1)

	require.NoError(t, env.db.Where("tenant_id = ?", tenant.ID).Delete(&domain.CategoryNode{}).Error)
	require.NoError(t, env.db.Where("tenant_id = ?", tenant.ID).Delete(&domain.Locale{}).Error)

	root, err := env.tenants.Root(ctx, tenant.ID)
	require.NoError(t, err)
	require.NotNil(t, root)

	reloaded, err := env.tenants.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.DefaultLocaleID)
	locale, err := env.locales.FindByID(ctx, tenant.ID, *reloaded.DefaultLocaleID)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultLocaleCode, locale.Code)
}

func TestLocales(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := env.newTenant(t, "acme", "", 1)

	fr, err := env.tenants.AddLocale(ctx, tenant.ID, "fr-CA")
	require.NoError(t, err)
	assert.Equal(t, "French", fr.Language)
	assert.Equal(t, "Canada", fr.Territory)

	again, err := env.tenants.AddLocale(ctx, tenant.ID, "fr-CA")
	require.NoError(t, err)
	assert.Equal(t, fr.ID, again.ID)

	_, err = env.tenants.AddLocale(ctx, tenant.ID, "!!")
	assert.ErrorIs(t, err, common.ErrValidation)

	require.NoError(t, env.tenants.SetDefaultLocale(ctx, tenant.ID, fr.ID))
	reloaded, err := env.tenants.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, fr.ID, *reloaded.DefaultLocaleID)

	other := env.newTenant(t, "other", "", 1)
	err = env.tenants.SetDefaultLocale(ctx, other.ID, fr.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDestroyTenant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acme := env.newTenant(t, "acme", "", 1)
	keep := env.newTenant(t, "keep", "", 1)
	billing := env.subject(t, acme, "Billing", nil)

	doomed := env.createArticle(t, acme, approver, "Doomed", published, func(r *domain.CreateArticleRequest) {
		r.SubjectIDs = []uint64{billing.ID}
		r.Tags = []string{"gone"}
	})
	_, err := env.articles.AddFeedback(ctx, acme.ID, doomed.ID, &domain.FeedbackRequest{Rating: 3})
	require.NoError(t, err)
	env.await(t, doomed.ID)
	survivor := env.createArticle(t, keep, approver, "Survivor", published)

	store := &mockAttachmentStore{}
	store.On("DeleteArticleFiles", mock.Anything, doomed.UUID).Return(nil).Once()

	svc := NewTenantService(
		repository.NewTxManager(env.db),
		repository.NewTenantRepository(env.db),
		env.locales,
		env.nodes,
		repository.NewArticleRepository(env.db),
		env.index,
		store,
	)
	require.NoError(t, svc.DestroyTenant(ctx, acme.ID))
	store.AssertExpectations(t)

	_, err = svc.GetTenant(ctx, acme.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	for _, model := range []interface{}{
		&domain.Article{}, &domain.Locale{}, &domain.CategoryNode{}, &domain.ArticleSubject{},
		&domain.Tag{}, &domain.Tagging{}, &domain.Feedback{},
	} {
		var count int64
		require.NoError(t, env.db.Model(model).Where("tenant_id = ?", acme.ID).Count(&count).Error)
		assert.Zero(t, count, "%T", model)
	}
	var versions int64
	require.NoError(t, env.db.Model(&domain.ArticleVersion{}).Where("article_id = ?", doomed.ID).Count(&versions).Error)
	assert.Zero(t, versions)

	_, ok := env.index.Get(doomed.ID)
	assert.False(t, ok)
	_, ok = env.index.Get(survivor.ID)
	assert.True(t, ok)
}
