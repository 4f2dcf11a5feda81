package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angple/kb-engine/internal/common"
	"github.com/angple/kb-engine/internal/domain"
	"github.com/angple/kb-engine/internal/repository"
	"github.com/angple/kb-engine/internal/search"
	pkglogger "github.com/angple/kb-engine/pkg/logger"
)

// RootSubjectName name of the subject tree root created for every tenant
const RootSubjectName = "Subjects"

// AttachmentStore holds files keyed by the article's stable identifier
type AttachmentStore interface {
	DeleteArticleFiles(ctx context.Context, articleUUID string) error
}

// TenantService handles tenant registry business logic
type TenantService struct {
	tx          repository.TxManager
	tenants     repository.TenantRepository
	locales     repository.LocaleRepository
	categories  repository.CategoryRepository
	articles    repository.ArticleRepository
	index       search.Index
	attachments AttachmentStore
}

// NewTenantService creates a new TenantService. attachments may be nil.
func NewTenantService(
	tx repository.TxManager,
	tenants repository.TenantRepository,
	locales repository.LocaleRepository,
	categories repository.CategoryRepository,
	articles repository.ArticleRepository,
	index search.Index,
	attachments AttachmentStore,
) *TenantService {
	return &TenantService{
		tx:          tx,
		tenants:     tenants,
		locales:     locales,
		categories:  categories,
		articles:    articles,
		index:       index,
		attachments: attachments,
	}
}

// CreateTenant registers a tenant and its defaults in one transaction
func (s *TenantService) CreateTenant(ctx context.Context, req *domain.CreateTenantRequest) (*domain.Tenant, error) {
	req.Subdomain = strings.ToLower(strings.TrimSpace(req.Subdomain))
	if err := domain.Validate(req); err != nil {
		return nil, err
	}
	if domain.IsReservedSubdomain(req.Subdomain) {
		return nil, common.NewValidationError("subdomain", "is reserved")
	}

	size := req.ReferenceSize
	if size < 1 {
		size = 1
	}
	tenant := &domain.Tenant{
		Subdomain:       req.Subdomain,
		Company:         strings.TrimSpace(req.Company),
		State:           domain.TenantActive,
		ReferencePrefix: req.ReferencePrefix,
		ReferenceSize:   size,
		NextReferenceID: 1,
	}

	err := s.tx.ExecTx(ctx, func(ctx context.Context) error {
		taken, err := s.tenants.ExistsSubdomain(ctx, tenant.Subdomain)
		if err != nil {
			return err
		}
		if taken {
			return common.NewValidationError("subdomain", "has already been taken")
		}
		if err := s.tenants.Create(ctx, tenant); err != nil {
			if repository.IsDuplicate(err) {
				return common.NewValidationError("subdomain", "has already been taken")
			}
			return fmt.Errorf("create tenant: %w", err)
		}
		return s.ensureDefaults(ctx, tenant)
	})
	if err != nil {
		return nil, err
	}

	pkglogger.WithTenant(tenant.ID).Info().Str("subdomain", tenant.Subdomain).Msg("tenant created")
	return tenant, nil
}

// GetTenant returns a tenant by id
func (s *TenantService) GetTenant(ctx context.Context, tenantID uint64) (*domain.Tenant, error) {
	return s.tenants.FindByID(ctx, tenantID)
}

// FindBySubdomain resolves a tenant from its subdomain
func (s *TenantService) FindBySubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error) {
	return s.tenants.FindBySubdomain(ctx, strings.ToLower(strings.TrimSpace(subdomain)))
}

// EnsureDefaults creates the default locale and root subject if missing. Idempotent.
func (s *TenantService) EnsureDefaults(ctx context.Context, tenantID uint64) error {
	return s.tx.ExecTx(ctx, func(ctx context.Context) error {
		tenant, err := s.tenants.LockByID(ctx, tenantID)
		if err != nil {
			return err
		}
		return s.ensureDefaults(ctx, tenant)
	})
}

func (s *TenantService) ensureDefaults(ctx context.Context, tenant *domain.Tenant) error {
	if tenant.DefaultLocaleID == nil || !s.localeExists(ctx, tenant.ID, *tenant.DefaultLocaleID) {
		locale, err := s.findOrCreateLocale(ctx, tenant.ID, domain.DefaultLocaleCode)
		if err != nil {
			return err
		}
		if err := s.tenants.UpdateDefaultLocale(ctx, tenant.ID, locale.ID); err != nil {
			return fmt.Errorf("set default locale: %w", err)
		}
		tenant.DefaultLocaleID = &locale.ID
	}

	root, err := s.categories.FindRoot(ctx, tenant.ID)
	if err != nil {
		return err
	}
	if root == nil {
		root = &domain.CategoryNode{
			TenantID:  tenant.ID,
			Kind:      domain.NodeSubject,
			Name:      RootSubjectName,
			Permalink: domain.GeneratePermalink(RootSubjectName),
		}
		if err := s.categories.CreateNode(ctx, root); err != nil {
			return fmt.Errorf("create root subject: %w", err)
		}
	}
	return nil
}

func (s *TenantService) localeExists(ctx context.Context, tenantID, localeID uint64) bool {
	_, err := s.locales.FindByID(ctx, tenantID, localeID)
	return err == nil
}

func (s *TenantService) findOrCreateLocale(ctx context.Context, tenantID uint64, code string) (*domain.Locale, error) {
	locale, err := domain.NewLocale(tenantID, code)
	if err != nil {
		return nil, common.NewValidationError("code", "is not a valid locale")
	}
	existing, err := s.locales.FindByCode(ctx, tenantID, locale.Code)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	if err := s.locales.Create(ctx, locale); err != nil {
		return nil, fmt.Errorf("create locale: %w", err)
	}
	return locale, nil
}

// Root returns the tenant's root subject, creating it on first access
func (s *TenantService) Root(ctx context.Context, tenantID uint64) (*domain.CategoryNode, error) {
	root, err := s.categories.FindRoot(ctx, tenantID)
	if err != nil || root != nil {
		return root, err
	}
	if err := s.EnsureDefaults(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.categories.FindRoot(ctx, tenantID)
}

// AddLocale adds a locale to the tenant; adding an existing code returns it
func (s *TenantService) AddLocale(ctx context.Context, tenantID uint64, code string) (*domain.Locale, error) {
	if _, err := s.tenants.FindByID(ctx, tenantID); err != nil {
		return nil, err
	}
	var locale *domain.Locale
	err := s.tx.ExecTx(ctx, func(ctx context.Context) error {
		var err error
		locale, err = s.findOrCreateLocale(ctx, tenantID, code)
		return err
	})
	return locale, err
}

// SetDefaultLocale marks one of the tenant's locales as default
func (s *TenantService) SetDefaultLocale(ctx context.Context, tenantID, localeID uint64) error {
	if _, err := s.locales.FindByID(ctx, tenantID, localeID); err != nil {
		return err
	}
	return s.tenants.UpdateDefaultLocale(ctx, tenantID, localeID)
}

// ListLocales returns the tenant's locales
func (s *TenantService) ListLocales(ctx context.Context, tenantID uint64) ([]domain.Locale, error) {
	return s.locales.ListByTenant(ctx, tenantID)
}

// NextArticleReference previews the reference the next article would get
func (s *TenantService) NextArticleReference(ctx context.Context, tenantID uint64) (string, error) {
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return tenant.NextArticleReference(), nil
}

// DestroyTenant deletes the tenant with everything it owns. Index entries and
// attachments are removed after the rows are gone; failures there are logged.
func (s *TenantService) DestroyTenant(ctx context.Context, tenantID uint64) error {
	if _, err := s.tenants.FindByID(ctx, tenantID); err != nil {
		return err
	}
	uuids, err := s.articles.ListUUIDs(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list article uuids: %w", err)
	}

	if err := s.tx.ExecTx(ctx, func(ctx context.Context) error {
		return s.tenants.Purge(ctx, tenantID)
	}); err != nil {
		return fmt.Errorf("purge tenant: %w", err)
	}

	log := pkglogger.WithTenant(tenantID)
	if s.index != nil {
		if err := s.index.DeleteTenant(ctx, tenantID); err != nil {
			log.Error().Err(err).Msg("failed to remove tenant from search index")
		}
	}
	if s.attachments != nil {
		for _, id := range uuids {
			if err := s.attachments.DeleteArticleFiles(ctx, id); err != nil {
				log.Error().Err(err).Str("article_uuid", id).Msg("failed to delete attachments")
			}
		}
	}
	log.Info().Int("articles", len(uuids)).Msg("tenant destroyed")
	return nil
}
