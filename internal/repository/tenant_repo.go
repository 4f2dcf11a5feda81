package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angple/kb-engine/internal/common"
	"github.com/angple/kb-engine/internal/domain"
)

// TenantRepository tenant data access interface
type TenantRepository interface {
	Create(ctx context.Context, tenant *domain.Tenant) error
	FindByID(ctx context.Context, id uint64) (*domain.Tenant, error)
	FindBySubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error)
	// LockByID reads the tenant row FOR UPDATE; must run inside ExecTx
	LockByID(ctx context.Context, id uint64) (*domain.Tenant, error)
	UpdateNextReference(ctx context.Context, id uint64, next int) error
	UpdateDefaultLocale(ctx context.Context, id uint64, localeID uint64) error
	ExistsSubdomain(ctx context.Context, subdomain string) (bool, error)
	ListIDs(ctx context.Context) ([]uint64, error)
	// Purge deletes the tenant and everything it owns
	Purge(ctx context.Context, id uint64) error
}

type tenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a new TenantRepository
func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	return conn(ctx, r.db).Create(tenant).Error
}

func (r *tenantRepository) FindByID(ctx context.Context, id uint64) (*domain.Tenant, error) {
	var tenant domain.Tenant
	if err := conn(ctx, r.db).First(&tenant, id).Error; err != nil {
		return nil, notFound(err, "tenant", id)
	}
	return &tenant, nil
}

func (r *tenantRepository) FindBySubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	if err := conn(ctx, r.db).Where("subdomain = ?", subdomain).First(&tenant).Error; err != nil {
		return nil, notFound(err, "tenant", subdomain)
	}
	return &tenant, nil
}

func (r *tenantRepository) LockByID(ctx context.Context, id uint64) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&tenant, id).Error
	if err != nil {
		return nil, notFound(err, "tenant", id)
	}
	return &tenant, nil
}

func (r *tenantRepository) UpdateNextReference(ctx context.Context, id uint64, next int) error {
	return conn(ctx, r.db).Model(&domain.Tenant{}).
		Where("id = ?", id).
		Update("next_reference_id", next).Error
}

func (r *tenantRepository) UpdateDefaultLocale(ctx context.Context, id uint64, localeID uint64) error {
	return conn(ctx, r.db).Model(&domain.Tenant{}).
		Where("id = ?", id).
		Update("default_locale_id", localeID).Error
}

func (r *tenantRepository) ExistsSubdomain(ctx context.Context, subdomain string) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&domain.Tenant{}).
		Where("LOWER(subdomain) = LOWER(?)", subdomain).
		Count(&count).Error
	return count > 0, err
}

func (r *tenantRepository) ListIDs(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	err := conn(ctx, r.db).Model(&domain.Tenant{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}

func (r *tenantRepository) Purge(ctx context.Context, id uint64) error {
	db := conn(ctx, r.db)

	articleIDs := db.Model(&domain.Article{}).Select("id").Where("tenant_id = ?", id)
	versionIDs := db.Model(&domain.ArticleVersion{}).Select("id").Where("article_id IN (?)", articleIDs)

	steps := []struct {
		model interface{}
		query string
		arg   interface{}
	}{
		{&domain.Translation{}, "version_id IN (?)", versionIDs},
		{&domain.ArticleVersion{}, "article_id IN (?)", articleIDs},
		{&domain.Tagging{}, "tenant_id = ?", id},
		{&domain.Tag{}, "tenant_id = ?", id},
		{&domain.Feedback{}, "tenant_id = ?", id},
		{&domain.ArticleSubject{}, "tenant_id = ?", id},
		{&domain.CategoryNode{}, "tenant_id = ?", id},
		{&domain.Article{}, "tenant_id = ?", id},
		{&domain.Locale{}, "tenant_id = ?", id},
		{&domain.User{}, "tenant_id = ?", id},
	}
	for _, s := range steps {
		if err := db.Where(s.query, s.arg).Delete(s.model).Error; err != nil {
			return err
		}
	}
	return db.Delete(&domain.Tenant{}, id).Error
}

func notFound(err error, resource string, key interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.NotFound(resource, key)
	}
	return err
}
