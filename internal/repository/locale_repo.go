package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/angple/kb-engine/internal/domain"
)

// LocaleRepository locale data access interface
type LocaleRepository interface {
	Create(ctx context.Context, locale *domain.Locale) error
	FindByID(ctx context.Context, tenantID, id uint64) (*domain.Locale, error)
	FindByCode(ctx context.Context, tenantID uint64, code string) (*domain.Locale, error)
	ListByTenant(ctx context.Context, tenantID uint64) ([]domain.Locale, error)
}

type localeRepository struct {
	db *gorm.DB
}

// NewLocaleRepository creates a new LocaleRepository
func NewLocaleRepository(db *gorm.DB) LocaleRepository {
	return &localeRepository{db: db}
}

func (r *localeRepository) Create(ctx context.Context, locale *domain.Locale) error {
	return conn(ctx, r.db).Create(locale).Error
}

func (r *localeRepository) FindByID(ctx context.Context, tenantID, id uint64) (*domain.Locale, error) {
	var locale domain.Locale
	err := conn(ctx, r.db).Where("tenant_id = ? AND id = ?", tenantID, id).First(&locale).Error
	if err != nil {
		return nil, notFound(err, "locale", id)
	}
	return &locale, nil
}

func (r *localeRepository) FindByCode(ctx context.Context, tenantID uint64, code string) (*domain.Locale, error) {
	var locale domain.Locale
	err := conn(ctx, r.db).Where("tenant_id = ? AND code = ?", tenantID, code).First(&locale).Error
	if err != nil {
		return nil, notFound(err, "locale", code)
	}
	return &locale, nil
}

func (r *localeRepository) ListByTenant(ctx context.Context, tenantID uint64) ([]domain.Locale, error) {
	var locales []domain.Locale
	err := conn(ctx, r.db).Where("tenant_id = ?", tenantID).Order("id ASC").Find(&locales).Error
	return locales, err
}
