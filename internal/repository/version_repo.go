package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angple/kb-engine/internal/domain"
)

// VersionRepository article version data access interface
type VersionRepository interface {
	// Create appends a version numbered MAX(version)+1 with its translations
	Create(ctx context.Context, articleID uint64, translations []domain.Translation) (*domain.ArticleVersion, error)
	FindByID(ctx context.Context, id uint64) (*domain.ArticleVersion, error)
	// Latest returns nil without error when the article has no version
	Latest(ctx context.Context, articleID uint64) (*domain.ArticleVersion, error)
	ListByArticle(ctx context.Context, articleID uint64) ([]*domain.ArticleVersion, error)
}

type versionRepository struct {
	db *gorm.DB
}

// NewVersionRepository creates a new VersionRepository
func NewVersionRepository(db *gorm.DB) VersionRepository {
	return &versionRepository{db: db}
}

func (r *versionRepository) Create(ctx context.Context, articleID uint64, translations []domain.Translation) (*domain.ArticleVersion, error) {
	db := conn(ctx, r.db)

	var maxVersion int
	err := db.Model(&domain.ArticleVersion{}).
		Where("article_id = ?", articleID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&maxVersion).Error
	if err != nil {
		return nil, err
	}

	version := &domain.ArticleVersion{ArticleID: articleID, Version: maxVersion + 1}
	if err := db.Omit("Translations").Create(version).Error; err != nil {
		return nil, err
	}
	rows := make([]domain.Translation, len(translations))
	for i, t := range translations {
		t.ID = 0
		t.VersionID = version.ID
		rows[i] = t
	}
	if len(rows) > 0 {
		if err := db.Create(&rows).Error; err != nil {
			return nil, err
		}
	}
	version.Translations = rows
	return version, nil
}

func (r *versionRepository) FindByID(ctx context.Context, id uint64) (*domain.ArticleVersion, error) {
	var version domain.ArticleVersion
	err := conn(ctx, r.db).Preload("Translations").First(&version, id).Error
	if err != nil {
		return nil, notFound(err, "version", id)
	}
	return &version, nil
}

func (r *versionRepository) Latest(ctx context.Context, articleID uint64) (*domain.ArticleVersion, error) {
	var version domain.ArticleVersion
	err := conn(ctx, r.db).Preload("Translations").
		Where("article_id = ?", articleID).
		Order("version DESC").
		First(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &version, nil
}

func (r *versionRepository) ListByArticle(ctx context.Context, articleID uint64) ([]*domain.ArticleVersion, error) {
	var versions []*domain.ArticleVersion
	err := conn(ctx, r.db).Preload("Translations").
		Where("article_id = ?", articleID).
		Order("version DESC").
		Find(&versions).Error
	return versions, err
}

