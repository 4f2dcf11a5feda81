package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angple/kb-engine/internal/domain"
)

// TagRepository tag data access interface
type TagRepository interface {
	// ReplaceTags makes names the exact tag set of owner
	ReplaceTags(ctx context.Context, owner domain.Taggable, names []string) error
	TagNames(ctx context.Context, articleID uint64) ([]string, error)
	TagNamesByArticles(ctx context.Context, articleIDs []uint64) (map[uint64][]string, error)
}

type tagRepository struct {
	db *gorm.DB
}

// NewTagRepository creates a new TagRepository
func NewTagRepository(db *gorm.DB) TagRepository {
	return &tagRepository{db: db}
}

func (r *tagRepository) ReplaceTags(ctx context.Context, owner domain.Taggable, names []string) error {
	tenantID, articleID := owner.TagScope()
	db := conn(ctx, r.db)
	if err := db.Where("article_id = ?", articleID).Delete(&domain.Tagging{}).Error; err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}

	tags := make([]domain.Tag, len(names))
	for i, n := range names {
		tags[i] = domain.Tag{TenantID: tenantID, Name: n}
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&tags).Error; err != nil {
		return err
	}

	var ids []uint64
	if err := db.Model(&domain.Tag{}).Where("tenant_id = ? AND name IN ?", tenantID, names).Pluck("id", &ids).Error; err != nil {
		return err
	}
	taggings := make([]domain.Tagging, len(ids))
	for i, id := range ids {
		taggings[i] = domain.Tagging{TenantID: tenantID, TagID: id, ArticleID: articleID}
	}
	return db.Create(&taggings).Error
}

func (r *tagRepository) TagNames(ctx context.Context, articleID uint64) ([]string, error) {
	byArticle, err := r.TagNamesByArticles(ctx, []uint64{articleID})
	if err != nil {
		return nil, err
	}
	return byArticle[articleID], nil
}

func (r *tagRepository) TagNamesByArticles(ctx context.Context, articleIDs []uint64) (map[uint64][]string, error) {
	out := make(map[uint64][]string, len(articleIDs))
	if len(articleIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ArticleID uint64
		Name      string
	}
	err := conn(ctx, r.db).Table("taggings").
		Select("taggings.article_id, tags.name").
		Joins("JOIN tags ON tags.id = taggings.tag_id").
		Where("taggings.article_id IN ?", articleIDs).
		Order("tags.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ArticleID] = append(out[row.ArticleID], row.Name)
	}
	return out, nil
}
