package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angple/kb-engine/internal/domain"
)

// SubjectArticle is one (subject, article) link with the article fields that
// drive visibility
type SubjectArticle struct {
	LinkID             uint64
	SubjectID          uint64
	ArticleID          uint64
	State              domain.ArticleState
	PublishedVersionID *uint64
	Internal           bool
}

// Article rebuilds the visibility-relevant part of the article
func (s SubjectArticle) Article() *domain.Article {
	return &domain.Article{ID: s.ArticleID, State: s.State, PublishedVersionID: s.PublishedVersionID, Internal: s.Internal}
}

// CategoryRepository subject tree data access interface
type CategoryRepository interface {
	CreateNode(ctx context.Context, node *domain.CategoryNode) error
	SaveNode(ctx context.Context, node *domain.CategoryNode) error
	FindNode(ctx context.Context, tenantID, id uint64) (*domain.CategoryNode, error)
	FindRoot(ctx context.Context, tenantID uint64) (*domain.CategoryNode, error)
	ListNodes(ctx context.Context, tenantID uint64) ([]*domain.CategoryNode, error)
	UpdateVisibility(ctx context.Context, id uint64, visible, staffVisible bool) error

	LinksByArticle(ctx context.Context, articleID uint64) ([]domain.ArticleSubject, error)
	CreateLink(ctx context.Context, link *domain.ArticleSubject) error
	DeleteLinks(ctx context.Context, ids []uint64) error
	SubjectArticles(ctx context.Context, tenantID uint64) ([]SubjectArticle, error)

	UpdateArticleNodes(ctx context.Context, articleID uint64, values map[string]interface{}) error
	// PruneArticleNodes deletes article nodes whose link is gone and that have no children
	PruneArticleNodes(ctx context.Context, tenantID uint64) (int64, error)
}

type categoryRepository struct {
	db *gorm.DB
}

// NewCategoryRepository creates a new CategoryRepository
func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

func (r *categoryRepository) CreateNode(ctx context.Context, node *domain.CategoryNode) error {
	return conn(ctx, r.db).Create(node).Error
}

func (r *categoryRepository) SaveNode(ctx context.Context, node *domain.CategoryNode) error {
	return conn(ctx, r.db).Save(node).Error
}

func (r *categoryRepository) FindNode(ctx context.Context, tenantID, id uint64) (*domain.CategoryNode, error) {
	var node domain.CategoryNode
	err := conn(ctx, r.db).Where("tenant_id = ? AND id = ?", tenantID, id).First(&node).Error
	if err != nil {
		return nil, notFound(err, "subject", id)
	}
	return &node, nil
}

func (r *categoryRepository) ListNodes(ctx context.Context, tenantID uint64) ([]*domain.CategoryNode, error) {
	var nodes []*domain.CategoryNode
	err := conn(ctx, r.db).Where("tenant_id = ?", tenantID).
		Order("position ASC").Order("id ASC").
		Find(&nodes).Error
	return nodes, err
}

func (r *categoryRepository) UpdateVisibility(ctx context.Context, id uint64, visible, staffVisible bool) error {
	return conn(ctx, r.db).Model(&domain.CategoryNode{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{"visible": visible, "staff_visible": staffVisible}).Error
}

func (r *categoryRepository) LinksByArticle(ctx context.Context, articleID uint64) ([]domain.ArticleSubject, error) {
	var links []domain.ArticleSubject
	err := conn(ctx, r.db).Where("article_id = ?", articleID).Order("id ASC").Find(&links).Error
	return links, err
}

func (r *categoryRepository) CreateLink(ctx context.Context, link *domain.ArticleSubject) error {
	return conn(ctx, r.db).Create(link).Error
}

func (r *categoryRepository) DeleteLinks(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	return conn(ctx, r.db).Where("id IN ?", ids).Delete(&domain.ArticleSubject{}).Error
}

func (r *categoryRepository) SubjectArticles(ctx context.Context, tenantID uint64) ([]SubjectArticle, error) {
	var rows []SubjectArticle
	err := conn(ctx, r.db).Table("article_subjects").
		Select("article_subjects.id AS link_id, article_subjects.subject_id, article_subjects.article_id, articles.state, articles.published_version_id, articles.internal").
		Joins("JOIN articles ON articles.id = article_subjects.article_id").
		Where("article_subjects.tenant_id = ?", tenantID).
		Scan(&rows).Error
	return rows, err
}

func (r *categoryRepository) UpdateArticleNodes(ctx context.Context, articleID uint64, values map[string]interface{}) error {
	db := conn(ctx, r.db)
	links := db.Model(&domain.ArticleSubject{}).Select("id").Where("article_id = ?", articleID)
	return db.Model(&domain.CategoryNode{}).
		Where("kind = ? AND link_id IN (?)", domain.NodeArticle, links).
		Updates(values).Error
}

func (r *categoryRepository) PruneArticleNodes(ctx context.Context, tenantID uint64) (int64, error) {
	db := conn(ctx, r.db)
	links := db.Model(&domain.ArticleSubject{}).Select("id")
	parents := db.Model(&domain.CategoryNode{}).Select("parent_id").Where("parent_id IS NOT NULL")

	// MySQL rejects a DELETE that reads its own table in a subquery
	var ids []uint64
	err := db.Model(&domain.CategoryNode{}).
		Where("tenant_id = ? AND kind = ?", tenantID, domain.NodeArticle).
		Where("link_id IS NULL OR link_id NOT IN (?)", links).
		Where("id NOT IN (?)", parents).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	result := db.Where("id IN ?", ids).Delete(&domain.CategoryNode{})
	return result.RowsAffected, result.Error
}

// FindRoot returns nil without error when the tenant has no root subject yet
func (r *categoryRepository) FindRoot(ctx context.Context, tenantID uint64) (*domain.CategoryNode, error) {
	var node domain.CategoryNode
	err := conn(ctx, r.db).
		Where("tenant_id = ? AND kind = ? AND parent_id IS NULL", tenantID, domain.NodeSubject).
		Order("id ASC").
		First(&node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}
