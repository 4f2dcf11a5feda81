package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/angple/kb-engine/internal/domain"
)

// ArticleRepository article data access interface.
// Every lookup is scoped by tenant; a foreign id behaves like a missing one.
type ArticleRepository interface {
	Create(ctx context.Context, article *domain.Article) error
	Save(ctx context.Context, article *domain.Article) error
	FindByID(ctx context.Context, tenantID, id uint64) (*domain.Article, error)
	FindByReference(ctx context.Context, tenantID uint64, reference string, includeDeleted bool) (*domain.Article, error)
	FindByIDs(ctx context.Context, tenantID uint64, ids []uint64) ([]*domain.Article, error)
	ReferenceExists(ctx context.Context, tenantID uint64, reference string, excludeID uint64) (bool, error)
	List(ctx context.Context, tenantID uint64, filter domain.ListFilter) ([]*domain.Article, int64, error)
	ListAssigned(ctx context.Context, tenantID, userID uint64, states []domain.ArticleState) ([]*domain.Article, error)
	RecentlyEdited(ctx context.Context, tenantID, authorID uint64, limit int) ([]*domain.Article, error)
	MostViewed(ctx context.Context, tenantID uint64, limit int) ([]*domain.Article, error)
	ListIDs(ctx context.Context, tenantID uint64) ([]uint64, error)
	ListUUIDs(ctx context.Context, tenantID uint64) ([]string, error)
	IncrementClicks(ctx context.Context, tenantID, id uint64) error
	ResetClicks(ctx context.Context, tenantID uint64) error
	UpdateRating(ctx context.Context, id uint64, rating *int, count int) error
}

type articleRepository struct {
	db *gorm.DB
}

// NewArticleRepository creates a new ArticleRepository
func NewArticleRepository(db *gorm.DB) ArticleRepository {
	return &articleRepository{db: db}
}

func (r *articleRepository) Create(ctx context.Context, article *domain.Article) error {
	return conn(ctx, r.db).Create(article).Error
}

func (r *articleRepository) Save(ctx context.Context, article *domain.Article) error {
	return conn(ctx, r.db).Save(article).Error
}

func (r *articleRepository) FindByID(ctx context.Context, tenantID, id uint64) (*domain.Article, error) {
	var article domain.Article
	err := conn(ctx, r.db).Where("tenant_id = ? AND id = ?", tenantID, id).First(&article).Error
	if err != nil {
		return nil, notFound(err, "article", id)
	}
	return &article, nil
}

func (r *articleRepository) FindByReference(ctx context.Context, tenantID uint64, reference string, includeDeleted bool) (*domain.Article, error) {
	var article domain.Article
	query := conn(ctx, r.db).Where("tenant_id = ? AND reference = ?", tenantID, reference)
	if !includeDeleted {
		query = query.Where("state <> ?", domain.StateDeleted)
	}
	err := query.First(&article).Error
	if err != nil {
		return nil, notFound(err, "article", reference)
	}
	return &article, nil
}

func (r *articleRepository) FindByIDs(ctx context.Context, tenantID uint64, ids []uint64) ([]*domain.Article, error) {
	var articles []*domain.Article
	if len(ids) == 0 {
		return articles, nil
	}
	err := conn(ctx, r.db).Where("tenant_id = ? AND id IN ?", tenantID, ids).Order("id ASC").Find(&articles).Error
	return articles, err
}

func (r *articleRepository) ReferenceExists(ctx context.Context, tenantID uint64, reference string, excludeID uint64) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&domain.Article{}).
		Where("tenant_id = ? AND reference = ? AND id <> ?", tenantID, reference, excludeID).
		Count(&count).Error
	return count > 0, err
}

func (r *articleRepository) List(ctx context.Context, tenantID uint64, filter domain.ListFilter) ([]*domain.Article, int64, error) {
	query := conn(ctx, r.db).Model(&domain.Article{}).Where("articles.tenant_id = ?", tenantID)
	if len(filter.States) > 0 {
		query = query.Where("articles.state IN ?", filter.States)
	} else {
		query = query.Where("articles.state <> ?", domain.StateDeleted)
	}
	if filter.Tag != "" {
		query = query.
			Joins("JOIN taggings ON taggings.article_id = articles.id").
			Joins("JOIN tags ON tags.id = taggings.tag_id").
			Where("tags.name = ?", filter.Tag)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "articles." + domain.SortColumn(filter.Sort)
	if filter.Desc {
		order += " DESC"
	} else {
		order += " ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := domain.ClampPerPage(filter.PerPage, 0)

	var articles []*domain.Article
	err := query.Select("articles.*").
		Order(order).Order("articles.id DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&articles).Error
	if err != nil {
		return nil, 0, err
	}
	return articles, total, nil
}

func (r *articleRepository) ListAssigned(ctx context.Context, tenantID, userID uint64, states []domain.ArticleState) ([]*domain.Article, error) {
	var articles []*domain.Article
	query := conn(ctx, r.db).
		Where("tenant_id = ?", tenantID).
		Where("assigned_to_id = ? OR assigned_from_id = ?", userID, userID)
	if len(states) > 0 {
		query = query.Where("state IN ?", states)
	} else {
		query = query.Where("state <> ?", domain.StateDeleted)
	}
	err := query.Order("assigned_at DESC").Order("id DESC").Find(&articles).Error
	return articles, err
}

func (r *articleRepository) RecentlyEdited(ctx context.Context, tenantID, authorID uint64, limit int) ([]*domain.Article, error) {
	var articles []*domain.Article
	err := conn(ctx, r.db).
		Where("tenant_id = ? AND author_id = ? AND state <> ?", tenantID, authorID, domain.StateDeleted).
		Order("updated_at DESC").Order("id DESC").
		Limit(limit).
		Find(&articles).Error
	return articles, err
}

// MostViewed public FAQ ordering: priority first, then clicks
func (r *articleRepository) MostViewed(ctx context.Context, tenantID uint64, limit int) ([]*domain.Article, error) {
	var articles []*domain.Article
	err := conn(ctx, r.db).
		Where("tenant_id = ? AND state = ? AND published_version_id IS NOT NULL", tenantID, domain.StatePublished).
		Where("internal = ? AND exclude_from_faq = ?", false, false).
		Order("priority DESC").Order("clicks DESC").Order("id ASC").
		Limit(limit).
		Find(&articles).Error
	return articles, err
}

func (r *articleRepository) ListIDs(ctx context.Context, tenantID uint64) ([]uint64, error) {
	var ids []uint64
	err := conn(ctx, r.db).Model(&domain.Article{}).
		Where("tenant_id = ?", tenantID).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *articleRepository) ListUUIDs(ctx context.Context, tenantID uint64) ([]string, error) {
	var uuids []string
	err := conn(ctx, r.db).Model(&domain.Article{}).
		Where("tenant_id = ?", tenantID).
		Pluck("uuid", &uuids).Error
	return uuids, err
}

func (r *articleRepository) IncrementClicks(ctx context.Context, tenantID, id uint64) error {
	return conn(ctx, r.db).Model(&domain.Article{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		UpdateColumn("clicks", gorm.Expr("clicks + 1")).Error
}

func (r *articleRepository) ResetClicks(ctx context.Context, tenantID uint64) error {
	return conn(ctx, r.db).Model(&domain.Article{}).
		Where("tenant_id = ?", tenantID).
		UpdateColumn("clicks", 0).Error
}

func (r *articleRepository) UpdateRating(ctx context.Context, id uint64, rating *int, count int) error {
	return conn(ctx, r.db).Model(&domain.Article{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{"rating": rating, "feedbacks_count": count}).Error
}
