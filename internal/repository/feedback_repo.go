package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/angple/kb-engine/internal/domain"
)

// FeedbackRepository feedback data access interface
type FeedbackRepository interface {
	Create(ctx context.Context, feedback *domain.Feedback) error
	// Stats returns the average rating and number of feedbacks left on owner
	Stats(ctx context.Context, owner domain.Commentable) (float64, int64, error)
}

type feedbackRepository struct {
	db *gorm.DB
}

// NewFeedbackRepository creates a new FeedbackRepository
func NewFeedbackRepository(db *gorm.DB) FeedbackRepository {
	return &feedbackRepository{db: db}
}

func (r *feedbackRepository) Create(ctx context.Context, feedback *domain.Feedback) error {
	return conn(ctx, r.db).Create(feedback).Error
}

func (r *feedbackRepository) Stats(ctx context.Context, owner domain.Commentable) (float64, int64, error) {
	var row struct {
		Avg   float64
		Total int64
	}
	err := conn(ctx, r.db).Model(&domain.Feedback{}).
		Select("COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS total").
		Where("article_id = ?", owner.CommentableID()).
		Scan(&row).Error
	return row.Avg, row.Total, err
}
