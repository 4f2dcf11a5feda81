package domain

import "time"

// Feedback a reader's rating of an article
type Feedback struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TenantID  uint64    `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	ArticleID uint64    `gorm:"column:article_id;not null;index" json:"article_id"`
	Rating    int       `gorm:"column:rating;not null" json:"rating"`
	Comment   string    `gorm:"column:comment;type:text" json:"comment,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Feedback) TableName() string { return "feedbacks" }

// FeedbackRequest input for ArticleService.AddFeedback
type FeedbackRequest struct {
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}
