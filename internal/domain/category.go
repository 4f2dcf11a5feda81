package domain

import (
	"fmt"
	"time"
)

// NodeKind distinguishes subject nodes from the article nodes hung under them
type NodeKind string

const (
	NodeSubject NodeKind = "subject"
	NodeArticle NodeKind = "article"
)

// CategoryNode is a node of a tenant's subject tree
type CategoryNode struct {
	ID           uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TenantID     uint64    `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	ParentID     *uint64   `gorm:"column:parent_id;index" json:"parent_id,omitempty"`
	Kind         NodeKind  `gorm:"column:kind;type:varchar(20);not null" json:"kind"`
	Name         string    `gorm:"column:name;type:varchar(255)" json:"name"`
	Permalink    string    `gorm:"column:permalink;type:varchar(300)" json:"permalink"`
	Reference    string    `gorm:"column:reference;type:varchar(64)" json:"reference,omitempty"`
	LinkID       *uint64   `gorm:"column:link_id;index" json:"link_id,omitempty"`
	Position     int       `gorm:"column:position;not null;default:0" json:"position"`
	Visible      bool      `gorm:"column:visible" json:"visible"`
	StaffVisible bool      `gorm:"column:staff_visible" json:"staff_visible"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (CategoryNode) TableName() string { return "category_nodes" }

// ArticleSubject links an article to a subject node
type ArticleSubject struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TenantID  uint64    `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	ArticleID uint64    `gorm:"column:article_id;not null;uniqueIndex:uk_article_subjects,priority:1" json:"article_id"`
	SubjectID uint64    `gorm:"column:subject_id;not null;uniqueIndex:uk_article_subjects,priority:2;index" json:"subject_id"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (ArticleSubject) TableName() string { return "article_subjects" }

// ArticleNodePermalink path of an article node under its subject
func ArticleNodePermalink(reference, permalink string) string {
	return fmt.Sprintf("articles/%s", ToParam(reference, permalink))
}

// CreateSubjectRequest input for a new subject node
type CreateSubjectRequest struct {
	Name     string  `json:"name" validate:"required,max=255"`
	ParentID *uint64 `json:"parent_id"`
	Position int     `json:"position"`
}
