package domain

// Tag label scoped to a tenant
type Tag struct {
	ID       uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TenantID uint64 `gorm:"column:tenant_id;not null;uniqueIndex:uk_tags_tenant_name,priority:1" json:"tenant_id"`
	Name     string `gorm:"column:name;type:varchar(64);not null;uniqueIndex:uk_tags_tenant_name,priority:2" json:"name"`
}

func (Tag) TableName() string { return "tags" }

// Tagging attaches a tag to an article
type Tagging struct {
	ID        uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TenantID  uint64 `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	TagID     uint64 `gorm:"column:tag_id;not null;uniqueIndex:uk_taggings,priority:1" json:"tag_id"`
	ArticleID uint64 `gorm:"column:article_id;not null;uniqueIndex:uk_taggings,priority:2;index" json:"article_id"`
}

func (Tagging) TableName() string { return "taggings" }
