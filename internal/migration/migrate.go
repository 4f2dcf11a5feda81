package migration

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/angple/kb-engine/internal/domain"
)

// Models every table owned by the engine, parents first
func Models() []interface{} {
	return []interface{}{
		&domain.Tenant{},
		&domain.Locale{},
		&domain.User{},
		&domain.Article{},
		&domain.ArticleVersion{},
		&domain.Translation{},
		&domain.CategoryNode{},
		&domain.ArticleSubject{},
		&domain.Tag{},
		&domain.Tagging{},
		&domain.Feedback{},
	}
}

// Run executes AutoMigrate for every model
func Run(db *gorm.DB) error {
	// AutoMigrate - 테이블 없으면 생성, 컬럼/인덱스만 추가
	for _, m := range Models() {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("auto migrate %T: %w", m, err)
		}
	}
	return nil
}
