package domain

import (
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultLocaleCode is created for every tenant that has no default locale
const DefaultLocaleCode = "en"

// Locale is one language a tenant publishes in
type Locale struct {
	ID        uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TenantID  uint64 `gorm:"column:tenant_id;not null;uniqueIndex:uk_locales_tenant_code,priority:1" json:"tenant_id"`
	Code      string `gorm:"column:code;type:varchar(16);not null;uniqueIndex:uk_locales_tenant_code,priority:2" json:"code"`
	Language  string `gorm:"column:language;type:varchar(64)" json:"language"`
	Territory string `gorm:"column:territory;type:varchar(64)" json:"territory"`
}

func (Locale) TableName() string { return "locales" }

// NewLocale canonicalizes a BCP 47 code and fills English display names
func NewLocale(tenantID uint64, code string) (*Locale, error) {
	tag, err := language.Parse(code)
	if err != nil {
		return nil, err
	}
	base, _ := tag.Base()
	l := &Locale{
		TenantID: tenantID,
		Code:     tag.String(),
		Language: display.English.Languages().Name(base),
	}
	if region, conf := tag.Region(); conf == language.Exact {
		l.Territory = display.English.Regions().Name(region)
	}
	return l, nil
}
