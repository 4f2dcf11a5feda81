package domain

import (
	"sort"
	"strings"
	"time"
)

// ArticleVersion is an immutable snapshot of an article's translations
type ArticleVersion struct {
	ID           uint64        `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ArticleID    uint64        `gorm:"column:article_id;not null;uniqueIndex:uk_versions_article_version,priority:1" json:"article_id"`
	Version      int           `gorm:"column:version;not null;uniqueIndex:uk_versions_article_version,priority:2" json:"version"`
	CreatedAt    time.Time     `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	Translations []Translation `gorm:"foreignKey:VersionID" json:"translations"`
}

func (ArticleVersion) TableName() string { return "article_versions" }

// IsBlank true when no translation carries content
func (v *ArticleVersion) IsBlank() bool {
	for i := range v.Translations {
		if !v.Translations[i].IsBlank() {
			return false
		}
	}
	return true
}

// Translation for one locale within a version
type Translation struct {
	ID        uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	VersionID uint64 `gorm:"column:version_id;not null;uniqueIndex:uk_translations_version_locale,priority:1" json:"version_id"`
	LocaleID  uint64 `gorm:"column:locale_id;not null;uniqueIndex:uk_translations_version_locale,priority:2" json:"locale_id"`
	Title     string `gorm:"column:title;type:varchar(255)" json:"title"`
	Permalink string `gorm:"column:permalink;type:varchar(255)" json:"permalink"`
	Content   string `gorm:"column:content;type:mediumtext" json:"content"`
}

func (Translation) TableName() string { return "translations" }

// IsBlank title and content both empty
func (t Translation) IsBlank() bool {
	return strings.TrimSpace(t.Title) == "" && strings.TrimSpace(t.Content) == ""
}

func (t Translation) sameContent(o Translation) bool {
	return t.Title == o.Title && t.Permalink == o.Permalink && t.Content == o.Content
}

// BuildTranslation normalizes submitted content; the permalink falls back to the title
func BuildTranslation(in TranslationInput) Translation {
	link := in.Permalink
	if strings.TrimSpace(link) == "" {
		link = in.Title
	}
	return Translation{
		LocaleID:  in.LocaleID,
		Title:     strings.TrimSpace(in.Title),
		Permalink: GeneratePermalink(link),
		Content:   in.Content,
	}
}

// MergeTranslations layers inputs over the latest version's translations.
// changed is false when nothing differs from latest, in which case no new
// version should be written.
func MergeTranslations(latest *ArticleVersion, inputs []TranslationInput) ([]Translation, bool) {
	merged := make(map[uint64]Translation)
	if latest != nil {
		for _, t := range latest.Translations {
			merged[t.LocaleID] = Translation{LocaleID: t.LocaleID, Title: t.Title, Permalink: t.Permalink, Content: t.Content}
		}
	}
	changed := false
	for _, in := range inputs {
		next := BuildTranslation(in)
		cur, ok := merged[in.LocaleID]
		if !ok && next.IsBlank() {
			continue
		}
		if ok && cur.sameContent(next) {
			continue
		}
		merged[in.LocaleID] = next
		changed = true
	}
	out := make([]Translation, 0, len(merged))
	for _, t := range merged {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocaleID < out[j].LocaleID })
	return out, changed
}

// Resolve picks the translation to show for locale: exact match, then the
// tenant default, then the lowest non-blank locale. Blank translations are
// never used as a fallback. Returns an empty translation
// if nothing is available.
func Resolve(v *ArticleVersion, localeID, defaultLocaleID uint64) Translation {
	if v == nil || len(v.Translations) == 0 {
		return Translation{LocaleID: localeID}
	}
	var fallback *Translation
	var first *Translation
	for i := range v.Translations {
		t := &v.Translations[i]
		switch {
		case t.LocaleID == localeID:
			return *t
		case t.IsBlank():
		case t.LocaleID == defaultLocaleID:
			fallback = t
		case first == nil || t.LocaleID < first.LocaleID:
			first = t
		}
	}
	if fallback != nil {
		return *fallback
	}
	if first != nil {
		return *first
	}
	return Translation{LocaleID: localeID}
}
