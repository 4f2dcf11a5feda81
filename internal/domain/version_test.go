package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVersion() *ArticleVersion {
	return &ArticleVersion{
		ID: 1,
		Translations: []Translation{
			{LocaleID: 1, Title: "Paying", Permalink: "paying", Content: "en"},
			{LocaleID: 2, Title: "Payer", Permalink: "payer", Content: "fr"},
			{LocaleID: 3},
		},
	}
}

func TestResolve(t *testing.T) {
	v := testVersion()

	assert.Equal(t, "Payer", Resolve(v, 2, 1).Title)
	// missing locale falls back to the tenant default
	assert.Equal(t, "Paying", Resolve(v, 9, 1).Title)
	// no default either: first non-blank translation
	assert.Equal(t, "Paying", Resolve(v, 9, 8).Title)

	// blank default and blank earlier locales are skipped
	sparse := &ArticleVersion{Translations: []Translation{
		{LocaleID: 1, Title: " "},
		{LocaleID: 3},
		{LocaleID: 5, Title: "Zahlen", Content: "de"},
	}}
	assert.Equal(t, "Zahlen", Resolve(sparse, 9, 1).Title)
	assert.Equal(t, "Zahlen", Resolve(sparse, 9, 3).Title)

	empty := Resolve(nil, 2, 1)
	assert.True(t, empty.IsBlank())
	assert.Equal(t, uint64(2), empty.LocaleID)
}

func TestArticleVersion_IsBlank(t *testing.T) {
	assert.False(t, testVersion().IsBlank())
	assert.True(t, (&ArticleVersion{Translations: []Translation{{LocaleID: 1, Title: "  "}}}).IsBlank())
	assert.True(t, (&ArticleVersion{}).IsBlank())
}

func TestMergeTranslations_Unchanged(t *testing.T) {
	merged, changed := MergeTranslations(testVersion(), []TranslationInput{
		{LocaleID: 1, Title: "Paying", Content: "en"},
	})
	assert.False(t, changed)
	assert.Len(t, merged, 3)
}

func TestMergeTranslations_OverlaysLocale(t *testing.T) {
	merged, changed := MergeTranslations(testVersion(), []TranslationInput{
		{LocaleID: 2, Title: "Payer en ligne", Content: "fr2"},
		{LocaleID: 4, Title: "", Content: ""},
	})
	require.True(t, changed)
	require.Len(t, merged, 3)
	assert.Equal(t, "Paying", merged[0].Title)
	assert.Equal(t, "payer-en-ligne", merged[1].Permalink)
	assert.Equal(t, "fr2", merged[1].Content)
}

func TestMergeTranslations_FromScratch(t *testing.T) {
	merged, changed := MergeTranslations(nil, []TranslationInput{{LocaleID: 1, Title: "Hello", Permalink: "custom link"}})
	assert.True(t, changed)
	require.Len(t, merged, 1)
	assert.Equal(t, "custom-link", merged[0].Permalink)
}

func TestGeneratePermalink(t *testing.T) {
	assert.Equal(t, "how-to-pay", GeneratePermalink("How to pay?"))
	assert.Equal(t, "creme-brulee-a-la-carte", GeneratePermalink("  Crème brûlée à la carte "))
	assert.Equal(t, "", GeneratePermalink("!!!"))
}

func TestClampPerPage(t *testing.T) {
	assert.Equal(t, 30, ClampPerPage(30, 20))
	assert.Equal(t, 20, ClampPerPage(25, 20))
	assert.Equal(t, 20, ClampPerPage(200, 20))
	assert.Equal(t, DefaultPerPage, ClampPerPage(0, 0))
	assert.Equal(t, 100, ClampPerPage(100, 0))
}

func TestArticle_Visibility(t *testing.T) {
	v := uint64(1)
	a := &Article{State: StatePublished, PublishedVersionID: &v}
	assert.True(t, a.Searchable())

	a.Internal = true
	assert.True(t, a.IsPublished())
	assert.False(t, a.PubliclyVisible())

	a.Internal = false
	a.State = StateArchive
	assert.False(t, a.IsPublished())
	assert.Equal(t, "Archive", a.Status())
}

func TestToParam(t *testing.T) {
	assert.Equal(t, "KB-0001-how-to-pay", ToParam("KB-0001", "how-to-pay"))
	assert.Equal(t, "KB-0001", ToParam("KB-0001", ""))
	assert.Equal(t, "articles/KB-0001-x", ArticleNodePermalink("KB-0001", "x"))
}
