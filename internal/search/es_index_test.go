package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/angple/kb-engine/pkg/elasticsearch"
)

type mockESClient struct {
	mock.Mock
}

func (m *mockESClient) IndexDocument(ctx context.Context, index, docID string, body interface{}, refresh string) error {
	return m.Called(index, docID, body, refresh).Error(0)
}

func (m *mockESClient) DeleteDocument(ctx context.Context, index, docID string) error {
	return m.Called(index, docID).Error(0)
}

func (m *mockESClient) BulkIndex(ctx context.Context, index string, docs map[string]interface{}) error {
	return m.Called(index, docs).Error(0)
}

func (m *mockESClient) Search(ctx context.Context, index string, query map[string]interface{}, from, size int) (*elasticsearch.SearchResponse, error) {
	args := m.Called(index, query, from, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*elasticsearch.SearchResponse), args.Error(1)
}

func (m *mockESClient) DeleteByQuery(ctx context.Context, index string, query map[string]interface{}) error {
	return m.Called(index, query).Error(0)
}

func (m *mockESClient) CreateIndex(ctx context.Context, index string, mapping map[string]interface{}) error {
	return m.Called(index, mapping).Error(0)
}

func TestCompileQuery_KeywordFiltersSort(t *testing.T) {
	q := NewQuery("invoice").
		Match("title^3", "content").
		Where(FieldTenantID, OpEq, uint64(7)).
		Where(FieldState, OpNe, "deleted").
		Where(FieldTitleExact, OpEq, " Foo ").
		OrderBy(FieldUpdatedAt, true).
		Facet(FieldTags)

	body := compileQuery(q)
	boolQuery := body["query"].(map[string]interface{})["bool"].(map[string]interface{})

	must := boolQuery["must"].([]interface{})
	mm := must[0].(map[string]interface{})["multi_match"].(map[string]interface{})
	assert.Equal(t, "invoice", mm["query"])
	assert.Equal(t, []string{"title^3", "content"}, mm["fields"])

	filter := boolQuery["filter"].([]interface{})
	require.Len(t, filter, 2)
	assert.Equal(t, map[string]interface{}{"term": map[string]interface{}{"tenant_id": uint64(7)}}, filter[0])
	assert.Equal(t, map[string]interface{}{"term": map[string]interface{}{"title.raw": "foo"}}, filter[1])

	mustNot := boolQuery["must_not"].([]interface{})
	assert.Equal(t, map[string]interface{}{"term": map[string]interface{}{"state": "deleted"}}, mustNot[0])

	assert.Contains(t, body, "sort")
	assert.Contains(t, body["aggs"], FieldTags)
}

func TestCompileSimilar_ExcludesSelf(t *testing.T) {
	body := compileSimilar("kb", 42, NewQuery("").Where(FieldPublished, OpEq, true))
	boolQuery := body["query"].(map[string]interface{})["bool"].(map[string]interface{})

	mlt := boolQuery["must"].([]interface{})[0].(map[string]interface{})["more_like_this"].(map[string]interface{})
	assert.Equal(t, []interface{}{map[string]interface{}{"_index": "kb", "_id": "42"}}, mlt["like"])
	assert.Len(t, boolQuery["must_not"], 1)
}

func TestESIndex_SearchDecodesHits(t *testing.T) {
	client := new(mockESClient)
	client.On("CreateIndex", "kb", mock.Anything).Return(nil)
	client.On("Search", "kb", mock.Anything, 30, 30).Return(&elasticsearch.SearchResponse{
		Total: 31,
		Results: []elasticsearch.SearchResult{
			{ID: "5", Score: 1.5, Source: map[string]interface{}{"reference": "KB-0005", "tenant_id": float64(1), "tags": []interface{}{"a"}}},
			{ID: "bogus"},
		},
		Aggregations: map[string][]elasticsearch.Bucket{"tags": {{Key: "a", Count: 3}}},
	}, nil)

	ix, err := NewESIndex(context.Background(), client, "kb")
	require.NoError(t, err)

	res, err := ix.Search(context.Background(), NewQuery("x").Paginate(2, 30))
	require.NoError(t, err)
	assert.Equal(t, int64(31), res.Total)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "KB-0005", res.Hits[0].Document.Reference)
	assert.Equal(t, []string{"a"}, res.Hits[0].Document.Tags)
	assert.Equal(t, []FacetCount{{Value: "a", Count: 3}}, res.Facets["tags"])
	client.AssertExpectations(t)
}

func TestESIndex_PutWaitsForRefresh(t *testing.T) {
	client := new(mockESClient)
	client.On("CreateIndex", "kb", mock.Anything).Return(nil)
	client.On("IndexDocument", "kb", "9", mock.Anything, "wait_for").Return(nil)

	ix, err := NewESIndex(context.Background(), client, "kb")
	require.NoError(t, err)
	require.NoError(t, ix.Put(context.Background(), Document{ID: 9}))
	client.AssertExpectations(t)
}

func TestCompileQuery_SortUsesKeywordFields(t *testing.T) {
	q := NewQuery("printer").
		OrderBy(FieldTitle, false).
		OrderBy(FieldAuthor, true).
		OrderBy(FieldContent, false)

	body := compileQuery(q)
	assert.Equal(t, []interface{}{
		map[string]interface{}{"title.raw": map[string]interface{}{"order": "asc"}},
		map[string]interface{}{"author.raw": map[string]interface{}{"order": "desc"}},
	}, body["sort"])

	props := indexMapping()["mappings"].(map[string]interface{})["properties"].(map[string]interface{})
	for _, field := range []string{FieldTitle, FieldAuthor, FieldApprover, FieldReference} {
		mapping := props[field].(map[string]interface{})
		assert.Contains(t, mapping, "fields", "%s needs a keyword subfield to sort on", field)
	}
}
