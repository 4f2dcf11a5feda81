package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	lowerKeyword = "lowercase_keyword"
	// stored JSON of the whole Document, not indexed
	sourceField = "source"
	// numeric copy of the document id, last sort key
	idField = "id"

	deleteBatchSize = 500
	facetSize       = 50
)

// fields matched as one lowercased token
var loweredFields = map[string]bool{FieldTitleExact: true, FieldReference: true}

// MemoryIndex is an Index backed by an in-process bleve index, used when
// Elasticsearch is disabled and in tests
type MemoryIndex struct {
	index bleve.Index
}

// NewMemoryIndex creates an empty MemoryIndex
func NewMemoryIndex() (*MemoryIndex, error) {
	im, err := memoryMapping()
	if err != nil {
		return nil, err
	}
	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("open memory index: %w", err)
	}
	return &MemoryIndex{index: index}, nil
}

func memoryMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(lowerKeyword, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, err
	}

	field := func(fm *mapping.FieldMapping, name, analyzer string) *mapping.FieldMapping {
		fm.Name = name
		if analyzer != "" {
			fm.Analyzer = analyzer
		}
		fm.Store = false
		fm.IncludeInAll = false
		return fm
	}
	text := func(analyzer string) *mapping.FieldMapping {
		return field(bleve.NewTextFieldMapping(), "", analyzer)
	}
	sortKey := func(name string) *mapping.FieldMapping {
		return field(bleve.NewTextFieldMapping(), name, lowerKeyword)
	}
	numeric := func() *mapping.FieldMapping { return field(bleve.NewNumericFieldMapping(), "", "") }
	boolean := func() *mapping.FieldMapping { return field(bleve.NewBooleanFieldMapping(), "", "") }
	keyword := func() *mapping.FieldMapping { return field(bleve.NewKeywordFieldMapping(), "", "") }

	source := bleve.NewTextFieldMapping()
	source.Index = false
	source.Store = true
	source.IncludeInAll = false
	source.IncludeTermVectors = false
	source.DocValues = false

	doc := bleve.NewDocumentStaticMapping()
	doc.AddFieldMappingsAt(idField, numeric())
	doc.AddFieldMappingsAt(FieldTenantID, numeric())
	doc.AddFieldMappingsAt(FieldReference, text(lowerKeyword))
	doc.AddFieldMappingsAt(FieldTitle, text(en.AnalyzerName), sortKey(sortName(FieldTitle)))
	doc.AddFieldMappingsAt(FieldTitleExact, text(lowerKeyword))
	doc.AddFieldMappingsAt(FieldPublishedTitle, text(en.AnalyzerName))
	doc.AddFieldMappingsAt(FieldContent, text(en.AnalyzerName))
	doc.AddFieldMappingsAt(FieldRawContent, text(en.AnalyzerName))
	doc.AddFieldMappingsAt(FieldState, keyword())
	doc.AddFieldMappingsAt(FieldPublished, boolean())
	doc.AddFieldMappingsAt(FieldInternal, boolean())
	doc.AddFieldMappingsAt(FieldExcludeFromSearch, boolean())
	doc.AddFieldMappingsAt(FieldAuthor, text(standard.Name), sortKey(sortName(FieldAuthor)))
	doc.AddFieldMappingsAt(FieldApprover, text(standard.Name), sortKey(sortName(FieldApprover)))
	doc.AddFieldMappingsAt(FieldRating, numeric())
	doc.AddFieldMappingsAt(FieldVotes, numeric())
	doc.AddFieldMappingsAt(FieldClicks, numeric())
	doc.AddFieldMappingsAt(FieldTags, keyword())
	doc.AddFieldMappingsAt(FieldUpdatedAt, field(bleve.NewDateTimeFieldMapping(), "", ""))
	doc.AddFieldMappingsAt(sourceField, source)

	im.DefaultMapping = doc
	im.StoreDynamic = false
	im.IndexDynamic = false
	im.DocValuesDynamic = false
	return im, nil
}

// sortName is the keyword copy a text field is sorted on
func sortName(field string) string {
	switch field {
	case FieldTitle, FieldAuthor, FieldApprover:
		return field + "_raw"
	}
	return field
}

func indexable(d Document) (map[string]interface{}, error) {
	src, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	fields := map[string]interface{}{
		idField:                float64(d.ID),
		FieldTenantID:          float64(d.TenantID),
		FieldReference:         d.Reference,
		FieldTitle:             d.Title,
		FieldTitleExact:        strings.TrimSpace(d.Title),
		FieldPublishedTitle:    d.PublishedTitle,
		FieldContent:           d.Content,
		FieldRawContent:        d.RawContent,
		FieldState:             d.State,
		FieldPublished:         d.Published,
		FieldInternal:          d.Internal,
		FieldExcludeFromSearch: d.ExcludeFromSearch,
		FieldAuthor:            d.Author,
		FieldApprover:          d.Approver,
		FieldRating:            float64(d.Rating),
		FieldVotes:             float64(d.Votes),
		FieldClicks:            float64(d.Clicks),
		FieldTags:              d.Tags,
		sourceField:            string(src),
	}
	if !d.UpdatedAt.IsZero() {
		fields[FieldUpdatedAt] = d.UpdatedAt
	}
	return fields, nil
}

func (m *MemoryIndex) Put(_ context.Context, doc Document) error {
	fields, err := indexable(doc)
	if err != nil {
		return err
	}
	return m.index.Index(docID(doc.ID), fields)
}

func (m *MemoryIndex) BulkPut(_ context.Context, docs []Document) error {
	batch := m.index.NewBatch()
	for _, d := range docs {
		fields, err := indexable(d)
		if err != nil {
			return err
		}
		if err := batch.Index(docID(d.ID), fields); err != nil {
			return err
		}
	}
	return m.index.Batch(batch)
}

func (m *MemoryIndex) Delete(_ context.Context, id uint64) error {
	return m.index.Delete(docID(id))
}

func (m *MemoryIndex) DeleteTenant(ctx context.Context, tenantID uint64) error {
	tenant := filterQuery(Filter{Field: FieldTenantID, Op: OpEq, Value: tenantID})
	for {
		res, err := m.index.SearchInContext(ctx, bleve.NewSearchRequestOptions(tenant, deleteBatchSize, 0, false))
		if err != nil {
			return err
		}
		if len(res.Hits) == 0 {
			return nil
		}
		batch := m.index.NewBatch()
		for _, h := range res.Hits {
			batch.Delete(h.ID)
		}
		if err := m.index.Batch(batch); err != nil {
			return err
		}
	}
}

// Get returns the stored document
func (m *MemoryIndex) Get(id uint64) (Document, bool) {
	req := bleve.NewSearchRequestOptions(query.NewDocIDQuery([]string{docID(id)}), 1, 0, false)
	req.Fields = []string{sourceField}
	res, err := m.index.Search(req)
	if err != nil || len(res.Hits) == 0 {
		return Document{}, false
	}
	doc, err := decodeHit(res.Hits[0].Fields)
	if err != nil {
		return Document{}, false
	}
	return doc, true
}

// Len number of stored documents
func (m *MemoryIndex) Len() int {
	n, err := m.index.DocCount()
	if err != nil {
		return 0
	}
	return int(n)
}

// Close releases the bleve index
func (m *MemoryIndex) Close() error {
	return m.index.Close()
}

func (m *MemoryIndex) Search(ctx context.Context, q *Query) (*Result, error) {
	return m.run(ctx, q, keywordQuery(q.Keyword, q.Fields))
}

// Similar has no more-like-this in bleve; the source document's title and
// content terms plus its tags are OR-ed together instead
func (m *MemoryIndex) Similar(ctx context.Context, id uint64, q *Query) (*Result, error) {
	like, ok := m.Get(id)
	if !ok {
		return &Result{}, nil
	}

	var alts []query.Query
	if text := strings.TrimSpace(like.Title + " " + like.Content); text != "" {
		for _, f := range []string{FieldTitle, FieldContent} {
			mq := query.NewMatchQuery(text)
			mq.SetField(f)
			alts = append(alts, mq)
		}
	}
	for _, tag := range like.Tags {
		tq := query.NewTermQuery(tag)
		tq.SetField(FieldTags)
		tq.SetBoost(2)
		alts = append(alts, tq)
	}
	if len(alts) == 0 {
		return &Result{}, nil
	}
	return m.run(ctx, q, query.NewDisjunctionQuery(alts), query.NewDocIDQuery([]string{docID(id)}))
}

func (m *MemoryIndex) run(ctx context.Context, q *Query, match query.Query, exclude ...query.Query) (*Result, error) {
	must := []query.Query{match}
	mustNot := append([]query.Query(nil), exclude...)
	for _, f := range q.Filters {
		if f.Op == OpNe {
			mustNot = append(mustNot, filterQuery(Filter{Field: f.Field, Op: OpEq, Value: f.Value}))
			continue
		}
		must = append(must, filterQuery(f))
	}

	req := bleve.NewSearchRequestOptions(query.NewBooleanQuery(must, nil, mustNot), q.PerPage, q.Offset(), false)
	req.Fields = []string{sourceField}
	req.SortBy(sortOrder(q.Sort))
	for _, f := range q.Facets {
		req.AddFacet(f, bleve.NewFacetRequest(f, facetSize))
	}

	res, err := m.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &Result{Total: int64(res.Total)}
	for _, h := range res.Hits {
		id, err := strconv.ParseUint(h.ID, 10, 64)
		if err != nil {
			continue
		}
		doc, err := decodeHit(h.Fields)
		if err != nil {
			return nil, fmt.Errorf("decode document %s: %w", h.ID, err)
		}
		out.Hits = append(out.Hits, Hit{ID: id, Score: h.Score, Document: doc})
	}
	if len(res.Facets) > 0 {
		out.Facets = make(map[string][]FacetCount, len(res.Facets))
		for name, fr := range res.Facets {
			counts := make([]FacetCount, 0)
			for _, tf := range fr.Terms.Terms() {
				counts = append(counts, FacetCount{Value: tf.Term, Count: int64(tf.Count)})
			}
			sort.SliceStable(counts, func(i, j int) bool {
				if counts[i].Count != counts[j].Count {
					return counts[i].Count > counts[j].Count
				}
				return counts[i].Value < counts[j].Value
			})
			out.Facets[name] = counts
		}
	}
	return out, nil
}

func decodeHit(fields map[string]interface{}) (Document, error) {
	var doc Document
	src, _ := fields[sourceField].(string)
	if src == "" {
		return doc, fmt.Errorf("missing %s field", sourceField)
	}
	err := json.Unmarshal([]byte(src), &doc)
	return doc, err
}

// keywordQuery requires every keyword term in at least one field
func keywordQuery(keyword string, fields []string) query.Query {
	if keyword == "" {
		return query.NewMatchAllQuery()
	}
	if len(fields) == 0 {
		fields = defaultMatchFields
	}
	alts := make([]query.Query, 0, len(fields))
	for _, f := range fields {
		name, boost := splitBoost(f)
		mq := query.NewMatchQuery(keyword)
		mq.SetField(name)
		mq.SetOperator(query.MatchQueryOperatorAnd)
		mq.SetBoost(boost)
		alts = append(alts, mq)
	}
	return query.NewDisjunctionQuery(alts)
}

func filterQuery(f Filter) query.Query {
	incl := true
	switch f.Op {
	case OpEq:
		return valueQuery(f.Field, f.Value)
	case OpIn:
		values := toSlice(f.Value)
		if len(values) == 0 {
			return query.NewMatchNoneQuery()
		}
		alts := make([]query.Query, 0, len(values))
		for _, v := range values {
			alts = append(alts, valueQuery(f.Field, v))
		}
		return query.NewDisjunctionQuery(alts)
	case OpGte, OpLte:
		if t, ok := f.Value.(time.Time); ok {
			var dq *query.DateRangeQuery
			if f.Op == OpGte {
				dq = query.NewDateRangeInclusiveQuery(t, time.Time{}, &incl, nil)
			} else {
				dq = query.NewDateRangeInclusiveQuery(time.Time{}, t, nil, &incl)
			}
			dq.SetField(f.Field)
			return dq
		}
		n, ok := toFloat(f.Value)
		if !ok {
			return query.NewMatchNoneQuery()
		}
		var nq *query.NumericRangeQuery
		if f.Op == OpGte {
			nq = query.NewNumericRangeInclusiveQuery(&n, nil, &incl, nil)
		} else {
			nq = query.NewNumericRangeInclusiveQuery(nil, &n, nil, &incl)
		}
		nq.SetField(f.Field)
		return nq
	}
	return query.NewMatchNoneQuery()
}

func valueQuery(field string, v interface{}) query.Query {
	incl := true
	switch x := v.(type) {
	case string:
		if loweredFields[field] {
			x = strings.ToLower(strings.TrimSpace(x))
		}
		tq := query.NewTermQuery(x)
		tq.SetField(field)
		return tq
	case bool:
		bq := query.NewBoolFieldQuery(x)
		bq.SetField(field)
		return bq
	case time.Time:
		dq := query.NewDateRangeInclusiveQuery(x, x, &incl, &incl)
		dq.SetField(field)
		return dq
	}
	n, ok := toFloat(v)
	if !ok {
		return query.NewMatchNoneQuery()
	}
	nq := query.NewNumericRangeInclusiveQuery(&n, &n, &incl, &incl)
	nq.SetField(field)
	return nq
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// sortOrder renders sort keys in bleve's "-field" form, score first by default
func sortOrder(keys []SortField) []string {
	order := make([]string, 0, len(keys)+2)
	if len(keys) == 0 {
		order = append(order, "-"+FieldScore)
	}
	for _, k := range keys {
		if !Sortable(k.Field) {
			continue
		}
		name := sortName(k.Field)
		if k.Desc {
			name = "-" + name
		}
		order = append(order, name)
	}
	return append(order, idField)
}
