package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/angple/kb-engine/pkg/elasticsearch"
)

// esClient is the subset of pkg/elasticsearch used by ESIndex
type esClient interface {
	IndexDocument(ctx context.Context, index, docID string, body interface{}, refresh string) error
	DeleteDocument(ctx context.Context, index, docID string) error
	BulkIndex(ctx context.Context, index string, docs map[string]interface{}) error
	Search(ctx context.Context, index string, query map[string]interface{}, from, size int) (*elasticsearch.SearchResponse, error)
	DeleteByQuery(ctx context.Context, index string, query map[string]interface{}) error
	CreateIndex(ctx context.Context, index string, mapping map[string]interface{}) error
}

// ESIndex is an Elasticsearch-backed Index
type ESIndex struct {
	client  esClient
	index   string
	refresh string
}

// NewESIndex creates the index if missing. Writes wait for a refresh so that
// a document is searchable when Put returns.
func NewESIndex(ctx context.Context, client esClient, index string) (*ESIndex, error) {
	if err := client.CreateIndex(ctx, index, indexMapping()); err != nil {
		return nil, fmt.Errorf("create index %s: %w", index, err)
	}
	return &ESIndex{client: client, index: index, refresh: "wait_for"}, nil
}

func indexMapping() map[string]interface{} {
	text := func(boostable bool) map[string]interface{} {
		m := map[string]interface{}{"type": "text", "analyzer": "standard"}
		if boostable {
			m["fields"] = map[string]interface{}{
				"raw": map[string]interface{}{"type": "keyword", "normalizer": "lowercase_keyword"},
			}
		}
		return m
	}
	return map[string]interface{}{
		"settings": map[string]interface{}{
			"analysis": map[string]interface{}{
				"normalizer": map[string]interface{}{
					"lowercase_keyword": map[string]interface{}{
						"type":   "custom",
						"filter": []string{"lowercase", "trim"},
					},
				},
			},
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				FieldTenantID:          map[string]interface{}{"type": "long"},
				FieldReference:         text(true),
				FieldTitle:             text(true),
				FieldPublishedTitle:    text(false),
				"permalink":            map[string]interface{}{"type": "keyword", "index": false},
				FieldContent:           text(false),
				FieldRawContent:        text(false),
				FieldState:             map[string]interface{}{"type": "keyword"},
				FieldPublished:         map[string]interface{}{"type": "boolean"},
				FieldInternal:          map[string]interface{}{"type": "boolean"},
				FieldExcludeFromSearch: map[string]interface{}{"type": "boolean"},
				FieldAuthor:            text(true),
				FieldApprover:          text(true),
				FieldRating:            map[string]interface{}{"type": "integer"},
				FieldVotes:             map[string]interface{}{"type": "integer"},
				FieldClicks:            map[string]interface{}{"type": "integer"},
				FieldTags:              map[string]interface{}{"type": "keyword"},
				FieldUpdatedAt:         map[string]interface{}{"type": "date"},
			},
		},
	}
}

func (ix *ESIndex) Put(ctx context.Context, doc Document) error {
	return ix.client.IndexDocument(ctx, ix.index, docID(doc.ID), doc, ix.refresh)
}

func (ix *ESIndex) BulkPut(ctx context.Context, docs []Document) error {
	batch := make(map[string]interface{}, len(docs))
	for _, d := range docs {
		batch[docID(d.ID)] = d
	}
	return ix.client.BulkIndex(ctx, ix.index, batch)
}

func (ix *ESIndex) Delete(ctx context.Context, id uint64) error {
	return ix.client.DeleteDocument(ctx, ix.index, docID(id))
}

func (ix *ESIndex) DeleteTenant(ctx context.Context, tenantID uint64) error {
	return ix.client.DeleteByQuery(ctx, ix.index, map[string]interface{}{
		"term": map[string]interface{}{FieldTenantID: tenantID},
	})
}

func (ix *ESIndex) Search(ctx context.Context, q *Query) (*Result, error) {
	resp, err := ix.client.Search(ctx, ix.index, compileQuery(q), q.Offset(), q.PerPage)
	if err != nil {
		return nil, err
	}
	return toResult(resp), nil
}

func (ix *ESIndex) Similar(ctx context.Context, id uint64, q *Query) (*Result, error) {
	resp, err := ix.client.Search(ctx, ix.index, compileSimilar(ix.index, id, q), q.Offset(), q.PerPage)
	if err != nil {
		return nil, err
	}
	return toResult(resp), nil
}

func docID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// esField maps a logical field onto the Elasticsearch field used for exact matching
func esField(field string) string {
	switch field {
	case FieldTitleExact:
		return FieldTitle + ".raw"
	case FieldReference:
		return FieldReference + ".raw"
	}
	return field
}

// esSortField maps a logical field onto a sortable (keyword or numeric) field
func esSortField(field string) string {
	switch field {
	case FieldTitle, FieldAuthor, FieldApprover, FieldReference:
		return field + ".raw"
	}
	return field
}

func compileQuery(q *Query) map[string]interface{} {
	boolQuery := compileFilters(q.Filters)
	if q.Keyword != "" {
		fields := q.Fields
		if len(fields) == 0 {
			fields = defaultMatchFields
		}
		boolQuery["must"] = []interface{}{
			map[string]interface{}{
				"multi_match": map[string]interface{}{
					"query":    q.Keyword,
					"fields":   fields,
					"type":     "best_fields",
					"operator": "and",
				},
			},
		}
	} else {
		boolQuery["must"] = []interface{}{map[string]interface{}{"match_all": map[string]interface{}{}}}
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
	}
	addSortAndFacets(body, q)
	return body
}

func compileSimilar(index string, id uint64, q *Query) map[string]interface{} {
	boolQuery := compileFilters(q.Filters)
	boolQuery["must"] = []interface{}{
		map[string]interface{}{
			"more_like_this": map[string]interface{}{
				"fields":          []string{FieldTitle, FieldContent, FieldTags},
				"like":            []interface{}{map[string]interface{}{"_index": index, "_id": docID(id)}},
				"min_term_freq":   1,
				"min_doc_freq":    1,
				"max_query_terms": 25,
			},
		},
	}
	mustNot, _ := boolQuery["must_not"].([]interface{})
	boolQuery["must_not"] = append(mustNot, map[string]interface{}{
		"ids": map[string]interface{}{"values": []string{docID(id)}},
	})
	body := map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
	}
	addSortAndFacets(body, q)
	return body
}

func compileFilters(filters []Filter) map[string]interface{} {
	var filter, mustNot []interface{}
	for _, f := range filters {
		field := esField(f.Field)
		value := f.Value
		if f.Field == FieldTitleExact {
			if s, ok := value.(string); ok {
				value = strings.ToLower(strings.TrimSpace(s))
			}
		}
		switch f.Op {
		case OpEq:
			filter = append(filter, map[string]interface{}{"term": map[string]interface{}{field: value}})
		case OpNe:
			mustNot = append(mustNot, map[string]interface{}{"term": map[string]interface{}{field: value}})
		case OpIn:
			filter = append(filter, map[string]interface{}{"terms": map[string]interface{}{field: toSlice(value)}})
		case OpGte, OpLte:
			filter = append(filter, map[string]interface{}{
				"range": map[string]interface{}{field: map[string]interface{}{string(f.Op): value}},
			})
		}
	}
	out := map[string]interface{}{}
	if len(filter) > 0 {
		out["filter"] = filter
	}
	if len(mustNot) > 0 {
		out["must_not"] = mustNot
	}
	return out
}

func addSortAndFacets(body map[string]interface{}, q *Query) {
	if len(q.Sort) > 0 {
		sorts := make([]interface{}, 0, len(q.Sort))
		for _, s := range q.Sort {
			if !Sortable(s.Field) {
				continue
			}
			order := "asc"
			if s.Desc {
				order = "desc"
			}
			sorts = append(sorts, map[string]interface{}{esSortField(s.Field): map[string]interface{}{"order": order}})
		}
		body["sort"] = sorts
	}
	if len(q.Facets) > 0 {
		aggs := make(map[string]interface{}, len(q.Facets))
		for _, f := range q.Facets {
			aggs[f] = map[string]interface{}{"terms": map[string]interface{}{"field": esField(f), "size": 50}}
		}
		body["aggs"] = aggs
	}
}

func toResult(resp *elasticsearch.SearchResponse) *Result {
	res := &Result{Total: resp.Total}
	for _, r := range resp.Results {
		id, err := strconv.ParseUint(r.ID, 10, 64)
		if err != nil {
			continue
		}
		res.Hits = append(res.Hits, Hit{ID: id, Score: r.Score, Document: decodeSource(id, r.Source)})
	}
	if len(resp.Aggregations) > 0 {
		res.Facets = make(map[string][]FacetCount, len(resp.Aggregations))
		for name, buckets := range resp.Aggregations {
			for _, b := range buckets {
				res.Facets[name] = append(res.Facets[name], FacetCount{Value: b.Key, Count: b.Count})
			}
		}
	}
	return res
}

func decodeSource(id uint64, src map[string]interface{}) Document {
	d := Document{ID: id}
	str := func(k string) string { s, _ := src[k].(string); return s }
	num := func(k string) float64 { n, _ := src[k].(float64); return n }
	flag := func(k string) bool { b, _ := src[k].(bool); return b }

	d.TenantID = uint64(num(FieldTenantID))
	d.Reference = str(FieldReference)
	d.Title = str(FieldTitle)
	d.PublishedTitle = str(FieldPublishedTitle)
	d.Permalink = str("permalink")
	d.Content = str(FieldContent)
	d.RawContent = str(FieldRawContent)
	d.State = str(FieldState)
	d.Published = flag(FieldPublished)
	d.Internal = flag(FieldInternal)
	d.ExcludeFromSearch = flag(FieldExcludeFromSearch)
	d.Author = str(FieldAuthor)
	d.Approver = str(FieldApprover)
	d.Rating = int(num(FieldRating))
	d.Votes = int(num(FieldVotes))
	d.Clicks = int(num(FieldClicks))
	if t, err := time.Parse(time.RFC3339Nano, str(FieldUpdatedAt)); err == nil {
		d.UpdatedAt = t
	}
	if tags, ok := src[FieldTags].([]interface{}); ok {
		for _, t := range tags {
			if s, ok := t.(string); ok {
				d.Tags = append(d.Tags, s)
			}
		}
	}
	return d
}
