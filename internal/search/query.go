package search

import (
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Logical document fields understood by every Index implementation
const (
	FieldTenantID          = "tenant_id"
	FieldReference         = "reference"
	FieldTitle             = "title"
	FieldTitleExact        = "title_exact"
	FieldPublishedTitle    = "published_title"
	FieldContent           = "content"
	FieldRawContent        = "raw_content"
	FieldState             = "state"
	FieldPublished         = "published"
	FieldInternal          = "internal"
	FieldExcludeFromSearch = "exclude_from_search"
	FieldAuthor            = "author"
	FieldApprover          = "approver"
	FieldRating            = "rating"
	FieldVotes             = "votes"
	FieldClicks            = "clicks"
	FieldTags              = "tags"
	FieldUpdatedAt         = "updated_at"
	FieldScore             = "_score"
)

// DefaultPerPage search page size
const DefaultPerPage = 30

var defaultMatchFields = []string{FieldTitle, FieldContent, FieldReference}

var sortableFields = map[string]bool{
	FieldScore:     true,
	FieldReference: true,
	FieldTitle:     true,
	FieldState:     true,
	FieldAuthor:    true,
	FieldApprover:  true,
	FieldRating:    true,
	FieldVotes:     true,
	FieldClicks:    true,
	FieldUpdatedAt: true,
}

// Sortable reports whether results can be ordered by field
func Sortable(field string) bool {
	return sortableFields[field]
}

// Document is the denormalized search projection of one article. Title is the
// latest (draft) title, PublishedTitle the one readers see.
type Document struct {
	ID                uint64    `json:"id"`
	TenantID          uint64    `json:"tenant_id"`
	Reference         string    `json:"reference"`
	Title             string    `json:"title"`
	PublishedTitle    string    `json:"published_title"`
	Permalink         string    `json:"permalink"`
	Content           string    `json:"content"`
	RawContent        string    `json:"raw_content"`
	State             string    `json:"state"`
	Published         bool      `json:"published"`
	Internal          bool      `json:"internal"`
	ExcludeFromSearch bool      `json:"exclude_from_search"`
	Author            string    `json:"author"`
	Approver          string    `json:"approver"`
	Rating            int       `json:"rating"`
	Votes             int       `json:"votes"`
	Clicks            int       `json:"clicks"`
	Tags              []string  `json:"tags"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Op is a filter comparison operator
type Op string

const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpIn  Op = "in"
	OpGte Op = "gte"
	OpLte Op = "lte"
)

// Filter is a hard (non-scoring) condition
type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

// SortField orders results
type SortField struct {
	Field string
	Desc  bool
}

// Query is a typed search request. Build with NewQuery.
type Query struct {
	Keyword string
	// Fields to match the keyword against, "field^boost" raises a field's weight
	Fields  []string
	Filters []Filter
	Facets  []string
	Page    int
	PerPage int
	Sort    []SortField
}

// NewQuery starts a query for keyword (may be empty to match everything)
func NewQuery(keyword string) *Query {
	return &Query{Keyword: strings.TrimSpace(keyword), Page: 1, PerPage: DefaultPerPage}
}

// Match sets the fields the keyword is matched against
func (q *Query) Match(fields ...string) *Query {
	q.Fields = append(q.Fields[:0], fields...)
	return q
}

// Where adds a filter
func (q *Query) Where(field string, op Op, value interface{}) *Query {
	q.Filters = append(q.Filters, Filter{Field: field, Op: op, Value: value})
	return q
}

// Facet requests value counts for fields
func (q *Query) Facet(fields ...string) *Query {
	q.Facets = append(q.Facets, fields...)
	return q
}

// Paginate sets the 1-based page and page size
func (q *Query) Paginate(page, perPage int) *Query {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	q.Page, q.PerPage = page, perPage
	return q
}

// OrderBy appends a sort key; fields that are not Sortable are ignored
func (q *Query) OrderBy(field string, desc bool) *Query {
	if Sortable(field) {
		q.Sort = append(q.Sort, SortField{Field: field, Desc: desc})
	}
	return q
}

// Offset of the first hit of the page
func (q *Query) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.PerPage
}

// splitBoost parses "title^3" into ("title", 3)
func splitBoost(field string) (string, float64) {
	name, boost, ok := strings.Cut(field, "^")
	if !ok {
		return field, 1
	}
	b, err := strconv.ParseFloat(boost, 64)
	if err != nil || b <= 0 {
		return name, 1
	}
	return name, b
}

// toSlice spreads a slice filter value, a scalar becomes a one-element list
func toSlice(v interface{}) []interface{} {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return []interface{}{v}
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// Hit is one matched document
type Hit struct {
	ID       uint64   `json:"id"`
	Score    float64  `json:"score"`
	Document Document `json:"document"`
}

// FacetCount number of hits carrying a value
type FacetCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// Result page of hits plus facet counts
type Result struct {
	Total  int64                   `json:"total"`
	Hits   []Hit                   `json:"hits"`
	Facets map[string][]FacetCount `json:"facets,omitempty"`
}

// IDs of the hits in order
func (r *Result) IDs() []uint64 {
	ids := make([]uint64, len(r.Hits))
	for i, h := range r.Hits {
		ids[i] = h.ID
	}
	return ids
}
