package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angple/kb-engine/internal/common"
	"github.com/angple/kb-engine/internal/domain"
	"github.com/angple/kb-engine/internal/repository"
	"github.com/angple/kb-engine/internal/search"
	pkglogger "github.com/angple/kb-engine/pkg/logger"
)

const (
	// UnassignedApprover approver display name when no approver is set
	UnassignedApprover = "Unassigned"
	// RelatedLimit number of related articles returned
	RelatedLimit = 5

	reindexBatchSize = 100
)

// Keyword fields and boosts
var (
	publicMatchFields   = []string{search.FieldPublishedTitle + "^3", search.FieldContent, search.FieldReference + "^10"}
	internalMatchFields = []string{search.FieldTitle + "^3", search.FieldRawContent, search.FieldReference + "^10"}
)

// SearchOptions optional search parameters
type SearchOptions struct {
	Tag     string `json:"tag"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
	Sort    string `json:"sort"`
	Desc    bool   `json:"desc"`
}

// SearchService projects articles into the search index and queries it
type SearchService struct {
	tenants      repository.TenantRepository
	articles     repository.ArticleRepository
	tags         repository.TagRepository
	users        repository.UserRepository
	translations *TranslationService
	index        search.Index
}

// NewSearchService creates a new SearchService
func NewSearchService(
	tenants repository.TenantRepository,
	articles repository.ArticleRepository,
	tags repository.TagRepository,
	users repository.UserRepository,
	translations *TranslationService,
	index search.Index,
) *SearchService {
	return &SearchService{
		tenants:      tenants,
		articles:     articles,
		tags:         tags,
		users:        users,
		translations: translations,
		index:        index,
	}
}

// Reindex rebuilds the document of one article from the primary store.
// A missing article removes its document.
func (s *SearchService) Reindex(ctx context.Context, tenantID, articleID uint64) error {
	article, err := s.articles.FindByID(ctx, tenantID, articleID)
	if errors.Is(err, common.ErrNotFound) {
		return s.index.Delete(ctx, articleID)
	}
	if err != nil {
		return err
	}
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return err
	}
	tags, err := s.tags.TagNames(ctx, articleID)
	if err != nil {
		return err
	}
	doc, err := s.project(ctx, newProjectionScope(tenant), article, tags)
	if err != nil {
		return err
	}
	return s.index.Put(ctx, doc)
}

// ReindexTenant re-projects every article of a tenant in batches
func (s *SearchService) ReindexTenant(ctx context.Context, tenantID uint64) (int, error) {
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	ids, err := s.articles.ListIDs(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	scope := newProjectionScope(tenant)
	indexed := 0
	for start := 0; start < len(ids); start += reindexBatchSize {
		end := start + reindexBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		articles, err := s.articles.FindByIDs(ctx, tenantID, batch)
		if err != nil {
			return indexed, err
		}
		tags, err := s.tags.TagNamesByArticles(ctx, batch)
		if err != nil {
			return indexed, err
		}
		docs := make([]search.Document, 0, len(articles))
		for _, a := range articles {
			doc, err := s.project(ctx, scope, a, tags[a.ID])
			if err != nil {
				return indexed, fmt.Errorf("project article %d: %w", a.ID, err)
			}
			docs = append(docs, doc)
		}
		if err := s.index.BulkPut(ctx, docs); err != nil {
			return indexed, err
		}
		indexed += len(docs)
	}

	pkglogger.WithTenant(tenantID).Info().Int("count", indexed).Msg("tenant reindexed")
	return indexed, nil
}

func newProjectionScope(tenant *domain.Tenant) *Scope {
	var localeID uint64
	if tenant.DefaultLocaleID != nil {
		localeID = *tenant.DefaultLocaleID
	}
	return NewScope(localeID, localeID)
}

// project builds the document from the default-locale translations
func (s *SearchService) project(ctx context.Context, scope *Scope, a *domain.Article, tags []string) (search.Document, error) {
	draft, err := s.translations.Draft(ctx, scope, a, 0)
	if err != nil {
		return search.Document{}, err
	}
	published, err := s.translations.Published(ctx, scope, a, 0)
	if err != nil {
		return search.Document{}, err
	}

	permalink := draft.Permalink
	if a.PublishedVersionID != nil {
		permalink = published.Permalink
	}

	doc := search.Document{
		ID:                a.ID,
		TenantID:          a.TenantID,
		Reference:         a.Reference,
		Title:             draft.Title,
		PublishedTitle:    published.Title,
		Permalink:         permalink,
		Content:           published.Content,
		RawContent:        draft.Content,
		State:             string(a.State),
		Published:         a.PublishedVersionID != nil,
		Internal:          a.Internal,
		ExcludeFromSearch: a.ExcludeFromSearch,
		Author:            s.userName(ctx, a.TenantID, a.AuthorID),
		Approver:          s.userName(ctx, a.TenantID, a.ApproverID),
		Votes:             a.FeedbacksCount,
		Clicks:            a.Clicks,
		Tags:              tags,
		UpdatedAt:         a.UpdatedAt,
	}
	if doc.Approver == "" {
		doc.Approver = UnassignedApprover
	}
	if a.Rating != nil {
		doc.Rating = *a.Rating
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	return doc, nil
}

func (s *SearchService) userName(ctx context.Context, tenantID uint64, id *uint64) string {
	if id == nil || s.users == nil {
		return ""
	}
	user, err := s.users.FindByID(ctx, tenantID, *id)
	if err != nil {
		return ""
	}
	return user.Name()
}

// PublicSearch searches published, public, searchable articles of a tenant
func (s *SearchService) PublicSearch(ctx context.Context, tenantID uint64, keyword string, opts SearchOptions) (*search.Result, error) {
	q := search.NewQuery(keyword).
		Match(publicMatchFields...).
		Where(search.FieldTenantID, search.OpEq, tenantID).
		Where(search.FieldPublished, search.OpEq, true).
		Where(search.FieldState, search.OpEq, string(domain.StatePublished)).
		Where(search.FieldExcludeFromSearch, search.OpEq, false).
		Where(search.FieldInternal, search.OpEq, false).
		Facet(search.FieldTags)
	return s.index.Search(ctx, applyOptions(q, opts))
}

// InternalSearch searches every non-deleted article of a tenant, drafts included
func (s *SearchService) InternalSearch(ctx context.Context, tenantID uint64, keyword string, opts SearchOptions) (*search.Result, error) {
	q := search.NewQuery(keyword).
		Match(internalMatchFields...).
		Where(search.FieldTenantID, search.OpEq, tenantID).
		Where(search.FieldState, search.OpNe, string(domain.StateDeleted)).
		Facet(search.FieldTags, search.FieldState)
	return s.index.Search(ctx, applyOptions(q, opts))
}

func applyOptions(q *search.Query, opts SearchOptions) *search.Query {
	if opts.Tag != "" {
		q.Where(search.FieldTags, search.OpEq, opts.Tag)
	}
	if search.Sortable(opts.Sort) {
		q.OrderBy(opts.Sort, opts.Desc)
	}
	return q.Paginate(opts.Page, opts.PerPage)
}

// TitleExists reports whether an indexed article of the tenant has this exact
// title (case-insensitive). Reads the index, so it lags behind pending jobs.
func (s *SearchService) TitleExists(ctx context.Context, tenantID uint64, title string, excludeID uint64) (bool, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return false, nil
	}
	q := search.NewQuery("").
		Where(search.FieldTenantID, search.OpEq, tenantID).
		Where(search.FieldTitleExact, search.OpEq, title).
		Where(search.FieldState, search.OpNe, string(domain.StateDeleted)).
		Paginate(1, 2)
	res, err := s.index.Search(ctx, q)
	if err != nil {
		return false, err
	}
	for _, id := range res.IDs() {
		if id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

// Related ranks other published public articles of the tenant by similarity
func (s *SearchService) Related(ctx context.Context, article *domain.Article) (*search.Result, error) {
	q := search.NewQuery("").
		Where(search.FieldTenantID, search.OpEq, article.TenantID).
		Where(search.FieldPublished, search.OpEq, true).
		Where(search.FieldState, search.OpEq, string(domain.StatePublished)).
		Where(search.FieldInternal, search.OpEq, false).
		Facet(search.FieldTags).
		Paginate(1, RelatedLimit)
	return s.index.Similar(ctx, article.ID, q)
}
