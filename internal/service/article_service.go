package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/angple/kb-engine/internal/common"
	"github.com/angple/kb-engine/internal/domain"
	"github.com/angple/kb-engine/internal/metrics"
	"github.com/angple/kb-engine/internal/repository"
	"github.com/angple/kb-engine/internal/search"
	pkglogger "github.com/angple/kb-engine/pkg/logger"
)

// Listing limits
const (
	RecentlyEditedLimit = 10
	MostViewedLimit     = 10
)

// errReferenceTaken an allocated reference collided on insert; the attempt is retried
var errReferenceTaken = errors.New("reference taken")

// ReferenceConfig bounds retries of reference allocation collisions
type ReferenceConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// Reindexer queues re-index jobs
type Reindexer interface {
	Enqueue(tenantID, articleID uint64) *Ticket
}

// TitleCheck result of ValidateTitle
type TitleCheck struct {
	Permalink string `json:"permalink"`
	Duplicate bool   `json:"duplicate"`
}

// ArticleService handles the article write and read paths
type ArticleService struct {
	tx           repository.TxManager
	tenants      repository.TenantRepository
	articles     repository.ArticleRepository
	versions     repository.VersionRepository
	locales      repository.LocaleRepository
	tags         repository.TagRepository
	feedbacks    repository.FeedbackRepository
	categories   *CategoryService
	translations *TranslationService
	search       *SearchService
	indexer      Reindexer
	notifier     Notifier
	refCfg       ReferenceConfig
}

// NewArticleService creates a new ArticleService. indexer and notifier may be nil.
func NewArticleService(
	tx repository.TxManager,
	tenants repository.TenantRepository,
	articles repository.ArticleRepository,
	versions repository.VersionRepository,
	locales repository.LocaleRepository,
	tags repository.TagRepository,
	feedbacks repository.FeedbackRepository,
	categories *CategoryService,
	translations *TranslationService,
	searchSvc *SearchService,
	indexer Reindexer,
	notifier Notifier,
	refCfg ReferenceConfig,
) *ArticleService {
	return &ArticleService{
		tx:           tx,
		tenants:      tenants,
		articles:     articles,
		versions:     versions,
		locales:      locales,
		tags:         tags,
		feedbacks:    feedbacks,
		categories:   categories,
		translations: translations,
		search:       searchSvc,
		indexer:      indexer,
		notifier:     notifier,
		refCfg:       refCfg,
	}
}

// ============================================
// Write path
// ============================================

// Create persists a new article with its first version. A generated reference
// is only consumed when the whole write commits.
func (s *ArticleService) Create(ctx context.Context, tenantID uint64, actor domain.Actor, req *domain.CreateArticleRequest) (*domain.Article, error) {
	req.Reference = strings.TrimSpace(req.Reference)
	if err := domain.Validate(req); err != nil {
		return nil, err
	}

	translations := make([]domain.Translation, 0, len(req.Translations))
	for _, in := range req.Translations {
		if t := domain.BuildTranslation(in); !t.IsBlank() {
			translations = append(translations, t)
		}
	}
	if len(translations) == 0 {
		return nil, common.NewValidationError("content", "can't be blank")
	}

	state := req.State
	if state == "" {
		state = domain.StateDraft
	}
	if state == domain.StatePublished && !actor.IsApprover {
		state = domain.StateUnapproved
	}

	var (
		article *domain.Article
		notice  *AssignmentNotice
		err     error
	)
	for attempt := 0; ; attempt++ {
		article, notice, err = s.create(ctx, tenantID, actor, req, state, translations)
		if !errors.Is(err, errReferenceTaken) {
			break
		}
		if attempt >= s.refCfg.MaxRetries {
			return nil, &common.ConflictError{
				Message:  "could not allocate an article reference",
				Resource: "article",
				Key:      fmt.Sprint(tenantID),
			}
		}
		metrics.ReferenceRetries.Inc()
		pkglogger.WithTenant(tenantID).Warn().Int("attempt", attempt+1).Msg("article reference collision, retrying")
		if err := sleepCtx(ctx, s.refCfg.RetryBackoff*time.Duration(attempt+1)); err != nil {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}

	pkglogger.WithArticle(tenantID, article.ID).Info().Str("reference", article.Reference).Msg("article created")
	s.afterWrite(article, notice)
	return article, nil
}

func (s *ArticleService) create(
	ctx context.Context,
	tenantID uint64,
	actor domain.Actor,
	req *domain.CreateArticleRequest,
	state domain.ArticleState,
	translations []domain.Translation,
) (*domain.Article, *AssignmentNotice, error) {
	var (
		article *domain.Article
		notice  *AssignmentNotice
	)
	err := s.tx.ExecTx(ctx, func(ctx context.Context) error {
		// serializes reference allocation per tenant
		tenant, err := s.tenants.LockByID(ctx, tenantID)
		if err != nil {
			return err
		}
		if err := s.checkLocales(ctx, tenantID, translations); err != nil {
			return err
		}

		article = domain.NewArticle(tenantID)
		article.State = state
		if req.AllowComments != nil {
			article.AllowComments = *req.AllowComments
		}
		article.Internal = req.Internal
		article.ExcludeFromSearch = req.ExcludeFromSearch
		article.ExcludeFromFAQ = req.ExcludeFromFAQ
		article.Priority = req.Priority
		if actor.IsContributor && actor.UserID != 0 {
			article.AuthorID = uint64Ptr(actor.UserID)
		}
		if req.AssignedToID != nil {
			notice = assign(article, *req.AssignedToID, actor.UserID, time.Now())
		}

		custom := req.Reference != ""
		if custom {
			if err := s.checkReference(ctx, tenant, req.Reference, 0); err != nil {
				return err
			}
			article.Reference = req.Reference
		} else {
			ref, err := s.allocateReference(ctx, tenant)
			if err != nil {
				return err
			}
			article.Reference = ref
		}

		if err := s.articles.Create(ctx, article); err != nil {
			if repository.IsDuplicate(err) {
				if custom {
					return common.NewValidationError("reference", "has already been taken")
				}
				return errReferenceTaken
			}
			return fmt.Errorf("create article: %w", err)
		}

		version, err := s.versions.Create(ctx, article.ID, translations)
		if err != nil {
			return fmt.Errorf("create version: %w", err)
		}
		article.LatestVersionID = &version.ID
		if article.State == domain.StatePublished {
			article.PublishedVersionID = &version.ID
		}
		if err := s.articles.Save(ctx, article); err != nil {
			return err
		}

		if n, ok := tenant.ReferenceNumber(article.Reference); ok && n >= tenant.NextReferenceID {
			if err := s.tenants.UpdateNextReference(ctx, tenant.ID, n+1); err != nil {
				return err
			}
		}

		if len(req.Tags) > 0 {
			if err := s.tags.ReplaceTags(ctx, article, req.Tags); err != nil {
				return err
			}
		}
		if len(req.SubjectIDs) > 0 {
			meta := articleNodeMeta(tenant, article, version)
			if err := s.categories.AttachArticle(ctx, article, req.SubjectIDs, meta); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return article, notice, nil
}

// allocateReference skips forward past references that are already taken,
// for example by a custom reference that looks like a generated one
func (s *ArticleService) allocateReference(ctx context.Context, tenant *domain.Tenant) (string, error) {
	n := tenant.NextReferenceID
	if n < 1 {
		n = 1
	}
	for {
		ref := tenant.FormatReference(n)
		exists, err := s.articles.ReferenceExists(ctx, tenant.ID, ref, 0)
		if err != nil {
			return "", err
		}
		if !exists {
			return ref, nil
		}
		n++
	}
}

func (s *ArticleService) checkReference(ctx context.Context, tenant *domain.Tenant, ref string, excludeID uint64) error {
	if !tenant.ValidReference(ref) {
		return common.NewValidationError("reference", "can only contain letters, digits, underscores and dots")
	}
	exists, err := s.articles.ReferenceExists(ctx, tenant.ID, ref, excludeID)
	if err != nil {
		return err
	}
	if exists {
		return common.NewValidationError("reference", "has already been taken")
	}
	return nil
}

func (s *ArticleService) checkLocales(ctx context.Context, tenantID uint64, translations []domain.Translation) error {
	for _, t := range translations {
		if _, err := s.locales.FindByID(ctx, tenantID, t.LocaleID); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.NewValidationError("translations", fmt.Sprintf("unknown locale %d", t.LocaleID))
			}
			return err
		}
	}
	return nil
}

// Update applies a sparse patch. Actors without contributor capability may
// only change the state, and actors without approver capability always
// leave the article unapproved.
func (s *ArticleService) Update(ctx context.Context, tenantID, articleID uint64, actor domain.Actor, patch domain.ArticlePatch) (*domain.Article, error) {
	if !actor.IsContributor {
		patch = patch.StateOnly()
	}
	if !actor.IsApprover {
		unapproved := domain.StateUnapproved
		patch.State = &unapproved
	}
	if patch.Reference != nil {
		ref := strings.TrimSpace(*patch.Reference)
		patch.Reference = &ref
	}
	if err := domain.Validate(&patch); err != nil {
		return nil, err
	}

	var (
		article *domain.Article
		notice  *AssignmentNotice
	)
	err := s.tx.ExecTx(ctx, func(ctx context.Context) error {
		tenant, err := s.tenants.FindByID(ctx, tenantID)
		if err != nil {
			return err
		}
		article, err = s.articles.FindByID(ctx, tenantID, articleID)
		if err != nil {
			return err
		}
		wasPublished := article.State == domain.StatePublished

		if patch.Reference != nil && *patch.Reference != article.Reference {
			if err := s.checkReference(ctx, tenant, *patch.Reference, article.ID); err != nil {
				return err
			}
			article.Reference = *patch.Reference
		}
		applyFlags(article, &patch)
		if patch.ApproverID != nil {
			article.ApproverID = optionalID(*patch.ApproverID)
		}
		notice = applyAssignment(article, &patch, actor.UserID, time.Now())

		latest, err := s.versions.Latest(ctx, article.ID)
		if err != nil {
			return err
		}
		if len(patch.Translations) > 0 {
			if latest, err = s.appendVersion(ctx, tenantID, article, latest, patch.Translations); err != nil {
				return err
			}
		}

		if patch.State != nil {
			article.State = *patch.State
		}
		switch {
		case article.State == domain.StatePublished && latest != nil:
			article.PublishedVersionID = &latest.ID
		case wasPublished && article.State != domain.StatePublished && patch.ClearPublished:
			article.PublishedVersionID = nil
		}
		if actor.IsContributor && actor.UserID != 0 {
			article.AuthorID = uint64Ptr(actor.UserID)
		}

		if err := s.articles.Save(ctx, article); err != nil {
			if repository.IsDuplicate(err) {
				return common.NewValidationError("reference", "has already been taken")
			}
			return fmt.Errorf("save article: %w", err)
		}
		if err := s.bumpNextReference(ctx, tenant, article.Reference); err != nil {
			return err
		}

		if patch.Tags != nil {
			if err := s.tags.ReplaceTags(ctx, article, patch.Tags); err != nil {
				return err
			}
		}
		meta := articleNodeMeta(tenant, article, latest)
		if patch.SubjectIDs != nil {
			return s.categories.AttachArticle(ctx, article, patch.SubjectIDs, meta)
		}
		return s.categories.SyncArticle(ctx, article, meta)
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(article, notice)
	return article, nil
}

// bumpNextReference moves the tenant counter past a custom reference that
// matches its format. The comparison uses the locked row, never a stale read.
func (s *ArticleService) bumpNextReference(ctx context.Context, tenant *domain.Tenant, ref string) error {
	n, ok := tenant.ReferenceNumber(ref)
	if !ok || n < tenant.NextReferenceID {
		return nil
	}
	locked, err := s.tenants.LockByID(ctx, tenant.ID)
	if err != nil {
		return err
	}
	if n < locked.NextReferenceID {
		return nil
	}
	return s.tenants.UpdateNextReference(ctx, locked.ID, n+1)
}

// appendVersion writes a new version when the merged translations differ from
// latest. A merge that leaves every locale blank is dropped; it is an error only
// when the article has no version to fall back on.
func (s *ArticleService) appendVersion(ctx context.Context, tenantID uint64, article *domain.Article, latest *domain.ArticleVersion, inputs []domain.TranslationInput) (*domain.ArticleVersion, error) {
	merged, changed := domain.MergeTranslations(latest, inputs)
	if !changed {
		return latest, nil
	}
	candidate := &domain.ArticleVersion{Translations: merged}
	if candidate.IsBlank() {
		if latest == nil {
			return nil, common.NewValidationError("content", "can't be blank")
		}
		pkglogger.WithArticle(tenantID, article.ID).Debug().Msg("blank version purged")
		return latest, nil
	}
	if err := s.checkLocales(ctx, tenantID, merged); err != nil {
		return nil, err
	}

	version, err := s.versions.Create(ctx, article.ID, merged)
	if err != nil {
		return nil, fmt.Errorf("create version: %w", err)
	}
	article.LatestVersionID = &version.ID
	return version, nil
}

func applyFlags(a *domain.Article, p *domain.ArticlePatch) {
	if p.AllowComments != nil {
		a.AllowComments = *p.AllowComments
	}
	if p.Internal != nil {
		a.Internal = *p.Internal
	}
	if p.ExcludeFromSearch != nil {
		a.ExcludeFromSearch = *p.ExcludeFromSearch
	}
	if p.ExcludeFromFAQ != nil {
		a.ExcludeFromFAQ = *p.ExcludeFromFAQ
	}
	if p.Priority != nil {
		a.Priority = *p.Priority
	}
}

// applyAssignment handles the assignment fields of a patch. Only a change of
// assignee moves assigned_from (to the actor) and assigned_at. A submitted
// assigned_from without such a change is a stale replay and is ignored.
func applyAssignment(a *domain.Article, p *domain.ArticlePatch, actorID uint64, now time.Time) *AssignmentNotice {
	if p.AssignedToID == nil || sameID(a.AssignedToID, *p.AssignedToID) {
		return nil
	}
	return assign(a, *p.AssignedToID, actorID, now)
}

// assign sets or (with target 0) clears the assignment triple
func assign(a *domain.Article, target, from uint64, now time.Time) *AssignmentNotice {
	if target == 0 {
		a.AssignedToID, a.AssignedFromID, a.AssignedAt = nil, nil, nil
		return nil
	}
	a.AssignedToID = uint64Ptr(target)
	a.AssignedFromID = optionalID(from)
	a.AssignedAt = &now
	return &AssignmentNotice{
		TenantID:   a.TenantID,
		ArticleID:  a.ID,
		Reference:  a.Reference,
		AssigneeID: target,
		AssignerID: from,
	}
}

// SoftDelete marks the article deleted; rows are kept
func (s *ArticleService) SoftDelete(ctx context.Context, tenantID, articleID uint64) (*domain.Article, error) {
	var article *domain.Article
	err := s.tx.ExecTx(ctx, func(ctx context.Context) error {
		var err error
		article, err = s.articles.FindByID(ctx, tenantID, articleID)
		if err != nil {
			return err
		}
		article.State = domain.StateDeleted
		if err := s.articles.Save(ctx, article); err != nil {
			return err
		}
		if _, err := s.categories.Prune(ctx, tenantID); err != nil {
			return err
		}
		return s.categories.RecomputeVisibility(ctx, tenantID)
	})
	if err != nil {
		return nil, err
	}
	s.afterWrite(article, nil)
	return article, nil
}

// Assign sets the assignee (0 clears the assignment) and notifies them
func (s *ArticleService) Assign(ctx context.Context, tenantID, articleID, targetID, actorID uint64) (*domain.Article, error) {
	var (
		article *domain.Article
		notice  *AssignmentNotice
	)
	err := s.tx.ExecTx(ctx, func(ctx context.Context) error {
		var err error
		article, err = s.articles.FindByID(ctx, tenantID, articleID)
		if err != nil {
			return err
		}
		notice = assign(article, targetID, actorID, time.Now())
		return s.articles.Save(ctx, article)
	})
	if err != nil {
		return nil, err
	}
	s.afterWrite(article, notice)
	return article, nil
}

// BatchTransition applies an action to each article independently. Ids of
// other tenants are skipped silently and a failing row does not stop the rest.
func (s *ArticleService) BatchTransition(ctx context.Context, tenantID, actorID uint64, req domain.BatchRequest) (*domain.BatchSummary, error) {
	action := req.Action
	if action == "delete" {
		action = domain.BatchSoftDelete
	}
	if action != domain.BatchAssign && action != domain.BatchSoftDelete {
		return nil, common.NewValidationError("action", "is not supported")
	}

	seen := make(map[uint64]bool, len(req.ArticleIDs))
	ids := make([]uint64, 0, len(req.ArticleIDs))
	for _, id := range req.ArticleIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	summary := &domain.BatchSummary{Action: action, Requested: len(ids)}
	if len(ids) == 0 {
		return summary, nil
	}

	owned, err := s.articles.FindByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}

	var target uint64
	if req.AssignedToID != nil {
		target = *req.AssignedToID
	}
	log := pkglogger.WithTenant(tenantID)
	for _, a := range owned {
		var err error
		switch action {
		case domain.BatchAssign:
			_, err = s.Assign(ctx, tenantID, a.ID, target, actorID)
		case domain.BatchSoftDelete:
			_, err = s.SoftDelete(ctx, tenantID, a.ID)
		}
		if err != nil {
			log.Warn().Err(err).Uint64("article_id", a.ID).Str("action", string(action)).Msg("batch row failed")
			continue
		}
		summary.Affected++
	}
	return summary, nil
}

// ============================================
// Read path
// ============================================

// Get loads an article by id within the tenant
func (s *ArticleService) Get(ctx context.Context, tenantID, articleID uint64) (*domain.Article, error) {
	return s.articles.FindByID(ctx, tenantID, articleID)
}

// GetByReference resolves a path token such as "KB-0001-how-to-pay"
func (s *ArticleService) GetByReference(ctx context.Context, tenantID uint64, token string, includeDeleted bool) (*domain.Article, error) {
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	ref := tenant.ExtractReference(token)
	if ref == "" {
		return nil, common.NotFound("article", token)
	}
	return s.articles.FindByReference(ctx, tenantID, ref, includeDeleted)
}

// ListArticles returns one page of the tenant's articles
func (s *ArticleService) ListArticles(ctx context.Context, tenantID uint64, filter domain.ListFilter) (*domain.ArticlePage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	filter.PerPage = domain.ClampPerPage(filter.PerPage, 0)
	if filter.Sort == "" {
		filter.Desc = true
	}
	items, total, err := s.articles.List(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	return &domain.ArticlePage{Items: items, Total: total, Page: filter.Page, PerPage: filter.PerPage}, nil
}

// ListAssigned articles assigned to or by the user, newest assignment first
func (s *ArticleService) ListAssigned(ctx context.Context, tenantID, userID uint64, states ...domain.ArticleState) ([]*domain.Article, error) {
	return s.articles.ListAssigned(ctx, tenantID, userID, states)
}

// RecentlyEdited articles last authored by the user
func (s *ArticleService) RecentlyEdited(ctx context.Context, tenantID, userID uint64) ([]*domain.Article, error) {
	return s.articles.RecentlyEdited(ctx, tenantID, userID, RecentlyEditedLimit)
}

// MostViewed FAQ candidates ordered by priority then clicks
func (s *ArticleService) MostViewed(ctx context.Context, tenantID uint64) ([]*domain.Article, error) {
	return s.articles.MostViewed(ctx, tenantID, MostViewedLimit)
}

// ValidateTitle previews the permalink of a title and warns about indexed duplicates
func (s *ArticleService) ValidateTitle(ctx context.Context, tenantID uint64, title string, excludeID uint64) (*TitleCheck, error) {
	dup, err := s.search.TitleExists(ctx, tenantID, title, excludeID)
	if err != nil {
		return nil, err
	}
	return &TitleCheck{Permalink: domain.GeneratePermalink(title), Duplicate: dup}, nil
}

// RelatedArticles up to RelatedLimit similar public articles
func (s *ArticleService) RelatedArticles(ctx context.Context, tenantID, articleID uint64) (*search.Result, error) {
	article, err := s.articles.FindByID(ctx, tenantID, articleID)
	if err != nil {
		return nil, err
	}
	return s.search.Related(ctx, article)
}

// Title resolves the title for locale (0 = scope's preferred locale).
// public reads the published version, otherwise the latest draft.
func (s *ArticleService) Title(ctx context.Context, scope *Scope, article *domain.Article, localeID uint64, public bool) (string, error) {
	t, err := s.resolve(ctx, scope, article, localeID, public)
	return t.Title, err
}

// Permalink resolves the permalink for locale
func (s *ArticleService) Permalink(ctx context.Context, scope *Scope, article *domain.Article, localeID uint64, public bool) (string, error) {
	t, err := s.resolve(ctx, scope, article, localeID, public)
	return t.Permalink, err
}

// Content resolves the content body for locale
func (s *ArticleService) Content(ctx context.Context, scope *Scope, article *domain.Article, localeID uint64, public bool) (string, error) {
	t, err := s.resolve(ctx, scope, article, localeID, public)
	return t.Content, err
}

func (s *ArticleService) resolve(ctx context.Context, scope *Scope, article *domain.Article, localeID uint64, public bool) (domain.Translation, error) {
	if public {
		return s.translations.Published(ctx, scope, article, localeID)
	}
	return s.translations.Draft(ctx, scope, article, localeID)
}

// PrepareEdit loads what the edit screen needs. Non-approvers see the state
// they will end up with.
func (s *ArticleService) PrepareEdit(ctx context.Context, tenantID, articleID uint64, actor domain.Actor) (*domain.EditForm, error) {
	article, err := s.articles.FindByID(ctx, tenantID, articleID)
	if err != nil {
		return nil, err
	}
	if !actor.IsApprover {
		article.State = domain.StateUnapproved
	}
	form := &domain.EditForm{Article: article}

	latest, err := s.versions.Latest(ctx, article.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		form.Translations = latest.Translations
	}
	if form.Locales, err = s.locales.ListByTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	if form.SubjectIDs, err = s.categories.SubjectIDs(ctx, article.ID); err != nil {
		return nil, err
	}
	if form.Tags, err = s.tags.TagNames(ctx, article.ID); err != nil {
		return nil, err
	}
	return form, nil
}

// History every version of the article, newest first
func (s *ArticleService) History(ctx context.Context, tenantID, articleID uint64) ([]*domain.ArticleVersion, error) {
	if _, err := s.articles.FindByID(ctx, tenantID, articleID); err != nil {
		return nil, err
	}
	return s.versions.ListByArticle(ctx, articleID)
}

// ============================================
// Feedback & metrics
// ============================================

// AddFeedback stores a reader rating and refreshes the article's aggregate
func (s *ArticleService) AddFeedback(ctx context.Context, tenantID, articleID uint64, req *domain.FeedbackRequest) (*domain.Feedback, error) {
	req.Comment = strings.TrimSpace(req.Comment)
	if err := domain.Validate(req); err != nil {
		return nil, err
	}

	var (
		feedback *domain.Feedback
		article  *domain.Article
	)
	err := s.tx.ExecTx(ctx, func(ctx context.Context) error {
		var err error
		article, err = s.articles.FindByID(ctx, tenantID, articleID)
		if err != nil {
			return err
		}
		feedback = &domain.Feedback{TenantID: tenantID, ArticleID: article.ID, Rating: req.Rating, Comment: req.Comment}
		if err := s.feedbacks.Create(ctx, feedback); err != nil {
			return fmt.Errorf("create feedback: %w", err)
		}
		return s.refreshRating(ctx, article)
	})
	if err != nil {
		return nil, err
	}
	s.afterWrite(article, nil)
	return feedback, nil
}

// RefreshRating recomputes rating (rounded-up mean) and feedback count
func (s *ArticleService) RefreshRating(ctx context.Context, tenantID, articleID uint64) (*domain.Article, error) {
	var article *domain.Article
	err := s.tx.ExecTx(ctx, func(ctx context.Context) error {
		var err error
		article, err = s.articles.FindByID(ctx, tenantID, articleID)
		if err != nil {
			return err
		}
		return s.refreshRating(ctx, article)
	})
	if err != nil {
		return nil, err
	}
	s.afterWrite(article, nil)
	return article, nil
}

func (s *ArticleService) refreshRating(ctx context.Context, article *domain.Article) error {
	avg, count, err := s.feedbacks.Stats(ctx, article)
	if err != nil {
		return err
	}
	var rating *int
	if count > 0 {
		r := int(math.Ceil(avg))
		rating = &r
	}
	if err := s.articles.UpdateRating(ctx, article.ID, rating, int(count)); err != nil {
		return err
	}
	article.Rating, article.FeedbacksCount = rating, int(count)
	return nil
}

// RecordClick counts one view. The index picks it up on the next re-index.
func (s *ArticleService) RecordClick(ctx context.Context, tenantID, articleID uint64) error {
	return s.articles.IncrementClicks(ctx, tenantID, articleID)
}

// ResetClicks zeroes the click counters of every article of the tenant
func (s *ArticleService) ResetClicks(ctx context.Context, tenantID uint64) error {
	return s.articles.ResetClicks(ctx, tenantID)
}

// ============================================
// helpers
// ============================================

// afterWrite runs post-commit side effects; neither can fail the write
func (s *ArticleService) afterWrite(article *domain.Article, notice *AssignmentNotice) {
	if s.indexer != nil {
		s.indexer.Enqueue(article.TenantID, article.ID)
	}
	if notice != nil && s.notifier != nil {
		notice.ArticleID = article.ID
		notice.Reference = article.Reference
		s.notifier.Notify(*notice)
	}
}

// articleNodeMeta display metadata of the article's hosting nodes
func articleNodeMeta(tenant *domain.Tenant, article *domain.Article, version *domain.ArticleVersion) NodeMeta {
	var localeID uint64
	if tenant.DefaultLocaleID != nil {
		localeID = *tenant.DefaultLocaleID
	}
	t := domain.Resolve(version, localeID, localeID)
	return NodeMeta{
		Name:      t.Title,
		Permalink: domain.ArticleNodePermalink(article.Reference, t.Permalink),
		Reference: article.Reference,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func uint64Ptr(v uint64) *uint64 {
	return &v
}

// optionalID maps 0 to NULL
func optionalID(v uint64) *uint64 {
	if v == 0 {
		return nil
	}
	return &v
}

func sameID(cur *uint64, v uint64) bool {
	if cur == nil {
		return v == 0
	}
	return *cur == v
}
