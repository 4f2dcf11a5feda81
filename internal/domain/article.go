package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ArticleState is the editorial workflow state of an article
type ArticleState string

const (
	StateDraft      ArticleState = "draft"
	StateUnapproved ArticleState = "unapproved"
	StatePublished  ArticleState = "published"
	StateArchive    ArticleState = "archive"
	StateDeleted    ArticleState = "deleted"
)

// ArticleStates in display order
var ArticleStates = []ArticleState{StateDraft, StateUnapproved, StatePublished, StateArchive, StateDeleted}

var stateLabels = map[ArticleState]string{
	StateDraft:      "Draft",
	StateUnapproved: "Awaiting Approval",
	StatePublished:  "Published",
	StateArchive:    "Archive",
	StateDeleted:    "Deleted",
}

// Valid reports whether s is a known state
func (s ArticleState) Valid() bool {
	_, ok := stateLabels[s]
	return ok
}

// Label human readable state name
func (s ArticleState) Label() string {
	return stateLabels[s]
}

// Article is a versioned, multilingual knowledge-base entry owned by one tenant
type Article struct {
	ID                 uint64       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TenantID           uint64       `gorm:"column:tenant_id;not null;uniqueIndex:uk_articles_tenant_reference,priority:1" json:"tenant_id"`
	Reference          string       `gorm:"column:reference;type:varchar(64);not null;uniqueIndex:uk_articles_tenant_reference,priority:2" json:"reference"`
	UUID               string       `gorm:"column:uuid;type:varchar(40);not null;uniqueIndex" json:"uuid"`
	State              ArticleState `gorm:"column:state;type:varchar(20);not null;index" json:"state"`
	AuthorID           *uint64      `gorm:"column:author_id" json:"author_id,omitempty"`
	ApproverID         *uint64      `gorm:"column:approver_id" json:"approver_id,omitempty"`
	AssignedToID       *uint64      `gorm:"column:assigned_to_id;index" json:"assigned_to_id,omitempty"`
	AssignedFromID     *uint64      `gorm:"column:assigned_from_id" json:"assigned_from_id,omitempty"`
	AssignedAt         *time.Time   `gorm:"column:assigned_at" json:"assigned_at,omitempty"`
	AllowComments      bool         `gorm:"column:allow_comments" json:"allow_comments"`
	Internal           bool         `gorm:"column:internal" json:"internal"`
	ExcludeFromSearch  bool         `gorm:"column:exclude_from_search" json:"exclude_from_search"`
	ExcludeFromFAQ     bool         `gorm:"column:exclude_from_faq" json:"exclude_from_faq"`
	Priority           bool         `gorm:"column:priority" json:"priority"`
	Clicks             int          `gorm:"column:clicks;not null;default:0" json:"clicks"`
	Rating             *int         `gorm:"column:rating" json:"rating,omitempty"`
	FeedbacksCount     int          `gorm:"column:feedbacks_count;not null;default:0" json:"feedbacks_count"`
	LatestVersionID    *uint64      `gorm:"column:latest_version_id" json:"latest_version_id,omitempty"`
	PublishedVersionID *uint64      `gorm:"column:published_version_id" json:"published_version_id,omitempty"`
	CreatedAt          time.Time    `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Article) TableName() string { return "articles" }

// NewArticle returns an article with creation defaults applied
func NewArticle(tenantID uint64) *Article {
	return &Article{
		TenantID:      tenantID,
		UUID:          NewArticleUUID(),
		State:         StateDraft,
		AllowComments: true,
	}
}

// NewArticleUUID generates the opaque identifier used for attachment storage keys
func NewArticleUUID() string {
	u := uuid.New()
	sum := sha1.Sum(append(u[:], []byte(strconv.FormatInt(time.Now().UnixNano(), 10))...))
	return hex.EncodeToString(sum[:])
}

// Status label of the current state
func (a *Article) Status() string {
	return a.State.Label()
}

// IsPublished has a published state and a published version
func (a *Article) IsPublished() bool {
	return a.State == StatePublished && a.PublishedVersionID != nil
}

// PubliclyVisible published and not internal
func (a *Article) PubliclyVisible() bool {
	return a.IsPublished() && !a.Internal
}

// Searchable can appear in public search results
func (a *Article) Searchable() bool {
	return a.PubliclyVisible() && !a.ExcludeFromSearch
}

// ToParam renders the URL token "<reference>-<permalink>"
func ToParam(reference, permalink string) string {
	if permalink == "" {
		return reference
	}
	return reference + "-" + permalink
}

// CommentableID id feedback rows point at
func (a *Article) CommentableID() uint64 { return a.ID }

// TagScope tenant and target ids used by the tagging subsystem
func (a *Article) TagScope() (uint64, uint64) { return a.TenantID, a.ID }

// Commentable is implemented by records that accept comments
type Commentable interface {
	CommentableID() uint64
}

// Taggable is implemented by records that can be tagged
type Taggable interface {
	TagScope() (tenantID uint64, id uint64)
}

// Actor is the user performing an operation with pre-resolved capabilities
type Actor struct {
	UserID        uint64 `json:"user_id"`
	IsContributor bool   `json:"is_contributor"`
	IsApprover    bool   `json:"is_approver"`
}

// TranslationInput submitted content for one locale
type TranslationInput struct {
	LocaleID  uint64 `json:"locale_id" validate:"required"`
	Title     string `json:"title" validate:"max=255"`
	Permalink string `json:"permalink" validate:"max=255"`
	Content   string `json:"content"`
}

// CreateArticleRequest input for ArticleService.Create
type CreateArticleRequest struct {
	Reference         string             `json:"reference" validate:"max=64"`
	State             ArticleState       `json:"state" validate:"omitempty,oneof=draft unapproved published archive"`
	AllowComments     *bool              `json:"allow_comments"`
	Internal          bool               `json:"internal"`
	ExcludeFromSearch bool               `json:"exclude_from_search"`
	ExcludeFromFAQ    bool               `json:"exclude_from_faq"`
	Priority          bool               `json:"priority"`
	AssignedToID      *uint64            `json:"assigned_to_id"`
	Translations      []TranslationInput `json:"translations" validate:"dive"`
	SubjectIDs        []uint64           `json:"subject_ids"`
	Tags              []string           `json:"tags" validate:"dive,max=64"`
}

// ArticlePatch partial update. nil fields are left untouched.
// A nil SubjectIDs/Tags slice keeps the current set, an empty one clears it.
type ArticlePatch struct {
	State             *ArticleState      `json:"state" validate:"omitempty,oneof=draft unapproved published archive deleted"`
	Reference         *string            `json:"reference" validate:"omitempty,max=64"`
	AllowComments     *bool              `json:"allow_comments"`
	Internal          *bool              `json:"internal"`
	ExcludeFromSearch *bool              `json:"exclude_from_search"`
	ExcludeFromFAQ    *bool              `json:"exclude_from_faq"`
	Priority          *bool              `json:"priority"`
	ApproverID        *uint64            `json:"approver_id"`
	AssignedToID      *uint64            `json:"assigned_to_id"` // 0 unassigns
	AssignedFromID    *uint64            `json:"assigned_from_id"`
	Translations      []TranslationInput `json:"translations" validate:"dive"`
	SubjectIDs        []uint64           `json:"subject_ids"`
	Tags              []string           `json:"tags" validate:"dive,max=64"`
	// ClearPublished drops published_version when leaving the published state
	ClearPublished bool `json:"clear_published"`
}

// StateOnly keeps only the state change
func (p ArticlePatch) StateOnly() ArticlePatch {
	return ArticlePatch{State: p.State}
}

// EditForm is what an editor needs to render the edit screen
type EditForm struct {
	Article      *Article
	Translations []Translation
	Locales      []Locale
	SubjectIDs   []uint64
	Tags         []string
}

// BatchAction names a bulk operation
type BatchAction string

const (
	BatchAssign     BatchAction = "assign"
	BatchSoftDelete BatchAction = "soft_delete"
)

// BatchRequest bulk operation over articles of one tenant
type BatchRequest struct {
	Action       BatchAction `json:"action" validate:"required"`
	ArticleIDs   []uint64    `json:"article_ids"`
	AssignedToID *uint64     `json:"assigned_to_id"`
}

// BatchSummary result of a batch transition
type BatchSummary struct {
	Action    BatchAction `json:"action"`
	Requested int         `json:"requested"`
	Affected  int         `json:"affected"`
}

// Page sizes for article listings
const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// ClampPerPage accepts multiples of 10 between 10 and 100, otherwise keeps previous
func ClampPerPage(requested, previous int) int {
	if validPerPage(requested) {
		return requested
	}
	if validPerPage(previous) {
		return previous
	}
	return DefaultPerPage
}

func validPerPage(n int) bool {
	return n >= DefaultPerPage && n <= MaxPerPage && n%10 == 0
}

// sortColumns whitelist of listing sort keys
var sortColumns = map[string]string{
	"reference":  "reference",
	"state":      "state",
	"clicks":     "clicks",
	"rating":     "rating",
	"votes":      "feedbacks_count",
	"priority":   "priority",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

// SortColumn maps a sort key to a column, defaulting to updated_at
func SortColumn(key string) string {
	if col, ok := sortColumns[key]; ok {
		return col
	}
	return "updated_at"
}

// ListFilter parameters of ListArticles
type ListFilter struct {
	Tag     string         `json:"tag"`
	States  []ArticleState `json:"states"`
	Sort    string         `json:"sort"`
	Desc    bool           `json:"desc"`
	Page    int            `json:"page"`
	PerPage int            `json:"per_page"`
}

// ArticlePage one page of a listing
type ArticlePage struct {
	Items   []*Article `json:"items"`
	Total   int64      `json:"total"`
	Page    int        `json:"page"`
	PerPage int        `json:"per_page"`
}
