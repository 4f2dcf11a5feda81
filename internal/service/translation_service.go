package service

import (
	"context"
	"errors"
	"sync"

	"github.com/angple/kb-engine/internal/domain"
	"github.com/angple/kb-engine/internal/repository"
	"github.com/angple/kb-engine/pkg/cache"
	pkglogger "github.com/angple/kb-engine/pkg/logger"
)

type resolution int

const (
	resolveDraft resolution = iota
	resolvePublished
)

type memoKey struct {
	kind      resolution
	versionID uint64
	localeID  uint64
}

// Scope is a request-scoped translation memo. A zero locale passed to the
// resolvers means the scope's preferred locale.
type Scope struct {
	PreferredLocaleID uint64
	DefaultLocaleID   uint64

	mu   sync.Mutex
	memo map[memoKey]domain.Translation
}

// NewScope creates a scope for one request
func NewScope(preferredLocaleID, defaultLocaleID uint64) *Scope {
	if preferredLocaleID == 0 {
		preferredLocaleID = defaultLocaleID
	}
	return &Scope{
		PreferredLocaleID: preferredLocaleID,
		DefaultLocaleID:   defaultLocaleID,
		memo:              make(map[memoKey]domain.Translation),
	}
}

func (s *Scope) lookup(k memoKey) (domain.Translation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.memo[k]
	return t, ok
}

func (s *Scope) store(k memoKey, t domain.Translation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memo[k] = t
}

// TranslationService resolves article content for a locale. Draft content
// reads latest_version, public content reads published_version.
type TranslationService struct {
	versions repository.VersionRepository
	cache    cache.Service
}

// NewTranslationService creates a TranslationService. c may be a no-op cache.
func NewTranslationService(versions repository.VersionRepository, c cache.Service) *TranslationService {
	return &TranslationService{versions: versions, cache: c}
}

// Draft resolves the latest version's translation
func (s *TranslationService) Draft(ctx context.Context, scope *Scope, article *domain.Article, localeID uint64) (domain.Translation, error) {
	return s.resolve(ctx, scope, resolveDraft, article.LatestVersionID, localeID)
}

// Published resolves the published version's translation; empty when unpublished
func (s *TranslationService) Published(ctx context.Context, scope *Scope, article *domain.Article, localeID uint64) (domain.Translation, error) {
	return s.resolve(ctx, scope, resolvePublished, article.PublishedVersionID, localeID)
}

func (s *TranslationService) resolve(ctx context.Context, scope *Scope, kind resolution, versionID *uint64, localeID uint64) (domain.Translation, error) {
	if localeID == 0 {
		localeID = scope.PreferredLocaleID
	}
	if versionID == nil {
		return domain.Translation{LocaleID: localeID}, nil
	}
	key := memoKey{kind: kind, versionID: *versionID, localeID: localeID}
	if t, ok := scope.lookup(key); ok {
		return t, nil
	}

	version, err := s.Version(ctx, *versionID)
	if err != nil {
		return domain.Translation{}, err
	}
	t := domain.Resolve(version, localeID, scope.DefaultLocaleID)
	scope.store(key, t)
	return t, nil
}

// Version loads a version with its translations, going through the cache
func (s *TranslationService) Version(ctx context.Context, versionID uint64) (*domain.ArticleVersion, error) {
	var cached domain.ArticleVersion
	err := s.cache.GetVersion(ctx, versionID, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		pkglogger.GetLogger().Warn().Err(err).Uint64("version_id", versionID).Msg("version cache read failed")
	}

	version, err := s.versions.FindByID(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetVersion(ctx, versionID, version); err != nil {
		pkglogger.GetLogger().Warn().Err(err).Uint64("version_id", versionID).Msg("version cache write failed")
	}
	return version, nil
}
