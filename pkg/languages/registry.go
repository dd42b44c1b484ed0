// Package languages is the read and lifecycle service for subtitle languages:
// creation, tips, version reads, visibility moderation, and writelocks.
package languages

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/subtitle"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// LanguageStore is the slice of the language repository the registry needs
type LanguageStore interface {
	Create(ctx context.Context, language *models.SubtitleLanguage) (*models.SubtitleLanguage, error)
	GetByID(ctx context.Context, id string) (*models.SubtitleLanguage, error)
	GetByCode(ctx context.Context, videoID string, languageCode string) (*models.SubtitleLanguage, error)
	ListForVideo(ctx context.Context, videoID string) ([]models.SubtitleLanguage, error)
	UpdateWritelock(ctx context.Context, id string, owner *string, sessionKey *string, lockTime *time.Time) error
	UpdateFlags(ctx context.Context, id string, req models.UpdateLanguageRequest) error
	IncrementFetchCount(ctx context.Context, id string) error
	DeleteTx(ctx context.Context, tx database.Tx, id string) error
}

// VersionStore is the slice of the version repository the registry needs
type VersionStore interface {
	Tip(ctx context.Context, languageID string, view models.VersionView) (*models.SubtitleVersion, error)
	ByNumber(ctx context.Context, languageID string, number int, view models.VersionView) (*models.SubtitleVersion, error)
	List(ctx context.Context, languageID string, view models.VersionView, page, pageSize int) ([]models.SubtitleVersion, int, error)
	Sibling(ctx context.Context, languageID string, number int, next bool) (*models.SubtitleVersion, error)
	Parents(ctx context.Context, versionID string) ([]models.SubtitleVersion, error)
	Content(ctx context.Context, versionID string) ([]byte, error)
	SetVisibility(ctx context.Context, versionID string, visibility string, override string) error
	DeleteByLanguageTx(ctx context.Context, tx database.Tx, languageID string) (int64, error)
}

// TipCache caches per-view tips
type TipCache interface {
	Get(ctx context.Context, videoID, languageCode string, view models.VersionView) *models.SubtitleVersion
	Set(ctx context.Context, view models.VersionView, version *models.SubtitleVersion)
	Invalidate(ctx context.Context, videoID, languageCode string)
}

// GraphSink removes deleted languages from the lineage graph
type GraphSink interface {
	DeleteLanguage(ctx context.Context, videoID, languageCode string) error
}

// EventSink publishes lifecycle events
type EventSink interface {
	EmitLanguageDeleted(ctx context.Context, language *models.SubtitleLanguage, deletedCount int64) error
}

// Registry is the subtitle language service
type Registry struct {
	db        database.DB
	languages LanguageStore
	versions  VersionStore
	cache     TipCache
	graph     GraphSink
	emitter   EventSink
	logger    ectologger.Logger
}

// NewRegistry creates the language service. Cache, graph, and emitter may be
// nil; the corresponding step is skipped.
func NewRegistry(
	db database.DB,
	languages LanguageStore,
	versions VersionStore,
	cache TipCache,
	graph GraphSink,
	emitter EventSink,
	logger ectologger.Logger,
) *Registry {
	return &Registry{
		db:        db,
		languages: languages,
		versions:  versions,
		cache:     cache,
		graph:     graph,
		emitter:   emitter,
		logger:    logger,
	}
}

// Create registers a new subtitle language for a video
func (s *Registry) Create(ctx context.Context, videoID string, req *models.CreateLanguageRequest) (*models.LanguageResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "languages.Registry.Create")
	defer span.End()

	if !models.IsValidLanguageCode(req.LanguageCode) {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid language code %q", req.LanguageCode)
	}

	language, err := s.languages.Create(ctx, &models.SubtitleLanguage{
		VideoID:           videoID,
		LanguageCode:      req.LanguageCode,
		SubtitlesComplete: req.SubtitlesComplete,
		IsForked:          req.IsForked,
	})
	if err != nil {
		return nil, err
	}

	return toLanguageResponse(language), nil
}

// Get retrieves one language of a video
func (s *Registry) Get(ctx context.Context, videoID, languageCode string) (*models.LanguageResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "languages.Registry.Get")
	defer span.End()

	language, err := s.getLanguage(ctx, videoID, languageCode)
	if err != nil {
		return nil, err
	}

	return toLanguageResponse(language), nil
}

// List retrieves all languages of a video
func (s *Registry) List(ctx context.Context, videoID string) (*models.LanguageListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "languages.Registry.List")
	defer span.End()

	items, err := s.languages.ListForVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	responses := make([]models.LanguageResponse, len(items))
	for i := range items {
		responses[i] = *toLanguageResponse(&items[i])
	}

	return &models.LanguageListResponse{
		Items:      responses,
		TotalCount: len(responses),
	}, nil
}

// Update changes mutable language flags
func (s *Registry) Update(ctx context.Context, videoID, languageCode string, req *models.UpdateLanguageRequest) (*models.LanguageResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "languages.Registry.Update")
	defer span.End()

	language, err := s.getLanguage(ctx, videoID, languageCode)
	if err != nil {
		return nil, err
	}

	if err := s.languages.UpdateFlags(ctx, language.ID, *req); err != nil {
		return nil, err
	}

	language, err = s.languages.GetByID(ctx, language.ID)
	if err != nil {
		return nil, err
	}

	return toLanguageResponse(language), nil
}

// Fork marks a language as standing alone rather than following a translation
// source. Forking is one-way.
func (s *Registry) Fork(ctx context.Context, videoID, languageCode string) (*models.LanguageResponse, error) {
	forked := true
	return s.Update(ctx, videoID, languageCode, &models.UpdateLanguageRequest{IsForked: &forked})
}

// GetTip returns the newest version of a language under the view. Cached
// read-through; a 404 means the history is empty under that view.
func (s *Registry) GetTip(ctx context.Context, videoID, languageCode string, view models.VersionView) (*models.SubtitleVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "languages.Registry.GetTip")
	defer span.End()

	language, err := s.getLanguage(ctx, videoID, languageCode)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if cached := s.cache.Get(ctx, videoID, languageCode, view); cached != nil {
			return cached, nil
		}
	}

	tip, err := s.versions.Tip(ctx, language.ID, view)
	if err != nil {
		return nil, err
	}
	if tip == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "language %s has no versions", languageCode)
	}

	if s.cache != nil {
		s.cache.Set(ctx, view, tip)
	}

	return tip, nil
}

// GetVersion returns one version under the view. Versions hidden by the view
// 404 exactly like absent ones.
func (s *Registry) GetVersion(ctx context.Context, videoID, languageCode string, number int, view models.VersionView) (*models.SubtitleVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "languages.Registry.GetVersion")
	defer span.End()

	language, err := s.getLanguage(ctx, videoID, languageCode)
	if err != nil {
		return nil, err
	}

	return s.versions.ByNumber(ctx, language.ID, number, view)
}

// GetContent returns the decoded subtitle content of a version and bumps the
// fetch counter. The bump is best effort.
func (s *Registry) GetContent(ctx context.Context, videoID, languageCode string, number int, view models.VersionView) (*subtitle.Set, error) {
	ctx, span := tracing.StartSpan(ctx, "languages.Registry.GetContent")
	defer span.End()

	language, err := s.getLanguage(ctx, videoID, languageCode)
	if err != nil {
		return nil, err
	}

	version, err := s.versions.ByNumber(ctx, language.ID, number, view)
	if err != nil {
		return nil, err
	}

	payload, err := s.versions.Content(ctx, version.ID)
	if err != nil {
		return nil, err
	}

	set, err := subtitle.Decode(payload)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to decode subtitle content")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to decode subtitle content")
	}

	if err := s.languages.IncrementFetchCount(ctx, language.ID); err != nil {
		s.logger.WithContext(ctx).WithError(err).Debug("Fetch counter bump failed")
	}

	return set, nil
}

// ListVersions returns a page of a language's history under the view
func (s *Registry) ListVersions(ctx context.Context, videoID, languageCode string, view models.VersionView, page, pageSize int) (*models.VersionListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "languages.Registry.ListVersions")
	defer span.End()

	language, err := s.getLanguage(ctx, videoID, languageCode)
	if err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	items, totalCount, err := s.versions.List(ctx, language.ID, view, page, pageSize)
	if err != nil {
		return nil, err
	}

	return &models.VersionListResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Siblings returns the nearest versions before and after the given number in
// the full view. Either may be nil at the ends of the chain.
func (s *Registry) Siblings(ctx context.Context, videoID, languageCode string, number int) (previous, next *models.SubtitleVersion, err error) {
	ctx, span := tracing.StartSpan(ctx, "languages.Registry.Siblings")
	defer span.End()

	language, err := s.getLanguage(ctx, videoID, languageCode)
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.versions.ByNumber(ctx, language.ID, number, models.ViewFull); err != nil {
		return nil, nil, err
	}

	previous, err = s.versions.Sibling(ctx, language.ID, number, false)
	if err != nil {
		return nil, nil, err
	}
	next, err = s.versions.Sibling(ctx, language.ID, number, true)
	if err != nil {
		return nil, nil, err
	}

	return previous, next, nil
}

// GetParents returns the direct parents of a version
func (s *Registry) GetParents(ctx context.Context, videoID, languageCode string, number int) ([]models.SubtitleVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "languages.Registry.GetParents")
	defer span.End()

	language, err := s.getLanguage(ctx, videoID, languageCode)
	if err != nil {
		return nil, err
	}

	version, err := s.versions.ByNumber(ctx, language.ID, number, models.ViewFull)
	if err != nil {
		return nil, err
	}

	return s.versions.Parents(ctx, version.ID)
}

// RollbackSource returns the version whose content a rollback restored. Nil
// for normal versions and for legacy rollbacks whose source number was lost.
func (s *Registry) RollbackSource(ctx context.Context, videoID, languageCode string, number int) (*models.SubtitleVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "languages.Registry.RollbackSource")
	defer span.End()

	language, err := s.getLanguage(ctx, videoID, languageCode)
	if err != nil {
		return nil, err
	}

	version, err := s.versions.ByNumber(ctx, language.ID, number, models.ViewFull)
	if err != nil {
		return nil, err
	}

	if version.RollbackOfVersionNumber == nil || *version.RollbackOfVersionNumber == 0 {
		return nil, nil
	}

	return s.versions.ByNumber(ctx, language.ID, *version.RollbackOfVersionNumber, models.ViewFull)
}

// SetVersionVisibility applies a moderation override to one version. Passing
// an empty override clears moderation and the written visibility rules again.
func (s *Registry) SetVersionVisibility(ctx context.Context, videoID, languageCode string, number int, override string) (*models.SubtitleVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "languages.Registry.SetVersionVisibility")
	defer span.End()

	switch override {
	case "", models.VisibilityPublic, models.VisibilityPrivate, models.VisibilityDeleted:
	default:
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid visibility override %q", override)
	}

	language, err := s.getLanguage(ctx, videoID, languageCode)
	if err != nil {
		return nil, err
	}

	version, err := s.versions.ByNumber(ctx, language.ID, number, models.ViewFull)
	if err != nil {
		return nil, err
	}

	if err := s.versions.SetVisibility(ctx, version.ID, version.Visibility, override); err != nil {
		return nil, err
	}
	version.VisibilityOverride = override

	if s.cache != nil {
		s.cache.Invalidate(ctx, videoID, languageCode)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"video_id":       videoID,
		"language_code":  languageCode,
		"version_number": number,
		"override":       override,
	}).Info("Changed version visibility")

	return version, nil
}

// Writelock acquires or refreshes the language writelock for a session
func (s *Registry) Writelock(ctx context.Context, videoID, languageCode string, userID string, req *models.WritelockRequest) (*models.LanguageResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "languages.Registry.Writelock")
	defer span.End()

	language, err := s.getLanguage(ctx, videoID, languageCode)
	if err != nil {
		return nil, err
	}

	if !language.CanWritelock(req.SessionKey) {
		metrics.WritelockConflictsTotal.Inc()
		return nil, httperror.NewHTTPErrorf(http.StatusLocked, "language %s is writelocked by another session", languageCode)
	}

	language.Writelock(userID, req.SessionKey)
	if err := s.languages.UpdateWritelock(ctx, language.ID, language.WritelockOwner, language.WritelockSessionKey, language.WritelockTime); err != nil {
		return nil, err
	}

	return toLanguageResponse(language), nil
}

// ReleaseWritelock releases the lock if the session holds it. Releasing a lock
// you do not hold is a conflict; releasing an expired lock is fine.
func (s *Registry) ReleaseWritelock(ctx context.Context, videoID, languageCode string, req *models.WritelockRequest) (*models.LanguageResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "languages.Registry.ReleaseWritelock")
	defer span.End()

	language, err := s.getLanguage(ctx, videoID, languageCode)
	if err != nil {
		return nil, err
	}

	if !language.CanWritelock(req.SessionKey) {
		metrics.WritelockConflictsTotal.Inc()
		return nil, httperror.NewHTTPErrorf(http.StatusLocked, "language %s is writelocked by another session", languageCode)
	}

	language.ReleaseWritelock()
	if err := s.languages.UpdateWritelock(ctx, language.ID, nil, nil, nil); err != nil {
		return nil, err
	}

	return toLanguageResponse(language), nil
}

func (s *Registry) getLanguage(ctx context.Context, videoID, languageCode string) (*models.SubtitleLanguage, error) {
	language, err := s.languages.GetByCode(ctx, videoID, languageCode)
	if err != nil {
		return nil, err
	}
	if language == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "language %s not found for video %s", languageCode, videoID)
	}
	return language, nil
}

func toLanguageResponse(language *models.SubtitleLanguage) *models.LanguageResponse {
	return &models.LanguageResponse{
		SubtitleLanguage: *language,
		IsWritelocked:    language.IsWritelocked(),
	}
}
