// Package pipeline is the write gateway for subtitle versions.
//
// Every version comes into existence through AddVersion. The gateway owns
// version numbering, implicit tip parentage, parent sanity checks, lineage
// merging, and the post-commit fanout (cache invalidation, graph projection,
// lifecycle events).
package pipeline

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/lineage"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/subtitle"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// LanguageStore is the slice of the language repository the gateway needs
type LanguageStore interface {
	GetByCode(ctx context.Context, videoID string, languageCode string) (*models.SubtitleLanguage, error)
	Create(ctx context.Context, language *models.SubtitleLanguage) (*models.SubtitleLanguage, error)
	LockForUpdate(ctx context.Context, tx database.Tx, id string) (*models.SubtitleLanguage, error)
	SetCompleteTx(ctx context.Context, tx database.Tx, id string, complete bool) error
}

// VersionStore is the slice of the version repository the gateway needs
type VersionStore interface {
	TipTx(ctx context.Context, tx database.Tx, languageID string, view models.VersionView) (*models.SubtitleVersion, error)
	ByRefTx(ctx context.Context, tx database.Tx, videoID string, languageCode string, number int) (*models.SubtitleVersion, error)
	InsertTx(ctx context.Context, tx database.Tx, version *models.SubtitleVersion, payload []byte) error
	InsertParentsTx(ctx context.Context, tx database.Tx, versionID string, parentIDs []string) error
	Tip(ctx context.Context, languageID string, view models.VersionView) (*models.SubtitleVersion, error)
	ByNumber(ctx context.Context, languageID string, number int, view models.VersionView) (*models.SubtitleVersion, error)
	Content(ctx context.Context, versionID string) ([]byte, error)
}

// TipInvalidator drops cached tips for a (video, language) pair
type TipInvalidator interface {
	Invalidate(ctx context.Context, videoID, languageCode string)
}

// GraphSink projects committed versions into the lineage graph
type GraphSink interface {
	SyncVersion(ctx context.Context, version *models.SubtitleVersion, parentIDs []string) error
}

// EventSink publishes lifecycle events after commit
type EventSink interface {
	EmitVersionAdded(ctx context.Context, version *models.SubtitleVersion) error
}

// Differ computes change fractions between consecutive versions. It is
// injected; the gateway only memoizes its output.
type Differ func(previous, next *subtitle.Set) (timeChange, textChange float64)

// Pipeline is the write gateway
type Pipeline struct {
	db           database.DB
	languages    LanguageStore
	versions     VersionStore
	cache        TipInvalidator
	graph        GraphSink
	emitter      EventSink
	differ       Differ
	metadataKeys map[string]bool
	logger       ectologger.Logger
}

// NewPipeline creates the write gateway. Cache, graph, emitter, and differ
// may be nil; the corresponding step is skipped.
func NewPipeline(
	db database.DB,
	languages LanguageStore,
	versions VersionStore,
	cache TipInvalidator,
	graph GraphSink,
	emitter EventSink,
	differ Differ,
	metadataKeys []string,
	logger ectologger.Logger,
) *Pipeline {
	allowed := make(map[string]bool, len(metadataKeys))
	for _, key := range metadataKeys {
		allowed[key] = true
	}

	return &Pipeline{
		db:           db,
		languages:    languages,
		versions:     versions,
		cache:        cache,
		graph:        graph,
		emitter:      emitter,
		differ:       differ,
		metadataKeys: allowed,
		logger:       logger,
	}
}

// AddVersion writes one new subtitle version.
//
// Behavior:
//   - The version number is the full-view tip plus one, deleted versions
//     included, so numbers never get reused.
//   - The current same-language tip is always an implicit parent.
//   - Two parents sharing a language, or a parent older than what another
//     parent's lineage already covers, reject the write.
//   - The stored lineage is the max-merge of the parents unless the caller
//     supplied one verbatim (trusted import path).
//   - Post-commit fanout is best effort and never rolls back the write.
func (p *Pipeline) AddVersion(ctx context.Context, req *models.AddVersionRequest) (*models.SubtitleVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Pipeline.AddVersion")
	defer span.End()

	start := time.Now()

	set, err := p.buildContent(req)
	if err != nil {
		return nil, err
	}

	if err := p.validateRequest(req); err != nil {
		return nil, err
	}

	language, err := p.resolveLanguage(ctx, req)
	if err != nil {
		return nil, err
	}

	payload, err := subtitle.Encode(set)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to encode subtitle content")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode subtitle content")
	}

	txCtx, tx, err := p.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Serializes numbering for this language until commit.
	language, err = p.languages.LockForUpdate(txCtx, tx, language.ID)
	if err != nil {
		return nil, err
	}

	tip, err := p.versions.TipTx(txCtx, tx, language.ID, models.ViewFull)
	if err != nil {
		return nil, err
	}

	number := 1
	if tip != nil {
		number = tip.VersionNumber + 1
	}

	parents, err := p.resolveParents(txCtx, tx, req, language, tip)
	if err != nil {
		return nil, err
	}

	if err := sanityCheckParents(parents); err != nil {
		return nil, err
	}

	versionLineage := req.Lineage
	if versionLineage == nil {
		refs := make([]lineage.VersionRef, len(parents))
		parentLineages := make([]lineage.Lineage, len(parents))
		for i, parent := range parents {
			refs[i] = lineage.VersionRef{LanguageCode: parent.LanguageCode, VersionNumber: parent.VersionNumber}
			parentLineages[i] = parent.Lineage
		}
		versionLineage = lineage.Merge(refs, parentLineages)
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = models.VisibilityPublic
	}

	version := &models.SubtitleVersion{
		VideoID:                 req.VideoID,
		LanguageID:              language.ID,
		LanguageCode:            language.LanguageCode,
		VersionNumber:           number,
		Visibility:              visibility,
		VisibilityOverride:      "",
		Title:                   req.Title,
		Description:             req.Description,
		Note:                    req.Note,
		AuthorID:                req.AuthorID,
		Origin:                  req.Origin,
		RollbackOfVersionNumber: req.RollbackOfVersionNumber,
		SubtitleCount:           set.Len(),
		Lineage:                 versionLineage,
		Metadata:                req.Metadata,
	}

	if err := version.Validate(); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	p.memoizeChanges(ctx, version, tip, set)

	if err := p.versions.InsertTx(txCtx, tx, version, payload); err != nil {
		if httperror.GetStatusCode(err) == http.StatusConflict {
			metrics.VersionConflictsTotal.Inc()
		}
		return nil, err
	}

	parentIDs := make([]string, len(parents))
	for i, parent := range parents {
		parentIDs[i] = parent.ID
	}
	version.ParentIDs = parentIDs

	if err := p.versions.InsertParentsTx(txCtx, tx, version.ID, parentIDs); err != nil {
		return nil, err
	}

	if req.SubtitlesComplete != nil {
		if err := p.languages.SetCompleteTx(txCtx, tx, language.ID, *req.SubtitlesComplete); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit version")
	}

	p.fanout(ctx, version, parentIDs)

	metrics.RecordVersionAdded(version.LanguageCode, version.Origin, time.Since(start).Seconds())
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"video_id":       version.VideoID,
		"language_code":  version.LanguageCode,
		"version_number": version.VersionNumber,
		"origin":         version.Origin,
	}).Info("Added subtitle version")

	return version, nil
}

func (p *Pipeline) buildContent(req *models.AddVersionRequest) (*subtitle.Set, error) {
	if req.RawMarkup != "" && len(req.Items) > 0 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "raw_markup and items are mutually exclusive")
	}

	if req.RawMarkup != "" {
		set, err := subtitle.FromRawMarkup(req.LanguageCode, req.RawMarkup)
		if err != nil {
			return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return set, nil
	}

	if len(req.Items) > 0 {
		items := make([]subtitle.Item, len(req.Items))
		for i, item := range req.Items {
			items[i] = subtitle.Item{StartMS: item.StartMS, EndMS: item.EndMS, Text: item.Text}
		}
		return subtitle.FromItems(req.LanguageCode, items), nil
	}

	return subtitle.Empty(req.LanguageCode), nil
}

func (p *Pipeline) validateRequest(req *models.AddVersionRequest) error {
	if !models.IsValidLanguageCode(req.LanguageCode) {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid language code %q", req.LanguageCode)
	}

	if !models.IsValidOrigin(req.Origin) {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid origin %q", req.Origin)
	}

	if req.Visibility != "" && req.Visibility != models.VisibilityPublic && req.Visibility != models.VisibilityPrivate {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid visibility %q", req.Visibility)
	}

	for key := range req.Metadata {
		if !p.metadataKeys[key] {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown metadata key %q", key)
		}
	}

	return nil
}

func (p *Pipeline) resolveLanguage(ctx context.Context, req *models.AddVersionRequest) (*models.SubtitleLanguage, error) {
	language, err := p.languages.GetByCode(ctx, req.VideoID, req.LanguageCode)
	if err != nil {
		return nil, err
	}
	if language != nil {
		return language, nil
	}

	if !req.CreateLanguage {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "language %s not found for video %s", req.LanguageCode, req.VideoID)
	}

	return p.languages.Create(ctx, &models.SubtitleLanguage{
		VideoID:      req.VideoID,
		LanguageCode: req.LanguageCode,
		IsForked:     len(req.Parents) == 0,
	})
}

// resolveParents loads the explicit parents and appends the implicit
// same-language tip, deduplicated by id.
func (p *Pipeline) resolveParents(ctx context.Context, tx database.Tx, req *models.AddVersionRequest, language *models.SubtitleLanguage, tip *models.SubtitleVersion) ([]*models.SubtitleVersion, error) {
	parents := make([]*models.SubtitleVersion, 0, len(req.Parents)+1)
	seen := map[string]bool{}

	for _, ref := range req.Parents {
		parent, err := p.versions.ByRefTx(ctx, tx, req.VideoID, ref.LanguageCode, ref.VersionNumber)
		if err != nil {
			return nil, err
		}
		if seen[parent.ID] {
			continue
		}
		seen[parent.ID] = true
		parents = append(parents, parent)
	}

	if tip != nil && !seen[tip.ID] {
		parents = append(parents, tip)
	}

	return parents, nil
}

// sanityCheckParents rejects duplicate parent languages and lineage
// regressions: a parent older than what another parent's lineage already
// records for that language cannot contribute anything but confusion.
func sanityCheckParents(parents []*models.SubtitleVersion) error {
	byLanguage := map[string]bool{}
	for _, parent := range parents {
		if byLanguage[parent.LanguageCode] {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "duplicate parent language %q", parent.LanguageCode)
		}
		byLanguage[parent.LanguageCode] = true
	}

	for _, parent := range parents {
		for _, other := range parents {
			if other == parent {
				continue
			}
			if covered, ok := other.Lineage[parent.LanguageCode]; ok && parent.VersionNumber < covered {
				return httperror.NewHTTPErrorf(http.StatusBadRequest,
					"parent %s/%d regresses lineage: version %d is already an ancestor",
					parent.LanguageCode, parent.VersionNumber, covered)
			}
		}
	}

	return nil
}

func (p *Pipeline) memoizeChanges(ctx context.Context, version *models.SubtitleVersion, tip *models.SubtitleVersion, set *subtitle.Set) {
	if p.differ == nil || tip == nil {
		return
	}

	payload, err := p.versions.Content(ctx, tip.ID)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Debug("Skipping change memoization; previous content unavailable")
		return
	}
	previous, err := subtitle.Decode(payload)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Debug("Skipping change memoization; previous content unreadable")
		return
	}

	timeChange, textChange := p.differ(previous, set)
	version.TimeChange = &timeChange
	version.TextChange = &textChange
}

// fanout runs the post-commit side effects. Failures are logged and
// swallowed; the committed version is already durable.
func (p *Pipeline) fanout(ctx context.Context, version *models.SubtitleVersion, parentIDs []string) {
	if p.cache != nil {
		p.cache.Invalidate(ctx, version.VideoID, version.LanguageCode)
	}

	if p.graph != nil {
		if err := p.graph.SyncVersion(ctx, version, parentIDs); err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("Version graph projection failed")
		}
	}

	if p.emitter != nil {
		if err := p.emitter.EmitVersionAdded(ctx, version); err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("Version added event failed")
		}
	}
}
