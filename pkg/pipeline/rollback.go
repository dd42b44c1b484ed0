package pipeline

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/subtitle"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Rollback restores the content of an earlier version as a brand-new version
// at the top of the history. The old version stays untouched; the new one
// records where its content came from and defaults to public visibility, so
// rolling back to a private version republishes it.
func (p *Pipeline) Rollback(ctx context.Context, videoID, languageCode string, versionNumber int, req *models.RollbackRequest) (*models.SubtitleVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Pipeline.Rollback")
	defer span.End()

	language, err := p.languages.GetByCode(ctx, videoID, languageCode)
	if err != nil {
		return nil, err
	}
	if language == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "language %s not found for video %s", languageCode, videoID)
	}

	// The source is resolved under the full view, so moderation hiding a
	// version does not stop a rollback from restoring its content.
	source, err := p.versions.ByNumber(ctx, language.ID, versionNumber, models.ViewFull)
	if err != nil {
		return nil, err
	}

	tip, err := p.versions.Tip(ctx, language.ID, models.ViewFull)
	if err != nil {
		return nil, err
	}
	if tip != nil && tip.VersionNumber == source.VersionNumber {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "cannot roll back to the current tip")
	}

	payload, err := p.versions.Content(ctx, source.ID)
	if err != nil {
		return nil, err
	}
	set, err := subtitle.Decode(payload)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to decode rollback source content")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to read rollback source")
	}

	items := make([]models.SubtitleItem, len(set.Items))
	for i, item := range set.Items {
		items[i] = models.SubtitleItem{StartMS: item.StartMS, EndMS: item.EndMS, Text: item.Text}
	}

	note := req.Note
	if note == "" {
		note = "Rollback"
	}

	version, err := p.AddVersion(ctx, &models.AddVersionRequest{
		VideoID:                 videoID,
		LanguageCode:            languageCode,
		Items:                   items,
		Title:                   source.Title,
		Description:             source.Description,
		Note:                    note,
		AuthorID:                req.AuthorID,
		Origin:                  models.OriginRollback,
		Metadata:                source.Metadata,
		RollbackOfVersionNumber: &source.VersionNumber,
	})
	if err != nil {
		return nil, err
	}

	metrics.RollbacksTotal.Inc()
	return version, nil
}
