// Package subtitleversion persists immutable subtitle versions and their
// parent edges, and implements the three filtered views over them.
//
// Versions are append-only. The only column that ever changes after insert is
// visibility_override, which moderation uses to publish, hide, or delete a
// version after the fact.
package subtitleversion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/lineage"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const versionColumns = "id, video_id, subtitle_language_id, language_code, version_number, visibility, visibility_override, title, description, note, author_id, origin, rollback_of_version_number, subtitle_count, lineage, metadata, time_change, text_change, created_at"

// Repository handles subtitle version persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new subtitle version repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// versionRow carries the JSONB columns that need custom scanning
type versionRow struct {
	models.SubtitleVersion
	LineageJSON  database.JSONB[lineage.Lineage]   `db:"lineage"`
	MetadataJSON database.JSONB[map[string]string] `db:"metadata"`
}

func (row *versionRow) toModel() *models.SubtitleVersion {
	v := row.SubtitleVersion
	v.Lineage = row.LineageJSON.GetValue()
	if v.Lineage == nil {
		v.Lineage = lineage.Lineage{}
	}
	v.Metadata = row.MetadataJSON.GetValue()
	return &v
}

func rowsToModels(rows []versionRow) []models.SubtitleVersion {
	out := make([]models.SubtitleVersion, len(rows))
	for i := range rows {
		out[i] = *rows[i].toModel()
	}
	return out
}

// viewCondition translates a view into WHERE expressions.
//
// Invariants:
//   - full sees everything; version numbering is defined against it.
//   - extant hides versions overridden to deleted.
//   - public additionally hides private versions unless overridden public.
func viewCondition(sb *sqlbuilder.SelectBuilder, view models.VersionView) []string {
	switch view {
	case models.ViewPublic:
		return []string{
			sb.NotEqual("visibility_override", models.VisibilityDeleted),
			sb.Or(
				sb.Equal("visibility_override", models.VisibilityPublic),
				sb.And(
					sb.Equal("visibility_override", ""),
					sb.Equal("visibility", models.VisibilityPublic),
				),
			),
		}
	case models.ViewExtant:
		return []string{sb.NotEqual("visibility_override", models.VisibilityDeleted)}
	default:
		return nil
	}
}

// InsertTx writes a version and its compressed payload within the given
// transaction. A numbering race surfaces as a retryable conflict.
func (r *Repository) InsertTx(ctx context.Context, tx database.Tx, version *models.SubtitleVersion, payload []byte) error {
	ctx, span := tracing.StartSpan(ctx, "subtitleversion.Repository.InsertTx")
	defer span.End()

	if version.ID == "" {
		version.ID = uuid.New().String()
	}
	version.CreatedAt = time.Now().UTC()

	lineageValue := database.JSONB[lineage.Lineage]{Data: version.Lineage}
	metadataValue := database.JSONB[map[string]string]{Data: version.Metadata}
	if metadataValue.Data == nil {
		metadataValue.Data = map[string]string{}
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("subtitle_versions")
	sb.Cols("id", "video_id", "subtitle_language_id", "language_code", "version_number", "visibility", "visibility_override", "title", "description", "note", "author_id", "origin", "rollback_of_version_number", "subtitle_count", "subtitles", "lineage", "metadata", "time_change", "text_change", "created_at")
	sb.Values(version.ID, version.VideoID, version.LanguageID, version.LanguageCode, version.VersionNumber, version.Visibility, version.VisibilityOverride, version.Title, version.Description, version.Note, version.AuthorID, version.Origin, version.RollbackOfVersionNumber, version.SubtitleCount, payload, lineageValue, metadataValue, version.TimeChange, version.TextChange, version.CreatedAt)

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return httperror.NewHTTPErrorf(http.StatusConflict, "version number %d already exists for language %s; retry the write", version.VersionNumber, version.LanguageCode)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"language_id":    version.LanguageID,
			"version_number": version.VersionNumber,
		}).Error("Failed to insert subtitle version")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert subtitle version")
	}

	return nil
}

// InsertParentsTx writes the parent edges of a version within the transaction
func (r *Repository) InsertParentsTx(ctx context.Context, tx database.Tx, versionID string, parentIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "subtitleversion.Repository.InsertParentsTx")
	defer span.End()

	if len(parentIDs) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("subtitle_version_parents")
	sb.Cols("version_id", "parent_id")
	for _, parentID := range parentIDs {
		sb.Values(versionID, parentID)
	}

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert version parent edges")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert version parents")
	}

	return nil
}

// TipTx returns the newest version of a language under the view, within the
// transaction. Returns nil without error when the history is empty.
func (r *Repository) TipTx(ctx context.Context, tx database.Tx, languageID string, view models.VersionView) (*models.SubtitleVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "subtitleversion.Repository.TipTx")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(versionColumns)
	sb.From("subtitle_versions")
	conditions := append([]string{sb.Equal("subtitle_language_id", languageID)}, viewCondition(sb, view)...)
	sb.Where(conditions...)
	sb.OrderBy("version_number DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var row versionRow
	if err := tx.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get tip version")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get tip version")
	}

	return row.toModel(), nil
}

// Tip returns the newest version of a language under the view. Returns nil
// without error when the history is empty under that view.
func (r *Repository) Tip(ctx context.Context, languageID string, view models.VersionView) (*models.SubtitleVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "subtitleversion.Repository.Tip")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(versionColumns)
	sb.From("subtitle_versions")
	conditions := append([]string{sb.Equal("subtitle_language_id", languageID)}, viewCondition(sb, view)...)
	sb.Where(conditions...)
	sb.OrderBy("version_number DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var row versionRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get tip version")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get tip version")
	}

	return row.toModel(), nil
}

// ByNumber retrieves one version by language and number under the view.
// A version hidden by the view yields the same not-found error as true
// absence, so narrower views leak nothing about hidden versions.
func (r *Repository) ByNumber(ctx context.Context, languageID string, number int, view models.VersionView) (*models.SubtitleVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "subtitleversion.Repository.ByNumber")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(versionColumns)
	sb.From("subtitle_versions")
	conditions := append([]string{
		sb.Equal("subtitle_language_id", languageID),
		sb.Equal("version_number", number),
	}, viewCondition(sb, view)...)
	sb.Where(conditions...)

	query, args := sb.Build()
	var row versionRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("version %d not found", number))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get version by number")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get version")
	}

	return row.toModel(), nil
}

// ByRefTx resolves a (video, language code, number) reference under the full
// view, within the transaction. Used by the write gateway to resolve parents.
func (r *Repository) ByRefTx(ctx context.Context, tx database.Tx, videoID string, languageCode string, number int) (*models.SubtitleVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "subtitleversion.Repository.ByRefTx")
	defer span.End()

	query := fmt.Sprintf("SELECT %s FROM subtitle_versions WHERE video_id = $1 AND language_code = $2 AND version_number = $3", versionColumns)

	var row versionRow
	if err := tx.GetContext(ctx, &row, query, videoID, languageCode, number); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("version %s/%d not found", languageCode, number))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to resolve version reference")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve version reference")
	}

	return row.toModel(), nil
}

// List returns a page of a language's history under the view, newest first
func (r *Repository) List(ctx context.Context, languageID string, view models.VersionView, page, pageSize int) ([]models.SubtitleVersion, int, error) {
	ctx, span := tracing.StartSpan(ctx, "subtitleversion.Repository.List")
	defer span.End()

	countBuilder := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countBuilder.Select("COUNT(*)")
	countBuilder.From("subtitle_versions")
	countConditions := append([]string{countBuilder.Equal("subtitle_language_id", languageID)}, viewCondition(countBuilder, view)...)
	countBuilder.Where(countConditions...)

	countQuery, countArgs := countBuilder.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count versions")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list versions")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(versionColumns)
	sb.From("subtitle_versions")
	conditions := append([]string{sb.Equal("subtitle_language_id", languageID)}, viewCondition(sb, view)...)
	sb.Where(conditions...)
	sb.OrderBy("version_number DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var rows []versionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list versions")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list versions")
	}

	return rowsToModels(rows), totalCount, nil
}

// Sibling returns the nearest version before or after the given number in
// the full view, or nil at the end of the chain.
func (r *Repository) Sibling(ctx context.Context, languageID string, number int, next bool) (*models.SubtitleVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "subtitleversion.Repository.Sibling")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(versionColumns)
	sb.From("subtitle_versions")
	if next {
		sb.Where(sb.Equal("subtitle_language_id", languageID), sb.GreaterThan("version_number", number))
		sb.OrderBy("version_number ASC")
	} else {
		sb.Where(sb.Equal("subtitle_language_id", languageID), sb.LessThan("version_number", number))
		sb.OrderBy("version_number DESC")
	}
	sb.Limit(1)

	query, args := sb.Build()
	var row versionRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get sibling version")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get sibling version")
	}

	return row.toModel(), nil
}

// Parents returns the direct parents of a version, cross-language ones included
func (r *Repository) Parents(ctx context.Context, versionID string) ([]models.SubtitleVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "subtitleversion.Repository.Parents")
	defer span.End()

	query := fmt.Sprintf(`
		SELECT %s FROM subtitle_versions
		WHERE id IN (SELECT parent_id FROM subtitle_version_parents WHERE version_id = $1)
		ORDER BY language_code ASC, version_number ASC
	`, versionColumns)

	var rows []versionRow
	if err := r.db.SelectContext(ctx, &rows, query, versionID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get version parents")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get version parents")
	}

	return rowsToModels(rows), nil
}

// Content returns the compressed subtitle payload of a version
func (r *Repository) Content(ctx context.Context, versionID string) ([]byte, error) {
	ctx, span := tracing.StartSpan(ctx, "subtitleversion.Repository.Content")
	defer span.End()

	var payload []byte
	if err := r.db.GetContext(ctx, &payload, "SELECT subtitles FROM subtitle_versions WHERE id = $1", versionID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("version %s not found", versionID))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get version content")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get version content")
	}

	return payload, nil
}

// SetVisibility persists a visibility mutation. This is the only post-insert
// update the schema permits.
func (r *Repository) SetVisibility(ctx context.Context, versionID string, visibility string, override string) error {
	ctx, span := tracing.StartSpan(ctx, "subtitleversion.Repository.SetVisibility")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("subtitle_versions")
	sb.Set(
		sb.Assign("visibility", visibility),
		sb.Assign("visibility_override", override),
	)
	sb.Where(sb.Equal("id", versionID))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to set version visibility")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set version visibility")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("version %s not found", versionID))
	}

	return nil
}

// DeleteByLanguageTx hard-deletes every version of a language and its parent
// edges, within the transaction. Only language nuking uses this.
func (r *Repository) DeleteByLanguageTx(ctx context.Context, tx database.Tx, languageID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "subtitleversion.Repository.DeleteByLanguageTx")
	defer span.End()

	edgeQuery := `
		DELETE FROM subtitle_version_parents
		WHERE version_id IN (SELECT id FROM subtitle_versions WHERE subtitle_language_id = $1)
		OR parent_id IN (SELECT id FROM subtitle_versions WHERE subtitle_language_id = $1)
	`
	if _, err := tx.ExecContext(ctx, edgeQuery, languageID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete version parent edges")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete versions")
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM subtitle_versions WHERE subtitle_language_id = $1", languageID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete versions")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete versions")
	}

	deleted, _ := result.RowsAffected()
	return deleted, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
