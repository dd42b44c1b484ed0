// Package subtitlelanguage persists subtitle language rows, including the
// writelock triple and the denormalized signoff counters.
package subtitlelanguage

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
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const languageColumns = "id, video_id, language_code, created_at, subtitles_complete, is_forked, writelock_owner, writelock_session_key, writelock_time, official_signoff_count, unofficial_signoff_count, pending_signoff_count, pending_signoff_expired_count, pending_signoff_unexpired_count, subtitles_fetched_count"

// Repository handles subtitle language persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new subtitle language repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new subtitle language. (video_id, language_code) is unique.
func (r *Repository) Create(ctx context.Context, language *models.SubtitleLanguage) (*models.SubtitleLanguage, error) {
	ctx, span := tracing.StartSpan(ctx, "subtitlelanguage.Repository.Create")
	defer span.End()

	if language.ID == "" {
		language.ID = uuid.New().String()
	}
	language.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("subtitle_languages")
	sb.Cols("id", "video_id", "language_code", "created_at", "subtitles_complete", "is_forked")
	sb.Values(language.ID, language.VideoID, language.LanguageCode, language.CreatedAt, language.SubtitlesComplete, language.IsForked)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, httperror.NewHTTPErrorf(http.StatusConflict, "language %s already exists for video %s", language.LanguageCode, language.VideoID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"video_id":      language.VideoID,
			"language_code": language.LanguageCode,
		}).Error("Failed to create subtitle language")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create subtitle language")
	}

	return language, nil
}

// GetByID retrieves a subtitle language by its ID
func (r *Repository) GetByID(ctx context.Context, id string) (*models.SubtitleLanguage, error) {
	ctx, span := tracing.StartSpan(ctx, "subtitlelanguage.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(languageColumns)
	sb.From("subtitle_languages")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var language models.SubtitleLanguage
	if err := r.db.GetContext(ctx, &language, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("subtitle language %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get subtitle language")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get subtitle language")
	}

	return &language, nil
}

// GetByCode retrieves a subtitle language by video and language code. Returns
// nil without error when no such language exists.
func (r *Repository) GetByCode(ctx context.Context, videoID string, languageCode string) (*models.SubtitleLanguage, error) {
	ctx, span := tracing.StartSpan(ctx, "subtitlelanguage.Repository.GetByCode")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(languageColumns)
	sb.From("subtitle_languages")
	sb.Where(
		sb.Equal("video_id", videoID),
		sb.Equal("language_code", languageCode),
	)

	query, args := sb.Build()
	var language models.SubtitleLanguage
	if err := r.db.GetContext(ctx, &language, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get subtitle language by code")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get subtitle language")
	}

	return &language, nil
}

// ListForVideo retrieves all subtitle languages of a video
func (r *Repository) ListForVideo(ctx context.Context, videoID string) ([]models.SubtitleLanguage, error) {
	ctx, span := tracing.StartSpan(ctx, "subtitlelanguage.Repository.ListForVideo")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(languageColumns)
	sb.From("subtitle_languages")
	sb.Where(sb.Equal("video_id", videoID))
	sb.OrderBy("language_code ASC")

	query, args := sb.Build()
	var languages []models.SubtitleLanguage
	if err := r.db.SelectContext(ctx, &languages, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list subtitle languages")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list subtitle languages")
	}

	return languages, nil
}

// LockForUpdate loads a language row under FOR UPDATE within the given
// transaction. The write gateway uses it to serialize version numbering.
func (r *Repository) LockForUpdate(ctx context.Context, tx database.Tx, id string) (*models.SubtitleLanguage, error) {
	ctx, span := tracing.StartSpan(ctx, "subtitlelanguage.Repository.LockForUpdate")
	defer span.End()

	query := fmt.Sprintf("SELECT %s FROM subtitle_languages WHERE id = $1 FOR UPDATE", languageColumns)

	var language models.SubtitleLanguage
	if err := tx.GetContext(ctx, &language, query, id); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("subtitle language %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to lock subtitle language row")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to lock subtitle language")
	}

	return &language, nil
}

// UpdateWritelock persists the lock triple as-is. Pass nils to release.
func (r *Repository) UpdateWritelock(ctx context.Context, id string, owner *string, sessionKey *string, lockTime *time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "subtitlelanguage.Repository.UpdateWritelock")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("subtitle_languages")
	sb.Set(
		sb.Assign("writelock_owner", owner),
		sb.Assign("writelock_session_key", sessionKey),
		sb.Assign("writelock_time", lockTime),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update writelock")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update writelock")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("subtitle language %s not found", id))
	}

	return nil
}

// UpdateFlags updates subtitles_complete and is_forked
func (r *Repository) UpdateFlags(ctx context.Context, id string, req models.UpdateLanguageRequest) error {
	ctx, span := tracing.StartSpan(ctx, "subtitlelanguage.Repository.UpdateFlags")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("subtitle_languages")

	assignments := []string{}
	if req.SubtitlesComplete != nil {
		assignments = append(assignments, sb.Assign("subtitles_complete", *req.SubtitlesComplete))
	}
	if req.IsForked != nil {
		assignments = append(assignments, sb.Assign("is_forked", *req.IsForked))
	}
	if len(assignments) == 0 {
		return nil
	}
	sb.Set(assignments...)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update language flags")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update subtitle language")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("subtitle language %s not found", id))
	}

	return nil
}

// SetCompleteTx updates subtitles_complete within the given transaction. The
// write gateway uses it while it still holds the language row lock.
func (r *Repository) SetCompleteTx(ctx context.Context, tx database.Tx, id string, complete bool) error {
	ctx, span := tracing.StartSpan(ctx, "subtitlelanguage.Repository.SetCompleteTx")
	defer span.End()

	if _, err := tx.ExecContext(ctx, "UPDATE subtitle_languages SET subtitles_complete = $1 WHERE id = $2", complete, id); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update subtitles_complete")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update subtitle language")
	}

	return nil
}

// UpdateSignoffCounts persists a freshly recomputed counter set
func (r *Repository) UpdateSignoffCounts(ctx context.Context, id string, counts models.SignoffCounts) error {
	ctx, span := tracing.StartSpan(ctx, "subtitlelanguage.Repository.UpdateSignoffCounts")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("subtitle_languages")
	sb.Set(
		sb.Assign("official_signoff_count", counts.Official),
		sb.Assign("unofficial_signoff_count", counts.Unofficial),
		sb.Assign("pending_signoff_count", counts.Pending),
		sb.Assign("pending_signoff_expired_count", counts.PendingExpired),
		sb.Assign("pending_signoff_unexpired_count", counts.PendingUnexpired),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update signoff counts")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update signoff counts")
	}

	return nil
}

// IncrementFetchCount bumps the fetch counter. Best effort; callers ignore errors.
func (r *Repository) IncrementFetchCount(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "subtitlelanguage.Repository.IncrementFetchCount")
	defer span.End()

	query := "UPDATE subtitle_languages SET subtitles_fetched_count = subtitles_fetched_count + 1 WHERE id = $1"
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		r.logger.WithContext(ctx).WithError(err).Debug("Failed to increment fetch count")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to increment fetch count")
	}

	return nil
}

// DeleteTx hard-deletes a language row within the given transaction
func (r *Repository) DeleteTx(ctx context.Context, tx database.Tx, id string) error {
	ctx, span := tracing.StartSpan(ctx, "subtitlelanguage.Repository.DeleteTx")
	defer span.End()

	if _, err := tx.ExecContext(ctx, "DELETE FROM collaborators WHERE subtitle_language_id = $1", id); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete collaborators for language")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete subtitle language")
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM subtitle_languages WHERE id = $1", id); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete subtitle language")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete subtitle language")
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
