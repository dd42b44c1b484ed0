// Package collaborator persists per-language collaborator signoff records.
package collaborator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const collaboratorColumns = "id, user_id, subtitle_language_id, signoff, signoff_is_official, expired, expiration_start, created_at"

// Repository handles collaborator persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new collaborator repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert creates or refreshes the collaborator record for (user, language)
func (r *Repository) Upsert(ctx context.Context, collaborator *models.Collaborator) (*models.Collaborator, error) {
	ctx, span := tracing.StartSpan(ctx, "collaborator.Repository.Upsert")
	defer span.End()

	if collaborator.ID == "" {
		collaborator.ID = uuid.New().String()
	}
	collaborator.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("collaborators")
	sb.Cols("id", "user_id", "subtitle_language_id", "signoff", "signoff_is_official", "expired", "expiration_start", "created_at")
	sb.Values(collaborator.ID, collaborator.UserID, collaborator.LanguageID, collaborator.Signoff, collaborator.SignoffIsOfficial, collaborator.Expired, collaborator.ExpirationStart, collaborator.CreatedAt)

	query, args := sb.Build()
	query += " ON CONFLICT (user_id, subtitle_language_id) DO UPDATE SET signoff = EXCLUDED.signoff, signoff_is_official = EXCLUDED.signoff_is_official, expired = EXCLUDED.expired, expiration_start = EXCLUDED.expiration_start RETURNING id"

	var id string
	if err := r.db.GetContext(ctx, &id, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"user_id":     collaborator.UserID,
			"language_id": collaborator.LanguageID,
		}).Error("Failed to upsert collaborator")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert collaborator")
	}
	collaborator.ID = id

	return collaborator, nil
}

// GetByUser retrieves the collaborator record for (user, language). Returns
// nil without error when the user is not a collaborator.
func (r *Repository) GetByUser(ctx context.Context, languageID string, userID string) (*models.Collaborator, error) {
	ctx, span := tracing.StartSpan(ctx, "collaborator.Repository.GetByUser")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(collaboratorColumns)
	sb.From("collaborators")
	sb.Where(
		sb.Equal("subtitle_language_id", languageID),
		sb.Equal("user_id", userID),
	)

	query, args := sb.Build()
	var collaborator models.Collaborator
	if err := r.db.GetContext(ctx, &collaborator, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get collaborator")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get collaborator")
	}

	return &collaborator, nil
}

// ListForLanguage retrieves every collaborator of a language
func (r *Repository) ListForLanguage(ctx context.Context, languageID string) ([]models.Collaborator, error) {
	ctx, span := tracing.StartSpan(ctx, "collaborator.Repository.ListForLanguage")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(collaboratorColumns)
	sb.From("collaborators")
	sb.Where(sb.Equal("subtitle_language_id", languageID))
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var collaborators []models.Collaborator
	if err := r.db.SelectContext(ctx, &collaborators, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list collaborators")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list collaborators")
	}

	return collaborators, nil
}

// SetSignoff records a signoff for an existing collaborator
func (r *Repository) SetSignoff(ctx context.Context, languageID string, userID string, official bool) error {
	ctx, span := tracing.StartSpan(ctx, "collaborator.Repository.SetSignoff")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("collaborators")
	sb.Set(
		sb.Assign("signoff", true),
		sb.Assign("signoff_is_official", official),
	)
	sb.Where(
		sb.Equal("subtitle_language_id", languageID),
		sb.Equal("user_id", userID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to set signoff")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set signoff")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("user %s is not a collaborator on this language", userID))
	}

	return nil
}

// Delete removes a collaborator record
func (r *Repository) Delete(ctx context.Context, languageID string, userID string) error {
	ctx, span := tracing.StartSpan(ctx, "collaborator.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("collaborators")
	sb.Where(
		sb.Equal("subtitle_language_id", languageID),
		sb.Equal("user_id", userID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete collaborator")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete collaborator")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("user %s is not a collaborator on this language", userID))
	}

	return nil
}
