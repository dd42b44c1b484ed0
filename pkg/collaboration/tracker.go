// Package collaboration tracks per-language collaborators and keeps the
// denormalized signoff counters on the language row in sync.
package collaboration

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// CollaboratorStore is the slice of the collaborator repository the tracker needs
type CollaboratorStore interface {
	Upsert(ctx context.Context, collaborator *models.Collaborator) (*models.Collaborator, error)
	GetByUser(ctx context.Context, languageID string, userID string) (*models.Collaborator, error)
	ListForLanguage(ctx context.Context, languageID string) ([]models.Collaborator, error)
	SetSignoff(ctx context.Context, languageID string, userID string, official bool) error
	Delete(ctx context.Context, languageID string, userID string) error
}

// LanguageStore is the slice of the language repository the tracker needs
type LanguageStore interface {
	GetByCode(ctx context.Context, videoID string, languageCode string) (*models.SubtitleLanguage, error)
	UpdateSignoffCounts(ctx context.Context, id string, counts models.SignoffCounts) error
}

// Tracker is the collaborator service
type Tracker struct {
	collaborators CollaboratorStore
	languages     LanguageStore
	logger        ectologger.Logger
}

// NewTracker creates the collaborator service
func NewTracker(collaborators CollaboratorStore, languages LanguageStore, logger ectologger.Logger) *Tracker {
	return &Tracker{
		collaborators: collaborators,
		languages:     languages,
		logger:        logger,
	}
}

// Upsert creates or refreshes a collaborator record and recounts the
// language's signoff counters. Counters are always recomputed from the full
// roster rather than adjusted, so they cannot drift.
func (t *Tracker) Upsert(ctx context.Context, videoID, languageCode string, req *models.UpsertCollaboratorRequest) (*models.Collaborator, error) {
	ctx, span := tracing.StartSpan(ctx, "collaboration.Tracker.Upsert")
	defer span.End()

	language, err := t.getLanguage(ctx, videoID, languageCode)
	if err != nil {
		return nil, err
	}

	record := &models.Collaborator{
		UserID:     req.UserID,
		LanguageID: language.ID,
		Expired:    req.Expired,
	}

	if existing, err := t.collaborators.GetByUser(ctx, language.ID, req.UserID); err != nil {
		return nil, err
	} else if existing != nil {
		record.ID = existing.ID
		record.Signoff = existing.Signoff
		record.SignoffIsOfficial = existing.SignoffIsOfficial
		record.ExpirationStart = existing.ExpirationStart
	} else {
		now := time.Now().UTC()
		record.ExpirationStart = &now
	}

	collaborator, err := t.collaborators.Upsert(ctx, record)
	if err != nil {
		return nil, err
	}

	if err := t.recount(ctx, language.ID); err != nil {
		return nil, err
	}

	return collaborator, nil
}

// Signoff records a signoff for an existing collaborator and recounts
func (t *Tracker) Signoff(ctx context.Context, videoID, languageCode string, req *models.SignoffRequest) error {
	ctx, span := tracing.StartSpan(ctx, "collaboration.Tracker.Signoff")
	defer span.End()

	language, err := t.getLanguage(ctx, videoID, languageCode)
	if err != nil {
		return err
	}

	if err := t.collaborators.SetSignoff(ctx, language.ID, req.UserID, req.Official); err != nil {
		return err
	}

	return t.recount(ctx, language.ID)
}

// Remove deletes a collaborator record and recounts
func (t *Tracker) Remove(ctx context.Context, videoID, languageCode string, userID string) error {
	ctx, span := tracing.StartSpan(ctx, "collaboration.Tracker.Remove")
	defer span.End()

	language, err := t.getLanguage(ctx, videoID, languageCode)
	if err != nil {
		return err
	}

	if err := t.collaborators.Delete(ctx, language.ID, userID); err != nil {
		return err
	}

	return t.recount(ctx, language.ID)
}

// List returns the full collaborator roster of a language
func (t *Tracker) List(ctx context.Context, videoID, languageCode string) (*models.CollaboratorListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "collaboration.Tracker.List")
	defer span.End()

	language, err := t.getLanguage(ctx, videoID, languageCode)
	if err != nil {
		return nil, err
	}

	items, err := t.collaborators.ListForLanguage(ctx, language.ID)
	if err != nil {
		return nil, err
	}

	return &models.CollaboratorListResponse{
		Items:      items,
		TotalCount: len(items),
	}, nil
}

// NotificationRoster returns the collaborators who should hear about a new
// version: everyone signed off plus unexpired pending ones, minus the author.
func (t *Tracker) NotificationRoster(ctx context.Context, videoID, languageCode string, authorID string) ([]models.Collaborator, error) {
	ctx, span := tracing.StartSpan(ctx, "collaboration.Tracker.NotificationRoster")
	defer span.End()

	language, err := t.getLanguage(ctx, videoID, languageCode)
	if err != nil {
		return nil, err
	}

	all, err := t.collaborators.ListForLanguage(ctx, language.ID)
	if err != nil {
		return nil, err
	}

	var roster []models.Collaborator
	for _, c := range all {
		if c.UserID == authorID {
			continue
		}
		if c.Signoff || !c.Expired {
			roster = append(roster, c)
		}
	}

	return roster, nil
}

func (t *Tracker) recount(ctx context.Context, languageID string) error {
	all, err := t.collaborators.ListForLanguage(ctx, languageID)
	if err != nil {
		return err
	}

	counts := models.CountSignoffs(all)
	if err := t.languages.UpdateSignoffCounts(ctx, languageID, counts); err != nil {
		return err
	}

	metrics.SignoffRecountsTotal.Inc()
	return nil
}

func (t *Tracker) getLanguage(ctx context.Context, videoID, languageCode string) (*models.SubtitleLanguage, error) {
	language, err := t.languages.GetByCode(ctx, videoID, languageCode)
	if err != nil {
		return nil, err
	}
	if language == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "language %s not found for video %s", languageCode, videoID)
	}
	return language, nil
}
