// Package events handles event emission for subtitle lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Event types emitted by Fern
const (
	EventTypeVersionAdded    = "subtitles.version_added"
	EventTypeLanguageDeleted = "subtitles.language_deleted"
)

// Emitter handles event emission for Fern
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitVersionAdded emits an event after a version is committed. Listeners
// (notifications, search indexing, team workflows) react out of band; a
// publish failure never affects the already-committed write.
func (e *Emitter) EmitVersionAdded(ctx context.Context, version *models.SubtitleVersion) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitVersionAdded")
	defer span.End()

	data := map[string]any{
		"schema_version": SchemaVersion,
		"author_id":      version.AuthorID,
		"subtitle_count": version.SubtitleCount,
		"lineage":        version.Lineage,
		"is_rollback":    version.IsRollback(),
	}
	dataJSON, _ := json.Marshal(data)

	event := &kafka.SubtitleEvent{
		EventType:     EventTypeVersionAdded,
		VideoID:       version.VideoID,
		LanguageCode:  version.LanguageCode,
		LanguageID:    version.LanguageID,
		VersionID:     version.ID,
		VersionNumber: version.VersionNumber,
		Origin:        version.Origin,
		Visibility:    version.EffectiveVisibility(),
		Data:          dataJSON,
		CorrelationID: uuid.New().String(),
		SchemaVersion: SchemaVersion,
	}

	err := e.producer.PublishSubtitleEvent(ctx, event)
	metrics.RecordEventPublished(EventTypeVersionAdded, err)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit version_added event")
		return err
	}

	return nil
}

// EmitLanguageDeleted emits an event after a language and its versions are
// removed. DeletedCount covers the language itself, not its dependents; each
// dependent deletion emits its own event.
func (e *Emitter) EmitLanguageDeleted(ctx context.Context, language *models.SubtitleLanguage, deletedCount int64) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitLanguageDeleted")
	defer span.End()

	data := map[string]any{
		"schema_version": SchemaVersion,
		"deleted_count":  deletedCount,
	}
	dataJSON, _ := json.Marshal(data)

	event := &kafka.SubtitleEvent{
		EventType:     EventTypeLanguageDeleted,
		VideoID:       language.VideoID,
		LanguageCode:  language.LanguageCode,
		LanguageID:    language.ID,
		Data:          dataJSON,
		CorrelationID: uuid.New().String(),
		SchemaVersion: SchemaVersion,
	}

	err := e.producer.PublishSubtitleEvent(ctx, event)
	metrics.RecordEventPublished(EventTypeLanguageDeleted, err)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit language_deleted event")
		return err
	}

	return nil
}
