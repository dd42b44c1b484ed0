package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SyncVersion projects a version and its parent edges into the graph. The
// projection is best effort and rebuilt from Postgres on demand, so callers
// log and swallow errors.
func (c *Client) SyncVersion(ctx context.Context, version *models.SubtitleVersion, parentIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.SyncVersion")
	defer span.End()

	_, err := c.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MERGE (v:SubtitleVersion {id: $id})
			SET v.video_id = $video_id,
				v.language_code = $language_code,
				v.version_number = $version_number,
				v.origin = $origin
		`, map[string]any{
			"id":             version.ID,
			"video_id":       version.VideoID,
			"language_code":  version.LanguageCode,
			"version_number": version.VersionNumber,
			"origin":         version.Origin,
		})
		if err != nil {
			return nil, err
		}

		for _, parentID := range parentIDs {
			_, err := tx.Run(ctx, `
				MATCH (v:SubtitleVersion {id: $id})
				MERGE (p:SubtitleVersion {id: $parent_id})
				MERGE (v)-[:DERIVED_FROM]->(p)
			`, map[string]any{
				"id":        version.ID,
				"parent_id": parentID,
			})
			if err != nil {
				return nil, err
			}
		}

		return nil, nil
	})

	if err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"version_id": version.ID,
		}).Warn("Failed to sync version to graph")
	}

	return err
}

// Ancestors returns the IDs of every transitive ancestor of a version
func (c *Client) Ancestors(ctx context.Context, versionID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.Ancestors")
	defer span.End()

	result, err := c.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (v:SubtitleVersion {id: $id})-[:DERIVED_FROM*]->(a:SubtitleVersion)
			RETURN DISTINCT a.id AS id
		`, map[string]any{"id": versionID})
		if err != nil {
			return nil, err
		}

		var ids []string
		for res.Next(ctx) {
			if id, ok := res.Record().Get("id"); ok {
				if s, ok := id.(string); ok {
					ids = append(ids, s)
				}
			}
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, err
	}

	ids, _ := result.([]string)
	return ids, nil
}

// DeleteLanguage removes every projected version of a language
func (c *Client) DeleteLanguage(ctx context.Context, videoID, languageCode string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.DeleteLanguage")
	defer span.End()

	_, err := c.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MATCH (v:SubtitleVersion {video_id: $video_id, language_code: $language_code})
			DETACH DELETE v
		`, map[string]any{
			"video_id":      videoID,
			"language_code": languageCode,
		})
	})

	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Failed to delete language from graph")
	}

	return err
}
