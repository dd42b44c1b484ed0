package languages

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// DependentLanguages returns the sibling languages whose current tip lineage
// still references this language. Forked languages stand alone and are never
// dependents. With direct set, only languages translated straight from this
// one count; transitive dependents are filtered out.
func (s *Registry) DependentLanguages(ctx context.Context, videoID, languageCode string, direct bool) ([]models.SubtitleLanguage, error) {
	ctx, span := tracing.StartSpan(ctx, "languages.Registry.DependentLanguages")
	defer span.End()

	if _, err := s.getLanguage(ctx, videoID, languageCode); err != nil {
		return nil, err
	}

	siblings, err := s.languages.ListForVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	var dependents []models.SubtitleLanguage
	for i := range siblings {
		sibling := &siblings[i]
		if sibling.LanguageCode == languageCode || sibling.IsForked {
			continue
		}

		tip, err := s.versions.Tip(ctx, sibling.ID, models.ViewExtant)
		if err != nil {
			return nil, err
		}
		if tip == nil || !tip.Lineage.Contains(languageCode) {
			continue
		}

		if direct {
			source, err := s.TranslationSource(ctx, videoID, sibling.LanguageCode)
			if err != nil {
				return nil, err
			}
			if source == nil || source.LanguageCode != languageCode {
				continue
			}
		}

		dependents = append(dependents, *sibling)
	}

	return dependents, nil
}

// TranslationSource returns the language this one is translated from, found by
// following the tip's cross-language parent edges. Nil for forked or original
// languages.
func (s *Registry) TranslationSource(ctx context.Context, videoID, languageCode string) (*models.SubtitleLanguage, error) {
	ctx, span := tracing.StartSpan(ctx, "languages.Registry.TranslationSource")
	defer span.End()

	language, err := s.getLanguage(ctx, videoID, languageCode)
	if err != nil {
		return nil, err
	}
	if language.IsForked {
		return nil, nil
	}

	tip, err := s.versions.Tip(ctx, language.ID, models.ViewExtant)
	if err != nil {
		return nil, err
	}

	// Walk down the same-language chain until a cross-language parent shows
	// up. Bounded by the chain length; the guard is against edge cycles from
	// bad imports.
	for steps := 0; tip != nil && steps < 1000; steps++ {
		parents, err := s.versions.Parents(ctx, tip.ID)
		if err != nil {
			return nil, err
		}

		var sameLanguage *models.SubtitleVersion
		for i := range parents {
			parent := &parents[i]
			if parent.LanguageCode != languageCode {
				return s.languages.GetByCode(ctx, videoID, parent.LanguageCode)
			}
			sameLanguage = parent
		}
		tip = sameLanguage
	}

	return nil, nil
}

// Nuke hard-deletes a language, its versions, and every non-forked dependent
// language in one transaction. This is the only operation that removes version
// rows; moderation uses visibility overrides instead.
func (s *Registry) Nuke(ctx context.Context, videoID, languageCode string) error {
	ctx, span := tracing.StartSpan(ctx, "languages.Registry.Nuke")
	defer span.End()

	target, err := s.getLanguage(ctx, videoID, languageCode)
	if err != nil {
		return err
	}

	dependents, err := s.DependentLanguages(ctx, videoID, languageCode, false)
	if err != nil {
		return err
	}

	doomed := append([]models.SubtitleLanguage{*target}, dependents...)

	txCtx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	deletedCounts := make([]int64, len(doomed))
	for i := range doomed {
		deleted, err := s.versions.DeleteByLanguageTx(txCtx, tx, doomed[i].ID)
		if err != nil {
			return err
		}
		deletedCounts[i] = deleted

		if err := s.languages.DeleteTx(txCtx, tx, doomed[i].ID); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	for i := range doomed {
		language := &doomed[i]

		if s.cache != nil {
			s.cache.Invalidate(ctx, videoID, language.LanguageCode)
		}
		if s.graph != nil {
			if err := s.graph.DeleteLanguage(ctx, videoID, language.LanguageCode); err != nil {
				s.logger.WithContext(ctx).WithError(err).Warn("Graph cleanup failed after language nuke")
			}
		}
		if s.emitter != nil {
			if err := s.emitter.EmitLanguageDeleted(ctx, language, deletedCounts[i]); err != nil {
				s.logger.WithContext(ctx).WithError(err).Warn("Language deleted event failed")
			}
		}

		metrics.VersionsNukedTotal.Add(float64(deletedCounts[i]))
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"video_id":      videoID,
		"language_code": languageCode,
		"languages":     len(doomed),
	}).Info("Nuked subtitle language")

	return nil
}
