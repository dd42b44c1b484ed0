package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/lineage"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/subtitle"
)

type fakeTx struct {
	database.Tx
}

func (t *fakeTx) IsOpen() bool                       { return true }
func (t *fakeTx) Commit(ctx context.Context) error   { return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { return nil }

type fakeDB struct {
	database.DB
}

func (db *fakeDB) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	return ctx, &fakeTx{}, nil
}

type fakeLanguageStore struct {
	languages map[string]*models.SubtitleLanguage
}

func newFakeLanguageStore() *fakeLanguageStore {
	return &fakeLanguageStore{languages: map[string]*models.SubtitleLanguage{}}
}

func (s *fakeLanguageStore) key(videoID, languageCode string) string {
	return videoID + "/" + languageCode
}

func (s *fakeLanguageStore) GetByCode(ctx context.Context, videoID, languageCode string) (*models.SubtitleLanguage, error) {
	return s.languages[s.key(videoID, languageCode)], nil
}

func (s *fakeLanguageStore) Create(ctx context.Context, language *models.SubtitleLanguage) (*models.SubtitleLanguage, error) {
	language.ID = s.key(language.VideoID, language.LanguageCode)
	s.languages[language.ID] = language
	return language, nil
}

func (s *fakeLanguageStore) LockForUpdate(ctx context.Context, tx database.Tx, id string) (*models.SubtitleLanguage, error) {
	language, ok := s.languages[id]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "subtitle language %s not found", id)
	}
	return language, nil
}

func (s *fakeLanguageStore) SetCompleteTx(ctx context.Context, tx database.Tx, id string, complete bool) error {
	s.languages[id].SubtitlesComplete = complete
	return nil
}

type fakeVersionStore struct {
	versions []*models.SubtitleVersion
	contents map[string][]byte
	parents  map[string][]string
}

func newFakeVersionStore() *fakeVersionStore {
	return &fakeVersionStore{
		contents: map[string][]byte{},
		parents:  map[string][]string{},
	}
}

func (s *fakeVersionStore) tip(languageID string, view models.VersionView) *models.SubtitleVersion {
	var best *models.SubtitleVersion
	for _, v := range s.versions {
		if v.LanguageID != languageID || !v.InView(view) {
			continue
		}
		if best == nil || v.VersionNumber > best.VersionNumber {
			best = v
		}
	}
	return best
}

func (s *fakeVersionStore) TipTx(ctx context.Context, tx database.Tx, languageID string, view models.VersionView) (*models.SubtitleVersion, error) {
	return s.tip(languageID, view), nil
}

func (s *fakeVersionStore) Tip(ctx context.Context, languageID string, view models.VersionView) (*models.SubtitleVersion, error) {
	return s.tip(languageID, view), nil
}

func (s *fakeVersionStore) ByRefTx(ctx context.Context, tx database.Tx, videoID, languageCode string, number int) (*models.SubtitleVersion, error) {
	for _, v := range s.versions {
		if v.VideoID == videoID && v.LanguageCode == languageCode && v.VersionNumber == number {
			return v, nil
		}
	}
	return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "version %s/%d not found", languageCode, number)
}

func (s *fakeVersionStore) ByNumber(ctx context.Context, languageID string, number int, view models.VersionView) (*models.SubtitleVersion, error) {
	for _, v := range s.versions {
		if v.LanguageID == languageID && v.VersionNumber == number && v.InView(view) {
			return v, nil
		}
	}
	return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "version %d not found", number)
}

func (s *fakeVersionStore) InsertTx(ctx context.Context, tx database.Tx, version *models.SubtitleVersion, payload []byte) error {
	for _, v := range s.versions {
		if v.LanguageID == version.LanguageID && v.VersionNumber == version.VersionNumber {
			return httperror.NewHTTPErrorf(http.StatusConflict, "version number %d already exists for language %s; retry the write", version.VersionNumber, version.LanguageCode)
		}
	}
	if version.ID == "" {
		version.ID = fmt.Sprintf("%s/%d", version.LanguageID, version.VersionNumber)
	}
	s.versions = append(s.versions, version)
	s.contents[version.ID] = payload
	return nil
}

func (s *fakeVersionStore) InsertParentsTx(ctx context.Context, tx database.Tx, versionID string, parentIDs []string) error {
	s.parents[versionID] = parentIDs
	return nil
}

func (s *fakeVersionStore) Content(ctx context.Context, versionID string) ([]byte, error) {
	payload, ok := s.contents[versionID]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "version %s not found", versionID)
	}
	return payload, nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *fakeLanguageStore, *fakeVersionStore) {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	languages := newFakeLanguageStore()
	versions := newFakeVersionStore()
	gateway := NewPipeline(&fakeDB{}, languages, versions, nil, nil, nil, subtitle.ChangeFractions, []string{"speaker-name", "location"}, logger)
	return gateway, languages, versions
}

func seedLanguage(t *testing.T, languages *fakeLanguageStore, videoID, code string) *models.SubtitleLanguage {
	t.Helper()
	language, err := languages.Create(context.Background(), &models.SubtitleLanguage{VideoID: videoID, LanguageCode: code})
	require.NoError(t, err)
	return language
}

func addVersion(t *testing.T, gateway *Pipeline, req *models.AddVersionRequest) *models.SubtitleVersion {
	t.Helper()
	version, err := gateway.AddVersion(context.Background(), req)
	require.NoError(t, err)
	return version
}

func simpleRequest(code string) *models.AddVersionRequest {
	return &models.AddVersionRequest{
		VideoID:      "video-1",
		LanguageCode: code,
		Origin:       models.OriginWebEditor,
		Items: []models.SubtitleItem{
			{StartMS: intPtr(0), EndMS: intPtr(1000), Text: "hello"},
		},
	}
}

func intPtr(v int) *int {
	return &v
}

func TestAddVersion(t *testing.T) {
	t.Run("should number the first version 1 with defaults", func(t *testing.T) {
		gateway, languages, versions := newTestPipeline(t)
		seedLanguage(t, languages, "video-1", "en")

		version := addVersion(t, gateway, simpleRequest("en"))

		assert.Equal(t, 1, version.VersionNumber)
		assert.Equal(t, models.VisibilityPublic, version.Visibility)
		assert.Empty(t, version.VisibilityOverride)
		assert.Equal(t, 1, version.SubtitleCount)
		assert.Empty(t, version.Lineage)
		assert.Empty(t, versions.parents[version.ID])
	})

	t.Run("should make the previous tip an implicit parent", func(t *testing.T) {
		gateway, languages, _ := newTestPipeline(t)
		seedLanguage(t, languages, "video-1", "en")

		first := addVersion(t, gateway, simpleRequest("en"))
		second := addVersion(t, gateway, simpleRequest("en"))

		assert.Equal(t, 2, second.VersionNumber)
		assert.Equal(t, []string{first.ID}, second.ParentIDs)
		assert.Equal(t, lineage.Lineage{"en": 1}, second.Lineage)
	})

	t.Run("should not duplicate an explicitly named tip parent", func(t *testing.T) {
		gateway, languages, _ := newTestPipeline(t)
		seedLanguage(t, languages, "video-1", "en")

		first := addVersion(t, gateway, simpleRequest("en"))

		req := simpleRequest("en")
		req.Parents = []models.ParentRef{{LanguageCode: "en", VersionNumber: 1}}
		second := addVersion(t, gateway, req)

		assert.Equal(t, []string{first.ID}, second.ParentIDs)
	})

	t.Run("should number over deleted versions", func(t *testing.T) {
		gateway, languages, versions := newTestPipeline(t)
		seedLanguage(t, languages, "video-1", "en")

		addVersion(t, gateway, simpleRequest("en"))
		second := addVersion(t, gateway, simpleRequest("en"))
		second.VisibilityOverride = models.VisibilityDeleted

		third := addVersion(t, gateway, simpleRequest("en"))

		assert.Equal(t, 3, third.VersionNumber)
		// Deleted tip is still the lineage parent; numbering and parentage
		// both work against the full view.
		assert.Equal(t, []string{second.ID}, third.ParentIDs)
		assert.NotNil(t, versions.contents[third.ID])
	})

	t.Run("should merge cross-language parent lineage", func(t *testing.T) {
		gateway, languages, _ := newTestPipeline(t)
		seedLanguage(t, languages, "video-1", "en")
		seedLanguage(t, languages, "video-1", "fr")

		addVersion(t, gateway, simpleRequest("en"))
		enTip := addVersion(t, gateway, simpleRequest("en"))

		req := simpleRequest("fr")
		req.Parents = []models.ParentRef{{LanguageCode: "en", VersionNumber: 2}}
		frVersion := addVersion(t, gateway, req)

		assert.Equal(t, 1, frVersion.VersionNumber)
		assert.Equal(t, lineage.Lineage{"en": 2}, frVersion.Lineage)
		assert.Contains(t, frVersion.ParentIDs, enTip.ID)

		// The next French version folds in both the French tip and its lineage.
		next := addVersion(t, gateway, simpleRequest("fr"))
		assert.Equal(t, lineage.Lineage{"en": 2, "fr": 1}, next.Lineage)
	})

	t.Run("should reject two parents sharing a language", func(t *testing.T) {
		gateway, languages, _ := newTestPipeline(t)
		seedLanguage(t, languages, "video-1", "en")
		seedLanguage(t, languages, "video-1", "fr")

		addVersion(t, gateway, simpleRequest("en"))
		addVersion(t, gateway, simpleRequest("en"))

		req := simpleRequest("fr")
		req.Parents = []models.ParentRef{
			{LanguageCode: "en", VersionNumber: 1},
			{LanguageCode: "en", VersionNumber: 2},
		}

		_, err := gateway.AddVersion(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	})

	t.Run("should reject a parent that regresses lineage", func(t *testing.T) {
		gateway, languages, _ := newTestPipeline(t)
		seedLanguage(t, languages, "video-1", "en")
		seedLanguage(t, languages, "video-1", "fr")

		addVersion(t, gateway, simpleRequest("en"))
		addVersion(t, gateway, simpleRequest("en"))

		// French starts from English v2.
		req := simpleRequest("fr")
		req.Parents = []models.ParentRef{{LanguageCode: "en", VersionNumber: 2}}
		addVersion(t, gateway, req)

		// Naming English v1 now would walk the ancestry backwards.
		regress := simpleRequest("fr")
		regress.Parents = []models.ParentRef{{LanguageCode: "en", VersionNumber: 1}}

		_, err := gateway.AddVersion(context.Background(), regress)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	})

	t.Run("should use a caller-supplied lineage verbatim", func(t *testing.T) {
		gateway, languages, _ := newTestPipeline(t)
		seedLanguage(t, languages, "video-1", "en")

		addVersion(t, gateway, simpleRequest("en"))

		req := simpleRequest("en")
		req.Lineage = lineage.Lineage{"de": 9}
		version := addVersion(t, gateway, req)

		assert.Equal(t, lineage.Lineage{"de": 9}, version.Lineage)
	})

	t.Run("should reject an unknown language without create_language", func(t *testing.T) {
		gateway, _, _ := newTestPipeline(t)

		_, err := gateway.AddVersion(context.Background(), simpleRequest("en"))
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})

	t.Run("should create the language when asked to", func(t *testing.T) {
		gateway, languages, _ := newTestPipeline(t)

		req := simpleRequest("en")
		req.CreateLanguage = true
		version := addVersion(t, gateway, req)

		assert.Equal(t, 1, version.VersionNumber)
		created, _ := languages.GetByCode(context.Background(), "video-1", "en")
		require.NotNil(t, created)
		assert.True(t, created.IsForked)
	})

	t.Run("should reject invalid origins and visibilities", func(t *testing.T) {
		gateway, languages, _ := newTestPipeline(t)
		seedLanguage(t, languages, "video-1", "en")

		req := simpleRequest("en")
		req.Origin = "carrier-pigeon"
		_, err := gateway.AddVersion(context.Background(), req)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))

		req = simpleRequest("en")
		req.Visibility = models.VisibilityDeleted
		_, err = gateway.AddVersion(context.Background(), req)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	})

	t.Run("should reject metadata keys outside the allowlist", func(t *testing.T) {
		gateway, languages, _ := newTestPipeline(t)
		seedLanguage(t, languages, "video-1", "en")

		req := simpleRequest("en")
		req.Metadata = map[string]string{"mood": "upbeat"}

		_, err := gateway.AddVersion(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))

		req = simpleRequest("en")
		req.Metadata = map[string]string{"speaker-name": "Ana"}
		version := addVersion(t, gateway, req)
		assert.Equal(t, "Ana", version.Metadata["speaker-name"])
	})

	t.Run("should reject raw markup combined with items", func(t *testing.T) {
		gateway, languages, _ := newTestPipeline(t)
		seedLanguage(t, languages, "video-1", "en")

		req := simpleRequest("en")
		req.RawMarkup = `<tt xmlns="http://www.w3.org/ns/ttml"><body/></tt>`

		_, err := gateway.AddVersion(context.Background(), req)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	})

	t.Run("should accept raw markup content", func(t *testing.T) {
		gateway, languages, versions := newTestPipeline(t)
		seedLanguage(t, languages, "video-1", "en")

		req := &models.AddVersionRequest{
			VideoID:      "video-1",
			LanguageCode: "en",
			Origin:       models.OriginUpload,
			RawMarkup: `<tt xmlns="http://www.w3.org/ns/ttml">
				<body><div><p begin="1s" end="2s">Uploaded</p></div></body>
			</tt>`,
		}
		version := addVersion(t, gateway, req)

		assert.Equal(t, 1, version.SubtitleCount)

		set, err := subtitle.Decode(versions.contents[version.ID])
		require.NoError(t, err)
		require.Len(t, set.Items, 1)
		assert.Equal(t, "Uploaded", set.Items[0].Text)
	})

	t.Run("should update subtitles_complete alongside the write", func(t *testing.T) {
		gateway, languages, _ := newTestPipeline(t)
		seedLanguage(t, languages, "video-1", "en")

		complete := true
		req := simpleRequest("en")
		req.SubtitlesComplete = &complete
		addVersion(t, gateway, req)

		language, _ := languages.GetByCode(context.Background(), "video-1", "en")
		assert.True(t, language.SubtitlesComplete)
	})

	t.Run("should memoize change fractions against the previous tip", func(t *testing.T) {
		gateway, languages, _ := newTestPipeline(t)
		seedLanguage(t, languages, "video-1", "en")

		addVersion(t, gateway, simpleRequest("en"))

		req := simpleRequest("en")
		req.Items = []models.SubtitleItem{
			{StartMS: intPtr(0), EndMS: intPtr(1000), Text: "goodbye"},
		}
		second := addVersion(t, gateway, req)

		require.NotNil(t, second.TimeChange)
		require.NotNil(t, second.TextChange)
		assert.Equal(t, 0.0, *second.TimeChange)
		assert.Equal(t, 1.0, *second.TextChange)
	})

	t.Run("should leave change fractions unset on the first version", func(t *testing.T) {
		gateway, languages, _ := newTestPipeline(t)
		seedLanguage(t, languages, "video-1", "en")

		version := addVersion(t, gateway, simpleRequest("en"))

		assert.Nil(t, version.TimeChange)
		assert.Nil(t, version.TextChange)
	})
}

func TestRollback(t *testing.T) {
	seedHistory := func(t *testing.T, gateway *Pipeline, languages *fakeLanguageStore) {
		seedLanguage(t, languages, "video-1", "en")
		first := simpleRequest("en")
		first.Title = "original title"
		addVersion(t, gateway, first)

		second := simpleRequest("en")
		second.Items = []models.SubtitleItem{
			{StartMS: intPtr(0), EndMS: intPtr(1000), Text: "rewritten"},
		}
		addVersion(t, gateway, second)
	}

	t.Run("should restore old content as a new tip version", func(t *testing.T) {
		gateway, languages, versions := newTestPipeline(t)
		seedHistory(t, gateway, languages)

		restored, err := gateway.Rollback(context.Background(), "video-1", "en", 1, &models.RollbackRequest{AuthorID: "user-2"})
		require.NoError(t, err)

		assert.Equal(t, 3, restored.VersionNumber)
		assert.Equal(t, models.OriginRollback, restored.Origin)
		require.NotNil(t, restored.RollbackOfVersionNumber)
		assert.Equal(t, 1, *restored.RollbackOfVersionNumber)
		assert.Equal(t, "original title", restored.Title)
		assert.Equal(t, models.VisibilityPublic, restored.Visibility)

		set, err := subtitle.Decode(versions.contents[restored.ID])
		require.NoError(t, err)
		require.Len(t, set.Items, 1)
		assert.Equal(t, "hello", set.Items[0].Text)
	})

	t.Run("should republish when rolling back to a private version", func(t *testing.T) {
		gateway, languages, _ := newTestPipeline(t)
		seedLanguage(t, languages, "video-1", "en")

		private := simpleRequest("en")
		private.Visibility = models.VisibilityPrivate
		addVersion(t, gateway, private)
		addVersion(t, gateway, simpleRequest("en"))

		restored, err := gateway.Rollback(context.Background(), "video-1", "en", 1, &models.RollbackRequest{})
		require.NoError(t, err)

		assert.Equal(t, models.VisibilityPublic, restored.Visibility)
	})

	t.Run("should restore a version a moderator overrode to deleted", func(t *testing.T) {
		gateway, languages, versions := newTestPipeline(t)
		seedLanguage(t, languages, "video-1", "en")

		first := addVersion(t, gateway, simpleRequest("en"))
		second := simpleRequest("en")
		second.Items = []models.SubtitleItem{
			{StartMS: intPtr(0), EndMS: intPtr(1000), Text: "rewritten"},
		}
		addVersion(t, gateway, second)
		first.VisibilityOverride = models.VisibilityDeleted

		restored, err := gateway.Rollback(context.Background(), "video-1", "en", 1, &models.RollbackRequest{})
		require.NoError(t, err)

		assert.Equal(t, 3, restored.VersionNumber)
		require.NotNil(t, restored.RollbackOfVersionNumber)
		assert.Equal(t, 1, *restored.RollbackOfVersionNumber)

		set, err := subtitle.Decode(versions.contents[restored.ID])
		require.NoError(t, err)
		require.Len(t, set.Items, 1)
		assert.Equal(t, "hello", set.Items[0].Text)
	})

	t.Run("should refuse rolling back to the current tip", func(t *testing.T) {
		gateway, languages, _ := newTestPipeline(t)
		seedHistory(t, gateway, languages)

		_, err := gateway.Rollback(context.Background(), "video-1", "en", 2, &models.RollbackRequest{})
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	})

	t.Run("should 404 for a missing source version", func(t *testing.T) {
		gateway, languages, _ := newTestPipeline(t)
		seedHistory(t, gateway, languages)

		_, err := gateway.Rollback(context.Background(), "video-1", "en", 9, &models.RollbackRequest{})
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})

	t.Run("should 404 for a missing language", func(t *testing.T) {
		gateway, _, _ := newTestPipeline(t)

		_, err := gateway.Rollback(context.Background(), "video-1", "xx", 1, &models.RollbackRequest{})
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})
}
