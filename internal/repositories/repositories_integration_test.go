package repositories_test

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/internal/repositories/collaborator"
	"github.com/Ramsey-B/fern/internal/repositories/subtitlelanguage"
	"github.com/Ramsey-B/fern/internal/repositories/subtitleversion"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/lineage"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/subtitle"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	// Use environment variables or defaults for test DB
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "fern"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	return database.NewDatabaseInstance(db, getTestLogger())
}

// assertNotFound asserts that err is an HTTP 404 error
func assertNotFound(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err), "expected 404, got: %d", httperror.GetStatusCode(err))
}

func encodeItems(t *testing.T, text string) []byte {
	t.Helper()
	start := 0
	end := 1000
	payload, err := subtitle.Encode(subtitle.FromItems("en", []subtitle.Item{
		{StartMS: &start, EndMS: &end, Text: text},
	}))
	require.NoError(t, err)
	return payload
}

func TestSubtitleLanguageRepository_CRUD(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	repo := subtitlelanguage.NewRepository(db, logger)

	ctx := context.Background()
	videoID := uuid.New().String()

	created, err := repo.Create(ctx, &models.SubtitleLanguage{
		VideoID:      videoID,
		LanguageCode: "en",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	// Duplicate (video, language) conflicts
	_, err = repo.Create(ctx, &models.SubtitleLanguage{VideoID: videoID, LanguageCode: "en"})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

	fetched, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)

	byCode, err := repo.GetByCode(ctx, videoID, "en")
	require.NoError(t, err)
	require.NotNil(t, byCode)
	assert.Equal(t, created.ID, byCode.ID)

	missing, err := repo.GetByCode(ctx, videoID, "fr")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// Writelock round trip
	owner := "user-1"
	session := "session-1"
	now := time.Now().UTC()
	require.NoError(t, repo.UpdateWritelock(ctx, created.ID, &owner, &session, &now))

	locked, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, locked.IsWritelocked())

	require.NoError(t, repo.UpdateWritelock(ctx, created.ID, nil, nil, nil))

	released, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, released.IsWritelocked())

	// Signoff counters
	require.NoError(t, repo.UpdateSignoffCounts(ctx, created.ID, models.SignoffCounts{Official: 2, Pending: 1, PendingUnexpired: 1}))

	counted, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, counted.OfficialSignoffCount)
	assert.Equal(t, 1, counted.PendingSignoffCount)

	// Fetch counter
	require.NoError(t, repo.IncrementFetchCount(ctx, created.ID))
	bumped, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, bumped.SubtitlesFetchedCount)

	_, err = repo.GetByID(ctx, uuid.New().String())
	assertNotFound(t, err)
}

func TestSubtitleVersionRepository_ViewsAndParents(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	languageRepo := subtitlelanguage.NewRepository(db, logger)
	versionRepo := subtitleversion.NewRepository(db, logger)

	ctx := context.Background()
	videoID := uuid.New().String()

	language, err := languageRepo.Create(ctx, &models.SubtitleLanguage{VideoID: videoID, LanguageCode: "en"})
	require.NoError(t, err)

	insert := func(number int, visibility, override string) *models.SubtitleVersion {
		txCtx, tx, err := db.GetTx(ctx, nil)
		require.NoError(t, err)

		version := &models.SubtitleVersion{
			VideoID:            videoID,
			LanguageID:         language.ID,
			LanguageCode:       "en",
			VersionNumber:      number,
			Visibility:         visibility,
			VisibilityOverride: override,
			Origin:             models.OriginWebEditor,
			SubtitleCount:      1,
			Lineage:            lineage.Lineage{},
		}
		require.NoError(t, versionRepo.InsertTx(txCtx, tx, version, encodeItems(t, "v")))
		require.NoError(t, tx.Commit(ctx))
		return version
	}

	insert(1, models.VisibilityPublic, "")
	v2 := insert(2, models.VisibilityPrivate, "")
	v3 := insert(3, models.VisibilityPublic, models.VisibilityDeleted)

	// Numbering races surface as conflicts
	txCtx, tx, err := db.GetTx(ctx, nil)
	require.NoError(t, err)
	dup := &models.SubtitleVersion{
		VideoID:       videoID,
		LanguageID:    language.ID,
		LanguageCode:  "en",
		VersionNumber: 2,
		Visibility:    models.VisibilityPublic,
		Origin:        models.OriginAPI,
	}
	err = versionRepo.InsertTx(txCtx, tx, dup, encodeItems(t, "dup"))
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
	require.NoError(t, tx.Rollback(ctx))

	// Tips per view
	fullTip, err := versionRepo.Tip(ctx, language.ID, models.ViewFull)
	require.NoError(t, err)
	assert.Equal(t, 3, fullTip.VersionNumber)

	extantTip, err := versionRepo.Tip(ctx, language.ID, models.ViewExtant)
	require.NoError(t, err)
	assert.Equal(t, 2, extantTip.VersionNumber)

	publicTip, err := versionRepo.Tip(ctx, language.ID, models.ViewPublic)
	require.NoError(t, err)
	assert.Equal(t, 1, publicTip.VersionNumber)

	// Hidden versions 404 exactly like absent ones
	_, err = versionRepo.ByNumber(ctx, language.ID, 2, models.ViewPublic)
	assertNotFound(t, err)
	_, err = versionRepo.ByNumber(ctx, language.ID, 3, models.ViewExtant)
	assertNotFound(t, err)
	_, err = versionRepo.ByNumber(ctx, language.ID, 9, models.ViewFull)
	assertNotFound(t, err)

	// Parent edges
	txCtx, tx, err = db.GetTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, versionRepo.InsertParentsTx(txCtx, tx, v3.ID, []string{v2.ID}))
	require.NoError(t, tx.Commit(ctx))

	parents, err := versionRepo.Parents(ctx, v3.ID)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	assert.Equal(t, 2, parents[0].VersionNumber)

	// Content round trip
	payload, err := versionRepo.Content(ctx, v2.ID)
	require.NoError(t, err)
	set, err := subtitle.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())

	// Visibility mutation
	require.NoError(t, versionRepo.SetVisibility(ctx, v3.ID, models.VisibilityPublic, ""))
	restored, err := versionRepo.ByNumber(ctx, language.ID, 3, models.ViewExtant)
	require.NoError(t, err)
	assert.False(t, restored.IsDeleted())

	// Siblings in the full chain
	previous, err := versionRepo.Sibling(ctx, language.ID, 2, false)
	require.NoError(t, err)
	assert.Equal(t, 1, previous.VersionNumber)
	next, err := versionRepo.Sibling(ctx, language.ID, 3, true)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestCollaboratorRepository_CRUD(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	languageRepo := subtitlelanguage.NewRepository(db, logger)
	collaboratorRepo := collaborator.NewRepository(db, logger)

	ctx := context.Background()
	videoID := uuid.New().String()

	language, err := languageRepo.Create(ctx, &models.SubtitleLanguage{VideoID: videoID, LanguageCode: "en"})
	require.NoError(t, err)

	record, err := collaboratorRepo.Upsert(ctx, &models.Collaborator{
		UserID:     "user-1",
		LanguageID: language.ID,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)

	// Upsert is idempotent per (user, language)
	again, err := collaboratorRepo.Upsert(ctx, &models.Collaborator{
		UserID:     "user-1",
		LanguageID: language.ID,
		Expired:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, record.ID, again.ID)

	require.NoError(t, collaboratorRepo.SetSignoff(ctx, language.ID, "user-1", true))

	fetched, err := collaboratorRepo.GetByUser(ctx, language.ID, "user-1")
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.True(t, fetched.Signoff)
	assert.True(t, fetched.SignoffIsOfficial)

	err = collaboratorRepo.SetSignoff(ctx, language.ID, "stranger", false)
	assertNotFound(t, err)

	all, err := collaboratorRepo.ListForLanguage(ctx, language.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, collaboratorRepo.Delete(ctx, language.ID, "user-1"))
	err = collaboratorRepo.Delete(ctx, language.ID, "user-1")
	assertNotFound(t, err)
}
