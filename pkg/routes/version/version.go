package version

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/languages"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pipeline"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New()

// Register registers subtitle version routes under a language group
func Register(g *echo.Group) {
	g.GET("/:language_code/tip", GetTip)
	g.GET("/:language_code/versions", List)
	g.POST("/:language_code/versions", Add)
	g.GET("/:language_code/versions/:number", Get)
	g.GET("/:language_code/versions/:number/content", GetContent)
	g.GET("/:language_code/versions/:number/siblings", Siblings)
	g.GET("/:language_code/versions/:number/parents", Parents)
	g.GET("/:language_code/versions/:number/ancestors", Ancestors)
	g.GET("/:language_code/versions/:number/rollback-source", RollbackSource)
	g.PUT("/:language_code/versions/:number/visibility", SetVisibility)
	g.POST("/:language_code/versions/:number/rollback", Rollback)
}

// parseView maps the view query parameter. The default working view hides
// deleted versions only.
func parseView(c echo.Context) (models.VersionView, error) {
	switch c.QueryParam("view") {
	case "", "extant":
		return models.ViewExtant, nil
	case "full":
		return models.ViewFull, nil
	case "public":
		return models.ViewPublic, nil
	default:
		return "", httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid view %q", c.QueryParam("view"))
	}
}

func parseNumber(c echo.Context) (int, error) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 1 {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid version number %q", c.Param("number"))
	}
	return number, nil
}

// GetTip returns the newest version of a language under the view
func GetTip(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "version_handler.GetTip")
	defer span.End()

	view, err := parseView(c)
	if err != nil {
		return err
	}

	ctx, registry, err := ectoinject.GetContext[*languages.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get language registry")
	}

	tip, err := registry.GetTip(ctx, c.Param("video_id"), c.Param("language_code"), view)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.VersionResponse{SubtitleVersion: *tip})
}

// List returns a page of a language's version history under the view
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "version_handler.List")
	defer span.End()

	view, err := parseView(c)
	if err != nil {
		return err
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	ctx, registry, err := ectoinject.GetContext[*languages.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get language registry")
	}

	result, err := registry.ListVersions(ctx, c.Param("video_id"), c.Param("language_code"), view, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Add writes a new subtitle version through the write gateway
func Add(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "version_handler.Add")
	defer span.End()

	var req models.AddVersionRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.VideoID = c.Param("video_id")
	req.LanguageCode = c.Param("language_code")

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, gateway, err := ectoinject.GetContext[*pipeline.Pipeline](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get write gateway")
	}

	version, err := gateway.AddVersion(ctx, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, models.VersionResponse{SubtitleVersion: *version})
}

// Get returns one version under the view
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "version_handler.Get")
	defer span.End()

	view, err := parseView(c)
	if err != nil {
		return err
	}
	number, err := parseNumber(c)
	if err != nil {
		return err
	}

	ctx, registry, err := ectoinject.GetContext[*languages.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get language registry")
	}

	version, err := registry.GetVersion(ctx, c.Param("video_id"), c.Param("language_code"), number, view)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.VersionResponse{SubtitleVersion: *version})
}

// GetContent returns the subtitle content of a version, as items or TTML
// markup depending on the format query parameter
func GetContent(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "version_handler.GetContent")
	defer span.End()

	view, err := parseView(c)
	if err != nil {
		return err
	}
	number, err := parseNumber(c)
	if err != nil {
		return err
	}

	ctx, registry, err := ectoinject.GetContext[*languages.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get language registry")
	}

	set, err := registry.GetContent(ctx, c.Param("video_id"), c.Param("language_code"), number, view)
	if err != nil {
		return err
	}

	if c.QueryParam("format") == "ttml" {
		return c.Blob(http.StatusOK, "application/ttml+xml", []byte(set.ToMarkup()))
	}

	return c.JSON(http.StatusOK, set)
}

// Siblings returns the neighboring versions in the full-view chain
func Siblings(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "version_handler.Siblings")
	defer span.End()

	number, err := parseNumber(c)
	if err != nil {
		return err
	}

	ctx, registry, err := ectoinject.GetContext[*languages.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get language registry")
	}

	previous, next, err := registry.Siblings(ctx, c.Param("video_id"), c.Param("language_code"), number)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"previous": previous, "next": next})
}

// Parents returns the direct parents of a version
func Parents(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "version_handler.Parents")
	defer span.End()

	number, err := parseNumber(c)
	if err != nil {
		return err
	}

	ctx, registry, err := ectoinject.GetContext[*languages.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get language registry")
	}

	parents, err := registry.GetParents(ctx, c.Param("video_id"), c.Param("language_code"), number)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"items": parents, "total_count": len(parents)})
}

// Ancestors returns the transitive ancestors of a version from the graph
// projection
func Ancestors(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "version_handler.Ancestors")
	defer span.End()

	number, err := parseNumber(c)
	if err != nil {
		return err
	}

	ctx, registry, err := ectoinject.GetContext[*languages.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get language registry")
	}

	version, err := registry.GetVersion(ctx, c.Param("video_id"), c.Param("language_code"), number, models.ViewFull)
	if err != nil {
		return err
	}

	ctx, graphClient, err := ectoinject.GetContext[*graph.Client](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get graph client")
	}

	ids, err := graphClient.Ancestors(ctx, version.ID)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to query version ancestors")
	}

	return c.JSON(http.StatusOK, map[string]any{"items": ids, "total_count": len(ids)})
}

// RollbackSource returns the version a rollback restored, or null for normal
// versions
func RollbackSource(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "version_handler.RollbackSource")
	defer span.End()

	number, err := parseNumber(c)
	if err != nil {
		return err
	}

	ctx, registry, err := ectoinject.GetContext[*languages.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get language registry")
	}

	source, err := registry.RollbackSource(ctx, c.Param("video_id"), c.Param("language_code"), number)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"source": source})
}

// SetVisibilityRequest applies a moderation override to a version
type SetVisibilityRequest struct {
	Override string `json:"override"`
}

// SetVisibility applies or clears a moderation override on a version
func SetVisibility(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "version_handler.SetVisibility")
	defer span.End()

	number, err := parseNumber(c)
	if err != nil {
		return err
	}

	var req SetVisibilityRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, registry, err := ectoinject.GetContext[*languages.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get language registry")
	}

	version, err := registry.SetVersionVisibility(ctx, c.Param("video_id"), c.Param("language_code"), number, req.Override)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.VersionResponse{SubtitleVersion: *version})
}

// Rollback restores an earlier version's content as a new version
func Rollback(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "version_handler.Rollback")
	defer span.End()

	number, err := parseNumber(c)
	if err != nil {
		return err
	}

	var req models.RollbackRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}

	ctx, gateway, err := ectoinject.GetContext[*pipeline.Pipeline](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get write gateway")
	}

	version, err := gateway.Rollback(ctx, c.Param("video_id"), c.Param("language_code"), number, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, models.VersionResponse{SubtitleVersion: *version})
}
