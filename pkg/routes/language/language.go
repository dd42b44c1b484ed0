package language

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	ctxmiddleware "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/languages"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New()

// Register registers subtitle language routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.POST("", Create)
	g.GET("/:language_code", Get)
	g.PUT("/:language_code", Update)
	g.DELETE("/:language_code", Nuke)
	g.POST("/:language_code/fork", Fork)
	g.GET("/:language_code/dependents", Dependents)
	g.GET("/:language_code/translation-source", TranslationSource)
	g.POST("/:language_code/writelock", Writelock)
	g.DELETE("/:language_code/writelock", ReleaseWritelock)
}

// List returns all subtitle languages of a video
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "language_handler.List")
	defer span.End()

	ctx, registry, err := ectoinject.GetContext[*languages.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get language registry")
	}

	result, err := registry.List(ctx, c.Param("video_id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Create registers a new subtitle language for a video
func Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "language_handler.Create")
	defer span.End()

	var req models.CreateLanguageRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, registry, err := ectoinject.GetContext[*languages.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get language registry")
	}

	result, err := registry.Create(ctx, c.Param("video_id"), &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, result)
}

// Get returns one subtitle language
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "language_handler.Get")
	defer span.End()

	ctx, registry, err := ectoinject.GetContext[*languages.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get language registry")
	}

	result, err := registry.Get(ctx, c.Param("video_id"), c.Param("language_code"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Update changes mutable language flags
func Update(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "language_handler.Update")
	defer span.End()

	var req models.UpdateLanguageRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, registry, err := ectoinject.GetContext[*languages.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get language registry")
	}

	result, err := registry.Update(ctx, c.Param("video_id"), c.Param("language_code"), &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Fork marks a language as standing alone
func Fork(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "language_handler.Fork")
	defer span.End()

	ctx, registry, err := ectoinject.GetContext[*languages.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get language registry")
	}

	result, err := registry.Fork(ctx, c.Param("video_id"), c.Param("language_code"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Nuke hard-deletes a language, its versions, and its non-forked dependents
func Nuke(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "language_handler.Nuke")
	defer span.End()

	ctx, registry, err := ectoinject.GetContext[*languages.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get language registry")
	}

	if err := registry.Nuke(ctx, c.Param("video_id"), c.Param("language_code")); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// Dependents returns the languages whose tip lineage references this one
func Dependents(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "language_handler.Dependents")
	defer span.End()

	ctx, registry, err := ectoinject.GetContext[*languages.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get language registry")
	}

	direct := c.QueryParam("direct") == "true"
	dependents, err := registry.DependentLanguages(ctx, c.Param("video_id"), c.Param("language_code"), direct)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"items": dependents, "total_count": len(dependents)})
}

// TranslationSource returns the language this one is translated from
func TranslationSource(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "language_handler.TranslationSource")
	defer span.End()

	ctx, registry, err := ectoinject.GetContext[*languages.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get language registry")
	}

	source, err := registry.TranslationSource(ctx, c.Param("video_id"), c.Param("language_code"))
	if err != nil {
		return err
	}
	if source == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "language has no translation source")
	}

	return c.JSON(http.StatusOK, source)
}

// Writelock acquires or refreshes the language writelock
func Writelock(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "language_handler.Writelock")
	defer span.End()

	req, err := bindWritelockRequest(c)
	if err != nil {
		return err
	}

	ctx, registry, err := ectoinject.GetContext[*languages.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get language registry")
	}

	result, err := registry.Writelock(ctx, c.Param("video_id"), c.Param("language_code"), ctxmiddleware.GetUserID(ctx), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// ReleaseWritelock releases the language writelock
func ReleaseWritelock(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "language_handler.ReleaseWritelock")
	defer span.End()

	req, err := bindWritelockRequest(c)
	if err != nil {
		return err
	}

	ctx, registry, err := ectoinject.GetContext[*languages.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get language registry")
	}

	result, err := registry.ReleaseWritelock(ctx, c.Param("video_id"), c.Param("language_code"), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// bindWritelockRequest reads the session key from the body, falling back to
// the X-Session-Key header
func bindWritelockRequest(c echo.Context) (*models.WritelockRequest, error) {
	var req models.WritelockRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return nil, httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	if req.SessionKey == "" {
		req.SessionKey = c.Request().Header.Get("X-Session-Key")
	}
	if req.SessionKey == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "session_key is required")
	}
	return &req, nil
}
