package collaborator

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/collaboration"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New()

// Register registers collaborator routes under a language group
func Register(g *echo.Group) {
	g.GET("/:language_code/collaborators", List)
	g.POST("/:language_code/collaborators", Upsert)
	g.POST("/:language_code/collaborators/signoff", Signoff)
	g.DELETE("/:language_code/collaborators/:user_id", Remove)
	g.GET("/:language_code/collaborators/roster", Roster)
}

// List returns the full collaborator roster of a language
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "collaborator_handler.List")
	defer span.End()

	ctx, tracker, err := ectoinject.GetContext[*collaboration.Tracker](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get collaborator tracker")
	}

	result, err := tracker.List(ctx, c.Param("video_id"), c.Param("language_code"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Upsert creates or refreshes a collaborator record
func Upsert(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "collaborator_handler.Upsert")
	defer span.End()

	var req models.UpsertCollaboratorRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, tracker, err := ectoinject.GetContext[*collaboration.Tracker](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get collaborator tracker")
	}

	result, err := tracker.Upsert(ctx, c.Param("video_id"), c.Param("language_code"), &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Signoff records a signoff for an existing collaborator
func Signoff(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "collaborator_handler.Signoff")
	defer span.End()

	var req models.SignoffRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, tracker, err := ectoinject.GetContext[*collaboration.Tracker](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get collaborator tracker")
	}

	if err := tracker.Signoff(ctx, c.Param("video_id"), c.Param("language_code"), &req); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// Remove deletes a collaborator record
func Remove(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "collaborator_handler.Remove")
	defer span.End()

	ctx, tracker, err := ectoinject.GetContext[*collaboration.Tracker](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get collaborator tracker")
	}

	if err := tracker.Remove(ctx, c.Param("video_id"), c.Param("language_code"), c.Param("user_id")); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// Roster returns the collaborators to notify about a new version
func Roster(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "collaborator_handler.Roster")
	defer span.End()

	ctx, tracker, err := ectoinject.GetContext[*collaboration.Tracker](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get collaborator tracker")
	}

	roster, err := tracker.NotificationRoster(ctx, c.Param("video_id"), c.Param("language_code"), c.QueryParam("author_id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"items": roster, "total_count": len(roster)})
}
