package ap

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/atrium-social/atrium/httpsig"
	"github.com/atrium-social/atrium/types"
	"github.com/atrium-social/atrium/world"
)

var tracer = otel.Tracer("activitypub")

type Handler struct {
	service *Service
}

func NewHandler(service *Service) Handler {
	return Handler{service}
}

func (h Handler) HostMeta(c echo.Context) error {
	_, span := tracer.Start(c.Request().Context(), "HostMeta")
	defer span.End()

	hostMeta := `<?xml version="1.0" encoding="UTF-8"?>
<XRD xmlns="http://docs.oasis-open.org/ns/xri/xrd-1.0">
  <Link rel="lrdd" template="https://` + h.service.config.FQDN + `/.well-known/webfinger?resource={uri}"/>
</XRD>`

	c.Response().Header().Set("Content-Type", "application/xrd+xml")
	return c.String(http.StatusOK, hostMeta)
}

func (h Handler) WebFinger(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "WebFinger")
	defer span.End()

	resource := c.QueryParam("resource")
	result, err := h.service.WebFinger(ctx, resource)
	if err != nil {
		span.RecordError(err)
		return c.String(http.StatusNotFound, "resource not found")
	}

	c.Response().Header().Set("Content-Type", world.JRDJSONType)
	return c.JSON(http.StatusOK, result)
}

// NodeInfo handles nodeinfo requests
func (h Handler) NodeInfo(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "NodeInfo")
	defer span.End()

	result, err := h.service.NodeInfo(ctx)
	if err != nil {
		span.RecordError(err)
		return c.String(http.StatusInternalServerError, "Internal server error: "+err.Error())
	}

	c.Response().Header().Set("Content-Type", "application/json")
	return c.JSON(http.StatusOK, result)
}

func (h Handler) NodeInfoWellKnown(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "NodeInfoWellKnown")
	defer span.End()

	result, err := h.service.NodeInfoWellKnown(ctx)
	if err != nil {
		span.RecordError(err)
		return c.String(http.StatusInternalServerError, "Internal server error: "+err.Error())
	}

	c.Response().Header().Set("Content-Type", "application/json")
	return c.JSON(http.StatusOK, result)
}

// --

// Actor serves the local actor document.
func (h Handler) Actor(c echo.Context) error {
	_, span := tracer.Start(c.Request().Context(), "Actor")
	defer span.End()

	username := c.Param("username")
	if username != h.service.config.Username {
		return c.String(http.StatusNotFound, "actor not found")
	}

	c.Response().Header().Set("Content-Type", world.ActivityJSONType)
	return c.JSON(http.StatusOK, h.service.MainActor())
}

// Inbox ingests an incoming activity. 202 means accepted for processing,
// not processed; dispatch runs in the background or via sync.
func (h Handler) Inbox(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Inbox")
	defer span.End()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		span.RecordError(err)
		return c.String(http.StatusBadRequest, "Invalid request body")
	}

	_, err = h.service.Ingest(ctx, c.Param("username"), c.Request(), body)
	if err != nil {
		span.RecordError(err)

		var badFormat *httpsig.BadFormatError
		var verification *httpsig.VerificationError
		switch {
		case errors.Is(err, ErrActorNotFound):
			return c.String(http.StatusNotFound, "actor not found")
		case errors.Is(err, ErrInvalidActivity):
			return c.String(http.StatusUnprocessableEntity, "invalid activity")
		case errors.As(err, &badFormat):
			return c.String(http.StatusBadRequest, badFormat.Reason)
		case errors.As(err, &verification):
			return c.String(http.StatusUnauthorized, verification.Reason)
		default:
			return c.String(http.StatusInternalServerError, "Internal server error")
		}
	}

	return c.NoContent(http.StatusAccepted)
}

// SyncInbox reprocesses a status bucket. Operator-triggered; this is the
// engine's only retry mechanism.
func (h Handler) SyncInbox(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "SyncInbox")
	defer span.End()

	status := types.InboxEntryStatus(c.QueryParam("status"))

	if err := h.service.Sync(ctx, status); err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrInvalidSyncStatus) {
			return c.String(http.StatusBadRequest, "invalid status")
		}
		return c.String(http.StatusInternalServerError, "Internal server error")
	}

	return c.NoContent(http.StatusAccepted)
}

// CleanupInbox bulk-deletes synced entries.
func (h Handler) CleanupInbox(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "CleanupInbox")
	defer span.End()

	if err := h.service.Cleanup(ctx); err != nil {
		span.RecordError(err)
		return c.String(http.StatusInternalServerError, "Internal server error")
	}

	return c.NoContent(http.StatusAccepted)
}
