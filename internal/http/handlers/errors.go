package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/28devcom/whats-suite-feed-nps-sub002/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// serviceError maps engine errors to HTTP responses
func serviceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrAlreadyAssigned), errors.Is(err, services.ErrAlreadyRunning):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidState), errors.Is(err, services.ErrInvalidTransition), errors.Is(err, services.ErrNotQueueMember):
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrNoCandidates):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// pathUUID parses a path parameter as UUID
func pathUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// actorID extracts the authenticated user id set by the JWT middleware
func actorID(c echo.Context) uuid.UUID {
	if id, ok := c.Get("user_id").(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// tenantID extracts the tenant id set by the JWT middleware
func tenantID(c echo.Context) (uuid.UUID, error) {
	if id, ok := c.Get("tenant_id").(uuid.UUID); ok {
		return id, nil
	}
	return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "tenant context required")
}

// pagination parses limit/offset query parameters with defaults
func pagination(c echo.Context) (limit, offset int) {
	limit = 20
	offset = 0

	if raw := c.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	if raw := c.QueryParam("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	return limit, offset
}
