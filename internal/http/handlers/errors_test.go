package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/28devcom/whats-suite-feed-nps-sub002/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestContext(target string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"not found", services.ErrNotFound, http.StatusNotFound},
		{"already assigned", services.ErrAlreadyAssigned, http.StatusConflict},
		{"already running", services.ErrAlreadyRunning, http.StatusConflict},
		{"invalid state", services.ErrInvalidState, http.StatusUnprocessableEntity},
		{"invalid transition", services.ErrInvalidTransition, http.StatusUnprocessableEntity},
		{"not queue member", services.ErrNotQueueMember, http.StatusUnprocessableEntity},
		{"no candidates", services.ErrNoCandidates, http.StatusBadRequest},
		{"wrapped sentinel", fmt.Errorf("context: %w", services.ErrInvalidState), http.StatusUnprocessableEntity},
		{"unknown error", fmt.Errorf("connection reset"), http.StatusInternalServerError},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c, rec := newTestContext("/")
			if err := serviceError(c, test.err); err != nil {
				t.Fatalf("serviceError returned error: %v", err)
			}
			if rec.Code != test.expected {
				t.Errorf("status = %d, expected %d", rec.Code, test.expected)
			}
		})
	}
}

func TestPathUUID(t *testing.T) {
	c, _ := newTestContext("/")
	id := uuid.New()
	c.SetParamNames("id")
	c.SetParamValues(id.String())

	parsed, err := pathUUID(c, "id")
	if err != nil {
		t.Fatalf("pathUUID returned error: %v", err)
	}
	if parsed != id {
		t.Errorf("parsed = %s, expected %s", parsed, id)
	}

	c.SetParamValues("not-a-uuid")
	if _, err := pathUUID(c, "id"); err == nil {
		t.Error("pathUUID accepted an invalid value")
	}
}

func TestPaginationDefaultsAndBounds(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		expectedLimit  int
		expectedOffset int
	}{
		{"defaults", "/", 20, 0},
		{"explicit", "/?limit=50&offset=40", 50, 40},
		{"limit capped", "/?limit=500", 20, 0},
		{"negative ignored", "/?limit=-5&offset=-10", 20, 0},
		{"garbage ignored", "/?limit=abc&offset=xyz", 20, 0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c, _ := newTestContext(test.query)
			limit, offset := pagination(c)
			if limit != test.expectedLimit || offset != test.expectedOffset {
				t.Errorf("pagination() = (%d, %d), expected (%d, %d)", limit, offset, test.expectedLimit, test.expectedOffset)
			}
		})
	}
}
