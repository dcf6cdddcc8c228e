package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newContext() (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	return e.NewContext(req, rec), rec
}

func TestOkWithMessage_WrapsData(t *testing.T) {
	c, rec := newContext()

	if err := OkWithMessage(c, "Run completed", map[string]int{"processed": 4}); err != nil {
		t.Fatalf("OkWithMessage returned error: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Success bool           `json:"success"`
		Message string         `json:"message"`
		Data    map[string]int `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if !body.Success {
		t.Errorf("expected Success=true, got false")
	}
	if body.Message != "Run completed" {
		t.Errorf("expected message to round trip, got %q", body.Message)
	}
	if body.Data["processed"] != 4 {
		t.Errorf("expected processed=4, got %d", body.Data["processed"])
	}
}

func TestErrorResponses_SetStatusAndMessage(t *testing.T) {
	cases := []struct {
		name    string
		write   func(echo.Context) error
		code    int
		message string
	}{
		{"bad request", func(c echo.Context) error { return BadRequest(c, errors.New("bad input")) }, http.StatusBadRequest, "bad input"},
		{"not found", func(c echo.Context) error { return NotFound(c, "Collection not found") }, http.StatusNotFound, "Collection not found"},
		{"unauthorized", Unauthorized, http.StatusUnauthorized, "Invalid or missing API key"},
		{"internal", func(c echo.Context) error { return InternalServerError(c, errors.New("db down")) }, http.StatusInternalServerError, "db down"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := newContext()
			if err := tc.write(c); err != nil {
				t.Fatalf("writer returned error: %v", err)
			}

			if rec.Code != tc.code {
				t.Fatalf("expected status %d, got %d", tc.code, rec.Code)
			}

			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if body.Success {
				t.Errorf("expected Success=false, got true")
			}
			if body.Error != tc.message {
				t.Errorf("expected error %q, got %q", tc.message, body.Error)
			}
		})
	}
}

func TestError_IncludesRequestID(t *testing.T) {
	c, rec := newContext()
	c.Response().Header().Set(echo.HeaderXRequestID, "req-123")

	if err := Error(c, http.StatusServiceUnavailable, "lock store unavailable"); err != nil {
		t.Fatalf("Error returned error: %v", err)
	}

	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	if body.RequestID != "req-123" {
		t.Errorf("expected requestId=req-123, got %q", body.RequestID)
	}
}
