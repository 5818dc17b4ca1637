package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() { gin.SetMode(gin.TestMode) }

func newRouter(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw)
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.OPTIONS("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func do(r http.Handler, method, header, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/x", nil)
	if key != "" {
		req.Header.Set(header, key)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAPIKey_ModeNone_PassesThrough(t *testing.T) {
	r := newRouter(APIKey("none", "X-API-Key", "secret"))
	if rec := do(r, http.MethodGet, "X-API-Key", ""); rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
}

func TestAPIKey_EmptyKey_PassesThrough(t *testing.T) {
	// key="" means auth is not configured: allow all.
	r := newRouter(APIKey("apikey", "X-API-Key", ""))
	if rec := do(r, http.MethodGet, "X-API-Key", ""); rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
}

func TestAPIKey_CorrectKey_Passes(t *testing.T) {
	r := newRouter(APIKey("apikey", "X-API-Key", "supersecret"))
	rec := do(r, http.MethodGet, "X-API-Key", "supersecret")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body: got %q, want ok", rec.Body.String())
	}
}

func TestAPIKey_HeaderIsCaseInsensitive(t *testing.T) {
	r := newRouter(APIKey("apikey", "x-api-key", "supersecret"))
	if rec := do(r, http.MethodGet, "X-Api-Key", "supersecret"); rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
}

func TestAPIKey_WrongKey_Unauthorized(t *testing.T) {
	r := newRouter(APIKey("apikey", "X-API-Key", "supersecret"))
	rec := do(r, http.MethodGet, "X-API-Key", "wrong")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid api key") {
		t.Errorf("body: got %q", rec.Body.String())
	}
}

func TestAPIKey_MissingHeader_Unauthorized(t *testing.T) {
	r := newRouter(APIKey("apikey", "X-API-Key", "supersecret"))
	rec := do(r, http.MethodGet, "X-API-Key", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "missing api key") {
		t.Errorf("body: got %q", rec.Body.String())
	}
}

func TestAPIKey_PreflightNotChallenged(t *testing.T) {
	r := newRouter(APIKey("apikey", "X-API-Key", "supersecret"))
	if rec := do(r, http.MethodOptions, "X-API-Key", ""); rec.Code != http.StatusNoContent {
		t.Errorf("status: got %d, want 204", rec.Code)
	}
}
