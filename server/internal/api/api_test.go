package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jaipatel248/cric-alert/server/internal/api"
	"github.com/jaipatel248/cric-alert/server/internal/auth"
	"github.com/jaipatel248/cric-alert/server/internal/config"
	"github.com/jaipatel248/cric-alert/server/internal/engine"
	"github.com/jaipatel248/cric-alert/server/internal/interpreter"
	"github.com/jaipatel248/cric-alert/server/internal/metrics"
	"github.com/jaipatel248/cric-alert/server/internal/monitor"
	"github.com/jaipatel248/cric-alert/server/internal/provider"
	"github.com/jaipatel248/cric-alert/server/internal/store"
)

func init() { gin.SetMode(gin.TestMode) }

// --- test helpers -----------------------------------------------------------

const liveDoc = `{"matchHeader":{"matchDescription":"1st ODI","matchFormat":"ODI","state":"In Progress",
	"status":"India opt to bat","complete":false,"team1":{"id":2,"shortName":"IND"},"team2":{"id":9,"shortName":"ENG"},
	"matchTeamInfo":[{"battingTeamId":2,"battingTeamShortName":"IND"}]},
	"miniscore":{"overs":20.2,"currentRunRate":6.1,"batTeam":{"teamId":2,"teamScore":124,"teamWkts":2}}}`

// matchServer serves liveDoc for every id except "404" (not found) and
// "done" (a completed match).
func matchServer(t *testing.T) *provider.Cricbuzz {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch strings.TrimPrefix(r.URL.Path, "/") {
		case "404":
			http.NotFound(w, r)
		case "done":
			w.Write([]byte(`{"matchHeader":{"state":"Complete","complete":true}}`))
		default:
			w.Write([]byte(liveDoc))
		}
	}))
	t.Cleanup(srv.Close)
	return provider.New(config.ProviderConfig{BaseURL: srv.URL, Timeout: 2 * time.Second})
}

// stubInterp parses every rule and never finishes an evaluation.
type stubInterp struct{}

func (stubInterp) ParseRule(ctx context.Context, text string) (json.RawMessage, error) {
	return json.RawMessage(`{"entity":"batter"}`), nil
}

func (stubInterp) Evaluate(ctx context.Context, req interpreter.Request) (*interpreter.Decision, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fixture struct {
	h   http.Handler
	eng *engine.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	matches := matchServer(t)
	reg := metrics.New()
	eng := engine.New(store.NewMemory(), matches, stubInterp{}, config.Default().Monitor, engine.Options{Metrics: reg})
	t.Cleanup(eng.Close)
	return &fixture{
		h: api.New(api.Options{
			Monitors:       eng,
			Matches:        matches,
			Metrics:        reg,
			AllowedOrigins: []string{"*"},
		}),
		eng: eng,
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// create posts an alert for match and returns the new monitor id.
func (f *fixture) create(t *testing.T, match string) string {
	t.Helper()
	rr := do(t, f.h, http.MethodPost, "/api/v1/alerts", `{"match_id":`+match+`,"alert_text":"alert at century"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: got %d, want 201 (body: %s)", rr.Code, rr.Body.String())
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)
	return resp["monitor_id"].(string)
}

func (f *fixture) waitStatus(t *testing.T, id string, want monitor.Status) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if m, err := f.eng.Get(id); err == nil && m.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("monitor %s never reached %s", id, want)
}

// --- /health, /ping ---------------------------------------------------------

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rr := do(t, f.h, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)
	if resp["status"] != "healthy" || resp["version"] != api.Version {
		t.Errorf("health: got %v", resp)
	}
	if resp["active_monitors"].(float64) != 0 {
		t.Errorf("active_monitors: got %v, want 0", resp["active_monitors"])
	}
	if _, err := time.Parse(time.RFC3339, resp["timestamp"].(string)); err != nil {
		t.Errorf("timestamp: %v", err)
	}
}

func TestPing(t *testing.T) {
	f := newFixture(t)
	rr := do(t, f.h, http.MethodGet, "/ping", "")
	var resp map[string]string
	decode(t, rr, &resp)
	if resp["message"] != "pong" {
		t.Errorf("message: got %q, want pong", resp["message"])
	}
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	f.create(t, "1")
	rr := do(t, f.h, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "cricalert_monitors") {
		t.Errorf("metrics body missing cricalert_monitors:\n%s", rr.Body.String())
	}
}

// --- /api/v1/alerts ---------------------------------------------------------

func TestCreateAlert(t *testing.T) {
	f := newFixture(t)
	rr := do(t, f.h, http.MethodPost, "/api/v1/alerts", `{"match_id":119888,"alert_text":"Notify me at Kohli's century"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201 (body: %s)", rr.Code, rr.Body.String())
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)
	if resp["match_id"] != "119888" {
		t.Errorf("match_id: got %v, want 119888", resp["match_id"])
	}
	if id, _ := resp["monitor_id"].(string); !strings.HasPrefix(id, "119888_") {
		t.Errorf("monitor_id: got %v", resp["monitor_id"])
	}
	if resp["status"] != "initializing" {
		t.Errorf("status: got %v, want initializing", resp["status"])
	}
}

func TestCreateAlert_StringMatchID(t *testing.T) {
	f := newFixture(t)
	rr := do(t, f.h, http.MethodPost, "/api/v1/alerts", `{"match_id":"77","alert_text":"x"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201", rr.Code)
	}
}

func TestCreateAlert_BadRequest(t *testing.T) {
	f := newFixture(t)
	for name, body := range map[string]string{
		"not json":     `{`,
		"missing text": `{"match_id":1}`,
		"missing id":   `{"alert_text":"x"}`,
		"bad id":       `{"match_id":[1],"alert_text":"x"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rr := do(t, f.h, http.MethodPost, "/api/v1/alerts", body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", rr.Code)
			}
		})
	}
}

func TestCreateAlert_UnknownMatch(t *testing.T) {
	f := newFixture(t)
	rr := do(t, f.h, http.MethodPost, "/api/v1/alerts", `{"match_id":404,"alert_text":"x"}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
	if n := len(f.eng.List()); n != 0 {
		t.Errorf("monitors after failed create: got %d, want 0", n)
	}
}

func TestListAlerts_FilterByMatch(t *testing.T) {
	f := newFixture(t)
	f.create(t, "1")
	f.create(t, "2")

	rr := do(t, f.h, http.MethodGet, "/api/v1/alerts", "")
	var all []map[string]interface{}
	decode(t, rr, &all)
	if len(all) != 2 {
		t.Errorf("list: got %d, want 2", len(all))
	}

	rr = do(t, f.h, http.MethodGet, "/api/v1/alerts?match_id=2", "")
	var filtered []map[string]interface{}
	decode(t, rr, &filtered)
	if len(filtered) != 1 || filtered[0]["match_id"] != "2" {
		t.Errorf("filtered: got %v", filtered)
	}
	if _, ok := filtered[0]["alerts_count"]; !ok {
		t.Error("alerts_count: missing from summary")
	}
}

func TestListAlerts_EmptyIsArray(t *testing.T) {
	f := newFixture(t)
	rr := do(t, f.h, http.MethodGet, "/api/v1/alerts", "")
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Errorf("body: got %s, want []", body)
	}
}

func TestGetAlert(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "1")

	rr := do(t, f.h, http.MethodGet, "/api/v1/alerts/"+id, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)
	if resp["monitor_id"] != id {
		t.Errorf("monitor_id: got %v", resp["monitor_id"])
	}
	if _, ok := resp["recent_alerts"].([]interface{}); !ok {
		t.Error("recent_alerts: missing or wrong type")
	}

	if rr := do(t, f.h, http.MethodGet, "/api/v1/alerts/nope", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown id: got %d, want 404", rr.Code)
	}
}

func TestStopStartDelete(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "1")
	f.waitStatus(t, id, monitor.StatusMonitoring)

	if rr := do(t, f.h, http.MethodPut, "/api/v1/alerts/"+id+"/start", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("start while monitoring: got %d, want 400", rr.Code)
	}

	rr := do(t, f.h, http.MethodPut, "/api/v1/alerts/"+id+"/stop", "")
	var resp map[string]interface{}
	decode(t, rr, &resp)
	if rr.Code != http.StatusOK || resp["status"] != "stopped" {
		t.Errorf("stop: got %d %v", rr.Code, resp)
	}
	if rr := do(t, f.h, http.MethodPut, "/api/v1/alerts/"+id+"/stop", ""); rr.Code != http.StatusOK {
		t.Errorf("second stop: got %d, want 200", rr.Code)
	}

	rr = do(t, f.h, http.MethodPut, "/api/v1/alerts/"+id+"/start", "")
	decode(t, rr, &resp)
	if rr.Code != http.StatusOK || resp["status"] != "monitoring" {
		t.Errorf("start: got %d %v", rr.Code, resp)
	}

	rr = do(t, f.h, http.MethodDelete, "/api/v1/alerts/"+id+"/delete", "")
	decode(t, rr, &resp)
	if rr.Code != http.StatusOK || resp["status"] != "deleted" {
		t.Errorf("delete: got %d %v", rr.Code, resp)
	}
	if rr := do(t, f.h, http.MethodGet, "/api/v1/alerts/"+id, ""); rr.Code != http.StatusNotFound {
		t.Errorf("get after delete: got %d, want 404", rr.Code)
	}
	if rr := do(t, f.h, http.MethodDelete, "/api/v1/alerts/"+id+"/delete", ""); rr.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d, want 404", rr.Code)
	}
}

func TestStop_TerminalConflict(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "done")
	f.waitStatus(t, id, monitor.StatusCompleted)

	if rr := do(t, f.h, http.MethodPut, "/api/v1/alerts/"+id+"/stop", ""); rr.Code != http.StatusConflict {
		t.Errorf("stop completed: got %d, want 409", rr.Code)
	}
}

// --- /api/v1/matches --------------------------------------------------------

func TestMatchStatus(t *testing.T) {
	f := newFixture(t)
	rr := do(t, f.h, http.MethodGet, "/api/v1/matches/119888", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)
	if resp["score"] != "124/2" || resp["batting_team"] != "IND" || resp["state"] != "In Progress" {
		t.Errorf("summary: got %v", resp)
	}

	if rr := do(t, f.h, http.MethodGet, "/api/v1/matches/404", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown match: got %d, want 404", rr.Code)
	}
}

func TestMatchDetail(t *testing.T) {
	f := newFixture(t)
	rr := do(t, f.h, http.MethodGet, "/api/v1/matches/119888/detail", "")
	var resp map[string]interface{}
	decode(t, rr, &resp)
	if resp["format"] != "ODI" || resp["description"] != "1st ODI" {
		t.Errorf("detail: got %v", resp)
	}
}

func TestMatchActive(t *testing.T) {
	f := newFixture(t)
	cases := map[string]bool{"119888": true, "done": false, "404": false}
	for id, want := range cases {
		rr := do(t, f.h, http.MethodGet, "/api/v1/matches/"+id+"/active", "")
		if rr.Code != http.StatusOK {
			t.Errorf("%s: status %d, want 200", id, rr.Code)
			continue
		}
		var resp api.MatchActiveResponse
		decode(t, rr, &resp)
		if resp.IsActive != want || resp.MatchID != id {
			t.Errorf("%s: got %+v, want is_active=%v", id, resp, want)
		}
	}
}

// --- CORS -------------------------------------------------------------------

func TestCORS_Preflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/alerts", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	f.h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin: got %q, want *", got)
	}
}

// --- auth -------------------------------------------------------------------

func TestAuth_GuardsOnlyV1(t *testing.T) {
	matches := matchServer(t)
	eng := engine.New(store.NewMemory(), matches, stubInterp{}, config.Default().Monitor, engine.Options{})
	t.Cleanup(eng.Close)
	h := api.New(api.Options{
		Monitors:   eng,
		Matches:    matches,
		Auth:       auth.APIKey("apikey", "X-API-Key", "s3cret"),
		AuthHeader: "X-API-Key",
	})

	if rr := do(t, h, http.MethodGet, "/health", ""); rr.Code != http.StatusOK {
		t.Errorf("/health: got %d, want 200", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/api/v1/alerts", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("/api/v1/alerts without key: got %d, want 401", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
	req.Header.Set("X-API-Key", "s3cret")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("/api/v1/alerts with key: got %d, want 200", rr.Code)
	}
}
