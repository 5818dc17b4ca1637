package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jaipatel248/cric-alert/server/internal/config"
)

// ErrUnavailable wraps every fetch failure.
var ErrUnavailable = errors.New("provider: match data unavailable")

const maxBodyBytes = 8 << 20

// Snapshot is one successful fetch of a match.
type Snapshot struct {
	TargetID  string
	Concluded bool

	// Payload is the reduced commentary document sent to the interpreter.
	Payload json.RawMessage

	FetchedAt time.Time

	header    matchHeader
	miniscore miniscore
	rawScore  json.RawMessage
}

// Cricbuzz is the HTTP client for the commentary endpoint.
type Cricbuzz struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

// New builds a client from cfg. The User-Agent header is injected on every
// request; the endpoint rejects the Go default.
func New(cfg config.ProviderConfig) *Cricbuzz {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultFetchTimeout
	}
	base := cfg.BaseURL
	if base == "" {
		base = config.DefaultProviderBaseURL
	}
	return &Cricbuzz{
		baseURL: strings.TrimRight(base, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: &uaRoundTripper{base: http.DefaultTransport, ua: cfg.UserAgent},
		},
		now: time.Now,
	}
}

// uaRoundTripper sets the User-Agent on every outgoing request.
type uaRoundTripper struct {
	base http.RoundTripper
	ua   string
}

func (t *uaRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.ua != "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.ua)
	}
	return t.base.RoundTrip(req)
}

// commentary is the subset of the upstream document we keep.
type commentary struct {
	MatchHeader    json.RawMessage `json:"matchHeader"`
	Miniscore      json.RawMessage `json:"miniscore"`
	CommentaryList json.RawMessage `json:"commentaryList"`
}

type matchHeader struct {
	Description string `json:"matchDescription"`
	Format      string `json:"matchFormat"`
	State       string `json:"state"`
	Status      string `json:"status"`
	Complete    bool   `json:"complete"`
	Team1       team   `json:"team1"`
	Team2       team   `json:"team2"`
	TeamInfo    []struct {
		BattingTeamID        int    `json:"battingTeamId"`
		BattingTeamName      string `json:"battingTeamName"`
		BattingTeamShortName string `json:"battingTeamShortName"`
	} `json:"matchTeamInfo"`
}

type team struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"shortName"`
}

type miniscore struct {
	Overs          float64 `json:"overs"`
	CurrentRunRate float64 `json:"currentRunRate"`
	BatTeam        struct {
		TeamID    json.Number `json:"teamId"`
		TeamName  string      `json:"teamName"`
		ShortName string      `json:"shortName"`
		TeamScore int         `json:"teamScore"`
		TeamWkts  int         `json:"teamWkts"`
	} `json:"batTeam"`
}

// Fetch returns the current state of match targetID.
func (c *Cricbuzz) Fetch(ctx context.Context, targetID string) (*Snapshot, error) {
	url := c.baseURL + "/" + targetID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrUnavailable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s: HTTP %d", ErrUnavailable, url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	return c.decode(targetID, body)
}

func (c *Cricbuzz) decode(targetID string, body []byte) (*Snapshot, error) {
	var doc commentary
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	if len(doc.MatchHeader) == 0 || string(doc.MatchHeader) == "null" {
		return nil, fmt.Errorf("%w: no matchHeader for %s", ErrUnavailable, targetID)
	}

	snap := &Snapshot{TargetID: targetID, FetchedAt: c.now()}
	if err := json.Unmarshal(doc.MatchHeader, &snap.header); err != nil {
		return nil, fmt.Errorf("%w: decode matchHeader: %v", ErrUnavailable, err)
	}
	if len(doc.Miniscore) > 0 {
		// miniscore is informational; a shape change must not fail the fetch.
		_ = json.Unmarshal(doc.Miniscore, &snap.miniscore)
	}
	snap.rawScore = orEmpty(doc.Miniscore, "{}")
	snap.Concluded = snap.header.Complete

	payload, err := json.Marshal(map[string]any{
		"matchHeader":    orEmpty(doc.MatchHeader, "{}"),
		"miniscore":      orEmpty(doc.Miniscore, "{}"),
		"commentaryList": orEmpty(doc.CommentaryList, "[]"),
		"matchId":        targetID,
		"timestamp":      float64(snap.FetchedAt.UnixMilli()) / 1000,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode payload: %v", ErrUnavailable, err)
	}
	snap.Payload = payload
	return snap, nil
}

func orEmpty(raw json.RawMessage, empty string) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(empty)
	}
	return raw
}

// Summary is the simplified match status served by the match endpoints.
type Summary struct {
	MatchID        string  `json:"match_id"`
	State          string  `json:"state"`
	Status         string  `json:"status"`
	Score          string  `json:"score"`
	Overs          float64 `json:"overs"`
	BattingTeam    string  `json:"batting_team,omitempty"`
	CurrentRunRate float64 `json:"current_run_rate"`
}

// Summary reduces s to its displayable status.
func (s *Snapshot) Summary() Summary {
	h, m := s.header, s.miniscore
	return Summary{
		MatchID:        s.TargetID,
		State:          nonEmpty(h.State, "Unknown"),
		Status:         nonEmpty(h.Status, "Unknown"),
		Score:          fmt.Sprintf("%d/%d", m.BatTeam.TeamScore, m.BatTeam.TeamWkts),
		Overs:          m.Overs,
		BattingTeam:    s.battingTeam(),
		CurrentRunRate: m.CurrentRunRate,
	}
}

// Detail is the descriptive match view.
type Detail struct {
	MatchID     string          `json:"match_id"`
	Description string          `json:"description"`
	Format      string          `json:"format"`
	State       string          `json:"state"`
	Status      string          `json:"status"`
	Teams       []string        `json:"teams"`
	Miniscore   json.RawMessage `json:"miniscore"`
}

// Detail returns the header fields of s with the raw miniscore.
func (s *Snapshot) Detail() Detail {
	h := s.header
	teams := make([]string, 0, len(h.TeamInfo))
	for _, ti := range h.TeamInfo {
		teams = append(teams, ti.BattingTeamShortName)
	}
	score := s.rawScore
	if len(score) == 0 {
		score = json.RawMessage("{}")
	}
	return Detail{
		MatchID:     s.TargetID,
		Description: nonEmpty(h.Description, "Unknown"),
		Format:      nonEmpty(h.Format, "Unknown"),
		State:       nonEmpty(h.State, "Unknown"),
		Status:      nonEmpty(h.Status, "Unknown"),
		Teams:       teams,
		Miniscore:   score,
	}
}

// battingTeam prefers a name from miniscore, then resolves the numeric team
// id against the header's teams, then falls back to the id itself.
func (s *Snapshot) battingTeam() string {
	bt := s.miniscore.BatTeam
	if bt.TeamName != "" {
		return bt.TeamName
	}
	if bt.ShortName != "" {
		return bt.ShortName
	}
	id, err := strconv.Atoi(bt.TeamID.String())
	if err != nil {
		return ""
	}
	for _, t := range []team{s.header.Team1, s.header.Team2} {
		if t.ID == id {
			return nonEmpty(t.ShortName, t.Name)
		}
	}
	for _, ti := range s.header.TeamInfo {
		if ti.BattingTeamID == id {
			return nonEmpty(ti.BattingTeamShortName, ti.BattingTeamName)
		}
	}
	return strconv.Itoa(id)
}

func nonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
