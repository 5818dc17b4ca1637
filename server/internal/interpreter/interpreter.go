package interpreter

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"google.golang.org/genai"

	"github.com/jaipatel248/cric-alert/server/internal/config"
	"github.com/jaipatel248/cric-alert/server/internal/monitor"
)

// ErrMalformed is wrapped by every error caused by model output that is not
// the expected JSON document.
var ErrMalformed = errors.New("interpreter: malformed response")

// ErrNoKey is returned by every call when no API key was configured.
var ErrNoKey = errors.New("interpreter: API key is not set")

//go:embed prompts/*.md
var promptFS embed.FS

// Request is the input to one evaluation.
type Request struct {
	Rules json.RawMessage

	// Payload is the provider snapshot payload.
	Payload json.RawMessage

	// State is the watcher state returned by the previous evaluation; nil on
	// the first call.
	State json.RawMessage

	// Alerted holds the messages of alerts already recorded for the monitor.
	Alerted []string
}

// Decision is the interpreter's answer for one evaluation.
type Decision struct {
	// State replaces the watcher state. Nil means unchanged.
	State json.RawMessage

	// Alert is the single alert to record, if any. Timestamp is left zero.
	Alert *monitor.Alert

	NextCheck *monitor.NextCheck
}

// Gemini calls generateContent through the Gemini API client.
type Gemini struct {
	model  string
	models *genai.Models // nil without an API key

	parsePrompt  string
	systemPrompt string
	userPrompt   string
}

// New builds a client from cfg. Prompt paths, when set, replace the
// embedded prompts. Without an API key New still succeeds and every call
// fails with ErrNoKey.
func New(ctx context.Context, cfg config.InterpreterConfig) (*Gemini, error) {
	g := &Gemini{model: cfg.Model}
	if g.model == "" {
		g.model = config.DefaultModel
	}

	if key := cfg.Key(); key != "" {
		opts := genai.HTTPOptions{BaseURL: cfg.BaseURL, APIVersion: cfg.APIVersion}
		if opts.BaseURL == "" {
			opts.BaseURL = config.DefaultInterpreterURL
		}
		if opts.APIVersion == "" {
			opts.APIVersion = config.DefaultInterpreterAPIVersion
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:      key,
			Backend:     genai.BackendGeminiAPI,
			HTTPClient:  &http.Client{},
			HTTPOptions: opts,
		})
		if err != nil {
			return nil, fmt.Errorf("interpreter: new client: %w", err)
		}
		g.models = client.Models
	}

	var err error
	if g.parsePrompt, err = loadPrompt("", "parse.md"); err != nil {
		return nil, err
	}
	if g.systemPrompt, err = loadPrompt(cfg.SystemPromptPath, "system.md"); err != nil {
		return nil, err
	}
	if g.userPrompt, err = loadPrompt(cfg.UserPromptPath, "user.md"); err != nil {
		return nil, err
	}
	return g, nil
}

func loadPrompt(path, embedded string) (string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("interpreter: read prompt %q: %w", path, err)
		}
		return string(data), nil
	}
	data, err := promptFS.ReadFile("prompts/" + embedded)
	if err != nil {
		return "", fmt.Errorf("interpreter: embedded prompt %s: %w", embedded, err)
	}
	return string(data), nil
}

// ParseRule converts text into a structured rule document.
func (g *Gemini) ParseRule(ctx context.Context, text string) (json.RawMessage, error) {
	prompt := strings.ReplaceAll(g.parsePrompt, "{USER_ALERT_TEXT}", text)
	out, err := g.generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("interpreter: parse rule: %w", err)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(out, &obj); err != nil || len(obj) == 0 {
		return nil, fmt.Errorf("interpreter: parse rule: %w: want a JSON object", ErrMalformed)
	}
	return compact(out), nil
}

// evaluation is the JSON document the system prompt asks for.
type evaluation struct {
	Alerts            []rawAlert         `json:"alerts"`
	State             json.RawMessage    `json:"state"`
	ExpectedNextCheck *monitor.NextCheck `json:"expectedNextCheck"`
}

type rawAlert struct {
	Type        string          `json:"type"`
	EntityType  string          `json:"entityType"`
	EntitySnake string          `json:"entity_type"`
	Message     string          `json:"message"`
	Context     json.RawMessage `json:"context"`
}

// Evaluate asks the model for a decision on req.
func (g *Gemini) Evaluate(ctx context.Context, req Request) (*Decision, error) {
	state := req.State
	if len(state) == 0 {
		state = json.RawMessage(`{"lastAlerted":{},"snapshots":{}}`)
	}
	alerted, _ := json.Marshal(nonNil(req.Alerted))

	user := strings.NewReplacer(
		"{USER_ALERT_TEXT}", indent(req.Rules),
		"{LIVE_JSON}", indent(req.Payload),
		"{STATE}", indent(state),
		"{TRIGGERED_ALERTS}", string(alerted),
	).Replace(g.userPrompt)

	out, err := g.generate(ctx, g.systemPrompt+"\n\n---\n\n"+user)
	if err != nil {
		return nil, fmt.Errorf("interpreter: evaluate: %w", err)
	}
	return decode(out)
}

func decode(out []byte) (*Decision, error) {
	var ev evaluation
	if err := json.Unmarshal(out, &ev); err != nil {
		return nil, fmt.Errorf("interpreter: evaluate: %w: %v", ErrMalformed, err)
	}

	d := &Decision{NextCheck: ev.ExpectedNextCheck}
	if len(ev.State) > 0 && string(ev.State) != "null" {
		d.State = compact(ev.State)
	}
	if len(ev.Alerts) > 0 {
		ra := ev.Alerts[0]
		kind, err := monitor.ParseKind(ra.Type)
		if err != nil {
			return nil, fmt.Errorf("interpreter: evaluate: %w: %v", ErrMalformed, err)
		}
		entity := ra.EntityType
		if entity == "" {
			entity = ra.EntitySnake
		}
		a := &monitor.Alert{Kind: kind, EntityType: entity, Message: ra.Message}
		if len(ra.Context) > 0 && string(ra.Context) != "null" {
			a.Context = compact(ra.Context)
		}
		d.Alert = a
	}
	return d, nil
}

// generate sends prompt and returns the model's text with any markdown code
// fence removed.
func (g *Gemini) generate(ctx context.Context, prompt string) ([]byte, error) {
	if g.models == nil {
		return nil, ErrNoKey
	}
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("%w: no candidates", ErrMalformed)
	}
	return []byte(stripFence(text)), nil
}

// stripFence removes a ```json ... ``` wrapper.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func indent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func compact(raw []byte) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return json.RawMessage(raw)
	}
	return buf.Bytes()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
