// Package polling implements the GitHub Events API polling half of
// External Triggers (spec §4.7): for each unique repo across enabled
// WebhookConfigs, polls GET /repos/{repo}/events on an interval,
// deduplicates by event id, and converts matching events into the same
// webhook payload shape the receiver's matcher/prompter already handle.
//
// Grounded in plain net/http + encoding/json: no GitHub REST client
// library appears anywhere in the retrieved pack (every other external
// HTTP dependency there is a generic SDK, aws-sdk-go-v2, or an unrelated
// provider client), so the standard library is used directly for request
// construction and response decoding.
package polling

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/store"
	"github.com/fleetctl/core/internal/telemetry"
)

const defaultInterval = 30 * time.Second

// event is the subset of the GitHub Events API payload shape this package
// needs; Payload carries the event-type-specific sub-object untouched so
// it can be merged into the webhook payload shape below.
type event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Repo      struct{ Name string `json:"name"` } `json:"repo"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// EventHandler processes one deduplicated, already-matched event as a
// webhook-shaped payload (same shape the Receiver's own matcher/prompter
// consume), so both trigger sources share one code path downstream.
type EventHandler interface {
	HandleEvent(ctx context.Context, cfg domain.WebhookConfig, eventType, action string, payload map[string]any) error
}

// Poller drives the polling trigger source.
type Poller struct {
	configs  store.WebhookConfigs
	handler  EventHandler
	log      telemetry.Logger
	client   *http.Client
	interval time.Duration

	mu           sync.Mutex
	lastEventIDs map[string]string // repo -> newest event id already processed
	baseURL      string
}

// Config bundles Poller's collaborators for New.
type Config struct {
	Configs  store.WebhookConfigs
	Handler  EventHandler
	Log      telemetry.Logger
	Client   *http.Client
	Interval time.Duration
	// BaseURL overrides the GitHub API base URL; defaults to
	// https://api.github.com. Exposed for tests to point at an
	// httptest.Server.
	BaseURL string
}

func New(cfg Config) *Poller {
	log := cfg.Log
	if log == nil {
		log, _, _ = telemetry.Noop()
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &Poller{
		configs:      cfg.Configs,
		handler:      cfg.Handler,
		log:          log,
		client:       client,
		interval:     interval,
		lastEventIDs: make(map[string]string),
		baseURL:      baseURL,
	}
}

// Run polls on Poller's interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick polls every unique repo across enabled configs once. Exported so
// tests can drive it deterministically instead of waiting on Run's ticker.
func (p *Poller) Tick(ctx context.Context) {
	configs, err := p.configs.ListEnabled(ctx)
	if err != nil {
		p.log.Error(ctx, "polling: list enabled configs failed", "error", err.Error())
		return
	}

	byRepo := make(map[string][]domain.WebhookConfig)
	for _, cfg := range configs {
		if cfg.Repo == "" {
			continue
		}
		byRepo[cfg.Repo] = append(byRepo[cfg.Repo], cfg)
	}

	for repo, cfgs := range byRepo {
		p.pollRepo(ctx, repo, cfgs)
	}
}

func (p *Poller) pollRepo(ctx context.Context, repo string, cfgs []domain.WebhookConfig) {
	token := ""
	for _, c := range cfgs {
		if c.GitHubToken != "" {
			token = c.GitHubToken
			break
		}
	}

	events, err := p.fetch(ctx, repo, token)
	if err != nil {
		p.log.Warn(ctx, "polling: fetch events failed", "repo", repo, "error", err.Error())
		return
	}
	if len(events) == 0 {
		return
	}

	p.mu.Lock()
	marker := p.lastEventIDs[repo]
	p.mu.Unlock()

	// Events API returns newest-first; collect unseen events, then replay
	// oldest-first so downstream ordering matches arrival order.
	var fresh []event
	for _, evt := range events {
		if marker != "" && evt.ID == marker {
			break
		}
		fresh = append(fresh, evt)
	}
	if len(fresh) == 0 {
		return
	}
	for i, j := 0, len(fresh)-1; i < j; i, j = i+1, j-1 {
		fresh[i], fresh[j] = fresh[j], fresh[i]
	}

	for _, evt := range fresh {
		p.dispatch(ctx, evt, cfgs)
	}

	p.mu.Lock()
	p.lastEventIDs[repo] = events[0].ID
	p.mu.Unlock()
}

func (p *Poller) dispatch(ctx context.Context, evt event, cfgs []domain.WebhookConfig) {
	payload := map[string]any{
		"repository": map[string]any{"full_name": evt.Repo.Name},
	}
	var sub map[string]any
	if err := json.Unmarshal(evt.Payload, &sub); err == nil {
		for k, v := range sub {
			payload[k] = v
		}
	}
	action, _ := payload["action"].(string)
	eventType := githubEventsAPITypeToWebhookType(evt.Type)

	for _, cfg := range cfgs {
		if err := p.handler.HandleEvent(ctx, cfg, eventType, action, payload); err != nil {
			p.log.Error(ctx, "polling: handle event failed", "repo", evt.Repo.Name, "eventId", evt.ID, "error", err.Error())
		}
	}
}

// githubEventsAPITypeToWebhookType maps Events API "Type" values (e.g.
// "IssuesEvent") to the webhook delivery header's event name (e.g.
// "issues"), so the same EventHandler matcher table covers both sources.
func githubEventsAPITypeToWebhookType(apiType string) string {
	mapping := map[string]string{
		"IssuesEvent":              "issues",
		"IssueCommentEvent":        "issue_comment",
		"PullRequestEvent":         "pull_request",
		"PullRequestReviewEvent":   "pull_request_review",
		"CheckRunEvent":            "check_run",
		"CheckSuiteEvent":          "check_suite",
		"WorkflowRunEvent":         "workflow_run",
		"WorkflowJobEvent":         "workflow_job",
		"CreateEvent":              "create",
		"DeleteEvent":              "delete",
		"PushEvent":                "push",
	}
	if mapped, ok := mapping[apiType]; ok {
		return mapped
	}
	return apiType
}

// RateLimitedError is returned by fetch when GitHub reports the polling
// token has exhausted its rate limit budget.
type RateLimitedError struct{ Repo string }

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("RATE_LIMITED: repo %s", e.Repo)
}

func (p *Poller) fetch(ctx context.Context, repo, token string) ([]event, error) {
	url := fmt.Sprintf("%s/repos/%s/events?per_page=30", p.baseURL, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden && resp.Header.Get("x-ratelimit-remaining") == "0" {
		return nil, &RateLimitedError{Repo: repo}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github events api: unexpected status %d for %s", resp.StatusCode, repo)
	}

	var events []event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return events, nil
}
