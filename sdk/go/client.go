package offloadsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Offload HTTP API client.
type Client struct {
	BaseURL       string
	AdminPassword string
	HTTPClient    *http.Client
	Timeout       time.Duration
}

// New creates a client with sane defaults. baseURL includes the API
// base path, e.g. http://127.0.0.1:8080/v0.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Submission is the intake payload. Worth is the numeric string the
// form posts.
type Submission struct {
	Task      string `json:"task"`
	Name      string `json:"name"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Worth     string `json:"worth"`
}

type SubmitResult struct {
	Success bool   `json:"success"`
	TaskID  string `json:"task_id"`
}

// Deliverable is one priced artifact in a proposal.
type Deliverable struct {
	Description string  `json:"description"`
	ValueUSD    float64 `json:"value_usd"`
}

// Proposal is the structured offer generated for a task.
type Proposal struct {
	Title                      string        `json:"title"`
	WhyItHelps                 string        `json:"why_it_helps"`
	StepsAgentWillDoToday      []string      `json:"steps_agent_will_do_today"`
	DeliverablesToUser         []Deliverable `json:"deliverables_to_user"`
	TotalValueUSD              float64       `json:"total_value_usd"`
	SuggestedPriceUSD          float64       `json:"suggested_price_usd"`
	SuccessCriteria            []string      `json:"success_criteria"`
	DependenciesOrAccessNeeded []string      `json:"dependencies_or_access_needed"`
	RiskMitigation             []string      `json:"risk_mitigation"`
	EstTimeHoursToday          float64       `json:"est_time_hours_today"`
	Guarantee                  string        `json:"guarantee"`
}

type ProposalEnvelope struct {
	Proposal          Proposal `json:"proposal"`
	QuickNoteForAgent string   `json:"quick_note_for_agent"`
}

type GenerateResult struct {
	Success    bool             `json:"success"`
	ProposalID string           `json:"proposal_id"`
	Output     ProposalEnvelope `json:"output"`
}

// FeedRow is one task merged with its latest proposal, proposal-side
// fields null when none exists yet.
type FeedRow struct {
	ID        string  `json:"id"`
	Timestamp string  `json:"timestamp"`
	FirstName string  `json:"firstname"`
	LastName  string  `json:"lastname"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Phone     string  `json:"phone"`
	Task      string  `json:"task"`
	Status    string  `json:"status"`
	Worth     float64 `json:"worth"`

	IdeaID            *string   `json:"idea_id"`
	IdeaCreatedAt     *string   `json:"idea_created_at"`
	Model             *string   `json:"model"`
	QuickNoteForAgent *string   `json:"quick_note_for_agent"`
	Proposal          *Proposal `json:"proposal"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Submit records a new avoided task.
func (c *Client) Submit(ctx context.Context, s Submission) (SubmitResult, error) {
	var resp SubmitResult
	err := c.do(ctx, http.MethodPost, "submissions", s, &resp)
	return resp, err
}

// GenerateProposal runs one generation call for a stored task.
func (c *Client) GenerateProposal(ctx context.Context, taskID, task string, worth float64) (GenerateResult, error) {
	body := map[string]any{
		"task_id": taskID,
		"task":    task,
		"worth":   worth,
	}
	var resp GenerateResult
	err := c.do(ctx, http.MethodPost, "proposals", body, &resp)
	return resp, err
}

// AdminFeed returns every task merged with its latest proposal. The
// optional query filters server-side.
func (c *Client) AdminFeed(ctx context.Context, query string) ([]FeedRow, error) {
	endpoint := "admin/feed?pw=" + url.QueryEscape(c.AdminPassword)
	if query != "" {
		endpoint += "&q=" + url.QueryEscape(query)
	}
	var resp struct {
		Rows []FeedRow `json:"rows"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Rows, err
}

// Health checks API liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
