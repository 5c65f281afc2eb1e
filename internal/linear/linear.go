// Package linear creates Linear issues for approved action items.
//
// The client speaks Linear's GraphQL API directly over HTTP. Failures
// are per-issue and callers treat them as non-fatal to batch flows.
package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.linear.app/graphql"
	defaultTimeout = 30 * time.Second
)

// ErrNoTeam indicates issue creation was attempted without a team ID
// from the request, settings, or configuration.
var ErrNoTeam = errors.New("no linear team id configured")

// Issue is the record returned by Linear for a created issue. Opaque to
// the processing core; persisted verbatim on the action item.
type Issue struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	URL        string `json:"url"`
}

// IssueRequest describes the issue to create.
type IssueRequest struct {
	Title       string
	Description string
	Priority    string // High, Medium, Low
	TeamID      string
}

// Client is a Linear GraphQL API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Config configures the Linear client.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewClient creates a Linear client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("linear API key required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// issueCreateMutation is the GraphQL mutation for creating an issue.
const issueCreateMutation = `mutation IssueCreate($input: IssueCreateInput!) {
  issueCreate(input: $input) {
    success
    issue {
      id
      identifier
      title
      url
    }
  }
}`

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data struct {
		IssueCreate struct {
			Success bool   `json:"success"`
			Issue   *Issue `json:"issue"`
		} `json:"issueCreate"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// CreateIssue creates one Linear issue for an action item.
func (c *Client) CreateIssue(ctx context.Context, req IssueRequest) (*Issue, error) {
	if req.TeamID == "" {
		return nil, ErrNoTeam
	}

	input := map[string]any{
		"teamId":      req.TeamID,
		"title":       req.Title,
		"description": req.Description,
		"priority":    priorityValue(req.Priority),
	}

	body, err := json.Marshal(graphqlRequest{
		Query:     issueCreateMutation,
		Variables: map[string]any{"input": input},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("linear request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("linear API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("linear API error: %s", gqlResp.Errors[0].Message)
	}

	if !gqlResp.Data.IssueCreate.Success || gqlResp.Data.IssueCreate.Issue == nil {
		return nil, fmt.Errorf("issue creation was not successful")
	}

	return gqlResp.Data.IssueCreate.Issue, nil
}

// priorityValue maps the action item priority onto Linear's numeric
// scale (1=Urgent, 2=High, 3=Medium, 4=Low).
func priorityValue(priority string) int {
	switch priority {
	case "High":
		return 2
	case "Low":
		return 4
	default:
		return 3
	}
}
