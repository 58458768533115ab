package safelinesdk

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

// Client is a minimal Safeline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Incident represents the API incident model (partial).
type Incident struct {
	ID                   string  `json:"id"`
	Title                string  `json:"title"`
	Severity             string  `json:"severity"`
	Status               string  `json:"status"`
	ReportedBy           string  `json:"reported_by"`
	AssignedInvestigator *string `json:"assigned_investigator,omitempty"`
}

// Process represents an 8D process (partial).
type Process struct {
	ID                string `json:"id"`
	EightDID          string `json:"eight_d_id"`
	IncidentID        string `json:"incident_id"`
	ChampionID        string `json:"champion_id"`
	CurrentDiscipline int    `json:"current_discipline"`
	Status            string `json:"status"`
	OverallProgress   int    `json:"overall_progress"`
}

// Permit represents a permit to work (partial).
type Permit struct {
	ID           string  `json:"id"`
	PermitNumber string  `json:"permit_number"`
	Title        string  `json:"title"`
	Status       string  `json:"status"`
	CreatedBy    string  `json:"created_by"`
	VerifiedBy   *string `json:"verified_by,omitempty"`
	ApprovedBy   *string `json:"approved_by,omitempty"`
	PlannedStart string  `json:"planned_start"`
	PlannedEnd   string  `json:"planned_end"`
}

// PermitActions reports which sign-offs the caller may perform.
type PermitActions struct {
	PermitID   string `json:"permit_id"`
	CanVerify  bool   `json:"can_verify"`
	CanApprove bool   `json:"can_approve"`
}

// Event represents a log entry. Payload is the raw JSON payload string.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses. The server sends a specific detail
// alongside a generic category message; Error prefers the most specific
// text available and falls back by status code when the body is opaque.
type APIError struct {
	StatusCode int
	Code       string            `json:"code"`
	Detail     string            `json:"detail"`
	Generic    string            `json:"error"`
	Fields     map[string]string `json:"fields"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Generic != "" {
		return e.Generic
	}
	switch {
	case e.StatusCode == http.StatusForbidden:
		return "permission denied"
	case e.StatusCode == http.StatusNotFound:
		return "resource not found"
	case e.StatusCode == http.StatusConflict:
		return "conflicting update"
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return "request rejected"
	}
	return "an unexpected error occurred"
}

// --- incidents ---

// ReportIncident files a new incident.
func (c *Client) ReportIncident(ctx context.Context, title, description, severity string) (Incident, error) {
	body := map[string]any{
		"title":       title,
		"description": description,
		"severity":    severity,
	}
	var resp Incident
	err := c.do(ctx, http.MethodPost, "incidents", body, &resp)
	return resp, err
}

// AssignInvestigator puts a user on an incident.
func (c *Client) AssignInvestigator(ctx context.Context, incidentID, userID string) (Incident, error) {
	body := map[string]any{"user_id": userID}
	var resp Incident
	endpoint := fmt.Sprintf("incidents/%s/assign", url.PathEscape(incidentID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// --- 8D ---

// InitProcess starts an 8D process for an incident.
func (c *Client) InitProcess(ctx context.Context, incidentID, problemStatement, championID string) (Process, error) {
	body := map[string]any{
		"incident_id":       incidentID,
		"problem_statement": problemStatement,
		"champion_id":       championID,
	}
	var resp Process
	err := c.do(ctx, http.MethodPost, "eightd", body, &resp)
	return resp, err
}

// GetProcess fetches a process by id.
func (c *Client) GetProcess(ctx context.Context, processID string) (Process, error) {
	var resp struct {
		Process Process `json:"process"`
	}
	endpoint := fmt.Sprintf("eightd/%s", url.PathEscape(processID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Process, err
}

// CompleteDiscipline marks the given discipline done. It must be the
// process's current discipline and the caller must be the champion.
func (c *Client) CompleteDiscipline(ctx context.Context, processID string, discipline int) (Process, error) {
	body := map[string]any{"discipline": discipline}
	var resp Process
	endpoint := fmt.Sprintf("eightd/%s/advance", url.PathEscape(processID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// AddTeamMember enrolls a user on the 8D team.
func (c *Client) AddTeamMember(ctx context.Context, processID, userID, role string) error {
	body := map[string]any{
		"user_id": userID,
		"role":    role,
	}
	endpoint := fmt.Sprintf("eightd/%s/team", url.PathEscape(processID))
	return c.do(ctx, http.MethodPost, endpoint, body, nil)
}

// --- permits ---

// CreatePermit drafts a permit.
func (c *Client) CreatePermit(ctx context.Context, title, plannedStart, plannedEnd string, workers []string) (Permit, error) {
	body := map[string]any{
		"title":         title,
		"planned_start": plannedStart,
		"planned_end":   plannedEnd,
		"workers":       workers,
	}
	var resp Permit
	err := c.do(ctx, http.MethodPost, "permits", body, &resp)
	return resp, err
}

// GetPermit fetches a permit by id.
func (c *Client) GetPermit(ctx context.Context, permitID string) (Permit, error) {
	var resp struct {
		Permit Permit `json:"permit"`
	}
	endpoint := fmt.Sprintf("permits/%s", url.PathEscape(permitID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Permit, err
}

// GetPermitActions reports whether the caller may verify or approve.
func (c *Client) GetPermitActions(ctx context.Context, permitID string) (PermitActions, error) {
	var resp PermitActions
	endpoint := fmt.Sprintf("permits/%s/actions", url.PathEscape(permitID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SubmitPermit submits a draft permit for verification.
func (c *Client) SubmitPermit(ctx context.Context, permitID string) (Permit, error) {
	return c.permitAction(ctx, permitID, "submit", nil)
}

// VerifyPermit records the verification sign-off. With approve false the
// permit is rejected and comment is required.
func (c *Client) VerifyPermit(ctx context.Context, permitID string, approve bool, comment string) (Permit, error) {
	return c.permitAction(ctx, permitID, "verify", map[string]any{
		"approve": approve,
		"comment": comment,
	})
}

// ApprovePermit records the approval sign-off.
func (c *Client) ApprovePermit(ctx context.Context, permitID, comment string) (Permit, error) {
	return c.permitAction(ctx, permitID, "approve", map[string]any{"comment": comment})
}

// RejectPermit rejects a permit pending approval.
func (c *Client) RejectPermit(ctx context.Context, permitID, comment string) (Permit, error) {
	return c.permitAction(ctx, permitID, "reject", map[string]any{"comment": comment})
}

// StartWork activates an approved permit.
func (c *Client) StartWork(ctx context.Context, permitID string) (Permit, error) {
	return c.permitAction(ctx, permitID, "start", nil)
}

// CompleteWork completes an active permit.
func (c *Client) CompleteWork(ctx context.Context, permitID string) (Permit, error) {
	return c.permitAction(ctx, permitID, "complete", nil)
}

// ClosePermit closes a completed permit.
func (c *Client) ClosePermit(ctx context.Context, permitID, comment string) (Permit, error) {
	return c.permitAction(ctx, permitID, "close", map[string]any{"comment": comment})
}

// ExtendPermit moves an active permit's planned end.
func (c *Client) ExtendPermit(ctx context.Context, permitID, newEnd, reason string) (Permit, error) {
	return c.permitAction(ctx, permitID, "extend", map[string]any{
		"new_end": newEnd,
		"reason":  reason,
	})
}

func (c *Client) permitAction(ctx context.Context, permitID, action string, body map[string]any) (Permit, error) {
	if body == nil {
		body = map[string]any{}
	}
	var resp Permit
	endpoint := fmt.Sprintf("permits/%s/%s", url.PathEscape(permitID), action)
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("events?limit=%d", limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	reqURL := c.base() + "/v0/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		_ = json.Unmarshal(b, apiErr)
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
