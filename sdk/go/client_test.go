package safelinesdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIErrorFallbackChain(t *testing.T) {
	cases := []struct {
		name string
		err  APIError
		want string
	}{
		{"detail wins", APIError{StatusCode: 400, Detail: "planned_end must be after planned_start", Generic: "request validation failed"}, "planned_end must be after planned_start"},
		{"generic when no detail", APIError{StatusCode: 400, Generic: "request validation failed"}, "request validation failed"},
		{"forbidden fallback", APIError{StatusCode: 403}, "permission denied"},
		{"not found fallback", APIError{StatusCode: 404}, "resource not found"},
		{"conflict fallback", APIError{StatusCode: 409}, "conflicting update"},
		{"other 4xx fallback", APIError{StatusCode: 418}, "request rejected"},
		{"5xx fallback", APIError{StatusCode: 500}, "an unexpected error occurred"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Error(); got != tc.want {
				t.Fatalf("Error() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v0/permits/p-1/approve" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"code":   "conflict",
			"detail": "permit already approved by user-2",
			"error":  "conflicting update",
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.ApprovePermit(context.Background(), "p-1", "")
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T (%v)", err, err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Code != "conflict" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if apiErr.Error() != "permit already approved by user-2" {
		t.Fatalf("fallback chain should surface detail, got %q", apiErr.Error())
	}
}

func TestClientSendsCredentials(t *testing.T) {
	var gotAuth, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("X-Api-Key")
		json.NewEncoder(w).Encode(Incident{ID: "i-1"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.BearerToken = "tok"
	c.APIKey = "key"
	if _, err := c.ReportIncident(context.Background(), "t", "", "low"); err != nil {
		t.Fatalf("report: %v", err)
	}
	// Bearer takes precedence when both are set.
	if gotAuth != "Bearer tok" || gotKey != "" {
		t.Fatalf("auth headers: Authorization=%q X-Api-Key=%q", gotAuth, gotKey)
	}
}
