package tracker

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		BaseURL:  srv.URL + "/",
		Username: "u",
		Token:    "t",
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, srv
}

func pageJSON(keys []string, nextToken string) string {
	var issues []string
	for _, k := range keys {
		issues = append(issues, fmt.Sprintf(`{"key":%q,"fields":{"summary":"s"}}`, k))
	}
	return fmt.Sprintf(`{"issues":[%s],"nextPageToken":%q}`, strings.Join(issues, ","), nextToken)
}

func TestSearchAllWalksPages(t *testing.T) {
	pages := map[string]string{
		"":     pageJSON([]string{"A-1", "A-2"}, "tok1"),
		"tok1": pageJSON([]string{"A-3"}, ""),
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "search/jql") {
			http.NotFound(w, r)
			return
		}
		body, ok := pages[r.URL.Query().Get("nextPageToken")]
		if !ok {
			http.Error(w, "unknown token", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	})

	c, _ := newTestClient(t, handler)
	issues, err := c.SearchAll(Scope{Project: "A", Start: time.Now().Add(-time.Hour), End: time.Now()})
	if err != nil {
		t.Fatalf("SearchAll: %v", err)
	}
	if len(issues) != 3 {
		t.Fatalf("expected 3 issues, got %d", len(issues))
	}
	if issues[2].Key != "A-3" {
		t.Errorf("unexpected last key %q", issues[2].Key)
	}
}

func TestSearchAllAbortsOnRepeatedToken(t *testing.T) {
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		// Always hand back the same token: pagination is stuck.
		fmt.Fprint(w, pageJSON([]string{fmt.Sprintf("A-%d", calls)}, "stuck"))
	})

	c, _ := newTestClient(t, handler)
	issues, err := c.SearchAll(Scope{Project: "A", Start: time.Now().Add(-time.Hour), End: time.Now()})
	if err != nil {
		t.Fatalf("SearchAll: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected walk to stop after the repeated token, got %d calls", calls)
	}
	if len(issues) != 2 {
		t.Errorf("expected partial results kept, got %d", len(issues))
	}
}

func TestSearchAllPropagatesTransportError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})

	c, _ := newTestClient(t, handler)
	if _, err := c.SearchAll(Scope{Project: "A", Start: time.Now().Add(-time.Hour), End: time.Now()}); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestScopeJQL(t *testing.T) {
	scope := Scope{
		Project: "O11Y",
		Start:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 3, 8, 10, 0, 0, 0, time.UTC),
	}
	got := scope.JQL()
	want := "project = O11Y AND created >= '2025-03-01 10:00' AND created < '2025-03-08 10:00' AND assignee != EMPTY AND issuetype != Sub-task"
	if got != want {
		t.Errorf("JQL = %q, want %q", got, want)
	}
}

func TestConvertIssue(t *testing.T) {
	var w wireIssue
	data := `{
		"key": "O11Y-9",
		"fields": {
			"summary": "Alert: x",
			"description": "firing",
			"created": "2025-03-01T10:00:00.000+0800",
			"labels": ["l1"],
			"priority": {"name": "High"},
			"issuetype": {"name": "Task", "subtask": false},
			"components": [{"name": "storage"}, {"name": "compute"}],
			"status": {"name": "Created"},
			"project": {"key": "O11Y"},
			"parent": {"key": "O11Y-1"},
			"customfield_10160": {"labels": {"component": "storage"}}
		}
	}`
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	raw := convertIssue(&w)
	if raw.Key != "O11Y-9" || raw.Priority != "High" || raw.Status != "Created" {
		t.Errorf("unexpected conversion: %+v", raw)
	}
	if !raw.HasParent {
		t.Error("expected parent link detected")
	}
	if len(raw.Components) != 2 || raw.Components[0] != "storage" {
		t.Errorf("unexpected components %v", raw.Components)
	}
	if len(raw.AlertPayload) == 0 {
		t.Error("expected alert payload passed through")
	}
}
