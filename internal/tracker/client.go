package tracker

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	jira "github.com/andygrunwald/go-jira"

	"alertlens/internal/logger"
	"alertlens/internal/metrics"
	"alertlens/pkg/models"
)

// maxPages bounds a single scope walk so a pathological token sequence
// cannot loop forever.
const maxPages = 500

// Fields requested from the tracker. customfield_10160 carries the
// nested raw alert metadata.
var searchFields = []string{
	"summary", "description", "created", "priority", "labels",
	"issuetype", "components", "status", "project",
	"customfield_10160", "parent",
}

// Config configures the tracker client.
type Config struct {
	BaseURL  string
	Username string
	Token    string
	PageSize int
	Timeout  time.Duration
}

// Scope is one query scope: a project plus a creation-time range. The
// fixed predicate excluding unassigned and sub-task tickets is applied
// by the client.
type Scope struct {
	Project string
	Start   time.Time
	End     time.Time
}

// Client fetches raw tickets from the external tracker, walking
// continuation-token pagination with loop safety.
type Client struct {
	jc       *jira.Client
	pageSize int
}

// NewClient creates a tracker client with basic-auth credentials.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("tracker: base URL is required")
	}
	if cfg.Username == "" || cfg.Token == "" {
		return nil, fmt.Errorf("tracker: credentials not configured")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	tp := jira.BasicAuthTransport{
		Username: cfg.Username,
		Password: cfg.Token,
	}
	httpClient := tp.Client()
	httpClient.Timeout = timeout

	jc, err := jira.NewClient(httpClient, cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("tracker: creating client: %w", err)
	}

	return &Client{jc: jc, pageSize: cfg.PageSize}, nil
}

// TestConnection verifies credentials against the self endpoint.
func (c *Client) TestConnection() error {
	if _, _, err := c.jc.User.GetSelf(); err != nil {
		return fmt.Errorf("tracker: connection test failed: %w", err)
	}
	return nil
}

// JQL renders the scope query with the fixed predicate.
func (s Scope) JQL() string {
	return fmt.Sprintf(
		"project = %s AND created >= '%s' AND created < '%s' AND assignee != EMPTY AND issuetype != Sub-task",
		s.Project,
		s.Start.Format("2006-01-02 15:04"),
		s.End.Format("2006-01-02 15:04"),
	)
}

// wire types for the token-paginated search endpoint.
type searchResponse struct {
	Issues        []wireIssue `json:"issues"`
	NextPageToken string      `json:"nextPageToken"`
}

type wireIssue struct {
	Key    string     `json:"key"`
	Fields wireFields `json:"fields"`
}

type wireFields struct {
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	Created     string   `json:"created"`
	Labels      []string `json:"labels"`
	Priority    *struct {
		Name string `json:"name"`
	} `json:"priority"`
	IssueType *struct {
		Name    string `json:"name"`
		Subtask bool   `json:"subtask"`
	} `json:"issuetype"`
	Components []struct {
		Name string `json:"name"`
	} `json:"components"`
	Status *struct {
		Name string `json:"name"`
	} `json:"status"`
	Project struct {
		Key string `json:"key"`
	} `json:"project"`
	Parent *struct {
		Key string `json:"key"`
	} `json:"parent"`
	AlertPayload json.RawMessage `json:"customfield_10160"`
}

// searchPage requests one page. An empty token requests the first page.
func (c *Client) searchPage(jql, pageToken string) (*searchResponse, error) {
	params := url.Values{}
	params.Set("jql", jql)
	params.Set("maxResults", fmt.Sprintf("%d", c.pageSize))
	params.Set("fields", strings.Join(searchFields, ","))
	if pageToken != "" {
		params.Set("nextPageToken", pageToken)
	}

	req, err := c.jc.NewRequest("GET", "rest/api/2/search/jql?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("tracker: building search request: %w", err)
	}

	var page searchResponse
	if _, err := c.jc.Do(req, &page); err != nil {
		return nil, fmt.Errorf("tracker: search error: %w", err)
	}
	metrics.TrackerPages.Inc()
	return &page, nil
}

// SearchAll walks the full result set for one scope and returns every
// matching raw ticket. Termination: an empty continuation token ends
// the walk; a token identical to the one just used means pagination is
// stuck, so the walk aborts and returns what was collected; maxPages
// bounds the worst case. Transport failures abort the whole scope.
func (c *Client) SearchAll(scope Scope) ([]models.RawIssue, error) {
	jql := scope.JQL()
	logger.Infof("tracker: searching %s: %s", scope.Project, jql)

	var all []models.RawIssue
	pageToken := ""
	pageNum := 0

	for {
		pageNum++
		if pageNum > maxPages {
			logger.Warnf("tracker: %s: reached page ceiling (%d), stopping pagination", scope.Project, maxPages)
			break
		}

		page, err := c.searchPage(jql, pageToken)
		if err != nil {
			return nil, fmt.Errorf("tracker: %s page %d: %w", scope.Project, pageNum, err)
		}
		logger.Debugf("tracker: %s page %d: %d issues, next_token=%q", scope.Project, pageNum, len(page.Issues), page.NextPageToken)

		for i := range page.Issues {
			all = append(all, convertIssue(&page.Issues[i]))
		}

		if page.NextPageToken == "" {
			break
		}
		if page.NextPageToken == pageToken {
			logger.Warnf("tracker: %s: continuation token repeated at page %d, aborting pagination", scope.Project, pageNum)
			break
		}
		pageToken = page.NextPageToken
	}

	logger.Infof("tracker: %s: collected %d issues across %d pages", scope.Project, len(all), pageNum)
	return all, nil
}

func convertIssue(w *wireIssue) models.RawIssue {
	raw := models.RawIssue{
		Key:          w.Key,
		Summary:      w.Fields.Summary,
		Description:  w.Fields.Description,
		Created:      w.Fields.Created,
		Labels:       w.Fields.Labels,
		Project:      w.Fields.Project.Key,
		HasParent:    w.Fields.Parent != nil,
		AlertPayload: w.Fields.AlertPayload,
	}
	if w.Fields.Priority != nil {
		raw.Priority = w.Fields.Priority.Name
	}
	if w.Fields.IssueType != nil {
		raw.IssueType = w.Fields.IssueType.Name
		raw.Subtask = w.Fields.IssueType.Subtask
	}
	if w.Fields.Status != nil {
		raw.Status = w.Fields.Status.Name
	}
	for _, comp := range w.Fields.Components {
		raw.Components = append(raw.Components, comp.Name)
	}
	return raw
}
