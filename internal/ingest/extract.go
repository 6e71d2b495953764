package ingest

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"time"

	"alertlens/pkg/models"
)

// TenantResolver backfills a tenant id from a cluster id. Satisfied by
// *namecache.Resolver.
type TenantResolver interface {
	Resolve(ctx context.Context, id string) (models.NameInfo, error)
}

// Alert keyword heuristic: a ticket is an alert if title or description
// contains any of these, case-insensitively. Intentionally permissive.
var alertKeywords = []string{"alert", "firing", "prometheus"}

// priorityTable canonicalizes source-specific severity vocabularies,
// including localized names. Unmapped values pass through verbatim.
var priorityTable = map[string]string{
	"严重":       "Critical",
	"重要":       "Major",
	"低":        "Low",
	"High":     "Major",
	"Critical": "Critical",
	"Major":    "Major",
	"Medium":   "Medium",
	"Low":      "Low",
}

var (
	clusterIDPattern = regexp.MustCompile(`tidb_cluster_id\s*[=:]\s*([^\s\n]+)`)
	tenantIDPattern  = regexp.MustCompile(`o11y_tenant_id\s*[=:]\s*([^\s\n]+)`)
	bizTypePattern   = regexp.MustCompile(`o11y_biz_type\s*[=:]\s*([^\s\n]+)`)
)

// Extractor turns raw tickets into canonical issues. Pure except for
// the optional tenant backfill through the resolver.
type Extractor struct {
	resolver TenantResolver
}

// NewExtractor creates an extractor. resolver may be nil, in which case
// tenant backfill is skipped.
func NewExtractor(resolver TenantResolver) *Extractor {
	return &Extractor{resolver: resolver}
}

// Extract maps one raw ticket into exactly one canonical issue. A
// malformed ticket never aborts the batch: every extraction failure
// degrades to empty fields.
func (e *Extractor) Extract(ctx context.Context, raw *models.RawIssue) *models.Issue {
	issue := &models.Issue{
		ID:          raw.Key,
		Title:       raw.Summary,
		Description: raw.Description,
		Created:     normalizeTimestamp(raw.Created),
		Priority:    convertPriority(raw.Priority),
		IssueType:   raw.IssueType,
		Project:     raw.Project,
		Status:      raw.Status,
		IsSubtask:   raw.Subtask || raw.HasParent,
		Labels:      toJSONList(raw.Labels),
		Components:  toJSONList(raw.Components),
	}

	issue.IsAlert = isAlert(raw.Description, raw.Summary)
	if issue.IsAlert {
		issue.AlertSignature = raw.Summary
	}

	if len(raw.AlertPayload) > 0 {
		meta, labelsJSON := parseAlertPayload(raw.AlertPayload, raw.Labels)
		issue.ClusterID = meta.clusterID
		issue.TenantID = meta.tenantID
		issue.BizType = meta.bizType
		issue.StabilityGovernance = meta.stabilityGovernance
		issue.Visibility = meta.visibility
		issue.ComponentName = meta.component
		issue.SourceComponent = meta.sourceComponent
		issue.AlertGroup = meta.alertGroup
		issue.Labels = labelsJSON
	}

	// Regex fallback over the free-text description for fields the
	// structured payload did not provide.
	if issue.ClusterID == "" {
		issue.ClusterID = firstMatch(clusterIDPattern, raw.Description)
	}
	if issue.TenantID == "" {
		issue.TenantID = firstMatch(tenantIDPattern, raw.Description)
	}
	if issue.BizType == "" {
		issue.BizType = firstMatch(bizTypePattern, raw.Description)
	}

	// Last resort: derive the tenant from the cluster via the name
	// cache. Best-effort; failure leaves the tenant empty.
	if issue.TenantID == "" && issue.ClusterID != "" && e.resolver != nil {
		if info, err := e.resolver.Resolve(ctx, issue.ClusterID); err == nil && info.TenantID != "" {
			issue.TenantID = info.TenantID
		}
	}

	return issue
}

// normalizeTimestamp rewrites a source timestamp to the fixed
// "YYYY-MM-DD HH:MM:SS UTC" representation. Two source formats are
// accepted; an unparsable stamp passes through unchanged so the record
// is not lost.
func normalizeTimestamp(stamp string) string {
	t, err := time.Parse("2006-01-02T15:04:05.000-0700", stamp)
	if err != nil {
		t, err = time.Parse(time.RFC3339, stamp)
		if err != nil {
			return stamp
		}
	}
	return t.UTC().Format("2006-01-02 15:04:05") + " UTC"
}

func convertPriority(priority string) string {
	if mapped, ok := priorityTable[priority]; ok {
		return mapped
	}
	return priority
}

func isAlert(description, title string) bool {
	d := strings.ToLower(description)
	t := strings.ToLower(title)
	for _, kw := range alertKeywords {
		if strings.Contains(d, kw) || strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

// alertMeta is the structured metadata recovered from the nested raw
// alert payload.
type alertMeta struct {
	clusterID           string
	tenantID            string
	bizType             string
	stabilityGovernance string
	visibility          string
	component           string
	sourceComponent     string
	alertGroup          string
}

// parseAlertPayload extracts structured labels from the nested custom
// field. The wire form may be an embedded JSON object or a string
// containing one; both are handled. Extra fields are merged into the
// label list as key:value entries, deduplicated against existing
// labels. Any parse failure degrades to empty metadata.
func parseAlertPayload(payload json.RawMessage, existingLabels []string) (alertMeta, string) {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		// The payload may be a JSON string wrapping the document.
		var wrapped string
		if err := json.Unmarshal(payload, &wrapped); err != nil {
			return alertMeta{}, toJSONList(existingLabels)
		}
		if err := json.Unmarshal([]byte(wrapped), &doc); err != nil {
			return alertMeta{}, toJSONList(existingLabels)
		}
	}

	labels, ok := doc["labels"].(map[string]any)
	if !ok {
		return alertMeta{}, toJSONList(existingLabels)
	}

	str := func(key string) string {
		v, _ := labels[key].(string)
		return v
	}

	meta := alertMeta{
		clusterID:           str("tidb_cluster_id"),
		tenantID:            str("o11y_tenant_id"),
		bizType:             str("o11y_biz_type"),
		stabilityGovernance: str("stability_governance"),
		visibility:          str("visibility"),
		component:           str("component"),
		sourceComponent:     str("source_component"),
		alertGroup:          str("alertgroup"),
	}
	if meta.clusterID == "" {
		meta.clusterID = str("cluster_id")
	}

	// Merge recovered fields into the label list for searchability.
	unique := make(map[string]bool, len(existingLabels)+5)
	for _, l := range existingLabels {
		unique[l] = true
	}
	for key, value := range map[string]string{
		"stability_governance": meta.stabilityGovernance,
		"visibility":           meta.visibility,
		"component":            meta.component,
		"source_component":     meta.sourceComponent,
		"alertgroup":           meta.alertGroup,
	} {
		if value != "" {
			unique[key+":"+value] = true
		}
	}

	merged := make([]string, 0, len(unique))
	for l := range unique {
		merged = append(merged, l)
	}
	sort.Strings(merged)

	return meta, toJSONList(merged)
}

func firstMatch(pattern *regexp.Regexp, text string) string {
	m := pattern.FindStringSubmatch(text)
	if len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func toJSONList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(b)
}
