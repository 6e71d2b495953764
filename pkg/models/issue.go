package models

import (
	"encoding/json"
	"time"
)

// Issue is the canonical normalized record for one tracker ticket.
// Identity is the tracker issue key; re-ingesting the same key overwrites
// every derived field (last-write-wins).
type Issue struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	// Created is stored as a fixed-format stamp with an explicit UTC
	// suffix, e.g. "2025-01-15 10:30:45 UTC". Unparsable source stamps
	// pass through unchanged.
	Created    string `json:"created"`
	Priority   string `json:"priority"`
	Labels     string `json:"labels"`     // JSON array of strings
	IssueType  string `json:"issuetype"`
	Components string `json:"components"` // JSON array of strings
	Project    string `json:"project"`
	Status     string `json:"status"`
	IsSubtask  bool   `json:"is_subtask"`

	IsAlert        bool   `json:"is_alert"`
	AlertSignature string `json:"alert_signature"`

	ClusterID string `json:"cluster_id"`
	TenantID  string `json:"tenant_id"`
	BizType   string `json:"biz_type"`

	StabilityGovernance string `json:"stability_governance"`
	Visibility          string `json:"visibility"`
	ComponentName       string `json:"component_name"`
	SourceComponent     string `json:"source_component"`
	AlertGroup          string `json:"alert_group"`
}

// MutedIssue records an operator's suppression decision for one issue.
// Muted issues are hidden from issue listings; aggregate counts still
// include them. Rows are never auto-expired; operators delete them
// explicitly.
type MutedIssue struct {
	IssueID string    `json:"issue_id"`
	MutedAt time.Time `json:"muted_at"`
	Reason  string    `json:"reason"`
}

// RawIssue is the wire-level ticket representation returned by the
// fetch client, before extraction.
type RawIssue struct {
	Key          string
	Summary      string
	Description  string
	Created      string
	Priority     string
	Labels       []string
	IssueType    string
	Subtask      bool
	Components   []string
	Project      string
	Status       string
	HasParent    bool
	// AlertPayload is the nested custom field carrying structured alert
	// metadata. The wire form may be either an embedded JSON object or
	// a string containing one; extraction handles both.
	AlertPayload json.RawMessage
}

// NameInfo is a resolved display identity for an opaque identifier.
type NameInfo struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	TenantID   string `json:"tenantId"`
	TenantName string `json:"tenantName"`
}
