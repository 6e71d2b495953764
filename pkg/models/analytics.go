package models

// MetricStat is a current/previous comparison for one metric. For count
// metrics Change is a percentage of the previous count; for rate metrics
// (already percentages) Change is a percentage-point delta.
type MetricStat struct {
	Current  float64 `json:"current"`
	Previous float64 `json:"previous"`
	Change   float64 `json:"change"`
	Trend    string  `json:"trend"` // up, down, neutral
}

// TenantCount is one row of the top-tenants breakdown.
type TenantCount struct {
	TenantID   string  `json:"tenant_id"`
	TenantName string  `json:"tenant_name"`
	Current    int     `json:"current"`
	Previous   int     `json:"previous"`
	Change     float64 `json:"change"`
	Trend      string  `json:"trend"`
}

// ClusterCount is one row of the top-clusters breakdown.
type ClusterCount struct {
	ClusterID   string  `json:"cluster_id"`
	ClusterName string  `json:"cluster_name"`
	TenantName  string  `json:"tenant_name"`
	Current     int     `json:"current"`
	Previous    int     `json:"previous"`
	Change      float64 `json:"change"`
	Trend       string  `json:"trend"`
}

// SignatureCount is one row of the top-signatures breakdown.
type SignatureCount struct {
	Signature string  `json:"signature"`
	Current   int     `json:"current"`
	Previous  int     `json:"previous"`
	Change    float64 `json:"change"`
	Trend     string  `json:"trend"`
	LastSeen  string  `json:"last_seen"`
}

// PriorityCount is a simple per-priority tally over the current window.
type PriorityCount struct {
	Priority string `json:"priority"`
	Count    int    `json:"count"`
}

// TrendBucket is one point of the time-bucketed trend series.
type TrendBucket struct {
	Date          string `json:"date"`
	TotalAlerts   int    `json:"total_alerts"`
	CriticalCount int    `json:"critical_count"`
	MajorCount    int    `json:"major_count"`
	WarningCount  int    `json:"warning_count"`
}

// DateRange describes the current window of a dashboard response.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Days  int    `json:"days"`
}

// DashboardData is the full windowed-analytics response.
type DashboardData struct {
	TotalAlerts    MetricStat       `json:"totalAlerts"`
	ProdAlerts     MetricStat       `json:"prodAlerts"`
	NonProdAlerts  MetricStat       `json:"nonProdAlerts"`
	CriticalAlerts MetricStat       `json:"criticalAlerts"`
	FakeAlarmRate  MetricStat       `json:"fakeAlarmRate"`
	HandlingRate   MetricStat       `json:"handlingRate"`
	ByPriority     []PriorityCount  `json:"byPriority"`
	BySignature    []SignatureCount `json:"bySignature"`
	ByTenant       []TenantCount    `json:"byTenant"`
	ByCluster      []ClusterCount   `json:"byCluster"`
	Trend          []TrendBucket    `json:"dailyTrend"`
	DateRange      DateRange        `json:"dateRange"`
}

// ComponentStats is the per-component windowed-analytics response.
type ComponentStats struct {
	Component    string           `json:"component"`
	Period       string           `json:"period"`
	Env          string           `json:"env"`
	TotalAlerts  MetricStat       `json:"total_alerts"`
	FakeRate     MetricStat       `json:"fake_alarm_rate_stat"`
	HandlingRate MetricStat       `json:"handling_rate_stat"`
	Trend        []TrendBucket    `json:"daily_trend"`
	RecentIssues []IssueWithNames `json:"recent_issues"`
	TopTenants   []TenantCount    `json:"top_tenants"`
	TopClusters  []ClusterCount   `json:"top_clusters"`
	TopRules     []SignatureCount `json:"top_rules"`
}

// IssueWithNames is an Issue enriched with a resolved cluster name for
// listing views.
type IssueWithNames struct {
	Issue
	ClusterName string `json:"cluster_name"`
}

// ComponentEntry is one sidebar component listing row.
type ComponentEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"`
}
