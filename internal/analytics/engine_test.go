package analytics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"alertlens/internal/classify"
	"alertlens/internal/store"
	"alertlens/pkg/models"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	catPath := filepath.Join(t.TempDir(), "categories.yaml")
	content := `
categories:
  Compute:
    - scheduler
  Resilience:
    - backup
`
	if err := os.WriteFile(catPath, []byte(content), 0o644); err != nil {
		t.Fatalf("writing categories: %v", err)
	}
	categories := classify.NewCategoryMap(catPath, time.Minute)

	return NewEngine(st, categories, nil), st
}

func stampDaysAgo(days int) string {
	return time.Now().UTC().AddDate(0, 0, -days).Format(stampLayout) + " UTC"
}

func seed(t *testing.T, st *store.Store, issue models.Issue) {
	t.Helper()
	if issue.Labels == "" {
		issue.Labels = "[]"
	}
	if issue.Components == "" {
		issue.Components = "[]"
	}
	if err := st.UpsertIssue(context.Background(), &issue); err != nil {
		t.Fatalf("seeding %s: %v", issue.ID, err)
	}
}

func TestDashboardWindowing(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	// One alert in the current 7-day window, one in the previous, one
	// outside both.
	seed(t, st, models.Issue{ID: "A-1", IsAlert: true, AlertSignature: "[PROD] x", Priority: "Critical", Status: "Done", Created: stampDaysAgo(3)})
	seed(t, st, models.Issue{ID: "A-2", IsAlert: true, AlertSignature: "[PROD] x", Priority: "Major", Status: "Created", Created: stampDaysAgo(10)})
	seed(t, st, models.Issue{ID: "A-3", IsAlert: true, AlertSignature: "old", Priority: "Major", Status: "Created", Created: stampDaysAgo(40)})

	data, err := engine.Dashboard(ctx, Query{Days: 7})
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}

	if data.TotalAlerts.Current != 1 || data.TotalAlerts.Previous != 1 {
		t.Errorf("totals = %+v, want current 1 previous 1", data.TotalAlerts)
	}
	if data.TotalAlerts.Trend != "neutral" {
		t.Errorf("expected neutral trend, got %q", data.TotalAlerts.Trend)
	}
	if data.CriticalAlerts.Current != 1 || data.CriticalAlerts.Previous != 0 {
		t.Errorf("critical = %+v", data.CriticalAlerts)
	}
	if data.CriticalAlerts.Change != 100 || data.CriticalAlerts.Trend != "up" {
		t.Errorf("expected zero-previous rule, got %+v", data.CriticalAlerts)
	}
	if data.ProdAlerts.Current != 1 || data.NonProdAlerts.Current != 0 {
		t.Errorf("env split = prod %+v nonprod %+v", data.ProdAlerts, data.NonProdAlerts)
	}
	// A-1 is Done, so the current window is fully handled.
	if data.HandlingRate.Current != 100 {
		t.Errorf("handling rate = %v, want 100", data.HandlingRate.Current)
	}
	if data.DateRange.Days != 7 {
		t.Errorf("date range days = %d", data.DateRange.Days)
	}
	// Only A-1 falls in the current window, so the trend series has a
	// single day bucket.
	if len(data.Trend) != 1 {
		t.Fatalf("trend buckets = %d, want 1", len(data.Trend))
	}
	if data.Trend[0].TotalAlerts != 1 || data.Trend[0].CriticalCount != 1 {
		t.Errorf("unexpected trend bucket %+v", data.Trend[0])
	}
}

func TestDashboardSignatureComparison(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seed(t, st, models.Issue{ID: "C-" + string(rune('a'+i)), IsAlert: true, AlertSignature: "sig", Created: stampDaysAgo(2)})
	}
	seed(t, st, models.Issue{ID: "P-1", IsAlert: true, AlertSignature: "sig", Created: stampDaysAgo(9)})

	data, err := engine.Dashboard(ctx, Query{Days: 7})
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if len(data.BySignature) != 1 {
		t.Fatalf("expected 1 signature, got %d", len(data.BySignature))
	}
	sig := data.BySignature[0]
	if sig.Current != 3 || sig.Previous != 1 {
		t.Errorf("signature counts = %+v", sig)
	}
	if sig.Change != 200 || sig.Trend != "up" {
		t.Errorf("signature change = %+v", sig)
	}
}

func TestComponentStatsLegacyExclusivity(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	// Governed alert on the scheduler component.
	seed(t, st, models.Issue{
		ID: "G-1", IsAlert: true, Components: `["scheduler"]`,
		StabilityGovernance: "governed", Created: stampDaysAgo(2),
	})
	// Ungoverned alert that also mentions scheduler: belongs to the
	// legacy bucket, not to the component.
	seed(t, st, models.Issue{
		ID: "L-1", IsAlert: true, Components: `["scheduler"]`,
		StabilityGovernance: "", BizType: "enterprise", Created: stampDaysAgo(2),
	})

	comp, err := engine.ComponentStats(ctx, "scheduler", Query{Days: 7})
	if err != nil {
		t.Fatalf("ComponentStats: %v", err)
	}
	if comp.TotalAlerts.Current != 1 {
		t.Errorf("scheduler total = %v, want 1 (legacy excluded)", comp.TotalAlerts.Current)
	}

	legacy, err := engine.ComponentStats(ctx, classify.LegacyComponent, Query{Days: 7})
	if err != nil {
		t.Fatalf("ComponentStats legacy: %v", err)
	}
	if legacy.TotalAlerts.Current != 1 {
		t.Errorf("legacy total = %v, want 1", legacy.TotalAlerts.Current)
	}
}

func TestComponentStatsServerlessIsTierWide(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	seed(t, st, models.Issue{ID: "S-1", IsAlert: true, BizType: "serverless", Created: stampDaysAgo(1)})
	seed(t, st, models.Issue{ID: "S-2", IsAlert: true, BizType: "devtier", Created: stampDaysAgo(2)})
	seed(t, st, models.Issue{ID: "D-1", IsAlert: true, BizType: "enterprise", Created: stampDaysAgo(2)})

	comp, err := engine.ComponentStats(ctx, "Serverless", Query{Days: 7})
	if err != nil {
		t.Fatalf("ComponentStats: %v", err)
	}
	if comp.TotalAlerts.Current != 2 {
		t.Errorf("Serverless total = %v, want the whole essential tier (2)", comp.TotalAlerts.Current)
	}
}

func TestIssuesListingExcludesMuted(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	seed(t, st, models.Issue{ID: "A-1", IsAlert: true, Created: stampDaysAgo(1)})
	seed(t, st, models.Issue{ID: "A-2", IsAlert: true, Created: stampDaysAgo(2)})
	if err := st.MuteIssue(ctx, "A-2", "noise"); err != nil {
		t.Fatalf("MuteIssue: %v", err)
	}

	page, err := engine.Issues(ctx, IssuesQuery{Days: 7})
	if err != nil {
		t.Fatalf("Issues: %v", err)
	}
	if page.Total != 1 || len(page.Issues) != 1 {
		t.Fatalf("expected muted issue excluded, got total=%d rows=%d", page.Total, len(page.Issues))
	}
	if page.Issues[0].ID != "A-1" {
		t.Errorf("unexpected issue %q", page.Issues[0].ID)
	}
}

func TestIssuesMetricTypeFilter(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	seed(t, st, models.Issue{ID: "A-1", IsAlert: true, Priority: "Critical", Created: stampDaysAgo(1)})
	seed(t, st, models.Issue{ID: "A-2", IsAlert: true, Priority: "Major", Status: "FAKE ALARM", Created: stampDaysAgo(1)})

	page, err := engine.Issues(ctx, IssuesQuery{Days: 7, MetricType: "critical"})
	if err != nil {
		t.Fatalf("Issues: %v", err)
	}
	if page.Total != 1 || page.Issues[0].ID != "A-1" {
		t.Errorf("critical filter: %+v", page)
	}

	page, err = engine.Issues(ctx, IssuesQuery{Days: 7, MetricType: "fake_alarm"})
	if err != nil {
		t.Fatalf("Issues: %v", err)
	}
	if page.Total != 1 || page.Issues[0].ID != "A-2" {
		t.Errorf("fake_alarm filter: %+v", page)
	}
}

func TestComponentsSidebar(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	seed(t, st, models.Issue{ID: "A-1", IsAlert: true, Components: `["scheduler"]`, Created: stampDaysAgo(1)})
	seed(t, st, models.Issue{ID: "A-2", IsAlert: true, Components: `["mystery"]`, Created: stampDaysAgo(1)})
	// Legacy bucket member.
	seed(t, st, models.Issue{ID: "L-1", IsAlert: true, BizType: "enterprise", Created: stampDaysAgo(1)})

	entries, err := engine.Components(ctx)
	if err != nil {
		t.Fatalf("Components: %v", err)
	}

	byName := map[string]models.ComponentEntry{}
	for _, e := range entries {
		byName[e.Name] = e
	}

	if _, ok := byName["scheduler"]; !ok {
		t.Error("expected scheduler listed")
	}
	if _, ok := byName["mystery"]; ok {
		t.Error("expected uncategorized component skipped")
	}
	if _, ok := byName["Serverless"]; !ok {
		t.Error("expected Serverless always listed")
	}
	legacy, ok := byName[classify.LegacyComponent]
	if !ok {
		t.Fatal("expected old-rules listed when legacy bucket is non-empty")
	}
	if legacy.Category != "Resilience" {
		t.Errorf("old-rules category = %q, want Resilience", legacy.Category)
	}
}

func TestIssuesNarrowingFilters(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	seed(t, st, models.Issue{ID: "T-1", IsAlert: true, TenantID: "tenant-a", ClusterID: "cl-1", AlertSignature: "disk full", Created: stampDaysAgo(1)})
	seed(t, st, models.Issue{ID: "T-2", IsAlert: true, TenantID: "tenant-b", ClusterID: "cl-2", AlertSignature: "disk full", Created: stampDaysAgo(1)})
	seed(t, st, models.Issue{ID: "T-3", IsAlert: true, TenantID: "tenant-a", ClusterID: "cl-1", AlertSignature: "oom", Created: stampDaysAgo(2)})

	page, err := engine.Issues(ctx, IssuesQuery{Days: 7, TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("Issues: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("tenant filter total = %d, want 2", page.Total)
	}
	for _, row := range page.Issues {
		if row.TenantID != "tenant-a" {
			t.Errorf("tenant filter leaked %q", row.ID)
		}
	}

	page, err = engine.Issues(ctx, IssuesQuery{Days: 7, ClusterID: "cl-2"})
	if err != nil {
		t.Fatalf("Issues: %v", err)
	}
	if page.Total != 1 || page.Issues[0].ID != "T-2" {
		t.Errorf("cluster filter: %+v", page)
	}

	page, err = engine.Issues(ctx, IssuesQuery{Days: 7, Signature: "oom"})
	if err != nil {
		t.Fatalf("Issues: %v", err)
	}
	if page.Total != 1 || page.Issues[0].ID != "T-3" {
		t.Errorf("signature filter: %+v", page)
	}
}

func TestIssuesComponentAndCategory(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	seed(t, st, models.Issue{
		ID: "G-1", IsAlert: true, Components: `["scheduler"]`,
		StabilityGovernance: "governed", BizType: "nextgen", Created: stampDaysAgo(1),
	})
	// Ungoverned issue mentioning the same component: it belongs to the
	// legacy bucket and must not show up in the component listing.
	seed(t, st, models.Issue{
		ID: "L-1", IsAlert: true, Components: `["scheduler"]`,
		StabilityGovernance: "", BizType: "enterprise", Created: stampDaysAgo(1),
	})
	seed(t, st, models.Issue{ID: "S-1", IsAlert: true, BizType: "serverless", Created: stampDaysAgo(1)})

	page, err := engine.Issues(ctx, IssuesQuery{Days: 7, Component: "scheduler"})
	if err != nil {
		t.Fatalf("Issues: %v", err)
	}
	if page.Total != 1 || page.Issues[0].ID != "G-1" {
		t.Errorf("component listing: %+v", page)
	}

	page, err = engine.Issues(ctx, IssuesQuery{Days: 7, Component: classify.LegacyComponent})
	if err != nil {
		t.Fatalf("Issues: %v", err)
	}
	if page.Total != 1 || page.Issues[0].ID != "L-1" {
		t.Errorf("legacy listing: %+v", page)
	}

	// Serverless widens to the whole essential tier.
	page, err = engine.Issues(ctx, IssuesQuery{Days: 7, Component: "Serverless"})
	if err != nil {
		t.Fatalf("Issues: %v", err)
	}
	if page.Total != 1 || page.Issues[0].ID != "S-1" {
		t.Errorf("serverless listing: %+v", page)
	}

	page, err = engine.Issues(ctx, IssuesQuery{Days: 7, Category: classify.TierPremium})
	if err != nil {
		t.Fatalf("Issues: %v", err)
	}
	if page.Total != 1 || page.Issues[0].ID != "G-1" {
		t.Errorf("premium tier listing: %+v", page)
	}
}

func TestDashboardTenantNarrowing(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	seed(t, st, models.Issue{ID: "T-1", IsAlert: true, TenantID: "tenant-a", Created: stampDaysAgo(1)})
	seed(t, st, models.Issue{ID: "T-2", IsAlert: true, TenantID: "tenant-b", Created: stampDaysAgo(1)})
	seed(t, st, models.Issue{ID: "T-3", IsAlert: true, TenantID: "tenant-a", Created: stampDaysAgo(9)})

	data, err := engine.Dashboard(ctx, Query{Days: 7, TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if data.TotalAlerts.Current != 1 || data.TotalAlerts.Previous != 1 {
		t.Errorf("tenant-narrowed totals = %+v", data.TotalAlerts)
	}
	if len(data.ByTenant) != 1 || data.ByTenant[0].TenantID != "tenant-a" {
		t.Errorf("tenant breakdown leaked: %+v", data.ByTenant)
	}
}
