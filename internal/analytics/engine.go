package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"alertlens/internal/classify"
	"alertlens/internal/logger"
	"alertlens/internal/store"
	"alertlens/pkg/models"
)

const stampLayout = "2006-01-02 15:04:05"

// NameResolver resolves cluster and tenant ids to display names.
// Satisfied by *namecache.Resolver.
type NameResolver interface {
	Resolve(ctx context.Context, id string) (models.NameInfo, error)
}

// Engine computes windowed comparative analytics over the issue store.
// Every query compares a current window of N days against the N days
// immediately before it.
type Engine struct {
	store      *store.Store
	categories *classify.CategoryMap
	resolver   NameResolver
}

// NewEngine creates an analytics engine. resolver may be nil; name
// enrichment then echoes ids.
func NewEngine(st *store.Store, categories *classify.CategoryMap, resolver NameResolver) *Engine {
	return &Engine{store: st, categories: categories, resolver: resolver}
}

// Query selects the analytics window. The narrowing fields are
// optional; an empty value is no restriction.
type Query struct {
	// Days is the window length. Defaults to 7, capped at 365.
	Days int
	// Env is prod, non_prod, or all.
	Env string
	// Component narrows to one component (loose match).
	Component string
	// TenantID narrows to one tenant.
	TenantID string
	// ClusterID narrows to one cluster.
	ClusterID string
	// Signature narrows to one alert signature.
	Signature string
	// Granularity of the trend series: day, week, or month.
	Granularity string
}

func (q *Query) normalize() {
	if q.Days <= 0 {
		q.Days = 7
	}
	if q.Days > 365 {
		q.Days = 365
	}
}

// window holds the bounds of the current and previous comparison
// windows as normalized store timestamps.
type window struct {
	curStart, curEnd   string
	prevStart, prevEnd string
	days               int
}

func makeWindow(days int) window {
	now := time.Now().UTC()
	cur := now.AddDate(0, 0, -days)
	prev := now.AddDate(0, 0, -2*days)
	return window{
		curStart:  cur.Format(stampLayout),
		curEnd:    now.Format(stampLayout),
		prevStart: prev.Format(stampLayout),
		prevEnd:   cur.Format(stampLayout),
		days:      days,
	}
}

// Dashboard computes the full dashboard response.
func (e *Engine) Dashboard(ctx context.Context, q Query) (*models.DashboardData, error) {
	q.normalize()
	w := makeWindow(q.Days)

	base := store.NewFilter().AlertsOnly().Env(q.Env)
	if q.Component != "" {
		base.ComponentLoose(q.Component)
	}
	if q.TenantID != "" {
		base.Tenant(q.TenantID)
	}
	if q.ClusterID != "" {
		base.Cluster(q.ClusterID)
	}
	if q.Signature != "" {
		base.Signature(q.Signature)
	}

	cur := base.Clone().CreatedBetween(w.curStart, w.curEnd)
	prev := base.Clone().CreatedBetween(w.prevStart, w.prevEnd)

	data := &models.DashboardData{
		DateRange: models.DateRange{Start: w.curStart, End: w.curEnd, Days: w.days},
	}

	total, prevTotal, err := e.countPair(ctx, cur, prev)
	if err != nil {
		return nil, err
	}
	data.TotalAlerts = countStat(total, prevTotal)

	// Environment split only makes sense when no env filter is active.
	prodCur, err := e.store.CountIssues(ctx, cur.Clone().Env("prod"))
	if err != nil {
		return nil, err
	}
	prodPrev, err := e.store.CountIssues(ctx, prev.Clone().Env("prod"))
	if err != nil {
		return nil, err
	}
	data.ProdAlerts = countStat(prodCur, prodPrev)
	data.NonProdAlerts = countStat(total-prodCur, prevTotal-prodPrev)

	critCur, critPrev, err := e.countPair(ctx,
		cur.Clone().Priority("Critical"), prev.Clone().Priority("Critical"))
	if err != nil {
		return nil, err
	}
	data.CriticalAlerts = countStat(critCur, critPrev)

	fakeCur, fakePrev, err := e.countPair(ctx,
		cur.Clone().Status("FAKE ALARM"), prev.Clone().Status("FAKE ALARM"))
	if err != nil {
		return nil, err
	}
	data.FakeAlarmRate = rateStat(rate(fakeCur, total), rate(fakePrev, prevTotal))

	handledCur, handledPrev, err := e.countPair(ctx,
		cur.Clone().StatusNot("Created"), prev.Clone().StatusNot("Created"))
	if err != nil {
		return nil, err
	}
	data.HandlingRate = rateStat(rate(handledCur, total), rate(handledPrev, prevTotal))

	priorities, err := e.store.GroupedCounts(ctx, cur, store.DimPriority, 0)
	if err != nil {
		return nil, err
	}
	for _, p := range priorities {
		data.ByPriority = append(data.ByPriority, models.PriorityCount{Priority: p.Key, Count: p.Count})
	}

	data.BySignature, err = e.topSignatures(ctx, cur, prev, 10)
	if err != nil {
		return nil, err
	}
	data.ByTenant, err = e.topTenants(ctx, cur, prev, 10)
	if err != nil {
		return nil, err
	}
	data.ByCluster, err = e.topClusters(ctx, cur, prev, 10)
	if err != nil {
		return nil, err
	}

	data.Trend, err = e.store.TrendBuckets(ctx, cur, q.Granularity)
	if err != nil {
		return nil, err
	}

	return data, nil
}

// ComponentStats computes the per-component analytics view. Three kinds
// of component are recognized: the old-rules pseudo-component selects
// the legacy/ungoverned bucket; Serverless selects the whole essential
// tier; any other name selects issues listing that component, with the
// legacy bucket carved out so nothing is double counted.
func (e *Engine) ComponentStats(ctx context.Context, component string, q Query) (*models.ComponentStats, error) {
	q.normalize()
	w := makeWindow(q.Days)

	base := store.NewFilter().AlertsOnly().Env(q.Env)
	switch component {
	case classify.LegacyComponent:
		base.LegacyOnly()
	case "Serverless":
		base.Tier(classify.TierEssential)
	default:
		base.Component(component)
		if cat := e.categories.Category(component); cat != "Resilience" && cat != "Serverless" {
			base.ExcludeLegacy()
		}
	}

	cur := base.Clone().CreatedBetween(w.curStart, w.curEnd)
	prev := base.Clone().CreatedBetween(w.prevStart, w.prevEnd)

	stats := &models.ComponentStats{
		Component: component,
		Period:    fmt.Sprintf("%dd", w.days),
		Env:       q.Env,
	}

	total, prevTotal, err := e.countPair(ctx, cur, prev)
	if err != nil {
		return nil, err
	}
	stats.TotalAlerts = countStat(total, prevTotal)

	fakeCur, fakePrev, err := e.countPair(ctx,
		cur.Clone().Status("FAKE ALARM"), prev.Clone().Status("FAKE ALARM"))
	if err != nil {
		return nil, err
	}
	stats.FakeRate = rateStat(rate(fakeCur, total), rate(fakePrev, prevTotal))

	handledCur, handledPrev, err := e.countPair(ctx,
		cur.Clone().StatusNot("Created"), prev.Clone().StatusNot("Created"))
	if err != nil {
		return nil, err
	}
	stats.HandlingRate = rateStat(rate(handledCur, total), rate(handledPrev, prevTotal))

	stats.Trend, err = e.store.TrendBuckets(ctx, cur, q.Granularity)
	if err != nil {
		return nil, err
	}

	recent, err := e.store.ListIssues(ctx, cur, 10, 0)
	if err != nil {
		return nil, err
	}
	stats.RecentIssues = e.enrichIssues(ctx, recent)

	stats.TopTenants, err = e.topTenants(ctx, cur, prev, 5)
	if err != nil {
		return nil, err
	}
	stats.TopClusters, err = e.topClusters(ctx, cur, prev, 5)
	if err != nil {
		return nil, err
	}
	stats.TopRules, err = e.topSignatures(ctx, cur, prev, 5)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// IssuesQuery selects an issue listing. Component, Category, TenantID,
// ClusterID and Signature are optional narrowing filters; empty means
// no restriction.
type IssuesQuery struct {
	Days       int
	Env        string
	MetricType string
	Component  string
	Category   string
	TenantID   string
	ClusterID  string
	Signature  string
	Priorities []string
	Page       int
	PageSize   int
}

// IssuesPage is one page of a listing plus the full match count.
type IssuesPage struct {
	Issues   []models.IssueWithNames `json:"issues"`
	Total    int                     `json:"total"`
	Page     int                     `json:"page"`
	PageSize int                     `json:"pageSize"`
}

// Issues lists alert issues behind a dashboard metric, newest first.
// Muted issues are excluded.
func (e *Engine) Issues(ctx context.Context, q IssuesQuery) (*IssuesPage, error) {
	days := q.Days
	if days <= 0 {
		days = 7
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 || q.PageSize > 200 {
		q.PageSize = 20
	}
	w := makeWindow(days)

	f := store.NewFilter().AlertsOnly().Env(q.Env).
		CreatedBetween(w.curStart, w.curEnd).NotMuted()

	// Components get the same three-way treatment as ComponentStats:
	// the old-rules pseudo-component selects the legacy bucket,
	// Serverless widens to the essential tier, and a normal component
	// carves the legacy bucket out so listings match the stats.
	category := q.Category
	switch q.Component {
	case "":
	case classify.LegacyComponent:
		f.LegacyOnly()
	case "Serverless":
		category = classify.TierEssential
	default:
		if cat := e.categories.Category(q.Component); cat != "Resilience" && cat != "Serverless" {
			f.ExcludeLegacy()
		}
		f.Component(q.Component)
	}
	if category != "" {
		f.Tier(category)
	}
	if q.TenantID != "" {
		f.Tenant(q.TenantID)
	}
	if q.ClusterID != "" {
		f.Cluster(q.ClusterID)
	}
	if q.Signature != "" {
		f.Signature(q.Signature)
	}

	switch q.MetricType {
	case "prod":
		f.Env("prod")
	case "non_prod":
		f.Env("non_prod")
	case "critical":
		f.Priority("Critical")
	case "fake", "fake_alarm":
		f.Status("FAKE ALARM")
	case "handled":
		f.StatusNot("Created")
	}
	f.Priorities(q.Priorities)

	total, err := e.store.CountIssues(ctx, f)
	if err != nil {
		return nil, err
	}

	offset := (q.Page - 1) * q.PageSize
	issues, err := e.store.ListIssues(ctx, f, q.PageSize, offset)
	if err != nil {
		return nil, err
	}

	return &IssuesPage{
		Issues:   e.enrichIssues(ctx, issues),
		Total:    total,
		Page:     q.Page,
		PageSize: q.PageSize,
	}, nil
}

// Components builds the sidebar component listing from the components
// observed on recent alerts. Components without a defined category are
// skipped as dirty data. Serverless is always listed; the old-rules
// pseudo-component is appended when the legacy bucket is non-empty.
func (e *Engine) Components(ctx context.Context) ([]models.ComponentEntry, error) {
	lists, err := e.store.RecentComponentLists(ctx, 500)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var entries []models.ComponentEntry
	add := func(name, category string) {
		if seen[name] {
			return
		}
		seen[name] = true
		entries = append(entries, models.ComponentEntry{
			ID:       name,
			Name:     name,
			Category: category,
			Status:   "active",
		})
	}

	for _, raw := range lists {
		var names []string
		if err := json.Unmarshal([]byte(raw), &names); err != nil {
			continue
		}
		for _, name := range names {
			if name == "" || seen[name] {
				continue
			}
			cat := e.categories.Category(name)
			if cat == classify.OtherCategory {
				continue
			}
			add(name, cat)
		}
	}

	add("Serverless", e.categories.Category("Serverless"))

	legacyCount, err := e.store.CountIssues(ctx, store.NewFilter().AlertsOnly().LegacyOnly())
	if err != nil {
		return nil, err
	}
	if legacyCount > 0 {
		add(classify.LegacyComponent, "Resilience")
	}

	return entries, nil
}

// Categories returns the configured category names in declaration order.
func (e *Engine) Categories() []string {
	return e.categories.Categories()
}

func (e *Engine) countPair(ctx context.Context, cur, prev *store.Filter) (int, int, error) {
	c, err := e.store.CountIssues(ctx, cur)
	if err != nil {
		return 0, 0, err
	}
	p, err := e.store.CountIssues(ctx, prev)
	if err != nil {
		return 0, 0, err
	}
	return c, p, nil
}

func (e *Engine) topSignatures(ctx context.Context, cur, prev *store.Filter, limit int) ([]models.SignatureCount, error) {
	rows, err := e.store.GroupedCounts(ctx, cur, store.DimSignature, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.SignatureCount, 0, len(rows))
	for _, r := range rows {
		prevCount, err := e.store.CountIssues(ctx, prev.Clone().Signature(r.Key))
		if err != nil {
			return nil, err
		}
		change, trend := countChange(r.Count, prevCount)
		out = append(out, models.SignatureCount{
			Signature: r.Key,
			Current:   r.Count,
			Previous:  prevCount,
			Change:    change,
			Trend:     trend,
			LastSeen:  r.LastSeen,
		})
	}
	return out, nil
}

func (e *Engine) topTenants(ctx context.Context, cur, prev *store.Filter, limit int) ([]models.TenantCount, error) {
	rows, err := e.store.GroupedCounts(ctx, cur, store.DimTenant, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.TenantCount, 0, len(rows))
	for _, r := range rows {
		prevCount, err := e.store.CountIssues(ctx, prev.Clone().Tenant(r.Key))
		if err != nil {
			return nil, err
		}
		change, trend := countChange(r.Count, prevCount)
		out = append(out, models.TenantCount{
			TenantID:   r.Key,
			TenantName: e.resolveName(ctx, r.Key),
			Current:    r.Count,
			Previous:   prevCount,
			Change:     change,
			Trend:      trend,
		})
	}
	return out, nil
}

func (e *Engine) topClusters(ctx context.Context, cur, prev *store.Filter, limit int) ([]models.ClusterCount, error) {
	rows, err := e.store.GroupedCounts(ctx, cur, store.DimCluster, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.ClusterCount, 0, len(rows))
	for _, r := range rows {
		prevCount, err := e.store.CountIssues(ctx, prev.Clone().Cluster(r.Key))
		if err != nil {
			return nil, err
		}
		change, trend := countChange(r.Count, prevCount)
		row := models.ClusterCount{
			ClusterID:   r.Key,
			ClusterName: r.Key,
			Current:     r.Count,
			Previous:    prevCount,
			Change:      change,
			Trend:       trend,
		}
		if e.resolver != nil {
			if info, err := e.resolver.Resolve(ctx, r.Key); err == nil {
				row.ClusterName = info.Name
				row.TenantName = info.TenantName
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// enrichIssues attaches resolved cluster names to a listing. Resolution
// failures keep the raw id; a listing never fails on a name lookup.
func (e *Engine) enrichIssues(ctx context.Context, issues []models.Issue) []models.IssueWithNames {
	out := make([]models.IssueWithNames, 0, len(issues))
	for _, issue := range issues {
		row := models.IssueWithNames{Issue: issue, ClusterName: issue.ClusterID}
		if e.resolver != nil && issue.ClusterID != "" {
			if info, err := e.resolver.Resolve(ctx, issue.ClusterID); err == nil {
				row.ClusterName = info.Name
			} else {
				logger.Debugf("analytics: resolving cluster %s: %v", issue.ClusterID, err)
			}
		}
		out = append(out, row)
	}
	return out
}

func (e *Engine) resolveName(ctx context.Context, id string) string {
	if e.resolver == nil {
		return id
	}
	info, err := e.resolver.Resolve(ctx, id)
	if err != nil || info.Name == "" {
		return id
	}
	return info.Name
}

func countStat(current, previous int) models.MetricStat {
	change, trend := countChange(current, previous)
	return models.MetricStat{
		Current:  float64(current),
		Previous: float64(previous),
		Change:   change,
		Trend:    trend,
	}
}

func rateStat(current, previous float64) models.MetricStat {
	change, trend := pointChange(current, previous)
	return models.MetricStat{
		Current:  current,
		Previous: previous,
		Change:   change,
		Trend:    trend,
	}
}
