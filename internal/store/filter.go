package store

import "strings"

// Filter composes discrete, named predicates into a single WHERE clause
// with bound arguments. Each predicate is additive; all predicates are
// ANDed. An empty filter matches everything.
//
// User-supplied values (components, tenants, signatures) are always
// bound as arguments, never interpolated into the SQL text.
type Filter struct {
	conds []string
	args  []any
}

// NewFilter returns an empty filter.
func NewFilter() *Filter {
	return &Filter{}
}

func (f *Filter) where(cond string, args ...any) *Filter {
	f.conds = append(f.conds, cond)
	f.args = append(f.args, args...)
	return f
}

// AlertsOnly restricts to issues classified as alerts.
func (f *Filter) AlertsOnly() *Filter {
	return f.where("is_alert = 1")
}

// CreatedBetween restricts on the normalized creation stamp. Bounds are
// "YYYY-MM-DD HH:MM:SS" strings without the UTC suffix.
func (f *Filter) CreatedBetween(start, end string) *Filter {
	return f.where("replace(created, ' UTC', '') BETWEEN ? AND ?", start, end)
}

// CreatedDateBetween restricts on the date part only, for bucketed
// trend queries that group by day.
func (f *Filter) CreatedDateBetween(startDate, endDate string) *Filter {
	return f.where("substr(replace(created, ' UTC', ''), 1, 10) BETWEEN ? AND ?", startDate, endDate)
}

// Env restricts by environment. The environment is not tracked as a
// first-class field upstream; a [PROD] marker embedded in the alert
// signature stands in for it. Values other than prod/non_prod are
// no restriction.
func (f *Filter) Env(env string) *Filter {
	switch env {
	case "prod":
		return f.where("alert_signature LIKE '[PROD]%'")
	case "non_prod":
		return f.where("alert_signature NOT LIKE '[PROD]%'")
	}
	return f
}

// Tier restricts by business tier derived from the biz_type marker.
// Unknown tier names are no restriction.
func (f *Filter) Tier(tier string) *Filter {
	switch tier {
	case "premium":
		return f.where("biz_type LIKE '%nextgen%'")
	case "essential":
		return f.where("(biz_type LIKE '%devtier%' OR biz_type LIKE '%serverless%')")
	case "dedicated":
		return f.where("(biz_type NOT LIKE '%nextgen%' AND biz_type NOT LIKE '%devtier%' AND biz_type NOT LIKE '%serverless%')")
	}
	return f
}

const legacyPredicate = "((stability_governance = '' OR stability_governance IS NULL) AND biz_type NOT LIKE '%nextgen%')"

// LegacyOnly restricts to the legacy/ungoverned bucket: alert issues
// with no stability-governance metadata that are not premium tier.
func (f *Filter) LegacyOnly() *Filter {
	return f.where(legacyPredicate)
}

// ExcludeLegacy removes the legacy/ungoverned bucket, so an issue
// counted under the old-rules pseudo-component is never also counted
// under a properly-governed component.
func (f *Filter) ExcludeLegacy() *Filter {
	return f.where("NOT " + legacyPredicate)
}

// Component restricts to issues whose JSON-encoded component list
// contains the exact component name.
func (f *Filter) Component(name string) *Filter {
	return f.where("components LIKE ?", `%"`+name+`"%`)
}

// ComponentLoose restricts with a plain substring match, as the
// dashboard's free-form component parameter does.
func (f *Filter) ComponentLoose(name string) *Filter {
	return f.where("components LIKE ?", "%"+name+"%")
}

// Tenant restricts to one tenant id.
func (f *Filter) Tenant(id string) *Filter {
	return f.where("tenant_id = ?", id)
}

// Cluster restricts to one cluster id.
func (f *Filter) Cluster(id string) *Filter {
	return f.where("cluster_id = ?", id)
}

// Signature restricts to one alert signature.
func (f *Filter) Signature(sig string) *Filter {
	return f.where("alert_signature = ?", sig)
}

// Status restricts to one status string.
func (f *Filter) Status(s string) *Filter {
	return f.where("status = ?", s)
}

// StatusNot excludes one status string.
func (f *Filter) StatusNot(s string) *Filter {
	return f.where("status != ?", s)
}

// Priority restricts to one priority.
func (f *Filter) Priority(p string) *Filter {
	return f.where("priority = ?", p)
}

// Priorities restricts to any of the given priorities.
func (f *Filter) Priorities(ps []string) *Filter {
	if len(ps) == 0 {
		return f
	}
	placeholders := make([]string, len(ps))
	for i, p := range ps {
		placeholders[i] = "?"
		f.args = append(f.args, strings.TrimSpace(p))
	}
	f.conds = append(f.conds, "priority IN ("+strings.Join(placeholders, ",")+")")
	return f
}

// NonEmpty requires a dimension column to hold a value, used by
// grouped-count breakdowns.
func (f *Filter) NonEmpty(column string) *Filter {
	return f.where(column + " != '' AND " + column + " IS NOT NULL")
}

// NotMuted anti-joins against the muted_issues table.
func (f *Filter) NotMuted() *Filter {
	return f.where("id NOT IN (SELECT issue_id FROM muted_issues)")
}

// Clone returns an independent copy, so a base filter can be extended
// per sub-query without predicates leaking between them.
func (f *Filter) Clone() *Filter {
	c := &Filter{
		conds: make([]string, len(f.conds)),
		args:  make([]any, len(f.args)),
	}
	copy(c.conds, f.conds)
	copy(c.args, f.args)
	return c
}

// Clause renders the WHERE clause body and its bound arguments.
func (f *Filter) Clause() (string, []any) {
	if len(f.conds) == 0 {
		return "1=1", nil
	}
	return strings.Join(f.conds, " AND "), f.args
}
