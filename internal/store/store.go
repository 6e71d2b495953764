package store

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"alertlens/pkg/models"
)

// Store is the canonical issue store backed by SQLite. Writers upsert
// by issue key; readers run range and grouped-count queries and may run
// fully in parallel with an in-flight ingestion cycle (WAL mode).
type Store struct {
	pool *pool
}

// Config holds store parameters.
type Config struct {
	Path     string
	PoolSize int
}

// Open opens (and creates if necessary) the issue store.
func Open(cfg Config) (*Store, error) {
	p, err := openPool(cfg.Path, cfg.PoolSize)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.inner.Close()
}

func (s *Store) withConn(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := s.pool.inner.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: take connection: %w", err)
	}
	defer s.pool.inner.Put(conn)
	return fn(conn)
}

const issueColumns = `id, title, description, created, priority, labels, issue_type,
	components, project, status, is_subtask, is_alert, alert_signature,
	cluster_id, tenant_id, biz_type, stability_governance, visibility,
	component_name, source_component, alert_group`

// UpsertIssue inserts or fully overwrites one issue row. Re-ingesting
// the same key is idempotent: the second write wins on every field.
func (s *Store) UpsertIssue(ctx context.Context, issue *models.Issue) error {
	const query = `INSERT INTO issues (` + issueColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			created = excluded.created,
			priority = excluded.priority,
			labels = excluded.labels,
			issue_type = excluded.issue_type,
			components = excluded.components,
			project = excluded.project,
			status = excluded.status,
			is_subtask = excluded.is_subtask,
			is_alert = excluded.is_alert,
			alert_signature = excluded.alert_signature,
			cluster_id = excluded.cluster_id,
			tenant_id = excluded.tenant_id,
			biz_type = excluded.biz_type,
			stability_governance = excluded.stability_governance,
			visibility = excluded.visibility,
			component_name = excluded.component_name,
			source_component = excluded.source_component,
			alert_group = excluded.alert_group`

	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.ExecuteTransient(conn, query, &sqlitex.ExecOptions{
			Args: []any{
				issue.ID, issue.Title, issue.Description, issue.Created,
				issue.Priority, issue.Labels, issue.IssueType, issue.Components,
				issue.Project, issue.Status, boolToInt(issue.IsSubtask),
				boolToInt(issue.IsAlert), issue.AlertSignature, issue.ClusterID,
				issue.TenantID, issue.BizType, issue.StabilityGovernance,
				issue.Visibility, issue.ComponentName, issue.SourceComponent,
				issue.AlertGroup,
			},
		})
		if err != nil {
			return fmt.Errorf("store: upsert issue %s: %w", issue.ID, err)
		}
		return nil
	})
}

// MaxCreated returns the latest normalized creation stamp across all
// stored issues, or "" when the store is empty.
func (s *Store) MaxCreated(ctx context.Context) (string, error) {
	var latest string
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteTransient(conn, `SELECT MAX(created) FROM issues`, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				latest = stmt.ColumnText(0)
				return nil
			},
		})
	})
	return latest, err
}

// IssueCount returns the total number of stored issues.
func (s *Store) IssueCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteTransient(conn, `SELECT COUNT(*) FROM issues`, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt64(0)
				return nil
			},
		})
	})
	return count, err
}

// CountIssues counts issues matching a filter.
func (s *Store) CountIssues(ctx context.Context, f *Filter) (int, error) {
	clause, args := f.Clause()
	var count int
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteTransient(conn, `SELECT COUNT(*) FROM issues WHERE `+clause, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt(0)
				return nil
			},
		})
	})
	return count, err
}

// GroupCount is one row of a grouped-count breakdown.
type GroupCount struct {
	Key      string
	Count    int
	LastSeen string
}

// Grouping dimensions for GroupedCounts.
const (
	DimTenant    = "tenant_id"
	DimCluster   = "cluster_id"
	DimSignature = "alert_signature"
	DimPriority  = "priority"
)

// GroupedCounts returns per-key counts for one dimension, most frequent
// first. Rows with an empty dimension value are excluded.
func (s *Store) GroupedCounts(ctx context.Context, f *Filter, dimension string, limit int) ([]GroupCount, error) {
	switch dimension {
	case DimTenant, DimCluster, DimSignature, DimPriority:
	default:
		return nil, fmt.Errorf("store: unknown grouping dimension %q", dimension)
	}

	g := f.Clone().NonEmpty(dimension)
	clause, args := g.Clause()
	query := `SELECT ` + dimension + `, COUNT(*) AS cnt, MAX(created)
		FROM issues WHERE ` + clause + `
		GROUP BY ` + dimension + ` ORDER BY cnt DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	var rows []GroupCount
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteTransient(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				rows = append(rows, GroupCount{
					Key:      stmt.ColumnText(0),
					Count:    stmt.ColumnInt(1),
					LastSeen: stmt.ColumnText(2),
				})
				return nil
			},
		})
	})
	return rows, err
}

// TrendBuckets returns the time-bucketed trend series at the requested
// granularity. step is one of day, week, month; anything else is day.
func (s *Store) TrendBuckets(ctx context.Context, f *Filter, step string) ([]models.TrendBucket, error) {
	var dateExpr string
	switch step {
	case "week":
		dateExpr = `strftime('%Y-%W', replace(created, ' UTC', ''))`
	case "month":
		dateExpr = `substr(replace(created, ' UTC', ''), 1, 7)`
	default:
		dateExpr = `substr(replace(created, ' UTC', ''), 1, 10)`
	}

	clause, args := f.Clause()
	query := `SELECT ` + dateExpr + ` AS bucket,
			COUNT(*) AS total,
			SUM(CASE WHEN priority = 'Critical' THEN 1 ELSE 0 END),
			SUM(CASE WHEN priority = 'Major' THEN 1 ELSE 0 END),
			SUM(CASE WHEN priority = 'Warning' THEN 1 ELSE 0 END)
		FROM issues WHERE ` + clause + `
		GROUP BY bucket ORDER BY bucket ASC`

	var buckets []models.TrendBucket
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteTransient(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				buckets = append(buckets, models.TrendBucket{
					Date:          stmt.ColumnText(0),
					TotalAlerts:   stmt.ColumnInt(1),
					CriticalCount: stmt.ColumnInt(2),
					MajorCount:    stmt.ColumnInt(3),
					WarningCount:  stmt.ColumnInt(4),
				})
				return nil
			},
		})
	})
	return buckets, err
}

// ListIssues returns issues matching a filter, newest first, with
// offset-based pagination. Stability under concurrent writes is only
// what a dashboard listing needs; no snapshot isolation.
func (s *Store) ListIssues(ctx context.Context, f *Filter, limit, offset int) ([]models.Issue, error) {
	clause, args := f.Clause()
	query := `SELECT ` + issueColumns + ` FROM issues WHERE ` + clause +
		` ORDER BY created DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	var issues []models.Issue
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteTransient(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				issues = append(issues, scanIssue(stmt))
				return nil
			},
		})
	})
	return issues, err
}

// RecentComponentLists returns the raw JSON component arrays of the
// most recent alert issues, for building the component sidebar.
func (s *Store) RecentComponentLists(ctx context.Context, limit int) ([]string, error) {
	var lists []string
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteTransient(conn,
			`SELECT components FROM issues WHERE is_alert = 1 ORDER BY created DESC LIMIT ?`,
			&sqlitex.ExecOptions{
				Args: []any{limit},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					lists = append(lists, stmt.ColumnText(0))
					return nil
				},
			})
	})
	return lists, err
}

// MuteIssue records a suppression decision. Muting an already-muted
// issue is a no-op; the original decision stands.
func (s *Store) MuteIssue(ctx context.Context, issueID, reason string) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.ExecuteTransient(conn,
			`INSERT INTO muted_issues (issue_id, muted_at, reason) VALUES (?, ?, ?)
			 ON CONFLICT(issue_id) DO NOTHING`,
			&sqlitex.ExecOptions{
				Args: []any{issueID, time.Now().UTC().Format("2006-01-02 15:04:05"), reason},
			})
		if err != nil {
			return fmt.Errorf("store: mute issue %s: %w", issueID, err)
		}
		return nil
	})
}

func scanIssue(stmt *sqlite.Stmt) models.Issue {
	return models.Issue{
		ID:                  stmt.ColumnText(0),
		Title:               stmt.ColumnText(1),
		Description:         stmt.ColumnText(2),
		Created:             stmt.ColumnText(3),
		Priority:            stmt.ColumnText(4),
		Labels:              stmt.ColumnText(5),
		IssueType:           stmt.ColumnText(6),
		Components:          stmt.ColumnText(7),
		Project:             stmt.ColumnText(8),
		Status:              stmt.ColumnText(9),
		IsSubtask:           stmt.ColumnInt(10) != 0,
		IsAlert:             stmt.ColumnInt(11) != 0,
		AlertSignature:      stmt.ColumnText(12),
		ClusterID:           stmt.ColumnText(13),
		TenantID:            stmt.ColumnText(14),
		BizType:             stmt.ColumnText(15),
		StabilityGovernance: stmt.ColumnText(16),
		Visibility:          stmt.ColumnText(17),
		ComponentName:       stmt.ColumnText(18),
		SourceComponent:     stmt.ColumnText(19),
		AlertGroup:          stmt.ColumnText(20),
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
