package migrations

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/getsentry/snuba/pkg/clickhouse/columns"
	"github.com/getsentry/snuba/pkg/clickhouse/schema"
)

type (
	// Conn is the slice of the ClickHouse connection the runner needs.
	Conn interface {
		Exec(ctx context.Context, query string, args ...any) error
		Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	}

	// Runner applies migrations against one cluster and records progress
	// in the status table.
	Runner struct {
		conn     Conn
		log      *zap.Logger
		progress bool
	}

	RunOptions struct {
		// Group limits the run to one group; nil runs everything.
		Group *Group

		// Fake records migrations as completed without executing DDL,
		// for adopting an existing schema.
		Fake bool

		// Force is required to run blocking migrations.
		Force bool
	}

	// MigrationStatus pairs a migration with its recorded state.
	MigrationStatus struct {
		ID       string
		Group    Group
		Blocking bool
		Status   Status
	}
)

func statusColumns() *columns.ColumnSet {
	return columns.NewColumnSet(
		columns.Column{Name: "migration_group", Type: columns.LowCardinality{Inner: columns.StringType{}}},
		columns.Column{Name: "migration_id", Type: columns.StringType{}},
		columns.Column{Name: "timestamp", Type: columns.DateTime{}},
		columns.Column{Name: "status", Type: columns.LowCardinality{Inner: columns.StringType{}}},
		columns.Column{Name: "version", Type: columns.UInt{Bits: 64}},
	)
}

func statusEngine() schema.Engine {
	return schema.ReplacingMergeTree{
		MergeTree:     schema.MergeTree{OrderBy: "(migration_group, migration_id)"},
		VersionColumn: "version",
	}
}

func NewRunner(conn Conn, log *zap.Logger) *Runner {
	return &Runner{conn: conn, log: log}
}

// ShowProgress enables the terminal progress bar during Run.
func (r *Runner) ShowProgress(on bool) { r.progress = on }

// Bootstrap creates the status table. Safe to call repeatedly.
func (r *Runner) Bootstrap(ctx context.Context) error {
	if err := r.conn.Exec(ctx, statusTableOp().Format()); err != nil {
		return errors.Wrap(err, "creating migration status table")
	}
	return nil
}

// Statuses reads the recorded status of every migration, keyed by ID.
func (r *Runner) Statuses(ctx context.Context) (map[string]Status, error) {
	rows, err := r.conn.Query(ctx,
		fmt.Sprintf("SELECT migration_id, status FROM %s FINAL", statusTableName))
	if err != nil {
		return nil, errors.Wrap(err, "reading migration statuses")
	}
	defer rows.Close() // nolint:errcheck

	out := make(map[string]Status)
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, err
		}
		out[id] = Status(status)
	}
	return out, rows.Err()
}

// List returns every migration in run order with its recorded status;
// unrecorded migrations are pending.
func (r *Runner) List(ctx context.Context) ([]MigrationStatus, error) {
	all, err := All()
	if err != nil {
		return nil, err
	}
	statuses, err := r.Statuses(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationStatus, len(all))
	for i, m := range all {
		status, recorded := statuses[m.ID]
		if !recorded {
			status = StatusPending
		}
		out[i] = MigrationStatus{ID: m.ID, Group: m.Group, Blocking: m.Blocking, Status: status}
	}
	return out, nil
}

// Run applies every pending migration in dependency order.
func (r *Runner) Run(ctx context.Context, opts RunOptions) error {
	if err := r.Bootstrap(ctx); err != nil {
		return err
	}

	var (
		ms  []Migration
		err error
	)
	if opts.Group != nil {
		ms, err = ForGroup(*opts.Group)
	} else {
		ms, err = All()
	}
	if err != nil {
		return err
	}

	statuses, err := r.Statuses(ctx)
	if err != nil {
		return err
	}
	var pending []Migration
	for _, m := range ms {
		if statuses[m.ID] != StatusCompleted {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		r.log.Info("no pending migrations")
		return nil
	}
	for _, m := range pending {
		if m.Blocking && !opts.Force {
			return fmt.Errorf(
				"migration %s is blocking: stop consumers for group %s first, then re-run with --force",
				m.ID, m.Group)
		}
	}

	var bar *progressbar.ProgressBar
	if r.progress {
		bar = progressbar.Default(int64(len(pending)), "migrating")
	}
	for _, m := range pending {
		if err := r.apply(ctx, m, opts.Fake); err != nil {
			return err
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	return nil
}

// Reverse rolls back one completed migration.
func (r *Runner) Reverse(ctx context.Context, id string, opts RunOptions) error {
	m, ok := Get(id)
	if !ok {
		return fmt.Errorf("unknown migration %q", id)
	}
	statuses, err := r.Statuses(ctx)
	if err != nil {
		return err
	}
	switch statuses[m.ID] {
	case StatusCompleted:
	case StatusInProgress:
		if !opts.Force {
			return fmt.Errorf("migration %s is in progress: reverse with --force only if the run is dead", id)
		}
	default:
		return fmt.Errorf("migration %s has not run", id)
	}

	if !opts.Fake {
		for i, op := range m.Backward {
			if err := r.conn.Exec(ctx, op.Format()); err != nil {
				return errors.Wrapf(err, "reversing %s (operation %d)", m.ID, i)
			}
		}
	}
	if err := r.setStatus(ctx, m, StatusPending); err != nil {
		return err
	}
	r.log.Info("reversed migration",
		zap.String("migration", m.ID),
		zap.String("group", string(m.Group)),
		zap.Bool("fake", opts.Fake))
	return nil
}

func (r *Runner) apply(ctx context.Context, m Migration, fake bool) error {
	if err := r.setStatus(ctx, m, StatusInProgress); err != nil {
		return err
	}
	if !fake {
		for i, op := range m.Forward {
			if err := r.conn.Exec(ctx, op.Format()); err != nil {
				return errors.Wrapf(err, "running %s (operation %d)", m.ID, i)
			}
		}
	}
	if err := r.setStatus(ctx, m, StatusCompleted); err != nil {
		return err
	}
	r.log.Info("ran migration",
		zap.String("migration", m.ID),
		zap.String("group", string(m.Group)),
		zap.Bool("fake", fake))
	return nil
}

// setStatus appends a new row; the ReplacingMergeTree keeps the highest
// version per migration.
func (r *Runner) setStatus(ctx context.Context, m Migration, status Status) error {
	err := r.conn.Exec(ctx,
		fmt.Sprintf("INSERT INTO %s (migration_group, migration_id, timestamp, status, version) VALUES (?, ?, ?, ?, ?)",
			statusTableName),
		string(m.Group), m.ID, time.Now().UTC(), string(status), uint64(time.Now().UnixNano()))
	if err != nil {
		return errors.Wrapf(err, "recording status of %s", m.ID)
	}
	return nil
}
