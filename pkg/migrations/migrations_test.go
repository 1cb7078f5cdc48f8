package migrations

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/getsentry/snuba/pkg/clickhouse/columns"
	"github.com/getsentry/snuba/pkg/clickhouse/schema"
)

func TestOperations_Format(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
		want string
	}{
		{
			name: "create table",
			op: CreateTable{
				Name: "groups_local",
				Columns: columns.NewColumnSet(
					columns.Column{Name: "id", Type: columns.UInt{Bits: 64}},
					columns.Column{Name: "status", Type: columns.UInt{Bits: 8}},
				),
				Engine: schema.MergeTree{OrderBy: "id"},
			},
			want: "CREATE TABLE IF NOT EXISTS groups_local (id UInt64, status UInt8) ENGINE = MergeTree() ORDER BY id",
		},
		{
			name: "drop table",
			op:   DropTable{Name: "groups_local"},
			want: "DROP TABLE IF EXISTS groups_local",
		},
		{
			name: "add column after",
			op: AddColumn{
				Table:  "errors_local",
				Column: columns.Column{Name: "http_method", Type: columns.Nullable{Inner: columns.StringType{}}},
				After:  "sdk_name",
			},
			want: "ALTER TABLE errors_local ADD COLUMN IF NOT EXISTS http_method Nullable(String) AFTER sdk_name",
		},
		{
			name: "add column at end",
			op: AddColumn{
				Table:  "errors_local",
				Column: columns.Column{Name: "level", Type: columns.StringType{}},
			},
			want: "ALTER TABLE errors_local ADD COLUMN IF NOT EXISTS level String",
		},
		{
			name: "drop column",
			op:   DropColumn{Table: "errors_local", Column: "level"},
			want: "ALTER TABLE errors_local DROP COLUMN IF EXISTS level",
		},
		{
			name: "modify column",
			op: ModifyColumn{
				Table:  "errors_local",
				Column: columns.Column{Name: "user", Type: columns.LowCardinality{Inner: columns.StringType{}}},
			},
			want: "ALTER TABLE errors_local MODIFY COLUMN user LowCardinality(String)",
		},
		{
			name: "run sql",
			op:   RunSQL{Statement: "OPTIMIZE TABLE errors_local FINAL"},
			want: "OPTIMIZE TABLE errors_local FINAL",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.Format())
		})
	}
}

func TestAll_Order(t *testing.T) {
	assert := assert.New(t)

	all, err := All()
	if !assert.NoError(err) {
		return
	}

	position := make(map[string]int, len(all))
	for i, m := range all {
		position[m.ID] = i
	}
	assert.Contains(position, "0001_migrations")
	assert.Less(position["0001_events_initial"], position["0002_events_http_method"])
}

func TestForGroup(t *testing.T) {
	assert := assert.New(t)

	ms, err := ForGroup(GroupEvents)
	if !assert.NoError(err) {
		return
	}
	ids := make([]string, len(ms))
	for i, m := range ms {
		ids[i] = m.ID
	}
	assert.Equal([]string{"0001_events_initial", "0002_events_http_method"}, ids)
}

func TestOrder_Cycle(t *testing.T) {
	assert := assert.New(t)

	_, err := order([]Migration{
		{ID: "0001_a", Group: "a", DependsOn: []string{"0001_b"}},
		{ID: "0001_b", Group: "b", DependsOn: []string{"0001_a"}},
	})
	assert.Error(err)
	assert.Contains(err.Error(), "dependency")
}

func TestOrder_UnknownDependency(t *testing.T) {
	assert := assert.New(t)

	_, err := order([]Migration{
		{ID: "0001_a", Group: "a", DependsOn: []string{"0001_missing"}},
	})
	assert.Error(err)
	assert.Contains(err.Error(), `unknown migration "0001_missing"`)
}

func TestOrder_CrossGroupDependency(t *testing.T) {
	assert := assert.New(t)

	ordered, err := order([]Migration{
		{ID: "0001_b", Group: "b", DependsOn: []string{"0002_a"}},
		{ID: "0001_a", Group: "a"},
		{ID: "0002_a", Group: "a"},
	})
	if !assert.NoError(err) {
		return
	}
	ids := make([]string, len(ordered))
	for i, m := range ordered {
		ids[i] = m.ID
	}
	assert.Equal([]string{"0001_a", "0002_a", "0001_b"}, ids)
}

type fakeConn struct {
	execs    []string
	statuses map[string]Status
	failOn   string
}

func newFakeConn() *fakeConn {
	return &fakeConn{statuses: make(map[string]Status)}
}

func (c *fakeConn) Exec(_ context.Context, query string, args ...any) error {
	if c.failOn != "" && strings.Contains(query, c.failOn) {
		return fmt.Errorf("simulated failure on %q", c.failOn)
	}
	c.execs = append(c.execs, query)
	if strings.HasPrefix(query, "INSERT INTO "+statusTableName) {
		c.statuses[args[1].(string)] = Status(args[3].(string))
	}
	return nil
}

func (c *fakeConn) Query(context.Context, string, ...any) (driver.Rows, error) {
	rows := &fakeRows{}
	for id, status := range c.statuses {
		rows.rows = append(rows.rows, [2]string{id, string(status)})
	}
	return rows, nil
}

func (c *fakeConn) executed(fragment string) bool {
	for _, q := range c.execs {
		if strings.Contains(q, fragment) {
			return true
		}
	}
	return false
}

type fakeRows struct {
	rows [][2]string
	i    int
}

func (r *fakeRows) Next() bool {
	if r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.i-1]
	*dest[0].(*string) = row[0]
	*dest[1].(*string) = row[1]
	return nil
}

func (r *fakeRows) ScanStruct(any) error             { return nil }
func (r *fakeRows) ColumnTypes() []driver.ColumnType { return nil }
func (r *fakeRows) Totals(...any) error              { return nil }
func (r *fakeRows) Columns() []string                { return nil }
func (r *fakeRows) Close() error                     { return nil }
func (r *fakeRows) Err() error                       { return nil }

func TestRunner_Run(t *testing.T) {
	assert := assert.New(t)

	conn := newFakeConn()
	runner := NewRunner(conn, zap.NewNop())
	if !assert.NoError(runner.Run(context.Background(), RunOptions{})) {
		return
	}

	assert.True(conn.executed("CREATE TABLE IF NOT EXISTS "+statusTableName), "status table bootstrap")
	assert.True(conn.executed("CREATE TABLE IF NOT EXISTS errors_local"))
	assert.True(conn.executed("CREATE MATERIALIZED VIEW IF NOT EXISTS outcomes_mv_hourly_local"))

	all, err := All()
	if !assert.NoError(err) {
		return
	}
	for _, m := range all {
		assert.Equal(StatusCompleted, conn.statuses[m.ID], m.ID)
	}

	// a second run finds nothing pending
	before := len(conn.execs)
	if assert.NoError(runner.Run(context.Background(), RunOptions{})) {
		// only the bootstrap statement repeats
		assert.Equal(before+1, len(conn.execs))
	}
}

func TestRunner_Run_Fake(t *testing.T) {
	assert := assert.New(t)

	conn := newFakeConn()
	runner := NewRunner(conn, zap.NewNop())
	if !assert.NoError(runner.Run(context.Background(), RunOptions{Fake: true})) {
		return
	}

	assert.False(conn.executed("errors_local"), "fake run must not execute DDL")
	assert.Equal(StatusCompleted, conn.statuses["0001_events_initial"])
}

func TestRunner_Run_SingleGroup(t *testing.T) {
	assert := assert.New(t)

	conn := newFakeConn()
	runner := NewRunner(conn, zap.NewNop())
	group := GroupSessions
	if !assert.NoError(runner.Run(context.Background(), RunOptions{Group: &group})) {
		return
	}
	assert.True(conn.executed("sessions_raw_local"))
	assert.False(conn.executed("errors_local"))
}

func TestRunner_Run_FailedOperation(t *testing.T) {
	assert := assert.New(t)

	conn := newFakeConn()
	conn.failOn = "errors_local"
	runner := NewRunner(conn, zap.NewNop())

	err := runner.Run(context.Background(), RunOptions{})
	assert.Error(err)
	assert.Contains(err.Error(), "0001_events_initial")
	// the failed migration stays in progress for the operator to inspect
	assert.Equal(StatusInProgress, conn.statuses["0001_events_initial"])
}

func TestRunner_Reverse(t *testing.T) {
	assert := assert.New(t)

	conn := newFakeConn()
	runner := NewRunner(conn, zap.NewNop())
	ctx := context.Background()

	if !assert.NoError(runner.Run(ctx, RunOptions{})) {
		return
	}
	if !assert.NoError(runner.Reverse(ctx, "0002_events_http_method", RunOptions{})) {
		return
	}
	assert.True(conn.executed("DROP COLUMN IF EXISTS http_method"))
	assert.Equal(StatusPending, conn.statuses["0002_events_http_method"])

	err := runner.Reverse(ctx, "0002_events_http_method", RunOptions{})
	assert.Error(err)
	assert.Contains(err.Error(), "has not run")
}

func TestRunner_List(t *testing.T) {
	assert := assert.New(t)

	conn := newFakeConn()
	runner := NewRunner(conn, zap.NewNop())
	ctx := context.Background()

	list, err := runner.List(ctx)
	if !assert.NoError(err) {
		return
	}
	for _, entry := range list {
		assert.Equal(StatusPending, entry.Status, entry.ID)
	}

	group := GroupOutcomes
	if !assert.NoError(runner.Run(ctx, RunOptions{Group: &group})) {
		return
	}
	list, err = runner.List(ctx)
	if !assert.NoError(err) {
		return
	}
	byID := make(map[string]Status, len(list))
	for _, entry := range list {
		byID[entry.ID] = entry.Status
	}
	assert.Equal(StatusCompleted, byID["0001_outcomes_initial"])
	assert.Equal(StatusPending, byID["0001_events_initial"])
}

func TestRunner_Run_Blocking(t *testing.T) {
	assert := assert.New(t)

	Register(Migration{
		ID:       "9999_rebuild_errors",
		Group:    GroupEvents,
		Blocking: true,
		Forward:  []Operation{RunSQL{Statement: "OPTIMIZE TABLE errors_local FINAL"}},
	})

	conn := newFakeConn()
	runner := NewRunner(conn, zap.NewNop())
	ctx := context.Background()

	err := runner.Run(ctx, RunOptions{})
	assert.Error(err)
	assert.Contains(err.Error(), "blocking")

	if assert.NoError(runner.Run(ctx, RunOptions{Force: true})) {
		assert.Equal(StatusCompleted, conn.statuses["9999_rebuild_errors"])
	}
}
