// Package clusters owns the ClickHouse connections. Each cluster serves a
// fixed set of storage sets; the registry enforces that assignment covers
// every storage set exactly once, so a storage always has one place to go.
package clusters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/coreos/go-semver/semver"
	"github.com/gojek/heimdall/v7/httpclient"
	"github.com/pkg/errors"

	"github.com/getsentry/snuba/pkg/settings"
	"github.com/getsentry/snuba/pkg/storages"
)

// minServerVersion is the oldest ClickHouse these schemas and queries are
// written for.
var minServerVersion = semver.New("21.8.0")

type (
	// Node is one ClickHouse server within a cluster.
	Node struct {
		Host    string
		Port    int
		Shard   int
		Replica int
	}

	Cluster struct {
		cfg  settings.Cluster
		sets map[storages.StorageSetKey]struct{}

		readConn  driver.Conn
		writeConn driver.Conn
		http      *httpclient.Client
	}
)

func newCluster(cfg settings.Cluster) *Cluster {
	sets := make(map[storages.StorageSetKey]struct{}, len(cfg.StorageSets))
	for _, s := range cfg.StorageSets {
		sets[storages.StorageSetKey(s)] = struct{}{}
	}
	return &Cluster{
		cfg:  cfg,
		sets: sets,
		http: httpclient.NewClient(
			httpclient.WithHTTPTimeout(30*time.Second),
			httpclient.WithRetryCount(3),
		),
	}
}

func (c *Cluster) SingleNode() bool { return c.cfg.SingleNode }

func (c *Cluster) Name() string { return c.cfg.ClusterName }

func (c *Cluster) Database() string { return c.cfg.Database }

// Serves reports whether the storage set is placed on this cluster.
func (c *Cluster) Serves(set storages.StorageSetKey) bool {
	_, ok := c.sets[set]
	return ok
}

// TableName resolves the physical table queried for a storage on this
// cluster.
func (c *Cluster) TableName(s *storages.Storage) string {
	return s.Table.Name(c.cfg.SingleNode)
}

func (c *Cluster) open(readonly bool) (driver.Conn, error) {
	opts := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)},
		Auth: clickhouse.Auth{
			Database: c.cfg.Database,
			Username: c.cfg.User,
			Password: c.cfg.Password,
		},
		MaxOpenConns: c.cfg.MaxConns,
		DialTimeout:  5 * time.Second,
	}
	if readonly {
		opts.Settings = clickhouse.Settings{"readonly": 1}
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to clickhouse at %s:%d", c.cfg.Host, c.cfg.Port)
	}
	return conn, nil
}

// Reader returns the read-only connection, opening it on first use.
func (c *Cluster) Reader() (driver.Conn, error) {
	if c.readConn == nil {
		conn, err := c.open(true)
		if err != nil {
			return nil, err
		}
		c.readConn = conn
	}
	return c.readConn, nil
}

// Writer returns the read-write connection migrations and replacements run
// DDL over.
func (c *Cluster) Writer() (driver.Conn, error) {
	if c.writeConn == nil {
		conn, err := c.open(false)
		if err != nil {
			return nil, err
		}
		c.writeConn = conn
	}
	return c.writeConn, nil
}

// CheckServerVersion verifies the server is at least the minimum supported
// version.
func (c *Cluster) CheckServerVersion(ctx context.Context) error {
	conn, err := c.Reader()
	if err != nil {
		return err
	}
	info, err := conn.ServerVersion()
	if err != nil {
		return errors.Wrap(err, "reading server version")
	}
	version := semver.Version{
		Major: int64(info.Version.Major),
		Minor: int64(info.Version.Minor),
		Patch: int64(info.Version.Patch),
	}
	if version.LessThan(*minServerVersion) {
		return fmt.Errorf("clickhouse %s at %s is older than the minimum supported %s",
			version, c.cfg.Host, minServerVersion)
	}
	return nil
}

// Nodes lists the servers behind this cluster. Single-node clusters are
// just their configured host; clustered ones are read from
// system.clusters.
func (c *Cluster) Nodes(ctx context.Context) ([]Node, error) {
	if c.cfg.SingleNode {
		return []Node{{Host: c.cfg.Host, Port: c.cfg.Port, Shard: 1, Replica: 1}}, nil
	}
	conn, err := c.Reader()
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx,
		"SELECT host_name, port, shard_num, replica_num FROM system.clusters WHERE cluster = ?",
		c.cfg.ClusterName)
	if err != nil {
		return nil, errors.Wrapf(err, "listing nodes of cluster %s", c.cfg.ClusterName)
	}
	defer rows.Close() // nolint:errcheck

	var nodes []Node
	for rows.Next() {
		var (
			host    string
			port    uint16
			shard   uint32
			replica uint32
		)
		if err := rows.Scan(&host, &port, &shard, &replica); err != nil {
			return nil, err
		}
		nodes = append(nodes, Node{Host: host, Port: int(port), Shard: int(shard), Replica: int(replica)})
	}
	return nodes, rows.Err()
}

// WriteRows inserts JSONEachRow-encoded rows through the HTTP interface,
// which batches better than the native protocol for the write path.
func (c *Cluster) WriteRows(ctx context.Context, table string, body io.Reader) error {
	endpoint := url.URL{
		Scheme:   "http",
		Host:     fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.HTTPPort),
		RawQuery: url.Values{"query": {fmt.Sprintf("INSERT INTO %s FORMAT JSONEachRow", table)}}.Encode(),
	}
	headers := http.Header{}
	if c.cfg.User != "" {
		headers.Set("X-ClickHouse-User", c.cfg.User)
		headers.Set("X-ClickHouse-Key", c.cfg.Password)
	}
	resp, err := c.http.Post(endpoint.String(), body, headers)
	if err != nil {
		return errors.Wrapf(err, "writing rows to %s", table)
	}
	defer resp.Body.Close() // nolint:errcheck
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("clickhouse insert into %s failed: %s: %s",
			table, resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}

// Close releases both connection pools.
func (c *Cluster) Close() error {
	var firstErr error
	for _, conn := range []driver.Conn{c.readConn, c.writeConn} {
		if conn != nil {
			if err := conn.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
