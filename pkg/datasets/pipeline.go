package datasets

import (
	"context"

	"go.uber.org/zap"

	"github.com/getsentry/snuba/pkg/clickhouse"
	"github.com/getsentry/snuba/pkg/clusters"
	"github.com/getsentry/snuba/pkg/metrics"
	"github.com/getsentry/snuba/pkg/processors"
	"github.com/getsentry/snuba/pkg/query"
	"github.com/getsentry/snuba/pkg/query/translate"
	"github.com/getsentry/snuba/pkg/settings"
	"github.com/getsentry/snuba/pkg/state"
	"github.com/getsentry/snuba/pkg/storages"
)

type (
	// Pipeline turns a logical entity query into executable SQL: entity
	// validation, logical processors, translation, storage processors,
	// formatting.
	Pipeline struct {
		clusters *clusters.Registry
		store    *state.Store
		metrics  *metrics.Scope
		query    settings.Query
		log      *zap.Logger
	}

	// Plan carries both sides of the translation for execution and
	// observability.
	Plan struct {
		Entity   *Entity
		Storage  *storages.Storage
		Cluster  *clusters.Cluster
		Logical  *query.Query
		Physical *clickhouse.Query
		SQL      string
	}
)

func NewPipeline(reg *clusters.Registry, store *state.Store, scope *metrics.Scope, cfg settings.Query) *Pipeline {
	return &Pipeline{
		clusters: reg,
		store:    store,
		metrics:  scope,
		query:    cfg,
		log:      zap.L().Named("pipeline"),
	}
}

// Build runs the full pipeline. The input query is never mutated.
func (p *Pipeline) Build(ctx context.Context, q *query.Query, reqSettings query.RequestSettings) (*Plan, error) {
	entity, err := GetEntity(q.Entity)
	if err != nil {
		return nil, err
	}
	if err := entity.Validate(q); err != nil {
		return nil, err
	}

	logical := q.Clone()
	for _, proc := range entity.Processors {
		if err := proc.Process(ctx, logical, reqSettings); err != nil {
			return nil, err
		}
	}

	translated, err := translate.TranslateQuery(logical, entity.Mappers)
	if err != nil {
		return nil, err
	}

	storageKey := entity.StorageFor(reqSettings)
	storage, err := storages.Get(storageKey)
	if err != nil {
		return nil, err
	}
	cluster, err := p.clusters.ClusterFor(storage.StorageSet)
	if err != nil {
		return nil, err
	}

	physical := clickhouse.FromLogical(translated, cluster.TableName(storage))
	for _, proc := range p.storageProcessors(storage) {
		if err := proc.Process(ctx, physical, reqSettings); err != nil {
			return nil, err
		}
	}

	plan := &Plan{
		Entity:   entity,
		Storage:  storage,
		Cluster:  cluster,
		Logical:  logical,
		Physical: physical,
		SQL:      clickhouse.FormatQuery(physical),
	}
	p.log.Debug("built query plan",
		zap.String("entity", entity.Name),
		zap.String("storage", string(storage.Key)),
		zap.String("sql", plan.SQL),
	)
	return plan, nil
}

// storageProcessors returns the storage's own processors plus the
// replacement consistency enforcer on storages that get replaced.
func (p *Pipeline) storageProcessors(s *storages.Storage) []processors.Storage {
	procs := make([]processors.Storage, 0, len(s.Processors)+1)
	for _, proc := range s.Processors {
		// the storage's static prewhere config defers to the runtime cap
		if pw, ok := proc.(processors.Prewhere); ok && p.query.MaxPrewhereConditions > 0 {
			pw.MaxConditions = p.query.MaxPrewhereConditions
			procs = append(procs, pw)
			continue
		}
		procs = append(procs, proc)
	}
	if s.StorageSet == storages.SetEvents || s.StorageSet == storages.SetEventsRO {
		procs = append(procs, processors.PostReplacementConsistency{
			Store:   p.store,
			Metrics: p.metrics,
		})
	}
	return procs
}

// Execute runs the plan's SQL on the serving cluster and returns the
// result rows as generic maps.
func (p *Pipeline) Execute(ctx context.Context, plan *Plan) ([]map[string]any, error) {
	conn, err := plan.Cluster.Reader()
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx, plan.SQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close() // nolint:errcheck

	columnNames := rows.Columns()
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columnNames))
		for i := range values {
			values[i] = new(any)
		}
		if err := rows.Scan(values...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columnNames))
		for i, name := range columnNames {
			row[name] = *(values[i].(*any))
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
