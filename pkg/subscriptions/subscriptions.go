// Package subscriptions implements recurring entity queries: definitions
// stored in redis by partition, a scheduler that ticks off the commit log,
// and an executor that runs the queries and produces results.
package subscriptions

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/getsentry/snuba/pkg/datasets"
	"github.com/getsentry/snuba/pkg/multierr"
)

const (
	minTimeWindow = time.Minute
	maxTimeWindow = 24 * time.Hour
	minResolution = time.Minute
)

type (
	Subscription struct {
		ID   uuid.UUID        `json:"id"`
		Data SubscriptionData `json:"data"`
	}

	// SubscriptionData is the stored query fragment. Conditions and
	// aggregations use the same shapes as the query endpoint body; the
	// time window is filled in per tick.
	SubscriptionData struct {
		Entity        string `json:"entity"`
		ProjectID     int64  `json:"project_id"`
		Conditions    []any  `json:"conditions"`
		Aggregations  []any  `json:"aggregations"`
		TimeWindowSec int    `json:"time_window"`
		ResolutionSec int    `json:"resolution"`
	}
)

func (d SubscriptionData) TimeWindow() time.Duration {
	return time.Duration(d.TimeWindowSec) * time.Second
}

func (d SubscriptionData) Resolution() time.Duration {
	return time.Duration(d.ResolutionSec) * time.Second
}

func (d SubscriptionData) Validate() error {
	var errs multierr.Error
	if _, err := datasets.GetEntity(d.Entity); err != nil {
		errs.Append(err)
	}
	if d.ProjectID <= 0 {
		errs.Append(fmt.Errorf("project_id is required"))
	}
	if len(d.Aggregations) == 0 {
		errs.Append(fmt.Errorf("at least one aggregation is required"))
	}
	if window := d.TimeWindow(); window < minTimeWindow || window > maxTimeWindow {
		errs.Append(fmt.Errorf("time_window must be between %s and %s, got %s", minTimeWindow, maxTimeWindow, window))
	}
	if d.TimeWindowSec%60 != 0 {
		errs.Append(fmt.Errorf("time_window must be a whole number of minutes"))
	}
	if resolution := d.Resolution(); resolution < minResolution {
		errs.Append(fmt.Errorf("resolution must be at least %s, got %s", minResolution, resolution))
	}
	return errs.ErrOrNil()
}

// Body renders the query endpoint body for one tick: the stored fragment
// plus the window ending at timestamp.
func (d SubscriptionData) Body(timestamp time.Time) map[string]any {
	return map[string]any{
		"aggregations": d.Aggregations,
		"conditions":   d.Conditions,
		"project":      d.ProjectID,
		"from_date":    timestamp.UTC().Add(-d.TimeWindow()).Format("2006-01-02T15:04:05"),
		"to_date":      timestamp.UTC().Format("2006-01-02T15:04:05"),
	}
}
