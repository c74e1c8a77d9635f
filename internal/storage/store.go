package storage

import (
	"context"

	"spikekernel/internal/model"
)

// Store defines persistence operations for realized networks and completed
// simulation runs.
type Store interface {
	Init(ctx context.Context) error
	SaveNetwork(ctx context.Context, network model.NetworkRecord) error
	GetNetwork(ctx context.Context, id string) (model.NetworkRecord, bool, error)
	ListNetworks(ctx context.Context) ([]string, error)
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]string, error)
}
