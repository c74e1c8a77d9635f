// Package spikekernel is the public surface of the simulation kernel:
// build a network declaratively, run it, and persist the realized edge set
// and run summaries through the configured store.
package spikekernel

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"spikekernel/internal/kernel"
	"spikekernel/internal/model"
	"spikekernel/internal/neuron"
	"spikekernel/internal/storage"
)

const defaultDBPath = "spikekernel.db"

type Options struct {
	StoreKind string
	DBPath    string
}

type Client struct {
	store storage.Store
}

func New(ctx context.Context, opts Options) (*Client, error) {
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	store, err := storage.NewStore(opts.StoreKind, dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}

	return &Client{store: store}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// GetNetwork loads a persisted network description.
func (c *Client) GetNetwork(ctx context.Context, id string) (model.NetworkRecord, bool, error) {
	return c.store.GetNetwork(ctx, id)
}

// GetRun loads a persisted run summary.
func (c *Client) GetRun(ctx context.Context, id string) (model.RunRecord, bool, error) {
	return c.store.GetRun(ctx, id)
}

// ListNetworks returns the ids of all persisted networks.
func (c *Client) ListNetworks(ctx context.Context) ([]string, error) {
	return c.store.ListNetworks(ctx)
}

// ListRuns returns the ids of all persisted runs.
func (c *Client) ListRuns(ctx context.Context) ([]string, error) {
	return c.store.ListRuns(ctx)
}

// Simulation wraps one simulation context plus its persistence binding.
type Simulation struct {
	client    *Client
	kernel    *kernel.SimulationContext
	networkID string
}

// NewSimulation constructs a simulation context from the kernel config.
func (c *Client) NewSimulation(cfg kernel.Config) (*Simulation, error) {
	k, err := kernel.NewContext(cfg)
	if err != nil {
		return nil, err
	}
	return &Simulation{client: c, kernel: k}, nil
}

// Kernel exposes the underlying context for node creation and advanced use.
func (s *Simulation) Kernel() *kernel.SimulationContext { return s.kernel }

// CreateSources creates n spike-source nodes firing at the given ticks.
func (s *Simulation) CreateSources(n int64, times []model.Tick) ([]model.NodeID, error) {
	return s.kernel.CreateNodes(n, func(id model.NodeID) (kernel.Node, error) {
		return neuron.NewSource(id, times), nil
	})
}

// CreateIntegrators creates n leaky threshold units.
func (s *Simulation) CreateIntegrators(n int64, leak, threshold float64, refractory model.Tick) ([]model.NodeID, error) {
	return s.kernel.CreateNodes(n, func(id model.NodeID) (kernel.Node, error) {
		return neuron.NewIntegrator(id, leak, threshold, refractory), nil
	})
}

// CreateAccumulators creates n passive recording nodes.
func (s *Simulation) CreateAccumulators(n int64) ([]model.NodeID, error) {
	return s.kernel.CreateNodes(n, func(id model.NodeID) (kernel.Node, error) {
		return neuron.NewAccumulator(id), nil
	})
}

// Connect realizes a declarative connection spec between two node sets.
func (s *Simulation) Connect(sources, targets []model.NodeID, cs model.ConnSpec, ss model.SynSpec) error {
	return s.kernel.Connect(sources, targets, cs, ss)
}

// SaveNetwork persists the realized edge set with everything needed to
// regenerate it and returns the assigned network id.
func (s *Simulation) SaveNetwork(ctx context.Context) (string, error) {
	cfg := s.kernel.Config()
	record := model.NetworkRecord{
		VersionedRecord: storage.Stamp(),
		ID:              uuid.NewString(),
		Seed:            cfg.BaseSeed,
		NumRanks:        cfg.NumRanks,
		ThreadsPerRank:  cfg.ThreadsPerRank,
		ResolutionMS:    cfg.ResolutionMS,
		Connections:     s.kernel.Table().All(),
	}
	if err := s.client.store.SaveNetwork(ctx, record); err != nil {
		return "", fmt.Errorf("save network: %w", err)
	}
	s.networkID = record.ID
	return record.ID, nil
}

// Run simulates durationMS and persists a run summary.
func (s *Simulation) Run(ctx context.Context, durationMS float64) (model.RunRecord, error) {
	stats, err := s.kernel.Simulate(ctx, durationMS)
	if err != nil {
		return model.RunRecord{}, err
	}
	record := model.RunRecord{
		VersionedRecord:   storage.Stamp(),
		ID:                uuid.NewString(),
		NetworkID:         s.networkID,
		Steps:             stats.Steps,
		SpikesEmitted:     stats.SpikesEmitted,
		SpikesDelivered:   stats.SpikesDelivered,
		CorrectionsIssued: stats.CorrectionsIssued,
	}
	if err := s.client.store.SaveRun(ctx, record); err != nil {
		return model.RunRecord{}, fmt.Errorf("save run: %w", err)
	}
	return record, nil
}
