package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"spikekernel/internal/kernel"
	"spikekernel/internal/model"
	"spikekernel/internal/storage"
	"spikekernel/internal/telemetry"
	skapi "spikekernel/pkg/spikekernel"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "networks":
		return runNetworks(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return errors.New(msg + "\nusage: spikectl <run|networks|runs> [flags]")
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config JSON path")
	resolution := fs.Float64("resolution", 0.1, "simulation step in ms")
	ranks := fs.Int("ranks", 1, "process count")
	threads := fs.Int("threads", 1, "threads per process")
	seed := fs.Int64("seed", 1, "rng base seed")
	durationMS := fs.Float64("duration-ms", 100.0, "simulated time in ms")
	sources := fs.Int64("sources", 10, "spike source count")
	targets := fs.Int64("targets", 10, "integrator count")
	fireEveryMS := fs.Float64("fire-every-ms", 10.0, "source firing period in ms")
	ruleName := fs.String("rule", "all_to_all", "connection rule")
	p := fs.Float64("p", 0.1, "connection probability for pairwise_bernoulli")
	indegree := fs.Int("indegree", 5, "indegree for fixed_indegree")
	outdegree := fs.Int("outdegree", 5, "outdegree for fixed_outdegree")
	total := fs.Int("n", 50, "edge count for fixed_total_number")
	autapses := fs.Bool("autapses", true, "allow self-connections")
	multapses := fs.Bool("multapses", true, "allow repeated pairs")
	weight := fs.Float64("weight", 1.0, "synaptic weight")
	delayMS := fs.Float64("delay-ms", 1.0, "dendritic delay in ms")
	axonalMS := fs.Float64("axonal-ms", 0.0, "axonal delay in ms")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "spikekernel.db", "sqlite database path")
	saveNetwork := fs.Bool("save-network", false, "persist the realized edge set")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address (empty disables)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := runRequest{
		Resolution:  *resolution,
		Ranks:       *ranks,
		Threads:     *threads,
		Seed:        *seed,
		DurationMS:  *durationMS,
		Sources:     *sources,
		Targets:     *targets,
		FireEveryMS: *fireEveryMS,
		Rule:        *ruleName,
		P:           *p,
		Indegree:    *indegree,
		Outdegree:   *outdegree,
		N:           *total,
		Autapses:    *autapses,
		Multapses:   *multapses,
		Weight:      *weight,
		DelayMS:     *delayMS,
		AxonalMS:    *axonalMS,
	}
	if *configPath != "" {
		loaded, err := loadRunRequestFromConfig(*configPath)
		if err != nil {
			return err
		}
		req = loaded
	}

	if *metricsAddr != "" {
		go func() {
			if err := telemetry.Serve(*metricsAddr); err != nil {
				fmt.Fprintln(os.Stderr, "metrics endpoint:", err)
			}
		}()
	}

	client, err := skapi.New(ctx, skapi.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer client.Close()

	cfg := kernel.DefaultConfig()
	cfg.ResolutionMS = req.Resolution
	cfg.NumRanks = req.Ranks
	cfg.ThreadsPerRank = req.Threads
	cfg.BaseSeed = req.Seed
	if req.DelayMS+req.AxonalMS > cfg.DefaultMaxDelayMS {
		cfg.DefaultMaxDelayMS = req.DelayMS + req.AxonalMS
	}

	sim, err := client.NewSimulation(cfg)
	if err != nil {
		return err
	}

	fireTimes := periodicTicks(cfg, req.FireEveryMS, req.DurationMS)
	src, err := sim.CreateSources(req.Sources, fireTimes)
	if err != nil {
		return err
	}
	tgt, err := sim.CreateIntegrators(req.Targets, 0.9, 3.0, 2)
	if err != nil {
		return err
	}

	cs := model.ConnSpec{
		Rule:           model.Rule(req.Rule),
		P:              req.P,
		Indegree:       req.Indegree,
		Outdegree:      req.Outdegree,
		N:              req.N,
		AllowAutapses:  req.Autapses,
		AllowMultapses: req.Multapses,
	}
	ss := model.SynSpec{Weight: req.Weight, DelayMS: req.DelayMS, AxonalMS: req.AxonalMS}
	if err := sim.Connect(src, tgt, cs, ss); err != nil {
		return err
	}

	if *saveNetwork {
		id, err := sim.SaveNetwork(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("network: %s (%s connections)\n", id, humanize.Comma(int64(sim.Kernel().Table().Len())))
	}

	record, err := sim.Run(ctx, req.DurationMS)
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", record.ID)
	fmt.Printf("  steps:             %s\n", humanize.Comma(record.Steps))
	fmt.Printf("  min_delay:         %g ms\n", sim.Kernel().MinDelayMS())
	fmt.Printf("  spikes emitted:    %s\n", humanize.Comma(record.SpikesEmitted))
	fmt.Printf("  spikes delivered:  %s\n", humanize.Comma(record.SpikesDelivered))
	fmt.Printf("  corrections:       %s\n", humanize.Comma(record.CorrectionsIssued))
	return nil
}

func periodicTicks(cfg kernel.Config, everyMS, untilMS float64) []model.Tick {
	if everyMS <= 0 {
		return nil
	}
	var out []model.Tick
	for t := everyMS; t < untilMS; t += everyMS {
		out = append(out, model.Tick(cfg.Ticks(t)))
	}
	return out
}

func runNetworks(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("networks", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "spikekernel.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := skapi.New(ctx, skapi.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer client.Close()

	ids, err := client.ListNetworks(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		network, ok, err := client.GetNetwork(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		fmt.Printf("%s  ranks=%d threads=%d seed=%d connections=%s\n",
			id, network.NumRanks, network.ThreadsPerRank, network.Seed,
			humanize.Comma(int64(len(network.Connections))))
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "spikekernel.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := skapi.New(ctx, skapi.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer client.Close()

	ids, err := client.ListRuns(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		run, ok, err := client.GetRun(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		fmt.Printf("%s  steps=%s emitted=%s delivered=%s corrections=%s\n",
			id, humanize.Comma(run.Steps), humanize.Comma(run.SpikesEmitted),
			humanize.Comma(run.SpikesDelivered), humanize.Comma(run.CorrectionsIssued))
	}
	return nil
}
