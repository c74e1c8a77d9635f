package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// runRequest is the CLI-level description of one demo run: kernel topology,
// the driving source population and the single connect call.
type runRequest struct {
	Resolution  float64
	Ranks       int
	Threads     int
	Seed        int64
	DurationMS  float64
	Sources     int64
	Targets     int64
	FireEveryMS float64
	Rule        string
	P           float64
	Indegree    int
	Outdegree   int
	N           int
	Autapses    bool
	Multapses   bool
	Weight      float64
	DelayMS     float64
	AxonalMS    float64
}

func loadRunRequestFromConfig(path string) (runRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return runRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return runRequest{}, err
	}

	req := runRequest{
		Resolution:  0.1,
		Ranks:       1,
		Threads:     1,
		Seed:        1,
		DurationMS:  100,
		Sources:     10,
		Targets:     10,
		FireEveryMS: 10,
		Rule:        "all_to_all",
		Autapses:    true,
		Multapses:   true,
		Weight:      1.0,
		DelayMS:     1.0,
	}
	if v, ok := asFloat64(raw["resolution"]); ok {
		req.Resolution = v
	}
	if v, ok := asInt(raw["num_processes"]); ok {
		req.Ranks = v
	}
	if v, ok := asInt(raw["local_num_threads"]); ok {
		req.Threads = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asFloat64(raw["duration_ms"]); ok {
		req.DurationMS = v
	}
	if v, ok := asInt64(raw["sources"]); ok {
		req.Sources = v
	}
	if v, ok := asInt64(raw["targets"]); ok {
		req.Targets = v
	}
	if v, ok := asFloat64(raw["fire_every_ms"]); ok {
		req.FireEveryMS = v
	}
	if v, ok := asString(raw["rule"]); ok {
		req.Rule = v
	}
	if v, ok := asFloat64(raw["p"]); ok {
		req.P = v
	}
	if v, ok := asInt(raw["indegree"]); ok {
		req.Indegree = v
	}
	if v, ok := asInt(raw["outdegree"]); ok {
		req.Outdegree = v
	}
	if v, ok := asInt(raw["N"]); ok {
		req.N = v
	}
	if v, ok := asBool(raw["allow_autapses"]); ok {
		req.Autapses = v
	}
	if v, ok := asBool(raw["allow_multapses"]); ok {
		req.Multapses = v
	}
	if v, ok := asFloat64(raw["weight"]); ok {
		req.Weight = v
	}
	if v, ok := asFloat64(raw["delay"]); ok {
		req.DelayMS = v
	}
	if v, ok := asFloat64(raw["axonal_delay"]); ok {
		req.AxonalMS = v
	}

	if req.Resolution <= 0 {
		return runRequest{}, fmt.Errorf("config %s: resolution must be positive", path)
	}
	if req.DurationMS < 0 {
		return runRequest{}, fmt.Errorf("config %s: duration_ms must not be negative", path)
	}
	return req, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}
