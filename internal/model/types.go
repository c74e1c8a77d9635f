package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// NodeID is the global node identifier, unique across all ranks. IDs are
// assigned densely starting at 0 so that VP ownership is a pure function of
// the ID.
type NodeID int64

// Tick is a discrete simulation step index. All delays and event stamps are
// expressed in ticks; the kernel resolution converts between ticks and
// milliseconds.
type Tick int64

// VPID identifies a virtual process, the unit of node ownership. VP indices
// run from 0 to ranks*threadsPerRank-1.
type VPID int

type Connection struct {
	Source NodeID  `json:"source"`
	Target NodeID  `json:"target"`
	Weight float64 `json:"weight"`
	// DendriticDelay is the backbone transmission latency in ticks, at
	// least one tick.
	DendriticDelay Tick `json:"dendritic_delay"`
	// AxonalDelay is the additional axonal transit in ticks, zero or more.
	AxonalDelay  Tick   `json:"axonal_delay,omitempty"`
	SynapseModel string `json:"synapse_model,omitempty"`
	Receptor     int    `json:"receptor,omitempty"`
}

// TotalDelay is the full source-to-target latency in ticks.
func (c Connection) TotalDelay() Tick {
	return c.DendriticDelay + c.AxonalDelay
}

type Rule string

const (
	RuleOneToOne          Rule = "one_to_one"
	RuleAllToAll          Rule = "all_to_all"
	RulePairwiseBernoulli Rule = "pairwise_bernoulli"
	RuleFixedIndegree     Rule = "fixed_indegree"
	RuleFixedOutdegree    Rule = "fixed_outdegree"
	RuleFixedTotalNumber  Rule = "fixed_total_number"
)

// ConnSpec is the declarative connection specification passed to Connect.
// Only the parameter matching the rule is consulted.
type ConnSpec struct {
	Rule           Rule    `json:"rule"`
	Indegree       int     `json:"indegree,omitempty"`
	Outdegree      int     `json:"outdegree,omitempty"`
	N              int     `json:"N,omitempty"`
	P              float64 `json:"p,omitempty"`
	AllowAutapses  bool    `json:"allow_autapses"`
	AllowMultapses bool    `json:"allow_multapses"`
}

// DefaultConnSpec returns a spec with the policy defaults (autapses and
// multapses permitted).
func DefaultConnSpec(rule Rule) ConnSpec {
	return ConnSpec{Rule: rule, AllowAutapses: true, AllowMultapses: true}
}

// SynSpec carries the synapse parameters for Connect. Delays are in
// milliseconds and converted to ticks against the kernel resolution at
// build time.
type SynSpec struct {
	Weight       float64 `json:"weight"`
	DelayMS      float64 `json:"delay"`
	AxonalMS     float64 `json:"axonal_delay,omitempty"`
	SynapseModel string  `json:"synapse_model,omitempty"`
	Receptor     int     `json:"receptor,omitempty"`
}

// NetworkRecord is the persistent description of a realized network: the
// edge list plus everything needed to regenerate it deterministically.
type NetworkRecord struct {
	VersionedRecord
	ID             string       `json:"id"`
	Seed           int64        `json:"seed"`
	NumRanks       int          `json:"num_ranks"`
	ThreadsPerRank int          `json:"threads_per_rank"`
	ResolutionMS   float64      `json:"resolution_ms"`
	Connections    []Connection `json:"connections"`
}

// RunRecord summarizes one completed simulation run.
type RunRecord struct {
	VersionedRecord
	ID                string `json:"id"`
	NetworkID         string `json:"network_id,omitempty"`
	Steps             int64  `json:"steps"`
	SpikesEmitted     int64  `json:"spikes_emitted"`
	SpikesDelivered   int64  `json:"spikes_delivered"`
	CorrectionsIssued int64  `json:"corrections_issued"`
}
