package storage

import (
	"errors"
	"reflect"
	"testing"

	"spikekernel/internal/model"
)

func TestNetworkCodecRoundTrip(t *testing.T) {
	input := model.NetworkRecord{
		VersionedRecord: Stamp(),
		ID:              "net-1",
		Seed:            7,
		NumRanks:        2,
		ThreadsPerRank:  2,
		ResolutionMS:    0.1,
		Connections: []model.Connection{
			{Source: 0, Target: 3, Weight: 0.5, DendriticDelay: 10, AxonalDelay: 5},
			{Source: 1, Target: 2, Weight: -1.0, DendriticDelay: 15, SynapseModel: "stdp_axonal"},
		},
	}

	data, err := EncodeNetwork(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	output, err := DecodeNetwork(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(input, output) {
		t.Fatalf("round trip mismatch:\n in: %+v\nout: %+v", input, output)
	}
}

func TestRunCodecRoundTrip(t *testing.T) {
	input := model.RunRecord{
		VersionedRecord:   Stamp(),
		ID:                "run-1",
		NetworkID:         "net-1",
		Steps:             5000,
		SpikesEmitted:     120,
		SpikesDelivered:   480,
		CorrectionsIssued: 3,
	}

	data, err := EncodeRun(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	output, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(input, output) {
		t.Fatalf("round trip mismatch:\n in: %+v\nout: %+v", input, output)
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	network := model.NetworkRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion + 1, CodecVersion: CurrentCodecVersion},
		ID:              "net-1",
	}
	data, err := EncodeNetwork(network)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeNetwork(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("got %v, want ErrVersionMismatch", err)
	}

	run := model.RunRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion + 1},
		ID:              "run-1",
	}
	data, err = EncodeRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeRun(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("got %v, want ErrVersionMismatch", err)
	}
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	if _, err := DecodeNetwork([]byte("{")); err == nil {
		t.Fatal("expected error for malformed network payload")
	}
	if _, err := DecodeRun([]byte("[]")); err == nil {
		t.Fatal("expected error for malformed run payload")
	}
}
