package storage

import (
	"encoding/json"
	"errors"

	"spikekernel/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeNetwork(n model.NetworkRecord) ([]byte, error) {
	return json.Marshal(n)
}

func DecodeNetwork(data []byte) (model.NetworkRecord, error) {
	var network model.NetworkRecord
	if err := json.Unmarshal(data, &network); err != nil {
		return model.NetworkRecord{}, err
	}
	if err := checkVersion(network.VersionedRecord); err != nil {
		return model.NetworkRecord{}, err
	}
	return network, nil
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

// Stamp sets the current schema and codec versions on a record.
func Stamp() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
