package storage

import (
	"encoding/json"
	"errors"

	"kinetikos/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

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

func EncodeIterations(iterations []model.IterationRecord) ([]byte, error) {
	return json.Marshal(iterations)
}

func DecodeIterations(data []byte) ([]model.IterationRecord, error) {
	var iterations []model.IterationRecord
	if err := json.Unmarshal(data, &iterations); err != nil {
		return nil, err
	}
	return iterations, nil
}

func EncodeRobustnessResults(results []model.RobustnessResult) ([]byte, error) {
	return json.Marshal(results)
}

func DecodeRobustnessResults(data []byte) ([]model.RobustnessResult, error) {
	var results []model.RobustnessResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, err
	}
	for _, result := range results {
		if err := checkVersion(result.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func EncodeRobustnessSummaries(summaries []model.RobustnessSummary) ([]byte, error) {
	return json.Marshal(summaries)
}

func DecodeRobustnessSummaries(data []byte) ([]model.RobustnessSummary, error) {
	var summaries []model.RobustnessSummary
	if err := json.Unmarshal(data, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

func EncodeFisher(rec model.FisherRecord) ([]byte, error) {
	return json.Marshal(rec)
}

func DecodeFisher(data []byte) (model.FisherRecord, error) {
	var rec model.FisherRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.FisherRecord{}, err
	}
	if err := checkVersion(rec.VersionedRecord); err != nil {
		return model.FisherRecord{}, err
	}
	return rec, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
