// Package stats persists run artifacts as plain JSON and CSV documents
// under a base directory, one subdirectory per run, plus a flat
// run_index.json for listing.
package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"kinetikos/internal/model"
)

const runIndexFile = "run_index.json"

// RunConfig captures everything needed to reproduce an estimation run.
type RunConfig struct {
	RunID          string  `json:"run_id"`
	Pathway        string  `json:"pathway"`
	Organism       string  `json:"organism"`
	Mode           string  `json:"mode"`
	Seed           int64   `json:"seed"`
	MaxIterations  int     `json:"max_iterations"`
	SampleCount    int     `json:"sample_count"`
	Workers        int     `json:"workers"`
	InitialLogSD   float64 `json:"initial_log_sd"`
	TolMeanRel     float64 `json:"tol_mean_rel"`
	TolLogLik      float64 `json:"tol_log_lik"`
	ConvergeWindow int     `json:"converge_window"`
	ESSFraction    float64 `json:"ess_fraction"`
	WidenFactor    float64 `json:"widen_factor"`
	NoiseKind      string  `json:"noise_kind"`
	NoiseFraction  float64 `json:"noise_fraction"`
	MissingProb    float64 `json:"missing_prob"`
	PerturbFrac    float64 `json:"perturb_frac"`
	RTol           float64 `json:"rtol"`
	ATol           float64 `json:"atol"`
}

// RunArtifacts is the document set for one estimation run.
type RunArtifacts struct {
	Config     RunConfig               `json:"config"`
	Run        model.RunRecord         `json:"run"`
	Iterations []model.IterationRecord `json:"iterations"`
}

// RobustnessDocument is the persisted form of one sweep.
type RobustnessDocument struct {
	SweepID   string                    `json:"sweep_id"`
	Pathway   string                    `json:"pathway"`
	Organism  string                    `json:"organism"`
	Results   []model.RobustnessResult  `json:"results"`
	Summaries []model.RobustnessSummary `json:"summaries"`
}

// RunIndexEntry is one row of the flat run listing.
type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Pathway      string  `json:"pathway"`
	Organism     string  `json:"organism"`
	Mode         string  `json:"mode"`
	Seed         int64   `json:"seed"`
	State        string  `json:"state"`
	Iterations   int     `json:"iterations"`
	FinalLogLik  float64 `json:"final_log_lik"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

// WriteRunArtifacts writes the run's documents into baseDir/<run id> and
// returns the directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "estimate.json"), artifacts.Run); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "iterations.json"), artifacts.Iterations); err != nil {
		return "", err
	}
	if err := writeLogLikSeries(runDir, artifacts.Iterations); err != nil {
		return "", err
	}

	return runDir, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	path := filepath.Join(baseDir, runID, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

func ReadRunRecord(baseDir, runID string) (model.RunRecord, bool, error) {
	path := filepath.Join(baseDir, runID, "estimate.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}

	var rec model.RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.RunRecord{}, false, err
	}
	return rec, true, nil
}

func ReadIterations(baseDir, runID string) ([]model.IterationRecord, bool, error) {
	path := filepath.Join(baseDir, runID, "iterations.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var iterations []model.IterationRecord
	if err := json.Unmarshal(data, &iterations); err != nil {
		return nil, false, err
	}
	return iterations, true, nil
}

// WriteRobustness stores a sweep document in the run directory. The
// directory is created so a sweep can run without a prior estimate.
func WriteRobustness(baseDir, runID string, doc RobustnessDocument) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, "robustness.json"), doc)
}

func ReadRobustness(baseDir, runID string) (RobustnessDocument, bool, error) {
	path := filepath.Join(baseDir, runID, "robustness.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RobustnessDocument{}, false, nil
		}
		return RobustnessDocument{}, false, err
	}

	var doc RobustnessDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return RobustnessDocument{}, false, err
	}
	return doc, true, nil
}

// WriteFisher stores the identifiability analysis in the run directory.
func WriteFisher(baseDir, runID string, rec model.FisherRecord) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, "fisher.json"), rec)
}

func ReadFisher(baseDir, runID string) (model.FisherRecord, bool, error) {
	path := filepath.Join(baseDir, runID, "fisher.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.FisherRecord{}, false, nil
		}
		return model.FisherRecord{}, false, err
	}

	var rec model.FisherRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.FisherRecord{}, false, err
	}
	return rec, true, nil
}

// AppendRunIndex inserts or replaces the entry for its run id.
func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the index newest-first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run's documents into outDir/<run id>.
// Robustness and Fisher documents are optional and copied when present.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	files := []string{"config.json", "estimate.json", "iterations.json", "loglik_series.csv"}
	for _, file := range files {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	robustnessPath := filepath.Join(src, "robustness.json")
	if _, err := os.Stat(robustnessPath); err == nil {
		if err := copyFile(robustnessPath, filepath.Join(dst, "robustness.json")); err != nil {
			return "", err
		}
	} else if err != nil && !os.IsNotExist(err) {
		return "", err
	}
	fisherPath := filepath.Join(src, "fisher.json")
	if _, err := os.Stat(fisherPath); err == nil {
		if err := copyFile(fisherPath, filepath.Join(dst, "fisher.json")); err != nil {
			return "", err
		}
	} else if err != nil && !os.IsNotExist(err) {
		return "", err
	}

	return dst, nil
}

// writeLogLikSeries writes the per-iteration convergence trace as CSV for
// tooling that never parses the full iteration records.
func writeLogLikSeries(runDir string, iterations []model.IterationRecord) error {
	path := filepath.Join(runDir, "loglik_series.csv")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"iteration", "log_likelihood", "mean_change", "ess"}); err != nil {
		return err
	}
	for _, rec := range iterations {
		if err := writer.Write([]string{
			strconv.Itoa(rec.Iteration),
			strconv.FormatFloat(rec.LogLikelihood, 'f', -1, 64),
			strconv.FormatFloat(rec.MeanChange, 'f', -1, 64),
			strconv.FormatFloat(rec.ESS, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadLogLikSeries returns the log-likelihood column of the CSV trace.
func ReadLogLikSeries(baseDir, runID string) ([]float64, bool, error) {
	path := filepath.Join(baseDir, runID, "loglik_series.csv")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("log-likelihood series header must have at least 2 columns")
	}

	series := make([]float64, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 2 {
			return nil, false, fmt.Errorf("log-likelihood series row must have at least 2 columns")
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
