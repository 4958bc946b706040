// Package storage keeps simulation runs on disk, one directory per run
// holding metadata.json and series.csv.
package storage

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
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/drivesim/internal/sim"
)

const (
	metadataFile = "metadata.json"
	seriesFile   = "series.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

// RunMetadata describes a stored run. The name lists record which CSV
// columns belong to states, controls and outputs.
type RunMetadata struct {
	ID           string             `json:"id"`
	Topology     string             `json:"topology"`
	Timestamp    time.Time          `json:"timestamp"`
	Method       string             `json:"method"`
	DtOutput     float64            `json:"dtOutput"`
	Duration     float64            `json:"duration"`
	Controller   string             `json:"controller"`
	TargetSpeed  float64            `json:"targetSpeed"`
	Success      bool               `json:"success"`
	Message      string             `json:"message,omitempty"`
	StateNames   []string           `json:"stateNames"`
	ControlNames []string           `json:"controlNames"`
	OutputNames  []string           `json:"outputNames"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

// Save writes result under a new run id and returns it. Identity, time and
// column fields of meta are filled in here.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	prefix := strings.TrimSuffix(filepath.Base(meta.Topology), filepath.Ext(meta.Topology))
	if prefix == "" || prefix == "." {
		prefix = "run"
	}
	meta.ID = fmt.Sprintf("%s_%s", prefix, uuid.NewString()[:8])
	meta.Timestamp = time.Now()
	meta.Success = result.Success
	meta.Message = result.Message
	meta.StateNames = append([]string(nil), result.StateNames...)
	meta.ControlNames = sortedKeys(result.Controls)
	meta.OutputNames = sortedKeys(result.Outputs)
	if meta.Duration == 0 {
		meta.Duration = result.Duration()
	}

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, seriesFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	if err := WriteCSV(csvFile, result); err != nil {
		return "", err
	}
	return meta.ID, nil
}

// WriteCSV writes a time column followed by every series in Result.Names
// order.
func WriteCSV(out io.Writer, result *sim.Result) error {
	w := csv.NewWriter(out)
	names := result.Names()
	if err := w.Write(append([]string{"time"}, names...)); err != nil {
		return err
	}

	columns := make([][]float64, len(names))
	for i, name := range names {
		columns[i], _ = result.Series(name)
	}
	for k, t := range result.Time {
		row := make([]string, 0, len(names)+1)
		row = append(row, strconv.FormatFloat(t, 'f', 6, 64))
		for _, col := range columns {
			v := 0.0
			if k < len(col) {
				v = col[k]
			}
			row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Resolve expands a unique run id prefix to the full id.
func (s *Store) Resolve(prefix string) (string, error) {
	runs, err := s.List()
	if err != nil {
		return "", err
	}
	var match []string
	for _, r := range runs {
		if r.ID == prefix {
			return r.ID, nil
		}
		if strings.HasPrefix(r.ID, prefix) {
			match = append(match, r.ID)
		}
	}
	switch len(match) {
	case 0:
		return "", fmt.Errorf("storage: no run matches %q", prefix)
	case 1:
		return match[0], nil
	default:
		return "", fmt.Errorf("storage: %q is ambiguous (%d runs)", prefix, len(match))
	}
}

// LoadResult rebuilds the Result saved under runID.
func (s *Store) LoadResult(runID string) (*sim.Result, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(s.baseDir, runID, seriesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	res := &sim.Result{
		States:     make(map[string][]float64),
		Controls:   make(map[string][]float64),
		Outputs:    make(map[string][]float64),
		Metadata:   map[string]any{"run_id": meta.ID, "topology": meta.Topology},
		StateNames: meta.StateNames,
		Success:    meta.Success,
		Message:    meta.Message,
	}
	if len(records) == 0 {
		return res, nil
	}

	group := make(map[string]map[string][]float64)
	for _, n := range meta.StateNames {
		group[n] = res.States
	}
	for _, n := range meta.ControlNames {
		group[n] = res.Controls
	}
	for _, n := range meta.OutputNames {
		group[n] = res.Outputs
	}

	header := records[0]
	for _, record := range records[1:] {
		if len(record) == 0 {
			continue
		}
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, fmt.Errorf("storage: %s: bad time %q: %w", runID, record[0], err)
		}
		res.Time = append(res.Time, t)
		for j := 1; j < len(record) && j < len(header); j++ {
			dst, ok := group[header[j]]
			if !ok {
				continue
			}
			v, err := strconv.ParseFloat(record[j], 64)
			if err != nil {
				return nil, fmt.Errorf("storage: %s: column %s: %w", runID, header[j], err)
			}
			dst[header[j]] = append(dst[header[j]], v)
		}
	}
	return res, nil
}

func sortedKeys(m map[string][]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
