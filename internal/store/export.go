// Package store serializes simulation results to JSON documents.
package store

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/drivesim/internal/metrics"
	"github.com/san-kum/drivesim/internal/sim"
)

type ExportData struct {
	Topology   string               `json:"topology"`
	Controller string               `json:"controller"`
	Method     string               `json:"method"`
	DtOutput   float64              `json:"dtOutput"`
	Duration   float64              `json:"duration"`
	Steps      int                  `json:"steps"`
	Success    bool                 `json:"success"`
	Message    string               `json:"message,omitempty"`
	Time       []float64            `json:"time"`
	StateNames []string             `json:"stateNames"`
	States     map[string][]float64 `json:"states"`
	Controls   map[string][]float64 `json:"controls"`
	Outputs    map[string][]float64 `json:"outputs"`
	Metadata   map[string]any       `json:"metadata,omitempty"`
	Summary    metrics.Summary      `json:"summary"`
}

// Header carries the run description that Result does not.
type Header struct {
	Topology   string
	Controller string
	Method     string
	DtOutput   float64
}

func NewExportData(h Header, result *sim.Result) ExportData {
	return ExportData{
		Topology:   h.Topology,
		Controller: h.Controller,
		Method:     h.Method,
		DtOutput:   h.DtOutput,
		Duration:   result.Duration(),
		Steps:      result.NumPoints(),
		Success:    result.Success,
		Message:    result.Message,
		Time:       result.Time,
		StateNames: result.StateNames,
		States:     result.States,
		Controls:   result.Controls,
		Outputs:    result.Outputs,
		Metadata:   result.Metadata,
		Summary:    metrics.Summarize(result),
	}
}

func Encode(w io.Writer, h Header, result *sim.Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(NewExportData(h, result))
}

func ExportJSON(path string, h Header, result *sim.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return Encode(file, h, result)
}

func ExportJSONStdout(h Header, result *sim.Result) error {
	return Encode(os.Stdout, h, result)
}

// ReadJSON loads a document written by ExportJSON.
func ReadJSON(path string) (*ExportData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out ExportData
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Result rebuilds a sim.Result from the document.
func (e *ExportData) Result() *sim.Result {
	return &sim.Result{
		Time:       e.Time,
		States:     e.States,
		Controls:   e.Controls,
		Outputs:    e.Outputs,
		Metadata:   e.Metadata,
		StateNames: e.StateNames,
		Success:    e.Success,
		Message:    e.Message,
	}
}
