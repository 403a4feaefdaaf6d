package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/mdmesh/internal/metrics"
)

// ExportData is a run and its samples as one json document.
type ExportData struct {
	RunMetadata
	Samples []metrics.Sample `json:"samples"`
}

// Export writes run runID as indented json to w.
func (s *Store) Export(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	samples, err := s.LoadSamples(runID)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ExportData{RunMetadata: *meta, Samples: samples})
}

// ExportFile writes run runID to the json file at path.
func (s *Store) ExportFile(path, runID string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return s.Export(file, runID)
}
