package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/signalsfoundry/dynpool/model"
)

// Artifact file names inside the artifact directory.
const (
	ReportFile       = "report.json"
	WindowsFile      = "windows.json"
	SeriesFile       = "series.json"
	EventsFile       = "events.json"
	DispositionsFile = "dispositions.json"
)

// WriteArtifacts persists the artifact set under dir, one JSON file per
// data product. The directory is created when absent.
func WriteArtifacts(dir string, res *Result) error {
	if dir == "" {
		return fmt.Errorf("%w: artifact directory is required", model.ErrConfiguration)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	files := []struct {
		name string
		v    any
	}{
		{ReportFile, res.Report},
		{WindowsFile, res.Windows},
		{SeriesFile, res.Series},
		{EventsFile, res.Events},
		{DispositionsFile, res.Dispositions},
	}
	for _, f := range files {
		if err := writeJSON(filepath.Join(dir, f.name), f.v); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
