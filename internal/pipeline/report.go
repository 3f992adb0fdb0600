// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// Report file names written to the output directory.
const (
	FinalStoryFile     = "final_story.json"
	ResultJSONFile     = "pipeline_result.json"
	ResultYAMLFile     = "pipeline_result.yaml"
	defaultReportPerms = 0o644
)

// WriteReport writes the final story and the full result to dir, creating
// it if needed. The YAML copy of the result is written only when withYAML
// is set. It returns the paths written.
func WriteReport(dir string, res *Result, withYAML bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory %s: %w", dir, err)
	}

	var written []string
	if res.FinalStory != nil {
		path := filepath.Join(dir, FinalStoryFile)
		if err := writeJSON(path, res.FinalStory); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	path := filepath.Join(dir, ResultJSONFile)
	if err := writeJSON(path, res); err != nil {
		return written, err
	}
	written = append(written, path)

	if withYAML {
		data, err := yaml.Marshal(res)
		if err != nil {
			return written, fmt.Errorf("marshaling YAML: %w", err)
		}
		path := filepath.Join(dir, ResultYAMLFile)
		if err := os.WriteFile(path, data, defaultReportPerms); err != nil {
			return written, fmt.Errorf("writing %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	if err := os.WriteFile(path, data, defaultReportPerms); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
