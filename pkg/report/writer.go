package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/devicelab-dev/browser-runner/pkg/core"
)

// Write stores suite under dir and returns the index it wrote.
func Write(dir string, suite *core.SuiteResult, info RunnerInfo) (*Index, error) {
	if err := os.MkdirAll(filepath.Join(dir, "scripts"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	index := BuildIndex(suite, info)
	for i := range suite.Scripts {
		entry := index.Scripts[i]
		if err := atomicWriteJSON(filepath.Join(dir, entry.DataFile), suite.Scripts[i]); err != nil {
			return nil, err
		}
	}
	if err := atomicWriteJSON(filepath.Join(dir, "report.json"), index); err != nil {
		return nil, err
	}
	return index, nil
}

// BuildIndex summarizes suite without touching the filesystem.
func BuildIndex(suite *core.SuiteResult, info RunnerInfo) *Index {
	index := &Index{
		Version:   Version,
		RunID:     suite.RunID,
		StartTime: suite.StartTime,
		EndTime:   suite.StartTime.Add(suite.Duration),
		Duration:  suite.Duration.Milliseconds(),
		Runner:    info,
		Status:    core.StatusPassed,
		Summary: Summary{
			Total:   suite.TotalScripts,
			Passed:  suite.PassedScripts,
			Failed:  suite.FailedScripts,
			Skipped: suite.SkippedScripts,
		},
	}
	if !suite.Success() {
		index.Status = core.StatusFailed
	}

	for i, sc := range suite.Scripts {
		id := fmt.Sprintf("script-%03d", i)
		index.Scripts = append(index.Scripts, ScriptEntry{
			ID:         id,
			Name:       sc.Name,
			SourceFile: sc.FilePath,
			DataFile:   filepath.Join("scripts", id+".json"),
			Status:     sc.Status,
			Duration:   sc.Duration.Milliseconds(),
			Steps: StepSummary{
				Total:   sc.TotalSteps,
				Passed:  sc.PassedSteps,
				Failed:  sc.FailedSteps,
				Skipped: sc.SkippedSteps,
			},
			Failures: len(sc.Failures),
			Error:    sc.Error,
		})
	}
	return index
}

// LoadIndex reads report.json.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &index, nil
}

// LoadScript reads one per-script detail file.
func LoadScript(path string) (*core.ScriptResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var result core.ScriptResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &result, nil
}

// atomicWriteJSON writes v to path through a temp file and rename,
// so readers never observe a partial file.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
