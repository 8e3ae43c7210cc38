package report

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/browser-runner/pkg/core"
)

func sampleSuite() *core.SuiteResult {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	login := core.ScriptResult{
		Name:      "login",
		FilePath:  "scripts/login.yaml",
		StartTime: start,
		Duration:  1500 * time.Millisecond,
		Steps: []core.StepResult{
			{Index: 0, Command: "navigateTo", Status: core.StatusPassed},
			{Index: 1, Command: "click", Status: core.StatusPassed},
		},
	}
	checkout := core.ScriptResult{
		Name:      "checkout",
		FilePath:  "scripts/checkout.yaml",
		StartTime: start,
		Duration:  300 * time.Millisecond,
		Steps: []core.StepResult{
			{Index: 0, Command: "getText", Status: core.StatusFailed, Error: "element not found"},
			{Index: 1, Command: "click", Status: core.StatusSkipped},
		},
		Failures: []string{"element not found"},
	}
	for _, sc := range []*core.ScriptResult{&login, &checkout} {
		sc.ComputeSummary()
		sc.Status = sc.AggregateStatus()
	}
	suite := &core.SuiteResult{
		RunID:     "run-1",
		StartTime: start,
		Duration:  2 * time.Second,
		Scripts:   []core.ScriptResult{login, checkout},
	}
	suite.ComputeSummary()
	return suite
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	suite := sampleSuite()

	index, err := Write(dir, suite, RunnerInfo{Version: "dev", Driver: "html"})
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, index.Status)
	assert.Equal(t, Summary{Total: 2, Passed: 1, Failed: 1}, index.Summary)

	loaded, err := LoadIndex(filepath.Join(dir, "report.json"))
	require.NoError(t, err)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Equal(t, int64(2000), loaded.Duration)
	require.Len(t, loaded.Scripts, 2)
	assert.Equal(t, "script-001", loaded.Scripts[1].ID)
	assert.Equal(t, core.StatusFailed, loaded.Scripts[1].Status)
	assert.Equal(t, StepSummary{Total: 2, Failed: 1, Skipped: 1}, loaded.Scripts[1].Steps)
	assert.Equal(t, 1, loaded.Scripts[1].Failures)

	detail, err := LoadScript(filepath.Join(dir, loaded.Scripts[1].DataFile))
	require.NoError(t, err)
	assert.Equal(t, "checkout", detail.Name)
	require.Len(t, detail.Steps, 2)
	assert.Equal(t, core.StatusSkipped, detail.Steps[1].Status)

	entries, err := os.ReadDir(filepath.Join(dir, "scripts"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestBuildIndex_AllPassed(t *testing.T) {
	suite := sampleSuite()
	suite.Scripts = suite.Scripts[:1]
	suite.ComputeSummary()

	index := BuildIndex(suite, RunnerInfo{})
	assert.Equal(t, core.StatusPassed, index.Status)
	assert.Equal(t, suite.StartTime.Add(2*time.Second), index.EndTime)
}

func TestLoadIndex_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err := LoadIndex(path)
	assert.Error(t, err)

	_, err = LoadIndex(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestCollector(t *testing.T) {
	c := NewCollector(nil)
	c.RegisterFailure(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RegisterFailure(errors.New("boom"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, c.Len())
	assert.Len(t, c.Failures(), 20)
	assert.Equal(t, "boom", c.Messages()[0])

	var _ core.Reporter = c
	assert.Nil(t, NewCollector(nil).Messages())
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, sampleSuite(), true)
	out := buf.String()

	assert.Contains(t, out, "2 steps passing (2.0s)")
	assert.Contains(t, out, "1 steps failing")
	assert.Contains(t, out, "1 steps skipped")
	assert.Contains(t, out, "✓ PASS")
	assert.Contains(t, out, "✗ FAIL")
	assert.Contains(t, out, "1/2")
	assert.Contains(t, out, "step 1 getText: element not found")
	assert.Contains(t, out, "reported: element not found")
	assert.NotContains(t, out, "\x1b[")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{850 * time.Millisecond, "850ms"},
		{2300 * time.Millisecond, "2.3s"},
		{65 * time.Second, "1m 5s"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, FormatDuration(tc.d))
	}
}
