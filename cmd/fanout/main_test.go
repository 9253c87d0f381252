package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"CI", "FANOUT_MODE", "FANOUT_SKIP", "FANOUT_UPLOAD", "FANOUT_DEBUG"} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".fanout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun_PrintsUsage_When_NoCommandGiven(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(nil, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "Usage:")
}

func TestRun_RejectsUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"frobnicate"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "unknown command")
}

func TestRun_Versions_PrintsPinTable(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"versions"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "torch")
	assert.Contains(t, stdout.String(), "==2.3.0")
	assert.Contains(t, stdout.String(), "numpy")
}

func TestRun_Version_PrintsBuildInfo(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--version"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "fanout")
}

func TestRunPlan_PrintsDeterministicInstances(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
jobs:
  - key: core-tests
    command: make test-core
    shards: 2
`)

	var stdout, stderr bytes.Buffer
	code := run([]string{"plan", "-config", path, "-mode", "lightened"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "core-tests-3.12-shard1")
	assert.Contains(t, stdout.String(), "core-tests-3.12-shard2")
	assert.Contains(t, stdout.String(), "2 instances")
}

func TestRunPlan_SkipsJobs_InLightenedMode(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
jobs:
  - key: core-tests
    command: make test-core
  - key: qcut-tests
    command: make test-qcut
  - key: data-tests
    command: make test-data
`)

	var stdout, stderr bytes.Buffer
	code := run([]string{"plan", "-config", path, "-mode", "lightened", "-skip", "qcut-tests, data-tests"},
		strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "core-tests-3.12")
	assert.NotContains(t, stdout.String(), "qcut-tests")
	assert.NotContains(t, stdout.String(), "data-tests")
}

func TestRunPlan_IgnoresSkip_InFullMode(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
jobs:
  - key: qcut-tests
    command: make test-qcut
`)

	var stdout, stderr bytes.Buffer
	code := run([]string{"plan", "-config", path, "-mode", "full", "-skip", "qcut-tests"},
		strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "qcut-tests-3.10")
}

func TestRunRun_ExecutesMatrixAndReportsVerdict(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
jobs:
  - key: smoke
    command: "true"
`)

	var stdout, stderr bytes.Buffer
	code := run([]string{"run", "-config", path, "-mode", "lightened"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "smoke-3.12")
	assert.Contains(t, stdout.String(), "aggregation withheld", "upload disabled withholds aggregation")
}

func TestRunRun_ExitsNonZero_When_JobFails(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
jobs:
  - key: smoke
    command: "exit 7"
`)

	var stdout, stderr bytes.Buffer
	code := run([]string{"run", "-config", path, "-mode", "lightened"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout.String(), "failed")
}

func TestRunGate_Proceeds_When_AllSucceedAndUploadEnabled(t *testing.T) {
	input := `[
		{"id":"core-tests-3.12","key":"core-tests","status":"success"},
		{"id":"qcut-tests","key":"qcut-tests","status":"skipped"}
	]`

	var stdout, stderr bytes.Buffer
	code := run([]string{"gate", "-upload"}, strings.NewReader(input), &stdout, &stderr)
	assert.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "aggregation proceeds")
}

func TestRunGate_Withholds_When_AnyFailed(t *testing.T) {
	input := `[{"id":"core-tests-3.12","key":"core-tests","status":"failed","exit_code":2}]`

	var stdout, stderr bytes.Buffer
	code := run([]string{"gate", "-upload"}, strings.NewReader(input), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout.String(), "aggregation withheld")
}

func TestRunGate_Withholds_When_UploadDisabled(t *testing.T) {
	input := `[{"id":"core-tests-3.12","key":"core-tests","status":"success"}]`

	var stdout, stderr bytes.Buffer
	code := run([]string{"gate"}, strings.NewReader(input), &stdout, &stderr)
	assert.Equal(t, 1, code)
}

func TestRunGate_Fails_When_StatusUnknown(t *testing.T) {
	input := `[{"id":"a","key":"a","status":"exploded"}]`

	var stdout, stderr bytes.Buffer
	code := run([]string{"gate"}, strings.NewReader(input), &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "unknown status")
}

func TestRunGate_Fails_When_InputIsNotJSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"gate"}, strings.NewReader("not json"), &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "parse results")
}
