package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadstone/loadstone/internal/bench"
)

const fullTask = `
title: volume smoke benchmark
defaults:
  context:
    tenants: 2
    users_per_tenant: 2
    quotas:
      volumes: unlimited
  sla:
    - kind: no_failures
scenarios:
  - name: Volumes.create_and_delete_volume
    args:
      size_gb: 1
    runner:
      type: constant
      concurrency: 4
      times: 32
  - name: Volumes.create_and_attach_volume
    context:
      tenants: 1
      users_per_tenant: 2
      quotas:
        volumes: 100
      preconditions:
        - kind: server
          count: 2
      identity_policy: random
    runner:
      type: rps
      rate: 10.5
      times: 50
      max_in_flight: 8
      timeout: 2m
    sla:
      - kind: max_failure_rate
        threshold: 0.05
      - kind: max_percentile_duration
        percentile: 95
        duration: 3s
`

func TestLoadFullTask(t *testing.T) {
	task, err := Load([]byte(fullTask))
	require.NoError(t, err)

	assert.Equal(t, "volume smoke benchmark", task.Title)
	require.Len(t, task.Scenarios, 2)

	first := task.Scenarios[0]
	assert.Equal(t, "Volumes.create_and_delete_volume", first.Name)
	assert.Equal(t, 1, first.Args["size_gb"])

	// Defaults fill the omitted context and SLA sections.
	assert.Equal(t, 2, first.Context.Tenants)
	assert.Equal(t, bench.QuotaUnlimited, first.Context.Quotas["volumes"])
	require.Len(t, first.SLA.Rules, 1)
	assert.Equal(t, bench.SLANoFailures, first.SLA.Rules[0].Kind)

	assert.Equal(t, bench.RunnerConstant, first.Runner.Type)
	assert.Equal(t, 4, first.Runner.Concurrency)
	assert.Equal(t, 32, first.Runner.Times)

	second := task.Scenarios[1]
	// An explicit context overrides the default wholesale.
	assert.Equal(t, 1, second.Context.Tenants)
	assert.Equal(t, int64(100), second.Context.Quotas["volumes"])
	assert.Equal(t, bench.PolicyRandom, second.Context.IdentityPolicy)
	require.Len(t, second.Context.Preconditions, 1)
	assert.Equal(t, "server", second.Context.Preconditions[0].Kind)
	assert.Equal(t, 2, second.Context.Preconditions[0].Count)

	assert.Equal(t, bench.RunnerRPS, second.Runner.Type)
	assert.Equal(t, 10.5, second.Runner.Rate)
	assert.Equal(t, 2*time.Minute, second.Runner.Timeout)

	require.Len(t, second.SLA.Rules, 2)
	assert.Equal(t, 0.05, second.SLA.Rules[0].Threshold)
	assert.Equal(t, 95.0, second.SLA.Rules[1].Percentile)
	assert.Equal(t, 3*time.Second, second.SLA.Rules[1].Duration)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load([]byte(`
scenarios:
  - name: Volumes.create_and_delete_volume
    runner:
      type: constant
      concurrency: 4
      times: 8
    warmup: 10s
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task file invalid")
}

func TestLoadRejectsUnknownRunnerType(t *testing.T) {
	_, err := Load([]byte(`
scenarios:
  - name: Volumes.create_and_delete_volume
    runner:
      type: warp
      times: 8
`))
	require.Error(t, err)
}

func TestLoadRejectsTimesAndDurationTogether(t *testing.T) {
	_, err := Load([]byte(`
scenarios:
  - name: Volumes.create_and_delete_volume
    runner:
      type: constant_for_duration
      concurrency: 2
      times: 10
      duration: 30s
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be set simultaneously")
}

func TestLoadRejectsBadQuotaString(t *testing.T) {
	_, err := Load([]byte(`
scenarios:
  - name: Volumes.create_and_delete_volume
    context:
      tenants: 1
      users_per_tenant: 1
      quotas:
        volumes: plenty
    runner:
      type: serial
      times: 1
`))
	require.Error(t, err)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	_, err := Load([]byte(`
scenarios:
  - name: Volumes.create_and_delete_volume
    runner:
      type: constant_for_duration
      concurrency: 2
      duration: ten seconds
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing duration")
}

func TestLoadRequiresRunner(t *testing.T) {
	_, err := Load([]byte(`
scenarios:
  - name: Volumes.create_and_delete_volume
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runner section is required")
}

func TestLoadReportsEveryBrokenScenario(t *testing.T) {
	_, err := Load([]byte(`
scenarios:
  - name: Volumes.create_and_delete_volume
    runner:
      type: constant
      times: 8
  - name: Quotas.show_quota
    runner:
      type: rps
      times: 8
`))
	require.Error(t, err)
	// Both problems surface in one pass.
	assert.Contains(t, err.Error(), "scenario 0")
	assert.Contains(t, err.Error(), "scenario 1")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullTask), 0o644))

	task, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, task.Scenarios, 2)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestPresets(t *testing.T) {
	ctx := SmokeContext()
	assert.NoError(t, ctx.Validate())
	assert.Equal(t, bench.QuotaUnlimited, ctx.Quotas["volumes"])

	run := ConstantRunner(4, 32)
	assert.NoError(t, run.Validate())

	sla := StrictSLA(2 * time.Second)
	assert.NoError(t, sla.Validate())
	require.Len(t, sla.Rules, 2)

	lenient := LenientSLA(0.1)
	assert.NoError(t, lenient.Validate())
}
