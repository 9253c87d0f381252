package matrix

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionTable_Lookup_FallsBackToDefault_When_KeyHasNoEntry(t *testing.T) {
	t.Parallel()

	table := VersionTable{
		KeyDefault:   {"3.10", "3.11"},
		"core-tests": {"3.12"},
	}

	vs, ok := table.Lookup("core-tests")
	require.True(t, ok)
	assert.Equal(t, []string{"3.12"}, vs)

	vs, ok = table.Lookup("never-declared")
	require.True(t, ok)
	assert.Equal(t, []string{"3.10", "3.11"}, vs)
}

func TestVersionTable_Lookup_Fails_When_NoEntryAndNoDefault(t *testing.T) {
	t.Parallel()

	table := VersionTable{"core-tests": {"3.12"}}
	_, ok := table.Lookup("torch-tests")
	assert.False(t, ok)
}

func TestConcurrencyTable_Lookup_FallsBackToDefault_When_KeyHasNoEntry(t *testing.T) {
	t.Parallel()

	table := ConcurrencyTable{KeyDefault: 2, "core-tests": 8}

	c, ok := table.Lookup("core-tests")
	require.True(t, ok)
	assert.Equal(t, 8, c)

	c, ok = table.Lookup("jax-tests")
	require.True(t, ok)
	assert.Equal(t, 2, c)
}

func TestParseSkipList_SplitsOnCommasAndWhitespace(t *testing.T) {
	t.Parallel()

	skip := ParseSkipList("qcut-tests, data-tests\n torch-tests")
	assert.True(t, skip.Has("qcut-tests"))
	assert.True(t, skip.Has("data-tests"))
	assert.True(t, skip.Has("torch-tests"))
	assert.Len(t, skip.Keys(), 3)
}

func TestParseSkipList_KeepsTokensVerbatim(t *testing.T) {
	t.Parallel()

	// Tokens are not validated against declared jobs; an unknown token is
	// carried as-is and simply matches nothing at dispatch.
	skip := ParseSkipList("no-such-job")
	assert.True(t, skip.Has("no-such-job"))
	assert.False(t, skip.Has("core-tests"))
}

func TestParseSkipList_IsEmpty_When_InputIsBlank(t *testing.T) {
	t.Parallel()

	assert.Empty(t, ParseSkipList(""))
	assert.Empty(t, ParseSkipList("  \n\t ,, "))
}

func TestResolve_IgnoresSkipList_When_ModeIsFull(t *testing.T) {
	t.Parallel()

	_, _, skip := Resolve(ModeFull, "qcut-tests, data-tests")
	assert.Empty(t, skip, "full mode always executes the complete matrix")
}

func TestResolve_HonorsSkipList_When_ModeIsLightened(t *testing.T) {
	t.Parallel()

	versions, caps, skip := Resolve(ModeLightened, "qcut-tests")
	assert.True(t, skip.Has("qcut-tests"))

	vs, ok := versions.Lookup("core-tests")
	require.True(t, ok)
	assert.Equal(t, []string{"3.12"}, vs, "lightened mode collapses to the reference version")

	c, ok := caps.Lookup("core-tests")
	require.True(t, ok)
	assert.Equal(t, 2, c)
}

func TestResolve_ReturnsCopies_When_CallerMutates(t *testing.T) {
	t.Parallel()

	versions, caps, _ := Resolve(ModeFull, "")
	versions["core-tests"] = []string{"9.99"}
	caps["core-tests"] = 1000

	again, againCaps, _ := Resolve(ModeFull, "")
	vs, _ := again.Lookup("core-tests")
	assert.NotEqual(t, []string{"9.99"}, vs)
	c, _ := againCaps.Lookup("core-tests")
	assert.NotEqual(t, 1000, c)
}

func TestDispatch_ExpandsVersionsAndShards_InDeclarationOrder(t *testing.T) {
	t.Parallel()

	jobs := []Job{
		{Key: "torch-tests", Command: "make test-torch"},
		{Key: "core-tests", Command: "make test-core", Shards: 2},
	}
	versions := VersionTable{
		"torch-tests": {"3.11", "3.12"},
		"core-tests":  {"3.12"},
	}
	caps := ConcurrencyTable{KeyDefault: 2}

	instances, err := Dispatch(jobs, versions, caps, SkipSet{})
	require.NoError(t, err)

	ids := make([]string, len(instances))
	for i, inst := range instances {
		ids[i] = inst.ID
	}
	assert.Equal(t, []string{
		"torch-tests-3.11",
		"torch-tests-3.12",
		"core-tests-3.12-shard1",
		"core-tests-3.12-shard2",
	}, ids)
}

func TestDispatch_IsDeterministic_When_Rerun(t *testing.T) {
	t.Parallel()

	jobs := []Job{
		{Key: "core-tests", Command: "make test-core", Shards: 3},
		{Key: "jax-tests", Command: "make test-jax"},
	}
	versions, caps, skip := Resolve(ModeFull, "")

	first, err := Dispatch(jobs, versions, caps, skip)
	require.NoError(t, err)
	second, err := Dispatch(jobs, versions, caps, skip)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDispatch_OmitsSkippedJobs_And_KeepsOthers(t *testing.T) {
	t.Parallel()

	jobs := []Job{
		{Key: "core-tests", Command: "make test-core"},
		{Key: "qcut-tests", Command: "make test-qcut"},
		{Key: "data-tests", Command: "make test-data"},
	}
	versions, caps, skip := Resolve(ModeLightened, "qcut-tests, data-tests")

	instances, err := Dispatch(jobs, versions, caps, skip)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, JobKey("core-tests"), instances[0].Key)
	assert.Equal(t, "core-tests-3.12", instances[0].ID)
}

func TestDispatch_FailsClosed_When_NoEntryAndNoDefault(t *testing.T) {
	t.Parallel()

	jobs := []Job{{Key: "mystery-tests", Command: "make test-mystery"}}
	versions := VersionTable{"core-tests": {"3.12"}}
	caps := ConcurrencyTable{KeyDefault: 2}

	_, err := Dispatch(jobs, versions, caps, SkipSet{})
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, JobKey("mystery-tests"), cfgErr.Key)
	assert.Equal(t, "version", cfgErr.Table)
	assert.Contains(t, err.Error(), "no version entry and no default fallback")
}

func TestDispatch_CarriesPinSnapshot_When_JobDeclaresPins(t *testing.T) {
	t.Parallel()

	jobs := []Job{{Key: "torch-tests", Command: "make test-torch", PinPackages: []string{"torch", "numpy"}}}
	versions := VersionTable{KeyDefault: {"3.12"}}
	caps := ConcurrencyTable{KeyDefault: 1}

	instances, err := Dispatch(jobs, versions, caps, SkipSet{})
	require.NoError(t, err)
	require.Len(t, instances, 1)
	require.Len(t, instances[0].Pins, 2)
	assert.Equal(t, "torch", instances[0].Pins[0].Package)
	assert.Equal(t, "numpy", instances[0].Pins[1].Package)
}

func TestDispatch_ReturnsNoInstances_When_AllJobsSkipped(t *testing.T) {
	t.Parallel()

	jobs := []Job{{Key: "core-tests", Command: "make test-core"}}
	versions, caps, skip := Resolve(ModeLightened, "core-tests")

	instances, err := Dispatch(jobs, versions, caps, skip)
	require.NoError(t, err)
	assert.Empty(t, instances)
}
