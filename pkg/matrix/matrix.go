// Package matrix resolves test-matrix configuration and expands logical jobs
// into concrete job instances.
//
// Configuration is a pair of override tables (runtime versions and
// concurrency caps) selected by run mode, plus a skip set. Every lookup falls
// back to the "default" key, so resolution is total for any job key as long
// as the table carries a default entry.
package matrix

import (
	"fmt"

	"github.com/dkoosis/fanout/pkg/pins"
)

// RunMode selects which override tables are active for a run.
// It is set once per run and immutable afterward.
type RunMode int

const (
	// ModeFull runs the complete matrix: multiple runtime versions per job
	// and higher concurrency caps.
	ModeFull RunMode = iota
	// ModeLightened forces every job onto a single reference runtime version
	// with conservative caps, and honors an explicit skip list.
	ModeLightened
)

func (m RunMode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeLightened:
		return "lightened"
	default:
		return "unknown"
	}
}

// JobKey identifies a logical job family (a named test suite). Keys are
// stable across runs and index every override table.
type JobKey string

// KeyDefault is the implicit fallback key present in every canonical table.
const KeyDefault JobKey = "default"

// VersionTable maps job keys to ordered runtime-version sets.
type VersionTable map[JobKey][]string

// Lookup returns the version set for key, falling back to the default entry.
// The second return is false only when the table has neither an explicit
// entry nor a default.
func (t VersionTable) Lookup(key JobKey) ([]string, bool) {
	if vs, ok := t[key]; ok {
		return vs, true
	}
	vs, ok := t[KeyDefault]
	return vs, ok
}

// ConcurrencyTable maps job keys to positive bounds on simultaneous
// instances. The bound is advisory: it parameterizes the scheduler, it is not
// enforced here.
type ConcurrencyTable map[JobKey]int

// Lookup returns the cap for key, falling back to the default entry.
func (t ConcurrencyTable) Lookup(key JobKey) (int, bool) {
	if c, ok := t[key]; ok {
		return c, true
	}
	c, ok := t[KeyDefault]
	return c, ok
}

// SkipSet holds job keys excluded from dispatch.
type SkipSet map[JobKey]struct{}

// Has reports whether key is in the skip set.
func (s SkipSet) Has(key JobKey) bool {
	_, ok := s[key]
	return ok
}

// Keys returns the skipped keys in unspecified order.
func (s SkipSet) Keys() []JobKey {
	keys := make([]JobKey, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	return keys
}

// Job is the static declaration of a logical job family.
type Job struct {
	// Key names the job family and indexes the override tables.
	Key JobKey `yaml:"key"`
	// Command is the shell command executed for each instance.
	Command string `yaml:"command"`
	// Shards is the size of the job's secondary dimension. Zero means
	// unsharded; N > 0 expands into shards 1..N.
	Shards int `yaml:"shards"`
	// PinPackages lists the pinned dependencies each instance receives,
	// by package name. Association is static, never inferred.
	PinPackages []string `yaml:"pins"`
}

// JobInstance is the unit actually executed: one (job, version, shard) tuple
// produced at fan-out time.
type JobInstance struct {
	// ID is the deterministic instance name, "key-version" or
	// "key-version-shardN". Artifacts produced by the instance use this
	// name so the aggregation gate can address them.
	ID      string
	Key     JobKey
	Version string
	// Shard is 1-based; zero for unsharded jobs.
	Shard int
	// Cap is the advisory concurrency bound resolved for the job key.
	Cap     int
	Command string
	// Pins is the immutable dependency snapshot for this instance.
	Pins []pins.Pin
}

// ConfigError reports a job key that resolves through neither an explicit
// table entry nor the default fallback. Dispatch fails closed on it rather
// than silently skipping the job.
type ConfigError struct {
	Key   JobKey
	Table string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("job %q: no %s entry and no default fallback", string(e.Key), e.Table)
}
