package matrix

import (
	"fmt"

	"github.com/dkoosis/fanout/pkg/pins"
)

// Dispatch expands each job not in skip into the cross product of its
// resolved version set and its declared shard range.
//
// Enumeration order is deterministic: declaration order, then version order
// as resolved, then ascending shard. Instance IDs are therefore stable across
// reruns, which downstream caching and reporting rely on.
//
// A job key that resolves through neither table (no explicit entry, no
// default) is a configuration error: Dispatch fails closed instead of
// silently omitting the job, since silent omission would hide coverage gaps.
func Dispatch(jobs []Job, versions VersionTable, caps ConcurrencyTable, skip SkipSet) ([]JobInstance, error) {
	pinset := pins.Versions()

	var instances []JobInstance
	for _, job := range jobs {
		if skip.Has(job.Key) {
			continue
		}

		vs, ok := versions.Lookup(job.Key)
		if !ok {
			return nil, &ConfigError{Key: job.Key, Table: "version"}
		}
		cap, ok := caps.Lookup(job.Key)
		if !ok {
			return nil, &ConfigError{Key: job.Key, Table: "concurrency"}
		}

		jobPins := pins.Select(pinset, job.PinPackages)
		for _, v := range vs {
			if job.Shards <= 0 {
				instances = append(instances, newInstance(job, v, 0, cap, jobPins))
				continue
			}
			for shard := 1; shard <= job.Shards; shard++ {
				instances = append(instances, newInstance(job, v, shard, cap, jobPins))
			}
		}
	}
	return instances, nil
}

func newInstance(job Job, version string, shard, cap int, jobPins []pins.Pin) JobInstance {
	id := fmt.Sprintf("%s-%s", job.Key, version)
	if shard > 0 {
		id = fmt.Sprintf("%s-shard%d", id, shard)
	}
	return JobInstance{
		ID:      id,
		Key:     job.Key,
		Version: version,
		Shard:   shard,
		Cap:     cap,
		Command: job.Command,
		Pins:    jobPins,
	}
}
