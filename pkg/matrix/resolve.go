package matrix

import (
	"strings"
	"unicode"
)

// referenceVersion is the single runtime version lightened runs collapse to.
const referenceVersion = "3.12"

// Full-mode override tables. Jobs without an explicit entry fall back to the
// default row. Versions are listed in ascending order; dispatch preserves it.
var (
	fullVersions = VersionTable{
		KeyDefault:    {"3.10", "3.11", "3.12"},
		"core-tests":  {"3.10", "3.11", "3.12", "3.13"},
		"torch-tests": {"3.11", "3.12"},
		"tf-tests":    {"3.11", "3.12"},
		"jax-tests":   {"3.11", "3.12"},
		"data-tests":  {"3.12"},
	}

	fullCaps = ConcurrencyTable{
		KeyDefault:    2,
		"core-tests":  8,
		"torch-tests": 4,
		"tf-tests":    4,
		"jax-tests":   4,
	}
)

// Lightened-mode tables: a single reference version with no per-job
// overrides, and caps tightened to bound total runner usage.
var (
	lightenedVersions = VersionTable{
		KeyDefault: {referenceVersion},
	}

	lightenedCaps = ConcurrencyTable{
		KeyDefault:   1,
		"core-tests": 2,
	}
)

// Resolve computes the three mappings that parameterize a run: runtime
// versions per job, concurrency caps per job, and the set of skipped jobs.
//
// The skip list is honored only in lightened mode; in full mode it is ignored
// even when non-empty. That asymmetry is deliberate and load-bearing: full
// runs always execute the complete matrix.
//
// Resolve is pure. The returned tables are copies, so callers may not mutate
// the canonical configuration through them.
func Resolve(mode RunMode, skipList string) (VersionTable, ConcurrencyTable, SkipSet) {
	if mode == ModeLightened {
		return cloneVersions(lightenedVersions), cloneCaps(lightenedCaps), ParseSkipList(skipList)
	}
	return cloneVersions(fullVersions), cloneCaps(fullCaps), SkipSet{}
}

// ParseSkipList splits a skip-list string on commas, newlines, and
// whitespace, discarding empty tokens. Tokens are kept verbatim as job keys.
func ParseSkipList(list string) SkipSet {
	skip := SkipSet{}
	tokens := strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	for _, tok := range tokens {
		skip[JobKey(tok)] = struct{}{}
	}
	return skip
}

func cloneVersions(t VersionTable) VersionTable {
	out := make(VersionTable, len(t))
	for k, vs := range t {
		cp := make([]string, len(vs))
		copy(cp, vs)
		out[k] = cp
	}
	return out
}

func cloneCaps(t ConcurrencyTable) ConcurrencyTable {
	out := make(ConcurrencyTable, len(t))
	for k, c := range t {
		out[k] = c
	}
	return out
}
