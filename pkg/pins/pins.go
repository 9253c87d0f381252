// Package pins is the process-wide registry of pinned third-party package
// versions. Every job instance in a run reads the same table, which keeps
// dependency versions consistent across the matrix.
package pins

import (
	"fmt"
	"strings"
	"sync"
)

// Pin is one pinned dependency: a package name and the literal version
// constraint jobs install it with.
type Pin struct {
	Package    string
	Constraint string
}

// Requirement renders the pin as an installer requirement string,
// e.g. "torch==2.3.0".
func (p Pin) Requirement() string {
	return p.Package + p.Constraint
}

// The pin table is authored here, by hand. Entries are literals: nothing is
// resolved or queried at runtime, so a malformed constraint is a review-time
// mistake, not a runtime failure.
var versions = sync.OnceValue(func() []Pin {
	return []Pin{
		{Package: "tensorflow", Constraint: "~=2.16.0"},
		{Package: "torch", Constraint: "==2.3.0"},
		{Package: "jax", Constraint: "==0.4.28"},
		{Package: "jaxlib", Constraint: "==0.4.28"},
		{Package: "numpy", Constraint: "<2.0"},
	}
})

// Versions returns the pin table. It is computed at most once per process and
// cached; the returned slice is a copy, so callers cannot mutate the table.
func Versions() []Pin {
	cached := versions()
	out := make([]Pin, len(cached))
	copy(out, cached)
	return out
}

// Select filters table down to the named packages, preserving table order.
// Unknown names are ignored: the association between jobs and pins is static,
// and a name with no pin simply contributes nothing.
func Select(table []Pin, packages []string) []Pin {
	if len(packages) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(packages))
	for _, p := range packages {
		want[p] = struct{}{}
	}
	var out []Pin
	for _, pin := range table {
		if _, ok := want[pin.Package]; ok {
			out = append(out, pin)
		}
	}
	return out
}

// Env renders pins as environment variable assignments for job processes,
// e.g. FANOUT_PIN_TORCH=torch==2.3.0.
func Env(ps []Pin) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, fmt.Sprintf("FANOUT_PIN_%s=%s", envKey(p.Package), p.Requirement()))
	}
	return out
}

func envKey(pkg string) string {
	key := strings.ToUpper(pkg)
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, key)
}
