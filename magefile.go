//go:build mage

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default target - build the binary
var Default = Build

const binary = "bin/fanout"

func ldflags() string {
	commit, err := sh.Output("git", "rev-parse", "--short", "HEAD")
	if err != nil {
		commit = "unknown"
	}
	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil {
		version = "dev"
	}
	date := time.Now().UTC().Format(time.RFC3339)
	return fmt.Sprintf(
		"-X github.com/dkoosis/fanout/internal/version.Version=%s "+
			"-X github.com/dkoosis/fanout/internal/version.CommitHash=%s "+
			"-X github.com/dkoosis/fanout/internal/version.BuildDate=%s",
		version, commit, date)
}

// Build builds the fanout binary
func Build() error {
	return sh.RunV("go", "build", "-ldflags", ldflags(), "-o", binary, "./cmd/fanout")
}

// Install installs fanout into GOPATH/bin
func Install() error {
	return sh.RunV("go", "install", "-ldflags", ldflags(), "./cmd/fanout")
}

// Test runs the test suite with the race detector
func Test() error {
	return sh.RunV("go", "test", "-race", "-timeout", "5m", "./...")
}

// QA runs format, vet, and lint checks
func QA() error {
	mg.Deps(Test)
	if err := sh.RunV("go", "fmt", "./..."); err != nil {
		return fmt.Errorf("format check failed: %w", err)
	}
	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return fmt.Errorf("vet failed: %w", err)
	}
	if err := sh.RunV("golangci-lint", "run", "--timeout=5m", "./..."); err != nil {
		fmt.Fprintln(os.Stderr, "warning: golangci-lint unavailable or failed")
	}
	return nil
}

// Clean removes build artifacts
func Clean() error {
	return sh.Rm("bin")
}
