//go:build mage

// Package main provides build targets for livetodo using Mage.
//
// Usage:
//
//	mage build        Compile the livetodo binary to bin/
//	mage test:all     Run every test
//	mage test:race    Run every test with the race detector
//	mage test:cover   Write a coverage profile to bin/coverage.out
//	mage lint         Run golangci-lint
//	mage serve        Build, init and serve the local database
//	mage install      Install livetodo to GOPATH/bin
//	mage clean        Remove build artifacts
//	mage stats        Print Go line counts
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "livetodo"
	binaryDir  = "bin"
	cmdDir     = "./cmd/livetodo"
)

// Build compiles the livetodo binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-o", binaryPath(), cmdDir)
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

// Serve builds the binary, initializes storage and serves it.
func Serve() error {
	mg.Deps(Build)
	if err := sh.RunV(binaryPath(), "init"); err != nil {
		return err
	}
	return sh.RunV(binaryPath(), "serve")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	return sh.Copy(filepath.Join(gopath, "bin", binaryName), binaryPath())
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

func binaryPath() string {
	return filepath.Join(binaryDir, binaryName)
}
