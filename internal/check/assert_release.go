//go:build !debug

// Package check holds invariant assertions that only fire in debug builds
// (go build -tags debug). Release builds compile them to no-ops, so callers
// must still handle the failing branch themselves.
package check

// Assert does nothing outside debug builds.
func Assert(_ bool, _ string) {}

// Assertf does nothing outside debug builds.
func Assertf(_ bool, _ string, _ ...any) {}
