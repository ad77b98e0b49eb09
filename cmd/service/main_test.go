package main

import "testing"

// TestCoverageGaps_IntentionallyUntested documents why cmd/service has no unit tests.
func TestCoverageGaps_IntentionallyUntested(t *testing.T) {
	t.Skip("main.go only wires internal packages, each tested on its own; covering it would need exec and live upstreams")
}
