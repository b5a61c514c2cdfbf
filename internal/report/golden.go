package report

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/velora/internal/ir"
)

// AssertGolden compares the canonical form of result against
// testdata/golden/<name>.golden in the calling package.
//
// Run the tests with -update to rewrite the golden files after an
// intentional change.
func AssertGolden(t *testing.T, name string, result ir.ReconciliationResult) {
	t.Helper()

	data, err := Canonical(result)
	if err != nil {
		t.Fatalf("canonical result: %v", err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
