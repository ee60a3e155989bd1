package migration

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepsAreIdempotent(t *testing.T) {
	runner := NewRunner()
	assert.Equal(t, "1.0.0", runner.Version())

	steps := runner.Steps()
	assert.NotEmpty(t, steps)
	for _, s := range steps {
		assert.Contains(t, s.SQL, "IF NOT EXISTS", s.Name)
	}
}

func TestStepsCreateObservationTables(t *testing.T) {
	var ddl strings.Builder
	for _, s := range NewRunner().Steps() {
		ddl.WriteString(s.SQL)
	}
	for _, table := range []string{"experiments", "individuals", "infection_status", "reproduction_events"} {
		assert.Contains(t, ddl.String(), "CREATE TABLE IF NOT EXISTS "+table+" (")
	}

	// tables referenced by foreign keys come first
	steps := NewRunner().Steps()
	assert.Equal(t, "experiments table", steps[0].Name)
	assert.Equal(t, "individuals table", steps[1].Name)
}
