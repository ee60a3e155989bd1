package core

import (
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}

	if len(ids) != numIDs {
		t.Errorf("Expected %d unique IDs, got %d", numIDs, len(ids))
	}
}

// TestIDString tests ID string conversion
func TestIDString(t *testing.T) {
	id := ID("test-123")
	if id.String() != "test-123" {
		t.Errorf("Expected String() to return 'test-123', got '%s'", id.String())
	}
	if RunID("run-1").String() != "run-1" {
		t.Errorf("Expected RunID String() to return 'run-1'")
	}
}

// TestIDIsEmpty tests ID emptiness check
func TestIDIsEmpty(t *testing.T) {
	emptyID := ID("")
	if !emptyID.IsEmpty() {
		t.Error("Expected empty ID to be empty")
	}

	nonEmptyID := ID("not-empty")
	if nonEmptyID.IsEmpty() {
		t.Error("Expected non-empty ID to not be empty")
	}
}

// TestParseExperimentID tests experiment ID parsing
func TestParseExperimentID(t *testing.T) {
	tests := []struct {
		input    string
		expected ExperimentID
		hasError bool
	}{
		{"exp-2024-daphnia", ExperimentID("exp-2024-daphnia"), false},
		{"", "", true},
		{"   ", "", true},
	}

	for _, test := range tests {
		result, err := ParseExperimentID(test.input)
		if test.hasError && err == nil {
			t.Errorf("Expected error for input '%s', but got none", test.input)
		}
		if !test.hasError && err != nil {
			t.Errorf("Unexpected error for input '%s': %v", test.input, err)
		}
		if result != test.expected {
			t.Errorf("Expected %s, got %s", test.expected, result)
		}
	}
}

// TestInvalidInputErrors tests sentinel wrapping
func TestInvalidInputErrors(t *testing.T) {
	err := NewInvalidInputError("table", "ragged rows")
	if !IsInvalidInputError(err) {
		t.Errorf("Expected %v to wrap ErrInvalidInput", err)
	}
	if !IsInvalidInputError(NewInsufficientDataError("groups", 1, 2)) {
		t.Error("Expected insufficient data to be an invalid input error")
	}
	if !IsInvalidInputError(ErrDegreesOfFreedom) {
		t.Error("Expected ErrDegreesOfFreedom to be an invalid input error")
	}
	if IsInvalidInputError(ErrExperimentNotFound) {
		t.Error("Expected not-found error not to be an invalid input error")
	}
	if !IsNotFoundError(NewNotFoundError("experiment", "e-1")) {
		t.Error("Expected not-found error to match ErrNotFound")
	}
}
