package workers

import "testing"

func TestCount(t *testing.T) {
	if got := Count(1.0, 0); got < 1 {
		t.Errorf("Count(1.0, 0) = %d, want >= 1", got)
	}
	if got := Count(2.0, 4); got > 4 {
		t.Errorf("Count(2.0, 4) = %d, want <= 4", got)
	}
	// Tiny multipliers must still yield at least one worker.
	if got := Count(0.001, 0); got != 1 {
		t.Errorf("Count(0.001, 0) = %d, want 1", got)
	}
}

func TestCountOverride(t *testing.T) {
	t.Setenv("INDEX_WORKERS", "7")
	if got := Count(1.0, 0); got != 7 {
		t.Errorf("Count with override = %d, want 7", got)
	}
	// The limit caps even an explicit override.
	if got := Count(1.0, 3); got != 3 {
		t.Errorf("Count with override and limit = %d, want 3", got)
	}
}

func TestCountInvalidOverride(t *testing.T) {
	t.Setenv("INDEX_WORKERS", "not-a-number")
	if got := Count(1.0, 0); got < 1 {
		t.Errorf("Count with invalid override = %d, want >= 1", got)
	}
}

func TestForIO(t *testing.T) {
	if got := ForIO(8); got > 8 {
		t.Errorf("ForIO(8) = %d, want <= 8", got)
	}
	if ForIO(0) < Count(1.0, 0) {
		t.Errorf("ForIO(0) = %d should be >= the CPU count %d", ForIO(0), Count(1.0, 0))
	}
}
