package logging

import "testing"

func TestNewBuildsBothModes(t *testing.T) {
	t.Parallel()

	for _, development := range []bool{true, false} {
		logger, err := New(development)
		if err != nil {
			t.Fatalf("New(%v) error = %v", development, err)
		}
		if logger == nil {
			t.Fatalf("New(%v) returned nil logger", development)
		}
		if got := logger.Name(); got != "harvester" {
			t.Fatalf("New(%v) logger name = %q, want harvester", development, got)
		}
		logger.Info("logger ready")
		logger.Sync() //nolint:errcheck // best-effort flush
	}
}
