package app

import (
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

// TestModeEnv switches the binaries off before they dial Postgres, Redis or Kafka.
const TestModeEnv = "ODYSSEY_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

func readTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
}

// InTestMode reports whether TestModeEnv is set. The value is read once.
func InTestMode() bool {
	testModeOnce.Do(func() { testMode.Store(readTestMode()) })
	return testMode.Load()
}

// RefreshTestMode re-reads TestModeEnv and returns the new value.
func RefreshTestMode() bool {
	testModeOnce.Do(func() {})
	on := readTestMode()
	testMode.Store(on)
	return on
}

// SkipStartup reports whether component must return before touching any
// infrastructure, logging the reason when it does.
func SkipStartup(component string) bool {
	if !InTestMode() {
		return false
	}
	slog.Default().Info("test mode detected, skipping startup", slog.String("component", component))
	return true
}
