package app

import (
	"os"
	"sync/atomic"
)

// TestModeEnv makes the binaries return before touching Postgres or Redis
// when set to "1". internal/testing/guard sets it for test builds.
const TestModeEnv = "ASSETDESK_TEST_MODE"

var testMode atomic.Pointer[bool]

// InTestMode reports whether the binaries should skip runtime side effects.
// The environment is read on first use.
func InTestMode() bool {
	if v := testMode.Load(); v != nil {
		return *v
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads TestModeEnv and returns the new value.
func RefreshTestMode() bool {
	on := os.Getenv(TestModeEnv) == "1"
	testMode.Store(&on)
	return on
}
