package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

// testModeEnv disables external side effects of the binaries when set to a
// true value.
const testModeEnv = "PAYROLL_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeInit sync.Once
)

func loadTestMode() {
	on, err := strconv.ParseBool(os.Getenv(testModeEnv))
	testMode.Store(err == nil && on)
}

// InTestMode reports whether the binaries should return before dialing
// postgres or redis.
func InTestMode() bool {
	testModeInit.Do(loadTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads the environment after it changes.
func RefreshTestMode() {
	testModeInit.Do(func() {})
	loadTestMode()
}
