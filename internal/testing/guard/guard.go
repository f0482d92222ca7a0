// Package guard switches the process into test mode when imported by tests.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("PAYROLL_TEST_MODE") == "" {
			_ = os.Setenv("PAYROLL_TEST_MODE", "1")
		}
		if os.Getenv("SESSION_SECRET") == "" {
			_ = os.Setenv("SESSION_SECRET", "test-secret")
		}
	})
}
